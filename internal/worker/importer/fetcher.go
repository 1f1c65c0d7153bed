package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/africashands/platform/internal/metrics"
	"github.com/africashands/platform/internal/model"
	"github.com/africashands/platform/internal/repository"
)

const userAgent = "AfricasHands-Importer/1.0"

// EntryUpserter はパースしたエントリを機会として保存する。
type EntryUpserter interface {
	UpsertEntries(ctx context.Context, src *model.OpportunitySource, entries []model.ParsedEntry) (UpsertResult, error)
}

// URLGuard はSSRF検証と安全なHTTPクライアントを提供する。
type URLGuard interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// Fetcher は1つのソースを条件付きGETで取得し、エントリを保存してフェッチ状態を更新する。
type Fetcher struct {
	sources     repository.SourceRepository
	upserter    EntryUpserter
	guard       URLGuard
	recorder    metrics.ImportRecorder
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
}

// NewFetcher はFetcherを生成する。recorderがnilの場合は記録しない。
func NewFetcher(
	sources repository.SourceRepository,
	upserter EntryUpserter,
	guard URLGuard,
	recorder metrics.ImportRecorder,
	logger *slog.Logger,
	timeout time.Duration,
	maxBodySize int64,
) *Fetcher {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Fetcher{
		sources:     sources,
		upserter:    upserter,
		guard:       guard,
		recorder:    recorder,
		logger:      logger,
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

// Fetch はソースを取得し、結果に応じてソースの状態を保存する。
// パース失敗は状態に記録するのみでエラーとしては返さない。
func (f *Fetcher) Fetch(ctx context.Context, src *model.OpportunitySource) error {
	start := time.Now()

	if err := f.guard.ValidateURL(src.FeedURL); err != nil {
		f.logger.Error("source url blocked",
			slog.String("source_id", src.ID),
			slog.String("feed_url", src.FeedURL),
			slog.String("error", err.Error()),
		)
		f.recorder.RecordFetchFailure(src.ID, "ssrf_blocked")
		ApplyStop(src, fmt.Sprintf("url blocked: %s", err.Error()))
		f.saveState(ctx, src)
		return fmt.Errorf("url blocked: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.FeedURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")
	if src.ETag != "" {
		req.Header.Set("If-None-Match", src.ETag)
	}
	if src.LastModified != "" {
		req.Header.Set("If-Modified-Since", src.LastModified)
	}

	resp, err := f.guard.NewSafeClient(f.timeout, f.maxBodySize).Do(req)
	if err != nil {
		f.logger.Error("source request failed",
			slog.String("source_id", src.ID),
			slog.String("feed_url", src.FeedURL),
			slog.String("error", err.Error()),
		)
		f.recorder.RecordFetchFailure(src.ID, "request")
		ApplyBackoff(src, fmt.Sprintf("request failed: %s", err.Error()))
		f.saveState(ctx, src)
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start)
	f.recorder.RecordHTTPStatus(resp.StatusCode)
	f.recorder.RecordFetchLatency(duration)

	switch ClassifyHTTPStatus(resp.StatusCode) {
	case FetchResultOK:
	case FetchResultNotModified:
		f.logger.Info("source not modified",
			slog.String("source_id", src.ID),
			slog.Int("http_status", resp.StatusCode),
			slog.Float64("duration_ms", float64(duration.Milliseconds())),
		)
		f.recorder.RecordFetchSuccess(src.ID)
		ApplySuccess(src)
		return f.sources.UpdateFetchState(ctx, src)
	case FetchResultStop:
		f.logger.Warn("source fetch stopped",
			slog.String("source_id", src.ID),
			slog.String("feed_url", src.FeedURL),
			slog.Int("http_status", resp.StatusCode),
		)
		f.recorder.RecordFetchFailure(src.ID, "stopped")
		ApplyStop(src, fmt.Sprintf("stopped by HTTP status %d", resp.StatusCode))
		return f.sources.UpdateFetchState(ctx, src)
	default:
		f.logger.Warn("source fetch backing off",
			slog.String("source_id", src.ID),
			slog.String("feed_url", src.FeedURL),
			slog.Int("http_status", resp.StatusCode),
			slog.Int("consecutive_errors", src.ConsecutiveErrors+1),
		)
		f.recorder.RecordFetchFailure(src.ID, "backoff")
		ApplyBackoff(src, fmt.Sprintf("backoff on HTTP status %d", resp.StatusCode))
		return f.sources.UpdateFetchState(ctx, src)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		f.recorder.RecordFetchFailure(src.ID, "read")
		ApplyBackoff(src, fmt.Sprintf("read failed: %s", err.Error()))
		return f.sources.UpdateFetchState(ctx, src)
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		src.ETag = etag
	}
	if lastMod := resp.Header.Get("Last-Modified"); lastMod != "" {
		src.LastModified = lastMod
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		f.logger.Error("source parse failed",
			slog.String("source_id", src.ID),
			slog.String("feed_url", src.FeedURL),
			slog.String("error", err.Error()),
		)
		f.recorder.RecordParseFailure(src.ID)
		ApplyParseFailure(src, err.Error())
		f.saveState(ctx, src)
		return nil
	}

	entries := convertItems(parsed.Items)
	res, err := f.upserter.UpsertEntries(ctx, src, entries)
	if err != nil {
		f.logger.Error("source upsert failed",
			slog.String("source_id", src.ID),
			slog.String("error", err.Error()),
		)
		f.recorder.RecordFetchFailure(src.ID, "upsert")
		ApplyBackoff(src, fmt.Sprintf("upsert failed: %s", err.Error()))
		f.saveState(ctx, src)
		return nil
	}
	f.recorder.RecordOpportunitiesUpserted(res.Inserted + res.Updated)
	f.recorder.RecordFetchSuccess(src.ID)

	ApplySuccess(src)
	if err := f.sources.UpdateFetchState(ctx, src); err != nil {
		return err
	}

	f.logger.Info("source fetched",
		slog.String("source_id", src.ID),
		slog.String("feed_url", src.FeedURL),
		slog.Int("http_status", resp.StatusCode),
		slog.Int("inserted", res.Inserted),
		slog.Int("updated", res.Updated),
		slog.Int("entries", len(entries)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return nil
}

func (f *Fetcher) saveState(ctx context.Context, src *model.OpportunitySource) {
	if err := f.sources.UpdateFetchState(ctx, src); err != nil {
		f.logger.Error("failed to update source state",
			slog.String("source_id", src.ID),
			slog.String("error", err.Error()),
		)
	}
}

// convertItems はgofeedの記事をParsedEntryに変換する。
// 説明文が空の場合は本文を使い、リンクが無くGUIDがURLの場合はGUIDをリンクにする。
func convertItems(items []*gofeed.Item) []model.ParsedEntry {
	entries := make([]model.ParsedEntry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		e := model.ParsedEntry{
			GuidOrID: item.GUID,
			Title:    item.Title,
			Link:     item.Link,
			Summary:  item.Description,
		}
		if e.Summary == "" {
			e.Summary = item.Content
		}
		switch {
		case item.PublishedParsed != nil:
			t := *item.PublishedParsed
			e.PublishedAt = &t
		case item.UpdatedParsed != nil:
			t := *item.UpdatedParsed
			e.PublishedAt = &t
		}
		if e.Link == "" && (strings.HasPrefix(e.GuidOrID, "http://") || strings.HasPrefix(e.GuidOrID, "https://")) {
			e.Link = e.GuidOrID
		}
		entries = append(entries, e)
	}
	return entries
}
