// Package importer はパートナー団体のフィードを定期的に取り込み、下書きの機会を作成する。
// スケジューラ、フェッチャー、停止/バックオフ方針を含む。
package importer

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/africashands/platform/internal/model"
	"github.com/africashands/platform/internal/repository"
)

// SourceFetcher は1つのソースを取り込む。
type SourceFetcher interface {
	Fetch(ctx context.Context, src *model.OpportunitySource) error
}

// Scheduler はフェッチ対象のソースを定期的に取得し、並列数を制限して取り込む。
type Scheduler struct {
	sources        repository.SourceRepository
	fetcher        SourceFetcher
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerを生成する。maxConcurrencyが0以下の場合は4を使用する。
func NewScheduler(sources repository.SourceRepository, fetcher SourceFetcher, logger *slog.Logger, maxConcurrency int) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Scheduler{
		sources:        sources,
		fetcher:        fetcher,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は起動直後とinterval毎にRunOnceを実行する。ctxがキャンセルされるまで戻らない。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("import scheduler started",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.logger.Error("import cycle failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("import scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce はフェッチ対象のソースを取得して取り込む。
// 個々のソースの失敗はログに記録し、他のソースの処理は継続する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	due, err := s.sources.ListDueForFetch(ctx)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	s.logger.Info("import cycle started", slog.Int("source_count", len(due)))

	var g errgroup.Group
	g.SetLimit(s.maxConcurrency)
	for _, src := range due {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := s.fetcher.Fetch(ctx, src); err != nil {
				s.logger.Error("source import failed",
					slog.String("source_id", src.ID),
					slog.String("feed_url", src.FeedURL),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("import cycle finished",
		slog.Int("source_count", len(due)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return ctx.Err()
}
