package importer

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/africashands/platform/internal/model"
	"github.com/africashands/platform/internal/repository"
)

// Sanitizer は取り込んだ説明文のHTMLを安全な形に整える。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// UpsertResult はエントリ保存の件数。
type UpsertResult struct {
	Inserted int
	Updated  int
	// Skipped は管理者が公開・締切済みにしたため上書きしなかった件数
	Skipped int
}

// Upserter はフィードのエントリを下書きの機会として保存する。
// 同一性は (source_id, guid) > (source_id, link) > hash(title+published+summary) の順で判定する。
type Upserter struct {
	repo      repository.OpportunityRepository
	sanitizer Sanitizer
}

// NewUpserter はUpserterを生成する。
func NewUpserter(repo repository.OpportunityRepository, sanitizer Sanitizer) *Upserter {
	return &Upserter{repo: repo, sanitizer: sanitizer}
}

// UpsertEntries はエントリを保存する。既存の機会が下書きのままなら上書きし、
// 公開済みのものは管理者の編集を優先して変更しない。
func (u *Upserter) UpsertEntries(ctx context.Context, src *model.OpportunitySource, entries []model.ParsedEntry) (UpsertResult, error) {
	var res UpsertResult
	now := time.Now()

	for _, entry := range entries {
		description := u.sanitizer.Sanitize(entry.Summary)
		hash := computeContentHash(entry.Title, entry.PublishedAt, description)

		existing, err := u.findExisting(ctx, src.ID, entry, hash)
		if err != nil {
			return res, fmt.Errorf("failed to find opportunity: %w", err)
		}

		if existing == nil {
			opp := &model.Opportunity{
				ID:           uuid.New().String(),
				Title:        entryTitle(entry),
				Description:  description,
				Organization: src.Organization,
				Country:      src.Country,
				Sector:       src.Sector,
				Type:         src.Type,
				Status:       model.OpportunityStatusDraft,
				SourceID:     src.ID,
				ExternalGUID: entry.GuidOrID,
				ExternalLink: entry.Link,
				ContentHash:  hash,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := u.repo.Create(ctx, opp); err != nil {
				return res, fmt.Errorf("failed to create opportunity: %w", err)
			}
			res.Inserted++
			continue
		}

		if existing.Status != model.OpportunityStatusDraft {
			res.Skipped++
			continue
		}
		existing.Title = entryTitle(entry)
		existing.Description = description
		existing.ExternalGUID = entry.GuidOrID
		existing.ExternalLink = entry.Link
		existing.ContentHash = hash
		existing.UpdatedAt = now
		if err := u.repo.Update(ctx, existing); err != nil {
			return res, fmt.Errorf("failed to update opportunity: %w", err)
		}
		res.Updated++
	}

	slog.Info("partner entries upserted",
		slog.String("source_id", src.ID),
		slog.Int("inserted", res.Inserted),
		slog.Int("updated", res.Updated),
		slog.Int("skipped", res.Skipped),
	)
	return res, nil
}

func (u *Upserter) findExisting(ctx context.Context, sourceID string, entry model.ParsedEntry, hash string) (*model.Opportunity, error) {
	if entry.GuidOrID != "" {
		opp, err := u.repo.FindBySourceAndGUID(ctx, sourceID, entry.GuidOrID)
		if err != nil || opp != nil {
			return opp, err
		}
	}
	if entry.Link != "" {
		opp, err := u.repo.FindBySourceAndLink(ctx, sourceID, entry.Link)
		if err != nil || opp != nil {
			return opp, err
		}
	}
	return u.repo.FindBySourceAndHash(ctx, sourceID, hash)
}

// entryTitle はタイトルが空のエントリにリンクを代用する。
func entryTitle(entry model.ParsedEntry) string {
	if t := strings.TrimSpace(entry.Title); t != "" {
		return t
	}
	return entry.Link
}

// computeContentHash はtitle + published + summaryのSHA-256ハッシュを計算する。
func computeContentHash(title string, publishedAt *time.Time, summary string) string {
	pub := ""
	if publishedAt != nil {
		pub = publishedAt.UTC().Format(time.RFC3339)
	}
	sum := sha256.Sum256([]byte(title + "|" + pub + "|" + summary))
	return fmt.Sprintf("%x", sum)
}
