package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/africashands/platform/internal/model"
)

// PostgresSourceRepo はPostgreSQLを使用したパートナーフィードリポジトリ。
type PostgresSourceRepo struct {
	db *sql.DB
}

// NewPostgresSourceRepo はPostgresSourceRepoを生成する。
func NewPostgresSourceRepo(db *sql.DB) *PostgresSourceRepo {
	return &PostgresSourceRepo{db: db}
}

const sourceColumns = `id, site_url, feed_url, title, organization, country, sector, type,
	etag, last_modified, fetch_status, consecutive_errors, error_message,
	fetch_interval_minutes, next_fetch_at, created_at, updated_at`

func scanSource(row rowScanner) (*model.OpportunitySource, error) {
	s := &model.OpportunitySource{}
	err := row.Scan(
		&s.ID, &s.SiteURL, &s.FeedURL, &s.Title, &s.Organization, &s.Country, &s.Sector, &s.Type,
		&s.ETag, &s.LastModified, &s.FetchStatus, &s.ConsecutiveErrors, &s.ErrorMessage,
		&s.FetchIntervalMinutes, &s.NextFetchAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func scanSources(rows *sql.Rows) ([]*model.OpportunitySource, error) {
	defer rows.Close()
	var sources []*model.OpportunitySource
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("ソースの読み取りに失敗しました: %w", err)
		}
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ソースの走査に失敗しました: %w", err)
	}
	return sources, nil
}

// FindByFeedURL はフィードURLでソースを検索する。見つからない場合はnilを返す。
func (r *PostgresSourceRepo) FindByFeedURL(ctx context.Context, feedURL string) (*model.OpportunitySource, error) {
	s, err := scanSource(r.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM opportunity_sources WHERE feed_url = $1`,
		feedURL,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フィードURLによるソースの検索に失敗しました: %w", err)
	}
	return s, nil
}

// Create はソースを作成する。フィードURLが登録済みの場合はErrDuplicateを返す。
func (r *PostgresSourceRepo) Create(ctx context.Context, s *model.OpportunitySource) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO opportunity_sources (`+sourceColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		s.ID, s.SiteURL, s.FeedURL, s.Title, s.Organization, s.Country, s.Sector, string(s.Type),
		s.ETag, s.LastModified, string(s.FetchStatus), s.ConsecutiveErrors, s.ErrorMessage,
		s.FetchIntervalMinutes, s.NextFetchAt, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		if uniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("ソースの作成に失敗しました: %w", err)
	}
	return nil
}

// List はソース一覧を作成日時の昇順で返す。
func (r *PostgresSourceRepo) List(ctx context.Context) ([]*model.OpportunitySource, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sourceColumns+` FROM opportunity_sources ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("ソース一覧の取得に失敗しました: %w", err)
	}
	return scanSources(rows)
}

// ListDueForFetch はフェッチ対象のソースを取得する。
// 取得と同時にnext_fetch_atをフェッチ間隔分進めて確保するため、
// 複数のワーカーが同じソースを同時に処理することはない。
func (r *PostgresSourceRepo) ListDueForFetch(ctx context.Context) ([]*model.OpportunitySource, error) {
	rows, err := r.db.QueryContext(ctx,
		`UPDATE opportunity_sources s
		 SET next_fetch_at = now() + make_interval(mins => s.fetch_interval_minutes)
		 WHERE s.id IN (
		     SELECT id FROM opportunity_sources
		     WHERE next_fetch_at <= now() AND fetch_status = 'active'
		     ORDER BY next_fetch_at ASC
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+sourceColumns,
	)
	if err != nil {
		return nil, fmt.Errorf("フェッチ対象ソースの取得に失敗しました: %w", err)
	}
	return scanSources(rows)
}

// UpdateFetchState はソースのフェッチ状態を更新する。
func (r *PostgresSourceRepo) UpdateFetchState(ctx context.Context, s *model.OpportunitySource) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE opportunity_sources SET
		    fetch_status = $2,
		    consecutive_errors = $3,
		    error_message = $4,
		    next_fetch_at = $5,
		    etag = $6,
		    last_modified = $7,
		    updated_at = now()
		 WHERE id = $1`,
		s.ID,
		string(s.FetchStatus),
		s.ConsecutiveErrors,
		s.ErrorMessage,
		s.NextFetchAt,
		s.ETag,
		s.LastModified,
	)
	if err != nil {
		return fmt.Errorf("フェッチ状態の更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SourceRepository = (*PostgresSourceRepo)(nil)
