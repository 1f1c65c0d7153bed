package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/africashands/platform/internal/model"
	"github.com/africashands/platform/internal/security"
)

// PostgresOpportunityRepo はPostgreSQLを使用した機会リポジトリ。
type PostgresOpportunityRepo struct {
	db *sql.DB
}

// NewPostgresOpportunityRepo はPostgresOpportunityRepoを生成する。
func NewPostgresOpportunityRepo(db *sql.DB) *PostgresOpportunityRepo {
	return &PostgresOpportunityRepo{db: db}
}

const opportunityColumns = `id, title, description, organization, country, sector, type, status,
	image_url, contact_email, deadline, created_by, source_id, external_guid, external_link,
	content_hash, created_at, updated_at`

func scanOpportunity(row rowScanner) (*model.Opportunity, error) {
	o := &model.Opportunity{}
	var deadline sql.NullTime
	var createdBy, sourceID, guid, link, hash sql.NullString
	if err := row.Scan(
		&o.ID, &o.Title, &o.Description, &o.Organization, &o.Country, &o.Sector, &o.Type, &o.Status,
		&o.ImageURL, &o.ContactEmail, &deadline, &createdBy, &sourceID, &guid, &link,
		&hash, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if deadline.Valid {
		o.Deadline = &deadline.Time
	}
	o.CreatedBy = nullStringValue(createdBy)
	o.SourceID = nullStringValue(sourceID)
	o.ExternalGUID = nullStringValue(guid)
	o.ExternalLink = nullStringValue(link)
	o.ContentHash = nullStringValue(hash)
	return o, nil
}

func (r *PostgresOpportunityRepo) findOne(ctx context.Context, where string, args ...any) (*model.Opportunity, error) {
	o, err := scanOpportunity(r.db.QueryRowContext(ctx,
		`SELECT `+opportunityColumns+` FROM opportunities WHERE `+where+` LIMIT 1`,
		args...,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// FindByID は指定IDの機会を取得する。見つからない場合はnilを返す。
func (r *PostgresOpportunityRepo) FindByID(ctx context.Context, id string) (*model.Opportunity, error) {
	o, err := r.findOne(ctx, `id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("機会の取得に失敗しました: %w", err)
	}
	return o, nil
}

// List は状態・国・分野・種別で絞り込んだ機会を作成日時の降順で返す。
// Searchはタイトル、説明文の平文、団体名に対する大文字小文字を区別しない部分一致。
// Limitが正の場合はLimitとOffsetで範囲を絞る。
func (r *PostgresOpportunityRepo) List(ctx context.Context, filter model.OpportunityFilter) ([]*model.Opportunity, error) {
	status := filter.Status
	if status == "" {
		status = model.OpportunityStatusActive
	}

	conds := []string{"status = $1"}
	args := []any{string(status)}
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("country", filter.Country)
	add("sector", filter.Sector)
	add("type", string(filter.Type))
	if term := strings.TrimSpace(filter.Search); term != "" {
		args = append(args, "%"+escapeLike(term)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(title ILIKE $%d OR search_text ILIKE $%d OR organization ILIKE $%d)", n, n, n))
	}

	page := ""
	if filter.Limit > 0 {
		args = append(args, filter.Limit, max(filter.Offset, 0))
		page = fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+opportunityColumns+` FROM opportunities
		 WHERE `+strings.Join(conds, " AND ")+`
		 ORDER BY created_at DESC, id`+page,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("機会一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var opps []*model.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("機会の読み取りに失敗しました: %w", err)
		}
		opps = append(opps, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("機会一覧の走査に失敗しました: %w", err)
	}
	return opps, nil
}

// Create は機会を作成する。
// 取り込み時に同一(source_id, external_guid)が既に存在する場合はErrDuplicateを返す。
func (r *PostgresOpportunityRepo) Create(ctx context.Context, o *model.Opportunity) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO opportunities (`+opportunityColumns+`, search_text)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		o.ID, o.Title, o.Description, o.Organization, o.Country, o.Sector, string(o.Type), string(o.Status),
		o.ImageURL, o.ContactEmail, o.Deadline, nullString(o.CreatedBy), nullString(o.SourceID),
		nullString(o.ExternalGUID), nullString(o.ExternalLink), nullString(o.ContentHash),
		o.CreatedAt, o.UpdatedAt, security.PlainText(o.Description),
	)
	if err != nil {
		if uniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("機会の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は機会を上書き更新する。作成者と取り込み元は変更しない。
func (r *PostgresOpportunityRepo) Update(ctx context.Context, o *model.Opportunity) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE opportunities SET
		     title = $2,
		     description = $3,
		     organization = $4,
		     country = $5,
		     sector = $6,
		     type = $7,
		     status = $8,
		     image_url = $9,
		     contact_email = $10,
		     deadline = $11,
		     external_link = $12,
		     content_hash = $13,
		     updated_at = $14,
		     search_text = $15
		 WHERE id = $1`,
		o.ID, o.Title, o.Description, o.Organization, o.Country, o.Sector, string(o.Type), string(o.Status),
		o.ImageURL, o.ContactEmail, o.Deadline, nullString(o.ExternalLink), nullString(o.ContentHash),
		o.UpdatedAt, security.PlainText(o.Description),
	)
	if err != nil {
		return fmt.Errorf("機会の更新に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定IDの機会を削除する。応募と画像はCASCADE削除される。
func (r *PostgresOpportunityRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM opportunities WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("機会の削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// UpdateImageURL は機会の画像URLを更新する。
func (r *PostgresOpportunityRepo) UpdateImageURL(ctx context.Context, id, imageURL string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE opportunities SET image_url = $2, updated_at = now() WHERE id = $1`,
		id, imageURL,
	)
	if err != nil {
		return fmt.Errorf("画像URLの更新に失敗しました: %w", err)
	}
	return nil
}

// FindBySourceAndGUID はsource_idとexternal_guidで機会を検索する。
func (r *PostgresOpportunityRepo) FindBySourceAndGUID(ctx context.Context, sourceID, guid string) (*model.Opportunity, error) {
	o, err := r.findOne(ctx, `source_id = $1 AND external_guid = $2`, sourceID, guid)
	if err != nil {
		return nil, fmt.Errorf("GUID による機会の検索に失敗しました: %w", err)
	}
	return o, nil
}

// FindBySourceAndLink はsource_idとexternal_linkで機会を検索する。
func (r *PostgresOpportunityRepo) FindBySourceAndLink(ctx context.Context, sourceID, link string) (*model.Opportunity, error) {
	o, err := r.findOne(ctx, `source_id = $1 AND external_link = $2`, sourceID, link)
	if err != nil {
		return nil, fmt.Errorf("リンクによる機会の検索に失敗しました: %w", err)
	}
	return o, nil
}

// FindBySourceAndHash はsource_idとcontent_hashで機会を検索する。
func (r *PostgresOpportunityRepo) FindBySourceAndHash(ctx context.Context, sourceID, hash string) (*model.Opportunity, error) {
	o, err := r.findOne(ctx, `source_id = $1 AND content_hash = $2`, sourceID, hash)
	if err != nil {
		return nil, fmt.Errorf("ハッシュによる機会の検索に失敗しました: %w", err)
	}
	return o, nil
}

// CloseExpired は締切を過ぎた公開中の機会を締切済みにし、更新件数を返す。
func (r *PostgresOpportunityRepo) CloseExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE opportunities SET status = 'closed', updated_at = now()
		 WHERE status = 'active' AND deadline IS NOT NULL AND deadline < $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("締切済み機会の更新に失敗しました: %w", err)
	}
	return result.RowsAffected()
}

// compile-time interface check
var _ OpportunityRepository = (*PostgresOpportunityRepo)(nil)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike はLIKEパターンのメタ文字をエスケープする。
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
