package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/africashands/platform/internal/model"
)

// PostgresImageRepo はPostgreSQLを使用した機会画像リポジトリ。
// 画像バイナリはbytea列に保存する。
type PostgresImageRepo struct {
	db *sql.DB
}

// NewPostgresImageRepo はPostgresImageRepoを生成する。
func NewPostgresImageRepo(db *sql.DB) *PostgresImageRepo {
	return &PostgresImageRepo{db: db}
}

// Create は画像を保存する。
func (r *PostgresImageRepo) Create(ctx context.Context, img *model.OpportunityImage) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO opportunity_images (id, opportunity_id, filename, mime_type, width, height, data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		img.ID, img.OpportunityID, img.Filename, img.MimeType, img.Width, img.Height, img.Data, img.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("画像の保存に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDの画像を取得する。見つからない場合はnilを返す。
func (r *PostgresImageRepo) FindByID(ctx context.Context, id string) (*model.OpportunityImage, error) {
	img := &model.OpportunityImage{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, opportunity_id, filename, mime_type, width, height, data, created_at
		 FROM opportunity_images WHERE id = $1`,
		id,
	).Scan(&img.ID, &img.OpportunityID, &img.Filename, &img.MimeType, &img.Width, &img.Height, &img.Data, &img.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("画像の取得に失敗しました: %w", err)
	}
	return img, nil
}

// compile-time interface check
var _ ImageRepository = (*PostgresImageRepo)(nil)
