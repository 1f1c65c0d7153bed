package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/africashands/platform/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

const profileColumns = `id, full_name, email, role, role_source, country, sector, organization,
	avatar_url, verified, preferences, created_at, updated_at`

func scanProfile(row rowScanner) (*model.Profile, error) {
	p := &model.Profile{}
	var role sql.NullString
	var prefs []byte
	if err := row.Scan(
		&p.ID, &p.FullName, &p.Email, &role, &p.RoleSource, &p.Country, &p.Sector, &p.Organization,
		&p.AvatarURL, &p.Verified, &prefs, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Role = model.Role(nullStringValue(role))
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &p.Preferences); err != nil {
			return nil, fmt.Errorf("failed to decode preferences: %w", err)
		}
	}
	return p, nil
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	return p, nil
}

func profileArgs(p *model.Profile) ([]any, error) {
	prefs, err := json.Marshal(p.Preferences)
	if err != nil {
		return nil, fmt.Errorf("failed to encode preferences: %w", err)
	}
	source := p.RoleSource
	if source == "" {
		source = model.RoleSourceDerived
	}
	return []any{
		p.ID, p.FullName, p.Email, nullString(string(p.Role)), source, p.Country, p.Sector,
		p.Organization, p.AvatarURL, p.Verified, string(prefs), p.CreatedAt, p.UpdatedAt,
	}, nil
}

// InsertIfAbsent はプロフィールが存在しない場合のみ挿入する。
// ログイン時に既存の行を上書きしないために使用する。
func (r *PostgresProfileRepo) InsertIfAbsent(ctx context.Context, p *model.Profile) (bool, error) {
	args, err := profileArgs(p)
	if err != nil {
		return false, err
	}
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (`+profileColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (id) DO NOTHING`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert profile: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// Upsert はプロフィールを挿入し、存在する場合は上書きする。
// 明示的に設定されたロールは上書きしない。
func (r *PostgresProfileRepo) Upsert(ctx context.Context, p *model.Profile) error {
	args, err := profileArgs(p)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO profiles (`+profileColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (id) DO UPDATE SET
		     full_name = EXCLUDED.full_name,
		     email = EXCLUDED.email,
		     role = CASE WHEN profiles.role_source = 'explicit' THEN profiles.role ELSE EXCLUDED.role END,
		     role_source = CASE WHEN profiles.role_source = 'explicit' THEN profiles.role_source ELSE EXCLUDED.role_source END,
		     country = EXCLUDED.country,
		     sector = EXCLUDED.sector,
		     organization = EXCLUDED.organization,
		     avatar_url = EXCLUDED.avatar_url,
		     verified = EXCLUDED.verified,
		     preferences = EXCLUDED.preferences,
		     updated_at = EXCLUDED.updated_at`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// UpdateRole はロールとその決定方法を更新する。
// 明示的に設定されたロールは、source=explicitの更新でのみ変更できる。
// 対象行が存在しない場合や明示ロールで保護されている場合は何もしない。
func (r *PostgresProfileRepo) UpdateRole(ctx context.Context, id string, role model.Role, source model.RoleSource) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET role = $2, role_source = $3, updated_at = now()
		 WHERE id = $1 AND (role_source <> 'explicit' OR $3 = 'explicit')`,
		id, string(role), string(source),
	)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	return nil
}

// Update は自己編集可能な項目を部分更新し、更新後のプロフィールを返す。
// nilの項目はCOALESCEで既存値を維持する。
func (r *PostgresProfileRepo) Update(ctx context.Context, id string, u model.ProfileUpdate) (*model.Profile, error) {
	var prefs sql.NullString
	if u.Preferences != nil {
		b, err := json.Marshal(u.Preferences)
		if err != nil {
			return nil, fmt.Errorf("failed to encode preferences: %w", err)
		}
		prefs = sql.NullString{String: string(b), Valid: true}
	}

	p, err := scanProfile(r.db.QueryRowContext(ctx,
		`UPDATE profiles SET
		     full_name = COALESCE($2, full_name),
		     country = COALESCE($3, country),
		     sector = COALESCE($4, sector),
		     organization = COALESCE($5, organization),
		     avatar_url = COALESCE($6, avatar_url),
		     preferences = COALESCE($7::jsonb, preferences),
		     updated_at = now()
		 WHERE id = $1
		 RETURNING `+profileColumns,
		id, u.FullName, u.Country, u.Sector, u.Organization, u.AvatarURL, prefs,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return p, nil
}

// List はプロフィール一覧を作成日時の降順で返す。
func (r *PostgresProfileRepo) List(ctx context.Context, limit, offset int) ([]*model.Profile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles
		 ORDER BY created_at DESC
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profiles: %w", err)
	}
	return profiles, nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
