package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/africashands/platform/internal/model"
)

// PostgresApplicationRepo はPostgreSQLを使用した応募リポジトリ。
type PostgresApplicationRepo struct {
	db *sql.DB
}

// NewPostgresApplicationRepo はPostgresApplicationRepoを生成する。
func NewPostgresApplicationRepo(db *sql.DB) *PostgresApplicationRepo {
	return &PostgresApplicationRepo{db: db}
}

// FindByID は指定IDの応募を取得する。見つからない場合はnilを返す。
func (r *PostgresApplicationRepo) FindByID(ctx context.Context, id string) (*model.Application, error) {
	a := &model.Application{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, opportunity_id, user_id, message, status, created_at, updated_at
		 FROM applications WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.OpportunityID, &a.UserID, &a.Message, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("応募の取得に失敗しました: %w", err)
	}
	return a, nil
}

// Create は応募を作成する。同一ユーザーの重複応募はErrDuplicateを返す。
func (r *PostgresApplicationRepo) Create(ctx context.Context, a *model.Application) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO applications (id, opportunity_id, user_id, message, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.OpportunityID, a.UserID, a.Message, string(a.Status), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if uniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("応募の作成に失敗しました: %w", err)
	}
	return nil
}

// ListByUserID はユーザーの応募一覧を機会情報付きで返す。
func (r *PostgresApplicationRepo) ListByUserID(ctx context.Context, userID string) ([]ApplicationWithOpportunity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT a.id, a.opportunity_id, a.user_id, a.message, a.status, a.created_at, a.updated_at,
		        o.title, o.organization, o.status
		 FROM applications a
		 INNER JOIN opportunities o ON o.id = a.opportunity_id
		 WHERE a.user_id = $1
		 ORDER BY a.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("応募一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var result []ApplicationWithOpportunity
	for rows.Next() {
		var a ApplicationWithOpportunity
		if err := rows.Scan(
			&a.ID, &a.OpportunityID, &a.UserID, &a.Message, &a.Status, &a.CreatedAt, &a.UpdatedAt,
			&a.OpportunityTitle, &a.Organization, &a.OpportunityStatus,
		); err != nil {
			return nil, fmt.Errorf("応募の読み取りに失敗しました: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("応募一覧の走査に失敗しました: %w", err)
	}
	return result, nil
}

// ListByOpportunityID は機会への応募一覧を応募者情報付きで返す。
// プロフィールが未作成の応募者も含める。
func (r *PostgresApplicationRepo) ListByOpportunityID(ctx context.Context, opportunityID string) ([]ApplicationWithApplicant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT a.id, a.opportunity_id, a.user_id, a.message, a.status, a.created_at, a.updated_at,
		        COALESCE(p.full_name, u.name), u.email, COALESCE(p.country, '')
		 FROM applications a
		 INNER JOIN users u ON u.id = a.user_id
		 LEFT JOIN profiles p ON p.id = a.user_id
		 WHERE a.opportunity_id = $1
		 ORDER BY a.created_at ASC`,
		opportunityID,
	)
	if err != nil {
		return nil, fmt.Errorf("応募者一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var result []ApplicationWithApplicant
	for rows.Next() {
		var a ApplicationWithApplicant
		if err := rows.Scan(
			&a.ID, &a.OpportunityID, &a.UserID, &a.Message, &a.Status, &a.CreatedAt, &a.UpdatedAt,
			&a.ApplicantName, &a.ApplicantEmail, &a.ApplicantCountry,
		); err != nil {
			return nil, fmt.Errorf("応募者の読み取りに失敗しました: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("応募者一覧の走査に失敗しました: %w", err)
	}
	return result, nil
}

// UpdateStatus は応募の審査状態を更新する。更新した場合はtrueを返す。
func (r *PostgresApplicationRepo) UpdateStatus(ctx context.Context, id string, status model.ApplicationStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE applications SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return false, fmt.Errorf("応募状態の更新に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// compile-time interface check
var _ ApplicationRepository = (*PostgresApplicationRepo)(nil)
