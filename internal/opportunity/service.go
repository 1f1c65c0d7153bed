package opportunity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/africashands/platform/internal/model"
	"github.com/africashands/platform/internal/repository"
	"github.com/africashands/platform/internal/security"
	"github.com/africashands/platform/internal/validation"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Input は機会の作成・更新の入力。管理者の作成ウィザードから送信される。
type Input struct {
	Title        string                  `json:"title" validate:"required,max=200"`
	Description  string                  `json:"description" validate:"required,max=20000"`
	Organization string                  `json:"organization" validate:"required,max=120"`
	Country      string                  `json:"country" validate:"required,max=80"`
	Sector       string                  `json:"sector" validate:"required,max=80"`
	Type         model.OpportunityType   `json:"type" validate:"required,oneof=project partnership funding education"`
	Status       model.OpportunityStatus `json:"status" validate:"omitempty,oneof=active closed draft"`
	ContactEmail string                  `json:"contact_email" validate:"omitempty,email,max=254"`
	Deadline     *time.Time              `json:"deadline"`
}

// ListQuery は一覧取得の条件。
type ListQuery struct {
	Filter Filter
	// Statusが空の場合は公開中の機会のみを返す。公開中以外は管理者のみ指定できる。
	Status model.OpportunityStatus
	Limit  int
	Offset int
}

// Service は機会と応募のサービス層。
type Service struct {
	opps      repository.OpportunityRepository
	apps      repository.ApplicationRepository
	sanitizer *security.DescriptionSanitizer
	validator *validation.Validator
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(opps repository.OpportunityRepository, apps repository.ApplicationRepository) *Service {
	return &Service{
		opps:      opps,
		apps:      apps,
		sanitizer: security.NewDescriptionSanitizer(),
		validator: validation.New(),
		now:       time.Now,
	}
}

// List は条件に一致する機会を作成日時の降順で返す。
// 絞り込みと範囲指定はSQLで行い、結果にも同じ条件を適用する。
func (s *Service) List(ctx context.Context, actor model.Actor, q ListQuery) ([]*model.Opportunity, error) {
	status := q.Status
	if status == "" {
		status = model.OpportunityStatusActive
	}
	if status != model.OpportunityStatusActive && !actor.IsAdmin() {
		return nil, model.NewForbiddenError()
	}

	limit := q.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	query := q.Filter.query(status)
	query.Limit = limit
	query.Offset = max(q.Offset, 0)

	opps, err := s.opps.List(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list opportunities: %w", err)
	}
	return q.Filter.Apply(opps), nil
}

// Get は機会を取得する。下書きは管理者のみ参照できる。
func (s *Service) Get(ctx context.Context, actor model.Actor, id string) (*model.Opportunity, error) {
	o, err := s.opps.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find opportunity: %w", err)
	}
	if o == nil || (o.Status == model.OpportunityStatusDraft && !actor.IsAdmin()) {
		return nil, model.NewOpportunityNotFoundError(id)
	}
	return o, nil
}

// Create は機会を作成する。管理者のみ実行できる。
func (s *Service) Create(ctx context.Context, actor model.Actor, in Input) (*model.Opportunity, error) {
	if !actor.IsAdmin() {
		return nil, model.NewForbiddenError()
	}
	in, err := s.normalize(in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	o := &model.Opportunity{
		ID:        uuid.New().String(),
		CreatedBy: actor.UserID,
		CreatedAt: now,
	}
	s.apply(o, in, now)

	if err := s.opps.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to create opportunity: %w", err)
	}

	slog.Info("opportunity created",
		slog.String("opportunity_id", o.ID),
		slog.String("status", string(o.Status)),
		slog.String("actor_id", actor.UserID),
	)
	return o, nil
}

// Update は機会を上書き更新する。管理者のみ実行できる。
// 画像URLと取り込み元の情報は維持する。
func (s *Service) Update(ctx context.Context, actor model.Actor, id string, in Input) (*model.Opportunity, error) {
	if !actor.IsAdmin() {
		return nil, model.NewForbiddenError()
	}
	in, err := s.normalize(in)
	if err != nil {
		return nil, err
	}

	o, err := s.opps.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find opportunity: %w", err)
	}
	if o == nil {
		return nil, model.NewOpportunityNotFoundError(id)
	}

	s.apply(o, in, s.now())
	if err := s.opps.Update(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to update opportunity: %w", err)
	}

	slog.Info("opportunity updated",
		slog.String("opportunity_id", o.ID),
		slog.String("actor_id", actor.UserID),
	)
	return o, nil
}

// Delete は機会を削除する。管理者のみ実行できる。
func (s *Service) Delete(ctx context.Context, actor model.Actor, id string) error {
	if !actor.IsAdmin() {
		return model.NewForbiddenError()
	}
	deleted, err := s.opps.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete opportunity: %w", err)
	}
	if !deleted {
		return model.NewOpportunityNotFoundError(id)
	}

	slog.Info("opportunity deleted",
		slog.String("opportunity_id", id),
		slog.String("actor_id", actor.UserID),
	)
	return nil
}

// normalize は入力を整形・検証し、説明文をサニタイズする。
func (s *Service) normalize(in Input) (Input, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Organization = strings.TrimSpace(in.Organization)
	in.Country = strings.TrimSpace(in.Country)
	in.Sector = strings.TrimSpace(in.Sector)
	in.ContactEmail = strings.TrimSpace(in.ContactEmail)
	if err := s.validator.Struct(in); err != nil {
		return in, err
	}

	in.Description = s.sanitizer.Sanitize(in.Description)
	if security.PlainText(in.Description) == "" {
		return in, model.NewValidationError("description")
	}
	if in.Status == "" {
		in.Status = model.OpportunityStatusActive
	}
	return in, nil
}

func (s *Service) apply(o *model.Opportunity, in Input, now time.Time) {
	o.Title = in.Title
	o.Description = in.Description
	o.Organization = in.Organization
	o.Country = in.Country
	o.Sector = in.Sector
	o.Type = in.Type
	o.Status = in.Status
	o.ContactEmail = in.ContactEmail
	o.Deadline = in.Deadline
	o.UpdatedAt = now
}
