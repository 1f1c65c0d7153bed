package opportunity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/africashands/platform/internal/model"
	"github.com/africashands/platform/internal/repository"
)

// ApplyInput は応募の入力。
type ApplyInput struct {
	Message string `json:"message" validate:"max=2000"`
}

// Apply はログイン中のユーザーとして機会に応募する。
// 応募できるのは公開中かつ締切前の機会のみで、同じ機会への応募は1回に限られる。
func (s *Service) Apply(ctx context.Context, actor model.Actor, opportunityID string, in ApplyInput) (*model.Application, error) {
	if actor.UserID == "" {
		return nil, model.NewUnauthorizedError()
	}
	in.Message = strings.TrimSpace(in.Message)
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	o, err := s.opps.FindByID(ctx, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("failed to find opportunity: %w", err)
	}
	if o == nil || o.Status == model.OpportunityStatusDraft {
		return nil, model.NewOpportunityNotFoundError(opportunityID)
	}
	now := s.now()
	if o.Status != model.OpportunityStatusActive || (o.Deadline != nil && o.Deadline.Before(now)) {
		return nil, model.NewOpportunityClosedError()
	}

	app := &model.Application{
		ID:            uuid.New().String(),
		OpportunityID: opportunityID,
		UserID:        actor.UserID,
		Message:       in.Message,
		Status:        model.ApplicationStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.apps.Create(ctx, app); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewAlreadyAppliedError()
		}
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	slog.Info("application submitted",
		slog.String("application_id", app.ID),
		slog.String("opportunity_id", opportunityID),
		slog.String("user_id", actor.UserID),
	)
	return app, nil
}

// ListMine はログイン中のユーザーの応募一覧を返す。
func (s *Service) ListMine(ctx context.Context, actor model.Actor) ([]repository.ApplicationWithOpportunity, error) {
	if actor.UserID == "" {
		return nil, model.NewUnauthorizedError()
	}
	apps, err := s.apps.ListByUserID(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	if apps == nil {
		apps = []repository.ApplicationWithOpportunity{}
	}
	return apps, nil
}

// ListForOpportunity は機会への応募一覧を返す。管理者のみ実行できる。
func (s *Service) ListForOpportunity(ctx context.Context, actor model.Actor, opportunityID string) ([]repository.ApplicationWithApplicant, error) {
	if !actor.IsAdmin() {
		return nil, model.NewForbiddenError()
	}
	o, err := s.opps.FindByID(ctx, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("failed to find opportunity: %w", err)
	}
	if o == nil {
		return nil, model.NewOpportunityNotFoundError(opportunityID)
	}

	apps, err := s.apps.ListByOpportunityID(ctx, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list applicants: %w", err)
	}
	if apps == nil {
		apps = []repository.ApplicationWithApplicant{}
	}
	return apps, nil
}

// UpdateStatus は応募の審査状態を更新する。管理者のみ実行できる。
func (s *Service) UpdateStatus(ctx context.Context, actor model.Actor, applicationID string, status model.ApplicationStatus) (*model.Application, error) {
	if !actor.IsAdmin() {
		return nil, model.NewForbiddenError()
	}
	if !status.Valid() {
		return nil, model.NewValidationError("status")
	}

	updated, err := s.apps.UpdateStatus(ctx, applicationID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to update application status: %w", err)
	}
	if !updated {
		return nil, model.NewApplicationNotFoundError(applicationID)
	}

	app, err := s.apps.FindByID(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to find application: %w", err)
	}
	if app == nil {
		return nil, model.NewApplicationNotFoundError(applicationID)
	}

	slog.Info("application status updated",
		slog.String("application_id", applicationID),
		slog.String("status", string(status)),
		slog.String("actor_id", actor.UserID),
	)
	return app, nil
}
