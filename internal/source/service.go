package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/africashands/platform/internal/model"
	"github.com/africashands/platform/internal/repository"
	"github.com/africashands/platform/internal/validation"
)

const defaultFetchIntervalMinutes = 60

// FeedDetector はURLからフィードを検出する。
type FeedDetector interface {
	Detect(ctx context.Context, inputURL string) (*Detection, error)
}

// RegisterInput は管理者によるソース登録の入力。
type RegisterInput struct {
	URL                  string                `json:"url" validate:"required,url,max=2048"`
	Title                string                `json:"title" validate:"max=200"`
	Organization         string                `json:"organization" validate:"required,max=120"`
	Country              string                `json:"country" validate:"max=80"`
	Sector               string                `json:"sector" validate:"max=80"`
	Type                 model.OpportunityType `json:"type" validate:"required,oneof=project partnership funding education"`
	FetchIntervalMinutes int                   `json:"fetch_interval_minutes" validate:"omitempty,min=15,max=1440"`
}

// Service はパートナーソース管理のサービス層。
type Service struct {
	repo      repository.SourceRepository
	detector  FeedDetector
	validator *validation.Validator
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(repo repository.SourceRepository, detector FeedDetector) *Service {
	return &Service{
		repo:      repo,
		detector:  detector,
		validator: validation.New(),
		now:       time.Now,
	}
}

// Register はURLからフィードを検出し、取り込み対象のソースとして登録する。
// 登録直後に取り込みジョブの対象となるよう、次回フェッチ時刻は現在時刻にする。
func (s *Service) Register(ctx context.Context, actor model.Actor, in RegisterInput) (*model.OpportunitySource, error) {
	if !actor.IsAdmin() {
		return nil, model.NewForbiddenError()
	}
	in.URL = strings.TrimSpace(in.URL)
	in.Organization = strings.TrimSpace(in.Organization)
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	det, err := s.detector.Detect(ctx, in.URL)
	if err != nil {
		slog.Warn("source detection failed",
			slog.String("url", in.URL),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	existing, err := s.repo.FindByFeedURL(ctx, det.FeedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to find source: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateSourceError()
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = det.Title
	}
	if title == "" {
		title = in.Organization
	}
	interval := in.FetchIntervalMinutes
	if interval == 0 {
		interval = defaultFetchIntervalMinutes
	}

	now := s.now()
	src := &model.OpportunitySource{
		ID:                   uuid.New().String(),
		SiteURL:              det.SiteURL,
		FeedURL:              det.FeedURL,
		Title:                title,
		Organization:         in.Organization,
		Country:              strings.TrimSpace(in.Country),
		Sector:               strings.TrimSpace(in.Sector),
		Type:                 in.Type,
		FetchStatus:          model.FetchStatusActive,
		FetchIntervalMinutes: interval,
		NextFetchAt:          now,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.repo.Create(ctx, src); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateSourceError()
		}
		return nil, fmt.Errorf("failed to create source: %w", err)
	}

	slog.Info("source registered",
		slog.String("source_id", src.ID),
		slog.String("feed_url", src.FeedURL),
		slog.String("actor_id", actor.UserID),
	)
	return src, nil
}

// List は登録済みソースの一覧を返す。
func (s *Service) List(ctx context.Context, actor model.Actor) ([]*model.OpportunitySource, error) {
	if !actor.IsAdmin() {
		return nil, model.NewForbiddenError()
	}
	sources, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	return sources, nil
}
