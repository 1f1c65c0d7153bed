// Package user は管理者向けのユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/africashands/platform/internal/model"
	"github.com/africashands/platform/internal/repository"
	"github.com/africashands/platform/internal/validation"
)

// ProfileStore はユーザー管理が使用するプロフィール操作。
type ProfileStore interface {
	FindByID(ctx context.Context, id string) (*model.Profile, error)
	Upsert(ctx context.Context, profile *model.Profile) error
	UpdateRole(ctx context.Context, id string, role model.Role, source model.RoleSource) error
	List(ctx context.Context, limit, offset int) ([]*model.Profile, error)
}

// CreateUserInput は管理者によるユーザー作成の入力。
// ここで指定したロールは明示指定として扱われ、自動補正されない。
type CreateUserInput struct {
	Email        string     `json:"email" validate:"required,email,max=254"`
	Password     string     `json:"password" validate:"required,min=8,max=72"`
	FullName     string     `json:"full_name" validate:"max=120"`
	Role         model.Role `json:"role" validate:"required,oneof=admin user"`
	Country      string     `json:"country" validate:"max=80"`
	Sector       string     `json:"sector" validate:"max=80"`
	Organization string     `json:"organization" validate:"max=120"`
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	profiles    ProfileStore
	validator   *validation.Validator
	defaults    model.Profile
	bcryptCost  int
}

// NewService はServiceの新しいインスタンスを生成する。
// defaultsのCountry、Organization、Verified、Preferencesが新規プロフィールの既定値になる。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	profiles ProfileStore,
	defaults model.Profile,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		profiles:    profiles,
		validator:   validation.New(),
		defaults:    defaults,
		bcryptCost:  bcrypt.DefaultCost,
	}
}

// ListUsers はプロフィール一覧を返す。
func (s *Service) ListUsers(ctx context.Context, actor model.Actor, limit, offset int) ([]*model.Profile, error) {
	if !actor.IsAdmin() {
		return nil, model.NewForbiddenError()
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	profiles, err := s.profiles.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return profiles, nil
}

// CreateUser はロールを明示指定してユーザーを作成する。
func (s *Service) CreateUser(ctx context.Context, actor model.Actor, in CreateUserInput) (*model.Profile, error) {
	if !actor.IsAdmin() {
		return nil, model.NewForbiddenError()
	}
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	u := &model.User{
		ID:           uuid.New().String(),
		Email:        in.Email,
		Name:         strings.TrimSpace(in.FullName),
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	identity := &model.Identity{
		ID:             uuid.New().String(),
		UserID:         u.ID,
		Provider:       model.ProviderEmail,
		ProviderUserID: strings.ToLower(in.Email),
		CreatedAt:      now,
	}
	if err := s.userRepo.CreateWithIdentity(ctx, u, identity); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewEmailAlreadyRegisteredError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	p := s.defaults
	p.ID = u.ID
	p.Email = u.Email
	p.FullName = u.Name
	p.Role = in.Role
	p.RoleSource = model.RoleSourceExplicit
	if in.Country != "" {
		p.Country = in.Country
	}
	if in.Sector != "" {
		p.Sector = in.Sector
	}
	if in.Organization != "" {
		p.Organization = in.Organization
	}
	if err := s.profiles.Upsert(ctx, &p); err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}
	// トリガーが作成した骨格行にも明示ロールを設定する
	if err := s.profiles.UpdateRole(ctx, u.ID, in.Role, model.RoleSourceExplicit); err != nil {
		return nil, fmt.Errorf("failed to set role: %w", err)
	}

	slog.Info("user created by admin",
		slog.String("user_id", u.ID),
		slog.String("role", string(in.Role)),
		slog.String("actor_id", actor.UserID),
	)
	return &p, nil
}

// SetRole はユーザーのロールを明示的に設定する。
func (s *Service) SetRole(ctx context.Context, actor model.Actor, userID string, role model.Role) (*model.Profile, error) {
	if !actor.IsAdmin() {
		return nil, model.NewForbiddenError()
	}
	if !role.Valid() {
		return nil, model.NewValidationError("role")
	}

	p, err := s.profiles.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	if p == nil {
		return nil, model.NewUserNotFoundError()
	}

	if err := s.profiles.UpdateRole(ctx, userID, role, model.RoleSourceExplicit); err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}

	slog.Info("role set by admin",
		slog.String("user_id", userID),
		slog.String("previous_role", string(p.Role)),
		slog.String("role", string(role)),
		slog.String("actor_id", actor.UserID),
	)

	p.Role = role
	p.RoleSource = model.RoleSourceExplicit
	return p, nil
}

// Withdraw はユーザーを削除する。
// 削除順序: sessions → user（+ CASCADE: identities, profiles, applications）
func (s *Service) Withdraw(ctx context.Context, actor model.Actor, userID string) error {
	if !actor.IsAdmin() && actor.UserID != userID {
		return model.NewForbiddenError()
	}

	u, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if u == nil {
		return model.NewUserNotFoundError()
	}

	if s.sessionRepo != nil {
		if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("failed to delete sessions: %w", err)
		}
	}

	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	slog.Info("user withdrawn",
		slog.String("user_id", userID),
		slog.String("actor_id", actor.UserID),
	)
	return nil
}
