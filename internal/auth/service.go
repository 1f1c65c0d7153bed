// Package auth はメールアドレス/パスワード認証、OAuth認証フロー、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/africashands/platform/internal/authstate"
	"github.com/africashands/platform/internal/metrics"
	"github.com/africashands/platform/internal/model"
	"github.com/africashands/platform/internal/repository"
	"github.com/africashands/platform/internal/validation"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	AvatarURL      string
	Provider       string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ProfileResolver は認証アカウントに対応するプロフィールを解決する。
type ProfileResolver interface {
	Resolve(ctx context.Context, identity model.AuthIdentity, reg *model.Registration) *model.Profile
}

// EventPublisher は認証イベントを配信する。
type EventPublisher interface {
	Publish(ev authstate.Event)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge    int // セッション有効期間（秒）
	PasswordResetTTL time.Duration
	BaseURL          string
	BcryptCost       int
}

// ServiceDeps は認証サービスの依存。
type ServiceDeps struct {
	OAuth      OAuthProvider
	Users      repository.UserRepository
	Identities repository.IdentityRepository
	Sessions   repository.SessionRepository
	Resets     repository.PasswordResetRepository
	Profiles   ProfileResolver
	Events     EventPublisher
	Tokens     *TokenIssuer
	Mailer     Mailer
	Recorder   metrics.AuthRecorder
	Validator  *validation.Validator
}

// SignInResult はサインイン成功時に発行したセッションと解決済みプロフィール。
type SignInResult struct {
	Session  *model.Session
	Identity model.AuthIdentity
	Profile  *model.Profile
}

// RegisterInput はメールアドレスによる新規登録の入力。
type RegisterInput struct {
	Email        string `json:"email" validate:"required,email,max=254"`
	Password     string `json:"password" validate:"required,max=72"`
	FullName     string `json:"full_name" validate:"max=120"`
	Country      string `json:"country" validate:"max=80"`
	Sector       string `json:"sector" validate:"max=80"`
	Organization string `json:"organization" validate:"max=120"`
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	resetRepo   repository.PasswordResetRepository
	profiles    ProfileResolver
	events      EventPublisher
	tokens      *TokenIssuer
	mailer      Mailer
	recorder    metrics.AuthRecorder
	validator   *validation.Validator
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(deps ServiceDeps, config ServiceConfig) *Service {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	if config.PasswordResetTTL == 0 {
		config.PasswordResetTTL = time.Hour
	}
	s := &Service{
		oauth:       deps.OAuth,
		userRepo:    deps.Users,
		identRepo:   deps.Identities,
		sessionRepo: deps.Sessions,
		resetRepo:   deps.Resets,
		profiles:    deps.Profiles,
		events:      deps.Events,
		tokens:      deps.Tokens,
		mailer:      deps.Mailer,
		recorder:    deps.Recorder,
		validator:   deps.Validator,
		config:      config,
		now:         time.Now,
	}
	if s.mailer == nil {
		s.mailer = LogMailer{}
	}
	if s.recorder == nil {
		s.recorder = metrics.Nop{}
	}
	if s.validator == nil {
		s.validator = validation.New()
	}
	return s
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// ExchangeCode は認可コードをプロバイダーのユーザー情報に交換する。
func (s *Service) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	info, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}
	return info, nil
}

// HandleCallback は認可コードを交換し、セッションを発行する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*SignInResult, error) {
	info, err := s.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.EstablishSession(ctx, info)
}

// EstablishSession はOAuthユーザー情報からユーザーを特定または作成し、セッションを発行する。
// 同じメールアドレスのユーザーが既に存在する場合はidentityを追加して紐付ける。
// 同時コールバックでユーザー作成が競合した場合はidentityを再検索する。
func (s *Service) EstablishSession(ctx context.Context, info *OAuthUserInfo) (*SignInResult, error) {
	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	var user *model.User
	if identity != nil {
		user, err = s.userRepo.FindByID(ctx, identity.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
		if user == nil {
			return nil, fmt.Errorf("identity %s references missing user", identity.ID)
		}
		slog.Info("existing user logged in",
			slog.String("user_id", user.ID),
			slog.String("provider", info.Provider),
		)
	} else {
		user, err = s.createOAuthUser(ctx, info)
		if err != nil {
			return nil, err
		}
	}

	authIdentity := model.AuthIdentity{
		UserID:   user.ID,
		Email:    user.Email,
		Provider: info.Provider,
		Claims: model.ProviderClaims{
			FullName:  info.Name,
			AvatarURL: info.AvatarURL,
		},
	}
	result, err := s.signIn(ctx, authIdentity, nil)
	if err != nil {
		return nil, err
	}
	s.recorder.RecordAuthEvent("oauth_login")
	return result, nil
}

// createOAuthUser は新規OAuthユーザーを作成する。
func (s *Service) createOAuthUser(ctx context.Context, info *OAuthUserInfo) (*model.User, error) {
	now := s.now()
	newIdentity := &model.Identity{
		ID:             uuid.New().String(),
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		CreatedAt:      now,
	}

	existing, err := s.userRepo.FindByEmail(ctx, info.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		newIdentity.UserID = existing.ID
		if err := s.identRepo.Create(ctx, newIdentity); err != nil {
			return nil, fmt.Errorf("failed to link identity: %w", err)
		}
		slog.Info("identity linked to existing user",
			slog.String("user_id", existing.ID),
			slog.String("provider", info.Provider),
		)
		return existing, nil
	}

	newUser := &model.User{
		ID:        uuid.New().String(),
		Email:     info.Email,
		Name:      info.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	newIdentity.UserID = newUser.ID
	if err := s.userRepo.CreateWithIdentity(ctx, newUser, newIdentity); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("failed to create user and identity: %w", err)
		}
		// 同時コールバックの競合
		identity, findErr := s.identRepo.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
		if findErr != nil || identity == nil {
			return nil, fmt.Errorf("failed to create user and identity: %w", err)
		}
		user, findErr := s.userRepo.FindByID(ctx, identity.UserID)
		if findErr != nil || user == nil {
			return nil, fmt.Errorf("failed to create user and identity: %w", err)
		}
		return user, nil
	}

	slog.Info("new user created",
		slog.String("user_id", newUser.ID),
		slog.String("provider", info.Provider),
	)
	return newUser, nil
}

// Register はメールアドレスとパスワードで新規登録し、セッションを発行する。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*SignInResult, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}
	if !checkPasswordStrength(in.Password) {
		return nil, model.NewWeakPasswordError(MinPasswordLength)
	}

	existing, err := s.userRepo.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailAlreadyRegisteredError()
	}

	hash, err := hashPassword(in.Password, s.config.BcryptCost)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        in.Email,
		Name:         strings.TrimSpace(in.FullName),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	identity := &model.Identity{
		ID:             uuid.New().String(),
		UserID:         user.ID,
		Provider:       model.ProviderEmail,
		ProviderUserID: strings.ToLower(in.Email),
		CreatedAt:      now,
	}
	if err := s.userRepo.CreateWithIdentity(ctx, user, identity); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewEmailAlreadyRegisteredError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user registered", slog.String("user_id", user.ID))

	reg := &model.Registration{
		FullName:     strings.TrimSpace(in.FullName),
		Country:      strings.TrimSpace(in.Country),
		Sector:       strings.TrimSpace(in.Sector),
		Organization: strings.TrimSpace(in.Organization),
	}
	result, err := s.signIn(ctx, model.AuthIdentity{
		UserID:   user.ID,
		Email:    user.Email,
		Provider: model.ProviderEmail,
	}, reg)
	if err != nil {
		return nil, err
	}
	s.recorder.RecordAuthEvent("register")
	return result, nil
}

// Login はメールアドレスとパスワードで認証し、セッションを発行する。
// ユーザーが存在しない場合もパスワード不一致と同じエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*SignInResult, error) {
	user, err := s.userRepo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil || !verifyPassword(user.PasswordHash, password) {
		s.recorder.RecordAuthEvent("login_failed")
		return nil, model.NewInvalidCredentialsError()
	}

	result, err := s.signIn(ctx, model.AuthIdentity{
		UserID:   user.ID,
		Email:    user.Email,
		Provider: model.ProviderEmail,
		Claims:   model.ProviderClaims{FullName: user.Name},
	}, nil)
	if err != nil {
		return nil, err
	}
	s.recorder.RecordAuthEvent("login")
	return result, nil
}

// signIn はセッションを発行し、プロフィールを解決してサインインイベントを配信する。
func (s *Service) signIn(ctx context.Context, identity model.AuthIdentity, reg *model.Registration) (*SignInResult, error) {
	session, err := s.createSession(ctx, identity.UserID, identity.Provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	profile := s.profiles.Resolve(ctx, identity, reg)

	s.publish(authstate.Event{Type: authstate.EventSignedIn, SessionID: session.ID, Identity: &identity})

	return &SignInResult{Session: session, Identity: identity, Profile: profile}, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.publish(authstate.Event{Type: authstate.EventSignedOut, SessionID: sessionID})
	s.recorder.RecordAuthEvent("logout")
	slog.Info("user logged out")
	return nil
}

// Refresh はセッションの有効期限を延長する。
func (s *Service) Refresh(ctx context.Context, sessionID string) (*model.Session, error) {
	session, err := s.CurrentSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	session.ExpiresAt = s.now().Add(time.Duration(s.config.SessionMaxAge) * time.Second)
	if err := s.sessionRepo.Extend(ctx, session.ID, session.ExpiresAt); err != nil {
		return nil, fmt.Errorf("failed to extend session: %w", err)
	}

	identity, err := s.CurrentIdentity(ctx, sessionID)
	if err == nil && identity != nil {
		s.publish(authstate.Event{Type: authstate.EventTokenRefreshed, SessionID: sessionID, Identity: identity})
	}
	s.recorder.RecordAuthEvent("refresh")
	return session, nil
}

// CurrentSession は有効なセッションを返す。存在しない場合はUNAUTHORIZEDを返す。
func (s *Service) CurrentSession(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, model.NewUnauthorizedError()
	}
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, model.NewUnauthorizedError()
	}
	return session, nil
}

// HasSession はセッションが有効かどうかを返す。
func (s *Service) HasSession(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, nil
	}
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to find session: %w", err)
	}
	return session != nil, nil
}

// CurrentIdentity はセッションに紐付く認証アカウントを返す。
// セッションが存在しない場合はnil, nilを返す。
func (s *Service) CurrentIdentity(ctx context.Context, sessionID string) (*model.AuthIdentity, error) {
	if sessionID == "" {
		return nil, nil
	}
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, nil
	}

	provider := session.Provider
	if provider == "" {
		provider = model.ProviderEmail
	}
	return &model.AuthIdentity{
		UserID:   user.ID,
		Email:    user.Email,
		Provider: provider,
		Claims:   model.ProviderClaims{FullName: user.Name},
	}, nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	session, err := s.CurrentSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	return user, nil
}

// MeResult は現在のユーザー情報とロールトークン。
type MeResult struct {
	User           *model.User
	Profile        *model.Profile
	Token          string
	TokenExpiresAt time.Time
}

// Me は現在のユーザー、プロフィール、ロールトークンを返す。
func (s *Service) Me(ctx context.Context, sessionID string) (*MeResult, error) {
	identity, err := s.CurrentIdentity(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, model.NewUnauthorizedError()
	}
	user, err := s.userRepo.FindByID(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	profile := s.profiles.Resolve(ctx, *identity, nil)
	result := &MeResult{User: user, Profile: profile}

	if s.tokens != nil {
		token, expiresAt, err := s.tokens.IssueToken(sessionID, user.ID, user.Email, profile.Role)
		if err != nil {
			return nil, err
		}
		result.Token = token
		result.TokenExpiresAt = expiresAt
	}
	return result, nil
}

// RequestPasswordReset はパスワード再設定リンクを発行する。
// 未登録のメールアドレスでもエラーを返さない。
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.userRepo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil {
		slog.Info("password reset requested for unknown email")
		return nil
	}

	token, err := generateToken(32)
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}

	now := s.now()
	reset := &model.PasswordReset{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		TokenHash: hashToken(token),
		ExpiresAt: now.Add(s.config.PasswordResetTTL),
		CreatedAt: now,
	}
	if err := s.resetRepo.Create(ctx, reset); err != nil {
		return fmt.Errorf("failed to save reset token: %w", err)
	}

	link := strings.TrimRight(s.config.BaseURL, "/") + "/reset-password?" + url.Values{"token": {token}}.Encode()
	if err := s.mailer.SendPasswordReset(ctx, user.Email, link); err != nil {
		return fmt.Errorf("failed to send reset link: %w", err)
	}

	s.recorder.RecordAuthEvent("password_reset_requested")
	return nil
}

// ResetPassword はワンタイムトークンを消費してパスワードを更新する。
// 更新後は既存のセッションをすべて破棄する。
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if !checkPasswordStrength(newPassword) {
		return model.NewWeakPasswordError(MinPasswordLength)
	}
	if token == "" {
		return model.NewInvalidResetTokenError()
	}

	reset, err := s.resetRepo.Consume(ctx, hashToken(token))
	if err != nil {
		return fmt.Errorf("failed to consume reset token: %w", err)
	}
	if reset == nil {
		return model.NewInvalidResetTokenError()
	}

	hash, err := hashPassword(newPassword, s.config.BcryptCost)
	if err != nil {
		return err
	}
	if err := s.userRepo.UpdatePassword(ctx, reset.UserID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if err := s.sessionRepo.DeleteByUserID(ctx, reset.UserID); err != nil {
		slog.Warn("failed to revoke sessions after password reset",
			slog.String("user_id", reset.UserID),
			slog.String("error", err.Error()),
		)
	}

	s.recorder.RecordAuthEvent("password_reset")
	slog.Info("password reset completed", slog.String("user_id", reset.UserID))
	return nil
}

// PublishUserUpdated はプロフィール更新をセッションの購読者へ通知する。
func (s *Service) PublishUserUpdated(ctx context.Context, sessionID string) {
	identity, err := s.CurrentIdentity(ctx, sessionID)
	if err != nil || identity == nil {
		return
	}
	s.publish(authstate.Event{Type: authstate.EventUserUpdated, SessionID: sessionID, Identity: identity})
}

func (s *Service) publish(ev authstate.Event) {
	if s.events != nil {
		s.events.Publish(ev)
	}
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID, provider string) (*model.Session, error) {
	sessionID, err := generateToken(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		Provider:  provider,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateToken は暗号的に安全なランダム値を16進文字列で返す。
func generateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// hashToken は再設定トークンの保存用ハッシュを返す。
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
