// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/africashands/platform/internal/auth"
	"github.com/africashands/platform/internal/callback"
	"github.com/africashands/platform/internal/metrics"
	"github.com/africashands/platform/internal/middleware"
	"github.com/africashands/platform/internal/model"
)

const oauthStateCookie = "oauth_state"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*auth.OAuthUserInfo, error)
	EstablishSession(ctx context.Context, info *auth.OAuthUserInfo) (*auth.SignInResult, error)
	HasSession(ctx context.Context, sessionID string) (bool, error)
	Register(ctx context.Context, in auth.RegisterInput) (*auth.SignInResult, error)
	Login(ctx context.Context, email, password string) (*auth.SignInResult, error)
	Logout(ctx context.Context, sessionID string) error
	Refresh(ctx context.Context, sessionID string) (*model.Session, error)
	Me(ctx context.Context, sessionID string) (*auth.MeResult, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	PublishUserUpdated(ctx context.Context, sessionID string)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）

	Callback         callback.Config
	CallbackState    callback.StateWaiter
	CallbackRecorder metrics.CallbackRecorder
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	if config.CallbackRecorder == nil {
		config.CallbackRecorder = metrics.Nop{}
	}
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// Login はGoogle OAuthフローを開始する。
// GET /auth/google/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w, r)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusTemporaryRedirect)
}

type signInResponse struct {
	Profile   *profileResponse `json:"profile"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// Register はメールアドレスで新規登録し、サインインする。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterInput
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.service.Register(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	h.setSessionCookie(w, res.Session)
	writeJSON(w, http.StatusCreated, signInResponse{Profile: toProfileResponse(res.Profile), ExpiresAt: res.Session.ExpiresAt})
}

type passwordLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PasswordLogin はメールアドレスとパスワードでサインインする。
// POST /auth/login
func (h *AuthHandler) PasswordLogin(w http.ResponseWriter, r *http.Request) {
	var req passwordLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.service.Login(r.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	h.setSessionCookie(w, res.Session)
	writeJSON(w, http.StatusOK, signInResponse{Profile: toProfileResponse(res.Profile), ExpiresAt: res.Session.ExpiresAt})
}

// Logout はセッションを破棄する。破棄に失敗してもCookieはクリアする。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(middleware.SessionCookieName); err == nil && c.Value != "" {
		if err := h.service.Logout(r.Context(), c.Value); err != nil {
			slog.Error("failed to logout", slog.String("error", err.Error()))
		}
	}
	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Refresh はセッションの有効期限を延長する。
// POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(middleware.SessionCookieName)
	if err != nil || c.Value == "" {
		middleware.WriteLocalizedError(w, r, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	session, err := h.service.Refresh(r.Context(), c.Value)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	h.setSessionCookie(w, session)
	writeJSON(w, http.StatusOK, map[string]time.Time{"expires_at": session.ExpiresAt})
}

type meResponse struct {
	ID             string           `json:"id"`
	Email          string           `json:"email"`
	Name           string           `json:"name"`
	Profile        *profileResponse `json:"profile"`
	Token          string           `json:"token"`
	TokenExpiresAt time.Time        `json:"token_expires_at"`
}

// Me は現在のユーザー、プロフィール、API用のロールトークンを返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(middleware.SessionCookieName)
	if err != nil || c.Value == "" {
		middleware.WriteLocalizedError(w, r, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	me, err := h.service.Me(r.Context(), c.Value)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if me == nil {
		middleware.WriteLocalizedError(w, r, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		ID:             me.User.ID,
		Email:          me.User.Email,
		Name:           me.User.Name,
		Profile:        toProfileResponse(me.Profile),
		Token:          me.Token,
		TokenExpiresAt: me.TokenExpiresAt,
	})
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

// RequestPasswordReset は再設定メールを送信する。
// アカウントの有無を推測されないよう、常に202を返す。
// POST /auth/password/reset
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.service.RequestPasswordReset(r.Context(), strings.TrimSpace(req.Email)); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type passwordResetConfirmRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ConfirmPasswordReset はトークンを検証して新しいパスワードを設定する。
// POST /auth/password/reset/confirm
func (h *AuthHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetConfirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.service.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, session *model.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
