package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/africashands/platform/internal/middleware"
	"github.com/africashands/platform/internal/model"
	"github.com/africashands/platform/internal/source"
	"github.com/africashands/platform/internal/user"
)

// UserServiceInterface はユーザー管理ハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	ListUsers(ctx context.Context, actor model.Actor, limit, offset int) ([]*model.Profile, error)
	CreateUser(ctx context.Context, actor model.Actor, in user.CreateUserInput) (*model.Profile, error)
	SetRole(ctx context.Context, actor model.Actor, userID string, role model.Role) (*model.Profile, error)
	Withdraw(ctx context.Context, actor model.Actor, userID string) error
}

// SourceServiceInterface は取り込み元管理ハンドラーが必要とするサービスインターフェース。
type SourceServiceInterface interface {
	Register(ctx context.Context, actor model.Actor, in source.RegisterInput) (*model.OpportunitySource, error)
	List(ctx context.Context, actor model.Actor) ([]*model.OpportunitySource, error)
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

// List はユーザー一覧を返す。
// GET /api/admin/users?limit=&offset=
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	profiles, err := h.service.ListUsers(r.Context(), actor, limit, offset)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponses(profiles))
}

// Create はロールを指定してユーザーを作成する。
// POST /api/admin/users
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	var in user.CreateUserInput
	if !decodeJSON(w, r, &in) {
		return
	}
	p, err := h.service.CreateUser(r.Context(), actor, in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProfileResponse(p))
}

type setRoleRequest struct {
	Role model.Role `json:"role"`
}

// SetRole はユーザーのロールを設定する。
// PUT /api/admin/users/{id}/role
func (h *UserHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	var req setRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.service.SetRole(r.Context(), actor, chi.URLParam(r, "id"), req.Role)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

// Withdraw はログイン中のユーザーを退会させる。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	if err := h.service.Withdraw(r.Context(), actor, actor.UserID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	// セッションCookieを削除
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// SourceHandler は提携団体の取り込み元管理のHTTPハンドラー。
type SourceHandler struct {
	service SourceServiceInterface
}

// NewSourceHandler はSourceHandlerを生成する。
func NewSourceHandler(service SourceServiceInterface) *SourceHandler {
	return &SourceHandler{service: service}
}

// List は取り込み元一覧を返す。
// GET /api/admin/sources
func (h *SourceHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	sources, err := h.service.List(r.Context(), actor)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	resp := make([]sourceResponse, 0, len(sources))
	for _, s := range sources {
		resp = append(resp, toSourceResponse(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Register はURLからフィードを検出して取り込み元を登録する。
// POST /api/admin/sources
func (h *SourceHandler) Register(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	var in source.RegisterInput
	if !decodeJSON(w, r, &in) {
		return
	}
	src, err := h.service.Register(r.Context(), actor, in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSourceResponse(src))
}
