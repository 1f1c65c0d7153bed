package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/africashands/platform/internal/authstate"
	"github.com/africashands/platform/internal/middleware"
	"github.com/africashands/platform/internal/model"
)

// AuthStateSource はセッションごとの認証状態を提供する。
// Getは有効なセッションでない場合にfalseを返す。
type AuthStateSource interface {
	Get(ctx context.Context, sessionID string) (*authstate.Broadcaster, bool)
	WaitSettled(ctx context.Context, sessionID string) authstate.State
}

// AuthStateHandler は認証状態の参照と購読のハンドラー。
type AuthStateHandler struct {
	states AuthStateSource
}

// NewAuthStateHandler はAuthStateHandlerを生成する。
func NewAuthStateHandler(states AuthStateSource) *AuthStateHandler {
	return &AuthStateHandler{states: states}
}

type identityResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Provider string `json:"provider"`
}

type authStateResponse struct {
	Authenticated bool              `json:"authenticated"`
	User          *identityResponse `json:"user"`
	Profile       *profileResponse  `json:"profile"`
	Role          model.Role        `json:"role"`
	Loading       bool              `json:"loading"`
	Version       uint64            `json:"version"`
}

func toAuthStateResponse(s authstate.State) authStateResponse {
	resp := authStateResponse{
		Authenticated: s.Authenticated(),
		Profile:       toProfileResponse(s.Profile),
		Role:          s.Role,
		Loading:       s.Loading,
		Version:       s.Version,
	}
	if s.User != nil {
		resp.User = &identityResponse{ID: s.User.UserID, Email: s.User.Email, Provider: s.User.Provider}
	}
	return resp
}

// Get は現在の認証状態を返す。wait=trueの場合はロード完了まで待つ。
// セッションCookieがないか無効な場合は未認証の状態を返す。
// GET /auth/state
func (h *AuthStateHandler) Get(w http.ResponseWriter, r *http.Request) {
	sid := sessionCookieValue(r)
	if sid == "" {
		writeJSON(w, http.StatusOK, toAuthStateResponse(authstate.State{}))
		return
	}

	var state authstate.State
	if r.URL.Query().Get("wait") == "true" {
		state = h.states.WaitSettled(r.Context(), sid)
	} else if b, ok := h.states.Get(r.Context(), sid); ok {
		state = b.Current()
	}
	writeJSON(w, http.StatusOK, toAuthStateResponse(state))
}

// Stream は認証状態の変化をSSEで配信する。最初に現在の状態を送信する。
// 有効なセッションがない場合は401を返す。
// GET /auth/state/stream
func (h *AuthStateHandler) Stream(w http.ResponseWriter, r *http.Request) {
	sid := sessionCookieValue(r)
	if sid == "" {
		middleware.WriteLocalizedError(w, r, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	b, ok := h.states.Get(r.Context(), sid)
	if !ok {
		middleware.WriteLocalizedError(w, r, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	states, unsubscribe := b.Subscribe()
	defer unsubscribe()

	stream := startSSE(w)
	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case s, ok := <-states:
			if !ok {
				return
			}
			if err := stream.send("auth_state", toAuthStateResponse(s)); err != nil {
				return
			}
		case <-ticker.C:
			if err := stream.ping(); err != nil {
				return
			}
		}
	}
}

func sessionCookieValue(r *http.Request) string {
	c, err := r.Cookie(middleware.SessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
