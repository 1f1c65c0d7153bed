package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/africashands/platform/internal/locale"
	"github.com/africashands/platform/internal/model"
)

// newTestRouter は本番と同じ順序でミドルウェアを組み立てたルーターを返す。
func newTestRouter(sessions SessionFinder, roles RoleFinder) http.Handler {
	r := chi.NewRouter()
	r.Use(NewRecoveryMiddleware(nil))
	r.Use(NewSecurityHeadersMiddleware(SecurityHeadersConfig{}))
	r.Use(NewCORSMiddleware("http://localhost:3000"))
	r.Use(locale.Middleware)
	r.Use(NewCSRFMiddleware(CSRFConfig{}))

	r.Get("/api/csrf-token", NewCSRFTokenHandler(CSRFConfig{}).ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(NewSessionMiddleware(SessionConfig{Sessions: sessions, Roles: roles}))
		r.Get("/api/me", func(w http.ResponseWriter, r *http.Request) {
			actor, _ := ActorFromContext(r.Context())
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"user_id": actor.UserID, "role": string(actor.Role)})
		})
		r.With(RequireAdmin).Post("/api/opportunities", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		})
	})
	return r
}

func chainSessions() *mockSessionRepository {
	return &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			switch id {
			case "admin-session":
				return &model.Session{ID: id, UserID: "admin-1"}, nil
			case "user-session":
				return &model.Session{ID: id, UserID: "user-1"}, nil
			}
			return nil, nil
		},
	}
}

func chainRoles() *mockRoleFinder {
	return &mockRoleFinder{
		findRoleFn: func(ctx context.Context, userID string) (model.Role, error) {
			if userID == "admin-1" {
				return model.RoleAdmin, nil
			}
			return model.RoleUser, nil
		},
	}
}

func TestMiddlewareChain_Session_GETRequest(t *testing.T) {
	router := newTestRouter(chainSessions(), chainRoles())

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "admin-session"})
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body["user_id"] != "admin-1" || body["role"] != "admin" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestMiddlewareChain_AdminPOST_WithCSRFToken(t *testing.T) {
	router := newTestRouter(chainSessions(), chainRoles())

	req := httptest.NewRequest(http.MethodPost, "/api/opportunities", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "admin-session"})
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "tok"})
	req.Header.Set(csrfHeaderName, "tok")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
}

func TestMiddlewareChain_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		session    string
		csrf       bool
		wantStatus int
	}{
		{"no csrf token", "admin-session", false, http.StatusForbidden},
		{"non admin", "user-session", true, http.StatusForbidden},
		{"no session", "", true, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(chainSessions(), chainRoles())

			req := httptest.NewRequest(http.MethodPost, "/api/opportunities", nil)
			if tt.session != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: tt.session})
			}
			if tt.csrf {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "tok"})
				req.Header.Set(csrfHeaderName, "tok")
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if w.Header().Get("X-Content-Type-Options") != "nosniff" {
				t.Error("security headers should be present on error responses")
			}
		})
	}
}

func TestMiddlewareChain_CSRFTokenEndpoint(t *testing.T) {
	router := newTestRouter(chainSessions(), chainRoles())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Token == "" {
		t.Error("expected non-empty token")
	}
}
