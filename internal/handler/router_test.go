package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/africashands/platform/internal/authstate"
	"github.com/africashands/platform/internal/middleware"
	"github.com/africashands/platform/internal/model"
)

type stubSessions struct{}

func (stubSessions) FindByID(ctx context.Context, id string) (*model.Session, error) {
	switch id {
	case "admin-session":
		return &model.Session{ID: id, UserID: "admin-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
	case "user-session":
		return &model.Session{ID: id, UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}
	return nil, nil
}

type stubAuthStates struct{}

func (stubAuthStates) Get(ctx context.Context, sessionID string) (*authstate.Broadcaster, bool) {
	return nil, false
}
func (stubAuthStates) WaitSettled(ctx context.Context, sessionID string) authstate.State {
	return authstate.State{}
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(limiter.Stop)

	profiles := &mockProfileStore{
		findByIDFn: func(ctx context.Context, id string) (*model.Profile, error) {
			if id == "admin-1" {
				return &model.Profile{ID: id, Role: model.RoleAdmin}, nil
			}
			return &model.Profile{ID: id, Role: model.RoleUser}, nil
		},
	}

	return NewRouter(&RouterDeps{
		HealthChecker: stubPinger{},
		Session: middleware.SessionConfig{
			Sessions: stubSessions{},
			Roles:    NewProfileRoleFinder(profiles),
		},
		RateLimiter:        limiter,
		AuthService:        &mockAuthService{},
		AuthConfig:         AuthHandlerConfig{Callback: fastCallbackConfig()},
		AuthStates:         stubAuthStates{},
		Profiles:           profiles,
		OpportunityService: &mockOpportunityService{},
		ApplicationService: &mockApplicationService{},
		Images:             &mockImages{},
		ImageOpener:        &mockImages{},
		Changes:            &stubChanges{},
		UserService:        &mockUserService{},
		SourceService:      &mockSourceService{},
		WhatsAppNumber:     "244923456789",
	})
}

func sessionRequest(method, path, sessionID, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: sessionID})
	}
	// ダブルサブミットCookie
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "tok"})
	req.Header.Set("X-CSRF-Token", "tok")
	return req
}

func TestRouter_AccessControl(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name       string
		method     string
		path       string
		session    string
		body       string
		wantStatus int
	}{
		{"health is public", http.MethodGet, "/health", "", "", http.StatusOK},
		{"auth state is public", http.MethodGet, "/auth/state", "", "", http.StatusOK},
		{"whatsapp is public", http.MethodGet, "/api/contact/whatsapp", "", "", http.StatusOK},
		{"profile requires session", http.MethodGet, "/api/profile", "", "", http.StatusUnauthorized},
		{"profile with session", http.MethodGet, "/api/profile", "user-session", "", http.StatusOK},
		{"list with session", http.MethodGet, "/api/opportunities", "user-session", "", http.StatusOK},
		{"my applications", http.MethodGet, "/api/applications/mine", "user-session", "", http.StatusOK},
		{"apply", http.MethodPost, "/api/opportunities/o1/apply", "user-session", `{"message":"Olá"}`, http.StatusCreated},
		{"create forbidden for user", http.MethodPost, "/api/opportunities", "user-session", `{}`, http.StatusForbidden},
		{"delete forbidden for user", http.MethodDelete, "/api/opportunities/o1", "user-session", "", http.StatusForbidden},
		{"delete as admin", http.MethodDelete, "/api/opportunities/o1", "admin-session", "", http.StatusNoContent},
		{"admin users forbidden", http.MethodGet, "/api/admin/users", "user-session", "", http.StatusForbidden},
		{"admin users", http.MethodGet, "/api/admin/users", "admin-session", "", http.StatusOK},
		{"admin sources", http.MethodGet, "/api/admin/sources", "admin-session", "", http.StatusOK},
		{"status update forbidden", http.MethodPut, "/api/applications/a1/status", "user-session", `{"status":"accepted"}`, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, sessionRequest(tt.method, tt.path, tt.session, tt.body))
			if w.Code != tt.wantStatus {
				t.Errorf("%s %s: status = %d, want %d (%s)", tt.method, tt.path, w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestRouter_AuthRoutesAreRateLimited(t *testing.T) {
	router := newTestRouter(t)

	requestReset := func() int {
		req := sessionRequest(http.MethodPost, "/auth/password/reset", "", `{"email":"ana@example.com"}`)
		req.RemoteAddr = "203.0.113.7:5555"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	// 既定の認証レートは1分あたり20回
	for i := 0; i < 20; i++ {
		if code := requestReset(); code != http.StatusAccepted {
			t.Fatalf("request %d: status = %d, want %d", i, code, http.StatusAccepted)
		}
	}
	if code := requestReset(); code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", code, http.StatusTooManyRequests)
	}

	// 別のクライアントには影響しない
	req := httptest.NewRequest(http.MethodGet, "/auth/state", nil)
	req.RemoteAddr = "198.51.100.2:5555"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("other client: status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRouter_AuthState_UnknownSession(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"snapshot is anonymous", "/auth/state", http.StatusOK},
		{"stream is rejected", "/auth/state/stream", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, sessionRequest(http.MethodGet, tt.path, "forged-session", ""))
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && !strings.Contains(w.Body.String(), `"authenticated":false`) {
				t.Errorf("expected anonymous state, got %s", w.Body.String())
			}
		})
	}
}

func TestRouter_CSRFRequiredForCookieMutations(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/opportunities/o1/apply", strings.NewReader(`{}`))
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "user-session"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestRouter_SecurityHeaders(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("expected nosniff header, got %v", w.Header())
	}
}
