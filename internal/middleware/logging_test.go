package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/africashands/platform/internal/model"
)

// serveLogged はhandlerをロギングミドルウェアで包んで1リクエスト処理し、出力されたログエントリを返す。
func serveLogged(t *testing.T, handler http.Handler, req *http.Request) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	NewLoggingMiddleware(logger)(handler).ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v\nraw: %s", err, buf.String())
	}
	return entry
}

func TestLoggingMiddleware_RequestFields(t *testing.T) {
	entry := serveLogged(t,
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
		httptest.NewRequest(http.MethodGet, "/api/opportunities?country=Angola", nil),
	)

	if entry["msg"] != "http_request" {
		t.Errorf("msg = %v, want http_request", entry["msg"])
	}
	if entry["method"] != "GET" || entry["path"] != "/api/opportunities" {
		t.Errorf("unexpected method/path %v %v", entry["method"], entry["path"])
	}
	if d, ok := entry["duration_ms"].(float64); !ok || d < 0 {
		t.Errorf("duration_ms = %v, want non-negative number", entry["duration_ms"])
	}
	if _, ok := entry["user_id"]; ok {
		t.Errorf("user_id should be omitted for anonymous request, got %v", entry["user_id"])
	}
}

func TestLoggingMiddleware_StatusAndLevel(t *testing.T) {
	tests := []struct {
		name      string
		write     func(w http.ResponseWriter)
		wantCode  int
		wantLevel string
	}{
		{"implicit 200 on body write", func(w http.ResponseWriter) { w.Write([]byte("ok")) }, http.StatusOK, "INFO"},
		{"201 created", func(w http.ResponseWriter) { w.WriteHeader(http.StatusCreated) }, http.StatusCreated, "INFO"},
		{"409 already applied", func(w http.ResponseWriter) { w.WriteHeader(http.StatusConflict) }, http.StatusConflict, "WARN"},
		{"404 not found", func(w http.ResponseWriter) { w.WriteHeader(http.StatusNotFound) }, http.StatusNotFound, "WARN"},
		{"500 internal", func(w http.ResponseWriter) { w.WriteHeader(http.StatusInternalServerError) }, http.StatusInternalServerError, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := serveLogged(t,
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { tt.write(w) }),
				httptest.NewRequest(http.MethodPost, "/api/opportunities/opp-1/apply", nil),
			)
			if status := int(entry["status"].(float64)); status != tt.wantCode {
				t.Errorf("status = %d, want %d", status, tt.wantCode)
			}
			if entry["level"] != tt.wantLevel {
				t.Errorf("level = %v, want %s", entry["level"], tt.wantLevel)
			}
		})
	}
}

func TestLoggingMiddleware_ActorFromOuterContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/applications/mine", nil)
	req = req.WithContext(ContextWithActor(req.Context(), model.Actor{UserID: "admin-1", Role: model.RoleAdmin}))

	entry := serveLogged(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), req)

	if entry["user_id"] != "admin-1" || entry["role"] != "admin" {
		t.Errorf("unexpected actor fields user_id=%v role=%v", entry["user_id"], entry["role"])
	}
}

func TestLoggingMiddleware_ActorFromInnerSession(t *testing.T) {
	sessions := &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: "user-inner"}, nil
		},
	}
	inner := NewSessionMiddleware(SessionConfig{Sessions: sessions})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "sess-1"})

	entry := serveLogged(t, inner, req)

	if entry["user_id"] != "user-inner" || entry["role"] != "user" {
		t.Errorf("unexpected actor fields user_id=%v role=%v", entry["user_id"], entry["role"])
	}
}
