package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/africashands/platform/internal/model"
)

type stubPinger struct {
	err error
}

func (s stubPinger) PingContext(ctx context.Context) error { return s.err }

func TestHealthHandler(t *testing.T) {
	w := httptest.NewRecorder()
	healthHandler(stubPinger{})(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("healthy: status = %d, want %d", w.Code, http.StatusOK)
	}

	w = httptest.NewRecorder()
	healthHandler(stubPinger{err: errors.New("down")})(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy: status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestStorageHandler_Serve(t *testing.T) {
	images := &mockImages{
		openFn: func(ctx context.Context, id string) (*model.OpportunityImage, error) {
			if id != "img-1" {
				return nil, model.NewImageNotFoundError()
			}
			return &model.OpportunityImage{ID: id, MimeType: "image/png", Data: []byte("png")}, nil
		},
	}
	h := NewStorageHandler(images)

	w := httptest.NewRecorder()
	h.Serve(w, withURLParam(httptest.NewRequest(http.MethodGet, "/storage/opportunity-images/img-1", nil), "id", "img-1"))
	if w.Code != http.StatusOK || w.Body.String() != "png" {
		t.Fatalf("status = %d, body = %q", w.Code, w.Body.String())
	}
	if w.Header().Get("Content-Type") != "image/png" || !strings.Contains(w.Header().Get("Cache-Control"), "immutable") {
		t.Errorf("unexpected headers %v", w.Header())
	}

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/storage/opportunity-images/img-1", nil), "id", "img-1")
	req.Header.Set("If-None-Match", w.Header().Get("ETag"))
	w = httptest.NewRecorder()
	h.Serve(w, req)
	if w.Code != http.StatusNotModified {
		t.Errorf("conditional: status = %d, want %d", w.Code, http.StatusNotModified)
	}

	w = httptest.NewRecorder()
	h.Serve(w, withURLParam(httptest.NewRequest(http.MethodGet, "/storage/opportunity-images/x", nil), "id", "x"))
	if w.Code != http.StatusNotFound {
		t.Errorf("missing: status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestContactHandler_WhatsApp(t *testing.T) {
	h := NewContactHandler("+244 923 456 789", "Olá Africa's Hands")

	w := httptest.NewRecorder()
	h.WhatsApp(w, httptest.NewRequest(http.MethodGet, "/api/contact/whatsapp", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "https://wa.me/244923456789?text=") {
		t.Errorf("unexpected body %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	NewContactHandler("", "").WhatsApp(w, httptest.NewRequest(http.MethodGet, "/api/contact/whatsapp", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("misconfigured: status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *model.APIError
		want int
	}{
		{model.NewUnauthorizedError(), http.StatusUnauthorized},
		{model.NewInvalidCredentialsError(), http.StatusUnauthorized},
		{model.NewForbiddenError(), http.StatusForbidden},
		{model.NewValidationError("email"), http.StatusBadRequest},
		{model.NewWeakPasswordError(8), http.StatusBadRequest},
		{model.NewOpportunityNotFoundError("x"), http.StatusNotFound},
		{model.NewApplicationNotFoundError("x"), http.StatusNotFound},
		{model.NewAlreadyAppliedError(), http.StatusConflict},
		{model.NewOpportunityClosedError(), http.StatusConflict},
		{model.NewEmailAlreadyRegisteredError(), http.StatusConflict},
		{model.NewImageTooLargeError(1 << 20), http.StatusRequestEntityTooLarge},
		{model.NewRateLimitedError(), http.StatusTooManyRequests},
		{model.NewInternalError(), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := mapAPIErrorToHTTPStatus(tt.err); got != tt.want {
			t.Errorf("mapAPIErrorToHTTPStatus(%s) = %d, want %d", tt.err.Code, got, tt.want)
		}
	}
}

func TestHandleServiceError_HidesInternalDetail(t *testing.T) {
	w := httptest.NewRecorder()
	handleServiceError(w, httptest.NewRequest(http.MethodGet, "/api/profile", nil), errors.New("pq: connection refused"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if strings.Contains(w.Body.String(), "connection refused") {
		t.Errorf("internal detail leaked: %s", w.Body.String())
	}
}
