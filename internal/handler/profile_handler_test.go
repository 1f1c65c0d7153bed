package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/africashands/platform/internal/model"
)

func TestProfileHandler_GetMe(t *testing.T) {
	store := &mockProfileStore{
		findByIDFn: func(ctx context.Context, id string) (*model.Profile, error) {
			if id == testRegular.UserID {
				return &model.Profile{ID: id, FullName: "Ana", Role: model.RoleUser}, nil
			}
			return nil, nil
		},
	}
	h := NewProfileHandler(store, &mockAuthService{})

	w := httptest.NewRecorder()
	h.GetMe(w, withActor(httptest.NewRequest(http.MethodGet, "/api/profile", nil), testRegular))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"full_name":"Ana"`) {
		t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	h.GetMe(w, withActor(httptest.NewRequest(http.MethodGet, "/api/profile", nil), testAdmin))
	if w.Code != http.StatusNotFound {
		t.Errorf("missing profile: status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestProfileHandler_UpdateMe_PartialUpdate(t *testing.T) {
	var got model.ProfileUpdate
	store := &mockProfileStore{
		updateFn: func(ctx context.Context, id string, update model.ProfileUpdate) (*model.Profile, error) {
			got = update
			return &model.Profile{ID: id, Country: *update.Country}, nil
		},
	}
	svc := &mockAuthService{}
	h := NewProfileHandler(store, svc)

	body := `{"country":"Moçambique","preferences":{"language":"en","notifications":false,"theme":"dark"}}`
	w := httptest.NewRecorder()
	h.UpdateMe(w, withActor(httptest.NewRequest(http.MethodPatch, "/api/profile", strings.NewReader(body)), testRegular))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if got.FullName != nil || got.Sector != nil {
		t.Errorf("omitted fields must stay nil, got %+v", got)
	}
	if got.Preferences == nil || got.Preferences.Theme != "dark" || got.Preferences.Language != "en" {
		t.Errorf("unexpected preferences %+v", got.Preferences)
	}
}

func TestProfileHandler_UpdateMe_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"role is not editable", `{"role":"admin"}`},
		{"unknown language", `{"preferences":{"language":"de","theme":"light"}}`},
		{"unknown theme", `{"preferences":{"language":"pt","theme":"blue"}}`},
		{"invalid avatar", `{"avatar_url":"not a url"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockProfileStore{
				updateFn: func(ctx context.Context, id string, update model.ProfileUpdate) (*model.Profile, error) {
					t.Error("Update must not be called")
					return nil, nil
				},
			}
			h := NewProfileHandler(store, &mockAuthService{})

			w := httptest.NewRecorder()
			h.UpdateMe(w, withActor(httptest.NewRequest(http.MethodPatch, "/api/profile", strings.NewReader(tt.body)), testRegular))
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}
