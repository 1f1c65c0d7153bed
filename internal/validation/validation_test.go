package validation

import (
	"errors"
	"testing"

	"github.com/africashands/platform/internal/model"
)

type signUp struct {
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"full_name" validate:"max=5"`
	Country  string `validate:"omitempty,min=2"`
}

func TestStruct_Valid(t *testing.T) {
	v := New()
	if err := v.Struct(signUp{Email: "ana@example.com", FullName: "Ana"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestStruct_ReportsJSONFieldNames(t *testing.T) {
	v := New()
	err := v.Struct(signUp{Email: "not-an-email", FullName: "Ana Maria", Country: "A"})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeValidationFailed {
		t.Errorf("expected code %s, got %s", model.ErrCodeValidationFailed, apiErr.Code)
	}
	if apiErr.Detail != "Country,email,full_name" {
		t.Errorf("unexpected detail %q", apiErr.Detail)
	}
}
