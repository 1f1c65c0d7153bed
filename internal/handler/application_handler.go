package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/africashands/platform/internal/model"
	"github.com/africashands/platform/internal/opportunity"
	"github.com/africashands/platform/internal/repository"
)

// ApplicationServiceInterface は応募ハンドラーが必要とするサービスインターフェース。
type ApplicationServiceInterface interface {
	Apply(ctx context.Context, actor model.Actor, opportunityID string, in opportunity.ApplyInput) (*model.Application, error)
	ListMine(ctx context.Context, actor model.Actor) ([]repository.ApplicationWithOpportunity, error)
	ListForOpportunity(ctx context.Context, actor model.Actor, opportunityID string) ([]repository.ApplicationWithApplicant, error)
	UpdateStatus(ctx context.Context, actor model.Actor, applicationID string, status model.ApplicationStatus) (*model.Application, error)
}

// ApplicationHandler は応募のHTTPハンドラー。
type ApplicationHandler struct {
	service ApplicationServiceInterface
}

// NewApplicationHandler はApplicationHandlerを生成する。
func NewApplicationHandler(service ApplicationServiceInterface) *ApplicationHandler {
	return &ApplicationHandler{service: service}
}

// Apply は機会に応募する。
// POST /api/opportunities/{id}/apply
func (h *ApplicationHandler) Apply(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	var in opportunity.ApplyInput
	if r.ContentLength != 0 && !decodeJSON(w, r, &in) {
		return
	}
	app, err := h.service.Apply(r.Context(), actor, chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toApplicationResponse(app))
}

// ListMine は自分の応募一覧を返す。
// GET /api/applications/mine
func (h *ApplicationHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	apps, err := h.service.ListMine(r.Context(), actor)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMyApplicationsResponse(apps))
}

// ListForOpportunity は機会への応募一覧を返す。
// GET /api/opportunities/{id}/applications
func (h *ApplicationHandler) ListForOpportunity(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	apps, err := h.service.ListForOpportunity(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicantsResponse(apps))
}

type applicationStatusRequest struct {
	Status model.ApplicationStatus `json:"status"`
}

// UpdateStatus は応募の審査状態を更新する。
// PUT /api/applications/{id}/status
func (h *ApplicationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	var req applicationStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	app, err := h.service.UpdateStatus(r.Context(), actor, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}
