package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/africashands/platform/internal/middleware"
	"github.com/africashands/platform/internal/model"
	"github.com/africashands/platform/internal/opportunity"
	"github.com/africashands/platform/internal/realtime"
	"github.com/africashands/platform/internal/storage"
)

// multipartOverhead はマルチパートのヘッダー等に許容する追加バイト数。
const multipartOverhead = 64 << 10

// OpportunityServiceInterface は機会ハンドラーが必要とするサービスインターフェース。
type OpportunityServiceInterface interface {
	List(ctx context.Context, actor model.Actor, q opportunity.ListQuery) ([]*model.Opportunity, error)
	Get(ctx context.Context, actor model.Actor, id string) (*model.Opportunity, error)
	Create(ctx context.Context, actor model.Actor, in opportunity.Input) (*model.Opportunity, error)
	Update(ctx context.Context, actor model.Actor, id string, in opportunity.Input) (*model.Opportunity, error)
	Delete(ctx context.Context, actor model.Actor, id string) error
}

// ImageUploader は機会画像の保存を行う。
type ImageUploader interface {
	Upload(ctx context.Context, actor model.Actor, opportunityID, filename string, r io.Reader) (*storage.Uploaded, error)
	MaxBytes() int64
}

// ChangeSubscriber は機会の変更通知を購読する。
type ChangeSubscriber interface {
	Subscribe() (<-chan realtime.Change, func())
}

// OpportunityHandler は機会のHTTPハンドラー。
type OpportunityHandler struct {
	service OpportunityServiceInterface
	images  ImageUploader
	changes ChangeSubscriber
}

// NewOpportunityHandler はOpportunityHandlerを生成する。
func NewOpportunityHandler(service OpportunityServiceInterface, images ImageUploader, changes ChangeSubscriber) *OpportunityHandler {
	return &OpportunityHandler{
		service: service,
		images:  images,
		changes: changes,
	}
}

// filterFromQuery はクエリパラメータから絞り込み条件を組み立てる。
func filterFromQuery(r *http.Request) opportunity.Filter {
	q := r.URL.Query()
	return opportunity.Filter{
		Country: q.Get("country"),
		Sector:  q.Get("sector"),
		Type:    model.OpportunityType(q.Get("type")),
		Search:  q.Get("search"),
	}
}

// List は機会一覧を返す。
// GET /api/opportunities?country=&sector=&type=&search=&status=&limit=&offset=
func (h *OpportunityHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	opps, err := h.service.List(r.Context(), actor, opportunity.ListQuery{
		Filter: filterFromQuery(r),
		Status: model.OpportunityStatus(q.Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]*opportunityResponse, 0, len(opps))
	for _, o := range opps {
		resp = append(resp, toOpportunityResponse(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get は機会の詳細を返す。
// GET /api/opportunities/{id}
func (h *OpportunityHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	o, err := h.service.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOpportunityResponse(o))
}

// Create は機会を作成する。
// POST /api/opportunities
func (h *OpportunityHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	var in opportunity.Input
	if !decodeJSON(w, r, &in) {
		return
	}
	o, err := h.service.Create(r.Context(), actor, in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOpportunityResponse(o))
}

// Update は機会を更新する。
// PUT /api/opportunities/{id}
func (h *OpportunityHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	var in opportunity.Input
	if !decodeJSON(w, r, &in) {
		return
	}
	o, err := h.service.Update(r.Context(), actor, chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOpportunityResponse(o))
}

// Delete は機会を削除する。
// DELETE /api/opportunities/{id}
func (h *OpportunityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type uploadResponse struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Size     int    `json:"size"`
}

// UploadImage はmultipartのfileフィールドを機会の画像として保存する。
// POST /api/opportunities/{id}/image
func (h *OpportunityHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.images.MaxBytes()+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			middleware.WriteLocalizedError(w, r, http.StatusRequestEntityTooLarge, model.NewImageTooLargeError(h.images.MaxBytes()))
			return
		}
		middleware.WriteLocalizedError(w, r, http.StatusBadRequest, model.NewValidationError("file"))
		return
	}
	defer file.Close()

	up, err := h.images.Upload(r.Context(), actor, chi.URLParam(r, "id"), header.Filename, file)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{
		ID:       up.ID,
		URL:      up.URL,
		MimeType: up.MimeType,
		Width:    up.Width,
		Height:   up.Height,
		Size:     up.Size,
	})
}

// changeEvent はストリームで配信する変更。
// INSERT/UPDATEでは取得した機会と絞り込み条件への一致を含める。
type changeEvent struct {
	Op          string               `json:"op"`
	ID          string               `json:"id,omitempty"`
	Matches     bool                 `json:"matches"`
	Opportunity *opportunityResponse `json:"opportunity,omitempty"`
}

// Stream は機会の変更をSSEで配信する。
// 呼び出し元の絞り込み条件を適用し、参照できない機会の変更は送らない。
// 条件から外れた更新はmatches=falseで送り、クライアントが一覧から除外できるようにする。
// GET /api/opportunities/stream
func (h *OpportunityHandler) Stream(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	filter := filterFromQuery(r)

	changes, unsubscribe := h.changes.Subscribe()
	defer unsubscribe()

	stream := startSSE(w)
	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			ev, send := h.changeEvent(r.Context(), actor, filter, c)
			if !send {
				continue
			}
			if err := stream.send("change", ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := stream.ping(); err != nil {
				return
			}
		}
	}
}

func (h *OpportunityHandler) changeEvent(ctx context.Context, actor model.Actor, filter opportunity.Filter, c realtime.Change) (changeEvent, bool) {
	switch c.Op {
	case realtime.OpDelete, realtime.OpResync:
		return changeEvent{Op: c.Op, ID: c.ID}, true
	}

	o, err := h.service.Get(ctx, actor, c.ID)
	if err != nil {
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) {
			slog.Warn("failed to load changed opportunity",
				slog.String("opportunity_id", c.ID),
				slog.String("error", err.Error()),
			)
		}
		return changeEvent{}, false
	}
	matches := filter.Matches(o) && (o.Status == model.OpportunityStatusActive || actor.IsAdmin())
	return changeEvent{
		Op:          c.Op,
		ID:          o.ID,
		Matches:     matches,
		Opportunity: toOpportunityResponse(o),
	}, true
}
