package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/africashands/platform/internal/model"
)

// ImageOpener は保存済みの画像を取得する。
type ImageOpener interface {
	Open(ctx context.Context, id string) (*model.OpportunityImage, error)
}

// StorageHandler は機会画像の配信ハンドラー。
type StorageHandler struct {
	images ImageOpener
}

// NewStorageHandler はStorageHandlerを生成する。
func NewStorageHandler(images ImageOpener) *StorageHandler {
	return &StorageHandler{images: images}
}

// Serve は画像を返す。画像は不変のためETagと長期キャッシュを付ける。
// GET /storage/opportunity-images/{id}
func (h *StorageHandler) Serve(w http.ResponseWriter, r *http.Request) {
	img, err := h.images.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	etag := fmt.Sprintf("%q", img.ID)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", img.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(img.Data)
	}
}
