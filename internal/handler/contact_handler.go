package handler

import (
	"log/slog"
	"net/http"

	"github.com/africashands/platform/internal/contact"
	"github.com/africashands/platform/internal/middleware"
	"github.com/africashands/platform/internal/model"
)

// ContactHandler は連絡リンクのハンドラー。
type ContactHandler struct {
	number  string
	message string
}

// NewContactHandler はContactHandlerを生成する。
// messageは本文の指定がない場合の既定文。
func NewContactHandler(number, message string) *ContactHandler {
	return &ContactHandler{number: number, message: message}
}

// WhatsApp はWhatsAppの連絡リンクを返す。
// GET /api/contact/whatsapp?text=
func (h *ContactHandler) WhatsApp(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	if text == "" {
		text = h.message
	}
	link, err := contact.WhatsAppLink(h.number, text)
	if err != nil {
		slog.Error("whatsapp number misconfigured", slog.String("error", err.Error()))
		middleware.WriteLocalizedError(w, r, http.StatusServiceUnavailable, model.NewInternalError())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": link})
}
