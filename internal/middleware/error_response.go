package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/africashands/platform/internal/locale"
	"github.com/africashands/platform/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
	Detail   string `json:"detail,omitempty"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
		Detail:   apiErr.Detail,
	})
}

// WriteLocalizedError はリクエストの言語に翻訳したエラーレスポンスを書き込む。
func WriteLocalizedError(w http.ResponseWriter, r *http.Request, statusCode int, apiErr *model.APIError) {
	WriteErrorResponse(w, statusCode, locale.Localize(apiErr, locale.FromContext(r.Context())))
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter, r *http.Request) {
	WriteLocalizedError(w, r, http.StatusInternalServerError, model.NewInternalError())
}
