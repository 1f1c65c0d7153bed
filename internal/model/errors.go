package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
// Message/Actionの既定言語はポルトガル語。他言語への置き換えはlocaleパッケージが行う。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, opportunity, storage, source, system
	Action   string // ユーザー向け対処方法
	Detail   string // 入力項目名など、翻訳対象外の補足情報
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("[%s] %s (%s)", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized           = "UNAUTHORIZED"
	ErrCodeForbidden              = "FORBIDDEN"
	ErrCodeInvalidCredentials     = "INVALID_CREDENTIALS"
	ErrCodeEmailAlreadyRegistered = "EMAIL_ALREADY_REGISTERED"
	ErrCodeWeakPassword           = "WEAK_PASSWORD"
	ErrCodeInvalidResetToken      = "INVALID_RESET_TOKEN"
	ErrCodeValidationFailed       = "VALIDATION_FAILED"
	ErrCodeUserNotFound           = "USER_NOT_FOUND"
	ErrCodeOpportunityNotFound    = "OPPORTUNITY_NOT_FOUND"
	ErrCodeOpportunityClosed      = "OPPORTUNITY_CLOSED"
	ErrCodeAlreadyApplied         = "ALREADY_APPLIED"
	ErrCodeApplicationNotFound    = "APPLICATION_NOT_FOUND"
	ErrCodeInvalidImage           = "INVALID_IMAGE"
	ErrCodeImageTooLarge          = "IMAGE_TOO_LARGE"
	ErrCodeImageNotFound          = "IMAGE_NOT_FOUND"
	ErrCodeInvalidURL             = "INVALID_URL"
	ErrCodeSSRFBlocked            = "SSRF_BLOCKED"
	ErrCodeFeedNotDetected        = "FEED_NOT_DETECTED"
	ErrCodeFetchFailed            = "FETCH_FAILED"
	ErrCodeDuplicateSource        = "DUPLICATE_SOURCE"
	ErrCodeRateLimited            = "RATE_LIMITED"
	ErrCodeInternal               = "INTERNAL_ERROR"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "É necessário iniciar sessão.",
		Category: "auth",
		Action:   "Inicie sessão e tente novamente.",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
// 一般ユーザーが管理者操作を実行しようとした場合に返す。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "Não tem permissão para executar esta ação.",
		Category: "auth",
		Action:   "Contacte um administrador se precisar de acesso.",
	}
}

// NewInvalidCredentialsError はメールアドレスまたはパスワードの不一致エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Email ou palavra-passe incorretos.",
		Category: "auth",
		Action:   "Verifique os dados introduzidos ou redefina a palavra-passe.",
	}
}

// NewEmailAlreadyRegisteredError は登録済みメールアドレスでの再登録エラーを生成する。
func NewEmailAlreadyRegisteredError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailAlreadyRegistered,
		Message:  "Este email já está registado.",
		Category: "auth",
		Action:   "Inicie sessão ou utilize outro email.",
	}
}

// NewWeakPasswordError は弱いパスワードのエラーを生成する。
func NewWeakPasswordError(minLength int) *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  "A palavra-passe é demasiado fraca.",
		Category: "auth",
		Action:   "Utilize pelo menos letras e números.",
		Detail:   fmt.Sprintf("min_length=%d", minLength),
	}
}

// NewInvalidResetTokenError は無効または期限切れのパスワード再設定トークンのエラーを生成する。
func NewInvalidResetTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidResetToken,
		Message:  "O link de redefinição é inválido ou expirou.",
		Category: "auth",
		Action:   "Peça um novo link de redefinição.",
	}
}

// NewValidationError は入力検証エラーを生成する。
// fieldsには検証に失敗した項目名を渡す。
func NewValidationError(fields string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  "Os dados enviados são inválidos.",
		Category: "validation",
		Action:   "Corrija os campos indicados e tente novamente.",
		Detail:   fields,
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "Utilizador não encontrado.",
		Category: "auth",
		Action:   "Inicie sessão novamente.",
	}
}

// NewOpportunityNotFoundError は機会が見つからない場合のエラーを生成する。
func NewOpportunityNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeOpportunityNotFound,
		Message:  "Oportunidade não encontrada.",
		Category: "opportunity",
		Action:   "Atualize a lista de oportunidades.",
		Detail:   id,
	}
}

// NewOpportunityClosedError は公開中でない機会への応募エラーを生成する。
func NewOpportunityClosedError() *APIError {
	return &APIError{
		Code:     ErrCodeOpportunityClosed,
		Message:  "Esta oportunidade já não aceita candidaturas.",
		Category: "opportunity",
		Action:   "Procure outras oportunidades ativas.",
	}
}

// NewAlreadyAppliedError は同一機会への重複応募エラーを生成する。
func NewAlreadyAppliedError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyApplied,
		Message:  "Já se candidatou a esta oportunidade.",
		Category: "opportunity",
		Action:   "Consulte as suas candidaturas.",
	}
}

// NewApplicationNotFoundError は応募が見つからない場合のエラーを生成する。
func NewApplicationNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeApplicationNotFound,
		Message:  "Candidatura não encontrada.",
		Category: "opportunity",
		Action:   "Atualize a lista de candidaturas.",
		Detail:   id,
	}
}

// NewInvalidImageError は画像として解釈できないアップロードのエラーを生成する。
func NewInvalidImageError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidImage,
		Message:  "O ficheiro enviado não é uma imagem válida.",
		Category: "storage",
		Action:   "Envie uma imagem PNG, JPEG, GIF ou WebP.",
	}
}

// NewImageTooLargeError はサイズ上限超過のエラーを生成する。
func NewImageTooLargeError(maxBytes int64) *APIError {
	return &APIError{
		Code:     ErrCodeImageTooLarge,
		Message:  "A imagem excede o tamanho máximo permitido.",
		Category: "storage",
		Action:   "Reduza o tamanho da imagem e tente novamente.",
		Detail:   fmt.Sprintf("max_bytes=%d", maxBytes),
	}
}

// NewImageNotFoundError は画像が見つからない場合のエラーを生成する。
func NewImageNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeImageNotFound,
		Message:  "Imagem não encontrada.",
		Category: "storage",
		Action:   "Verifique o endereço da imagem.",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  "O endereço indicado é inválido.",
		Category: "validation",
		Action:   "Introduza um endereço que comece por http:// ou https://.",
		Detail:   reason,
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "O acesso a este endereço foi bloqueado pela política de segurança.",
		Category: "validation",
		Action:   "Indique o endereço público do site do parceiro.",
	}
}

// NewFeedNotDetectedError はフィード未検出エラーを生成する。
func NewFeedNotDetectedError(url string) *APIError {
	return &APIError{
		Code:     ErrCodeFeedNotDetected,
		Message:  "Não foi encontrado nenhum feed RSS/Atom neste endereço.",
		Category: "source",
		Action:   "Indique diretamente o endereço do feed do parceiro.",
		Detail:   url,
	}
}

// NewFetchFailedError はフェッチ失敗エラーを生成する。
func NewFetchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeFetchFailed,
		Message:  "Não foi possível obter o endereço indicado.",
		Category: "source",
		Action:   "Confirme o endereço e tente novamente mais tarde.",
		Detail:   reason,
	}
}

// NewDuplicateSourceError は登録済みフィードの再登録エラーを生成する。
func NewDuplicateSourceError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateSource,
		Message:  "Este feed de parceiro já está registado.",
		Category: "source",
		Action:   "Consulte a lista de fontes registadas.",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Demasiados pedidos.",
		Category: "system",
		Action:   "Aguarde um momento e tente novamente.",
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Ocorreu um erro interno.",
		Category: "system",
		Action:   "Aguarde um momento e tente novamente.",
	}
}
