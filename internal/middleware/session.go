// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/africashands/platform/internal/model"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	actorContextKey     = contextKey("actor")
	sessionIDContextKey = contextKey("session_id")
)

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// RoleFinder はユーザーの保存済みロールを取得する。
// ロールが未設定の場合は空文字を返す。
type RoleFinder interface {
	FindRole(ctx context.Context, userID string) (model.Role, error)
}

// TokenVerifier は署名付きロールトークンを検証し、操作者と発行元のセッションIDを返す。
type TokenVerifier interface {
	VerifyToken(token string) (model.Actor, string, error)
}

// SessionConfig はセッションミドルウェアの依存。
// Tokensがnilの場合はBearerトークンを受け付けない。
type SessionConfig struct {
	Sessions SessionFinder
	Roles    RoleFinder
	Tokens   TokenVerifier
}

// NewSessionMiddleware はリクエストの認証情報を検証し、操作者をコンテキストに注入するミドルウェアを返す。
//   - Authorization: Bearer <token> がある場合は署名を検証し、発行元のセッションが有効な間だけ受け付ける
//   - それ以外はHTTP Only Cookieのセッションを検証する
//
// どちらの場合もRolesが設定されていれば、プロフィールに保存された現在のロールを使用する。
//
// 未認証リクエストには401 Unauthorizedを返す。
func NewSessionMiddleware(config SessionConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, sessionID, ok := authenticate(r, config)
			if !ok {
				WriteLocalizedError(w, r, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			recordActor(r.Context(), actor)
			ctx := ContextWithActor(r.Context(), actor)
			if sessionID != "" {
				ctx = context.WithValue(ctx, sessionIDContextKey, sessionID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(r *http.Request, config SessionConfig) (model.Actor, string, bool) {
	if token, ok := bearerToken(r); ok {
		if config.Tokens == nil {
			return model.Actor{}, "", false
		}
		actor, sessionID, err := config.Tokens.VerifyToken(token)
		if err != nil {
			slog.Warn("bearer token rejected",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			return model.Actor{}, "", false
		}
		// ログアウトやパスワード再設定で失効したセッションのトークンは拒否する
		session, err := config.Sessions.FindByID(r.Context(), sessionID)
		if err != nil {
			slog.Error("failed to find session for bearer token",
				slog.String("error", err.Error()),
			)
			return model.Actor{}, "", false
		}
		if session == nil || session.UserID != actor.UserID {
			slog.Warn("bearer token rejected",
				slog.String("path", r.URL.Path),
				slog.String("user_id", actor.UserID),
				slog.String("error", "session revoked"),
			)
			return model.Actor{}, "", false
		}
		if config.Roles != nil {
			actor.Role = lookupRole(r.Context(), config.Roles, actor.UserID)
		}
		return actor, "", true
	}

	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return model.Actor{}, "", false
	}

	session, err := config.Sessions.FindByID(r.Context(), cookie.Value)
	if err != nil {
		slog.Error("failed to find session",
			slog.String("error", err.Error()),
		)
		return model.Actor{}, "", false
	}
	if session == nil {
		return model.Actor{}, "", false
	}

	return model.Actor{UserID: session.UserID, Role: lookupRole(r.Context(), config.Roles, session.UserID)}, session.ID, true
}

// lookupRole は保存済みロールを返す。取得できない場合は一般ユーザーとして扱う。
func lookupRole(ctx context.Context, roles RoleFinder, userID string) model.Role {
	if roles == nil {
		return model.RoleUser
	}
	role, err := roles.FindRole(ctx, userID)
	if err != nil {
		slog.Warn("role lookup failed",
			slog.String("event", "role_lookup_degraded"),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return model.RoleUser
	}
	if !role.Valid() {
		return model.RoleUser
	}
	return role
}

// bearerToken はAuthorizationヘッダーのBearerトークンを返す。
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireAdmin は管理者以外のリクエストに403 Forbiddenを返すミドルウェア。
// セッションミドルウェアの後に配置する。
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			WriteLocalizedError(w, r, http.StatusUnauthorized, model.NewUnauthorizedError())
			return
		}
		if !actor.IsAdmin() {
			slog.Warn("admin route denied",
				slog.String("user_id", actor.UserID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			WriteLocalizedError(w, r, http.StatusForbidden, model.NewForbiddenError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ActorFromContext はリクエストコンテキストから操作者を取得する。
func ActorFromContext(ctx context.Context) (model.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(model.Actor)
	if !ok || actor.UserID == "" {
		return model.Actor{}, false
	}
	return actor, true
}

// ContextWithActor はコンテキストに操作者を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithActor(ctx context.Context, actor model.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// ContextWithUserID は一般ユーザーとしてコンテキストにユーザーIDを注入する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return ContextWithActor(ctx, model.Actor{UserID: userID, Role: model.RoleUser})
}

// SessionIDFromContext はCookie認証で使用したセッションIDを返す。
// Bearerトークンで認証した場合は空文字を返す。
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDContextKey).(string)
	return id
}
