package handler

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/africashands/platform/internal/auth"
	"github.com/africashands/platform/internal/callback"
	"github.com/africashands/platform/internal/middleware"
	"github.com/africashands/platform/internal/model"
)

type callbackResponse struct {
	Status               callback.Status `json:"status"`
	Path                 string          `json:"path"`
	Redirect             string          `json:"redirect"`
	RedirectAfterSeconds int             `json:"redirect_after_seconds"`
}

// callbackResultCookie は失敗時の到達経路を結果ページへ引き渡すCookie。
// 値は到達経路のラベルのみで、プロバイダーのエラー文言は含めない。
const callbackResultCookie = "oauth_result"

// callbackResultPath はクエリを持たない失敗時の結果ページ。
const callbackResultPath = "/auth/callback/result"

var callbackFailurePaths = map[string]bool{
	callback.PathProviderError: true,
	callback.PathState:         true,
	callback.PathNoSession:     true,
	callback.PathTimeout:       true,
}

// Callback はOAuthプロバイダーからのリダイレクトを処理する。
// どの結果でも303で即時に遷移する。成功時は着地ページ、失敗時は結果ページへ遷移し、
// 遷移先にクエリは付けないため、認可コードやエラー文言がアドレスバーに残らない。
// GET /auth/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")

	q := r.URL.Query()
	in := callback.Input{
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}
	var checker callback.SessionChecker = h.service
	var retry *establishRetry

	if code := q.Get("code"); code != "" && !in.HasError() {
		switch info, err := h.exchange(r, code); {
		case err != nil:
			in.Error = "exchange_failed"
			in.ErrorDescription = err.Error()
		default:
			res, err := h.service.EstablishSession(r.Context(), info)
			if err == nil {
				h.setSessionCookie(w, res.Session)
				in.SessionID = res.Session.ID
				break
			}
			// プロフィール作成トリガーとの競合はここで再試行する
			in.Error = "server_error"
			in.ErrorDescription = err.Error()
			retry = &establishRetry{service: h.service, info: info}
			checker = retry
		}
	} else if c, err := r.Cookie(middleware.SessionCookieName); err == nil {
		in.SessionID = c.Value
	}
	h.clearStateCookie(w)

	p := callback.NewProcessor(h.config.Callback, checker, h.config.CallbackState,
		callback.WithRecorder(h.config.CallbackRecorder))
	out := p.Run(r.Context(), in)

	if retry != nil {
		if s := retry.session(); s != nil {
			h.setSessionCookie(w, s)
		}
	}

	if out.Status == callback.StatusSuccess {
		http.Redirect(w, r, out.Redirect, http.StatusSeeOther)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     callbackResultCookie,
		Value:    out.Path,
		Path:     "/auth/callback",
		MaxAge:   60,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, callbackResultPath, http.StatusSeeOther)
}

// CallbackResult は失敗したコールバックの結果と遅延リダイレクトを返す。
// 結果Cookieは一度読んだら破棄する。Cookieがなければホームへ遷移する。
// GET /auth/callback/result
func (h *AuthHandler) CallbackResult(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")

	cfg := h.config.Callback
	home := cfg.HomePath
	if home == "" {
		home = "/"
	}

	c, err := r.Cookie(callbackResultCookie)
	if err != nil || !callbackFailurePaths[c.Value] {
		http.Redirect(w, r, home, http.StatusSeeOther)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     callbackResultCookie,
		Value:    "",
		Path:     "/auth/callback",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	delay := int(cfg.ErrorRedirectDelay / time.Second)
	w.Header().Set("Refresh", fmt.Sprintf("%d; url=%s", delay, home))
	writeJSON(w, http.StatusOK, callbackResponse{
		Status:               callback.StatusError,
		Path:                 c.Value,
		Redirect:             home,
		RedirectAfterSeconds: delay,
	})
}

// exchange はstateを検証し、認可コードをプロバイダーのユーザー情報に交換する。
func (h *AuthHandler) exchange(r *http.Request, code string) (*auth.OAuthUserInfo, error) {
	state := r.URL.Query().Get("state")
	c, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(c.Value), []byte(state)) != 1 {
		slog.Warn("oauth state mismatch", slog.Bool("cookie_present", err == nil))
		return nil, fmt.Errorf("invalid state parameter")
	}
	return h.service.ExchangeCode(r.Context(), code)
}

// establishRetry はセッション確立を再試行するSessionChecker。
// 確立できたセッションはコールバック処理の終了後にCookieへ設定する。
type establishRetry struct {
	service AuthServiceInterface
	info    *auth.OAuthUserInfo

	mu      sync.Mutex
	created *model.Session
}

func (e *establishRetry) HasSession(ctx context.Context, _ string) (bool, error) {
	res, err := e.service.EstablishSession(ctx, e.info)
	if err != nil {
		if callback.IsTransient(err.Error()) {
			return false, nil
		}
		return false, err
	}
	e.mu.Lock()
	e.created = res.Session
	e.mu.Unlock()
	return true, nil
}

func (e *establishRetry) session() *model.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.created
}
