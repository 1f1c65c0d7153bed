// Package locale はAPIエラーメッセージの言語選択と翻訳を提供する。
// 既定言語はポルトガル語で、英語とフランス語の訳を持つ。
package locale

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/text/language"

	"github.com/africashands/platform/internal/model"
)

// LangParam は言語を明示指定するクエリパラメータ名。
const LangParam = "lang"

var supportedTags = []language.Tag{
	language.Portuguese,
	language.English,
	language.French,
}

var matcher = language.NewMatcher(supportedTags)

// Default は既定の言語タグを返す。
func Default() language.Tag {
	return language.Portuguese
}

// Match は任意の言語タグをサポート言語のいずれかに丸める。
func Match(tags ...language.Tag) language.Tag {
	if len(tags) == 0 {
		return Default()
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return Default()
	}
	return supportedTags[idx]
}

// Parse は言語コード文字列をサポート言語に丸める。解釈できない場合は既定言語を返す。
func Parse(value string) language.Tag {
	tag, err := language.Parse(strings.TrimSpace(value))
	if err != nil {
		return Default()
	}
	return Match(tag)
}

// ResolveTag はリクエストから応答言語を決定する。
// 優先順位: ?lang= > Accept-Language > 既定言語
func ResolveTag(r *http.Request) language.Tag {
	if r == nil {
		return Default()
	}
	if v := strings.TrimSpace(r.URL.Query().Get(LangParam)); v != "" {
		return Parse(v)
	}
	if accept := strings.TrimSpace(r.Header.Get("Accept-Language")); accept != "" {
		if tags, _, err := language.ParseAcceptLanguage(accept); err == nil {
			return Match(tags...)
		}
	}
	return Default()
}

type contextKey struct{}

// WithTag はctxに言語タグを格納する。
func WithTag(ctx context.Context, tag language.Tag) context.Context {
	return context.WithValue(ctx, contextKey{}, tag)
}

// FromContext はctxの言語タグを返す。未設定の場合は既定言語。
func FromContext(ctx context.Context) language.Tag {
	if tag, ok := ctx.Value(contextKey{}).(language.Tag); ok {
		return tag
	}
	return Default()
}

// Middleware はリクエストごとに言語タグを決定してコンテキストへ格納する。
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tag := ResolveTag(r)
		w.Header().Set("Content-Language", tag.String())
		next.ServeHTTP(w, r.WithContext(WithTag(r.Context(), tag)))
	})
}

// Localize はAPIエラーのMessageとActionをtagの言語に置き換えた複製を返す。
// 訳がないコードは元の文言のまま返す。
func Localize(apiErr *model.APIError, tag language.Tag) *model.APIError {
	if apiErr == nil {
		return nil
	}
	out := *apiErr
	table, ok := catalogs[tag]
	if !ok {
		return &out
	}
	if t, ok := table[apiErr.Code]; ok {
		out.Message = t.message
		out.Action = t.action
	}
	return &out
}
