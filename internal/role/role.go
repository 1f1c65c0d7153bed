// Package role はメールアドレスからアクセス権限を導出する。
//
// 判定はサーバー側でのみ行う。管理者が明示的に設定したロール
// （RoleSourceExplicit）はここでの判定結果で上書きされない。
package role

import (
	"strings"

	"github.com/africashands/platform/internal/model"
)

// Rules は管理者判定の規則。
type Rules struct {
	// AdminEmails は完全一致で管理者と判定するメールアドレス。
	AdminEmails []string `yaml:"admin_emails"`
	// AdminDomains はドメイン一致で管理者と判定するドメイン。
	AdminDomains []string `yaml:"admin_domains"`
	// AdminKeywords はメールアドレスに含まれていれば管理者と判定する語。
	AdminKeywords []string `yaml:"admin_keywords"`
}

// DefaultRules は組み込みの判定規則を返す。
func DefaultRules() Rules {
	return Rules{
		AdminEmails: []string{
			"admin@africashands.com",
			"admin@africashands.org",
		},
		AdminDomains: []string{
			"africashands.com",
			"africashands.org",
		},
		AdminKeywords: []string{
			"admin",
			"administrator",
			"supervisor",
			"manager",
		},
	}
}

// Classifier はRulesに従ってロールを判定する。
// 生成後は読み取り専用のため、複数goroutineから安全に使用できる。
type Classifier struct {
	emails   map[string]struct{}
	domains  []string
	keywords []string
}

// NewClassifier はRulesを正規化してClassifierを生成する。
func NewClassifier(rules Rules) *Classifier {
	c := &Classifier{emails: make(map[string]struct{}, len(rules.AdminEmails))}
	for _, e := range rules.AdminEmails {
		if n := normalize(e); n != "" {
			c.emails[n] = struct{}{}
		}
	}
	for _, d := range rules.AdminDomains {
		if n := strings.TrimPrefix(normalize(d), "@"); n != "" {
			c.domains = append(c.domains, n)
		}
	}
	for _, k := range rules.AdminKeywords {
		if n := normalize(k); n != "" {
			c.keywords = append(c.keywords, n)
		}
	}
	return c
}

// Classify はメールアドレスからロールを判定する。エラーは返さない。
// 判定順序（最初に一致したものを採用）:
//  1. 管理者メールアドレスとの完全一致
//  2. 管理者ドメインとの一致（"@domain" または サブドメイン ".domain" で終わる）
//  3. 管理者を示すキーワードを含む
//  4. それ以外は一般ユーザー
//
// 空文字列は一般ユーザーとして扱う。
func (c *Classifier) Classify(email string) model.Role {
	e := normalize(email)
	if e == "" {
		return model.RoleUser
	}

	if _, ok := c.emails[e]; ok {
		return model.RoleAdmin
	}

	for _, d := range c.domains {
		if strings.HasSuffix(e, "@"+d) || strings.HasSuffix(e, "."+d) {
			return model.RoleAdmin
		}
	}

	for _, k := range c.keywords {
		if strings.Contains(e, k) {
			return model.RoleAdmin
		}
	}

	return model.RoleUser
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
