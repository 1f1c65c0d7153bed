// Package model はドメインモデルを定義する。
package model

import "time"

// プロバイダー識別子。
const (
	// ProviderEmail はメールアドレス+パスワードによる直接登録を表す。
	ProviderEmail = "email"
	// ProviderGoogle はGoogle OAuthによる登録を表す。
	ProviderGoogle = "google"
)

// User はサービス利用ユーザーを表す。
// PasswordHashはOAuthのみで登録したユーザーでは空になる。
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity は外部IdPとの紐付け情報を表す。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
// Providerはサインインに使用した認証方式で、sessions.dataに保存する。
type Session struct {
	ID        string
	UserID    string
	Provider  string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// PasswordReset はパスワード再設定用のワンタイムトークンを表す。
// トークン本体は保存せず、SHA-256ハッシュのみを保持する。
type PasswordReset struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// ProviderClaims はIdPから受け取った表示用の属性。
type ProviderClaims struct {
	FullName  string
	AvatarURL string
}

// AuthIdentity は認証済みアカウントを表す。
// プロフィール解決の入力として使用する。
type AuthIdentity struct {
	UserID   string
	Email    string
	Provider string
	Claims   ProviderClaims
}

// IsOAuth はIdentityが外部OAuthプロバイダー由来かどうかを返す。
func (a AuthIdentity) IsOAuth() bool {
	return a.Provider != "" && a.Provider != ProviderEmail
}

// Registration は新規登録フォームで入力された任意項目。
// Roleは管理者による明示指定の場合のみ設定される。
type Registration struct {
	FullName     string
	Country      string
	Sector       string
	Organization string
	Role         Role
}

// Actor は操作を実行するユーザーと、その時点で解決済みのロール。
type Actor struct {
	UserID string
	Role   Role
}

// IsAdmin は管理者かどうかを返す。
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
