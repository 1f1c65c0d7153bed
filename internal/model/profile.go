package model

import "time"

// Role はアクセス権限を表す。
type Role string

const (
	// RoleAdmin は管理者。
	RoleAdmin Role = "admin"
	// RoleUser は一般ユーザー。
	RoleUser Role = "user"
)

// Valid は定義済みのロールかどうかを返す。
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// RoleSource はロールの決定方法を表す。
type RoleSource string

const (
	// RoleSourceDerived はメールアドレスから導出されたロール。
	RoleSourceDerived RoleSource = "derived"
	// RoleSourceExplicit は管理者操作で明示的に設定されたロール。
	// 自動補正の対象外になる。
	RoleSourceExplicit RoleSource = "explicit"
)

// Preferences はユーザーの表示設定。profiles.preferencesにJSONで保存する。
type Preferences struct {
	Language      string `json:"language"`
	Notifications bool   `json:"notifications"`
	Theme         string `json:"theme"`
}

// Profile はアプリケーション側のユーザー拡張情報。
// IDはusers.idと同一。
type Profile struct {
	ID           string
	FullName     string
	Email        string
	Role         Role
	RoleSource   RoleSource
	Country      string
	Sector       string
	Organization string
	AvatarURL    string
	Verified     bool
	Preferences  Preferences
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProfileUpdate はプロフィールの自己編集内容。nilの項目は変更しない。
// ロールは自己編集の対象外。
type ProfileUpdate struct {
	FullName     *string
	Country      *string
	Sector       *string
	Organization *string
	AvatarURL    *string
	Preferences  *Preferences
}
