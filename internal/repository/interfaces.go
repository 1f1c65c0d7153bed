// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/africashands/platform/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレス（大文字小文字を区別しない）でユーザーを取得する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	// メールアドレスが登録済みの場合はErrDuplicateを返す。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpdatePassword はパスワードハッシュを更新する。
	UpdatePassword(ctx context.Context, userID, passwordHash string) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentities、sessions、profilesはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// Create は既存ユーザーにidentityを追加する。
	Create(ctx context.Context, identity *model.Identity) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// Extend はセッションの有効期限を延長する。
	Extend(ctx context.Context, id string, expiresAt time.Time) error
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// PasswordResetRepository はパスワード再設定トークンの永続化インターフェース。
type PasswordResetRepository interface {
	// Create は再設定トークンを保存する。
	Create(ctx context.Context, reset *model.PasswordReset) error
	// Consume は未使用かつ有効期限内のトークンを使用済みにし、その行を返す。
	// 該当するトークンがない場合はnilを返す。
	Consume(ctx context.Context, tokenHash string) (*model.PasswordReset, error)
	// DeleteExpired は期限切れまたは使用済みのトークンを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// ProfileRepository はプロフィールの永続化インターフェース。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	// roleがNULLの行はRoleが空文字になる。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// InsertIfAbsent はプロフィールが存在しない場合のみ挿入する。
	// 既存の行は変更しない。挿入した場合はtrueを返す。
	InsertIfAbsent(ctx context.Context, profile *model.Profile) (bool, error)

	// Upsert はプロフィールを挿入し、存在する場合は上書きする。
	Upsert(ctx context.Context, profile *model.Profile) error

	// UpdateRole はロールとその決定方法を更新する。
	UpdateRole(ctx context.Context, id string, role model.Role, source model.RoleSource) error

	// Update は自己編集可能な項目を部分更新し、更新後のプロフィールを返す。
	// 対象が存在しない場合はnilを返す。
	Update(ctx context.Context, id string, update model.ProfileUpdate) (*model.Profile, error)

	// List はプロフィール一覧を作成日時の降順で返す。
	List(ctx context.Context, limit, offset int) ([]*model.Profile, error)
}

// OpportunityRepository は機会の永続化インターフェース。
type OpportunityRepository interface {
	// FindByID は指定IDの機会を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Opportunity, error)

	// List は状態・国・分野・種別で絞り込んだ機会を作成日時の降順で返す。
	// フリーワード検索はサービス層で行う。
	List(ctx context.Context, filter model.OpportunityFilter) ([]*model.Opportunity, error)

	// Create は機会を作成する。
	Create(ctx context.Context, opp *model.Opportunity) error

	// Update は機会を上書き更新する。
	Update(ctx context.Context, opp *model.Opportunity) error

	// Delete は指定IDの機会を削除する。削除した場合はtrueを返す。
	Delete(ctx context.Context, id string) (bool, error)

	// UpdateImageURL は機会の画像URLを更新する。
	UpdateImageURL(ctx context.Context, id, imageURL string) error

	// FindBySourceAndGUID はsource_idとexternal_guidで機会を検索する。
	// 同一性判定の最優先手段。見つからない場合はnilを返す。
	FindBySourceAndGUID(ctx context.Context, sourceID, guid string) (*model.Opportunity, error)

	// FindBySourceAndLink はsource_idとexternal_linkで機会を検索する。
	// 同一性判定の第2優先手段。見つからない場合はnilを返す。
	FindBySourceAndLink(ctx context.Context, sourceID, link string) (*model.Opportunity, error)

	// FindBySourceAndHash はsource_idとcontent_hashで機会を検索する。
	// 同一性判定の第3優先手段。見つからない場合はnilを返す。
	FindBySourceAndHash(ctx context.Context, sourceID, hash string) (*model.Opportunity, error)

	// CloseExpired は締切を過ぎた公開中の機会を締切済みにし、更新件数を返す。
	CloseExpired(ctx context.Context, now time.Time) (int64, error)
}

// ApplicationRepository は応募の永続化インターフェース。
type ApplicationRepository interface {
	// FindByID は指定IDの応募を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Application, error)

	// Create は応募を作成する。同一ユーザーの重複応募はErrDuplicateを返す。
	Create(ctx context.Context, app *model.Application) error

	// ListByUserID はユーザーの応募一覧を機会情報付きで返す。
	ListByUserID(ctx context.Context, userID string) ([]ApplicationWithOpportunity, error)

	// ListByOpportunityID は機会への応募一覧を応募者情報付きで返す。
	ListByOpportunityID(ctx context.Context, opportunityID string) ([]ApplicationWithApplicant, error)

	// UpdateStatus は応募の審査状態を更新する。更新した場合はtrueを返す。
	UpdateStatus(ctx context.Context, id string, status model.ApplicationStatus) (bool, error)
}

// ImageRepository は機会画像の永続化インターフェース。
type ImageRepository interface {
	// Create は画像を保存する。
	Create(ctx context.Context, img *model.OpportunityImage) error
	// FindByID は指定IDの画像を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.OpportunityImage, error)
}

// SourceRepository はパートナーフィードの永続化インターフェース。
type SourceRepository interface {
	// FindByFeedURL はフィードURLでソースを検索する。見つからない場合はnilを返す。
	FindByFeedURL(ctx context.Context, feedURL string) (*model.OpportunitySource, error)

	// Create はソースを作成する。
	Create(ctx context.Context, source *model.OpportunitySource) error

	// List はソース一覧を返す。
	List(ctx context.Context) ([]*model.OpportunitySource, error)

	// ListDueForFetch はフェッチ対象のソースを取得する。
	// next_fetch_at <= now() かつ fetch_status = 'active' のソースを
	// FOR UPDATE SKIP LOCKEDで排他的に取得する。
	ListDueForFetch(ctx context.Context) ([]*model.OpportunitySource, error)

	// UpdateFetchState はソースのフェッチ状態を更新する。
	UpdateFetchState(ctx context.Context, source *model.OpportunitySource) error
}

// ApplicationWithOpportunity は応募と機会の概要を結合した構造体。
type ApplicationWithOpportunity struct {
	model.Application
	OpportunityTitle  string
	Organization      string
	OpportunityStatus model.OpportunityStatus
}

// ApplicationWithApplicant は応募と応募者のプロフィール概要を結合した構造体。
type ApplicationWithApplicant struct {
	model.Application
	ApplicantName    string
	ApplicantEmail   string
	ApplicantCountry string
}
