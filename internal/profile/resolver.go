// Package profile は認証済みアカウントからプロフィールを解決する。
//
// 解決は失敗しない。DBの読み書きに失敗した場合でも、アカウント情報と既定値から
// 組み立てたプロフィールを返す。劣化経路はすべてログとメトリクスに記録される。
package profile

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/africashands/platform/internal/metrics"
	"github.com/africashands/platform/internal/model"
)

// Store はプロフィール解決に必要な永続化操作。
type Store interface {
	FindByID(ctx context.Context, id string) (*model.Profile, error)
	InsertIfAbsent(ctx context.Context, p *model.Profile) (bool, error)
	Upsert(ctx context.Context, p *model.Profile) error
	UpdateRole(ctx context.Context, id string, role model.Role, source model.RoleSource) error
}

// Classifier はメールアドレスからロールを導出する。
type Classifier interface {
	Classify(email string) model.Role
}

// 解決結果のラベル。
const (
	OutcomeFound    = "found"
	OutcomeCreated  = "created"
	OutcomeFallback = "fallback"
)

// Defaults は候補プロフィールの既定値。
type Defaults struct {
	Country      string
	Organization string
	Verified     bool
	Preferences  model.Preferences
}

// DefaultPreferences は新規プロフィールの表示設定の既定値を返す。
func DefaultPreferences() model.Preferences {
	return model.Preferences{Language: "pt", Notifications: true, Theme: "light"}
}

// NewDefaults は国と組織を指定して既定値を返す。
func NewDefaults(country, organization string) Defaults {
	return Defaults{
		Country:      country,
		Organization: organization,
		Verified:     true,
		Preferences:  DefaultPreferences(),
	}
}

// Resolver はプロフィールを解決する。
type Resolver struct {
	store       Store
	classifier  Classifier
	defaults    Defaults
	readTimeout time.Duration
	recorder    metrics.ProfileRecorder
	runAsync    func(func())
	now         func() time.Time
}

// Option はResolverの設定を変更する。
type Option func(*Resolver)

// WithRecorder はメトリクスの記録先を設定する。
func WithRecorder(rec metrics.ProfileRecorder) Option {
	return func(r *Resolver) { r.recorder = rec }
}

// WithAsyncRunner はロール補正の非同期実行方法を設定する。
func WithAsyncRunner(run func(func())) Option {
	return func(r *Resolver) { r.runAsync = run }
}

// WithClock は現在時刻の取得関数を設定する。
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// NewResolver はResolverを生成する。
func NewResolver(store Store, classifier Classifier, defaults Defaults, readTimeout time.Duration, opts ...Option) *Resolver {
	r := &Resolver{
		store:       store,
		classifier:  classifier,
		defaults:    defaults,
		readTimeout: readTimeout,
		recorder:    metrics.Nop{},
		runAsync:    func(f func()) { go f() },
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve はidentityのプロフィールを返す。戻り値は常に非nilで、Roleは常に有効な値を持つ。
// regは新規登録時の入力で、ログイン時はnil。
func (r *Resolver) Resolve(ctx context.Context, identity model.AuthIdentity, reg *model.Registration) (resolved *model.Profile) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("profile resolution panicked",
				slog.String("event", "profile_resolve_panic"),
				slog.String("user_id", identity.UserID),
				slog.Any("panic", rec),
			)
			r.recorder.RecordProfileResolution(OutcomeFallback)
			resolved = r.safeCandidate(identity, reg)
		}
	}()

	existing := r.read(ctx, identity.UserID)

	var p *model.Profile
	stored := false
	if existing != nil {
		p = existing
		stored = true
		if p.Email == "" {
			p.Email = identity.Email
		}
		r.recorder.RecordProfileResolution(OutcomeFound)
	} else {
		p = r.candidate(identity, reg)
		stored = r.persist(ctx, identity, p, reg)
		if stored {
			r.recorder.RecordProfileResolution(OutcomeCreated)
		} else {
			r.recorder.RecordProfileResolution(OutcomeFallback)
		}
	}

	r.reconcileRole(ctx, p, reg, stored)
	return p
}

// read は上限時間付きでプロフィールを読み取る。失敗時はnil（未作成扱い）を返す。
func (r *Resolver) read(ctx context.Context, id string) *model.Profile {
	readCtx, cancel := context.WithTimeout(ctx, r.readTimeout)
	defer cancel()

	p, err := r.store.FindByID(readCtx, id)
	if err == nil {
		return p
	}

	reason := "error"
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(readCtx.Err(), context.DeadlineExceeded) {
		reason = "timeout"
	}
	slog.Warn("profile read failed, treating as not found",
		slog.String("event", "profile_read_degraded"),
		slog.String("user_id", id),
		slog.String("reason", reason),
		slog.String("error", err.Error()),
	)
	r.recorder.RecordProfileReadFailure(reason)
	return nil
}

// persist は候補プロフィールを保存する。upsertは新規登録時のみ使用し、
// ログイン時は既存行を上書きしない挿入を使用する。
// 保存できなかった場合もエラーは返さず、falseを返す。
func (r *Resolver) persist(ctx context.Context, identity model.AuthIdentity, p *model.Profile, reg *model.Registration) bool {
	mode := "upsert"
	var err error
	if reg == nil {
		mode = "insert"
		var inserted bool
		inserted, err = r.store.InsertIfAbsent(ctx, p)
		if err == nil && !inserted {
			// 既に行がある。ロールが欠けている可能性があるため補正対象にする。
			slog.Info("profile already exists, keeping stored row",
				slog.String("event", "profile_insert_conflict"),
				slog.String("user_id", p.ID),
				slog.Bool("oauth", identity.IsOAuth()),
			)
			r.correctRole(ctx, p.ID, p.Role)
			return true
		}
	} else {
		err = r.store.Upsert(ctx, p)
	}

	if err != nil {
		slog.Warn("profile write failed, using in-memory profile",
			slog.String("event", "profile_write_degraded"),
			slog.String("user_id", p.ID),
			slog.String("mode", mode),
			slog.String("error", err.Error()),
		)
		r.recorder.RecordProfileWriteFailure(mode)
		return false
	}
	return true
}

// candidate は登録入力 > プロバイダー属性 > メールアドレスのローカル部 > 既定値 の
// 優先順位で候補プロフィールを組み立てる。
func (r *Resolver) candidate(identity model.AuthIdentity, reg *model.Registration) *model.Profile {
	now := r.now().UTC()
	p := &model.Profile{
		ID:           identity.UserID,
		Email:        identity.Email,
		FullName:     firstNonEmpty(identity.Claims.FullName, localPart(identity.Email)),
		Country:      r.defaults.Country,
		Organization: r.defaults.Organization,
		AvatarURL:    identity.Claims.AvatarURL,
		Verified:     r.defaults.Verified,
		Preferences:  r.defaults.Preferences,
		Role:         r.classify(identity.Email),
		RoleSource:   model.RoleSourceDerived,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if reg != nil {
		p.FullName = firstNonEmpty(strings.TrimSpace(reg.FullName), p.FullName)
		p.Country = firstNonEmpty(strings.TrimSpace(reg.Country), p.Country)
		p.Sector = strings.TrimSpace(reg.Sector)
		p.Organization = firstNonEmpty(strings.TrimSpace(reg.Organization), p.Organization)
		if reg.Role.Valid() {
			p.Role = reg.Role
			p.RoleSource = model.RoleSourceExplicit
		}
	}
	return p
}

// safeCandidate はcandidateがpanicした場合でも、既定値のみのプロフィールを返す。
func (r *Resolver) safeCandidate(identity model.AuthIdentity, reg *model.Registration) (p *model.Profile) {
	defer func() {
		if recover() != nil {
			p = &model.Profile{
				ID:           identity.UserID,
				Email:        identity.Email,
				FullName:     localPart(identity.Email),
				Country:      r.defaults.Country,
				Organization: r.defaults.Organization,
				Verified:     r.defaults.Verified,
				Preferences:  r.defaults.Preferences,
				Role:         model.RoleUser,
				RoleSource:   model.RoleSourceDerived,
			}
		}
	}()
	return r.candidate(identity, reg)
}

// reconcileRole は導出ロールと保存済みロールを突き合わせる。
// 登録時に明示されたロールと管理者が明示設定したロールは変更しない。
func (r *Resolver) reconcileRole(ctx context.Context, p *model.Profile, reg *model.Registration, stored bool) {
	if reg != nil && reg.Role.Valid() {
		return
	}
	if p.RoleSource == model.RoleSourceExplicit && p.Role.Valid() {
		return
	}

	derived := r.classify(p.Email)
	if p.Role == derived {
		return
	}

	previous := p.Role
	p.Role = derived
	p.RoleSource = model.RoleSourceDerived

	if previous != "" {
		slog.Warn("stored role disagrees with derived role, overriding",
			slog.String("event", "role_override"),
			slog.String("user_id", p.ID),
			slog.String("stored_role", string(previous)),
			slog.String("derived_role", string(derived)),
		)
		r.recorder.RecordRoleOverride()
	}

	if stored {
		r.correctRole(ctx, p.ID, derived)
	}
}

// correctRole はロールの補正をベストエフォートで非同期に保存する。
func (r *Resolver) correctRole(ctx context.Context, id string, role model.Role) {
	timeout := r.readTimeout
	base := context.WithoutCancel(ctx)
	r.runAsync(func() {
		updateCtx, cancel := context.WithTimeout(base, timeout)
		defer cancel()
		if err := r.store.UpdateRole(updateCtx, id, role, model.RoleSourceDerived); err != nil {
			slog.Warn("corrective role update failed",
				slog.String("event", "role_update_degraded"),
				slog.String("user_id", id),
				slog.String("error", err.Error()),
			)
			r.recorder.RecordProfileWriteFailure("role_update")
		}
	})
}

func (r *Resolver) classify(email string) model.Role {
	if r.classifier == nil {
		return model.RoleUser
	}
	role := r.classifier.Classify(email)
	if !role.Valid() {
		return model.RoleUser
	}
	return role
}

// localPart はメールアドレスの@より前の部分を返す。
func localPart(email string) string {
	email = strings.TrimSpace(email)
	if i := strings.IndexByte(email, '@'); i >= 0 {
		return email[:i]
	}
	return email
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
