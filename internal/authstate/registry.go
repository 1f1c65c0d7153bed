package authstate

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RegistryConfig はRegistryの設定を保持する。
type RegistryConfig struct {
	LoadingTimeout  time.Duration // 初期化中状態の上限
	IdleTTL         time.Duration // 購読者のいないBroadcasterを破棄するまでの時間
	CleanupInterval time.Duration // アイドルエントリのクリーンアップ間隔
}

// DefaultRegistryConfig はデフォルト設定を返す。
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		LoadingTimeout:  DefaultLoadingTimeout,
		IdleTTL:         10 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

type registryEntry struct {
	b          *Broadcaster
	lastAccess time.Time
}

// Registry はブラウザセッションごとに1つのBroadcasterを管理する。
type Registry struct {
	ctx      context.Context
	config   RegistryConfig
	feed     *Feed
	source   SessionSource
	resolver ProfileResolver

	mu      sync.RWMutex
	entries map[string]*registryEntry

	now    func() time.Time
	stopCh chan struct{}
	once   sync.Once
}

// NewRegistry はRegistryを生成し、バックグラウンドでアイドルエントリのクリーンアップを開始する。
// ctxは生成するBroadcasterの寿命になる。
func NewRegistry(ctx context.Context, config RegistryConfig, feed *Feed, source SessionSource, resolver ProfileResolver) *Registry {
	r := &Registry{
		ctx:      ctx,
		config:   config,
		feed:     feed,
		source:   source,
		resolver: resolver,
		entries:  make(map[string]*registryEntry),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		go r.cleanupLoop()
	}

	return r
}

// Feed はイベント配信ハブを返す。
func (r *Registry) Feed() *Feed {
	return r.feed
}

// Get はsessionIDのBroadcasterを取得する。存在しなければ生成して開始する。
// 有効なセッションでない場合はBroadcasterを生成せず、falseを返す。
func (r *Registry) Get(ctx context.Context, sessionID string) (*Broadcaster, bool) {
	if b, ok := r.touch(sessionID); ok {
		return b, true
	}
	if !r.sessionExists(ctx, sessionID) {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// ダブルチェック
	if e, exists := r.entries[sessionID]; exists {
		e.lastAccess = r.now()
		return e.b, true
	}

	b := NewBroadcaster(sessionID, r.feed, r.source, r.resolver, r.config.LoadingTimeout)
	b.Start(r.ctx)
	r.entries[sessionID] = &registryEntry{b: b, lastAccess: r.now()}

	return b, true
}

func (r *Registry) touch(sessionID string) (*Broadcaster, bool) {
	r.mu.RLock()
	e, exists := r.entries[sessionID]
	r.mu.RUnlock()
	if !exists {
		return nil, false
	}

	r.mu.Lock()
	e.lastAccess = r.now()
	r.mu.Unlock()
	return e.b, true
}

// sessionExists はセッションが有効かを確認する。確認に失敗した場合は無効として扱う。
func (r *Registry) sessionExists(ctx context.Context, sessionID string) bool {
	if sessionID == "" {
		return false
	}
	checkCtx := ctx
	if r.config.LoadingTimeout > 0 {
		var cancel context.CancelFunc
		checkCtx, cancel = context.WithTimeout(ctx, r.config.LoadingTimeout)
		defer cancel()
	}
	ok, err := r.source.HasSession(checkCtx, sessionID)
	if err != nil {
		slog.Warn("session check failed, treating as signed out",
			slog.String("event", "auth_state_session_check_degraded"),
			slog.String("error", err.Error()),
		)
		return false
	}
	return ok
}

// Len は管理中のBroadcaster数を返す。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Stop はクリーンアップを停止し、すべてのBroadcasterを閉じる。
func (r *Registry) Stop() {
	r.once.Do(func() {
		close(r.stopCh)

		r.mu.Lock()
		entries := r.entries
		r.entries = make(map[string]*registryEntry)
		r.mu.Unlock()

		for _, e := range entries {
			e.b.Close()
		}
	})
}

func (r *Registry) cleanupLoop() {
	ticker := time.NewTicker(r.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.evictIdle()
		case <-r.stopCh:
			return
		}
	}
}

// evictIdle は購読者がおらずIdleTTLを超えてアクセスのないBroadcasterを閉じる。
func (r *Registry) evictIdle() int {
	cutoff := r.now().Add(-r.config.IdleTTL)

	var evicted []*Broadcaster
	r.mu.Lock()
	for id, e := range r.entries {
		if e.lastAccess.Before(cutoff) && e.b.SubscriberCount() == 0 {
			evicted = append(evicted, e.b)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, b := range evicted {
		b.Close()
	}
	if len(evicted) > 0 {
		slog.Debug("idle auth state broadcasters evicted", slog.Int("count", len(evicted)))
	}
	return len(evicted)
}

// WaitSettled はsessionIDの認証状態が確定するまで待ち、その状態を返す。
// 有効なセッションでない場合は未認証の状態を返す。
func (r *Registry) WaitSettled(ctx context.Context, sessionID string) State {
	b, ok := r.Get(ctx, sessionID)
	if !ok {
		return State{}
	}
	return b.WaitSettled(ctx)
}

// Publish はイベントを配信する。対象セッションのBroadcasterが未生成でも失われない。
// Broadcasterは生成時にセッションソースから状態を読み直すため。
func (r *Registry) Publish(ev Event) {
	r.feed.Publish(ev)
}
