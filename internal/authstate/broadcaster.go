package authstate

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/africashands/platform/internal/model"
)

// DefaultLoadingTimeout は初期化中状態の上限。
const DefaultLoadingTimeout = 3 * time.Second

// SessionSource はセッションIDから現在の認証アカウントを取得する。
// セッションが存在しない場合はnil, nilを返す。
type SessionSource interface {
	CurrentIdentity(ctx context.Context, sessionID string) (*model.AuthIdentity, error)
	HasSession(ctx context.Context, sessionID string) (bool, error)
}

// ProfileResolver は認証アカウントに対応するプロフィールを解決する。
type ProfileResolver interface {
	Resolve(ctx context.Context, identity model.AuthIdentity, reg *model.Registration) *model.Profile
}

// State は公開される認証状態のスナップショット。
// 未認証のときUser、Profileはnil、Roleは空になる。
type State struct {
	User    *model.AuthIdentity
	Profile *model.Profile
	Role    model.Role
	Loading bool
	Version uint64
}

// Authenticated はユーザーが認証済みかどうかを返す。
func (s State) Authenticated() bool {
	return s.User != nil
}

type resolution struct {
	gen      uint64
	identity *model.AuthIdentity
	profile  *model.Profile
}

// Broadcaster は1セッション分の認証状態を所有するアクター。
// 状態を書き換えるのはrunのgoroutineだけで、外部にはスナップショットのみを渡す。
type Broadcaster struct {
	sessionID      string
	feed           *Feed
	source         SessionSource
	resolver       ProfileResolver
	loadingTimeout time.Duration

	current atomic.Pointer[State]
	results chan resolution

	mu     sync.Mutex
	subs   map[chan State]struct{}
	closed bool

	started   atomic.Bool
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewBroadcaster はBroadcasterを生成する。Startを呼ぶまで状態はLoadingのまま。
func NewBroadcaster(sessionID string, feed *Feed, source SessionSource, resolver ProfileResolver, loadingTimeout time.Duration) *Broadcaster {
	if loadingTimeout <= 0 {
		loadingTimeout = DefaultLoadingTimeout
	}
	b := &Broadcaster{
		sessionID:      sessionID,
		feed:           feed,
		source:         source,
		resolver:       resolver,
		loadingTimeout: loadingTimeout,
		results:        make(chan resolution),
		subs:           make(map[chan State]struct{}),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	b.current.Store(&State{Loading: true})
	return b
}

// SessionID は対象のセッションIDを返す。
func (b *Broadcaster) SessionID() string {
	return b.sessionID
}

// Start はイベント購読と初期化を開始する。2回目以降の呼び出しは何もしない。
// 購読はここで1つだけ作成され、Closeで解除される。
func (b *Broadcaster) Start(ctx context.Context) {
	if !b.started.CompareAndSwap(false, true) {
		return
	}
	sub := b.feed.Subscribe(b.sessionID)
	go b.run(ctx, sub)
}

// Current は最新のスナップショットを返す。
func (b *Broadcaster) Current() State {
	return *b.current.Load()
}

// Subscribe はスナップショットの通知チャネルを返す。
// チャネルには現在の状態が最初に入っており、以降は最新の状態だけが保持される。
// 戻り値の関数で購読を解除する。Close後はチャネルが閉じられる。
func (b *Broadcaster) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	ch <- b.Current()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
			b.mu.Unlock()
		})
	}
}

// SubscriberCount は購読者数を返す。
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// WaitSettled はLoadingが解除されるかctxが終了するまで待ち、その時点の状態を返す。
func (b *Broadcaster) WaitSettled(ctx context.Context) State {
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	latest := b.Current()
	for latest.Loading {
		select {
		case <-ctx.Done():
			return b.Current()
		case s, ok := <-ch:
			if !ok {
				return b.Current()
			}
			latest = s
		}
	}
	return latest
}

// Close は購読を解除し、以降の状態公開を止める。
func (b *Broadcaster) Close() {
	b.closeOnce.Do(func() {
		close(b.stop)
		if b.started.Load() {
			<-b.done
		}

		b.mu.Lock()
		b.closed = true
		for ch := range b.subs {
			close(ch)
		}
		b.subs = nil
		b.mu.Unlock()
	})
}

// Done はアクターの終了時に閉じられるチャネルを返す。
func (b *Broadcaster) Done() <-chan struct{} {
	return b.done
}

func (b *Broadcaster) run(ctx context.Context, sub *Subscription) {
	defer close(b.done)
	defer sub.Unsubscribe()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	state := State{Loading: true}
	var gen uint64 = 1
	go b.bootstrap(ctx, gen)

	timer := time.NewTimer(b.loadingTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stop:
			return

		case <-timer.C:
			if state.Loading {
				slog.Warn("auth state loading timed out",
					slog.String("event", "auth_loading_timeout"),
					slog.String("session_id", shortID(b.sessionID)),
				)
				state.Loading = false
				state = b.publish(state)
			}

		case ev := <-sub.C:
			switch ev.Type {
			case EventSignedOut:
				gen++
				timer.Stop()
				state = b.publish(State{Version: state.Version})
			case EventTokenRefreshed:
				// 同じユーザーのトークン更新では再解決しない
				if ev.Identity == nil || (state.User != nil && state.User.UserID == ev.Identity.UserID) {
					continue
				}
				gen++
				go b.resolve(ctx, gen, *ev.Identity)
			case EventSignedIn, EventUserUpdated:
				if ev.Identity == nil {
					continue
				}
				gen++
				go b.resolve(ctx, gen, *ev.Identity)
			}

		case res := <-b.results:
			if res.gen != gen {
				slog.Debug("stale auth resolution discarded",
					slog.String("session_id", shortID(b.sessionID)),
				)
				continue
			}
			timer.Stop()
			next := State{Version: state.Version}
			if res.identity != nil {
				next.User = res.identity
				next.Profile = res.profile
				if res.profile != nil {
					next.Role = res.profile.Role
				}
			}
			state = b.publish(next)
		}
	}
}

// bootstrap はセッションソースから初期状態を読み込む。
func (b *Broadcaster) bootstrap(ctx context.Context, gen uint64) {
	identity, err := b.source.CurrentIdentity(ctx, b.sessionID)
	if err != nil {
		slog.Warn("auth state bootstrap failed",
			slog.String("event", "auth_bootstrap_degraded"),
			slog.String("session_id", shortID(b.sessionID)),
			slog.String("error", err.Error()),
		)
		identity = nil
	}

	res := resolution{gen: gen}
	if identity != nil {
		res.identity = identity
		res.profile = b.resolver.Resolve(ctx, *identity, nil)
	}
	b.deliver(ctx, res)
}

func (b *Broadcaster) resolve(ctx context.Context, gen uint64, identity model.AuthIdentity) {
	p := b.resolver.Resolve(ctx, identity, nil)
	b.deliver(ctx, resolution{gen: gen, identity: &identity, profile: p})
}

func (b *Broadcaster) deliver(ctx context.Context, res resolution) {
	select {
	case b.results <- res:
	case <-ctx.Done():
	case <-b.stop:
	}
}

// publish はVersionを進めて状態を保存し、購読者へ通知する。
func (b *Broadcaster) publish(s State) State {
	s.Version++
	snap := s
	b.current.Store(&snap)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return s
	}
	for ch := range b.subs {
		// 古い未読の状態は捨てて最新だけを残す
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
	return s
}

// shortID はログ出力用にセッションIDを短縮する。
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
