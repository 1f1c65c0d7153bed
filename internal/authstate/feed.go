// Package authstate はセッションごとの認証状態を管理する。
//
// Feedは認証イベント（サインイン、サインアウト、トークン更新、ユーザー更新）を
// セッション単位で配信する。Broadcasterはセッションごとに1つのgoroutineが
// 状態を所有し、イベントを受けてプロフィールを再解決した結果を公開する。
package authstate

import (
	"sync"
	"time"

	"github.com/africashands/platform/internal/model"
)

// EventType は認証イベントの種別。
type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventUserUpdated    EventType = "USER_UPDATED"
)

// Event は認証状態の変化を表す。
// SignedOut以外のイベントではIdentityが設定される。
type Event struct {
	Type      EventType
	SessionID string
	Identity  *model.AuthIdentity
	At        time.Time
}

// Feed はセッションIDごとのイベント配信ハブ。
// 購読者ごとにイベントは発行順に届き、発行側がブロックされることはない。
type Feed struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

// NewFeed はFeedを生成する。
func NewFeed() *Feed {
	return &Feed{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscription はFeedの購読。Cからイベントを受け取る。
type Subscription struct {
	C <-chan Event

	feed      *Feed
	sessionID string
	out       chan Event
	mu        sync.Mutex
	queue     []Event
	notify    chan struct{}
	done      chan struct{}
	once      sync.Once
}

// Subscribe はsessionIDのイベントを購読する。
func (f *Feed) Subscribe(sessionID string) *Subscription {
	out := make(chan Event)
	s := &Subscription{
		C:         out,
		feed:      f,
		sessionID: sessionID,
		out:       out,
		notify:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	f.mu.Lock()
	if f.subs[sessionID] == nil {
		f.subs[sessionID] = make(map[*Subscription]struct{})
	}
	f.subs[sessionID][s] = struct{}{}
	f.mu.Unlock()

	go s.pump()
	return s
}

// Publish はイベントをsessionIDの購読者全員のキューに積む。
func (f *Feed) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for s := range f.subs[ev.SessionID] {
		s.enqueue(ev)
	}
}

// SubscriberCount はsessionIDの購読者数を返す。
func (f *Feed) SubscriberCount(sessionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[sessionID])
}

// Unsubscribe は購読を解除する。複数回呼んでも安全。
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.feed.mu.Lock()
		delete(s.feed.subs[s.sessionID], s)
		if len(s.feed.subs[s.sessionID]) == 0 {
			delete(s.feed.subs, s.sessionID)
		}
		s.feed.mu.Unlock()
		close(s.done)
	})
}

func (s *Subscription) enqueue(ev Event) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// pump はキューに積まれたイベントを順にCへ送る。
func (s *Subscription) pump() {
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
		}

		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			ev := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case s.out <- ev:
			case <-s.done:
				return
			}
		}
	}
}
