// Package realtime は機会の変更通知をPostgreSQLのLISTEN/NOTIFYから購読者へ配信する。
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"
)

// Channel は機会テーブルのトリガーが通知するチャネル名。
const Channel = "opportunities_changes"

// 変更種別。INSERT/UPDATE/DELETEはトリガーのTG_OPそのまま。
const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
	// OpResync は再接続などで通知が欠落した可能性があることを表す。
	// 受信側は一覧を再取得する。
	OpResync = "RESYNC"
)

// subscriberBuffer は購読者ごとのバッファ数。
// 溢れた変更は破棄し、代わりにRESYNCを配信する。
const subscriberBuffer = 32

// Change は1件の変更通知。
type Change struct {
	Op string `json:"op"`
	ID string `json:"id,omitempty"`
}

// Hub は変更通知を購読者へファンアウトする。
type Hub struct {
	mu     sync.Mutex
	subs   map[int]*subscriber
	nextID int
}

type subscriber struct {
	ch      chan Change
	dropped bool
}

// NewHub はHubを生成する。
func NewHub() *Hub {
	return &Hub{subs: make(map[int]*subscriber)}
}

// Subscribe は購読を開始する。返された関数で購読を解除する（複数回呼んでも安全）。
func (h *Hub) Subscribe() (<-chan Change, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	sub := &subscriber{ch: make(chan Change, subscriberBuffer)}
	h.subs[id] = sub

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub.ch)
			}
		})
	}
}

// SubscriberCount は現在の購読者数を返す。
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish は全購読者へ変更を配信する。ブロックしない。
func (h *Hub) Publish(c Change) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		if sub.dropped {
			// 取りこぼし後は空きができた時点でRESYNCを1回だけ送る
			select {
			case sub.ch <- Change{Op: OpResync}:
				sub.dropped = false
			default:
				continue
			}
		}
		select {
		case sub.ch <- c:
		default:
			sub.dropped = true
		}
	}
}

// Close は全購読を終了する。
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
}

// Run は通知チャネルを読み、Hubへ配信する。ctxの終了またはチャネルのクローズで戻る。
// nilの通知は再接続を表すため、RESYNCとして配信する。
func (h *Hub) Run(ctx context.Context, notifications <-chan *pq.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			if n == nil {
				h.Publish(Change{Op: OpResync})
				continue
			}
			c, err := ParsePayload(n.Extra)
			if err != nil {
				slog.Warn("invalid change notification",
					slog.String("channel", n.Channel),
					slog.String("error", err.Error()),
				)
				continue
			}
			h.Publish(c)
		}
	}
}

// ParsePayload はトリガーが送るJSONペイロードを解析する。
func ParsePayload(payload string) (Change, error) {
	var c Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return Change{}, fmt.Errorf("failed to parse notification payload: %w", err)
	}
	switch c.Op {
	case OpInsert, OpUpdate, OpDelete:
	default:
		return Change{}, fmt.Errorf("unknown change op %q", c.Op)
	}
	if c.ID == "" {
		return Change{}, fmt.Errorf("notification payload without id")
	}
	return c, nil
}

// ListenerConfig はpq.Listenerの設定。
type ListenerConfig struct {
	MinReconnectInterval time.Duration
	MaxReconnectInterval time.Duration
	PingInterval         time.Duration
}

// DefaultListenerConfig は既定のListenerConfigを返す。
func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		MinReconnectInterval: 10 * time.Second,
		MaxReconnectInterval: time.Minute,
		PingInterval:         90 * time.Second,
	}
}

// Listen はdatabaseURLに専用接続を張ってChannelをLISTENし、ctxが終了するまでHubへ配信する。
func (h *Hub) Listen(ctx context.Context, databaseURL string, cfg ListenerConfig) error {
	listener := pq.NewListener(databaseURL, cfg.MinReconnectInterval, cfg.MaxReconnectInterval,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				slog.Warn("change listener event",
					slog.Int("event", int(ev)),
					slog.String("error", err.Error()),
				)
			}
		})
	defer listener.Close()

	if err := listener.Listen(Channel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", Channel, err)
	}
	slog.Info("change listener started", slog.String("channel", Channel))

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Run(ctx, listener.NotificationChannel())
	}()

	ticker := time.NewTicker(cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			<-done
			slog.Info("change listener stopped", slog.String("channel", Channel))
			return nil
		case <-done:
			return fmt.Errorf("change notification channel closed")
		case <-ticker.C:
			if err := listener.Ping(); err != nil {
				slog.Warn("change listener ping failed", slog.String("error", err.Error()))
			}
		}
	}
}
