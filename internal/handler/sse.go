package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// sseKeepAlive はコメント行を送る間隔。プロキシによる切断を防ぐ。
const sseKeepAlive = 25 * time.Second

// sseStream はServer-Sent Eventsの書き込み先。
type sseStream struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// startSSE はSSE用のヘッダーを書き込んでストリームを開始する。
func startSSE(w http.ResponseWriter) *sseStream {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s := &sseStream{w: w, rc: http.NewResponseController(w)}
	// 書き込みタイムアウトはストリームには適用しない
	_ = s.rc.SetWriteDeadline(time.Time{})
	_ = s.rc.Flush()
	return s
}

// send はイベントを1件送信する。
func (s *sseStream) send(event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return s.rc.Flush()
}

// ping はキープアライブのコメント行を送信する。
func (s *sseStream) ping() error {
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return err
	}
	return s.rc.Flush()
}
