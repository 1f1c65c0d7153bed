package auth

import (
	"context"
	"log/slog"
)

// Mailer はパスワード再設定リンクを送信する。
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, link string) error
}

// LogMailer は送信せずにログへ出力するMailer。
// メール配信基盤を接続するまでの既定実装。
type LogMailer struct{}

// SendPasswordReset は再設定リンクの発行をログに記録する。
// リンク本体はトークンを含むためDEBUGレベルでのみ出力する。
func (LogMailer) SendPasswordReset(ctx context.Context, email, link string) error {
	slog.Info("password reset link issued", slog.String("email", email))
	slog.Debug("password reset link", slog.String("link", link))
	return nil
}
