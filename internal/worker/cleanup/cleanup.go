// Package cleanup は日次のメンテナンスジョブを提供する。
// 期限切れセッションと使用済み・期限切れのリセットトークンを削除し、
// 締切を過ぎた公開中の機会を締切済みにする。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ExpiredDeleter は期限切れの行を削除して件数を返す。
// SessionRepositoryとPasswordResetRepositoryが満たす。
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// OpportunityCloser は締切を過ぎた機会を締切済みにする。
type OpportunityCloser interface {
	CloseExpired(ctx context.Context, now time.Time) (int64, error)
}

// step は1つのメンテナンス処理。
type step struct {
	name string
	run  func(ctx context.Context) (int64, error)
}

// CleanupJob は日次のメンテナンスジョブ。
// 各処理は冪等で、1つが失敗しても残りは実行する。
type CleanupJob struct {
	steps  []step
	logger *slog.Logger
	now    func() time.Time
}

// NewCleanupJob はCleanupJobを生成する。
func NewCleanupJob(sessions, resets ExpiredDeleter, opportunities OpportunityCloser, logger *slog.Logger) *CleanupJob {
	j := &CleanupJob{logger: logger, now: time.Now}
	j.steps = []step{
		{name: "expired_sessions", run: sessions.DeleteExpired},
		{name: "password_resets", run: resets.DeleteExpired},
		{name: "closed_opportunities", run: func(ctx context.Context) (int64, error) {
			return opportunities.CloseExpired(ctx, j.now())
		}},
	}
	return j
}

// Run は全ての処理を順に実行する。失敗した処理のエラーをまとめて返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	var errs []error

	for _, s := range j.steps {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		n, err := s.run(ctx)
		if err != nil {
			j.logger.Error("maintenance step failed",
				slog.String("step", s.name),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		j.logger.Info("maintenance step finished",
			slog.String("step", s.name),
			slog.Int64("affected", n),
		)
	}

	j.logger.Info("maintenance job finished",
		slog.Int("failed_steps", len(errs)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return errors.Join(errs...)
}

// StartDaily は起動直後とinterval毎にRunを実行する。ctxがキャンセルされるまで戻らない。
func (j *CleanupJob) StartDaily(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := j.Run(ctx); err != nil && ctx.Err() == nil {
			j.logger.Warn("maintenance job incomplete", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
