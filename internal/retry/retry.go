// Package retry は上限付きの再試行コンビネーターを提供する。
// 遅延の計算はcenkalti/backoffに委ね、待機はSleeperを通して行う。
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

var (
	// ErrPermanent は再試行しても回復しない失敗を表す。Permanentで包んで返す。
	ErrPermanent = errors.New("permanent failure")
	// ErrExhausted は試行回数の上限に達したことを表す。
	ErrExhausted = errors.New("retry attempts exhausted")
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() []error {
	return []error{ErrPermanent, e.err}
}

// Permanent はerrを再試行対象外としてマークする。
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Sleeper はdの間待機する。ctxがキャンセルされた場合はctx.Err()を返す。
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext はタイマーを使用する既定のSleeper。
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Policy は再試行の方針。
type Policy struct {
	// MaxAttempts は初回を含む最大試行回数。1未満は1として扱う。
	MaxAttempts int
	// Delay は試行間の待機時間（指数バックオフの場合は初期値）。
	Delay time.Duration
	// Multiplier が1より大きい場合は指数バックオフ、それ以外は固定間隔。
	Multiplier float64
	// MaxDelay は指数バックオフの上限。0の場合は上限なし。
	MaxDelay time.Duration
	// Sleep がnilの場合はSleepContextを使用する。
	Sleep Sleeper
}

// Fixed は固定間隔の方針を返す。
func Fixed(attempts int, delay time.Duration) Policy {
	return Policy{MaxAttempts: attempts, Delay: delay}
}

// Exponential は指数バックオフの方針を返す。
func Exponential(attempts int, initial, max time.Duration, multiplier float64) Policy {
	return Policy{MaxAttempts: attempts, Delay: initial, MaxDelay: max, Multiplier: multiplier}
}

func (p Policy) backOff() backoff.BackOff {
	if p.Multiplier <= 1 {
		return backoff.NewConstantBackOff(p.Delay)
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.Delay
	bo.Multiplier = p.Multiplier
	bo.RandomizationFactor = 0
	if p.MaxDelay > 0 {
		bo.MaxInterval = p.MaxDelay
	} else {
		bo.MaxInterval = time.Duration(1<<63 - 1)
	}
	bo.Reset()
	return bo
}

// Delays は方針から計算される試行間の待機時間の列を返す。
// 長さはMaxAttempts-1。
func (p Policy) Delays() []time.Duration {
	attempts := max(p.MaxAttempts, 1)
	bo := p.backOff()
	delays := make([]time.Duration, 0, attempts-1)
	for i := 1; i < attempts; i++ {
		d := bo.NextBackOff()
		if d == backoff.Stop {
			break
		}
		delays = append(delays, d)
	}
	return delays
}

// Do はopが成功するか、Permanentな失敗を返すか、試行回数が上限に達するか、
// ctxがキャンセルされるまでopを繰り返す。実行した試行回数と最終的なエラーを返す。
// 上限に達した場合のエラーはErrExhaustedと最後のエラーの両方をラップする。
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) (int, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	delays := p.Delays()

	var lastErr error
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return attempt, fmt.Errorf("%w (last error: %w)", err, lastErr)
			}
			return attempt, err
		}

		attempt++
		lastErr = op(ctx)
		if lastErr == nil {
			return attempt, nil
		}
		if errors.Is(lastErr, ErrPermanent) {
			return attempt, lastErr
		}
		if attempt > len(delays) {
			return attempt, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, lastErr)
		}

		if err := sleep(ctx, delays[attempt-1]); err != nil {
			return attempt, fmt.Errorf("%w (last error: %w)", err, lastErr)
		}
	}
}

// DoWithFallback はDoを実行し、最終的に失敗した場合はfallbackを実行する。
// fallbackの戻り値が呼び出し元に返る。
func DoWithFallback(
	ctx context.Context,
	p Policy,
	op func(ctx context.Context) error,
	fallback func(ctx context.Context, err error) error,
) (int, error) {
	attempts, err := Do(ctx, p, op)
	if err == nil {
		return attempts, nil
	}
	return attempts, fallback(ctx, err)
}
