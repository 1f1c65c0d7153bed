// Package callback はOAuthプロバイダーからのリダイレクト後の着地処理を提供する。
//
// 処理は processing から success または error のいずれかに必ず遷移し、
// 安全タイムアウトを超えて留まることはない。
package callback

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"time"

	"github.com/africashands/platform/internal/authstate"
	"github.com/africashands/platform/internal/metrics"
	"github.com/africashands/platform/internal/retry"
)

// Status はコールバック処理の状態。
type Status string

const (
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// 到達経路。メトリクスとログのラベルに使う。
const (
	PathTransient          = "transient"
	PathTransientExhausted = "transient_exhausted"
	PathProviderError      = "provider_error"
	PathState              = "state"
	PathDirect             = "direct"
	PathNoSession          = "no_session"
	PathTimeout            = "timeout"
)

// transientPattern はプロフィール作成トリガーの競合で発生する既知のエラー文言。
var transientPattern = regexp.MustCompile(`(?i)database error saving new user|error creating profile|duplicate key`)

var errNoSession = errors.New("session not established yet")

// IsTransient はプロバイダーのエラー文言が既知の一時的な競合かどうかを返す。
func IsTransient(description string) bool {
	return transientPattern.MatchString(description)
}

// SessionChecker はセッションが確立済みかを直接確認する。
type SessionChecker interface {
	HasSession(ctx context.Context, sessionID string) (bool, error)
}

// StateWaiter はセッションの認証状態が確定するまで待つ。
type StateWaiter interface {
	WaitSettled(ctx context.Context, sessionID string) authstate.State
}

// Config はコールバック処理のタイミング設定。
type Config struct {
	RetryAttempts      int
	RetryDelay         time.Duration
	SettleDelay        time.Duration
	ErrorRedirectDelay time.Duration
	SafetyTimeout      time.Duration
	LandingPath        string
	HomePath           string
}

// DefaultConfig はデフォルト設定を返す。
func DefaultConfig() Config {
	return Config{
		RetryAttempts:      5,
		RetryDelay:         2 * time.Second,
		SettleDelay:        time.Second,
		ErrorRedirectDelay: 3 * time.Second,
		SafetyTimeout:      15 * time.Second,
		LandingPath:        "/dashboard",
		HomePath:           "/",
	}
}

// Input はプロバイダーから受け取ったクエリとセッションID。
type Input struct {
	Error            string
	ErrorDescription string
	SessionID        string
}

// HasError はプロバイダーがエラーを返したかどうかを返す。
func (in Input) HasError() bool {
	return in.Error != "" || in.ErrorDescription != ""
}

// Outcome は終端状態と遷移先。RedirectAfterが0なら即時遷移する。
type Outcome struct {
	Status        Status
	Path          string
	Redirect      string
	RedirectAfter time.Duration
	Reason        string
	Attempts      int
}

// Processor はコールバックの状態機械を実行する。
type Processor struct {
	config   Config
	sessions SessionChecker
	state    StateWaiter
	recorder metrics.CallbackRecorder
	sleep    retry.Sleeper
}

// Option はProcessorのオプション。
type Option func(*Processor)

// WithRecorder はメトリクス記録先を設定する。
func WithRecorder(rec metrics.CallbackRecorder) Option {
	return func(p *Processor) { p.recorder = rec }
}

// WithSleeper は待機処理を差し替える。
func WithSleeper(sleep retry.Sleeper) Option {
	return func(p *Processor) { p.sleep = sleep }
}

// NewProcessor はProcessorを生成する。
func NewProcessor(config Config, sessions SessionChecker, state StateWaiter, opts ...Option) *Processor {
	if config.HomePath == "" {
		config.HomePath = "/"
	}
	if config.LandingPath == "" {
		config.LandingPath = config.HomePath
	}
	p := &Processor{
		config:   config,
		sessions: sessions,
		state:    state,
		recorder: metrics.Nop{},
		sleep:    retry.SleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run はコールバックを処理し、終端状態を返す。
// 依存先が応答しない場合でもSafetyTimeout以内に必ずerrorで戻る。
func (p *Processor) Run(ctx context.Context, in Input) Outcome {
	ctx, cancel := context.WithTimeout(ctx, p.config.SafetyTimeout)
	defer cancel()

	resultCh := make(chan Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in oauth callback processing", slog.Any("panic", r))
				resultCh <- p.failure(PathProviderError, "internal error")
			}
		}()
		resultCh <- p.process(ctx, in)
	}()

	var out Outcome
	select {
	case out = <-resultCh:
	case <-ctx.Done():
		out = p.failure(PathTimeout, "callback processing timed out")
	}

	p.recorder.RecordCallbackOutcome(string(out.Status), out.Path)
	attrs := []any{
		slog.String("status", string(out.Status)),
		slog.String("path", out.Path),
		slog.Int("attempts", out.Attempts),
	}
	if out.Status == StatusError || out.Path == PathTransientExhausted {
		slog.Warn("oauth callback finished", append(attrs, slog.String("event", "callback_degraded"), slog.String("reason", out.Reason))...)
	} else {
		slog.Info("oauth callback finished", attrs...)
	}
	return out
}

func (p *Processor) process(ctx context.Context, in Input) Outcome {
	if in.HasError() {
		if IsTransient(in.ErrorDescription) || IsTransient(in.Error) {
			return p.retrySession(ctx, in.SessionID)
		}
		reason := in.ErrorDescription
		if reason == "" {
			reason = in.Error
		}
		return p.failure(PathProviderError, reason)
	}

	if err := p.sleep(ctx, p.config.SettleDelay); err != nil {
		return p.failure(PathTimeout, err.Error())
	}

	if in.SessionID != "" && p.state != nil {
		if s := p.state.WaitSettled(ctx, in.SessionID); s.Authenticated() {
			return p.success(PathState, 0)
		}
	}

	// 状態がまだ未認証なら1回だけ直接確認する
	ok, err := p.checkSession(ctx, in.SessionID)
	if err != nil {
		return p.failure(PathNoSession, err.Error())
	}
	if !ok {
		return p.failure(PathNoSession, errNoSession.Error())
	}
	return p.success(PathDirect, 1)
}

// retrySession はトリガー競合の後、セッションが確立されるまで一定間隔で再確認する。
// 上限に達した場合も致命的とはせずホームへ遷移する。
func (p *Processor) retrySession(ctx context.Context, sessionID string) Outcome {
	policy := retry.Fixed(p.config.RetryAttempts, p.config.RetryDelay)
	policy.Sleep = p.sleep

	var exhausted error
	attempts, err := retry.DoWithFallback(ctx, policy, func(ctx context.Context) error {
		ok, err := p.checkSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if !ok {
			return errNoSession
		}
		return nil
	}, func(ctx context.Context, err error) error {
		// 安全タイムアウトによる中断だけを失敗として扱う
		if ctx.Err() != nil {
			return err
		}
		exhausted = err
		return nil
	})
	if err != nil {
		out := p.failure(PathTimeout, err.Error())
		out.Attempts = attempts
		return out
	}
	if exhausted == nil {
		return p.success(PathTransient, attempts)
	}

	return Outcome{
		Status:   StatusSuccess,
		Path:     PathTransientExhausted,
		Redirect: p.config.HomePath,
		Reason:   exhausted.Error(),
		Attempts: attempts,
	}
}

// checkSession は空のセッションIDも含めて判定をSessionCheckerに委ねる。
// 認可コード交換の再試行のように、IDが確定する前に確認する呼び出し元がある。
func (p *Processor) checkSession(ctx context.Context, sessionID string) (bool, error) {
	return p.sessions.HasSession(ctx, sessionID)
}

func (p *Processor) success(path string, attempts int) Outcome {
	return Outcome{
		Status:   StatusSuccess,
		Path:     path,
		Redirect: p.config.LandingPath,
		Attempts: attempts,
	}
}

func (p *Processor) failure(path, reason string) Outcome {
	return Outcome{
		Status:        StatusError,
		Path:          path,
		Redirect:      p.config.HomePath,
		RedirectAfter: p.config.ErrorRedirectDelay,
		Reason:        reason,
	}
}
