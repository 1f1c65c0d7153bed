package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/africashands/platform/internal/auth"
	"github.com/africashands/platform/internal/authstate"
	"github.com/africashands/platform/internal/callback"
	"github.com/africashands/platform/internal/config"
	"github.com/africashands/platform/internal/database"
	"github.com/africashands/platform/internal/handler"
	"github.com/africashands/platform/internal/logger"
	"github.com/africashands/platform/internal/metrics"
	"github.com/africashands/platform/internal/middleware"
	"github.com/africashands/platform/internal/model"
	"github.com/africashands/platform/internal/opportunity"
	"github.com/africashands/platform/internal/profile"
	"github.com/africashands/platform/internal/realtime"
	"github.com/africashands/platform/internal/repository"
	"github.com/africashands/platform/internal/role"
	"github.com/africashands/platform/internal/security"
	"github.com/africashands/platform/internal/source"
	"github.com/africashands/platform/internal/storage"
	"github.com/africashands/platform/internal/user"
	"github.com/africashands/platform/internal/worker/cleanup"
	"github.com/africashands/platform/internal/worker/importer"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. .envで指定されたログレベルを反映する
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(logger.SetupWithLevel(w, logger.ParseLevel(cfg.LogLevel)))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	if cmd == CommandHelp {
		PrintUsage(w)
		return nil
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーと変更通知リスナーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. DB接続
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	resetRepo := repository.NewPostgresPasswordResetRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)
	oppRepo := repository.NewPostgresOpportunityRepo(db)
	appRepo := repository.NewPostgresApplicationRepo(db)
	imageRepo := repository.NewPostgresImageRepo(db)
	sourceRepo := repository.NewPostgresSourceRepo(db)

	// 3. メトリクスとセキュリティサービスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	ssrfGuard := security.NewSSRFGuard()

	// 4. プロフィール解決と認証
	resolver := profile.NewResolver(
		profileRepo,
		role.NewClassifier(cfg.RoleRules),
		profile.NewDefaults(cfg.DefaultCountry, cfg.DefaultOrganization),
		cfg.ProfileReadTimeout,
		profile.WithRecorder(collector),
	)
	authFeed := authstate.NewFeed()
	tokens := auth.NewTokenIssuer(cfg.SessionSecret, time.Duration(cfg.SessionMaxAge)*time.Second)
	authService := auth.NewService(auth.ServiceDeps{
		OAuth: auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		}),
		Users:      userRepo,
		Identities: identRepo,
		Sessions:   sessionRepo,
		Resets:     resetRepo,
		Profiles:   resolver,
		Events:     authFeed,
		Tokens:     tokens,
		Mailer:     auth.LogMailer{},
		Recorder:   collector,
	}, auth.ServiceConfig{
		SessionMaxAge:    cfg.SessionMaxAge,
		PasswordResetTTL: cfg.PasswordResetTTL,
		BaseURL:          cfg.BaseURL,
	})

	stateCfg := authstate.DefaultRegistryConfig()
	stateCfg.LoadingTimeout = cfg.AuthLoadingTimeout
	stateCfg.IdleTTL = cfg.AuthStateIdleTTL
	authStates := authstate.NewRegistry(ctx, stateCfg, authFeed, authService, resolver)
	defer authStates.Stop()

	// 5. ドメインサービスの初期化
	oppService := opportunity.NewService(oppRepo, appRepo)
	imageService := storage.NewService(imageRepo, oppRepo, cfg.ImageMaxBytes)
	userService := user.NewService(userRepo, sessionRepo, profileRepo, model.Profile{
		Country:      cfg.DefaultCountry,
		Organization: cfg.DefaultOrganization,
		Verified:     true,
		Preferences:  profile.DefaultPreferences(),
	})
	sourceService := source.NewService(sourceRepo, source.NewDetector(ssrfGuard))
	hub := realtime.NewHub()

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitApply, cfg.RateLimitAuth),
	)
	defer rateLimiter.Stop()

	callbackCfg := callback.DefaultConfig()
	callbackCfg.RetryAttempts = cfg.CallbackRetryAttempts
	callbackCfg.RetryDelay = cfg.CallbackRetryDelay
	callbackCfg.SettleDelay = cfg.CallbackSettleDelay
	callbackCfg.ErrorRedirectDelay = cfg.CallbackErrorRedirectDelay
	callbackCfg.SafetyTimeout = cfg.CallbackSafetyTimeout
	callbackCfg.LandingPath = cfg.LandingPath

	router := handler.NewRouter(&handler.RouterDeps{
		HealthChecker: db,
		Session: middleware.SessionConfig{
			Sessions: sessionRepo,
			Roles:    handler.NewProfileRoleFinder(profileRepo),
			Tokens:   tokens,
		},
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		Metrics:           metrics.Handler(registry),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:     cfg.CookieDomain,
			CookieSecure:     cfg.CookieSecure,
			SessionMaxAge:    cfg.SessionMaxAge,
			Callback:         callbackCfg,
			CallbackState:    authStates,
			CallbackRecorder: collector,
		},
		AuthStates: authStates,

		Profiles: profileRepo,

		OpportunityService: oppService,
		ApplicationService: oppService,
		Images:             imageService,
		ImageOpener:        imageService,
		Changes:            hub,

		UserService:   userService,
		SourceService: sourceService,

		WhatsAppNumber:  cfg.WhatsAppNumber,
		WhatsAppMessage: cfg.WhatsAppMessage,
	})

	// 7. HTTPサーバーと変更通知リスナーの起動
	// SSEはハンドラー側で書き込み期限を解除する
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		defer hub.Close()
		return hub.Listen(gctx, cfg.DatabaseURL, realtime.DefaultListenerConfig())
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 提携団体フィードの取り込みスケジューラと日次メンテナンスを実行し、
// ヘルスチェックとメトリクスのみを公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. DB接続
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	sourceRepo := repository.NewPostgresSourceRepo(db)
	oppRepo := repository.NewPostgresOpportunityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	resetRepo := repository.NewPostgresPasswordResetRepo(db)

	// 3. メトリクスとセキュリティサービスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewDescriptionSanitizer()

	// 4. 取り込みの初期化
	upserter := importer.NewUpserter(oppRepo, sanitizer)
	fetcher := importer.NewFetcher(
		sourceRepo, upserter, ssrfGuard, collector,
		slog.Default(), cfg.ImportTimeout, cfg.ImportMaxSize,
	)
	scheduler := importer.NewScheduler(sourceRepo, fetcher, slog.Default(), cfg.ImportMaxConcurrent)

	// 5. メンテナンスジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(sessionRepo, resetRepo, oppRepo, slog.Default())

	// 6. ヘルスチェックとメトリクスのサーバー
	mux := chi.NewRouter()
	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Ping(r.Context(), db, 2*time.Second); err != nil {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", metrics.Handler(registry))
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("worker starting",
		slog.Duration("import_interval", cfg.ImportInterval),
		slog.Int("max_concurrent", cfg.ImportMaxConcurrent),
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		scheduler.Start(gctx, cfg.ImportInterval)
		return nil
	})
	g.Go(func() error {
		cleanupJob.StartDaily(gctx, cfg.CleanupInterval)
		return nil
	})
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("worker server listen error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down worker...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(ctx, db, 5*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
