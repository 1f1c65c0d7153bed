package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/africashands/platform/internal/locale"
	"github.com/africashands/platform/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	Session           middleware.SessionConfig
	CSRF              middleware.CSRFConfig
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Metrics           http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig
	AuthStates  AuthStateSource

	// プロフィール
	Profiles ProfileStore

	// 機会・応募
	OpportunityService OpportunityServiceInterface
	ApplicationService ApplicationServiceInterface
	Images             ImageUploader
	ImageOpener        ImageOpener
	Changes            ChangeSubscriber

	// 管理
	UserService   UserServiceInterface
	SourceService SourceServiceInterface

	// 連絡先
	WhatsAppNumber  string
	WhatsAppMessage string
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Locale → CSRF
//	  → (認証ルート) RateLimit(General) → (資格情報ルート) RateLimit(Auth)
//	  → (保護ルート) Session → RateLimit(General) → (管理ルート) RequireAdmin
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware(middleware.SecurityHeadersConfig{HSTS: deps.CSRF.CookieSecure}))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(locale.Middleware)
	r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	stateHandler := NewAuthStateHandler(deps.AuthStates)
	profileHandler := NewProfileHandler(deps.Profiles, deps.AuthService)
	oppHandler := NewOpportunityHandler(deps.OpportunityService, deps.Images, deps.Changes)
	appHandler := NewApplicationHandler(deps.ApplicationService)
	userHandler := NewUserHandler(deps.UserService)
	sourceHandler := NewSourceHandler(deps.SourceService)
	storageHandler := NewStorageHandler(deps.ImageOpener)
	contactHandler := NewContactHandler(deps.WhatsAppNumber, deps.WhatsAppMessage)

	// --- 認証不要のルート ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}
	r.Handle("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

	// 認証ルートはすべてクライアントIPごとに制限する。
	// 資格情報を受け取るルートには、より厳しい認証用の制限を追加する。
	r.Route("/auth", func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.AuthMiddleware())

			// OAuthフロー
			r.Get("/google/login", authHandler.Login)
			r.Get("/callback", authHandler.Callback)

			// メールアドレス認証
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.PasswordLogin)
			r.Post("/password/reset", authHandler.RequestPasswordReset)
			r.Post("/password/reset/confirm", authHandler.ConfirmPasswordReset)
		})

		r.Get("/callback/result", authHandler.CallbackResult)

		// セッション管理
		r.Post("/logout", authHandler.Logout)
		r.Post("/refresh", authHandler.Refresh)
		r.Get("/me", authHandler.Me)

		// 認証状態
		r.Get("/state", stateHandler.Get)
		r.Get("/state/stream", stateHandler.Stream)
	})

	r.Get("/storage/opportunity-images/{id}", storageHandler.Serve)
	r.Get("/api/contact/whatsapp", contactHandler.WhatsApp)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.Session))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/profile", profileHandler.GetMe)
		r.Patch("/api/profile", profileHandler.UpdateMe)
		r.Delete("/api/users/me", userHandler.Withdraw)

		r.Route("/api/opportunities", func(r chi.Router) {
			r.Get("/", oppHandler.List)
			r.Get("/stream", oppHandler.Stream)
			r.With(middleware.RequireAdmin).Post("/", oppHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", oppHandler.Get)
				// POST /api/opportunities/{id}/apply - 応募（応募専用レート制限を追加）
				r.With(deps.RateLimiter.ApplyMiddleware()).Post("/apply", appHandler.Apply)

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireAdmin)
					r.Put("/", oppHandler.Update)
					r.Delete("/", oppHandler.Delete)
					r.Post("/image", oppHandler.UploadImage)
					r.Get("/applications", appHandler.ListForOpportunity)
				})
			})
		})

		r.Get("/api/applications/mine", appHandler.ListMine)
		r.With(middleware.RequireAdmin).Put("/api/applications/{id}/status", appHandler.UpdateStatus)

		// 管理
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Get("/users", userHandler.List)
			r.Post("/users", userHandler.Create)
			r.Put("/users/{id}/role", userHandler.SetRole)
			r.Get("/sources", sourceHandler.List)
			r.Post("/sources", sourceHandler.Register)
		})
	})

	return r
}
