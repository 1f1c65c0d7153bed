// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/africashands/platform/internal/role"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Session
	SessionSecret    string
	SessionMaxAge    int
	PasswordResetTTL time.Duration

	// Profile / Auth state
	ProfileReadTimeout  time.Duration
	AuthLoadingTimeout  time.Duration
	AuthStateIdleTTL    time.Duration
	DefaultCountry      string
	DefaultOrganization string
	RoleRulesFile       string
	RoleRules           role.Rules

	// OAuth callback
	CallbackRetryAttempts      int
	CallbackRetryDelay         time.Duration
	CallbackSettleDelay        time.Duration
	CallbackErrorRedirectDelay time.Duration
	CallbackSafetyTimeout      time.Duration
	LandingPath                string

	// Storage
	ImageMaxBytes int64

	// Contact
	WhatsAppNumber  string
	WhatsAppMessage string

	// Rate Limit（req/min/user）
	RateLimitGeneral int
	RateLimitApply   int
	RateLimitAuth    int

	// Partner feed import
	ImportTimeout       time.Duration
	ImportMaxSize       int64
	ImportMaxConcurrent int
	ImportInterval      time.Duration
	CleanupInterval     time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envファイル（DOTENV_FILEで変更可能）があれば先に読み込む。
// 既に設定済みの環境変数は.envの値で上書きされない。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := loadDotEnv(getEnvString("DOTENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	if cfg.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}

	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	if cfg.GoogleClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}

	cfg.GoogleRedirectURL = os.Getenv("GOOGLE_REDIRECT_URL")
	if cfg.GoogleRedirectURL == "" {
		missing = append(missing, "GOOGLE_REDIRECT_URL")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.PasswordResetTTL = getEnvDuration("PASSWORD_RESET_TTL", time.Hour)

	cfg.ProfileReadTimeout = getEnvDuration("PROFILE_READ_TIMEOUT", 2*time.Second)
	cfg.AuthLoadingTimeout = getEnvDuration("AUTH_LOADING_TIMEOUT", 3*time.Second)
	cfg.AuthStateIdleTTL = getEnvDuration("AUTH_STATE_IDLE_TTL", 30*time.Minute)
	cfg.DefaultCountry = getEnvString("DEFAULT_COUNTRY", "Angola")
	cfg.DefaultOrganization = getEnvString("DEFAULT_ORGANIZATION", "Africa's Hands")

	cfg.CallbackRetryAttempts = getEnvInt("CALLBACK_RETRY_ATTEMPTS", 5)
	cfg.CallbackRetryDelay = getEnvDuration("CALLBACK_RETRY_DELAY", 2*time.Second)
	cfg.CallbackSettleDelay = getEnvDuration("CALLBACK_SETTLE_DELAY", time.Second)
	cfg.CallbackErrorRedirectDelay = getEnvDuration("CALLBACK_ERROR_REDIRECT_DELAY", 3*time.Second)
	cfg.CallbackSafetyTimeout = getEnvDuration("CALLBACK_SAFETY_TIMEOUT", 15*time.Second)
	cfg.LandingPath = getEnvString("LANDING_PATH", "/dashboard")

	cfg.ImageMaxBytes = getEnvInt64("IMAGE_MAX_BYTES", 5242880)

	cfg.WhatsAppNumber = getEnvString("WHATSAPP_NUMBER", "+244 923 000 000")
	cfg.WhatsAppMessage = getEnvString("WHATSAPP_MESSAGE", "Olá! Gostaria de saber mais sobre o Africa's Hands.")

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitApply = getEnvInt("RATE_LIMIT_APPLY", 10)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 20)

	cfg.ImportTimeout = getEnvDuration("IMPORT_TIMEOUT", 10*time.Second)
	cfg.ImportMaxSize = getEnvInt64("IMPORT_MAX_SIZE", 5242880)
	cfg.ImportMaxConcurrent = getEnvInt("IMPORT_MAX_CONCURRENT", 5)
	cfg.ImportInterval = getEnvDuration("IMPORT_INTERVAL", 15*time.Minute)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)

	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	// ロール判定規則: ファイル指定がなければ組み込みの既定値を使う
	cfg.RoleRulesFile = getEnvString("ROLE_RULES_FILE", "")
	rules, err := LoadRoleRules(cfg.RoleRulesFile)
	if err != nil {
		return nil, err
	}
	cfg.RoleRules = rules

	return cfg, nil
}

// loadDotEnv は.envファイルを読み込む。ファイルが存在しない場合は何もしない。
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
