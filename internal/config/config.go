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
)

// セッション方式
const (
	SessionStrategyJWT      = "jwt"
	SessionStrategyDatabase = "database"
)

// WebAuthnチャレンジの保存先
const (
	ChallengeStorePostgres = "postgres"
	ChallengeStoreRedis    = "redis"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Session
	AuthSecret              string
	SessionStrategy         string
	SessionTTL              time.Duration
	SessionRefreshThreshold time.Duration
	PreAuthTTL              time.Duration
	InviteTTL               time.Duration
	BootstrapInviteTTL      time.Duration

	// Access control
	AdminEmails        []string
	AllowedEmailDomain string
	AdminContactEmail  string

	// WebAuthn
	WebAuthnRPID         string
	WebAuthnRPName       string
	WebAuthnOrigins      []string
	WebAuthnChallengeTTL time.Duration
	ChallengeStore       string
	RedisURL             string

	// Vendor directory
	ServiceMatchMode string

	// Rate Limit (req/min)
	RateLimitGeneral int
	RateLimitPublic  int

	// Notify
	NotifyWebhookURL string
	NotifyTimeout    time.Duration

	// Worker
	CleanupInterval            time.Duration
	AccessRequestRetentionDays int

	// Logging
	LogLevel string

	// Server
	ServerPort  string
	MetricsPort string
	BaseURL     string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// LoadDotEnv はカレントディレクトリの.envファイル（またはpathsで指定したファイル）を
// 環境変数として読み込む。既に設定済みの環境変数は上書きしない。
// ファイルが存在しない場合は何もしない。
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合、または列挙値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.AuthSecret = os.Getenv("AUTH_SECRET")
	if cfg.AuthSecret == "" {
		missing = append(missing, "AUTH_SECRET")
	}

	cfg.BaseURL = strings.TrimRight(os.Getenv("BASE_URL"), "/")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionStrategy = strings.ToLower(getEnvString("SESSION_STRATEGY", SessionStrategyJWT))
	cfg.SessionTTL = getEnvDuration("SESSION_TTL", 30*24*time.Hour)
	cfg.SessionRefreshThreshold = getEnvDuration("SESSION_REFRESH_THRESHOLD", 24*time.Hour)
	cfg.PreAuthTTL = getEnvDuration("PREAUTH_TTL", 10*time.Minute)
	cfg.InviteTTL = getEnvDuration("INVITE_TTL", 24*time.Hour)
	cfg.BootstrapInviteTTL = getEnvDuration("BOOTSTRAP_INVITE_TTL", 20*time.Minute)

	cfg.AdminEmails = getEnvList("ADMIN_EMAILS")
	for i, e := range cfg.AdminEmails {
		cfg.AdminEmails[i] = strings.ToLower(e)
	}
	cfg.AllowedEmailDomain = strings.ToLower(strings.TrimPrefix(getEnvString("ALLOWED_EMAIL_DOMAIN", ""), "@"))
	cfg.AdminContactEmail = getEnvString("ADMIN_CONTACT_EMAIL", "")
	if cfg.AdminContactEmail == "" && len(cfg.AdminEmails) > 0 {
		cfg.AdminContactEmail = cfg.AdminEmails[0]
	}

	cfg.WebAuthnRPID = getEnvString("WEBAUTHN_RP_ID", "localhost")
	cfg.WebAuthnRPName = getEnvString("WEBAUTHN_RP_NAME", "VendorHub")
	cfg.WebAuthnOrigins = getEnvList("WEBAUTHN_ORIGINS")
	if len(cfg.WebAuthnOrigins) == 0 {
		cfg.WebAuthnOrigins = []string{cfg.BaseURL}
	}
	cfg.WebAuthnChallengeTTL = getEnvDuration("WEBAUTHN_CHALLENGE_TTL", 5*time.Minute)
	cfg.ChallengeStore = strings.ToLower(getEnvString("CHALLENGE_STORE", ChallengeStorePostgres))
	cfg.RedisURL = getEnvString("REDIS_URL", "")

	cfg.ServiceMatchMode = strings.ToLower(getEnvString("SERVICE_MATCH_MODE", "any"))

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitPublic = getEnvInt("RATE_LIMIT_PUBLIC", 20)

	cfg.NotifyWebhookURL = getEnvString("NOTIFY_WEBHOOK_URL", "")
	cfg.NotifyTimeout = getEnvDuration("NOTIFY_TIMEOUT", 5*time.Second)

	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", time.Hour)
	cfg.AccessRequestRetentionDays = getEnvInt("ACCESS_REQUEST_RETENTION_DAYS", 90)

	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.MetricsPort = getEnvString("METRICS_PORT", "9090")
	cfg.CookieSecure = getEnvBool("COOKIE_SECURE", true)
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate は列挙値と依存関係のある設定を検証する。
func (c *Config) validate() error {
	switch c.SessionStrategy {
	case SessionStrategyJWT, SessionStrategyDatabase:
	default:
		return fmt.Errorf("invalid SESSION_STRATEGY: %q (allowed: jwt, database)", c.SessionStrategy)
	}

	switch c.ChallengeStore {
	case ChallengeStorePostgres:
	case ChallengeStoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when CHALLENGE_STORE=redis")
		}
	default:
		return fmt.Errorf("invalid CHALLENGE_STORE: %q (allowed: postgres, redis)", c.ChallengeStore)
	}

	switch c.ServiceMatchMode {
	case "any", "all":
	default:
		return fmt.Errorf("invalid SERVICE_MATCH_MODE: %q (allowed: any, all)", c.ServiceMatchMode)
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.SessionRefreshThreshold < 0 || c.SessionRefreshThreshold >= c.SessionTTL {
		return fmt.Errorf("SESSION_REFRESH_THRESHOLD must be between 0 and SESSION_TTL")
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

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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

// getEnvList はカンマ区切りの環境変数を空要素を除いたスライスとして返す。
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
