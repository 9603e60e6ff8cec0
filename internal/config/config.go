package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database（コントロールプレーン: tenantsテーブルを保持するDB）
	DatabaseURL string

	// Auth
	JWTSecret          string
	TokenTTL           time.Duration
	TokenIssuerEnabled bool

	// Tenant routing
	DefaultSubdomain      string
	StagingHostSuffix     string
	DefaultTenantFallback bool

	// Tenant DB pool
	TenantMaxOpenConns int
	TenantIdleTimeout  time.Duration

	// Rate Limit（req/min単位）
	RateLimitGeneral int
	RateLimitAdmin   int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", 1*time.Hour)
	cfg.TokenIssuerEnabled = getEnvBool("TOKEN_ISSUER_ENABLED", false)
	cfg.DefaultSubdomain = getEnvString("DEFAULT_SUBDOMAIN", "default")
	cfg.StagingHostSuffix = getEnvString("STAGING_HOST_SUFFIX", "")
	cfg.DefaultTenantFallback = getEnvBool("DEFAULT_TENANT_FALLBACK", true)
	cfg.TenantMaxOpenConns = getEnvInt("TENANT_DB_MAX_OPEN_CONNS", 10)
	cfg.TenantIdleTimeout = getEnvDuration("TENANT_DB_IDLE_TIMEOUT", 30*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAdmin = getEnvInt("RATE_LIMIT_ADMIN", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
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
