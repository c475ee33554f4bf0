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
	// Database
	DatabaseURL    string
	MigrateOnStart bool

	// Token (有効期間は token.ValidityWindow で固定)
	JWTSecret string

	// OAuth
	GoogleClientID      string
	GoogleClientSecret  string
	GoogleRedirectURL   string
	GoogleAuthURL       string
	GoogleTokenURL      string
	GoogleUserInfoURL   string
	OAuthTimeout        time.Duration
	OAuthStateTTL       time.Duration
	OAuthUsernamePolicy string

	// User
	PasswordMinLength int

	// Rate Limit (req/min/IP)
	LoginRateLimit int

	// Server
	ServerPort     string
	MetricsEnabled bool

	// Logging
	LogLevel string

	// CORS（カンマ区切りで複数指定可）
	CORSAllowedOrigin string
	// HSTSEnabled はTLS終端の背後で運用する場合にtrueにする
	HSTSEnabled bool
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は、未設定の変数名をすべて含むエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string
	required := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg.DatabaseURL = required("DATABASE_URL")
	cfg.JWTSecret = required("JWT_SECRET")
	cfg.GoogleClientID = required("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = required("GOOGLE_CLIENT_SECRET")
	cfg.GoogleRedirectURL = required("GOOGLE_REDIRECT_URL")

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.MigrateOnStart = getEnvBool("MIGRATE_ON_START", false)
	cfg.GoogleAuthURL = getEnvString("GOOGLE_AUTH_URL", "https://accounts.google.com/o/oauth2/v2/auth")
	cfg.GoogleTokenURL = getEnvString("GOOGLE_TOKEN_URL", "https://oauth2.googleapis.com/token")
	cfg.GoogleUserInfoURL = getEnvString("GOOGLE_USERINFO_URL", "https://www.googleapis.com/oauth2/v2/userinfo")
	cfg.OAuthTimeout = getEnvDuration("OAUTH_TIMEOUT", 10*time.Second)
	cfg.OAuthStateTTL = getEnvDuration("OAUTH_STATE_TTL", 10*time.Minute)
	cfg.OAuthUsernamePolicy = getEnvString("OAUTH_USERNAME_POLICY", "email_local_part")
	cfg.PasswordMinLength = getEnvInt("PASSWORD_MIN_LENGTH", 8)
	cfg.LoginRateLimit = getEnvInt("LOGIN_RATE_LIMIT", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "3000")
	cfg.MetricsEnabled = getEnvBool("METRICS_ENABLED", true)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:5173")
	cfg.HSTSEnabled = getEnvBool("HSTS_ENABLED", false)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

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
	if err != nil || i <= 0 {
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
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
