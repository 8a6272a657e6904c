// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Identity Provider
	IdpIssuerURL string
	IdpClientID  string

	// Session
	SessionSecret     string
	SessionCookieName string
	SessionMaxAge     int // セッションCookieの有効期間（秒）

	// Payment Gateway
	RazorpayKeyID     string
	RazorpayKeySecret string
	GatewayTimeout    time.Duration

	// Assistant
	AssistantBaseURL string
	AssistantTimeout time.Duration

	// SMTP（未設定の場合は確認メールをスキップする）
	SMTPHost     string
	SMTPPort     int
	SMTPAccount  string
	SMTPPassword string
	SMTPSender   string

	// Rate Limit（req/min/user）
	RateLimitGeneral int
	RateLimitLogin   int

	// Server
	ServerPort string

	// Cookie
	CookieDomain string

	// CORS
	CORSAllowedOrigin string

	// Logging
	LogLevel string
}

// DefaultSessionMaxAge はセッションの既定有効期間（5日）を秒で表す。
const DefaultSessionMaxAge = 5 * 24 * 60 * 60

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

	cfg.IdpIssuerURL = os.Getenv("IDP_ISSUER_URL")
	if cfg.IdpIssuerURL == "" {
		missing = append(missing, "IDP_ISSUER_URL")
	}

	cfg.IdpClientID = os.Getenv("IDP_CLIENT_ID")
	if cfg.IdpClientID == "" {
		missing = append(missing, "IDP_CLIENT_ID")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.RazorpayKeyID = os.Getenv("RAZORPAY_KEY_ID")
	if cfg.RazorpayKeyID == "" {
		missing = append(missing, "RAZORPAY_KEY_ID")
	}

	cfg.RazorpayKeySecret = os.Getenv("RAZORPAY_KEY_SECRET")
	if cfg.RazorpayKeySecret == "" {
		missing = append(missing, "RAZORPAY_KEY_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionCookieName = getEnvString("SESSION_COOKIE_NAME", "session")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", DefaultSessionMaxAge)
	cfg.GatewayTimeout = getEnvDuration("GATEWAY_TIMEOUT", 10*time.Second)
	cfg.AssistantBaseURL = getEnvString("ASSISTANT_BASE_URL", "")
	cfg.AssistantTimeout = getEnvDuration("ASSISTANT_TIMEOUT", 15*time.Second)
	cfg.SMTPHost = getEnvString("SMTP_HOST", "smtp.gmail.com")
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.SMTPAccount = getEnvString("SMTP_ACCOUNT", "")
	cfg.SMTPPassword = getEnvString("SMTP_PASSWORD", "")
	cfg.SMTPSender = getEnvString("SMTP_SENDER", cfg.SMTPAccount)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

// EmailEnabled は確認メール送信に必要なSMTP資格情報が揃っているかを返す。
func (c *Config) EmailEnabled() bool {
	return c.SMTPAccount != "" && c.SMTPPassword != ""
}

// CookieSecure はセッションCookieにSecure属性を付けるかを返す。
// SameSite=Noneのクロスサイト送信にはSecureが必須のため、
// 明示的に無効化されない限り常に有効とする。
func (c *Config) CookieSecure() bool {
	return !strings.EqualFold(os.Getenv("COOKIE_INSECURE"), "true")
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
