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
	DatabaseURL    string
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Identity
	FirebaseProjectID string

	// Google OAuth / Calendar
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	OAuthStateSecret   string
	OAuthStateTTL      time.Duration
	CalendarTimeout    time.Duration

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral int
	RateLimitWrite   int

	// Notification
	RedisURL          string
	NotifyQueue       string
	NotifyMaxRetry    int
	NotifyTimeout     time.Duration
	NotifyConcurrency int

	// Cleanup（ワーカーの定期削除ジョブ。保持日数0で無効）
	CleanupSchedule      string
	CleanupRetentionDays int

	// Email
	EmailEnabled       bool
	EmailFrom          string
	SMTPHost           string
	SMTPPort           int
	SMTPUsername       string
	SMTPPassword       string
	EmailRatePerMinute int

	// Slots
	SlotHorizonDays int
	SlotTimezone    string

	// Logging
	LogLevel string

	// Server
	ServerPort  string
	MetricsPort string
	BaseURL     string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
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
	cfg.BaseURL = required("BASE_URL")
	cfg.FirebaseProjectID = required("FIREBASE_PROJECT_ID")
	cfg.GoogleClientID = required("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = required("GOOGLE_CLIENT_SECRET")
	cfg.GoogleRedirectURL = required("GOOGLE_REDIRECT_URL")
	cfg.OAuthStateSecret = required("OAUTH_STATE_SECRET")

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 5)
	cfg.OAuthStateTTL = getEnvDuration("OAUTH_STATE_TTL", 10*time.Minute)
	cfg.CalendarTimeout = getEnvDuration("CALENDAR_TIMEOUT", 10*time.Second)
	// レート制限は任意。両方0なら無効
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 0)
	cfg.RateLimitWrite = getEnvInt("RATE_LIMIT_WRITE", 0)
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.NotifyQueue = getEnvString("NOTIFY_QUEUE", "notifications")
	cfg.NotifyMaxRetry = getEnvInt("NOTIFY_MAX_RETRY", 5)
	cfg.NotifyTimeout = getEnvDuration("NOTIFY_TIMEOUT", 30*time.Second)
	cfg.NotifyConcurrency = getEnvInt("NOTIFY_CONCURRENCY", 10)
	cfg.CleanupSchedule = getEnvString("CLEANUP_SCHEDULE", "@daily")
	cfg.CleanupRetentionDays = getEnvInt("CLEANUP_RETENTION_DAYS", 0)
	cfg.EmailEnabled = getEnvBool("EMAIL_ENABLED", true)
	cfg.EmailFrom = getEnvString("EMAIL_FROM", "noreply@schedly.local")
	cfg.SMTPHost = getEnvString("SMTP_HOST", "localhost")
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.SMTPUsername = getEnvString("SMTP_USERNAME", "")
	cfg.SMTPPassword = getEnvString("SMTP_PASSWORD", "")
	cfg.EmailRatePerMinute = getEnvInt("EMAIL_RATE_PER_MINUTE", 60)
	cfg.SlotHorizonDays = getEnvInt("SLOT_HORIZON_DAYS", 30)
	cfg.SlotTimezone = getEnvString("SLOT_TIMEZONE", "")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.MetricsPort = getEnvString("METRICS_PORT", "9090")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", strings.TrimRight(cfg.BaseURL, "/"))

	return cfg, nil
}

// SlotLocation は予約可能枠の生成に使うタイムゾーンを返す。
// SLOT_TIMEZONEが未設定の場合はサーバーのローカルタイムゾーンを使う。
func (c *Config) SlotLocation() (*time.Location, error) {
	if c.SlotTimezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.SlotTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid SLOT_TIMEZONE %q: %w", c.SlotTimezone, err)
	}
	return loc, nil
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
