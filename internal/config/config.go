// Package config は環境変数からのアプリケーション設定読み込みを提供する。
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
	// Prisma（上流名簿サービス）
	PrismaBaseURL string
	PrismaAPIKey  string

	// Google身元検証
	GoogleTokenInfoURL string

	// 認可ポリシー
	AllowedEmailDomain string
	SuperAdminEmail    string

	// セッション
	SessionSecret string
	SessionMaxAge int // 秒

	// Cookie
	CookieName   string
	CookieDomain string
	CookieSecure bool

	// サブドメイン横断SSOゲート
	SSOGateEnabled bool
	SSOCookieName  string

	// ストレージ
	UploadDir string
	DataDir   string

	// 名簿同期
	RosterSyncInterval time.Duration

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitLogin   int

	// Server
	ServerPort string
	BaseURL    string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.PrismaBaseURL = strings.TrimRight(os.Getenv("PRISMA_BASE_URL"), "/")
	if cfg.PrismaBaseURL == "" {
		missing = append(missing, "PRISMA_BASE_URL")
	}

	cfg.PrismaAPIKey = os.Getenv("PRISMA_API_KEY")
	if cfg.PrismaAPIKey == "" {
		missing = append(missing, "PRISMA_API_KEY")
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
	cfg.GoogleTokenInfoURL = getEnvString("GOOGLE_TOKENINFO_URL", "https://oauth2.googleapis.com/tokeninfo")
	cfg.AllowedEmailDomain = getEnvString("ALLOWED_EMAIL_DOMAIN", "colegiolahispanidad.es")
	cfg.SuperAdminEmail = strings.ToLower(getEnvString("SUPER_ADMIN_EMAIL", "direccion@colegiolahispanidad.es"))
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 28800) // 8時間
	cfg.CookieName = getEnvString("SESSION_COOKIE_NAME", "hispa_session")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", ".bibliohispa.es")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.SSOGateEnabled = getEnvBool("SSO_GATE_ENABLED", false)
	cfg.SSOCookieName = getEnvString("SSO_COOKIE_NAME", "hispa_sso")
	cfg.UploadDir = getEnvString("UPLOAD_DIR", "./uploads")
	cfg.DataDir = getEnvString("DATA_DIR", "./data")
	cfg.RosterSyncInterval = getEnvDuration("ROSTER_SYNC_INTERVAL", 15*time.Minute)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "3010")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "https://intranet.bibliohispa.es")

	return cfg, nil
}

// PrismaExportURL は名簿エクスポートエンドポイントのURLを返す。
func (c *Config) PrismaExportURL() string {
	return c.PrismaBaseURL + "/api/export/users"
}

// PrismaExternalCheckURL は管理者PIN認証エンドポイントのURLを返す。
func (c *Config) PrismaExternalCheckURL() string {
	return c.PrismaBaseURL + "/api/auth/external-check"
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
