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
	// Database（未設定の場合はインメモリストアで動作する）
	DatabaseURL string

	// Ledger
	LedgerRPCURL              string
	LedgerContractAddress     string
	LedgerArtifactPath        string
	LedgerNetworkID           string
	LedgerCallTimeout         time.Duration
	LedgerGasLimit            int64
	LedgerReceiptPollInterval time.Duration
	IdentityPoolOffset        int

	// Upload
	UploadDir     string
	UploadMaxSize int64

	// Session
	SessionMaxAge          int
	SessionCleanupInterval time.Duration
	LoginPath              string

	// Rate Limit
	RateLimitGeneral int
	RateLimitAuth    int

	// Admin
	AdminAPIKey string

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
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.LedgerRPCURL = os.Getenv("LEDGER_RPC_URL")
	if cfg.LedgerRPCURL == "" {
		missing = append(missing, "LEDGER_RPC_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DatabaseURL = getEnvString("DATABASE_URL", "")
	cfg.LedgerContractAddress = getEnvString("LEDGER_CONTRACT_ADDRESS", "")
	cfg.LedgerArtifactPath = getEnvString("LEDGER_ARTIFACT_PATH", "build/contracts/OnlineVoting.json")
	cfg.LedgerNetworkID = getEnvString("LEDGER_NETWORK_ID", "1337")
	cfg.LedgerCallTimeout = getEnvDuration("LEDGER_CALL_TIMEOUT", 15*time.Second)
	cfg.LedgerGasLimit = getEnvPositiveInt64("LEDGER_GAS_LIMIT", 3000000)
	cfg.LedgerReceiptPollInterval = getEnvDuration("LEDGER_RECEIPT_POLL_INTERVAL", 250*time.Millisecond)
	cfg.IdentityPoolOffset = getEnvInt("IDENTITY_POOL_OFFSET", 1)
	cfg.UploadDir = getEnvString("UPLOAD_DIR", "uploads")
	cfg.UploadMaxSize = getEnvPositiveInt64("UPLOAD_MAX_SIZE", 10485760)
	cfg.SessionMaxAge = getEnvPositiveInt("SESSION_MAX_AGE", 86400)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour)
	cfg.LoginPath = getEnvString("LOGIN_PATH", "/user/auth")
	cfg.RateLimitGeneral = getEnvPositiveInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAuth = getEnvPositiveInt("RATE_LIMIT_AUTH", 10)
	cfg.AdminAPIKey = getEnvString("ADMIN_API_KEY", "")
	cfg.ServerPort = getEnvString("SERVER_PORT", "3000")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "")

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

// getEnvPositiveInt は0以下の値をデフォルト値に置き換える。
func getEnvPositiveInt(key string, defaultVal int) int {
	if i := getEnvInt(key, defaultVal); i > 0 {
		return i
	}
	return defaultVal
}

func getEnvPositiveInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil || i <= 0 {
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
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
