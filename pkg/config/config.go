package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the gateway.
type Config struct {
	Port string

	// IG session
	APIKey     string
	Identifier string
	Password   string
	AccountID  string
	Demo       bool

	// Streaming endpoint override (normally taken from the login response).
	StreamEndpoint string

	// Symbol mapping file (optional)
	SymbolMapPath string

	// Rate limits (requests per minute)
	TradingRatePerMinute    int
	NonTradingRatePerMinute int

	// Order confirmation poll delay after a synchronous accept.
	ConfirmDelay time.Duration

	// Reconnection monitor
	MonitorInterval time.Duration
	ReconnectBase   time.Duration
	ReconnectMax    time.Duration

	// Database
	DBPath string

	// Ops API
	JWTSecret       string
	OpsPasswordHash string // bcrypt hash of the operator password
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	cfg := &Config{
		Port:                    getEnv("PORT", "8080"),
		APIKey:                  os.Getenv("IG_API_KEY"),
		Identifier:              os.Getenv("IG_IDENTIFIER"),
		Password:                os.Getenv("IG_PASSWORD"),
		AccountID:               os.Getenv("IG_ACCOUNT_ID"),
		Demo:                    getEnv("IG_DEMO", "true") == "true",
		StreamEndpoint:          os.Getenv("IG_STREAM_ENDPOINT"),
		SymbolMapPath:           getEnv("SYMBOL_MAP_PATH", ""),
		TradingRatePerMinute:    getEnvInt("TRADING_RATE_PER_MINUTE", 40),
		NonTradingRatePerMinute: getEnvInt("NON_TRADING_RATE_PER_MINUTE", 60),
		ConfirmDelay:            getEnvDuration("CONFIRM_DELAY", 1500*time.Millisecond),
		MonitorInterval:         getEnvDuration("MONITOR_INTERVAL", 5*time.Second),
		ReconnectBase:           getEnvDuration("RECONNECT_BASE_DELAY", 5*time.Second),
		ReconnectMax:            getEnvDuration("RECONNECT_MAX_DELAY", 60*time.Second),
		DBPath:                  getEnv("DB_PATH", "./data/gateway.db"),
		JWTSecret:               getEnv("JWT_SECRET", "dev-secret"),
		OpsPasswordHash:         os.Getenv("OPS_PASSWORD_HASH"),
	}

	if cfg.APIKey == "" || cfg.Identifier == "" || cfg.Password == "" {
		return nil, errors.New("config: IG_API_KEY, IG_IDENTIFIER and IG_PASSWORD are required")
	}
	if cfg.AccountID == "" {
		return nil, errors.New("config: IG_ACCOUNT_ID is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
