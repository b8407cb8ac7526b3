package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Placeholder credential values. The relay boots without real credentials so
// /status and /health stay reachable; /status reports api_key_configured=false.
const (
	PlaceholderAPIKey     = "YOUR_ANGEL_ONE_API_KEY"
	PlaceholderClientCode = "YOUR_ANGEL_ONE_CLIENT_CODE"
	PlaceholderPassword   = "YOUR_ANGEL_ONE_PASSWORD"
	PlaceholderTOTPSecret = "YOUR_ANGEL_ONE_TOTP_SECRET"
)

// Config holds all relay configuration loaded from environment variables.
type Config struct {
	// Angel One credentials
	AngelAPIKey     string
	AngelClientCode string
	AngelPassword   string
	AngelTOTPSecret string

	// HTTP
	ListenAddr  string
	MetricsAddr string // empty = serve /metrics on the main listener only

	// Deployment environment label, reported by /status
	Environment string

	// Order defaults
	OrderType   string // MARKET or LIMIT
	ProductType string // INTRADAY, DELIVERY, CARRYFORWARD
	DefaultQty  int

	// Optional YAML file overriding the built-in instrument/signal tables
	TablesPath string

	// Alerting (optional)
	TelegramBotToken string
	TelegramChatID   string
	AlertWebhookURL  string
}

// Load reads configuration from the environment. A .env file in the working
// directory is honored if present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		AngelAPIKey:     getEnv("ANGEL_API_KEY", PlaceholderAPIKey),
		AngelClientCode: getEnv("ANGEL_CLIENT_CODE", PlaceholderClientCode),
		AngelPassword:   getEnv("ANGEL_PASSWORD", PlaceholderPassword),
		AngelTOTPSecret: getEnv("ANGEL_TOTP_SECRET", PlaceholderTOTPSecret),

		ListenAddr:  ":" + getEnv("PORT", "5000"),
		MetricsAddr: getEnv("METRICS_ADDR", ""),

		Environment: getEnv("DEPLOY_ENV", getEnv("RAILWAY_ENVIRONMENT", "development")),

		OrderType:   getEnv("ORDER_TYPE", "MARKET"),
		ProductType: getEnv("PRODUCT_TYPE", "INTRADAY"),
		DefaultQty:  getEnvInt("DEFAULT_QTY", 1),

		TablesPath: getEnv("TABLES_PATH", ""),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		AlertWebhookURL:  getEnv("ALERT_WEBHOOK_URL", ""),
	}
}

// CredentialsConfigured reports whether real broker credentials were supplied.
func (c *Config) CredentialsConfigured() bool {
	return c.AngelAPIKey != PlaceholderAPIKey &&
		c.AngelClientCode != PlaceholderClientCode &&
		c.AngelPassword != PlaceholderPassword &&
		c.AngelTOTPSecret != PlaceholderTOTPSecret
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return fallback
	}
	return n
}
