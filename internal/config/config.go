package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Storage backends
const (
	BackendJSON   = "json"
	BackendBadger = "badger"
)

// Audit backends
const (
	AuditLog        = "log"
	AuditClickHouse = "clickhouse"
)

// Config holds the application configuration
type Config struct {
	TelegramToken string
	OwnerID       int64

	// Bot mode configuration
	WebhookMode bool   // If true, use webhook mode; if false, use polling mode
	WebhookURL  string // URL for webhook (required if WebhookMode is true)
	Port        string

	// Storage
	DataDir        string
	StorageBackend string
	UseMockDB      bool

	PurgeSessionTTL time.Duration // zero keeps purge requests until they finish
	AdminCacheTTL   time.Duration // zero disables the admin cache

	// Audit journal
	AuditBackend string

	// ClickHouse configuration, used by the clickhouse audit backend
	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string
	ClickHouseUseTLS   bool

	LogDevelopment bool
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	config := &Config{}

	// Telegram Bot Token (required)
	config.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if config.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	// Owner (required)
	ownerStr := os.Getenv("OWNER_ID")
	if ownerStr == "" {
		return nil, fmt.Errorf("OWNER_ID is required (Telegram user ID of the bot owner)")
	}
	ownerID, err := strconv.ParseInt(ownerStr, 10, 64)
	if err != nil || ownerID <= 0 {
		return nil, fmt.Errorf("invalid OWNER_ID: %s", ownerStr)
	}
	config.OwnerID = ownerID

	// Bot mode configuration
	config.WebhookMode = os.Getenv("WEBHOOK_MODE") == "true"
	if config.WebhookMode {
		config.WebhookURL = os.Getenv("WEBHOOK_URL")
		if config.WebhookURL == "" {
			return nil, fmt.Errorf("WEBHOOK_URL is required when WEBHOOK_MODE is true")
		}
	}
	config.Port = getEnv("PORT", "8080")

	config.UseMockDB = os.Getenv("USE_MOCK_DB") == "true"
	config.DataDir = getEnv("DATA_DIR", "./data")
	config.StorageBackend = getEnv("STORAGE_BACKEND", BackendJSON)
	if config.StorageBackend != BackendJSON && config.StorageBackend != BackendBadger {
		return nil, fmt.Errorf("invalid STORAGE_BACKEND %q: expected %s or %s",
			config.StorageBackend, BackendJSON, BackendBadger)
	}

	if config.PurgeSessionTTL, err = getDuration("PURGE_SESSION_TTL", 0); err != nil {
		return nil, err
	}
	if config.AdminCacheTTL, err = getDuration("ADMIN_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}

	config.LogDevelopment = os.Getenv("LOG_DEVELOPMENT") == "true"

	config.AuditBackend = getEnv("AUDIT_BACKEND", AuditLog)
	switch config.AuditBackend {
	case AuditLog:
	case AuditClickHouse:
		config.ClickHouseHost = os.Getenv("CLICKHOUSE_HOST")
		if config.ClickHouseHost == "" {
			return nil, fmt.Errorf("CLICKHOUSE_HOST is required when AUDIT_BACKEND is clickhouse")
		}

		portStr := os.Getenv("CLICKHOUSE_PORT")
		if portStr == "" {
			config.ClickHousePort = 9000 // Default ClickHouse native port
		} else {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return nil, fmt.Errorf("invalid CLICKHOUSE_PORT: %w", err)
			}
			config.ClickHousePort = port
		}

		config.ClickHouseDatabase = getEnv("CLICKHOUSE_DATABASE", "default")
		config.ClickHouseUser = getEnv("CLICKHOUSE_USER", "default")
		config.ClickHousePassword = os.Getenv("CLICKHOUSE_PASSWORD")
		config.ClickHouseUseTLS = os.Getenv("CLICKHOUSE_USE_TLS") == "true"
	default:
		return nil, fmt.Errorf("invalid AUDIT_BACKEND %q: expected %s or %s",
			config.AuditBackend, AuditLog, AuditClickHouse)
	}

	return config, nil
}
