package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	Session  SessionConfig
	QPay     QPayConfig
	CardGate CardGateConfig
	Ebarimt  EbarimtConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// SessionConfig holds payment-session lifecycle tuning.
type SessionConfig struct {
	DefaultTTL      time.Duration // invoice lifetime when the provider quotes none
	RetentionWindow time.Duration // how long terminal sessions stay readable for audit
	LockTTL         time.Duration // materialization lock lifetime
	LockWait        time.Duration // bounded wait for the materialization winner
	SweepInterval   time.Duration // background reconciliation cadence
}

// QPayConfig holds the QR-invoice provider configuration.
type QPayConfig struct {
	BaseURL     string
	Username    string
	Password    string
	InvoiceCode string
	CallbackURL string
	Timeout     time.Duration
}

// CardGateConfig holds the card-intent provider configuration.
type CardGateConfig struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

// EbarimtConfig holds the tax-receipt service configuration.
type EbarimtConfig struct {
	BaseURL    string
	MerchantNo string
	Timeout    time.Duration
	Enabled    bool
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "payflow"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "payflow-gateway"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Session: SessionConfig{
			DefaultTTL:      getDurationEnv("SESSION_DEFAULT_TTL", 15*time.Minute),
			RetentionWindow: getDurationEnv("SESSION_RETENTION_WINDOW", 72*time.Hour),
			LockTTL:         getDurationEnv("SESSION_LOCK_TTL", 30*time.Second),
			LockWait:        getDurationEnv("SESSION_LOCK_WAIT", 10*time.Second),
			SweepInterval:   getDurationEnv("SESSION_SWEEP_INTERVAL", time.Minute),
		},
		QPay: QPayConfig{
			BaseURL:     getEnv("QPAY_BASE_URL", ""),
			Username:    getEnv("QPAY_USERNAME", ""),
			Password:    getEnv("QPAY_PASSWORD", ""),
			InvoiceCode: getEnv("QPAY_INVOICE_CODE", ""),
			CallbackURL: getEnv("QPAY_CALLBACK_URL", ""),
			Timeout:     getDurationEnv("QPAY_TIMEOUT", 10*time.Second),
		},
		CardGate: CardGateConfig{
			BaseURL:   getEnv("CARDGATE_BASE_URL", ""),
			SecretKey: getEnv("CARDGATE_SECRET_KEY", ""),
			Timeout:   getDurationEnv("CARDGATE_TIMEOUT", 10*time.Second),
		},
		Ebarimt: EbarimtConfig{
			BaseURL:    getEnv("EBARIMT_BASE_URL", ""),
			MerchantNo: getEnv("EBARIMT_MERCHANT_NO", ""),
			Timeout:    getDurationEnv("EBARIMT_TIMEOUT", 10*time.Second),
			Enabled:    getBoolEnv("EBARIMT_ENABLED", false),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
