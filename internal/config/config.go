package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Telegram bot configuration
	Telegram TelegramConfig

	// Crypto Pay invoice provider configuration
	CryptoPay CryptoPayConfig

	// Booking lifecycle timings
	Booking BookingConfig

	// Redis configuration (message broker and session store)
	Redis RedisConfig

	// JWT configuration for the admin API
	JWT JWTConfig

	// CORS configuration
	CORS CORSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// TelegramConfig holds bot credentials and the admin set
type TelegramConfig struct {
	BotToken      string
	APIURL        string
	WebhookURL    string // public URL Telegram posts updates to
	WebhookSecret string // echoed back in X-Telegram-Bot-Api-Secret-Token
	AdminIDs      []int64
	Supports      []string // support contacts listed by /help
}

// CryptoPayConfig holds Crypto Pay API configuration
type CryptoPayConfig struct {
	Token   string
	Network string // "TEST_NET" or "MAIN_NET"
	Asset   string // invoice asset, e.g. USDT
}

// BookingConfig holds the reconciliation timings
type BookingConfig struct {
	InvoicePollInterval time.Duration // per-booking invoice polling period
	InvoiceTimeout      time.Duration // crypto booking cancelled when unpaid this long after creation
	UnpaidExpiry        time.Duration // unpaid booking cancelled this long after creation
	SweepSchedule       string        // cron spec for the global expiration sweep
	SessionTTL          time.Duration
}

// RedisConfig holds Redis connection settings. Empty Addr means in-process broker and sessions.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret      string
	TokenExpiry time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	adminIDs, err := parseIDs(getEnv("ADMIN_IDS", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_IDS: %w", err)
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		Telegram: TelegramConfig{
			BotToken:      getEnv("BOT_TOKEN", ""),
			APIURL:        getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
			WebhookURL:    getEnv("WEBHOOK_URL", ""),
			WebhookSecret: getEnv("WEBHOOK_SECRET", ""),
			AdminIDs:      adminIDs,
			Supports:      getEnvAsSlice("SUPPORT_CONTACTS", []string{}),
		},
		CryptoPay: CryptoPayConfig{
			Token:   getEnv("CRYPTO_PAY_TOKEN", ""),
			Network: getEnv("CRYPTO_PAY_NETWORK", "TEST_NET"),
			Asset:   getEnv("CRYPTO_PAY_ASSET", "USDT"),
		},
		Booking: BookingConfig{
			InvoicePollInterval: time.Duration(getEnvAsInt("INVOICE_POLL_INTERVAL_SECONDS", 30)) * time.Second,
			InvoiceTimeout:      time.Duration(getEnvAsInt("INVOICE_TIMEOUT_MINUTES", 30)) * time.Minute,
			UnpaidExpiry:        time.Duration(getEnvAsInt("UNPAID_EXPIRY_MINUTES", 60)) * time.Minute,
			SweepSchedule:       getEnv("EXPIRATION_SWEEP_SCHEDULE", "@every 1m"),
			SessionTTL:          time.Duration(getEnvAsInt("SESSION_TTL_MINUTES", 60)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", ""),
			TokenExpiry: time.Duration(getEnvAsInt("JWT_TOKEN_EXPIRY", 86400)) * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Telegram.BotToken == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}

	if len(c.Telegram.AdminIDs) == 0 {
		return fmt.Errorf("ADMIN_IDS must list at least one admin chat id")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.CryptoPay.Network != "TEST_NET" && c.CryptoPay.Network != "MAIN_NET" {
		return fmt.Errorf("invalid CRYPTO_PAY_NETWORK: %s (must be 'TEST_NET' or 'MAIN_NET')", c.CryptoPay.Network)
	}

	if c.Server.Environment == "production" {
		if c.CryptoPay.Token == "" {
			return fmt.Errorf("CRYPTO_PAY_TOKEN is required in production mode")
		}
		if c.Telegram.WebhookSecret == "" {
			return fmt.Errorf("WEBHOOK_SECRET is required in production mode")
		}
	}

	if c.Booking.InvoicePollInterval <= 0 || c.Booking.InvoiceTimeout <= 0 || c.Booking.UnpaidExpiry <= 0 {
		return fmt.Errorf("booking timings must be positive")
	}

	return nil
}

// IsAdmin reports whether the chat id belongs to a configured admin
func (c *TelegramConfig) IsAdmin(chatID int64) bool {
	for _, id := range c.AdminIDs {
		if id == chatID {
			return true
		}
	}
	return false
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

// parseIDs parses a comma separated list of chat ids
func parseIDs(value string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a chat id", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
