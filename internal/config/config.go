// Package config provides application configuration management.
// It loads settings from environment variables and provides defaults for
// server mode, providers, rate limits and scheduler time slots.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// timePattern matches 24-hour HH:MM time slots.
var timePattern = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):[0-5][0-9]$`)

// Config holds all application configuration
type Config struct {
	// LINE Bot Configuration
	LineChannelToken  string
	LineChannelSecret string

	// LLM Configuration (Groq, OpenAI-compatible endpoint)
	GroqAPIKey  string
	GroqBaseURL string
	GroqModel   string

	// Metrics Authentication
	MetricsUsername string // Username for /metrics endpoint Basic Auth (default: "prometheus")
	MetricsPassword string // Password for /metrics endpoint Basic Auth (empty = no auth)

	// Sentry (Better Stack) Configuration
	SentryToken       string
	SentryHost        string
	SentryEnvironment string

	// Server Configuration
	Port            string
	LogLevel        string
	ShutdownTimeout time.Duration

	// Timezone applied to the scheduler and daily-record dates
	Timezone string

	// Data Configuration (empty DataDir = in-memory stores only)
	DataDir string

	// Scraper Configuration
	ScraperTimeout    time.Duration
	ScraperMaxRetries int

	// Scheduler time slots (HH:MM, 24-hour)
	ReminderSlots     []string
	SubscriptionSlots []string

	// Bot Configuration (embedded)
	Bot BotConfig
}

// BotConfig holds bot-specific configuration
type BotConfig struct {
	// Timeouts
	WebhookTimeout time.Duration // Timeout for webhook bot processing (see config/timeouts.go)
	LLMTimeout     time.Duration // Timeout for a single LLM call

	// Rate Limits (Token Bucket Algorithm)
	UserRateLimitBurst        float64 // Maximum burst tokens per user (default: 15)
	UserRateLimitRefillPerSec float64 // Tokens refilled per second (default: 0.5 = 1 per 2s)

	GlobalRateLimitRPS float64 // Global rate limit for outbound LINE API calls (default: 100)

	// PostbackCooldown suppresses repeated taps on the same button
	PostbackCooldown time.Duration

	// LINE API Constraints
	MaxMessagesPerReply int // Maximum messages per reply (LINE API limit: 5)
	MaxEventsPerWebhook int // Maximum events per webhook (default: 100)
	MinReplyTokenLength int // Minimum reply token length (default: 10)
	MaxPostbackDataSize int // Maximum postback data size (LINE API limit: 300)

	// Business Limits
	NewsCountMax     int // Maximum news articles per request (default: 10)
	WordCountMax     int // Maximum vocabulary words per request (default: 5)
	ChatHistoryLimit int // Chat turns kept per conversation for the LLM fallback (default: 10)
}

// Load reads configuration from environment variables
// It attempts to load .env file first, then reads from env vars
func Load() (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		// LINE Bot Configuration
		LineChannelToken:  getEnv("LINE_CHANNEL_ACCESS_TOKEN", ""),
		LineChannelSecret: getEnv("LINE_CHANNEL_SECRET", ""),

		// LLM Configuration
		GroqAPIKey:  getEnv("GROQ_API_KEY", ""),
		GroqBaseURL: getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		GroqModel:   getEnv("GROQ_MODEL", "llama-3.3-70b-versatile"),

		// Metrics Authentication
		MetricsUsername: getEnv("METRICS_USERNAME", "prometheus"),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),

		// Sentry Configuration
		SentryToken:       getEnv("SENTRY_TOKEN", ""),
		SentryHost:        getEnv("SENTRY_HOST", ""),
		SentryEnvironment: getEnv("SENTRY_ENVIRONMENT", "production"),

		// Server Configuration
		Port:            getEnv("PORT", "5000"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		Timezone: getEnv("BOT_TIMEZONE", "Asia/Taipei"),

		// Data Configuration
		DataDir: getEnv("DATA_DIR", ""),

		// Scraper Configuration
		ScraperTimeout:    getDurationEnv("SCRAPER_TIMEOUT", ScraperRequest),
		ScraperMaxRetries: getIntEnv("SCRAPER_MAX_RETRIES", 3),

		// Scheduler time slots
		ReminderSlots:     getListEnv("REMINDER_SLOTS", []string{"08:00", "12:00", "18:00", "21:00"}),
		SubscriptionSlots: getListEnv("SUBSCRIPTION_SLOTS", []string{"08:00", "09:00", "12:00", "18:00", "21:00"}),

		// Bot Configuration
		Bot: BotConfig{
			WebhookTimeout:            getDurationEnv("WEBHOOK_TIMEOUT", WebhookProcessing),
			LLMTimeout:                getDurationEnv("LLM_TIMEOUT", LLMRequest),
			UserRateLimitBurst:        getFloatEnv("USER_RATE_LIMIT_BURST", 15.0),
			UserRateLimitRefillPerSec: getFloatEnv("USER_RATE_LIMIT_REFILL_PER_SEC", 0.5),
			GlobalRateLimitRPS:        getFloatEnv("GLOBAL_RATE_LIMIT_RPS", 100.0),
			PostbackCooldown:          getDurationEnv("POSTBACK_COOLDOWN", 2*time.Second),
			MaxMessagesPerReply:       LINEMaxMessagesPerReply,
			MaxEventsPerWebhook:       100,
			MinReplyTokenLength:       10,
			MaxPostbackDataSize:       LINEMaxPostbackDataLength,
			NewsCountMax:              getIntEnv("NEWS_COUNT_MAX", 10),
			WordCountMax:              getIntEnv("WORD_COUNT_MAX", 5),
			ChatHistoryLimit:          getIntEnv("CHAT_HISTORY_LIMIT", 10),
		},
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if required configuration values are set
func (c *Config) Validate() error {
	var errs []error

	if c.LineChannelToken == "" {
		errs = append(errs, errors.New("LINE_CHANNEL_ACCESS_TOKEN is required"))
	}
	if c.LineChannelSecret == "" {
		errs = append(errs, errors.New("LINE_CHANNEL_SECRET is required"))
	}
	if c.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("BOT_TIMEZONE %q is invalid: %w", c.Timezone, err))
	}
	if c.ScraperTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SCRAPER_TIMEOUT must be positive, got %v", c.ScraperTimeout))
	}
	if c.ScraperMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("SCRAPER_MAX_RETRIES cannot be negative, got %d", c.ScraperMaxRetries))
	}
	for _, slot := range append(append([]string{}, c.ReminderSlots...), c.SubscriptionSlots...) {
		if !timePattern.MatchString(slot) {
			errs = append(errs, fmt.Errorf("time slot %q is not HH:MM", slot))
		}
	}
	if err := c.Bot.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("bot config: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks bot-specific configuration values
func (b *BotConfig) Validate() error {
	var errs []error

	if b.WebhookTimeout <= 0 {
		errs = append(errs, fmt.Errorf("WEBHOOK_TIMEOUT must be positive, got %v", b.WebhookTimeout))
	}
	if b.LLMTimeout <= 0 {
		errs = append(errs, fmt.Errorf("LLM_TIMEOUT must be positive, got %v", b.LLMTimeout))
	}
	if b.NewsCountMax < 1 {
		errs = append(errs, fmt.Errorf("NEWS_COUNT_MAX must be at least 1, got %d", b.NewsCountMax))
	}
	if b.WordCountMax < 1 {
		errs = append(errs, fmt.Errorf("WORD_COUNT_MAX must be at least 1, got %d", b.WordCountMax))
	}
	if b.PostbackCooldown < 0 {
		errs = append(errs, fmt.Errorf("POSTBACK_COOLDOWN cannot be negative, got %v", b.PostbackCooldown))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv retrieves integer environment variable with fallback to default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv retrieves duration environment variable with fallback to default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getFloatEnv retrieves float64 environment variable with fallback to default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getListEnv retrieves a comma-separated environment variable with fallback
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// SQLitePath returns the full path to the SQLite database file.
// Empty when persistence is disabled.
func (c *Config) SQLitePath() string {
	if c.DataDir == "" {
		return ""
	}
	return filepath.Join(c.DataDir, "linebot.db")
}

// Location resolves the configured timezone. Validate guarantees it parses.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// HasLLMProvider returns true if the Groq provider is configured.
func (c *Config) HasLLMProvider() bool {
	return c.GroqAPIKey != ""
}
