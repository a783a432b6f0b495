package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL string

	// HTTP listener for the webhook and realtime endpoints
	ListenAddr string

	// Token economy
	SignupBonus       int64
	DailyRewardAmount int64
	ImageCost         int64
	VideoCost         int64
	TokensPerUSD      int64

	// Synchronous polling
	PollAttempts int
	PollDelay    time.Duration

	// Background poller
	PollInterval time.Duration
	SubmitGrace  time.Duration
	MaxJobAge    time.Duration

	// Provider credentials
	FluxAPIURL  string
	FluxAPIKey  string
	TurboAPIURL string
	TurboAPIKey string
	KlingAPIURL string
	KlingAPIKey string

	// FX rate source
	FxAPIURL string

	// Payment gateway
	WebhookSecret string

	// Environment: "development", "production", or "test"
	Environment string
}

// IsProduction reports whether the service runs with production guarantees
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the global configuration instance
func Get() *Config {
	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
	})
	return instance
}

// load loads configuration from environment variables
func load() (*Config, error) {
	config := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		ListenAddr:  ":8080",

		SignupBonus:       100,
		DailyRewardAmount: 5,
		ImageCost:         10,
		VideoCost:         50,
		TokensPerUSD:      100,

		PollAttempts: 20,
		PollDelay:    3 * time.Second,

		PollInterval: 15 * time.Second,
		SubmitGrace:  5 * time.Minute,
		MaxJobAge:    30 * time.Minute,

		FluxAPIURL:  os.Getenv("FLUX_API_URL"),
		FluxAPIKey:  os.Getenv("FLUX_API_KEY"),
		TurboAPIURL: os.Getenv("TURBO_API_URL"),
		TurboAPIKey: os.Getenv("TURBO_API_KEY"),
		KlingAPIURL: os.Getenv("KLING_API_URL"),
		KlingAPIKey: os.Getenv("KLING_API_KEY"),

		FxAPIURL: os.Getenv("FX_API_URL"),

		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),

		Environment: os.Getenv("ENVIRONMENT"),
	}

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}

	overrideInt64(&config.SignupBonus, "SIGNUP_BONUS")
	overrideInt64(&config.DailyRewardAmount, "DAILY_REWARD_AMOUNT")
	overrideInt64(&config.ImageCost, "IMAGE_COST")
	overrideInt64(&config.VideoCost, "VIDEO_COST")
	overrideInt64(&config.TokensPerUSD, "TOKENS_PER_USD")
	overrideInt(&config.PollAttempts, "POLL_ATTEMPTS")
	overrideDuration(&config.PollDelay, "POLL_DELAY")
	overrideDuration(&config.PollInterval, "POLL_INTERVAL")
	overrideDuration(&config.SubmitGrace, "SUBMIT_GRACE")
	overrideDuration(&config.MaxJobAge, "MAX_JOB_AGE")

	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	}
	if config.IsProduction() && config.WebhookSecret == "" {
		return nil, fmt.Errorf("WEBHOOK_SECRET is required in production")
	}

	return config, nil
}

func overrideInt64(dst *int64, key string) {
	if raw := os.Getenv(key); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			*dst = parsed
		}
	}
}

func overrideInt(dst *int, key string) {
	if raw := os.Getenv(key); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			*dst = parsed
		}
	}
}

func overrideDuration(dst *time.Duration, key string) {
	if raw := os.Getenv(key); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil {
			*dst = parsed
		}
	}
}
