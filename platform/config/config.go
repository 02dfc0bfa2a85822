// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// SchedulerConfig provides settings for the asynq client and worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// TriggerConfig provides debounce delays for the lead triggers.
type TriggerConfig interface {
	GetAutoReplyDelay() time.Duration
	GetIntentionDelay() time.Duration
	GetIntentionMessageWindow() int
}

// SweepConfig provides settings for the pending-intent sweep.
type SweepConfig interface {
	GetSweepInterval() time.Duration
	GetSweepTimeout() time.Duration
}

// ClassifierConfig provides settings for the intention classifier API.
type ClassifierConfig interface {
	GetClassifierAPIURL() string
	GetClassifierAPIKey() string
	IsClassifierEnabled() bool
}

// WebhookConfig provides settings for outbound webhook delivery.
type WebhookConfig interface {
	GetWebhookTimeout() time.Duration
	GetWebhookRatePerSecond() float64
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                    string
	DatabaseURL            string
	RedisURL               string
	RedisTLSInsecure       bool
	AsynqQueue             string
	AsynqConcurrency       int
	AutoReplyDelay         time.Duration
	IntentionDelay         time.Duration
	IntentionMessageWindow int
	SweepInterval          time.Duration
	SweepTimeout           time.Duration
	ClassifierAPIURL       string
	ClassifierAPIKey       string
	WebhookTimeout         time.Duration
	WebhookRatePerSecond   float64
}

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueue }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// TriggerConfig implementation
func (c *Config) GetAutoReplyDelay() time.Duration { return c.AutoReplyDelay }
func (c *Config) GetIntentionDelay() time.Duration { return c.IntentionDelay }
func (c *Config) GetIntentionMessageWindow() int   { return c.IntentionMessageWindow }

// SweepConfig implementation
func (c *Config) GetSweepInterval() time.Duration { return c.SweepInterval }
func (c *Config) GetSweepTimeout() time.Duration  { return c.SweepTimeout }

// ClassifierConfig implementation
func (c *Config) GetClassifierAPIURL() string { return c.ClassifierAPIURL }
func (c *Config) GetClassifierAPIKey() string { return c.ClassifierAPIKey }
func (c *Config) IsClassifierEnabled() bool   { return c.ClassifierAPIURL != "" }

// WebhookConfig implementation
func (c *Config) GetWebhookTimeout() time.Duration { return c.WebhookTimeout }
func (c *Config) GetWebhookRatePerSecond() float64 { return c.WebhookRatePerSecond }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                    getEnv("APP_ENV", "development"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		RedisURL:               getEnv("REDIS_URL", ""),
		RedisTLSInsecure:       strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueue:             getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:       mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		AutoReplyDelay:         mustDuration(getEnv("AUTO_REPLY_DELAY", "5s")),
		IntentionDelay:         mustDuration(getEnv("INTENTION_DELAY", "45s")),
		IntentionMessageWindow: mustInt(getEnv("INTENTION_MESSAGE_WINDOW", "10")),
		SweepInterval:          mustDuration(getEnv("SWEEP_INTERVAL", "15m")),
		SweepTimeout:           time.Duration(mustInt(getEnv("SWEEP_TIMEOUT_HOURS", "24"))) * time.Hour,
		ClassifierAPIURL:       getEnv("CLASSIFIER_API_URL", ""),
		ClassifierAPIKey:       getEnv("CLASSIFIER_API_KEY", ""),
		WebhookTimeout:         mustDuration(getEnv("WEBHOOK_TIMEOUT", "30s")),
		WebhookRatePerSecond:   mustFloat(getEnv("WEBHOOK_RATE", "5")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.SweepTimeout <= 0 {
		return nil, fmt.Errorf("SWEEP_TIMEOUT_HOURS must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return result
}
