package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/robfig/cron/v3"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// NASA API configuration.
	NASAAPIKey  string
	NASABaseURL string
	NASATimeout time.Duration

	// Cache and refresh configuration.
	DBPath          string
	RefreshSchedule string

	// Optional Kafka publishing of committed records.
	KafkaBrokers []string
	KafkaTopic   string
}

// KafkaEnabled reports whether committed records should be published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	nasaTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("NASA_TIMEOUT", "10s"))
	if err != nil || nasaTimeout <= 0 {
		return nil, errors.New("invalid NASA_TIMEOUT")
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		NASAAPIKey:  sharedcfg.EnvOrDefault("NASA_API_KEY", "DEMO_KEY"),
		NASABaseURL: strings.TrimRight(sharedcfg.EnvOrDefault("NASA_BASE_URL", "https://api.nasa.gov"), "/"),
		NASATimeout: nasaTimeout,

		DBPath:          sharedcfg.EnvOrDefault("DB_PATH", "data/neo.db"),
		RefreshSchedule: sharedcfg.EnvOrDefault("REFRESH_SCHEDULE", "@every 12h"),

		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "neo-feed-updates"),
	}

	if cfg.NASAAPIKey == "" {
		return nil, errors.New("NASA_API_KEY is required")
	}
	if u, err := url.Parse(cfg.NASABaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid NASA_BASE_URL %q", cfg.NASABaseURL)
	}
	if cfg.DBPath == "" {
		return nil, errors.New("DB_PATH is required")
	}
	if _, err := cron.ParseStandard(cfg.RefreshSchedule); err != nil {
		return nil, fmt.Errorf("invalid REFRESH_SCHEDULE: %w", err)
	}
	if cfg.KafkaEnabled() && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}
