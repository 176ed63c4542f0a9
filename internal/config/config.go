// Package config defines the top-level configuration for the trendslot
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TRENDSLOT_* environment variables.
type Config struct {
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	PriceFeed PriceFeedConfig `toml:"price_feed"`
	Slots     SlotsConfig     `toml:"slots"`
	Evaluator EvaluatorConfig `toml:"evaluator"`
	Archive   ArchiveConfig   `toml:"archive"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// KeyPrefix namespaces every key this service writes.
	KeyPrefix string `toml:"key_prefix"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// PriceFeedConfig configures the live quote source and the cached fallback.
type PriceFeedConfig struct {
	BaseURL string   `toml:"base_url"`
	APIKey  string   `toml:"api_key"`
	Timeout duration `toml:"timeout"`
	// CacheTTL is how long a quote stays in Redis after a live fetch.
	CacheTTL duration `toml:"cache_ttl"`
	// MaxCacheAge rejects cached quotes older than this. Zero accepts any age.
	MaxCacheAge duration `toml:"max_cache_age"`
}

// SlotsConfig holds slot clock parameters.
type SlotsConfig struct {
	Timezone   string   `toml:"timezone"`
	LockWindow duration `toml:"lock_window"`
	SeedOnBoot bool     `toml:"seed_on_boot"`
}

// EvaluatorConfig holds the periodic evaluation sweep parameters.
type EvaluatorConfig struct {
	Enabled     bool     `toml:"enabled"`
	Interval    duration `toml:"interval"`
	BatchSize   int      `toml:"batch_size"`
	Concurrency int      `toml:"concurrency"`
	LockTTL     duration `toml:"lock_ttl"`
}

// ArchiveConfig controls the S3 archive of evaluated predictions.
type ArchiveConfig struct {
	Enabled bool `toml:"enabled"`
	// Schedule is a 5-field cron expression read in the slot timezone.
	Schedule      string `toml:"schedule"`
	RetentionDays int    `toml:"retention_days"`
	Prefix        string `toml:"prefix"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// AdminKey guards /admin routes.
	AdminKey string `toml:"admin_key"`
	// CronKey guards the externally triggered evaluation sweep.
	CronKey string `toml:"cron_key"`
	// RateLimit is the number of prediction submissions a user may make per
	// RateWindow. Zero disables the limiter.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "trendslot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "trendslot:",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "trendslot-archive",
			ForcePathStyle: true,
		},
		PriceFeed: PriceFeedConfig{
			BaseURL:     "https://api.binance.com",
			Timeout:     duration{3 * time.Second},
			CacheTTL:    duration{24 * time.Hour},
			MaxCacheAge: duration{0},
		},
		Slots: SlotsConfig{
			Timezone:   "Europe/Berlin",
			LockWindow: duration{5 * time.Minute},
			SeedOnBoot: true,
		},
		Evaluator: EvaluatorConfig{
			Enabled:     true,
			Interval:    duration{time.Minute},
			BatchSize:   200,
			Concurrency: 8,
			LockTTL:     duration{2 * time.Minute},
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Schedule:      "30 0 * * *",
			RetentionDays: 30,
			Prefix:        "predictions",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   30,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"score_anomaly", "sweep_failed", "archive_failed"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"api":    true,
	"worker": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: api, worker, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Price feed
	if c.PriceFeed.BaseURL == "" {
		errs = append(errs, "price_feed: base_url must not be empty")
	}
	if c.PriceFeed.Timeout.Duration <= 0 {
		errs = append(errs, "price_feed: timeout must be > 0")
	}
	if c.PriceFeed.MaxCacheAge.Duration < 0 {
		errs = append(errs, "price_feed: max_cache_age must be >= 0")
	}

	// Slots
	if _, err := time.LoadLocation(c.Slots.Timezone); err != nil || c.Slots.Timezone == "" {
		errs = append(errs, fmt.Sprintf("slots: unknown timezone %q", c.Slots.Timezone))
	}
	if c.Slots.LockWindow.Duration < 0 {
		errs = append(errs, "slots: lock_window must be >= 0")
	}

	// Evaluator
	if c.Evaluator.Enabled {
		if c.Evaluator.Interval.Duration <= 0 {
			errs = append(errs, "evaluator: interval must be > 0 when enabled")
		}
		if c.Evaluator.BatchSize < 1 {
			errs = append(errs, "evaluator: batch_size must be >= 1")
		}
		if c.Evaluator.Concurrency < 1 {
			errs = append(errs, "evaluator: concurrency must be >= 1")
		}
	}

	// Archive
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if len(strings.Fields(c.Archive.Schedule)) != 5 {
			errs = append(errs, fmt.Sprintf("archive: schedule %q must have 5 cron fields", c.Archive.Schedule))
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
