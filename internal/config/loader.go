package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRENDSLOT_* environment variable overrides, and
// returns the final Config. A missing file is not an error: defaults plus the
// environment are used. The returned Config has NOT been validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRENDSLOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "TRENDSLOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "TRENDSLOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRENDSLOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRENDSLOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRENDSLOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRENDSLOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRENDSLOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRENDSLOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRENDSLOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TRENDSLOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TRENDSLOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRENDSLOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRENDSLOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRENDSLOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRENDSLOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRENDSLOT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "TRENDSLOT_REDIS_KEY_PREFIX")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "TRENDSLOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRENDSLOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRENDSLOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRENDSLOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRENDSLOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRENDSLOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRENDSLOT_S3_FORCE_PATH_STYLE")

	// ── Price feed ──
	setStr(&cfg.PriceFeed.BaseURL, "TRENDSLOT_PRICE_FEED_BASE_URL")
	setStr(&cfg.PriceFeed.APIKey, "TRENDSLOT_PRICE_FEED_API_KEY")
	setDuration(&cfg.PriceFeed.Timeout, "TRENDSLOT_PRICE_FEED_TIMEOUT")
	setDuration(&cfg.PriceFeed.CacheTTL, "TRENDSLOT_PRICE_FEED_CACHE_TTL")
	setDuration(&cfg.PriceFeed.MaxCacheAge, "TRENDSLOT_PRICE_FEED_MAX_CACHE_AGE")

	// ── Slots ──
	setStr(&cfg.Slots.Timezone, "TRENDSLOT_SLOTS_TIMEZONE")
	setDuration(&cfg.Slots.LockWindow, "TRENDSLOT_SLOTS_LOCK_WINDOW")
	setBool(&cfg.Slots.SeedOnBoot, "TRENDSLOT_SLOTS_SEED_ON_BOOT")

	// ── Evaluator ──
	setBool(&cfg.Evaluator.Enabled, "TRENDSLOT_EVALUATOR_ENABLED")
	setDuration(&cfg.Evaluator.Interval, "TRENDSLOT_EVALUATOR_INTERVAL")
	setInt(&cfg.Evaluator.BatchSize, "TRENDSLOT_EVALUATOR_BATCH_SIZE")
	setInt(&cfg.Evaluator.Concurrency, "TRENDSLOT_EVALUATOR_CONCURRENCY")
	setDuration(&cfg.Evaluator.LockTTL, "TRENDSLOT_EVALUATOR_LOCK_TTL")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "TRENDSLOT_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Schedule, "TRENDSLOT_ARCHIVE_SCHEDULE")
	setInt(&cfg.Archive.RetentionDays, "TRENDSLOT_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Prefix, "TRENDSLOT_ARCHIVE_PREFIX")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TRENDSLOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TRENDSLOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TRENDSLOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.AdminKey, "TRENDSLOT_SERVER_ADMIN_KEY")
	setStr(&cfg.Server.CronKey, "TRENDSLOT_SERVER_CRON_KEY")
	setStr(&cfg.Server.CronKey, "CRON_SECRET") // compatibility alias
	setInt(&cfg.Server.RateLimit, "TRENDSLOT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "TRENDSLOT_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRENDSLOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRENDSLOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRENDSLOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRENDSLOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRENDSLOT_MODE")
	setStr(&cfg.LogLevel, "TRENDSLOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
