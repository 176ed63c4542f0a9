package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/trendslot/internal/blob/s3"
	"github.com/alanyoungcy/trendslot/internal/cache/redis"
	"github.com/alanyoungcy/trendslot/internal/config"
	"github.com/alanyoungcy/trendslot/internal/domain"
	"github.com/alanyoungcy/trendslot/internal/metrics"
	"github.com/alanyoungcy/trendslot/internal/notify"
	"github.com/alanyoungcy/trendslot/internal/platform/pricefeed"
	"github.com/alanyoungcy/trendslot/internal/server/handler"
	"github.com/alanyoungcy/trendslot/internal/service"
	"github.com/alanyoungcy/trendslot/internal/slot"
	"github.com/alanyoungcy/trendslot/internal/store/postgres"
)

// Dependencies bundles everything the run modes need. It is constructed by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	PredictionStore *postgres.PredictionStore
	UserStore       domain.UserStore
	AssetStore      domain.AssetStore
	ScoreStore      *postgres.UserScoreStore
	SlotConfigStore domain.SlotConfigStore
	AuditStore      domain.AuditStore

	// Caches
	QuoteCache  domain.QuoteCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager

	// Archive, nil unless archive.enabled.
	Archiver *s3blob.PredictionArchiver

	// Services
	Clock       *slot.Clock
	Oracle      *service.PriceOracle
	Slots       *service.SlotService
	Assets      *service.AssetService
	Predictions *service.PredictionService
	Evaluator   *service.Evaluator

	// Health probes by dependency name.
	Health map[string]handler.Pinger

	Metrics  *metrics.Manager
	Notifier *notify.Notifier
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Wire constructs all concrete dependency implementations from cfg and
// returns them together with a cleanup function that releases them in
// reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Health:  make(map[string]handler.Pinger),
		Metrics: metrics.NewManager(),
	}

	clock, err := slot.NewClock(cfg.Slots.Timezone)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: slot clock: %w", err)
	}
	deps.Clock = clock
	gate := slot.NewGate(cfg.Slots.LockWindow.Duration)

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)
	deps.Health["postgres"] = pgClient

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.PredictionStore = postgres.NewPredictionStore(pool)
	deps.UserStore = postgres.NewUserStore(pool)
	deps.AssetStore = postgres.NewAssetStore(pool)
	deps.ScoreStore = postgres.NewUserScoreStore(pool)
	deps.SlotConfigStore = postgres.NewSlotConfigStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
		KeyPrefix:  cfg.Redis.KeyPrefix,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.Health["redis"] = redisClient

	deps.QuoteCache = redis.NewQuoteCache(redisClient, cfg.PriceFeed.CacheTTL.Duration)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Services ---
	var feedOpts []pricefeed.Option
	if cfg.PriceFeed.APIKey != "" {
		feedOpts = append(feedOpts, pricefeed.WithAPIKey(cfg.PriceFeed.APIKey))
	}
	feed := pricefeed.NewClient(cfg.PriceFeed.BaseURL, cfg.PriceFeed.Timeout.Duration, feedOpts...)

	deps.Oracle = service.NewPriceOracle(feed, deps.QuoteCache, service.OracleConfig{
		Timeout:     cfg.PriceFeed.Timeout.Duration,
		MaxCacheAge: cfg.PriceFeed.MaxCacheAge.Duration,
	}, deps.Metrics, logger)
	deps.Slots = service.NewSlotService(clock, gate, deps.SlotConfigStore, deps.AuditStore, logger)
	deps.Assets = service.NewAssetService(deps.AssetStore, deps.AuditStore, logger)
	deps.Predictions = service.NewPredictionService(
		deps.PredictionStore, deps.UserStore, deps.AssetStore, deps.ScoreStore,
		deps.Oracle, clock, gate, deps.Metrics, logger,
	)
	deps.Evaluator = service.NewEvaluator(
		deps.PredictionStore, deps.AssetStore, deps.Oracle, deps.Slots, clock,
		deps.LockManager, deps.AuditStore, deps.Notifier,
		service.EvaluatorConfig{
			BatchSize:   cfg.Evaluator.BatchSize,
			Concurrency: cfg.Evaluator.Concurrency,
			LockTTL:     cfg.Evaluator.LockTTL.Duration,
		},
		deps.Metrics, logger,
	)

	// --- S3 archive ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Health["s3"] = pingFunc(s3Client.Health)

		deps.Archiver = s3blob.NewArchiver(
			deps.PredictionStore,
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			deps.AuditStore,
			cfg.Archive.Prefix,
			deps.Metrics,
			logger,
		)
	}

	return deps, cleanup, nil
}
