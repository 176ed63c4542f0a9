package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/trendslot/internal/domain"
	"github.com/alanyoungcy/trendslot/internal/metrics"
)

// OracleConfig bounds live lookups and cached fallbacks.
type OracleConfig struct {
	// Timeout caps one live fetch.
	Timeout time.Duration
	// MaxCacheAge rejects cached quotes older than this. Zero accepts any age.
	MaxCacheAge time.Duration
}

// PriceOracle serves entry and settlement prices. It prefers a live quote,
// writes it through to the cache, and falls back to the last cached quote
// when the live source fails.
type PriceOracle struct {
	feed    domain.PriceFeed
	cache   domain.QuoteCache
	cfg     OracleConfig
	metrics *metrics.Manager
	logger  *slog.Logger
	now     func() time.Time
}

// NewPriceOracle creates a PriceOracle. cache may be nil, in which case only
// live quotes are served.
func NewPriceOracle(
	feed domain.PriceFeed,
	cache domain.QuoteCache,
	cfg OracleConfig,
	m *metrics.Manager,
	logger *slog.Logger,
) *PriceOracle {
	return &PriceOracle{
		feed:    feed,
		cache:   cache,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With(slog.String("component", "price_oracle")),
		now:     time.Now,
	}
}

// Quote returns the best available price for asset. It fails with
// domain.ErrPriceUnavailable, wrapping both causes, when neither the live
// feed nor the cache can answer.
func (o *PriceOracle) Quote(ctx context.Context, asset domain.Asset) (domain.Quote, error) {
	symbol := asset.FeedSymbol
	if symbol == "" {
		symbol = asset.Symbol
	}

	q, liveErr := o.live(ctx, symbol)
	if liveErr == nil {
		o.metrics.QuoteServed(string(domain.QuoteLive))
		return q, nil
	}
	o.logger.WarnContext(ctx, "price_oracle: live quote failed, trying cache",
		slog.String("symbol", symbol),
		slog.String("error", liveErr.Error()),
	)

	q, cacheErr := o.cached(ctx, symbol)
	if cacheErr == nil {
		o.metrics.QuoteServed(string(domain.QuoteCached))
		return q, nil
	}

	o.metrics.QuoteServed("failed")
	return domain.Quote{}, fmt.Errorf("%w: %s: %w", domain.ErrPriceUnavailable, symbol,
		errors.Join(fmt.Errorf("live: %w", liveErr), fmt.Errorf("cache: %w", cacheErr)))
}

func (o *PriceOracle) live(ctx context.Context, symbol string) (domain.Quote, error) {
	if o.feed == nil {
		return domain.Quote{}, errors.New("no live feed configured")
	}
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	price, err := o.feed.LastPrice(ctx, symbol)
	o.metrics.LiveQuoteLatency(time.Since(start))
	if err != nil {
		return domain.Quote{}, err
	}

	q := domain.Quote{Symbol: symbol, Price: price, At: o.now().UTC(), Source: domain.QuoteLive}
	if o.cache != nil {
		// The request context may be close to its deadline; the write-through
		// gets its own short budget.
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := o.cache.SetQuote(wctx, symbol, price, q.At); err != nil {
			o.logger.WarnContext(ctx, "price_oracle: cache write failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}
	return q, nil
}

func (o *PriceOracle) cached(ctx context.Context, symbol string) (domain.Quote, error) {
	if o.cache == nil {
		return domain.Quote{}, errors.New("no quote cache configured")
	}
	price, at, err := o.cache.GetQuote(ctx, symbol)
	if err != nil {
		return domain.Quote{}, err
	}
	if age := o.now().Sub(at); o.cfg.MaxCacheAge > 0 && age > o.cfg.MaxCacheAge {
		return domain.Quote{}, fmt.Errorf("cached quote is %s old (max %s)", age.Round(time.Second), o.cfg.MaxCacheAge)
	}
	if !price.IsPositive() {
		return domain.Quote{}, fmt.Errorf("cached quote %s is not positive", price)
	}
	return domain.Quote{Symbol: symbol, Price: price, At: at, Source: domain.QuoteCached}, nil
}

// Compile-time interface check.
var _ domain.PriceOracle = (*PriceOracle)(nil)
