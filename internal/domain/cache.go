package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// QuoteCache keeps the last known quote per feed symbol.
type QuoteCache interface {
	SetQuote(ctx context.Context, symbol string, price decimal.Decimal, ts time.Time) error
	GetQuote(ctx context.Context, symbol string) (decimal.Decimal, time.Time, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
