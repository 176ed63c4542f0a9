package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// QuoteSource tells where a quote came from.
type QuoteSource string

const (
	QuoteLive   QuoteSource = "live"
	QuoteCached QuoteSource = "cache"
)

// Quote is a price observation for one asset.
type Quote struct {
	Symbol string
	Price  decimal.Decimal
	At     time.Time
	Source QuoteSource
}

// PriceFeed fetches live quotes from an upstream market data source.
type PriceFeed interface {
	LastPrice(ctx context.Context, feedSymbol string) (decimal.Decimal, error)
}

// PriceOracle returns the best available quote for an asset.
type PriceOracle interface {
	Quote(ctx context.Context, asset Asset) (Quote, error)
}
