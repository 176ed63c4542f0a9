// Package pricefeed is the REST client for the live spot price source used
// to fix entry and settlement prices.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/trendslot/internal/domain"
)

// maxBodyBytes bounds how much of a response is read.
const maxBodyBytes = 1 << 20

// Client queries a Binance-compatible ticker endpoint:
//
//	GET {baseURL}/api/v3/ticker/price?symbol=BTCUSDT
//	{"symbol":"BTCUSDT","price":"64250.12000000"}
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sends key in the X-MBX-APIKEY header.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a new price feed client.
//
// baseURL is the API root, e.g. "https://api.binance.com". The per-request
// deadline comes from the caller's context; timeout is a safety net for
// callers that pass none.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// LastPrice returns the latest traded price of feedSymbol.
func (c *Client) LastPrice(ctx context.Context, feedSymbol string) (decimal.Decimal, error) {
	if feedSymbol == "" {
		return decimal.Zero, fmt.Errorf("pricefeed: empty symbol")
	}
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(feedSymbol))

	body, err := c.doGet(ctx, "/api/v3/ticker/price?"+params.Encode())
	if err != nil {
		return decimal.Zero, fmt.Errorf("pricefeed: last price %s: %w", feedSymbol, err)
	}

	var tp tickerPrice
	if err := json.Unmarshal(body, &tp); err != nil {
		return decimal.Zero, fmt.Errorf("pricefeed: decode ticker %s: %w", feedSymbol, err)
	}
	price, err := decimal.NewFromString(tp.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("pricefeed: parse price %q: %w", tp.Price, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("pricefeed: non-positive price %s for %s", price, feedSymbol)
	}
	return price, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := strings.TrimSpace(string(body))
	switch statusCode {
	case http.StatusBadRequest, http.StatusNotFound:
		// Unknown symbols come back as 400 with code -1121.
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests, http.StatusTeapot:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}

// Compile-time interface check.
var _ domain.PriceFeed = (*Client)(nil)
