// Package pricefeed supplies the SOL/USD quote used to express volume and
// liquidity in quote currency.
package pricefeed

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
)

// Quoter returns the current SOL price in USD.
type Quoter interface {
	SolPrice(ctx context.Context) (float64, error)
}

// DefaultCacheTTL bounds how often the exchange is queried.
const DefaultCacheTTL = 30 * time.Second

// BinanceQuoter fetches SOLUSDT from Binance with a short-lived cache.
// Safe for concurrent use.
type BinanceQuoter struct {
	client *binance.Client
	symbol string
	ttl    time.Duration

	mu        sync.Mutex
	cached    float64
	fetchedAt time.Time
}

// NewBinanceQuoter creates a quoter against the public Binance ticker API.
// No API key is needed for price reads.
func NewBinanceQuoter(ttl time.Duration) *BinanceQuoter {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &BinanceQuoter{
		client: binance.NewClient("", ""),
		symbol: "SOLUSDT",
		ttl:    ttl,
	}
}

// SolPrice returns the cached quote when fresh, otherwise fetches a new one.
func (q *BinanceQuoter) SolPrice(ctx context.Context) (float64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cached > 0 && time.Since(q.fetchedAt) < q.ttl {
		return q.cached, nil
	}

	prices, err := q.client.NewListPricesService().Symbol(q.symbol).Do(ctx)
	if err != nil {
		// Serve the stale quote over failing the caller when one exists.
		if q.cached > 0 {
			return q.cached, nil
		}
		return 0, fmt.Errorf("fetch %s price: %w", q.symbol, err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("no price returned for %s", q.symbol)
	}

	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s price %q: %w", q.symbol, prices[0].Price, err)
	}

	q.cached = price
	q.fetchedAt = time.Now()
	return price, nil
}

var _ Quoter = (*BinanceQuoter)(nil)

// StaticQuoter returns a fixed price. Used in tests and offline runs.
type StaticQuoter struct {
	Price float64
}

// SolPrice returns the fixed price.
func (q StaticQuoter) SolPrice(context.Context) (float64, error) {
	return q.Price, nil
}

var _ Quoter = StaticQuoter{}
