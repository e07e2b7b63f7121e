package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/riskdesk/internal/domain"
)

// PriceStore reads and writes latest prices as plain string values at
// "price:{SYMBOL}", the layout shared with external market engines.
type PriceStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceStore creates a PriceStore. A zero ttl stores keys without expiry.
func NewPriceStore(c *Client, ttl time.Duration) *PriceStore {
	return &PriceStore{rdb: c.Underlying(), ttl: ttl}
}

// PriceKey returns the Redis key holding symbol's latest price.
func PriceKey(symbol string) string {
	return "price:" + symbol
}

// Put writes a price rounded to two decimals.
func (ps *PriceStore) Put(ctx context.Context, symbol string, value decimal.Decimal) error {
	if err := ps.rdb.Set(ctx, PriceKey(symbol), value.StringFixed(2), ps.ttl).Err(); err != nil {
		return fmt.Errorf("redis: put price %s: %w", symbol, err)
	}
	return nil
}

// Fetch returns one price, or domain.ErrNotFound when the key is missing.
func (ps *PriceStore) Fetch(ctx context.Context, symbol string) (decimal.Decimal, error) {
	s, err := ps.rdb.Get(ctx, PriceKey(symbol)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, fmt.Errorf("redis: price %s: %w", symbol, domain.ErrNotFound)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("redis: fetch price %s: %w", symbol, err)
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("redis: parse price %s: %w", symbol, err)
	}
	return v, nil
}

// FetchMany returns the prices of all symbols that have a key, using one MGET.
// Missing or unparsable values are omitted.
func (ps *PriceStore) FetchMany(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}
	keys := make([]string, len(symbols))
	for i, s := range symbols {
		keys[i] = PriceKey(s)
	}
	vals, err := ps.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: fetch prices: %w", err)
	}
	for i, raw := range vals {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			continue
		}
		out[symbols[i]] = v
	}
	return out, nil
}
