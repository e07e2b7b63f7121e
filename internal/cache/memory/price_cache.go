// Package memory holds the in-process caches shared by the trade and risk
// paths.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/riskdesk/internal/domain"
)

// PriceCache is the latest-price table. One feed goroutine writes; any number
// of readers read concurrently. Each symbol is updated independently.
type PriceCache struct {
	mu     sync.RWMutex
	prices map[string]domain.Price
}

// NewPriceCache returns an empty cache.
func NewPriceCache() *PriceCache {
	return &PriceCache{prices: make(map[string]domain.Price)}
}

// Set overwrites the price of symbol.
func (c *PriceCache) Set(symbol string, value decimal.Decimal, observedAt time.Time) {
	c.mu.Lock()
	c.prices[symbol] = domain.Price{Symbol: symbol, Value: value, ObservedAt: observedAt}
	c.mu.Unlock()
}

// Get returns the latest price of symbol; ok is false on a miss.
func (c *PriceCache) Get(symbol string) (domain.Price, bool) {
	c.mu.RLock()
	p, ok := c.prices[symbol]
	c.mu.RUnlock()
	return p, ok
}

// Snapshot copies the whole table.
func (c *PriceCache) Snapshot() map[string]domain.Price {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]domain.Price, len(c.prices))
	for k, v := range c.prices {
		out[k] = v
	}
	return out
}

// Symbols returns the cached symbols in sorted order.
func (c *PriceCache) Symbols() []string {
	c.mu.RLock()
	out := make([]string, 0, len(c.prices))
	for k := range c.prices {
		out = append(out, k)
	}
	c.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Len returns the number of cached symbols.
func (c *PriceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.prices)
}

var _ domain.PriceCache = (*PriceCache)(nil)
