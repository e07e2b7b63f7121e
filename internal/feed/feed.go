// Package feed produces price ticks for the price cache.
package feed

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/riskdesk/internal/domain"
)

// TickHandler receives every tick a feed produces.
type TickHandler func(ctx context.Context, tick domain.PriceTick)

// PriceMirror copies ticks to an external store.
type PriceMirror interface {
	Put(ctx context.Context, symbol string, value decimal.Decimal) error
}

// PriceFetcher reads the latest prices of several symbols at once. Missing
// symbols are absent from the result.
type PriceFetcher interface {
	FetchMany(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}
