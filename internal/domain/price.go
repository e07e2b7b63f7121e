package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Price is the latest observed price of a symbol.
type Price struct {
	Symbol     string
	Value      decimal.Decimal
	ObservedAt time.Time
}

// PriceCache holds the latest price per symbol. Set overwrites
// unconditionally; Get reports a miss with ok=false.
type PriceCache interface {
	Set(symbol string, value decimal.Decimal, observedAt time.Time)
	Get(symbol string) (Price, bool)
	Snapshot() map[string]Price
}

// PriceTick is a single update emitted by a feed.
type PriceTick struct {
	Symbol     string
	Value      decimal.Decimal
	ObservedAt time.Time
}
