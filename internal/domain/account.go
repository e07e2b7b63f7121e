package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a cash account that owns holdings.
type Account struct {
	ID          string
	CashBalance decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
	// Version counts changes committed through the in-memory books. It is
	// zero for accounts read straight from a ledger.
	Version uint64
}

// Holding is a position in one symbol. A holding with zero quantity does not
// exist; it is removed instead.
type Holding struct {
	AccountID string
	Symbol    string
	Quantity  int64
	AvgCost   decimal.Decimal
	UpdatedAt time.Time
}

// CostBasis returns Quantity * AvgCost.
func (h Holding) CostBasis() decimal.Decimal {
	return h.AvgCost.Mul(decimal.NewFromInt(h.Quantity))
}
