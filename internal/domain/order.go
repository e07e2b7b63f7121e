package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType is the trade direction.
type OrderType string

const (
	OrderTypeBuy  OrderType = "BUY"
	OrderTypeSell OrderType = "SELL"
)

// OrderStatus tracks an order through execution.
type OrderStatus string

const (
	OrderStatusReceived  OrderStatus = "RECEIVED"
	OrderStatusValidated OrderStatus = "VALIDATED"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
)

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusRejected
}

// Order is an immutable record of a trade request and its outcome.
type Order struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"accountId"`
	Symbol       string          `json:"symbol"`
	Type         OrderType       `json:"type"`
	Qty          int64           `json:"qty"`
	Price        decimal.Decimal `json:"price"`
	Status       OrderStatus     `json:"status"`
	RejectReason string          `json:"rejectReason,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Notional returns Qty * Price.
func (o Order) Notional() decimal.Decimal {
	return o.Price.Mul(decimal.NewFromInt(o.Qty))
}
