package domain

import "github.com/shopspring/decimal"

// PriceSource tells where a valuation price came from.
type PriceSource string

const (
	PriceSourceLive     PriceSource = "live"
	PriceSourceCostBase PriceSource = "avg_cost"
)

// HoldingView is a holding valued at the current price.
type HoldingView struct {
	Holding
	CurrentPrice  decimal.Decimal
	MarketValue   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	PriceSource   PriceSource
}

// PortfolioView is an account with valued holdings, sorted by symbol.
type PortfolioView struct {
	Account       Account
	Holdings      []HoldingView
	HoldingsValue decimal.Decimal
	TotalValue    decimal.Decimal
}
