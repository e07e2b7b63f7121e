package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RiskLevel buckets a risk score.
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "LOW"
	RiskLevelMedium RiskLevel = "MEDIUM"
	RiskLevelHigh   RiskLevel = "HIGH"
)

// Alerting reports whether the level warrants an alert.
func (l RiskLevel) Alerting() bool {
	return l == RiskLevelMedium || l == RiskLevelHigh
}

// RiskSnapshot is a derived, point-in-time view of an account's risk. It is
// never authoritative state.
type RiskSnapshot struct {
	AccountID     string
	RiskScore     float64
	RiskLevel     RiskLevel
	VaR95         float64
	DrawdownPct   float64
	Concentration float64
	Volatility    float64
	Leverage      float64
	TotalValue    decimal.Decimal
	HoldingsValue decimal.Decimal
	PnL           decimal.Decimal
	Balance       decimal.Decimal
	HoldingCount  int
	Alert         string
	Message       string
	ComputedAt    time.Time
}

// Alert is emitted when an account enters an alerting risk level.
type Alert struct {
	AccountID string    `json:"accountId"`
	Level     RiskLevel `json:"level"`
	Previous  RiskLevel `json:"previous,omitempty"`
	RiskScore float64   `json:"riskScore"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// AlertSink receives alerts. Emit must not block the caller on delivery.
type AlertSink interface {
	Emit(ctx context.Context, alert Alert)
}
