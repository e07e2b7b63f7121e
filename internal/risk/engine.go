// Package risk computes portfolio risk metrics from holdings, cash and the
// latest prices. Everything here is pure; callers supply the inputs.
package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/riskdesk/internal/domain"
)

const (
	// BaseVolatility is a fixed annualised volatility assumption, not an
	// estimate from price history.
	BaseVolatility = 0.25
	// Z95 is the one-tailed 95% normal quantile.
	Z95 = 1.645

	HighThreshold   = 0.75
	MediumThreshold = 0.5

	// fullDiversification is the holding count at which the diversification
	// discount on volatility maxes out.
	fullDiversification = 10

	NoHoldingsMessage = "No holdings - zero risk"
)

// Input is everything needed to evaluate one account.
type Input struct {
	AccountID string
	Balance   decimal.Decimal
	Holdings  []domain.Holding
	// Prices is keyed by symbol. A missing symbol is valued at the holding's
	// average cost.
	Prices map[string]domain.Price
	Now    time.Time
}

// Compute evaluates the risk snapshot for in.
func Compute(in Input) domain.RiskSnapshot {
	snap := domain.RiskSnapshot{
		AccountID:     in.AccountID,
		RiskLevel:     domain.RiskLevelLow,
		Balance:       in.Balance,
		TotalValue:    in.Balance,
		HoldingsValue: decimal.Zero,
		PnL:           decimal.Zero,
		HoldingCount:  len(in.Holdings),
		ComputedAt:    in.Now,
	}
	if len(in.Holdings) == 0 {
		snap.Message = NoHoldingsMessage
		return snap
	}

	values := make([]decimal.Decimal, len(in.Holdings))
	holdingsValue := decimal.Zero
	pnl := decimal.Zero
	for i, h := range in.Holdings {
		price, _ := PriceFor(h, in.Prices)
		qty := decimal.NewFromInt(h.Quantity)
		values[i] = price.Mul(qty)
		holdingsValue = holdingsValue.Add(values[i])
		pnl = pnl.Add(price.Sub(h.AvgCost).Mul(qty))
	}
	total := in.Balance.Add(holdingsValue)

	snap.HoldingsValue = holdingsValue
	snap.TotalValue = total
	snap.PnL = pnl
	snap.DrawdownPct = drawdown(holdingsValue, pnl)

	if !holdingsValue.IsPositive() {
		snap.Volatility = BaseVolatility
		return snap
	}

	thv := holdingsValue.InexactFloat64()
	var concentration float64
	for _, v := range values {
		share := v.InexactFloat64() / thv
		concentration += share * share
	}

	diversification := math.Min(float64(len(in.Holdings))/fullDiversification, 1)
	volatility := BaseVolatility * (1 - diversification*0.5)

	var leverage float64
	if total.IsPositive() {
		leverage = thv / total.InexactFloat64()
	}

	snap.Concentration = concentration
	snap.Volatility = volatility
	snap.VaR95 = total.InexactFloat64() * volatility * Z95
	snap.Leverage = leverage
	snap.RiskScore = Score(concentration, volatility, leverage)
	snap.RiskLevel = Level(snap.RiskScore)
	snap.Alert = AlertText(snap.RiskLevel, snap.RiskScore)
	return snap
}

// Score combines concentration, volatility and leverage into [0, 1].
func Score(concentration, volatility, leverage float64) float64 {
	s := math.Min(concentration*0.4, 0.4) +
		math.Min(volatility/BaseVolatility*0.3, 0.3) +
		math.Min((leverage-0.5)*0.6, 0.3)
	return math.Max(0, math.Min(1, s))
}

// Level maps a score onto LOW, MEDIUM or HIGH.
func Level(score float64) domain.RiskLevel {
	switch {
	case score > HighThreshold:
		return domain.RiskLevelHigh
	case score > MediumThreshold:
		return domain.RiskLevelMedium
	default:
		return domain.RiskLevelLow
	}
}

// AlertText returns the operator-facing warning for level, or "" for LOW.
func AlertText(level domain.RiskLevel, score float64) string {
	switch level {
	case domain.RiskLevelHigh:
		return fmt.Sprintf("HIGH RISK: Portfolio risk score is %.1f%%. Consider diversifying or reducing leverage.", score*100)
	case domain.RiskLevelMedium:
		return fmt.Sprintf("MEDIUM RISK: Portfolio risk score is %.1f%%. Monitor positions closely.", score*100)
	default:
		return ""
	}
}

// PriceFor returns the live price of h's symbol, or its average cost on a
// cache miss.
func PriceFor(h domain.Holding, prices map[string]domain.Price) (decimal.Decimal, domain.PriceSource) {
	if p, ok := prices[h.Symbol]; ok {
		return p.Value, domain.PriceSourceLive
	}
	return h.AvgCost, domain.PriceSourceCostBase
}

func drawdown(holdingsValue, pnl decimal.Decimal) float64 {
	if !pnl.IsNegative() {
		return 0
	}
	loss := pnl.Abs()
	denom := holdingsValue.Add(loss)
	if !denom.IsPositive() {
		return 0
	}
	return loss.InexactFloat64() / denom.InexactFloat64() * 100
}
