package risk

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/riskdesk/internal/domain"
)

// Value marks every holding to the latest price and totals the account.
func Value(account domain.Account, holdings []domain.Holding, prices map[string]domain.Price) domain.PortfolioView {
	view := domain.PortfolioView{
		Account:       account,
		Holdings:      make([]domain.HoldingView, 0, len(holdings)),
		HoldingsValue: decimal.Zero,
	}
	for _, h := range holdings {
		price, src := PriceFor(h, prices)
		mv := price.Mul(decimal.NewFromInt(h.Quantity))
		view.Holdings = append(view.Holdings, domain.HoldingView{
			Holding:       h,
			CurrentPrice:  price,
			MarketValue:   mv,
			UnrealizedPnL: mv.Sub(h.CostBasis()),
			PriceSource:   src,
		})
		view.HoldingsValue = view.HoldingsValue.Add(mv)
	}
	sort.Slice(view.Holdings, func(i, j int) bool {
		return view.Holdings[i].Symbol < view.Holdings[j].Symbol
	})
	view.TotalValue = account.CashBalance.Add(view.HoldingsValue)
	return view
}
