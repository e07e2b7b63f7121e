package service

import (
	"context"

	"github.com/alanyoungcy/riskdesk/internal/domain"
	"github.com/alanyoungcy/riskdesk/internal/risk"
)

// PortfolioService values an account's holdings at the latest prices.
type PortfolioService struct {
	accounts AccountState
	prices   domain.PriceCache
}

// NewPortfolioService creates a PortfolioService.
func NewPortfolioService(accounts AccountState, prices domain.PriceCache) *PortfolioService {
	return &PortfolioService{accounts: accounts, prices: prices}
}

// Portfolio returns the marked-to-market view of accountID.
func (s *PortfolioService) Portfolio(ctx context.Context, accountID string) (domain.PortfolioView, error) {
	if accountID == "" {
		return domain.PortfolioView{}, domain.NewError(domain.ErrValidation, "accountId is required")
	}
	acct, holdings, err := s.accounts.State(ctx, accountID)
	if err != nil {
		return domain.PortfolioView{}, err
	}
	return risk.Value(acct, holdings, s.prices.Snapshot()), nil
}
