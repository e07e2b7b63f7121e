package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/riskdesk/internal/domain"
)

// AccountService defines the methods that the account handler requires.
type AccountService interface {
	OpenAccount(ctx context.Context, id string, balance decimal.Decimal) (domain.Account, error)
}

// PortfolioService values an account's holdings.
type PortfolioService interface {
	Portfolio(ctx context.Context, accountID string) (domain.PortfolioView, error)
}

// AccountHandler serves account creation and portfolio endpoints.
type AccountHandler struct {
	accounts  AccountService
	portfolio PortfolioService
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts AccountService, portfolio PortfolioService, logger *slog.Logger) *AccountHandler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	return &AccountHandler{
		accounts:  accounts,
		portfolio: portfolio,
		validate:  v,
		logger:    logHandler(logger, "account"),
	}
}

// AccountRequest opens an account with an initial cash balance.
type AccountRequest struct {
	AccountID string  `json:"accountId" validate:"required,max=64"`
	Balance   float64 `json:"balance" validate:"gte=0"`
}

type accountResponse struct {
	AccountID string  `json:"accountId"`
	Balance   float64 `json:"balance"`
	CreatedAt string  `json:"createdAt"`
}

// CreateAccount opens a new account.
// POST /api/accounts
func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "invalid request body: " + err.Error(),
			Kind:  domain.KindOf(domain.ErrValidation),
		})
		return
	}
	req.AccountID = strings.TrimSpace(req.AccountID)

	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		msg := "invalid account request"
		if errors.As(err, &verrs) && len(verrs) > 0 {
			msg = fmt.Sprintf("%s failed %s validation", verrs[0].Field(), verrs[0].Tag())
		}
		writeDomainError(w, h.logger, r, "create account", domain.WrapError(domain.ErrValidation, msg, err))
		return
	}

	acct, err := h.accounts.OpenAccount(r.Context(), req.AccountID, decimal.NewFromFloat(req.Balance))
	if err != nil {
		writeDomainError(w, h.logger, r, "create account", err)
		return
	}

	writeJSON(w, http.StatusCreated, accountResponse{
		AccountID: acct.ID,
		Balance:   money(acct.CashBalance),
		CreatedAt: acct.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

type holdingResponse struct {
	Symbol        string  `json:"symbol"`
	Qty           int64   `json:"qty"`
	AvgPrice      float64 `json:"avgPrice"`
	CurrentPrice  float64 `json:"currentPrice"`
	MarketValue   float64 `json:"marketValue"`
	UnrealizedPnL float64 `json:"unrealizedPnl"`
	PriceSource   string  `json:"priceSource"`
}

type portfolioResponse struct {
	AccountID     string            `json:"accountId"`
	Balance       float64           `json:"balance"`
	HoldingsValue float64           `json:"holdingsValue"`
	TotalValue    float64           `json:"totalValue"`
	Holdings      []holdingResponse `json:"holdings"`
}

// GetPortfolio returns the account's holdings valued at current prices.
// GET /api/portfolio?accountId=...
func (h *AccountHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	view, err := h.portfolio.Portfolio(r.Context(), r.URL.Query().Get("accountId"))
	if err != nil {
		writeDomainError(w, h.logger, r, "get portfolio", err)
		return
	}

	holdings := make([]holdingResponse, 0, len(view.Holdings))
	for _, hv := range view.Holdings {
		holdings = append(holdings, holdingResponse{
			Symbol:        hv.Symbol,
			Qty:           hv.Quantity,
			AvgPrice:      money(hv.AvgCost),
			CurrentPrice:  money(hv.CurrentPrice),
			MarketValue:   money(hv.MarketValue),
			UnrealizedPnL: money(hv.UnrealizedPnL),
			PriceSource:   string(hv.PriceSource),
		})
	}
	writeJSON(w, http.StatusOK, portfolioResponse{
		AccountID:     view.Account.ID,
		Balance:       money(view.Account.CashBalance),
		HoldingsValue: money(view.HoldingsValue),
		TotalValue:    money(view.TotalValue),
		Holdings:      holdings,
	})
}
