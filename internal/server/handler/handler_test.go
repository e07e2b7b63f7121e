package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/riskdesk/internal/domain"
	"github.com/alanyoungcy/riskdesk/internal/service"
)

var testNow = time.Date(2024, 5, 15, 10, 30, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubTrades struct {
	result service.TradeResult
	err    error
	got    service.TradeRequest
}

func (s *stubTrades) Execute(_ context.Context, req service.TradeRequest) (service.TradeResult, error) {
	s.got = req
	return s.result, s.err
}

type stubOrders struct {
	orders []domain.Order
	err    error
	opts   domain.ListOpts
}

func (s *stubOrders) ListOrders(_ context.Context, _ string, opts domain.ListOpts) ([]domain.Order, error) {
	s.opts = opts
	return s.orders, s.err
}

type stubRisk struct {
	snap domain.RiskSnapshot
	err  error
}

func (s stubRisk) Snapshot(context.Context, string) (domain.RiskSnapshot, error) { return s.snap, s.err }

type stubAccounts struct {
	err     error
	balance decimal.Decimal
}

func (s *stubAccounts) OpenAccount(_ context.Context, id string, balance decimal.Decimal) (domain.Account, error) {
	s.balance = balance
	if s.err != nil {
		return domain.Account{}, s.err
	}
	return domain.Account{ID: id, CashBalance: balance, CreatedAt: testNow}, nil
}

type stubPortfolio struct {
	view domain.PortfolioView
	err  error
}

func (s stubPortfolio) Portfolio(context.Context, string) (domain.PortfolioView, error) {
	return s.view, s.err
}

func filledOrder() domain.Order {
	return domain.Order{
		ID:        "ord-1",
		AccountID: "acct-1",
		Symbol:    "AAPL",
		Type:      domain.OrderTypeBuy,
		Qty:       10,
		Price:     decimal.RequireFromString("175.2"),
		Status:    domain.OrderStatusFilled,
		CreatedAt: testNow,
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestExecuteTrade_Filled(t *testing.T) {
	trades := &stubTrades{result: service.TradeResult{
		Order: filledOrder(),
		Snapshot: domain.RiskSnapshot{
			RiskScore:  0.84567,
			RiskLevel:  domain.RiskLevelHigh,
			Balance:    decimal.RequireFromString("98248"),
			Alert:      "HIGH RISK",
			ComputedAt: testNow,
		},
	}}
	h := NewTradeHandler(trades, &stubOrders{}, discardLogger())

	body := `{"accountId":"acct-1","symbol":"aapl","type":"BUY","qty":10}`
	rec := httptest.NewRecorder()
	h.ExecuteTrade(rec, httptest.NewRequest(http.MethodPost, "/api/trade", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "aapl", trades.got.Symbol)
	assert.Equal(t, int64(10), trades.got.Qty)

	out := decode(t, rec)
	assert.Equal(t, "success", out["status"])
	assert.Equal(t, "BUY order executed successfully", out["message"])

	order := out["order"].(map[string]any)
	assert.Equal(t, 175.2, order["price"])
	assert.Equal(t, 1752.0, order["totalValue"])
	assert.Equal(t, "FILLED", order["status"])

	risk := out["risk"].(map[string]any)
	assert.Equal(t, 0.85, risk["riskScore"])
	assert.Equal(t, "HIGH", risk["riskLevel"])
	assert.Equal(t, "HIGH RISK", risk["alert"])
}

func TestExecuteTrade_Rejections(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
		kind string
	}{
		{"validation", domain.NewError(domain.ErrValidation, "qty must be greater than 0"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"price", domain.NewError(domain.ErrPriceUnavailable, "Price not available for ZZZ"), http.StatusServiceUnavailable, "PRICE_UNAVAILABLE"},
		{"balance", domain.NewError(domain.ErrInsufficientBalance, "Insufficient balance: need 10.00, have 1.00"), http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE"},
		{"holdings", domain.NewError(domain.ErrInsufficientHoldings, "Insufficient holdings: no position in AAPL"), http.StatusUnprocessableEntity, "INSUFFICIENT_HOLDINGS"},
		{"persistence", domain.WrapError(domain.ErrPersistence, "failed to persist trade", errors.New("disk full")), http.StatusInternalServerError, "PERSISTENCE_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := filledOrder()
			order.Status = domain.OrderStatusRejected
			order.RejectReason = domain.ReasonOf(tt.err)
			h := NewTradeHandler(&stubTrades{result: service.TradeResult{Order: order}, err: tt.err}, &stubOrders{}, discardLogger())

			rec := httptest.NewRecorder()
			h.ExecuteTrade(rec, httptest.NewRequest(http.MethodPost, "/api/trade",
				strings.NewReader(`{"accountId":"acct-1","symbol":"AAPL","type":"BUY","qty":10}`)))

			assert.Equal(t, tt.want, rec.Code)
			out := decode(t, rec)
			assert.Equal(t, tt.kind, out["kind"])
			assert.Equal(t, domain.ReasonOf(tt.err), out["error"])
			assert.NotContains(t, rec.Body.String(), "disk full")
			assert.Equal(t, "REJECTED", out["order"].(map[string]any)["status"])
		})
	}
}

func TestExecuteTrade_BadBody(t *testing.T) {
	trades := &stubTrades{}
	h := NewTradeHandler(trades, &stubOrders{}, discardLogger())

	for _, body := range []string{`{`, `{"symbol":"AAPL","extra":1}`, `{"qty":"ten"}`} {
		rec := httptest.NewRecorder()
		h.ExecuteTrade(rec, httptest.NewRequest(http.MethodPost, "/api/trade", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "VALIDATION_ERROR", decode(t, rec)["kind"])
	}
	assert.Empty(t, trades.got.AccountID)
}

func TestListOrders(t *testing.T) {
	orders := &stubOrders{orders: []domain.Order{filledOrder()}}
	h := NewTradeHandler(&stubTrades{}, orders, discardLogger())

	rec := httptest.NewRecorder()
	h.ListOrders(rec, httptest.NewRequest(http.MethodGet, "/api/trade/history?accountId=acct-1&limit=900", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 500, orders.opts.Limit)
	assert.Len(t, decode(t, rec)["orders"], 1)

	rec = httptest.NewRecorder()
	h.ListOrders(rec, httptest.NewRequest(http.MethodGet, "/api/trade/history", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	orders.err = errors.New("db gone")
	rec = httptest.NewRecorder()
	h.ListOrders(rec, httptest.NewRequest(http.MethodGet, "/api/trade/history?accountId=acct-1", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db gone")
}

func TestGetRisk(t *testing.T) {
	snap := domain.RiskSnapshot{
		AccountID:     "acct-1",
		RiskScore:     0.3333,
		RiskLevel:     domain.RiskLevelLow,
		VaR95:         12345.6789,
		Concentration: 1,
		Volatility:    0.2375,
		Leverage:      0.01752,
		TotalValue:    decimal.RequireFromString("100000"),
		HoldingsValue: decimal.RequireFromString("1752"),
		Balance:       decimal.RequireFromString("98248"),
		ComputedAt:    testNow,
	}
	h := NewRiskHandler(stubRisk{snap: snap}, discardLogger())

	rec := httptest.NewRecorder()
	h.GetRisk(rec, httptest.NewRequest(http.MethodGet, "/api/risk?accountId=acct-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	out := decode(t, rec)
	assert.Equal(t, 0.33, out["riskScore"])
	assert.Equal(t, 12345.68, out["var"])
	assert.Equal(t, 0.24, out["volatility"])
	assert.Equal(t, 0.02, out["leverage"])
	assert.Equal(t, 98248.0, out["balance"])
	assert.Nil(t, out["alert"])
}

func TestGetRisk_Errors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.NewError(domain.ErrValidation, "accountId is required"), http.StatusBadRequest},
		{domain.NewError(domain.ErrAccountNotFound, "Account nope not found"), http.StatusNotFound},
		{domain.WrapError(domain.ErrLockTimeout, "request cancelled while waiting for account", context.Canceled), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		h := NewRiskHandler(stubRisk{err: tt.err}, discardLogger())
		rec := httptest.NewRecorder()
		h.GetRisk(rec, httptest.NewRequest(http.MethodGet, "/api/risk?accountId=x", nil))
		assert.Equal(t, tt.want, rec.Code, tt.err.Error())
	}

	h := NewRiskHandler(stubRisk{err: errors.New("boom")}, discardLogger())
	rec := httptest.NewRecorder()
	h.GetRisk(rec, httptest.NewRequest(http.MethodGet, "/api/risk?accountId=x", nil))
	assert.Equal(t, "internal server error", decode(t, rec)["error"])
}

type stubActivity struct {
	report domain.ActivityReport
	err    error
	gotRng string
}

func (s *stubActivity) Activity(_ context.Context, _ string, rng string) (domain.ActivityReport, error) {
	s.gotRng = rng
	return s.report, s.err
}

func TestGetActivity(t *testing.T) {
	act := &stubActivity{report: domain.ActivityReport{
		AccountID: "acct-1",
		Range:     domain.Range30D,
		Label:     "last 30 days",
		Buckets: []domain.ActivityBucket{
			{Label: "W1", Buys: 2}, {Label: "W2", Sells: 1}, {Label: "W3"}, {Label: "W4"},
		},
		Stats: domain.ActivityStats{TotalTrades: 3, Buys: 2, Sells: 1, AvgTrade: 800, WinRate: 67},
	}}
	h := NewActivityHandler(act, discardLogger())

	rec := httptest.NewRecorder()
	h.GetActivity(rec, httptest.NewRequest(http.MethodGet, "/api/trade/activity?accountId=acct-1&range=30d", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "30d", act.gotRng)
	assert.JSONEq(t, `{
		"range":"30d","label":"last 30 days",
		"buckets":[{"label":"W1","buys":2,"sells":0},{"label":"W2","buys":0,"sells":1},{"label":"W3","buys":0,"sells":0},{"label":"W4","buys":0,"sells":0}],
		"stats":{"totalTrades":3,"buys":2,"sells":1,"avgTrade":800,"winRate":67}
	}`, rec.Body.String())

	act.err = domain.NewError(domain.ErrValidation, `unknown range "2w"`)
	rec = httptest.NewRecorder()
	h.GetActivity(rec, httptest.NewRequest(http.MethodGet, "/api/trade/activity?accountId=acct-1&range=2w", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAccount(t *testing.T) {
	accounts := &stubAccounts{}
	h := NewAccountHandler(accounts, stubPortfolio{}, discardLogger())

	rec := httptest.NewRecorder()
	h.CreateAccount(rec, httptest.NewRequest(http.MethodPost, "/api/accounts",
		strings.NewReader(`{"accountId":" acct-9 ","balance":2500.5}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "acct-9", out["accountId"])
	assert.Equal(t, 2500.5, out["balance"])
	assert.True(t, accounts.balance.Equal(decimal.RequireFromString("2500.5")))

	rec = httptest.NewRecorder()
	h.CreateAccount(rec, httptest.NewRequest(http.MethodPost, "/api/accounts",
		strings.NewReader(`{"accountId":"acct-9","balance":-1}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.CreateAccount(rec, httptest.NewRequest(http.MethodPost, "/api/accounts",
		strings.NewReader(`{"balance":10}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	accounts.err = domain.WrapError(domain.ErrAlreadyExists, "Account acct-9 already exists", domain.ErrAlreadyExists)
	rec = httptest.NewRecorder()
	h.CreateAccount(rec, httptest.NewRequest(http.MethodPost, "/api/accounts",
		strings.NewReader(`{"accountId":"acct-9","balance":10}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_EXISTS", decode(t, rec)["kind"])
}

func TestGetPortfolio(t *testing.T) {
	view := domain.PortfolioView{
		Account: domain.Account{ID: "acct-1", CashBalance: decimal.RequireFromString("98248")},
		Holdings: []domain.HoldingView{{
			Holding:       domain.Holding{Symbol: "AAPL", Quantity: 10, AvgCost: decimal.RequireFromString("175.2")},
			CurrentPrice:  decimal.RequireFromString("180.123"),
			MarketValue:   decimal.RequireFromString("1801.23"),
			UnrealizedPnL: decimal.RequireFromString("49.23"),
			PriceSource:   domain.PriceSourceLive,
		}},
		HoldingsValue: decimal.RequireFromString("1801.23"),
		TotalValue:    decimal.RequireFromString("100049.23"),
	}
	h := NewAccountHandler(&stubAccounts{}, stubPortfolio{view: view}, discardLogger())

	rec := httptest.NewRecorder()
	h.GetPortfolio(rec, httptest.NewRequest(http.MethodGet, "/api/portfolio?accountId=acct-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	out := decode(t, rec)
	assert.Equal(t, 100049.23, out["totalValue"])
	holdings := out["holdings"].([]any)
	require.Len(t, holdings, 1)
	first := holdings[0].(map[string]any)
	assert.Equal(t, 180.12, first["currentPrice"])
	assert.Equal(t, "live", first["priceSource"])
}

type stubPrices []domain.Price

func (s stubPrices) Prices() []domain.Price { return s }

func TestListPrices(t *testing.T) {
	h := NewPriceHandler(stubPrices{
		{Symbol: "AAPL", Value: decimal.RequireFromString("175.204"), ObservedAt: testNow},
	}, discardLogger())

	rec := httptest.NewRecorder()
	h.ListPrices(rec, httptest.NewRequest(http.MethodGet, "/api/prices", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"prices":[{"symbol":"AAPL","price":175.2,"timestamp":"2024-05-15T10:30:00Z"}]}`, rec.Body.String())
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthCheck(t *testing.T) {
	up := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("refused") })

	rec := httptest.NewRecorder()
	NewHealthHandler(map[string]Pinger{"ledger": up}, discardLogger()).
		HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	rec = httptest.NewRecorder()
	NewHealthHandler(map[string]Pinger{"ledger": up, "redis": down}, discardLogger()).
		HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "degraded", out["status"])
	assert.Equal(t, "down", out["dependencies"].(map[string]any)["redis"])
}
