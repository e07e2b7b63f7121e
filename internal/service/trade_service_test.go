package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/riskdesk/internal/cache/memory"
	"github.com/alanyoungcy/riskdesk/internal/domain"
)

type tradeFixture struct {
	ledger    *memLedger
	prices    *memory.PriceCache
	bus       *memory.SignalBus
	audit     *memAudit
	alerts    *alertRecorder
	positions *PositionService
	risk      *RiskService
	trades    *TradeService
}

func newTradeFixture(t *testing.T) *tradeFixture {
	t.Helper()
	f := &tradeFixture{
		ledger: newMemLedger(),
		prices: memory.NewPriceCache(),
		bus:    memory.NewSignalBus(),
		audit:  &memAudit{},
		alerts: &alertRecorder{},
	}
	logger := discardLogger()
	f.positions = NewPositionService(f.ledger, PositionConfig{AutoCreate: true, DefaultBalance: dec("100000")}, nil, logger)
	f.risk = NewRiskService(f.positions, f.prices, f.alerts, RiskConfig{SnapshotTTL: time.Second}, nil, logger)
	f.trades = NewTradeService(f.positions, f.prices, f.risk, f.bus, f.audit, nil, logger)

	now := time.Now().UTC()
	f.prices.Set("AAPL", dec("175.20"), now)
	f.prices.Set("MSFT", dec("320"), now)
	return f
}

func TestExecuteBuyFills(t *testing.T) {
	ctx := context.Background()
	f := newTradeFixture(t)

	res, err := f.trades.Execute(ctx, TradeRequest{AccountID: "acc", Symbol: "aapl", Type: "buy", Qty: 50})
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusFilled, res.Order.Status)
	assert.Equal(t, "AAPL", res.Order.Symbol)
	assert.Equal(t, domain.OrderTypeBuy, res.Order.Type)
	assert.True(t, res.Order.Price.Equal(dec("175.20")))
	assert.NotEmpty(t, res.Order.ID)

	assert.Equal(t, "acc", res.Snapshot.AccountID)
	assert.Equal(t, "91240.00", res.Snapshot.Balance.StringFixed(2))
	assert.Equal(t, 1, res.Snapshot.HoldingCount)

	require.Len(t, f.ledger.orders, 1)
	assert.Equal(t, domain.OrderStatusFilled, f.ledger.orders[0].Status)
	assert.Equal(t, []string{"trade.filled"}, f.audit.Events())
}

func TestExecuteSellScenario(t *testing.T) {
	ctx := context.Background()
	f := newTradeFixture(t)

	_, err := f.trades.Execute(ctx, TradeRequest{AccountID: "acc", Symbol: "AAPL", Type: "BUY", Qty: 50})
	require.NoError(t, err)

	f.prices.Set("AAPL", dec("180.00"), time.Now().UTC())
	res, err := f.trades.Execute(ctx, TradeRequest{AccountID: "acc", Symbol: "AAPL", Type: "SELL", Qty: 50})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, res.Order.Status)
	assert.Equal(t, "100240.00", res.Snapshot.Balance.StringFixed(2))
	assert.Equal(t, 0, res.Snapshot.HoldingCount)
	assert.Equal(t, "No holdings - zero risk", res.Snapshot.Message)
}

func TestExecuteValidation(t *testing.T) {
	tests := []struct {
		name   string
		req    TradeRequest
		reason string
	}{
		{"missing account", TradeRequest{Symbol: "AAPL", Type: "BUY", Qty: 1}, "accountId is required"},
		{"missing symbol", TradeRequest{AccountID: "acc", Type: "BUY", Qty: 1}, "symbol is required"},
		{"bad symbol", TradeRequest{AccountID: "acc", Symbol: "AA-PL", Type: "BUY", Qty: 1}, "symbol must be alphanumeric"},
		{"bad type", TradeRequest{AccountID: "acc", Symbol: "AAPL", Type: "HOLD", Qty: 1}, "type must be one of BUY SELL"},
		{"zero qty", TradeRequest{AccountID: "acc", Symbol: "AAPL", Type: "BUY", Qty: 0}, "qty must be greater than 0"},
		{"negative qty", TradeRequest{AccountID: "acc", Symbol: "AAPL", Type: "SELL", Qty: -5}, "qty must be greater than 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTradeFixture(t)
			res, err := f.trades.Execute(context.Background(), tt.req)

			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation))
			assert.Equal(t, tt.reason, domain.ReasonOf(err))
			assert.Equal(t, domain.OrderStatusRejected, res.Order.Status)
			assert.Equal(t, tt.reason, res.Order.RejectReason)
			assert.Equal(t, 0, f.ledger.commitCount())
		})
	}
}

func TestExecutePriceUnavailable(t *testing.T) {
	f := newTradeFixture(t)

	res, err := f.trades.Execute(context.Background(), TradeRequest{AccountID: "acc", Symbol: "ZZZ", Type: "BUY", Qty: 1})
	require.Error(t, err)
	assert.Equal(t, "PRICE_UNAVAILABLE", domain.KindOf(err))
	assert.Equal(t, "Price not available for ZZZ", res.Order.RejectReason)
	assert.Equal(t, []string{"trade.rejected"}, f.audit.Events())
}

func TestExecuteRejectDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	f := newTradeFixture(t)

	_, err := f.trades.Execute(ctx, TradeRequest{AccountID: "acc", Symbol: "MSFT", Type: "BUY", Qty: 10})
	require.NoError(t, err)
	before, holdingsBefore, err := f.positions.State(ctx, "acc")
	require.NoError(t, err)

	_, err = f.trades.Execute(ctx, TradeRequest{AccountID: "acc", Symbol: "AAPL", Type: "SELL", Qty: 10})
	assert.True(t, errors.Is(err, domain.ErrInsufficientHoldings))
	_, err = f.trades.Execute(ctx, TradeRequest{AccountID: "acc", Symbol: "MSFT", Type: "BUY", Qty: 1000})
	assert.True(t, errors.Is(err, domain.ErrInsufficientBalance))

	after, holdingsAfter, err := f.positions.State(ctx, "acc")
	require.NoError(t, err)
	assert.True(t, before.CashBalance.Equal(after.CashBalance))
	assert.Equal(t, holdingsBefore, holdingsAfter)
	assert.Equal(t, 1, f.ledger.commitCount())
}

func TestExecuteAlertsOnEnteringHigh(t *testing.T) {
	ctx := context.Background()
	f := newTradeFixture(t)
	f.prices.Set("AAPL", dec("150"), time.Now().UTC())

	res, err := f.trades.Execute(ctx, TradeRequest{AccountID: "acc", Symbol: "AAPL", Type: "BUY", Qty: 660})
	require.NoError(t, err)
	assert.Equal(t, domain.RiskLevelHigh, res.Snapshot.RiskLevel)

	alerts := f.alerts.All()
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.RiskLevelHigh, alerts[0].Level)
	assert.Equal(t, domain.RiskLevelLow, alerts[0].Previous)
	assert.Contains(t, alerts[0].Message, "HIGH RISK")

	// Staying HIGH does not re-alert.
	_, err = f.trades.Execute(ctx, TradeRequest{AccountID: "acc", Symbol: "AAPL", Type: "BUY", Qty: 1})
	require.NoError(t, err)
	assert.Len(t, f.alerts.All(), 1)
}

func TestExecutePublishesFill(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newTradeFixture(t)

	ch, err := f.bus.Subscribe(ctx, domain.ChannelOrders)
	require.NoError(t, err)

	res, err := f.trades.Execute(ctx, TradeRequest{AccountID: "acc", Symbol: "MSFT", Type: "BUY", Qty: 2})
	require.NoError(t, err)

	select {
	case payload := <-ch:
		var evt map[string]any
		require.NoError(t, json.Unmarshal(payload, &evt))
		assert.Equal(t, "order_filled", evt["event"])
		assert.Equal(t, res.Order.ID, evt["order_id"])
		assert.Equal(t, "MSFT", evt["symbol"])
	case <-time.After(time.Second):
		t.Fatal("no order event published")
	}
}
