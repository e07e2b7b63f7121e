package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/riskdesk/internal/domain"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestLedgerAccountLifecycle(t *testing.T) {
	ctx := context.Background()
	l := openMemory(t).Ledger()

	require.NoError(t, l.CreateAccount(ctx, domain.Account{ID: "acc", CashBalance: dec("100000")}))

	err := l.CreateAccount(ctx, domain.Account{ID: "acc", CashBalance: dec("1")})
	assert.True(t, errors.Is(err, domain.ErrAlreadyExists), "got %v", err)

	a, err := l.GetAccount(ctx, "acc")
	require.NoError(t, err)
	assert.True(t, a.CashBalance.Equal(dec("100000")))

	_, err = l.GetAccount(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrAccountNotFound))

	all, err := l.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestLedgerCommitBuyThenSell(t *testing.T) {
	ctx := context.Background()
	l := openMemory(t).Ledger()
	require.NoError(t, l.CreateAccount(ctx, domain.Account{ID: "acc", CashBalance: dec("100000")}))

	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	buy := domain.LedgerEntry{
		AccountID:   "acc",
		CashBalance: dec("91240"),
		Holding:     &domain.Holding{AccountID: "acc", Symbol: "AAPL", Quantity: 50, AvgCost: dec("175.2")},
		Order: domain.Order{ID: "o1", AccountID: "acc", Symbol: "AAPL", Type: domain.OrderTypeBuy,
			Qty: 50, Price: dec("175.2"), Status: domain.OrderStatusFilled, CreatedAt: t0},
	}
	require.NoError(t, l.Commit(ctx, buy))

	a, err := l.GetAccount(ctx, "acc")
	require.NoError(t, err)
	assert.True(t, a.CashBalance.Equal(dec("91240")))

	hs, err := l.ListHoldings(ctx, "acc")
	require.NoError(t, err)
	require.Len(t, hs, 1)
	assert.Equal(t, int64(50), hs[0].Quantity)
	assert.True(t, hs[0].AvgCost.Equal(dec("175.2")))

	sell := domain.LedgerEntry{
		AccountID:    "acc",
		CashBalance:  dec("100240"),
		RemoveSymbol: "AAPL",
		Order: domain.Order{ID: "o2", AccountID: "acc", Symbol: "AAPL", Type: domain.OrderTypeSell,
			Qty: 50, Price: dec("180"), Status: domain.OrderStatusFilled, CreatedAt: t0.Add(time.Hour)},
	}
	require.NoError(t, l.Commit(ctx, sell))

	hs, err = l.ListHoldings(ctx, "acc")
	require.NoError(t, err)
	assert.Empty(t, hs)

	orders, err := l.ListOrders(ctx, "acc", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "o1", orders[0].ID)
	assert.Equal(t, domain.OrderTypeSell, orders[1].Type)
	assert.True(t, orders[1].Price.Equal(dec("180")))
	assert.True(t, orders[0].CreatedAt.Equal(t0))

	since := t0.Add(time.Minute)
	orders, err = l.ListOrders(ctx, "acc", domain.ListOpts{Since: &since})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "o2", orders[0].ID)

	before, err := l.ListOrdersBefore(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, before, 1)
	assert.Equal(t, "o1", before[0].ID)
}

func TestLedgerCommitUpsertsHolding(t *testing.T) {
	ctx := context.Background()
	l := openMemory(t).Ledger()
	require.NoError(t, l.CreateAccount(ctx, domain.Account{ID: "acc", CashBalance: dec("10000")}))

	for i, h := range []domain.Holding{
		{Symbol: "MSFT", Quantity: 10, AvgCost: dec("100")},
		{Symbol: "MSFT", Quantity: 20, AvgCost: dec("150")},
	} {
		h := h
		require.NoError(t, l.Commit(ctx, domain.LedgerEntry{
			AccountID:   "acc",
			CashBalance: dec("5000"),
			Holding:     &h,
			Order: domain.Order{ID: []string{"a", "b"}[i], AccountID: "acc", Symbol: "MSFT",
				Type: domain.OrderTypeBuy, Qty: 10, Price: dec("100"), Status: domain.OrderStatusFilled},
		}))
	}

	hs, err := l.ListHoldings(ctx, "acc")
	require.NoError(t, err)
	require.Len(t, hs, 1)
	assert.Equal(t, int64(20), hs[0].Quantity)
	assert.True(t, hs[0].AvgCost.Equal(dec("150")))
}

func TestLedgerCommitRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	l := openMemory(t).Ledger()
	require.NoError(t, l.CreateAccount(ctx, domain.Account{ID: "acc", CashBalance: dec("1000")}))

	entry := domain.LedgerEntry{
		AccountID:   "acc",
		CashBalance: dec("900"),
		Holding:     &domain.Holding{Symbol: "TSLA", Quantity: 1, AvgCost: dec("100")},
		Order: domain.Order{ID: "dup", AccountID: "acc", Symbol: "TSLA", Type: domain.OrderTypeBuy,
			Qty: 1, Price: dec("100"), Status: domain.OrderStatusFilled},
	}
	require.NoError(t, l.Commit(ctx, entry))

	// Same order id violates the primary key; balance and holding must not move.
	entry.CashBalance = dec("800")
	entry.Holding = &domain.Holding{Symbol: "TSLA", Quantity: 2, AvgCost: dec("100")}
	require.Error(t, l.Commit(ctx, entry))

	a, err := l.GetAccount(ctx, "acc")
	require.NoError(t, err)
	assert.True(t, a.CashBalance.Equal(dec("900")))
	hs, err := l.ListHoldings(ctx, "acc")
	require.NoError(t, err)
	require.Len(t, hs, 1)
	assert.Equal(t, int64(1), hs[0].Quantity)
}

func TestLedgerCommitUnknownAccount(t *testing.T) {
	l := openMemory(t).Ledger()
	err := l.Commit(context.Background(), domain.LedgerEntry{
		AccountID:   "ghost",
		CashBalance: dec("1"),
		Order:       domain.Order{ID: "x", AccountID: "ghost", Symbol: "A", Type: domain.OrderTypeBuy, Qty: 1, Price: dec("1")},
	})
	assert.True(t, errors.Is(err, domain.ErrAccountNotFound))
}

func TestAuditStore(t *testing.T) {
	ctx := context.Background()
	a := openMemory(t).AuditStore()

	require.NoError(t, a.Log(ctx, "trade.filled", map[string]any{"order_id": "o1", "qty": 5}))
	require.NoError(t, a.Log(ctx, "trade.rejected", map[string]any{"reason": "Insufficient balance"}))

	entries, err := a.List(ctx, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "trade.rejected", entries[0].Event)
	assert.Equal(t, "o1", entries[1].Detail["order_id"])
	assert.Equal(t, float64(5), entries[1].Detail["qty"])
}
