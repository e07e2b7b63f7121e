package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/riskdesk/internal/domain"
)

func TestActivityReport(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 15, 10, 30, 0, 0, time.UTC)
	ledger := newMemLedger()
	require.NoError(t, ledger.CreateAccount(ctx, domain.Account{ID: "acc", CashBalance: dec("1000")}))

	add := func(typ domain.OrderType, qty int64, price string, at time.Time) {
		ledger.addOrder(domain.Order{
			ID: at.String(), AccountID: "acc", Symbol: "AAPL", Type: typ,
			Qty: qty, Price: dec(price), Status: domain.OrderStatusFilled, CreatedAt: at,
		})
	}
	add(domain.OrderTypeBuy, 10, "100", now.Add(-time.Hour))
	add(domain.OrderTypeSell, 5, "120", now.AddDate(0, 0, -2))
	add(domain.OrderTypeBuy, 1, "50", now.AddDate(0, 0, -20))

	s := NewActivityService(ledger, discardLogger())
	s.now = func() time.Time { return now }

	report, err := s.Activity(ctx, "acc", "7d")
	require.NoError(t, err)
	assert.Equal(t, domain.Range7D, report.Range)
	require.Len(t, report.Buckets, 7)
	assert.Equal(t, 2, report.Stats.TotalTrades)
	assert.Equal(t, 1, report.Stats.Buys)
	assert.Equal(t, 1, report.Stats.Sells)
	assert.Equal(t, int64(800), report.Stats.AvgTrade)
	assert.Equal(t, int64(50), report.Stats.WinRate)

	report, err = s.Activity(ctx, "acc", "30d")
	require.NoError(t, err)
	require.Len(t, report.Buckets, 4)
	assert.Equal(t, 3, report.Stats.TotalTrades)

	report, err = s.Activity(ctx, "acc", "")
	require.NoError(t, err)
	assert.Equal(t, domain.Range7D, report.Range)
}

func TestActivityUnknownAccountIsEmpty(t *testing.T) {
	s := NewActivityService(newMemLedger(), discardLogger())

	report, err := s.Activity(context.Background(), "nobody", "90d")
	require.NoError(t, err)
	require.Len(t, report.Buckets, 3)
	assert.Equal(t, 0, report.Stats.TotalTrades)
}

func TestActivityRejectsBadInput(t *testing.T) {
	s := NewActivityService(newMemLedger(), discardLogger())

	_, err := s.Activity(context.Background(), "acc", "2w")
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = s.Activity(context.Background(), "", "7d")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}
