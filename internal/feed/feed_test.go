package feed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/riskdesk/internal/cache/memory"
	"github.com/alanyoungcy/riskdesk/internal/domain"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type tickRecorder struct {
	mu    sync.Mutex
	ticks []domain.PriceTick
}

func (r *tickRecorder) handle(_ context.Context, t domain.PriceTick) {
	r.mu.Lock()
	r.ticks = append(r.ticks, t)
	r.mu.Unlock()
}

func (r *tickRecorder) all() []domain.PriceTick {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.PriceTick(nil), r.ticks...)
}

type mirrorRecorder struct {
	mu   sync.Mutex
	puts map[string]decimal.Decimal
}

func (m *mirrorRecorder) Put(_ context.Context, symbol string, v decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.puts == nil {
		m.puts = map[string]decimal.Decimal{}
	}
	m.puts[symbol] = v
	return nil
}

func simulatedConfig() SimulatedConfig {
	return SimulatedConfig{
		Symbols:       []string{"AAPL", "PENNY"},
		InitialPrices: []decimal.Decimal{decimal.NewFromInt(150), decimal.NewFromInt(51)},
		Interval:      time.Second,
		MaxStep:       decimal.NewFromInt(5),
		Floor:         decimal.NewFromInt(50),
	}
}

func TestNewSimulatedFeedValidates(t *testing.T) {
	rec := &tickRecorder{}
	cfg := simulatedConfig()
	cfg.InitialPrices = cfg.InitialPrices[:1]
	_, err := NewSimulatedFeed(cfg, rec.handle, nil, discard())
	assert.Error(t, err)

	cfg = simulatedConfig()
	cfg.Interval = 0
	_, err = NewSimulatedFeed(cfg, rec.handle, nil, discard())
	assert.Error(t, err)
}

func TestSimulatedStepStaysInBounds(t *testing.T) {
	rec := &tickRecorder{}
	f, err := NewSimulatedFeed(simulatedConfig(), rec.handle, nil, discard())
	require.NoError(t, err)
	f.rng = rand.New(rand.NewPCG(1, 2))

	floor := decimal.NewFromInt(50)
	step := decimal.NewFromInt(5)
	for range 1000 {
		before := append([]decimal.Decimal(nil), f.prices...)
		f.step()
		for i, p := range f.prices {
			assert.False(t, p.LessThan(floor), "price %s below floor", p)
			diff := p.Sub(before[i]).Abs()
			assert.False(t, diff.GreaterThan(step), "move %s exceeds max step", diff)
			assert.True(t, p.Equal(p.Round(2)))
		}
	}
}

func TestSimulatedEmitMirrors(t *testing.T) {
	rec := &tickRecorder{}
	mirror := &mirrorRecorder{}
	f, err := NewSimulatedFeed(simulatedConfig(), rec.handle, mirror, discard())
	require.NoError(t, err)

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.emit(context.Background(), at)

	ticks := rec.all()
	require.Len(t, ticks, 2)
	assert.Equal(t, "AAPL", ticks[0].Symbol)
	assert.True(t, ticks[0].Value.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, at, ticks[0].ObservedAt)
	assert.Len(t, mirror.puts, 2)
}

func TestSimulatedRunEmitsOpeningPrices(t *testing.T) {
	rec := &tickRecorder{}
	f, err := NewSimulatedFeed(simulatedConfig(), rec.handle, nil, discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, f.Run(ctx))
	assert.Len(t, rec.all(), 2)
}

type flakyFetcher struct {
	mu    sync.Mutex
	calls int
}

func (f *flakyFetcher) FetchMany(_ context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls == 1 {
		return nil, errors.New("connection refused")
	}
	return map[string]decimal.Decimal{"AAPL": decimal.RequireFromString("149.5")}, nil
}

func TestRedisFeedRecoversAfterError(t *testing.T) {
	rec := &tickRecorder{}
	f := NewRedisFeed(&flakyFetcher{}, []string{"AAPL", "MSFT"}, 5*time.Millisecond, rec.handle, discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	require.Eventually(t, func() bool { return len(rec.all()) > 0 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	tick := rec.all()[0]
	assert.Equal(t, "AAPL", tick.Symbol)
	assert.True(t, tick.Value.Equal(decimal.RequireFromString("149.5")))
}

func TestBusFeedForwardsPriceUpdates(t *testing.T) {
	bus := memory.NewSignalBus()
	rec := &tickRecorder{}
	f := NewBusFeed(bus, rec.handle, discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	publish := func(v any) {
		b, _ := json.Marshal(v)
		_ = bus.Publish(ctx, domain.ChannelPrices, b)
	}
	// Subscription is asynchronous; keep publishing until it is seen.
	require.Eventually(t, func() bool {
		publish(map[string]any{"event": "order_filled", "symbol": "AAPL", "price": 1})
		publish(map[string]any{"event": "price_update", "symbol": "tsla", "price": 181.5,
			"timestamp": "2024-01-01T00:00:00Z"})
		return len(rec.all()) > 0
	}, time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	for _, tick := range rec.all() {
		assert.Equal(t, "TSLA", tick.Symbol)
		assert.True(t, tick.Value.Equal(decimal.RequireFromString("181.5")))
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), tick.ObservedAt)
	}
}

func TestDecodeTickRejectsGarbage(t *testing.T) {
	_, _, err := decodeTick([]byte("not json"))
	assert.Error(t, err)

	_, ok, err := decodeTick([]byte(`{"event":"price_update","symbol":"AAPL","price":-1}`))
	assert.NoError(t, err)
	assert.False(t, ok)
}
