package feed

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/riskdesk/internal/domain"
)

// SimulatedConfig configures the random-walk market.
type SimulatedConfig struct {
	Symbols       []string
	InitialPrices []decimal.Decimal
	Interval      time.Duration
	// MaxStep bounds the absolute change of one tick.
	MaxStep decimal.Decimal
	// Floor is the lowest price a symbol can reach.
	Floor decimal.Decimal
}

// SimulatedFeed moves every symbol by a uniform random step in
// [-MaxStep, +MaxStep] once per interval, never going below Floor.
type SimulatedFeed struct {
	cfg    SimulatedConfig
	prices []decimal.Decimal
	rng    *rand.Rand
	onTick TickHandler
	mirror PriceMirror
	logger *slog.Logger
}

// NewSimulatedFeed validates cfg and creates the feed. mirror may be nil.
func NewSimulatedFeed(cfg SimulatedConfig, onTick TickHandler, mirror PriceMirror, logger *slog.Logger) (*SimulatedFeed, error) {
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("feed: no symbols configured")
	}
	if len(cfg.InitialPrices) != len(cfg.Symbols) {
		return nil, fmt.Errorf("feed: %d symbols but %d initial prices", len(cfg.Symbols), len(cfg.InitialPrices))
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("feed: interval must be positive")
	}
	return &SimulatedFeed{
		cfg:    cfg,
		prices: append([]decimal.Decimal(nil), cfg.InitialPrices...),
		rng:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
		onTick: onTick,
		mirror: mirror,
		logger: logger.With(slog.String("component", "simulated_feed")),
	}, nil
}

// Run publishes the opening prices, then one tick per symbol every interval
// until ctx is cancelled.
func (f *SimulatedFeed) Run(ctx context.Context) error {
	f.logger.Info("simulated feed started",
		slog.Int("symbols", len(f.cfg.Symbols)),
		slog.Duration("interval", f.cfg.Interval),
	)
	defer f.logger.Info("simulated feed stopped")

	f.emit(ctx, time.Now().UTC())

	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-ticker.C:
			f.step()
			f.emit(ctx, t.UTC())
		}
	}
}

// step advances every price by one random move.
func (f *SimulatedFeed) step() {
	for i, p := range f.prices {
		move := decimal.NewFromFloat((f.rng.Float64() - 0.5) * 2).Mul(f.cfg.MaxStep)
		next := p.Add(move).Round(2)
		if next.LessThan(f.cfg.Floor) {
			next = f.cfg.Floor
		}
		f.prices[i] = next
	}
}

func (f *SimulatedFeed) emit(ctx context.Context, at time.Time) {
	for i, sym := range f.cfg.Symbols {
		tick := domain.PriceTick{Symbol: sym, Value: f.prices[i], ObservedAt: at}
		f.onTick(ctx, tick)
		if f.mirror != nil {
			if err := f.mirror.Put(ctx, sym, tick.Value); err != nil {
				f.logger.Warn("mirror price failed",
					slog.String("symbol", sym),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
