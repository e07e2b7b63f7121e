package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/riskdesk/internal/domain"
	"github.com/alanyoungcy/riskdesk/internal/metrics"
	"github.com/alanyoungcy/riskdesk/internal/risk"
)

// AccountState is the read side of PositionService used by risk evaluation.
type AccountState interface {
	State(ctx context.Context, id string) (domain.Account, []domain.Holding, error)
	AccountIDs() []string
}

// RiskConfig holds the tunables of RiskService.
type RiskConfig struct {
	// SnapshotTTL is how long Snapshot may serve a cached result. Zero
	// disables caching.
	SnapshotTTL        time.Duration
	MonitorInterval    time.Duration
	MonitorConcurrency int
}

// RiskService evaluates account risk against the latest prices and raises
// alerts when an account moves into an alerting level.
type RiskService struct {
	accounts AccountState
	prices   domain.PriceCache
	alerts   domain.AlertSink
	cfg      RiskConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	cache  map[string]domain.RiskSnapshot
	levels map[string]domain.RiskLevel
	// versions holds the newest account version each account was evaluated
	// at; results computed from an older version are not stored.
	versions map[string]uint64
}

// NewRiskService creates a RiskService. alerts may be nil.
func NewRiskService(
	accounts AccountState,
	prices domain.PriceCache,
	alerts domain.AlertSink,
	cfg RiskConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *RiskService {
	if cfg.MonitorConcurrency <= 0 {
		cfg.MonitorConcurrency = 1
	}
	return &RiskService{
		accounts: accounts,
		prices:   prices,
		alerts:   alerts,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		cache:    make(map[string]domain.RiskSnapshot),
		levels:   make(map[string]domain.RiskLevel),
		versions: make(map[string]uint64),
	}
}

// Snapshot returns the account's risk, reusing a snapshot younger than the
// configured TTL.
func (s *RiskService) Snapshot(ctx context.Context, accountID string) (domain.RiskSnapshot, error) {
	if accountID == "" {
		return domain.RiskSnapshot{}, domain.NewError(domain.ErrValidation, "accountId is required")
	}
	if s.cfg.SnapshotTTL > 0 {
		s.mu.Lock()
		snap, ok := s.cache[accountID]
		s.mu.Unlock()
		if ok && s.now().Sub(snap.ComputedAt) < s.cfg.SnapshotTTL {
			return snap, nil
		}
	}
	return s.Evaluate(ctx, accountID)
}

// Evaluate computes a fresh snapshot and emits an alert if the level changed
// into MEDIUM or HIGH. An evaluation that read an account version older than
// one already evaluated neither caches nor moves the level; the newer cached
// snapshot is returned when there is one.
func (s *RiskService) Evaluate(ctx context.Context, accountID string) (domain.RiskSnapshot, error) {
	acct, holdings, err := s.accounts.State(ctx, accountID)
	if err != nil {
		return domain.RiskSnapshot{}, err
	}

	snap := risk.Compute(risk.Input{
		AccountID: accountID,
		Balance:   acct.CashBalance,
		Holdings:  holdings,
		Prices:    s.prices.Snapshot(),
		Now:       s.now(),
	})
	s.metrics.RiskEvaluated(string(snap.RiskLevel), snap.RiskScore)

	s.mu.Lock()
	if latest, ok := s.versions[accountID]; ok && acct.Version < latest {
		cached, hit := s.cache[accountID]
		s.mu.Unlock()
		s.logger.DebugContext(ctx, "risk_service: discarded stale evaluation",
			slog.String("account_id", accountID),
			slog.Uint64("version", acct.Version),
			slog.Uint64("latest", latest),
		)
		if hit {
			return cached, nil
		}
		return snap, nil
	}
	s.versions[accountID] = acct.Version
	prev, seen := s.levels[accountID]
	s.levels[accountID] = snap.RiskLevel
	s.cache[accountID] = snap
	s.mu.Unlock()

	if !seen {
		prev = domain.RiskLevelLow
	}
	if snap.RiskLevel != prev && snap.RiskLevel.Alerting() {
		s.raise(ctx, snap, prev)
	}
	return snap, nil
}

// Invalidate drops the cached snapshot of an account.
func (s *RiskService) Invalidate(accountID string) {
	s.mu.Lock()
	delete(s.cache, accountID)
	s.mu.Unlock()
}

// Monitor re-evaluates every loaded account on each tick until ctx is
// cancelled.
func (s *RiskService) Monitor(ctx context.Context) error {
	if s.cfg.MonitorInterval <= 0 {
		return fmt.Errorf("risk_service: monitor interval must be positive")
	}
	ticker := time.NewTicker(s.cfg.MonitorInterval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "risk_service: monitor started",
		slog.Duration("interval", s.cfg.MonitorInterval),
		slog.Int("concurrency", s.cfg.MonitorConcurrency),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep evaluates all loaded accounts once with bounded parallelism.
func (s *RiskService) Sweep(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MonitorConcurrency)

	for _, id := range s.accounts.AccountIDs() {
		g.Go(func() error {
			if _, err := s.Evaluate(gctx, id); err != nil {
				s.logger.WarnContext(gctx, "risk_service: evaluate failed",
					slog.String("account_id", id),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *RiskService) raise(ctx context.Context, snap domain.RiskSnapshot, prev domain.RiskLevel) {
	alert := domain.Alert{
		AccountID: snap.AccountID,
		Level:     snap.RiskLevel,
		Previous:  prev,
		RiskScore: snap.RiskScore,
		Message:   snap.Alert,
		CreatedAt: snap.ComputedAt,
	}
	s.logger.WarnContext(ctx, "risk_service: risk level changed",
		slog.String("account_id", snap.AccountID),
		slog.String("from", string(prev)),
		slog.String("to", string(snap.RiskLevel)),
		slog.Float64("risk_score", snap.RiskScore),
	)
	s.metrics.AlertEmitted(string(snap.RiskLevel))
	if s.alerts != nil {
		s.alerts.Emit(ctx, alert)
	}
}
