package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/riskdesk/internal/domain"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memLedger is an in-memory domain.Ledger with commit failure injection.
type memLedger struct {
	mu         sync.Mutex
	accounts   map[string]domain.Account
	holdings   map[string]map[string]domain.Holding
	orders     []domain.Order
	commits    int
	failCommit error
}

func newMemLedger() *memLedger {
	return &memLedger{
		accounts: make(map[string]domain.Account),
		holdings: make(map[string]map[string]domain.Holding),
	}
}

func (l *memLedger) CreateAccount(_ context.Context, a domain.Account) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.accounts[a.ID]; ok {
		return fmt.Errorf("mem: create %s: %w", a.ID, domain.ErrAlreadyExists)
	}
	l.accounts[a.ID] = a
	l.holdings[a.ID] = make(map[string]domain.Holding)
	return nil
}

func (l *memLedger) GetAccount(_ context.Context, id string) (domain.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[id]
	if !ok {
		return domain.Account{}, fmt.Errorf("mem: get %s: %w", id, domain.ErrAccountNotFound)
	}
	return a, nil
}

func (l *memLedger) ListAccounts(_ context.Context) ([]domain.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Account, 0, len(l.accounts))
	for _, a := range l.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (l *memLedger) ListHoldings(_ context.Context, accountID string) ([]domain.Holding, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Holding, 0)
	for _, h := range l.holdings[accountID] {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (l *memLedger) Commit(_ context.Context, e domain.LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failCommit != nil {
		return l.failCommit
	}
	a, ok := l.accounts[e.AccountID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.CashBalance = e.CashBalance
	l.accounts[e.AccountID] = a
	if e.Holding != nil {
		l.holdings[e.AccountID][e.Holding.Symbol] = *e.Holding
	}
	if e.RemoveSymbol != "" {
		delete(l.holdings[e.AccountID], e.RemoveSymbol)
	}
	l.orders = append(l.orders, e.Order)
	l.commits++
	return nil
}

func (l *memLedger) ListOrders(_ context.Context, accountID string, opts domain.ListOpts) ([]domain.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Order
	for _, o := range l.orders {
		if o.AccountID != accountID {
			continue
		}
		if opts.Since != nil && o.CreatedAt.Before(*opts.Since) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (l *memLedger) ListOrdersBefore(_ context.Context, before time.Time) ([]domain.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Order
	for _, o := range l.orders {
		if o.CreatedAt.Before(before) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (l *memLedger) addOrder(o domain.Order) {
	l.mu.Lock()
	l.orders = append(l.orders, o)
	l.mu.Unlock()
}

func (l *memLedger) commitCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.commits
}

// memAudit records audit events.
type memAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.mu.Lock()
	a.events = append(a.events, event)
	a.mu.Unlock()
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func (a *memAudit) Events() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.events...)
}

// alertRecorder is a synchronous domain.AlertSink.
type alertRecorder struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (r *alertRecorder) Emit(_ context.Context, a domain.Alert) {
	r.mu.Lock()
	r.alerts = append(r.alerts, a)
	r.mu.Unlock()
}

func (r *alertRecorder) All() []domain.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Alert(nil), r.alerts...)
}
