package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"github.com/alanyoungcy/riskdesk/internal/domain"
	"github.com/alanyoungcy/riskdesk/internal/metrics"
)

// avgCostPlaces is the precision kept for weighted average costs.
const avgCostPlaces = 8

// PositionConfig controls account provisioning.
type PositionConfig struct {
	// AutoCreate opens unknown accounts with DefaultBalance on their first
	// trade.
	AutoCreate     bool
	DefaultBalance decimal.Decimal
}

// Fill is the outcome of an applied order.
type Fill struct {
	Order   domain.Order
	Account domain.Account
	Holding domain.Holding
	// Removed is set when a SELL closed the holding.
	Removed bool
}

// PositionService owns cash balances and holdings. Writes to one account are
// serialized and persisted through the ledger before they become visible;
// reads never block on writers.
type PositionService struct {
	ledger  domain.Ledger
	cfg     PositionConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	slots map[string]*accountSlot
}

// accountSlot guards one account. sem has capacity one and is the write lock;
// book is replaced wholesale after every committed change. refs counts callers
// holding the slot and is guarded by PositionService.mu.
type accountSlot struct {
	sem  chan struct{}
	book atomic.Pointer[book]
	refs int
}

type book struct {
	account  domain.Account
	holdings *btree.Map[string, domain.Holding]
}

func (b *book) clone() *book {
	return &book{account: b.account, holdings: b.holdings.Copy()}
}

func (b *book) list() []domain.Holding {
	out := make([]domain.Holding, 0, b.holdings.Len())
	b.holdings.Scan(func(_ string, h domain.Holding) bool {
		out = append(out, h)
		return true
	})
	return out
}

// NewPositionService creates a PositionService backed by ledger.
func NewPositionService(
	ledger domain.Ledger,
	cfg PositionConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *PositionService {
	return &PositionService{
		ledger:  ledger,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		slots:   make(map[string]*accountSlot),
	}
}

// OpenAccount creates an account with the given opening balance.
func (s *PositionService) OpenAccount(ctx context.Context, id string, balance decimal.Decimal) (domain.Account, error) {
	if id == "" {
		return domain.Account{}, domain.NewError(domain.ErrValidation, "accountId is required")
	}
	if balance.IsNegative() {
		return domain.Account{}, domain.NewError(domain.ErrValidation, "balance must not be negative")
	}

	slot := s.acquire(id)
	defer s.release(id, slot)
	if err := slot.lock(ctx); err != nil {
		return domain.Account{}, err
	}
	defer slot.unlock()

	now := s.now()
	acct := domain.Account{ID: id, CashBalance: balance, CreatedAt: now, UpdatedAt: now, Version: 1}
	if err := s.ledger.CreateAccount(ctx, acct); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return domain.Account{}, domain.WrapError(domain.ErrAlreadyExists, fmt.Sprintf("Account %s already exists", id), err)
		}
		return domain.Account{}, domain.WrapError(domain.ErrPersistence, "failed to create account", err)
	}

	slot.book.Store(&book{account: acct, holdings: btree.NewMap[string, domain.Holding](16)})
	s.metrics.SetLoadedAccounts(s.loadedCount())

	s.logger.InfoContext(ctx, "position_service: account opened",
		slog.String("account_id", id),
		slog.String("balance", balance.StringFixed(2)),
	)
	return acct, nil
}

// Account returns the current account state.
func (s *PositionService) Account(ctx context.Context, id string) (domain.Account, error) {
	b, err := s.view(ctx, id)
	if err != nil {
		return domain.Account{}, err
	}
	return b.account, nil
}

// Holdings returns the account's holdings sorted by symbol.
func (s *PositionService) Holdings(ctx context.Context, id string) ([]domain.Holding, error) {
	b, err := s.view(ctx, id)
	if err != nil {
		return nil, err
	}
	return b.list(), nil
}

// State returns the account and its holdings from the same committed version.
func (s *PositionService) State(ctx context.Context, id string) (domain.Account, []domain.Holding, error) {
	b, err := s.view(ctx, id)
	if err != nil {
		return domain.Account{}, nil, err
	}
	return b.account, b.list(), nil
}

// GetHolding returns the holding for symbol. ok is false when the account
// holds none of it.
func (s *PositionService) GetHolding(ctx context.Context, accountID, symbol string) (domain.Holding, bool, error) {
	b, err := s.view(ctx, accountID)
	if err != nil {
		return domain.Holding{}, false, err
	}
	h, ok := b.holdings.Get(symbol)
	return h, ok, nil
}

// AccountIDs lists the accounts currently held in memory, sorted.
func (s *PositionService) AccountIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.slots))
	for id, slot := range s.slots {
		if slot.book.Load() != nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Preload loads every persisted account into memory.
func (s *PositionService) Preload(ctx context.Context) (int, error) {
	accounts, err := s.ledger.ListAccounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("position_service: list accounts: %w", err)
	}
	for _, a := range accounts {
		if _, err := s.view(ctx, a.ID); err != nil {
			return 0, fmt.Errorf("position_service: preload %s: %w", a.ID, err)
		}
	}
	return len(accounts), nil
}

// ApplyBuy debits qty*price and adds qty to the holding.
func (s *PositionService) ApplyBuy(ctx context.Context, accountID, symbol string, qty int64, price decimal.Decimal) (domain.Holding, error) {
	fill, err := s.Execute(ctx, s.newOrder(accountID, symbol, domain.OrderTypeBuy, qty, price))
	if err != nil {
		return domain.Holding{}, err
	}
	return fill.Holding, nil
}

// ApplySell credits qty*price and removes qty from the holding. removed is
// true when the holding was closed.
func (s *PositionService) ApplySell(ctx context.Context, accountID, symbol string, qty int64, price decimal.Decimal) (domain.Holding, bool, error) {
	fill, err := s.Execute(ctx, s.newOrder(accountID, symbol, domain.OrderTypeSell, qty, price))
	if err != nil {
		return domain.Holding{}, false, err
	}
	return fill.Holding, fill.Removed, nil
}

func (s *PositionService) newOrder(accountID, symbol string, typ domain.OrderType, qty int64, price decimal.Decimal) domain.Order {
	return domain.Order{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Symbol:    symbol,
		Type:      typ,
		Qty:       qty,
		Price:     price,
		Status:    domain.OrderStatusValidated,
		CreatedAt: s.now(),
	}
}

// Execute applies a validated order to its account. The balance or holdings
// check, the ledger commit and the in-memory swap all happen under the
// account lock. On any error the account is left unchanged.
func (s *PositionService) Execute(ctx context.Context, order domain.Order) (Fill, error) {
	if order.Qty <= 0 || !order.Price.IsPositive() {
		return Fill{}, domain.NewError(domain.ErrValidation, "qty and price must be positive")
	}

	slot := s.acquire(order.AccountID)
	defer s.release(order.AccountID, slot)
	if err := slot.lock(ctx); err != nil {
		return Fill{}, err
	}
	defer slot.unlock()

	cur, err := s.load(ctx, slot, order.AccountID, true)
	if err != nil {
		return Fill{}, err
	}

	next := cur.clone()
	now := s.now()
	notional := order.Notional()
	fill := Fill{}
	entry := domain.LedgerEntry{AccountID: order.AccountID}

	switch order.Type {
	case domain.OrderTypeBuy:
		if notional.GreaterThan(cur.account.CashBalance) {
			return Fill{}, domain.NewError(domain.ErrInsufficientBalance, fmt.Sprintf(
				"Insufficient balance: need %s, have %s",
				notional.StringFixed(2), cur.account.CashBalance.StringFixed(2)))
		}
		h, ok := cur.holdings.Get(order.Symbol)
		if ok {
			total := h.Quantity + order.Qty
			h.AvgCost = h.CostBasis().Add(notional).
				Div(decimal.NewFromInt(total)).Round(avgCostPlaces)
			h.Quantity = total
		} else {
			h = domain.Holding{
				AccountID: order.AccountID,
				Symbol:    order.Symbol,
				Quantity:  order.Qty,
				AvgCost:   order.Price,
			}
		}
		h.UpdatedAt = now
		next.account.CashBalance = cur.account.CashBalance.Sub(notional)
		next.holdings.Set(order.Symbol, h)
		entry.Holding = &h
		fill.Holding = h

	case domain.OrderTypeSell:
		h, ok := cur.holdings.Get(order.Symbol)
		if !ok {
			return Fill{}, domain.NewError(domain.ErrInsufficientHoldings, fmt.Sprintf(
				"Insufficient holdings: no position in %s", order.Symbol))
		}
		if h.Quantity < order.Qty {
			return Fill{}, domain.NewError(domain.ErrInsufficientHoldings, fmt.Sprintf(
				"Insufficient holdings: have %d %s, need %d", h.Quantity, order.Symbol, order.Qty))
		}
		h.Quantity -= order.Qty
		h.UpdatedAt = now
		next.account.CashBalance = cur.account.CashBalance.Add(notional)
		if h.Quantity == 0 {
			next.holdings.Delete(order.Symbol)
			entry.RemoveSymbol = order.Symbol
			fill.Removed = true
		} else {
			next.holdings.Set(order.Symbol, h)
			entry.Holding = &h
		}
		fill.Holding = h

	default:
		return Fill{}, domain.NewError(domain.ErrValidation, fmt.Sprintf("unknown order type %q", order.Type))
	}

	next.account.UpdatedAt = now
	next.account.Version = cur.account.Version + 1
	order.Status = domain.OrderStatusFilled
	entry.CashBalance = next.account.CashBalance
	entry.Order = order

	if err := s.ledger.Commit(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "position_service: ledger commit failed",
			slog.String("account_id", order.AccountID),
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
		return Fill{}, domain.WrapError(domain.ErrPersistence, "failed to persist trade", err)
	}
	slot.book.Store(next)

	fill.Order = order
	fill.Account = next.account
	return fill, nil
}

// view returns the committed state of an account, loading it on first use.
// Unknown accounts are not auto-created here.
func (s *PositionService) view(ctx context.Context, id string) (*book, error) {
	slot := s.acquire(id)
	defer s.release(id, slot)
	if b := slot.book.Load(); b != nil {
		return b, nil
	}
	if err := slot.lock(ctx); err != nil {
		return nil, err
	}
	defer slot.unlock()
	return s.load(ctx, slot, id, false)
}

// load must be called with the slot locked.
func (s *PositionService) load(ctx context.Context, slot *accountSlot, id string, create bool) (*book, error) {
	if b := slot.book.Load(); b != nil {
		return b, nil
	}

	acct, err := s.ledger.GetAccount(ctx, id)
	if errors.Is(err, domain.ErrAccountNotFound) && create && s.cfg.AutoCreate {
		now := s.now()
		acct = domain.Account{ID: id, CashBalance: s.cfg.DefaultBalance, CreatedAt: now, UpdatedAt: now}
		err = s.ledger.CreateAccount(ctx, acct)
		if errors.Is(err, domain.ErrAlreadyExists) {
			acct, err = s.ledger.GetAccount(ctx, id)
		} else if err == nil {
			s.logger.InfoContext(ctx, "position_service: account auto-created",
				slog.String("account_id", id),
				slog.String("balance", acct.CashBalance.StringFixed(2)),
			)
		}
	}
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.WrapError(domain.ErrAccountNotFound, fmt.Sprintf("Account %s not found", id), err)
		}
		return nil, domain.WrapError(domain.ErrPersistence, "failed to load account", err)
	}

	holdings, err := s.ledger.ListHoldings(ctx, id)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "failed to load holdings", err)
	}
	tree := btree.NewMap[string, domain.Holding](16)
	for _, h := range holdings {
		tree.Set(h.Symbol, h)
	}

	acct.Version = 1
	b := &book{account: acct, holdings: tree}
	slot.book.Store(b)
	s.metrics.SetLoadedAccounts(s.loadedCount())
	return b, nil
}

// acquire returns the slot for id and pins it until release.
func (s *PositionService) acquire(id string) *accountSlot {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := s.slotLocked(id)
	slot.refs++
	return slot
}

// release unpins slot. A slot that never loaded an account is dropped once no
// caller holds it, so lookups of unknown ids leave nothing behind.
func (s *PositionService) release(id string, slot *accountSlot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot.refs--
	if slot.refs <= 0 && slot.book.Load() == nil && s.slots[id] == slot {
		delete(s.slots, id)
	}
}

func (s *PositionService) slotLocked(id string) *accountSlot {
	slot, ok := s.slots[id]
	if !ok {
		slot = &accountSlot{sem: make(chan struct{}, 1)}
		s.slots[id] = slot
	}
	return slot
}

func (s *PositionService) slotCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

func (s *PositionService) loadedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, slot := range s.slots {
		if slot.book.Load() != nil {
			n++
		}
	}
	return n
}

func (a *accountSlot) lock(ctx context.Context) error {
	select {
	case a.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("position_service: %w: %w", domain.ErrLockTimeout, ctx.Err())
	}
}

func (a *accountSlot) unlock() {
	<-a.sem
}
