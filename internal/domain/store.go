package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// LedgerEntry is one atomic change to an account: the new cash balance, an
// optional holding upsert or removal, and the order that caused it.
type LedgerEntry struct {
	AccountID   string
	CashBalance decimal.Decimal
	// Holding is upserted when non-nil.
	Holding *Holding
	// RemoveSymbol deletes the holding for this symbol when non-empty.
	RemoveSymbol string
	Order        Order
}

// Ledger is the durable store of accounts, holdings and the order log.
type Ledger interface {
	CreateAccount(ctx context.Context, account Account) error
	GetAccount(ctx context.Context, id string) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	ListHoldings(ctx context.Context, accountID string) ([]Holding, error)
	// Commit applies entry in a single transaction.
	Commit(ctx context.Context, entry LedgerEntry) error
	ListOrders(ctx context.Context, accountID string, opts ListOpts) ([]Order, error)
	ListOrdersBefore(ctx context.Context, before time.Time) ([]Order, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
