package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/riskdesk/internal/domain"
)

const uniqueViolation = "23505"

// Ledger implements domain.Ledger using PostgreSQL.
type Ledger struct {
	pool *pgxpool.Pool
}

// NewLedger creates a Ledger on pool.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// CreateAccount inserts a new account. It returns domain.ErrAlreadyExists when
// the id is taken.
func (l *Ledger) CreateAccount(ctx context.Context, a domain.Account) error {
	const query = `
		INSERT INTO accounts (id, cash_balance, created_at, updated_at)
		VALUES ($1, $2, $3, $3)`
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := l.pool.Exec(ctx, query, a.ID, a.CashBalance, created)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("postgres: create account %s: %w", a.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create account %s: %w", a.ID, err)
	}
	return nil
}

// GetAccount returns the account with id, or domain.ErrAccountNotFound.
func (l *Ledger) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	const query = `SELECT id, cash_balance, created_at, updated_at FROM accounts WHERE id = $1`
	var a domain.Account
	err := l.pool.QueryRow(ctx, query, id).Scan(&a.ID, &a.CashBalance, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, fmt.Errorf("postgres: get account %s: %w", id, domain.ErrAccountNotFound)
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("postgres: get account %s: %w", id, err)
	}
	return a, nil
}

// ListAccounts returns every account ordered by id.
func (l *Ledger) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := l.pool.Query(ctx, `SELECT id, cash_balance, created_at, updated_at FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.CashBalance, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan account: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list accounts rows: %w", err)
	}
	return out, nil
}

// ListHoldings returns the holdings of accountID ordered by symbol.
func (l *Ledger) ListHoldings(ctx context.Context, accountID string) ([]domain.Holding, error) {
	const query = `
		SELECT account_id, symbol, quantity, avg_cost, updated_at
		FROM holdings WHERE account_id = $1 ORDER BY symbol`
	rows, err := l.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list holdings %s: %w", accountID, err)
	}
	defer rows.Close()

	var out []domain.Holding
	for rows.Next() {
		var h domain.Holding
		if err := rows.Scan(&h.AccountID, &h.Symbol, &h.Quantity, &h.AvgCost, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan holding: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list holdings rows: %w", err)
	}
	return out, nil
}

// Commit writes the balance, holding change and order of e in one
// transaction.
func (l *Ledger) Commit(ctx context.Context, e domain.LedgerEntry) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: commit %s: begin: %w", e.AccountID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := e.Order.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tag, err := tx.Exec(ctx,
		`UPDATE accounts SET cash_balance = $2, updated_at = $3 WHERE id = $1`,
		e.AccountID, e.CashBalance, now,
	)
	if err != nil {
		return fmt.Errorf("postgres: commit %s: update balance: %w", e.AccountID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: commit %s: %w", e.AccountID, domain.ErrAccountNotFound)
	}

	if h := e.Holding; h != nil {
		const upsert = `
			INSERT INTO holdings (account_id, symbol, quantity, avg_cost, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (account_id, symbol) DO UPDATE SET
				quantity = EXCLUDED.quantity,
				avg_cost = EXCLUDED.avg_cost,
				updated_at = EXCLUDED.updated_at`
		if _, err := tx.Exec(ctx, upsert, e.AccountID, h.Symbol, h.Quantity, h.AvgCost, now); err != nil {
			return fmt.Errorf("postgres: commit %s: upsert holding %s: %w", e.AccountID, h.Symbol, err)
		}
	}
	if e.RemoveSymbol != "" {
		if _, err := tx.Exec(ctx,
			`DELETE FROM holdings WHERE account_id = $1 AND symbol = $2`,
			e.AccountID, e.RemoveSymbol,
		); err != nil {
			return fmt.Errorf("postgres: commit %s: delete holding %s: %w", e.AccountID, e.RemoveSymbol, err)
		}
	}

	o := e.Order
	const insertOrder = `
		INSERT INTO orders (id, account_id, symbol, type, qty, price, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := tx.Exec(ctx, insertOrder,
		o.ID, o.AccountID, o.Symbol, string(o.Type), o.Qty, o.Price, string(o.Status), now,
	); err != nil {
		return fmt.Errorf("postgres: commit %s: insert order %s: %w", e.AccountID, o.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit %s: %w", e.AccountID, err)
	}
	return nil
}

// ListOrders returns the orders of accountID in creation order.
func (l *Ledger) ListOrders(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Order, error) {
	var q queryBuilder
	q.add("SELECT id, account_id, symbol, type, qty, price, status, created_at FROM orders WHERE account_id = " + q.arg(accountID))
	q.filterTime(opts)
	q.add(" ORDER BY created_at ASC, id ASC")
	q.page(opts)
	return l.queryOrders(ctx, q)
}

// ListOrdersBefore returns every order created strictly before the cutoff.
func (l *Ledger) ListOrdersBefore(ctx context.Context, before time.Time) ([]domain.Order, error) {
	var q queryBuilder
	q.add("SELECT id, account_id, symbol, type, qty, price, status, created_at FROM orders WHERE created_at < " + q.arg(before))
	q.add(" ORDER BY created_at ASC, id ASC")
	return l.queryOrders(ctx, q)
}

func (l *Ledger) queryOrders(ctx context.Context, q queryBuilder) ([]domain.Order, error) {
	rows, err := l.pool.Query(ctx, q.sql.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		var (
			o           domain.Order
			typ, status string
		)
		if err := rows.Scan(&o.ID, &o.AccountID, &o.Symbol, &typ, &o.Qty, &o.Price, &status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		o.Type = domain.OrderType(typ)
		o.Status = domain.OrderStatus(status)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list orders rows: %w", err)
	}
	return out, nil
}

var _ domain.Ledger = (*Ledger)(nil)
