package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/alanyoungcy/riskdesk/internal/domain"
)

// Ledger implements domain.Ledger with gorm.
type Ledger struct {
	db *gorm.DB
}

// CreateAccount inserts a new account, or returns domain.ErrAlreadyExists.
func (l *Ledger) CreateAccount(ctx context.Context, a domain.Account) error {
	now := a.CreatedAt.UTC()
	if a.CreatedAt.IsZero() {
		now = time.Now().UTC()
	}
	m := accountModel{ID: a.ID, CashBalance: a.CashBalance, CreatedAt: now, UpdatedAt: now}
	err := l.db.WithContext(ctx).Create(&m).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("sqlite: create account %s: %w", a.ID, domain.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("sqlite: create account %s: %w", a.ID, err)
	}
	return nil
}

// GetAccount returns the account, or domain.ErrAccountNotFound.
func (l *Ledger) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	var m accountModel
	err := l.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Account{}, fmt.Errorf("sqlite: get account %s: %w", id, domain.ErrAccountNotFound)
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("sqlite: get account %s: %w", id, err)
	}
	return m.toDomain(), nil
}

// ListAccounts returns every account ordered by id.
func (l *Ledger) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	var rows []accountModel
	if err := l.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite: list accounts: %w", err)
	}
	out := make([]domain.Account, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// ListHoldings returns the holdings of accountID ordered by symbol.
func (l *Ledger) ListHoldings(ctx context.Context, accountID string) ([]domain.Holding, error) {
	var rows []holdingModel
	if err := l.db.WithContext(ctx).Where("account_id = ?", accountID).Order("symbol").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite: list holdings %s: %w", accountID, err)
	}
	out := make([]domain.Holding, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// Commit applies e in one transaction.
func (l *Ledger) Commit(ctx context.Context, e domain.LedgerEntry) error {
	now := e.Order.CreatedAt.UTC()
	if e.Order.CreatedAt.IsZero() {
		now = time.Now().UTC()
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&accountModel{}).Where("id = ?", e.AccountID).Updates(map[string]any{
			"cash_balance": e.CashBalance,
			"updated_at":   now,
		})
		if res.Error != nil {
			return fmt.Errorf("update balance: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrAccountNotFound
		}

		if h := e.Holding; h != nil {
			m := holdingModel{AccountID: e.AccountID, Symbol: h.Symbol, Quantity: h.Quantity, AvgCost: h.AvgCost, UpdatedAt: now}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "account_id"}, {Name: "symbol"}},
				DoUpdates: clause.AssignmentColumns([]string{"quantity", "avg_cost", "updated_at"}),
			}).Create(&m).Error
			if err != nil {
				return fmt.Errorf("upsert holding %s: %w", h.Symbol, err)
			}
		}
		if e.RemoveSymbol != "" {
			err := tx.Where("account_id = ? AND symbol = ?", e.AccountID, e.RemoveSymbol).Delete(&holdingModel{}).Error
			if err != nil {
				return fmt.Errorf("delete holding %s: %w", e.RemoveSymbol, err)
			}
		}

		om := orderFromDomain(e.Order)
		om.CreatedAt = now
		if err := tx.Create(&om).Error; err != nil {
			return fmt.Errorf("insert order %s: %w", e.Order.ID, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlite: commit %s: %w", e.AccountID, err)
	}
	return nil
}

// ListOrders returns the orders of accountID in creation order.
func (l *Ledger) ListOrders(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Order, error) {
	q := l.db.WithContext(ctx).Where("account_id = ?", accountID)
	if opts.Since != nil {
		q = q.Where("created_at >= ?", opts.Since.UTC())
	}
	if opts.Until != nil {
		q = q.Where("created_at < ?", opts.Until.UTC())
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	var rows []orderModel
	if err := q.Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite: list orders %s: %w", accountID, err)
	}
	return ordersToDomain(rows), nil
}

// ListOrdersBefore returns every order created strictly before the cutoff.
func (l *Ledger) ListOrdersBefore(ctx context.Context, before time.Time) ([]domain.Order, error) {
	var rows []orderModel
	err := l.db.WithContext(ctx).Where("created_at < ?", before.UTC()).Order("created_at ASC, id ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sqlite: list orders before: %w", err)
	}
	return ordersToDomain(rows), nil
}

func ordersToDomain(rows []orderModel) []domain.Order {
	out := make([]domain.Order, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out
}

var _ domain.Ledger = (*Ledger)(nil)
