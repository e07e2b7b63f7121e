package sqlite

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/riskdesk/internal/domain"
)

// Decimals are stored as TEXT so SQLite's numeric affinity never turns them
// into floats.

type accountModel struct {
	ID          string          `gorm:"primaryKey"`
	CashBalance decimal.Decimal `gorm:"type:text;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (accountModel) TableName() string { return "accounts" }

func (m accountModel) toDomain() domain.Account {
	return domain.Account{ID: m.ID, CashBalance: m.CashBalance, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt}
}

type holdingModel struct {
	AccountID string          `gorm:"primaryKey"`
	Symbol    string          `gorm:"primaryKey"`
	Quantity  int64           `gorm:"not null"`
	AvgCost   decimal.Decimal `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (holdingModel) TableName() string { return "holdings" }

func (m holdingModel) toDomain() domain.Holding {
	return domain.Holding{AccountID: m.AccountID, Symbol: m.Symbol, Quantity: m.Quantity, AvgCost: m.AvgCost, UpdatedAt: m.UpdatedAt}
}

type orderModel struct {
	ID        string          `gorm:"primaryKey"`
	AccountID string          `gorm:"not null;index:idx_orders_account_created,priority:1"`
	Symbol    string          `gorm:"not null"`
	Type      string          `gorm:"not null"`
	Qty       int64           `gorm:"not null"`
	Price     decimal.Decimal `gorm:"type:text;not null"`
	Status    string          `gorm:"not null"`
	CreatedAt time.Time       `gorm:"index:idx_orders_account_created,priority:2;index:idx_orders_created"`
}

func (orderModel) TableName() string { return "orders" }

func orderFromDomain(o domain.Order) orderModel {
	return orderModel{
		ID:        o.ID,
		AccountID: o.AccountID,
		Symbol:    o.Symbol,
		Type:      string(o.Type),
		Qty:       o.Qty,
		Price:     o.Price,
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt.UTC(),
	}
}

func (m orderModel) toDomain() domain.Order {
	return domain.Order{
		ID:        m.ID,
		AccountID: m.AccountID,
		Symbol:    m.Symbol,
		Type:      domain.OrderType(m.Type),
		Qty:       m.Qty,
		Price:     m.Price,
		Status:    domain.OrderStatus(m.Status),
		CreatedAt: m.CreatedAt,
	}
}

type auditModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Event     string `gorm:"not null"`
	Detail    string
	CreatedAt time.Time `gorm:"index"`
}

func (auditModel) TableName() string { return "audit_log" }
