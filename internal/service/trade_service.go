package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/alanyoungcy/riskdesk/internal/domain"
	"github.com/alanyoungcy/riskdesk/internal/metrics"
)

// TradeRequest is an inbound order.
type TradeRequest struct {
	AccountID string           `json:"accountId" validate:"required,max=64"`
	Symbol    string           `json:"symbol" validate:"required,max=16,alphanum"`
	Type      domain.OrderType `json:"type" validate:"required,oneof=BUY SELL"`
	Qty       int64            `json:"qty" validate:"gt=0"`
}

// TradeResult is the outcome of Execute. Snapshot is the account's risk
// right after the fill and is zero for rejected orders.
type TradeResult struct {
	Order    domain.Order
	Snapshot domain.RiskSnapshot
}

// OrderExecutor applies a validated order to the account books.
type OrderExecutor interface {
	Execute(ctx context.Context, order domain.Order) (Fill, error)
}

// RiskEvaluator recomputes an account's risk after it changed.
type RiskEvaluator interface {
	Invalidate(accountID string)
	Evaluate(ctx context.Context, accountID string) (domain.RiskSnapshot, error)
}

// TradeService runs an order through RECEIVED, VALIDATED and then FILLED or
// REJECTED. The first failing check decides the rejection reason.
type TradeService struct {
	positions OrderExecutor
	prices    domain.PriceCache
	risk      RiskEvaluator
	bus       domain.SignalBus
	audit     domain.AuditStore
	metrics   *metrics.Metrics
	validate  *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

// NewTradeService creates a TradeService with all required dependencies.
func NewTradeService(
	positions OrderExecutor,
	prices domain.PriceCache,
	risk RiskEvaluator,
	bus domain.SignalBus,
	audit domain.AuditStore,
	m *metrics.Metrics,
	logger *slog.Logger,
) *TradeService {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &TradeService{
		positions: positions,
		prices:    prices,
		risk:      risk,
		bus:       bus,
		audit:     audit,
		metrics:   m,
		validate:  v,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Execute validates and applies req. A rejected order is returned together
// with a classified *domain.Error; nothing is mutated in that case.
func (s *TradeService) Execute(ctx context.Context, req TradeRequest) (TradeResult, error) {
	start := s.now()
	req.AccountID = strings.TrimSpace(req.AccountID)
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	req.Type = domain.OrderType(strings.ToUpper(strings.TrimSpace(string(req.Type))))

	order := domain.Order{
		ID:        uuid.NewString(),
		AccountID: req.AccountID,
		Symbol:    req.Symbol,
		Type:      req.Type,
		Qty:       req.Qty,
		Status:    domain.OrderStatusReceived,
		CreatedAt: start,
	}

	if err := s.validate.Struct(req); err != nil {
		return s.reject(ctx, order, domain.WrapError(domain.ErrValidation, validationReason(err), err), start)
	}

	price, ok := s.prices.Get(order.Symbol)
	if !ok || !price.Value.IsPositive() {
		return s.reject(ctx, order, domain.NewError(domain.ErrPriceUnavailable,
			fmt.Sprintf("Price not available for %s", order.Symbol)), start)
	}
	order.Price = price.Value
	order.Status = domain.OrderStatusValidated

	fill, err := s.positions.Execute(ctx, order)
	if err != nil {
		return s.reject(ctx, order, err, start)
	}
	order = fill.Order

	s.risk.Invalidate(order.AccountID)
	snap, err := s.risk.Evaluate(ctx, order.AccountID)
	if err != nil {
		s.logger.WarnContext(ctx, "trade_service: post-trade risk evaluation failed",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}

	s.metrics.TradeProcessed(string(order.Type), string(order.Status), s.now().Sub(start).Seconds())
	s.publishFill(ctx, order, fill)

	if auditErr := s.audit.Log(ctx, "trade.filled", map[string]any{
		"order_id":   order.ID,
		"account_id": order.AccountID,
		"symbol":     order.Symbol,
		"type":       string(order.Type),
		"qty":        order.Qty,
		"price":      order.Price.String(),
		"balance":    fill.Account.CashBalance.String(),
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "trade_service: audit log failed",
			slog.String("order_id", order.ID),
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "trade_service: order filled",
		slog.String("order_id", order.ID),
		slog.String("account_id", order.AccountID),
		slog.String("symbol", order.Symbol),
		slog.String("type", string(order.Type)),
		slog.Int64("qty", order.Qty),
		slog.String("price", order.Price.StringFixed(2)),
	)

	return TradeResult{Order: order, Snapshot: snap}, nil
}

func (s *TradeService) reject(ctx context.Context, order domain.Order, cause error, start time.Time) (TradeResult, error) {
	var de *domain.Error
	if !errors.As(cause, &de) {
		de = domain.WrapError(domain.ErrPersistence, "trade could not be applied", cause)
		if errors.Is(cause, domain.ErrLockTimeout) {
			de = domain.WrapError(domain.ErrLockTimeout, "request cancelled while waiting for account", cause)
		}
	}

	order.Status = domain.OrderStatusRejected
	order.RejectReason = de.Reason
	kind := domain.KindOf(de)

	s.metrics.TradeProcessed(string(order.Type), string(order.Status), s.now().Sub(start).Seconds())
	s.metrics.TradeRejected(kind)

	if auditErr := s.audit.Log(ctx, "trade.rejected", map[string]any{
		"order_id":   order.ID,
		"account_id": order.AccountID,
		"symbol":     order.Symbol,
		"type":       string(order.Type),
		"qty":        order.Qty,
		"kind":       kind,
		"reason":     de.Reason,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "trade_service: audit log failed",
			slog.String("order_id", order.ID),
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "trade_service: order rejected",
		slog.String("order_id", order.ID),
		slog.String("account_id", order.AccountID),
		slog.String("kind", kind),
		slog.String("reason", de.Reason),
	)

	return TradeResult{Order: order}, de
}

func (s *TradeService) publishFill(ctx context.Context, order domain.Order, fill Fill) {
	evt, _ := json.Marshal(map[string]any{
		"event":      "order_filled",
		"order_id":   order.ID,
		"account_id": order.AccountID,
		"symbol":     order.Symbol,
		"type":       string(order.Type),
		"qty":        order.Qty,
		"price":      order.Price.InexactFloat64(),
		"holding":    fill.Holding.Quantity,
		"balance":    fill.Account.CashBalance.InexactFloat64(),
		"timestamp":  order.CreatedAt.Format(time.RFC3339Nano),
	})
	if pubErr := s.bus.Publish(ctx, domain.ChannelOrders, evt); pubErr != nil {
		s.logger.WarnContext(ctx, "trade_service: publish event failed",
			slog.String("order_id", order.ID),
			slog.String("error", pubErr.Error()),
		)
	}
}

// validationReason turns the first field error into a client-facing message.
func validationReason(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid trade request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", fe.Field(), fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "alphanum":
		return fmt.Sprintf("%s must be alphanumeric", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
