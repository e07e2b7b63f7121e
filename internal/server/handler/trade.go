package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/riskdesk/internal/domain"
	"github.com/alanyoungcy/riskdesk/internal/service"
)

// TradeService defines the methods that the trade handler requires.
type TradeService interface {
	Execute(ctx context.Context, req service.TradeRequest) (service.TradeResult, error)
}

// OrderLister reads an account's order log.
type OrderLister interface {
	ListOrders(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Order, error)
}

// TradeHandler serves trade execution and order history endpoints.
type TradeHandler struct {
	trades TradeService
	orders OrderLister
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler with the given services and logger.
func NewTradeHandler(trades TradeService, orders OrderLister, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades: trades,
		orders: orders,
		logger: logHandler(logger, "trade"),
	}
}

type orderResponse struct {
	ID           string  `json:"id"`
	AccountID    string  `json:"accountId"`
	Symbol       string  `json:"symbol"`
	Type         string  `json:"type"`
	Qty          int64   `json:"qty"`
	Price        float64 `json:"price"`
	TotalValue   float64 `json:"totalValue"`
	Status       string  `json:"status"`
	RejectReason string  `json:"rejectReason,omitempty"`
	CreatedAt    string  `json:"createdAt"`
}

func newOrderResponse(o domain.Order) orderResponse {
	return orderResponse{
		ID:           o.ID,
		AccountID:    o.AccountID,
		Symbol:       o.Symbol,
		Type:         string(o.Type),
		Qty:          o.Qty,
		Price:        money(o.Price),
		TotalValue:   money(o.Notional()),
		Status:       string(o.Status),
		RejectReason: o.RejectReason,
		CreatedAt:    o.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

type tradeResponse struct {
	Status  string        `json:"status"`
	Message string        `json:"message"`
	Order   orderResponse `json:"order"`
	Risk    *riskResponse `json:"risk,omitempty"`
}

type tradeRejectedResponse struct {
	Error string        `json:"error"`
	Kind  string        `json:"kind"`
	Order orderResponse `json:"order"`
}

// ExecuteTrade validates and fills an order.
// POST /api/trade
func (h *TradeHandler) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var req service.TradeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "invalid request body: " + err.Error(),
			Kind:  domain.KindOf(domain.ErrValidation),
		})
		return
	}

	result, err := h.trades.Execute(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: execute trade failed",
				slog.String("order_id", result.Order.ID),
				slog.String("error", err.Error()),
			)
		}
		writeJSON(w, status, tradeRejectedResponse{
			Error: domain.ReasonOf(err),
			Kind:  domain.KindOf(err),
			Order: newOrderResponse(result.Order),
		})
		return
	}

	resp := tradeResponse{
		Status:  "success",
		Message: fmt.Sprintf("%s order executed successfully", result.Order.Type),
		Order:   newOrderResponse(result.Order),
	}
	if !result.Snapshot.ComputedAt.IsZero() {
		rr := newRiskResponse(result.Snapshot)
		resp.Risk = &rr
	}
	writeJSON(w, http.StatusOK, resp)
}

type listOrdersResponse struct {
	Orders []orderResponse `json:"orders"`
}

// ListOrders returns an account's filled orders, oldest first.
// GET /api/trade/history?accountId=...&limit=50&offset=0
func (h *TradeHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("accountId")
	if accountID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "accountId query parameter required",
			Kind:  domain.KindOf(domain.ErrValidation),
		})
		return
	}

	orders, err := h.orders.ListOrders(r.Context(), accountID, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list orders failed",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, newOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, listOrdersResponse{Orders: out})
}
