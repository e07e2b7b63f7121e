package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/riskdesk/internal/domain"
)

// PriceLister returns the cached prices sorted by symbol.
type PriceLister interface {
	Prices() []domain.Price
}

// PriceHandler serves the current price cache.
type PriceHandler struct {
	prices PriceLister
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler.
func NewPriceHandler(prices PriceLister, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{prices: prices, logger: logHandler(logger, "prices")}
}

type priceResponse struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp string  `json:"timestamp"`
}

// ListPrices returns the latest price of every known symbol.
// GET /api/prices
func (h *PriceHandler) ListPrices(w http.ResponseWriter, r *http.Request) {
	prices := h.prices.Prices()
	out := make([]priceResponse, 0, len(prices))
	for _, p := range prices {
		out = append(out, priceResponse{
			Symbol:    p.Symbol,
			Price:     money(p.Value),
			Timestamp: p.ObservedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"prices": out})
}
