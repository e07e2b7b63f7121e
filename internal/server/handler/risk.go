package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/riskdesk/internal/domain"
)

// RiskService defines the methods that the risk handler requires.
type RiskService interface {
	Snapshot(ctx context.Context, accountID string) (domain.RiskSnapshot, error)
}

// RiskHandler serves account risk metrics.
type RiskHandler struct {
	risk   RiskService
	logger *slog.Logger
}

// NewRiskHandler creates a RiskHandler with the given service and logger.
func NewRiskHandler(risk RiskService, logger *slog.Logger) *RiskHandler {
	return &RiskHandler{
		risk:   risk,
		logger: logHandler(logger, "risk"),
	}
}

type riskResponse struct {
	RiskScore     float64 `json:"riskScore"`
	RiskLevel     string  `json:"riskLevel"`
	VaR           float64 `json:"var"`
	Drawdown      float64 `json:"drawdown"`
	Concentration float64 `json:"concentration"`
	Volatility    float64 `json:"volatility"`
	Leverage      float64 `json:"leverage"`
	TotalValue    float64 `json:"totalValue"`
	HoldingsValue float64 `json:"holdingsValue"`
	PnL           float64 `json:"pnl"`
	Balance       float64 `json:"balance"`
	Holdings      int     `json:"holdings"`
	Alert         *string `json:"alert"`
	Message       string  `json:"message,omitempty"`
	ComputedAt    string  `json:"computedAt"`
}

func newRiskResponse(s domain.RiskSnapshot) riskResponse {
	resp := riskResponse{
		RiskScore:     round2(s.RiskScore),
		RiskLevel:     string(s.RiskLevel),
		VaR:           round2(s.VaR95),
		Drawdown:      round2(s.DrawdownPct),
		Concentration: round2(s.Concentration),
		Volatility:    round2(s.Volatility),
		Leverage:      round2(s.Leverage),
		TotalValue:    money(s.TotalValue),
		HoldingsValue: money(s.HoldingsValue),
		PnL:           money(s.PnL),
		Balance:       money(s.Balance),
		Holdings:      s.HoldingCount,
		Message:       s.Message,
		ComputedAt:    s.ComputedAt.UTC().Format(time.RFC3339Nano),
	}
	if s.Alert != "" {
		alert := s.Alert
		resp.Alert = &alert
	}
	return resp
}

// GetRisk returns the current risk snapshot of an account.
// GET /api/risk?accountId=...
func (h *RiskHandler) GetRisk(w http.ResponseWriter, r *http.Request) {
	snap, err := h.risk.Snapshot(r.Context(), r.URL.Query().Get("accountId"))
	if err != nil {
		writeDomainError(w, h.logger, r, "get risk", err)
		return
	}
	writeJSON(w, http.StatusOK, newRiskResponse(snap))
}
