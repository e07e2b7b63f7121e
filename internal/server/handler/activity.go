package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/riskdesk/internal/domain"
)

// ActivityService defines the methods that the activity handler requires.
type ActivityService interface {
	Activity(ctx context.Context, accountID, rangeName string) (domain.ActivityReport, error)
}

// ActivityHandler serves bucketed trade activity.
type ActivityHandler struct {
	activity ActivityService
	logger   *slog.Logger
}

// NewActivityHandler creates an ActivityHandler.
func NewActivityHandler(activity ActivityService, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{
		activity: activity,
		logger:   logHandler(logger, "activity"),
	}
}

type activityBucket struct {
	Label string `json:"label"`
	Buys  int    `json:"buys"`
	Sells int    `json:"sells"`
}

type activityResponse struct {
	Range   string               `json:"range"`
	Label   string               `json:"label"`
	Buckets []activityBucket     `json:"buckets"`
	Stats   domain.ActivityStats `json:"stats"`
}

// GetActivity returns the trade activity report for a range.
// GET /api/trade/activity?accountId=...&range=7d
func (h *ActivityHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	report, err := h.activity.Activity(r.Context(), q.Get("accountId"), q.Get("range"))
	if err != nil {
		writeDomainError(w, h.logger, r, "get activity", err)
		return
	}

	buckets := make([]activityBucket, 0, len(report.Buckets))
	for _, b := range report.Buckets {
		buckets = append(buckets, activityBucket{Label: b.Label, Buys: b.Buys, Sells: b.Sells})
	}
	writeJSON(w, http.StatusOK, activityResponse{
		Range:   string(report.Range),
		Label:   report.Label,
		Buckets: buckets,
		Stats:   report.Stats,
	})
}
