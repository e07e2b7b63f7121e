package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/riskdesk/internal/activity"
	"github.com/alanyoungcy/riskdesk/internal/domain"
)

// ActivityService reports bucketed trade activity from the order log.
type ActivityService struct {
	ledger domain.Ledger
	logger *slog.Logger
	now    func() time.Time
}

// NewActivityService creates an ActivityService reading from ledger.
func NewActivityService(ledger domain.Ledger, logger *slog.Logger) *ActivityService {
	return &ActivityService{
		ledger: ledger,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Activity returns the report of accountID over rangeName ("7d", "30d",
// "90d" or "1y"; empty means "7d"). An account that does not exist yet
// yields an empty report.
func (s *ActivityService) Activity(ctx context.Context, accountID, rangeName string) (domain.ActivityReport, error) {
	if accountID == "" {
		return domain.ActivityReport{}, domain.NewError(domain.ErrValidation, "accountId is required")
	}
	r, err := activity.ParseRange(rangeName)
	if err != nil {
		return domain.ActivityReport{}, err
	}
	w, err := activity.NewWindow(r, s.now())
	if err != nil {
		return domain.ActivityReport{}, err
	}

	if _, err := s.ledger.GetAccount(ctx, accountID); err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return activity.Empty(accountID, w), nil
		}
		return domain.ActivityReport{}, domain.WrapError(domain.ErrPersistence, "failed to load account", err)
	}

	since := w.Start
	orders, err := s.ledger.ListOrders(ctx, accountID, domain.ListOpts{Since: &since})
	if err != nil {
		s.logger.ErrorContext(ctx, "activity_service: list orders failed",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		return domain.ActivityReport{}, domain.WrapError(domain.ErrPersistence,
			fmt.Sprintf("failed to load orders for %s", accountID), err)
	}
	return activity.Aggregate(accountID, w, orders), nil
}
