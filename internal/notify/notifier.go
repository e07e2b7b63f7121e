// Package notify delivers risk alerts to operators. Alerts are fanned out to
// every registered sender (Telegram, Discord, Kafka) and filtered by level.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/riskdesk/internal/domain"
)

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, alert domain.Alert) error
	// Name identifies the sender in logs (e.g. "telegram").
	Name() string
}

// Notifier forwards alerts whose level is in the allowed set to all senders.
type Notifier struct {
	senders []Sender
	levels  map[domain.RiskLevel]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty levels list allows every level.
func NewNotifier(senders []Sender, levels []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.RiskLevel]bool, len(levels))
	for _, l := range levels {
		allowed[domain.RiskLevel(strings.ToUpper(strings.TrimSpace(l)))] = true
	}
	return &Notifier{
		senders: senders,
		levels:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Len returns the number of senders.
func (n *Notifier) Len() int { return len(n.senders) }

// Notify delivers alert to every sender. A failing sender does not stop
// delivery to the others; failures are combined into the returned error.
func (n *Notifier) Notify(ctx context.Context, alert domain.Alert) error {
	if len(n.levels) > 0 && !n.levels[alert.Level] {
		n.logger.DebugContext(ctx, "alert filtered out",
			slog.String("account_id", alert.AccountID),
			slog.String("level", string(alert.Level)),
		)
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, alert); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("account_id", alert.AccountID),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "alert sent",
			slog.String("sender", s.Name()),
			slog.String("account_id", alert.AccountID),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// title renders the one-line heading shared by the chat senders.
func title(a domain.Alert) string {
	return fmt.Sprintf("%s risk on account %s", a.Level, a.AccountID)
}
