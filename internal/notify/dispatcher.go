package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/riskdesk/internal/domain"
	"github.com/alanyoungcy/riskdesk/internal/metrics"
)

// AlertDispatcher is the process's domain.AlertSink. Emit only enqueues;
// a single worker publishes each alert on the signal bus and hands it to the
// Notifier. When the queue is full the alert is dropped and logged.
type AlertDispatcher struct {
	queue    chan domain.Alert
	bus      domain.SignalBus
	notifier *Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewAlertDispatcher creates a dispatcher with room for buffer pending
// alerts. notifier may be nil.
func NewAlertDispatcher(bus domain.SignalBus, notifier *Notifier, buffer int, m *metrics.Metrics, logger *slog.Logger) *AlertDispatcher {
	if buffer < 1 {
		buffer = 1
	}
	return &AlertDispatcher{
		queue:    make(chan domain.Alert, buffer),
		bus:      bus,
		notifier: notifier,
		metrics:  m,
		logger:   logger.With(slog.String("component", "alert_dispatcher")),
	}
}

// Emit enqueues alert without blocking.
func (d *AlertDispatcher) Emit(ctx context.Context, alert domain.Alert) {
	select {
	case d.queue <- alert:
	default:
		d.metrics.AlertDropped()
		d.logger.WarnContext(ctx, "alert queue full, dropping alert",
			slog.String("account_id", alert.AccountID),
			slog.String("level", string(alert.Level)),
		)
	}
}

// Run delivers queued alerts until ctx is cancelled, then drains what is
// already queued.
func (d *AlertDispatcher) Run(ctx context.Context) error {
	d.logger.Info("alert dispatcher started")
	defer d.logger.Info("alert dispatcher stopped")

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case a := <-d.queue:
					d.deliver(context.WithoutCancel(ctx), a)
				default:
					return nil
				}
			}
		case a := <-d.queue:
			d.deliver(ctx, a)
		}
	}
}

func (d *AlertDispatcher) deliver(ctx context.Context, a domain.Alert) {
	evt, _ := json.Marshal(map[string]any{
		"event":      "alert",
		"account_id": a.AccountID,
		"level":      string(a.Level),
		"previous":   string(a.Previous),
		"risk_score": a.RiskScore,
		"message":    a.Message,
		"timestamp":  a.CreatedAt.Format(time.RFC3339Nano),
	})
	if err := d.bus.Publish(ctx, domain.ChannelAlerts, evt); err != nil {
		d.logger.WarnContext(ctx, "publish alert failed",
			slog.String("account_id", a.AccountID),
			slog.String("error", err.Error()),
		)
	}
	if d.notifier != nil {
		// Errors are already logged per sender.
		_ = d.notifier.Notify(ctx, a)
	}
}

var _ domain.AlertSink = (*AlertDispatcher)(nil)
