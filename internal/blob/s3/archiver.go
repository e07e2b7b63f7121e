package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alanyoungcy/riskdesk/internal/domain"
	"github.com/alanyoungcy/riskdesk/internal/metrics"
)

const jsonlContentType = "application/x-ndjson"

// OrderSource lists orders older than a cutoff.
type OrderSource interface {
	ListOrdersBefore(ctx context.Context, before time.Time) ([]domain.Order, error)
}

// Blobs is the object storage the archiver writes to.
type Blobs interface {
	domain.BlobWriter
	domain.BlobReader
}

// OrderArchiver copies the order log to object storage as one JSONL file per
// UTC day, e.g. orders/2024-05-15.jsonl. Days already archived are skipped;
// orders are never deleted from the ledger.
type OrderArchiver struct {
	orders  OrderSource
	blobs   Blobs
	audit   domain.AuditStore
	prefix  string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewOrderArchiver creates an OrderArchiver writing under prefix.
func NewOrderArchiver(orders OrderSource, blobs Blobs, audit domain.AuditStore, prefix string, m *metrics.Metrics, logger *slog.Logger) *OrderArchiver {
	return &OrderArchiver{
		orders:  orders,
		blobs:   blobs,
		audit:   audit,
		prefix:  prefix,
		metrics: m,
		logger:  logger.With(slog.String("component", "order_archiver")),
	}
}

// ArchiveOrders uploads every not-yet-archived day of orders created before
// the cutoff and returns how many orders were written.
func (a *OrderArchiver) ArchiveOrders(ctx context.Context, before time.Time) (int64, error) {
	orders, err := a.orders.ListOrdersBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: list orders: %w", err)
	}

	days := groupByDay(orders)
	keys := make([]string, 0, len(days))
	for day := range days {
		keys = append(keys, day)
	}
	sort.Strings(keys)

	var written int64
	for _, day := range keys {
		path := a.path(day)
		exists, err := a.blobs.Exists(ctx, path)
		if err != nil {
			return written, err
		}
		if exists {
			continue
		}

		buf, err := marshalJSONL(days[day])
		if err != nil {
			return written, fmt.Errorf("s3blob: encode %s: %w", day, err)
		}
		if int64(len(buf)) > minPartSize {
			err = a.blobs.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
		} else {
			err = a.blobs.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
		}
		if err != nil {
			return written, err
		}

		n := int64(len(days[day]))
		written += n
		a.metrics.OrdersArchived(n)
		a.logger.InfoContext(ctx, "archived orders",
			slog.String("path", path),
			slog.Int64("count", n),
		)
		if auditErr := a.audit.Log(ctx, "archive.orders", map[string]any{
			"path":  path,
			"count": n,
			"day":   day,
		}); auditErr != nil {
			a.logger.WarnContext(ctx, "audit log failed",
				slog.String("path", path),
				slog.String("error", auditErr.Error()),
			)
		}
	}
	return written, nil
}

// Run archives once per interval everything older than retention.
func (a *OrderArchiver) Run(ctx context.Context, interval, retention time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		cutoff := time.Now().UTC().Add(-retention).Truncate(24 * time.Hour)
		if _, err := a.ArchiveOrders(ctx, cutoff); err != nil && ctx.Err() == nil {
			a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (a *OrderArchiver) path(day string) string {
	if a.prefix == "" {
		return day + ".jsonl"
	}
	return a.prefix + "/" + day + ".jsonl"
}

func groupByDay(orders []domain.Order) map[string][]domain.Order {
	out := make(map[string][]domain.Order)
	for _, o := range orders {
		day := o.CreatedAt.UTC().Format(time.DateOnly)
		out[day] = append(out[day], o)
	}
	return out
}

// marshalJSONL encodes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*OrderArchiver)(nil)
