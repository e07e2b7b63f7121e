package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/alanyoungcy/riskdesk/internal/domain"
)

// AuditStore implements domain.AuditStore with gorm.
type AuditStore struct {
	db *gorm.DB
}

// Log appends an audit entry with detail encoded as JSON.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	raw, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("sqlite: marshal audit detail: %w", err)
	}
	m := auditModel{Event: event, Detail: string(raw), CreatedAt: time.Now().UTC()}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("sqlite: log audit event %s: %w", event, err)
	}
	return nil
}

// List returns audit entries newest first.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	q := s.db.WithContext(ctx).Model(&auditModel{})
	if opts.Since != nil {
		q = q.Where("created_at >= ?", opts.Since.UTC())
	}
	if opts.Until != nil {
		q = q.Where("created_at < ?", opts.Until.UTC())
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	var rows []auditModel
	if err := q.Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite: list audit entries: %w", err)
	}

	out := make([]domain.AuditEntry, 0, len(rows))
	for _, r := range rows {
		e := domain.AuditEntry{ID: r.ID, Event: r.Event, CreatedAt: r.CreatedAt}
		if r.Detail != "" {
			if err := json.Unmarshal([]byte(r.Detail), &e.Detail); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal audit detail %d: %w", r.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, nil
}

var _ domain.AuditStore = (*AuditStore)(nil)
