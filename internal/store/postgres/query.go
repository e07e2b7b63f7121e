package postgres

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/riskdesk/internal/domain"
)

// queryBuilder appends optional filters with numbered placeholders.
type queryBuilder struct {
	sql  strings.Builder
	args []any
}

func (q *queryBuilder) add(s string) {
	q.sql.WriteString(s)
}

// arg records v and returns its placeholder.
func (q *queryBuilder) arg(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

func (q *queryBuilder) filterTime(opts domain.ListOpts) {
	if opts.Since != nil {
		q.add(" AND created_at >= " + q.arg(*opts.Since))
	}
	if opts.Until != nil {
		q.add(" AND created_at < " + q.arg(*opts.Until))
	}
}

func (q *queryBuilder) page(opts domain.ListOpts) {
	if opts.Limit > 0 {
		q.add(" LIMIT " + q.arg(opts.Limit))
	}
	if opts.Offset > 0 {
		q.add(" OFFSET " + q.arg(opts.Offset))
	}
}
