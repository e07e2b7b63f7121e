// Package activity buckets an account's order log into fixed reporting
// windows and summarises it.
package activity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/riskdesk/internal/domain"
)

type rangeSpec struct {
	days    int
	buckets int
	prefix  string
	label   string
}

var ranges = map[domain.ActivityRange]rangeSpec{
	domain.Range7D:  {days: 7, buckets: 7, prefix: "D", label: "last 7 days"},
	domain.Range30D: {days: 30, buckets: 4, prefix: "W", label: "last 30 days"},
	domain.Range90D: {days: 90, buckets: 3, prefix: "M", label: "last 90 days"},
	domain.Range1Y:  {days: 365, buckets: 4, prefix: "Q", label: "last year"},
}

var dayLabels = [...]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// ParseRange validates a range name. The empty string selects 7d.
func ParseRange(s string) (domain.ActivityRange, error) {
	if s == "" {
		return domain.Range7D, nil
	}
	r := domain.ActivityRange(s)
	if _, ok := ranges[r]; !ok {
		return "", domain.NewError(domain.ErrValidation, fmt.Sprintf("unknown range %q (valid: 7d, 30d, 90d, 1y)", s))
	}
	return r, nil
}

// Window is the bucket layout of a report ending at a given instant.
type Window struct {
	Range   domain.ActivityRange
	Label   string
	Start   time.Time
	Buckets []domain.ActivityBucket
}

// NewWindow lays out the buckets of r ending at now. The first bucket starts
// days-1 calendar days before now; each bucket spans ceil(days/buckets) days.
func NewWindow(r domain.ActivityRange, now time.Time) (Window, error) {
	rs, ok := ranges[r]
	if !ok {
		return Window{}, domain.NewError(domain.ErrValidation, fmt.Sprintf("unknown range %q", r))
	}

	start := now.AddDate(0, 0, -rs.days+1)
	size := (rs.days + rs.buckets - 1) / rs.buckets

	w := Window{
		Range:   r,
		Label:   rs.label,
		Start:   start,
		Buckets: make([]domain.ActivityBucket, rs.buckets),
	}
	for i := range w.Buckets {
		bStart := start.AddDate(0, 0, i*size)
		label := fmt.Sprintf("%s%d", rs.prefix, i+1)
		if rs.buckets == 7 {
			label = dayLabels[bStart.Weekday()]
		}
		w.Buckets[i] = domain.ActivityBucket{
			Label: label,
			Start: bStart,
			End:   start.AddDate(0, 0, (i+1)*size),
		}
	}
	return w, nil
}

// Aggregate counts orders into w's buckets and computes the summary stats.
// Orders created before w.Start are ignored.
func Aggregate(accountID string, w Window, orders []domain.Order) domain.ActivityReport {
	report := domain.ActivityReport{
		AccountID: accountID,
		Range:     w.Range,
		Label:     w.Label,
		Buckets:   make([]domain.ActivityBucket, len(w.Buckets)),
	}
	copy(report.Buckets, w.Buckets)

	totalValue := decimal.Zero
	var stats domain.ActivityStats
	for _, o := range orders {
		if o.CreatedAt.Before(w.Start) {
			continue
		}
		stats.TotalTrades++
		totalValue = totalValue.Add(o.Notional())
		switch o.Type {
		case domain.OrderTypeBuy:
			stats.Buys++
		case domain.OrderTypeSell:
			stats.Sells++
		}

		idx := bucketIndex(report.Buckets, o.CreatedAt)
		if idx < 0 {
			continue
		}
		switch o.Type {
		case domain.OrderTypeBuy:
			report.Buckets[idx].Buys++
		case domain.OrderTypeSell:
			report.Buckets[idx].Sells++
		}
	}

	if stats.TotalTrades > 0 {
		n := decimal.NewFromInt(int64(stats.TotalTrades))
		stats.AvgTrade = totalValue.Div(n).Round(0).IntPart()
		stats.WinRate = decimal.NewFromInt(int64(stats.Buys * 100)).Div(n).Round(0).IntPart()
	}
	report.Stats = stats
	return report
}

// Empty returns a report with zeroed buckets, used for accounts that have no
// order log yet.
func Empty(accountID string, w Window) domain.ActivityReport {
	return Aggregate(accountID, w, nil)
}

func bucketIndex(buckets []domain.ActivityBucket, at time.Time) int {
	for i, b := range buckets {
		if !at.Before(b.Start) && at.Before(b.End) {
			return i
		}
	}
	return -1
}
