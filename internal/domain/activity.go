package domain

import "time"

// ActivityRange selects the reporting window of an activity report.
type ActivityRange string

const (
	Range7D  ActivityRange = "7d"
	Range30D ActivityRange = "30d"
	Range90D ActivityRange = "90d"
	Range1Y  ActivityRange = "1y"
)

// ActivityBucket counts orders whose CreatedAt falls in [Start, End).
type ActivityBucket struct {
	Label string    `json:"label"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Buys  int       `json:"buys"`
	Sells int       `json:"sells"`
}

// ActivityStats summarises the orders of a report window. WinRate is the
// rounded percentage of BUY orders.
type ActivityStats struct {
	TotalTrades int   `json:"totalTrades"`
	Buys        int   `json:"buys"`
	Sells       int   `json:"sells"`
	AvgTrade    int64 `json:"avgTrade"`
	WinRate     int64 `json:"winRate"`
}

// ActivityReport is the bucketed trade activity of one account.
type ActivityReport struct {
	AccountID string           `json:"accountId"`
	Range     ActivityRange    `json:"range"`
	Label     string           `json:"label"`
	Buckets   []ActivityBucket `json:"buckets"`
	Stats     ActivityStats    `json:"stats"`
}
