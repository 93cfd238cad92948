package domain

import "time"

// ActivityType labels an entry in the public activity feed.
type ActivityType string

const (
	ActivityTrade         ActivityType = "trade"
	ActivityCashOut       ActivityType = "cash_out"
	ActivityResolution    ActivityType = "resolution"
	ActivityMarketCreated ActivityType = "market_created"
)

// ActivityEntry is an append-only record consumed by the UI feed. The core
// writes these and never reads them back.
type ActivityEntry struct {
	ID        int64
	Type      ActivityType
	UserID    *string
	MarketID  string
	Side      string // outcome label, when the entry concerns one side
	Amount    *int64
	Price     *float64 // probability of the chosen outcome at event time
	CreatedAt time.Time
}
