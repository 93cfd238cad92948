package domain

import "time"

// ProbabilitySnapshot is one append-only point in a market's price history.
// Probability is normalized to 0.0-1.0 for charting; rows are never mutated
// and are pruned only by the archival retention job.
type ProbabilitySnapshot struct {
	ID          int64
	MarketID    string
	OutcomeID   string
	Probability float64 // 0.0 - 1.0
	CreatedAt   time.Time
}
