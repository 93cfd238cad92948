// Package service implements the market, trading, and settlement use cases
// on top of the domain stores and caches.
package service

import "time"

// Pub/sub channel and stream names. The WebSocket hub relays the pub/sub
// channels to browsers; the resolution stream is durable so a restarted
// consumer can catch up.
const (
	ChannelProbability = "events:probability"
	ChannelActivity    = "events:activity"
	ChannelResolution  = "events:resolution"
	ChannelSpike       = "events:spike"
	ChannelSimHealth   = "events:sim_health"
	StreamResolutions  = "stream:resolutions"
)

// ProbabilityTick is published on every trade that moves a market's price.
type ProbabilityTick struct {
	MarketID    string    `json:"market_id"`
	Probability float64   `json:"probability"`
	Volume      int64     `json:"volume"`
	At          time.Time `json:"at"`
}

// ActivityEvent mirrors a feed entry onto the bus for live clients.
type ActivityEvent struct {
	Type     string    `json:"type"`
	UserID   string    `json:"user_id,omitempty"`
	MarketID string    `json:"market_id"`
	Side     string    `json:"side,omitempty"`
	Amount   int64     `json:"amount,omitempty"`
	Price    float64   `json:"price,omitempty"`
	At       time.Time `json:"at"`
}

// SpikeEvent is broadcast when the simulation starts a viral burst on a
// market.
type SpikeEvent struct {
	MarketID string    `json:"market_id"`
	Side     string    `json:"side"`
	EndsAt   time.Time `json:"ends_at"`
	At       time.Time `json:"at"`
}

// ResolutionEvent is broadcast when a market settles.
type ResolutionEvent struct {
	MarketID         string    `json:"market_id"`
	WinningOutcomeID string    `json:"winning_outcome_id"`
	TotalActiveStake int64     `json:"total_active_stake"`
	UsersSettled     int       `json:"users_settled"`
	UsersSkipped     int       `json:"users_skipped"`
	ResolvedAt       time.Time `json:"resolved_at"`
}
