package domain

import "time"

// PositionPayout records the settlement credit owed for one winning position.
type PositionPayout struct {
	PositionID string
	Amount     int64
}

// UserSettlement is the fully computed outcome of a resolution for a single
// user: balance credits, counter updates, and the post-settlement rating.
// It is applied atomically per user.
type UserSettlement struct {
	UserID         string
	MarketID       string
	Won            bool
	WinningStake   int64
	LosingStake    int64
	Payout         int64 // sum of winning-position payouts
	Payouts        []PositionPayout
	NetProfit      int64 // Payout - (WinningStake + LosingStake)
	NearMiss       bool
	NearMissCredit int64
	RatingBefore   int
	RatingAfter    int
}

// CreatorSettlement is the deposit refund and engagement reward owed to the
// market's creator at resolution.
type CreatorSettlement struct {
	CreatorID string
	MarketID  string
	Refund    int64
	Reward    int64
}

// SettlementPlan is the complete, precomputed result of resolving a market.
// Building the plan is pure; applying it moves currency.
type SettlementPlan struct {
	MarketID         string
	WinningOutcomeID string
	ResolvedAt       time.Time
	TotalActiveStake int64
	Users            []UserSettlement
	Creator          *CreatorSettlement
}
