package domain

import (
	"math"
	"time"
)

// Position represents a user's stake on one outcome of a market. Shares are
// a fixed claim computed at entry; each share pays 100 currency units if the
// chosen outcome wins.
type Position struct {
	ID               string
	UserID           string
	MarketID         string
	OutcomeID        string
	Amount           int64   // staked currency units
	EntryProbability float64 // probability of the chosen outcome at trade time, 1-99
	Shares           float64 // Amount / EntryProbability
	OpenedAt         time.Time
	ClosedAt         *time.Time
	ExitProbability  *float64 // set only on early cash-out
}

// IsOpen reports whether the position is still live (not cashed out).
func (p Position) IsOpen() bool {
	return p.ClosedAt == nil
}

// ValueAt returns the position's current worth given the live probability of
// the chosen outcome.
func (p Position) ValueAt(prob float64) float64 {
	return p.Shares * prob
}

// UnrealizedPnL returns current value minus staked amount.
func (p Position) UnrealizedPnL(prob float64) float64 {
	return p.ValueAt(prob) - float64(p.Amount)
}

// CashOutPayout returns the credit a user receives for exiting at the given
// probability of the chosen outcome. Rounded down; fractions stay in the
// house.
func (p Position) CashOutPayout(prob float64) int64 {
	return int64(math.Floor(p.Shares * prob))
}

// WinPayout returns the settlement credit when the chosen outcome wins: each
// share redeems at the full 100.
func (p Position) WinPayout() int64 {
	return int64(math.Floor(p.Shares * 100))
}
