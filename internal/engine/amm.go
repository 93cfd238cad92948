// Package engine implements the automated market maker that converts trade
// size into a probability shift. It is pure math: both human trade
// submission and the bot simulation price through the same function, so
// synthetic and real flow can never diverge.
package engine

import "github.com/parlaygames/parlay/internal/domain"

// Direction of a trade's price impact.
type Direction int

const (
	// Up is a buy of the yes-like outcome.
	Up Direction = 1
	// Down is a buy of the opposite side.
	Down Direction = -1
)

// Reprice applies a linear impact model: a trade moves the yes-side
// probability by (amount / liquidity) * 100 points in the trade's direction.
// The result is clamped to [1,99]; impact that would push past a bound
// saturates at the bound rather than failing.
func Reprice(current float64, amount int64, dir Direction, liquidity float64) float64 {
	impact := float64(amount) / liquidity * 100
	next := current + float64(dir)*impact
	return Clamp(next)
}

// Clamp bounds a probability to [1,99].
func Clamp(p float64) float64 {
	if p < domain.MinProbability {
		return domain.MinProbability
	}
	if p > domain.MaxProbability {
		return domain.MaxProbability
	}
	return p
}

// DirectionFor returns the yes-side impact direction for a buy of the given
// outcome.
func DirectionFor(outcome domain.Outcome) Direction {
	if outcome.IsYes {
		return Up
	}
	return Down
}
