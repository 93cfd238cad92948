// Package rating computes ELO-style skill adjustments from bet outcomes.
// A correct long-shot pick (entry probability far below where the market
// ended) earns more than a correct near-certainty, and vice versa for
// losses.
package rating

import (
	"math"

	"github.com/parlaygames/parlay/internal/domain"
)

// DefaultKFactor is the standard update weight.
const DefaultKFactor = 32

// Delta returns the rating change for one position. entryProb and
// resolutionProb are both probabilities of the outcome the user chose, 1-99;
// resolutionProb is where the market priced that outcome when it resolved.
func Delta(k float64, entryProb, resolutionProb float64, won bool) int {
	expected := 1 / (1 + math.Pow(10, (resolutionProb-entryProb)/400))
	actual := 0.0
	if won {
		actual = 1.0
	}
	return int(math.Round(k * (actual - expected)))
}

// Apply folds a delta into a rating, enforcing the floor.
func Apply(rating, delta int) int {
	next := rating + delta
	if next < domain.MinRating {
		return domain.MinRating
	}
	return next
}

// PositionOutcome is one settled position from the rating's point of view.
type PositionOutcome struct {
	EntryProb      float64
	ResolutionProb float64
	Won            bool
}

// Settle runs a user's positions through the updater in order. Each delta is
// computed and folded into the running rating before the next one; the
// ordering is part of the contract, not an implementation detail.
func Settle(k float64, rating int, outcomes []PositionOutcome) int {
	for _, o := range outcomes {
		rating = Apply(rating, Delta(k, o.EntryProb, o.ResolutionProb, o.Won))
	}
	return rating
}
