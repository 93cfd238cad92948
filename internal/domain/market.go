package domain

import "time"

// MinProbability and MaxProbability bound every market probability. The
// pricing engine clamps to this range, so a market can never be priced as
// certain in either direction.
const (
	MinProbability = 1.0
	MaxProbability = 99.0
)

// Outcome is one of the tradable results of a market. Exactly one outcome
// carries IsYes; CurrentProbability on the market is the probability of that
// outcome, and every other outcome prices at the mirror.
type Outcome struct {
	ID        string
	MarketID  string
	Label     string
	IsYes     bool
	SortIndex int
}

// Market represents a play-money prediction market.
type Market struct {
	ID                 string
	Question           string
	Slug               string
	CreatorID          string
	Outcomes           []Outcome
	CurrentProbability float64 // probability of the yes-like outcome, 1-99
	Liquidity          float64 // AMM depth constant
	TotalVolume        int64
	ParticipantCount   int
	CreationDeposit    int64
	ClosesAt           time.Time
	ResolvedOutcomeID  *string
	ResolvedAt         *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsResolved reports whether the market has a winning outcome recorded.
func (m Market) IsResolved() bool {
	return m.ResolvedOutcomeID != nil
}

// IsOpenForTrading reports whether new positions may be opened at the given
// instant.
func (m Market) IsOpenForTrading(now time.Time) bool {
	return !m.IsResolved() && now.Before(m.ClosesAt)
}

// OutcomeByID returns the outcome with the given id, or false when it does
// not belong to this market.
func (m Market) OutcomeByID(id string) (Outcome, bool) {
	for _, o := range m.Outcomes {
		if o.ID == id {
			return o, true
		}
	}
	return Outcome{}, false
}

// ProbabilityOf returns the market-implied probability of the given outcome:
// CurrentProbability for the yes-like outcome and the mirror for every other
// side.
func (m Market) ProbabilityOf(o Outcome) float64 {
	if o.IsYes {
		return m.CurrentProbability
	}
	return 100 - m.CurrentProbability
}
