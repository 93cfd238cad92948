package sim

import (
	"hash/fnv"
	"math/rand"

	"github.com/parlaygames/parlay/internal/domain"
)

// Aggression is a bot's trading temperament. It is an explicit property of
// the actor, fixed for the account's lifetime.
type Aggression int

const (
	AggressionLow Aggression = iota
	AggressionMedium
	AggressionHigh
)

// String returns the tier name for logging.
func (a Aggression) String() string {
	switch a {
	case AggressionLow:
		return "low"
	case AggressionMedium:
		return "medium"
	case AggressionHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Strategy is how a bot reads a market when it picks a side. Trend
// followers back the side the price already favors; contrarians fade it.
type Strategy int

const (
	StrategyTrendFollower Strategy = iota
	StrategyContrarian
)

// String returns the strategy name for logging.
func (s Strategy) String() string {
	switch s {
	case StrategyTrendFollower:
		return "trend_follower"
	case StrategyContrarian:
		return "contrarian"
	default:
		return "unknown"
	}
}

// Base stake fraction bounds per strategy, as a share of current balance.
// Contrarians fade the crowd, so they size smaller per trade.
var stakeBounds = map[Strategy][2]float64{
	StrategyTrendFollower: {0.02, 0.06},
	StrategyContrarian:    {0.01, 0.04},
}

// aggressionScale stretches or shrinks the strategy's base range.
var aggressionScale = map[Aggression]float64{
	AggressionLow:    0.5,
	AggressionMedium: 1.0,
	AggressionHigh:   2.0,
}

// Actor is one bot account as the scheduler sees it.
type Actor struct {
	User       domain.User
	Aggression Aggression
	Strategy   Strategy
}

// NewActor derives the actor for a bot account. Aggression tier and strategy
// are both stable functions of the account ID, so the same bot always trades
// with the same personality.
func NewActor(u domain.User) Actor {
	h := fnv.New32a()
	_, _ = h.Write([]byte(u.ID))
	sum := h.Sum32()
	return Actor{
		User:       u,
		Aggression: Aggression(sum % 3),
		Strategy:   Strategy((sum / 3) % 2),
	}
}

// skipProb returns the chance this actor sits a tick out, per config.
func (a Actor) skipProb(cfg Config) float64 {
	switch a.Aggression {
	case AggressionHigh:
		return cfg.SkipProbHigh
	case AggressionMedium:
		return cfg.SkipProbMedium
	default:
		return cfg.SkipProbLow
	}
}

// stake sizes a trade from the actor's balance: the strategy's base range
// scaled by aggression. multiplier scales the result further during spikes;
// the stake is floored at 1 and never exceeds the balance.
func (a Actor) stake(rng *rand.Rand, multiplier float64) int64 {
	bounds := stakeBounds[a.Strategy]
	frac := bounds[0] + rng.Float64()*(bounds[1]-bounds[0])
	amount := int64(float64(a.User.Balance) * frac * aggressionScale[a.Aggression] * multiplier)
	if amount < 1 {
		amount = 1
	}
	if amount > a.User.Balance {
		amount = a.User.Balance
	}
	return amount
}
