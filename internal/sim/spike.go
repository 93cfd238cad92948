package sim

import (
	"math/rand"
	"time"
)

// spikeState is the viral-moment state machine. A spike concentrates many
// actors on one market with a strong side bias for a short burst, then goes
// quiet for a random delay. All state lives on the struct; the scheduler is
// its only caller.
type spikeState struct {
	active   bool
	marketID string
	sideYes  bool // the side the spike herd favors
	endsAt   time.Time
	nextAt   time.Time
	minDelay time.Duration
	maxDelay time.Duration
	duration time.Duration
}

func newSpikeState(rng *rand.Rand, now time.Time, minDelay, maxDelay, duration time.Duration) *spikeState {
	s := &spikeState{
		minDelay: minDelay,
		maxDelay: maxDelay,
		duration: duration,
	}
	s.schedule(rng, now)
	return s
}

// schedule picks the next activation instant in [minDelay, maxDelay].
func (s *spikeState) schedule(rng *rand.Rand, now time.Time) {
	delay := s.minDelay
	if span := s.maxDelay - s.minDelay; span > 0 {
		delay += time.Duration(rng.Int63n(int64(span)))
	}
	s.nextAt = now.Add(delay)
}

// advance moves the state machine forward. It returns true when a new spike
// just started; the caller supplies the market the spike will pile onto.
func (s *spikeState) advance(rng *rand.Rand, now time.Time, pickMarket func() (string, bool)) bool {
	if s.active {
		if now.Before(s.endsAt) {
			return false
		}
		// spike over, go quiet
		s.active = false
		s.marketID = ""
		s.schedule(rng, now)
		return false
	}

	if now.Before(s.nextAt) {
		return false
	}
	marketID, ok := pickMarket()
	if !ok {
		// nothing to spike on; try again next window
		s.schedule(rng, now)
		return false
	}
	s.active = true
	s.marketID = marketID
	s.sideYes = rng.Intn(2) == 0
	s.endsAt = now.Add(s.duration)
	return true
}
