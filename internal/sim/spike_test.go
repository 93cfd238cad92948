package sim

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpikeScheduleWithinWindow(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 100; i++ {
		s := newSpikeState(rng, now, 2*time.Minute, 10*time.Minute, 45*time.Second)
		assert.False(t, s.nextAt.Before(now.Add(2*time.Minute)))
		assert.True(t, s.nextAt.Before(now.Add(10*time.Minute)))
	}
}

func TestSpikeLifecycle(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s := newSpikeState(rng, now, time.Minute, time.Minute, 45*time.Second)
	pick := func() (string, bool) { return "m1", true }

	// quiet until the scheduled instant
	assert.False(t, s.advance(rng, now, pick))
	assert.False(t, s.advance(rng, now.Add(59*time.Second), pick))
	assert.False(t, s.active)

	// activation
	started := now.Add(time.Minute)
	require.True(t, s.advance(rng, started, pick))
	assert.True(t, s.active)
	assert.Equal(t, "m1", s.marketID)
	assert.Equal(t, started.Add(45*time.Second), s.endsAt)

	// mid-spike advances are no-ops
	assert.False(t, s.advance(rng, started.Add(10*time.Second), pick))
	assert.True(t, s.active)

	// expiry resets to quiet and schedules the next window
	ended := started.Add(46 * time.Second)
	assert.False(t, s.advance(rng, ended, pick))
	assert.False(t, s.active)
	assert.Empty(t, s.marketID)
	assert.Equal(t, ended.Add(time.Minute), s.nextAt)

	// it spikes again after the new delay
	assert.True(t, s.advance(rng, ended.Add(time.Minute), pick))
}

func TestSpikeNoMarketAvailable(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s := newSpikeState(rng, now, time.Minute, time.Minute, 45*time.Second)
	none := func() (string, bool) { return "", false }

	due := now.Add(time.Minute)
	assert.False(t, s.advance(rng, due, none))
	assert.False(t, s.active)
	// retry window pushed out from the failed attempt
	assert.Equal(t, due.Add(time.Minute), s.nextAt)
}

func TestSpikeSidePickRoughlyEven(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	pick := func() (string, bool) { return "m1", true }

	yes := 0
	const trials = 2000
	for i := 0; i < trials; i++ {
		s := newSpikeState(rng, now, 0, 0, time.Second)
		require.True(t, s.advance(rng, now, pick))
		if s.sideYes {
			yes++
		}
	}
	assert.InDelta(t, 0.5, float64(yes)/trials, 0.04)
}
