package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTelemetryCounters(t *testing.T) {
	tel := NewTelemetry(10, 500*time.Millisecond, 2*time.Second)

	tel.RecordTick()
	tel.SetBots(12)
	tel.RecordTrade(10*time.Millisecond, false)
	tel.RecordTrade(10*time.Millisecond, false)
	tel.RecordTrade(10*time.Millisecond, true)
	tel.RecordSkip()
	tel.RecordSpike()
	tel.RecordPruned(12)
	tel.RecordPruned(3)

	snap := tel.Snapshot()
	assert.Equal(t, uint64(1), snap.Ticks)
	assert.Equal(t, 12, snap.Bots)
	assert.Equal(t, uint64(3), snap.Trades)
	assert.Equal(t, 3, snap.TradesRecent)
	assert.InDelta(t, 3.0, snap.TradesPerMinute, 1e-9)
	assert.Equal(t, uint64(1), snap.TradeErrors)
	assert.Equal(t, uint64(1), snap.Skips)
	assert.Equal(t, uint64(1), snap.Spikes)
	assert.Equal(t, int64(15), snap.ActivityPruned)
	assert.Equal(t, 10*time.Millisecond, snap.AvgTradeLatency)
	assert.False(t, snap.LastTick.IsZero())
}

func TestTelemetryStatusThresholds(t *testing.T) {
	cases := []struct {
		name    string
		latency time.Duration
		want    string
	}{
		{"fast", 50 * time.Millisecond, StatusOK},
		{"just under sluggish", 499 * time.Millisecond, StatusOK},
		{"at sluggish", 500 * time.Millisecond, StatusSluggish},
		{"between", time.Second, StatusSluggish},
		{"at degraded", 2 * time.Second, StatusDegraded},
		{"beyond degraded", 5 * time.Second, StatusDegraded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tel := NewTelemetry(4, 500*time.Millisecond, 2*time.Second)
			tel.RecordTrade(tc.latency, false)
			assert.Equal(t, tc.want, tel.Snapshot().Status)
		})
	}
}

func TestTelemetryRollingWindow(t *testing.T) {
	tel := NewTelemetry(3, time.Hour, 2*time.Hour)

	// the window holds only the newest three latencies
	tel.RecordTrade(90*time.Millisecond, false)
	tel.RecordTrade(10*time.Millisecond, false)
	tel.RecordTrade(20*time.Millisecond, false)
	tel.RecordTrade(30*time.Millisecond, false)

	assert.Equal(t, 20*time.Millisecond, tel.Snapshot().AvgTradeLatency)
	assert.Equal(t, uint64(4), tel.Snapshot().Trades)
}

func TestTelemetryIdleWithoutTrades(t *testing.T) {
	tel := NewTelemetry(3, time.Millisecond, 2*time.Millisecond)
	tel.RecordTick()
	snap := tel.Snapshot()
	assert.Equal(t, StatusIdle, snap.Status)
	assert.Zero(t, snap.AvgTradeLatency)
	assert.Zero(t, snap.TradesRecent)
}

func TestTelemetryIdleWhenTradesAgeOut(t *testing.T) {
	tel := NewTelemetry(4, time.Millisecond, 2*time.Millisecond)
	clock := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	tel.now = func() time.Time { return clock }

	// slow trades just happened: degraded, not idle
	tel.RecordTrade(5*time.Millisecond, false)
	tel.RecordTrade(5*time.Millisecond, false)
	snap := tel.Snapshot()
	assert.Equal(t, StatusDegraded, snap.Status)
	assert.Equal(t, 2, snap.TradesRecent)
	assert.InDelta(t, 2.0, snap.TradesPerMinute, 1e-9)

	// the same trades a rate window later no longer count as recent
	clock = clock.Add(recentWindow + time.Second)
	snap = tel.Snapshot()
	assert.Equal(t, StatusIdle, snap.Status)
	assert.Zero(t, snap.TradesRecent)
	assert.Zero(t, snap.TradesPerMinute)
	assert.Equal(t, uint64(2), snap.Trades)
}
