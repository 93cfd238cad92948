// Package sim drives synthetic trading: a tick scheduler picks bot actors
// each round and routes their trades through the same pricing and ledger
// path as human traffic.
package sim

import (
	"sync"
	"time"
)

// Health labels for the scheduler's self-reported condition. Idle means no
// trades landed recently; the latency tiers are derived from the rolling
// average trade latency.
const (
	StatusIdle     = "idle"
	StatusOK       = "ok"
	StatusSluggish = "sluggish"
	StatusDegraded = "degraded"
)

// recentWindow bounds the "recent trades" counter and the per-minute rate.
const recentWindow = time.Minute

// Telemetry tracks scheduler counters and a rolling window of trade
// latencies. All methods are safe for concurrent use; the HTTP health
// handler reads snapshots while the scheduler writes.
type Telemetry struct {
	mu sync.Mutex

	bots         int
	ticks        uint64
	trades       uint64
	tradeErrors  uint64
	skips        uint64
	spikes       uint64
	activePruned int64

	window    []time.Duration
	windowCap int
	next      int
	filled    bool

	recent []time.Time

	sluggishAt time.Duration
	degradedAt time.Duration
	lastTick   time.Time

	now func() time.Time
}

// NewTelemetry creates a Telemetry with the given latency window size and
// status thresholds.
func NewTelemetry(windowSize int, sluggishAt, degradedAt time.Duration) *Telemetry {
	if windowSize < 1 {
		windowSize = 1
	}
	return &Telemetry{
		window:     make([]time.Duration, windowSize),
		windowCap:  windowSize,
		sluggishAt: sluggishAt,
		degradedAt: degradedAt,
		now:        time.Now,
	}
}

// RecordTick counts one completed scheduling round.
func (t *Telemetry) RecordTick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ticks++
	t.lastTick = t.now().UTC()
}

// SetBots records how many actors were eligible on the latest tick.
func (t *Telemetry) SetBots(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bots = n
}

// RecordTrade counts one attempted trade, folds its latency into the
// rolling window, and timestamps it for the recent-rate counters.
func (t *Telemetry) RecordTrade(d time.Duration, failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trades++
	if failed {
		t.tradeErrors++
	}
	t.window[t.next] = d
	t.next++
	if t.next == t.windowCap {
		t.next = 0
		t.filled = true
	}
	t.recent = append(t.recent, t.now())
	t.pruneRecent()
}

// RecordSkip counts an actor sitting a tick out.
func (t *Telemetry) RecordSkip() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.skips++
}

// RecordSpike counts a spike activation.
func (t *Telemetry) RecordSpike() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spikes++
}

// RecordPruned adds to the count of activity rows removed by the pruner.
func (t *Telemetry) RecordPruned(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.activePruned += n
}

// pruneRecent drops trade timestamps that have aged out of the rate window.
// Callers must hold t.mu.
func (t *Telemetry) pruneRecent() {
	cutoff := t.now().Add(-recentWindow)
	i := 0
	for i < len(t.recent) && t.recent[i].Before(cutoff) {
		i++
	}
	t.recent = t.recent[i:]
}

// Snapshot is a point-in-time view of the scheduler's health.
type Snapshot struct {
	Status          string        `json:"status"`
	Bots            int           `json:"bots"`
	Ticks           uint64        `json:"ticks"`
	Trades          uint64        `json:"trades"`
	TradesRecent    int           `json:"trades_recent"`
	TradesPerMinute float64       `json:"trades_per_minute"`
	TradeErrors     uint64        `json:"trade_errors"`
	Skips           uint64        `json:"skips"`
	Spikes          uint64        `json:"spikes"`
	ActivityPruned  int64         `json:"activity_pruned"`
	AvgTradeLatency time.Duration `json:"avg_trade_latency"`
	LastTick        time.Time     `json:"last_tick"`
}

// Snapshot returns current counters and the derived status. A scheduler
// with no trades inside the rate window is idle regardless of how slow its
// last trades were.
func (t *Telemetry) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.next
	if t.filled {
		n = t.windowCap
	}
	var avg time.Duration
	if n > 0 {
		var sum time.Duration
		for i := 0; i < n; i++ {
			sum += t.window[i]
		}
		avg = sum / time.Duration(n)
	}

	t.pruneRecent()
	recent := len(t.recent)

	status := StatusOK
	switch {
	case recent == 0:
		status = StatusIdle
	case avg >= t.degradedAt:
		status = StatusDegraded
	case avg >= t.sluggishAt:
		status = StatusSluggish
	}

	return Snapshot{
		Status:          status,
		Bots:            t.bots,
		Ticks:           t.ticks,
		Trades:          t.trades,
		TradesRecent:    recent,
		TradesPerMinute: float64(recent) / recentWindow.Minutes(),
		TradeErrors:     t.tradeErrors,
		Skips:           t.skips,
		Spikes:          t.spikes,
		ActivityPruned:  t.activePruned,
		AvgTradeLatency: avg,
		LastTick:        t.lastTick,
	}
}
