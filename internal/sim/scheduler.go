package sim

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/parlaygames/parlay/internal/domain"
	"github.com/parlaygames/parlay/internal/service"
)

// Config holds the scheduler's tunable parameters.
type Config struct {
	TickInterval time.Duration
	LogInterval  time.Duration
	BalanceFloor int64
	MinActors    int
	MaxActors    int

	SpikeMinDelay       time.Duration
	SpikeMaxDelay       time.Duration
	SpikeDuration       time.Duration
	SpikeMinActors      int
	SpikeMaxActors      int
	SpikeSideBias       float64
	SpikeSizeMultiplier float64

	SkipProbLow    float64
	SkipProbMedium float64
	SkipProbHigh   float64
	Stickiness     float64
	AdoptSideProb  float64

	ActivityKeep int

	// Seed fixes the random source; 0 seeds from the clock.
	Seed int64
}

// Trader is the slice of the trading service the scheduler needs.
type Trader interface {
	OpenPosition(ctx context.Context, p service.TradeParams) (domain.Position, error)
}

// Publisher broadcasts spike events to live consumers. Optional; a nil
// Publisher disables broadcasting.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Scheduler drives the bot population. Each tick it selects a handful of
// actors and plays their trades strictly in sequence, so synthetic flow
// reprices markets one trade at a time exactly like human flow.
type Scheduler struct {
	cfg       Config
	trader    Trader
	markets   domain.MarketStore
	users     domain.UserStore
	activity  domain.ActivityStore
	telemetry *Telemetry
	bus       Publisher
	spike      *spikeState
	rng        *rand.Rand
	sides      map[string]string    // actorID|marketID -> remembered outcome ID
	lastAction map[string]time.Time // actorID -> last completed trade
	logger     *slog.Logger
}

// NewScheduler creates a Scheduler with all required dependencies.
func NewScheduler(
	trader Trader,
	markets domain.MarketStore,
	users domain.UserStore,
	activity domain.ActivityStore,
	telemetry *Telemetry,
	bus Publisher,
	cfg Config,
	logger *slog.Logger,
) *Scheduler {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	return &Scheduler{
		cfg:        cfg,
		trader:     trader,
		markets:    markets,
		users:      users,
		activity:   activity,
		telemetry:  telemetry,
		bus:        bus,
		spike:      newSpikeState(rng, time.Now().UTC(), cfg.SpikeMinDelay, cfg.SpikeMaxDelay, cfg.SpikeDuration),
		rng:        rng,
		sides:      make(map[string]string),
		lastAction: make(map[string]time.Time),
		logger:     logger.With(slog.String("component", "sim")),
	}
}

// Run ticks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	var logTicker *time.Ticker
	var logC <-chan time.Time
	if s.cfg.LogInterval > 0 {
		logTicker = time.NewTicker(s.cfg.LogInterval)
		defer logTicker.Stop()
		logC = logTicker.C
	}

	s.logger.InfoContext(ctx, "scheduler started",
		slog.Duration("tick_interval", s.cfg.TickInterval))

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx, time.Now().UTC())
		case <-logC:
			snap := s.telemetry.Snapshot()
			s.logger.InfoContext(ctx, "scheduler health",
				slog.String("status", snap.Status),
				slog.Int("bots", snap.Bots),
				slog.Uint64("ticks", snap.Ticks),
				slog.Uint64("trades", snap.Trades),
				slog.Float64("trades_per_minute", snap.TradesPerMinute),
				slog.Uint64("trade_errors", snap.TradeErrors),
				slog.Uint64("spikes", snap.Spikes),
				slog.Duration("avg_trade_latency", snap.AvgTradeLatency),
			)
			s.publishHealth(ctx, snap)
		}
	}
}

// Tick runs one scheduling round. Exported for tests; Run is the production
// entry point.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	defer s.telemetry.RecordTick()

	markets, err := s.markets.ListOpen(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "list open markets failed", slog.Any("error", err))
		return
	}
	if len(markets) == 0 {
		return
	}

	bots, err := s.users.ListBots(ctx, s.cfg.BalanceFloor)
	if err != nil {
		s.logger.ErrorContext(ctx, "list bots failed", slog.Any("error", err))
		return
	}
	s.telemetry.SetBots(len(bots))
	if len(bots) == 0 {
		return
	}

	byID := make(map[string]domain.Market, len(markets))
	for _, m := range markets {
		byID[m.ID] = m
	}

	started := s.spike.advance(s.rng, now, func() (string, bool) {
		m := markets[s.rng.Intn(len(markets))]
		return m.ID, true
	})
	if started {
		s.telemetry.RecordSpike()
		side := "no"
		if s.spike.sideYes {
			side = "yes"
		}
		s.logger.InfoContext(ctx, "spike started",
			slog.String("market_id", s.spike.marketID),
			slog.String("side", side),
			slog.Duration("duration", s.cfg.SpikeDuration),
		)
		s.publishSpike(ctx, now, side)
	}
	// a resolved or closed market ends its spike early
	if s.spike.active {
		if _, ok := byID[s.spike.marketID]; !ok {
			s.spike.active = false
			s.spike.schedule(s.rng, now)
		}
	}

	lo, hi := s.cfg.MinActors, s.cfg.MaxActors
	multiplier := 1.0
	if s.spike.active {
		lo, hi = s.cfg.SpikeMinActors, s.cfg.SpikeMaxActors
		multiplier = s.cfg.SpikeSizeMultiplier
	}
	count := lo
	if hi > lo {
		count += s.rng.Intn(hi - lo + 1)
	}
	if count > len(bots) {
		count = len(bots)
	}

	s.rng.Shuffle(len(bots), func(i, j int) {
		bots[i], bots[j] = bots[j], bots[i]
	})

	for _, bot := range bots[:count] {
		actor := NewActor(bot)
		if s.rng.Float64() < actor.skipProb(s.cfg) {
			s.telemetry.RecordSkip()
			continue
		}

		var market domain.Market
		if s.spike.active {
			market = byID[s.spike.marketID]
		} else {
			market = markets[s.rng.Intn(len(markets))]
		}

		outcome, ok := s.chooseOutcome(actor, market)
		if !ok {
			continue
		}

		amount := actor.stake(s.rng, multiplier)
		tradeStart := time.Now()
		_, err := s.trader.OpenPosition(ctx, service.TradeParams{
			UserID:    actor.User.ID,
			MarketID:  market.ID,
			OutcomeID: outcome.ID,
			Amount:    amount,
			Simulated: true,
		})
		latency := time.Since(tradeStart)
		switch {
		case err == nil:
			s.telemetry.RecordTrade(latency, false)
			s.rememberAction(actor, market.ID, outcome.ID, now)
		case errors.Is(err, domain.ErrInsufficientBalance),
			errors.Is(err, domain.ErrOutcomeMismatch),
			errors.Is(err, domain.ErrMarketClosed),
			errors.Is(err, domain.ErrMarketResolved):
			// routine rejections; the actor just sits out
			s.telemetry.RecordSkip()
		default:
			s.telemetry.RecordTrade(latency, true)
			s.logger.WarnContext(ctx, "bot trade failed",
				slog.String("user_id", actor.User.ID),
				slog.String("market_id", market.ID),
				slog.Any("error", err),
			)
		}
	}

	if s.cfg.ActivityKeep > 0 {
		pruned, err := s.activity.PruneToNewest(ctx, s.cfg.ActivityKeep)
		if err != nil {
			s.logger.WarnContext(ctx, "activity prune failed", slog.Any("error", err))
		} else if pruned > 0 {
			s.telemetry.RecordPruned(pruned)
		}
	}
}

// publishSpike broadcasts the spike start on the signal bus, best effort.
func (s *Scheduler) publishSpike(ctx context.Context, now time.Time, side string) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(service.SpikeEvent{
		MarketID: s.spike.marketID,
		Side:     side,
		EndsAt:   s.spike.endsAt,
		At:       now,
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, service.ChannelSpike, payload); err != nil {
		s.logger.WarnContext(ctx, "spike publish failed", slog.Any("error", err))
	}
}

func (s *Scheduler) publishHealth(ctx context.Context, snap Snapshot) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, service.ChannelSimHealth, payload); err != nil {
		s.logger.WarnContext(ctx, "health publish failed", slog.Any("error", err))
	}
}

// chooseOutcome picks which side of the market the actor backs this tick.
// The spike's herd side wins most of the time on the spike market, a
// remembered side is reused per the stickiness chance, and otherwise the
// actor's strategy decides: trend followers back the side the price favors,
// contrarians back the other one. A market at even odds is a coin flip for
// both strategies.
func (s *Scheduler) chooseOutcome(actor Actor, market domain.Market) (domain.Outcome, bool) {
	if len(market.Outcomes) == 0 {
		return domain.Outcome{}, false
	}

	if s.spike.active && market.ID == s.spike.marketID {
		wantYes := s.spike.sideYes
		if s.rng.Float64() >= s.cfg.SpikeSideBias {
			wantYes = !wantYes
		}
		return s.outcomeBySide(market, wantYes)
	}

	key := actor.User.ID + "|" + market.ID
	if remembered, ok := s.sides[key]; ok && s.rng.Float64() < s.cfg.Stickiness {
		if o, ok := market.OutcomeByID(remembered); ok {
			return o, true
		}
	}

	if market.CurrentProbability == 50 {
		return s.outcomeBySide(market, s.rng.Intn(2) == 0)
	}
	trendingYes := market.CurrentProbability > 50
	if actor.Strategy == StrategyContrarian {
		trendingYes = !trendingYes
	}
	return s.outcomeBySide(market, trendingYes)
}

// outcomeBySide resolves an outcome on the requested side. Multi-outcome
// markets carry several no-side outcomes; one is picked at random.
func (s *Scheduler) outcomeBySide(market domain.Market, wantYes bool) (domain.Outcome, bool) {
	var candidates []domain.Outcome
	for _, o := range market.Outcomes {
		if o.IsYes == wantYes {
			candidates = append(candidates, o)
		}
	}
	if len(candidates) == 0 {
		return domain.Outcome{}, false
	}
	if len(candidates) == 1 {
		return candidates[0], true
	}
	return candidates[s.rng.Intn(len(candidates))], true
}

// rememberAction updates the actor's memory after a completed trade: the
// action time always, the chosen side only per the adoption chance so
// preferences can still drift.
func (s *Scheduler) rememberAction(actor Actor, marketID, outcomeID string, now time.Time) {
	s.lastAction[actor.User.ID] = now
	if s.rng.Float64() < s.cfg.AdoptSideProb {
		s.sides[actor.User.ID+"|"+marketID] = outcomeID
	}
}
