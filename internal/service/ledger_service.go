package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/parlaygames/parlay/internal/domain"
	"github.com/parlaygames/parlay/internal/engine"
)

// TradeConfig holds the tunable parameters for position trading.
type TradeConfig struct {
	MinAmount       int64
	MaxAmount       int64 // 0 disables the upper bound
	LockTTL         time.Duration
	TradesPerMinute int // 0 disables rate limiting
}

// LedgerService opens and closes positions. Every trade reprices the market
// through the shared impact engine under a per-market lock, then hands the
// fully priced trade to the transactional ledger.
type LedgerService struct {
	markets   domain.MarketStore
	positions domain.PositionStore
	ledger    domain.Ledger
	cache     domain.MarketCache
	probs     domain.ProbCache
	locks     domain.LockManager
	limiter   domain.RateLimiter
	activity  domain.ActivityStore
	bus       domain.SignalBus
	cfg       TradeConfig
	logger    *slog.Logger
}

// NewLedgerService creates a LedgerService with all required dependencies.
func NewLedgerService(
	markets domain.MarketStore,
	positions domain.PositionStore,
	ledger domain.Ledger,
	cache domain.MarketCache,
	probs domain.ProbCache,
	locks domain.LockManager,
	limiter domain.RateLimiter,
	activity domain.ActivityStore,
	bus domain.SignalBus,
	cfg TradeConfig,
	logger *slog.Logger,
) *LedgerService {
	return &LedgerService{
		markets:   markets,
		positions: positions,
		ledger:    ledger,
		cache:     cache,
		probs:     probs,
		locks:     locks,
		limiter:   limiter,
		activity:  activity,
		bus:       bus,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "ledger_service")),
	}
}

// TradeParams describes a request to open a position.
type TradeParams struct {
	UserID    string
	MarketID  string
	OutcomeID string
	Amount    int64
	// Simulated trades come from the bot engine, which paces itself, so
	// they bypass the per-user rate limit.
	Simulated bool
}

// OpenPosition prices and opens a position. The market's per-market lock is
// held from pricing through commit so concurrent trades serialize; the
// ledger re-validates market state and balance inside its transaction.
func (s *LedgerService) OpenPosition(ctx context.Context, p TradeParams) (domain.Position, error) {
	if p.Amount < s.cfg.MinAmount || (s.cfg.MaxAmount > 0 && p.Amount > s.cfg.MaxAmount) {
		return domain.Position{}, domain.ErrInvalidAmount
	}

	if !p.Simulated && s.cfg.TradesPerMinute > 0 {
		allowed, err := s.limiter.Allow(ctx, "trade:"+p.UserID, s.cfg.TradesPerMinute, time.Minute)
		if err != nil {
			return domain.Position{}, fmt.Errorf("service: trade rate limit: %w", err)
		}
		if !allowed {
			return domain.Position{}, domain.ErrRateLimited
		}
	}

	unlock, err := s.locks.Acquire(ctx, "market:"+p.MarketID, s.cfg.LockTTL)
	if err != nil {
		return domain.Position{}, fmt.Errorf("service: trade lock %s: %w", p.MarketID, err)
	}
	defer unlock()

	market, err := s.markets.GetByID(ctx, p.MarketID)
	if err != nil {
		return domain.Position{}, err
	}

	now := time.Now().UTC()
	if market.IsResolved() {
		return domain.Position{}, domain.ErrMarketResolved
	}
	if !market.IsOpenForTrading(now) {
		return domain.Position{}, domain.ErrMarketClosed
	}

	outcome, ok := market.OutcomeByID(p.OutcomeID)
	if !ok {
		return domain.Position{}, domain.ErrInvalidOutcome
	}

	// A user backs one side of a market at a time; adding to the same side
	// is fine, switching sides with an open position is not.
	open, err := s.positions.ListOpenByMarket(ctx, p.MarketID)
	if err != nil {
		return domain.Position{}, err
	}
	for _, pos := range open {
		if pos.UserID == p.UserID && pos.OutcomeID != p.OutcomeID {
			return domain.Position{}, domain.ErrOutcomeMismatch
		}
	}

	newProb := engine.Reprice(market.CurrentProbability, p.Amount, engine.DirectionFor(outcome), market.Liquidity)
	entryProb := newProb
	if !outcome.IsYes {
		entryProb = 100 - newProb
	}
	shares := float64(p.Amount) / entryProb

	snapshots := make([]domain.ProbabilitySnapshot, 0, len(market.Outcomes))
	for _, o := range market.Outcomes {
		snapProb := newProb
		if !o.IsYes {
			snapProb = 100 - newProb
		}
		snapshots = append(snapshots, domain.ProbabilitySnapshot{
			MarketID:    market.ID,
			OutcomeID:   o.ID,
			Probability: snapProb / 100,
			CreatedAt:   now,
		})
	}

	pos, err := s.ledger.OpenPosition(ctx, domain.OpenPositionParams{
		PositionID:       uuid.New().String(),
		UserID:           p.UserID,
		MarketID:         p.MarketID,
		OutcomeID:        p.OutcomeID,
		Amount:           p.Amount,
		NewProbability:   newProb,
		EntryProbability: entryProb,
		Shares:           shares,
		Snapshots:        snapshots,
		OpenedAt:         now,
	})
	if err != nil {
		return domain.Position{}, err
	}

	s.afterTrade(ctx, market, newProb, now)
	s.recordActivity(ctx, domain.ActivityEntry{
		Type:      domain.ActivityTrade,
		UserID:    &p.UserID,
		MarketID:  p.MarketID,
		Side:      outcome.Label,
		Amount:    &p.Amount,
		Price:     &entryProb,
		CreatedAt: now,
	})

	s.logger.InfoContext(ctx, "position opened",
		slog.String("position_id", pos.ID),
		slog.String("market_id", p.MarketID),
		slog.String("side", outcome.Label),
		slog.Int64("amount", p.Amount),
		slog.Float64("probability", newProb),
		slog.Bool("simulated", p.Simulated),
	)
	return pos, nil
}

// CashOut closes an open position early at the live price of its chosen
// outcome. Cashing out never moves the market price.
func (s *LedgerService) CashOut(ctx context.Context, userID, positionID string) (domain.Position, int64, error) {
	pos, err := s.positions.GetByID(ctx, positionID)
	if err != nil {
		return domain.Position{}, 0, err
	}
	if pos.UserID != userID {
		return domain.Position{}, 0, domain.ErrUnauthorized
	}
	if !pos.IsOpen() {
		return domain.Position{}, 0, domain.ErrPositionClosed
	}

	unlock, err := s.locks.Acquire(ctx, "market:"+pos.MarketID, s.cfg.LockTTL)
	if err != nil {
		return domain.Position{}, 0, fmt.Errorf("service: cash out lock %s: %w", pos.MarketID, err)
	}
	defer unlock()

	market, err := s.markets.GetByID(ctx, pos.MarketID)
	if err != nil {
		return domain.Position{}, 0, err
	}
	if market.IsResolved() {
		return domain.Position{}, 0, domain.ErrMarketResolved
	}

	outcome, ok := market.OutcomeByID(pos.OutcomeID)
	if !ok {
		return domain.Position{}, 0, domain.ErrInvalidOutcome
	}

	now := time.Now().UTC()
	prob := market.ProbabilityOf(outcome)
	payout := pos.CashOutPayout(prob)

	closed, err := s.ledger.ClosePosition(ctx, positionID, prob, payout, now)
	if err != nil {
		return domain.Position{}, 0, err
	}

	s.recordActivity(ctx, domain.ActivityEntry{
		Type:      domain.ActivityCashOut,
		UserID:    &userID,
		MarketID:  pos.MarketID,
		Side:      outcome.Label,
		Amount:    &payout,
		Price:     &prob,
		CreatedAt: now,
	})

	s.logger.InfoContext(ctx, "position cashed out",
		slog.String("position_id", positionID),
		slog.String("market_id", pos.MarketID),
		slog.Int64("payout", payout),
		slog.Float64("probability", prob),
	)
	return closed, payout, nil
}

// Valuation returns a position's current worth and unrealized profit using
// the live probability, preferring the cache over the store.
func (s *LedgerService) Valuation(ctx context.Context, positionID string) (value float64, pnl float64, err error) {
	pos, err := s.positions.GetByID(ctx, positionID)
	if err != nil {
		return 0, 0, err
	}

	market, err := s.markets.GetByID(ctx, pos.MarketID)
	if err != nil {
		return 0, 0, err
	}
	outcome, ok := market.OutcomeByID(pos.OutcomeID)
	if !ok {
		return 0, 0, domain.ErrInvalidOutcome
	}

	yesProb := market.CurrentProbability
	if cached, _, err := s.probs.GetProbability(ctx, pos.MarketID); err == nil {
		yesProb = cached
	} else if !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "prob cache read failed",
			slog.String("market_id", pos.MarketID), slog.Any("error", err))
	}

	prob := yesProb
	if !outcome.IsYes {
		prob = 100 - yesProb
	}
	return pos.ValueAt(prob), pos.UnrealizedPnL(prob), nil
}

// ListUserPositions returns a user's positions, newest first.
func (s *LedgerService) ListUserPositions(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Position, error) {
	return s.positions.ListByUser(ctx, userID, opts)
}

// afterTrade refreshes the price cache, invalidates the market cache, and
// publishes the probability tick. All best effort.
func (s *LedgerService) afterTrade(ctx context.Context, market domain.Market, newProb float64, now time.Time) {
	if err := s.probs.SetProbability(ctx, market.ID, newProb, now); err != nil {
		s.logger.WarnContext(ctx, "prob cache write failed",
			slog.String("market_id", market.ID), slog.Any("error", err))
	}
	if err := s.cache.Invalidate(ctx, market.ID); err != nil {
		s.logger.WarnContext(ctx, "market cache invalidate failed",
			slog.String("market_id", market.ID), slog.Any("error", err))
	}

	payload, err := json.Marshal(ProbabilityTick{
		MarketID:    market.ID,
		Probability: newProb,
		Volume:      market.TotalVolume,
		At:          now,
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, ChannelProbability, payload); err != nil {
		s.logger.WarnContext(ctx, "probability publish failed",
			slog.String("market_id", market.ID), slog.Any("error", err))
	}
}

// recordActivity appends a feed entry and mirrors it onto the bus.
func (s *LedgerService) recordActivity(ctx context.Context, e domain.ActivityEntry) {
	if err := s.activity.Append(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "activity append failed",
			slog.String("market_id", e.MarketID), slog.Any("error", err))
		return
	}
	publishActivity(ctx, s.bus, s.logger, e)
}
