package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/parlaygames/parlay/internal/domain"
)

// SettlementService resolves markets. Resolution is one-shot: the winning
// outcome is recorded first with an idempotent guard, then each user's
// settlement is applied in its own transaction so one broken account cannot
// wedge everyone else's payout.
type SettlementService struct {
	markets   domain.MarketStore
	positions domain.PositionStore
	users     domain.UserStore
	ledger    domain.Ledger
	cache     domain.MarketCache
	activity  domain.ActivityStore
	bus       domain.SignalBus
	locks     domain.LockManager
	cfg       SettlementConfig
	logger    *slog.Logger
}

// NewSettlementService creates a SettlementService with all required
// dependencies.
func NewSettlementService(
	markets domain.MarketStore,
	positions domain.PositionStore,
	users domain.UserStore,
	ledger domain.Ledger,
	cache domain.MarketCache,
	activity domain.ActivityStore,
	bus domain.SignalBus,
	locks domain.LockManager,
	cfg SettlementConfig,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		markets:   markets,
		positions: positions,
		users:     users,
		ledger:    ledger,
		cache:     cache,
		activity:  activity,
		bus:       bus,
		locks:     locks,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "settlement_service")),
	}
}

// Resolve settles a market on the winning outcome. It takes the same
// per-market lock as trading, so no trade can land between the position
// snapshot and the resolution flip. A second call returns
// domain.ErrMarketResolved without moving any currency.
func (s *SettlementService) Resolve(ctx context.Context, marketID, winningOutcomeID string) (domain.SettlementPlan, error) {
	unlock, err := s.locks.Acquire(ctx, "market:"+marketID, s.cfg.LockTTL)
	if err != nil {
		return domain.SettlementPlan{}, fmt.Errorf("service: resolution lock %s: %w", marketID, err)
	}
	defer unlock()

	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.SettlementPlan{}, err
	}
	if market.IsResolved() {
		return domain.SettlementPlan{}, domain.ErrMarketResolved
	}
	if _, ok := market.OutcomeByID(winningOutcomeID); !ok {
		return domain.SettlementPlan{}, domain.ErrInvalidOutcome
	}

	open, err := s.positions.ListOpenByMarket(ctx, marketID)
	if err != nil {
		return domain.SettlementPlan{}, err
	}

	// Load every holder's rating up front. A missing account is logged and
	// excluded; everyone else still settles.
	ratings := make(map[string]int)
	missing := make(map[string]bool)
	for _, p := range open {
		if _, seen := ratings[p.UserID]; seen || missing[p.UserID] {
			continue
		}
		u, err := s.users.GetByID(ctx, p.UserID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				s.logger.WarnContext(ctx, "settlement: position holder missing, skipping",
					slog.String("market_id", marketID),
					slog.String("user_id", p.UserID),
				)
				missing[p.UserID] = true
				continue
			}
			return domain.SettlementPlan{}, err
		}
		ratings[u.ID] = u.Rating
	}

	resolvedAt := time.Now().UTC()
	if err := s.ledger.BeginResolution(ctx, marketID, winningOutcomeID, resolvedAt); err != nil {
		return domain.SettlementPlan{}, err
	}

	plan, err := BuildPlan(market, winningOutcomeID, open, ratings, s.cfg, resolvedAt)
	if err != nil {
		return domain.SettlementPlan{}, err
	}

	settled, skipped := 0, 0
	for _, us := range plan.Users {
		if missing[us.UserID] {
			skipped++
			continue
		}
		if err := s.ledger.ApplyUserSettlement(ctx, us); err != nil {
			s.logger.ErrorContext(ctx, "settlement: user settlement failed",
				slog.String("market_id", marketID),
				slog.String("user_id", us.UserID),
				slog.Any("error", err),
			)
			skipped++
			continue
		}
		settled++
	}

	if plan.Creator != nil {
		if err := s.ledger.ApplyCreatorSettlement(ctx, *plan.Creator); err != nil {
			s.logger.ErrorContext(ctx, "settlement: creator settlement failed",
				slog.String("market_id", marketID),
				slog.String("creator_id", plan.Creator.CreatorID),
				slog.Any("error", err),
			)
		}
	}

	if err := s.cache.Invalidate(ctx, marketID); err != nil {
		s.logger.WarnContext(ctx, "market cache invalidate failed",
			slog.String("market_id", marketID), slog.Any("error", err))
	}

	winner, _ := market.OutcomeByID(winningOutcomeID)
	s.recordResolution(ctx, market, winner, plan, settled, skipped)

	s.logger.InfoContext(ctx, "market resolved",
		slog.String("market_id", marketID),
		slog.String("winning_outcome", winner.Label),
		slog.Int64("active_stake", plan.TotalActiveStake),
		slog.Int("users_settled", settled),
		slog.Int("users_skipped", skipped),
	)
	return plan, nil
}

// recordResolution appends the feed entry and broadcasts the resolution on
// both the ephemeral channel and the durable stream.
func (s *SettlementService) recordResolution(ctx context.Context, market domain.Market, winner domain.Outcome, plan domain.SettlementPlan, settled, skipped int) {
	entry := domain.ActivityEntry{
		Type:      domain.ActivityResolution,
		MarketID:  market.ID,
		Side:      winner.Label,
		Amount:    &plan.TotalActiveStake,
		CreatedAt: plan.ResolvedAt,
	}
	if err := s.activity.Append(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "activity append failed",
			slog.String("market_id", market.ID), slog.Any("error", err))
	} else {
		publishActivity(ctx, s.bus, s.logger, entry)
	}

	payload, err := json.Marshal(ResolutionEvent{
		MarketID:         market.ID,
		WinningOutcomeID: plan.WinningOutcomeID,
		TotalActiveStake: plan.TotalActiveStake,
		UsersSettled:     settled,
		UsersSkipped:     skipped,
		ResolvedAt:       plan.ResolvedAt,
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, ChannelResolution, payload); err != nil {
		s.logger.WarnContext(ctx, "resolution publish failed",
			slog.String("market_id", market.ID), slog.Any("error", err))
	}
	if err := s.bus.StreamAppend(ctx, StreamResolutions, payload); err != nil {
		s.logger.WarnContext(ctx, "resolution stream append failed",
			slog.String("market_id", market.ID), slog.Any("error", err))
	}
}
