package service

import (
	"sort"
	"time"

	"github.com/parlaygames/parlay/internal/domain"
	"github.com/parlaygames/parlay/internal/rating"
)

// SettlementConfig holds the tunable parameters for market resolution.
type SettlementConfig struct {
	// NearMissThreshold is the share of the active pool a losing outcome
	// must hold for its backers to receive the consolation credit.
	NearMissThreshold float64
	NearMissCredit    int64
	KFactor           float64

	CreatorRefundMinParticipants int
	CreatorRefundMinVolume       int64
	CreatorRewardPerParticipant  int64
	CreatorRewardVolumeRate      float64
	CreatorRewardCap             int64

	LockTTL time.Duration
}

// BuildPlan computes the complete settlement of a market: per-user payouts,
// near-miss credits, counters, and rating changes, plus the creator's refund
// and reward. It is pure; nothing is persisted. ratings maps user IDs to
// their pre-settlement ratings; users absent from the map get no rating
// change.
func BuildPlan(
	market domain.Market,
	winningOutcomeID string,
	open []domain.Position,
	ratings map[string]int,
	cfg SettlementConfig,
	resolvedAt time.Time,
) (domain.SettlementPlan, error) {
	if _, ok := market.OutcomeByID(winningOutcomeID); !ok {
		return domain.SettlementPlan{}, domain.ErrInvalidOutcome
	}

	plan := domain.SettlementPlan{
		MarketID:         market.ID,
		WinningOutcomeID: winningOutcomeID,
		ResolvedAt:       resolvedAt,
	}

	stakeByOutcome := make(map[string]int64)
	for _, p := range open {
		plan.TotalActiveStake += p.Amount
		stakeByOutcome[p.OutcomeID] += p.Amount
	}

	// Losing outcomes that captured enough of the pool qualify their
	// backers for the consolation credit.
	nearMissOutcomes := make(map[string]bool)
	if plan.TotalActiveStake > 0 {
		for outcomeID, stake := range stakeByOutcome {
			if outcomeID == winningOutcomeID {
				continue
			}
			if float64(stake)/float64(plan.TotalActiveStake) >= cfg.NearMissThreshold {
				nearMissOutcomes[outcomeID] = true
			}
		}
	}

	// Group positions per user, keeping each user's positions in open order.
	byUser := make(map[string][]domain.Position)
	var userOrder []string
	for _, p := range open {
		if _, seen := byUser[p.UserID]; !seen {
			userOrder = append(userOrder, p.UserID)
		}
		byUser[p.UserID] = append(byUser[p.UserID], p)
	}

	for _, userID := range userOrder {
		positions := byUser[userID]
		sort.SliceStable(positions, func(i, j int) bool {
			return positions[i].OpenedAt.Before(positions[j].OpenedAt)
		})

		us := domain.UserSettlement{
			UserID:   userID,
			MarketID: market.ID,
		}

		var outcomes []rating.PositionOutcome
		for _, p := range positions {
			won := p.OutcomeID == winningOutcomeID
			if won {
				us.Won = true
				us.WinningStake += p.Amount
				payout := p.WinPayout()
				us.Payout += payout
				us.Payouts = append(us.Payouts, domain.PositionPayout{
					PositionID: p.ID,
					Amount:     payout,
				})
			} else {
				us.LosingStake += p.Amount
				if nearMissOutcomes[p.OutcomeID] {
					us.NearMiss = true
				}
			}

			outcome, ok := market.OutcomeByID(p.OutcomeID)
			resolutionProb := market.CurrentProbability
			if ok && !outcome.IsYes {
				resolutionProb = 100 - market.CurrentProbability
			}
			outcomes = append(outcomes, rating.PositionOutcome{
				EntryProb:      p.EntryProbability,
				ResolutionProb: resolutionProb,
				Won:            won,
			})
		}

		// Consolation goes to losers who backed a crowded wrong side.
		if !us.Won && us.NearMiss {
			us.NearMissCredit = cfg.NearMissCredit
		} else {
			us.NearMiss = false
		}

		us.NetProfit = us.Payout - (us.WinningStake + us.LosingStake)

		if before, ok := ratings[userID]; ok {
			us.RatingBefore = before
			us.RatingAfter = rating.Settle(cfg.KFactor, before, outcomes)
		}

		plan.Users = append(plan.Users, us)
	}

	plan.Creator = buildCreatorSettlement(market, cfg)
	return plan, nil
}

// buildCreatorSettlement computes the deposit refund and engagement reward.
// Both are gated on the market clearing either engagement threshold.
func buildCreatorSettlement(market domain.Market, cfg SettlementConfig) *domain.CreatorSettlement {
	engaged := market.ParticipantCount >= cfg.CreatorRefundMinParticipants ||
		market.TotalVolume >= cfg.CreatorRefundMinVolume
	if !engaged {
		return nil
	}

	reward := cfg.CreatorRewardPerParticipant*int64(market.ParticipantCount) +
		int64(cfg.CreatorRewardVolumeRate*float64(market.TotalVolume))
	if cfg.CreatorRewardCap > 0 && reward > cfg.CreatorRewardCap {
		reward = cfg.CreatorRewardCap
	}

	cs := &domain.CreatorSettlement{
		CreatorID: market.CreatorID,
		MarketID:  market.ID,
		Refund:    market.CreationDeposit,
		Reward:    reward,
	}
	if cs.Refund == 0 && cs.Reward == 0 {
		return nil
	}
	return cs
}
