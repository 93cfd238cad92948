package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlaygames/parlay/internal/domain"
)

func TestOpenPositionMovesProbabilityAndBalance(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.seedUser("alice", 1000, 1000)
	h.seedMarket(openMarket("m1", 50, 5000))

	pos, err := h.ledgerSvc.OpenPosition(ctx, TradeParams{
		UserID: "alice", MarketID: "m1", OutcomeID: "m1-yes", Amount: 500,
	})
	require.NoError(t, err)

	// 500 into 5000 liquidity moves the price 10 points
	m := h.market("m1")
	assert.InDelta(t, 60.0, m.CurrentProbability, 1e-9)
	assert.Equal(t, int64(500), m.TotalVolume)
	assert.Equal(t, 1, m.ParticipantCount)

	assert.Equal(t, int64(500), h.user("alice").Balance)
	assert.InDelta(t, 60.0, pos.EntryProbability, 1e-9)
	assert.InDelta(t, 500.0/60.0, pos.Shares, 1e-9)

	// cache refreshed and tick published
	cached, _, err := h.probs.GetProbability(ctx, "m1")
	require.NoError(t, err)
	assert.InDelta(t, 60.0, cached, 1e-9)
	assert.NotEmpty(t, h.bus.published[ChannelProbability])
	assert.NotEmpty(t, h.bus.published[ChannelActivity])
}

func TestOpenPositionNoSideMirrorsEntryProbability(t *testing.T) {
	h := newHarness()
	h.seedUser("bob", 1000, 1000)
	h.seedMarket(openMarket("m1", 50, 5000))

	pos, err := h.ledgerSvc.OpenPosition(context.Background(), TradeParams{
		UserID: "bob", MarketID: "m1", OutcomeID: "m1-no", Amount: 500,
	})
	require.NoError(t, err)

	// yes side drops to 40, so the no entry is 60
	assert.InDelta(t, 40.0, h.market("m1").CurrentProbability, 1e-9)
	assert.InDelta(t, 60.0, pos.EntryProbability, 1e-9)
}

func TestOpenPositionValidation(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.seedUser("alice", 1000, 1000)
	h.seedMarket(openMarket("m1", 50, 5000))

	_, err := h.ledgerSvc.OpenPosition(ctx, TradeParams{
		UserID: "alice", MarketID: "m1", OutcomeID: "m1-yes", Amount: 0,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = h.ledgerSvc.OpenPosition(ctx, TradeParams{
		UserID: "alice", MarketID: "m1", OutcomeID: "other", Amount: 100,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)

	_, err = h.ledgerSvc.OpenPosition(ctx, TradeParams{
		UserID: "alice", MarketID: "m1", OutcomeID: "m1-yes", Amount: 5000,
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestOpenPositionClosedAndResolvedMarkets(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.seedUser("alice", 1000, 1000)

	closed := openMarket("m-closed", 50, 5000)
	closed.ClosesAt = time.Now().Add(-time.Hour)
	h.seedMarket(closed)

	_, err := h.ledgerSvc.OpenPosition(ctx, TradeParams{
		UserID: "alice", MarketID: "m-closed", OutcomeID: "m-closed-yes", Amount: 100,
	})
	assert.ErrorIs(t, err, domain.ErrMarketClosed)

	resolved := openMarket("m-resolved", 50, 5000)
	winner := "m-resolved-yes"
	now := time.Now().UTC()
	resolved.ResolvedOutcomeID = &winner
	resolved.ResolvedAt = &now
	h.seedMarket(resolved)

	_, err = h.ledgerSvc.OpenPosition(ctx, TradeParams{
		UserID: "alice", MarketID: "m-resolved", OutcomeID: winner, Amount: 100,
	})
	assert.ErrorIs(t, err, domain.ErrMarketResolved)
}

func TestOpenPositionRejectsSideSwitch(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.seedUser("alice", 1000, 1000)
	h.seedMarket(openMarket("m1", 50, 5000))

	_, err := h.ledgerSvc.OpenPosition(ctx, TradeParams{
		UserID: "alice", MarketID: "m1", OutcomeID: "m1-yes", Amount: 100,
	})
	require.NoError(t, err)

	// adding to the same side is fine
	_, err = h.ledgerSvc.OpenPosition(ctx, TradeParams{
		UserID: "alice", MarketID: "m1", OutcomeID: "m1-yes", Amount: 100,
	})
	require.NoError(t, err)

	_, err = h.ledgerSvc.OpenPosition(ctx, TradeParams{
		UserID: "alice", MarketID: "m1", OutcomeID: "m1-no", Amount: 100,
	})
	assert.ErrorIs(t, err, domain.ErrOutcomeMismatch)

	assert.Equal(t, 1, h.market("m1").ParticipantCount)
}

func TestOpenPositionRateLimit(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.seedUser("alice", 1000, 1000)
	h.seedMarket(openMarket("m1", 50, 5000))
	h.limiter.deny = true

	_, err := h.ledgerSvc.OpenPosition(ctx, TradeParams{
		UserID: "alice", MarketID: "m1", OutcomeID: "m1-yes", Amount: 100,
	})
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	// the simulation paces itself and bypasses the limiter
	_, err = h.ledgerSvc.OpenPosition(ctx, TradeParams{
		UserID: "alice", MarketID: "m1", OutcomeID: "m1-yes", Amount: 100, Simulated: true,
	})
	assert.NoError(t, err)
}

func TestCashOut(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.seedUser("alice", 1000, 1000)
	h.seedMarket(openMarket("m1", 50, 5000))

	pos, err := h.ledgerSvc.OpenPosition(ctx, TradeParams{
		UserID: "alice", MarketID: "m1", OutcomeID: "m1-yes", Amount: 500,
	})
	require.NoError(t, err)

	// exiting at the entry price returns exactly the stake
	closed, payout, err := h.ledgerSvc.CashOut(ctx, "alice", pos.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), payout)
	assert.False(t, closed.IsOpen())
	require.NotNil(t, closed.ExitProbability)
	assert.InDelta(t, 60.0, *closed.ExitProbability, 1e-9)
	assert.Equal(t, int64(1000), h.user("alice").Balance)

	_, _, err = h.ledgerSvc.CashOut(ctx, "alice", pos.ID)
	assert.ErrorIs(t, err, domain.ErrPositionClosed)
}

func TestCashOutAuthorization(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.seedUser("alice", 1000, 1000)
	h.seedUser("mallory", 1000, 1000)
	h.seedMarket(openMarket("m1", 50, 5000))

	pos, err := h.ledgerSvc.OpenPosition(ctx, TradeParams{
		UserID: "alice", MarketID: "m1", OutcomeID: "m1-yes", Amount: 100,
	})
	require.NoError(t, err)

	_, _, err = h.ledgerSvc.CashOut(ctx, "mallory", pos.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestCashOutResolvedMarket(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.seedUser("alice", 1000, 1000)
	h.seedMarket(openMarket("m1", 50, 5000))

	pos, err := h.ledgerSvc.OpenPosition(ctx, TradeParams{
		UserID: "alice", MarketID: "m1", OutcomeID: "m1-yes", Amount: 100,
	})
	require.NoError(t, err)

	m := h.market("m1")
	winner := "m1-no"
	now := time.Now().UTC()
	m.ResolvedOutcomeID = &winner
	m.ResolvedAt = &now
	h.seedMarket(m)

	_, _, err = h.ledgerSvc.CashOut(ctx, "alice", pos.ID)
	assert.ErrorIs(t, err, domain.ErrMarketResolved)
}

func TestValuationUsesLiveProbability(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.seedUser("alice", 1000, 1000)
	h.seedMarket(openMarket("m1", 50, 5000))

	pos, err := h.ledgerSvc.OpenPosition(ctx, TradeParams{
		UserID: "alice", MarketID: "m1", OutcomeID: "m1-yes", Amount: 500,
	})
	require.NoError(t, err)

	// the cache moves ahead of the store
	require.NoError(t, h.probs.SetProbability(ctx, "m1", 80, time.Now()))

	value, pnl, err := h.ledgerSvc.Valuation(ctx, pos.ID)
	require.NoError(t, err)
	assert.InDelta(t, 500.0/60.0*80, value, 1e-9)
	assert.InDelta(t, 500.0/60.0*80-500, pnl, 1e-9)
}
