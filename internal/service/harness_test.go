package service

import (
	"io"
	"log/slog"
	"time"

	"github.com/parlaygames/parlay/internal/domain"
)

// harness wires all three services over one shared in-memory state.
type harness struct {
	st      *memState
	markets *fakeMarkets
	users   *fakeUsers
	posns   *fakePositions
	cache   *fakeMarketCache
	probs   *fakeProbCache
	locks   *fakeLocks
	limiter *fakeLimiter
	bus     *fakeBus

	marketSvc *MarketService
	ledgerSvc *LedgerService
	settleSvc *SettlementService
}

func newHarness() *harness {
	h := &harness{
		st:      newMemState(),
		cache:   newFakeMarketCache(),
		probs:   newFakeProbCache(),
		locks:   newFakeLocks(),
		limiter: &fakeLimiter{},
		bus:     newFakeBus(),
	}
	h.markets = &fakeMarkets{st: h.st}
	h.users = &fakeUsers{st: h.st}
	h.posns = &fakePositions{st: h.st}
	ledger := &fakeLedger{st: h.st}
	activity := &fakeActivity{st: h.st}
	snapshots := &fakeSnapshots{st: h.st}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h.marketSvc = NewMarketService(
		h.markets, snapshots, activity, ledger, h.cache, h.probs, h.bus,
		MarketConfig{DefaultLiquidity: 5000, InitialProbability: 50, CreationDeposit: 250},
		logger,
	)
	h.ledgerSvc = NewLedgerService(
		h.markets, h.posns, ledger, h.cache, h.probs, h.locks, h.limiter,
		activity, h.bus,
		TradeConfig{MinAmount: 1, MaxAmount: 100_000, LockTTL: 5 * time.Second, TradesPerMinute: 30},
		logger,
	)
	h.settleSvc = NewSettlementService(
		h.markets, h.posns, h.users, ledger, h.cache, activity, h.bus, h.locks,
		testSettlementConfig(),
		logger,
	)
	return h
}

func (h *harness) seedUser(id string, balance int64, rating int) {
	h.st.mu.Lock()
	defer h.st.mu.Unlock()
	h.st.users[id] = domain.User{
		ID: id, Username: id, Balance: balance, Rating: rating,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
}

func (h *harness) seedMarket(m domain.Market) {
	h.st.mu.Lock()
	defer h.st.mu.Unlock()
	h.st.markets[m.ID] = m
}

func (h *harness) user(id string) domain.User {
	h.st.mu.Lock()
	defer h.st.mu.Unlock()
	return h.st.users[id]
}

func (h *harness) market(id string) domain.Market {
	h.st.mu.Lock()
	defer h.st.mu.Unlock()
	return h.st.markets[id]
}

// openMarket returns a fresh binary market open for trading.
func openMarket(id string, prob, liquidity float64) domain.Market {
	now := time.Now().UTC()
	return domain.Market{
		ID:                 id,
		Question:           "Will it happen?",
		Slug:               id,
		CreatorID:          "creator",
		CurrentProbability: prob,
		Liquidity:          liquidity,
		CreationDeposit:    250,
		ClosesAt:           now.Add(24 * time.Hour),
		CreatedAt:          now,
		UpdatedAt:          now,
		Outcomes: []domain.Outcome{
			{ID: id + "-yes", MarketID: id, Label: "Yes", IsYes: true, SortIndex: 0},
			{ID: id + "-no", MarketID: id, Label: "No", SortIndex: 1},
		},
	}
}
