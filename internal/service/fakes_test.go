package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/parlaygames/parlay/internal/domain"
)

// memState is shared in-memory backing for the fake stores, mirroring the
// transactional guarantees of the real ledger closely enough for service
// tests.
type memState struct {
	mu        sync.Mutex
	markets   map[string]domain.Market
	users     map[string]domain.User
	positions map[string]domain.Position
	activity  []domain.ActivityEntry
	txns      []domain.Transaction
	snapshots []domain.ProbabilitySnapshot
}

func newMemState() *memState {
	return &memState{
		markets:   make(map[string]domain.Market),
		users:     make(map[string]domain.User),
		positions: make(map[string]domain.Position),
	}
}

func (st *memState) txnsOfType(t domain.TransactionType) []domain.Transaction {
	st.mu.Lock()
	defer st.mu.Unlock()
	var out []domain.Transaction
	for _, txn := range st.txns {
		if txn.Type == t {
			out = append(out, txn)
		}
	}
	return out
}

type fakeMarkets struct{ st *memState }

func (f *fakeMarkets) Create(_ context.Context, m domain.Market) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	f.st.markets[m.ID] = m
	return nil
}

func (f *fakeMarkets) GetByID(_ context.Context, id string) (domain.Market, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	m, ok := f.st.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (f *fakeMarkets) GetBySlug(_ context.Context, slug string) (domain.Market, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	for _, m := range f.st.markets {
		if m.Slug == slug {
			return m, nil
		}
	}
	return domain.Market{}, domain.ErrNotFound
}

func (f *fakeMarkets) ListOpen(_ context.Context, now time.Time) ([]domain.Market, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	var out []domain.Market
	for _, m := range f.st.markets {
		if m.IsOpenForTrading(now) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMarkets) ListResolvedBefore(_ context.Context, before time.Time) ([]domain.Market, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	var out []domain.Market
	for _, m := range f.st.markets {
		if m.ResolvedAt != nil && m.ResolvedAt.Before(before) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMarkets) List(_ context.Context, _ domain.ListOpts) ([]domain.Market, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	var out []domain.Market
	for _, m := range f.st.markets {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeMarkets) Count(_ context.Context) (int64, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	return int64(len(f.st.markets)), nil
}

type fakeUsers struct{ st *memState }

func (f *fakeUsers) Create(_ context.Context, u domain.User) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	f.st.users[u.ID] = u
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (domain.User, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	u, ok := f.st.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (domain.User, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	for _, u := range f.st.users {
		if u.Username == username {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (f *fakeUsers) ListBots(_ context.Context, minBalance int64) ([]domain.User, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	var out []domain.User
	for _, u := range f.st.users {
		if u.IsBot && u.Balance >= minBalance {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeUsers) Count(_ context.Context) (int64, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	return int64(len(f.st.users)), nil
}

type fakePositions struct{ st *memState }

func (f *fakePositions) GetByID(_ context.Context, id string) (domain.Position, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	p, ok := f.st.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (f *fakePositions) ListOpenByMarket(_ context.Context, marketID string) ([]domain.Position, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	var out []domain.Position
	for _, p := range f.st.positions {
		if p.MarketID == marketID && p.IsOpen() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePositions) ListByUser(_ context.Context, userID string, _ domain.ListOpts) ([]domain.Position, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	var out []domain.Position
	for _, p := range f.st.positions {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePositions) ListByMarket(_ context.Context, marketID string) ([]domain.Position, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	var out []domain.Position
	for _, p := range f.st.positions {
		if p.MarketID == marketID {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeLedger struct{ st *memState }

func (f *fakeLedger) CreateMarket(_ context.Context, m domain.Market) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	for _, existing := range f.st.markets {
		if existing.Slug == m.Slug {
			return domain.ErrAlreadyExists
		}
	}
	if m.CreationDeposit > 0 {
		u, ok := f.st.users[m.CreatorID]
		if !ok {
			return domain.ErrNotFound
		}
		if u.Balance < m.CreationDeposit {
			return domain.ErrInsufficientBalance
		}
		u.Balance -= m.CreationDeposit
		f.st.users[m.CreatorID] = u
		f.st.txns = append(f.st.txns, domain.Transaction{
			UserID: m.CreatorID, MarketID: &m.ID,
			Type: domain.TxnCreationDeposit, Amount: -m.CreationDeposit,
		})
	}
	f.st.markets[m.ID] = m
	return nil
}

func (f *fakeLedger) OpenPosition(_ context.Context, p domain.OpenPositionParams) (domain.Position, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	m, ok := f.st.markets[p.MarketID]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	if m.IsResolved() {
		return domain.Position{}, domain.ErrMarketResolved
	}
	u, ok := f.st.users[p.UserID]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	if u.Balance < p.Amount {
		return domain.Position{}, domain.ErrInsufficientBalance
	}

	u.Balance -= p.Amount
	f.st.users[p.UserID] = u

	first := true
	for _, pos := range f.st.positions {
		if pos.MarketID == p.MarketID && pos.UserID == p.UserID {
			first = false
			break
		}
	}

	m.CurrentProbability = p.NewProbability
	m.TotalVolume += p.Amount
	if first {
		m.ParticipantCount++
	}
	f.st.markets[p.MarketID] = m

	pos := domain.Position{
		ID:               p.PositionID,
		UserID:           p.UserID,
		MarketID:         p.MarketID,
		OutcomeID:        p.OutcomeID,
		Amount:           p.Amount,
		EntryProbability: p.EntryProbability,
		Shares:           p.Shares,
		OpenedAt:         p.OpenedAt,
	}
	f.st.positions[pos.ID] = pos
	f.st.snapshots = append(f.st.snapshots, p.Snapshots...)
	f.st.txns = append(f.st.txns, domain.Transaction{
		UserID: p.UserID, MarketID: &p.MarketID, PositionID: &p.PositionID,
		Type: domain.TxnStake, Amount: -p.Amount,
	})
	return pos, nil
}

func (f *fakeLedger) ClosePosition(_ context.Context, positionID string, exitProbability float64, payout int64, closedAt time.Time) (domain.Position, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	pos, ok := f.st.positions[positionID]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	if !pos.IsOpen() {
		return domain.Position{}, domain.ErrPositionClosed
	}

	pos.ClosedAt = &closedAt
	pos.ExitProbability = &exitProbability
	f.st.positions[positionID] = pos

	u := f.st.users[pos.UserID]
	u.Balance += payout
	f.st.users[pos.UserID] = u
	f.st.txns = append(f.st.txns, domain.Transaction{
		UserID: pos.UserID, MarketID: &pos.MarketID, PositionID: &positionID,
		Type: domain.TxnCashOut, Amount: payout,
	})
	return pos, nil
}

func (f *fakeLedger) BeginResolution(_ context.Context, marketID, winningOutcomeID string, resolvedAt time.Time) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	m, ok := f.st.markets[marketID]
	if !ok {
		return domain.ErrNotFound
	}
	if m.IsResolved() {
		return domain.ErrMarketResolved
	}
	m.ResolvedOutcomeID = &winningOutcomeID
	m.ResolvedAt = &resolvedAt
	f.st.markets[marketID] = m
	return nil
}

func (f *fakeLedger) ApplyUserSettlement(_ context.Context, us domain.UserSettlement) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	u, ok := f.st.users[us.UserID]
	if !ok {
		return domain.ErrNotFound
	}
	u.Balance += us.Payout + us.NearMissCredit
	u.TotalProfit += us.NetProfit
	u.Rating = us.RatingAfter
	if us.Won {
		u.WinStreak++
		u.TotalWins++
	} else {
		u.WinStreak = 0
		u.TotalLosses++
	}
	f.st.users[us.UserID] = u

	for id, pos := range f.st.positions {
		if pos.MarketID == us.MarketID && pos.UserID == us.UserID && pos.IsOpen() {
			now := time.Now()
			pos.ClosedAt = &now
			f.st.positions[id] = pos
		}
	}
	for _, pp := range us.Payouts {
		positionID := pp.PositionID
		f.st.txns = append(f.st.txns, domain.Transaction{
			UserID: us.UserID, MarketID: &us.MarketID, PositionID: &positionID,
			Type: domain.TxnPayout, Amount: pp.Amount,
		})
	}
	if us.NearMissCredit > 0 {
		f.st.txns = append(f.st.txns, domain.Transaction{
			UserID: us.UserID, MarketID: &us.MarketID,
			Type: domain.TxnNearMissCredit, Amount: us.NearMissCredit,
		})
	}
	return nil
}

func (f *fakeLedger) ApplyCreatorSettlement(_ context.Context, cs domain.CreatorSettlement) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	u, ok := f.st.users[cs.CreatorID]
	if !ok {
		return domain.ErrNotFound
	}
	u.Balance += cs.Refund + cs.Reward
	f.st.users[cs.CreatorID] = u
	if cs.Refund > 0 {
		f.st.txns = append(f.st.txns, domain.Transaction{
			UserID: cs.CreatorID, MarketID: &cs.MarketID,
			Type: domain.TxnCreatorRefund, Amount: cs.Refund,
		})
	}
	if cs.Reward > 0 {
		f.st.txns = append(f.st.txns, domain.Transaction{
			UserID: cs.CreatorID, MarketID: &cs.MarketID,
			Type: domain.TxnCreatorReward, Amount: cs.Reward,
		})
	}
	return nil
}

type fakeActivity struct{ st *memState }

func (f *fakeActivity) Append(_ context.Context, e domain.ActivityEntry) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	f.st.activity = append(f.st.activity, e)
	return nil
}

func (f *fakeActivity) List(_ context.Context, _ domain.ListOpts) ([]domain.ActivityEntry, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	out := make([]domain.ActivityEntry, len(f.st.activity))
	copy(out, f.st.activity)
	return out, nil
}

func (f *fakeActivity) PruneToNewest(_ context.Context, keep int) (int64, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	if len(f.st.activity) <= keep {
		return 0, nil
	}
	removed := len(f.st.activity) - keep
	f.st.activity = f.st.activity[removed:]
	return int64(removed), nil
}

type fakeSnapshots struct{ st *memState }

func (f *fakeSnapshots) ListByMarket(_ context.Context, marketID string, _ domain.ListOpts) ([]domain.ProbabilitySnapshot, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	var out []domain.ProbabilitySnapshot
	for _, sn := range f.st.snapshots {
		if sn.MarketID == marketID {
			out = append(out, sn)
		}
	}
	return out, nil
}

func (f *fakeSnapshots) ListBefore(_ context.Context, before time.Time) ([]domain.ProbabilitySnapshot, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	var out []domain.ProbabilitySnapshot
	for _, sn := range f.st.snapshots {
		if sn.CreatedAt.Before(before) {
			out = append(out, sn)
		}
	}
	return out, nil
}

func (f *fakeSnapshots) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	var kept []domain.ProbabilitySnapshot
	var removed int64
	for _, sn := range f.st.snapshots {
		if sn.CreatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, sn)
	}
	f.st.snapshots = kept
	return removed, nil
}

type fakeMarketCache struct {
	mu sync.Mutex
	m  map[string]domain.Market
}

func newFakeMarketCache() *fakeMarketCache {
	return &fakeMarketCache{m: make(map[string]domain.Market)}
}

func (c *fakeMarketCache) Set(_ context.Context, market domain.Market) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[market.ID] = market
	return nil
}

func (c *fakeMarketCache) Get(_ context.Context, id string) (domain.Market, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.m[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (c *fakeMarketCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, id)
	return nil
}

type fakeProbCache struct {
	mu sync.Mutex
	m  map[string]float64
}

func newFakeProbCache() *fakeProbCache {
	return &fakeProbCache{m: make(map[string]float64)}
}

func (c *fakeProbCache) SetProbability(_ context.Context, marketID string, prob float64, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[marketID] = prob
	return nil
}

func (c *fakeProbCache) GetProbability(_ context.Context, marketID string) (float64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.m[marketID]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return p, time.Time{}, nil
}

func (c *fakeProbCache) GetProbabilities(_ context.Context, marketIDs []string) (map[string]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64)
	for _, id := range marketIDs {
		if p, ok := c.m[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type fakeLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeLocks() *fakeLocks {
	return &fakeLocks{held: make(map[string]bool)}
}

func (l *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

type fakeLimiter struct{ deny bool }

func (l *fakeLimiter) Allow(_ context.Context, _ string, _ int, _ time.Duration) (bool, error) {
	return !l.deny, nil
}

type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streams   map[string][][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		published: make(map[string][][]byte),
		streams:   make(map[string][][]byte),
	}
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *fakeBus) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams[stream] = append(b.streams[stream], payload)
	return nil
}

func (b *fakeBus) StreamRead(_ context.Context, stream string, _ string, _ int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.StreamMessage
	for i, payload := range b.streams[stream] {
		out = append(out, domain.StreamMessage{ID: strings.Repeat("0", i+1), Payload: payload})
	}
	return out, nil
}
