package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/parlaygames/parlay/internal/domain"
	"github.com/parlaygames/parlay/internal/engine"
)

// MarketConfig holds the tunable parameters for market creation.
type MarketConfig struct {
	DefaultLiquidity   float64
	InitialProbability float64
	CreationDeposit    int64
}

// MarketService creates markets and serves market reads through the cache.
type MarketService struct {
	markets   domain.MarketStore
	snapshots domain.SnapshotStore
	activity  domain.ActivityStore
	ledger    domain.Ledger
	cache     domain.MarketCache
	probs     domain.ProbCache
	bus       domain.SignalBus
	cfg       MarketConfig
	logger    *slog.Logger
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(
	markets domain.MarketStore,
	snapshots domain.SnapshotStore,
	activity domain.ActivityStore,
	ledger domain.Ledger,
	cache domain.MarketCache,
	probs domain.ProbCache,
	bus domain.SignalBus,
	cfg MarketConfig,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets:   markets,
		snapshots: snapshots,
		activity:  activity,
		ledger:    ledger,
		cache:     cache,
		probs:     probs,
		bus:       bus,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "market_service")),
	}
}

// CreateMarketParams describes a new market. Zero-valued optional fields
// fall back to configured defaults.
type CreateMarketParams struct {
	CreatorID          string
	Question           string
	Slug               string
	OutcomeLabels      []string // two or more; first is the yes-like side; defaults to Yes/No
	ClosesAt           time.Time
	Liquidity          float64
	InitialProbability float64
}

// Create validates the parameters, debits the creator's deposit, and
// persists the market with its outcomes and opening price point.
func (s *MarketService) Create(ctx context.Context, p CreateMarketParams) (domain.Market, error) {
	if strings.TrimSpace(p.Question) == "" {
		return domain.Market{}, fmt.Errorf("service: create market: question must not be empty")
	}
	now := time.Now().UTC()
	if !p.ClosesAt.After(now) {
		return domain.Market{}, domain.ErrMarketClosed
	}

	liquidity := p.Liquidity
	if liquidity <= 0 {
		liquidity = s.cfg.DefaultLiquidity
	}
	prob := p.InitialProbability
	if prob == 0 {
		prob = s.cfg.InitialProbability
	}
	prob = engine.Clamp(prob)

	labels := p.OutcomeLabels
	if len(labels) == 0 {
		labels = []string{"Yes", "No"}
	}
	if len(labels) < 2 {
		return domain.Market{}, domain.ErrInvalidOutcome
	}

	slug := p.Slug
	if slug == "" {
		slug = slugify(p.Question)
	}

	marketID := uuid.New().String()
	market := domain.Market{
		ID:                 marketID,
		Question:           strings.TrimSpace(p.Question),
		Slug:               slug,
		CreatorID:          p.CreatorID,
		CurrentProbability: prob,
		Liquidity:          liquidity,
		CreationDeposit:    s.cfg.CreationDeposit,
		ClosesAt:           p.ClosesAt.UTC(),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	for i, label := range labels {
		market.Outcomes = append(market.Outcomes, domain.Outcome{
			ID:        uuid.New().String(),
			MarketID:  marketID,
			Label:     label,
			IsYes:     i == 0,
			SortIndex: i,
		})
	}

	err := s.ledger.CreateMarket(ctx, market)
	if errors.Is(err, domain.ErrAlreadyExists) && p.Slug == "" {
		// Slug collision on a generated slug: retry once with a suffix.
		market.Slug = slug + "-" + marketID[:8]
		err = s.ledger.CreateMarket(ctx, market)
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("service: create market: %w", err)
	}

	if err := s.probs.SetProbability(ctx, marketID, prob, now); err != nil {
		s.logger.WarnContext(ctx, "prob cache write failed",
			slog.String("market_id", marketID), slog.Any("error", err))
	}
	if err := s.cache.Set(ctx, market); err != nil {
		s.logger.WarnContext(ctx, "market cache write failed",
			slog.String("market_id", marketID), slog.Any("error", err))
	}

	s.recordActivity(ctx, domain.ActivityEntry{
		Type:      domain.ActivityMarketCreated,
		UserID:    &market.CreatorID,
		MarketID:  marketID,
		Price:     &prob,
		CreatedAt: now,
	})

	s.logger.InfoContext(ctx, "market created",
		slog.String("market_id", marketID),
		slog.String("slug", market.Slug),
		slog.Float64("probability", prob),
	)
	return market, nil
}

// Get retrieves a market, consulting the cache before the store.
func (s *MarketService) Get(ctx context.Context, id string) (domain.Market, error) {
	if m, err := s.cache.Get(ctx, id); err == nil {
		return m, nil
	}
	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return domain.Market{}, err
	}
	if err := s.cache.Set(ctx, m); err != nil {
		s.logger.WarnContext(ctx, "market cache write failed",
			slog.String("market_id", id), slog.Any("error", err))
	}
	return m, nil
}

// GetBySlug retrieves a market by URL slug.
func (s *MarketService) GetBySlug(ctx context.Context, slug string) (domain.Market, error) {
	return s.markets.GetBySlug(ctx, slug)
}

// List returns markets with pagination.
func (s *MarketService) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	return s.markets.List(ctx, opts)
}

// ListOpen returns every market currently open for trading.
func (s *MarketService) ListOpen(ctx context.Context) ([]domain.Market, error) {
	return s.markets.ListOpen(ctx, time.Now().UTC())
}

// History returns a market's probability history for charting.
func (s *MarketService) History(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.ProbabilitySnapshot, error) {
	return s.snapshots.ListByMarket(ctx, marketID, opts)
}

// Feed returns the public activity feed, newest first.
func (s *MarketService) Feed(ctx context.Context, opts domain.ListOpts) ([]domain.ActivityEntry, error) {
	return s.activity.List(ctx, opts)
}

// recordActivity appends a feed entry and mirrors it onto the bus. Feed
// writes are best effort: a failure is logged, never surfaced to the caller.
func (s *MarketService) recordActivity(ctx context.Context, e domain.ActivityEntry) {
	if err := s.activity.Append(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "activity append failed",
			slog.String("market_id", e.MarketID), slog.Any("error", err))
		return
	}
	publishActivity(ctx, s.bus, s.logger, e)
}

// publishActivity serializes a feed entry and publishes it for live clients.
func publishActivity(ctx context.Context, bus domain.SignalBus, logger *slog.Logger, e domain.ActivityEntry) {
	ev := ActivityEvent{
		Type:     string(e.Type),
		MarketID: e.MarketID,
		Side:     e.Side,
		At:       e.CreatedAt,
	}
	if e.UserID != nil {
		ev.UserID = *e.UserID
	}
	if e.Amount != nil {
		ev.Amount = *e.Amount
	}
	if e.Price != nil {
		ev.Price = *e.Price
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := bus.Publish(ctx, ChannelActivity, payload); err != nil {
		logger.WarnContext(ctx, "activity publish failed", slog.Any("error", err))
	}
}

// slugify converts a question into a URL-safe slug.
func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastDash := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
