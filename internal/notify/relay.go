package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/parlaygames/parlay/internal/domain"
	"github.com/parlaygames/parlay/internal/service"
)

// Subscriber is the slice of the signal bus the relay consumes.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// MarketGetter resolves market metadata for readable alert text.
type MarketGetter interface {
	GetByID(ctx context.Context, id string) (domain.Market, error)
}

// Relay bridges the signal bus to the notifier: resolution and spike events
// published by the core become operator alerts.
type Relay struct {
	bus      Subscriber
	markets  MarketGetter
	notifier *Notifier
	logger   *slog.Logger
}

// NewRelay creates a Relay.
func NewRelay(bus Subscriber, markets MarketGetter, notifier *Notifier, logger *slog.Logger) *Relay {
	return &Relay{
		bus:      bus,
		markets:  markets,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify")),
	}
}

// Run consumes bus events until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	resolutions, err := r.bus.Subscribe(ctx, service.ChannelResolution)
	if err != nil {
		return fmt.Errorf("notify: subscribe resolutions: %w", err)
	}
	spikes, err := r.bus.Subscribe(ctx, service.ChannelSpike)
	if err != nil {
		return fmt.Errorf("notify: subscribe spikes: %w", err)
	}

	r.logger.InfoContext(ctx, "relay started")
	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "relay stopped")
			return ctx.Err()
		case payload, ok := <-resolutions:
			if !ok {
				return ctx.Err()
			}
			r.handleResolution(ctx, payload)
		case payload, ok := <-spikes:
			if !ok {
				return ctx.Err()
			}
			r.handleSpike(ctx, payload)
		}
	}
}

func (r *Relay) handleResolution(ctx context.Context, payload []byte) {
	var ev service.ResolutionEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		r.logger.WarnContext(ctx, "bad resolution payload", slog.Any("error", err))
		return
	}

	question, winner := r.describe(ctx, ev.MarketID, ev.WinningOutcomeID)
	message := fmt.Sprintf(
		"%s\nWinner: %s\nActive stake: %d | settled: %d | skipped: %d",
		question, winner, ev.TotalActiveStake, ev.UsersSettled, ev.UsersSkipped,
	)
	if err := r.notifier.Notify(ctx, EventMarketResolved, "Market resolved", message); err != nil {
		r.logger.WarnContext(ctx, "resolution alert failed", slog.Any("error", err))
	}
}

func (r *Relay) handleSpike(ctx context.Context, payload []byte) {
	var ev service.SpikeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		r.logger.WarnContext(ctx, "bad spike payload", slog.Any("error", err))
		return
	}

	question, _ := r.describe(ctx, ev.MarketID, "")
	message := fmt.Sprintf("%s\nHerd side: %s, until %s",
		question, ev.Side, ev.EndsAt.Format("15:04:05"))
	if err := r.notifier.Notify(ctx, EventViralSpike, "Viral spike", message); err != nil {
		r.logger.WarnContext(ctx, "spike alert failed", slog.Any("error", err))
	}
}

// describe resolves the market question and outcome label, falling back to
// raw IDs when the lookup fails.
func (r *Relay) describe(ctx context.Context, marketID, outcomeID string) (question, label string) {
	question, label = marketID, outcomeID
	market, err := r.markets.GetByID(ctx, marketID)
	if err != nil {
		return question, label
	}
	question = market.Question
	if outcomeID != "" {
		if o, ok := market.OutcomeByID(outcomeID); ok {
			label = o.Label
		}
	}
	return question, label
}
