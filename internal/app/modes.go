package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/parlaygames/parlay/internal/archive"
	"github.com/parlaygames/parlay/internal/notify"
	"github.com/parlaygames/parlay/internal/server"
	"github.com/parlaygames/parlay/internal/server/handler"
	"github.com/parlaygames/parlay/internal/server/ws"
	"github.com/parlaygames/parlay/internal/service"
	"github.com/parlaygames/parlay/internal/sim"
)

// services bundles the use-case layer built on top of Dependencies.
type services struct {
	markets    *service.MarketService
	ledger     *service.LedgerService
	settlement *service.SettlementService
}

func (a *App) buildServices(deps *Dependencies) *services {
	return &services{
		markets: service.NewMarketService(
			deps.MarketStore,
			deps.SnapshotStore,
			deps.ActivityStore,
			deps.Ledger,
			deps.MarketCache,
			deps.ProbCache,
			deps.SignalBus,
			service.MarketConfig{
				DefaultLiquidity:   a.cfg.Market.DefaultLiquidity,
				InitialProbability: a.cfg.Market.InitialProbability,
				CreationDeposit:    a.cfg.Market.CreationDeposit,
			},
			a.logger,
		),
		ledger: service.NewLedgerService(
			deps.MarketStore,
			deps.PositionStore,
			deps.Ledger,
			deps.MarketCache,
			deps.ProbCache,
			deps.LockManager,
			deps.RateLimiter,
			deps.ActivityStore,
			deps.SignalBus,
			service.TradeConfig{
				MinAmount:       a.cfg.Market.MinTradeAmount,
				MaxAmount:       a.cfg.Market.MaxTradeAmount,
				LockTTL:         a.cfg.Market.TradeLockTTL.Duration,
				TradesPerMinute: a.cfg.Market.TradesPerMinute,
			},
			a.logger,
		),
		settlement: service.NewSettlementService(
			deps.MarketStore,
			deps.PositionStore,
			deps.UserStore,
			deps.Ledger,
			deps.MarketCache,
			deps.ActivityStore,
			deps.SignalBus,
			deps.LockManager,
			service.SettlementConfig{
				NearMissThreshold:            a.cfg.Settlement.NearMissThreshold,
				NearMissCredit:               a.cfg.Settlement.NearMissCredit,
				KFactor:                      a.cfg.Settlement.KFactor,
				CreatorRefundMinParticipants: a.cfg.Settlement.CreatorRefundMinParticipants,
				CreatorRefundMinVolume:       a.cfg.Settlement.CreatorRefundMinVolume,
				CreatorRewardPerParticipant:  a.cfg.Settlement.CreatorRewardPerParticipant,
				CreatorRewardVolumeRate:      a.cfg.Settlement.CreatorRewardVolumeRate,
				CreatorRewardCap:             a.cfg.Settlement.CreatorRewardCap,
				LockTTL:                      a.cfg.Settlement.LockTTL.Duration,
			},
			a.logger,
		),
	}
}

func (a *App) buildScheduler(deps *Dependencies, svcs *services) (*sim.Scheduler, *sim.Telemetry) {
	telemetry := sim.NewTelemetry(
		a.cfg.Sim.LatencyWindow,
		time.Duration(a.cfg.Sim.SluggishMs)*time.Millisecond,
		time.Duration(a.cfg.Sim.DegradingMs)*time.Millisecond,
	)
	scheduler := sim.NewScheduler(
		svcs.ledger,
		deps.MarketStore,
		deps.UserStore,
		deps.ActivityStore,
		telemetry,
		deps.SignalBus,
		sim.Config{
			TickInterval:        a.cfg.Sim.TickInterval.Duration,
			LogInterval:         a.cfg.Sim.LogInterval.Duration,
			BalanceFloor:        a.cfg.Sim.BalanceFloor,
			MinActors:           a.cfg.Sim.MinActors,
			MaxActors:           a.cfg.Sim.MaxActors,
			SpikeMinDelay:       a.cfg.Sim.SpikeMinDelay.Duration,
			SpikeMaxDelay:       a.cfg.Sim.SpikeMaxDelay.Duration,
			SpikeDuration:       a.cfg.Sim.SpikeDuration.Duration,
			SpikeMinActors:      a.cfg.Sim.SpikeMinActors,
			SpikeMaxActors:      a.cfg.Sim.SpikeMaxActors,
			SpikeSideBias:       a.cfg.Sim.SpikeSideBias,
			SpikeSizeMultiplier: a.cfg.Sim.SpikeSizeMultiplier,
			SkipProbLow:         a.cfg.Sim.SkipProbLow,
			SkipProbMedium:      a.cfg.Sim.SkipProbMedium,
			SkipProbHigh:        a.cfg.Sim.SkipProbHigh,
			Stickiness:          a.cfg.Sim.Stickiness,
			AdoptSideProb:       a.cfg.Sim.AdoptSideProb,
			ActivityKeep:        a.cfg.Sim.ActivityKeep,
		},
		a.logger,
	)
	return scheduler, telemetry
}

// startServer mounts the HTTP API and websocket hub on the errgroup.
// telemetry may be nil when the process runs without the simulator.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services, telemetry *sim.Telemetry) {
	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		err := hub.Run(ctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	var simHealth handler.SimHealth
	if telemetry != nil {
		simHealth = telemetry
	}

	handlers := server.Handlers{
		Market:     handler.NewMarketHandler(svcs.markets, a.logger),
		Trade:      handler.NewTradeHandler(svcs.ledger, a.logger),
		Settlement: handler.NewSettlementHandler(svcs.settlement, a.logger),
		User:       handler.NewUserHandler(deps.UserStore, deps.TxnStore, a.logger),
		Activity:   handler.NewActivityHandler(svcs.markets, a.logger),
		Health: handler.NewHealthHandler(map[string]handler.Pinger{
			"postgres": deps.Postgres,
			"redis":    deps.Redis,
		}, a.logger),
		Sim: handler.NewSimHandler(simHealth, a.logger),
		Hub: hub,
	}

	srv := server.New(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		AdminAPIKey: a.cfg.Server.AdminAPIKey,
		RateLimit:   a.cfg.Server.RequestsPerMinute,
		RateWindow:  time.Minute,
	}, handlers, deps.RateLimiter, a.logger)

	g.Go(func() error { return srv.Start(ctx) })
}

// startRelay forwards resolution and spike events to the configured
// notification channels.
func (a *App) startRelay(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	relay := notify.NewRelay(deps.SignalBus, deps.MarketStore, deps.Notifier, a.logger)
	g.Go(func() error {
		err := relay.Run(ctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})
}

// startArchive schedules the cold-storage export job.
func (a *App) startArchive(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Archive.Enabled || deps.Archiver == nil {
		return
	}
	runner := archive.NewRunner(deps.Archiver, deps.SnapshotStore, a.cfg.Archive.RetentionDays, a.logger)
	cron := a.cfg.Archive.Cron
	g.Go(func() error {
		err := runner.RunCron(ctx, cron)
		if err == context.Canceled {
			return nil
		}
		return err
	})
}

// ServeMode runs the HTTP API without the bot simulation.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	svcs := a.buildServices(deps)

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps, svcs, nil)
	a.startRelay(ctx, g, deps)
	a.startArchive(ctx, g, deps)
	return g.Wait()
}

// SimMode runs the bot simulation without the HTTP API.
func (a *App) SimMode(ctx context.Context, deps *Dependencies) error {
	svcs := a.buildServices(deps)
	scheduler, _ := a.buildScheduler(deps, svcs)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := scheduler.Run(ctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})
	a.startRelay(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the HTTP API and the bot simulation in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	svcs := a.buildServices(deps)

	g, ctx := errgroup.WithContext(ctx)

	var telemetry *sim.Telemetry
	if a.cfg.Sim.Enabled {
		var scheduler *sim.Scheduler
		scheduler, telemetry = a.buildScheduler(deps, svcs)
		g.Go(func() error {
			err := scheduler.Run(ctx)
			if err == context.Canceled {
				return nil
			}
			return err
		})
	} else {
		a.logger.Info("simulation disabled", slog.String("mode", "full"))
	}

	a.startServer(ctx, g, deps, svcs, telemetry)
	a.startRelay(ctx, g, deps)
	a.startArchive(ctx, g, deps)
	return g.Wait()
}
