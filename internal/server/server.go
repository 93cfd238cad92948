// Package server hosts the HTTP API: market and trading endpoints, the
// admin resolution endpoint, health checks, and the websocket stream.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/parlaygames/parlay/internal/domain"
	"github.com/parlaygames/parlay/internal/server/handler"
	"github.com/parlaygames/parlay/internal/server/middleware"
	"github.com/parlaygames/parlay/internal/server/ws"
)

// Config holds the HTTP server settings.
type Config struct {
	Port        int
	CORSOrigins []string
	AdminAPIKey string
	RateLimit   int
	RateWindow  time.Duration
}

// Handlers bundles everything the router mounts. Hub and Sim may be nil when
// the process runs without the websocket bridge or the simulator.
type Handlers struct {
	Market     *handler.MarketHandler
	Trade      *handler.TradeHandler
	Settlement *handler.SettlementHandler
	User       *handler.UserHandler
	Activity   *handler.ActivityHandler
	Health     *handler.HealthHandler
	Sim        *handler.SimHandler
	Hub        *ws.Hub
}

// Server is the HTTP front end.
type Server struct {
	cfg    Config
	http   *http.Server
	logger *slog.Logger
}

// New builds the router and middleware chain. Admin authentication wraps only
// the resolution endpoint; everything else is public.
func New(cfg Config, h Handlers, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	log := logger.With(slog.String("component", "server"))

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/markets", h.Market.CreateMarket)
	mux.HandleFunc("GET /api/markets", h.Market.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", h.Market.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/snapshots", h.Market.GetSnapshots)

	mux.HandleFunc("POST /api/trades", h.Trade.OpenPosition)
	mux.HandleFunc("POST /api/positions/{id}/cashout", h.Trade.CashOut)
	mux.HandleFunc("GET /api/positions", h.Trade.ListPositions)

	auth := middleware.Auth(cfg.AdminAPIKey)
	mux.Handle("POST /api/markets/{id}/resolve",
		auth(http.HandlerFunc(h.Settlement.ResolveMarket)))

	mux.HandleFunc("GET /api/users/{id}", h.User.GetUser)
	mux.HandleFunc("GET /api/users/{id}/transactions", h.User.GetTransactions)
	mux.HandleFunc("GET /api/activity", h.Activity.GetActivity)
	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)

	if h.Sim != nil {
		mux.HandleFunc("GET /api/sim/health", h.Sim.GetSimHealth)
	}
	if h.Hub != nil {
		mux.HandleFunc("GET /ws", h.Hub.ServeWS)
	}

	chain := middleware.CORS(cfg.CORSOrigins)(
		middleware.Logging(log)(
			middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, log)(mux)))

	return &Server{
		cfg: cfg,
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           chain,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: log,
	}
}

// Start serves until ctx is done, then drains connections.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", slog.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen: %w", err)
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown drains in-flight requests with a grace period.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	s.logger.Info("shutting down")
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
