package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/parlaygames/parlay/internal/domain"
	"github.com/parlaygames/parlay/internal/service"
)

// MarketService is the slice of the market service the handler needs.
type MarketService interface {
	Create(ctx context.Context, p service.CreateMarketParams) (domain.Market, error)
	Get(ctx context.Context, id string) (domain.Market, error)
	GetBySlug(ctx context.Context, slug string) (domain.Market, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	ListOpen(ctx context.Context) ([]domain.Market, error)
	History(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.ProbabilitySnapshot, error)
}

// MarketHandler serves market endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, logger: logger}
}

type createMarketRequest struct {
	CreatorID          string    `json:"creator_id"`
	Question           string    `json:"question"`
	Slug               string    `json:"slug,omitempty"`
	OutcomeLabels      []string  `json:"outcome_labels,omitempty"`
	ClosesAt           time.Time `json:"closes_at"`
	Liquidity          float64   `json:"liquidity,omitempty"`
	InitialProbability float64   `json:"initial_probability,omitempty"`
}

// CreateMarket opens a new market; the creator pays the configured deposit.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.CreatorID == "" {
		writeError(w, http.StatusBadRequest, "creator_id is required")
		return
	}

	market, err := h.markets.Create(r.Context(), service.CreateMarketParams{
		CreatorID:          req.CreatorID,
		Question:           req.Question,
		Slug:               req.Slug,
		OutcomeLabels:      req.OutcomeLabels,
		ClosesAt:           req.ClosesAt,
		Liquidity:          req.Liquidity,
		InitialProbability: req.InitialProbability,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientBalance):
			writeError(w, http.StatusUnprocessableEntity, "creator cannot cover the creation deposit")
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "creator not found")
		case errors.Is(err, domain.ErrAlreadyExists):
			writeError(w, http.StatusConflict, "slug already taken")
		default:
			h.logger.ErrorContext(r.Context(), "create market failed", slog.Any("error", err))
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, toMarketResponse(market))
}

// ListMarkets returns markets, open-only when ?open=true.
// GET /api/markets?open=true&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	var (
		markets []domain.Market
		err     error
	)
	if r.URL.Query().Get("open") == "true" {
		markets, err = h.markets.ListOpen(r.Context())
	} else {
		markets, err = h.markets.List(r.Context(), parseListOpts(r))
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list markets failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"markets": toMarketResponses(markets),
	})
}

// GetMarket returns a single market by ID, falling back to slug lookup so
// pretty URLs work.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	market, err := h.markets.Get(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		market, err = h.markets.GetBySlug(r.Context(), id)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get market failed",
			slog.String("market_id", id),
			slog.Any("error", err),
		)
		writeError(w, http.StatusInternalServerError, "failed to get market")
		return
	}

	writeJSON(w, http.StatusOK, toMarketResponse(market))
}

// GetSnapshots returns the market's probability history for charting.
// GET /api/markets/{id}/snapshots?limit=200
func (h *MarketHandler) GetSnapshots(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	snaps, err := h.markets.History(r.Context(), id, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "snapshot history failed",
			slog.String("market_id", id),
			slog.Any("error", err),
		)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"snapshots": toSnapshotResponses(snaps),
	})
}
