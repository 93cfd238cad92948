package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/parlaygames/parlay/internal/domain"
	"github.com/parlaygames/parlay/internal/service"
)

// TradeService is the slice of the ledger service the handler needs.
type TradeService interface {
	OpenPosition(ctx context.Context, p service.TradeParams) (domain.Position, error)
	CashOut(ctx context.Context, userID, positionID string) (domain.Position, int64, error)
	Valuation(ctx context.Context, positionID string) (value float64, pnl float64, err error)
	ListUserPositions(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Position, error)
}

// TradeHandler serves trading endpoints.
type TradeHandler struct {
	trades TradeService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(trades TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{trades: trades, logger: logger}
}

type openPositionRequest struct {
	UserID    string `json:"user_id"`
	MarketID  string `json:"market_id"`
	OutcomeID string `json:"outcome_id"`
	Amount    int64  `json:"amount"`
}

// OpenPosition opens a position: the stake moves the market price and the
// entry locks in the share count.
// POST /api/trades
func (h *TradeHandler) OpenPosition(w http.ResponseWriter, r *http.Request) {
	var req openPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" || req.MarketID == "" || req.OutcomeID == "" {
		writeError(w, http.StatusBadRequest, "user_id, market_id, and outcome_id are required")
		return
	}

	position, err := h.trades.OpenPosition(r.Context(), service.TradeParams{
		UserID:    req.UserID,
		MarketID:  req.MarketID,
		OutcomeID: req.OutcomeID,
		Amount:    req.Amount,
	})
	if err != nil {
		h.writeTradeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPositionResponse(position))
}

// CashOut exits an open position early at its current market value.
// POST /api/positions/{id}/cashout
func (h *TradeHandler) CashOut(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing position id")
		return
	}

	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	position, payout, err := h.trades.CashOut(r.Context(), req.UserID, id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "position not found")
		case errors.Is(err, domain.ErrUnauthorized):
			writeError(w, http.StatusForbidden, "position belongs to another user")
		case errors.Is(err, domain.ErrPositionClosed):
			writeError(w, http.StatusConflict, "position already closed")
		case errors.Is(err, domain.ErrMarketResolved):
			writeError(w, http.StatusConflict, "market already resolved")
		case errors.Is(err, domain.ErrLockHeld):
			writeError(w, http.StatusServiceUnavailable, "market busy, retry")
		default:
			h.logger.ErrorContext(r.Context(), "cash out failed",
				slog.String("position_id", id),
				slog.Any("error", err),
			)
			writeError(w, http.StatusInternalServerError, "failed to cash out")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"position": toPositionResponse(position),
		"payout":   payout,
	})
}

// ListPositions returns a user's positions, each with live value and PnL.
// GET /api/positions?user=<id>&limit=50
func (h *TradeHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user query parameter required")
		return
	}

	positions, err := h.trades.ListUserPositions(r.Context(), userID, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list positions failed",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	type valuedPosition struct {
		positionResponse
		Value *float64 `json:"value,omitempty"`
		PnL   *float64 `json:"pnl,omitempty"`
	}

	out := make([]valuedPosition, 0, len(positions))
	for _, p := range positions {
		vp := valuedPosition{positionResponse: toPositionResponse(p)}
		if p.IsOpen() {
			// valuation is best effort; an unpriceable position still lists
			if value, pnl, err := h.trades.Valuation(r.Context(), p.ID); err == nil {
				vp.Value = &value
				vp.PnL = &pnl
			}
		}
		out = append(out, vp)
	}

	writeJSON(w, http.StatusOK, map[string]any{"positions": out})
}

func (h *TradeHandler) writeTradeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "trade amount out of bounds")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "market, outcome, or user not found")
	case errors.Is(err, domain.ErrInvalidOutcome):
		writeError(w, http.StatusBadRequest, "outcome does not belong to market")
	case errors.Is(err, domain.ErrOutcomeMismatch):
		writeError(w, http.StatusConflict, "already holding the other side of this market")
	case errors.Is(err, domain.ErrInsufficientBalance):
		writeError(w, http.StatusUnprocessableEntity, "insufficient balance")
	case errors.Is(err, domain.ErrMarketClosed):
		writeError(w, http.StatusConflict, "market is closed for trading")
	case errors.Is(err, domain.ErrMarketResolved):
		writeError(w, http.StatusConflict, "market already resolved")
	case errors.Is(err, domain.ErrRateLimited):
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "trade rate limit exceeded")
	case errors.Is(err, domain.ErrLockHeld):
		writeError(w, http.StatusServiceUnavailable, "market busy, retry")
	default:
		h.logger.ErrorContext(r.Context(), "open position failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to open position")
	}
}
