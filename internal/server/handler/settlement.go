package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/parlaygames/parlay/internal/domain"
)

// Resolver is the slice of the settlement service the handler needs.
type Resolver interface {
	Resolve(ctx context.Context, marketID, winningOutcomeID string) (domain.SettlementPlan, error)
}

// SettlementHandler serves the admin resolution endpoint.
type SettlementHandler struct {
	resolver Resolver
	logger   *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler.
func NewSettlementHandler(resolver Resolver, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{resolver: resolver, logger: logger}
}

type resolveRequest struct {
	WinningOutcomeID string `json:"winning_outcome_id"`
}

// ResolveMarket settles a market on its winning outcome. The operation is
// one-shot: a second call for the same market fails with a conflict.
// POST /api/markets/{id}/resolve
func (h *SettlementHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	marketID := r.PathValue("id")
	if marketID == "" {
		writeError(w, http.StatusBadRequest, "market id is required")
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.WinningOutcomeID == "" {
		writeError(w, http.StatusBadRequest, "winning_outcome_id is required")
		return
	}

	plan, err := h.resolver.Resolve(r.Context(), marketID, req.WinningOutcomeID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "market not found")
		case errors.Is(err, domain.ErrMarketResolved):
			writeError(w, http.StatusConflict, "market already resolved")
		case errors.Is(err, domain.ErrInvalidOutcome):
			writeError(w, http.StatusBadRequest, "outcome does not belong to market")
		case errors.Is(err, domain.ErrLockHeld):
			writeError(w, http.StatusServiceUnavailable, "market busy, retry shortly")
		default:
			h.logger.Error("resolve failed",
				slog.String("market_id", marketID),
				slog.Any("error", err))
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, toSettlementResponse(plan))
}
