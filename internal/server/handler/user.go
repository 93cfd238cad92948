package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/parlaygames/parlay/internal/domain"
)

// UserGetter is the slice of the user store the handler needs.
type UserGetter interface {
	GetByID(ctx context.Context, id string) (domain.User, error)
}

// TransactionLister reads a user's currency audit trail.
type TransactionLister interface {
	ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Transaction, error)
}

// UserHandler serves user profile endpoints.
type UserHandler struct {
	users  UserGetter
	txns   TransactionLister
	logger *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(users UserGetter, txns TransactionLister, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, txns: txns, logger: logger}
}

// GetUser returns a user's public profile.
// GET /api/users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("get user failed", slog.String("user_id", id), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// GetTransactions returns a user's currency movements, newest first.
// GET /api/users/{id}/transactions
func (h *UserHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}

	if _, err := h.users.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("get user failed", slog.String("user_id", id), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	txns, err := h.txns.ListByUser(r.Context(), id, parseListOpts(r))
	if err != nil {
		h.logger.Error("list transactions failed", slog.String("user_id", id), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":      id,
		"transactions": toTransactionResponses(txns),
	})
}
