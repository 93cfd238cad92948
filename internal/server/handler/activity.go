package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/parlaygames/parlay/internal/domain"
)

// ActivityFeed is the slice of the market service the feed handler needs.
type ActivityFeed interface {
	Feed(ctx context.Context, opts domain.ListOpts) ([]domain.ActivityEntry, error)
}

// ActivityHandler serves the global activity feed.
type ActivityHandler struct {
	feed   ActivityFeed
	logger *slog.Logger
}

// NewActivityHandler creates an ActivityHandler.
func NewActivityHandler(feed ActivityFeed, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{feed: feed, logger: logger}
}

// GetActivity returns recent activity entries, newest first.
// GET /api/activity
func (h *ActivityHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	entries, err := h.feed.Feed(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.Error("activity feed failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"activity": toActivityResponses(entries)})
}
