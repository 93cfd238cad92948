package handler

import (
	"log/slog"
	"net/http"

	"github.com/parlaygames/parlay/internal/sim"
)

// SimHealth provides the simulator's current telemetry snapshot.
type SimHealth interface {
	Snapshot() sim.Snapshot
}

// SimHandler exposes simulator telemetry.
type SimHandler struct {
	health SimHealth
	logger *slog.Logger
}

// NewSimHandler creates a SimHandler.
func NewSimHandler(health SimHealth, logger *slog.Logger) *SimHandler {
	return &SimHandler{health: health, logger: logger}
}

// GetSimHealth reports simulator status and counters. When the process runs
// without a simulator the endpoint reports it disabled.
// GET /api/sim/health
func (h *SimHandler) GetSimHealth(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "disabled"})
		return
	}

	snap := h.health.Snapshot()
	status := http.StatusOK
	if snap.Status == sim.StatusDegraded {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, snap)
}
