package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlaygames/parlay/internal/sim"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestHealthAllOK(t *testing.T) {
	h := NewHealthHandler(map[string]Pinger{
		"postgres": fakePinger{},
		"redis":    fakePinger{},
	}, discard())

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Status string            `json:"status"`
		Deps   map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Deps["postgres"])
}

func TestHealthDegraded(t *testing.T) {
	h := NewHealthHandler(map[string]Pinger{
		"postgres": fakePinger{},
		"redis":    fakePinger{err: errors.New("connection refused")},
	}, discard())

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp struct {
		Status string            `json:"status"`
		Deps   map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "down", resp.Deps["redis"])
}

type fakeSimHealth struct{ snap sim.Snapshot }

func (f fakeSimHealth) Snapshot() sim.Snapshot { return f.snap }

func TestSimHealth(t *testing.T) {
	h := NewSimHandler(fakeSimHealth{snap: sim.Snapshot{
		Status:          sim.StatusOK,
		Bots:            8,
		Ticks:           10,
		Trades:          42,
		AvgTradeLatency: 12 * time.Millisecond,
	}}, discard())

	rec := httptest.NewRecorder()
	h.GetSimHealth(rec, httptest.NewRequest(http.MethodGet, "/api/sim/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var snap sim.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, uint64(42), snap.Trades)
}

func TestSimHealthDegradedStatusCode(t *testing.T) {
	h := NewSimHandler(fakeSimHealth{snap: sim.Snapshot{Status: sim.StatusDegraded}}, discard())

	rec := httptest.NewRecorder()
	h.GetSimHealth(rec, httptest.NewRequest(http.MethodGet, "/api/sim/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
