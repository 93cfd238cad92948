package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlaygames/parlay/internal/domain"
	"github.com/parlaygames/parlay/internal/service"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeMarketService struct {
	markets map[string]domain.Market
	created []service.CreateMarketParams
	err     error
}

func (f *fakeMarketService) Create(_ context.Context, p service.CreateMarketParams) (domain.Market, error) {
	if f.err != nil {
		return domain.Market{}, f.err
	}
	f.created = append(f.created, p)
	return testMarket("m1", 50), nil
}

func (f *fakeMarketService) Get(_ context.Context, id string) (domain.Market, error) {
	if m, ok := f.markets[id]; ok {
		return m, nil
	}
	return domain.Market{}, domain.ErrNotFound
}

func (f *fakeMarketService) GetBySlug(_ context.Context, slug string) (domain.Market, error) {
	for _, m := range f.markets {
		if m.Slug == slug {
			return m, nil
		}
	}
	return domain.Market{}, domain.ErrNotFound
}

func (f *fakeMarketService) List(context.Context, domain.ListOpts) ([]domain.Market, error) {
	out := make([]domain.Market, 0, len(f.markets))
	for _, m := range f.markets {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeMarketService) ListOpen(ctx context.Context) ([]domain.Market, error) {
	all, _ := f.List(ctx, domain.ListOpts{})
	open := all[:0]
	for _, m := range all {
		if !m.IsResolved() {
			open = append(open, m)
		}
	}
	return open, nil
}

func (f *fakeMarketService) History(context.Context, string, domain.ListOpts) ([]domain.ProbabilitySnapshot, error) {
	return []domain.ProbabilitySnapshot{{MarketID: "m1", Probability: 0.5, CreatedAt: time.Now()}}, nil
}

func testMarket(id string, prob float64) domain.Market {
	return domain.Market{
		ID:                 id,
		Question:           "Will it rain tomorrow?",
		Slug:               "will-it-rain",
		CreatorID:          "u1",
		CurrentProbability: prob,
		Liquidity:          5000,
		ClosesAt:           time.Now().Add(24 * time.Hour),
		CreatedAt:          time.Now(),
		Outcomes: []domain.Outcome{
			{ID: id + "-yes", MarketID: id, Label: "Yes", IsYes: true},
			{ID: id + "-no", MarketID: id, Label: "No"},
		},
	}
}

func TestCreateMarket(t *testing.T) {
	svc := &fakeMarketService{markets: map[string]domain.Market{}}
	h := NewMarketHandler(svc, discard())

	body := `{"creator_id":"u1","question":"Will it rain tomorrow?","closes_at":"2026-12-01T00:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/markets", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.CreateMarket(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, svc.created, 1)
	assert.Equal(t, "u1", svc.created[0].CreatorID)

	var resp marketResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "m1", resp.ID)
	assert.Len(t, resp.Outcomes, 2)
}

func TestCreateMarketValidation(t *testing.T) {
	h := NewMarketHandler(&fakeMarketService{}, discard())

	req := httptest.NewRequest(http.MethodPost, "/api/markets", strings.NewReader(`{"question":"?"}`))
	rec := httptest.NewRecorder()

	h.CreateMarket(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateMarketInsufficientDeposit(t *testing.T) {
	svc := &fakeMarketService{err: domain.ErrInsufficientBalance}
	h := NewMarketHandler(svc, discard())

	body := `{"creator_id":"u1","question":"?","closes_at":"2026-12-01T00:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/markets", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.CreateMarket(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGetMarketByID(t *testing.T) {
	svc := &fakeMarketService{markets: map[string]domain.Market{"m1": testMarket("m1", 62.5)}}
	h := NewMarketHandler(svc, discard())

	req := httptest.NewRequest(http.MethodGet, "/api/markets/m1", nil)
	req.SetPathValue("id", "m1")
	rec := httptest.NewRecorder()

	h.GetMarket(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp marketResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 62.5, resp.CurrentProbability, 1e-9)
}

func TestGetMarketSlugFallback(t *testing.T) {
	svc := &fakeMarketService{markets: map[string]domain.Market{"m1": testMarket("m1", 50)}}
	h := NewMarketHandler(svc, discard())

	req := httptest.NewRequest(http.MethodGet, "/api/markets/will-it-rain", nil)
	req.SetPathValue("id", "will-it-rain")
	rec := httptest.NewRecorder()

	h.GetMarket(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp marketResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "m1", resp.ID)
}

func TestGetMarketNotFound(t *testing.T) {
	h := NewMarketHandler(&fakeMarketService{markets: map[string]domain.Market{}}, discard())

	req := httptest.NewRequest(http.MethodGet, "/api/markets/nope", nil)
	req.SetPathValue("id", "nope")
	rec := httptest.NewRecorder()

	h.GetMarket(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListMarketsOpenFilter(t *testing.T) {
	resolved := testMarket("m2", 80)
	winner := "m2-yes"
	now := time.Now()
	resolved.ResolvedOutcomeID = &winner
	resolved.ResolvedAt = &now

	svc := &fakeMarketService{markets: map[string]domain.Market{
		"m1": testMarket("m1", 50),
		"m2": resolved,
	}}
	h := NewMarketHandler(svc, discard())

	req := httptest.NewRequest(http.MethodGet, "/api/markets?open=true", nil)
	rec := httptest.NewRecorder()

	h.ListMarkets(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Markets []marketResponse `json:"markets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Markets, 1)
	assert.Equal(t, "m1", resp.Markets[0].ID)
}

func TestGetSnapshots(t *testing.T) {
	svc := &fakeMarketService{markets: map[string]domain.Market{"m1": testMarket("m1", 50)}}
	h := NewMarketHandler(svc, discard())

	req := httptest.NewRequest(http.MethodGet, "/api/markets/m1/snapshots", nil)
	req.SetPathValue("id", "m1")
	rec := httptest.NewRecorder()

	h.GetSnapshots(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		MarketID  string             `json:"market_id"`
		Snapshots []snapshotResponse `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "m1", resp.MarketID)
	assert.Len(t, resp.Snapshots, 1)
}
