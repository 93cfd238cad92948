package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlaygames/parlay/internal/domain"
)

type fakeUsers struct {
	users map[string]domain.User
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (domain.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return domain.User{}, domain.ErrNotFound
}

type fakeTxns struct {
	txns []domain.Transaction
}

func (f *fakeTxns) ListByUser(context.Context, string, domain.ListOpts) ([]domain.Transaction, error) {
	return f.txns, nil
}

func TestGetUser(t *testing.T) {
	users := &fakeUsers{users: map[string]domain.User{
		"u1": {ID: "u1", Username: "casey", Balance: 900, Rating: 1016, TotalWins: 3},
	}}
	h := NewUserHandler(users, &fakeTxns{}, discard())

	req := httptest.NewRequest(http.MethodGet, "/api/users/u1", nil)
	req.SetPathValue("id", "u1")
	rec := httptest.NewRecorder()

	h.GetUser(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp userResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "casey", resp.Username)
	assert.Equal(t, 1016, resp.Rating)
}

func TestGetUserNotFound(t *testing.T) {
	h := NewUserHandler(&fakeUsers{users: map[string]domain.User{}}, &fakeTxns{}, discard())

	req := httptest.NewRequest(http.MethodGet, "/api/users/nope", nil)
	req.SetPathValue("id", "nope")
	rec := httptest.NewRecorder()

	h.GetUser(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTransactions(t *testing.T) {
	marketID := "m1"
	users := &fakeUsers{users: map[string]domain.User{"u1": {ID: "u1"}}}
	txns := &fakeTxns{txns: []domain.Transaction{
		{ID: 2, UserID: "u1", MarketID: &marketID, Type: domain.TxnPayout, Amount: 400, CreatedAt: time.Now()},
		{ID: 1, UserID: "u1", MarketID: &marketID, Type: domain.TxnStake, Amount: -200, CreatedAt: time.Now()},
	}}
	h := NewUserHandler(users, txns, discard())

	req := httptest.NewRequest(http.MethodGet, "/api/users/u1/transactions", nil)
	req.SetPathValue("id", "u1")
	rec := httptest.NewRecorder()

	h.GetTransactions(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		UserID       string                `json:"user_id"`
		Transactions []transactionResponse `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Transactions, 2)
	assert.Equal(t, "payout", resp.Transactions[0].Type)
	assert.Equal(t, int64(-200), resp.Transactions[1].Amount)
}

func TestGetTransactionsUnknownUser(t *testing.T) {
	h := NewUserHandler(&fakeUsers{users: map[string]domain.User{}}, &fakeTxns{}, discard())

	req := httptest.NewRequest(http.MethodGet, "/api/users/nope/transactions", nil)
	req.SetPathValue("id", "nope")
	rec := httptest.NewRecorder()

	h.GetTransactions(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
