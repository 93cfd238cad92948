package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parlaygames/parlay/internal/domain"
)

// TransactionStore implements domain.TransactionStore using PostgreSQL.
// Rows are written by the Ledger; this store only reads them back.
type TransactionStore struct {
	pool *pgxpool.Pool
}

var _ domain.TransactionStore = (*TransactionStore)(nil)

// NewTransactionStore creates a new TransactionStore backed by the given pool.
func NewTransactionStore(pool *pgxpool.Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

const txnCols = `id, user_id, market_id, position_id, type, amount, created_at`

func (s *TransactionStore) list(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		var typ string
		if err := rows.Scan(&t.ID, &t.UserID, &t.MarketID, &t.PositionID, &typ, &t.Amount, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan transaction: %w", err)
		}
		t.Type = domain.TransactionType(typ)
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list transactions rows: %w", err)
	}
	return txns, nil
}

func withPage(query string, args []any, opts domain.ListOpts) (string, []any) {
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

// ListByUser returns a user's transactions, newest first.
func (s *TransactionStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Transaction, error) {
	query, args := withPage(
		`SELECT `+txnCols+` FROM transactions WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		[]any{userID}, opts)
	return s.list(ctx, query, args...)
}

// ListByMarket returns a market's transactions, newest first.
func (s *TransactionStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Transaction, error) {
	query, args := withPage(
		`SELECT `+txnCols+` FROM transactions WHERE market_id = $1 ORDER BY created_at DESC, id DESC`,
		[]any{marketID}, opts)
	return s.list(ctx, query, args...)
}
