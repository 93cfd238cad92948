package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parlaygames/parlay/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL. It is
// read-only; position writes go through the Ledger.
type PositionStore struct {
	pool *pgxpool.Pool
}

var _ domain.PositionStore = (*PositionStore)(nil)

// NewPositionStore creates a new PositionStore backed by the given pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionCols = `id, user_id, market_id, outcome_id, amount,
	entry_probability, shares, opened_at, closed_at, exit_probability`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	err := row.Scan(
		&p.ID, &p.UserID, &p.MarketID, &p.OutcomeID, &p.Amount,
		&p.EntryProbability, &p.Shares, &p.OpenedAt, &p.ClosedAt, &p.ExitProbability,
	)
	return p, err
}

// GetByID retrieves a position by primary key.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	p, err := scanPosition(s.pool.QueryRow(ctx,
		`SELECT `+positionCols+` FROM positions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

func (s *PositionStore) list(ctx context.Context, query string, args ...any) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var ps []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		ps = append(ps, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list positions rows: %w", err)
	}
	return ps, nil
}

// ListOpenByMarket returns every open position on a market. Settlement
// consumes this snapshot when building its plan.
func (s *PositionStore) ListOpenByMarket(ctx context.Context, marketID string) ([]domain.Position, error) {
	return s.list(ctx,
		`SELECT `+positionCols+` FROM positions
		 WHERE market_id = $1 AND closed_at IS NULL
		 ORDER BY opened_at`,
		marketID,
	)
}

// ListByUser returns a user's positions, newest first.
func (s *PositionStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionCols + ` FROM positions
		 WHERE user_id = $1 ORDER BY opened_at DESC`
	args := []any{userID}
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return s.list(ctx, query, args...)
}

// ListByMarket returns every position on a market, open and closed.
func (s *PositionStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Position, error) {
	return s.list(ctx,
		`SELECT `+positionCols+` FROM positions WHERE market_id = $1 ORDER BY opened_at`,
		marketID,
	)
}
