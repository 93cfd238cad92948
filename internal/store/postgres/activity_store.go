package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parlaygames/parlay/internal/domain"
)

// ActivityStore implements domain.ActivityStore using PostgreSQL.
type ActivityStore struct {
	pool *pgxpool.Pool
}

var _ domain.ActivityStore = (*ActivityStore)(nil)

// NewActivityStore creates a new ActivityStore backed by the given pool.
func NewActivityStore(pool *pgxpool.Pool) *ActivityStore {
	return &ActivityStore{pool: pool}
}

// Append writes a single feed entry.
func (s *ActivityStore) Append(ctx context.Context, e domain.ActivityEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO activity (type, user_id, market_id, side, amount, price, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(e.Type), e.UserID, e.MarketID, e.Side, e.Amount, e.Price, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append activity: %w", err)
	}
	return nil
}

// List returns feed entries, newest first.
func (s *ActivityStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.ActivityEntry, error) {
	query := `SELECT id, type, user_id, market_id, side, amount, price, created_at
		 FROM activity ORDER BY created_at DESC, id DESC`
	args := []any{}
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list activity: %w", err)
	}
	defer rows.Close()

	var entries []domain.ActivityEntry
	for rows.Next() {
		var e domain.ActivityEntry
		var typ string
		if err := rows.Scan(&e.ID, &typ, &e.UserID, &e.MarketID, &e.Side, &e.Amount, &e.Price, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan activity: %w", err)
		}
		e.Type = domain.ActivityType(typ)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list activity rows: %w", err)
	}
	return entries, nil
}

// PruneToNewest deletes all but the newest keep entries in a single
// statement and returns the number of rows removed.
func (s *ActivityStore) PruneToNewest(ctx context.Context, keep int) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM activity WHERE id NOT IN (
			SELECT id FROM activity ORDER BY created_at DESC, id DESC LIMIT $1
		)`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: prune activity: %w", err)
	}
	return tag.RowsAffected(), nil
}
