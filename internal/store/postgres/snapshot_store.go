package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parlaygames/parlay/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using PostgreSQL. Snapshot
// rows are written by the Ledger alongside the trade that moved the price.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

var _ domain.SnapshotStore = (*SnapshotStore)(nil)

// NewSnapshotStore creates a new SnapshotStore backed by the given pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

const snapshotCols = `id, market_id, outcome_id, probability, created_at`

func (s *SnapshotStore) list(ctx context.Context, query string, args ...any) ([]domain.ProbabilitySnapshot, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.ProbabilitySnapshot
	for rows.Next() {
		var sn domain.ProbabilitySnapshot
		if err := rows.Scan(&sn.ID, &sn.MarketID, &sn.OutcomeID, &sn.Probability, &sn.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot: %w", err)
		}
		snaps = append(snaps, sn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list snapshots rows: %w", err)
	}
	return snaps, nil
}

// ListByMarket returns a market's price history in chronological order.
func (s *SnapshotStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.ProbabilitySnapshot, error) {
	query := `SELECT ` + snapshotCols + ` FROM probability_snapshots WHERE market_id = $1`
	args := []any{marketID}

	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	query += " ORDER BY created_at"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	return s.list(ctx, query, args...)
}

// ListBefore returns snapshots older than the cutoff, oldest first. The
// archiver exports these before deletion.
func (s *SnapshotStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ProbabilitySnapshot, error) {
	return s.list(ctx,
		`SELECT `+snapshotCols+` FROM probability_snapshots
		 WHERE created_at < $1 ORDER BY created_at`,
		before,
	)
}

// DeleteBefore removes snapshots older than the cutoff and returns the
// number of rows deleted.
func (s *SnapshotStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM probability_snapshots WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete snapshots before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}
