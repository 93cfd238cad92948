package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parlaygames/parlay/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

var _ domain.MarketStore = (*MarketStore)(nil)

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `id, question, slug, creator_id, current_probability,
	liquidity, total_volume, participant_count, creation_deposit,
	closes_at, resolved_outcome_id, resolved_at, created_at, updated_at`

// Create inserts a market and its outcomes without touching any balance.
// Market creation through the normal path goes via the Ledger, which debits
// the creator's deposit in the same transaction; this method exists for
// seeding and tests.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin create market: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertMarket(ctx, tx, m); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit create market: %w", err)
	}
	return nil
}

// insertMarket writes the market row and its outcome rows inside tx. Shared
// with the ledger's CreateMarket.
func insertMarket(ctx context.Context, tx pgx.Tx, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, question, slug, creator_id, current_probability,
			liquidity, total_volume, participant_count, creation_deposit,
			closes_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`

	_, err := tx.Exec(ctx, query,
		m.ID, m.Question, m.Slug, m.CreatorID, m.CurrentProbability,
		m.Liquidity, m.TotalVolume, m.ParticipantCount, m.CreationDeposit,
		m.ClosesAt, m.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: insert market %s: %w", m.ID, err)
	}

	for _, o := range m.Outcomes {
		_, err := tx.Exec(ctx,
			`INSERT INTO outcomes (id, market_id, label, is_yes, sort_index)
			 VALUES ($1, $2, $3, $4, $5)`,
			o.ID, m.ID, o.Label, o.IsYes, o.SortIndex,
		)
		if err != nil {
			return fmt.Errorf("postgres: insert outcome %s: %w", o.ID, err)
		}
	}
	return nil
}

// scanMarket scans a single market row into a domain.Market. Outcomes are
// loaded separately.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	err := row.Scan(
		&m.ID, &m.Question, &m.Slug, &m.CreatorID, &m.CurrentProbability,
		&m.Liquidity, &m.TotalVolume, &m.ParticipantCount, &m.CreationDeposit,
		&m.ClosesAt, &m.ResolvedOutcomeID, &m.ResolvedAt,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

// loadOutcomes attaches the outcome rows for every market in ms, preserving
// market order.
func (s *MarketStore) loadOutcomes(ctx context.Context, ms []domain.Market) error {
	if len(ms) == 0 {
		return nil
	}

	ids := make([]string, len(ms))
	byID := make(map[string]*domain.Market, len(ms))
	for i := range ms {
		ids[i] = ms[i].ID
		byID[ms[i].ID] = &ms[i]
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, market_id, label, is_yes, sort_index
		 FROM outcomes WHERE market_id = ANY($1) ORDER BY market_id, sort_index`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("postgres: load outcomes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var o domain.Outcome
		if err := rows.Scan(&o.ID, &o.MarketID, &o.Label, &o.IsYes, &o.SortIndex); err != nil {
			return fmt.Errorf("postgres: scan outcome: %w", err)
		}
		if m, ok := byID[o.MarketID]; ok {
			m.Outcomes = append(m.Outcomes, o)
		}
	}
	return rows.Err()
}

func (s *MarketStore) getOne(ctx context.Context, query string, arg any) (domain.Market, error) {
	m, err := scanMarket(s.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market: %w", err)
	}
	ms := []domain.Market{m}
	if err := s.loadOutcomes(ctx, ms); err != nil {
		return domain.Market{}, err
	}
	return ms[0], nil
}

// GetByID retrieves a market and its outcomes by primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	return s.getOne(ctx, `SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
}

// GetBySlug retrieves a market and its outcomes by URL slug.
func (s *MarketStore) GetBySlug(ctx context.Context, slug string) (domain.Market, error) {
	return s.getOne(ctx, `SELECT `+marketCols+` FROM markets WHERE slug = $1`, slug)
}

func (s *MarketStore) list(ctx context.Context, query string, args ...any) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var ms []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		ms = append(ms, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	if err := s.loadOutcomes(ctx, ms); err != nil {
		return nil, err
	}
	return ms, nil
}

// ListOpen returns every unresolved market whose trading window has not
// passed, newest first.
func (s *MarketStore) ListOpen(ctx context.Context, now time.Time) ([]domain.Market, error) {
	return s.list(ctx,
		`SELECT `+marketCols+` FROM markets
		 WHERE resolved_outcome_id IS NULL AND closes_at > $1
		 ORDER BY created_at DESC`,
		now,
	)
}

// ListResolvedBefore returns markets resolved before the given cutoff,
// oldest first. The archiver walks these.
func (s *MarketStore) ListResolvedBefore(ctx context.Context, before time.Time) ([]domain.Market, error) {
	return s.list(ctx,
		`SELECT `+marketCols+` FROM markets
		 WHERE resolved_at IS NOT NULL AND resolved_at < $1
		 ORDER BY resolved_at ASC`,
		before,
	)
}

// List returns markets with pagination and optional time filtering.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets`
	var conds []string
	args := []any{}

	if opts.Since != nil {
		args = append(args, *opts.Since)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}

	query += " ORDER BY created_at DESC"
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

// Count returns the total number of markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}
