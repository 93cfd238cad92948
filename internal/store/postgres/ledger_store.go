package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parlaygames/parlay/internal/domain"
)

// LedgerStore implements domain.Ledger using PostgreSQL. Every method runs a
// single transaction so the balance change, the position change, and the
// audit row commit together.
type LedgerStore struct {
	pool *pgxpool.Pool
}

var _ domain.Ledger = (*LedgerStore)(nil)

// NewLedgerStore creates a new LedgerStore backed by the given pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// debit subtracts amount from the user's balance, guarded so the balance can
// never go negative. Distinguishes a missing user from an underfunded one.
func debit(ctx context.Context, tx pgx.Tx, userID string, amount int64) error {
	tag, err := tx.Exec(ctx,
		`UPDATE users SET balance = balance - $2, updated_at = NOW()
		 WHERE id = $1 AND balance >= $2`,
		userID, amount,
	)
	if err != nil {
		return fmt.Errorf("postgres: debit user %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: check user %s: %w", userID, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrInsufficientBalance
	}
	return nil
}

// credit adds amount to the user's balance.
func credit(ctx context.Context, tx pgx.Tx, userID string, amount int64) error {
	tag, err := tx.Exec(ctx,
		`UPDATE users SET balance = balance + $2, updated_at = NOW() WHERE id = $1`,
		userID, amount,
	)
	if err != nil {
		return fmt.Errorf("postgres: credit user %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// recordTxn appends one row to the currency audit trail.
func recordTxn(ctx context.Context, tx pgx.Tx, t domain.Transaction) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO transactions (user_id, market_id, position_id, type, amount, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		t.UserID, t.MarketID, t.PositionID, string(t.Type), t.Amount, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record transaction: %w", err)
	}
	return nil
}

// CreateMarket persists the market with its outcomes, debits the creator's
// deposit, and writes the audit row, all in one transaction.
func (s *LedgerStore) CreateMarket(ctx context.Context, m domain.Market) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin create market: %w", err)
	}
	defer tx.Rollback(ctx)

	if m.CreationDeposit > 0 {
		if err := debit(ctx, tx, m.CreatorID, m.CreationDeposit); err != nil {
			return err
		}
	}

	if err := insertMarket(ctx, tx, m); err != nil {
		return err
	}

	if m.CreationDeposit > 0 {
		err := recordTxn(ctx, tx, domain.Transaction{
			UserID:    m.CreatorID,
			MarketID:  &m.ID,
			Type:      domain.TxnCreationDeposit,
			Amount:    -m.CreationDeposit,
			CreatedAt: m.CreatedAt,
		})
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit create market: %w", err)
	}
	return nil
}

// OpenPosition debits the stake, moves the market probability, bumps volume
// and (for a first position) the participant count, appends the probability
// snapshots, and persists the position.
func (s *LedgerStore) OpenPosition(ctx context.Context, p domain.OpenPositionParams) (domain.Position, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: begin open position: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the market row and re-validate its state inside the transaction.
	var resolvedOutcomeID *string
	var closesAt time.Time
	err = tx.QueryRow(ctx,
		`SELECT resolved_outcome_id, closes_at FROM markets WHERE id = $1 FOR UPDATE`,
		p.MarketID,
	).Scan(&resolvedOutcomeID, &closesAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: lock market %s: %w", p.MarketID, err)
	}
	if resolvedOutcomeID != nil {
		return domain.Position{}, domain.ErrMarketResolved
	}
	if !p.OpenedAt.Before(closesAt) {
		return domain.Position{}, domain.ErrMarketClosed
	}

	if err := debit(ctx, tx, p.UserID, p.Amount); err != nil {
		return domain.Position{}, err
	}

	var hasPrior bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM positions WHERE market_id = $1 AND user_id = $2)`,
		p.MarketID, p.UserID,
	).Scan(&hasPrior)
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: check prior positions: %w", err)
	}
	participantDelta := 0
	if !hasPrior {
		participantDelta = 1
	}

	pos := domain.Position{
		ID:               p.PositionID,
		UserID:           p.UserID,
		MarketID:         p.MarketID,
		OutcomeID:        p.OutcomeID,
		Amount:           p.Amount,
		EntryProbability: p.EntryProbability,
		Shares:           p.Shares,
		OpenedAt:         p.OpenedAt,
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO positions (id, user_id, market_id, outcome_id, amount,
			entry_probability, shares, opened_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		pos.ID, pos.UserID, pos.MarketID, pos.OutcomeID, pos.Amount,
		pos.EntryProbability, pos.Shares, pos.OpenedAt,
	)
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: insert position %s: %w", pos.ID, err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE markets SET
			current_probability = $2,
			total_volume = total_volume + $3,
			participant_count = participant_count + $4,
			updated_at = NOW()
		 WHERE id = $1`,
		p.MarketID, p.NewProbability, p.Amount, participantDelta,
	)
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: update market %s: %w", p.MarketID, err)
	}

	for _, sn := range p.Snapshots {
		_, err = tx.Exec(ctx,
			`INSERT INTO probability_snapshots (market_id, outcome_id, probability, created_at)
			 VALUES ($1, $2, $3, $4)`,
			sn.MarketID, sn.OutcomeID, sn.Probability, sn.CreatedAt,
		)
		if err != nil {
			return domain.Position{}, fmt.Errorf("postgres: insert snapshot: %w", err)
		}
	}

	err = recordTxn(ctx, tx, domain.Transaction{
		UserID:     p.UserID,
		MarketID:   &p.MarketID,
		PositionID: &p.PositionID,
		Type:       domain.TxnStake,
		Amount:     -p.Amount,
		CreatedAt:  p.OpenedAt,
	})
	if err != nil {
		return domain.Position{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Position{}, fmt.Errorf("postgres: commit open position: %w", err)
	}
	return pos, nil
}

// ClosePosition cashes out an open position, crediting payout to the holder.
func (s *LedgerStore) ClosePosition(ctx context.Context, positionID string, exitProbability float64, payout int64, closedAt time.Time) (domain.Position, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: begin close position: %w", err)
	}
	defer tx.Rollback(ctx)

	pos, err := scanPosition(tx.QueryRow(ctx,
		`SELECT `+positionCols+` FROM positions WHERE id = $1 FOR UPDATE`,
		positionID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: lock position %s: %w", positionID, err)
	}
	if !pos.IsOpen() {
		return domain.Position{}, domain.ErrPositionClosed
	}

	var resolvedOutcomeID *string
	err = tx.QueryRow(ctx,
		`SELECT resolved_outcome_id FROM markets WHERE id = $1 FOR UPDATE`,
		pos.MarketID,
	).Scan(&resolvedOutcomeID)
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: lock market %s: %w", pos.MarketID, err)
	}
	if resolvedOutcomeID != nil {
		return domain.Position{}, domain.ErrMarketResolved
	}

	_, err = tx.Exec(ctx,
		`UPDATE positions SET closed_at = $2, exit_probability = $3 WHERE id = $1`,
		positionID, closedAt, exitProbability,
	)
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: close position %s: %w", positionID, err)
	}

	if payout > 0 {
		if err := credit(ctx, tx, pos.UserID, payout); err != nil {
			return domain.Position{}, err
		}
	}

	err = recordTxn(ctx, tx, domain.Transaction{
		UserID:     pos.UserID,
		MarketID:   &pos.MarketID,
		PositionID: &positionID,
		Type:       domain.TxnCashOut,
		Amount:     payout,
		CreatedAt:  closedAt,
	})
	if err != nil {
		return domain.Position{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Position{}, fmt.Errorf("postgres: commit close position: %w", err)
	}

	pos.ClosedAt = &closedAt
	pos.ExitProbability = &exitProbability
	return pos, nil
}

// BeginResolution flips resolved_outcome_id from null to the winning
// outcome. The null check and the flip are one statement, so a concurrent
// second attempt returns ErrMarketResolved and mutates nothing.
func (s *LedgerStore) BeginResolution(ctx context.Context, marketID, winningOutcomeID string, resolvedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET resolved_outcome_id = $2, resolved_at = $3, updated_at = NOW()
		 WHERE id = $1 AND resolved_outcome_id IS NULL`,
		marketID, winningOutcomeID, resolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: begin resolution %s: %w", marketID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM markets WHERE id = $1)`, marketID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: check market %s: %w", marketID, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrMarketResolved
	}
	return nil
}

// ApplyUserSettlement applies one user's share of a settlement plan: payout
// and near-miss credits, win/loss counters, streak, profit, and the new
// rating, and closes the user's open positions on the market.
func (s *LedgerStore) ApplyUserSettlement(ctx context.Context, us domain.UserSettlement) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin user settlement: %w", err)
	}
	defer tx.Rollback(ctx)

	creditTotal := us.Payout + us.NearMissCredit
	var tag pgconn.CommandTag
	if us.Won {
		tag, err = tx.Exec(ctx,
			`UPDATE users SET
				balance = balance + $2,
				win_streak = win_streak + 1,
				total_wins = total_wins + 1,
				total_profit = total_profit + $3,
				rating = $4,
				updated_at = NOW()
			 WHERE id = $1`,
			us.UserID, creditTotal, us.NetProfit, us.RatingAfter,
		)
	} else {
		tag, err = tx.Exec(ctx,
			`UPDATE users SET
				balance = balance + $2,
				win_streak = 0,
				total_losses = total_losses + 1,
				total_profit = total_profit + $3,
				rating = $4,
				updated_at = NOW()
			 WHERE id = $1`,
			us.UserID, creditTotal, us.NetProfit, us.RatingAfter,
		)
	}
	if err != nil {
		return fmt.Errorf("postgres: settle user %s: %w", us.UserID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	// Resolution retires every remaining open position the user holds here.
	_, err = tx.Exec(ctx,
		`UPDATE positions SET closed_at = NOW()
		 WHERE market_id = $1 AND user_id = $2 AND closed_at IS NULL`,
		us.MarketID, us.UserID,
	)
	if err != nil {
		return fmt.Errorf("postgres: close settled positions: %w", err)
	}

	now := time.Now().UTC()
	for _, pp := range us.Payouts {
		positionID := pp.PositionID
		err = recordTxn(ctx, tx, domain.Transaction{
			UserID:     us.UserID,
			MarketID:   &us.MarketID,
			PositionID: &positionID,
			Type:       domain.TxnPayout,
			Amount:     pp.Amount,
			CreatedAt:  now,
		})
		if err != nil {
			return err
		}
	}
	if us.NearMissCredit > 0 {
		err = recordTxn(ctx, tx, domain.Transaction{
			UserID:    us.UserID,
			MarketID:  &us.MarketID,
			Type:      domain.TxnNearMissCredit,
			Amount:    us.NearMissCredit,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit user settlement: %w", err)
	}
	return nil
}

// ApplyCreatorSettlement credits the creator's deposit refund and
// engagement reward.
func (s *LedgerStore) ApplyCreatorSettlement(ctx context.Context, cs domain.CreatorSettlement) error {
	total := cs.Refund + cs.Reward
	if total <= 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin creator settlement: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := credit(ctx, tx, cs.CreatorID, total); err != nil {
		return err
	}

	now := time.Now().UTC()
	if cs.Refund > 0 {
		err = recordTxn(ctx, tx, domain.Transaction{
			UserID:    cs.CreatorID,
			MarketID:  &cs.MarketID,
			Type:      domain.TxnCreatorRefund,
			Amount:    cs.Refund,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
	}
	if cs.Reward > 0 {
		err = recordTxn(ctx, tx, domain.Transaction{
			UserID:    cs.CreatorID,
			MarketID:  &cs.MarketID,
			Type:      domain.TxnCreatorReward,
			Amount:    cs.Reward,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit creator settlement: %w", err)
	}
	return nil
}
