package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market metadata and outcomes.
type MarketStore interface {
	Create(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	GetBySlug(ctx context.Context, slug string) (Market, error)
	// ListOpen returns every unresolved market still inside its trading
	// window, outcomes included. The simulation loads these once per tick.
	ListOpen(ctx context.Context, now time.Time) ([]Market, error)
	ListResolvedBefore(ctx context.Context, before time.Time) ([]Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// UserStore persists user accounts.
type UserStore interface {
	Create(ctx context.Context, user User) error
	GetByID(ctx context.Context, id string) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
	// ListBots returns bot accounts whose balance is at or above the floor.
	ListBots(ctx context.Context, minBalance int64) ([]User, error)
	Count(ctx context.Context) (int64, error)
}

// PositionStore reads positions. All writes go through the Ledger so that
// balance, position, and audit rows move together.
type PositionStore interface {
	GetByID(ctx context.Context, id string) (Position, error)
	ListOpenByMarket(ctx context.Context, marketID string) ([]Position, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Position, error)
	ListByMarket(ctx context.Context, marketID string) ([]Position, error)
}

// SnapshotStore reads the append-only probability history.
type SnapshotStore interface {
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]ProbabilitySnapshot, error)
	ListBefore(ctx context.Context, before time.Time) ([]ProbabilitySnapshot, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ActivityStore persists the append-only activity feed.
type ActivityStore interface {
	Append(ctx context.Context, entry ActivityEntry) error
	List(ctx context.Context, opts ListOpts) ([]ActivityEntry, error)
	// PruneToNewest deletes everything but the newest keep entries in one
	// statement and returns the number of rows removed.
	PruneToNewest(ctx context.Context, keep int) (int64, error)
}

// TransactionStore reads the currency audit trail. Rows are written by the
// Ledger inside the same database transaction as the balance change.
type TransactionStore interface {
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Transaction, error)
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Transaction, error)
}

// OpenPositionParams carries a fully priced trade into the Ledger. Pricing
// happens in the service under the per-market lock; the Ledger re-validates
// balance and market state inside its transaction and applies everything or
// nothing.
type OpenPositionParams struct {
	PositionID       string
	UserID           string
	MarketID         string
	OutcomeID        string
	Amount           int64
	NewProbability   float64 // market yes-side probability after repricing
	EntryProbability float64 // probability of the chosen outcome at entry
	Shares           float64
	Snapshots        []ProbabilitySnapshot // one per outcome at the new prices
	OpenedAt         time.Time
}

// Ledger groups every currency-moving operation. Each method is a single
// database transaction: the balance change, the position change, and the
// audit row commit together or not at all.
type Ledger interface {
	// CreateMarket persists the market with its outcomes, debits the
	// creator's deposit, and writes the audit row. Fails with
	// ErrInsufficientBalance when the creator cannot cover the deposit.
	CreateMarket(ctx context.Context, market Market) error

	// OpenPosition debits the stake, moves the market probability, bumps
	// volume and (for a first position) the participant count, appends the
	// probability snapshots, and persists the position.
	OpenPosition(ctx context.Context, params OpenPositionParams) (Position, error)

	// ClosePosition cashes out an open position at the given probability of
	// its chosen outcome, crediting payout to the holder. Returns
	// ErrPositionClosed when the position is no longer open and
	// ErrMarketResolved when the market has already settled.
	ClosePosition(ctx context.Context, positionID string, exitProbability float64, payout int64, closedAt time.Time) (Position, error)

	// BeginResolution flips resolved_outcome_id from null to the winning
	// outcome. The null check and the flip happen in the same statement, so
	// a second attempt returns ErrMarketResolved and mutates nothing.
	BeginResolution(ctx context.Context, marketID, winningOutcomeID string, resolvedAt time.Time) error

	// ApplyUserSettlement applies one user's share of a settlement plan:
	// payout and near-miss credits, win/loss counters, streak, profit, and
	// the new rating. Returns ErrNotFound when the user row is missing.
	ApplyUserSettlement(ctx context.Context, s UserSettlement) error

	// ApplyCreatorSettlement credits the creator's refund and reward.
	ApplyCreatorSettlement(ctx context.Context, s CreatorSettlement) error
}
