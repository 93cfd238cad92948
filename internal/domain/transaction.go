package domain

import "time"

// TransactionType labels a currency movement.
type TransactionType string

const (
	TxnStake           TransactionType = "stake"
	TxnCashOut         TransactionType = "cash_out"
	TxnPayout          TransactionType = "payout"
	TxnNearMissCredit  TransactionType = "near_miss_credit"
	TxnCreationDeposit TransactionType = "creation_deposit"
	TxnCreatorRefund   TransactionType = "creator_refund"
	TxnCreatorReward   TransactionType = "creator_reward"
)

// Transaction is one row in the currency audit trail. Every balance change
// made by the core (stake, cash-out, settlement credits) writes exactly one
// of these inside the same database transaction as the balance change.
type Transaction struct {
	ID         int64
	UserID     string
	MarketID   *string
	PositionID *string
	Type       TransactionType
	Amount     int64 // positive = credit, negative = debit
	CreatedAt  time.Time
}
