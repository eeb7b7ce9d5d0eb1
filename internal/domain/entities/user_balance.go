package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UserBalance is the ledger-side view of a user relevant to custody.
// FortuneBalance is only ever mutated inside a transaction that also writes
// a Transaction audit row.
type UserBalance struct {
	UserID               uuid.UUID       `json:"user_id" db:"id"`
	FortuneBalance       decimal.Decimal `json:"fortune_balance" db:"fortune_balance"`
	TotalFreshDeposits   decimal.Decimal `json:"total_fresh_deposits" db:"total_fresh_deposits"`
	TotalProfitCollected decimal.Decimal `json:"total_profit_collected" db:"total_profit_collected"`
	ReferralBalance      decimal.Decimal `json:"referral_balance" db:"referral_balance"`
	ReferrerID           *uuid.UUID      `json:"referrer_id,omitempty" db:"referrer_id"`
}

// FundSourceBreakdown splits a withdrawal amount into tax-free principal and
// taxable profit. Computed by the fund-source collaborator, consumed here.
type FundSourceBreakdown struct {
	FromFreshDeposit decimal.Decimal
	FromProfit       decimal.Decimal
}

// TransactionType classifies audit rows
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
)

// TransactionStatus is the audit row status
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// Transaction is the immutable audit row paired with every balance mutation
type Transaction struct {
	ID          uuid.UUID         `json:"id" db:"id"`
	UserID      uuid.UUID         `json:"user_id" db:"user_id"`
	Type        TransactionType   `json:"type" db:"type"`
	AmountUSD   decimal.Decimal   `json:"amount_usd" db:"amount_usd"`
	Status      TransactionStatus `json:"status" db:"status"`
	ReferenceID uuid.UUID         `json:"reference_id" db:"reference_id"`
	Description string            `json:"description" db:"description"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
}

// ReferralBonus records one level of deposit fan-out to a referrer chain
type ReferralBonus struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	UserID    uuid.UUID       `json:"user_id" db:"user_id"`
	RefereeID uuid.UUID       `json:"referee_id" db:"referee_id"`
	DepositID uuid.UUID       `json:"deposit_id" db:"deposit_id"`
	Level     int             `json:"level" db:"level"`
	AmountUSD decimal.Decimal `json:"amount_usd" db:"amount_usd"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}
