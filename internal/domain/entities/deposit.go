package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DepositMethod distinguishes how an inbound transfer is attributed to a user
type DepositMethod string

const (
	// DepositMethodWalletConnect matches transfers to the shared hot wallet
	// by sender address, declared up front by the client
	DepositMethodWalletConnect DepositMethod = "wallet_connect"
	// DepositMethodDepositAddress matches transfers by the per-user
	// HD-derived destination address
	DepositMethodDepositAddress DepositMethod = "deposit_address"
)

// DepositStatus represents the status of a deposit
type DepositStatus string

const (
	DepositStatusPending   DepositStatus = "pending"
	DepositStatusConfirmed DepositStatus = "confirmed"
	DepositStatusCredited  DepositStatus = "credited"
	DepositStatusFailed    DepositStatus = "failed"
)

// ValidDepositTransitions defines allowed status transitions
var ValidDepositTransitions = map[DepositStatus][]DepositStatus{
	DepositStatusPending:   {DepositStatusConfirmed, DepositStatusFailed},
	DepositStatusConfirmed: {DepositStatusCredited, DepositStatusFailed},
	DepositStatusCredited:  {}, // Terminal state
	DepositStatusFailed:    {}, // Terminal state
}

// CanTransitionTo checks if transition to new status is allowed
func (s DepositStatus) CanTransitionTo(newStatus DepositStatus) bool {
	allowed, exists := ValidDepositTransitions[s]
	if !exists {
		return false
	}
	for _, status := range allowed {
		if status == newStatus {
			return true
		}
	}
	return false
}

// IsTerminal returns true if this is a terminal state
func (s DepositStatus) IsTerminal() bool {
	return s == DepositStatusCredited || s == DepositStatusFailed
}

// ValidateTransition returns an error if the transition is invalid
func (s DepositStatus) ValidateTransition(newStatus DepositStatus) error {
	if !s.CanTransitionTo(newStatus) {
		return fmt.Errorf("invalid deposit status transition from %s to %s", s, newStatus)
	}
	return nil
}

// Deposit represents one inbound value transfer.
//
// A deposit is either awaiting its on-chain signature (wallet-connect intent
// rows carry only the correlation memo, TxSignature nil) or observed on chain
// (TxSignature set). The uniqueness constraint applies only to observed
// signatures; it is the exactly-once anchor for the whole deposit path.
type Deposit struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	UserID      uuid.UUID       `json:"user_id" db:"user_id"`
	Method      DepositMethod   `json:"method" db:"method"`
	Chain       Chain           `json:"chain" db:"chain"`
	Currency    Currency        `json:"currency" db:"currency"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Memo        *string         `json:"memo,omitempty" db:"memo"`
	TxSignature *string         `json:"tx_signature,omitempty" db:"tx_signature"`
	Slot        *int64          `json:"slot,omitempty" db:"slot"`
	Status      DepositStatus   `json:"status" db:"status"`
	AmountUSD   *decimal.Decimal `json:"amount_usd,omitempty" db:"amount_usd"`
	RateToUSD   *decimal.Decimal `json:"rate_to_usd,omitempty" db:"rate_to_usd"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	ConfirmedAt *time.Time      `json:"confirmed_at,omitempty" db:"confirmed_at"`
	CreditedAt  *time.Time      `json:"credited_at,omitempty" db:"credited_at"`
}

// IsAwaitingSignature reports whether this is a wallet-connect intent row
// that has not yet been tied to a real on-chain signature
func (d *Deposit) IsAwaitingSignature() bool {
	return d.TxSignature == nil
}
