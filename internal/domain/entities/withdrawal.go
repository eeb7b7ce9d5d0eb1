package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WithdrawalMethod distinguishes the two payout flows
type WithdrawalMethod string

const (
	// WithdrawalMethodWalletConnect escrows funds in an on-chain request the
	// user's own wallet signature claims
	WithdrawalMethodWalletConnect WithdrawalMethod = "wallet_connect"
	// WithdrawalMethodManualAddress pays out directly from the payout wallet
	// to an address the user typed in
	WithdrawalMethodManualAddress WithdrawalMethod = "manual_address"
)

// WithdrawalStatus represents the status of a withdrawal
type WithdrawalStatus string

const (
	WithdrawalStatusPending    WithdrawalStatus = "pending"
	WithdrawalStatusProcessing WithdrawalStatus = "processing"
	WithdrawalStatusCompleted  WithdrawalStatus = "completed"
	WithdrawalStatusFailed     WithdrawalStatus = "failed"
	WithdrawalStatusCancelled  WithdrawalStatus = "cancelled"
)

// ValidWithdrawalTransitions defines allowed status transitions
var ValidWithdrawalTransitions = map[WithdrawalStatus][]WithdrawalStatus{
	WithdrawalStatusPending:    {WithdrawalStatusProcessing, WithdrawalStatusCompleted, WithdrawalStatusFailed, WithdrawalStatusCancelled},
	WithdrawalStatusProcessing: {WithdrawalStatusCompleted, WithdrawalStatusFailed},
	WithdrawalStatusCompleted:  {}, // Terminal state
	WithdrawalStatusFailed:     {}, // Terminal state
	WithdrawalStatusCancelled:  {}, // Terminal state
}

// CanTransitionTo checks if transition to new status is allowed
func (s WithdrawalStatus) CanTransitionTo(newStatus WithdrawalStatus) bool {
	allowed, exists := ValidWithdrawalTransitions[s]
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
func (s WithdrawalStatus) IsTerminal() bool {
	return s == WithdrawalStatusCompleted || s == WithdrawalStatusFailed || s == WithdrawalStatusCancelled
}

// ValidateTransition returns an error if the transition is invalid
func (s WithdrawalStatus) ValidateTransition(newStatus WithdrawalStatus) error {
	if !s.CanTransitionTo(newStatus) {
		return fmt.Errorf("invalid withdrawal status transition from %s to %s", s, newStatus)
	}
	return nil
}

// Withdrawal represents one outbound request. The gross amount is debited
// from the user's balance when the row is created; every terminal failure
// path must restore it in the same transaction that records the status.
type Withdrawal struct {
	ID              uuid.UUID        `json:"id" db:"id"`
	UserID          uuid.UUID        `json:"user_id" db:"user_id"`
	Method          WithdrawalMethod `json:"method" db:"method"`
	Chain           Chain            `json:"chain" db:"chain"`
	Currency        Currency         `json:"currency" db:"currency"`
	WalletAddress   string           `json:"wallet_address" db:"wallet_address"`
	RequestedAmount decimal.Decimal  `json:"requested_amount" db:"requested_amount"`
	FromFreshDeposit decimal.Decimal `json:"from_fresh_deposit" db:"from_fresh_deposit"`
	FromProfit      decimal.Decimal  `json:"from_profit" db:"from_profit"`
	TaxAmount       decimal.Decimal  `json:"tax_amount" db:"tax_amount"`
	TaxRate         decimal.Decimal  `json:"tax_rate" db:"tax_rate"`
	NetAmount       decimal.Decimal  `json:"net_amount" db:"net_amount"`
	UsdtAmount      decimal.Decimal  `json:"usdt_amount" db:"usdt_amount"`
	TxSignature     *string          `json:"tx_signature,omitempty" db:"tx_signature"`
	Status          WithdrawalStatus `json:"status" db:"status"`
	ErrorMessage    *string          `json:"error_message,omitempty" db:"error_message"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
	ProcessedAt     *time.Time       `json:"processed_at,omitempty" db:"processed_at"`
}

// WithdrawalPreview is the pure tax/net computation shown before any mutation
type WithdrawalPreview struct {
	RequestedAmount  decimal.Decimal `json:"requested_amount"`
	FromFreshDeposit decimal.Decimal `json:"from_fresh_deposit"`
	FromProfit       decimal.Decimal `json:"from_profit"`
	TaxRate          decimal.Decimal `json:"tax_rate"`
	TaxAmount        decimal.Decimal `json:"tax_amount"`
	NetAmount        decimal.Decimal `json:"net_amount"`
}

// ClaimInfo is returned by the atomic prepare step so the client can build
// and sign the claim transaction itself
type ClaimInfo struct {
	WithdrawalID    uuid.UUID       `json:"withdrawal_id"`
	ProgramID       string          `json:"program_id"`
	VaultAddress    string          `json:"vault_address"`
	RequestAddress  string          `json:"request_address"`
	Mint            string          `json:"mint"`
	NetAmount       decimal.Decimal `json:"net_amount"`
	ExpiresAt       time.Time       `json:"expires_at"`
}
