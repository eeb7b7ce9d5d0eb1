package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// VaultState mirrors the pooled-custody program's state account
type VaultState struct {
	Authority      string          `json:"authority"`
	PayoutWallet   string          `json:"payout_wallet"`
	Mint           string          `json:"mint"`
	TotalDeposited decimal.Decimal `json:"total_deposited"`
	TotalPaidOut   decimal.Decimal `json:"total_paid_out"`
	Paused         bool            `json:"paused"`
}

// VaultWithdrawalRequest mirrors the per-user escrow PDA. Only that user's
// wallet signature can claim it; the authority can cancel it after expiry.
// A nil lookup result means no active request — "never created" and
// "already claimed or cancelled" are indistinguishable on chain.
type VaultWithdrawalRequest struct {
	UserAddress string          `json:"user_address"`
	Amount      decimal.Decimal `json:"amount"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// IsExpired reports whether the claim window has closed
func (r *VaultWithdrawalRequest) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
