package entities

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrorResponse is the standardized error envelope
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ConnectWalletRequest declares the user's non-custodial wallet
type ConnectWalletRequest struct {
	WalletAddress string `json:"wallet_address" binding:"required"`
}

// InitiateDepositRequest starts a wallet-connect deposit
type InitiateDepositRequest struct {
	Currency      Currency        `json:"currency" binding:"required"`
	Amount        decimal.Decimal `json:"amount" binding:"required"`
	WalletAddress string          `json:"wallet_address" binding:"required"`
}

// InitiateDepositResponse gives the client what it needs to build and sign
// the transfer itself
type InitiateDepositResponse struct {
	DepositID        uuid.UUID       `json:"deposit_id"`
	Memo             string          `json:"memo"`
	RecipientAddress string          `json:"recipient_address"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         Currency        `json:"currency"`
}

// ConfirmDepositRequest attaches the real on-chain signature to a pending
// wallet-connect deposit
type ConfirmDepositRequest struct {
	TxSignature string `json:"tx_signature" binding:"required"`
}

// ManualDepositInstructions describe the other-chain manual flow
type ManualDepositInstructions struct {
	Chain            string `json:"chain"`
	RecipientAddress string `json:"recipient_address"`
	MinDeposit       string `json:"min_deposit"`
	Note             string `json:"note"`
}

// ManualDepositClaimRequest submits a claimed other-chain transfer for
// operator review
type ManualDepositClaimRequest struct {
	Chain       string          `json:"chain" binding:"required"`
	Currency    Currency        `json:"currency" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	TxSignature string          `json:"tx_signature" binding:"required"`
}

// RatesResponse is the read-only conversion-rate display. A project-token
// price that is not yet available renders as zero here and only here.
type RatesResponse struct {
	SolUSD  decimal.Decimal `json:"sol_usd"`
	UsdtUSD decimal.Decimal `json:"usdt_usd"`
	FortUSD decimal.Decimal `json:"fort_usd"`
}

// PreviewWithdrawalRequest asks for the tax/net split of an amount
type PreviewWithdrawalRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

// PrepareWithdrawalRequest starts the wallet-connect payout flow
type PrepareWithdrawalRequest struct {
	Amount        decimal.Decimal `json:"amount" binding:"required"`
	WalletAddress string          `json:"wallet_address" binding:"required"`
}

// ConfirmWithdrawalRequest finalizes a claimed wallet-connect payout
type ConfirmWithdrawalRequest struct {
	TxSignature string `json:"tx_signature" binding:"required"`
}

// InstantWithdrawalRequest starts the manual-address payout flow
type InstantWithdrawalRequest struct {
	Amount        decimal.Decimal `json:"amount" binding:"required"`
	WalletAddress string          `json:"wallet_address" binding:"required"`
}
