package entities

import "github.com/shopspring/decimal"

// EnhancedTransactionBatch is the raw body of the chain-data provider's
// enhanced transaction webhook: an array of transactions, each carrying its
// decoded native and token transfers.
type EnhancedTransactionBatch []EnhancedTransaction

// EnhancedTransaction is one decoded chain transaction from the provider
type EnhancedTransaction struct {
	Signature       string           `json:"signature"`
	Slot            int64            `json:"slot"`
	Timestamp       int64            `json:"timestamp"`
	NativeTransfers []NativeTransfer `json:"nativeTransfers"`
	TokenTransfers  []TokenTransfer  `json:"tokenTransfers"`
}

// NativeTransfer is a lamport movement inside an enhanced transaction
type NativeTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Amount          uint64 `json:"amount"`
}

// TokenTransfer is an SPL token movement inside an enhanced transaction.
// TokenAmount is already decimal-adjusted by the provider.
type TokenTransfer struct {
	FromUserAccount string          `json:"fromUserAccount"`
	ToUserAccount   string          `json:"toUserAccount"`
	Mint            string          `json:"mint"`
	TokenAmount     decimal.Decimal `json:"tokenAmount"`
}

// ParsedTransfer is a canonical inbound transfer, normalized from the
// webhook payload and filtered to monitored destinations. One chain
// transaction may yield zero, one, or several of these.
type ParsedTransfer struct {
	Currency    Currency
	Amount      decimal.Decimal
	ToAddress   string
	FromAddress string
	Signature   string
	Slot        int64
	Mint        string
}

// IngestResult summarizes one webhook batch pass
type IngestResult struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
}
