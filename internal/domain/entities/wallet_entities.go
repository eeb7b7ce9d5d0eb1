package entities

import (
	"time"

	"github.com/google/uuid"
)

// DepositAddress is a per-user HD-derived custodial address, one per
// (user, chain). Created lazily on first request, never deleted, swept on a
// schedule. The derivation index is the only state the generator needs.
type DepositAddress struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	UserID            uuid.UUID  `json:"user_id" db:"user_id"`
	Chain             Chain      `json:"chain" db:"chain"`
	Address           string     `json:"address" db:"address"`
	DerivationIndex   uint32     `json:"derivation_index" db:"derivation_index"`
	ExternalWebhookID *string    `json:"external_webhook_id,omitempty" db:"external_webhook_id"`
	IsActive          bool       `json:"is_active" db:"is_active"`
	LastSweptAt       *time.Time `json:"last_swept_at,omitempty" db:"last_swept_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}

// WalletConnection records the non-custodial wallet a user declared as
// theirs, one per (user, chain). Inbound hot-wallet transfers are attributed
// by matching the sender against this address. Upserted on every connect.
type WalletConnection struct {
	ID            uuid.UUID `json:"id" db:"id"`
	UserID        uuid.UUID `json:"user_id" db:"user_id"`
	Chain         Chain     `json:"chain" db:"chain"`
	WalletAddress string    `json:"wallet_address" db:"wallet_address"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// DepositAddressInfo is returned to clients requesting their deposit address
type DepositAddressInfo struct {
	Chain      Chain  `json:"chain"`
	Address    string `json:"address"`
	URI        string `json:"uri"`
	MinDeposit string `json:"min_deposit"`
}
