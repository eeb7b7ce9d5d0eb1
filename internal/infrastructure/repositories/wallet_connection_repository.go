package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/solfortune/custody-service/internal/domain/entities"
	domainErrors "github.com/solfortune/custody-service/internal/domain/errors"
)

// WalletConnectionRepository persists declared non-custodial wallets, one per
// (user, chain), upserted on reconnect
type WalletConnectionRepository struct {
	db *sqlx.DB
}

// NewWalletConnectionRepository creates a new wallet connection repository
func NewWalletConnectionRepository(db *sqlx.DB) *WalletConnectionRepository {
	return &WalletConnectionRepository{db: db}
}

// Upsert stores or replaces the user's declared wallet for a chain
func (r *WalletConnectionRepository) Upsert(ctx context.Context, conn *entities.WalletConnection) error {
	query := `
		INSERT INTO wallet_connections (id, user_id, chain, wallet_address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (user_id, chain)
		DO UPDATE SET wallet_address = EXCLUDED.wallet_address, updated_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query,
		conn.ID,
		conn.UserID,
		conn.Chain,
		conn.WalletAddress,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert wallet connection: %w", err)
	}

	return nil
}

// GetByUserAndChain retrieves the user's declared wallet for a chain
func (r *WalletConnectionRepository) GetByUserAndChain(ctx context.Context, userID uuid.UUID, chain entities.Chain) (*entities.WalletConnection, error) {
	query := `
		SELECT id, user_id, chain, wallet_address, created_at, updated_at
		FROM wallet_connections
		WHERE user_id = $1 AND chain = $2
	`

	var conn entities.WalletConnection
	err := r.db.GetContext(ctx, &conn, query, userID, chain)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainErrors.NotFoundError("wallet connection")
		}
		return nil, fmt.Errorf("failed to get wallet connection: %w", err)
	}

	return &conn, nil
}

// GetByAddress resolves the user owning a declared wallet address. Used to
// attribute hot-wallet transfers by sender.
func (r *WalletConnectionRepository) GetByAddress(ctx context.Context, chain entities.Chain, address string) (*entities.WalletConnection, error) {
	query := `
		SELECT id, user_id, chain, wallet_address, created_at, updated_at
		FROM wallet_connections
		WHERE chain = $1 AND wallet_address = $2
	`

	var conn entities.WalletConnection
	err := r.db.GetContext(ctx, &conn, query, chain, address)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainErrors.NotFoundError("wallet connection")
		}
		return nil, fmt.Errorf("failed to get wallet connection by address: %w", err)
	}

	return &conn, nil
}
