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

const depositAddressColumns = `
	id, user_id, chain, address, derivation_index, external_webhook_id,
	is_active, last_swept_at, created_at
`

// DepositAddressRepository persists HD-derived deposit addresses. Derivation
// indexes are allocated from a per-chain sequence so an index is never handed
// out twice even under concurrent first requests.
type DepositAddressRepository struct {
	db *sqlx.DB
}

// NewDepositAddressRepository creates a new deposit address repository
func NewDepositAddressRepository(db *sqlx.DB) *DepositAddressRepository {
	return &DepositAddressRepository{db: db}
}

// AllocateIndex reserves the next derivation index for a chain
func (r *DepositAddressRepository) AllocateIndex(ctx context.Context, chain entities.Chain) (uint32, error) {
	query := `
		INSERT INTO derivation_counters (chain, next_index)
		VALUES ($1, 1)
		ON CONFLICT (chain)
		DO UPDATE SET next_index = derivation_counters.next_index + 1
		RETURNING next_index - 1
	`

	var index uint32
	err := r.db.GetContext(ctx, &index, query, chain)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate derivation index: %w", err)
	}

	return index, nil
}

// Create inserts a new deposit address. One active address per (user, chain)
// is enforced by a unique index; a losing racer gets a conflict and re-reads.
func (r *DepositAddressRepository) Create(ctx context.Context, addr *entities.DepositAddress) error {
	query := `
		INSERT INTO deposit_addresses (` + depositAddressColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		addr.ID,
		addr.UserID,
		addr.Chain,
		addr.Address,
		addr.DerivationIndex,
		addr.ExternalWebhookID,
		addr.IsActive,
		addr.LastSweptAt,
		addr.CreatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return domainErrors.ConflictError("deposit address", "address already exists for user and chain")
		}
		return fmt.Errorf("failed to create deposit address: %w", err)
	}

	return nil
}

// GetByUserAndChain retrieves the active deposit address for a user
func (r *DepositAddressRepository) GetByUserAndChain(ctx context.Context, userID uuid.UUID, chain entities.Chain) (*entities.DepositAddress, error) {
	query := `
		SELECT ` + depositAddressColumns + `
		FROM deposit_addresses
		WHERE user_id = $1 AND chain = $2 AND is_active = TRUE
	`

	var addr entities.DepositAddress
	err := r.db.GetContext(ctx, &addr, query, userID, chain)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainErrors.NotFoundError("deposit address")
		}
		return nil, fmt.Errorf("failed to get deposit address: %w", err)
	}

	return &addr, nil
}

// GetByAddress retrieves a deposit address row by its on-chain address
func (r *DepositAddressRepository) GetByAddress(ctx context.Context, chain entities.Chain, address string) (*entities.DepositAddress, error) {
	query := `
		SELECT ` + depositAddressColumns + `
		FROM deposit_addresses
		WHERE chain = $1 AND address = $2
	`

	var addr entities.DepositAddress
	err := r.db.GetContext(ctx, &addr, query, chain, address)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainErrors.NotFoundError("deposit address")
		}
		return nil, fmt.Errorf("failed to get deposit address: %w", err)
	}

	return &addr, nil
}

// ListActive retrieves all active deposit addresses for a chain. Feeds the
// monitored-address registry at startup and the sweep pass.
func (r *DepositAddressRepository) ListActive(ctx context.Context, chain entities.Chain) ([]*entities.DepositAddress, error) {
	query := `
		SELECT ` + depositAddressColumns + `
		FROM deposit_addresses
		WHERE chain = $1 AND is_active = TRUE
		ORDER BY derivation_index ASC
	`

	addrs := []*entities.DepositAddress{}
	err := r.db.SelectContext(ctx, &addrs, query, chain)
	if err != nil {
		return nil, fmt.Errorf("failed to list deposit addresses: %w", err)
	}

	return addrs, nil
}

// SetWebhookID records the provider-side subscription for an address
func (r *DepositAddressRepository) SetWebhookID(ctx context.Context, id uuid.UUID, webhookID string) error {
	query := `UPDATE deposit_addresses SET external_webhook_id = $2 WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, id, webhookID)
	if err != nil {
		return fmt.Errorf("failed to set webhook id: %w", err)
	}

	return nil
}

// TouchSwept records a completed sweep pass over an address
func (r *DepositAddressRepository) TouchSwept(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE deposit_addresses SET last_swept_at = NOW() WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to touch swept timestamp: %w", err)
	}

	return nil
}

// Deactivate retires an address from intake. The caller is responsible for
// removing it from the in-memory registry as well.
func (r *DepositAddressRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE deposit_addresses SET is_active = FALSE WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate deposit address: %w", err)
	}

	return nil
}
