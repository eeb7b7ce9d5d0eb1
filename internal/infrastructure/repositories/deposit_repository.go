package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/solfortune/custody-service/internal/domain/entities"
	domainErrors "github.com/solfortune/custody-service/internal/domain/errors"
)

const depositColumns = `
	id, user_id, method, chain, currency, amount, memo, tx_signature, slot,
	status, amount_usd, rate_to_usd, created_at, confirmed_at, credited_at
`

// DepositRepository persists deposits. A partial unique index on
// tx_signature makes observed signatures the exactly-once anchor; intent rows
// awaiting their signature carry NULL and stay outside the constraint.
type DepositRepository struct {
	db *sqlx.DB
}

// NewDepositRepository creates a new deposit repository
func NewDepositRepository(db *sqlx.DB) *DepositRepository {
	return &DepositRepository{db: db}
}

// Create inserts a new deposit. Returns a conflict error when the signature
// was already recorded.
func (r *DepositRepository) Create(ctx context.Context, deposit *entities.Deposit) error {
	query := `
		INSERT INTO deposits (` + depositColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.db.ExecContext(ctx, query,
		deposit.ID,
		deposit.UserID,
		deposit.Method,
		deposit.Chain,
		deposit.Currency,
		deposit.Amount,
		deposit.Memo,
		deposit.TxSignature,
		deposit.Slot,
		deposit.Status,
		deposit.AmountUSD,
		deposit.RateToUSD,
		deposit.CreatedAt,
		deposit.ConfirmedAt,
		deposit.CreditedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return domainErrors.ConflictError("deposit", "transaction signature already recorded")
		}
		return fmt.Errorf("failed to create deposit: %w", err)
	}

	return nil
}

// GetByID retrieves a deposit by ID
func (r *DepositRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Deposit, error) {
	query := `SELECT ` + depositColumns + ` FROM deposits WHERE id = $1`

	var deposit entities.Deposit
	err := r.db.GetContext(ctx, &deposit, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainErrors.NotFoundError("deposit")
		}
		return nil, fmt.Errorf("failed to get deposit: %w", err)
	}

	return &deposit, nil
}

// GetBySignature retrieves a deposit by chain and transaction signature
func (r *DepositRepository) GetBySignature(ctx context.Context, chain entities.Chain, signature string) (*entities.Deposit, error) {
	query := `SELECT ` + depositColumns + ` FROM deposits WHERE chain = $1 AND tx_signature = $2`

	var deposit entities.Deposit
	err := r.db.GetContext(ctx, &deposit, query, chain, signature)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainErrors.NotFoundError("deposit")
		}
		return nil, fmt.Errorf("failed to get deposit by signature: %w", err)
	}

	return &deposit, nil
}

// ExistsBySignature reports whether a signature was already recorded for the
// chain. Used for cheap webhook dedup before any heavier work.
func (r *DepositRepository) ExistsBySignature(ctx context.Context, chain entities.Chain, signature string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM deposits WHERE chain = $1 AND tx_signature = $2)`

	var exists bool
	err := r.db.GetContext(ctx, &exists, query, chain, signature)
	if err != nil {
		return false, fmt.Errorf("failed to check deposit signature: %w", err)
	}

	return exists, nil
}

// GetAwaitingByMemo retrieves the wallet-connect intent row matching a memo
// for the user. Only rows without a signature qualify; a confirmed intent is
// never matched twice.
func (r *DepositRepository) GetAwaitingByMemo(ctx context.Context, userID uuid.UUID, memo string) (*entities.Deposit, error) {
	query := `
		SELECT ` + depositColumns + `
		FROM deposits
		WHERE user_id = $1 AND memo = $2 AND tx_signature IS NULL AND status = $3
	`

	var deposit entities.Deposit
	err := r.db.GetContext(ctx, &deposit, query, userID, memo, entities.DepositStatusPending)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainErrors.NotFoundError("deposit intent")
		}
		return nil, fmt.Errorf("failed to get deposit intent: %w", err)
	}

	return &deposit, nil
}

// GetPendingWalletConnect retrieves the oldest unsettled wallet-connect
// intent for a user in the given currency, signed or not. The currency
// predicate keeps a transfer in one asset from consuming an intent declared
// in another.
func (r *DepositRepository) GetPendingWalletConnect(ctx context.Context, userID uuid.UUID, currency entities.Currency) (*entities.Deposit, error) {
	query := `
		SELECT ` + depositColumns + `
		FROM deposits
		WHERE user_id = $1 AND method = $2 AND status = $3 AND currency = $4
		ORDER BY created_at ASC
		LIMIT 1
	`

	var deposit entities.Deposit
	err := r.db.GetContext(ctx, &deposit, query, userID, entities.DepositMethodWalletConnect, entities.DepositStatusPending, currency)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainErrors.NotFoundError("deposit intent")
		}
		return nil, fmt.Errorf("failed to get deposit intent: %w", err)
	}

	return &deposit, nil
}

// AttachSignature ties an on-chain signature to an intent row. The row stays
// pending: only the webhook's independent observation confirms it. Fails with
// a conflict when the signature is already taken by another row, and with
// not-found when the intent already carries a signature.
func (r *DepositRepository) AttachSignature(ctx context.Context, id uuid.UUID, signature string) error {
	query := `
		UPDATE deposits
		SET tx_signature = $2
		WHERE id = $1 AND tx_signature IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, id, signature)
	if err != nil {
		if isUniqueViolation(err) {
			return domainErrors.ConflictError("deposit", "transaction signature already recorded")
		}
		return fmt.Errorf("failed to attach signature: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check attach result: %w", err)
	}
	if rows == 0 {
		return domainErrors.NotFoundError("deposit intent")
	}

	return nil
}

// ConfirmPending moves a pending row to confirmed with the observed on-chain
// facts. Currency and amount come from the chain, never from the declared
// intent: the credit step values the row at the observed asset's price. The
// pending predicate makes racing webhook deliveries settle to one winner; the
// unique index rejects a signature already observed elsewhere.
func (r *DepositRepository) ConfirmPending(ctx context.Context, id uuid.UUID, currency entities.Currency, amount decimal.Decimal, signature string, slot int64) error {
	query := `
		UPDATE deposits
		SET currency = $2, amount = $3, tx_signature = $4, slot = $5, status = $6, confirmed_at = NOW()
		WHERE id = $1 AND status = $7
	`

	result, err := r.db.ExecContext(ctx, query, id, currency, amount, signature, slot,
		entities.DepositStatusConfirmed, entities.DepositStatusPending)
	if err != nil {
		if isUniqueViolation(err) {
			return domainErrors.ConflictError("deposit", "transaction signature already recorded")
		}
		return fmt.Errorf("failed to confirm deposit: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check confirm result: %w", err)
	}
	if rows == 0 {
		return domainErrors.ConflictError("deposit", "deposit is no longer pending")
	}

	return nil
}

// UpdateStatus moves a deposit between states. The prior status is part of
// the predicate so concurrent processors cannot double-apply a transition.
func (r *DepositRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to entities.DepositStatus) error {
	return r.updateStatus(ctx, r.db, id, from, to)
}

// UpdateStatusTx is UpdateStatus inside an existing transaction
func (r *DepositRepository) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, from, to entities.DepositStatus) error {
	return r.updateStatus(ctx, tx, id, from, to)
}

func (r *DepositRepository) updateStatus(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID, from, to entities.DepositStatus) error {
	if err := from.ValidateTransition(to); err != nil {
		return domainErrors.ValidationError("status", err.Error())
	}

	var timestampColumn string
	switch to {
	case entities.DepositStatusConfirmed:
		timestampColumn = "confirmed_at = NOW(),"
	case entities.DepositStatusCredited:
		timestampColumn = "credited_at = NOW(),"
	}

	query := fmt.Sprintf(`
		UPDATE deposits
		SET %s status = $3
		WHERE id = $1 AND status = $2
	`, timestampColumn)

	result, err := ext.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("failed to update deposit status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check status update result: %w", err)
	}
	if rows == 0 {
		return domainErrors.ConflictError("deposit", fmt.Sprintf("deposit is no longer %s", from))
	}

	return nil
}

// SetValuation records the credited USD value and the conversion rate used
func (r *DepositRepository) SetValuationTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, amountUSD, rate decimal.Decimal) error {
	query := `
		UPDATE deposits
		SET amount_usd = $2, rate_to_usd = $3
		WHERE id = $1
	`

	_, err := tx.ExecContext(ctx, query, id, amountUSD, rate)
	if err != nil {
		return fmt.Errorf("failed to set deposit valuation: %w", err)
	}

	return nil
}

// ListByUserID retrieves deposits for a user with pagination, newest first
func (r *DepositRepository) ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.Deposit, error) {
	query := `
		SELECT ` + depositColumns + `
		FROM deposits
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	deposits := []*entities.Deposit{}
	err := r.db.SelectContext(ctx, &deposits, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list deposits: %w", err)
	}

	return deposits, nil
}

// ListConfirmedUncredited retrieves confirmed deposits whose credit step has
// not completed, for the recovery sweep after a crash between the two steps
func (r *DepositRepository) ListConfirmedUncredited(ctx context.Context, limit int) ([]*entities.Deposit, error) {
	query := `
		SELECT ` + depositColumns + `
		FROM deposits
		WHERE status = $1
		ORDER BY confirmed_at ASC
		LIMIT $2
	`

	deposits := []*entities.Deposit{}
	err := r.db.SelectContext(ctx, &deposits, query, entities.DepositStatusConfirmed, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list uncredited deposits: %w", err)
	}

	return deposits, nil
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
