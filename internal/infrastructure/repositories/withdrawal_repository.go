package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/solfortune/custody-service/internal/domain/entities"
	domainErrors "github.com/solfortune/custody-service/internal/domain/errors"
)

const withdrawalColumns = `
	id, user_id, method, chain, currency, wallet_address, requested_amount,
	from_fresh_deposit, from_profit, tax_amount, tax_rate, net_amount,
	usdt_amount, tx_signature, status, error_message, created_at, processed_at
`

// WithdrawalRepository persists withdrawal requests
type WithdrawalRepository struct {
	db *sqlx.DB
}

// NewWithdrawalRepository creates a new withdrawal repository
func NewWithdrawalRepository(db *sqlx.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

// CreateTx inserts a withdrawal inside the transaction that also debits the
// user's balance, so the row and the hold land together or not at all
func (r *WithdrawalRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, withdrawal *entities.Withdrawal) error {
	query := `
		INSERT INTO withdrawals (` + withdrawalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err := tx.ExecContext(ctx, query,
		withdrawal.ID,
		withdrawal.UserID,
		withdrawal.Method,
		withdrawal.Chain,
		withdrawal.Currency,
		withdrawal.WalletAddress,
		withdrawal.RequestedAmount,
		withdrawal.FromFreshDeposit,
		withdrawal.FromProfit,
		withdrawal.TaxAmount,
		withdrawal.TaxRate,
		withdrawal.NetAmount,
		withdrawal.UsdtAmount,
		withdrawal.TxSignature,
		withdrawal.Status,
		withdrawal.ErrorMessage,
		withdrawal.CreatedAt,
		withdrawal.ProcessedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create withdrawal: %w", err)
	}

	return nil
}

// GetByID retrieves a withdrawal by ID
func (r *WithdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1`

	var withdrawal entities.Withdrawal
	err := r.db.GetContext(ctx, &withdrawal, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainErrors.NotFoundError("withdrawal")
		}
		return nil, fmt.Errorf("failed to get withdrawal: %w", err)
	}

	return &withdrawal, nil
}

// GetByIDForUser retrieves a withdrawal scoped to its owner
func (r *WithdrawalRepository) GetByIDForUser(ctx context.Context, id, userID uuid.UUID) (*entities.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1 AND user_id = $2`

	var withdrawal entities.Withdrawal
	err := r.db.GetContext(ctx, &withdrawal, query, id, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainErrors.NotFoundError("withdrawal")
		}
		return nil, fmt.Errorf("failed to get withdrawal: %w", err)
	}

	return &withdrawal, nil
}

// ListByUserID retrieves withdrawals for a user with pagination, newest first
func (r *WithdrawalRepository) ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.Withdrawal, error) {
	query := `
		SELECT ` + withdrawalColumns + `
		FROM withdrawals
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	withdrawals := []*entities.Withdrawal{}
	err := r.db.SelectContext(ctx, &withdrawals, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}

	return withdrawals, nil
}

// ListExpiredPending retrieves wallet-connect withdrawals whose on-chain
// claim window has passed without a confirmation, for the cleanup worker
func (r *WithdrawalRepository) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]*entities.Withdrawal, error) {
	query := `
		SELECT ` + withdrawalColumns + `
		FROM withdrawals
		WHERE method = $1 AND status = $2 AND created_at < $3
		ORDER BY created_at ASC
		LIMIT $4
	`

	withdrawals := []*entities.Withdrawal{}
	err := r.db.SelectContext(ctx, &withdrawals, query,
		entities.WithdrawalMethodWalletConnect,
		entities.WithdrawalStatusPending,
		cutoff,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired withdrawals: %w", err)
	}

	return withdrawals, nil
}

// UpdateStatusTx moves a withdrawal between states inside a transaction. The
// prior status is part of the predicate, which is what makes concurrent
// confirm/cancel/expire calls on the same row settle to exactly one winner.
func (r *WithdrawalRepository) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, from, to entities.WithdrawalStatus, errorMessage *string) error {
	return r.updateStatus(ctx, tx, id, from, to, errorMessage)
}

// UpdateStatus is UpdateStatusTx without an enclosing transaction
func (r *WithdrawalRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to entities.WithdrawalStatus, errorMessage *string) error {
	return r.updateStatus(ctx, r.db, id, from, to, errorMessage)
}

func (r *WithdrawalRepository) updateStatus(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID, from, to entities.WithdrawalStatus, errorMessage *string) error {
	if err := from.ValidateTransition(to); err != nil {
		return domainErrors.ValidationError("status", err.Error())
	}

	query := `
		UPDATE withdrawals
		SET status = $3,
			error_message = COALESCE($4, error_message),
			processed_at = CASE WHEN $3 IN ('completed', 'failed', 'cancelled') THEN NOW() ELSE processed_at END
		WHERE id = $1 AND status = $2
	`

	result, err := ext.ExecContext(ctx, query, id, from, to, errorMessage)
	if err != nil {
		return fmt.Errorf("failed to update withdrawal status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check status update result: %w", err)
	}
	if rows == 0 {
		return domainErrors.ConflictError("withdrawal", fmt.Sprintf("withdrawal is no longer %s", from))
	}

	return nil
}

// SetSignatureTx records the settlement transaction signature
func (r *WithdrawalRepository) SetSignatureTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, signature string) error {
	query := `UPDATE withdrawals SET tx_signature = $2 WHERE id = $1`

	_, err := tx.ExecContext(ctx, query, id, signature)
	if err != nil {
		return fmt.Errorf("failed to set withdrawal signature: %w", err)
	}

	return nil
}

// SetSignature is SetSignatureTx without an enclosing transaction
func (r *WithdrawalRepository) SetSignature(ctx context.Context, id uuid.UUID, signature string) error {
	query := `UPDATE withdrawals SET tx_signature = $2 WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, id, signature)
	if err != nil {
		return fmt.Errorf("failed to set withdrawal signature: %w", err)
	}

	return nil
}
