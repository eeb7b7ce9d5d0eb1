package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/solfortune/custody-service/internal/domain/entities"
)

// TransactionRepository persists the immutable audit rows written alongside
// every balance mutation
type TransactionRepository struct {
	db *sqlx.DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// CreateTx inserts an audit row inside the caller's transaction
func (r *TransactionRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, txn *entities.Transaction) error {
	query := `
		INSERT INTO transactions (id, user_id, type, amount_usd, status, reference_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := tx.ExecContext(ctx, query,
		txn.ID,
		txn.UserID,
		txn.Type,
		txn.AmountUSD,
		txn.Status,
		txn.ReferenceID,
		txn.Description,
		txn.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create transaction record: %w", err)
	}

	return nil
}

// UpdateStatusByReferenceTx moves the audit row tied to a deposit or
// withdrawal as it settles
func (r *TransactionRepository) UpdateStatusByReferenceTx(ctx context.Context, tx *sqlx.Tx, referenceID uuid.UUID, status entities.TransactionStatus) error {
	query := `UPDATE transactions SET status = $2 WHERE reference_id = $1`

	_, err := tx.ExecContext(ctx, query, referenceID, status)
	if err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}

	return nil
}

// ListByUserID retrieves audit rows for a user with pagination, newest first
func (r *TransactionRepository) ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.Transaction, error) {
	query := `
		SELECT id, user_id, type, amount_usd, status, reference_id, description, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	txns := []*entities.Transaction{}
	err := r.db.SelectContext(ctx, &txns, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	return txns, nil
}
