package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/solfortune/custody-service/internal/domain/entities"
	domainErrors "github.com/solfortune/custody-service/internal/domain/errors"
)

// UserBalanceRepository mutates the ledger-side user columns. Every mutation
// here runs inside a caller-owned transaction that also writes the audit row.
type UserBalanceRepository struct {
	db *sqlx.DB
}

// NewUserBalanceRepository creates a new user balance repository
func NewUserBalanceRepository(db *sqlx.DB) *UserBalanceRepository {
	return &UserBalanceRepository{db: db}
}

// GetByUserID retrieves the custody-relevant balance columns for a user
func (r *UserBalanceRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*entities.UserBalance, error) {
	return r.get(ctx, r.db, userID, false)
}

// GetByUserIDForUpdate locks the user row for the rest of the transaction
func (r *UserBalanceRepository) GetByUserIDForUpdate(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (*entities.UserBalance, error) {
	return r.get(ctx, tx, userID, true)
}

func (r *UserBalanceRepository) get(ctx context.Context, q sqlx.QueryerContext, userID uuid.UUID, forUpdate bool) (*entities.UserBalance, error) {
	query := `
		SELECT id, fortune_balance, total_fresh_deposits, total_profit_collected,
			   referral_balance, referrer_id
		FROM users
		WHERE id = $1
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var balance entities.UserBalance
	err := sqlx.GetContext(ctx, q, &balance, query, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainErrors.NotFoundError("user")
		}
		return nil, fmt.Errorf("failed to get user balance: %w", err)
	}

	return &balance, nil
}

// CreditDepositTx adds a credited deposit's USD value to both the spendable
// balance and the fresh-deposit principal counter
func (r *UserBalanceRepository) CreditDepositTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amountUSD decimal.Decimal) error {
	query := `
		UPDATE users
		SET fortune_balance = fortune_balance + $2,
			total_fresh_deposits = total_fresh_deposits + $2,
			updated_at = NOW()
		WHERE id = $1
	`

	result, err := tx.ExecContext(ctx, query, userID, amountUSD)
	if err != nil {
		return fmt.Errorf("failed to credit deposit: %w", err)
	}

	return requireOneRow(result, "user")
}

// HoldWithdrawalTx debits the gross withdrawal amount. The balance predicate
// makes overdraw impossible even when two withdrawals race; the fresh-deposit
// counter is reduced by the principal portion being withdrawn.
func (r *UserBalanceRepository) HoldWithdrawalTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amountUSD, fromFreshDeposit decimal.Decimal) error {
	query := `
		UPDATE users
		SET fortune_balance = fortune_balance - $2,
			total_fresh_deposits = total_fresh_deposits - $3,
			updated_at = NOW()
		WHERE id = $1 AND fortune_balance >= $2
	`

	result, err := tx.ExecContext(ctx, query, userID, amountUSD, fromFreshDeposit)
	if err != nil {
		return fmt.Errorf("failed to hold withdrawal amount: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check hold result: %w", err)
	}
	if rows == 0 {
		return domainErrors.InsufficientFundsError("balance is insufficient for this withdrawal")
	}

	return nil
}

// ReleaseWithdrawalTx restores a held amount after a failed, cancelled or
// expired withdrawal. Exact inverse of HoldWithdrawalTx.
func (r *UserBalanceRepository) ReleaseWithdrawalTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amountUSD, fromFreshDeposit decimal.Decimal) error {
	query := `
		UPDATE users
		SET fortune_balance = fortune_balance + $2,
			total_fresh_deposits = total_fresh_deposits + $3,
			updated_at = NOW()
		WHERE id = $1
	`

	result, err := tx.ExecContext(ctx, query, userID, amountUSD, fromFreshDeposit)
	if err != nil {
		return fmt.Errorf("failed to release withdrawal hold: %w", err)
	}

	return requireOneRow(result, "user")
}

// CreditReferralTx adds a referral bonus to the referrer's dedicated pocket
func (r *UserBalanceRepository) CreditReferralTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amountUSD decimal.Decimal) error {
	query := `
		UPDATE users
		SET referral_balance = referral_balance + $2,
			updated_at = NOW()
		WHERE id = $1
	`

	result, err := tx.ExecContext(ctx, query, userID, amountUSD)
	if err != nil {
		return fmt.Errorf("failed to credit referral bonus: %w", err)
	}

	return requireOneRow(result, "user")
}

// GetReferrerID returns the direct referrer of a user, nil when there is none
func (r *UserBalanceRepository) GetReferrerID(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (*uuid.UUID, error) {
	query := `SELECT referrer_id FROM users WHERE id = $1`

	var referrerID *uuid.UUID
	err := tx.GetContext(ctx, &referrerID, query, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainErrors.NotFoundError("user")
		}
		return nil, fmt.Errorf("failed to get referrer: %w", err)
	}

	return referrerID, nil
}

func requireOneRow(result sql.Result, resource string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return domainErrors.NotFoundError(resource)
	}
	return nil
}
