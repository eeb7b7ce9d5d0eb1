package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/solfortune/custody-service/internal/domain/entities"
)

// ReferralRepository persists per-level referral bonuses from deposit fan-out
type ReferralRepository struct {
	db *sqlx.DB
}

// NewReferralRepository creates a new referral repository
func NewReferralRepository(db *sqlx.DB) *ReferralRepository {
	return &ReferralRepository{db: db}
}

// CreateTx inserts a bonus row inside the deposit-credit transaction
func (r *ReferralRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, bonus *entities.ReferralBonus) error {
	query := `
		INSERT INTO referral_bonuses (id, user_id, referee_id, deposit_id, level, amount_usd, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := tx.ExecContext(ctx, query,
		bonus.ID,
		bonus.UserID,
		bonus.RefereeID,
		bonus.DepositID,
		bonus.Level,
		bonus.AmountUSD,
		bonus.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create referral bonus: %w", err)
	}

	return nil
}

// ListByUserID retrieves bonuses earned by a user, newest first
func (r *ReferralRepository) ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.ReferralBonus, error) {
	query := `
		SELECT id, user_id, referee_id, deposit_id, level, amount_usd, created_at
		FROM referral_bonuses
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	bonuses := []*entities.ReferralBonus{}
	err := r.db.SelectContext(ctx, &bonuses, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list referral bonuses: %w", err)
	}

	return bonuses, nil
}
