package deposit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/solfortune/custody-service/internal/domain/entities"
	domainErrors "github.com/solfortune/custody-service/internal/domain/errors"
	"github.com/solfortune/custody-service/internal/domain/services/pricing"
	"github.com/solfortune/custody-service/internal/infrastructure/config"
	"github.com/solfortune/custody-service/internal/infrastructure/database"
	"github.com/solfortune/custody-service/pkg/logger"
	"github.com/solfortune/custody-service/pkg/metrics"
	"github.com/solfortune/custody-service/pkg/queue"
)

// PriceOracle converts asset amounts to the ledger's USD unit
type PriceOracle interface {
	ConvertToUSD(ctx context.Context, currency entities.Currency, amount decimal.Decimal) (*pricing.Conversion, error)
}

// CreditDepositRepository is the transactional slice of deposit persistence
// the credit step needs
type CreditDepositRepository interface {
	UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, from, to entities.DepositStatus) error
	SetValuationTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, amountUSD, rate decimal.Decimal) error
}

// BalanceRepository mutates ledger balances inside the credit transaction
type BalanceRepository interface {
	CreditDepositTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amountUSD decimal.Decimal) error
	CreditReferralTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amountUSD decimal.Decimal) error
	GetReferrerID(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (*uuid.UUID, error)
}

// AuditRepository writes the audit row paired with the balance mutation
type AuditRepository interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, txn *entities.Transaction) error
}

// ReferralBonusRepository records per-level referral fan-out
type ReferralBonusRepository interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, bonus *entities.ReferralBonus) error
}

// CreditProcessor turns a confirmed deposit into a balance increase, exactly
// once. Everything financial happens in one DB transaction; side effects run
// only after commit and may fail freely.
type CreditProcessor struct {
	db        *sqlx.DB
	deposits  CreditDepositRepository
	balances  BalanceRepository
	audits    AuditRepository
	referrals ReferralBonusRepository
	oracle    PriceOracle
	publisher queue.Publisher
	cfg       config.ReferralConfig
	log       *logger.Logger
}

// NewCreditProcessor creates the deposit credit processor
func NewCreditProcessor(
	db *sqlx.DB,
	deposits CreditDepositRepository,
	balances BalanceRepository,
	audits AuditRepository,
	referrals ReferralBonusRepository,
	oracle PriceOracle,
	publisher queue.Publisher,
	cfg config.ReferralConfig,
	log *logger.Logger,
) *CreditProcessor {
	if publisher == nil {
		publisher = queue.NewMockPublisher()
	}
	return &CreditProcessor{
		db:        db,
		deposits:  deposits,
		balances:  balances,
		audits:    audits,
		referrals: referrals,
		oracle:    oracle,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
	}
}

// Credit applies the atomic credit. A failed conversion aborts before any
// mutation and the deposit stays confirmed, safe to retry. Invoking it on a
// row that is not confirmed is a guarded no-op error, never a double credit.
func (p *CreditProcessor) Credit(ctx context.Context, deposit *entities.Deposit) error {
	if deposit.Status != entities.DepositStatusConfirmed {
		return domainErrors.ConflictError("deposit", fmt.Sprintf("cannot credit deposit in status %s", deposit.Status))
	}

	conversion, err := p.oracle.ConvertToUSD(ctx, deposit.Currency, deposit.Amount)
	if err != nil {
		return fmt.Errorf("conversion failed for deposit %s: %w", deposit.ID, err)
	}

	err = database.WithTransaction(ctx, p.db, func(tx *sqlx.Tx) error {
		if err := p.balances.CreditDepositTx(ctx, tx, deposit.UserID, conversion.AmountUSD); err != nil {
			return err
		}

		if err := p.deposits.SetValuationTx(ctx, tx, deposit.ID, conversion.AmountUSD, conversion.Rate); err != nil {
			return err
		}

		if err := p.deposits.UpdateStatusTx(ctx, tx, deposit.ID,
			entities.DepositStatusConfirmed, entities.DepositStatusCredited); err != nil {
			return err
		}

		if err := p.audits.CreateTx(ctx, tx, &entities.Transaction{
			ID:          uuid.New(),
			UserID:      deposit.UserID,
			Type:        entities.TransactionTypeDeposit,
			AmountUSD:   conversion.AmountUSD,
			Status:      entities.TransactionStatusCompleted,
			ReferenceID: deposit.ID,
			Description: fmt.Sprintf("Deposit %s %s", deposit.Amount.String(), deposit.Currency),
			CreatedAt:   time.Now().UTC(),
		}); err != nil {
			return err
		}

		return p.fanOutReferrals(ctx, tx, deposit, conversion.AmountUSD)
	})
	if err != nil {
		return err
	}

	deposit.Status = entities.DepositStatusCredited
	deposit.AmountUSD = &conversion.AmountUSD
	deposit.RateToUSD = &conversion.Rate

	metrics.RecordDeposit(string(deposit.Method), string(deposit.Currency), "credited")
	amountUSD, _ := conversion.AmountUSD.Float64()
	metrics.RecordDepositVolume(string(deposit.Currency), amountUSD)

	p.log.Info("deposit credited",
		"deposit_id", deposit.ID.String(),
		"user_id", deposit.UserID.String(),
		"currency", deposit.Currency,
		"amount", deposit.Amount.String(),
		"amount_usd", conversion.AmountUSD.String(),
	)

	// Post-commit side effects: best effort only
	p.publishEvents(ctx, deposit, conversion.AmountUSD)

	return nil
}

// fanOutReferrals walks the referrer chain level by level, crediting each
// ancestor at that level's rate. Stops at the configured depth or the first
// user without a referrer.
func (p *CreditProcessor) fanOutReferrals(ctx context.Context, tx *sqlx.Tx, deposit *entities.Deposit, amountUSD decimal.Decimal) error {
	current := deposit.UserID

	for level := 0; level < p.cfg.MaxLevels && level < len(p.cfg.Rates); level++ {
		referrerID, err := p.balances.GetReferrerID(ctx, tx, current)
		if err != nil {
			return err
		}
		if referrerID == nil {
			return nil
		}

		bonus := amountUSD.Mul(decimal.NewFromFloat(p.cfg.Rates[level])).Round(6)
		if bonus.IsPositive() {
			if err := p.balances.CreditReferralTx(ctx, tx, *referrerID, bonus); err != nil {
				return err
			}
			if err := p.referrals.CreateTx(ctx, tx, &entities.ReferralBonus{
				ID:        uuid.New(),
				UserID:    *referrerID,
				RefereeID: deposit.UserID,
				DepositID: deposit.ID,
				Level:     level + 1,
				AmountUSD: bonus,
				CreatedAt: time.Now().UTC(),
			}); err != nil {
				return err
			}
		}

		current = *referrerID
	}

	return nil
}

func (p *CreditProcessor) publishEvents(ctx context.Context, deposit *entities.Deposit, amountUSD decimal.Decimal) {
	event := queue.Event{
		Type:   "deposit_credited",
		UserID: deposit.UserID.String(),
		Payload: map[string]interface{}{
			"deposit_id": deposit.ID.String(),
			"currency":   deposit.Currency,
			"amount":     deposit.Amount.String(),
			"amount_usd": amountUSD.String(),
		},
	}

	if err := p.publisher.Publish(ctx, queue.TopicDepositCredited, event); err != nil {
		p.log.Warn("failed to publish deposit event", "deposit_id", deposit.ID.String(), "error", err)
	}
	if err := p.publisher.Publish(ctx, queue.TopicBalanceUpdated, queue.Event{
		Type:   "balance_updated",
		UserID: deposit.UserID.String(),
	}); err != nil {
		p.log.Warn("failed to publish balance event", "user_id", deposit.UserID.String(), "error", err)
	}
}
