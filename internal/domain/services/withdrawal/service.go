package withdrawal

import (
	"context"
	"fmt"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/solfortune/custody-service/internal/domain/entities"
	apperrors "github.com/solfortune/custody-service/internal/domain/errors"
	"github.com/solfortune/custody-service/internal/infrastructure/config"
	"github.com/solfortune/custody-service/internal/infrastructure/database"
	"github.com/solfortune/custody-service/pkg/logger"
	"github.com/solfortune/custody-service/pkg/metrics"
	"github.com/solfortune/custody-service/pkg/queue"
)

// WithdrawalRepository is the persistence surface the orchestrator needs
type WithdrawalRepository interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, withdrawal *entities.Withdrawal) error
	GetByIDForUser(ctx context.Context, id, userID uuid.UUID) (*entities.Withdrawal, error)
	ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.Withdrawal, error)
	ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]*entities.Withdrawal, error)
	UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, from, to entities.WithdrawalStatus, errorMessage *string) error
	SetSignatureTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, signature string) error
}

// BalanceRepository holds and releases withdrawal funds
type BalanceRepository interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*entities.UserBalance, error)
	HoldWithdrawalTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amountUSD, fromFreshDeposit decimal.Decimal) error
	ReleaseWithdrawalTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amountUSD, fromFreshDeposit decimal.Decimal) error
}

// AuditRepository writes the paired transaction rows
type AuditRepository interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, txn *entities.Transaction) error
	UpdateStatusByReferenceTx(ctx context.Context, tx *sqlx.Tx, referenceID uuid.UUID, status entities.TransactionStatus) error
}

// FundSourceProvider splits a withdrawal amount into tax-free principal and
// taxable profit, and reports the user's personal tax discount
type FundSourceProvider interface {
	Breakdown(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*entities.FundSourceBreakdown, error)
	TaxDiscount(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
}

// VaultBridge is the escrow surface for the wallet-connect path
type VaultBridge interface {
	Enabled() bool
	ProgramID() string
	Mint() (string, error)
	VaultAddress() (string, error)
	RequestAddressFor(userAddress string) (string, error)
	GetWithdrawalRequest(ctx context.Context, userAddress string) (*entities.VaultWithdrawalRequest, error)
	CreateWithdrawalRequest(ctx context.Context, userAddress string, usdAmount decimal.Decimal, expirySeconds int) (string, error)
	CancelWithdrawalRequest(ctx context.Context, userAddress string) (string, error)
	Payout(ctx context.Context, usdAmount decimal.Decimal) (string, error)
}

// ChainClient is the payout-wallet surface for the instant path
type ChainClient interface {
	PayoutWallet() (solanago.PublicKey, bool)
	MintFor(currency entities.Currency) (solanago.PublicKey, bool)
	GetTokenBalance(ctx context.Context, owner string, mint solanago.PublicKey) (decimal.Decimal, error)
	TransferTokenFromPayout(ctx context.Context, to solanago.PublicKey, mint solanago.PublicKey, amount uint64) (string, error)
	ConfirmTransaction(ctx context.Context, signature string) error
}

// Service orchestrates the withdrawal state machine. The gross amount is
// debited before any on-chain action; every failure path after that debit
// must restore the balance in the same transaction that records the terminal
// status.
type Service struct {
	runTx       func(ctx context.Context, fn func(tx *sqlx.Tx) error) error
	withdrawals WithdrawalRepository
	balances    BalanceRepository
	audits      AuditRepository
	fundSource  FundSourceProvider
	vault       VaultBridge
	chain       ChainClient
	publisher   queue.Publisher
	cfg         config.WithdrawalConfig
	log         *logger.Logger
}

// NewService creates the withdrawal orchestrator
func NewService(
	db *sqlx.DB,
	withdrawals WithdrawalRepository,
	balances BalanceRepository,
	audits AuditRepository,
	fundSource FundSourceProvider,
	vault VaultBridge,
	chain ChainClient,
	publisher queue.Publisher,
	cfg config.WithdrawalConfig,
	log *logger.Logger,
) *Service {
	if publisher == nil {
		publisher = queue.NewMockPublisher()
	}
	return &Service{
		runTx: func(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
			return database.WithTransaction(ctx, db, fn)
		},
		withdrawals: withdrawals,
		balances:    balances,
		audits:      audits,
		fundSource:  fundSource,
		vault:       vault,
		chain:       chain,
		publisher:   publisher,
		cfg:         cfg,
		log:         log,
	}
}

// Preview computes the tax and net payout for an amount without mutating
// anything. Used standalone and as the first step of every withdrawal path.
func (s *Service) Preview(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*entities.WithdrawalPreview, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperrors.ValidationError("amount", "amount must be positive")
	}

	balance, err := s.balances.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(balance.FortuneBalance) {
		return nil, apperrors.InsufficientFundsError("withdrawal amount exceeds available balance")
	}

	breakdown, err := s.fundSource.Breakdown(ctx, userID, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve fund source: %w", err)
	}

	discount, err := s.fundSource.TaxDiscount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tax discount: %w", err)
	}

	rate := decimal.NewFromFloat(s.cfg.TierTaxRate).Sub(discount)
	if rate.IsNegative() {
		rate = decimal.Zero
	}

	tax := breakdown.FromProfit.Mul(rate).Round(6)
	return &entities.WithdrawalPreview{
		RequestedAmount:  amount,
		FromFreshDeposit: breakdown.FromFreshDeposit,
		FromProfit:       breakdown.FromProfit,
		TaxRate:          rate,
		TaxAmount:        tax,
		NetAmount:        amount.Sub(tax),
	}, nil
}

// PrepareAtomic is the wallet-connect path: hold the balance, then create the
// on-chain escrow the user's wallet will claim. A failed on-chain call must
// never leave a debited balance with no claimable request.
func (s *Service) PrepareAtomic(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, userWalletAddress string) (*entities.ClaimInfo, error) {
	if !s.vault.Enabled() {
		return nil, apperrors.NotConfiguredError("atomic withdrawals")
	}
	if _, err := solanago.PublicKeyFromBase58(userWalletAddress); err != nil {
		return nil, apperrors.ValidationError("wallet_address", "invalid wallet address")
	}

	preview, err := s.Preview(ctx, userID, amount)
	if err != nil {
		return nil, err
	}

	w := newWithdrawal(userID, entities.WithdrawalMethodWalletConnect, userWalletAddress, preview)
	w.Status = entities.WithdrawalStatusPending

	if err := s.holdAndCreate(ctx, w); err != nil {
		return nil, err
	}

	// Balance is now held speculatively; the escrow must exist or the hold
	// must come back
	if _, err := s.vault.CreateWithdrawalRequest(ctx, userWalletAddress, w.NetAmount, s.cfg.RequestExpirySeconds); err != nil {
		s.rollbackHold(ctx, w, entities.WithdrawalStatusFailed, "on-chain withdrawal request creation failed")
		return nil, err
	}

	vaultAddress, err := s.vault.VaultAddress()
	if err != nil {
		return nil, err
	}
	requestAddress, err := s.vault.RequestAddressFor(userWalletAddress)
	if err != nil {
		return nil, err
	}
	mint, err := s.vault.Mint()
	if err != nil {
		return nil, err
	}

	s.log.Info("atomic withdrawal prepared",
		"withdrawal_id", w.ID,
		"user_id", userID,
		"net_amount", w.NetAmount.String(),
	)

	return &entities.ClaimInfo{
		WithdrawalID:   w.ID,
		ProgramID:      s.vault.ProgramID(),
		VaultAddress:   vaultAddress,
		RequestAddress: requestAddress,
		Mint:           mint,
		NetAmount:      w.NetAmount,
		ExpiresAt:      time.Now().UTC().Add(time.Duration(s.cfg.RequestExpirySeconds) * time.Second),
	}, nil
}

// ConfirmAtomic settles a prepared withdrawal against the user's claim
// signature
func (s *Service) ConfirmAtomic(ctx context.Context, userID, withdrawalID uuid.UUID, txSignature string) (*entities.Withdrawal, error) {
	if txSignature == "" {
		return nil, apperrors.ValidationError("tx_signature", "transaction signature is required")
	}

	w, err := s.withdrawals.GetByIDForUser(ctx, withdrawalID, userID)
	if err != nil {
		return nil, err
	}
	if w.Status != entities.WithdrawalStatusPending {
		return nil, apperrors.ConflictError("withdrawal", fmt.Sprintf("withdrawal is %s, not pending", w.Status))
	}

	confirmCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.ConfirmTimeoutSeconds)*time.Second)
	defer cancel()

	if err := s.chain.ConfirmTransaction(confirmCtx, txSignature); err != nil {
		s.rollbackHold(ctx, w, entities.WithdrawalStatusFailed, "claim transaction was not confirmed on chain")
		return nil, err
	}

	err = s.runTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.withdrawals.SetSignatureTx(ctx, tx, w.ID, txSignature); err != nil {
			return err
		}
		if err := s.withdrawals.UpdateStatusTx(ctx, tx, w.ID, entities.WithdrawalStatusPending, entities.WithdrawalStatusCompleted, nil); err != nil {
			return err
		}
		return s.audits.UpdateStatusByReferenceTx(ctx, tx, w.ID, entities.TransactionStatusCompleted)
	})
	if err != nil {
		return nil, err
	}

	w.Status = entities.WithdrawalStatusCompleted
	w.TxSignature = &txSignature
	now := time.Now().UTC()
	w.ProcessedAt = &now

	metrics.RecordWithdrawal(string(w.Method), "completed")
	s.publishSettled(ctx, w)

	s.log.Info("atomic withdrawal confirmed", "withdrawal_id", w.ID, "signature", txSignature)
	return w, nil
}

// CancelAtomic voids a pending withdrawal. Inside the on-chain claim window
// cancellation is refused: the user may have already signed a claim that just
// has not landed yet.
func (s *Service) CancelAtomic(ctx context.Context, userID, withdrawalID uuid.UUID) (*entities.Withdrawal, error) {
	w, err := s.withdrawals.GetByIDForUser(ctx, withdrawalID, userID)
	if err != nil {
		return nil, err
	}
	if w.Status != entities.WithdrawalStatusPending {
		return nil, apperrors.ConflictError("withdrawal", fmt.Sprintf("withdrawal is %s, not pending", w.Status))
	}

	if w.Method == entities.WithdrawalMethodWalletConnect && s.vault.Enabled() {
		req, err := s.vault.GetWithdrawalRequest(ctx, w.WalletAddress)
		if err != nil {
			return nil, err
		}
		if req != nil {
			if !req.IsExpired(time.Now().UTC()) {
				return nil, apperrors.ConflictError("withdrawal", "claim window is still open; claim the funds or wait for expiry")
			}
			if _, err := s.vault.CancelWithdrawalRequest(ctx, w.WalletAddress); err != nil {
				return nil, err
			}
		}
	}

	if err := s.rollbackHold(ctx, w, entities.WithdrawalStatusCancelled, "cancelled by user"); err != nil {
		return nil, err
	}

	metrics.RecordWithdrawal(string(w.Method), "cancelled")
	s.log.Info("withdrawal cancelled", "withdrawal_id", w.ID, "user_id", userID)
	return w, nil
}

// CreateInstant is the manual-address path: the payout wallet sends the net
// amount directly, no user signature involved
func (s *Service) CreateInstant(ctx context.Context, userID uuid.UUID, req *entities.InstantWithdrawalRequest) (*entities.Withdrawal, error) {
	dest, err := solanago.PublicKeyFromBase58(req.WalletAddress)
	if err != nil {
		return nil, apperrors.ValidationError("wallet_address", "invalid wallet address")
	}

	preview, err := s.Preview(ctx, userID, req.Amount)
	if err != nil {
		return nil, err
	}

	payoutWallet, ok := s.chain.PayoutWallet()
	if !ok {
		return nil, apperrors.NotConfiguredError("instant withdrawals")
	}
	mint, ok := s.chain.MintFor(entities.CurrencyUSDT)
	if !ok {
		return nil, apperrors.NotConfiguredError("instant withdrawals")
	}

	// Gate on payout liquidity without leaking the actual balance
	available, err := s.chain.GetTokenBalance(ctx, payoutWallet.String(), mint)
	if err != nil {
		return nil, err
	}
	if available.LessThan(preview.NetAmount) {
		return nil, apperrors.ServiceUnavailableError("withdrawals", fmt.Errorf("instant withdrawals are temporarily unavailable"))
	}

	w := newWithdrawal(userID, entities.WithdrawalMethodManualAddress, req.WalletAddress, preview)
	w.Status = entities.WithdrawalStatusProcessing

	if err := s.holdAndCreate(ctx, w); err != nil {
		return nil, err
	}

	// Best-effort float top-up; the liquidity check above already gated on
	// sufficiency
	if s.vault.Enabled() {
		if _, err := s.vault.Payout(ctx, w.NetAmount); err != nil {
			s.log.Warn("payout wallet top-up from vault failed, proceeding on existing balance",
				"withdrawal_id", w.ID, "error", err)
		}
	}

	sig, err := s.chain.TransferTokenFromPayout(ctx, dest, mint, entities.CurrencyUSDT.ToBaseUnits(w.NetAmount))
	if err != nil {
		s.rollbackHold(ctx, w, entities.WithdrawalStatusFailed, fmt.Sprintf("payout transfer failed: %v", err))
		return nil, err
	}

	err = s.runTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.withdrawals.SetSignatureTx(ctx, tx, w.ID, sig); err != nil {
			return err
		}
		if err := s.withdrawals.UpdateStatusTx(ctx, tx, w.ID, entities.WithdrawalStatusProcessing, entities.WithdrawalStatusCompleted, nil); err != nil {
			return err
		}
		return s.audits.UpdateStatusByReferenceTx(ctx, tx, w.ID, entities.TransactionStatusCompleted)
	})
	if err != nil {
		// The transfer landed; surface the bookkeeping failure instead of
		// rolling back a paid-out hold
		s.log.Error("instant withdrawal paid out but status update failed",
			"withdrawal_id", w.ID, "signature", sig, "error", err)
		return nil, err
	}

	w.Status = entities.WithdrawalStatusCompleted
	w.TxSignature = &sig
	now := time.Now().UTC()
	w.ProcessedAt = &now

	metrics.RecordWithdrawal(string(w.Method), "completed")
	s.publishSettled(ctx, w)

	s.log.Info("instant withdrawal completed", "withdrawal_id", w.ID, "signature", sig)
	return w, nil
}

// CancelExpired sweeps wallet-connect withdrawals whose claim window lapsed:
// cancel the escrow, restore the hold, mark cancelled. On-chain cancellation
// failures are left pending and retried next cycle.
func (s *Service) CancelExpired(ctx context.Context, limit int) (int, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(s.cfg.RequestExpirySeconds) * time.Second)
	expired, err := s.withdrawals.ListExpiredPending(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, w := range expired {
		if s.vault.Enabled() {
			req, err := s.vault.GetWithdrawalRequest(ctx, w.WalletAddress)
			if err != nil {
				s.log.Warn("expiry sweep: failed to read escrow, will retry",
					"withdrawal_id", w.ID, "error", err)
				continue
			}
			if req != nil {
				if !req.IsExpired(time.Now().UTC()) {
					continue
				}
				if _, err := s.vault.CancelWithdrawalRequest(ctx, w.WalletAddress); err != nil {
					s.log.Warn("expiry sweep: on-chain cancel failed, will retry",
						"withdrawal_id", w.ID, "error", err)
					continue
				}
			}
		}

		if err := s.rollbackHold(ctx, w, entities.WithdrawalStatusCancelled, "claim window expired without a confirmed claim"); err != nil {
			s.log.Error("expiry sweep: failed to restore hold", "withdrawal_id", w.ID, "error", err)
			continue
		}
		metrics.RecordWithdrawal(string(w.Method), "expired")
		cancelled++
	}

	return cancelled, nil
}

// ListWithdrawals returns the user's withdrawal history
func (s *Service) ListWithdrawals(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.Withdrawal, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.withdrawals.ListByUserID(ctx, userID, limit, offset)
}

// GetWithdrawal returns one withdrawal scoped to its owner
func (s *Service) GetWithdrawal(ctx context.Context, userID, withdrawalID uuid.UUID) (*entities.Withdrawal, error) {
	return s.withdrawals.GetByIDForUser(ctx, withdrawalID, userID)
}

func newWithdrawal(userID uuid.UUID, method entities.WithdrawalMethod, walletAddress string, preview *entities.WithdrawalPreview) *entities.Withdrawal {
	return &entities.Withdrawal{
		ID:               uuid.New(),
		UserID:           userID,
		Method:           method,
		Chain:            entities.ChainSolana,
		Currency:         entities.CurrencyUSDT,
		WalletAddress:    walletAddress,
		RequestedAmount:  preview.RequestedAmount,
		FromFreshDeposit: preview.FromFreshDeposit,
		FromProfit:       preview.FromProfit,
		TaxAmount:        preview.TaxAmount,
		TaxRate:          preview.TaxRate,
		NetAmount:        preview.NetAmount,
		UsdtAmount:       preview.NetAmount,
		CreatedAt:        time.Now().UTC(),
	}
}

// holdAndCreate debits the gross amount and records the withdrawal plus its
// pending audit row in one transaction
func (s *Service) holdAndCreate(ctx context.Context, w *entities.Withdrawal) error {
	return s.runTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.balances.HoldWithdrawalTx(ctx, tx, w.UserID, w.RequestedAmount, w.FromFreshDeposit); err != nil {
			return err
		}
		if err := s.withdrawals.CreateTx(ctx, tx, w); err != nil {
			return err
		}
		return s.audits.CreateTx(ctx, tx, &entities.Transaction{
			ID:          uuid.New(),
			UserID:      w.UserID,
			Type:        entities.TransactionTypeWithdrawal,
			AmountUSD:   w.RequestedAmount,
			Status:      entities.TransactionStatusPending,
			ReferenceID: w.ID,
			Description: fmt.Sprintf("%s withdrawal to %s", w.Method, w.WalletAddress),
		})
	})
}

// rollbackHold restores the balance and settles the row into a terminal
// status atomically
func (s *Service) rollbackHold(ctx context.Context, w *entities.Withdrawal, to entities.WithdrawalStatus, reason string) error {
	auditStatus := entities.TransactionStatusFailed
	if to == entities.WithdrawalStatusCancelled {
		auditStatus = entities.TransactionStatusCancelled
	}

	err := s.runTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.balances.ReleaseWithdrawalTx(ctx, tx, w.UserID, w.RequestedAmount, w.FromFreshDeposit); err != nil {
			return err
		}
		if err := s.withdrawals.UpdateStatusTx(ctx, tx, w.ID, w.Status, to, &reason); err != nil {
			return err
		}
		return s.audits.UpdateStatusByReferenceTx(ctx, tx, w.ID, auditStatus)
	})
	if err != nil {
		s.log.Error("failed to roll back withdrawal hold",
			"withdrawal_id", w.ID, "user_id", w.UserID, "error", err)
		return err
	}

	w.Status = to
	w.ErrorMessage = &reason
	return nil
}

func (s *Service) publishSettled(ctx context.Context, w *entities.Withdrawal) {
	events := []struct {
		topic string
		event queue.Event
	}{
		{queue.TopicWithdrawalSettled, queue.Event{Type: "withdrawal_settled", UserID: w.UserID.String(), Payload: w}},
		{queue.TopicBalanceUpdated, queue.Event{Type: "balance_updated", UserID: w.UserID.String()}},
	}
	for _, e := range events {
		if err := s.publisher.Publish(ctx, e.topic, e.event); err != nil {
			s.log.Warn("failed to publish withdrawal event", "topic", e.topic, "error", err)
		}
	}
}
