package deposit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/solfortune/custody-service/internal/domain/entities"
	domainErrors "github.com/solfortune/custody-service/internal/domain/errors"
)

// ManualInstructions returns the other-chain manual deposit flow. These
// chains have no webhook coverage; the user transfers, then submits the
// signature for operator review.
func (s *Service) ManualInstructions(ctx context.Context, currency entities.Currency) (*entities.ManualDepositInstructions, error) {
	if !currency.IsValid() {
		return nil, domainErrors.ValidationError("currency", "unsupported currency")
	}

	recipient, ok := s.hotWallet.HotWalletAddress()
	if !ok {
		return nil, domainErrors.NotConfiguredError("manual deposits")
	}

	return &entities.ManualDepositInstructions{
		Chain:            string(entities.ChainSolana),
		RecipientAddress: recipient,
		MinDeposit:       s.MinDeposit(currency).String(),
		Note:             "Transfer the exact amount and submit the transaction signature. Credits are applied after review.",
	}, nil
}

// SubmitManualClaim records a user-reported transfer as a pending deposit.
// It is never credited automatically; an operator confirms the transfer
// before the credit path runs.
func (s *Service) SubmitManualClaim(ctx context.Context, userID uuid.UUID, req *entities.ManualDepositClaimRequest) (*entities.Deposit, error) {
	if !req.Currency.IsValid() {
		return nil, domainErrors.ValidationError("currency", "unsupported currency")
	}
	min := s.MinDeposit(req.Currency)
	if req.Amount.LessThan(min) {
		return nil, domainErrors.ValidationError("amount", "amount is below the deposit minimum")
	}

	exists, err := s.deposits.ExistsBySignature(ctx, entities.ChainSolana, req.TxSignature)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domainErrors.ConflictError("deposit", "transaction signature already recorded")
	}

	deposit := &entities.Deposit{
		ID:          uuid.New(),
		UserID:      userID,
		Method:      entities.DepositMethodWalletConnect,
		Chain:       entities.ChainSolana,
		Currency:    req.Currency,
		Amount:      req.Amount,
		TxSignature: &req.TxSignature,
		Status:      entities.DepositStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.deposits.Create(ctx, deposit); err != nil {
		return nil, err
	}

	s.log.Info("manual deposit claim submitted",
		"user_id", userID.String(),
		"signature", req.TxSignature,
	)

	return deposit, nil
}
