package treasury

import (
	"bytes"
	"context"
	"fmt"
	"time"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/shopspring/decimal"

	"github.com/solfortune/custody-service/internal/domain/entities"
	apperrors "github.com/solfortune/custody-service/internal/domain/errors"
	"github.com/solfortune/custody-service/internal/infrastructure/config"
	"github.com/solfortune/custody-service/pkg/logger"
)

// ChainGateway is the chain surface the vault bridge uses
type ChainGateway interface {
	GetAccountData(ctx context.Context, address solanago.PublicKey) ([]byte, error)
	SendWithHotWallet(ctx context.Context, instrs []solanago.Instruction) (string, error)
	HotWallet() (solanago.PublicKey, bool)
	PayoutWallet() (solanago.PublicKey, bool)
	MintFor(currency entities.Currency) (solanago.PublicKey, bool)
}

// Service bridges to the pooled-custody on-chain program. Deposits and
// payouts move the stablecoin between the hot wallet and the vault; per-user
// withdrawal requests are escrow PDAs claimable only by the user's own
// signature.
type Service struct {
	chain     ChainGateway
	cfg       config.TreasuryConfig
	log       *logger.Logger
	programID solanago.PublicKey
	enabled   bool
}

// NewService creates the vault bridge. A disabled flag or missing program id
// yields a disabled bridge; every operation then reports not-configured.
func NewService(chain ChainGateway, cfg config.TreasuryConfig, log *logger.Logger) (*Service, error) {
	s := &Service{chain: chain, cfg: cfg, log: log}
	if !cfg.Enabled || cfg.ProgramID == "" {
		return s, nil
	}

	programID, err := solanago.PublicKeyFromBase58(cfg.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("invalid vault program id: %w", err)
	}
	s.programID = programID
	s.enabled = true
	return s, nil
}

// Enabled reports whether the vault bridge is operational
func (s *Service) Enabled() bool {
	return s.enabled
}

// ProgramID returns the vault program address
func (s *Service) ProgramID() string {
	return s.programID.String()
}

// Mint returns the stablecoin mint the vault pools
func (s *Service) Mint() (string, error) {
	mint, ok := s.chain.MintFor(entities.CurrencyUSDT)
	if !ok {
		return "", apperrors.NotConfiguredError("vault mint")
	}
	return mint.String(), nil
}

// VaultAddress returns the vault's pooled token account address
func (s *Service) VaultAddress() (string, error) {
	if err := s.requireEnabled(); err != nil {
		return "", err
	}
	addr, err := vaultTokenPDA(s.programID)
	if err != nil {
		return "", err
	}
	return addr.String(), nil
}

// RequestAddressFor derives the escrow PDA for a user wallet
func (s *Service) RequestAddressFor(userAddress string) (string, error) {
	if err := s.requireEnabled(); err != nil {
		return "", err
	}
	user, err := solanago.PublicKeyFromBase58(userAddress)
	if err != nil {
		return "", apperrors.ValidationError("user_address", "invalid wallet address")
	}
	addr, err := withdrawalRequestPDA(s.programID, user)
	if err != nil {
		return "", err
	}
	return addr.String(), nil
}

// GetVaultState reads and decodes the program's state account
func (s *Service) GetVaultState(ctx context.Context) (*entities.VaultState, error) {
	if err := s.requireEnabled(); err != nil {
		return nil, err
	}

	stateAddr, err := vaultStatePDA(s.programID)
	if err != nil {
		return nil, err
	}

	data, err := s.chain.GetAccountData(ctx, stateAddr)
	if err != nil {
		return nil, err
	}

	var raw vaultStateAccount
	if err := decodeAccount("VaultState", data, &raw); err != nil {
		return nil, err
	}

	return &entities.VaultState{
		Authority:      raw.Authority.String(),
		PayoutWallet:   raw.PayoutWallet.String(),
		Mint:           raw.Mint.String(),
		TotalDeposited: entities.CurrencyUSDT.FromBaseUnits(raw.TotalDeposited),
		TotalPaidOut:   entities.CurrencyUSDT.FromBaseUnits(raw.TotalPaidOut),
		Paused:         raw.Paused,
	}, nil
}

// GetWithdrawalRequest reads the user's escrow PDA. A nil result means no
// active request; never-created and already-resolved both read as nil.
func (s *Service) GetWithdrawalRequest(ctx context.Context, userAddress string) (*entities.VaultWithdrawalRequest, error) {
	if err := s.requireEnabled(); err != nil {
		return nil, err
	}

	user, err := solanago.PublicKeyFromBase58(userAddress)
	if err != nil {
		return nil, apperrors.ValidationError("user_address", "invalid wallet address")
	}

	requestAddr, err := withdrawalRequestPDA(s.programID, user)
	if err != nil {
		return nil, err
	}

	data, err := s.chain.GetAccountData(ctx, requestAddr)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	var raw withdrawalRequestAccount
	if err := decodeAccount("WithdrawalRequest", data, &raw); err != nil {
		return nil, err
	}

	return &entities.VaultWithdrawalRequest{
		UserAddress: raw.User.String(),
		Amount:      entities.CurrencyUSDT.FromBaseUnits(raw.Amount),
		ExpiresAt:   time.Unix(raw.ExpiresAt, 0).UTC(),
	}, nil
}

type amountArgs struct {
	Amount uint64
}

type createRequestArgs struct {
	Amount    uint64
	ExpiresAt int64
}

// Deposit moves stablecoin from the hot wallet into the vault
func (s *Service) Deposit(ctx context.Context, usdAmount decimal.Decimal) (string, error) {
	if err := s.requireEnabled(); err != nil {
		return "", err
	}
	if usdAmount.LessThanOrEqual(decimal.Zero) {
		return "", apperrors.ValidationError("amount", "amount must be positive")
	}

	accounts, err := s.transferAccounts(true)
	if err != nil {
		return "", err
	}

	data, err := encodeInstruction("deposit", amountArgs{Amount: entities.CurrencyUSDT.ToBaseUnits(usdAmount)})
	if err != nil {
		return "", err
	}

	sig, err := s.chain.SendWithHotWallet(ctx, []solanago.Instruction{
		solanago.NewInstruction(s.programID, accounts, data),
	})
	if err != nil {
		return "", s.txFailed("deposit", err)
	}

	s.log.Info("vault deposit submitted", "amount_usd", usdAmount.String(), "signature", sig)
	return sig, nil
}

// Payout moves stablecoin from the vault to the payout wallet
func (s *Service) Payout(ctx context.Context, usdAmount decimal.Decimal) (string, error) {
	if err := s.requireEnabled(); err != nil {
		return "", err
	}
	if usdAmount.LessThanOrEqual(decimal.Zero) {
		return "", apperrors.ValidationError("amount", "amount must be positive")
	}

	accounts, err := s.transferAccounts(false)
	if err != nil {
		return "", err
	}

	data, err := encodeInstruction("payout", amountArgs{Amount: entities.CurrencyUSDT.ToBaseUnits(usdAmount)})
	if err != nil {
		return "", err
	}

	sig, err := s.chain.SendWithHotWallet(ctx, []solanago.Instruction{
		solanago.NewInstruction(s.programID, accounts, data),
	})
	if err != nil {
		return "", s.txFailed("payout", err)
	}

	s.log.Info("vault payout submitted", "amount_usd", usdAmount.String(), "signature", sig)
	return sig, nil
}

// CreateWithdrawalRequest escrows a claim for the user's wallet. Once created
// only that wallet's signature can claim it; the authority can merely cancel
// after expiry.
func (s *Service) CreateWithdrawalRequest(ctx context.Context, userAddress string, usdAmount decimal.Decimal, expirySeconds int) (string, error) {
	if err := s.requireEnabled(); err != nil {
		return "", err
	}
	if usdAmount.LessThanOrEqual(decimal.Zero) {
		return "", apperrors.ValidationError("amount", "amount must be positive")
	}

	user, err := solanago.PublicKeyFromBase58(userAddress)
	if err != nil {
		return "", apperrors.ValidationError("user_address", "invalid wallet address")
	}

	authority, ok := s.chain.HotWallet()
	if !ok {
		return "", apperrors.NotConfiguredError("hot wallet")
	}

	stateAddr, err := vaultStatePDA(s.programID)
	if err != nil {
		return "", err
	}
	requestAddr, err := withdrawalRequestPDA(s.programID, user)
	if err != nil {
		return "", err
	}

	expiresAt := time.Now().Add(time.Duration(expirySeconds) * time.Second).Unix()
	data, err := encodeInstruction("create_withdrawal_request", createRequestArgs{
		Amount:    entities.CurrencyUSDT.ToBaseUnits(usdAmount),
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return "", err
	}

	accounts := solanago.AccountMetaSlice{
		solanago.NewAccountMeta(stateAddr, true, false),
		solanago.NewAccountMeta(requestAddr, true, false),
		solanago.NewAccountMeta(user, false, false),
		solanago.NewAccountMeta(authority, true, true),
		solanago.NewAccountMeta(solanago.SystemProgramID, false, false),
	}

	sig, err := s.chain.SendWithHotWallet(ctx, []solanago.Instruction{
		solanago.NewInstruction(s.programID, accounts, data),
	})
	if err != nil {
		return "", s.txFailed("create_withdrawal_request", err)
	}

	s.log.Info("vault withdrawal request created",
		"user_address", userAddress,
		"amount_usd", usdAmount.String(),
		"signature", sig,
	)
	return sig, nil
}

// CancelWithdrawalRequest voids an expired escrow and returns its funds to
// the vault. The program rejects cancellation inside the claim window.
func (s *Service) CancelWithdrawalRequest(ctx context.Context, userAddress string) (string, error) {
	if err := s.requireEnabled(); err != nil {
		return "", err
	}

	user, err := solanago.PublicKeyFromBase58(userAddress)
	if err != nil {
		return "", apperrors.ValidationError("user_address", "invalid wallet address")
	}

	authority, ok := s.chain.HotWallet()
	if !ok {
		return "", apperrors.NotConfiguredError("hot wallet")
	}

	stateAddr, err := vaultStatePDA(s.programID)
	if err != nil {
		return "", err
	}
	requestAddr, err := withdrawalRequestPDA(s.programID, user)
	if err != nil {
		return "", err
	}
	vaultToken, err := vaultTokenPDA(s.programID)
	if err != nil {
		return "", err
	}

	data := encodeBareInstruction("cancel_withdrawal_request")

	accounts := solanago.AccountMetaSlice{
		solanago.NewAccountMeta(stateAddr, true, false),
		solanago.NewAccountMeta(requestAddr, true, false),
		solanago.NewAccountMeta(vaultToken, true, false),
		solanago.NewAccountMeta(authority, true, true),
		solanago.NewAccountMeta(token.ProgramID, false, false),
	}

	sig, err := s.chain.SendWithHotWallet(ctx, []solanago.Instruction{
		solanago.NewInstruction(s.programID, accounts, data),
	})
	if err != nil {
		return "", s.txFailed("cancel_withdrawal_request", err)
	}

	s.log.Info("vault withdrawal request cancelled", "user_address", userAddress, "signature", sig)
	return sig, nil
}

// transferAccounts builds the account list shared by deposit and payout.
// Deposits debit the hot wallet's token account; payouts credit the payout
// wallet's.
func (s *Service) transferAccounts(deposit bool) (solanago.AccountMetaSlice, error) {
	authority, ok := s.chain.HotWallet()
	if !ok {
		return nil, apperrors.NotConfiguredError("hot wallet")
	}

	mint, ok := s.chain.MintFor(entities.CurrencyUSDT)
	if !ok {
		return nil, apperrors.NotConfiguredError("vault mint")
	}

	counterparty := authority
	if !deposit {
		payout, ok := s.chain.PayoutWallet()
		if !ok {
			return nil, apperrors.NotConfiguredError("payout wallet")
		}
		counterparty = payout
	}

	counterpartyATA, _, err := solanago.FindAssociatedTokenAddress(counterparty, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive token account: %w", err)
	}

	stateAddr, err := vaultStatePDA(s.programID)
	if err != nil {
		return nil, err
	}
	vaultToken, err := vaultTokenPDA(s.programID)
	if err != nil {
		return nil, err
	}

	return solanago.AccountMetaSlice{
		solanago.NewAccountMeta(stateAddr, true, false),
		solanago.NewAccountMeta(vaultToken, true, false),
		solanago.NewAccountMeta(counterpartyATA, true, false),
		solanago.NewAccountMeta(authority, true, true),
		solanago.NewAccountMeta(token.ProgramID, false, false),
	}, nil
}

func (s *Service) requireEnabled() error {
	if !s.enabled {
		return apperrors.NotConfiguredError("vault bridge")
	}
	return nil
}

// txFailed keeps on-chain failure detail out of caller-visible messages;
// callers must not assume partial success
func (s *Service) txFailed(operation string, err error) error {
	s.log.Error("vault transaction failed", "operation", operation, "error", err)
	return apperrors.ChainUnavailableError("vault transaction", fmt.Errorf("transaction failed"))
}

func encodeInstruction(name string, args interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(instructionDiscriminator(name))
	if err := bin.NewBorshEncoder(buf).Encode(args); err != nil {
		return nil, fmt.Errorf("failed to encode %s args: %w", name, err)
	}
	return buf.Bytes(), nil
}

func encodeBareInstruction(name string) []byte {
	return instructionDiscriminator(name)
}
