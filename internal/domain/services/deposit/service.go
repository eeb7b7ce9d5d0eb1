package deposit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/solfortune/custody-service/internal/domain/entities"
	domainErrors "github.com/solfortune/custody-service/internal/domain/errors"
	"github.com/solfortune/custody-service/internal/infrastructure/config"
	"github.com/solfortune/custody-service/pkg/logger"
	"github.com/solfortune/custody-service/pkg/metrics"
)

// DepositRepository interface for deposit persistence
type DepositRepository interface {
	Create(ctx context.Context, deposit *entities.Deposit) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Deposit, error)
	GetBySignature(ctx context.Context, chain entities.Chain, signature string) (*entities.Deposit, error)
	ExistsBySignature(ctx context.Context, chain entities.Chain, signature string) (bool, error)
	GetPendingWalletConnect(ctx context.Context, userID uuid.UUID, currency entities.Currency) (*entities.Deposit, error)
	AttachSignature(ctx context.Context, id uuid.UUID, signature string) error
	ConfirmPending(ctx context.Context, id uuid.UUID, currency entities.Currency, amount decimal.Decimal, signature string, slot int64) error
	ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.Deposit, error)
}

// DepositAddressRepository interface for deposit address persistence
type DepositAddressRepository interface {
	AllocateIndex(ctx context.Context, chain entities.Chain) (uint32, error)
	Create(ctx context.Context, addr *entities.DepositAddress) error
	GetByUserAndChain(ctx context.Context, userID uuid.UUID, chain entities.Chain) (*entities.DepositAddress, error)
	GetByAddress(ctx context.Context, chain entities.Chain, address string) (*entities.DepositAddress, error)
	ListActive(ctx context.Context, chain entities.Chain) ([]*entities.DepositAddress, error)
	SetWebhookID(ctx context.Context, id uuid.UUID, webhookID string) error
}

// WalletConnectionRepository interface for declared wallet persistence
type WalletConnectionRepository interface {
	Upsert(ctx context.Context, conn *entities.WalletConnection) error
	GetByUserAndChain(ctx context.Context, userID uuid.UUID, chain entities.Chain) (*entities.WalletConnection, error)
	GetByAddress(ctx context.Context, chain entities.Chain, address string) (*entities.WalletConnection, error)
}

// AddressDeriver derives per-user deposit addresses from the master seed
type AddressDeriver interface {
	IsConfigured() bool
	DeriveAddress(index uint32) (string, error)
}

// WebhookRegistrar subscribes an address with the chain-data provider.
// Registration failures are non-fatal; the sweep still finds the funds.
type WebhookRegistrar interface {
	RegisterAddress(ctx context.Context, address string) (string, error)
}

// Creditor applies the atomic credit step to a confirmed deposit
type Creditor interface {
	Credit(ctx context.Context, deposit *entities.Deposit) error
}

// HotWalletSource exposes the shared custody address transfers are declared
// against
type HotWalletSource interface {
	HotWalletAddress() (string, bool)
}

// Service is the deposit intake orchestrator: wallet-connect intents,
// generated addresses, and webhook ingestion
type Service struct {
	deposits    DepositRepository
	addresses   DepositAddressRepository
	connections WalletConnectionRepository
	deriver     AddressDeriver
	registrar   WebhookRegistrar
	creditor    Creditor
	hotWallet   HotWalletSource
	registry    *AddressRegistry
	parser      *Parser
	cfg         config.DepositConfig
	log         *logger.Logger
}

// NewService creates the deposit intake orchestrator
func NewService(
	deposits DepositRepository,
	addresses DepositAddressRepository,
	connections WalletConnectionRepository,
	deriver AddressDeriver,
	registrar WebhookRegistrar,
	creditor Creditor,
	hotWallet HotWalletSource,
	registry *AddressRegistry,
	parser *Parser,
	cfg config.DepositConfig,
	log *logger.Logger,
) *Service {
	return &Service{
		deposits:    deposits,
		addresses:   addresses,
		connections: connections,
		deriver:     deriver,
		registrar:   registrar,
		creditor:    creditor,
		hotWallet:   hotWallet,
		registry:    registry,
		parser:      parser,
		cfg:         cfg,
		log:         log,
	}
}

// LoadRegistry seeds the monitored-address registry from persisted state.
// Called once at startup, before the webhook route is served.
func (s *Service) LoadRegistry(ctx context.Context) error {
	if addr, ok := s.hotWallet.HotWalletAddress(); ok {
		s.registry.Add(entities.ChainSolana, addr)
	}

	active, err := s.addresses.ListActive(ctx, entities.ChainSolana)
	if err != nil {
		return fmt.Errorf("failed to load active deposit addresses: %w", err)
	}
	for _, a := range active {
		s.registry.Add(a.Chain, a.Address)
	}

	s.log.Info("monitored address registry loaded", "count", s.registry.Size(entities.ChainSolana))
	return nil
}

// ConnectWallet upserts the user's declared non-custodial wallet
func (s *Service) ConnectWallet(ctx context.Context, userID uuid.UUID, walletAddress string) error {
	if walletAddress == "" {
		return domainErrors.ValidationError("wallet_address", "wallet address is required")
	}

	conn := &entities.WalletConnection{
		ID:            uuid.New(),
		UserID:        userID,
		Chain:         entities.ChainSolana,
		WalletAddress: walletAddress,
	}
	return s.connections.Upsert(ctx, conn)
}

// GetConnectedWallet returns the user's declared wallet
func (s *Service) GetConnectedWallet(ctx context.Context, userID uuid.UUID) (*entities.WalletConnection, error) {
	return s.connections.GetByUserAndChain(ctx, userID, entities.ChainSolana)
}

// MinDeposit returns the intake minimum for a currency in asset-native units
func (s *Service) MinDeposit(currency entities.Currency) decimal.Decimal {
	switch currency {
	case entities.CurrencySOL:
		return decimal.NewFromFloat(s.cfg.MinSOL)
	case entities.CurrencyUSDT:
		return decimal.NewFromFloat(s.cfg.MinUSDT)
	case entities.CurrencyFORT:
		return decimal.NewFromFloat(s.cfg.MinFort)
	default:
		return decimal.Zero
	}
}

// InitiateWalletDeposit records a wallet-connect intent and returns what the
// client needs to build and sign the transfer itself. Nothing is credited
// here; crediting waits for the webhook's independent observation.
func (s *Service) InitiateWalletDeposit(ctx context.Context, userID uuid.UUID, req *entities.InitiateDepositRequest) (*entities.InitiateDepositResponse, error) {
	if !req.Currency.IsValid() {
		return nil, domainErrors.ValidationError("currency", fmt.Sprintf("unsupported currency: %s", req.Currency))
	}

	min := s.MinDeposit(req.Currency)
	if req.Amount.LessThan(min) {
		return nil, domainErrors.ValidationError("amount",
			fmt.Sprintf("minimum deposit is %s %s", min.String(), req.Currency))
	}

	recipient, ok := s.hotWallet.HotWalletAddress()
	if !ok {
		return nil, domainErrors.NotConfiguredError("wallet-connect deposits")
	}

	memo := uuid.NewString()
	deposit := &entities.Deposit{
		ID:        uuid.New(),
		UserID:    userID,
		Method:    entities.DepositMethodWalletConnect,
		Chain:     entities.ChainSolana,
		Currency:  req.Currency,
		Amount:    req.Amount,
		Memo:      &memo,
		Status:    entities.DepositStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.deposits.Create(ctx, deposit); err != nil {
		return nil, err
	}

	if req.WalletAddress != "" {
		if err := s.ConnectWallet(ctx, userID, req.WalletAddress); err != nil {
			return nil, err
		}
	}

	return &entities.InitiateDepositResponse{
		DepositID:        deposit.ID,
		Memo:             memo,
		RecipientAddress: recipient,
		Amount:           req.Amount,
		Currency:         req.Currency,
	}, nil
}

// ConfirmWalletDeposit attaches the client-reported signature to its intent
// row. Deliberately fail-closed: the row stays pending until the webhook
// observes the transfer, so a client lying about having sent funds gains
// nothing.
func (s *Service) ConfirmWalletDeposit(ctx context.Context, userID, depositID uuid.UUID, signature string) error {
	if signature == "" {
		return domainErrors.ValidationError("tx_signature", "transaction signature is required")
	}

	deposit, err := s.deposits.GetByID(ctx, depositID)
	if err != nil {
		return err
	}
	if deposit.UserID != userID {
		return domainErrors.NotFoundError("deposit")
	}
	if deposit.Method != entities.DepositMethodWalletConnect || deposit.Status != entities.DepositStatusPending {
		return domainErrors.ValidationError("deposit_id", "deposit is not awaiting confirmation")
	}

	if existing, err := s.deposits.GetBySignature(ctx, deposit.Chain, signature); err == nil && existing.ID != depositID {
		return domainErrors.ConflictError("deposit", "transaction signature already recorded")
	}

	return s.deposits.AttachSignature(ctx, depositID, signature)
}

// GetOrCreateDepositAddress returns the user's per-chain custodial address,
// creating it on first request
func (s *Service) GetOrCreateDepositAddress(ctx context.Context, userID uuid.UUID) (*entities.DepositAddressInfo, error) {
	if !s.deriver.IsConfigured() {
		return nil, domainErrors.NotConfiguredError("deposit addresses")
	}

	addr, err := s.addresses.GetByUserAndChain(ctx, userID, entities.ChainSolana)
	if err != nil {
		if !domainErrors.IsNotFound(err) {
			return nil, err
		}
		addr, err = s.createDepositAddress(ctx, userID)
		if err != nil {
			return nil, err
		}
	}

	return &entities.DepositAddressInfo{
		Chain:      addr.Chain,
		Address:    addr.Address,
		URI:        fmt.Sprintf("solana:%s", addr.Address),
		MinDeposit: s.MinDeposit(entities.CurrencySOL).String(),
	}, nil
}

func (s *Service) createDepositAddress(ctx context.Context, userID uuid.UUID) (*entities.DepositAddress, error) {
	index, err := s.addresses.AllocateIndex(ctx, entities.ChainSolana)
	if err != nil {
		return nil, err
	}

	address, err := s.deriver.DeriveAddress(index)
	if err != nil {
		return nil, fmt.Errorf("failed to derive deposit address: %w", err)
	}

	addr := &entities.DepositAddress{
		ID:              uuid.New(),
		UserID:          userID,
		Chain:           entities.ChainSolana,
		Address:         address,
		DerivationIndex: index,
		IsActive:        true,
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.addresses.Create(ctx, addr); err != nil {
		// A concurrent first request won the race; use its row. The
		// allocated index is burned, which is harmless.
		if domainErrors.IsConflict(err) {
			return s.addresses.GetByUserAndChain(ctx, userID, entities.ChainSolana)
		}
		return nil, err
	}

	s.registry.Add(addr.Chain, addr.Address)

	// Provider registration is best effort; without it the address still
	// works through sweeps
	if s.registrar != nil {
		if webhookID, err := s.registrar.RegisterAddress(ctx, address); err != nil {
			s.log.Warn("webhook registration failed for deposit address",
				"address", address, "error", err)
		} else if err := s.addresses.SetWebhookID(ctx, addr.ID, webhookID); err != nil {
			s.log.Warn("failed to persist webhook id", "address", address, "error", err)
		}
	}

	s.log.Info("deposit address created",
		"user_id", userID.String(),
		"address", address,
		"derivation_index", index,
	)

	return addr, nil
}

// ListDeposits returns a user's deposits, newest first
func (s *Service) ListDeposits(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.Deposit, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.deposits.ListByUserID(ctx, userID, limit, offset)
}

// GetDeposit returns one deposit scoped to its owner
func (s *Service) GetDeposit(ctx context.Context, userID, depositID uuid.UUID) (*entities.Deposit, error) {
	deposit, err := s.deposits.GetByID(ctx, depositID)
	if err != nil {
		return nil, err
	}
	if deposit.UserID != userID {
		return nil, domainErrors.NotFoundError("deposit")
	}
	return deposit, nil
}

// IngestWebhook processes one enhanced-transaction batch. Each transfer is
// isolated: a failure is counted and logged, never aborts the batch.
func (s *Service) IngestWebhook(ctx context.Context, batch entities.EnhancedTransactionBatch) (*entities.IngestResult, error) {
	transfers := s.parser.Parse(entities.ChainSolana, batch)

	result := &entities.IngestResult{}
	for _, transfer := range transfers {
		if err := s.ingestTransfer(ctx, transfer); err != nil {
			if domainErrors.IsConflict(err) {
				// Duplicate delivery settled by the unique index
				metrics.RecordWebhookEvent("duplicate")
				result.Skipped++
				continue
			}
			s.log.Error("failed to ingest transfer",
				"signature", transfer.Signature,
				"to", transfer.ToAddress,
				"error", err,
			)
			metrics.RecordWebhookEvent("error")
			result.Skipped++
			continue
		}
		metrics.RecordWebhookEvent("processed")
		result.Processed++
	}

	return result, nil
}

func (s *Service) ingestTransfer(ctx context.Context, transfer entities.ParsedTransfer) error {
	// Dedup gate: a signature observed before is only interesting if it
	// matches a still-pending wallet-connect intent
	existing, err := s.deposits.GetBySignature(ctx, entities.ChainSolana, transfer.Signature)
	if err == nil {
		if existing.Method == entities.DepositMethodWalletConnect && existing.Status == entities.DepositStatusPending {
			return s.confirmAndCredit(ctx, existing.ID, transfer)
		}
		return domainErrors.ConflictError("deposit", "transaction signature already recorded")
	}
	if !domainErrors.IsNotFound(err) {
		return err
	}

	userID, method, err := s.resolveUser(ctx, transfer)
	if err != nil {
		return err
	}

	if method == entities.DepositMethodWalletConnect {
		// Unsigned intent rows can't be found by signature; match the
		// user's oldest open intent in the observed currency instead. A
		// transfer with no matching intent falls through to a fresh
		// confirmed deposit.
		intent, err := s.deposits.GetPendingWalletConnect(ctx, userID, transfer.Currency)
		if err == nil {
			return s.confirmAndCredit(ctx, intent.ID, transfer)
		}
		if !domainErrors.IsNotFound(err) {
			return err
		}
		// No intent: funds arrived at the hot wallet from a connected
		// wallet without a declared deposit. Credit it anyway.
	}

	deposit := &entities.Deposit{
		ID:          uuid.New(),
		UserID:      userID,
		Method:      method,
		Chain:       entities.ChainSolana,
		Currency:    transfer.Currency,
		Amount:      transfer.Amount,
		TxSignature: &transfer.Signature,
		Slot:        &transfer.Slot,
		Status:      entities.DepositStatusConfirmed,
		CreatedAt:   time.Now().UTC(),
	}
	now := time.Now().UTC()
	deposit.ConfirmedAt = &now

	if err := s.deposits.Create(ctx, deposit); err != nil {
		return err
	}
	metrics.RecordDeposit(string(method), string(transfer.Currency), "confirmed")

	return s.creditor.Credit(ctx, deposit)
}

func (s *Service) confirmAndCredit(ctx context.Context, depositID uuid.UUID, transfer entities.ParsedTransfer) error {
	if err := s.deposits.ConfirmPending(ctx, depositID, transfer.Currency, transfer.Amount, transfer.Signature, transfer.Slot); err != nil {
		return err
	}

	deposit, err := s.deposits.GetByID(ctx, depositID)
	if err != nil {
		return err
	}
	metrics.RecordDeposit(string(deposit.Method), string(deposit.Currency), "confirmed")

	return s.creditor.Credit(ctx, deposit)
}

// resolveUser attributes a transfer to a user: hot-wallet destinations match
// by declared sender, derived addresses match by destination
func (s *Service) resolveUser(ctx context.Context, transfer entities.ParsedTransfer) (uuid.UUID, entities.DepositMethod, error) {
	if hotAddr, ok := s.hotWallet.HotWalletAddress(); ok && transfer.ToAddress == hotAddr {
		conn, err := s.connections.GetByAddress(ctx, entities.ChainSolana, transfer.FromAddress)
		if err != nil {
			if domainErrors.IsNotFound(err) {
				// Funds arrived but nobody claims the sender address.
				// Operational alert, not a crash.
				s.log.Error("unattributable hot wallet transfer",
					"signature", transfer.Signature,
					"from", transfer.FromAddress,
					"amount", transfer.Amount.String(),
					"currency", transfer.Currency,
				)
			}
			return uuid.Nil, "", err
		}
		return conn.UserID, entities.DepositMethodWalletConnect, nil
	}

	addr, err := s.addresses.GetByAddress(ctx, entities.ChainSolana, transfer.ToAddress)
	if err != nil {
		if domainErrors.IsNotFound(err) {
			s.log.Error("transfer to unknown monitored address",
				"signature", transfer.Signature,
				"to", transfer.ToAddress,
			)
		}
		return uuid.Nil, "", err
	}
	return addr.UserID, entities.DepositMethodDepositAddress, nil
}
