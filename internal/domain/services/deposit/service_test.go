package deposit

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solfortune/custody-service/internal/domain/entities"
	domainErrors "github.com/solfortune/custody-service/internal/domain/errors"
	"github.com/solfortune/custody-service/internal/infrastructure/config"
	"github.com/solfortune/custody-service/pkg/logger"
)

// MockDepositRepository implements DepositRepository in memory
type MockDepositRepository struct {
	byID map[uuid.UUID]*entities.Deposit
}

func NewMockDepositRepository() *MockDepositRepository {
	return &MockDepositRepository{byID: make(map[uuid.UUID]*entities.Deposit)}
}

func (m *MockDepositRepository) Create(ctx context.Context, deposit *entities.Deposit) error {
	if deposit.TxSignature != nil {
		for _, d := range m.byID {
			if d.TxSignature != nil && *d.TxSignature == *deposit.TxSignature {
				return domainErrors.ConflictError("deposit", "transaction signature already recorded")
			}
		}
	}
	copied := *deposit
	m.byID[deposit.ID] = &copied
	return nil
}

func (m *MockDepositRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Deposit, error) {
	if d, ok := m.byID[id]; ok {
		copied := *d
		return &copied, nil
	}
	return nil, domainErrors.NotFoundError("deposit")
}

func (m *MockDepositRepository) GetBySignature(ctx context.Context, chain entities.Chain, signature string) (*entities.Deposit, error) {
	for _, d := range m.byID {
		if d.TxSignature != nil && *d.TxSignature == signature {
			copied := *d
			return &copied, nil
		}
	}
	return nil, domainErrors.NotFoundError("deposit")
}

func (m *MockDepositRepository) ExistsBySignature(ctx context.Context, chain entities.Chain, signature string) (bool, error) {
	_, err := m.GetBySignature(ctx, chain, signature)
	return err == nil, nil
}

func (m *MockDepositRepository) GetPendingWalletConnect(ctx context.Context, userID uuid.UUID, currency entities.Currency) (*entities.Deposit, error) {
	for _, d := range m.byID {
		if d.UserID == userID && d.Method == entities.DepositMethodWalletConnect &&
			d.Status == entities.DepositStatusPending && d.Currency == currency {
			copied := *d
			return &copied, nil
		}
	}
	return nil, domainErrors.NotFoundError("deposit intent")
}

func (m *MockDepositRepository) AttachSignature(ctx context.Context, id uuid.UUID, signature string) error {
	d, ok := m.byID[id]
	if !ok || d.TxSignature != nil {
		return domainErrors.NotFoundError("deposit intent")
	}
	d.TxSignature = &signature
	return nil
}

func (m *MockDepositRepository) ConfirmPending(ctx context.Context, id uuid.UUID, currency entities.Currency, amount decimal.Decimal, signature string, slot int64) error {
	d, ok := m.byID[id]
	if !ok {
		return domainErrors.NotFoundError("deposit")
	}
	if d.Status != entities.DepositStatusPending {
		return domainErrors.ConflictError("deposit", "deposit is no longer pending")
	}
	d.Currency = currency
	d.Amount = amount
	d.TxSignature = &signature
	d.Slot = &slot
	d.Status = entities.DepositStatusConfirmed
	return nil
}

func (m *MockDepositRepository) ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.Deposit, error) {
	out := []*entities.Deposit{}
	for _, d := range m.byID {
		if d.UserID == userID {
			copied := *d
			out = append(out, &copied)
		}
	}
	return out, nil
}

// MockDepositAddressRepository implements DepositAddressRepository in memory
type MockDepositAddressRepository struct {
	nextIndex  uint32
	byUser     map[uuid.UUID]*entities.DepositAddress
	webhookIDs map[uuid.UUID]string
}

func NewMockDepositAddressRepository() *MockDepositAddressRepository {
	return &MockDepositAddressRepository{
		byUser:     make(map[uuid.UUID]*entities.DepositAddress),
		webhookIDs: make(map[uuid.UUID]string),
	}
}

func (m *MockDepositAddressRepository) AllocateIndex(ctx context.Context, chain entities.Chain) (uint32, error) {
	index := m.nextIndex
	m.nextIndex++
	return index, nil
}

func (m *MockDepositAddressRepository) Create(ctx context.Context, addr *entities.DepositAddress) error {
	m.byUser[addr.UserID] = addr
	return nil
}

func (m *MockDepositAddressRepository) GetByUserAndChain(ctx context.Context, userID uuid.UUID, chain entities.Chain) (*entities.DepositAddress, error) {
	if addr, ok := m.byUser[userID]; ok {
		return addr, nil
	}
	return nil, domainErrors.NotFoundError("deposit address")
}

func (m *MockDepositAddressRepository) GetByAddress(ctx context.Context, chain entities.Chain, address string) (*entities.DepositAddress, error) {
	for _, addr := range m.byUser {
		if addr.Address == address {
			return addr, nil
		}
	}
	return nil, domainErrors.NotFoundError("deposit address")
}

func (m *MockDepositAddressRepository) ListActive(ctx context.Context, chain entities.Chain) ([]*entities.DepositAddress, error) {
	out := []*entities.DepositAddress{}
	for _, addr := range m.byUser {
		out = append(out, addr)
	}
	return out, nil
}

func (m *MockDepositAddressRepository) SetWebhookID(ctx context.Context, id uuid.UUID, webhookID string) error {
	m.webhookIDs[id] = webhookID
	return nil
}

// MockWalletConnectionRepository implements WalletConnectionRepository in memory
type MockWalletConnectionRepository struct {
	byUser map[uuid.UUID]*entities.WalletConnection
}

func NewMockWalletConnectionRepository() *MockWalletConnectionRepository {
	return &MockWalletConnectionRepository{byUser: make(map[uuid.UUID]*entities.WalletConnection)}
}

func (m *MockWalletConnectionRepository) Upsert(ctx context.Context, conn *entities.WalletConnection) error {
	m.byUser[conn.UserID] = conn
	return nil
}

func (m *MockWalletConnectionRepository) GetByUserAndChain(ctx context.Context, userID uuid.UUID, chain entities.Chain) (*entities.WalletConnection, error) {
	if conn, ok := m.byUser[userID]; ok {
		return conn, nil
	}
	return nil, domainErrors.NotFoundError("wallet connection")
}

func (m *MockWalletConnectionRepository) GetByAddress(ctx context.Context, chain entities.Chain, address string) (*entities.WalletConnection, error) {
	for _, conn := range m.byUser {
		if conn.WalletAddress == address {
			return conn, nil
		}
	}
	return nil, domainErrors.NotFoundError("wallet connection")
}

// MockDeriver implements AddressDeriver with predictable addresses
type MockDeriver struct{ configured bool }

func (m *MockDeriver) IsConfigured() bool { return m.configured }

func (m *MockDeriver) DeriveAddress(index uint32) (string, error) {
	if !m.configured {
		return "", fmt.Errorf("master seed not configured")
	}
	return fmt.Sprintf("Derived%dAddr", index), nil
}

// MockRegistrar implements WebhookRegistrar
type MockRegistrar struct {
	registered []string
}

func (m *MockRegistrar) RegisterAddress(ctx context.Context, address string) (string, error) {
	m.registered = append(m.registered, address)
	return fmt.Sprintf("wh-%d", len(m.registered)), nil
}

// MockCreditor records credited deposit IDs
type MockCreditor struct {
	credited []uuid.UUID
}

func (m *MockCreditor) Credit(ctx context.Context, deposit *entities.Deposit) error {
	m.credited = append(m.credited, deposit.ID)
	return nil
}

type fixedHotWallet struct{ addr string }

func (f fixedHotWallet) HotWalletAddress() (string, bool) {
	return f.addr, f.addr != ""
}

type depositFixture struct {
	svc         *Service
	deposits    *MockDepositRepository
	addresses   *MockDepositAddressRepository
	connections *MockWalletConnectionRepository
	registrar   *MockRegistrar
	creditor    *MockCreditor
	registry    *AddressRegistry
	hotAddr     string
}

func newDepositFixture() *depositFixture {
	f := &depositFixture{
		deposits:    NewMockDepositRepository(),
		addresses:   NewMockDepositAddressRepository(),
		connections: NewMockWalletConnectionRepository(),
		registrar:   &MockRegistrar{},
		creditor:    &MockCreditor{},
		registry:    NewAddressRegistry(),
		hotAddr:     "HotWa11et111111111111111111111111111111111",
	}
	f.registry.Add(entities.ChainSolana, f.hotAddr)

	mints := NewMockMintClassifier()
	mints.AddMint(usdtMint, entities.CurrencyUSDT)

	cfg := config.DepositConfig{MinSOL: 0.01, MinUSDT: 1, MinFort: 1}
	f.svc = NewService(
		f.deposits,
		f.addresses,
		f.connections,
		&MockDeriver{configured: true},
		f.registrar,
		f.creditor,
		fixedHotWallet{addr: f.hotAddr},
		f.registry,
		NewParser(f.registry, mints),
		cfg,
		logger.New("error", "test"),
	)
	return f
}

func TestInitiateDepositEnforcesMinimum(t *testing.T) {
	f := newDepositFixture()

	_, err := f.svc.InitiateWalletDeposit(context.Background(), uuid.New(), &entities.InitiateDepositRequest{
		Currency: entities.CurrencyUSDT,
		Amount:   decimal.RequireFromString("0.5"),
	})
	require.Error(t, err)
	assert.True(t, domainErrors.IsInvalidInput(err))

	_, err = f.svc.InitiateWalletDeposit(context.Background(), uuid.New(), &entities.InitiateDepositRequest{
		Currency: entities.Currency("DOGE"),
		Amount:   decimal.NewFromInt(100),
	})
	require.Error(t, err)
	assert.True(t, domainErrors.IsInvalidInput(err))
}

func TestInitiateDepositCreatesPendingIntent(t *testing.T) {
	f := newDepositFixture()
	userID := uuid.New()

	resp, err := f.svc.InitiateWalletDeposit(context.Background(), userID, &entities.InitiateDepositRequest{
		Currency:      entities.CurrencyUSDT,
		Amount:        decimal.NewFromInt(50),
		WalletAddress: "SenderWa11et111111111111111111111111111111",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.Memo)
	assert.Equal(t, f.hotAddr, resp.RecipientAddress)

	stored, err := f.deposits.GetByID(context.Background(), resp.DepositID)
	require.NoError(t, err)
	assert.Equal(t, entities.DepositStatusPending, stored.Status)
	assert.Nil(t, stored.TxSignature)

	// The declared sender wallet is connected as a side effect
	conn, err := f.connections.GetByUserAndChain(context.Background(), userID, entities.ChainSolana)
	require.NoError(t, err)
	assert.Equal(t, "SenderWa11et111111111111111111111111111111", conn.WalletAddress)

	// Nothing credited until the webhook observes the transfer
	assert.Empty(t, f.creditor.credited)
}

func TestConfirmDepositStaysPendingUntilWebhook(t *testing.T) {
	f := newDepositFixture()
	userID := uuid.New()

	resp, err := f.svc.InitiateWalletDeposit(context.Background(), userID, &entities.InitiateDepositRequest{
		Currency: entities.CurrencyUSDT,
		Amount:   decimal.NewFromInt(50),
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.ConfirmWalletDeposit(context.Background(), userID, resp.DepositID, "client-sig"))

	stored, err := f.deposits.GetByID(context.Background(), resp.DepositID)
	require.NoError(t, err)
	assert.Equal(t, entities.DepositStatusPending, stored.Status)
	require.NotNil(t, stored.TxSignature)
	assert.Equal(t, "client-sig", *stored.TxSignature)
	assert.Empty(t, f.creditor.credited)
}

func TestConfirmDepositRejectsForeignOwner(t *testing.T) {
	f := newDepositFixture()

	resp, err := f.svc.InitiateWalletDeposit(context.Background(), uuid.New(), &entities.InitiateDepositRequest{
		Currency: entities.CurrencyUSDT,
		Amount:   decimal.NewFromInt(50),
	})
	require.NoError(t, err)

	err = f.svc.ConfirmWalletDeposit(context.Background(), uuid.New(), resp.DepositID, "client-sig")
	require.Error(t, err)
	assert.True(t, domainErrors.IsNotFound(err))
}

func TestIngestConfirmsAndCreditsIntentExactlyOnce(t *testing.T) {
	f := newDepositFixture()
	userID := uuid.New()

	sender := "SenderWa11et111111111111111111111111111111"
	resp, err := f.svc.InitiateWalletDeposit(context.Background(), userID, &entities.InitiateDepositRequest{
		Currency:      entities.CurrencyUSDT,
		Amount:        decimal.NewFromInt(50),
		WalletAddress: sender,
	})
	require.NoError(t, err)

	batch := entities.EnhancedTransactionBatch{
		{
			Signature: "chain-sig",
			Slot:      777,
			TokenTransfers: []entities.TokenTransfer{
				{FromUserAccount: sender, ToUserAccount: f.hotAddr, Mint: usdtMint, TokenAmount: decimal.NewFromInt(50)},
			},
		},
	}

	result, err := f.svc.IngestWebhook(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	stored, err := f.deposits.GetByID(context.Background(), resp.DepositID)
	require.NoError(t, err)
	assert.Equal(t, entities.DepositStatusConfirmed, stored.Status)
	require.NotNil(t, stored.Slot)
	assert.Equal(t, int64(777), *stored.Slot)
	require.Len(t, f.creditor.credited, 1)
	assert.Equal(t, resp.DepositID, f.creditor.credited[0])

	// Redelivered batch settles as a duplicate, no second credit
	result, err = f.svc.IngestWebhook(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, 1, result.Skipped)
	assert.Len(t, f.creditor.credited, 1)
}

func TestIngestTokenTransferSkipsMismatchedCurrencyIntent(t *testing.T) {
	f := newDepositFixture()
	userID := uuid.New()

	sender := "SenderWa11et111111111111111111111111111111"
	resp, err := f.svc.InitiateWalletDeposit(context.Background(), userID, &entities.InitiateDepositRequest{
		Currency:      entities.CurrencySOL,
		Amount:        decimal.RequireFromString("0.5"),
		WalletAddress: sender,
	})
	require.NoError(t, err)

	// A token transfer arrives from the connected wallet instead of the
	// declared native deposit
	batch := entities.EnhancedTransactionBatch{
		{
			Signature: "usdt-sig",
			Slot:      900,
			TokenTransfers: []entities.TokenTransfer{
				{FromUserAccount: sender, ToUserAccount: f.hotAddr, Mint: usdtMint, TokenAmount: decimal.NewFromInt(50)},
			},
		},
	}

	result, err := f.svc.IngestWebhook(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	// The declared intent is untouched: still pending, still native
	intent, err := f.deposits.GetByID(context.Background(), resp.DepositID)
	require.NoError(t, err)
	assert.Equal(t, entities.DepositStatusPending, intent.Status)
	assert.Equal(t, entities.CurrencySOL, intent.Currency)
	assert.True(t, decimal.RequireFromString("0.5").Equal(intent.Amount))

	// The transfer was credited as a fresh deposit valued in its own asset
	require.Len(t, f.creditor.credited, 1)
	credited, err := f.deposits.GetByID(context.Background(), f.creditor.credited[0])
	require.NoError(t, err)
	assert.NotEqual(t, resp.DepositID, credited.ID)
	assert.Equal(t, entities.CurrencyUSDT, credited.Currency)
	assert.True(t, decimal.NewFromInt(50).Equal(credited.Amount))
	assert.Equal(t, entities.DepositStatusConfirmed, credited.Status)
}

func TestIngestMatchesIntentByObservedCurrency(t *testing.T) {
	f := newDepositFixture()
	userID := uuid.New()

	sender := "SenderWa11et111111111111111111111111111111"
	solResp, err := f.svc.InitiateWalletDeposit(context.Background(), userID, &entities.InitiateDepositRequest{
		Currency:      entities.CurrencySOL,
		Amount:        decimal.RequireFromString("0.5"),
		WalletAddress: sender,
	})
	require.NoError(t, err)
	usdtResp, err := f.svc.InitiateWalletDeposit(context.Background(), userID, &entities.InitiateDepositRequest{
		Currency:      entities.CurrencyUSDT,
		Amount:        decimal.NewFromInt(50),
		WalletAddress: sender,
	})
	require.NoError(t, err)

	batch := entities.EnhancedTransactionBatch{
		{
			Signature: "usdt-sig",
			Slot:      901,
			TokenTransfers: []entities.TokenTransfer{
				{FromUserAccount: sender, ToUserAccount: f.hotAddr, Mint: usdtMint, TokenAmount: decimal.NewFromInt(50)},
			},
		},
	}

	result, err := f.svc.IngestWebhook(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	// The stablecoin intent settles; the older native intent is not consumed
	usdtIntent, err := f.deposits.GetByID(context.Background(), usdtResp.DepositID)
	require.NoError(t, err)
	assert.Equal(t, entities.DepositStatusConfirmed, usdtIntent.Status)
	solIntent, err := f.deposits.GetByID(context.Background(), solResp.DepositID)
	require.NoError(t, err)
	assert.Equal(t, entities.DepositStatusPending, solIntent.Status)

	require.Len(t, f.creditor.credited, 1)
	assert.Equal(t, usdtResp.DepositID, f.creditor.credited[0])
}

func TestIngestCreditsDepositAddressTransferDirectly(t *testing.T) {
	f := newDepositFixture()
	userID := uuid.New()

	info, err := f.svc.GetOrCreateDepositAddress(context.Background(), userID)
	require.NoError(t, err)

	batch := entities.EnhancedTransactionBatch{
		{
			Signature: "addr-sig",
			Slot:      100,
			NativeTransfers: []entities.NativeTransfer{
				{FromUserAccount: strangerAddr, ToUserAccount: info.Address, Amount: 2_000_000_000},
			},
		},
	}

	result, err := f.svc.IngestWebhook(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	require.Len(t, f.creditor.credited, 1)
	stored, err := f.deposits.GetByID(context.Background(), f.creditor.credited[0])
	require.NoError(t, err)
	assert.Equal(t, userID, stored.UserID)
	assert.Equal(t, entities.DepositMethodDepositAddress, stored.Method)
	assert.Equal(t, entities.CurrencySOL, stored.Currency)
	assert.True(t, stored.Amount.Equal(decimal.NewFromInt(2)))
}

func TestIngestSkipsUnattributableHotWalletTransfer(t *testing.T) {
	f := newDepositFixture()

	batch := entities.EnhancedTransactionBatch{
		{
			Signature: "mystery-sig",
			TokenTransfers: []entities.TokenTransfer{
				{FromUserAccount: strangerAddr, ToUserAccount: f.hotAddr, Mint: usdtMint, TokenAmount: decimal.NewFromInt(10)},
			},
		},
	}

	result, err := f.svc.IngestWebhook(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, f.creditor.credited)
}

func TestGetOrCreateDepositAddressIsStable(t *testing.T) {
	f := newDepositFixture()
	userID := uuid.New()

	first, err := f.svc.GetOrCreateDepositAddress(context.Background(), userID)
	require.NoError(t, err)
	second, err := f.svc.GetOrCreateDepositAddress(context.Background(), userID)
	require.NoError(t, err)

	assert.Equal(t, first.Address, second.Address)
	assert.True(t, f.registry.Contains(entities.ChainSolana, first.Address))
	assert.Equal(t, []string{first.Address}, f.registrar.registered)
}
