package sweep

import (
	"context"
	"fmt"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solfortune/custody-service/internal/domain/entities"
	"github.com/solfortune/custody-service/internal/infrastructure/config"
	"github.com/solfortune/custody-service/pkg/logger"
)

// MockAddressRepository implements AddressRepository for testing
type MockAddressRepository struct {
	addresses []*entities.DepositAddress
	swept     []uuid.UUID
}

func (m *MockAddressRepository) ListActive(ctx context.Context, chain entities.Chain) ([]*entities.DepositAddress, error) {
	return m.addresses, nil
}

func (m *MockAddressRepository) TouchSwept(ctx context.Context, id uuid.UUID) error {
	m.swept = append(m.swept, id)
	return nil
}

// MockKeyDeriver implements KeyDeriver with one fixed key per index
type MockKeyDeriver struct {
	keys map[uint32]solanago.PrivateKey
}

func NewMockKeyDeriver() *MockKeyDeriver {
	return &MockKeyDeriver{keys: make(map[uint32]solanago.PrivateKey)}
}

func (m *MockKeyDeriver) AddKey(index uint32) string {
	wallet := solanago.NewWallet()
	m.keys[index] = wallet.PrivateKey
	return wallet.PublicKey().String()
}

func (m *MockKeyDeriver) IsConfigured() bool { return true }

func (m *MockKeyDeriver) SigningKeyFor(index uint32) (solanago.PrivateKey, error) {
	key, ok := m.keys[index]
	if !ok {
		return nil, fmt.Errorf("no key at index %d", index)
	}
	return key, nil
}

func (m *MockKeyDeriver) Validate(index uint32, expectedAddress string) error {
	key, ok := m.keys[index]
	if !ok || key.PublicKey().String() != expectedAddress {
		return fmt.Errorf("derivation mismatch at index %d", index)
	}
	return nil
}

// MockChainClient records operations in call order
type MockChainClient struct {
	hotWallet      solanago.PublicKey
	usdtMint       solanago.PublicKey
	fortMint       solanago.PublicKey
	fortEnabled    bool
	nativeBalances map[string]decimal.Decimal
	tokenBalances  map[string]decimal.Decimal
	rentReserve    uint64
	balanceErrors  map[string]error

	ops []string
}

func NewMockChainClient() *MockChainClient {
	return &MockChainClient{
		hotWallet:      solanago.NewWallet().PublicKey(),
		usdtMint:       solanago.NewWallet().PublicKey(),
		fortMint:       solanago.NewWallet().PublicKey(),
		nativeBalances: make(map[string]decimal.Decimal),
		tokenBalances:  make(map[string]decimal.Decimal),
		balanceErrors:  make(map[string]error),
		rentReserve:    890_880,
	}
}

func (m *MockChainClient) setTokenBalance(owner string, mint solanago.PublicKey, amount decimal.Decimal) {
	m.tokenBalances[owner+"|"+mint.String()] = amount
}

func (m *MockChainClient) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	if err := m.balanceErrors[address]; err != nil {
		return decimal.Zero, err
	}
	return m.nativeBalances[address], nil
}

func (m *MockChainClient) GetTokenBalance(ctx context.Context, owner string, mint solanago.PublicKey) (decimal.Decimal, error) {
	return m.tokenBalances[owner+"|"+mint.String()], nil
}

func (m *MockChainClient) GetRentExemptReserve(ctx context.Context) (uint64, error) {
	return m.rentReserve, nil
}

func (m *MockChainClient) TransferNative(ctx context.Context, from solanago.PrivateKey, to solanago.PublicKey, lamports uint64) (string, error) {
	m.ops = append(m.ops, fmt.Sprintf("native:%s:%d", from.PublicKey(), lamports))
	return "native-sig", nil
}

func (m *MockChainClient) TransferToken(ctx context.Context, from solanago.PrivateKey, to solanago.PublicKey, mint solanago.PublicKey, amount uint64) (string, error) {
	m.ops = append(m.ops, fmt.Sprintf("token:%s:%d", from.PublicKey(), amount))
	return "token-sig", nil
}

func (m *MockChainClient) TransferNativeFromHot(ctx context.Context, to solanago.PublicKey, lamports uint64) (string, error) {
	m.ops = append(m.ops, fmt.Sprintf("topup:%s:%d", to, lamports))
	return "topup-sig", nil
}

func (m *MockChainClient) MintFor(currency entities.Currency) (solanago.PublicKey, bool) {
	switch {
	case currency == entities.CurrencyUSDT:
		return m.usdtMint, true
	case currency == entities.CurrencyFORT && m.fortEnabled:
		return m.fortMint, true
	}
	return solanago.PublicKey{}, false
}

func (m *MockChainClient) HotWallet() (solanago.PublicKey, bool) {
	return m.hotWallet, true
}

func testSweepConfig() config.SweepConfig {
	return config.SweepConfig{
		Enabled:        true,
		MinUSDTSweep:   1.0,
		MinFortSweep:   1.0,
		MinNativeSweep: 0.01,
		MinGasBalance:  0.002,
		GasTopUp:       0.005,
	}
}

func newTestEngine(repo *MockAddressRepository, deriver *MockKeyDeriver, chain *MockChainClient) *Engine {
	return NewEngine(repo, deriver, chain, testSweepConfig(), logger.New("error", "test"))
}

func addTestAddress(repo *MockAddressRepository, deriver *MockKeyDeriver, index uint32) string {
	addr := deriver.AddKey(index)
	repo.addresses = append(repo.addresses, &entities.DepositAddress{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		Chain:           entities.ChainSolana,
		Address:         addr,
		DerivationIndex: index,
		IsActive:        true,
	})
	return addr
}

func TestSweepTokensBeforeNativeRemainder(t *testing.T) {
	repo := &MockAddressRepository{}
	deriver := NewMockKeyDeriver()
	chain := NewMockChainClient()

	addr := addTestAddress(repo, deriver, 0)
	chain.nativeBalances[addr] = decimal.RequireFromString("0.05")
	chain.setTokenBalance(addr, chain.usdtMint, decimal.NewFromInt(120))

	engine := newTestEngine(repo, deriver, chain)
	report, err := engine.RunOnce(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, 1, report.Addresses)
	assert.Equal(t, 2, report.Transfers)
	assert.Empty(t, report.Errors)
	require.Len(t, chain.ops, 2)

	// Token drain first, native remainder (minus rent reserve) last
	assert.Contains(t, chain.ops[0], "token:")
	assert.Contains(t, chain.ops[0], ":120000000")
	assert.Contains(t, chain.ops[1], "native:")
	assert.Contains(t, chain.ops[1], fmt.Sprintf(":%d", 50_000_000-890_880))

	assert.Len(t, repo.swept, 1)
}

func TestSweepSkipsDustBalances(t *testing.T) {
	repo := &MockAddressRepository{}
	deriver := NewMockKeyDeriver()
	chain := NewMockChainClient()

	addr := addTestAddress(repo, deriver, 0)
	chain.nativeBalances[addr] = decimal.RequireFromString("0.003")
	chain.setTokenBalance(addr, chain.usdtMint, decimal.RequireFromString("0.5"))

	engine := newTestEngine(repo, deriver, chain)
	report, err := engine.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Transfers)
	assert.Empty(t, chain.ops)
	assert.Len(t, repo.swept, 1)
}

func TestSweepTopsUpGasBeforeTokenTransfer(t *testing.T) {
	repo := &MockAddressRepository{}
	deriver := NewMockKeyDeriver()
	chain := NewMockChainClient()

	addr := addTestAddress(repo, deriver, 0)
	// Token balance worth sweeping but no native balance to pay fees
	chain.nativeBalances[addr] = decimal.Zero
	chain.setTokenBalance(addr, chain.usdtMint, decimal.NewFromInt(10))

	engine := newTestEngine(repo, deriver, chain)
	start := time.Now()
	report, err := engine.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Transfers)
	require.Len(t, chain.ops, 2)
	assert.Contains(t, chain.ops[0], "topup:")
	assert.Contains(t, chain.ops[1], "token:")
	// The top-up is given time to land before the token transfer spends it
	assert.GreaterOrEqual(t, time.Since(start), 2*time.Second)
}

func TestSweepAppliesPerTokenThresholds(t *testing.T) {
	repo := &MockAddressRepository{}
	deriver := NewMockKeyDeriver()
	chain := NewMockChainClient()
	chain.fortEnabled = true

	addr := addTestAddress(repo, deriver, 0)
	chain.nativeBalances[addr] = decimal.RequireFromString("0.005")
	chain.setTokenBalance(addr, chain.usdtMint, decimal.NewFromInt(50))
	chain.setTokenBalance(addr, chain.fortMint, decimal.NewFromInt(5))

	// Stablecoin threshold above its balance, project token below its own
	cfg := testSweepConfig()
	cfg.MinUSDTSweep = 100
	cfg.MinFortSweep = 1
	engine := NewEngine(repo, deriver, chain, cfg, logger.New("error", "test"))

	report, err := engine.RunOnce(context.Background())
	require.NoError(t, err)

	// Only the project token cleared its own minimum
	assert.Equal(t, 1, report.Transfers)
	require.Len(t, chain.ops, 1)
	assert.Contains(t, chain.ops[0], "token:")
	assert.Contains(t, chain.ops[0], ":5000000")
}

func TestSweepIsolatesPerAddressFailures(t *testing.T) {
	repo := &MockAddressRepository{}
	deriver := NewMockKeyDeriver()
	chain := NewMockChainClient()

	broken := addTestAddress(repo, deriver, 0)
	chain.balanceErrors[broken] = fmt.Errorf("rpc unavailable")

	healthy := addTestAddress(repo, deriver, 1)
	chain.nativeBalances[healthy] = decimal.RequireFromString("0.05")

	engine := newTestEngine(repo, deriver, chain)
	report, err := engine.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Addresses)
	assert.Equal(t, 1, report.Transfers)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0].Error(), broken)

	// Only the healthy address gets its sweep timestamp
	assert.Len(t, repo.swept, 1)
}

func TestSweepRefusesRotatedSeed(t *testing.T) {
	repo := &MockAddressRepository{}
	deriver := NewMockKeyDeriver()
	chain := NewMockChainClient()

	deriver.AddKey(0)
	// Stored address does not match what index 0 derives to now
	repo.addresses = append(repo.addresses, &entities.DepositAddress{
		ID:              uuid.New(),
		Chain:           entities.ChainSolana,
		Address:         solanago.NewWallet().PublicKey().String(),
		DerivationIndex: 0,
		IsActive:        true,
	})

	engine := newTestEngine(repo, deriver, chain)
	report, err := engine.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0].Error(), "derivation")
	assert.Empty(t, chain.ops)
}
