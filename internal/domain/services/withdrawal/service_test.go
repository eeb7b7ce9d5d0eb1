package withdrawal

import (
	"context"
	"errors"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solfortune/custody-service/internal/domain/entities"
	apperrors "github.com/solfortune/custody-service/internal/domain/errors"
	"github.com/solfortune/custody-service/internal/infrastructure/config"
	"github.com/solfortune/custody-service/pkg/logger"
)

// MockBalanceRepository implements BalanceRepository for testing, recording
// every hold and release so rollback paths can be asserted
type MockBalanceRepository struct {
	balances map[uuid.UUID]*entities.UserBalance
	holds    []decimal.Decimal
	releases []decimal.Decimal
}

func NewMockBalanceRepository() *MockBalanceRepository {
	return &MockBalanceRepository{balances: make(map[uuid.UUID]*entities.UserBalance)}
}

func (m *MockBalanceRepository) AddBalance(balance *entities.UserBalance) {
	m.balances[balance.UserID] = balance
}

func (m *MockBalanceRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*entities.UserBalance, error) {
	if balance, ok := m.balances[userID]; ok {
		return balance, nil
	}
	return nil, apperrors.NotFoundError("user")
}

func (m *MockBalanceRepository) HoldWithdrawalTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amountUSD, fromFreshDeposit decimal.Decimal) error {
	m.holds = append(m.holds, amountUSD)
	return nil
}

func (m *MockBalanceRepository) ReleaseWithdrawalTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amountUSD, fromFreshDeposit decimal.Decimal) error {
	m.releases = append(m.releases, amountUSD)
	return nil
}

// MockFundSource implements FundSourceProvider with a fixed discount
type MockFundSource struct {
	ledger   *LedgerFundSource
	discount decimal.Decimal
}

func (m *MockFundSource) Breakdown(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*entities.FundSourceBreakdown, error) {
	return m.ledger.Breakdown(ctx, userID, amount)
}

func (m *MockFundSource) TaxDiscount(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	return m.discount, nil
}

func newPreviewService(balances *MockBalanceRepository, discount decimal.Decimal, taxRate float64) *Service {
	fundSource := &MockFundSource{ledger: NewLedgerFundSource(balances), discount: discount}
	cfg := config.WithdrawalConfig{
		RequestExpirySeconds:  3600,
		ConfirmTimeoutSeconds: 60,
		TierTaxRate:           taxRate,
	}
	return NewService(nil, nil, balances, nil, fundSource, nil, nil, nil, cfg, logger.New("error", "test"))
}

func TestPreviewRejectsNonPositiveAmount(t *testing.T) {
	svc := newPreviewService(NewMockBalanceRepository(), decimal.Zero, 0.10)

	_, err := svc.Preview(context.Background(), uuid.New(), decimal.Zero)
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidInput(err))

	_, err = svc.Preview(context.Background(), uuid.New(), decimal.NewFromInt(-5))
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidInput(err))
}

func TestPreviewRejectsOverdraw(t *testing.T) {
	balances := NewMockBalanceRepository()
	userID := uuid.New()
	balances.AddBalance(&entities.UserBalance{
		UserID:             userID,
		FortuneBalance:     decimal.NewFromInt(100),
		TotalFreshDeposits: decimal.NewFromInt(100),
	})

	svc := newPreviewService(balances, decimal.Zero, 0.10)

	_, err := svc.Preview(context.Background(), userID, decimal.NewFromInt(101))
	require.Error(t, err)
	assert.True(t, apperrors.IsInsufficientFunds(err))
}

func TestPreviewPrincipalOnlyIsTaxFree(t *testing.T) {
	balances := NewMockBalanceRepository()
	userID := uuid.New()
	balances.AddBalance(&entities.UserBalance{
		UserID:             userID,
		FortuneBalance:     decimal.NewFromInt(500),
		TotalFreshDeposits: decimal.NewFromInt(500),
	})

	svc := newPreviewService(balances, decimal.Zero, 0.10)

	preview, err := svc.Preview(context.Background(), userID, decimal.NewFromInt(200))
	require.NoError(t, err)

	assert.True(t, preview.FromFreshDeposit.Equal(decimal.NewFromInt(200)))
	assert.True(t, preview.FromProfit.IsZero())
	assert.True(t, preview.TaxAmount.IsZero())
	assert.True(t, preview.NetAmount.Equal(decimal.NewFromInt(200)))
}

func TestPreviewTaxesProfitPortionOnly(t *testing.T) {
	balances := NewMockBalanceRepository()
	userID := uuid.New()
	balances.AddBalance(&entities.UserBalance{
		UserID:             userID,
		FortuneBalance:     decimal.NewFromInt(1000),
		TotalFreshDeposits: decimal.NewFromInt(300),
	})

	svc := newPreviewService(balances, decimal.Zero, 0.10)

	// 300 principal + 200 profit; only the profit is taxed
	preview, err := svc.Preview(context.Background(), userID, decimal.NewFromInt(500))
	require.NoError(t, err)

	assert.True(t, preview.FromFreshDeposit.Equal(decimal.NewFromInt(300)))
	assert.True(t, preview.FromProfit.Equal(decimal.NewFromInt(200)))
	assert.True(t, preview.TaxAmount.Equal(decimal.NewFromInt(20)), "got %s", preview.TaxAmount)
	assert.True(t, preview.NetAmount.Equal(decimal.NewFromInt(480)))
}

func TestPreviewDiscountFloorsRateAtZero(t *testing.T) {
	balances := NewMockBalanceRepository()
	userID := uuid.New()
	balances.AddBalance(&entities.UserBalance{
		UserID:             userID,
		FortuneBalance:     decimal.NewFromInt(1000),
		TotalFreshDeposits: decimal.Zero,
	})

	// Discount exceeds the tier rate; the effective rate clamps to zero
	// rather than going negative and paying the user extra
	svc := newPreviewService(balances, decimal.NewFromFloat(0.15), 0.10)

	preview, err := svc.Preview(context.Background(), userID, decimal.NewFromInt(100))
	require.NoError(t, err)

	assert.True(t, preview.TaxRate.IsZero())
	assert.True(t, preview.TaxAmount.IsZero())
	assert.True(t, preview.NetAmount.Equal(decimal.NewFromInt(100)))
}

func TestPreviewRoundsTaxToSixDecimals(t *testing.T) {
	balances := NewMockBalanceRepository()
	userID := uuid.New()
	balances.AddBalance(&entities.UserBalance{
		UserID:             userID,
		FortuneBalance:     decimal.NewFromInt(10),
		TotalFreshDeposits: decimal.Zero,
	})

	svc := newPreviewService(balances, decimal.Zero, 0.0333333333)

	preview, err := svc.Preview(context.Background(), userID, decimal.NewFromInt(1))
	require.NoError(t, err)

	assert.True(t, preview.TaxAmount.Equal(decimal.RequireFromString("0.033333")), "got %s", preview.TaxAmount)
}

// MockWithdrawalRepository implements WithdrawalRepository in memory
type MockWithdrawalRepository struct {
	byID map[uuid.UUID]*entities.Withdrawal
}

func NewMockWithdrawalRepository() *MockWithdrawalRepository {
	return &MockWithdrawalRepository{byID: make(map[uuid.UUID]*entities.Withdrawal)}
}

func (m *MockWithdrawalRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, withdrawal *entities.Withdrawal) error {
	copied := *withdrawal
	m.byID[withdrawal.ID] = &copied
	return nil
}

func (m *MockWithdrawalRepository) GetByIDForUser(ctx context.Context, id, userID uuid.UUID) (*entities.Withdrawal, error) {
	if w, ok := m.byID[id]; ok && w.UserID == userID {
		copied := *w
		return &copied, nil
	}
	return nil, apperrors.NotFoundError("withdrawal")
}

func (m *MockWithdrawalRepository) ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.Withdrawal, error) {
	out := []*entities.Withdrawal{}
	for _, w := range m.byID {
		if w.UserID == userID {
			copied := *w
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *MockWithdrawalRepository) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]*entities.Withdrawal, error) {
	out := []*entities.Withdrawal{}
	for _, w := range m.byID {
		if w.Method == entities.WithdrawalMethodWalletConnect &&
			w.Status == entities.WithdrawalStatusPending && w.CreatedAt.Before(cutoff) {
			copied := *w
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *MockWithdrawalRepository) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, from, to entities.WithdrawalStatus, errorMessage *string) error {
	w, ok := m.byID[id]
	if !ok || w.Status != from {
		return apperrors.ConflictError("withdrawal", "status moved concurrently")
	}
	w.Status = to
	w.ErrorMessage = errorMessage
	return nil
}

func (m *MockWithdrawalRepository) SetSignatureTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, signature string) error {
	w, ok := m.byID[id]
	if !ok {
		return apperrors.NotFoundError("withdrawal")
	}
	w.TxSignature = &signature
	return nil
}

// MockAuditRepository records audit rows and status flips by reference
type MockAuditRepository struct {
	created  []*entities.Transaction
	statuses map[uuid.UUID]entities.TransactionStatus
}

func NewMockAuditRepository() *MockAuditRepository {
	return &MockAuditRepository{statuses: make(map[uuid.UUID]entities.TransactionStatus)}
}

func (m *MockAuditRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, txn *entities.Transaction) error {
	m.created = append(m.created, txn)
	m.statuses[txn.ReferenceID] = txn.Status
	return nil
}

func (m *MockAuditRepository) UpdateStatusByReferenceTx(ctx context.Context, tx *sqlx.Tx, referenceID uuid.UUID, status entities.TransactionStatus) error {
	m.statuses[referenceID] = status
	return nil
}

// MockVaultBridge implements VaultBridge with switchable failures
type MockVaultBridge struct {
	enabled   bool
	request   *entities.VaultWithdrawalRequest
	createErr error
	cancelErr error
	payoutErr error
	created   int
	cancelled int
	payouts   []decimal.Decimal
}

func (m *MockVaultBridge) Enabled() bool { return m.enabled }
func (m *MockVaultBridge) ProgramID() string { return "Prog1111111111111111111111111111111111111111" }
func (m *MockVaultBridge) Mint() (string, error) { return "Mint1111111111111111111111111111111111111111", nil }
func (m *MockVaultBridge) VaultAddress() (string, error) { return "Vau1t111111111111111111111111111111111111111", nil }
func (m *MockVaultBridge) RequestAddressFor(userAddress string) (string, error) {
	return "Req" + userAddress, nil
}

func (m *MockVaultBridge) GetWithdrawalRequest(ctx context.Context, userAddress string) (*entities.VaultWithdrawalRequest, error) {
	return m.request, nil
}

func (m *MockVaultBridge) CreateWithdrawalRequest(ctx context.Context, userAddress string, usdAmount decimal.Decimal, expirySeconds int) (string, error) {
	if m.createErr != nil {
		return "", m.createErr
	}
	m.created++
	return "escrow-sig", nil
}

func (m *MockVaultBridge) CancelWithdrawalRequest(ctx context.Context, userAddress string) (string, error) {
	if m.cancelErr != nil {
		return "", m.cancelErr
	}
	m.cancelled++
	return "cancel-sig", nil
}

func (m *MockVaultBridge) Payout(ctx context.Context, usdAmount decimal.Decimal) (string, error) {
	if m.payoutErr != nil {
		return "", m.payoutErr
	}
	m.payouts = append(m.payouts, usdAmount)
	return "payout-sig", nil
}

// MockChainClient implements ChainClient for the instant path
type MockChainClient struct {
	payoutWallet solanago.PublicKey
	mint         solanago.PublicKey
	balance      decimal.Decimal
	transferErr  error
	confirmErr   error
	transferred  []uint64
}

func NewMockChainClient() *MockChainClient {
	return &MockChainClient{
		payoutWallet: solanago.NewWallet().PublicKey(),
		mint:         solanago.NewWallet().PublicKey(),
	}
}

func (m *MockChainClient) PayoutWallet() (solanago.PublicKey, bool) { return m.payoutWallet, true }

func (m *MockChainClient) MintFor(currency entities.Currency) (solanago.PublicKey, bool) {
	return m.mint, true
}

func (m *MockChainClient) GetTokenBalance(ctx context.Context, owner string, mint solanago.PublicKey) (decimal.Decimal, error) {
	return m.balance, nil
}

func (m *MockChainClient) TransferTokenFromPayout(ctx context.Context, to solanago.PublicKey, mint solanago.PublicKey, amount uint64) (string, error) {
	if m.transferErr != nil {
		return "", m.transferErr
	}
	m.transferred = append(m.transferred, amount)
	return "transfer-sig", nil
}

func (m *MockChainClient) ConfirmTransaction(ctx context.Context, signature string) error {
	return m.confirmErr
}

type atomicFixture struct {
	svc         *Service
	withdrawals *MockWithdrawalRepository
	balances    *MockBalanceRepository
	audits      *MockAuditRepository
	vault       *MockVaultBridge
	chain       *MockChainClient
	userID      uuid.UUID
	userWallet  string
}

// 1000 balance, 300 of it principal: withdrawing 500 taxes 200 of profit at
// 10%, net 480
func newAtomicFixture() *atomicFixture {
	f := &atomicFixture{
		withdrawals: NewMockWithdrawalRepository(),
		balances:    NewMockBalanceRepository(),
		audits:      NewMockAuditRepository(),
		vault:       &MockVaultBridge{enabled: true},
		chain:       NewMockChainClient(),
		userID:      uuid.New(),
		userWallet:  solanago.NewWallet().PublicKey().String(),
	}
	f.balances.AddBalance(&entities.UserBalance{
		UserID:             f.userID,
		FortuneBalance:     decimal.NewFromInt(1000),
		TotalFreshDeposits: decimal.NewFromInt(300),
	})

	cfg := config.WithdrawalConfig{
		RequestExpirySeconds:  3600,
		ConfirmTimeoutSeconds: 5,
		TierTaxRate:           0.10,
	}
	fundSource := &MockFundSource{ledger: NewLedgerFundSource(f.balances), discount: decimal.Zero}
	f.svc = NewService(nil, f.withdrawals, f.balances, f.audits, fundSource, f.vault, f.chain, nil, cfg, logger.New("error", "test"))
	f.svc.runTx = func(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
		return fn(nil)
	}
	return f
}

func TestPrepareAtomicHoldsAndReturnsClaimInfo(t *testing.T) {
	f := newAtomicFixture()

	claim, err := f.svc.PrepareAtomic(context.Background(), f.userID, decimal.NewFromInt(500), f.userWallet)
	require.NoError(t, err)

	assert.True(t, claim.NetAmount.Equal(decimal.NewFromInt(480)))
	assert.Equal(t, "Req"+f.userWallet, claim.RequestAddress)
	assert.Equal(t, 1, f.vault.created)

	// Gross amount held, nothing released
	require.Len(t, f.balances.holds, 1)
	assert.True(t, f.balances.holds[0].Equal(decimal.NewFromInt(500)))
	assert.Empty(t, f.balances.releases)

	stored := f.withdrawals.byID[claim.WithdrawalID]
	assert.Equal(t, entities.WithdrawalStatusPending, stored.Status)
	assert.Equal(t, entities.TransactionStatusPending, f.audits.statuses[claim.WithdrawalID])
}

func TestPrepareAtomicRollsBackHoldWhenEscrowFails(t *testing.T) {
	f := newAtomicFixture()
	f.vault.createErr = errors.New("blockhash expired")

	_, err := f.svc.PrepareAtomic(context.Background(), f.userID, decimal.NewFromInt(500), f.userWallet)
	require.Error(t, err)

	// The hold came back in full and the row settled to failed
	require.Len(t, f.balances.holds, 1)
	require.Len(t, f.balances.releases, 1)
	assert.True(t, f.balances.releases[0].Equal(f.balances.holds[0]))

	require.Len(t, f.withdrawals.byID, 1)
	for id, w := range f.withdrawals.byID {
		assert.Equal(t, entities.WithdrawalStatusFailed, w.Status)
		assert.Equal(t, entities.TransactionStatusFailed, f.audits.statuses[id])
	}
}

func TestConfirmAtomicCompletesOnConfirmedClaim(t *testing.T) {
	f := newAtomicFixture()

	claim, err := f.svc.PrepareAtomic(context.Background(), f.userID, decimal.NewFromInt(500), f.userWallet)
	require.NoError(t, err)

	w, err := f.svc.ConfirmAtomic(context.Background(), f.userID, claim.WithdrawalID, "claim-sig")
	require.NoError(t, err)

	assert.Equal(t, entities.WithdrawalStatusCompleted, w.Status)
	stored := f.withdrawals.byID[claim.WithdrawalID]
	assert.Equal(t, entities.WithdrawalStatusCompleted, stored.Status)
	require.NotNil(t, stored.TxSignature)
	assert.Equal(t, "claim-sig", *stored.TxSignature)
	assert.Equal(t, entities.TransactionStatusCompleted, f.audits.statuses[claim.WithdrawalID])
	assert.Empty(t, f.balances.releases)
}

func TestConfirmAtomicRollsBackOnUnconfirmedClaim(t *testing.T) {
	f := newAtomicFixture()

	claim, err := f.svc.PrepareAtomic(context.Background(), f.userID, decimal.NewFromInt(500), f.userWallet)
	require.NoError(t, err)

	f.chain.confirmErr = errors.New("transaction not found")

	_, err = f.svc.ConfirmAtomic(context.Background(), f.userID, claim.WithdrawalID, "claim-sig")
	require.Error(t, err)

	// Unconfirmed claim restores the full hold
	require.Len(t, f.balances.releases, 1)
	assert.True(t, f.balances.releases[0].Equal(decimal.NewFromInt(500)))
	stored := f.withdrawals.byID[claim.WithdrawalID]
	assert.Equal(t, entities.WithdrawalStatusFailed, stored.Status)
	assert.Equal(t, entities.TransactionStatusFailed, f.audits.statuses[claim.WithdrawalID])
}

func TestCancelAtomicRefusedInsideClaimWindow(t *testing.T) {
	f := newAtomicFixture()

	claim, err := f.svc.PrepareAtomic(context.Background(), f.userID, decimal.NewFromInt(500), f.userWallet)
	require.NoError(t, err)

	// The escrow is live: a signed claim may already be in flight
	f.vault.request = &entities.VaultWithdrawalRequest{
		UserAddress: f.userWallet,
		Amount:      decimal.NewFromInt(480),
		ExpiresAt:   time.Now().UTC().Add(time.Hour),
	}

	_, err = f.svc.CancelAtomic(context.Background(), f.userID, claim.WithdrawalID)
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))

	assert.Empty(t, f.balances.releases)
	assert.Equal(t, entities.WithdrawalStatusPending, f.withdrawals.byID[claim.WithdrawalID].Status)
}

func TestCancelAtomicAfterExpiryRestoresHold(t *testing.T) {
	f := newAtomicFixture()

	claim, err := f.svc.PrepareAtomic(context.Background(), f.userID, decimal.NewFromInt(500), f.userWallet)
	require.NoError(t, err)

	f.vault.request = &entities.VaultWithdrawalRequest{
		UserAddress: f.userWallet,
		Amount:      decimal.NewFromInt(480),
		ExpiresAt:   time.Now().UTC().Add(-time.Minute),
	}

	w, err := f.svc.CancelAtomic(context.Background(), f.userID, claim.WithdrawalID)
	require.NoError(t, err)

	assert.Equal(t, entities.WithdrawalStatusCancelled, w.Status)
	assert.Equal(t, 1, f.vault.cancelled)
	require.Len(t, f.balances.releases, 1)
	assert.True(t, f.balances.releases[0].Equal(decimal.NewFromInt(500)))
	assert.Equal(t, entities.TransactionStatusCancelled, f.audits.statuses[claim.WithdrawalID])
}

func TestCancelExpiredRetriesOnChainFailures(t *testing.T) {
	f := newAtomicFixture()

	stale := &entities.Withdrawal{
		ID:              uuid.New(),
		UserID:          f.userID,
		Method:          entities.WithdrawalMethodWalletConnect,
		Status:          entities.WithdrawalStatusPending,
		WalletAddress:   f.userWallet,
		RequestedAmount: decimal.NewFromInt(500),
		CreatedAt:       time.Now().UTC().Add(-2 * time.Hour),
	}
	f.withdrawals.byID[stale.ID] = stale
	f.vault.request = &entities.VaultWithdrawalRequest{
		UserAddress: f.userWallet,
		ExpiresAt:   time.Now().UTC().Add(-time.Hour),
	}

	// On-chain cancel fails: the row stays pending for the next cycle
	f.vault.cancelErr = errors.New("rpc unreachable")
	cancelled, err := f.svc.CancelExpired(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, 0, cancelled)
	assert.Equal(t, entities.WithdrawalStatusPending, f.withdrawals.byID[stale.ID].Status)
	assert.Empty(t, f.balances.releases)

	// Next cycle succeeds and restores the hold
	f.vault.cancelErr = nil
	cancelled, err = f.svc.CancelExpired(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, 1, cancelled)
	assert.Equal(t, entities.WithdrawalStatusCancelled, f.withdrawals.byID[stale.ID].Status)
	require.Len(t, f.balances.releases, 1)
	assert.True(t, f.balances.releases[0].Equal(decimal.NewFromInt(500)))
}

func TestCreateInstantRefusedWhenPayoutWalletShort(t *testing.T) {
	f := newAtomicFixture()
	f.chain.balance = decimal.NewFromInt(100) // net would be 480

	_, err := f.svc.CreateInstant(context.Background(), f.userID, &entities.InstantWithdrawalRequest{
		Amount:        decimal.NewFromInt(500),
		WalletAddress: f.userWallet,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsServiceUnavailable(err))

	// Liquidity gate fires before any hold
	assert.Empty(t, f.balances.holds)
	assert.Empty(t, f.withdrawals.byID)
}

func TestCreateInstantRollsBackOnTransferFailure(t *testing.T) {
	f := newAtomicFixture()
	f.chain.balance = decimal.NewFromInt(10000)
	f.chain.transferErr = errors.New("payout signing failed")

	_, err := f.svc.CreateInstant(context.Background(), f.userID, &entities.InstantWithdrawalRequest{
		Amount:        decimal.NewFromInt(500),
		WalletAddress: f.userWallet,
	})
	require.Error(t, err)

	require.Len(t, f.balances.holds, 1)
	require.Len(t, f.balances.releases, 1)
	assert.True(t, f.balances.releases[0].Equal(f.balances.holds[0]))
	for id, w := range f.withdrawals.byID {
		assert.Equal(t, entities.WithdrawalStatusFailed, w.Status)
		assert.Equal(t, entities.TransactionStatusFailed, f.audits.statuses[id])
	}
}

func TestCreateInstantPaysOutNetAmount(t *testing.T) {
	f := newAtomicFixture()
	f.chain.balance = decimal.NewFromInt(10000)

	w, err := f.svc.CreateInstant(context.Background(), f.userID, &entities.InstantWithdrawalRequest{
		Amount:        decimal.NewFromInt(500),
		WalletAddress: f.userWallet,
	})
	require.NoError(t, err)

	assert.Equal(t, entities.WithdrawalStatusCompleted, w.Status)
	require.Len(t, f.chain.transferred, 1)
	assert.Equal(t, entities.CurrencyUSDT.ToBaseUnits(decimal.NewFromInt(480)), f.chain.transferred[0])
	require.Len(t, f.vault.payouts, 1)
	assert.True(t, f.vault.payouts[0].Equal(decimal.NewFromInt(480)))
	assert.Empty(t, f.balances.releases)
	assert.Equal(t, entities.TransactionStatusCompleted, f.audits.statuses[w.ID])
}

func TestLedgerFundSourceSplitsFreshFirst(t *testing.T) {
	balances := NewMockBalanceRepository()
	userID := uuid.New()
	balances.AddBalance(&entities.UserBalance{
		UserID:             userID,
		FortuneBalance:     decimal.NewFromInt(100),
		TotalFreshDeposits: decimal.NewFromInt(40),
	})

	source := NewLedgerFundSource(balances)

	breakdown, err := source.Breakdown(context.Background(), userID, decimal.NewFromInt(70))
	require.NoError(t, err)
	assert.True(t, breakdown.FromFreshDeposit.Equal(decimal.NewFromInt(40)))
	assert.True(t, breakdown.FromProfit.Equal(decimal.NewFromInt(30)))

	breakdown, err = source.Breakdown(context.Background(), userID, decimal.NewFromInt(25))
	require.NoError(t, err)
	assert.True(t, breakdown.FromFreshDeposit.Equal(decimal.NewFromInt(25)))
	assert.True(t, breakdown.FromProfit.IsZero())
}
