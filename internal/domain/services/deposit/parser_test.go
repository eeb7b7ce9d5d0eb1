package deposit

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solfortune/custody-service/internal/domain/entities"
)

// MockMintClassifier implements MintClassifier for testing
type MockMintClassifier struct {
	mints map[string]entities.Currency
}

func NewMockMintClassifier() *MockMintClassifier {
	return &MockMintClassifier{mints: make(map[string]entities.Currency)}
}

func (m *MockMintClassifier) AddMint(mint string, currency entities.Currency) {
	m.mints[mint] = currency
}

func (m *MockMintClassifier) CurrencyForMint(mint string) (entities.Currency, bool) {
	currency, ok := m.mints[mint]
	return currency, ok
}

const (
	monitoredAddr = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
	strangerAddr  = "4Nd1mYvJ9z1zVtBsKkbvFFDcnU5CYkPtG5PnHRzRz3qB"
	usdtMint      = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
)

func newTestParser() (*Parser, *AddressRegistry, *MockMintClassifier) {
	registry := NewAddressRegistry()
	registry.Add(entities.ChainSolana, monitoredAddr)

	mints := NewMockMintClassifier()
	mints.AddMint(usdtMint, entities.CurrencyUSDT)

	return NewParser(registry, mints), registry, mints
}

func TestParseNativeTransferToMonitoredAddress(t *testing.T) {
	parser, _, _ := newTestParser()

	batch := entities.EnhancedTransactionBatch{
		{
			Signature: "sig-1",
			Slot:      1234,
			NativeTransfers: []entities.NativeTransfer{
				{FromUserAccount: strangerAddr, ToUserAccount: monitoredAddr, Amount: 1_500_000_000},
			},
		},
	}

	transfers := parser.Parse(entities.ChainSolana, batch)
	require.Len(t, transfers, 1)

	assert.Equal(t, entities.CurrencySOL, transfers[0].Currency)
	assert.True(t, transfers[0].Amount.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, monitoredAddr, transfers[0].ToAddress)
	assert.Equal(t, "sig-1", transfers[0].Signature)
	assert.Equal(t, int64(1234), transfers[0].Slot)
}

func TestParseIgnoresUnmonitoredDestinations(t *testing.T) {
	parser, _, _ := newTestParser()

	batch := entities.EnhancedTransactionBatch{
		{
			Signature: "sig-2",
			NativeTransfers: []entities.NativeTransfer{
				{FromUserAccount: monitoredAddr, ToUserAccount: strangerAddr, Amount: 1_000_000_000},
			},
		},
	}

	assert.Empty(t, parser.Parse(entities.ChainSolana, batch))
}

func TestParseDropsZeroAndUnknownMintTransfers(t *testing.T) {
	parser, _, _ := newTestParser()

	batch := entities.EnhancedTransactionBatch{
		{
			Signature: "sig-3",
			NativeTransfers: []entities.NativeTransfer{
				{FromUserAccount: strangerAddr, ToUserAccount: monitoredAddr, Amount: 0},
			},
			TokenTransfers: []entities.TokenTransfer{
				{FromUserAccount: strangerAddr, ToUserAccount: monitoredAddr, Mint: "SomeRandomMint1111111111111111111111111111", TokenAmount: decimal.NewFromInt(50)},
				{FromUserAccount: strangerAddr, ToUserAccount: monitoredAddr, Mint: usdtMint, TokenAmount: decimal.Zero},
			},
		},
	}

	assert.Empty(t, parser.Parse(entities.ChainSolana, batch))
}

func TestParseTokenTransferMapsMintToCurrency(t *testing.T) {
	parser, _, _ := newTestParser()

	batch := entities.EnhancedTransactionBatch{
		{
			Signature: "sig-4",
			Slot:      99,
			TokenTransfers: []entities.TokenTransfer{
				{FromUserAccount: strangerAddr, ToUserAccount: monitoredAddr, Mint: usdtMint, TokenAmount: decimal.RequireFromString("25.75")},
			},
		},
	}

	transfers := parser.Parse(entities.ChainSolana, batch)
	require.Len(t, transfers, 1)

	assert.Equal(t, entities.CurrencyUSDT, transfers[0].Currency)
	assert.True(t, transfers[0].Amount.Equal(decimal.RequireFromString("25.75")))
	assert.Equal(t, usdtMint, transfers[0].Mint)
}

func TestParseOneTransactionManyTransfers(t *testing.T) {
	parser, _, _ := newTestParser()

	// A wallet-connect deposit carries the token movement plus a small
	// native transfer for fees in one transaction
	batch := entities.EnhancedTransactionBatch{
		{
			Signature: "sig-5",
			NativeTransfers: []entities.NativeTransfer{
				{FromUserAccount: strangerAddr, ToUserAccount: monitoredAddr, Amount: 2_039_280},
			},
			TokenTransfers: []entities.TokenTransfer{
				{FromUserAccount: strangerAddr, ToUserAccount: monitoredAddr, Mint: usdtMint, TokenAmount: decimal.NewFromInt(100)},
			},
		},
	}

	transfers := parser.Parse(entities.ChainSolana, batch)
	require.Len(t, transfers, 2)
	assert.Equal(t, "sig-5", transfers[0].Signature)
	assert.Equal(t, "sig-5", transfers[1].Signature)
}

func TestRegistryAddRemoveContains(t *testing.T) {
	registry := NewAddressRegistry()

	registry.Add(entities.ChainSolana, monitoredAddr)
	assert.True(t, registry.Contains(entities.ChainSolana, monitoredAddr))
	assert.False(t, registry.Contains(entities.ChainSolana, strangerAddr))
	assert.Equal(t, 1, registry.Size(entities.ChainSolana))

	registry.Remove(entities.ChainSolana, monitoredAddr)
	assert.False(t, registry.Contains(entities.ChainSolana, monitoredAddr))
	assert.Equal(t, 0, registry.Size(entities.ChainSolana))
}

func TestRegistryIgnoresEmptyAddress(t *testing.T) {
	registry := NewAddressRegistry()

	registry.Add(entities.ChainSolana, "")
	assert.Equal(t, 0, registry.Size(entities.ChainSolana))
}
