package hdwallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestNewRejectsInvalidMnemonic(t *testing.T) {
	_, err := New("not a real mnemonic phrase at all")
	require.Error(t, err)
}

func TestUnconfiguredWalletDegrades(t *testing.T) {
	wallet, err := New("")
	require.NoError(t, err)

	assert.False(t, wallet.IsConfigured())

	_, err = wallet.DeriveAddress(0)
	assert.Error(t, err)

	_, err = wallet.SigningKeyFor(0)
	assert.Error(t, err)
}

func TestDerivationIsDeterministic(t *testing.T) {
	first, err := New(testMnemonic)
	require.NoError(t, err)
	second, err := New(testMnemonic)
	require.NoError(t, err)

	for _, index := range []uint32{0, 1, 42, 99999} {
		a, err := first.DeriveAddress(index)
		require.NoError(t, err)
		b, err := second.DeriveAddress(index)
		require.NoError(t, err)
		assert.Equal(t, a, b, "index %d", index)
	}
}

func TestDistinctIndexesYieldDistinctAddresses(t *testing.T) {
	wallet, err := New(testMnemonic)
	require.NoError(t, err)

	seen := make(map[string]uint32)
	for index := uint32(0); index < 50; index++ {
		addr, err := wallet.DeriveAddress(index)
		require.NoError(t, err)
		prev, dup := seen[addr]
		require.False(t, dup, "index %d collides with index %d", index, prev)
		seen[addr] = index
	}
}

func TestSigningKeyMatchesDerivedAddress(t *testing.T) {
	wallet, err := New(testMnemonic)
	require.NoError(t, err)

	addr, err := wallet.DeriveAddress(7)
	require.NoError(t, err)

	key, err := wallet.SigningKeyFor(7)
	require.NoError(t, err)
	assert.Equal(t, addr, key.PublicKey().String())
}

func TestValidateCatchesMismatch(t *testing.T) {
	wallet, err := New(testMnemonic)
	require.NoError(t, err)

	addr, err := wallet.DeriveAddress(3)
	require.NoError(t, err)

	assert.NoError(t, wallet.Validate(3, addr))
	assert.Error(t, wallet.Validate(4, addr))
}
