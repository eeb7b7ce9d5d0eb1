package entities

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCurrencyDecimals(t *testing.T) {
	assert.Equal(t, int32(9), CurrencySOL.Decimals())
	assert.Equal(t, int32(6), CurrencyUSDT.Decimals())
	assert.Equal(t, int32(6), CurrencyFORT.Decimals())
}

func TestToBaseUnitsTruncatesDust(t *testing.T) {
	// Sub-lamport dust must truncate, never round up: rounding up a sweep
	// amount would try to move more than the address holds
	amount := decimal.RequireFromString("1.0000000019")
	assert.Equal(t, uint64(1_000_000_001), CurrencySOL.ToBaseUnits(amount))

	assert.Equal(t, uint64(2_500_000), CurrencyUSDT.ToBaseUnits(decimal.RequireFromString("2.5000009")))
}

func TestFromBaseUnitsRoundTrip(t *testing.T) {
	lamports := uint64(1_234_567_890)
	assert.Equal(t, lamports, CurrencySOL.ToBaseUnits(CurrencySOL.FromBaseUnits(lamports)))
	assert.True(t, CurrencySOL.FromBaseUnits(lamports).Equal(decimal.RequireFromString("1.23456789")))
}

func TestCurrencyValidity(t *testing.T) {
	assert.True(t, CurrencyFORT.IsValid())
	assert.False(t, Currency("DOGE").IsValid())
}
