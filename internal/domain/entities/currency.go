package entities

import "github.com/shopspring/decimal"

// Chain identifies a supported blockchain network
type Chain string

const (
	ChainSolana Chain = "solana"
)

// Currency identifies a supported asset
type Currency string

const (
	// CurrencySOL is the native coin
	CurrencySOL Currency = "SOL"
	// CurrencyUSDT is the bridged stable token, credited 1:1 to USD
	CurrencyUSDT Currency = "USDT"
	// CurrencyFORT is the project token, priced from the internal market
	CurrencyFORT Currency = "FORT"
)

// ValidCurrencies contains all supported currencies
var ValidCurrencies = map[Currency]bool{
	CurrencySOL:  true,
	CurrencyUSDT: true,
	CurrencyFORT: true,
}

// IsValid checks whether the currency is supported
func (c Currency) IsValid() bool {
	return ValidCurrencies[c]
}

// Decimals returns the number of base-unit decimals for the currency
func (c Currency) Decimals() int32 {
	switch c {
	case CurrencySOL:
		return 9
	default:
		return 6
	}
}

// FromBaseUnits converts integer base units to an asset-native decimal amount
func (c Currency) FromBaseUnits(raw uint64) decimal.Decimal {
	return decimal.New(int64(raw), 0).Shift(-c.Decimals())
}

// ToBaseUnits converts an asset-native decimal amount to integer base units,
// truncating sub-unit dust
func (c Currency) ToBaseUnits(amount decimal.Decimal) uint64 {
	return uint64(amount.Shift(c.Decimals()).IntPart())
}
