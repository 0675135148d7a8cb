package evm

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestIsValidAddress(t *testing.T) {
	assert.True(t, IsValidAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"))
	assert.False(t, IsValidAddress("dAC17F958D2ee523a2206206994597C13D831ec7"))
	assert.False(t, IsValidAddress("0x123"))
	assert.False(t, IsValidAddress("0xZZC17F958D2ee523a2206206994597C13D831ec7"))
	assert.False(t, IsValidAddress(""))
}

func TestCalcGasCost(t *testing.T) {
	cost := CalcGasCost(21000, big.NewInt(30_000_000_000))
	assert.Equal(t, "630000000000000", cost.String())
}

func TestFromUnits(t *testing.T) {
	// 1.5 ETH in wei
	wei, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.Equal(t, "1.5", FromUnits(wei, 18).String())

	// 50 USDT at 6 decimals
	assert.Equal(t, "50", FromUnits(big.NewInt(50_000_000), 6).String())
}

func TestToUnits(t *testing.T) {
	assert.Equal(t, "1500000000000000000", ToUnits(decimal.RequireFromString("1.5"), 18).String())
	assert.Equal(t, "50000000", ToUnits(decimal.RequireFromString("50"), 6).String())

	// Sub-precision dust truncates rather than rounding up.
	assert.Equal(t, "1000001", ToUnits(decimal.RequireFromString("1.0000019"), 6).String())
}

func TestUnitsRoundTrip(t *testing.T) {
	amount := decimal.RequireFromString("123.456789")
	back := FromUnits(ToUnits(amount, 6), 6)
	assert.True(t, amount.Equal(back), "got %s", back)
}
