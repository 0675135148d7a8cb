package evm

import (
	"math/big"
	"regexp"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var addressRegex = regexp.MustCompile("^0x[0-9a-fA-F]{40}$")

// IsValidAddress reports whether s is a hex-encoded EVM address.
func IsValidAddress(s string) bool {
	return addressRegex.MatchString(s)
}

// CalcGasCost returns gasLimit × gasPrice in wei.
func CalcGasCost(gasLimit uint64, gasPrice *big.Int) *big.Int {
	gasLimitBig := new(big.Int).SetUint64(gasLimit)
	return gasLimitBig.Mul(gasLimitBig, gasPrice)
}

// FromUnits converts a raw integer token amount to its decimal representation.
func FromUnits(value *big.Int, decimals int) decimal.Decimal {
	return decimal.NewFromBigInt(value, 0).Shift(int32(-decimals))
}

// ToUnits converts a decimal token amount to raw integer units, truncating
// anything below the token's precision.
func ToUnits(amount decimal.Decimal, decimals int) *big.Int {
	return amount.Shift(int32(decimals)).Truncate(0).BigInt()
}

// hexAddress parses and normalizes an address string.
func hexAddress(s string) common.Address {
	return common.HexToAddress(s)
}
