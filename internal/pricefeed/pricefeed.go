// Package pricefeed supplies spot prices for fiat conversion. Prices are an
// external input; an unknown symbol quotes at zero.
package pricefeed

import "github.com/shopspring/decimal"

// PriceSource quotes the current fiat spot price for an asset symbol.
type PriceSource interface {
	Spot(symbol string) decimal.Decimal
}

// Static is a fixed symbol→price table, typically seeded from configuration.
type Static struct {
	prices map[string]decimal.Decimal
}

// NewStatic builds a Static source from a symbol→price map.
func NewStatic(prices map[string]decimal.Decimal) *Static {
	cp := make(map[string]decimal.Decimal, len(prices))
	for sym, p := range prices {
		cp[sym] = p
	}
	return &Static{prices: cp}
}

// Spot returns the configured price, or zero when the symbol is unknown.
func (s *Static) Spot(symbol string) decimal.Decimal {
	return s.prices[symbol]
}
