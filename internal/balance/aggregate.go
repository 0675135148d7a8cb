// Package balance merges per-network, per-token balance query results into
// unified per-asset totals and keeps them fresh.
package balance

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/quiverwallet/quiver/internal/pricefeed"
	"github.com/quiverwallet/quiver/internal/provider"
	"github.com/quiverwallet/quiver/internal/registry"
)

// NetworkBalance is one network's contribution to an aggregated asset.
type NetworkBalance struct {
	Network string
	Balance decimal.Decimal
	Address *string
}

// AggregatedAsset is the cross-network view of one asset, keyed by symbol.
type AggregatedAsset struct {
	Symbol          string
	Name            string
	Total           decimal.Decimal
	NetworkBalances []NetworkBalance
}

// Snapshot is a fully-formed aggregation result. Snapshots are recomputed,
// never mutated, so readers always observe a consistent value.
type Snapshot struct {
	Assets      []AggregatedAsset
	TotalFiat   decimal.Decimal
	RefreshedAt time.Time
}

// Aggregate folds balance query results into per-symbol assets.
//
// Failed or null-balance results are excluded: one chain's outage must not
// distort the remaining assets. Results whose token cannot be resolved
// through the registry, or whose balance does not parse as a decimal, are
// dropped the same way; stale configuration is never fatal here. Asset order
// is first-appearance order of each symbol, and the per-network breakdown
// preserves the input order of contributing results.
func Aggregate(reg *registry.Registry, results []provider.BalanceResult) []AggregatedAsset {
	index := make(map[string]int)
	var assets []AggregatedAsset

	for _, res := range results {
		if !res.Success || res.Balance == nil {
			continue
		}

		amount, err := decimal.NewFromString(*res.Balance)
		if err != nil {
			continue
		}

		desc, err := reg.Resolve(res.Network, res.TokenAddress)
		if err != nil {
			continue
		}

		i, seen := index[desc.Symbol]
		if !seen {
			i = len(assets)
			index[desc.Symbol] = i
			assets = append(assets, AggregatedAsset{
				Symbol: desc.Symbol,
				Name:   desc.Name,
				Total:  decimal.Zero,
			})
		}

		assets[i].Total = assets[i].Total.Add(amount)
		assets[i].NetworkBalances = append(assets[i].NetworkBalances, NetworkBalance{
			Network: res.Network,
			Balance: amount,
			Address: res.TokenAddress,
		})
	}

	return assets
}

// NewSnapshot aggregates results and prices the total in fiat. Assets whose
// spot price is unknown contribute zero to TotalFiat.
func NewSnapshot(reg *registry.Registry, results []provider.BalanceResult, prices pricefeed.PriceSource) Snapshot {
	assets := Aggregate(reg, results)

	total := decimal.Zero
	if prices != nil {
		for _, a := range assets {
			total = total.Add(a.Total.Mul(prices.Spot(a.Symbol)))
		}
	}

	return Snapshot{
		Assets:      assets,
		TotalFiat:   total,
		RefreshedAt: time.Now(),
	}
}

// Asset returns the aggregated asset with the given symbol, if present.
func (s Snapshot) Asset(symbol string) (AggregatedAsset, bool) {
	for _, a := range s.Assets {
		if a.Symbol == symbol {
			return a, true
		}
	}
	return AggregatedAsset{}, false
}
