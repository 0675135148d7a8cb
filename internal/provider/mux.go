package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/quiverwallet/quiver/internal/registry"
)

// Mux composes per-network providers into one. Balance queries fan out to
// every member; fee estimation and submission route by network.
type Mux struct {
	byNetwork map[string]Provider
	members   []Provider
}

// NewMux builds a mux from a network→provider routing table. The same
// provider may serve several networks.
func NewMux(routes map[string]Provider) *Mux {
	m := &Mux{byNetwork: make(map[string]Provider, len(routes))}
	seen := make(map[Provider]bool)
	for network, p := range routes {
		m.byNetwork[network] = p
		if !seen[p] {
			seen[p] = true
			m.members = append(m.members, p)
		}
	}
	return m
}

func (m *Mux) route(network string) (Provider, error) {
	p, ok := m.byNetwork[network]
	if !ok {
		return nil, fmt.Errorf("no provider for network %q", network)
	}
	return p, nil
}

// QueryBalances merges results from all member providers.
func (m *Mux) QueryBalances(ctx context.Context, walletID string, reg *registry.Registry) ([]BalanceResult, error) {
	var mu sync.Mutex
	var merged []BalanceResult

	g, gctx := errgroup.WithContext(ctx)
	for _, member := range m.members {
		member := member
		g.Go(func() error {
			results, err := member.QueryBalances(gctx, walletID, reg)
			if err != nil {
				return err
			}
			mu.Lock()
			merged = append(merged, results...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return merged, nil
}

// EstimateFee routes to the network's provider.
func (m *Mux) EstimateFee(ctx context.Context, req FeeRequest) (decimal.Decimal, error) {
	p, err := m.route(req.Network)
	if err != nil {
		return decimal.Zero, err
	}
	return p.EstimateFee(ctx, req)
}

// SubmitTransfer routes to the network's provider.
func (m *Mux) SubmitTransfer(ctx context.Context, req TransferRequest) (TransferReceipt, error) {
	p, err := m.route(req.Network)
	if err != nil {
		return TransferReceipt{}, err
	}
	return p.SubmitTransfer(ctx, req)
}

// RefreshBalances fans the invalidation out to every member.
func (m *Mux) RefreshBalances(ctx context.Context, walletID string) {
	for _, member := range m.members {
		member.RefreshBalances(ctx, walletID)
	}
}
