// Package app wires the wallet core together: config, registry, provider,
// balance refresher and event bus.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quiverwallet/quiver/internal/balance"
	"github.com/quiverwallet/quiver/internal/config"
	"github.com/quiverwallet/quiver/internal/events"
	"github.com/quiverwallet/quiver/internal/keyring"
	"github.com/quiverwallet/quiver/internal/pricefeed"
	"github.com/quiverwallet/quiver/internal/provider"
	"github.com/quiverwallet/quiver/internal/provider/evm"
	"github.com/quiverwallet/quiver/internal/provider/solanarpc"
	"github.com/quiverwallet/quiver/internal/registry"
)

// Runner owns the long-lived services of the wallet shell.
type Runner struct {
	logger     *zap.Logger
	cfg        *config.Config
	registry   *registry.Registry
	prices     pricefeed.PriceSource
	provider   provider.Provider
	bus        *events.Bus
	refresher  *balance.Refresher
	shutdownCh chan os.Signal
}

// NewRunner builds the full service graph from configuration.
func NewRunner(cfg *config.Config, logger *zap.Logger) (*Runner, error) {
	reg, err := registry.Load(cfg.RegistryPath, logger)
	if err != nil {
		return nil, fmt.Errorf("load token registry: %w", err)
	}

	prices := pricefeed.NewStatic(spotPrices(cfg))

	prov, err := buildProvider(cfg, reg, logger)
	if err != nil {
		return nil, fmt.Errorf("build provider: %w", err)
	}

	bus := events.NewBus(logger, 64)

	refresher := balance.NewRefresher(balance.RefresherConfig{
		WalletID: cfg.WalletID,
		Provider: prov,
		Registry: reg,
		Prices:   prices,
		Bus:      bus,
		Interval: time.Duration(cfg.RefreshInterval) * time.Second,
		Logger:   logger,
	})

	return &Runner{
		logger:     logger,
		cfg:        cfg,
		registry:   reg,
		prices:     prices,
		provider:   prov,
		bus:        bus,
		refresher:  refresher,
		shutdownCh: make(chan os.Signal, 1),
	}, nil
}

// Bus exposes the event bus so a presentation layer can attach.
func (r *Runner) Bus() *events.Bus { return r.bus }

// Provider exposes the wallet provider for send workflows.
func (r *Runner) Provider() provider.Provider { return r.provider }

// Registry exposes the token registry.
func (r *Runner) Registry() *registry.Registry { return r.registry }

// Prices exposes the spot price source.
func (r *Runner) Prices() pricefeed.PriceSource { return r.prices }

// Run starts background services and blocks until the context is cancelled
// or a termination signal arrives.
func (r *Runner) Run(ctx context.Context) error {
	signal.Notify(r.shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		sig := <-r.shutdownCh
		r.logger.Info("Signal received: " + sig.String())
		cancel()
	}()

	r.bus.SubscribeFunc(events.BalancesUpdated, func(_ context.Context, ev events.Event) error {
		update, ok := ev.(*balance.UpdatedEvent)
		if !ok {
			return nil
		}
		r.logger.Info("Balances updated",
			zap.Int("assets", len(update.Snapshot.Assets)),
			zap.String("total_fiat", update.Snapshot.TotalFiat.StringFixed(2)))
		return nil
	})

	r.refresher.Start()
	<-runCtx.Done()

	r.refresher.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return r.bus.Shutdown(shutdownCtx)
}

func spotPrices(cfg *config.Config) map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal, len(cfg.SpotPrices))
	for symbol, price := range cfg.SpotPrices {
		prices[symbol] = decimal.NewFromFloat(price)
	}
	return prices
}

func buildProvider(cfg *config.Config, reg *registry.Registry, logger *zap.Logger) (provider.Provider, error) {
	if cfg.ProviderMode == "fake" {
		return seededFake(reg, logger), nil
	}

	evmSigner, solSigner, err := buildSigners(cfg, logger)
	if err != nil {
		return nil, err
	}
	routes := make(map[string]provider.Provider)

	if len(cfg.EVMEndpoints) > 0 {
		evmProvider := evm.New(cfg.WalletID, cfg.EVMEndpoints, evmSigner, logger)
		for network := range cfg.EVMEndpoints {
			routes[network] = evmProvider
		}
	}

	if len(cfg.SolanaRPCList) > 0 {
		solProvider, err := solanarpc.New(cfg.WalletID, cfg.SolanaRPCList, solSigner, logger)
		if err != nil {
			return nil, err
		}
		routes[solanarpc.NetworkID] = solProvider
	}

	if len(routes) == 0 {
		return nil, fmt.Errorf("rpc provider mode configured without endpoints")
	}
	return provider.NewMux(routes), nil
}

// buildSigners returns the signing backends. With a keys file configured the
// wallet can submit transfers; otherwise it runs watch-only and submission
// fails at signing time.
func buildSigners(cfg *config.Config, logger *zap.Logger) (evm.Signer, solanarpc.Signer, error) {
	if cfg.KeysPath != "" {
		ring, err := keyring.Load(cfg.KeysPath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("load keyring: %w", err)
		}
		return ring, ring, nil
	}
	watch := &watchOnlySigner{addresses: cfg.WatchAddresses}
	return watch, watch, nil
}

// seededFake gives the demo shell something to show: the native asset and the
// first configured token on each network get balances, the rest stay
// unsuccessful to exercise partial-failure tolerance.
func seededFake(reg *registry.Registry, logger *zap.Logger) *provider.Fake {
	fake := provider.NewFake(logger)
	for _, network := range reg.Networks() {
		tokens := reg.TokensFor(network)
		for i, tok := range tokens {
			switch {
			case tok.Native():
				fake.SetBalance(network, tok.Address, decimal.NewFromInt(2))
			case i <= 1:
				fake.SetBalance(network, tok.Address, decimal.NewFromInt(50))
			}
		}
	}
	return fake
}
