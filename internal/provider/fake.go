package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quiverwallet/quiver/internal/registry"
)

// Fake is an in-memory Provider used by the demo shell and tests. Balances
// are held per (network, lowercased-address) key; fee and submission delays
// are configurable so async ordering can be exercised.
type Fake struct {
	mu          sync.Mutex
	balances    map[string]decimal.Decimal
	fee         decimal.Decimal
	feeDelay    time.Duration
	submitDelay time.Duration
	failFee     error
	failSubmit  error
	logger      *zap.Logger
	refreshed   int
}

// NewFake creates a fake provider with a flat fee of 0.0002, mirroring the
// fixture the original app shipped with.
func NewFake(logger *zap.Logger) *Fake {
	return &Fake{
		balances: make(map[string]decimal.Decimal),
		fee:      decimal.RequireFromString("0.0002"),
		logger:   logger.Named("fake_provider"),
	}
}

func balanceKey(network string, address *string) string {
	if address == nil {
		return network + "/native"
	}
	return network + "/" + *address
}

// SetBalance seeds the balance for one (network, token) pair.
func (f *Fake) SetBalance(network string, address *string, balance decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[balanceKey(network, address)] = balance
}

// SetFee overrides the flat fee estimate.
func (f *Fake) SetFee(fee decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fee = fee
}

// SetFeeDelay delays fee estimation completions.
func (f *Fake) SetFeeDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feeDelay = d
}

// SetSubmitDelay delays transfer submissions.
func (f *Fake) SetSubmitDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitDelay = d
}

// FailFee makes subsequent fee estimates return err (nil restores success).
func (f *Fake) FailFee(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failFee = err
}

// FailSubmit makes subsequent submissions return err (nil restores success).
func (f *Fake) FailSubmit(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSubmit = err
}

// RefreshCount reports how many RefreshBalances calls were observed.
func (f *Fake) RefreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshed
}

// QueryBalances returns one result per configured descriptor. Pairs without a
// seeded balance come back unsuccessful, standing in for a chain outage.
func (f *Fake) QueryBalances(ctx context.Context, walletID string, reg *registry.Registry) ([]BalanceResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var results []BalanceResult
	for _, network := range reg.Networks() {
		for _, tok := range reg.TokensFor(network) {
			bal, ok := f.balances[balanceKey(network, tok.Address)]
			if !ok {
				results = append(results, BalanceResult{
					Network:      network,
					TokenAddress: tok.Address,
					Success:      false,
				})
				continue
			}
			s := bal.String()
			results = append(results, BalanceResult{
				Network:      network,
				TokenAddress: tok.Address,
				Success:      true,
				Balance:      &s,
			})
		}
	}
	return results, nil
}

// EstimateFee returns the configured flat fee after the configured delay.
func (f *Fake) EstimateFee(ctx context.Context, req FeeRequest) (decimal.Decimal, error) {
	f.mu.Lock()
	delay := f.feeDelay
	fee := f.fee
	failErr := f.failFee
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return decimal.Zero, ctx.Err()
		}
	}
	if failErr != nil {
		return decimal.Zero, failErr
	}
	return fee, nil
}

// SubmitTransfer debits the sent amount plus fee and returns a synthetic
// receipt.
func (f *Fake) SubmitTransfer(ctx context.Context, req TransferRequest) (TransferReceipt, error) {
	f.mu.Lock()
	delay := f.submitDelay
	failErr := f.failSubmit
	fee := f.fee
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return TransferReceipt{}, ctx.Err()
		}
	}
	if failErr != nil {
		return TransferReceipt{}, failErr
	}

	f.mu.Lock()
	key := balanceKey(req.Network, req.Token.Address)
	if bal, ok := f.balances[key]; ok {
		f.balances[key] = bal.Sub(req.Amount)
	}
	f.mu.Unlock()

	hash := fmt.Sprintf("0x%s", uuid.New().String())
	f.logger.Debug("Fake transfer submitted",
		zap.String("network", req.Network),
		zap.String("recipient", req.Recipient),
		zap.String("amount", req.Amount.String()),
		zap.String("tx_hash", hash))

	return TransferReceipt{TxHash: hash, FeePaid: fee}, nil
}

// RefreshBalances records the invalidation request.
func (f *Fake) RefreshBalances(ctx context.Context, walletID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed++
}
