// Package evm adapts EVM networks to the wallet provider surface using
// go-ethereum. Key custody stays outside: transfers are signed through an
// injected Signer.
package evm

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quiverwallet/quiver/internal/provider"
	"github.com/quiverwallet/quiver/internal/registry"
)

const (
	nativeDecimals = 18

	gasLimitNative uint64 = 21_000
	gasLimitERC20  uint64 = 65_000
)

// transferSelector is the 4-byte selector of transfer(address,uint256).
var transferSelector = []byte{0xa9, 0x05, 0x9c, 0xbb}

// balanceOfSelector is the 4-byte selector of balanceOf(address).
var balanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31}

// Signer signs prepared transactions for a wallet. Implementations wrap the
// external key-management SDK.
type Signer interface {
	// Address returns the wallet's sender address on the given network.
	Address(walletID, network string) (common.Address, error)

	// SignTx signs tx for the given chain.
	SignTx(ctx context.Context, walletID, network string, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// Provider implements provider.Provider for one or more EVM networks.
type Provider struct {
	walletID string
	signer   Signer
	logger   *zap.Logger

	mu      sync.RWMutex
	clients map[string]*ethclient.Client
}

// New dials each configured endpoint and returns the provider. Endpoints that
// fail to dial are skipped with a warning; their networks report unsuccessful
// balance results instead of failing construction.
func New(walletID string, endpoints map[string]string, signer Signer, logger *zap.Logger) *Provider {
	p := &Provider{
		walletID: walletID,
		signer:   signer,
		logger:   logger.Named("evm_provider"),
		clients:  make(map[string]*ethclient.Client),
	}
	for network, endpoint := range endpoints {
		client, err := ethclient.Dial(endpoint)
		if err != nil {
			p.logger.Warn("Failed to dial EVM endpoint",
				zap.String("network", network),
				zap.String("endpoint", endpoint),
				zap.Error(err))
			continue
		}
		p.clients[network] = client
	}
	return p
}

// Close releases all RPC connections.
func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, client := range p.clients {
		client.Close()
	}
	p.clients = make(map[string]*ethclient.Client)
}

func (p *Provider) client(network string) (*ethclient.Client, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	client, ok := p.clients[network]
	if !ok {
		return nil, fmt.Errorf("no client for network %q", network)
	}
	return client, nil
}

// QueryBalances fans out one query per configured (network, token) pair.
// Individual failures come back as unsuccessful results so one chain's outage
// never blocks the others.
func (p *Provider) QueryBalances(ctx context.Context, walletID string, reg *registry.Registry) ([]provider.BalanceResult, error) {
	type job struct {
		network string
		token   registry.TokenDescriptor
		index   int
	}

	var jobs []job
	for _, network := range reg.Networks() {
		for _, tok := range reg.TokensFor(network) {
			jobs = append(jobs, job{network: network, token: tok, index: len(jobs)})
		}
	}

	results := make([]provider.BalanceResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for _, j := range jobs {
		j := j
		g.Go(func() error {
			res := provider.BalanceResult{
				Network:      j.network,
				TokenAddress: j.token.Address,
			}

			bal, err := p.queryOne(gctx, walletID, j.network, j.token)
			if err != nil {
				p.logger.Debug("Balance query failed",
					zap.String("network", j.network),
					zap.String("symbol", j.token.Symbol),
					zap.Error(err))
			} else {
				s := bal.String()
				res.Success = true
				res.Balance = &s
			}

			results[j.index] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Provider) queryOne(ctx context.Context, walletID, network string, tok registry.TokenDescriptor) (decimal.Decimal, error) {
	client, err := p.client(network)
	if err != nil {
		return decimal.Zero, err
	}

	owner, err := p.signer.Address(walletID, network)
	if err != nil {
		return decimal.Zero, fmt.Errorf("resolve address: %w", err)
	}

	if tok.Native() {
		wei, err := client.BalanceAt(ctx, owner, nil)
		if err != nil {
			return decimal.Zero, fmt.Errorf("balance at: %w", err)
		}
		return FromUnits(wei, tok.Decimals), nil
	}

	contract := hexAddress(*tok.Address)
	data := append(append([]byte{}, balanceOfSelector...), common.LeftPadBytes(owner.Bytes(), 32)...)

	raw, err := client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balanceOf call: %w", err)
	}
	return FromUnits(new(big.Int).SetBytes(raw), tok.Decimals), nil
}

// EstimateFee prices a transfer as suggested-gas-price × gas limit,
// denominated in the native asset.
func (p *Provider) EstimateFee(ctx context.Context, req provider.FeeRequest) (decimal.Decimal, error) {
	client, err := p.client(req.Network)
	if err != nil {
		return decimal.Zero, err
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("suggest gas price: %w", err)
	}

	gasLimit := gasLimitNative
	if !req.Token.Native() {
		gasLimit = gasLimitERC20
	}

	return FromUnits(CalcGasCost(gasLimit, gasPrice), nativeDecimals), nil
}

// SubmitTransfer builds, signs and broadcasts a transfer. The reported fee is
// the gas cost at the submitted price; the final cost settles on-chain.
func (p *Provider) SubmitTransfer(ctx context.Context, req provider.TransferRequest) (provider.TransferReceipt, error) {
	if !IsValidAddress(req.Recipient) {
		return provider.TransferReceipt{}, fmt.Errorf("invalid recipient address %q", req.Recipient)
	}

	client, err := p.client(req.Network)
	if err != nil {
		return provider.TransferReceipt{}, err
	}

	from, err := p.signer.Address(p.walletID, req.Network)
	if err != nil {
		return provider.TransferReceipt{}, fmt.Errorf("resolve address: %w", err)
	}

	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return provider.TransferReceipt{}, fmt.Errorf("pending nonce: %w", err)
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return provider.TransferReceipt{}, fmt.Errorf("suggest gas price: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return provider.TransferReceipt{}, fmt.Errorf("chain id: %w", err)
	}

	recipient := hexAddress(req.Recipient)

	var tx *types.Transaction
	var gasLimit uint64
	if req.Token.Native() {
		gasLimit = gasLimitNative
		tx = types.NewTransaction(nonce, recipient, ToUnits(req.Amount, req.Token.Decimals), gasLimit, gasPrice, nil)
	} else {
		gasLimit = gasLimitERC20
		data := append(append([]byte{}, transferSelector...), common.LeftPadBytes(recipient.Bytes(), 32)...)
		data = append(data, common.LeftPadBytes(ToUnits(req.Amount, req.Token.Decimals).Bytes(), 32)...)
		contract := hexAddress(*req.Token.Address)
		tx = types.NewTransaction(nonce, contract, big.NewInt(0), gasLimit, gasPrice, data)
	}

	signed, err := p.signer.SignTx(ctx, p.walletID, req.Network, tx, chainID)
	if err != nil {
		return provider.TransferReceipt{}, fmt.Errorf("sign transaction: %w", err)
	}

	if err := client.SendTransaction(ctx, signed); err != nil {
		return provider.TransferReceipt{}, fmt.Errorf("send transaction: %w", err)
	}

	receipt := provider.TransferReceipt{
		TxHash:  signed.Hash().Hex(),
		FeePaid: FromUnits(CalcGasCost(gasLimit, gasPrice), nativeDecimals),
	}

	p.logger.Info("EVM transfer broadcast",
		zap.String("network", req.Network),
		zap.String("tx_hash", receipt.TxHash))

	return receipt, nil
}

// RefreshBalances is a no-op: the adapter holds no balance cache.
func (p *Provider) RefreshBalances(ctx context.Context, walletID string) {}
