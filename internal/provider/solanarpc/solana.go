// Package solanarpc adapts the Solana network to the wallet provider surface
// using the solana-go RPC client. Signing is delegated to an injected Signer.
package solanarpc

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quiverwallet/quiver/internal/provider"
	"github.com/quiverwallet/quiver/internal/registry"
)

// NetworkID is the registry network identifier this adapter serves.
const NetworkID = "solana"

const (
	solDecimals = 9

	// baseFeeLamports is the flat per-signature fee charged by the network.
	baseFeeLamports = 5_000

	// SPL token account layout: the u64 amount sits at bytes 64..72.
	tokenAccountAmountOffset = 64
	tokenAccountAmountSize   = 8
)

// Signer signs transactions for a wallet without exposing key material.
type Signer interface {
	PublicKey(walletID string) (solana.PublicKey, error)
	Sign(ctx context.Context, walletID string, tx *solana.Transaction) error
}

// Provider implements provider.Provider for the Solana network.
type Provider struct {
	walletID string
	pool     *rpcPool
	signer   Signer
	logger   *zap.Logger
}

// New creates the adapter over a list of RPC endpoints.
func New(walletID string, rpcList []string, signer Signer, logger *zap.Logger) (*Provider, error) {
	if len(rpcList) == 0 {
		return nil, errors.New("empty RPC list")
	}
	return &Provider{
		walletID: walletID,
		pool:     newRPCPool(rpcList),
		signer:   signer,
		logger:   logger.Named("solana_provider"),
	}, nil
}

// QueryBalances reports SOL and SPL token balances for every descriptor the
// registry configures on the Solana network. Per-token failures come back as
// unsuccessful results.
func (p *Provider) QueryBalances(ctx context.Context, walletID string, reg *registry.Registry) ([]provider.BalanceResult, error) {
	owner, err := p.signer.PublicKey(walletID)
	if err != nil {
		return nil, fmt.Errorf("resolve public key: %w", err)
	}

	var results []provider.BalanceResult
	for _, tok := range reg.TokensFor(NetworkID) {
		res := provider.BalanceResult{
			Network:      NetworkID,
			TokenAddress: tok.Address,
		}

		bal, err := p.queryOne(ctx, owner, tok)
		if err != nil {
			p.logger.Debug("Balance query failed",
				zap.String("symbol", tok.Symbol),
				zap.Error(err))
		} else {
			s := bal.String()
			res.Success = true
			res.Balance = &s
		}
		results = append(results, res)
	}
	return results, nil
}

func (p *Provider) queryOne(ctx context.Context, owner solana.PublicKey, tok registry.TokenDescriptor) (decimal.Decimal, error) {
	client := p.pool.get()

	if tok.Native() {
		out, err := client.GetBalance(ctx, owner, rpc.CommitmentFinalized)
		if err != nil {
			return decimal.Zero, fmt.Errorf("get balance: %w", err)
		}
		return decimal.NewFromUint64(out.Value).Shift(-solDecimals), nil
	}

	mint, err := solana.PublicKeyFromBase58(*tok.Address)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid mint address: %w", err)
	}

	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return decimal.Zero, fmt.Errorf("derive token account: %w", err)
	}

	acc, err := client.GetAccountInfo(ctx, ata)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get token account: %w", err)
	}
	if acc.Value == nil {
		return decimal.Zero, errors.New("token account not found")
	}
	data := acc.Value.Data.GetBinary()
	if len(data) < tokenAccountAmountOffset+tokenAccountAmountSize {
		return decimal.Zero, errors.New("token account data too short")
	}

	raw := binary.LittleEndian.Uint64(data[tokenAccountAmountOffset : tokenAccountAmountOffset+tokenAccountAmountSize])
	return decimal.NewFromUint64(raw).Shift(int32(-tok.Decimals)), nil
}

// EstimateFee returns the flat per-signature network fee in SOL. Priority
// fees are out of scope for plain transfers.
func (p *Provider) EstimateFee(ctx context.Context, req provider.FeeRequest) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(baseFeeLamports).Shift(-solDecimals), nil
}

// SubmitTransfer builds a transfer transaction, has the signer sign it and
// broadcasts it with preflight skipped, the way latency-sensitive senders do.
func (p *Provider) SubmitTransfer(ctx context.Context, req provider.TransferRequest) (provider.TransferReceipt, error) {
	from, err := p.signer.PublicKey(p.walletID)
	if err != nil {
		return provider.TransferReceipt{}, fmt.Errorf("resolve public key: %w", err)
	}

	to, err := solana.PublicKeyFromBase58(req.Recipient)
	if err != nil {
		return provider.TransferReceipt{}, fmt.Errorf("invalid recipient: %w", err)
	}

	client := p.pool.get()
	recent, err := client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return provider.TransferReceipt{}, fmt.Errorf("get latest blockhash: %w", err)
	}

	var instruction solana.Instruction
	if req.Token.Native() {
		lamports := req.Amount.Shift(solDecimals).Truncate(0).BigInt().Uint64()
		instruction = system.NewTransferInstruction(lamports, from, to).Build()
	} else {
		instruction, err = p.splTransferInstruction(from, to, req)
		if err != nil {
			return provider.TransferReceipt{}, err
		}
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{instruction},
		recent.Value.Blockhash,
		solana.TransactionPayer(from),
	)
	if err != nil {
		return provider.TransferReceipt{}, fmt.Errorf("build transaction: %w", err)
	}

	if err := p.signer.Sign(ctx, p.walletID, tx); err != nil {
		return provider.TransferReceipt{}, fmt.Errorf("sign transaction: %w", err)
	}

	sig, err := client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       true,
		PreflightCommitment: rpc.CommitmentFinalized,
	})
	if err != nil {
		return provider.TransferReceipt{}, fmt.Errorf("send transaction: %w", err)
	}

	receipt := provider.TransferReceipt{
		TxHash:  sig.String(),
		FeePaid: decimal.NewFromInt(baseFeeLamports).Shift(-solDecimals),
	}

	p.logger.Info("Solana transfer broadcast", zap.String("signature", receipt.TxHash))
	return receipt, nil
}

func (p *Provider) splTransferInstruction(from, to solana.PublicKey, req provider.TransferRequest) (solana.Instruction, error) {
	mint, err := solana.PublicKeyFromBase58(*req.Token.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid mint address: %w", err)
	}

	source, _, err := solana.FindAssociatedTokenAddress(from, mint)
	if err != nil {
		return nil, fmt.Errorf("derive source token account: %w", err)
	}
	dest, _, err := solana.FindAssociatedTokenAddress(to, mint)
	if err != nil {
		return nil, fmt.Errorf("derive destination token account: %w", err)
	}

	raw := req.Amount.Shift(int32(req.Token.Decimals)).Truncate(0).BigInt().Uint64()
	return token.NewTransferCheckedInstruction(
		raw,
		uint8(req.Token.Decimals),
		source,
		mint,
		dest,
		from,
		nil,
	).Build(), nil
}

// RefreshBalances is a no-op: the adapter holds no balance cache.
func (p *Provider) RefreshBalances(ctx context.Context, walletID string) {}
