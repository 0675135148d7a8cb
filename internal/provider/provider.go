// Package provider defines the narrow async surface through which the core
// consumes the external wallet SDK: balance queries, fee estimation and
// transfer submission. Key custody, signing and RPC transport live behind it.
package provider

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/quiverwallet/quiver/internal/registry"
)

// BalanceResult is one per-(network, token) balance query outcome. Balance is
// a decimal string and is nil when the query failed.
type BalanceResult struct {
	Network      string
	TokenAddress *string
	Success      bool
	Balance      *string
}

// FeeRequest describes a pending transfer for fee estimation.
type FeeRequest struct {
	Network   string
	Token     registry.TokenDescriptor
	Amount    decimal.Decimal
	Recipient string
}

// TransferRequest describes a transfer to submit.
type TransferRequest struct {
	Network   string
	Token     registry.TokenDescriptor
	Recipient string
	Amount    decimal.Decimal
}

// TransferReceipt is the outcome of a successful submission.
type TransferReceipt struct {
	TxHash  string
	FeePaid decimal.Decimal
}

// Provider is the consumed wallet capability. Implementations must be safe
// for concurrent use.
type Provider interface {
	// QueryBalances returns one result per configured (network, token) pair.
	// Individual query failures appear as unsuccessful results, not as an
	// error; the returned error covers only total failure.
	QueryBalances(ctx context.Context, walletID string, reg *registry.Registry) ([]BalanceResult, error)

	// EstimateFee predicts the network cost of a transfer, denominated in the
	// network's native asset.
	EstimateFee(ctx context.Context, req FeeRequest) (decimal.Decimal, error)

	// SubmitTransfer signs and broadcasts a transfer. Not abortable once
	// accepted by the underlying SDK.
	SubmitTransfer(ctx context.Context, req TransferRequest) (TransferReceipt, error)

	// RefreshBalances invalidates cached balances for a wallet. Fire-and-forget.
	RefreshBalances(ctx context.Context, walletID string)
}
