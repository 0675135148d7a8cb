package app

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/gagliardetto/solana-go"
)

// ErrNoWalletSDK is returned when a signing operation is attempted without an
// attached wallet SDK.
var ErrNoWalletSDK = errors.New("app: signing requires the external wallet SDK")

// watchOnlySigner exposes configured addresses for balance queries but cannot
// sign: transfer submission needs the real wallet SDK attached in its place.
type watchOnlySigner struct {
	addresses map[string]string // network id -> address
}

func (s *watchOnlySigner) Address(walletID, network string) (common.Address, error) {
	addr, ok := s.addresses[network]
	if !ok {
		return common.Address{}, fmt.Errorf("no watch address configured for network %q", network)
	}
	return common.HexToAddress(addr), nil
}

func (s *watchOnlySigner) SignTx(ctx context.Context, walletID, network string, tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error) {
	return nil, ErrNoWalletSDK
}

func (s *watchOnlySigner) PublicKey(walletID string) (solana.PublicKey, error) {
	addr, ok := s.addresses["solana"]
	if !ok {
		return solana.PublicKey{}, errors.New("no watch address configured for network \"solana\"")
	}
	return solana.PublicKeyFromBase58(addr)
}

func (s *watchOnlySigner) Sign(ctx context.Context, walletID string, tx *solana.Transaction) error {
	return ErrNoWalletSDK
}
