// Package keyring holds locally-configured signing keys. It is the
// development-grade alternative to an external key-management SDK: keys are
// read from a CSV file and never leave the process.
package keyring

import (
	"context"
	"crypto/ecdsa"
	"encoding/csv"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"
)

// ErrNoKey is returned when no key is configured for the requested network.
var ErrNoKey = errors.New("keyring: no key for network")

// SolanaKey is an ed25519 keypair for the Solana network.
type SolanaKey struct {
	private solana.PrivateKey
	public  solana.PublicKey

	mu       sync.Mutex
	ataCache map[string]solana.PublicKey
}

// NewSolanaKey builds a key from a base58-encoded 64-byte private key.
func NewSolanaKey(privateKeyBase58 string) (*SolanaKey, error) {
	raw, err := base58.Decode(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(raw) != 64 {
		return nil, fmt.Errorf("invalid private key length: expected 64 bytes, got %d", len(raw))
	}
	private := solana.PrivateKey(raw)
	return &SolanaKey{
		private:  private,
		public:   private.PublicKey(),
		ataCache: make(map[string]solana.PublicKey),
	}, nil
}

// PublicKey returns the keypair's public key.
func (k *SolanaKey) PublicKey() solana.PublicKey {
	return k.public
}

// Sign signs every input of tx that expects this keypair.
func (k *SolanaKey) Sign(tx *solana.Transaction) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(k.public) {
			return &k.private
		}
		return nil
	})
	return err
}

// TokenAccount returns the associated token account for mint, cached after
// the first derivation.
func (k *SolanaKey) TokenAccount(mint solana.PublicKey) (solana.PublicKey, error) {
	mintStr := mint.String()

	k.mu.Lock()
	defer k.mu.Unlock()
	if ata, ok := k.ataCache[mintStr]; ok {
		return ata, nil
	}

	ata, _, err := solana.FindAssociatedTokenAddress(k.public, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	k.ataCache[mintStr] = ata
	return ata, nil
}

// EVMKey is a secp256k1 keypair usable on any EVM network.
type EVMKey struct {
	private *ecdsa.PrivateKey
	address common.Address
}

// NewEVMKey builds a key from a hex-encoded private key, with or without the
// 0x prefix.
func NewEVMKey(privateKeyHex string) (*EVMKey, error) {
	private, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &EVMKey{
		private: private,
		address: crypto.PubkeyToAddress(private.PublicKey),
	}, nil
}

// Address returns the key's sender address.
func (k *EVMKey) Address() common.Address {
	return k.address
}

// SignTx signs tx for the given chain.
func (k *EVMKey) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), k.private)
}

// Keyring maps networks to signing keys. It satisfies the signer interfaces
// of both provider backends.
type Keyring struct {
	evm    map[string]*EVMKey
	solana *SolanaKey
}

// Load reads keys from a CSV file with columns [network, private_key]. The
// "solana" network takes a base58 key; every other network a hex EVM key.
// Invalid rows are skipped with a warning.
func Load(path string, logger *zap.Logger) (*Keyring, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keys file: %w", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read keys CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("keys file is empty or missing data")
	}

	ring := &Keyring{evm: make(map[string]*EVMKey)}
	for _, record := range records[1:] {
		if len(record) != 2 {
			continue
		}
		network := strings.TrimSpace(record[0])
		secret := strings.TrimSpace(record[1])

		if network == "solana" {
			key, err := NewSolanaKey(secret)
			if err != nil {
				logger.Warn("Skipping invalid Solana key", zap.Error(err))
				continue
			}
			ring.solana = key
			continue
		}

		key, err := NewEVMKey(secret)
		if err != nil {
			logger.Warn("Skipping invalid EVM key",
				zap.String("network", network),
				zap.Error(err))
			continue
		}
		ring.evm[network] = key
	}

	if ring.solana == nil && len(ring.evm) == 0 {
		return nil, fmt.Errorf("no valid keys loaded")
	}

	logger.Info("Keyring loaded",
		zap.Int("evm_networks", len(ring.evm)),
		zap.Bool("solana", ring.solana != nil))
	return ring, nil
}

// Address returns the configured sender address for an EVM network.
func (r *Keyring) Address(walletID, network string) (common.Address, error) {
	key, ok := r.evm[network]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", ErrNoKey, network)
	}
	return key.Address(), nil
}

// SignTx signs an EVM transaction with the network's key.
func (r *Keyring) SignTx(ctx context.Context, walletID, network string, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	key, ok := r.evm[network]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoKey, network)
	}
	return key.SignTx(tx, chainID)
}

// PublicKey returns the Solana public key.
func (r *Keyring) PublicKey(walletID string) (solana.PublicKey, error) {
	if r.solana == nil {
		return solana.PublicKey{}, fmt.Errorf("%w: solana", ErrNoKey)
	}
	return r.solana.PublicKey(), nil
}

// Sign signs a Solana transaction.
func (r *Keyring) Sign(ctx context.Context, walletID string, tx *solana.Transaction) error {
	if r.solana == nil {
		return fmt.Errorf("%w: solana", ErrNoKey)
	}
	return r.solana.Sign(tx)
}
