// Package registry holds the static token configuration: which assets exist
// on which networks and how to interpret their on-chain balances.
package registry

import (
	"errors"
	"strings"
)

// TokenDescriptor describes one token on one network. A nil Address marks the
// network's native asset.
type TokenDescriptor struct {
	Network  string
	Address  *string
	Symbol   string
	Name     string
	Decimals int
}

// Native reports whether the descriptor is the network's native asset.
func (d TokenDescriptor) Native() bool {
	return d.Address == nil
}

// ErrNotFound is returned by Resolve when no descriptor matches. Callers are
// expected to skip the balance result rather than treat this as a failure.
var ErrNotFound = errors.New("registry: token not found")

// Registry is an immutable lookup table built at startup.
type Registry struct {
	byKey    map[key]TokenDescriptor
	networks []string
	byNet    map[string][]TokenDescriptor
}

type key struct {
	network string
	address string // lowercased; empty for the native asset
}

func makeKey(network string, address *string) key {
	k := key{network: network}
	if address != nil {
		k.address = strings.ToLower(*address)
	}
	return k
}

// New builds a registry from descriptors. Later duplicates of the same
// (network, address) pair are ignored.
func New(descriptors []TokenDescriptor) *Registry {
	r := &Registry{
		byKey: make(map[key]TokenDescriptor, len(descriptors)),
		byNet: make(map[string][]TokenDescriptor),
	}
	for _, d := range descriptors {
		k := makeKey(d.Network, d.Address)
		if _, exists := r.byKey[k]; exists {
			continue
		}
		r.byKey[k] = d
		if _, seen := r.byNet[d.Network]; !seen {
			r.networks = append(r.networks, d.Network)
		}
		r.byNet[d.Network] = append(r.byNet[d.Network], d)
	}
	return r
}

// Resolve looks up the descriptor for a (network, address) pair. Address
// comparison is case-insensitive; a nil address resolves the native asset.
func (r *Registry) Resolve(network string, address *string) (TokenDescriptor, error) {
	d, ok := r.byKey[makeKey(network, address)]
	if !ok {
		return TokenDescriptor{}, ErrNotFound
	}
	return d, nil
}

// Networks returns the configured network identifiers in file order.
func (r *Registry) Networks() []string {
	out := make([]string, len(r.networks))
	copy(out, r.networks)
	return out
}

// TokensFor returns all descriptors configured for a network, native first.
func (r *Registry) TokensFor(network string) []TokenDescriptor {
	src := r.byNet[network]
	out := make([]TokenDescriptor, len(src))
	copy(out, src)
	return out
}

// Len returns the number of configured descriptors.
func (r *Registry) Len() int {
	return len(r.byKey)
}
