package parser

import (
	"context"

	"github.com/pkg/errors"

	"github.com/walletbase/walletd/types"
)

// ChainProvider is the minimal per-chain node contract. The parser only
// depends on this surface; adapters register at startup.
type ChainProvider interface {
	Chain() types.Chain
	GetLatestBlock(ctx context.Context) (int64, error)
	GetTransactions(ctx context.Context, block int64) ([]types.Transaction, error)
}

// TokenDataProvider is the optional token-metadata capability.
type TokenDataProvider interface {
	GetTokenData(ctx context.Context, tokenId string) (types.Asset, error)
}

// BalancesProvider is the optional balances capability.
type BalancesProvider interface {
	GetAssetsBalances(ctx context.Context, address string) ([]types.AssetBalance, error)
}

// Registry holds the provider for each chain. Built at startup, read-only
// afterwards.
type Registry struct {
	providers map[types.Chain]ChainProvider
}

func NewRegistry(providers ...ChainProvider) *Registry {
	m := make(map[types.Chain]ChainProvider, len(providers))
	for _, p := range providers {
		m[p.Chain()] = p
	}
	return &Registry{providers: m}
}

func (r *Registry) Provider(chain types.Chain) (ChainProvider, error) {
	p, ok := r.providers[chain]
	if !ok {
		return nil, errors.Errorf("no provider registered for chain %s", chain)
	}
	return p, nil
}

// TokenData returns the token capability for a chain if its provider has it.
func (r *Registry) TokenData(chain types.Chain) (TokenDataProvider, bool) {
	p, ok := r.providers[chain]
	if !ok {
		return nil, false
	}
	td, ok := p.(TokenDataProvider)
	return td, ok
}

// Balances returns the balances capability for a chain if its provider has it.
func (r *Registry) Balances(chain types.Chain) (BalancesProvider, bool) {
	p, ok := r.providers[chain]
	if !ok {
		return nil, false
	}
	b, ok := p.(BalancesProvider)
	return b, ok
}

// Chains lists chains with a registered provider.
func (r *Registry) Chains() []types.Chain {
	out := make([]types.Chain, 0, len(r.providers))
	for c := range r.providers {
		out = append(out, c)
	}
	return out
}
