package consumer

import (
	"context"
	"encoding/json"

	"github.com/walletbase/walletd/parser"
	"github.com/walletbase/walletd/types"
	"github.com/walletbase/walletd/walleterrors"
)

// AssetsStore is the persistence surface of the asset fetcher.
type AssetsStore interface {
	UpsertAssets(assets []types.Asset) error
}

// AssetsConsumer resolves unseen token ids through the chain providers'
// token capability and persists the resulting assets.
type AssetsConsumer struct {
	db       AssetsStore
	registry *parser.Registry
}

func NewAssetsConsumer(db AssetsStore, registry *parser.Registry) *AssetsConsumer {
	return &AssetsConsumer{db: db, registry: registry}
}

func (c *AssetsConsumer) Name() string { return "fetch_assets" }

func (c *AssetsConsumer) ShouldProcess(payload json.RawMessage) bool {
	var p types.FetchAssetsPayload
	return json.Unmarshal(payload, &p) == nil && len(p.AssetIds) > 0
}

func (c *AssetsConsumer) Process(ctx context.Context, payload json.RawMessage) (int, error) {
	var p types.FetchAssetsPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return 0, walleterrors.Invariant("malformed fetch assets payload: %v", err)
	}
	var assets []types.Asset
	for _, raw := range p.AssetIds {
		id, err := types.ParseAssetId(raw)
		if err != nil {
			logger.Warnw("skipping unparseable asset id", "id", raw, "err", err)
			continue
		}
		if id.IsNative() {
			continue
		}
		tokenData, ok := c.registry.TokenData(id.Chain)
		if !ok {
			logger.Debugw("chain has no token capability", "chain", id.Chain)
			continue
		}
		asset, err := tokenData.GetTokenData(ctx, id.TokenId)
		if err != nil {
			return len(assets), walleterrors.E(walleterrors.KindUpstream, err)
		}
		assets = append(assets, asset)
	}
	if len(assets) == 0 {
		return 0, nil
	}
	if err := c.db.UpsertAssets(assets); err != nil {
		return 0, err
	}
	return len(assets), nil
}

// AssociationsStore is the persistence surface of the association
// consumers bound to the new_addresses exchange.
type AssociationsStore interface {
	AddAssetAssociations(address string, balances []types.AssetBalance) error
}

// AssociationsConsumer reacts to first-seen addresses: it queries the
// chain's balances capability and records the address's assets, so the
// wallet's holdings appear without waiting for transfers.
type AssociationsConsumer struct {
	name     string
	registry *parser.Registry
	db       AssociationsStore
}

func NewAssociationsConsumer(name string, registry *parser.Registry, db AssociationsStore) *AssociationsConsumer {
	return &AssociationsConsumer{name: name, registry: registry, db: db}
}

func (c *AssociationsConsumer) Name() string { return c.name }

func (c *AssociationsConsumer) ShouldProcess(payload json.RawMessage) bool {
	var p types.NewAddressesPayload
	return json.Unmarshal(payload, &p) == nil && len(p.Addresses) > 0
}

func (c *AssociationsConsumer) Process(ctx context.Context, payload json.RawMessage) (int, error) {
	var p types.NewAddressesPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return 0, walleterrors.Invariant("malformed new addresses payload: %v", err)
	}
	balances, ok := c.registry.Balances(p.Chain)
	if !ok {
		return 0, nil
	}
	count := 0
	for _, address := range p.Addresses {
		assetBalances, err := balances.GetAssetsBalances(ctx, address)
		if err != nil {
			return count, walleterrors.E(walleterrors.KindUpstream, err)
		}
		if len(assetBalances) == 0 {
			continue
		}
		if err := c.db.AddAssetAssociations(address, assetBalances); err != nil {
			return count, err
		}
		count += len(assetBalances)
	}
	return count, nil
}
