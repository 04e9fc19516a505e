package store

import (
	"time"

	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"

	"github.com/walletbase/walletd/types"
	"github.com/walletbase/walletd/walleterrors"
)

const (
	// Long queries are usually pasted token addresses: lift the rank floor
	// so unranked tokens are findable. Short queries are symbol lookups and
	// keep the popularity floor. The asymmetry is deliberate and preserved.
	searchMinScoreLongQuery  = -100
	searchMinScoreShortQuery = 10
	searchLongQueryLen       = 10
)

// SearchMinScore returns the rank floor applied to an assets search.
func SearchMinScore(query string) int32 {
	if len(query) > searchLongQueryLen {
		return searchMinScoreLongQuery
	}
	return searchMinScoreShortQuery
}

func assetFromRow(row AssetRow) (types.Asset, error) {
	id, err := types.ParseAssetId(row.Id)
	if err != nil {
		return types.Asset{}, err
	}
	return types.Asset{
		Id:       id,
		Name:     row.Name,
		Symbol:   row.Symbol,
		Decimals: row.Decimals,
		Type:     types.AssetType(row.Type),
		Rank:     row.Rank,
	}, nil
}

func rowFromAsset(asset types.Asset) AssetRow {
	return AssetRow{
		Id:       asset.Id.String(),
		Chain:    asset.Id.Chain.String(),
		TokenId:  asset.Id.TokenId,
		Name:     asset.Name,
		Symbol:   asset.Symbol,
		Decimals: asset.Decimals,
		Type:     string(asset.Type),
		Rank:     asset.Rank,
	}
}

func (d *Database) GetAsset(id types.AssetId) (types.Asset, error) {
	var row AssetRow
	err := d.db.Where("id = ?", id.String()).First(&row).Error
	if gorm.IsRecordNotFoundError(err) {
		return types.Asset{}, walleterrors.NotFound("asset " + id.String())
	}
	if err != nil {
		return types.Asset{}, errors.Wrap(err, "get asset")
	}
	return assetFromRow(row)
}

// HasAsset reports whether the asset is already known.
func (d *Database) HasAsset(id types.AssetId) (bool, error) {
	var count int
	err := d.db.Model(&AssetRow{}).Where("id = ?", id.String()).Count(&count).Error
	return count > 0, errors.Wrap(err, "has asset")
}

// UpsertAssets inserts or updates assets by id.
func (d *Database) UpsertAssets(assets []types.Asset) error {
	for _, asset := range assets {
		if err := asset.Validate(); err != nil {
			return err
		}
		row := rowFromAsset(asset)
		row.UpdatedAt = time.Now()
		err := d.db.Where("id = ?", row.Id).
			Assign(map[string]interface{}{
				"name":     row.Name,
				"symbol":   row.Symbol,
				"decimals": row.Decimals,
				"type":     row.Type,
				"rank":     row.Rank,
			}).
			FirstOrCreate(&AssetRow{Id: row.Id, Chain: row.Chain, TokenId: row.TokenId}).Error
		if err != nil {
			return errors.Wrapf(err, "upsert asset %s", row.Id)
		}
	}
	return nil
}

// SearchAssets is a rank-weighted search over names, symbols and token
// ids, optionally restricted to chains.
func (d *Database) SearchAssets(query string, chains []types.Chain, limit, offset int) ([]types.Asset, error) {
	minScore := SearchMinScore(query)
	pattern := "%" + query + "%"
	q := d.db.Model(&AssetRow{}).
		Where("rank >= ?", minScore).
		Where("name ILIKE ? OR symbol ILIKE ? OR token_id = ?", pattern, pattern, query)
	if len(chains) > 0 {
		names := make([]string, len(chains))
		for i, c := range chains {
			names[i] = c.String()
		}
		q = q.Where("chain IN (?)", names)
	}
	var rows []AssetRow
	err := q.Order("rank DESC").Limit(limit).Offset(offset).Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "search assets")
	}
	out := make([]types.Asset, 0, len(rows))
	for _, row := range rows {
		asset, err := assetFromRow(row)
		if err != nil {
			logger.Warnw("skipping unparseable asset row", "id", row.Id, "err", err)
			continue
		}
		out = append(out, asset)
	}
	return out, nil
}

// PricedAssetIds returns the ids of market-listed assets (rank > 0),
// best rank first. The price updater feeds these to the market provider.
func (d *Database) PricedAssetIds(limit int) ([]types.AssetId, error) {
	var rows []AssetRow
	q := d.db.Select("id").Where("rank > 0").Order("rank DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "priced asset ids")
	}
	out := make([]types.AssetId, 0, len(rows))
	for _, row := range rows {
		id, err := types.ParseAssetId(row.Id)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// AddAssetAssociations records which assets an address holds. Existing
// pairs are left untouched.
func (d *Database) AddAssetAssociations(address string, balances []types.AssetBalance) error {
	for _, balance := range balances {
		row := AssetAddressAssociationRow{
			AssetId:   balance.AssetId.String(),
			Address:   address,
			CreatedAt: time.Now(),
		}
		err := d.db.Where("asset_id = ? AND address = ?", row.AssetId, address).
			FirstOrCreate(&row).Error
		if err != nil {
			return errors.Wrapf(err, "associate %s with %s", row.AssetId, address)
		}
	}
	return nil
}

// GetAssetIdsByDeviceId returns the distinct asset ids subscribed by the
// device's wallets: native coins of subscribed chains.
func (d *Database) GetAssetIdsByDeviceId(deviceId string) ([]string, error) {
	var chains []string
	err := d.db.Model(&SubscriptionRow{}).
		Joins("JOIN devices ON devices.id = subscriptions.device_id").
		Where("devices.device_id = ?", deviceId).
		Pluck("DISTINCT subscriptions.chain", &chains).Error
	if err != nil {
		return nil, errors.Wrap(err, "assets by device")
	}
	return chains, nil
}
