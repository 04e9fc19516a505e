package store

import (
	"time"

	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"

	"github.com/walletbase/walletd/types"
	"github.com/walletbase/walletd/walleterrors"
)

// UpsertPrices writes prices in one transaction. last_updated_at is
// monotonic per asset: a row older than the stored one is skipped.
func (d *Database) UpsertPrices(prices []types.Price) error {
	tx := d.db.Begin()
	if tx.Error != nil {
		return errors.Wrap(tx.Error, "begin prices tx")
	}
	for _, price := range prices {
		var existing PriceRow
		err := tx.Where("asset_id = ?", price.AssetId.String()).First(&existing).Error
		if err != nil && !gorm.IsRecordNotFoundError(err) {
			tx.Rollback()
			return errors.Wrap(err, "lookup price")
		}
		if err == nil && existing.LastUpdatedAt.After(price.LastUpdatedAt) {
			continue
		}
		row := PriceRow{
			AssetId:        price.AssetId.String(),
			Price:          price.Price,
			PriceChange24h: price.PriceChange24h,
			MarketCap:      price.MarketCap,
			MarketCapRank:  price.MarketCapRank,
			Volume24h:      price.Volume24h,
			Circulating:    price.Circulating,
			TotalSupply:    price.TotalSupply,
			MaxSupply:      price.MaxSupply,
			LastUpdatedAt:  price.LastUpdatedAt,
		}
		if gorm.IsRecordNotFoundError(err) {
			if err := tx.Create(&row).Error; err != nil {
				tx.Rollback()
				return errors.Wrapf(err, "insert price %s", row.AssetId)
			}
			continue
		}
		// Map form so legitimate zero values (price 0, change 0)
		// overwrite; a struct update would skip them.
		if err := tx.Model(&PriceRow{}).Where("asset_id = ?", row.AssetId).
			Updates(priceColumns(row)).Error; err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "update price %s", row.AssetId)
		}
	}
	return errors.Wrap(tx.Commit().Error, "commit prices")
}

func priceColumns(row PriceRow) map[string]interface{} {
	return map[string]interface{}{
		"price":           row.Price,
		"price_change24h": row.PriceChange24h,
		"market_cap":      row.MarketCap,
		"market_cap_rank": row.MarketCapRank,
		"volume24h":       row.Volume24h,
		"circulating":     row.Circulating,
		"total_supply":    row.TotalSupply,
		"max_supply":      row.MaxSupply,
		"last_updated_at": row.LastUpdatedAt,
	}
}

func (d *Database) GetPrice(id types.AssetId) (types.Price, error) {
	var row PriceRow
	err := d.db.Where("asset_id = ?", id.String()).First(&row).Error
	if gorm.IsRecordNotFoundError(err) {
		return types.Price{}, walleterrors.NotFound("price " + id.String())
	}
	if err != nil {
		return types.Price{}, errors.Wrap(err, "get price")
	}
	return types.Price{
		AssetId:        id,
		Price:          row.Price,
		PriceChange24h: row.PriceChange24h,
		MarketCap:      row.MarketCap,
		MarketCapRank:  row.MarketCapRank,
		Volume24h:      row.Volume24h,
		Circulating:    row.Circulating,
		TotalSupply:    row.TotalSupply,
		MaxSupply:      row.MaxSupply,
		LastUpdatedAt:  row.LastUpdatedAt,
	}, nil
}

// AddCharts appends chart points; one point per asset per updater run.
func (d *Database) AddCharts(charts []types.Chart) error {
	for _, chart := range charts {
		row := ChartRow{
			AssetId:   chart.AssetId.String(),
			Price:     chart.Price,
			CreatedAt: chart.CreatedAt,
		}
		if err := d.db.Create(&row).Error; err != nil {
			return errors.Wrapf(err, "insert chart %s", row.AssetId)
		}
	}
	return nil
}

// GetFiatRates returns the stored fiat rates.
func (d *Database) GetFiatRates() ([]types.FiatRate, error) {
	var rows []FiatRateRow
	if err := d.db.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "fiat rates")
	}
	out := make([]types.FiatRate, len(rows))
	for i, row := range rows {
		out[i] = types.FiatRate{Symbol: row.Symbol, Rate: row.Rate}
	}
	return out, nil
}

// UpsertFiatRates replaces the stored rates.
func (d *Database) UpsertFiatRates(rates []types.FiatRate) error {
	for _, rate := range rates {
		row := FiatRateRow{Symbol: rate.Symbol, Rate: rate.Rate, UpdatedAt: time.Now()}
		err := d.db.Where("symbol = ?", rate.Symbol).
			Assign(map[string]interface{}{"rate": rate.Rate, "updated_at": row.UpdatedAt}).
			FirstOrCreate(&row).Error
		if err != nil {
			return errors.Wrapf(err, "upsert fiat rate %s", rate.Symbol)
		}
	}
	return nil
}
