package store

import (
	"time"

	"github.com/pkg/errors"

	"github.com/walletbase/walletd/types"
)

// Node is one upstream RPC endpoint for a chain.
type Node struct {
	Chain    types.Chain
	URL      string
	Priority int32
	Enabled  bool
}

// GetNodes returns the enabled upstream nodes ordered by priority, the
// dynode upstream configuration source.
func (d *Database) GetNodes(chain types.Chain) ([]Node, error) {
	var rows []NodeRow
	err := d.db.Where("chain = ? AND enabled = ?", chain.String(), true).
		Order("priority DESC").Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "get nodes")
	}
	out := make([]Node, len(rows))
	for i, row := range rows {
		out[i] = Node{Chain: chain, URL: row.URL, Priority: row.Priority, Enabled: row.Enabled}
	}
	return out, nil
}

// UpdateFiatTransaction persists a provider webhook order update, keyed
// by (provider, order id).
func (d *Database) UpdateFiatTransaction(provider, orderId, status, assetId string, fiatAmount float64, currency string) error {
	row := FiatTransactionRow{
		Provider:     provider,
		OrderId:      orderId,
		AssetId:      assetId,
		FiatAmount:   fiatAmount,
		FiatCurrency: currency,
		Status:       status,
	}
	err := d.db.Where("provider = ? AND order_id = ?", provider, orderId).
		Assign(map[string]interface{}{"status": status, "updated_at": time.Now()}).
		FirstOrCreate(&row).Error
	return errors.Wrapf(err, "fiat transaction %s/%s", provider, orderId)
}
