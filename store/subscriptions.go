package store

import (
	"github.com/pkg/errors"

	"github.com/walletbase/walletd/types"
)

type recipientRow struct {
	SubscriptionRow
	DevDeviceId   string
	DevToken      string
	DevPlatform   string
	DevLocale     string
	DevPush       bool
	DevSubVersion int32
}

// MatchSubscriptions returns every (device, subscription) pair watching
// one of the addresses on the chain. Addresses on the exclude list, and
// addresses flagged as fraud in scan_addresses, are dropped inside the
// query via anti-joins; the result never contains them. The read runs in
// a read-only context.
func (d *Database) MatchSubscriptions(chain types.Chain, addresses []string) ([]types.Recipient, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	var rows []recipientRow
	err := d.db.Table("subscriptions").
		Select(`subscriptions.*,
			devices.device_id AS dev_device_id,
			devices.token AS dev_token,
			devices.platform AS dev_platform,
			devices.locale AS dev_locale,
			devices.push_enabled AS dev_push,
			devices.subscriptions_version AS dev_sub_version`).
		Joins("JOIN devices ON devices.id = subscriptions.device_id").
		Joins(`LEFT JOIN subscriptions_addresses_exclude AS excl
			ON excl.chain = subscriptions.chain AND excl.address = subscriptions.address`).
		Joins(`LEFT JOIN scan_addresses AS scan
			ON scan.chain = subscriptions.chain AND scan.address = subscriptions.address
			AND scan.fraud = ?`, true).
		Where("subscriptions.chain = ?", chain.String()).
		Where("subscriptions.address IN (?)", addresses).
		Where("excl.address IS NULL").
		Where("scan.address IS NULL").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "match subscriptions")
	}

	out := make([]types.Recipient, 0, len(rows))
	for _, row := range rows {
		out = append(out, types.Recipient{
			Device: types.Device{
				Id:                   row.DeviceId,
				DeviceId:             row.DevDeviceId,
				Token:                row.DevToken,
				Platform:             types.Platform(row.DevPlatform),
				Locale:               row.DevLocale,
				PushEnabled:          row.DevPush,
				SubscriptionsVersion: row.DevSubVersion,
			},
			Subscription: types.Subscription{
				DeviceId:    row.DeviceId,
				WalletId:    row.WalletId,
				WalletIndex: row.WalletIndex,
				Chain:       chain,
				Address:     row.Address,
			},
		})
	}
	return out, nil
}

// WalletIdsByDeviceId returns the distinct wallet ids the device has
// subscriptions for. The stream server scopes wallet event channels with
// them.
func (d *Database) WalletIdsByDeviceId(deviceId string) ([]int64, error) {
	var ids []int64
	err := d.db.Model(&SubscriptionRow{}).
		Joins("JOIN devices ON devices.id = subscriptions.device_id").
		Where("devices.device_id = ?", deviceId).
		Pluck("DISTINCT subscriptions.wallet_id", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "wallet ids by device")
	}
	return ids, nil
}

// IsAddressExcluded checks the exclude list directly. The matcher already
// anti-joins it; this is for callers outside the matcher.
func (d *Database) IsAddressExcluded(chain types.Chain, address string) (bool, error) {
	var count int
	err := d.db.Model(&SubscriptionAddressExcludeRow{}).
		Where("chain = ? AND address = ?", chain.String(), address).
		Count(&count).Error
	return count > 0, errors.Wrap(err, "exclude lookup")
}
