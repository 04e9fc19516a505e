package store

import (
	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"

	"github.com/walletbase/walletd/types"
	"github.com/walletbase/walletd/walleterrors"
)

func (d *Database) GetDevice(deviceId string) (types.Device, error) {
	var row DeviceRow
	err := d.db.Where("device_id = ?", deviceId).First(&row).Error
	if gorm.IsRecordNotFoundError(err) {
		return types.Device{}, walleterrors.NotFound("device " + deviceId)
	}
	if err != nil {
		return types.Device{}, errors.Wrap(err, "get device")
	}
	return types.Device{
		Id:                   row.Id,
		DeviceId:             row.DeviceId,
		Token:                row.Token,
		Platform:             types.Platform(row.Platform),
		Locale:               row.Locale,
		PushEnabled:          row.PushEnabled,
		SubscriptionsVersion: row.SubscriptionsVersion,
	}, nil
}

// GetDevicePublicKey returns the device's registered ed25519 public key,
// hex-encoded, for signature verification.
func (d *Database) GetDevicePublicKey(deviceId string) (string, error) {
	var row DeviceRow
	err := d.db.Select("public_key").Where("device_id = ?", deviceId).First(&row).Error
	if gorm.IsRecordNotFoundError(err) {
		return "", walleterrors.NotFound("device " + deviceId)
	}
	if err != nil {
		return "", errors.Wrap(err, "get device key")
	}
	if row.PublicKey == "" {
		return "", walleterrors.NotFound("device key " + deviceId)
	}
	return row.PublicKey, nil
}

// DisablePush flips push_enabled off, used when the push gateway reports
// the token unregistered.
func (d *Database) DisablePush(deviceId int64) error {
	return errors.Wrap(d.db.Model(&DeviceRow{}).
		Where("id = ?", deviceId).
		Update("push_enabled", false).Error, "disable push")
}
