package types

// Subscription links a wallet address on one chain to a device. The same
// (chain, address) pair may appear under many subscriptions.
type Subscription struct {
	DeviceId    int64  `json:"device_id"`
	WalletId    int64  `json:"wallet_id"`
	WalletIndex int32  `json:"wallet_index"`
	Chain       Chain  `json:"chain"`
	Address     string `json:"address"`
}

type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

type Device struct {
	Id                   int64    `json:"id"`
	DeviceId             string   `json:"device_id"`
	Token                string   `json:"token"`
	Platform             Platform `json:"platform"`
	Locale               string   `json:"locale"`
	PushEnabled          bool     `json:"push_enabled"`
	SubscriptionsVersion int32    `json:"subscriptions_version"`
}

// IsPushable reports whether the device can receive push notifications.
func (d Device) IsPushable() bool {
	return d.PushEnabled && d.Token != ""
}

// Recipient is one (device, subscription) pair selected for notification.
type Recipient struct {
	Device       Device       `json:"device"`
	Subscription Subscription `json:"subscription"`
}

// NotificationPayload is one pusher job on the notifications queues.
type NotificationPayload struct {
	Recipient   Recipient   `json:"recipient"`
	Transaction Transaction `json:"transaction"`
}
