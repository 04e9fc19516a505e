package types

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// StreamMessageType tags client-to-server stream messages.
type StreamMessageType string

const (
	StreamMsgSubscribePrices           StreamMessageType = "prices_subscribe"
	StreamMsgAddPrices                 StreamMessageType = "prices_add"
	StreamMsgUnsubscribePrices         StreamMessageType = "prices_unsubscribe"
	StreamMsgSubscribeRealtimePrices   StreamMessageType = "realtime_prices_subscribe"
	StreamMsgUnsubscribeRealtimePrices StreamMessageType = "realtime_prices_unsubscribe"
)

// StreamMessage is the client-to-server tagged union. Exactly one message
// kind is encoded per frame; Assets applies to every kind.
type StreamMessage struct {
	Type   StreamMessageType `json:"type"`
	Assets []AssetId         `json:"assets,omitempty"`
}

func DecodeStreamMessage(data []byte) (StreamMessage, error) {
	var msg StreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return StreamMessage{}, errors.Wrap(err, "decode stream message")
	}
	switch msg.Type {
	case StreamMsgSubscribePrices, StreamMsgAddPrices, StreamMsgUnsubscribePrices,
		StreamMsgSubscribeRealtimePrices, StreamMsgUnsubscribeRealtimePrices:
		return msg, nil
	default:
		return StreamMessage{}, errors.Errorf("unknown stream message type %q", msg.Type)
	}
}

// StreamEventType tags server-to-client stream events.
type StreamEventType string

const (
	StreamEventPrices            StreamEventType = "prices"
	StreamEventBalances          StreamEventType = "balances"
	StreamEventTransactions      StreamEventType = "transactions"
	StreamEventPriceAlerts       StreamEventType = "price_alerts"
	StreamEventNft               StreamEventType = "nft"
	StreamEventInAppNotification StreamEventType = "notification"
	StreamEventFiatWebhook       StreamEventType = "fiat_webhook"
)

type PricesEvent struct {
	Prices []AssetPrice `json:"prices"`
	Rates  []FiatRate   `json:"rates,omitempty"`
}

type BalancesEvent struct {
	WalletId int64          `json:"wallet_id"`
	Balances []AssetBalance `json:"balances"`
}

type TransactionsEvent struct {
	WalletId       int64           `json:"wallet_id"`
	TransactionIds []TransactionId `json:"transaction_ids"`
}

type PriceAlertsEvent struct {
	Alerts []AssetPrice `json:"alerts"`
}

type NftEvent struct {
	WalletId int64    `json:"wallet_id"`
	AssetIds []string `json:"asset_ids"`
}

type InAppNotificationEvent struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

type FiatWebhookEvent struct {
	Provider string `json:"provider"`
	OrderId  string `json:"order_id"`
	Status   string `json:"status"`
}

// StreamEvent is the server-to-client tagged union. The payload field
// matching Type is set; the rest are nil.
type StreamEvent struct {
	Type         StreamEventType         `json:"type"`
	Prices       *PricesEvent            `json:"prices_event,omitempty"`
	Balances     *BalancesEvent          `json:"balances_event,omitempty"`
	Transactions *TransactionsEvent      `json:"transactions_event,omitempty"`
	PriceAlerts  *PriceAlertsEvent       `json:"price_alerts_event,omitempty"`
	Nft          *NftEvent               `json:"nft_event,omitempty"`
	Notification *InAppNotificationEvent `json:"notification_event,omitempty"`
	FiatWebhook  *FiatWebhookEvent       `json:"fiat_webhook_event,omitempty"`
}

func NewPricesStreamEvent(prices []AssetPrice, rates []FiatRate) StreamEvent {
	return StreamEvent{Type: StreamEventPrices, Prices: &PricesEvent{Prices: prices, Rates: rates}}
}

func NewTransactionsStreamEvent(walletId int64, ids []TransactionId) StreamEvent {
	return StreamEvent{Type: StreamEventTransactions, Transactions: &TransactionsEvent{WalletId: walletId, TransactionIds: ids}}
}

func DecodeStreamEvent(data []byte) (StreamEvent, error) {
	var ev StreamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return StreamEvent{}, errors.Wrap(err, "decode stream event")
	}
	return ev, nil
}
