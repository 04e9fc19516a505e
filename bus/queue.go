package bus

import (
	"fmt"

	"github.com/walletbase/walletd/types"
)

// QueueName is the closed set of durable queues.
type QueueName string

const (
	QueueFetchBlocks          QueueName = "fetch_blocks"
	QueueStoreTransactions    QueueName = "store_transactions"
	QueueStorePrices          QueueName = "store_prices"
	QueueStoreCharts          QueueName = "store_charts"
	QueueFetchPrices          QueueName = "fetch_prices"
	QueueFetchAssets          QueueName = "fetch_assets"
	QueueFetchCoinAssoc       QueueName = "fetch_coin_addresses_associations"
	QueueFetchTokenAssoc      QueueName = "fetch_token_addresses_associations"
	QueueFetchNftAssoc        QueueName = "fetch_nft_assets_addresses_associations"
	QueueFetchTransactions    QueueName = "fetch_transactions"
	QueueNotificationsTxs     QueueName = "notifications_transactions"
	QueueNotificationsRewards QueueName = "notifications_rewards"
	QueueRewardsEvents        QueueName = "rewards_events"
	QueueRewardsRedemptions   QueueName = "rewards_redemptions"
)

// AllQueues lists every queue that is declared at startup.
func AllQueues() []QueueName {
	return []QueueName{
		QueueFetchBlocks,
		QueueStoreTransactions,
		QueueStorePrices,
		QueueStoreCharts,
		QueueFetchPrices,
		QueueFetchAssets,
		QueueFetchCoinAssoc,
		QueueFetchTokenAssoc,
		QueueFetchNftAssoc,
		QueueFetchTransactions,
		QueueNotificationsTxs,
		QueueNotificationsRewards,
		QueueRewardsEvents,
		QueueRewardsRedemptions,
	}
}

// ForChain derives the per-chain variant of a queue.
func (q QueueName) ForChain(chain types.Chain) QueueName {
	return QueueName(fmt.Sprintf("%s.%s", q, chain))
}

func (q QueueName) String() string { return string(q) }

// ExchangeName is the closed set of fan-out exchanges.
type ExchangeName string

const (
	ExchangeNewAddresses ExchangeName = "new_addresses"
)

func AllExchanges() []ExchangeName {
	return []ExchangeName{ExchangeNewAddresses}
}

func (e ExchangeName) String() string { return string(e) }
