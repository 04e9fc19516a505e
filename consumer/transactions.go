// Package consumer implements the queue consumers: transactions,
// fetch-blocks, prices, charts and asset fetching.
package consumer

import (
	"context"
	"encoding/json"
	"math/big"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/walletbase/walletd/bus"
	"github.com/walletbase/walletd/log"
	"github.com/walletbase/walletd/types"
	"github.com/walletbase/walletd/walleterrors"
)

var logger = log.NewModuleLogger("consumer")

// requestedAssetsLRU bounds the set of token ids already sent to the
// asset fetcher, so a burst of transfers of one unseen token enqueues a
// single fetch.
const requestedAssetsLRU = 4096

// TransactionsStore is the persistence surface of the transactions
// consumer.
type TransactionsStore interface {
	HasAsset(id types.AssetId) (bool, error)
	GetAsset(id types.AssetId) (types.Asset, error)
	GetPrice(id types.AssetId) (types.Price, error)
	UpsertTransaction(tx types.Transaction) error
	MatchSubscriptions(chain types.Chain, addresses []string) ([]types.Recipient, error)
}

// WalletEventPublisher delivers stream events to connected wallets.
type WalletEventPublisher interface {
	PublishWalletEvent(walletId int64, event types.StreamEvent) error
}

type TransactionsConsumer struct {
	name      string
	db        TransactionsStore
	publisher bus.Publisher
	events    WalletEventPublisher
	requested *lru.Cache
	// minNotifyUSD is the transfer value floor below which no
	// notification is produced.
	minNotifyUSD float64
	// deferred marks the fetch_transactions replay: an asset that is
	// still unseen there is a Transient error, so the runner's backoff
	// gives the asset fetcher time to land before dead-lettering.
	deferred bool
	now      func() time.Time
}

func NewTransactionsConsumer(db TransactionsStore, publisher bus.Publisher, events WalletEventPublisher, minNotifyUSD float64) *TransactionsConsumer {
	requested, _ := lru.New(requestedAssetsLRU)
	return &TransactionsConsumer{
		name:         "transactions",
		db:           db,
		publisher:    publisher,
		events:       events,
		requested:    requested,
		minNotifyUSD: minNotifyUSD,
		now:          time.Now,
	}
}

// NewDeferredTransactionsConsumer handles fetch_transactions: the same
// pipeline, replaying transactions that were parked behind an asset
// fetch.
func NewDeferredTransactionsConsumer(db TransactionsStore, publisher bus.Publisher, events WalletEventPublisher, minNotifyUSD float64) *TransactionsConsumer {
	c := NewTransactionsConsumer(db, publisher, events, minNotifyUSD)
	c.name = string(bus.QueueFetchTransactions)
	c.deferred = true
	return c
}

func (c *TransactionsConsumer) Name() string { return c.name }

func (c *TransactionsConsumer) ShouldProcess(payload json.RawMessage) bool {
	var p types.TransactionsPayload
	return json.Unmarshal(payload, &p) == nil && len(p.Transactions) > 0
}

// Process handles one TransactionsPayload and returns the number of
// notified recipients.
func (c *TransactionsConsumer) Process(ctx context.Context, payload json.RawMessage) (int, error) {
	var p types.TransactionsPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return 0, walleterrors.Invariant("malformed transactions payload: %v", err)
	}
	notified := 0
	for _, tx := range p.Transactions {
		n, err := c.processTransaction(ctx, p.Chain, tx)
		if err != nil {
			return notified, err
		}
		notified += n
	}
	return notified, nil
}

func (c *TransactionsConsumer) processTransaction(ctx context.Context, chain types.Chain, tx types.Transaction) (int, error) {
	if tx.IsOutdated(c.now()) {
		logger.Debugw("outdated transaction dropped", "id", tx.Id, "created_at", tx.CreatedAt)
		return 0, nil
	}

	// Unseen tokens go to the asset fetcher; the transaction is parked
	// on fetch_transactions and replayed once the asset exists.
	if !tx.AssetId.IsNative() {
		known, err := c.db.HasAsset(tx.AssetId)
		if err != nil {
			return 0, err
		}
		if !known {
			if err := c.requestAsset(tx.AssetId); err != nil {
				return 0, err
			}
			if c.deferred {
				return 0, walleterrors.Transient("asset %s not fetched yet", tx.AssetId)
			}
			return 0, c.deferTransaction(chain, tx)
		}
	}

	if c.isBelowNotifyFloor(tx) {
		return 0, nil
	}

	recipients, err := c.db.MatchSubscriptions(chain, tx.Addresses())
	if err != nil {
		return 0, err
	}

	if err := c.db.UpsertTransaction(tx); err != nil {
		if walleterrors.KindOf(err) == walleterrors.KindInvariant {
			logger.Errorw("transaction state regression dropped", "id", tx.Id, "err", err)
			return 0, nil
		}
		return 0, err
	}

	if len(recipients) == 0 {
		return 0, nil
	}

	if err := c.publishAssociations(chain, recipients); err != nil {
		return 0, err
	}
	return c.fanOut(tx, recipients)
}

// isBelowNotifyFloor applies the amount filter: for transfers with a
// known asset and price, drop when the fiat value is under the floor.
// Unknown asset or price, or a non-transfer type, always keeps.
func (c *TransactionsConsumer) isBelowNotifyFloor(tx types.Transaction) bool {
	if tx.Type != types.TransactionTypeTransfer {
		return false
	}
	asset, err := c.db.GetAsset(tx.AssetId)
	if err != nil {
		return false
	}
	price, err := c.db.GetPrice(tx.AssetId)
	if err != nil {
		return false
	}
	value, ok := TransferFiatValue(tx.Value, asset.Decimals, price.Price)
	if !ok {
		return false
	}
	return value < c.minNotifyUSD
}

// TransferFiatValue computes value*price scaled by decimals. Returns
// false when value is not a base-10 integer.
func TransferFiatValue(value string, decimals int32, price float64) (float64, bool) {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return 0, false
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	units := new(big.Float).Quo(new(big.Float).SetInt(amount), scale)
	fiat := new(big.Float).Mul(units, big.NewFloat(price))
	out, _ := fiat.Float64()
	return out, true
}

func (c *TransactionsConsumer) requestAsset(id types.AssetId) error {
	key := id.String()
	if _, ok := c.requested.Get(key); ok {
		return nil
	}
	err := c.publisher.Publish(bus.QueueFetchAssets, types.FetchAssetsPayload{AssetIds: []string{key}}, nil)
	if err != nil {
		return errors.Wrap(err, "enqueue asset fetch")
	}
	c.requested.Add(key, struct{}{})
	return nil
}

// deferTransaction parks a transaction whose asset is still being
// fetched. The replay consumer picks it up from fetch_transactions.
func (c *TransactionsConsumer) deferTransaction(chain types.Chain, tx types.Transaction) error {
	err := c.publisher.Publish(bus.QueueFetchTransactions, types.TransactionsPayload{
		Chain:        chain,
		Block:        tx.BlockNumber,
		Transactions: []types.Transaction{tx},
	}, nil)
	return errors.Wrap(err, "defer transaction")
}

// publishAssociations fans matched addresses out on the new_addresses
// exchange exactly once per delivery.
func (c *TransactionsConsumer) publishAssociations(chain types.Chain, recipients []types.Recipient) error {
	seen := map[string]struct{}{}
	var addresses []string
	for _, r := range recipients {
		addr := r.Subscription.Address
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		addresses = append(addresses, addr)
	}
	return errors.Wrap(c.publisher.PublishExchange(bus.ExchangeNewAddresses, types.NewAddressesPayload{
		Chain:     chain,
		Addresses: addresses,
	}, nil), "publish new addresses")
}

// fanOut pushes one notification job per recipient and one stream event
// per impacted wallet.
func (c *TransactionsConsumer) fanOut(tx types.Transaction, recipients []types.Recipient) (int, error) {
	wallets := map[int64]struct{}{}
	for _, r := range recipients {
		err := c.publisher.Publish(bus.QueueNotificationsTxs, types.NotificationPayload{
			Recipient:   r,
			Transaction: tx,
		}, nil)
		if err != nil {
			return 0, errors.Wrap(err, "enqueue notification")
		}
		wallets[r.Subscription.WalletId] = struct{}{}
	}
	for walletId := range wallets {
		event := types.NewTransactionsStreamEvent(walletId, []types.TransactionId{tx.Id})
		if err := c.events.PublishWalletEvent(walletId, event); err != nil {
			// Stream publication is best-effort; pushes already queued.
			logger.Warnw("wallet stream publish failed", "wallet", walletId, "err", err)
		}
	}
	return len(recipients), nil
}
