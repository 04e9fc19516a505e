package consumer

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/walletbase/walletd/bus"
	"github.com/walletbase/walletd/parser"
	"github.com/walletbase/walletd/types"
	"github.com/walletbase/walletd/walleterrors"
)

// BlocksConsumer drains fetch_blocks: block ranges the parser was too far
// behind to handle inline. It fetches each block and republishes the
// transactions to the chain's store_transactions queue.
type BlocksConsumer struct {
	registry  *parser.Registry
	publisher bus.Publisher
	timeout   time.Duration
}

func NewBlocksConsumer(registry *parser.Registry, publisher bus.Publisher, timeout time.Duration) *BlocksConsumer {
	return &BlocksConsumer{registry: registry, publisher: publisher, timeout: timeout}
}

func (c *BlocksConsumer) Name() string { return "fetch_blocks" }

func (c *BlocksConsumer) ShouldProcess(payload json.RawMessage) bool {
	var p types.BlockRangePayload
	return json.Unmarshal(payload, &p) == nil && len(p.Blocks) > 0
}

func (c *BlocksConsumer) Process(ctx context.Context, payload json.RawMessage) (int, error) {
	var p types.BlockRangePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return 0, walleterrors.Invariant("malformed block range payload: %v", err)
	}
	provider, err := c.registry.Provider(p.Chain)
	if err != nil {
		return 0, walleterrors.Invariant("block range for unknown chain %s", p.Chain)
	}

	results := make([][]types.Transaction, len(p.Blocks))
	g, gctx := errgroup.WithContext(ctx)
	for i, block := range p.Blocks {
		i, block := i, block
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(gctx, c.timeout)
			defer cancel()
			txs, err := provider.GetTransactions(fetchCtx, block)
			if err != nil {
				return walleterrors.E(walleterrors.KindTransient, err)
			}
			results[i] = txs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	queue := bus.QueueStoreTransactions.ForChain(p.Chain)
	count := 0
	for i, block := range p.Blocks {
		err := c.publisher.Publish(queue, types.TransactionsPayload{
			Chain:        p.Chain,
			Block:        block,
			Transactions: results[i],
		}, nil)
		if err != nil {
			return count, err
		}
		count += len(results[i])
	}
	return count, nil
}
