// Package parser runs the per-chain ingestion loops: latest-block polling,
// block planning and dispatch of raw transactions onto the bus.
package parser

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/walletbase/walletd/bus"
	"github.com/walletbase/walletd/cache"
	"github.com/walletbase/walletd/log"
	"github.com/walletbase/walletd/metrics"
	"github.com/walletbase/walletd/store"
	"github.com/walletbase/walletd/types"
)

var logger = log.NewModuleLogger("parser")

const (
	latestBlockRetries = 5
	// stateReloadInterval is how many remaining blocks apart the loop
	// refreshes parser state while catching up.
	stateReloadInterval = 100
)

// StateStore is the persistence surface the parser needs.
type StateStore interface {
	GetParserState(chain types.Chain) (store.ParserState, error)
	SetParserCurrentBlock(chain types.Chain, block int64) error
	SetParserLatestBlock(chain types.Chain, block int64) error
}

// BlockCache is the cache surface the parser needs.
type BlockCache interface {
	Set(key cache.CacheKey, value interface{}) error
}

type Parser struct {
	chain     types.Chain
	db        StateStore
	cacher    BlockCache
	publisher bus.Publisher
	registry  *Registry
	jobs      *metrics.JobMetrics
	// baseTimeout is the floor for provider calls and loop sleeps.
	baseTimeout time.Duration
}

func New(chain types.Chain, db StateStore, cacher BlockCache, publisher bus.Publisher, registry *Registry, jobs *metrics.JobMetrics, baseTimeout time.Duration) *Parser {
	return &Parser{
		chain:       chain,
		db:          db,
		cacher:      cacher,
		publisher:   publisher,
		registry:    registry,
		jobs:        jobs,
		baseTimeout: baseTimeout,
	}
}

// Run drives the loop until ctx is cancelled. State persists every
// iteration, so a restart resumes from the last current_block.
func (p *Parser) Run(ctx context.Context) {
	logger.Infow("parser started", "chain", p.chain)
	for {
		state, err := p.db.GetParserState(p.chain)
		if err != nil {
			p.reportError("load_state", err)
			if !p.sleep(ctx, p.baseTimeout) {
				return
			}
			continue
		}
		if !state.IsEnabled {
			if !p.sleep(ctx, TimeoutForState(state, p.baseTimeout)) {
				return
			}
			continue
		}
		if err := p.iterate(ctx, state); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.reportError("iterate", err)
			if !p.sleep(ctx, p.baseTimeout) {
				return
			}
			continue
		}
		if ctx.Err() != nil {
			logger.Infow("parser stopped", "chain", p.chain)
			return
		}
	}
}

func (p *Parser) iterate(ctx context.Context, state store.ParserState) error {
	provider, err := p.registry.Provider(p.chain)
	if err != nil {
		return err
	}

	start := time.Now()
	latest, err := p.latestBlockWithRetries(ctx, provider, state)
	if err != nil {
		return err
	}
	if err := p.db.SetParserLatestBlock(p.chain, latest); err != nil {
		return err
	}
	// Best-effort snapshot for the metrics endpoint.
	if err := p.cacher.Set(cache.ParserLatestBlock(p.chain), latest); err != nil {
		logger.Warnw("latest block cache write failed", "chain", p.chain, "err", err)
	}

	plan := PlanNextBlock(state, state.CurrentBlock, latest)
	if plan == nil {
		p.jobs.ReportSuccess("parser", p.chain.String(), time.Since(start))
		if !p.sleep(ctx, TimeoutForState(state, p.baseTimeout)) {
			return ctx.Err()
		}
		return nil
	}

	switch plan.Kind {
	case PlanEnqueue:
		err = p.publisher.Publish(bus.QueueFetchBlocks, types.BlockRangePayload{
			Chain:  p.chain,
			Blocks: plan.Blocks,
		}, nil)
	case PlanParse:
		err = p.parseBlocks(ctx, provider, plan.Blocks)
	}
	if err != nil {
		return err
	}
	if err := p.db.SetParserCurrentBlock(p.chain, plan.EndBlock); err != nil {
		return err
	}
	p.jobs.ReportSuccess("parser", p.chain.String(), time.Since(start))
	logger.Debugw("blocks planned", "chain", p.chain,
		"end", plan.EndBlock, "remaining", plan.Remaining, "kind", plan.Kind.String())

	if plan.Remaining > 0 && !ShouldReloadCatchup(plan.Remaining, stateReloadInterval) {
		// Still behind: continue immediately with the block-gap sleep only.
		if !p.sleep(ctx, state.TimeoutBetweenBlocks) {
			return ctx.Err()
		}
	}
	return nil
}

// parseBlocks fetches every block of the plan in parallel, bounded by the
// plan width, and publishes one TransactionsPayload per block to the
// chain's store_transactions queue. Block emission stays monotonic: the
// payloads are published in block order after all fetches finish.
func (p *Parser) parseBlocks(ctx context.Context, provider ChainProvider, blocks []int64) error {
	results := make([][]types.Transaction, len(blocks))
	g, gctx := errgroup.WithContext(ctx)
	for i, block := range blocks {
		i, block := i, block
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(gctx, p.baseTimeout)
			defer cancel()
			txs, err := provider.GetTransactions(fetchCtx, block)
			if err != nil {
				return err
			}
			results[i] = txs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	queue := bus.QueueStoreTransactions.ForChain(p.chain)
	for i, block := range blocks {
		payload := types.TransactionsPayload{
			Chain:        p.chain,
			Block:        block,
			Transactions: results[i],
		}
		if err := p.publisher.Publish(queue, payload, nil); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) latestBlockWithRetries(ctx context.Context, provider ChainProvider, state store.ParserState) (int64, error) {
	var lastErr error
	for attempt := 0; attempt < latestBlockRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, TimeoutForState(state, p.baseTimeout))
		latest, err := provider.GetLatestBlock(callCtx)
		cancel()
		if err == nil {
			return latest, nil
		}
		lastErr = err
		p.reportError("latest_block", err)
		if !p.sleep(ctx, p.baseTimeout*time.Duration(1<<uint(attempt))) {
			return 0, ctx.Err()
		}
	}
	return 0, lastErr
}

func (p *Parser) reportError(op string, err error) {
	p.jobs.ReportError("parser", p.chain.String(), err)
	logger.Errorw("parser "+op+" failed", "chain", p.chain, "err", err)
}

// sleep waits d or until shutdown; returns false on shutdown.
func (p *Parser) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
