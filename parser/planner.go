package parser

import (
	"time"

	"github.com/walletbase/walletd/store"
)

// PlanKind selects how a block range is processed: inline by the parser
// loop, or enqueued to fetch_blocks for scale-out workers.
type PlanKind int

const (
	PlanParse PlanKind = iota
	PlanEnqueue
)

func (k PlanKind) String() string {
	if k == PlanEnqueue {
		return "enqueue"
	}
	return "parse"
}

// BlockPlan is the next batch of blocks to fetch for one chain.
type BlockPlan struct {
	Blocks    []int64
	EndBlock  int64
	Remaining int64
	Kind      PlanKind
}

// PlanNextBlock computes the next contiguous batch. AwaitBlocks is the
// reorg safety margin: the plan never reaches past latest-await. Returns
// nil when there is nothing to do.
func PlanNextBlock(state store.ParserState, currentBlock, latestBlock int64) *BlockPlan {
	if state.ParallelBlocks <= 0 {
		return nil
	}
	start := currentBlock + 1
	end := start + int64(state.ParallelBlocks) - 1
	if max := latestBlock - int64(state.AwaitBlocks); end > max {
		end = max
	}
	if end < start {
		return nil
	}
	blocks := make([]int64, 0, end-start+1)
	for b := start; b <= end; b++ {
		blocks = append(blocks, b)
	}
	remaining := latestBlock - end - int64(state.AwaitBlocks)
	kind := PlanParse
	if state.QueueBehindBlocks != nil && remaining > int64(*state.QueueBehindBlocks) {
		kind = PlanEnqueue
	}
	return &BlockPlan{
		Blocks:    blocks,
		EndBlock:  end,
		Remaining: remaining,
		Kind:      kind,
	}
}

// TimeoutForState returns the loop sleep for a chain: the per-state
// latest-block timeout, floored by the base timeout.
func TimeoutForState(state store.ParserState, base time.Duration) time.Duration {
	if state.TimeoutLatestBlock > base {
		return state.TimeoutLatestBlock
	}
	return base
}

// ShouldReloadCatchup reports whether a catching-up loop should refresh
// its parser state: every interval blocks of remaining distance.
func ShouldReloadCatchup(remaining, interval int64) bool {
	return remaining > 0 && interval > 0 && remaining%interval == 0
}
