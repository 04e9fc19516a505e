package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletbase/walletd/store"
)

func intp(n int32) *int32 { return &n }

func testState(await, parallel int32, queueBehind *int32) store.ParserState {
	return store.ParserState{
		AwaitBlocks:       await,
		ParallelBlocks:    parallel,
		QueueBehindBlocks: queueBehind,
	}
}

func TestPlanNextBlockMidCatchup(t *testing.T) {
	plan := PlanNextBlock(testState(1, 3, intp(2)), 5, 20)
	require.NotNil(t, plan)
	assert.Equal(t, []int64{6, 7, 8}, plan.Blocks)
	assert.EqualValues(t, 8, plan.EndBlock)
	assert.EqualValues(t, 11, plan.Remaining)
	assert.Equal(t, PlanEnqueue, plan.Kind)
}

func TestPlanNextBlockNearTip(t *testing.T) {
	plan := PlanNextBlock(testState(1, 3, intp(2)), 5, 10)
	require.NotNil(t, plan)
	assert.Equal(t, []int64{6, 7, 8}, plan.Blocks)
	assert.EqualValues(t, 8, plan.EndBlock)
	assert.EqualValues(t, 1, plan.Remaining)
	assert.Equal(t, PlanParse, plan.Kind)
}

func TestPlanNextBlockCapsAtAwaitMargin(t *testing.T) {
	plan := PlanNextBlock(testState(2, 10, nil), 5, 10)
	require.NotNil(t, plan)
	// end capped at latest - await = 8.
	assert.Equal(t, []int64{6, 7, 8}, plan.Blocks)
	assert.EqualValues(t, 8, plan.EndBlock)
	assert.EqualValues(t, 0, plan.Remaining)
}

func TestPlanNextBlockNone(t *testing.T) {
	// current+1 > latest-await.
	assert.Nil(t, PlanNextBlock(testState(1, 3, nil), 9, 10))
	assert.Nil(t, PlanNextBlock(testState(0, 3, nil), 10, 10))
	// Non-positive batch width.
	assert.Nil(t, PlanNextBlock(testState(0, 0, nil), 5, 10))
}

func TestPlanNextBlockContiguousAscendingBounded(t *testing.T) {
	for current := int64(0); current < 30; current++ {
		plan := PlanNextBlock(testState(1, 5, nil), current, 25)
		if plan == nil {
			assert.True(t, current+1 > 25-1)
			continue
		}
		assert.LessOrEqual(t, len(plan.Blocks), 5)
		for i, b := range plan.Blocks {
			assert.Equal(t, current+1+int64(i), b)
		}
		assert.Equal(t, plan.Blocks[len(plan.Blocks)-1], plan.EndBlock)
	}
}

func TestPlanNoQueueBehindNeverEnqueues(t *testing.T) {
	plan := PlanNextBlock(testState(1, 3, nil), 5, 1000)
	require.NotNil(t, plan)
	assert.Equal(t, PlanParse, plan.Kind)
}

func TestTimeoutForState(t *testing.T) {
	state := store.ParserState{TimeoutLatestBlock: 2 * time.Second}
	assert.Equal(t, 2*time.Second, TimeoutForState(state, time.Second))
	assert.Equal(t, 5*time.Second, TimeoutForState(state, 5*time.Second))
}

func TestShouldReloadCatchup(t *testing.T) {
	assert.True(t, ShouldReloadCatchup(100, 50))
	assert.False(t, ShouldReloadCatchup(101, 50))
	assert.False(t, ShouldReloadCatchup(0, 50))
	assert.False(t, ShouldReloadCatchup(100, 0))
}
