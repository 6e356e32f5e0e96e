package selfplay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigmazero/sigmazero/action"
	"github.com/sigmazero/sigmazero/game"
	"github.com/sigmazero/sigmazero/mcts"
	"github.com/sigmazero/sigmazero/replay"
)

// uniformExpand evaluates a worker's pending leaf with a flat policy (equal
// mass on every legal action once projected by the caller) and value 0.
func uniformExpand(t *testing.T, task *leafTask) {
	t.Helper()
	legal, err := task.leaf.Position.LegalActions()
	require.NoError(t, err)

	priors := make(map[int]float32, len(legal))
	for _, a := range legal {
		priors[a] = 1.0 / float32(len(legal))
	}
	task.worker.tree.ExpandLeaf(task.leaf, 0, priors)
}

func TestCollectLeafExpandsAndReturnsTask(t *testing.T) {
	w := newWorker(0, mcts.DefaultConfig())

	task, err := w.collectLeaf()
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.False(t, task.leaf.Terminal)

	uniformExpand(t, task)
	assert.Greater(t, w.tree.Size(), 1)
}

func TestCollectLeafBacksUpTerminalWithoutATask(t *testing.T) {
	w := newWorker(0, mcts.DefaultConfig())

	g, err := game.FromFEN("rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3")
	require.NoError(t, err)
	w.g = g

	task, err := w.collectLeaf()
	require.NoError(t, err)
	assert.Nil(t, task)
	assert.Equal(t, uint32(1), w.tree.RootVisitCount())
}

func TestCommitMoveAdvancesGameAndReusesSubtree(t *testing.T) {
	w := newWorker(0, mcts.DefaultConfig())
	task, err := w.collectLeaf()
	require.NoError(t, err)
	uniformExpand(t, task)

	startPly := w.g.Ply()
	require.NoError(t, w.commitMove(1, true, false))
	assert.Equal(t, startPly+1, w.g.Ply())
	assert.Len(t, w.pending, 1)
}

func TestCommitMoveWithVerboseDoesNotAlterRecordedState(t *testing.T) {
	w := newWorker(0, mcts.DefaultConfig())
	task, err := w.collectLeaf()
	require.NoError(t, err)
	uniformExpand(t, task)

	require.NoError(t, w.commitMove(1, true, true))
	assert.Len(t, w.pending, 1)
	assert.NotEmpty(t, w.pending[0].policy, "verbose logging must not suppress the recorded visit policy")
}

func TestFinishFillsTerminalValuePerRecordSideToMove(t *testing.T) {
	w := newWorker(0, mcts.DefaultConfig())
	task, err := w.collectLeaf()
	require.NoError(t, err)
	uniformExpand(t, task)
	require.NoError(t, w.commitMove(1, true, false))

	out := make(chan replay.Record, 8)
	w.finish(out, mcts.DefaultConfig())
	close(out)

	var got []replay.Record
	for r := range out {
		got = append(got, r)
	}
	require.Len(t, got, 1)
	assert.Len(t, got[0].Policy, actionSpace)
	assert.Equal(t, float32(0), got[0].Value) // no result yet: recorded as a draw

	// White to move and checkmated: White's records get -1, Black's +1.
	mated, err := game.FromFEN("rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3")
	require.NoError(t, err)
	w.g = mated
	w.pending = []moveRecord{{sideToMove: action.White}, {sideToMove: action.Black}}
	out = make(chan replay.Record, 2)
	w.finish(out, mcts.DefaultConfig())
	close(out)
	assert.Equal(t, float32(-1), (<-out).Value)
	assert.Equal(t, float32(1), (<-out).Value)
}

func TestMoveTemperatureSwitchesToGreedyAfterSamplingWindow(t *testing.T) {
	assert.Equal(t, float32(1.0), moveTemperature(0))
	assert.Equal(t, float32(1.0), moveTemperature(29))
	assert.Equal(t, float32(0), moveTemperature(30))
}

func TestExpandPolicyScattersSparseMassIntoDenseVector(t *testing.T) {
	dense := expandPolicy(map[int]float32{3: 0.25, 10: 0.75})
	assert.Len(t, dense, actionSpace)
	assert.Equal(t, float32(0.25), dense[3])
	assert.Equal(t, float32(0.75), dense[10])
}
