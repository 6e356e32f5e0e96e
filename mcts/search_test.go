package mcts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigmazero/sigmazero/boardimage"
	"github.com/sigmazero/sigmazero/game"
)

const historyDepth = 1

// uniformInfer returns value 0 and a flat zero policy (every legal action
// gets equal mass once projected through LegalPolicy's softmax).
func uniformInfer(images []float32, batch int) ([]float32, []float32, error) {
	values := make([]float32, batch)
	logits := make([]float32, batch*4672)
	return values, logits, nil
}

func TestRunSimulationExpandsRootWithLegalActions(t *testing.T) {
	g := game.New()
	tree := New(DefaultConfig())

	require.NoError(t, tree.RunSimulation(g, historyDepth, uniformInfer))

	legal, err := g.LegalActions()
	require.NoError(t, err)

	policy := tree.VisitPolicy()
	assert.Len(t, policy, len(legal))
}

func TestRunSimulationAccumulatesVisitsAcrossCalls(t *testing.T) {
	g := game.New()
	tree := New(DefaultConfig())

	for i := 0; i < 10; i++ {
		require.NoError(t, tree.RunSimulation(g, historyDepth, uniformInfer))
	}
	assert.Equal(t, uint32(10), tree.RootVisitCount())

	var total float32
	for _, p := range tree.VisitPolicy() {
		total += p
	}
	assert.InDelta(t, 1.0, total, 1e-4)
}

func TestTraverseReturnsTerminalValueAtCheckmate(t *testing.T) {
	g, err := game.FromFEN("rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3")
	require.NoError(t, err)
	tree := New(DefaultConfig())

	leaf, err := tree.Traverse(g)
	require.NoError(t, err)
	assert.True(t, leaf.Terminal)
	assert.Equal(t, float32(-1), leaf.Value)
}

func TestEncodeSucceedsOnSimulationLeaf(t *testing.T) {
	g := game.New()
	tree := New(DefaultConfig())
	leaf, err := tree.Traverse(g)
	require.NoError(t, err)
	require.False(t, leaf.Terminal)

	img, err := boardimage.Encode(leaf.Position, historyDepth)
	require.NoError(t, err)
	assert.Equal(t, boardimage.Channels(historyDepth), img.C)
}
