package selfplay

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dual "github.com/sigmazero/sigmazero/dualnet"
	"github.com/sigmazero/sigmazero/mcts"
)

func tinyNetworkConfig() dual.Config {
	return dual.Config{
		K:            4,
		SharedLayers: 1,
		FC:           8,
		Width:        8,
		Height:       8,
		Features:     21,
		ActionSpace:  4672,
	}
}

func tinyDriverConfig(workers int) Config {
	conf := DefaultConfig(workers, "")
	conf.FastSims = 2
	conf.FullSims = 2
	conf.MCTS = mcts.DefaultConfig()
	return conf
}

func TestNewSizesNetworkBatchToWorkerCount(t *testing.T) {
	var out bytes.Buffer
	d, err := New(tinyDriverConfig(3), tinyNetworkConfig(), &out)
	require.NoError(t, err)
	assert.Len(t, d.workers, 3)

	nn := tinyNetworkConfig()
	values, _, err := d.nn.Forward(make([]float32, 3*nn.Features*nn.Height*nn.Width))
	require.NoError(t, err)
	assert.Len(t, values, 3)
}

func TestIterationAdvancesEveryWorkerByOnePly(t *testing.T) {
	var out bytes.Buffer
	d, err := New(tinyDriverConfig(2), tinyNetworkConfig(), &out)
	require.NoError(t, err)

	require.NoError(t, d.iteration())
	for _, w := range d.workers {
		assert.Equal(t, 1, w.g.Ply())
	}
}

// TestRootVisitCountGrowsByExactlyTheConfiguredSimsOnAReusedRoot guards
// against re-running a select/expand/backup cycle against a root that
// ShiftRoot already reused from the previous move's search: such a root is
// already expanded, so its per-move visit growth across the simulation
// loop must equal sims exactly, with no extra uncounted simulation folded
// in by initRoots.
func TestRootVisitCountGrowsByExactlyTheConfiguredSimsOnAReusedRoot(t *testing.T) {
	var out bytes.Buffer
	const sims = 5
	conf := tinyDriverConfig(4)
	conf.FastSims, conf.FullSims = sims, sims
	d, err := New(conf, tinyNetworkConfig(), &out)
	require.NoError(t, err)

	require.NoError(t, d.initRoots())
	for s := 0; s < sims; s++ {
		require.NoError(t, d.simulationRound())
	}
	require.NoError(t, d.commitAll(false))

	wasExpanded := make([]bool, len(d.workers))
	before := make([]uint32, len(d.workers))
	for i, w := range d.workers {
		wasExpanded[i] = w.tree.RootExpanded()
		before[i] = w.tree.RootVisitCount()
	}

	require.NoError(t, d.initRoots())
	for s := 0; s < sims; s++ {
		require.NoError(t, d.simulationRound())
	}

	for i, w := range d.workers {
		want := before[i] + sims
		if !wasExpanded[i] {
			want++ // a genuinely fresh root's one-time expansion backup
		}
		assert.Equal(t, want, w.tree.RootVisitCount(),
			"reused-root second move must not run an extra uncounted simulation")
	}
}

func TestWarmupRecordsEveryMoveUntilFillWindowSize(t *testing.T) {
	var out bytes.Buffer
	conf := tinyDriverConfig(1)
	conf.FillWindowSize = 1000
	d, err := New(conf, tinyNetworkConfig(), &out)
	require.NoError(t, err)
	assert.True(t, d.warmup())

	d.movesOut = conf.FillWindowSize
	assert.False(t, d.warmup())
}
