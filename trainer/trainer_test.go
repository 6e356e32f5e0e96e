package trainer

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dual "github.com/sigmazero/sigmazero/dualnet"
	"github.com/sigmazero/sigmazero/replay"
)

func tinyNNConfig() dual.Config {
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

func fakeRecord(v float32) replay.Record {
	return replay.Record{
		Image:  make([]float32, 21*64),
		Value:  v,
		Policy: make([]float32, 4672),
	}
}

func TestWindowEvictionMatchesScenarioSixOfTheDesignNotes(t *testing.T) {
	w := replay.NewWindow(4)
	for i := 0; i < 10; i++ {
		w.Append(replay.Record{Value: float32(i + 1)})
	}
	assert.Equal(t, 4, w.Len())

	rnd := rand.New(rand.NewSource(1))
	for _, r := range w.Sample(rnd, 50) {
		assert.GreaterOrEqual(t, r.Value, float32(7))
	}
}

func TestTrainStepRunsOnceWindowIsFull(t *testing.T) {
	dir := t.TempDir()
	conf := DefaultConfig(filepath.Join(dir, "checkpoint.bin"))
	conf.Window = 4
	conf.Minibatch = 4
	conf.SaveRate = 1
	conf.CheckpointRate = 1

	tr, err := New(conf, tinyNNConfig())
	require.NoError(t, err)

	for i := 0; i < conf.Window; i++ {
		tr.ingest(fakeRecord(1))
	}
	require.NoError(t, tr.trainStep())
	assert.Equal(t, 1, tr.Step())
	assert.Equal(t, 1, tr.saves)
}

func TestSnapshotReflectsStepAndSaveCounters(t *testing.T) {
	dir := t.TempDir()
	conf := DefaultConfig(filepath.Join(dir, "checkpoint.bin"))
	conf.Window = 2
	conf.Minibatch = 2
	conf.SaveRate = 1

	tr, err := New(conf, tinyNNConfig())
	require.NoError(t, err)
	for i := 0; i < conf.Window; i++ {
		tr.ingest(fakeRecord(-1))
	}
	require.NoError(t, tr.trainStep())

	snap := tr.Snapshot()
	assert.Equal(t, 1, snap.Step)
	assert.NotEmpty(t, snap.RunID)
}
