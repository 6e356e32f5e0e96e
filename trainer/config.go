// Package trainer implements the online training loop (§4.4): drain
// incoming replay records into a sliding window, sample minibatches once
// the window is full, run one SGD step per minibatch, and periodically
// checkpoint the network for self-play and UCI search to reload.
package trainer

import "github.com/sigmazero/sigmazero/replay"

// Defaults from §4.4.
const (
	DefaultSaveRate       = 16  // training steps between checkpoint saves
	DefaultCheckpointRate = 256 // saves between timestamped historical copies
)

// Config tunes one trainer run.
type Config struct {
	Window         int // W
	Minibatch      int // M
	SaveRate       int
	CheckpointRate int
	CheckpointPath string
	FillWindow     bool // suppress training steps until the window is full (§4.4 step 2)
}

// DefaultConfig returns the §4.4 defaults for a trainer writing to
// checkpointPath.
func DefaultConfig(checkpointPath string) Config {
	return Config{
		Window:         replay.DefaultWindowSize,
		Minibatch:      256,
		SaveRate:       DefaultSaveRate,
		CheckpointRate: DefaultCheckpointRate,
		CheckpointPath: checkpointPath,
		FillWindow:     true,
	}
}
