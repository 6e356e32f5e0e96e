package trainer

import (
	"os"
	"time"

	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"
)

// arrivalTracker keeps the timestamps of the most recent record arrivals
// and derives the throughput metric §4.4 asks for: "record-arrival rate
// over the window, by recording the wall-clock of each insertion."
type arrivalTracker struct {
	times []time.Time
	cap   int
}

func newArrivalTracker(cap int) *arrivalTracker {
	return &arrivalTracker{cap: cap}
}

func (a *arrivalTracker) record(at time.Time) {
	a.times = append(a.times, at)
	if over := len(a.times) - a.cap; over > 0 {
		a.times = a.times[over:]
	}
}

// rate returns records/second estimated from the mean inter-arrival
// interval across the tracked window. Zero until at least two arrivals
// have been recorded.
func (a *arrivalTracker) rate() float64 {
	if len(a.times) < 2 {
		return 0
	}
	intervals := make([]float64, 0, len(a.times)-1)
	for i := 1; i < len(a.times); i++ {
		intervals = append(intervals, a.times[i].Sub(a.times[i-1]).Seconds())
	}
	mean := floats.Sum(intervals) / float64(len(intervals))
	if mean <= 0 {
		return 0
	}
	return 1 / mean
}

// Snapshot is the periodic YAML stats sidecar written alongside the
// checkpoint: run identity, progress, and the loss/throughput bullets of
// §4.4, independent of viper's own config-loading use of YAML.
type Snapshot struct {
	RunID      string  `yaml:"run_id"`
	Step       int     `yaml:"step"`
	Saves      int     `yaml:"saves"`
	Loss       float32 `yaml:"loss"`
	Throughput float64 `yaml:"throughput_per_sec"`
	WindowLen  int     `yaml:"window_len"`
}

func writeStatsFile(path string, snap Snapshot) error {
	data, err := yaml.Marshal(snap)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
