package trainer

import (
	"math/rand"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	dual "github.com/sigmazero/sigmazero/dualnet"
	"github.com/sigmazero/sigmazero/internal/syncqueue"
	"github.com/sigmazero/sigmazero/replay"
)

// Trainer owns the network being trained, the sliding replay window, and
// the bookkeeping (step/save counters, throughput, stats sidecar) §4.4
// describes. It is not safe for concurrent use: one goroutine drains the
// queue, maintains the window, and runs training steps (§5).
type Trainer struct {
	conf   Config
	nn     *dual.Network
	window *replay.Window
	rnd    *rand.Rand
	runID  string

	step      int
	saves     int
	lastLoss  float32
	arrivals  *arrivalTracker
	bar       *progressbar.ProgressBar
	onSnapshot func(Snapshot)
}

// New builds a trainer around a network sized to the minibatch and an
// empty window of the configured capacity.
func New(conf Config, nnConf dual.Config) (*Trainer, error) {
	nnConf.BatchSize = conf.Minibatch
	nnConf.FwdOnly = false
	nn, err := dual.New(nnConf)
	if err != nil {
		return nil, err
	}

	t := &Trainer{
		conf:     conf,
		nn:       nn,
		window:   replay.NewWindow(conf.Window),
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		runID:    uuid.NewString(),
		arrivals: newArrivalTracker(256),
	}
	if conf.FillWindow {
		t.bar = progressbar.NewOptions(conf.Window,
			progressbar.OptionSetDescription("filling replay window"),
			progressbar.OptionSetWriter(progressbarWriter{}),
		)
	}
	return t, nil
}

// OnSnapshot registers a callback invoked after each checkpoint save with
// the trainer's current stats, letting a monitoring endpoint (see
// monitor.go) push updates without the core loop depending on HTTP.
func (t *Trainer) OnSnapshot(fn func(Snapshot)) { t.onSnapshot = fn }

// Step returns the number of SGD updates performed so far.
func (t *Trainer) Step() int { return t.step }

// Run drains queue until it is closed and empty (its done channel closed
// and every in-flight record consumed), performing the §4.4 loop: drain, window,
// sample, train, periodically checkpoint.
func (t *Trainer) Run(queue *syncqueue.Queue[replay.Record]) error {
	for {
		rec, ok := queue.Pop()
		if !ok {
			return nil
		}
		t.ingest(rec)
		for _, rec := range syncqueue.DrainAvailable(queue.Out()) {
			t.ingest(rec)
		}

		if t.conf.FillWindow && !t.window.Full() {
			if t.bar != nil {
				_ = t.bar.Set(t.window.Len())
			}
			continue
		}

		if err := t.trainStep(); err != nil {
			return err
		}
	}
}

func (t *Trainer) ingest(rec replay.Record) {
	t.window.Append(rec)
	t.arrivals.record(time.Now())
}

// trainStep samples one minibatch, runs one SGD update, and handles the
// periodic checkpoint/historical-copy cadence (§4.4 steps 3-5).
func (t *Trainer) trainStep() error {
	batch := t.window.Sample(t.rnd, t.conf.Minibatch)
	images, values, policies := replay.Stack(batch)

	loss, err := t.nn.Train(images, values, policies)
	if err != nil {
		return err
	}
	t.lastLoss = loss
	t.step++

	klog.V(1).Infof("trainer: step %d loss=%.4f throughput=%.2f/s window=%d",
		t.step, loss, t.arrivals.rate(), t.window.Len())

	if t.step%t.conf.SaveRate != 0 {
		return nil
	}
	if err := t.nn.Save(t.conf.CheckpointPath); err != nil {
		return err
	}
	t.saves++
	klog.Infof("trainer: saved checkpoint to %s (save %d)", t.conf.CheckpointPath, t.saves)

	if t.saves%t.conf.CheckpointRate == 0 {
		if err := dual.SaveTimestamped(t.conf.CheckpointPath, time.Now()); err != nil {
			klog.Warningf("trainer: timestamped checkpoint copy failed: %v", err)
		}
	}

	snap := t.Snapshot()
	statsPath := filepath.Join(filepath.Dir(t.conf.CheckpointPath), "stats.yaml")
	if err := writeStatsFile(statsPath, snap); err != nil {
		klog.Warningf("trainer: stats sidecar write failed: %v", err)
	}
	if t.onSnapshot != nil {
		t.onSnapshot(snap)
	}
	return nil
}

// Snapshot reports the trainer's current run identity and progress.
func (t *Trainer) Snapshot() Snapshot {
	return Snapshot{
		RunID:      t.runID,
		Step:       t.step,
		Saves:      t.saves,
		Loss:       t.lastLoss,
		Throughput: t.arrivals.rate(),
		WindowLen:  t.window.Len(),
	}
}

// progressbarWriter discards the warmup bar's render ticks onto klog
// instead of directly onto stderr, keeping stderr free for the
// lipgloss-styled startup banner.
type progressbarWriter struct{}

func (progressbarWriter) Write(p []byte) (int, error) {
	klog.V(2).Infof("trainer: %s", p)
	return len(p), nil
}
