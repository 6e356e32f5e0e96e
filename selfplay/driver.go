package selfplay

import (
	"io"
	"os"
	"time"

	"k8s.io/klog/v2"

	"github.com/sigmazero/sigmazero/boardimage"
	dual "github.com/sigmazero/sigmazero/dualnet"
	"github.com/sigmazero/sigmazero/internal/prng"
	"github.com/sigmazero/sigmazero/mcts"
	"github.com/sigmazero/sigmazero/replay"
)

// Fast vs. full search defaults (§4.3).
const (
	DefaultFastProbability = 0.25
	DefaultFastSimulations = 100
	DefaultFullSimulations = 800
)

// Config tunes one driver run.
type Config struct {
	Workers         int // B
	HistoryDepth    int
	MCTS            mcts.Config
	FastProbability float64
	FastSims        int
	FullSims        int
	CheckpointPath  string
	FillWindowSize  int  // while total recorded moves < this, every iteration records (warmup, §4.4 step 2)
	VerboseMoves    bool // log each worker's top-3 visited moves per commit (§12 supplemented feature)
}

// DefaultConfig returns the §4.3 defaults for a driver with the given
// worker count and checkpoint path.
func DefaultConfig(workers int, checkpointPath string) Config {
	return Config{
		Workers:         workers,
		HistoryDepth:    1,
		MCTS:            mcts.DefaultConfig(),
		FastProbability: DefaultFastProbability,
		FastSims:        DefaultFastSimulations,
		FullSims:        DefaultFullSimulations,
		CheckpointPath:  checkpointPath,
	}
}

// Driver owns B workers and the network they share, advancing all of them
// by one committed move per outer iteration (§4.3).
type Driver struct {
	conf        Config
	workers     []*worker
	nn          *dual.Network
	checkpoint  string
	lastModTime time.Time
	records     chan replay.Record
	movesOut    int // total recorded moves, for FillWindowSize warmup
}

// New constructs a driver with a network sized to batch B leaves at once,
// loading initial weights from checkpoint if it already exists. Every
// encoded replay record is written as one line to out.
func New(conf Config, nnConf dual.Config, out io.Writer) (*Driver, error) {
	nnConf.BatchSize = conf.Workers
	nn, err := dual.New(nnConf)
	if err != nil {
		return nil, err
	}

	d := &Driver{conf: conf, nn: nn, checkpoint: conf.CheckpointPath, records: make(chan replay.Record, 64)}
	d.workers = make([]*worker, conf.Workers)
	for i := range d.workers {
		d.workers[i] = newWorker(i, conf.MCTS)
	}

	go func() {
		for rec := range d.records {
			io.WriteString(out, replay.Encode(rec)+"\n")
		}
	}()

	if mt, err := dual.ModTime(conf.CheckpointPath); err == nil {
		if loadErr := nn.Load(conf.CheckpointPath); loadErr != nil {
			klog.Warningf("selfplay: initial checkpoint load failed, starting from random weights: %v", loadErr)
		} else {
			d.lastModTime = mt
		}
	}
	return d, nil
}

// RunIterations performs n outer iterations (each committing exactly one
// move per worker).
func (d *Driver) RunIterations(n int) error {
	for i := 0; i < n; i++ {
		if err := d.reloadIfUpdated(); err != nil {
			klog.Warningf("selfplay: checkpoint reload failed, retaining current weights: %v", err)
		}
		if err := d.iteration(); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) reloadIfUpdated() error {
	mt, err := dual.ModTime(d.checkpoint)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !mt.After(d.lastModTime) {
		return nil
	}
	if err := d.nn.Load(d.checkpoint); err != nil {
		return err
	}
	d.lastModTime = mt
	return nil
}

// iteration runs one committed move across every worker: root init (for
// workers whose root is fresh), the simulation loop, move commit, and
// termination handling (§4.3).
func (d *Driver) iteration() error {
	fast := !d.warmup() && prng.Bernoulli(d.conf.FastProbability)
	sims := d.conf.FullSims
	record := true
	if fast {
		sims = d.conf.FastSims
		record = false
	}

	if err := d.initRoots(); err != nil {
		return err
	}
	for s := 0; s < sims; s++ {
		if err := d.simulationRound(); err != nil {
			return err
		}
	}

	return d.commitAll(record)
}

func (d *Driver) warmup() bool {
	return d.conf.FillWindowSize > 0 && d.movesOut < d.conf.FillWindowSize
}

// initRoots batches every worker whose root is still genuinely unexpanded
// (a brand-new game, or a ShiftRoot target that was never itself visited as
// a leaf during the previous move's search), expands those roots with the
// network's priors, then adds fresh Dirichlet noise to every worker's root
// — including roots reused via ShiftRoot, which already have children and
// so must skip straight to the noise mix without another select/expand
// cycle (§4.3 step 1).
func (d *Driver) initRoots() error {
	tasks := make([]*leafTask, 0, len(d.workers))
	for _, w := range d.workers {
		if w.tree.RootExpanded() {
			continue
		}
		leaf, err := w.tree.Traverse(w.g) // root is unexpanded here, path == [root]
		if err != nil {
			return err
		}
		if leaf.Terminal {
			continue
		}
		tasks = append(tasks, &leafTask{worker: w, leaf: leaf})
	}
	if err := d.evaluateAndExpand(tasks); err != nil {
		return err
	}
	for _, w := range d.workers {
		w.tree.AddRootNoise()
	}
	return nil
}

// simulationRound collects one leaf per worker (masking out those that hit
// a terminal node and backed up immediately, §4.3 step 2a), then evaluates
// the survivors in one batch (step 2b-2c).
func (d *Driver) simulationRound() error {
	tasks := make([]*leafTask, 0, len(d.workers))
	for _, w := range d.workers {
		task, err := w.collectLeaf()
		if err != nil {
			return err
		}
		if task != nil {
			tasks = append(tasks, task)
		}
	}
	return d.evaluateAndExpand(tasks)
}

// evaluateAndExpand stacks every task's leaf image into a fixed-size
// [Workers,C,8,8] batch (padding unused slots with zero images, since the
// network's Gorgonia graph has a static batch dimension), runs one forward
// pass, and expands+backs-up only the slots that actually contributed.
func (d *Driver) evaluateAndExpand(tasks []*leafTask) error {
	if len(tasks) == 0 {
		return nil
	}

	channels := boardimage.Channels(d.conf.HistoryDepth)
	frame := channels * 64
	images := make([]float32, d.conf.Workers*frame)
	for i, task := range tasks {
		img, err := boardimage.Encode(task.leaf.Position, d.conf.HistoryDepth)
		if err != nil {
			return err
		}
		copy(images[i*frame:(i+1)*frame], img.Data)
	}

	values, policyLogits, err := d.nn.Forward(images)
	if err != nil {
		return err
	}
	actionSpace := len(policyLogits) / d.conf.Workers

	for i, task := range tasks {
		logits := policyLogits[i*actionSpace : (i+1)*actionSpace]
		legal, err := task.leaf.Position.LegalActions()
		if err != nil {
			return err
		}
		priors := dual.LegalPolicy(logits, legal)
		task.worker.tree.ExpandLeaf(task.leaf, values[i], priors)
	}
	return nil
}

// commitAll commits one move per worker, resetting any worker whose game
// ended or exceeded MaxPly (§4.3 step 3-4).
func (d *Driver) commitAll(record bool) error {
	for _, w := range d.workers {
		if err := w.commitMove(d.conf.HistoryDepth, record, d.conf.VerboseMoves); err != nil {
			return err
		}
		if record {
			d.movesOut++
		}

		terminal, _ := w.g.Result()
		if terminal || w.g.Ply() >= MaxPly {
			w.finish(d.records, d.conf.MCTS)
		}
	}
	return nil
}
