// Package selfplay implements the batched self-play driver (§4.3): B
// independent game workers advanced in lockstep, with leaf evaluation
// batched into one network call per simulation round.
package selfplay

import (
	"fmt"
	"sort"
	"strings"

	"k8s.io/klog/v2"

	"github.com/sigmazero/sigmazero/action"
	"github.com/sigmazero/sigmazero/boardimage"
	"github.com/sigmazero/sigmazero/game"
	"github.com/sigmazero/sigmazero/mcts"
	"github.com/sigmazero/sigmazero/replay"
)

// MaxPly is the resource-exhaustion cutoff (§4.3 step 4, §7 "a worker whose
// game exceeds max plies without termination emits its accumulated replay
// with terminal-value=0 and resets").
const MaxPly = 512

// moveRecord is one committed move's training signal, pending the final
// game outcome that fills in its Value once the worker terminates.
type moveRecord struct {
	image      []float32
	policy     map[int]float32
	sideToMove action.Side
}

// worker owns one self-play game: its position, retained search tree, and
// the replay buffer accumulated since the last termination.
type worker struct {
	id      int
	g       *game.Game
	tree    *mcts.Tree
	pending []moveRecord
}

func newWorker(id int, conf mcts.Config) *worker {
	return &worker{id: id, g: game.New(), tree: mcts.New(conf)}
}

// leafTask is what one worker contributes to a batched simulation round: either
// a non-terminal leaf needing network evaluation, or nothing (it backed up
// a terminal leaf immediately and sits this round out).
type leafTask struct {
	worker *worker
	leaf   mcts.Leaf
}

// collectLeaf traverses the worker's tree once. Terminal leaves are backed
// up immediately and excluded from the batch (§4.3 step 2a).
func (w *worker) collectLeaf() (*leafTask, error) {
	leaf, err := w.tree.Traverse(w.g)
	if err != nil {
		return nil, err
	}
	if leaf.Terminal {
		w.tree.BackupTerminal(leaf)
		return nil, nil
	}
	return &leafTask{worker: w, leaf: leaf}, nil
}

// commitMove picks a move from the root's visit counts (sampled at the
// moveTemperature for the current ply, so the most-visited move only from
// ply 30 on), records the training signal when recordMove is set, advances
// the game and reuses the
// chosen subtree as the new root (§4.3 step 3). When verbose is set, the
// root's top-3 visited moves are logged for offline inspection.
func (w *worker) commitMove(historyDepth int, recordMove, verbose bool) error {
	move, err := w.tree.SampleAction(moveTemperature(w.g.Ply()))
	if err != nil {
		return err
	}

	var policy map[int]float32
	if recordMove || verbose {
		policy = w.tree.VisitPolicy()
	}
	if verbose {
		logTopMoves(w.id, w.g.Ply(), policy)
	}

	if recordMove {
		img, err := boardimage.Encode(w.g, historyDepth)
		if err != nil {
			return err
		}
		w.pending = append(w.pending, moveRecord{
			image:      img.Data,
			policy:     policy,
			sideToMove: w.g.SideToMove(),
		})
	}

	if err := w.g.Apply(move); err != nil {
		return err
	}
	if err := w.tree.ShiftRoot(move); err != nil {
		// the chosen action's child was pruned or never expanded under
		// low simulation counts; start the next root fresh instead of
		// failing the whole worker.
		w.tree.Reset()
	}
	return nil
}

// moveTemperature implements the sampling-vs-greedy move-selection split:
// early plies sample from the visit distribution, later plies play greedily.
func moveTemperature(ply int) float32 {
	const samplingMoves = 30
	if ply < samplingMoves {
		return 1.0
	}
	return 0
}

// finish flushes the worker's pending records to out with the terminal
// value filled in from each record's own side-to-move perspective (§3
// "Replay record", §4.3 step 4), then resets the worker for a fresh game.
func (w *worker) finish(out chan<- replay.Record, conf mcts.Config) {
	terminal, value := w.g.Result()
	if !terminal {
		klog.Warningf("selfplay: worker %d hit max ply without a rules-determined result, recording a draw", w.id)
		value = 0
	}

	mover := w.g.SideToMove()
	for _, rec := range w.pending {
		v := value
		if rec.sideToMove != mover {
			v = -v
		}
		out <- replay.Record{
			Image:  rec.image,
			Value:  v,
			Policy: expandPolicy(rec.policy),
		}
	}

	w.pending = nil
	w.g = game.New()
	w.tree = mcts.New(conf)
}

// logTopMoves writes the root's top-3 visited actions and their visit
// share to the log, never to stdout's replay stream, mirroring
// self_play.cpp's per-move best-move annotation (--verbose-moves).
func logTopMoves(id, ply int, policy map[int]float32) {
	type scored struct {
		action int
		share  float32
	}
	ranked := make([]scored, 0, len(policy))
	for a, p := range policy {
		ranked = append(ranked, scored{a, p})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].share > ranked[j].share })
	if len(ranked) > 3 {
		ranked = ranked[:3]
	}

	parts := make([]string, len(ranked))
	for i, r := range ranked {
		parts[i] = fmt.Sprintf("action=%d share=%.3f", r.action, r.share)
	}
	klog.V(1).Infof("selfplay: worker %d ply %d top moves: %s", id, ply, strings.Join(parts, ", "))
}

const actionSpace = 4672

func expandPolicy(sparse map[int]float32) []float32 {
	dense := make([]float32, actionSpace)
	for a, p := range sparse {
		dense[a] = p
	}
	return dense
}
