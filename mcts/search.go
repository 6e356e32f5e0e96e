package mcts

import (
	"github.com/pkg/errors"

	"github.com/sigmazero/sigmazero/boardimage"
	"github.com/sigmazero/sigmazero/dualnet"
	"github.com/sigmazero/sigmazero/game"
)

// Leaf is the outcome of descending a tree from its root to an unexpanded
// or terminal node (§4.2, phase "Selection").
type Leaf struct {
	Path     []Naughty
	Position *game.Game // a scratch clone holding the leaf's position
	Terminal bool
	Value    float32 // valid only when Terminal
}

// Traverse replays the tree's stored path of actions onto a clone of root
// and stops at the first unexpanded or terminal node. The self-play driver
// calls this once per worker per simulation round so it can stack every
// worker's non-terminal leaf image into a single batched network call
// (§4.3); RunSimulation below is the unbatched, single-leaf convenience
// wrapper used by competitive search and tests.
func (t *Tree) Traverse(root *game.Game) (Leaf, error) {
	path := t.Select()
	pos := root.Clone()
	for _, idx := range path[1:] {
		if err := pos.Apply(t.node(idx).getAction()); err != nil {
			return Leaf{}, errors.Wrap(err, "mcts: replay selected path")
		}
	}

	if terminal, value := pos.Result(); terminal {
		t.MarkTerminal(path[len(path)-1])
		return Leaf{Path: path, Position: pos, Terminal: true, Value: value}, nil
	}
	return Leaf{Path: path, Position: pos, Terminal: false}, nil
}

// ExpandLeaf gives a non-terminal leaf children per priors (action -> prior
// probability) and backs up value from the expanded leaf's own
// perspective, per §4.2(c)-(d).
func (t *Tree) ExpandLeaf(leaf Leaf, value float32, priors map[int]float32) {
	t.Expand(leaf.Path[len(leaf.Path)-1], priors)
	t.Backup(leaf.Path, value)
}

// BackupTerminal backs up a terminal leaf's already-known value without
// expanding it.
func (t *Tree) BackupTerminal(leaf Leaf) {
	t.Backup(leaf.Path, leaf.Value)
}

// Infer is the network surface the search needs: a batched forward pass
// plus the legal-policy projection, so mcts stays ignorant of Gorgonia.
type Infer func(images []float32, batch int) (values, policyLogits []float32, err error)

// RunSimulation performs one full simulation (select, evaluate, expand,
// backup) against root, calling infer for a non-terminal leaf's network
// evaluation. It is the unbatched counterpart to Traverse/ExpandLeaf/
// BackupTerminal, intended for competitive (UCI) search and tests where a
// single tree is searched in isolation rather than alongside B self-play
// workers.
func (t *Tree) RunSimulation(root *game.Game, historyDepth int, infer Infer) error {
	leaf, err := t.Traverse(root)
	if err != nil {
		return err
	}
	if leaf.Terminal {
		t.BackupTerminal(leaf)
		return nil
	}

	img, err := boardimage.Encode(leaf.Position, historyDepth)
	if err != nil {
		return errors.Wrap(err, "mcts: encode leaf position")
	}
	values, logits, err := infer(img.Data, 1)
	if err != nil {
		return errors.Wrap(err, "mcts: network inference")
	}

	legal, err := leaf.Position.LegalActions()
	if err != nil {
		return errors.Wrap(err, "mcts: enumerate legal actions at leaf")
	}
	priors := dual.LegalPolicy(logits, legal)
	t.ExpandLeaf(leaf, values[0], priors)
	return nil
}
