package mcts

import (
	"math/rand"
	"time"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	distrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distmv"
)

// Config tunes the PUCT exploration term and the root Dirichlet noise
// (§4.2). Defaults match the paper's published constants.
type Config struct {
	CBase               float32 // c_base in c(parent) = log((N+c_base+1)/c_base) + c_init
	CInit               float32
	DirichletAlpha      float64
	ExplorationFraction float32 // epsilon mixed into root priors
}

// DefaultConfig returns the §4.2 default PUCT constants.
func DefaultConfig() Config {
	return Config{
		CBase:               19652,
		CInit:               1.25,
		DirichletAlpha:       0.3,
		ExplorationFraction: 0.25,
	}
}

// Tree is one arena-of-nodes PUCT search tree rooted at a single game
// position. It is not safe for concurrent simulations against the same
// root; the self-play driver gives every worker its own Tree so it can
// traverse B trees in lockstep and evaluate their leaves in one batch
// (§4.3).
type Tree struct {
	conf  Config
	nodes []*Node
	free  []Naughty
	root  Naughty
	rand  *rand.Rand
}

// New creates a tree with a single, un-expanded root node.
func New(conf Config) *Tree {
	t := &Tree{conf: conf, rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
	t.root = t.alloc(-1, 0)
	return t
}

// Root returns the index of the current root node.
func (t *Tree) Root() Naughty { return t.root }

func (t *Tree) node(i Naughty) *Node { return t.nodes[i] }

func (t *Tree) alloc(action int, prior float32) Naughty {
	if l := len(t.free); l > 0 {
		idx := t.free[l-1]
		t.free = t.free[:l-1]
		n := t.nodes[idx]
		n.action, n.prior = action, prior
		return idx
	}
	t.nodes = append(t.nodes, &Node{action: action, prior: prior})
	return Naughty(len(t.nodes) - 1)
}

// Expand gives an un-expanded node one child per entry of priors (action ->
// prior probability), per §4.2(c).
func (t *Tree) Expand(idx Naughty, priors map[int]float32) {
	n := t.node(idx)
	n.mu.Lock()
	defer n.mu.Unlock()
	for a, p := range priors {
		child := t.alloc(a, p)
		n.children = append(n.children, child)
	}
}

// MarkTerminal flags a node so Select never descends past it.
func (t *Tree) MarkTerminal(idx Naughty) { t.node(idx).markTerminal() }

// Select descends from the root via PUCT (§4.2(a)) until it reaches an
// unexpanded or terminal node, returning the path root..leaf inclusive.
func (t *Tree) Select() []Naughty {
	path := []Naughty{t.root}
	cur := t.root
	for {
		n := t.node(cur)
		if n.isTerminal() || !n.expanded() {
			return path
		}
		cur = t.bestChild(cur)
		path = append(path, cur)
	}
}

// bestChild picks the child of `of` maximizing the PUCT score
//
//	U(parent, child) = c(parent) * prior(child) * sqrt(N(parent)) / (1+n(child)) + Q(child)
//	c(parent) = log((N(parent)+c_base+1)/c_base) + c_init
//	Q(child)  = -(w(child)/n(child))  when n(child) > 0, else 0
func (t *Tree) bestChild(of Naughty) Naughty {
	parent := t.node(of)
	parentVisits, _, _, children := parent.snapshot()

	cParent := math32.Log((float32(parentVisits)+t.conf.CBase+1)/t.conf.CBase) + t.conf.CInit
	sqrtParent := math32.Sqrt(float32(parentVisits))

	best := children[0]
	bestScore := math32.Inf(-1)
	for _, ci := range children {
		visits, prior, valueSum, _ := t.node(ci).snapshot()
		var q float32
		if visits > 0 {
			q = -(valueSum / float32(visits))
		}
		u := cParent*prior*sqrtParent/(1+float32(visits)) + q
		if u > bestScore {
			bestScore = u
			best = ci
		}
	}
	return best
}

// Backup walks path (root..leaf) adding v, the value from the leaf's own
// side-to-move perspective, to the leaf and flipping its sign at every
// level going up, per §4.2(d).
func (t *Tree) Backup(path []Naughty, v float32) {
	sign := float32(1)
	for i := len(path) - 1; i >= 0; i-- {
		t.node(path[i]).update(v * sign)
		sign = -sign
	}
}

// AddRootNoise mixes Dirichlet(alpha) noise into the root's child priors
// (§4.2(b)): prior' = (1-eps)*prior + eps*noise. No-op on an un-expanded
// root.
func (t *Tree) AddRootNoise() {
	_, _, _, children := t.node(t.root).snapshot()
	if len(children) == 0 {
		return
	}

	alpha := make([]float64, len(children))
	for i := range alpha {
		alpha[i] = t.conf.DirichletAlpha
	}
	dist := distmv.NewDirichlet(alpha, distrand.NewSource(uint64(time.Now().UnixNano())))
	noise := dist.Rand(nil)

	eps := t.conf.ExplorationFraction
	for i, ci := range children {
		c := t.node(ci)
		c.mu.Lock()
		c.prior = (1-eps)*c.prior + eps*float32(noise[i])
		c.mu.Unlock()
	}
}

// VisitPolicy returns the root's visit-count policy target (§4.3: π
// proportional to N(child)) over actions that were ever expanded.
func (t *Tree) VisitPolicy() map[int]float32 {
	_, _, _, children := t.node(t.root).snapshot()
	out := make(map[int]float32, len(children))
	var total float32
	for _, ci := range children {
		n := t.node(ci)
		visits, _, _, _ := n.snapshot()
		out[n.getAction()] = float32(visits)
		total += float32(visits)
	}
	if total > 0 {
		for a := range out {
			out[a] /= total
		}
	}
	return out
}

// SampleAction draws an action from the root's visit-count distribution
// raised to 1/temperature (§4.3 move selection before the 30th ply).
// temperature == 0 deterministically returns the most-visited action.
func (t *Tree) SampleAction(temperature float32) (int, error) {
	_, _, _, children := t.node(t.root).snapshot()
	if len(children) == 0 {
		return 0, errors.New("mcts: root has no children to sample from")
	}

	if temperature <= 0 {
		return t.mostVisitedAction(children), nil
	}

	weights := make([]float32, len(children))
	var total float32
	for i, ci := range children {
		visits, _, _, _ := t.node(ci).snapshot()
		weights[i] = math32.Pow(float32(visits), 1/temperature)
		total += weights[i]
	}

	r := t.rand.Float32() * total
	var accum float32
	for i, ci := range children {
		accum += weights[i]
		if r <= accum {
			return t.node(ci).getAction(), nil
		}
	}
	return t.node(children[len(children)-1]).getAction(), nil
}

func (t *Tree) mostVisitedAction(children []Naughty) int {
	best := children[0]
	var bestVisits uint32
	for _, ci := range children {
		visits, _, _, _ := t.node(ci).snapshot()
		if visits >= bestVisits {
			bestVisits = visits
			best = ci
		}
	}
	return t.node(best).getAction()
}

// ShiftRoot retains the subtree reached by action as the new root and
// discards its siblings, so a tree survives across a committed move
// without losing the statistics it already gathered (§4.2 "Tree reuse").
func (t *Tree) ShiftRoot(action int) error {
	_, _, _, children := t.node(t.root).snapshot()
	for _, ci := range children {
		if t.node(ci).getAction() == action {
			for _, sibling := range children {
				if sibling != ci {
					t.discard(sibling)
				}
			}
			t.root = ci
			return nil
		}
	}
	return errors.New("mcts: action not among root children")
}

func (t *Tree) discard(idx Naughty) {
	_, _, _, children := t.node(idx).snapshot()
	for _, c := range children {
		t.discard(c)
	}
	t.node(idx).reset()
	t.free = append(t.free, idx)
}

// Reset discards the whole tree and starts over with a fresh root, reusing
// the arena's backing storage.
func (t *Tree) Reset() {
	t.discard(t.root)
	t.root = t.alloc(-1, 0)
}

// Size returns the number of live (allocated, not freed) nodes.
func (t *Tree) Size() int { return len(t.nodes) - len(t.free) }

// RootExpanded reports whether the current root already has children, so a
// caller reusing a tree across a committed move (ShiftRoot) can tell a
// genuinely fresh root from one that was already visited and expanded as
// part of the previous move's search.
func (t *Tree) RootExpanded() bool { return t.node(t.root).expanded() }

// PrincipalVariation walks from the root through the most-visited child at
// each level, up to maxLen actions, stopping early at an unexpanded node
// (§4.5 "the PV consisting of the best root child, extendable by
// recursively selecting best-visit children").
func (t *Tree) PrincipalVariation(maxLen int) []int {
	pv := make([]int, 0, maxLen)
	cur := t.root
	for i := 0; i < maxLen; i++ {
		_, _, _, children := t.node(cur).snapshot()
		if len(children) == 0 {
			break
		}
		best := children[0]
		var bestVisits uint32
		for _, ci := range children {
			visits, _, _, _ := t.node(ci).snapshot()
			if visits >= bestVisits {
				bestVisits = visits
				best = ci
			}
		}
		pv = append(pv, t.node(best).getAction())
		cur = best
	}
	return pv
}

// RootVisitCount returns the root node's total visit count, used as the
// UCI "depth" proxy (§4.5).
func (t *Tree) RootVisitCount() uint32 {
	visits, _, _, _ := t.node(t.root).snapshot()
	return visits
}

// RootValue returns the root's mean backed-up value, from the root's own
// side-to-move perspective, for the UCI score report (§4.5).
func (t *Tree) RootValue() float32 {
	return t.node(t.root).mean()
}

// BestGrandchild returns the most-visited child action one ply under the
// root child reached by rootAction, for the UCI "ponder move" return value
// (§4.5: "the best grandchild, if any"). ok is false if rootAction is not
// among the root's children or that child has none of its own.
func (t *Tree) BestGrandchild(rootAction int) (action int, ok bool) {
	_, _, _, rootChildren := t.node(t.root).snapshot()
	for _, ci := range rootChildren {
		if t.node(ci).getAction() != rootAction {
			continue
		}
		_, _, _, grandchildren := t.node(ci).snapshot()
		if len(grandchildren) == 0 {
			return 0, false
		}
		best := grandchildren[0]
		var bestVisits uint32
		for _, gi := range grandchildren {
			visits, _, _, _ := t.node(gi).snapshot()
			if visits >= bestVisits {
				bestVisits = visits
				best = gi
			}
		}
		return t.node(best).getAction(), true
	}
	return 0, false
}
