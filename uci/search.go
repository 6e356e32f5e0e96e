package uci

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/sigmazero/sigmazero/action"
	dual "github.com/sigmazero/sigmazero/dualnet"
	"github.com/sigmazero/sigmazero/game"
	"github.com/sigmazero/sigmazero/mcts"
)

// historyDepth is the image encoder's history window for competitive
// search; self-play and UCI share the same encoding (§4.6).
const historyDepth = 1

// Limits mirrors the `go` command's search-limit fields (§6).
type Limits struct {
	Depth     int
	Nodes     int
	MoveTime  time.Duration
	WTime     time.Duration
	BTime     time.Duration
	WInc      time.Duration
	BInc      time.Duration
	MovesToGo int
	Infinite  bool
	Ponder    bool
}

// Info is one `info ...` line's content (§4.5: simulation count as
// pseudo-depth, a centipawn-like score, and the PV).
type Info struct {
	Depth   int
	ScoreCP int
	PV      []string
}

// Search is the single-position competitive search wrapper (§4.5): one
// tree, one network, run until stopped, reporting progress via onInfo.
type Search struct {
	nn   *dual.Network
	opts *Options
}

// NewSearch builds a competitive search wrapper around nn, reading its
// tuning knobs from opts at the start of every Run (so `setoption` takes
// effect on the next `go`).
func NewSearch(nn *dual.Network, opts *Options) *Search {
	return &Search{nn: nn, opts: opts}
}

func (s *Search) infer(images []float32, batch int) (values, policyLogits []float32, err error) {
	return s.nn.Forward(images)
}

// Run searches root until stop is set, an applicable limit is reached, or
// (absent any limit) forever — the caller is responsible for eventually
// setting stop for an `infinite`/`ponder` search via the `stop`/
// `ponderhit` commands. It returns the best move and, if the search found
// one, a ponder move (§4.5).
func (s *Search) Run(root *game.Game, limits Limits, stop *atomic.Bool, onInfo func(Info)) (best, ponder int, hasPonder bool, err error) {
	tree := mcts.New(s.opts.MCTS)
	deadline, hasDeadline := s.deadline(root, limits)

	for sims := 0; ; sims++ {
		// At least one simulation runs so the root is expanded and a best
		// move exists even when stop was set before the search started.
		if sims > 0 && stop.Load() {
			break
		}
		if !limits.Infinite && !limits.Ponder {
			if limits.Nodes > 0 && int(tree.RootVisitCount()) >= limits.Nodes {
				break
			}
			if limits.Depth > 0 && sims >= limits.Depth {
				break
			}
			if hasDeadline && !time.Now().Before(deadline) {
				break
			}
		}

		if err := tree.RunSimulation(root, historyDepth, s.infer); err != nil {
			return 0, 0, false, err
		}

		if onInfo != nil && sims%16 == 0 {
			onInfo(s.info(tree, root, sims))
		}
	}

	best, err = tree.SampleAction(0)
	if err != nil {
		return 0, 0, false, err
	}
	ponder, hasPonder = tree.BestGrandchild(best)
	if onInfo != nil {
		onInfo(s.info(tree, root, int(tree.RootVisitCount())))
	}
	return best, ponder, hasPonder, nil
}

// deadline computes the wall-clock cutoff for this search, if any limit
// implies one: an explicit movetime, or the clock/remaining_halfmoves
// heuristic (§4.2) driven by the side-to-move's remaining clock.
func (s *Search) deadline(root *game.Game, limits Limits) (time.Time, bool) {
	if limits.MoveTime > 0 {
		return time.Now().Add(limits.MoveTime), true
	}

	clock := limits.WTime
	if root.SideToMove() == action.Black {
		clock = limits.BTime
	}
	if clock <= 0 {
		return time.Time{}, false
	}

	budget := SearchBudget(clock, root.Ply())
	overhead := time.Duration(s.opts.MoveOverheadMS) * time.Millisecond
	if budget > overhead {
		budget -= overhead
	}
	return time.Now().Add(budget), true
}

// info renders a Tree's current search progress into the §4.5 info
// bullets: simulation count as pseudo-depth, a centipawn-like score
// mapped from the root's mean value in [-1,+1], and the PV (extended by
// recursively selecting best-visit children, rendered in LAN against a
// scratch clone of root so the render never mutates the live game).
func (s *Search) info(tree *mcts.Tree, root *game.Game, sims int) Info {
	info := Info{Depth: sims, ScoreCP: valueToCentipawns(tree.RootValue())}

	pos := root.Clone()
	for _, idx := range tree.PrincipalVariation(16) {
		lan, err := actionToLAN(pos, idx)
		if err != nil {
			break
		}
		info.PV = append(info.PV, lan)
		if err := pos.Apply(idx); err != nil {
			break
		}
	}
	return info
}

// valueToCentipawns maps a value in [-1,+1] to a centipawn-like score. The
// scale (600) is chosen so a near-certain win reads as several pawns'
// worth of advantage without saturating the int range; the exact mapping
// is not specified by the protocol beyond "monotonic and centipawn-like".
func valueToCentipawns(v float32) int {
	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	return int(math.Round(float64(v) * 600))
}
