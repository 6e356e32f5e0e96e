package uci

import (
	"fmt"
	"strconv"

	"github.com/sigmazero/sigmazero/mcts"
)

// optionKind is the UCI `option type` tag.
type optionKind string

const (
	spinOption optionKind = "spin"
)

// optionDescriptor is one entry of the `option name ... type ...` lines
// advertised in response to `uci` (§6 "Options surface").
type optionDescriptor struct {
	name    string
	kind    optionKind
	def     string
	min     string
	max     string
}

// Options holds the mutable engine-tunable state `setoption` writes into
// and the search parameters derived from it. MultiPV/Threads/Hash are
// advertised (fixed at 1, matching a single-tree, single-GPU engine) but
// do not change search behavior; the MCTS tuning knobs feed directly into
// the mcts.Config used for the next search.
type Options struct {
	MoveOverheadMS int
	SamplingMoves  int
	MCTS           mcts.Config
}

// DefaultOptions returns the §4.2 defaults plus a zero move-overhead.
func DefaultOptions() Options {
	return Options{
		MoveOverheadMS: 0,
		SamplingMoves:  30,
		MCTS:           mcts.DefaultConfig(),
	}
}

// descriptors returns the full advertised option list, in the fixed order
// they should be printed after `id author`.
func descriptors() []optionDescriptor {
	return []optionDescriptor{
		{name: "MultiPV", kind: spinOption, def: "1", min: "1", max: "1"},
		{name: "Move Overhead", kind: spinOption, def: "0", min: "0", max: "5000"},
		{name: "Threads", kind: spinOption, def: "1", min: "1", max: "1"},
		{name: "Hash", kind: spinOption, def: "1", min: "1", max: "1"},
		{name: "PB C Base", kind: "string", def: "19652"},
		{name: "PB C Init", kind: "string", def: "1.25"},
		{name: "Dirichlet Alpha", kind: "string", def: "0.3"},
		{name: "Exploration Fraction", kind: "string", def: "0.25"},
		{name: "Sampling Moves", kind: spinOption, def: "30", min: "0", max: "512"},
	}
}

// formatOption renders one descriptor as a UCI `option ...` protocol line.
func formatOption(d optionDescriptor) string {
	if d.kind == spinOption {
		return fmt.Sprintf("option name %s type spin default %s min %s max %s", d.name, d.def, d.min, d.max)
	}
	return fmt.Sprintf("option name %s type string default %s", d.name, d.def)
}

// Set applies a `setoption name <name> value <value>` command. Unknown
// option names are ignored, matching the permissive behavior most UCI
// GUIs expect from engines that advertise a fixed option set.
func (o *Options) Set(name, value string) error {
	switch name {
	case "Move Overhead":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("uci: Move Overhead: %w", err)
		}
		o.MoveOverheadMS = n
	case "Sampling Moves":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("uci: Sampling Moves: %w", err)
		}
		o.SamplingMoves = n
	case "PB C Base":
		f, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return fmt.Errorf("uci: PB C Base: %w", err)
		}
		o.MCTS.CBase = float32(f)
	case "PB C Init":
		f, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return fmt.Errorf("uci: PB C Init: %w", err)
		}
		o.MCTS.CInit = float32(f)
	case "Dirichlet Alpha":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("uci: Dirichlet Alpha: %w", err)
		}
		o.MCTS.DirichletAlpha = f
	case "Exploration Fraction":
		f, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return fmt.Errorf("uci: Exploration Fraction: %w", err)
		}
		o.MCTS.ExplorationFraction = float32(f)
	case "MultiPV", "Threads", "Hash":
		// advertised but fixed at 1; accepted and ignored.
	}
	return nil
}
