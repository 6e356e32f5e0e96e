// Package uci implements the Standard UCI subset (§6): command dispatch,
// position/move parsing, the engine-specific options surface, and the
// competitive single-position search wrapper around the tree-search core.
package uci

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/klog/v2"

	dual "github.com/sigmazero/sigmazero/dualnet"
	"github.com/sigmazero/sigmazero/game"
)

const (
	engineName   = "sigmazero"
	engineAuthor = "sigmazero contributors"
)

// Engine is one UCI session: the network, its tunable options, the
// current game, and the synchronized output queue a dedicated serializer
// goroutine drains onto stdout (§5 "output serializer thread owns
// stdout... a synchronized queue carries info messages").
type Engine struct {
	checkpointPath string
	nn             *dual.Network
	opts           Options
	search         *Search
	g              *game.Game

	out chan string
	wg  sync.WaitGroup

	stop      atomic.Bool
	searching atomic.Bool
}

// NewEngine constructs an engine around a freshly built network, loading
// checkpointPath's weights if present.
func NewEngine(nnConf dual.Config, checkpointPath string) (*Engine, error) {
	nnConf.BatchSize = 1
	nnConf.FwdOnly = true
	nn, err := dual.New(nnConf)
	if err != nil {
		return nil, err
	}
	if err := nn.Load(checkpointPath); err != nil {
		klog.Warningf("uci: no checkpoint loaded from %s, starting from random weights: %v", checkpointPath, err)
	}

	e := &Engine{
		checkpointPath: checkpointPath,
		nn:             nn,
		opts:           DefaultOptions(),
		g:              game.New(),
		out:            make(chan string, 64),
	}
	e.search = NewSearch(e.nn, &e.opts)
	return e, nil
}

// Run reads UCI commands from in and writes responses to out until `quit`
// or in reaches EOF, returning nil on a normal `quit` (§6: "exit code 0 on
// normal quit").
func (e *Engine) Run(in io.Reader, out io.Writer) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for line := range e.out {
			fmt.Fprintln(out, line)
		}
	}()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	quit := false
	for scanner.Scan() && !quit {
		quit = e.dispatch(strings.TrimSpace(scanner.Text()))
	}

	e.stop.Store(true)
	e.wg.Wait() // let any in-flight `go` goroutine finish sending before the queue closes

	close(e.out)
	<-done
	return nil
}

func (e *Engine) send(line string) { e.out <- line }

// dispatch handles one command line, returning true if the session should
// terminate.
func (e *Engine) dispatch(line string) bool {
	if line == "" {
		return false
	}
	fields := strings.Fields(line)
	switch fields[0] {
	case "uci":
		e.handleUCI()
	case "isready":
		e.handleIsReady()
	case "ucinewgame":
		e.g = game.New()
	case "setoption":
		e.handleSetOption(fields[1:])
	case "position":
		e.handlePosition(fields[1:])
	case "go":
		e.handleGo(fields[1:])
	case "stop":
		e.stop.Store(true)
	case "ponderhit":
		// the running search already treats `ponder` as "run until
		// stopped"; nothing further to switch over.
	case "quit":
		e.stop.Store(true)
		return true
	default:
		klog.V(1).Infof("uci: ignoring unrecognized command %q", fields[0])
	}
	return false
}

func (e *Engine) handleUCI() {
	e.send(fmt.Sprintf("id name %s", engineName))
	e.send(fmt.Sprintf("id author %s", engineAuthor))
	for _, d := range descriptors() {
		e.send(formatOption(d))
	}
	e.send("uciok")
}

func (e *Engine) handleIsReady() {
	if mt, err := dual.ModTime(e.checkpointPath); err == nil {
		if err := e.nn.Load(e.checkpointPath); err != nil {
			klog.Warningf("uci: checkpoint reload on isready failed: %v", err)
		} else {
			klog.V(1).Infof("uci: reloaded checkpoint, mtime %s", mt)
		}
	}
	e.send("readyok")
}

func (e *Engine) handleSetOption(fields []string) {
	name, value, ok := splitNameValue(fields)
	if !ok {
		return
	}
	if err := e.opts.Set(name, value); err != nil {
		e.send("info string " + err.Error())
	}
}

// splitNameValue parses the `name <N...> value <V...>` tail of a
// setoption command, where the option name may itself contain spaces.
func splitNameValue(fields []string) (name, value string, ok bool) {
	if len(fields) == 0 || fields[0] != "name" {
		return "", "", false
	}
	fields = fields[1:]
	var nameParts, valueParts []string
	inValue := false
	for _, f := range fields {
		if !inValue && f == "value" {
			inValue = true
			continue
		}
		if inValue {
			valueParts = append(valueParts, f)
		} else {
			nameParts = append(nameParts, f)
		}
	}
	if len(nameParts) == 0 {
		return "", "", false
	}
	return strings.Join(nameParts, " "), strings.Join(valueParts, " "), true
}

func (e *Engine) handlePosition(fields []string) {
	if len(fields) == 0 {
		return
	}

	idx := 0
	switch fields[0] {
	case "startpos":
		e.g = game.New()
		idx = 1
	case "fen":
		end := idx + 1
		for end < len(fields) && fields[end] != "moves" {
			end++
		}
		fen := strings.Join(fields[1:end], " ")
		g, err := game.FromFEN(fen)
		if err != nil {
			klog.Warningf("uci: position fen %q: %v", fen, err)
			return
		}
		e.g = g
		idx = end
	default:
		return
	}

	if idx < len(fields) && fields[idx] == "moves" {
		if err := applyMoves(e.g, fields[idx+1:]); err != nil {
			klog.Warningf("uci: position moves: %v", err)
		}
	}
}

func (e *Engine) handleGo(fields []string) {
	if e.searching.Load() {
		klog.Warning("uci: go received while already searching, ignoring")
		return
	}

	limits := parseLimits(fields)
	e.stop.Store(false)
	e.searching.Store(true)
	root := e.g

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.searching.Store(false)

		best, ponder, hasPonder, err := e.search.Run(root, limits, &e.stop, e.sendInfo)
		if err != nil {
			klog.Warningf("uci: search failed: %v", err)
			return
		}

		bestLAN, err := actionToLAN(root, best)
		if err != nil {
			klog.Warningf("uci: render bestmove: %v", err)
			return
		}
		line := "bestmove " + bestLAN
		if hasPonder {
			scratch := root.Clone()
			if applyErr := scratch.Apply(best); applyErr == nil {
				if ponderLAN, err := actionToLAN(scratch, ponder); err == nil {
					line += " ponder " + ponderLAN
				}
			}
		}
		e.send(line)
	}()
}

func (e *Engine) sendInfo(info Info) {
	var b strings.Builder
	fmt.Fprintf(&b, "info depth %d score cp %d", info.Depth, info.ScoreCP)
	if len(info.PV) > 0 {
		fmt.Fprintf(&b, " pv %s", strings.Join(info.PV, " "))
	}
	e.send(b.String())
}

// parseLimits reads the `go`-command token stream into Limits (§6).
func parseLimits(fields []string) Limits {
	var l Limits
	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "infinite":
			l.Infinite = true
		case "ponder":
			l.Ponder = true
		case "depth":
			i++
			l.Depth = atoiOr(fields, i, 0)
		case "nodes":
			i++
			l.Nodes = atoiOr(fields, i, 0)
		case "movetime":
			i++
			l.MoveTime = time.Duration(atoiOr(fields, i, 0)) * time.Millisecond
		case "wtime":
			i++
			l.WTime = time.Duration(atoiOr(fields, i, 0)) * time.Millisecond
		case "btime":
			i++
			l.BTime = time.Duration(atoiOr(fields, i, 0)) * time.Millisecond
		case "winc":
			i++
			l.WInc = time.Duration(atoiOr(fields, i, 0)) * time.Millisecond
		case "binc":
			i++
			l.BInc = time.Duration(atoiOr(fields, i, 0)) * time.Millisecond
		case "movestogo":
			i++
			l.MovesToGo = atoiOr(fields, i, 0)
		case "searchmoves", "mate":
			// consumed but not honored by this engine's single-tree search.
		}
	}
	return l
}

func atoiOr(fields []string, i, def int) int {
	if i < 0 || i >= len(fields) {
		return def
	}
	n, err := strconv.Atoi(fields[i])
	if err != nil {
		return def
	}
	return n
}
