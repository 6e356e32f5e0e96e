// Package game adapts github.com/notnil/chess to the 4672-way action space
// and position-image encoding the search core operates on: UCI-string move
// application, legal-action enumeration, repetition bookkeeping and the
// metadata (castling rights, clocks) the image encoder needs.
package game

import (
	"strconv"
	"strings"
	"sync"

	"github.com/notnil/chess"
	"github.com/pkg/errors"

	"github.com/sigmazero/sigmazero/action"
)

// Game wraps a sequence of notnil/chess positions reached from a starting
// FEN, exposing the minimal surface the tree search, self-play driver and
// image encoder need. It is its own action.Board.
type Game struct {
	mu      sync.Mutex
	history []*chess.Game // history[0] is the starting position
	ptr     int
}

// New returns a game at the standard starting position.
func New() *Game {
	g := chess.NewGame(chess.UseNotation(chess.UCINotation{}))
	return &Game{history: []*chess.Game{g}, ptr: 0}
}

// FromFEN returns a game whose current position is parsed from fen.
func FromFEN(fen string) (*Game, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, errors.Wrap(err, "game: parse FEN")
	}
	g := chess.NewGame(opt, chess.UseNotation(chess.UCINotation{}))
	return &Game{history: []*chess.Game{g}, ptr: 0}, nil
}

func (g *Game) cur() *chess.Game { return g.history[g.ptr] }

// Position returns the underlying rules-library position.
func (g *Game) Position() *chess.Position { return g.cur().Position() }

// SideToMove implements action.Board.
func (g *Game) SideToMove() action.Side {
	if g.Position().Turn() == chess.Black {
		return action.Black
	}
	return action.White
}

// PieceKindAt implements action.Board.
func (g *Game) PieceKindAt(sq action.Square) action.PieceKind {
	p, ok := g.Position().Board().SquareMap()[chess.Square(sq)]
	if !ok || p == chess.NoPiece {
		return action.None
	}
	return pieceTypeToKind(p.Type())
}

func pieceTypeToKind(pt chess.PieceType) action.PieceKind {
	switch pt {
	case chess.Pawn:
		return action.Pawn
	case chess.Knight:
		return action.Knight
	case chess.Bishop:
		return action.Bishop
	case chess.Rook:
		return action.Rook
	case chess.Queen:
		return action.Queen
	case chess.King:
		return action.King
	default:
		return action.None
	}
}

// LegalActions returns the action-space indices of every legal move in the
// current position.
func (g *Game) LegalActions() ([]int, error) {
	moves := g.cur().ValidMoves()
	out := make([]int, 0, len(moves))
	side := g.SideToMove()
	for _, m := range moves {
		idx, err := action.MoveToAction(action.Square(m.S1()), action.Square(m.S2()), pieceTypeToKind(m.Promo()), side)
		if err != nil {
			return nil, errors.Wrap(err, "game: encode legal move")
		}
		out = append(out, idx)
	}
	return out, nil
}

// Apply decodes the action-space index idx against the current position and
// plays it, advancing game state. Returns an error (never a panic) if idx
// decodes to a move the rules library rejects as illegal — the defensive
// case called out for the legal-policy-projection invariant.
func (g *Game) Apply(idx int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	mv, err := action.ActionToMove(g, idx)
	if err != nil {
		return errors.Wrap(err, "game: decode action")
	}
	uci := moveString(mv)

	next := g.cur().Clone()
	if err := next.MoveStr(uci); err != nil {
		return errors.Wrapf(err, "game: illegal move %s (action %d)", uci, idx)
	}

	g.ptr++
	if g.ptr == len(g.history) {
		g.history = append(g.history, next)
	} else {
		g.history = append(g.history[:g.ptr], next)
	}
	return nil
}

func moveString(mv action.Move) string {
	s := squareString(mv.From) + squareString(mv.To)
	switch mv.Promo {
	case action.Knight:
		s += "n"
	case action.Bishop:
		s += "b"
	case action.Rook:
		s += "r"
	case action.Queen:
		s += "q"
	}
	return s
}

func squareString(sq action.Square) string {
	return string(rune('a'+sq.File())) + strconv.Itoa(sq.Rank()+1)
}

// Result reports whether the game has ended and, if so, the terminal value
// from the perspective of the side to move at the (now-terminal) position:
// -1 if that side is checkmated, 0 on any draw.
func (g *Game) Result() (terminal bool, value float32) {
	switch g.cur().Outcome() {
	case chess.NoOutcome:
		return false, 0
	case chess.Draw:
		return true, 0
	default:
		return true, -1
	}
}

// Ply returns the number of half-moves played so far.
func (g *Game) Ply() int { return g.ptr }

// FEN returns the Forsyth-Edwards Notation of the current position.
func (g *Game) FEN() string { return g.cur().FEN() }

// Meta holds the position metadata the image encoder needs that the rules
// library exposes only via its FEN rendering.
type Meta struct {
	CastleWK, CastleWQ, CastleBK, CastleBQ bool
	HalfmoveClock                          int
	FullmoveNumber                         int
}

// OwnKingside reports the kingside castling right of side.
func (m Meta) OwnKingside(side action.Side) bool {
	if side == action.White {
		return m.CastleWK
	}
	return m.CastleBK
}

// OwnQueenside reports the queenside castling right of side.
func (m Meta) OwnQueenside(side action.Side) bool {
	if side == action.White {
		return m.CastleWQ
	}
	return m.CastleBQ
}

// OppKingside reports the kingside castling right of side's opponent.
func (m Meta) OppKingside(side action.Side) bool { return m.OwnKingside(opposite(side)) }

// OppQueenside reports the queenside castling right of side's opponent.
func (m Meta) OppQueenside(side action.Side) bool { return m.OwnQueenside(opposite(side)) }

func opposite(side action.Side) action.Side {
	if side == action.White {
		return action.Black
	}
	return action.White
}

// Meta parses the current position's FEN to recover castling rights and the
// halfmove/fullmove counters.
func (g *Game) Meta() Meta {
	fields := strings.Fields(g.FEN())
	var m Meta
	if len(fields) > 2 {
		c := fields[2]
		m.CastleWK = strings.Contains(c, "K")
		m.CastleWQ = strings.Contains(c, "Q")
		m.CastleBK = strings.Contains(c, "k")
		m.CastleBQ = strings.Contains(c, "q")
	}
	if len(fields) > 4 {
		m.HalfmoveClock, _ = strconv.Atoi(fields[4])
	}
	if len(fields) > 5 {
		m.FullmoveNumber, _ = strconv.Atoi(fields[5])
	}
	return m
}

// Snapshot is one historical position's piece placement plus its repetition
// count, as needed by the image encoder.
type Snapshot struct {
	Board      *chess.Board
	Repetition int
}

// HistoryPositions returns the last h plies (oldest first, current position
// last). Entries beyond the start of the game are nil, signalling "zero
// planes" to the image encoder rather than padding by repetition.
func (g *Game) HistoryPositions(h int) []*Snapshot {
	out := make([]*Snapshot, h)
	for i := 0; i < h; i++ {
		idx := g.ptr - (h - 1 - i)
		if idx < 0 {
			continue
		}
		out[i] = &Snapshot{
			Board:      g.history[idx].Position().Board(),
			Repetition: g.repetitionCountAt(idx),
		}
	}
	return out
}

func (g *Game) repetitionCountAt(idx int) int {
	hash := g.history[idx].Position().Hash()
	count := 0
	for i := 0; i <= idx; i++ {
		if g.history[i].Position().Hash() == hash {
			count++
		}
	}
	return count
}

// Clone returns an independent copy sharing no mutable state, used for the
// scratch traversal copy a simulation discards after back-up.
func (g *Game) Clone() *Game {
	g.mu.Lock()
	defer g.mu.Unlock()
	h := make([]*chess.Game, len(g.history))
	copy(h, g.history)
	return &Game{history: h, ptr: g.ptr}
}

// Draw renders the current board as an ASCII diagram, for interactive and
// debug use.
func (g *Game) Draw() string { return g.Position().Board().Draw() }
