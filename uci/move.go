package uci

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/sigmazero/sigmazero/action"
	"github.com/sigmazero/sigmazero/game"
)

// parseSquare reads a two-character algebraic square ("e4") into an
// action.Square.
func parseSquare(s string) (action.Square, error) {
	if len(s) != 2 {
		return 0, fmt.Errorf("uci: malformed square %q", s)
	}
	file := int(s[0] - 'a')
	rank := int(s[1] - '1')
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return 0, fmt.Errorf("uci: square %q out of range", s)
	}
	return action.NewSquare(file, rank), nil
}

var promoLetters = map[byte]action.PieceKind{
	'n': action.Knight,
	'b': action.Bishop,
	'r': action.Rook,
	'q': action.Queen,
}

// parseUCIMove decodes a long-algebraic move string ("e2e4", "a7a8q")
// against g's current position into an action-space index (§4.6).
func parseUCIMove(g *game.Game, lan string) (int, error) {
	if len(lan) != 4 && len(lan) != 5 {
		return 0, fmt.Errorf("uci: malformed move %q", lan)
	}
	from, err := parseSquare(lan[0:2])
	if err != nil {
		return 0, err
	}
	to, err := parseSquare(lan[2:4])
	if err != nil {
		return 0, err
	}

	promo := action.None
	if len(lan) == 5 {
		p, ok := promoLetters[lan[4]]
		if !ok {
			return 0, fmt.Errorf("uci: unknown promotion piece %q", lan[4:5])
		}
		promo = p
	}

	idx, err := action.MoveToAction(from, to, promo, g.SideToMove())
	if err != nil {
		return 0, errors.Wrapf(err, "uci: encode move %q", lan)
	}
	return idx, nil
}

// applyMoves parses and applies a sequence of UCI move strings in order,
// as used by the `position ... moves ...` command.
func applyMoves(g *game.Game, moves []string) error {
	for _, lan := range moves {
		idx, err := parseUCIMove(g, lan)
		if err != nil {
			return err
		}
		if err := g.Apply(idx); err != nil {
			return err
		}
	}
	return nil
}

// actionToLAN renders an action-space index as a long-algebraic move
// string suitable for `bestmove`/`info pv`.
func actionToLAN(g *game.Game, idx int) (string, error) {
	mv, err := action.ActionToMove(g, idx)
	if err != nil {
		return "", errors.Wrap(err, "uci: decode action")
	}
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
	return s, nil
}

func squareString(sq action.Square) string {
	return string(rune('a'+sq.File())) + string(rune('1'+sq.Rank()))
}
