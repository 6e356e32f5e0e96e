// Package boardimage builds the [C,8,8] position-image tensor consumed by
// the dual-head network from a game.Game: per-ply piece-occupancy and
// repetition planes for up to H history plies, plus side-to-move, move
// counters and castling-rights planes. Square rows are flipped when the
// side to move is the second player so the network always sees "self at
// bottom".
package boardimage

import (
	"github.com/notnil/chess"
	"github.com/pkg/errors"

	"github.com/sigmazero/sigmazero/action"
	"github.com/sigmazero/sigmazero/game"
)

// PlanesPerPly is 6 own piece-type planes + 6 opponent piece-type planes +
// 2 repetition-count planes, contributed per history ply.
const PlanesPerPly = 14

// ExtraPlanes is side-to-move + fullmove-number + 4 castling-rights planes +
// halfmove-clock, contributed once regardless of history depth.
const ExtraPlanes = 7

// Channels returns the channel count C for a given history depth h.
func Channels(h int) int { return h*PlanesPerPly + ExtraPlanes }

// Image is a [C,8,8] tensor, stored plane-major with each 8x8 plane in
// row-major (rank, file) order, rank 0 first.
type Image struct {
	C    int
	Data []float32
}

// NewImage allocates a zeroed image with c channels.
func NewImage(c int) Image { return Image{C: c, Data: make([]float32, c*64)} }

func (img Image) set(plane, rank, file int, v float32) {
	img.Data[plane*64+rank*8+file] = v
}

func fillConst(img Image, plane int, v float32) {
	base := plane * 64
	for i := 0; i < 64; i++ {
		img.Data[base+i] = v
	}
}

// Encode produces the image for g, walking up to h plies of history.
// Absent history (fewer than h plies played) leaves the corresponding
// planes zero, per the "image_of(game, H)" contract.
func Encode(g *game.Game, h int) (Image, error) {
	if h < 1 {
		return Image{}, errors.New("boardimage: history depth must be >= 1")
	}
	img := NewImage(Channels(h))
	mover := g.SideToMove()

	for i, snap := range g.HistoryPositions(h) {
		if snap == nil {
			continue
		}
		encodePosition(img, i*PlanesPerPly, snap, mover)
	}

	meta := g.Meta()
	base := h * PlanesPerPly
	sideVal := float32(0)
	if mover == action.White {
		sideVal = 1
	}
	fillConst(img, base+0, sideVal)
	fillConst(img, base+1, float32(meta.FullmoveNumber))
	fillConst(img, base+2, boolToF(meta.OwnKingside(mover)))
	fillConst(img, base+3, boolToF(meta.OwnQueenside(mover)))
	fillConst(img, base+4, boolToF(meta.OppKingside(mover)))
	fillConst(img, base+5, boolToF(meta.OppQueenside(mover)))
	fillConst(img, base+6, float32(meta.HalfmoveClock))
	return img, nil
}

func encodePosition(img Image, plane int, snap *game.Snapshot, mover action.Side) {
	for sq, p := range snap.Board.SquareMap() {
		if p == chess.NoPiece {
			continue
		}
		pieceSide := action.White
		if p.Color() == chess.Black {
			pieceSide = action.Black
		}
		offset := 0
		if pieceSide != mover {
			offset = 6
		}
		file, rank := int(sq)%8, int(sq)/8
		if mover == action.Black {
			rank = 7 - rank
		}
		img.set(plane+offset+pieceTypePlane(p.Type()), rank, file, 1)
	}

	if snap.Repetition >= 2 {
		fillConst(img, plane+12, 1)
	}
	if snap.Repetition >= 3 {
		fillConst(img, plane+13, 1)
	}
}

func pieceTypePlane(pt chess.PieceType) int {
	switch pt {
	case chess.Pawn:
		return 0
	case chess.Knight:
		return 1
	case chess.Bishop:
		return 2
	case chess.Rook:
		return 3
	case chess.Queen:
		return 4
	case chess.King:
		return 5
	default:
		return 0
	}
}

func boolToF(b bool) float32 {
	if b {
		return 1
	}
	return 0
}
