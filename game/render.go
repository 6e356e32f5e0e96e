package game

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"github.com/notnil/chess"
	"github.com/pkg/errors"
	"golang.org/x/image/font/gofont/goregular"
)

const squareSize = 64

var (
	lightSquare = color.RGBA{0xee, 0xee, 0xd2, 0xff}
	darkSquare  = color.RGBA{0x76, 0x96, 0x56, 0xff}
	whiteGlyph  = color.RGBA{0xfa, 0xfa, 0xfa, 0xff}
	blackGlyph  = color.RGBA{0x20, 0x20, 0x20, 0xff}
)

var pieceGlyph = map[chess.PieceType]string{
	chess.Pawn:   "P",
	chess.Knight: "N",
	chess.Bishop: "B",
	chess.Rook:   "R",
	chess.Queen:  "Q",
	chess.King:   "K",
}

// RenderPNG draws the current board as an 8x8 grid labeled with piece
// letters and writes it as a PNG, for spot-checking self-play positions
// offline.
func (g *Game) RenderPNG(w io.Writer) error {
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return errors.Wrap(err, "game: parse embedded font")
	}

	dim := squareSize * 8
	img := image.NewRGBA(image.Rect(0, 0, dim, dim))

	for rank := 0; rank < 8; rank++ {
		for file := 0; file < 8; file++ {
			sq := color.Color(lightSquare)
			if (rank+file)%2 == 0 {
				sq = darkSquare
			}
			draw.Draw(img, image.Rect(file*squareSize, rank*squareSize, (file+1)*squareSize, (rank+1)*squareSize),
				&image.Uniform{C: sq}, image.Point{}, draw.Src)
		}
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(72)
	ctx.SetFont(f)
	ctx.SetFontSize(36)
	ctx.SetClip(img.Bounds())
	ctx.SetDst(img)

	board := g.Position().Board()
	for sq, p := range board.SquareMap() {
		if p == chess.NoPiece {
			continue
		}
		file, rank := int(sq)%8, 7-int(sq)/8 // image row 0 is the 8th rank
		glyph := pieceGlyph[p.Type()]
		col := blackGlyph
		if p.Color() == chess.White {
			col = whiteGlyph
		}
		ctx.SetSrc(&image.Uniform{C: col})
		pt := freetype.Pt(file*squareSize+squareSize/4, rank*squareSize+squareSize*3/4)
		if _, err := ctx.DrawString(glyph, pt); err != nil {
			return errors.Wrap(err, "game: draw piece glyph")
		}
	}

	return png.Encode(w, img)
}
