package boardimage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigmazero/sigmazero/game"
)

func TestChannelsMatchesHistoryDepth(t *testing.T) {
	assert.Equal(t, 21, Channels(1)) // 14 + 7
	assert.Equal(t, 35, Channels(2)) // 2*14 + 7
}

func TestEncodeStartingPositionPlaneCounts(t *testing.T) {
	g := game.New()
	img, err := Encode(g, 1)
	require.NoError(t, err)
	assert.Equal(t, 21, img.C)
	assert.Len(t, img.Data, 21*64)

	// White's own pawns occupy plane 0; with mover == White there is no
	// rank flip, so the pawn rank is rank index 1 (the second rank).
	sum := float32(0)
	for file := 0; file < 8; file++ {
		sum += img.Data[0*64+1*8+file]
	}
	assert.Equal(t, float32(8), sum)
}

func TestEncodeIsDeterministic(t *testing.T) {
	g := game.New()
	a, err := Encode(g, 1)
	require.NoError(t, err)
	b, err := Encode(g, 1)
	require.NoError(t, err)
	assert.Equal(t, a.Data, b.Data)
}

func TestEncodeSideToMoveFlipsBoardForBlack(t *testing.T) {
	g := game.New()
	legal, err := g.LegalActions()
	require.NoError(t, err)
	require.NoError(t, g.Apply(legal[0]))

	img, err := Encode(g, 1)
	require.NoError(t, err)

	// With Black to move, Black's own pawns (plane 0, offset by flip) sit
	// at canonical rank index 1 after the rank flip.
	sum := float32(0)
	for file := 0; file < 8; file++ {
		sum += img.Data[0*64+1*8+file]
	}
	assert.Equal(t, float32(8), sum)
}

func TestEncodeRejectsZeroHistoryDepth(t *testing.T) {
	g := game.New()
	_, err := Encode(g, 0)
	assert.Error(t, err)
}
