package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigmazero/sigmazero/action"
)

func TestLegalActionsRoundTripThroughApply(t *testing.T) {
	g := New()
	legal, err := g.LegalActions()
	require.NoError(t, err)
	assert.Len(t, legal, 20) // 16 pawn moves + 4 knight moves at the start

	err = g.Apply(legal[0])
	require.NoError(t, err)
	assert.Equal(t, 1, g.Ply())
}

func TestApplyRejectsIllegalAction(t *testing.T) {
	g := New()
	// An action index decoding to a move no piece can make from its origin
	// square at the starting position (e.g. a rook slide into open space).
	idx, err := action.MoveToAction(action.NewSquare(0, 0), action.NewSquare(0, 4), action.None, action.White)
	require.NoError(t, err)
	assert.Error(t, g.Apply(idx))
}

func TestFoolsMateIsTerminalLossForWhite(t *testing.T) {
	g, err := FromFEN("rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3")
	require.NoError(t, err)
	terminal, value := g.Result()
	assert.True(t, terminal)
	assert.Equal(t, float32(-1), value)
}

func TestStartingPositionIsNotTerminal(t *testing.T) {
	g := New()
	terminal, _ := g.Result()
	assert.False(t, terminal)
}

func TestMetaReflectsFullCastlingRightsAtStart(t *testing.T) {
	g := New()
	m := g.Meta()
	assert.True(t, m.OwnKingside(action.White))
	assert.True(t, m.OwnQueenside(action.White))
	assert.True(t, m.OppKingside(action.White))
	assert.True(t, m.OppQueenside(action.White))
	assert.Equal(t, 1, m.FullmoveNumber)
	assert.Equal(t, 0, m.HalfmoveClock)
}

func TestHistoryPositionsPadsAbsentPliesWithNil(t *testing.T) {
	g := New()
	snaps := g.HistoryPositions(3)
	require.Len(t, snaps, 3)
	assert.Nil(t, snaps[0])
	assert.Nil(t, snaps[1])
	require.NotNil(t, snaps[2])
}

func TestCloneIsIndependent(t *testing.T) {
	g := New()
	legal, err := g.LegalActions()
	require.NoError(t, err)

	clone := g.Clone()
	require.NoError(t, g.Apply(legal[0]))

	assert.Equal(t, 1, g.Ply())
	assert.Equal(t, 0, clone.Ply())
}
