package uci

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigmazero/sigmazero/game"
)

func TestParseUCIMoveRoundTripsThroughActionToLAN(t *testing.T) {
	g := game.New()
	idx, err := parseUCIMove(g, "e2e4")
	require.NoError(t, err)

	lan, err := actionToLAN(g, idx)
	require.NoError(t, err)
	assert.Equal(t, "e2e4", lan)
}

func TestParseUCIMoveRejectsMalformedString(t *testing.T) {
	g := game.New()
	_, err := parseUCIMove(g, "e2")
	assert.Error(t, err)
}

func TestApplyMovesAdvancesGameInOrder(t *testing.T) {
	g := game.New()
	require.NoError(t, applyMoves(g, []string{"e2e4", "e7e5", "g1f3"}))
	assert.Equal(t, 3, g.Ply())
}

func TestParseUCIMoveHandlesPromotion(t *testing.T) {
	g, err := game.FromFEN("8/P7/8/8/8/8/8/k6K w - - 0 1")
	require.NoError(t, err)

	idx, err := parseUCIMove(g, "a7a8q")
	require.NoError(t, err)

	lan, err := actionToLAN(g, idx)
	require.NoError(t, err)
	assert.Equal(t, "a7a8q", lan)
}
