package mcts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func childrenOf(tree *Tree, idx Naughty) []Naughty {
	_, _, _, children := tree.node(idx).snapshot()
	return children
}

// childWithAction returns the child of idx reached by action. Expand stores
// children in map-iteration order, so tests look children up by action
// rather than by position.
func childWithAction(t *testing.T, tree *Tree, idx Naughty, action int) Naughty {
	t.Helper()
	for _, ci := range childrenOf(tree, idx) {
		if tree.node(ci).getAction() == action {
			return ci
		}
	}
	t.Fatalf("no child with action %d", action)
	return nilNode
}

func TestSelectOnFreshTreeReturnsRootOnly(t *testing.T) {
	tree := New(DefaultConfig())
	path := tree.Select()
	assert.Equal(t, []Naughty{tree.Root()}, path)
}

func TestPUCTPrefersHigherPriorWhenBothChildrenUnvisited(t *testing.T) {
	tree := New(DefaultConfig())
	tree.Expand(tree.Root(), map[int]float32{1: 0.9, 2: 0.1})
	// One root visit, so the sqrt(N(parent)) exploration factor is non-zero.
	tree.Backup([]Naughty{tree.Root()}, 0)

	path := tree.Select()
	require.Len(t, path, 2)
	assert.Equal(t, 1, tree.node(path[1]).getAction())
}

func TestBackupFlipsSignAtEachLevel(t *testing.T) {
	tree := New(DefaultConfig())
	tree.Expand(tree.Root(), map[int]float32{1: 1.0})
	child := childrenOf(tree, tree.Root())[0]
	tree.Expand(child, map[int]float32{2: 1.0})
	grandchild := childrenOf(tree, child)[0]

	path := []Naughty{tree.Root(), child, grandchild}
	tree.Backup(path, 1.0)

	assert.Equal(t, float32(1), tree.node(grandchild).mean())
	assert.Equal(t, float32(-1), tree.node(child).mean())
	assert.Equal(t, float32(1), tree.node(tree.Root()).mean())
}

func TestVisitPolicyIsNormalized(t *testing.T) {
	tree := New(DefaultConfig())
	tree.Expand(tree.Root(), map[int]float32{1: 0.5, 2: 0.5})
	first := childWithAction(t, tree, tree.Root(), 1)
	second := childWithAction(t, tree, tree.Root(), 2)
	tree.node(first).update(0)
	tree.node(first).update(0)
	tree.node(first).update(0)
	tree.node(second).update(0)

	policy := tree.VisitPolicy()
	var total float32
	for _, p := range policy {
		total += p
	}
	assert.InDelta(t, 1.0, total, 1e-6)
	assert.Greater(t, policy[1], policy[2])
}

func TestShiftRootDiscardsSiblingsAndTheirDescendants(t *testing.T) {
	tree := New(DefaultConfig())
	tree.Expand(tree.Root(), map[int]float32{1: 0.5, 2: 0.5})
	sibling := childWithAction(t, tree, tree.Root(), 2)
	tree.Expand(sibling, map[int]float32{3: 1.0})
	sizeBefore := tree.Size()

	require.NoError(t, tree.ShiftRoot(1))
	assert.Equal(t, sizeBefore-2, tree.Size()) // the sibling and its one child
	assert.Equal(t, 1, tree.node(tree.Root()).getAction())
}

func TestShiftRootRejectsUnknownAction(t *testing.T) {
	tree := New(DefaultConfig())
	tree.Expand(tree.Root(), map[int]float32{1: 1.0})
	assert.Error(t, tree.ShiftRoot(99))
}

func TestSampleActionZeroTemperaturePicksMostVisited(t *testing.T) {
	tree := New(DefaultConfig())
	tree.Expand(tree.Root(), map[int]float32{1: 0.5, 2: 0.5})
	children := childrenOf(tree, tree.Root())
	tree.node(children[1]).update(1)
	tree.node(children[1]).update(1)

	action, err := tree.SampleAction(0)
	require.NoError(t, err)
	assert.Equal(t, tree.node(children[1]).getAction(), action)
}

func TestResetStartsOverWithEmptyRoot(t *testing.T) {
	tree := New(DefaultConfig())
	tree.Expand(tree.Root(), map[int]float32{1: 1.0})
	tree.Reset()
	assert.Equal(t, []Naughty{tree.Root()}, tree.Select())
}

func TestPrincipalVariationFollowsMostVisitedChildAtEachLevel(t *testing.T) {
	tree := New(DefaultConfig())
	tree.Expand(tree.Root(), map[int]float32{1: 0.5, 2: 0.5})
	children := childrenOf(tree, tree.Root())
	tree.node(children[1]).update(1)
	tree.node(children[1]).update(1)
	tree.Expand(children[1], map[int]float32{3: 1.0})

	pv := tree.PrincipalVariation(5)
	require.Len(t, pv, 2)
	assert.Equal(t, tree.node(children[1]).getAction(), pv[0])
	assert.Equal(t, 3, pv[1])
}

func TestBestGrandchildReturnsMostVisitedUnderRootAction(t *testing.T) {
	tree := New(DefaultConfig())
	tree.Expand(tree.Root(), map[int]float32{1: 0.5, 2: 0.5})
	child := childWithAction(t, tree, tree.Root(), 1)
	tree.Expand(child, map[int]float32{5: 0.5, 6: 0.5})
	grandchildren := childrenOf(tree, child)
	tree.node(grandchildren[1]).update(1)

	ponder, ok := tree.BestGrandchild(1)
	require.True(t, ok)
	assert.Equal(t, tree.node(grandchildren[1]).getAction(), ponder)

	_, ok = tree.BestGrandchild(2)
	assert.False(t, ok)
}

func TestRootVisitCountReflectsBackups(t *testing.T) {
	tree := New(DefaultConfig())
	tree.Expand(tree.Root(), map[int]float32{1: 1.0})
	tree.Backup([]Naughty{tree.Root()}, 0)
	tree.Backup([]Naughty{tree.Root()}, 0)
	assert.Equal(t, uint32(2), tree.RootVisitCount())
}
