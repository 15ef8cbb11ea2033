package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luadec/internal/ir"
)

// graph builds a function with n empty blocks linked by edges.
func graph(n int, edges ...[2]ir.BlockID) *ir.Function {
	f := ir.NewFunction(0)
	for range n {
		f.NewBlock()
	}
	for _, e := range edges {
		f.AddEdge(e[0], e[1])
	}
	return f
}

// loopGraph is 0 -> 1 <-> 2, 1 -> 3 with 3 -> {4, 5} -> 6.
func loopGraph() *ir.Function {
	return graph(7,
		[2]ir.BlockID{0, 1},
		[2]ir.BlockID{1, 2},
		[2]ir.BlockID{2, 1},
		[2]ir.BlockID{1, 3},
		[2]ir.BlockID{3, 4},
		[2]ir.BlockID{3, 5},
		[2]ir.BlockID{4, 6},
		[2]ir.BlockID{5, 6},
	)
}

func TestDominatorTree(t *testing.T) {
	d := ComputeDominance(loopGraph())

	assert.Equal(t, ir.NoBlock, d.ImmediateDominator(0))
	assert.Equal(t, ir.BlockID(0), d.ImmediateDominator(1))
	assert.Equal(t, ir.BlockID(1), d.ImmediateDominator(2))
	assert.Equal(t, ir.BlockID(3), d.ImmediateDominator(6))

	assert.True(t, d.Dominates(1, 6))
	assert.True(t, d.Dominates(6, 6))
	assert.False(t, d.StrictlyDominates(6, 6))
	assert.False(t, d.Dominates(4, 6))
	assert.ElementsMatch(t, []ir.BlockID{4, 5, 6}, d.Children(3))
	assert.Equal(t, ir.BlockID(3), d.NearestCommonDominator(4, 5))
}

func TestDominanceFrontier(t *testing.T) {
	d := ComputeDominance(loopGraph())

	assert.ElementsMatch(t, []ir.BlockID{1}, d.Frontier(2))
	assert.ElementsMatch(t, []ir.BlockID{6}, d.Frontier(4))
	assert.ElementsMatch(t, []ir.BlockID{6}, d.Frontier(5))
	assert.ElementsMatch(t, []ir.BlockID{1}, d.Frontier(1))
	assert.Empty(t, d.Frontier(3))

	assert.ElementsMatch(t, []ir.BlockID{1, 6}, d.IteratedFrontier([]ir.BlockID{2, 4}))
}

func TestReversePostOrderStartsAtEntry(t *testing.T) {
	f := loopGraph()
	d := ComputeDominance(f)
	rpo := d.ReversePostOrder()
	require.Len(t, rpo, 7)
	assert.Equal(t, ir.BlockID(0), rpo[0])
	assert.Less(t, d.RPOIndex(3), d.RPOIndex(6))
	assert.Equal(t, rpo, ReversePostOrder(f))
}

func TestUnreachableBlocks(t *testing.T) {
	f := graph(3, [2]ir.BlockID{0, 1})
	d := ComputeDominance(f)
	assert.True(t, d.Reachable(1))
	assert.False(t, d.Reachable(2))
	assert.False(t, d.Dominates(0, 2))
}

func TestPostDominance(t *testing.T) {
	f := loopGraph()
	var nodes []ir.BlockID
	for _, b := range f.Blocks() {
		nodes = append(nodes, b.ID)
	}
	pd := ComputePostDominance(nodes, func(id ir.BlockID) []ir.BlockID { return f.Block(id).Successors })

	assert.Equal(t, ir.BlockID(6), pd.ImmediatePostDominator(3))
	assert.Equal(t, ir.BlockID(6), pd.ImmediatePostDominator(4))
	assert.Equal(t, ir.BlockID(3), pd.ImmediatePostDominator(1))
	assert.Equal(t, ir.BlockID(1), pd.ImmediatePostDominator(2))
	assert.Equal(t, Exit, pd.ImmediatePostDominator(6))
	assert.True(t, pd.PostDominates(6, 0))
	assert.False(t, pd.PostDominates(4, 3))
}

func TestDefUseChains(t *testing.T) {
	f := graph(2, [2]ir.BlockID{0, 1})
	v1 := ir.Register(0).WithVersion(1)
	def := ir.Assign(ir.Ref(v1), ir.Number(1))
	f.Block(0).Instructions = []ir.Instruction{def}
	ret := &ir.Return{Values: []ir.Expression{ir.Ref(v1), ir.Ref(v1)}}
	f.Block(1).Instructions = []ir.Instruction{ret}

	du := ComputeDefUse(f)
	site, ok := du.Definition(v1)
	require.True(t, ok)
	assert.Equal(t, ir.BlockID(0), site.Block)
	assert.Same(t, def, site.Instruction)
	assert.Equal(t, 2, du.UseCount(v1))
	assert.Empty(t, du.Conflicts)

	f.Block(1).Instructions = []ir.Instruction{ir.Assign(ir.Ref(v1), ir.Number(2)), ret}
	assert.Equal(t, []ir.Identifier{v1}, ComputeDefUse(f).Conflicts)
}

func TestCacheDetectsStaleReads(t *testing.T) {
	f := loopGraph()
	c := NewCache(f)
	first := c.Dominance()
	assert.Same(t, first, c.Dominance())

	f.NewBlock()
	assert.PanicsWithError(t, (&StaleError{Kind: KindDominance, Function: 0, Computed: first.Generation(), Generation: f.Generation()}).Error(), func() {
		c.Dominance()
	})

	c.Invalidate(KindAll)
	assert.NotSame(t, first, c.Dominance())
}
