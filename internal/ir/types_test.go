package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// diamond lays out 0 -> {1, 2} -> 3 with a phi in 3.
func diamond(t *testing.T) (*Function, *Phi) {
	t.Helper()
	f := NewFunction(0)
	for range 4 {
		f.NewBlock()
	}
	f.AddEdge(0, 1)
	f.AddEdge(0, 2)
	f.AddEdge(1, 3)
	f.AddEdge(2, 3)

	f.Block(0).Instructions = []Instruction{
		&ConditionalJump{Condition: Ref(Register(0)), Dest: 1},
	}
	f.Block(1).Instructions = []Instruction{
		Assign(Ref(Register(1).WithVersion(1)), Number(1)),
		&Jump{Dest: 3},
	}
	f.Block(2).Instructions = []Instruction{
		Assign(Ref(Register(1).WithVersion(2)), Number(2)),
	}
	phi := &Phi{
		Left: Register(1).WithVersion(3),
		Operands: []PhiOperand{
			{Pred: 1, Value: Register(1).WithVersion(1)},
			{Pred: 2, Value: Register(1).WithVersion(2)},
		},
	}
	f.Block(3).Instructions = []Instruction{phi, &Return{Values: []Expression{Ref(phi.Left)}}}
	return f, phi
}

func TestNewBlockTracksLayoutAndGeneration(t *testing.T) {
	f := NewFunction(0)
	assert.Equal(t, NoBlock, f.Entry)
	g := f.Generation()

	a := f.NewBlock()
	assert.Equal(t, a.ID, f.Entry)
	c := f.NewBlock()
	b := f.NewBlockAfter(a.ID)
	z := f.NewBlockBefore(a.ID)

	var order []BlockID
	for _, blk := range f.Blocks() {
		order = append(order, blk.ID)
	}
	assert.Equal(t, []BlockID{z.ID, a.ID, b.ID, c.ID}, order)
	assert.Equal(t, b.ID, f.NextInLayout(a.ID))
	assert.Equal(t, NoBlock, f.NextInLayout(c.ID))
	assert.Greater(t, f.Generation(), g)
}

func TestSplitEdgeRewiresPhiAndJump(t *testing.T) {
	f, phi := diamond(t)
	s := f.SplitEdge(1, 3)

	assert.Equal(t, []BlockID{s.ID}, f.Block(1).Successors)
	assert.Equal(t, []BlockID{1}, s.Predecessors)
	assert.Equal(t, []BlockID{3}, s.Successors)
	assert.Contains(t, f.Block(3).Predecessors, s.ID)
	assert.NotContains(t, f.Block(3).Predecessors, BlockID(1))

	v, ok := phi.Operand(s.ID)
	require.True(t, ok)
	assert.Equal(t, Register(1).WithVersion(1), v)

	jmp := f.Block(1).Last().(*Jump)
	assert.Equal(t, s.ID, jmp.Dest)
	assert.Equal(t, s.ID, f.NextInLayout(1))

	assert.Panics(t, func() { f.SplitEdge(2, 1) })
}

func TestSplitEdgeTakenBranch(t *testing.T) {
	f, _ := diamond(t)
	s := f.SplitEdge(0, 1)
	cj := f.Block(0).Last().(*ConditionalJump)
	assert.Equal(t, s.ID, cj.Dest)
	assert.Equal(t, []BlockID{s.ID, 2}, f.Block(0).Successors)
}

func TestRemoveEdgeDropsPhiOperand(t *testing.T) {
	f, phi := diamond(t)
	f.RemoveEdge(2, 3)
	assert.Empty(t, f.Block(2).Successors)
	_, ok := phi.Operand(2)
	assert.False(t, ok)
	assert.Len(t, phi.Operands, 1)
}

func TestMaxVersion(t *testing.T) {
	f, _ := diamond(t)
	assert.Equal(t, uint32(3), f.MaxVersion(Register(1)))
	assert.Zero(t, f.MaxVersion(Register(7)))
}

func TestBlockPhis(t *testing.T) {
	f, phi := diamond(t)
	join := f.Block(3)
	assert.Equal(t, []*Phi{phi}, join.Phis())
	assert.Equal(t, 1, join.FirstNonPhi())
	assert.True(t, join.RemoveInstruction(phi))
	assert.Empty(t, join.Phis())
	assert.False(t, join.RemoveInstruction(phi))
}

func TestRemoveBlockReleasesID(t *testing.T) {
	f, phi := diamond(t)
	f.RemoveBlock(2)
	assert.Nil(t, f.Block(2))
	assert.Equal(t, 3, f.BlockCount())
	assert.Equal(t, 4, f.ArenaSize())
	assert.Equal(t, []BlockID{1}, f.Block(0).Successors)
	assert.Len(t, phi.Operands, 1)

	next := f.NewBlock()
	assert.Equal(t, BlockID(4), next.ID)
}
