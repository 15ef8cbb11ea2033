package passes

import (
	"slices"

	"luadec/internal/ir"
)

// MergeCompoundConditionals folds short-circuit chains of conditional
// jumps into single 'and'/'or' conditions.
type MergeCompoundConditionals struct{}

func (MergeCompoundConditionals) Name() string { return "merge-compound-conditionals" }
func (MergeCompoundConditionals) Description() string {
	return "merge chained conditional jumps into and/or conditions"
}
func (MergeCompoundConditionals) Mutates() Mutation { return MutatesCFG }

func (MergeCompoundConditionals) Run(_ *Context, f *ir.Function) (bool, error) {
	changed := false
	for again := true; again; {
		again = false
		for _, a := range f.Blocks() {
			if mergeCompound(f, a) {
				again, changed = true, true
				break
			}
		}
	}
	return changed, nil
}

// mergeCompound tries to absorb one successor of a that holds nothing but
// a conditional jump.
func mergeCompound(f *ir.Function, a *ir.BasicBlock) bool {
	cj, ok := a.Last().(*ir.ConditionalJump)
	if !ok || len(a.Successors) != 2 {
		return false
	}
	x, y := a.Successors[0], a.Successors[1]
	for _, takenSide := range []bool{false, true} {
		inner, other := y, x
		if takenSide {
			inner, other = x, y
		}
		b := f.Block(inner)
		if inner == a.ID || len(b.Predecessors) != 1 || len(b.Instructions) != 1 || len(b.Successors) != 2 {
			continue
		}
		bj, ok := b.Last().(*ir.ConditionalJump)
		if !ok {
			continue
		}
		bt, bf := b.Successors[0], b.Successors[1]
		if bt == bf || bt == a.ID || bf == a.ID || bt == inner || bf == inner {
			continue
		}
		var cond ir.Expression
		var taken, fall ir.BlockID
		switch {
		case !takenSide && other == bt:
			// a || b
			cond = &ir.BinOp{Left: cj.Condition, Right: bj.Condition, Op: ir.OpOr}
			taken, fall = bt, bf
		case !takenSide && other == bf:
			// !a && b
			cond = &ir.BinOp{Left: ir.Not(cj.Condition), Right: bj.Condition, Op: ir.OpAnd}
			taken, fall = bt, bf
		case takenSide && other == bf:
			// a && b
			cond = &ir.BinOp{Left: cj.Condition, Right: bj.Condition, Op: ir.OpAnd}
			taken, fall = bt, bf
		case takenSide && other == bt:
			// !a || b
			cond = &ir.BinOp{Left: ir.Not(cj.Condition), Right: bj.Condition, Op: ir.OpOr}
			taken, fall = bt, bf
		default:
			continue
		}
		if !phisAgree(f.Block(other), a.ID, inner) {
			continue
		}

		f.RemoveEdge(inner, other)
		keep := bt
		if other == bt {
			keep = bf
		}
		f.ReplacePredecessor(keep, inner, a.ID)
		a.Successors = []ir.BlockID{taken, fall}
		b.Successors = nil
		b.Predecessors = nil
		f.RemoveBlock(inner)

		cj.Condition = cond
		cj.Dest = taken
		cj.End = max(cj.End, bj.End)
		return true
	}
	return false
}

// phisAgree reports whether every phi of b receives the same value from p
// and q.
func phisAgree(b *ir.BasicBlock, p, q ir.BlockID) bool {
	for _, phi := range b.Phis() {
		vp, okp := phi.Operand(p)
		vq, okq := phi.Operand(q)
		if okp != okq || vp != vq {
			return false
		}
	}
	return true
}

// MergeConditionalAssignments recognizes values selected by a branch and
// merged by a phi: boolean materialization of a comparison, and the value
// forms of 'and' and 'or'.
type MergeConditionalAssignments struct{}

func (MergeConditionalAssignments) Name() string { return "merge-conditional-assignments" }
func (MergeConditionalAssignments) Description() string {
	return "turn branch-selected values into boolean, and, or expressions"
}
func (MergeConditionalAssignments) Mutates() Mutation { return MutatesCFG }

func (MergeConditionalAssignments) Run(_ *Context, f *ir.Function) (bool, error) {
	changed := false
	for again := true; again; {
		again = false
		for _, a := range f.Blocks() {
			if mergeSelect(f, a) {
				again, changed = true, true
				break
			}
		}
	}
	return changed, nil
}

// selectPath is one arm of a branch that reaches the join block.
type selectPath struct {
	// block is the arm's own block, or NoBlock when the branch goes
	// straight to the join.
	block ir.BlockID
	value ir.Expression
}

func mergeSelect(f *ir.Function, a *ir.BasicBlock) bool {
	cj, ok := a.Last().(*ir.ConditionalJump)
	if !ok || len(a.Successors) != 2 {
		return false
	}
	t, e := a.Successors[0], a.Successors[1]
	join := ir.NoBlock
	switch {
	case singleSuccessor(f, t) == e:
		join = e
	case singleSuccessor(f, e) == t:
		join = t
	case singleSuccessor(f, t) != ir.NoBlock && singleSuccessor(f, t) == singleSuccessor(f, e):
		join = singleSuccessor(f, t)
	default:
		return false
	}
	jb := f.Block(join)
	if join == a.ID || len(jb.Predecessors) != 2 {
		return false
	}
	phis := jb.Phis()
	if len(phis) != 1 {
		return false
	}
	phi := phis[0]

	taken, ok := armValue(f, a.ID, t, join, phi)
	if !ok {
		return false
	}
	fall, ok := armValue(f, a.ID, e, join, phi)
	if !ok {
		return false
	}

	var value ir.Expression
	tc, tIsBool := boolConstant(taken.value)
	fc, fIsBool := boolConstant(fall.value)
	switch {
	case taken.block != ir.NoBlock && fall.block != ir.NoBlock && tIsBool && fIsBool && tc != fc:
		value = cj.Condition
		if !tc {
			value = ir.Not(cj.Condition)
		}
	case sameRef(cj.Condition, taken.value):
		value = &ir.BinOp{Left: taken.value, Right: fall.value, Op: ir.OpOr}
	case isNotOf(cj.Condition, taken.value):
		value = &ir.BinOp{Left: taken.value, Right: fall.value, Op: ir.OpAnd}
	default:
		return false
	}

	jb.RemoveInstruction(phi)
	for _, arm := range []selectPath{taken, fall} {
		if arm.block != ir.NoBlock {
			f.RemoveBlock(arm.block)
		}
	}
	if !slices.Contains(a.Successors, join) {
		f.AddEdge(a.ID, join)
	}
	assign := ir.Assign(ir.Ref(phi.Left), value)
	assign.Meta = cj.Meta
	a.ReplaceLast(assign)
	return true
}

// armValue finds the value an arm of a's branch contributes to phi.
func armValue(f *ir.Function, a, arm, join ir.BlockID, phi *ir.Phi) (selectPath, bool) {
	if arm == join {
		v, ok := phi.Operand(a)
		if !ok {
			return selectPath{}, false
		}
		return selectPath{block: ir.NoBlock, value: ir.Ref(v)}, true
	}
	b := f.Block(arm)
	if len(b.Predecessors) != 1 || b.Predecessors[0] != a {
		return selectPath{}, false
	}
	v, ok := phi.Operand(arm)
	if !ok {
		return selectPath{}, false
	}
	insts := b.Instructions
	if j, isJump := b.Last().(*ir.Jump); isJump && j.Dest == join {
		insts = insts[:len(insts)-1]
	}
	if len(insts) != 1 {
		return selectPath{}, false
	}
	as, ok := insts[0].(*ir.Assignment)
	if !ok || !as.IsSingleAssignment() || as.Left[0].HasIndex() || as.Left[0].Identifier != v || len(as.Locals) > 0 {
		return selectPath{}, false
	}
	return selectPath{block: arm, value: as.Right}, true
}

func singleSuccessor(f *ir.Function, id ir.BlockID) ir.BlockID {
	b := f.Block(id)
	if b == nil || len(b.Successors) != 1 {
		return ir.NoBlock
	}
	return b.Successors[0]
}

func boolConstant(e ir.Expression) (bool, bool) {
	c, ok := e.(*ir.Constant)
	if !ok || c.Kind != ir.ConstBool {
		return false, false
	}
	return c.Bool, true
}

func sameRef(a, b ir.Expression) bool {
	ra, ok := a.(*ir.IdentifierReference)
	if !ok || ra.HasIndex() {
		return false
	}
	rb, ok := b.(*ir.IdentifierReference)
	return ok && !rb.HasIndex() && ra.Identifier == rb.Identifier
}

func isNotOf(cond, v ir.Expression) bool {
	u, ok := cond.(*ir.UnaryOp)
	return ok && u.Op == ir.OpNot && sameRef(u.Expr, v)
}
