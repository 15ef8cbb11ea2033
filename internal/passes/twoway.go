package passes

import (
	"luadec/internal/analysis"
	"luadec/internal/ir"
)

// DetectTwoWayConditionals turns the remaining conditional jumps into if
// statements. The follow of each conditional is its immediate
// post-dominator in the structural graph, where structured loops and
// conditionals lead straight to their follow and break, continue and return
// end a path.
type DetectTwoWayConditionals struct{}

func (DetectTwoWayConditionals) Name() string { return "detect-two-way-conditionals" }
func (DetectTwoWayConditionals) Description() string {
	return "structure conditional jumps into if/else statements"
}
func (DetectTwoWayConditionals) Mutates() Mutation { return MutatesInstructions }

// postTestLatches returns the latch blocks of repeat loops.
func postTestLatches(f *ir.Function) map[ir.BlockID]bool {
	latches := make(map[ir.BlockID]bool)
	for _, b := range f.Blocks() {
		if w, ok := b.Last().(*ir.While); ok && w.IsPostTested {
			latches[w.Latch] = true
		}
	}
	return latches
}

// structuralSuccessors returns the successor function of the structural
// graph of f.
func structuralSuccessors(f *ir.Function) func(ir.BlockID) []ir.BlockID {
	latches := postTestLatches(f)
	follow := func(id ir.BlockID) []ir.BlockID {
		if id == ir.NoBlock {
			return nil
		}
		return []ir.BlockID{id}
	}
	return func(id ir.BlockID) []ir.BlockID {
		b := f.Block(id)
		if latches[id] {
			return nil
		}
		switch x := b.Last().(type) {
		case *ir.Break, *ir.Continue, *ir.Return:
			return nil
		case *ir.IfStatement:
			return follow(x.Follow)
		case *ir.While:
			return follow(x.Follow)
		case *ir.NumericFor:
			return follow(x.Follow)
		case *ir.GenericFor:
			return follow(x.Follow)
		}
		return b.Successors
	}
}

func (DetectTwoWayConditionals) Run(ctx *Context, f *ir.Function) (bool, error) {
	ids := make([]ir.BlockID, 0, f.BlockCount())
	for _, b := range f.Blocks() {
		ids = append(ids, b.ID)
	}
	succ := structuralSuccessors(f)
	pd := analysis.ComputePostDominance(ids, succ)
	dom := ctx.Dominance()

	changed := false
	for _, b := range f.Blocks() {
		cj, ok := b.Last().(*ir.ConditionalJump)
		if !ok || len(b.Successors) != 2 {
			continue
		}
		taken, fall := b.Successors[0], b.Successors[1]
		follow := pd.ImmediatePostDominator(b.ID)
		if follow == analysis.Exit || follow == ir.NoBlock {
			follow = firstCommonBlock(dom, reachable(succ, taken), reachable(succ, fall))
		}
		if follow == ir.NoBlock {
			// Neither arm rejoins the other. An arm that only breaks,
			// continues or returns becomes the body and the other arm is
			// the code after the if; otherwise the taken side is.
			follow = taken
			if leavesAtOnce(f, taken) && !leavesAtOnce(f, fall) {
				follow = fall
			}
		}

		node := &ir.IfStatement{Meta: cj.Meta, Follow: follow}
		switch follow {
		case fall:
			node.Condition, node.True, node.False = cj.Condition, taken, ir.NoBlock
		case taken:
			node.Condition, node.True, node.False = ir.Not(cj.Condition), fall, ir.NoBlock
		default:
			node.Condition, node.True, node.False = ir.Not(cj.Condition), fall, taken
		}
		b.ReplaceLast(node)
		changed = true
	}
	return changed, nil
}

// leavesAtOnce reports whether the only statement of block id is a break,
// continue or return.
func leavesAtOnce(f *ir.Function, id ir.BlockID) bool {
	b := f.Block(id)
	if b.FirstNonPhi() != len(b.Instructions)-1 {
		return false
	}
	switch b.Last().(type) {
	case *ir.Break, *ir.Continue, *ir.Return:
		return true
	}
	return false
}

// reachable returns the blocks reachable from start in the graph of succ,
// start included.
func reachable(succ func(ir.BlockID) []ir.BlockID, start ir.BlockID) map[ir.BlockID]bool {
	seen := map[ir.BlockID]bool{start: true}
	work := []ir.BlockID{start}
	for len(work) > 0 {
		id := work[len(work)-1]
		work = work[:len(work)-1]
		for _, s := range succ(id) {
			if !seen[s] {
				seen[s] = true
				work = append(work, s)
			}
		}
	}
	return seen
}

// firstCommonBlock returns the block reachable from both arms that comes
// first in reverse post-order, or NoBlock.
func firstCommonBlock(dom *analysis.Dominance, a, b map[ir.BlockID]bool) ir.BlockID {
	best, bestIdx := ir.NoBlock, -1
	for id := range a {
		if !b[id] {
			continue
		}
		idx := dom.RPOIndex(id)
		if idx < 0 {
			continue
		}
		if bestIdx < 0 || idx < bestIdx {
			best, bestIdx = id, idx
		}
	}
	return best
}

// SimplifyIfElseFollowChain marks an if nested as the sole content of an
// else branch, sharing the outer follow, as an elseif.
type SimplifyIfElseFollowChain struct{}

func (SimplifyIfElseFollowChain) Name() string { return "simplify-if-else-follow-chain" }
func (SimplifyIfElseFollowChain) Description() string {
	return "collapse else { if ... } chains into elseif"
}
func (SimplifyIfElseFollowChain) Mutates() Mutation { return MutatesInstructions }

func (SimplifyIfElseFollowChain) Run(_ *Context, f *ir.Function) (bool, error) {
	changed := false
	for _, b := range f.Blocks() {
		outer, ok := b.Last().(*ir.IfStatement)
		if !ok || outer.False == ir.NoBlock {
			continue
		}
		fb := f.Block(outer.False)
		if len(fb.Predecessors) != 1 || fb.FirstNonPhi() != len(fb.Instructions)-1 {
			continue
		}
		inner, ok := fb.Last().(*ir.IfStatement)
		if !ok || inner.Follow != outer.Follow || inner.IsElseIf {
			continue
		}
		inner.IsElseIf = true
		changed = true
	}
	return changed, nil
}
