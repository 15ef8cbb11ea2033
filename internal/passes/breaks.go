package passes

import (
	"luadec/internal/analysis"
	"luadec/internal/ir"
)

// DetectBreakContinue gives every early exit from a loop and every jump
// back to a loop header its own block holding a Break or Continue. The new
// block keeps its edge to the original target so phi operands stay valid.
type DetectBreakContinue struct{}

func (DetectBreakContinue) Name() string { return "detect-break-continue" }
func (DetectBreakContinue) Description() string {
	return "turn loop exits into break and back edges into continue"
}
func (DetectBreakContinue) Mutates() Mutation { return MutatesCFG }

// loopRegion is a structured loop together with the blocks its body spans.
type loopRegion struct {
	header, follow, latch ir.BlockID
	// test is the block whose edges are the loop's own condition.
	test   ir.BlockID
	blocks map[ir.BlockID]bool
}

// structuredLoops collects the loop instructions placed by DetectLoops.
func structuredLoops(f *ir.Function, dom *analysis.Dominance) []*loopRegion {
	var loops []*loopRegion
	for _, b := range f.Blocks() {
		header, follow, latch, ok := loopNode(b)
		if !ok {
			continue
		}
		loops = append(loops, &loopRegion{
			header: header,
			follow: follow,
			latch:  latch,
			test:   loopExitSource(b.Last(), b.ID),
			blocks: loopBlocks(f, dom, header, follow),
		})
	}
	return loops
}

// loopBlocks returns the blocks the header dominates that are reachable
// from it without passing through the follow.
func loopBlocks(f *ir.Function, dom *analysis.Dominance, header, follow ir.BlockID) map[ir.BlockID]bool {
	seen := map[ir.BlockID]bool{header: true}
	work := []ir.BlockID{header}
	for len(work) > 0 {
		id := work[len(work)-1]
		work = work[:len(work)-1]
		for _, s := range f.Block(id).Successors {
			if s == follow || seen[s] || !dom.Dominates(header, s) {
				continue
			}
			seen[s] = true
			work = append(work, s)
		}
	}
	return seen
}

// innermost returns the smallest loop containing id.
func innermost(loops []*loopRegion, id ir.BlockID) *loopRegion {
	var best *loopRegion
	for _, l := range loops {
		if l.blocks[id] && (best == nil || len(l.blocks) < len(best.blocks)) {
			best = l
		}
	}
	return best
}

func (DetectBreakContinue) Run(ctx *Context, f *ir.Function) (bool, error) {
	loops := structuredLoops(f, ctx.Dominance())
	if len(loops) == 0 {
		return false, nil
	}

	type exit struct {
		from, to ir.BlockID
		isBreak  bool
	}
	var exits []exit
	for _, b := range f.Blocks() {
		l := innermost(loops, b.ID)
		if l == nil || b.ID == l.test || b.ID == l.latch {
			continue
		}
		for _, s := range b.Successors {
			switch {
			case s == l.follow && s != ir.NoBlock:
				exits = append(exits, exit{from: b.ID, to: s, isBreak: true})
			case s == l.header:
				exits = append(exits, exit{from: b.ID, to: s})
			}
		}
	}

	for _, e := range exits {
		var meta ir.Meta
		if last := f.Block(e.from).Last(); last != nil {
			meta = *last.Info()
		}
		k := f.SplitEdge(e.from, e.to)
		if e.isBreak {
			k.Instructions = []ir.Instruction{&ir.Break{Meta: meta}}
			retargetFollow(f, e.from, e.to, k.ID)
		} else {
			k.Instructions = []ir.Instruction{&ir.Continue{Meta: meta}}
		}
		if j, ok := f.Block(e.from).Last().(*ir.Jump); ok && j.Dest == k.ID {
			// The jump is now implied by the break or continue.
			f.Block(e.from).Remove(len(f.Block(e.from).Instructions) - 1)
		}
	}
	return len(exits) > 0, nil
}
