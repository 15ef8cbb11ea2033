package passes

import (
	"fmt"

	"luadec/internal/analysis"
	"luadec/internal/errors"
	"luadec/internal/ir"
)

// BuildCFG partitions the flat instruction list into basic blocks.
type BuildCFG struct{}

func (BuildCFG) Name() string        { return "build-cfg" }
func (BuildCFG) Description() string { return "partition instructions into basic blocks and edges" }
func (BuildCFG) Mutates() Mutation   { return MutatesCFG }

func (BuildCFG) Run(ctx *Context, f *ir.Function) (bool, error) {
	if f.BlockCount() > 0 {
		return false, nil
	}
	insts := f.Instructions
	if len(insts) == 0 {
		insts = []ir.Instruction{&ir.Return{}}
	}

	referenced := make(map[ir.LabelID]bool)
	for _, inst := range insts {
		switch x := inst.(type) {
		case *ir.Jump:
			referenced[x.Target] = true
		case *ir.ConditionalJump:
			referenced[x.Target] = true
		case *ir.Placeholder:
			return false, errors.New(errors.ErrorUnimplementedInstruction,
				"opcode %s has no structured translation", x.Opcode).
				InFunction(f.ID).InPass(ctx.pass).
				AtLine(x.Line, 1).
				WithNote("lifted at index %d", x.Begin).
				Build()
		}
	}

	// Split at referenced labels and after every control transfer.
	var spans [][]ir.Instruction
	var labelsOf [][]ir.LabelID
	var cur []ir.Instruction
	var curLabels []ir.LabelID
	flush := func() {
		if len(cur) == 0 && len(curLabels) == 0 {
			return
		}
		spans = append(spans, cur)
		labelsOf = append(labelsOf, curLabels)
		cur, curLabels = nil, nil
	}
	for _, inst := range insts {
		if l, ok := inst.(*ir.Label); ok {
			if !referenced[l.Label] {
				continue
			}
			if len(cur) > 0 {
				flush()
			}
			curLabels = append(curLabels, l.Label)
			continue
		}
		cur = append(cur, inst)
		switch inst.(type) {
		case *ir.Jump, *ir.ConditionalJump, *ir.Return:
			flush()
		}
	}
	flush()

	blocks := make([]*ir.BasicBlock, len(spans))
	labelBlock := make(map[ir.LabelID]ir.BlockID)
	for i, span := range spans {
		b := f.NewBlock()
		b.Instructions = span
		blocks[i] = b
		for _, l := range labelsOf[i] {
			labelBlock[l] = b.ID
		}
	}

	resolve := func(b *ir.BasicBlock, l ir.LabelID) (ir.BlockID, error) {
		dest, ok := labelBlock[l]
		if !ok {
			return ir.NoBlock, ctx.Fail(errors.ErrorMalformedControlFlow, b.ID, "jump to label %d that names no instruction", l)
		}
		return dest, nil
	}

	for i, b := range blocks {
		next := ir.NoBlock
		if i+1 < len(blocks) {
			next = blocks[i+1].ID
		}
		switch last := b.Last().(type) {
		case *ir.Jump:
			dest, err := resolve(b, last.Target)
			if err != nil {
				return false, err
			}
			last.Dest = dest
			f.AddEdge(b.ID, dest)
		case *ir.ConditionalJump:
			dest, err := resolve(b, last.Target)
			if err != nil {
				return false, err
			}
			if next == ir.NoBlock {
				return false, ctx.Fail(errors.ErrorMalformedControlFlow, b.ID, "conditional jump falls off the end of the function")
			}
			if dest == next && last.OnTaken == nil {
				b.Remove(len(b.Instructions) - 1)
				f.AddEdge(b.ID, next)
				continue
			}
			last.Dest = dest
			f.AddEdge(b.ID, dest)
			f.AddEdge(b.ID, next)
		case *ir.Return:
		default:
			if next == ir.NoBlock {
				b.Instructions = append(b.Instructions, &ir.Return{Meta: ir.Span(lastIndex(b))})
				continue
			}
			f.AddEdge(b.ID, next)
		}
	}

	for _, b := range blocks {
		if cj, ok := b.Last().(*ir.ConditionalJump); ok && cj.OnTaken != nil {
			placeOnTaken(f, b, cj)
		}
	}

	removeUnreachable(f)
	if entry := f.Block(f.Entry); len(entry.Predecessors) > 0 {
		// Loops back to the first instruction need an entry block of their
		// own so that parameters keep a single definition site.
		pre := f.NewBlockBefore(entry.ID)
		f.AddEdge(pre.ID, entry.ID)
		f.Entry = pre.ID
	}
	f.Instructions = nil
	f.LabelTargets = make(map[ir.LabelID]int)
	return true, nil
}

// placeOnTaken moves the taken-branch assignment of cj to the head of its
// target, splitting the edge when the target has other predecessors.
func placeOnTaken(f *ir.Function, b *ir.BasicBlock, cj *ir.ConditionalJump) {
	pta := cj.OnTaken
	cj.OnTaken = nil
	target := f.Block(cj.Dest)
	if len(target.Predecessors) == 1 {
		target.Insert(target.FirstNonPhi(), pta)
		return
	}
	split := f.NewBlockAfter(b.ID)
	split.Instructions = []ir.Instruction{pta, &ir.Jump{Meta: pta.Meta, Dest: target.ID}}
	f.RetargetEdge(b.ID, target.ID, split.ID)
	f.AddEdge(split.ID, target.ID)
	cj.Dest = split.ID
}

func lastIndex(b *ir.BasicBlock) int {
	if last := b.Last(); last != nil {
		return last.Info().End
	}
	return 0
}

// removeUnreachable drops blocks the entry cannot reach.
func removeUnreachable(f *ir.Function) bool {
	reach := make(map[ir.BlockID]bool)
	for _, id := range analysis.ReversePostOrder(f) {
		reach[id] = true
	}
	removed := false
	for _, b := range f.Blocks() {
		if !reach[b.ID] {
			log.Debugf("function %d: removing unreachable block %d", f.ID, b.ID)
			f.RemoveBlock(b.ID)
			removed = true
		}
	}
	return removed
}

// ValidateCFG checks that edges match terminators and that predecessor and
// successor lists mirror each other.
func ValidateCFG(f *ir.Function) error {
	structured := loopTests(f)
	for _, b := range f.Blocks() {
		for _, s := range b.Successors {
			sb := f.Block(s)
			if sb == nil {
				return fmt.Errorf("block %d: successor %d was removed", b.ID, s)
			}
			if count(sb.Predecessors, b.ID) != count(b.Successors, s) {
				return fmt.Errorf("block %d: edge to %d missing from predecessor list", b.ID, s)
			}
		}
		for _, p := range b.Predecessors {
			if f.Block(p) == nil {
				return fmt.Errorf("block %d: predecessor %d was removed", b.ID, p)
			}
		}
		switch last := b.Last().(type) {
		case *ir.ConditionalJump:
			if len(b.Successors) != 2 || b.Successors[0] != last.Dest {
				return fmt.Errorf("block %d: conditional jump needs taken and fallthrough successors, has %v", b.ID, b.Successors)
			}
		case *ir.Jump:
			if len(b.Successors) != 1 || b.Successors[0] != last.Dest {
				return fmt.Errorf("block %d: jump needs exactly one successor, has %v", b.ID, b.Successors)
			}
		case *ir.Return:
			if len(b.Successors) != 0 {
				return fmt.Errorf("block %d: return block has successors %v", b.ID, b.Successors)
			}
		case *ir.IfStatement, *ir.While, *ir.NumericFor, *ir.GenericFor, *ir.Break, *ir.Continue:
		default:
			if len(b.Successors) > 1 && !structured[b.ID] {
				return fmt.Errorf("block %d: fallthrough block has %d successors", b.ID, len(b.Successors))
			}
		}
	}
	return nil
}

// loopTests returns the blocks whose two-way branch is owned by a loop
// instruction: for loop headers and repeat latches.
func loopTests(f *ir.Function) map[ir.BlockID]bool {
	out := make(map[ir.BlockID]bool)
	for _, b := range f.Blocks() {
		switch x := b.Last().(type) {
		case *ir.While:
			if x.IsPostTested {
				out[x.Latch] = true
			}
		case *ir.NumericFor:
			out[x.Header] = true
		case *ir.GenericFor:
			out[x.Header] = true
		}
	}
	return out
}

func count(ids []ir.BlockID, id ir.BlockID) int {
	n := 0
	for _, x := range ids {
		if x == id {
			n++
		}
	}
	return n
}

// ValidateGraph runs ValidateCFG as a pipeline step.
type ValidateGraph struct{}

func (ValidateGraph) Name() string        { return "validate-cfg" }
func (ValidateGraph) Description() string { return "check edges against block terminators" }
func (ValidateGraph) Mutates() Mutation   { return ReadOnly }

func (ValidateGraph) Run(ctx *Context, f *ir.Function) (bool, error) {
	if err := ValidateCFG(f); err != nil {
		return false, ctx.Fail(errors.ErrorMalformedControlFlow, ir.NoBlock, "%v", err)
	}
	return false, nil
}
