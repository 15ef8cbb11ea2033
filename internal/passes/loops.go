package passes

import (
	"slices"

	"luadec/internal/analysis"
	"luadec/internal/ir"
)

// DetectLoops classifies every natural loop and replaces its control
// transfers with a structured loop instruction. Numeric and generic for
// loops are recognized by their bookkeeping; other loops become
// post-tested, pre-tested or unconditional while loops.
type DetectLoops struct{}

func (DetectLoops) Name() string        { return "detect-loops" }
func (DetectLoops) Description() string { return "recover while, repeat and for loops from back edges" }
func (DetectLoops) Mutates() Mutation   { return MutatesCFG }

// naturalLoop is the set of blocks that reach a back edge to header without
// passing through header.
type naturalLoop struct {
	header  ir.BlockID
	blocks  map[ir.BlockID]bool
	latches []ir.BlockID
}

// findLoops returns the natural loops of f with outer loops first.
func findLoops(f *ir.Function, dom *analysis.Dominance) []*naturalLoop {
	byHeader := make(map[ir.BlockID]*naturalLoop)
	var loops []*naturalLoop
	for _, id := range dom.ReversePostOrder() {
		for _, s := range f.Block(id).Successors {
			if !dom.Dominates(s, id) {
				continue
			}
			l, ok := byHeader[s]
			if !ok {
				l = &naturalLoop{header: s, blocks: map[ir.BlockID]bool{s: true}}
				byHeader[s] = l
				loops = append(loops, l)
			}
			if !slices.Contains(l.latches, id) {
				l.latches = append(l.latches, id)
			}
		}
	}
	for _, l := range loops {
		work := slices.Clone(l.latches)
		for len(work) > 0 {
			id := work[len(work)-1]
			work = work[:len(work)-1]
			if l.blocks[id] {
				continue
			}
			l.blocks[id] = true
			for _, p := range f.Block(id).Predecessors {
				if dom.Reachable(p) {
					work = append(work, p)
				}
			}
		}
	}
	slices.SortStableFunc(loops, func(a, b *naturalLoop) int {
		return dom.RPOIndex(a.header) - dom.RPOIndex(b.header)
	})
	return loops
}

func (DetectLoops) Run(ctx *Context, f *ir.Function) (bool, error) {
	done := make(map[ir.BlockID]bool)
	changed := false
	for {
		gen := f.Generation()
		dom := ctx.Dominance()
		du := analysis.ComputeDefUse(f)
		relinked := false
		for _, l := range findLoops(f, dom) {
			if done[l.header] {
				continue
			}
			done[l.header] = true
			kind := ""
			switch {
			case numericFor(f, du, l):
				kind = "numeric for"
			case genericFor(f, du, l):
				kind = "generic for"
			case postTested(f, l):
				kind = "repeat"
			case preTested(f, l):
				kind = "while"
			default:
				infiniteLoop(f, dom, l)
				kind = "while true"
			}
			log.Debugf("function %d: loop at block %d is %s", f.ID, l.header, kind)
			changed = true
			// A new preheader changes dominance and the membership of the
			// loops still to come.
			if f.Generation() != gen {
				ctx.Invalidate(analysis.KindAll)
				relinked = true
				break
			}
			du = analysis.ComputeDefUse(f)
		}
		if !relinked {
			return changed, nil
		}
	}
}

// outsidePreds returns the predecessors of the loop header that lie
// outside the loop.
func outsidePreds(f *ir.Function, l *naturalLoop) []ir.BlockID {
	var out []ir.BlockID
	for _, p := range f.Block(l.header).Predecessors {
		if !l.blocks[p] {
			out = append(out, p)
		}
	}
	return out
}

// soleEntry returns the only outside predecessor of the header when it
// leads nowhere else.
func soleEntry(f *ir.Function, l *naturalLoop) (ir.BlockID, bool) {
	outside := outsidePreds(f, l)
	if len(outside) != 1 || len(f.Block(outside[0]).Successors) != 1 {
		return ir.NoBlock, false
	}
	return outside[0], true
}

// numericFor matches
//
//	header: i' = i + step; if i' forloop limit goto body
//	body:   v = i'
//
// where i is a header phi fed by the preparation block.
func numericFor(f *ir.Function, du *analysis.DefUse, l *naturalLoop) bool {
	h := f.Block(l.header)
	cj, ok := h.Last().(*ir.ConditionalJump)
	if !ok || len(h.Successors) != 2 {
		return false
	}
	cmp, ok := cj.Condition.(*ir.BinOp)
	if !ok || cmp.Op != ir.OpLoopCompare {
		return false
	}
	body, exit := h.Successors[0], h.Successors[1]
	if !l.blocks[body] || l.blocks[exit] || body == h.ID {
		return false
	}
	n := len(h.Instructions)
	if n < 2 || h.FirstNonPhi() != n-2 {
		return false
	}
	inc, ok := h.Instructions[n-2].(*ir.Assignment)
	if !ok || !inc.IsSingleAssignment() || inc.Left[0].HasIndex() {
		return false
	}
	counter := inc.Left[0].Identifier
	add, ok := inc.Right.(*ir.BinOp)
	if !ok || add.Op != ir.OpAdd || !isRefTo(cmp.Left, counter) {
		return false
	}
	prev, ok := add.Left.(*ir.IdentifierReference)
	if !ok || prev.HasIndex() {
		return false
	}
	phi := phiDefining(h, prev.Identifier)
	if phi == nil || du.UseCount(phi.Left) != 1 {
		return false
	}
	pre, ok := soleEntry(f, l)
	if !ok {
		return false
	}
	start, ok := phi.Operand(pre)
	if !ok {
		return false
	}
	step, limit := add.Right, cmp.Right

	var initial ir.Expression = &ir.BinOp{Left: ir.Ref(start), Right: ir.CloneExpression(step), Op: ir.OpAdd}
	var initMeta ir.Meta
	if def, ok := definitionIn(f.Block(pre), start); ok && du.UseCount(start) == 1 {
		initMeta = def.Meta
		f.Block(pre).RemoveInstruction(def)
		if sub, ok := def.Right.(*ir.BinOp); ok && sub.Op == ir.OpSub {
			initial = sub.Left
		} else {
			initial = &ir.BinOp{Left: def.Right, Right: ir.CloneExpression(step), Op: ir.OpAdd}
		}
	}
	return finishNumericFor(f, l, h, pre, cj, inc, phi, counter, initial, limit, step, initMeta)
}

func finishNumericFor(f *ir.Function, l *naturalLoop, h *ir.BasicBlock, pre ir.BlockID,
	cj *ir.ConditionalJump, inc *ir.Assignment, phi *ir.Phi, counter ir.Identifier,
	initial, limit, step ir.Expression, initMeta ir.Meta) bool {
	body, exit := h.Successors[0], h.Successors[1]
	v := counter
	bb := f.Block(body)
	if i := bb.FirstNonPhi(); i < len(bb.Instructions) {
		if a, ok := bb.Instructions[i].(*ir.Assignment); ok && a.IsSingleAssignment() &&
			!a.Left[0].HasIndex() && isRefTo(a.Right, counter) {
			v = a.Left[0].Identifier
			bb.Remove(i)
		}
	}
	h.RemoveInstruction(cj)
	h.RemoveInstruction(inc)
	h.RemoveInstruction(phi)
	if v != counter {
		renameEverywhere(f, counter, v)
	}

	init := ir.Assign(ir.Ref(v), initial)
	init.Meta = initMeta
	node := &ir.NumericFor{
		Meta:      cj.Meta,
		Initial:   init,
		Limit:     limit,
		Increment: step,
		Body:      body,
		Follow:    exit,
		Header:    l.header,
	}
	placeLoop(f, pre, l.header, node)
	return true
}

// genericFor matches
//
//	header: a, b = f(s, ctl); if a ~= nil goto body
//	body:   ctl' = a
//
// where f, s and the first control value are set up by the preparation
// block.
func genericFor(f *ir.Function, du *analysis.DefUse, l *naturalLoop) bool {
	h := f.Block(l.header)
	cj, ok := h.Last().(*ir.ConditionalJump)
	if !ok || len(h.Successors) != 2 {
		return false
	}
	body, exit := h.Successors[0], h.Successors[1]
	if !l.blocks[body] || l.blocks[exit] || body == h.ID {
		return false
	}
	cmp, ok := cj.Condition.(*ir.BinOp)
	if !ok || cmp.Op != ir.OpNotEqual {
		return false
	}
	if c, ok := cmp.Right.(*ir.Constant); !ok || c.Kind != ir.ConstNil {
		return false
	}
	n := len(h.Instructions)
	if n < 2 || h.FirstNonPhi() != n-2 {
		return false
	}
	call, ok := h.Instructions[n-2].(*ir.Assignment)
	if !ok || len(call.Left) == 0 || !isRefTo(cmp.Left, call.Left[0].Identifier) {
		return false
	}
	for _, left := range call.Left {
		if left.HasIndex() {
			return false
		}
	}
	fc, ok := call.Right.(*ir.FunctionCall)
	if !ok || len(fc.Args) != 2 {
		return false
	}
	iter, ok1 := plainRef(fc.Function)
	state, ok2 := plainRef(fc.Args[0])
	ctl, ok3 := plainRef(fc.Args[1])
	if !ok1 || !ok2 || !ok3 {
		return false
	}
	phi := phiDefining(h, ctl)
	if phi == nil || du.UseCount(ctl) != 1 {
		return false
	}
	pre, ok := soleEntry(f, l)
	if !ok {
		return false
	}
	ctl0, ok := phi.Operand(pre)
	if !ok {
		return false
	}

	values := []ir.Expression{ir.Ref(iter), ir.Ref(state), ir.Ref(ctl0)}
	pb := f.Block(pre)
	for _, inst := range pb.Instructions {
		a, ok := inst.(*ir.Assignment)
		if !ok || len(a.Left) != 3 || a.Right == nil || len(a.Locals) > 0 {
			continue
		}
		if isRefTo(a.Left[0], iter) && isRefTo(a.Left[1], state) && isRefTo(a.Left[2], ctl0) &&
			du.UseCount(iter) == 1 && du.UseCount(state) == 1 && du.UseCount(ctl0) == 1 {
			values = []ir.Expression{a.Right}
			pb.RemoveInstruction(a)
			break
		}
	}

	first := call.Left[0].Identifier
	bb := f.Block(body)
	if i := bb.FirstNonPhi(); i < len(bb.Instructions) {
		if a, ok := bb.Instructions[i].(*ir.Assignment); ok && a.IsSingleAssignment() &&
			!a.Left[0].HasIndex() && a.Left[0].Identifier.Base() == ctl.Base() &&
			isRefTo(a.Right, first) && du.UseCount(a.Left[0].Identifier) <= 1 {
			bb.Remove(i)
		}
	}
	h.RemoveInstruction(cj)
	h.RemoveInstruction(call)
	h.RemoveInstruction(phi)

	node := &ir.GenericFor{
		Meta:   cj.Meta,
		Vars:   call.Left,
		Values: values,
		Body:   body,
		Follow: exit,
		Header: l.header,
	}
	placeLoop(f, pre, l.header, node)
	return true
}

// postTested matches a loop whose only latch ends in a conditional jump
// back to the header or out of the loop.
func postTested(f *ir.Function, l *naturalLoop) bool {
	if len(l.latches) != 1 {
		return false
	}
	lb := f.Block(l.latches[0])
	cj, ok := lb.Last().(*ir.ConditionalJump)
	if !ok || len(lb.Successors) != 2 {
		return false
	}
	t, e := lb.Successors[0], lb.Successors[1]
	var until ir.Expression
	var follow ir.BlockID
	switch {
	case t == l.header && !l.blocks[e]:
		until, follow = ir.Not(cj.Condition), e
	case e == l.header && !l.blocks[t]:
		until, follow = cj.Condition, t
	default:
		return false
	}
	lb.RemoveInstruction(cj)
	pre := preheader(f, l)
	node := &ir.While{
		Meta:         cj.Meta,
		Condition:    until,
		Body:         l.header,
		Follow:       follow,
		Header:       l.header,
		Latch:        lb.ID,
		IsPostTested: true,
	}
	placeLoop(f, pre, l.header, node)
	return true
}

// preTested matches a header holding nothing but the loop test.
func preTested(f *ir.Function, l *naturalLoop) bool {
	h := f.Block(l.header)
	cj, ok := h.Last().(*ir.ConditionalJump)
	if !ok || len(h.Successors) != 2 || h.FirstNonPhi() != len(h.Instructions)-1 {
		return false
	}
	t, e := h.Successors[0], h.Successors[1]
	node := &ir.While{Meta: cj.Meta, Header: h.ID, Latch: ir.NoBlock}
	switch {
	case l.blocks[t] && !l.blocks[e] && t != h.ID:
		node.Condition, node.Body, node.Follow = cj.Condition, t, e
	case l.blocks[e] && !l.blocks[t] && e != h.ID:
		node.Condition, node.Body, node.Follow = ir.Not(cj.Condition), e, t
	default:
		return false
	}
	h.ReplaceLast(node)
	return true
}

// infiniteLoop structures any remaining loop as 'while true'. The follow is
// the earliest exit target that does not simply end the function.
func infiniteLoop(f *ir.Function, dom *analysis.Dominance, l *naturalLoop) {
	follow, best := ir.NoBlock, -1
	for _, b := range f.Blocks() {
		if !l.blocks[b.ID] {
			continue
		}
		for _, s := range b.Successors {
			if l.blocks[s] || !dom.Reachable(s) {
				continue
			}
			if sb := f.Block(s); len(sb.Successors) == 0 && len(sb.Predecessors) == 1 {
				continue
			}
			if idx := dom.RPOIndex(s); best < 0 || idx < best {
				follow, best = s, idx
			}
		}
	}
	var meta ir.Meta
	if first := f.Block(l.header).Instructions; len(first) > 0 {
		meta = *first[0].Info()
	}
	pre := preheader(f, l)
	node := &ir.While{
		Meta:      meta,
		Condition: ir.Bool(true),
		Body:      l.header,
		Follow:    follow,
		Header:    l.header,
		Latch:     ir.NoBlock,
	}
	placeLoop(f, pre, l.header, node)
}

// preheader returns a block that runs once before the loop is entered,
// inserting one when the header has several outside predecessors.
func preheader(f *ir.Function, l *naturalLoop) ir.BlockID {
	if p, ok := soleEntry(f, l); ok {
		if _, _, _, structured := loopNode(f.Block(p)); !structured {
			return p
		}
	}
	return insertPreheader(f, l.header, outsidePreds(f, l))
}

// insertPreheader routes the edges from outside into h through a new
// block. Phi operands from several outside predecessors are merged by a
// phi in the new block.
func insertPreheader(f *ir.Function, h ir.BlockID, outside []ir.BlockID) ir.BlockID {
	x := f.NewBlockBefore(h)
	hb := f.Block(h)
	for _, phi := range hb.Phis() {
		var in, keep []ir.PhiOperand
		for _, op := range phi.Operands {
			if slices.Contains(outside, op.Pred) {
				in = append(in, op)
			} else {
				keep = append(keep, op)
			}
		}
		if len(in) == 1 {
			keep = append(keep, ir.PhiOperand{Pred: x.ID, Value: in[0].Value})
		} else if len(in) > 1 {
			base := phi.Left.Base()
			v := base.WithVersion(f.MaxVersion(base) + 1)
			x.Instructions = append(x.Instructions, &ir.Phi{Meta: phi.Meta, Left: v, Operands: in})
			keep = append(keep, ir.PhiOperand{Pred: x.ID, Value: v})
		}
		phi.Operands = keep
	}
	for _, p := range outside {
		pb := f.Block(p)
		for i, s := range pb.Successors {
			if s == h {
				pb.Successors[i] = x.ID
			}
		}
		switch last := pb.Last().(type) {
		case *ir.Jump:
			if last.Dest == h {
				last.Dest = x.ID
			}
		case *ir.ConditionalJump:
			if last.Dest == h {
				last.Dest = x.ID
			}
		}
		retargetFollow(f, p, h, x.ID)
		x.Predecessors = append(x.Predecessors, p)
	}
	hb.Predecessors = slices.DeleteFunc(hb.Predecessors, func(p ir.BlockID) bool {
		return slices.Contains(outside, p)
	})
	f.AddEdge(x.ID, h)
	if f.Entry == h {
		f.Entry = x.ID
	}
	f.InvalidateLayout()
	return x.ID
}

// placeLoop puts node at the end of pre in place of its jump to header.
func placeLoop(f *ir.Function, pre, header ir.BlockID, node ir.Instruction) {
	pb := f.Block(pre)
	if j, ok := pb.Last().(*ir.Jump); ok && j.Dest == header {
		pb.ReplaceLast(node)
		return
	}
	pb.Instructions = append(pb.Instructions, node)
}

// loopExitSource returns the block whose edge leaves the loop described by
// node, which is placed in block at.
func loopExitSource(node ir.Instruction, at ir.BlockID) ir.BlockID {
	switch x := node.(type) {
	case *ir.While:
		switch {
		case x.IsPostTested:
			return x.Latch
		case x.Header == at:
			return at
		}
		return ir.NoBlock
	case *ir.NumericFor:
		return x.Header
	case *ir.GenericFor:
		return x.Header
	}
	return ir.NoBlock
}

// retargetFollow moves the follow of every loop that leaves through the
// edge from->oldTo over to newTo.
func retargetFollow(f *ir.Function, from, oldTo, newTo ir.BlockID) {
	for _, b := range f.Blocks() {
		node := b.Last()
		if node == nil || loopExitSource(node, b.ID) != from {
			continue
		}
		switch x := node.(type) {
		case *ir.While:
			if x.Follow == oldTo {
				x.Follow = newTo
			}
		case *ir.NumericFor:
			if x.Follow == oldTo {
				x.Follow = newTo
			}
		case *ir.GenericFor:
			if x.Follow == oldTo {
				x.Follow = newTo
			}
		}
	}
}

// loopNode returns the structured loop instruction ending b, if any.
func loopNode(b *ir.BasicBlock) (header, follow, latch ir.BlockID, ok bool) {
	switch x := b.Last().(type) {
	case *ir.While:
		return x.Header, x.Follow, x.Latch, true
	case *ir.NumericFor:
		return x.Header, x.Follow, ir.NoBlock, true
	case *ir.GenericFor:
		return x.Header, x.Follow, ir.NoBlock, true
	}
	return ir.NoBlock, ir.NoBlock, ir.NoBlock, false
}

func isRefTo(e ir.Expression, id ir.Identifier) bool {
	r, ok := e.(*ir.IdentifierReference)
	return ok && !r.HasIndex() && r.Identifier == id
}

func plainRef(e ir.Expression) (ir.Identifier, bool) {
	r, ok := e.(*ir.IdentifierReference)
	if !ok || r.HasIndex() {
		return ir.Identifier{}, false
	}
	return r.Identifier, true
}

func phiDefining(b *ir.BasicBlock, id ir.Identifier) *ir.Phi {
	for _, phi := range b.Phis() {
		if phi.Left == id {
			return phi
		}
	}
	return nil
}

// definitionIn finds the single-target assignment of id in b.
func definitionIn(b *ir.BasicBlock, id ir.Identifier) (*ir.Assignment, bool) {
	for _, inst := range b.Instructions {
		a, ok := inst.(*ir.Assignment)
		if ok && a.IsSingleAssignment() && isRefTo(a.Left[0], id) && a.Right != nil && len(a.Locals) == 0 {
			return a, true
		}
	}
	return nil, false
}
