package passes

import (
	"luadec/internal/analysis"
	"luadec/internal/ir"
)

// ExpressionPropagation folds single-use temporaries into the instruction
// that reads them, building nested expressions out of register traffic.
type ExpressionPropagation struct{}

func (ExpressionPropagation) Name() string { return "expression-propagation" }
func (ExpressionPropagation) Description() string {
	return "substitute temporary definitions into their uses"
}
func (ExpressionPropagation) Mutates() Mutation { return MutatesInstructions }

func (ExpressionPropagation) Run(_ *Context, f *ir.Function) (bool, error) {
	changed := false
	for {
		progress := propagate(f)
		if foldMethodReceivers(f) {
			progress = true
		}
		if !progress {
			return changed, nil
		}
		changed = true
	}
}

func propagate(f *ir.Function) bool {
	changed := false
	du := analysis.ComputeDefUse(f)
	for _, b := range f.Blocks() {
		for i := 0; i < len(b.Instructions); i++ {
			if substituteInto(f, du, b, i) {
				changed = true
				du = analysis.ComputeDefUse(f)
				i = -1
			}
		}
	}
	return changed
}

// substituteInto folds at most one definition into b.Instructions[i].
func substituteInto(f *ir.Function, du *analysis.DefUse, b *ir.BasicBlock, i int) bool {
	inst := b.Instructions[i]
	if _, isPhi := inst.(*ir.Phi); isPhi {
		return false
	}
	seen := make(map[ir.Identifier]bool)
	for _, use := range ir.Uses(inst) {
		if !use.IsRegister() || !use.IsVersioned() || seen[use] {
			continue
		}
		seen[use] = true
		if f.ClosureBound[use] {
			continue
		}
		site, ok := du.Definition(use)
		if !ok {
			continue
		}
		def, ok := site.Instruction.(*ir.Assignment)
		if !ok || !def.IsSingleAssignment() || def.Left[0].HasIndex() || def.Right == nil || len(def.Locals) > 0 {
			continue
		}
		if !def.PropagateAlways {
			if def.IsLocalDeclaration || du.UseCount(use) != 1 || site.Block != b.ID {
				continue
			}
			if !reachesUnchanged(b, def, i, inst) {
				continue
			}
			if startedBefore(inst, def) || !keepsOrder(inst, use, def) {
				continue
			}
		}
		remaining := du.UseCount(use) - ir.CountUses(inst, use)
		if !ir.ReplaceUses(inst, use, def.Right) {
			continue
		}
		if remaining == 0 {
			f.Block(site.Block).RemoveInstruction(def)
		}
		return true
	}
	return false
}

// reachesUnchanged reports whether def, found earlier in b, may move down
// to the instruction at index at. It may when def immediately precedes the
// user, when the user fills a table constructor, or when def computes a
// pure value and only pure assignments lie between.
func reachesUnchanged(b *ir.BasicBlock, def *ir.Assignment, at int, user ir.Instruction) bool {
	j := -1
	for k := at - 1; k >= 0; k-- {
		if b.Instructions[k] == ir.Instruction(def) {
			j = k
			break
		}
	}
	if j < 0 {
		return false
	}
	if j == at-1 {
		return true
	}
	if a, ok := user.(*ir.Assignment); ok && a.IsListAssignment {
		return true
	}
	if ir.ExpressionEffect(def.Right) != ir.EffectPure {
		return false
	}
	for k := j + 1; k < at; k++ {
		a, ok := b.Instructions[k].(*ir.Assignment)
		if !ok || ir.InstructionEffect(a) != ir.EffectPure {
			return false
		}
	}
	return true
}

// startedBefore reports whether user is a call whose callee was loaded
// after def, meaning def belongs to code evaluated before the call began.
func startedBefore(user ir.Instruction, def *ir.Assignment) bool {
	var call *ir.FunctionCall
	switch x := user.(type) {
	case *ir.Assignment:
		call, _ = x.Right.(*ir.FunctionCall)
	case *ir.Return:
		if len(x.Values) == 1 {
			call, _ = x.Values[0].(*ir.FunctionCall)
		}
	}
	return call != nil && def.PrePropagationIndex() < call.FunctionDefIndex
}

// keepsOrder reports whether evaluating def.Right at its use in user
// keeps it in order with whatever user evaluates ahead of that use. A call
// may not move past reads or other calls, and a read may not move past a
// call.
func keepsOrder(user ir.Instruction, use ir.Identifier, def *ir.Assignment) bool {
	before, found := ir.EffectBefore(user, use)
	if !found {
		return false
	}
	switch ir.ExpressionEffect(def.Right) {
	case ir.EffectCall:
		return before == ir.EffectPure
	case ir.EffectRead:
		return before != ir.EffectCall
	default:
		return true
	}
}

// foldMethodReceivers rewrites
//
//	r0 = someGlobal
//	r0 = r0.method(r0, ...)
//
// into someGlobal:method(...), where the temporary is read only by the call.
func foldMethodReceivers(f *ir.Function) bool {
	changed := false
	du := analysis.ComputeDefUse(f)
	for _, b := range f.Blocks() {
		for i := 1; i < len(b.Instructions); i++ {
			a, ok := b.Instructions[i].(*ir.Assignment)
			if !ok {
				continue
			}
			call, ok := a.Right.(*ir.FunctionCall)
			if !ok || len(call.Args) == 0 {
				continue
			}
			recv, ok := call.Args[0].(*ir.IdentifierReference)
			if !ok || recv.HasIndex() || !recv.Identifier.IsVersioned() {
				continue
			}
			id := recv.Identifier
			if f.ClosureBound[id] || du.UseCount(id) != 2 || ir.CountUses(a, id) != 2 {
				continue
			}
			prev, ok := b.Instructions[i-1].(*ir.Assignment)
			if !ok || !prev.IsSingleAssignment() || prev.Left[0].HasIndex() || prev.Left[0].Identifier != id || len(prev.Locals) > 0 {
				continue
			}
			switch prev.Right.(type) {
			case *ir.IdentifierReference, *ir.Constant:
			default:
				continue
			}
			if !ir.ReplaceUses(a, id, prev.Right) {
				continue
			}
			b.Remove(i - 1)
			i--
			changed = true
			du = analysis.ComputeDefUse(f)
		}
	}
	return changed
}
