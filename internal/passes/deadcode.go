package passes

import (
	"luadec/internal/analysis"
	"luadec/internal/ir"
)

// EliminateDeadAssignments removes definitions nothing reads. With PhiOnly
// set it only removes phi nodes.
type EliminateDeadAssignments struct {
	PhiOnly bool
}

func (p EliminateDeadAssignments) Name() string {
	if p.PhiOnly {
		return "eliminate-dead-phi"
	}
	return "eliminate-dead-assignments"
}

func (p EliminateDeadAssignments) Description() string {
	if p.PhiOnly {
		return "remove phi nodes whose value is never read"
	}
	return "remove unused side-effect free temporaries"
}

func (EliminateDeadAssignments) Mutates() Mutation { return MutatesInstructions }

func (p EliminateDeadAssignments) Run(_ *Context, f *ir.Function) (bool, error) {
	changed := removeDeadPhis(f)
	if p.PhiOnly {
		return changed, nil
	}
	for {
		du := analysis.ComputeDefUse(f)
		removed := false
		for _, b := range f.Blocks() {
			for i := len(b.Instructions) - 1; i >= 0; i-- {
				a, ok := b.Instructions[i].(*ir.Assignment)
				if !ok || !isDeadAssignment(f, du, a) {
					continue
				}
				log.Debugf("function %d: removing dead assignment %s", f.ID, ir.FormatInstruction(a))
				b.Remove(i)
				removed = true
			}
		}
		if !removed {
			return changed, nil
		}
		changed = true
	}
}

func isDeadAssignment(f *ir.Function, du *analysis.DefUse, a *ir.Assignment) bool {
	if len(a.Left) == 0 || a.Right == nil || len(a.Locals) > 0 || a.IsLocalDeclaration {
		return false
	}
	if _, ok := a.Right.(*ir.Closure); ok {
		return false
	}
	for _, l := range a.Left {
		id := l.Identifier
		if l.HasIndex() || !id.IsRegister() || !id.IsVersioned() {
			return false
		}
		if f.ClosureBound[id] || du.UseCount(id) > 0 {
			return false
		}
	}
	return ir.ExpressionEffect(a.Right) == ir.EffectPure
}

// removeDeadPhis deletes phi nodes whose value reaches no instruction
// other than phi nodes, including cycles of phis that only feed each other.
func removeDeadPhis(f *ir.Function) bool {
	phis := make(map[ir.Identifier]*ir.Phi)
	for _, b := range f.Blocks() {
		for _, phi := range b.Phis() {
			phis[phi.Left] = phi
		}
	}
	if len(phis) == 0 {
		return false
	}

	live := make(map[ir.Identifier]bool)
	var work []ir.Identifier
	mark := func(id ir.Identifier) {
		if _, isPhi := phis[id]; isPhi && !live[id] {
			live[id] = true
			work = append(work, id)
		}
	}
	for id := range f.ClosureBound {
		mark(id)
	}
	for _, b := range f.Blocks() {
		for _, inst := range b.Instructions {
			if _, ok := inst.(*ir.Phi); ok {
				continue
			}
			for _, u := range ir.Uses(inst) {
				mark(u)
			}
		}
	}
	for len(work) > 0 {
		id := work[len(work)-1]
		work = work[:len(work)-1]
		for _, op := range phis[id].Operands {
			mark(op.Value)
		}
	}

	changed := false
	for _, b := range f.Blocks() {
		for _, phi := range b.Phis() {
			if !live[phi.Left] {
				b.RemoveInstruction(phi)
				changed = true
			}
		}
	}
	return changed
}

// EliminateUnusedPhi removes phi nodes that merge a single value, such as
// 'x2 = phi(x1, x2)', replacing their reads with that value.
type EliminateUnusedPhi struct{}

func (EliminateUnusedPhi) Name() string        { return "eliminate-unused-phi" }
func (EliminateUnusedPhi) Description() string { return "fold phi nodes with one distinct operand" }
func (EliminateUnusedPhi) Mutates() Mutation   { return MutatesInstructions }

func (EliminateUnusedPhi) Run(_ *Context, f *ir.Function) (bool, error) {
	changed := false
	for again := true; again; {
		again = false
		for _, b := range f.Blocks() {
			for _, phi := range b.Phis() {
				v, ok := trivialPhiValue(phi)
				if !ok {
					continue
				}
				b.RemoveInstruction(phi)
				renameEverywhere(f, phi.Left, v)
				again, changed = true, true
			}
		}
	}
	return changed, nil
}

func trivialPhiValue(phi *ir.Phi) (ir.Identifier, bool) {
	var v ir.Identifier
	found := false
	for _, op := range phi.Operands {
		if op.Value == phi.Left {
			continue
		}
		if !op.Value.IsVersioned() {
			return ir.Identifier{}, false
		}
		if found && op.Value != v {
			return ir.Identifier{}, false
		}
		v, found = op.Value, true
	}
	return v, found
}
