package passes

import (
	"slices"

	"luadec/internal/errors"
	"luadec/internal/ir"
)

// ApplyLabels inserts a Label instruction in front of every jump target.
type ApplyLabels struct{}

func (ApplyLabels) Name() string        { return "apply-labels" }
func (ApplyLabels) Description() string { return "insert labels at jump target addresses" }
func (ApplyLabels) Mutates() Mutation   { return MutatesInstructions }

func (ApplyLabels) Run(ctx *Context, f *ir.Function) (bool, error) {
	placed := make(map[ir.LabelID]bool)
	for _, inst := range f.Instructions {
		if l, ok := inst.(*ir.Label); ok {
			placed[l.Label] = true
		}
	}
	byPC := make(map[int][]ir.LabelID)
	for id, pc := range f.LabelTargets {
		if !placed[id] {
			byPC[pc] = append(byPC[pc], id)
		}
	}
	if len(byPC) == 0 {
		return false, nil
	}

	out := make([]ir.Instruction, 0, len(f.Instructions)+len(byPC))
	for _, inst := range f.Instructions {
		pc := inst.Info().Begin
		if ids, ok := byPC[pc]; ok {
			slices.Sort(ids)
			for _, id := range ids {
				out = append(out, &ir.Label{Meta: ir.Meta{Begin: pc, End: pc, Line: inst.Info().Line}, Label: id})
			}
			delete(byPC, pc)
		}
		out = append(out, inst)
	}
	if len(byPC) > 0 {
		pcs := make([]int, 0, len(byPC))
		for pc := range byPC {
			pcs = append(pcs, pc)
		}
		slices.Sort(pcs)
		return false, ctx.Fail(errors.ErrorMalformedControlFlow, ir.NoBlock,
			"jump target address %d has no instruction", pcs[0])
	}
	f.Instructions = out
	return true, nil
}

// CleanupDataInstructions removes inline operand words that carry no
// semantics once lifted.
type CleanupDataInstructions struct{}

func (CleanupDataInstructions) Name() string        { return "cleanup-data-instructions" }
func (CleanupDataInstructions) Description() string { return "drop DATA operand words" }
func (CleanupDataInstructions) Mutates() Mutation   { return MutatesInstructions }

func (CleanupDataInstructions) Run(_ *Context, f *ir.Function) (bool, error) {
	n := len(f.Instructions)
	f.Instructions = slices.DeleteFunc(f.Instructions, func(inst ir.Instruction) bool {
		_, ok := inst.(*ir.Data)
		return ok
	})
	return len(f.Instructions) != n, nil
}

// MergeConditionalJumps folds the compare-and-skip idiom
//
//	if c goto L1
//	jmp L2
//	L1:
//
// into a single 'if not c goto L2'.
type MergeConditionalJumps struct{}

func (MergeConditionalJumps) Name() string { return "merge-conditional-jumps" }
func (MergeConditionalJumps) Description() string {
	return "merge a conditional skip over a jump into one inverted conditional jump"
}
func (MergeConditionalJumps) Mutates() Mutation { return MutatesInstructions }

func (MergeConditionalJumps) Run(_ *Context, f *ir.Function) (bool, error) {
	changed := false
	for i := 0; i+2 < len(f.Instructions); i++ {
		cj, ok := f.Instructions[i].(*ir.ConditionalJump)
		if !ok || cj.OnTaken != nil {
			continue
		}
		j, ok := f.Instructions[i+1].(*ir.Jump)
		if !ok {
			continue
		}
		if !labelFollows(f.Instructions[i+2:], cj.Target) {
			continue
		}
		cj.Condition = ir.Not(cj.Condition)
		cj.Target = j.Target
		cj.End = j.End
		f.Instructions = slices.Delete(f.Instructions, i+1, i+2)
		changed = true
	}
	return changed, nil
}

// labelFollows reports whether label is among the labels heading insts.
func labelFollows(insts []ir.Instruction, label ir.LabelID) bool {
	for _, inst := range insts {
		l, ok := inst.(*ir.Label)
		if !ok {
			return false
		}
		if l.Label == label {
			return true
		}
	}
	return false
}
