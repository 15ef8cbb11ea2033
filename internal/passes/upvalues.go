package passes

import (
	"luadec/internal/errors"
	"luadec/internal/ir"
)

// ValidateUpvalues rejects references to upvalues the function does not
// declare.
type ValidateUpvalues struct{}

func (ValidateUpvalues) Name() string        { return "validate-upvalues" }
func (ValidateUpvalues) Description() string { return "reject unbound upvalue indices" }
func (ValidateUpvalues) Mutates() Mutation   { return ReadOnly }

func (ValidateUpvalues) Run(ctx *Context, f *ir.Function) (bool, error) {
	check := func(block ir.BlockID, inst ir.Instruction) error {
		ids := append(ir.Uses(inst), ir.Defines(inst)...)
		if a, ok := inst.(*ir.Assignment); ok {
			for _, l := range a.Left {
				ids = append(ids, l.Identifier)
			}
		}
		for _, id := range ids {
			if id.Kind == ir.IdentUpValue && id.Index >= f.UpValueCount {
				return errors.New(errors.ErrorUnboundUpvalueReference,
					"reference to unbound upvalue %d, function declares %d", id.Index, f.UpValueCount).
					InFunction(f.ID).InPass(ctx.pass).AtBlock(int(block)).
					AtLine(inst.Info().Line, 1).
					Build()
			}
		}
		return nil
	}
	for _, inst := range f.Instructions {
		if err := check(ir.NoBlock, inst); err != nil {
			return false, err
		}
	}
	for _, b := range f.Blocks() {
		for _, inst := range b.Instructions {
			if err := check(b.ID, inst); err != nil {
				return false, err
			}
		}
	}
	return false, nil
}

// ResolveClosureUpValues moves the binding instructions that follow a
// closure creation into the child's upvalue binding list, and marks the
// bound identifiers so they are never folded away.
type ResolveClosureUpValues struct{}

func (ResolveClosureUpValues) Name() string { return "resolve-closure-upvalues" }
func (ResolveClosureUpValues) Description() string {
	return "bind child closure upvalues to parent identifiers"
}
func (ResolveClosureUpValues) Mutates() Mutation { return MutatesInstructions }

func (ResolveClosureUpValues) Run(ctx *Context, f *ir.Function) (bool, error) {
	changed := false
	for _, b := range f.Blocks() {
		for i := 0; i < len(b.Instructions); i++ {
			a, ok := b.Instructions[i].(*ir.Assignment)
			if !ok {
				continue
			}
			cl, ok := a.Right.(*ir.Closure)
			if !ok || cl.Function == nil {
				continue
			}
			child := cl.Function
			child.ParentBlock = b.ID
			for i+1 < len(b.Instructions) {
				bind, ok := b.Instructions[i+1].(*ir.ClosureBinding)
				if !ok {
					break
				}
				child.UpValueBindings = append(child.UpValueBindings, bind.Identifier)
				f.ClosureBound[bind.Identifier] = true
				b.Remove(i + 1)
				changed = true
			}
		}
	}
	for _, b := range f.Blocks() {
		for _, inst := range b.Instructions {
			if _, ok := inst.(*ir.ClosureBinding); ok {
				return changed, ctx.Fail(errors.ErrorMalformedControlFlow, b.ID,
					"closure binding does not follow a closure creation")
			}
		}
	}
	return changed, nil
}
