package passes

import (
	"luadec/internal/errors"
	"luadec/internal/ir"
)

// ResolveAmbiguousCallArgs fills argument and return lists that run up to
// the stack top left by an earlier open call or vararg expansion, and
// records where each callee was loaded.
type ResolveAmbiguousCallArgs struct{}

func (ResolveAmbiguousCallArgs) Name() string { return "resolve-ambiguous-call-args" }
func (ResolveAmbiguousCallArgs) Description() string {
	return "resolve open argument and return counts against the stack top"
}
func (ResolveAmbiguousCallArgs) Mutates() Mutation { return MutatesInstructions }

func (ResolveAmbiguousCallArgs) Run(ctx *Context, f *ir.Function) (bool, error) {
	changed := false
	for _, b := range f.Blocks() {
		top, haveTop := uint32(0), false
		for i, inst := range b.Instructions {
			switch x := inst.(type) {
			case *ir.Assignment:
				if call, ok := x.Right.(*ir.FunctionCall); ok {
					if call.HasAmbiguousArgumentCount {
						if !haveTop {
							return changed, ctx.Fail(errors.ErrorMalformedControlFlow, b.ID,
								"call at index %d takes an open argument list but nothing set the stack top", x.Begin)
						}
						call.Args = append(call.Args, registerRange(call.BeginArg, top)...)
						call.HasAmbiguousArgumentCount = false
						haveTop = false
						changed = true
					}
					if recordCalleeDefinition(b, i, call) {
						changed = true
					}
					if call.HasAmbiguousReturnCount && len(x.Left) > 0 {
						top, haveTop = x.Left[0].Identifier.Index, true
					}
					continue
				}
				if x.IsAmbiguousVararg {
					top, haveTop = x.VarargAssignmentReg, true
				}
			case *ir.Return:
				if x.IsAmbiguousReturnCount {
					if !haveTop {
						return changed, ctx.Fail(errors.ErrorMalformedControlFlow, b.ID,
							"return at index %d is open but nothing set the stack top", x.Begin)
					}
					x.Values = append(x.Values, registerRange(x.BeginRet, top)...)
					x.IsAmbiguousReturnCount = false
					haveTop = false
					changed = true
				}
				if len(x.Values) == 1 {
					if call, ok := x.Values[0].(*ir.FunctionCall); ok && recordCalleeDefinition(b, i, call) {
						changed = true
					}
				}
			}
		}
	}
	return changed, nil
}

// registerRange returns references to registers first..last inclusive.
func registerRange(first, last uint32) []ir.Expression {
	var out []ir.Expression
	for r := first; r <= last; r++ {
		out = append(out, ir.Ref(ir.Register(r)))
	}
	return out
}

// recordCalleeDefinition sets call.FunctionDefIndex to the lifted index of
// the instruction that loaded the callee register within the block.
func recordCalleeDefinition(b *ir.BasicBlock, at int, call *ir.FunctionCall) bool {
	if call.FunctionDefIndex >= 0 {
		return false
	}
	ref, ok := call.Function.(*ir.IdentifierReference)
	if !ok || !ref.Identifier.IsRegister() {
		return false
	}
	for j := at - 1; j >= 0; j-- {
		for _, d := range ir.Defines(b.Instructions[j]) {
			if d == ref.Identifier {
				call.FunctionDefIndex = b.Instructions[j].Info().Begin
				return true
			}
		}
	}
	return false
}
