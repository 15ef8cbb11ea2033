package ir

// Effect classifies what evaluating an expression may do besides
// producing a value.
type Effect uint8

const (
	// EffectPure expressions can be dropped or reordered freely.
	EffectPure Effect = iota
	// EffectRead expressions may observe mutable state (table reads that
	// can reach an __index metamethod, globals, upvalues).
	EffectRead
	// EffectCall expressions may run arbitrary code.
	EffectCall
)

// ExpressionEffect returns the strongest effect of e and its operands.
func ExpressionEffect(e Expression) Effect {
	eff := EffectPure
	VisitExpression(e, func(sub Expression) {
		switch x := sub.(type) {
		case *FunctionCall:
			eff = EffectCall
		case *IdentifierReference:
			if x.HasIndex() || x.Identifier.Kind == IdentGlobal || x.Identifier.Kind == IdentUpValue {
				eff = max(eff, EffectRead)
			}
		case *BinOp, *UnaryOp, *Concat:
			// Arithmetic on tables may dispatch to metamethods; the
			// operands decide the classification.
		}
	})
	return eff
}

// HasSideEffects reports whether dropping e could change behavior.
func HasSideEffects(e Expression) bool {
	return ExpressionEffect(e) == EffectCall
}

// InstructionEffect returns the effect of executing inst. Stores into
// tables, globals and upvalues count as calls since they may trigger
// __newindex.
func InstructionEffect(inst Instruction) Effect {
	switch x := inst.(type) {
	case *Assignment:
		eff := ExpressionEffect(x.Right)
		for _, l := range x.Left {
			if l.HasIndex() || l.Identifier.Kind != IdentRegister {
				eff = EffectCall
			}
		}
		return eff
	case *Phi, *Label, *Data, *Comment:
		return EffectPure
	default:
		return EffectCall
	}
}

// CallsIn returns the function calls nested anywhere in e.
func CallsIn(e Expression) []*FunctionCall {
	var calls []*FunctionCall
	VisitExpression(e, func(sub Expression) {
		if c, ok := sub.(*FunctionCall); ok {
			calls = append(calls, c)
		}
	})
	return calls
}

// EffectBefore returns the strongest effect inst evaluates ahead of its
// first read of id, following Lua's left to right order. Looking up a
// callee counts as part of its call. found is false when inst never
// reads id.
func EffectBefore(inst Instruction, id Identifier) (eff Effect, found bool) {
	w := &orderWalker{id: id}
	switch x := inst.(type) {
	case *Assignment:
		w.assignment(x)
	case *Return:
		w.operands(x.Values...)
	case *ConditionalJump:
		w.operands(x.Condition)
		if !w.found && x.OnTaken != nil {
			w.assignment(x.OnTaken)
		}
	case *IfStatement:
		w.operands(x.Condition)
	case *While:
		w.operands(x.Condition)
	default:
		return EffectPure, CountUses(inst, id) > 0
	}
	return w.eff, w.found
}

type orderWalker struct {
	id    Identifier
	eff   Effect
	found bool
}

func (w *orderWalker) reads(e Expression) bool {
	for _, u := range ExpressionUses(e) {
		if u == w.id {
			return true
		}
	}
	return false
}

func (w *orderWalker) assignment(a *Assignment) {
	for _, l := range a.Left {
		if !l.HasIndex() {
			continue
		}
		if l.Identifier == w.id {
			w.found = true
			return
		}
		if w.operands(l.TableIndices...); w.found {
			return
		}
	}
	w.operands(a.Right)
}

// operands accumulates the effects of es in order until one reads id,
// then descends into it.
func (w *orderWalker) operands(es ...Expression) {
	for _, e := range es {
		if e == nil {
			continue
		}
		if w.reads(e) {
			w.descend(e)
			return
		}
		w.eff = max(w.eff, ExpressionEffect(e))
	}
}

func (w *orderWalker) descend(e Expression) {
	switch x := e.(type) {
	case *IdentifierReference:
		if x.Identifier == w.id {
			w.found = true
			return
		}
		w.operands(x.TableIndices...)
	case *BinOp:
		w.operands(x.Left, x.Right)
	case *UnaryOp:
		w.operands(x.Expr)
	case *Concat:
		w.operands(x.Exprs...)
	case *FunctionCall:
		if w.reads(x.Function) {
			w.descend(x.Function)
			return
		}
		if ExpressionEffect(x.Function) == EffectCall {
			w.eff = EffectCall
		}
		w.operands(x.Args...)
	case *InitializerList:
		for _, en := range x.Entries {
			if w.operands(en.Key, en.Value); w.found {
				return
			}
		}
	}
}
