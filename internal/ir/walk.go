package ir

import "fmt"

func unknownExpression(e Expression) string {
	return fmt.Sprintf("ir: unhandled expression %T", e)
}

func unknownInstruction(inst Instruction) string {
	return fmt.Sprintf("ir: unhandled instruction %T", inst)
}

// ExpressionUses returns every identifier read by e, once per occurrence.
func ExpressionUses(e Expression) []Identifier {
	var out []Identifier
	collectUses(e, &out)
	return out
}

func collectUses(e Expression, out *[]Identifier) {
	switch x := e.(type) {
	case nil:
	case *Constant, *Closure:
	case *IdentifierReference:
		*out = append(*out, x.Identifier)
		for _, idx := range x.TableIndices {
			collectUses(idx, out)
		}
	case *BinOp:
		collectUses(x.Left, out)
		collectUses(x.Right, out)
	case *UnaryOp:
		collectUses(x.Expr, out)
	case *Concat:
		for _, sub := range x.Exprs {
			collectUses(sub, out)
		}
	case *FunctionCall:
		collectUses(x.Function, out)
		for _, arg := range x.Args {
			collectUses(arg, out)
		}
	case *InitializerList:
		for _, en := range x.Entries {
			collectUses(en.Key, out)
			collectUses(en.Value, out)
		}
	default:
		panic(unknownExpression(e))
	}
}

// Defines returns the identifiers inst writes.
func Defines(inst Instruction) []Identifier {
	switch x := inst.(type) {
	case *Assignment:
		return assignmentDefines(x)
	case *Phi:
		return []Identifier{x.Left}
	case *ConditionalJump:
		if x.OnTaken != nil {
			return assignmentDefines(x.OnTaken)
		}
		return nil
	case *NumericFor:
		if x.Initial != nil {
			return assignmentDefines(x.Initial)
		}
		return nil
	case *GenericFor:
		out := make([]Identifier, 0, len(x.Vars))
		for _, v := range x.Vars {
			out = append(out, v.Identifier)
		}
		return out
	case *Return, *Label, *Jump, *IfStatement, *While, *Break, *Continue,
		*ClosureBinding, *Data, *Placeholder, *Comment:
		return nil
	default:
		panic(unknownInstruction(inst))
	}
}

func assignmentDefines(a *Assignment) []Identifier {
	var out []Identifier
	for _, l := range a.Left {
		if !l.HasIndex() {
			out = append(out, l.Identifier)
		}
	}
	return out
}

// Uses returns every identifier inst reads, once per occurrence.
func Uses(inst Instruction) []Identifier {
	var out []Identifier
	switch x := inst.(type) {
	case *Assignment:
		assignmentUses(x, &out)
	case *Phi:
		for _, op := range x.Operands {
			out = append(out, op.Value)
		}
	case *Return:
		for _, v := range x.Values {
			collectUses(v, &out)
		}
	case *ConditionalJump:
		collectUses(x.Condition, &out)
		if x.OnTaken != nil {
			assignmentUses(x.OnTaken, &out)
		}
	case *IfStatement:
		collectUses(x.Condition, &out)
	case *While:
		collectUses(x.Condition, &out)
	case *NumericFor:
		if x.Initial != nil {
			assignmentUses(x.Initial, &out)
		}
		collectUses(x.Limit, &out)
		collectUses(x.Increment, &out)
	case *GenericFor:
		for _, v := range x.Values {
			collectUses(v, &out)
		}
	case *ClosureBinding:
		out = append(out, x.Identifier)
	case *Label, *Jump, *Break, *Continue, *Data, *Placeholder, *Comment:
	default:
		panic(unknownInstruction(inst))
	}
	return out
}

func assignmentUses(a *Assignment, out *[]Identifier) {
	for _, l := range a.Left {
		if l.HasIndex() {
			collectUses(l, out)
		}
	}
	collectUses(a.Right, out)
}

// RenameDefines rewrites definitions of from to to.
func RenameDefines(inst Instruction, from, to Identifier) {
	switch x := inst.(type) {
	case *Assignment:
		renameAssignmentDefines(x, from, to)
	case *Phi:
		if x.Left == from {
			x.Left = to
		}
	case *ConditionalJump:
		if x.OnTaken != nil {
			renameAssignmentDefines(x.OnTaken, from, to)
		}
	case *NumericFor:
		if x.Initial != nil {
			renameAssignmentDefines(x.Initial, from, to)
		}
	case *GenericFor:
		for _, v := range x.Vars {
			if v.Identifier == from {
				v.Identifier = to
			}
		}
	case *Return, *Label, *Jump, *IfStatement, *While, *Break, *Continue,
		*ClosureBinding, *Data, *Placeholder, *Comment:
	default:
		panic(unknownInstruction(inst))
	}
}

func renameAssignmentDefines(a *Assignment, from, to Identifier) {
	for _, l := range a.Left {
		if !l.HasIndex() && l.Identifier == from {
			l.Identifier = to
		}
	}
}

// RenameUses rewrites reads of from to to. Phi operands are included.
func RenameUses(inst Instruction, from, to Identifier) {
	switch x := inst.(type) {
	case *Assignment:
		renameAssignmentUses(x, from, to)
	case *Phi:
		for i := range x.Operands {
			if x.Operands[i].Value == from {
				x.Operands[i].Value = to
			}
		}
	case *Return:
		for _, v := range x.Values {
			RenameExpressionUses(v, from, to)
		}
	case *ConditionalJump:
		RenameExpressionUses(x.Condition, from, to)
		if x.OnTaken != nil {
			renameAssignmentUses(x.OnTaken, from, to)
		}
	case *IfStatement:
		RenameExpressionUses(x.Condition, from, to)
	case *While:
		RenameExpressionUses(x.Condition, from, to)
	case *NumericFor:
		if x.Initial != nil {
			renameAssignmentUses(x.Initial, from, to)
		}
		RenameExpressionUses(x.Limit, from, to)
		RenameExpressionUses(x.Increment, from, to)
	case *GenericFor:
		for _, v := range x.Values {
			RenameExpressionUses(v, from, to)
		}
	case *ClosureBinding:
		if x.Identifier == from {
			x.Identifier = to
		}
	case *Label, *Jump, *Break, *Continue, *Data, *Placeholder, *Comment:
	default:
		panic(unknownInstruction(inst))
	}
}

func renameAssignmentUses(a *Assignment, from, to Identifier) {
	for _, l := range a.Left {
		if l.HasIndex() {
			RenameExpressionUses(l, from, to)
		}
	}
	RenameExpressionUses(a.Right, from, to)
}

// RenameExpressionUses rewrites reads of from to to inside e in place.
func RenameExpressionUses(e Expression, from, to Identifier) {
	switch x := e.(type) {
	case nil:
	case *Constant, *Closure:
	case *IdentifierReference:
		if x.Identifier == from {
			x.Identifier = to
		}
		for _, idx := range x.TableIndices {
			RenameExpressionUses(idx, from, to)
		}
	case *BinOp:
		RenameExpressionUses(x.Left, from, to)
		RenameExpressionUses(x.Right, from, to)
	case *UnaryOp:
		RenameExpressionUses(x.Expr, from, to)
	case *Concat:
		for _, sub := range x.Exprs {
			RenameExpressionUses(sub, from, to)
		}
	case *FunctionCall:
		RenameExpressionUses(x.Function, from, to)
		for _, arg := range x.Args {
			RenameExpressionUses(arg, from, to)
		}
	case *InitializerList:
		for _, en := range x.Entries {
			RenameExpressionUses(en.Key, from, to)
			RenameExpressionUses(en.Value, from, to)
		}
	default:
		panic(unknownExpression(e))
	}
}

// ReplaceUses substitutes repl for every read of id in inst. It reports
// false and leaves inst untouched when some read cannot hold an arbitrary
// expression: a phi operand, or a table base when repl is not itself a
// reference.
func ReplaceUses(inst Instruction, id Identifier, repl Expression) bool {
	if !canReplaceIn(inst, id, repl) {
		return false
	}
	switch x := inst.(type) {
	case *Assignment:
		replaceAssignmentUses(x, id, repl)
	case *Return:
		for i, v := range x.Values {
			x.Values[i] = replaceExpression(v, id, repl)
		}
	case *ConditionalJump:
		x.Condition = replaceExpression(x.Condition, id, repl)
		if x.OnTaken != nil {
			replaceAssignmentUses(x.OnTaken, id, repl)
		}
	case *IfStatement:
		x.Condition = replaceExpression(x.Condition, id, repl)
	case *While:
		x.Condition = replaceExpression(x.Condition, id, repl)
	case *NumericFor:
		if x.Initial != nil {
			replaceAssignmentUses(x.Initial, id, repl)
		}
		x.Limit = replaceExpression(x.Limit, id, repl)
		x.Increment = replaceExpression(x.Increment, id, repl)
	case *GenericFor:
		for i, v := range x.Values {
			x.Values[i] = replaceExpression(v, id, repl)
		}
	case *Phi, *ClosureBinding:
		return false
	case *Label, *Jump, *Break, *Continue, *Data, *Placeholder, *Comment:
	default:
		panic(unknownInstruction(inst))
	}
	return true
}

func replaceAssignmentUses(a *Assignment, id Identifier, repl Expression) {
	for _, l := range a.Left {
		if l.HasIndex() {
			replaceInReference(l, id, repl)
		}
	}
	a.Right = replaceExpression(a.Right, id, repl)
}

func canReplaceIn(inst Instruction, id Identifier, repl Expression) bool {
	if _, isRef := repl.(*IdentifierReference); isRef {
		return true
	}
	ok := true
	check := func(e Expression) {
		VisitExpression(e, func(sub Expression) {
			if r, isRef := sub.(*IdentifierReference); isRef && r.HasIndex() && r.Identifier == id {
				ok = false
			}
		})
	}
	VisitInstructionExpressions(inst, check)
	return ok
}

// replaceInReference rewrites the indices of r and, when r's base is id
// and repl is a reference, splices repl in front of r's indices.
func replaceInReference(r *IdentifierReference, id Identifier, repl Expression) {
	for i, idx := range r.TableIndices {
		r.TableIndices[i] = replaceExpression(idx, id, repl)
	}
	if r.Identifier != id {
		return
	}
	base := repl.(*IdentifierReference)
	r.Identifier = base.Identifier
	r.TableIndices = append(cloneExpressions(base.TableIndices), r.TableIndices...)
}

func replaceExpression(e Expression, id Identifier, repl Expression) Expression {
	switch x := e.(type) {
	case nil:
		return nil
	case *Constant, *Closure:
		return e
	case *IdentifierReference:
		if x.Identifier == id && !x.HasIndex() {
			out := CloneExpression(repl)
			if r, ok := out.(*IdentifierReference); ok && x.IsSelfCall {
				r.IsSelfCall = true
			}
			return out
		}
		replaceInReference(x, id, repl)
		return x
	case *BinOp:
		x.Left = replaceExpression(x.Left, id, repl)
		x.Right = replaceExpression(x.Right, id, repl)
		return x
	case *UnaryOp:
		x.Expr = replaceExpression(x.Expr, id, repl)
		return x
	case *Concat:
		for i, sub := range x.Exprs {
			x.Exprs[i] = replaceExpression(sub, id, repl)
		}
		return x
	case *FunctionCall:
		x.Function = replaceExpression(x.Function, id, repl)
		for i, arg := range x.Args {
			x.Args[i] = replaceExpression(arg, id, repl)
		}
		return x
	case *InitializerList:
		for i := range x.Entries {
			x.Entries[i].Key = replaceExpression(x.Entries[i].Key, id, repl)
			x.Entries[i].Value = replaceExpression(x.Entries[i].Value, id, repl)
		}
		return x
	default:
		panic(unknownExpression(e))
	}
}

// VisitExpression calls fn on e and every subexpression, parents first.
func VisitExpression(e Expression, fn func(Expression)) {
	if e == nil {
		return
	}
	fn(e)
	switch x := e.(type) {
	case *Constant, *Closure:
	case *IdentifierReference:
		for _, idx := range x.TableIndices {
			VisitExpression(idx, fn)
		}
	case *BinOp:
		VisitExpression(x.Left, fn)
		VisitExpression(x.Right, fn)
	case *UnaryOp:
		VisitExpression(x.Expr, fn)
	case *Concat:
		for _, sub := range x.Exprs {
			VisitExpression(sub, fn)
		}
	case *FunctionCall:
		VisitExpression(x.Function, fn)
		for _, arg := range x.Args {
			VisitExpression(arg, fn)
		}
	case *InitializerList:
		for _, en := range x.Entries {
			VisitExpression(en.Key, fn)
			VisitExpression(en.Value, fn)
		}
	default:
		panic(unknownExpression(e))
	}
}

// VisitInstructionExpressions calls fn on each top-level expression held
// by inst, including the targets of table stores.
func VisitInstructionExpressions(inst Instruction, fn func(Expression)) {
	visitAssignment := func(a *Assignment) {
		for _, l := range a.Left {
			fn(l)
		}
		fn(a.Right)
	}
	switch x := inst.(type) {
	case *Assignment:
		visitAssignment(x)
	case *Return:
		for _, v := range x.Values {
			fn(v)
		}
	case *ConditionalJump:
		fn(x.Condition)
		if x.OnTaken != nil {
			visitAssignment(x.OnTaken)
		}
	case *IfStatement:
		fn(x.Condition)
	case *While:
		fn(x.Condition)
	case *NumericFor:
		if x.Initial != nil {
			visitAssignment(x.Initial)
		}
		fn(x.Limit)
		fn(x.Increment)
	case *GenericFor:
		for _, v := range x.Vars {
			fn(v)
		}
		for _, v := range x.Values {
			fn(v)
		}
	case *Phi, *ClosureBinding, *Label, *Jump, *Break, *Continue, *Data, *Placeholder, *Comment:
	default:
		panic(unknownInstruction(inst))
	}
}

// CountUses returns how many times id is read by inst.
func CountUses(inst Instruction, id Identifier) int {
	n := 0
	for _, u := range Uses(inst) {
		if u == id {
			n++
		}
	}
	return n
}
