package loader

import (
	"luadec/grammar"
	"luadec/internal/errors"
	"luadec/internal/ir"
)

// binaryPrecedence follows the reference Lua grammar. forloop is the
// numeric for bound test and binds like a comparison.
var binaryPrecedence = map[string]int{
	"or":  1,
	"and": 2,
	"<":   3, ">": 3, "<=": 3, ">=": 3, "~=": 3, "==": 3, "forloop": 3,
	"..": 4,
	"+":  5, "-": 5,
	"*": 6, "/": 6, "%": 6,
	"^": 8,
}

var binaryOps = map[string]ir.Op{
	"or":      ir.OpOr,
	"and":     ir.OpAnd,
	"<":       ir.OpLessThan,
	">":       ir.OpGreaterThan,
	"<=":      ir.OpLessEqual,
	">=":      ir.OpGreaterEqual,
	"~=":      ir.OpNotEqual,
	"==":      ir.OpEqual,
	"forloop": ir.OpLoopCompare,
	"+":       ir.OpAdd,
	"-":       ir.OpSub,
	"*":       ir.OpMul,
	"/":       ir.OpDiv,
	"%":       ir.OpMod,
	"^":       ir.OpPow,
}

func rightAssociative(op string) bool { return op == ".." || op == "^" }

func (c *fn) exprs(es []*grammar.Expr) ([]ir.Expression, error) {
	out := make([]ir.Expression, 0, len(es))
	for _, e := range es {
		x, err := c.expr(e)
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, nil
}

// expr resolves the flat operator chain with an operator stack.
func (c *fn) expr(e *grammar.Expr) (ir.Expression, error) {
	first, err := c.unary(e.Left)
	if err != nil {
		return nil, err
	}
	operands := []ir.Expression{first}
	var ops []string

	reduce := func() {
		op := ops[len(ops)-1]
		ops = ops[:len(ops)-1]
		r, l := operands[len(operands)-1], operands[len(operands)-2]
		operands = append(operands[:len(operands)-2], combine(op, l, r))
	}

	for _, tail := range e.Ops {
		for len(ops) > 0 && reduceBefore(ops[len(ops)-1], tail.Op) {
			reduce()
		}
		right, err := c.unary(tail.Right)
		if err != nil {
			return nil, err
		}
		ops = append(ops, tail.Op)
		operands = append(operands, right)
	}
	for len(ops) > 0 {
		reduce()
	}
	return operands[0], nil
}

func reduceBefore(top, next string) bool {
	pt, pn := binaryPrecedence[top], binaryPrecedence[next]
	return pt > pn || pt == pn && !rightAssociative(next)
}

func combine(op string, l, r ir.Expression) ir.Expression {
	if op == ".." {
		var exprs []ir.Expression
		if lc, ok := l.(*ir.Concat); ok {
			exprs = append(exprs, lc.Exprs...)
		} else {
			exprs = append(exprs, l)
		}
		if rc, ok := r.(*ir.Concat); ok {
			exprs = append(exprs, rc.Exprs...)
		} else {
			exprs = append(exprs, r)
		}
		return &ir.Concat{Exprs: exprs}
	}
	return &ir.BinOp{Left: l, Right: r, Op: binaryOps[op]}
}

func (c *fn) unary(u *grammar.Unary) (ir.Expression, error) {
	x, err := c.primary(u.Operand)
	if err != nil {
		return nil, err
	}
	for i := len(u.Ops) - 1; i >= 0; i-- {
		switch u.Ops[i] {
		case "not":
			x = &ir.UnaryOp{Expr: x, Op: ir.OpNot}
		case "#":
			x = &ir.UnaryOp{Expr: x, Op: ir.OpLength}
		case "-":
			if k, ok := x.(*ir.Constant); ok && k.Kind == ir.ConstNumber && k.ID < 0 {
				x = ir.Number(-k.Number)
				continue
			}
			x = &ir.UnaryOp{Expr: x, Op: ir.OpNegate}
		}
	}
	return x, nil
}

func (c *fn) primary(p *grammar.Primary) (ir.Expression, error) {
	switch {
	case p.Nil:
		return ir.Nil(), nil
	case p.True:
		return ir.Bool(true), nil
	case p.False:
		return ir.Bool(false), nil
	case p.Number != nil:
		return ir.Number(*p.Number), nil
	case p.Str != nil:
		return ir.String(*p.Str), nil
	case p.Const != nil:
		k, ok := c.f.ConstantAt(int(*p.Const))
		if !ok {
			c.line = p.Pos.Line
			return nil, errors.New(errors.ErrorUnknownConstant, "constant k%d is not defined", *p.Const).
				InFunction(c.f.ID).AtLine(p.Pos.Line, p.Pos.Column).
				WithNote("the function declares %d constants", len(c.f.Constants)).
				Build()
		}
		return k, nil
	case p.Vararg:
		return ir.Ref(ir.Varargs()), nil
	case p.Closure != nil:
		for _, child := range c.f.Closures {
			if child.ID == *p.Closure {
				return &ir.Closure{Function: child}, nil
			}
		}
		return nil, errors.New(errors.ErrorListingSyntax, "closure %d is not a child of function %d", *p.Closure, c.f.ID).
			InFunction(c.f.ID).AtLine(p.Pos.Line, p.Pos.Column).Build()
	case p.Call != nil:
		return c.call(p.Call)
	case p.Table != nil:
		list := &ir.InitializerList{}
		for _, entry := range p.Table.Entries {
			var key ir.Expression
			if entry.Key != nil {
				k, err := c.expr(entry.Key)
				if err != nil {
					return nil, err
				}
				key = k
			}
			value, err := c.expr(entry.Value)
			if err != nil {
				return nil, err
			}
			list.Entries = append(list.Entries, ir.ListEntry{Key: key, Value: value})
		}
		return list, nil
	case p.Ref != nil:
		return c.reference(p.Ref)
	case p.Sub != nil:
		return c.expr(p.Sub)
	}
	return nil, c.fail(errors.ErrorListingSyntax, "empty expression")
}

func (c *fn) call(g *grammar.Call) (*ir.FunctionCall, error) {
	callee, err := c.reference(g.Callee)
	if err != nil {
		return nil, err
	}
	args, err := c.exprs(g.Args)
	if err != nil {
		return nil, err
	}
	return ir.Call(callee, args...), nil
}

func (c *fn) reference(r *grammar.Reference) (*ir.IdentifierReference, error) {
	id, err := c.base(r.Base)
	if err != nil {
		return nil, err
	}
	ref := ir.Ref(id)
	for _, idx := range r.Indices {
		if idx.Key == nil {
			ref.TableIndices = append(ref.TableIndices, ir.String(idx.Field))
			continue
		}
		key, err := c.expr(idx.Key)
		if err != nil {
			return nil, err
		}
		ref.TableIndices = append(ref.TableIndices, key)
	}
	return ref, nil
}

func (c *fn) base(b *grammar.Base) (ir.Identifier, error) {
	switch {
	case b.Register != nil:
		return ir.Register(uint32(*b.Register)), nil
	case b.UpValue != nil:
		i := uint32(*b.UpValue)
		if i >= c.f.UpValueCount {
			return ir.Identifier{}, c.fail(errors.ErrorUnboundUpvalueReference,
				"upvalue u%d is out of range, function %d declares %d", i, c.f.ID, c.f.UpValueCount)
		}
		return ir.UpValue(i), nil
	case b.Global != nil:
		return ir.Global(string(*b.Global)), nil
	}
	return ir.GlobalTable(), nil
}
