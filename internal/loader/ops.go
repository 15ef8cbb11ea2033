package loader

import (
	"luadec/grammar"
	"luadec/internal/errors"
	"luadec/internal/ir"
)

func (c *fn) op(op *grammar.Op) error {
	switch {
	case op.Jump != nil:
		c.b.Jump(op.Jump.Target)
	case op.If != nil:
		cond, err := c.expr(op.If.Cond)
		if err != nil {
			return err
		}
		cj := c.b.CondJump(cond, op.If.Target)
		if op.If.With != nil {
			a, err := c.assignment(op.If.With)
			if err != nil {
				return err
			}
			a.Meta = cj.Meta
			cj.OnTaken = a
		}
	case op.Return != nil:
		return c.ret(op.Return)
	case op.Bind != nil:
		id, err := c.base(op.Bind.Target)
		if err != nil {
			return err
		}
		c.b.Emit(&ir.ClosureBinding{Identifier: id})
	case op.Data != nil:
		c.b.Emit(&ir.Data{Value: int64(op.Data.Value)})
	case op.Unimpl != nil:
		c.b.Emit(&ir.Placeholder{Opcode: op.Unimpl.Opcode})
	case op.Call != nil:
		call, err := c.call(op.Call.Call)
		if err != nil {
			return err
		}
		for _, fl := range op.Call.Flags {
			if err := c.callFlag(call, fl); err != nil {
				return err
			}
		}
		c.b.Emit(&ir.Assignment{Right: call})
	case op.Assign != nil:
		a, err := c.assignment(op.Assign)
		if err != nil {
			return err
		}
		c.b.Emit(a)
	default:
		return c.fail(errors.ErrorListingSyntax, "empty instruction")
	}
	return nil
}

func (c *fn) ret(r *grammar.ReturnOp) error {
	values, err := c.exprs(r.Values)
	if err != nil {
		return err
	}
	ret := &ir.Return{Values: values}
	for _, fl := range r.Flags {
		switch fl.Name {
		case "tail":
			ret.IsTailReturn = true
		case "openargs":
			begin, err := c.register(fl.Arg)
			if err != nil {
				return err
			}
			ret.IsAmbiguousReturnCount, ret.BeginRet = true, begin
		default:
			return c.fail(errors.ErrorListingSyntax, "flag [%s] does not apply to return", fl.Name)
		}
	}
	c.b.Emit(ret)
	return nil
}

func (c *fn) callFlag(call *ir.FunctionCall, fl *grammar.Flag) error {
	switch fl.Name {
	case "openargs":
		begin, err := c.register(fl.Arg)
		if err != nil {
			return err
		}
		call.HasAmbiguousArgumentCount, call.BeginArg = true, begin
	case "openrets":
		call.HasAmbiguousReturnCount = true
	default:
		return c.fail(errors.ErrorListingSyntax, "flag [%s] does not apply to a call", fl.Name)
	}
	return nil
}

func (c *fn) register(n int) (uint32, error) {
	if n < 0 {
		return 0, c.fail(errors.ErrorListingSyntax, "invalid register %d", n)
	}
	return uint32(n), nil
}

func (c *fn) assignment(g *grammar.AssignOp) (*ir.Assignment, error) {
	if g.Pos.Line > 0 {
		c.line = g.Pos.Line
	}
	a := &ir.Assignment{}
	for _, t := range g.Targets {
		ref, err := c.reference(t.Ref)
		if err != nil {
			return nil, err
		}
		if t.Open {
			if len(g.Targets) != 1 || ref.HasIndex() || !ref.Identifier.IsRegister() {
				return nil, c.fail(errors.ErrorListingSyntax, "an open vararg target must be a single register")
			}
			a.IsAmbiguousVararg = true
			a.VarargAssignmentReg = ref.Identifier.Index
		}
		a.Left = append(a.Left, ref)
	}
	right, err := c.expr(g.Value)
	if err != nil {
		return nil, err
	}
	a.Right = right
	if a.IsAmbiguousVararg {
		if ref, ok := right.(*ir.IdentifierReference); !ok || ref.Identifier.Kind != ir.IdentVarargs {
			return nil, c.fail(errors.ErrorListingSyntax, "an open target must be assigned '...'")
		}
	}

	for _, fl := range g.Flags {
		switch fl.Name {
		case "local":
			a.IsLocalDeclaration = true
		case "propagate":
			a.PropagateAlways = true
		case "list":
			a.IsListAssignment = true
		case "openargs", "openrets":
			call, ok := right.(*ir.FunctionCall)
			if !ok {
				return nil, c.fail(errors.ErrorListingSyntax, "flag [%s] needs a call on the right", fl.Name)
			}
			if err := c.callFlag(call, fl); err != nil {
				return nil, err
			}
		default:
			return nil, c.fail(errors.ErrorListingSyntax, "flag [%s] does not apply to an assignment", fl.Name)
		}
	}
	return a, nil
}
