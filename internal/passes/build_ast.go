package passes

import (
	"fmt"

	"luadec/internal/ast"
	"luadec/internal/errors"
	"luadec/internal/ir"
)

// BuildAST lowers the structured IR into a Lua syntax tree and stores it in
// the context. Closures are left unlinked; the driver links them once
// every child function has been decompiled.
type BuildAST struct{}

func (BuildAST) Name() string        { return "build-ast" }
func (BuildAST) Description() string { return "lower structured IR to a Lua syntax tree" }
func (BuildAST) Mutates() Mutation   { return ReadOnly }

func (BuildAST) Run(ctx *Context, f *ir.Function) (bool, error) {
	root, err := buildScopes(ctx, f)
	if err != nil {
		return false, err
	}
	b := &astBuilder{ctx: ctx, f: f, lastBlock: ir.NoBlock}
	body, err := b.block(root)
	if err != nil {
		return false, err
	}
	trimImplicitReturn(body)
	if f.InsertDebugComments {
		head := &ast.Comment{Text: fmt.Sprintf("function %d", f.ID)}
		body.Stmts = append([]ast.Stmt{head}, body.Stmts...)
	}
	out := &ast.Function{ID: f.ID, IsVararg: f.IsVararg, Body: body}
	for i, p := range f.Parameters {
		out.Params = append(out.Params, b.localName(p, fmt.Sprintf("arg%d", i)))
	}
	ctx.Output = out
	return false, nil
}

type astBuilder struct {
	ctx       *Context
	f         *ir.Function
	lastBlock ir.BlockID
}

func (b *astBuilder) block(sc *scope) (*ast.Block, error) {
	out := &ast.Block{}
	for _, st := range sc.stmts {
		if b.f.InsertDebugComments && st.block != b.lastBlock {
			out.Stmts = append(out.Stmts, &ast.Comment{Text: fmt.Sprintf("block %d", st.block)})
		}
		b.lastBlock = st.block
		s, err := b.stmt(st)
		if err != nil {
			return nil, err
		}
		if s != nil {
			out.Stmts = append(out.Stmts, s)
		}
	}
	return out, nil
}

func (b *astBuilder) stmt(st *stmt) (ast.Stmt, error) {
	switch x := st.inst.(type) {
	case *ir.Assignment:
		return b.assignment(x), nil
	case *ir.Return:
		return &ast.Return{Values: b.exprs(x.Values)}, nil
	case *ir.IfStatement:
		return b.ifStatement(st, x)
	case *ir.While:
		body, err := b.block(st.scopes[0])
		if err != nil {
			return nil, err
		}
		if x.IsPostTested {
			return &ast.Repeat{Body: body, Cond: b.expr(x.Condition)}, nil
		}
		trimTrailingContinue(body)
		return &ast.While{Cond: b.expr(x.Condition), Body: body}, nil
	case *ir.NumericFor:
		body, err := b.block(st.scopes[0])
		if err != nil {
			return nil, err
		}
		trimTrailingContinue(body)
		loop := &ast.NumericFor{
			Var:   b.localName(x.Initial.Left[0].Identifier, "i"),
			Start: b.expr(x.Initial.Right),
			Limit: b.expr(x.Limit),
			Body:  body,
		}
		if c, ok := x.Increment.(*ir.Constant); !ok || c.Kind != ir.ConstNumber || c.Number != 1 {
			loop.Step = b.expr(x.Increment)
		}
		return loop, nil
	case *ir.GenericFor:
		body, err := b.block(st.scopes[0])
		if err != nil {
			return nil, err
		}
		trimTrailingContinue(body)
		loop := &ast.GenericFor{Values: b.exprs(x.Values), Body: body}
		for i, v := range x.Vars {
			loop.Vars = append(loop.Vars, b.localName(v.Identifier, genericForName(i)))
		}
		return loop, nil
	case *ir.Break:
		return &ast.Break{}, nil
	case *ir.Continue:
		return &ast.Continue{}, nil
	case *ir.Comment:
		return &ast.Comment{Text: x.Text}, nil
	case *ir.ClosureBinding:
		return nil, nil
	case *ir.Placeholder:
		return &ast.Comment{Text: fmt.Sprintf("unimplemented opcode %s", x.Opcode)}, nil
	}
	return nil, b.ctx.Fail(errors.ErrorPassFailure, st.block,
		"%s cannot appear in structured output", ir.FormatInstruction(st.inst))
}

func (b *astBuilder) assignment(a *ir.Assignment) ast.Stmt {
	if len(a.Left) == 0 {
		return &ast.CallStmt{Call: b.expr(a.Right)}
	}
	var values []ast.Expr
	if a.Right != nil {
		values = []ast.Expr{b.expr(a.Right)}
	}
	if a.IsLocalDeclaration {
		decl := &ast.LocalAssign{Values: values}
		for _, l := range a.Left {
			decl.Names = append(decl.Names, b.localName(l.Identifier, "var"))
		}
		return decl
	}
	out := &ast.Assign{Values: values}
	for _, l := range a.Left {
		out.Targets = append(out.Targets, b.expr(l))
	}
	return out
}

func (b *astBuilder) ifStatement(st *stmt, x *ir.IfStatement) (ast.Stmt, error) {
	then, err := b.block(st.scopes[0])
	if err != nil {
		return nil, err
	}
	out := &ast.If{Cond: b.expr(x.Condition), Then: then}
	if len(st.scopes) < 2 {
		return out, nil
	}
	elseScope := st.scopes[1]
	els, err := b.block(elseScope)
	if err != nil {
		return nil, err
	}
	if inner, ok := elseIf(elseScope, els); ok {
		out.ElseIfs = append([]ast.ElseIf{{Cond: inner.Cond, Body: inner.Then}}, inner.ElseIfs...)
		out.Else = inner.Else
		return out, nil
	}
	out.Else = els
	return out, nil
}

// elseIf returns the if statement an else arm consists of when it was
// marked as an elseif. Debug comments ahead of it are dropped.
func elseIf(sc *scope, els *ast.Block) (*ast.If, bool) {
	if len(sc.stmts) != 1 {
		return nil, false
	}
	if x, ok := sc.stmts[0].inst.(*ir.IfStatement); !ok || !x.IsElseIf {
		return nil, false
	}
	inner, ok := els.Stmts[len(els.Stmts)-1].(*ast.If)
	return inner, ok
}

// trimImplicitReturn drops the bare return every function body ends with.
func trimImplicitReturn(body *ast.Block) {
	if n := len(body.Stmts); n > 0 {
		if r, ok := body.Stmts[n-1].(*ast.Return); ok && len(r.Values) == 0 {
			body.Stmts = body.Stmts[:n-1]
		}
	}
}

// trimTrailingContinue drops a continue that ends a loop body, directly or
// as the last statement of a trailing if.
func trimTrailingContinue(body *ast.Block) {
	if body == nil || len(body.Stmts) == 0 {
		return
	}
	switch last := body.Stmts[len(body.Stmts)-1].(type) {
	case *ast.Continue:
		body.Stmts = body.Stmts[:len(body.Stmts)-1]
	case *ast.If:
		trimTrailingContinue(last.Then)
		for _, ei := range last.ElseIfs {
			trimTrailingContinue(ei.Body)
		}
		trimTrailingContinue(last.Else)
	}
}

func (b *astBuilder) localName(id ir.Identifier, fallback string) string {
	if name, ok := b.f.Names[id]; ok {
		return name
	}
	return fallback
}

func (b *astBuilder) exprs(es []ir.Expression) []ast.Expr {
	out := make([]ast.Expr, len(es))
	for i, e := range es {
		out[i] = b.expr(e)
	}
	return out
}

func (b *astBuilder) identifier(id ir.Identifier) ast.Expr {
	switch id.Kind {
	case ir.IdentRegister:
		return &ast.Name{Name: b.localName(id, id.String())}
	case ir.IdentGlobal:
		return &ast.Name{Name: id.Name}
	case ir.IdentUpValue:
		return &ast.Name{Name: upvalueName(b.f, id.Index)}
	case ir.IdentVarargs:
		return &ast.Vararg{}
	case ir.IdentGlobalTable:
		return &ast.Name{Name: "_G"}
	}
	panic(fmt.Sprintf("unknown identifier kind %v", id.Kind))
}

var binarySymbols = map[ir.Op]string{
	ir.OpAdd:          "+",
	ir.OpSub:          "-",
	ir.OpMul:          "*",
	ir.OpDiv:          "/",
	ir.OpMod:          "%",
	ir.OpPow:          "^",
	ir.OpEqual:        "==",
	ir.OpNotEqual:     "~=",
	ir.OpLessThan:     "<",
	ir.OpLessEqual:    "<=",
	ir.OpGreaterThan:  ">",
	ir.OpGreaterEqual: ">=",
	ir.OpAnd:          "and",
	ir.OpOr:           "or",
	ir.OpLoopCompare:  "<=",
}

var unarySymbols = map[ir.UnaryOperator]string{
	ir.OpNot:    "not",
	ir.OpNegate: "-",
	ir.OpLength: "#",
}

func (b *astBuilder) expr(e ir.Expression) ast.Expr {
	switch x := e.(type) {
	case *ir.Constant:
		switch x.Kind {
		case ir.ConstNil:
			return &ast.Nil{}
		case ir.ConstBool:
			return &ast.Bool{Value: x.Bool}
		case ir.ConstNumber:
			return &ast.Number{Value: x.Number}
		default:
			return &ast.String{Value: x.String}
		}
	case *ir.IdentifierReference:
		out := b.identifier(x.Identifier)
		for _, idx := range x.TableIndices {
			out = &ast.Index{Obj: out, Key: b.expr(idx)}
		}
		return out
	case *ir.BinOp:
		return &ast.Binary{Op: binarySymbols[x.Op], Left: b.expr(x.Left), Right: b.expr(x.Right)}
	case *ir.UnaryOp:
		return &ast.Unary{Op: unarySymbols[x.Op], X: b.expr(x.Expr)}
	case *ir.Concat:
		if len(x.Exprs) == 0 {
			return &ast.String{}
		}
		out := b.expr(x.Exprs[len(x.Exprs)-1])
		for i := len(x.Exprs) - 2; i >= 0; i-- {
			out = &ast.Binary{Op: "..", Left: b.expr(x.Exprs[i]), Right: out}
		}
		return out
	case *ir.FunctionCall:
		return b.call(x)
	case *ir.Closure:
		return &ast.FunctionExpr{ID: x.Function.ID}
	case *ir.InitializerList:
		t := &ast.Table{}
		for _, entry := range x.Entries {
			field := ast.Field{Value: b.expr(entry.Value)}
			if entry.Key != nil {
				field.Key = b.expr(entry.Key)
			}
			t.Fields = append(t.Fields, field)
		}
		return t
	}
	panic(fmt.Sprintf("unexpected expression type %T", e))
}

// call lowers a call, writing 'obj:name(...)' when the callee is a field
// of the first argument.
func (b *astBuilder) call(c *ir.FunctionCall) ast.Expr {
	if ref, ok := c.Function.(*ir.IdentifierReference); ok && ref.HasIndex() && len(c.Args) > 0 {
		n := len(ref.TableIndices)
		key, isConst := ref.TableIndices[n-1].(*ir.Constant)
		receiver := &ir.IdentifierReference{Identifier: ref.Identifier, TableIndices: ref.TableIndices[:n-1]}
		if isConst && key.Kind == ir.ConstString && ast.IsName(key.String) && sameExpression(receiver, c.Args[0]) {
			return &ast.MethodCall{Obj: b.expr(c.Args[0]), Method: key.String, Args: b.exprs(c.Args[1:])}
		}
	}
	return &ast.Call{Fn: b.expr(c.Function), Args: b.exprs(c.Args)}
}

// sameExpression compares constants and plain or indexed references.
func sameExpression(a, b ir.Expression) bool {
	switch x := a.(type) {
	case *ir.Constant:
		y, ok := b.(*ir.Constant)
		return ok && x.Kind == y.Kind && x.Bool == y.Bool && x.Number == y.Number && x.String == y.String
	case *ir.IdentifierReference:
		y, ok := b.(*ir.IdentifierReference)
		if !ok || x.Identifier != y.Identifier || len(x.TableIndices) != len(y.TableIndices) {
			return false
		}
		for i := range x.TableIndices {
			if !sameExpression(x.TableIndices[i], y.TableIndices[i]) {
				return false
			}
		}
		return true
	}
	return false
}
