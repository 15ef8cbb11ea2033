package ast

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	precOr = iota + 1
	precAnd
	precCompare
	precConcat
	precAdd
	precMul
	precUnary
	precPow
	precAtom
)

var binaryPrecedence = map[string]int{
	"or":  precOr,
	"and": precAnd,
	"<":   precCompare,
	">":   precCompare,
	"<=":  precCompare,
	">=":  precCompare,
	"==":  precCompare,
	"~=":  precCompare,
	"..":  precConcat,
	"+":   precAdd,
	"-":   precAdd,
	"*":   precMul,
	"/":   precMul,
	"%":   precMul,
	"^":   precPow,
}

func rightAssociative(op string) bool { return op == ".." || op == "^" }

type printer struct {
	b     strings.Builder
	depth int
}

func (p *printer) line(format string, args ...any) {
	p.b.WriteString(strings.Repeat("\t", p.depth))
	fmt.Fprintf(&p.b, format, args...)
	p.b.WriteByte('\n')
}

func (p *printer) block(b *Block) {
	if b == nil {
		return
	}
	p.depth++
	p.stmts(b.Stmts)
	p.depth--
}

func (p *printer) stmts(stmts []Stmt) {
	for _, s := range stmts {
		p.stmt(s)
	}
}

func (p *printer) stmt(s Stmt) {
	switch x := s.(type) {
	case *LocalAssign:
		if len(x.Values) == 0 {
			p.line("local %s", strings.Join(x.Names, ", "))
			return
		}
		p.line("local %s = %s", strings.Join(x.Names, ", "), p.list(x.Values))
	case *Assign:
		if name, fn, ok := functionStatement(x); ok {
			p.line("function %s(%s)", name, params(fn))
			p.block(fn.Body)
			p.line("end")
			return
		}
		p.statementLine("%s = %s", p.list(x.Targets), p.list(x.Values))
	case *CallStmt:
		p.statementLine("%s", p.expr(x.Call))
	case *Return:
		if len(x.Values) == 0 {
			p.line("return")
			return
		}
		p.line("return %s", p.list(x.Values))
	case *If:
		p.line("if %s then", p.expr(x.Cond))
		p.block(x.Then)
		for _, ei := range x.ElseIfs {
			p.line("elseif %s then", p.expr(ei.Cond))
			p.block(ei.Body)
		}
		if x.Else != nil {
			p.line("else")
			p.block(x.Else)
		}
		p.line("end")
	case *While:
		p.line("while %s do", p.expr(x.Cond))
		p.block(x.Body)
		p.line("end")
	case *Repeat:
		p.line("repeat")
		p.block(x.Body)
		p.line("until %s", p.expr(x.Cond))
	case *NumericFor:
		bounds := p.expr(x.Start) + ", " + p.expr(x.Limit)
		if x.Step != nil {
			bounds += ", " + p.expr(x.Step)
		}
		p.line("for %s = %s do", x.Var, bounds)
		p.block(x.Body)
		p.line("end")
	case *GenericFor:
		p.line("for %s in %s do", strings.Join(x.Vars, ", "), p.list(x.Values))
		p.block(x.Body)
		p.line("end")
	case *Break:
		p.line("break")
	case *Continue:
		p.line("continue")
	case *Comment:
		p.line("-- %s", x.Text)
	default:
		panic(fmt.Sprintf("unexpected statement type %T", s))
	}
}

// statementLine writes a statement that may start with a parenthesis. A
// leading ';' keeps it from being read as a call on the previous line.
func (p *printer) statementLine(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if strings.HasPrefix(text, "(") {
		text = ";" + text
	}
	p.line("%s", text)
}

// functionStatement recognises 't.a.b = function() end' so it can be
// written as 'function t.a.b() end'.
func functionStatement(a *Assign) (string, *Function, bool) {
	if len(a.Targets) != 1 || len(a.Values) != 1 {
		return "", nil, false
	}
	fe, ok := a.Values[0].(*FunctionExpr)
	if !ok || fe.Func == nil {
		return "", nil, false
	}
	name, ok := dottedName(a.Targets[0])
	if !ok {
		return "", nil, false
	}
	return name, fe.Func, true
}

func dottedName(e Expr) (string, bool) {
	switch x := e.(type) {
	case *Name:
		return x.Name, true
	case *Index:
		key, ok := x.Key.(*String)
		if !ok || !IsName(key.Value) {
			return "", false
		}
		base, ok := dottedName(x.Obj)
		if !ok {
			return "", false
		}
		return base + "." + key.Value, true
	}
	return "", false
}

func params(f *Function) string {
	ps := append([]string(nil), f.Params...)
	if f.IsVararg {
		ps = append(ps, "...")
	}
	return strings.Join(ps, ", ")
}

func (p *printer) list(es []Expr) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = p.expr(e)
	}
	return strings.Join(parts, ", ")
}

func (p *printer) expr(e Expr) string {
	s, _ := p.render(e)
	return s
}

// operand renders e, parenthesized when it binds looser than min.
func (p *printer) operand(e Expr, min int) string {
	s, prec := p.render(e)
	if prec < min {
		return "(" + s + ")"
	}
	return s
}

// prefix renders e in a position that requires a prefix expression: the
// callee of a call or the object of an index.
func (p *printer) prefix(e Expr) string {
	switch e.(type) {
	case *Name, *Index, *Call, *MethodCall:
		return p.expr(e)
	}
	return "(" + p.expr(e) + ")"
}

// render returns the source text of e and its precedence.
func (p *printer) render(e Expr) (string, int) {
	switch x := e.(type) {
	case *Nil:
		return "nil", precAtom
	case *Bool:
		return strconv.FormatBool(x.Value), precAtom
	case *Number:
		return formatNumber(x.Value)
	case *String:
		return Quote(x.Value), precAtom
	case *Vararg:
		return "...", precAtom
	case *Name:
		return x.Name, precAtom
	case *Index:
		if key, ok := x.Key.(*String); ok && IsName(key.Value) {
			return p.prefix(x.Obj) + "." + key.Value, precAtom
		}
		return p.prefix(x.Obj) + "[" + p.expr(x.Key) + "]", precAtom
	case *Call:
		return p.prefix(x.Fn) + "(" + p.list(x.Args) + ")", precAtom
	case *MethodCall:
		return p.prefix(x.Obj) + ":" + x.Method + "(" + p.list(x.Args) + ")", precAtom
	case *Binary:
		prec, ok := binaryPrecedence[x.Op]
		if !ok {
			panic(fmt.Sprintf("unknown binary operator %q", x.Op))
		}
		lmin, rmin := prec, prec+1
		if rightAssociative(x.Op) {
			lmin, rmin = prec+1, prec
		}
		return p.operand(x.Left, lmin) + " " + x.Op + " " + p.operand(x.Right, rmin), prec
	case *Unary:
		operand := p.operand(x.X, precUnary)
		switch {
		case x.Op == "not":
			return "not " + operand, precUnary
		case x.Op == "-" && strings.HasPrefix(operand, "-"):
			return "- " + operand, precUnary
		}
		return x.Op + operand, precUnary
	case *FunctionExpr:
		return p.function(x), precAtom
	case *Table:
		return p.table(x), precAtom
	default:
		panic(fmt.Sprintf("unexpected expression type %T", e))
	}
}

func (p *printer) function(x *FunctionExpr) string {
	if x.Func == nil {
		return fmt.Sprintf("function() --[[ function %d ]] end", x.ID)
	}
	inner := &printer{depth: p.depth}
	inner.block(x.Func.Body)
	if inner.b.Len() == 0 {
		return "function(" + params(x.Func) + ") end"
	}
	return "function(" + params(x.Func) + ")\n" + inner.b.String() + strings.Repeat("\t", p.depth) + "end"
}

func (p *printer) table(t *Table) string {
	if len(t.Fields) == 0 {
		return "{}"
	}
	parts := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		switch key := f.Key.(type) {
		case nil:
			parts[i] = p.expr(f.Value)
		case *String:
			if IsName(key.Value) {
				parts[i] = key.Value + " = " + p.expr(f.Value)
				continue
			}
			parts[i] = "[" + p.expr(key) + "] = " + p.expr(f.Value)
		default:
			parts[i] = "[" + p.expr(key) + "] = " + p.expr(f.Value)
		}
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func formatNumber(n float64) (string, int) {
	switch {
	case math.IsNaN(n):
		return "0 / 0", precMul
	case math.IsInf(n, 1):
		return "1 / 0", precMul
	case math.IsInf(n, -1):
		return "-1 / 0", precMul
	case n == math.Trunc(n) && math.Abs(n) < 1e15:
		if n == 0 && math.Signbit(n) {
			return "-0", precUnary
		}
		return strconv.FormatInt(int64(n), 10), atomOrNegative(n)
	}
	return strconv.FormatFloat(n, 'g', -1, 64), atomOrNegative(n)
}

// atomOrNegative keeps '-2 ^ 2' from printing where '(-2) ^ 2' is meant.
func atomOrNegative(n float64) int {
	if n < 0 {
		return precUnary
	}
	return precAtom
}

func (f *Function) String() string {
	p := &printer{}
	if f.Body != nil {
		p.stmts(f.Body.Stmts)
	}
	return p.b.String()
}

func (b *Block) String() string {
	p := &printer{}
	p.stmts(b.Stmts)
	return p.b.String()
}

func stmtString(s Stmt) string {
	p := &printer{}
	p.stmt(s)
	return strings.TrimSuffix(p.b.String(), "\n")
}

func exprString(e Expr) string {
	p := &printer{}
	return p.expr(e)
}

func (s *LocalAssign) String() string { return stmtString(s) }
func (s *Assign) String() string      { return stmtString(s) }
func (s *CallStmt) String() string    { return stmtString(s) }
func (s *Return) String() string      { return stmtString(s) }
func (s *If) String() string          { return stmtString(s) }
func (s *While) String() string       { return stmtString(s) }
func (s *Repeat) String() string      { return stmtString(s) }
func (s *NumericFor) String() string  { return stmtString(s) }
func (s *GenericFor) String() string  { return stmtString(s) }
func (s *Break) String() string       { return stmtString(s) }
func (s *Continue) String() string    { return stmtString(s) }
func (s *Comment) String() string     { return stmtString(s) }

func (e *Nil) String() string          { return exprString(e) }
func (e *Bool) String() string         { return exprString(e) }
func (e *Number) String() string       { return exprString(e) }
func (e *String) String() string       { return exprString(e) }
func (e *Vararg) String() string       { return exprString(e) }
func (e *Name) String() string         { return exprString(e) }
func (e *Index) String() string        { return exprString(e) }
func (e *Call) String() string         { return exprString(e) }
func (e *MethodCall) String() string   { return exprString(e) }
func (e *Binary) String() string       { return exprString(e) }
func (e *Unary) String() string        { return exprString(e) }
func (e *FunctionExpr) String() string { return exprString(e) }
func (e *Table) String() string        { return exprString(e) }
