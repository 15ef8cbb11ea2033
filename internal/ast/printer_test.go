package ast

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func name(s string) *Name   { return &Name{Name: s} }
func num(n float64) *Number { return &Number{Value: n} }
func str(s string) *String  { return &String{Value: s} }
func bin(op string, l, r Expr) *Binary {
	return &Binary{Op: op, Left: l, Right: r}
}

func TestBinaryPrecedence(t *testing.T) {
	tests := []struct {
		expr Expr
		want string
	}{
		{bin("+", name("a"), bin("*", name("b"), name("c"))), "a + b * c"},
		{bin("*", bin("+", name("a"), name("b")), name("c")), "(a + b) * c"},
		{bin("-", name("a"), bin("-", name("b"), name("c"))), "a - (b - c)"},
		{bin("-", bin("-", name("a"), name("b")), name("c")), "a - b - c"},
		{bin("..", name("a"), bin("..", name("b"), name("c"))), "a .. b .. c"},
		{bin("..", bin("..", name("a"), name("b")), name("c")), "(a .. b) .. c"},
		{bin("^", name("a"), bin("^", name("b"), name("c"))), "a ^ b ^ c"},
		{bin("or", bin("and", name("a"), name("b")), name("c")), "a and b or c"},
		{bin("and", bin("or", name("a"), name("b")), name("c")), "(a or b) and c"},
		{bin("==", bin("+", name("a"), num(1)), num(2)), "a + 1 == 2"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.expr.String())
	}
}

func TestUnary(t *testing.T) {
	assert.Equal(t, "not a", (&Unary{Op: "not", X: name("a")}).String())
	assert.Equal(t, "not (a and b)", (&Unary{Op: "not", X: bin("and", name("a"), name("b"))}).String())
	assert.Equal(t, "#t", (&Unary{Op: "#", X: name("t")}).String())
	assert.Equal(t, "- -a", (&Unary{Op: "-", X: &Unary{Op: "-", X: name("a")}}).String())
	assert.Equal(t, "-a ^ 2", (&Unary{Op: "-", X: bin("^", name("a"), num(2))}).String())
	assert.Equal(t, "(-a) ^ 2", bin("^", &Unary{Op: "-", X: name("a")}, num(2)).String())
}

func TestNumbers(t *testing.T) {
	assert.Equal(t, "42", num(42).String())
	assert.Equal(t, "0.5", num(0.5).String())
	assert.Equal(t, "-3", num(-3).String())
	assert.Equal(t, "1 / 0", num(math.Inf(1)).String())
	assert.Equal(t, "0 / 0", num(math.NaN()).String())
	assert.Equal(t, "(-2) ^ 2", bin("^", num(-2), num(2)).String())
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `"hello"`, Quote("hello"))
	assert.Equal(t, `"a\"b\\c"`, Quote(`a"b\c`))
	assert.Equal(t, `"line\nnext\ttab"`, Quote("line\nnext\ttab"))
	assert.Equal(t, `"\0001"`, Quote("\x001"))
	assert.Equal(t, `"\195\169"`, Quote("é"))
}

func TestIsName(t *testing.T) {
	assert.True(t, IsName("foo"))
	assert.True(t, IsName("_bar9"))
	assert.False(t, IsName("9lives"))
	assert.False(t, IsName("end"))
	assert.False(t, IsName("a-b"))
	assert.False(t, IsName(""))
}

func TestIndexAndCalls(t *testing.T) {
	assert.Equal(t, "t.field", (&Index{Obj: name("t"), Key: str("field")}).String())
	assert.Equal(t, `t["not a name"]`, (&Index{Obj: name("t"), Key: str("not a name")}).String())
	assert.Equal(t, "t[1]", (&Index{Obj: name("t"), Key: num(1)}).String())
	assert.Equal(t, `("abc"):upper()`, (&MethodCall{Obj: str("abc"), Method: "upper"}).String())
	assert.Equal(t, "obj:send(1, ...)", (&MethodCall{Obj: name("obj"), Method: "send", Args: []Expr{num(1), &Vararg{}}}).String())
	assert.Equal(t, "f(a)(b)", (&Call{Fn: &Call{Fn: name("f"), Args: []Expr{name("a")}}, Args: []Expr{name("b")}}).String())
}

func TestTable(t *testing.T) {
	tbl := &Table{Fields: []Field{
		{Value: num(1)},
		{Value: num(2)},
		{Key: str("x"), Value: &Bool{Value: true}},
		{Key: str("two words"), Value: &Nil{}},
		{Key: num(10), Value: str("ten")},
	}}
	assert.Equal(t, `{1, 2, x = true, ["two words"] = nil, [10] = "ten"}`, tbl.String())
	assert.Equal(t, "{}", (&Table{}).String())
}

func TestStatements(t *testing.T) {
	body := &Block{Stmts: []Stmt{
		&LocalAssign{Names: []string{"x"}, Values: []Expr{num(0)}},
		&LocalAssign{Names: []string{"y", "z"}},
		&If{
			Cond: bin("<", name("x"), num(1)),
			Then: &Block{Stmts: []Stmt{&Assign{Targets: []Expr{name("y")}, Values: []Expr{num(1)}}}},
			ElseIfs: []ElseIf{{
				Cond: bin("==", name("x"), num(2)),
				Body: &Block{Stmts: []Stmt{&Assign{Targets: []Expr{name("y")}, Values: []Expr{num(2)}}}},
			}},
			Else: &Block{Stmts: []Stmt{&CallStmt{Call: &Call{Fn: name("print"), Args: []Expr{name("x")}}}}},
		},
		&NumericFor{Var: "i", Start: num(1), Limit: num(10), Body: &Block{Stmts: []Stmt{&Break{}}}},
		&GenericFor{
			Vars:   []string{"k", "v"},
			Values: []Expr{&Call{Fn: name("pairs"), Args: []Expr{name("t")}}},
			Body:   &Block{},
		},
		&Repeat{Body: &Block{Stmts: []Stmt{&Comment{Text: "block 4"}}}, Cond: &Bool{Value: true}},
		&Return{Values: []Expr{name("y")}},
	}}

	expected := "local x = 0\n" +
		"local y, z\n" +
		"if x < 1 then\n" +
		"\ty = 1\n" +
		"elseif x == 2 then\n" +
		"\ty = 2\n" +
		"else\n" +
		"\tprint(x)\n" +
		"end\n" +
		"for i = 1, 10 do\n" +
		"\tbreak\n" +
		"end\n" +
		"for k, v in pairs(t) do\n" +
		"end\n" +
		"repeat\n" +
		"\t-- block 4\n" +
		"until true\n" +
		"return y\n"
	assert.Equal(t, expected, body.String())
}

func TestFunctionStatementAndExpression(t *testing.T) {
	child := &Function{
		ID:       1,
		Params:   []string{"self", "n"},
		IsVararg: true,
		Body:     &Block{Stmts: []Stmt{&Return{Values: []Expr{name("n")}}}},
	}
	stmt := &Assign{
		Targets: []Expr{&Index{Obj: name("M"), Key: str("get")}},
		Values:  []Expr{&FunctionExpr{ID: 1, Func: child}},
	}
	assert.Equal(t, "function M.get(self, n, ...)\n\treturn n\nend", stmt.String())

	local := &LocalAssign{Names: []string{"f"}, Values: []Expr{&FunctionExpr{ID: 1, Func: child}}}
	assert.Equal(t, "local f = function(self, n, ...)\n\treturn n\nend", local.String())

	unlinked := &FunctionExpr{ID: 7}
	assert.Equal(t, "function() --[[ function 7 ]] end", unlinked.String())
}

func TestParenthesizedStatementStart(t *testing.T) {
	call := &CallStmt{Call: &Call{Fn: bin("or", name("f"), name("g"))}}
	assert.Equal(t, ";(f or g)()", call.String())
}
