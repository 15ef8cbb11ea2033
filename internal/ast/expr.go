package ast

type Nil struct{}

type Bool struct {
	Value bool
}

type Number struct {
	Value float64
}

type String struct {
	Value string
}

type Vararg struct{}

// Name is a reference to a local, upvalue or global.
type Name struct {
	Name string
}

// Index is Obj[Key], printed as Obj.Key when Key is a valid name.
type Index struct {
	Obj Expr
	Key Expr
}

type Call struct {
	Fn   Expr
	Args []Expr
}

// MethodCall is Obj:Method(Args).
type MethodCall struct {
	Obj    Expr
	Method string
	Args   []Expr
}

// Binary applies a binary operator spelled as in source: "+", "..", "and".
type Binary struct {
	Op    string
	Left  Expr
	Right Expr
}

// Unary applies "not", "-" or "#".
type Unary struct {
	Op string
	X  Expr
}

// FunctionExpr is a closure. Func is filled in by Link once the child
// function has been decompiled.
type FunctionExpr struct {
	ID   int
	Func *Function
}

// Field is one entry of a table constructor. Key is nil for positional
// entries.
type Field struct {
	Key   Expr
	Value Expr
}

type Table struct {
	Fields []Field
}
