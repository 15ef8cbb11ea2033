package ast

// Function is a decompiled function. The main chunk has ID 0.
type Function struct {
	ID       int
	Params   []string
	IsVararg bool
	Body     *Block
}

// Block is a sequence of statements.
type Block struct {
	Stmts []Stmt
}

// LocalAssign is 'local a, b = x, y'. Values may be empty.
type LocalAssign struct {
	Names  []string
	Values []Expr
}

// Assign is 'a, t.b = x, y'.
type Assign struct {
	Targets []Expr
	Values  []Expr
}

// CallStmt is a call whose results are discarded.
type CallStmt struct {
	Call Expr
}

type Return struct {
	Values []Expr
}

// ElseIf is one 'elseif cond then' arm of an If.
type ElseIf struct {
	Cond Expr
	Body *Block
}

// If is a conditional. Else is nil when absent.
type If struct {
	Cond    Expr
	Then    *Block
	ElseIfs []ElseIf
	Else    *Block
}

type While struct {
	Cond Expr
	Body *Block
}

// Repeat is 'repeat ... until Cond'.
type Repeat struct {
	Body *Block
	Cond Expr
}

// NumericFor is 'for Var = Start, Limit, Step do'. Step is nil when it is
// the default of 1.
type NumericFor struct {
	Var   string
	Start Expr
	Limit Expr
	Step  Expr
	Body  *Block
}

// GenericFor is 'for a, b in explist do'.
type GenericFor struct {
	Vars   []string
	Values []Expr
	Body   *Block
}

type Break struct{}

type Continue struct{}

// Comment is a line comment without the leading dashes.
type Comment struct {
	Text string
}
