package ast

// Node is any element of a decompiled Lua program.
type Node interface {
	NodeType() NodeType
	String() string
}

// Stmt is a statement node.
type Stmt interface {
	Node
	isStmt()
}

// Expr is an expression node.
type Expr interface {
	Node
	isExpr()
}

func (*Function) NodeType() NodeType { return FUNCTION }
func (*Block) NodeType() NodeType    { return BLOCK }

func (*LocalAssign) NodeType() NodeType { return LOCAL_ASSIGN }
func (*Assign) NodeType() NodeType      { return ASSIGN }
func (*CallStmt) NodeType() NodeType    { return CALL_STMT }
func (*Return) NodeType() NodeType      { return RETURN }
func (*If) NodeType() NodeType          { return IF }
func (*While) NodeType() NodeType       { return WHILE }
func (*Repeat) NodeType() NodeType      { return REPEAT }
func (*NumericFor) NodeType() NodeType  { return NUMERIC_FOR }
func (*GenericFor) NodeType() NodeType  { return GENERIC_FOR }
func (*Break) NodeType() NodeType       { return BREAK }
func (*Continue) NodeType() NodeType    { return CONTINUE }
func (*Comment) NodeType() NodeType     { return COMMENT }

func (*Nil) NodeType() NodeType          { return NIL }
func (*Bool) NodeType() NodeType         { return BOOL }
func (*Number) NodeType() NodeType       { return NUMBER }
func (*String) NodeType() NodeType       { return STRING }
func (*Vararg) NodeType() NodeType       { return VARARG }
func (*Name) NodeType() NodeType         { return NAME }
func (*Index) NodeType() NodeType        { return INDEX }
func (*Call) NodeType() NodeType         { return CALL }
func (*MethodCall) NodeType() NodeType   { return METHOD_CALL }
func (*Binary) NodeType() NodeType       { return BINARY }
func (*Unary) NodeType() NodeType        { return UNARY }
func (*FunctionExpr) NodeType() NodeType { return FUNCTION_EXPR }
func (*Table) NodeType() NodeType        { return TABLE }

func (*LocalAssign) isStmt() {}
func (*Assign) isStmt()      {}
func (*CallStmt) isStmt()    {}
func (*Return) isStmt()      {}
func (*If) isStmt()          {}
func (*While) isStmt()       {}
func (*Repeat) isStmt()      {}
func (*NumericFor) isStmt()  {}
func (*GenericFor) isStmt()  {}
func (*Break) isStmt()       {}
func (*Continue) isStmt()    {}
func (*Comment) isStmt()     {}

func (*Nil) isExpr()          {}
func (*Bool) isExpr()         {}
func (*Number) isExpr()       {}
func (*String) isExpr()       {}
func (*Vararg) isExpr()       {}
func (*Name) isExpr()         {}
func (*Index) isExpr()        {}
func (*Call) isExpr()         {}
func (*MethodCall) isExpr()   {}
func (*Binary) isExpr()       {}
func (*Unary) isExpr()        {}
func (*FunctionExpr) isExpr() {}
func (*Table) isExpr()        {}
