package ast

type NodeType int

//go:generate stringer -type=NodeType
const (
	ILLEGAL NodeType = iota

	// Top level
	FUNCTION
	BLOCK

	// Statements
	LOCAL_ASSIGN
	ASSIGN
	CALL_STMT
	RETURN
	IF
	WHILE
	REPEAT
	NUMERIC_FOR
	GENERIC_FOR
	BREAK
	CONTINUE
	COMMENT

	// Expressions
	NIL
	BOOL
	NUMBER
	STRING
	VARARG
	NAME
	INDEX
	CALL
	METHOD_CALL
	BINARY
	UNARY
	FUNCTION_EXPR
	TABLE
)
