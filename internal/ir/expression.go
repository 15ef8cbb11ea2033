package ir

// Expression is the closed set of expression nodes. The marker method keeps
// the set closed to this package so every operation can switch over it
// exhaustively.
type Expression interface {
	isExpression()
}

// ConstantKind tags the value held by a Constant.
type ConstantKind uint8

const (
	ConstNil ConstantKind = iota
	ConstBool
	ConstNumber
	ConstString
)

// Constant is a literal value, optionally tied to an entry of the
// function's constants table.
type Constant struct {
	Kind   ConstantKind
	Bool   bool
	Number float64
	String string
	// ID is the constants table index, or -1 for synthesized literals.
	ID int
}

// IdentifierReference reads an identifier. With TableIndices it is a table
// access: the base identifier is a use, and each index is an expression.
type IdentifierReference struct {
	Identifier   Identifier
	TableIndices []Expression
	// IsSelfCall marks the callee of a method call written with ':'.
	IsSelfCall bool
}

// HasIndex reports whether the reference is a table access.
func (r *IdentifierReference) HasIndex() bool { return len(r.TableIndices) > 0 }

// Op enumerates binary operators.
type Op uint8

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpEqual
	OpNotEqual
	OpLessThan
	OpLessEqual
	OpGreaterThan
	OpGreaterEqual
	OpAnd
	OpOr
	// OpLoopCompare is the bound test of a numeric for loop. Its sign
	// depends on the step, so it has no source spelling.
	OpLoopCompare
)

// BinOp applies Op to two operands.
type BinOp struct {
	Left  Expression
	Right Expression
	Op    Op
}

// UnaryOperator enumerates unary operators.
type UnaryOperator uint8

const (
	OpNot UnaryOperator = iota
	OpNegate
	OpLength
)

// UnaryOp applies a unary operator.
type UnaryOp struct {
	Expr Expression
	Op   UnaryOperator
}

// Concat joins its operands with '..'.
type Concat struct {
	Exprs []Expression
}

// FunctionCall calls Function with Args.
type FunctionCall struct {
	Function Expression
	Args     []Expression
	// HasAmbiguousArgumentCount marks a call whose trailing argument list
	// runs up to the top of the stack set by an earlier open call.
	HasAmbiguousArgumentCount bool
	// HasAmbiguousReturnCount marks a call that leaves all its results on
	// the stack.
	HasAmbiguousReturnCount bool
	// BeginArg is the first argument register.
	BeginArg uint32
	// FunctionDefIndex is the instruction index at which the callee was
	// loaded, or -1 if unknown.
	FunctionDefIndex int
}

// Closure instantiates a child function.
type Closure struct {
	Function *Function
}

// ListEntry is one field of a table constructor. Key is nil for positional
// entries.
type ListEntry struct {
	Key   Expression
	Value Expression
}

// InitializerList is a table constructor.
type InitializerList struct {
	Entries []ListEntry
}

func (*Constant) isExpression()            {}
func (*IdentifierReference) isExpression() {}
func (*BinOp) isExpression()               {}
func (*UnaryOp) isExpression()             {}
func (*Concat) isExpression()              {}
func (*FunctionCall) isExpression()        {}
func (*Closure) isExpression()             {}
func (*InitializerList) isExpression()     {}

// Nil returns a nil literal.
func Nil() *Constant { return &Constant{Kind: ConstNil, ID: -1} }

// Bool returns a boolean literal.
func Bool(b bool) *Constant { return &Constant{Kind: ConstBool, Bool: b, ID: -1} }

// Number returns a numeric literal.
func Number(n float64) *Constant { return &Constant{Kind: ConstNumber, Number: n, ID: -1} }

// String returns a string literal.
func String(s string) *Constant { return &Constant{Kind: ConstString, String: s, ID: -1} }

// Ref returns an unindexed reference to id.
func Ref(id Identifier) *IdentifierReference {
	return &IdentifierReference{Identifier: id}
}

// Index returns a table access id[keys...].
func Index(id Identifier, keys ...Expression) *IdentifierReference {
	return &IdentifierReference{Identifier: id, TableIndices: keys}
}

// Not negates e. Double negation folds, comparisons invert, and 'and'
// and 'or' chains are negated with De Morgan's laws.
func Not(e Expression) Expression {
	switch x := e.(type) {
	case *UnaryOp:
		if x.Op == OpNot {
			return x.Expr
		}
	case *BinOp:
		if inv, ok := invertedComparison[x.Op]; ok {
			return &BinOp{Left: x.Left, Right: x.Right, Op: inv}
		}
		switch x.Op {
		case OpAnd:
			return &BinOp{Left: Not(x.Left), Right: Not(x.Right), Op: OpOr}
		case OpOr:
			return &BinOp{Left: Not(x.Left), Right: Not(x.Right), Op: OpAnd}
		}
	case *Constant:
		if x.Kind == ConstBool {
			return Bool(!x.Bool)
		}
	}
	return &UnaryOp{Expr: e, Op: OpNot}
}

var invertedComparison = map[Op]Op{
	OpEqual:        OpNotEqual,
	OpNotEqual:     OpEqual,
	OpLessThan:     OpGreaterEqual,
	OpLessEqual:    OpGreaterThan,
	OpGreaterThan:  OpLessEqual,
	OpGreaterEqual: OpLessThan,
}

// CloneExpression returns a deep copy of e. Closures share their function.
func CloneExpression(e Expression) Expression {
	switch x := e.(type) {
	case nil:
		return nil
	case *Constant:
		c := *x
		return &c
	case *IdentifierReference:
		return &IdentifierReference{
			Identifier:   x.Identifier,
			TableIndices: cloneExpressions(x.TableIndices),
			IsSelfCall:   x.IsSelfCall,
		}
	case *BinOp:
		return &BinOp{Left: CloneExpression(x.Left), Right: CloneExpression(x.Right), Op: x.Op}
	case *UnaryOp:
		return &UnaryOp{Expr: CloneExpression(x.Expr), Op: x.Op}
	case *Concat:
		return &Concat{Exprs: cloneExpressions(x.Exprs)}
	case *FunctionCall:
		c := *x
		c.Function = CloneExpression(x.Function)
		c.Args = cloneExpressions(x.Args)
		return &c
	case *Closure:
		return &Closure{Function: x.Function}
	case *InitializerList:
		entries := make([]ListEntry, len(x.Entries))
		for i, en := range x.Entries {
			entries[i] = ListEntry{Key: CloneExpression(en.Key), Value: CloneExpression(en.Value)}
		}
		return &InitializerList{Entries: entries}
	default:
		panic(unknownExpression(e))
	}
}

func cloneExpressions(es []Expression) []Expression {
	if es == nil {
		return nil
	}
	out := make([]Expression, len(es))
	for i, e := range es {
		out[i] = CloneExpression(e)
	}
	return out
}
