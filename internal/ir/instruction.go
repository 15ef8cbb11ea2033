package ir

// LabelID names a jump target before the control-flow graph exists.
type LabelID int

// Meta is carried by every instruction.
type Meta struct {
	// Begin and End delimit the lifted instruction indices this instruction
	// covers. Expression propagation leaves them untouched.
	Begin, End int
	// Line is the listing line the instruction was lifted from, or 0.
	Line int
}

// Info returns the instruction's metadata.
func (m *Meta) Info() *Meta { return m }

// PrePropagationIndex is the lifted index of the instruction before any
// expression was folded into it.
func (m *Meta) PrePropagationIndex() int { return m.Begin }

// Span returns metadata covering index i.
func Span(i int) Meta { return Meta{Begin: i, End: i} }

// Instruction is the closed set of IR instructions.
type Instruction interface {
	Info() *Meta
	isInstruction()
}

// Assignment stores Right into every reference of Left. A Left entry with
// table indices is a store into a table, not a definition.
type Assignment struct {
	Meta
	Left  []*IdentifierReference
	Right Expression
	// Locals lists the debug names of locals declared by this assignment.
	Locals []string
	// PropagateAlways forces expression propagation of this definition.
	PropagateAlways bool
	// IsLocalDeclaration marks a 'local' statement.
	IsLocalDeclaration bool
	// IsListAssignment marks a table constructor being filled; definitions
	// feeding it may be folded even when not adjacent.
	IsListAssignment bool
	// IsAmbiguousVararg marks 'rN... = ...', which sets the stack top.
	IsAmbiguousVararg bool
	// VarargAssignmentReg is the first register written by an open vararg.
	VarargAssignmentReg uint32
}

// IsSingleAssignment reports whether exactly one reference is written.
func (a *Assignment) IsSingleAssignment() bool { return len(a.Left) == 1 }

// Phi merges the versions of one register flowing in from predecessors.
type Phi struct {
	Meta
	Left     Identifier
	Operands []PhiOperand
}

// PhiOperand is the version reaching a phi along the edge from Pred.
type PhiOperand struct {
	Pred  BlockID
	Value Identifier
}

// Operand returns the value flowing in from pred.
func (p *Phi) Operand(pred BlockID) (Identifier, bool) {
	for _, op := range p.Operands {
		if op.Pred == pred {
			return op.Value, true
		}
	}
	return Identifier{}, false
}

// RemoveOperand drops the operand for pred.
func (p *Phi) RemoveOperand(pred BlockID) {
	for i, op := range p.Operands {
		if op.Pred == pred {
			p.Operands = append(p.Operands[:i], p.Operands[i+1:]...)
			return
		}
	}
}

// Return leaves the function.
type Return struct {
	Meta
	Values []Expression
	// IsTailReturn marks 'return f(...)' compiled as a tail call.
	IsTailReturn bool
	// IsAmbiguousReturnCount marks a return of everything up to stack top.
	IsAmbiguousReturnCount bool
	BeginRet               uint32
}

// Label marks a jump target in a flat instruction list.
type Label struct {
	Meta
	Label LabelID
}

// Jump is an unconditional transfer. Before the CFG is built Target names
// the label; afterwards Dest names the block.
type Jump struct {
	Meta
	Target LabelID
	Dest   BlockID
}

// ConditionalJump transfers to Target when Condition holds and falls
// through otherwise.
type ConditionalJump struct {
	Meta
	Condition Expression
	Target    LabelID
	Dest      BlockID
	// OnTaken executes only when the branch is taken. CFG construction
	// moves it to the head of the target block.
	OnTaken *Assignment
}

// IfStatement is a structured two-way conditional. False is NoBlock for an
// if without else. Follow is where both arms meet, or NoBlock when neither
// arm falls through.
type IfStatement struct {
	Meta
	Condition Expression
	True      BlockID
	False     BlockID
	Follow    BlockID
	IsElseIf  bool
}

// While is a structured loop. A post-tested loop tests Condition after the
// body and repeats until it holds. Header is the block the back edges
// return to; Latch is the block holding the test of a post-tested loop.
type While struct {
	Meta
	Condition    Expression
	Body         BlockID
	Follow       BlockID
	Header       BlockID
	Latch        BlockID
	IsPostTested bool
}

// NumericFor is 'for v = init, limit, step do ... end'.
type NumericFor struct {
	Meta
	Initial   *Assignment
	Limit     Expression
	Increment Expression
	Body      BlockID
	Follow    BlockID
	Header    BlockID
}

// GenericFor is 'for a, b in explist do ... end'.
type GenericFor struct {
	Meta
	Vars   []*IdentifierReference
	Values []Expression
	Body   BlockID
	Follow BlockID
	Header BlockID
}

// Break leaves the innermost loop.
type Break struct {
	Meta
}

// Continue starts the next iteration of the innermost loop.
type Continue struct {
	Meta
}

// ClosureBinding follows a closure creation and binds the next upvalue of
// the new closure to Identifier.
type ClosureBinding struct {
	Meta
	Identifier Identifier
}

// Data is an inline operand word some dialects place after an opcode.
type Data struct {
	Meta
	Value int64
}

// Placeholder stands for a lifted opcode that has no IR translation.
type Placeholder struct {
	Meta
	Opcode string
}

// Comment is a debug annotation emitted into the output.
type Comment struct {
	Meta
	Text string
}

func (*Assignment) isInstruction()      {}
func (*Phi) isInstruction()             {}
func (*Return) isInstruction()          {}
func (*Label) isInstruction()           {}
func (*Jump) isInstruction()            {}
func (*ConditionalJump) isInstruction() {}
func (*IfStatement) isInstruction()     {}
func (*While) isInstruction()           {}
func (*NumericFor) isInstruction()      {}
func (*GenericFor) isInstruction()      {}
func (*Break) isInstruction()           {}
func (*Continue) isInstruction()        {}
func (*ClosureBinding) isInstruction()  {}
func (*Data) isInstruction()            {}
func (*Placeholder) isInstruction()     {}
func (*Comment) isInstruction()         {}

// Assign builds a single-target assignment.
func Assign(left *IdentifierReference, right Expression) *Assignment {
	return &Assignment{Left: []*IdentifierReference{left}, Right: right}
}

// IsControl reports whether inst ends a block or structures control flow.
func IsControl(inst Instruction) bool {
	switch inst.(type) {
	case *Jump, *ConditionalJump, *Return, *IfStatement, *While, *NumericFor, *GenericFor, *Break, *Continue:
		return true
	}
	return false
}

// IsStructured reports whether inst is a post-structuring control node.
func IsStructured(inst Instruction) bool {
	switch inst.(type) {
	case *IfStatement, *While, *NumericFor, *GenericFor, *Break, *Continue:
		return true
	}
	return false
}
