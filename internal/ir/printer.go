package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Printer renders IR in a compact debugging form.
type Printer struct {
	indent int
	output strings.Builder
}

// NewPrinter creates a new IR printer
func NewPrinter() *Printer {
	return &Printer{indent: 0}
}

// Print returns the IR dump of f and its closures.
func Print(f *Function) string {
	p := NewPrinter()
	p.printFunction(f)
	return p.output.String()
}

// Helper methods

func (p *Printer) writeIndent() {
	for i := 0; i < p.indent; i++ {
		p.output.WriteString("  ")
	}
}

func (p *Printer) writeLine(format string, args ...interface{}) {
	p.writeIndent()
	p.output.WriteString(fmt.Sprintf(format, args...))
	p.output.WriteString("\n")
}

func (p *Printer) printFunction(f *Function) {
	p.writeLine("function %d (params %d, upvalues %d, ssa %t)", f.ID, f.NumParams, f.UpValueCount, f.IsSSA)
	p.indent++
	if f.BlockCount() == 0 {
		for _, inst := range f.Instructions {
			p.writeLine("%s", FormatInstruction(inst))
		}
	}
	for _, b := range f.Blocks() {
		p.writeLine("block %d: preds %s succs %s", b.ID, formatIDs(b.Predecessors), formatIDs(b.Successors))
		p.indent++
		for _, inst := range b.Instructions {
			p.writeLine("%s", FormatInstruction(inst))
		}
		p.indent--
	}
	for _, c := range f.Closures {
		p.printFunction(c)
	}
	p.indent--
}

func formatIDs(ids []BlockID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(int(id))
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// FormatInstruction renders one instruction on a single line.
func FormatInstruction(inst Instruction) string {
	switch x := inst.(type) {
	case *Assignment:
		return formatAssignment(x)
	case *Phi:
		ops := make([]string, len(x.Operands))
		for i, op := range x.Operands {
			ops[i] = fmt.Sprintf("%s@%d", op.Value, op.Pred)
		}
		return fmt.Sprintf("%s = phi(%s)", x.Left, strings.Join(ops, ", "))
	case *Return:
		s := "return"
		if len(x.Values) > 0 {
			s += " " + formatList(x.Values)
		}
		if x.IsTailReturn {
			s += " [tail]"
		}
		return s
	case *Label:
		return fmt.Sprintf("L%d:", x.Label)
	case *Jump:
		if x.Dest != NoBlock {
			return fmt.Sprintf("jmp block %d", x.Dest)
		}
		return fmt.Sprintf("jmp L%d", x.Target)
	case *ConditionalJump:
		s := fmt.Sprintf("if %s goto ", FormatExpression(x.Condition))
		if x.Dest != NoBlock {
			s += fmt.Sprintf("block %d", x.Dest)
		} else {
			s += fmt.Sprintf("L%d", x.Target)
		}
		if x.OnTaken != nil {
			s += " with " + formatAssignment(x.OnTaken)
		}
		return s
	case *IfStatement:
		kw := "if"
		if x.IsElseIf {
			kw = "elseif"
		}
		return fmt.Sprintf("%s %s then %d else %d follow %d", kw, FormatExpression(x.Condition), x.True, x.False, x.Follow)
	case *While:
		if x.IsPostTested {
			return fmt.Sprintf("repeat %d until %s follow %d latch %d", x.Body, FormatExpression(x.Condition), x.Follow, x.Latch)
		}
		return fmt.Sprintf("while %s do %d follow %d", FormatExpression(x.Condition), x.Body, x.Follow)
	case *NumericFor:
		init := "?"
		if x.Initial != nil {
			init = formatAssignment(x.Initial)
		}
		return fmt.Sprintf("for %s, %s, %s do %d follow %d", init, FormatExpression(x.Limit), FormatExpression(x.Increment), x.Body, x.Follow)
	case *GenericFor:
		return fmt.Sprintf("for %s in %s do %d follow %d", formatLeft(x.Vars), formatList(x.Values), x.Body, x.Follow)
	case *Break:
		return "break"
	case *Continue:
		return "continue"
	case *ClosureBinding:
		return fmt.Sprintf("bind %s", x.Identifier)
	case *Data:
		return fmt.Sprintf("data %d", x.Value)
	case *Placeholder:
		return fmt.Sprintf("unimplemented %q", x.Opcode)
	case *Comment:
		return "-- " + x.Text
	default:
		panic(unknownInstruction(inst))
	}
}

func formatAssignment(a *Assignment) string {
	if len(a.Left) == 0 {
		return FormatExpression(a.Right)
	}
	s := formatLeft(a.Left)
	if a.Right != nil {
		s += " = " + FormatExpression(a.Right)
	}
	if a.IsLocalDeclaration {
		s = "local " + s
	}
	return s
}

func formatLeft(left []*IdentifierReference) string {
	parts := make([]string, len(left))
	for i, l := range left {
		parts[i] = FormatExpression(l)
	}
	return strings.Join(parts, ", ")
}

func formatList(es []Expression) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = FormatExpression(e)
	}
	return strings.Join(parts, ", ")
}

var opSymbols = map[Op]string{
	OpAdd:          "+",
	OpSub:          "-",
	OpMul:          "*",
	OpDiv:          "/",
	OpMod:          "%",
	OpPow:          "^",
	OpEqual:        "==",
	OpNotEqual:     "~=",
	OpLessThan:     "<",
	OpLessEqual:    "<=",
	OpGreaterThan:  ">",
	OpGreaterEqual: ">=",
	OpAnd:          "and",
	OpOr:           "or",
	OpLoopCompare:  "forloop",
}

// Symbol returns the source spelling of op.
func (op Op) Symbol() string { return opSymbols[op] }

// Symbol returns the source spelling of op.
func (op UnaryOperator) Symbol() string {
	switch op {
	case OpNot:
		return "not "
	case OpNegate:
		return "-"
	default:
		return "#"
	}
}

// FormatConstant renders a literal.
func FormatConstant(c *Constant) string {
	switch c.Kind {
	case ConstNil:
		return "nil"
	case ConstBool:
		return strconv.FormatBool(c.Bool)
	case ConstNumber:
		return FormatNumber(c.Number)
	default:
		return strconv.Quote(c.String)
	}
}

// FormatNumber renders n without a trailing fraction when integral.
func FormatNumber(n float64) string {
	if n == float64(int64(n)) && n < 1e15 && n > -1e15 {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// FormatExpression renders e fully parenthesized.
func FormatExpression(e Expression) string {
	switch x := e.(type) {
	case nil:
		return "<nil>"
	case *Constant:
		return FormatConstant(x)
	case *IdentifierReference:
		s := x.Identifier.String()
		for _, idx := range x.TableIndices {
			s += "[" + FormatExpression(idx) + "]"
		}
		return s
	case *BinOp:
		return fmt.Sprintf("(%s %s %s)", FormatExpression(x.Left), x.Op.Symbol(), FormatExpression(x.Right))
	case *UnaryOp:
		return x.Op.Symbol() + FormatExpression(x.Expr)
	case *Concat:
		parts := make([]string, len(x.Exprs))
		for i, sub := range x.Exprs {
			parts[i] = FormatExpression(sub)
		}
		return "(" + strings.Join(parts, " .. ") + ")"
	case *FunctionCall:
		return FormatExpression(x.Function) + "(" + formatList(x.Args) + ")"
	case *Closure:
		if x.Function == nil {
			return "closure ?"
		}
		return fmt.Sprintf("closure %d", x.Function.ID)
	case *InitializerList:
		parts := make([]string, len(x.Entries))
		for i, en := range x.Entries {
			if en.Key != nil {
				parts[i] = "[" + FormatExpression(en.Key) + "] = " + FormatExpression(en.Value)
			} else {
				parts[i] = FormatExpression(en.Value)
			}
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		panic(unknownExpression(e))
	}
}
