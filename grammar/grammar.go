package grammar

import (
	"fmt"
	"strconv"
	"strings"

	"fortio.org/safecast"
	"github.com/alecthomas/participle/v2/lexer"
)

// Listing is a parsed lifter listing: a header and the main function,
// which nests every closure.
type Listing struct {
	Pos    lexer.Position
	Header *Header   `@@`
	Main   *Function `@@`
}

// FunctionLines maps each function id to the line of its header.
func (l *Listing) FunctionLines() map[int]int {
	out := make(map[int]int)
	var walk func(f *Function)
	walk = func(f *Function) {
		if f == nil {
			return
		}
		out[f.ID] = f.Pos.Line
		for _, child := range f.Children {
			walk(child)
		}
	}
	walk(l.Main)
	return out
}

type Header struct {
	Pos     lexer.Position
	Name    string `"chunk" @String`
	Version string `"version" @String`
	Dialect string `[ "dialect" @String ]`
}

type Function struct {
	Pos          lexer.Position
	EndPos       lexer.Position
	ID           int             `"function" @Number`
	Params       int             `[ "params" @Number ]`
	UpValues     int             `[ "upvalues" @Number ]`
	Vararg       bool            `[ @"vararg" ] "{"`
	Constants    []*ConstEntry   `[ "constants" "{" @@* "}" ]`
	Locals       []*LocalEntry   `[ "locals" "{" @@* "}" ]`
	UpValueNames []*UpValueEntry `[ "upvalnames" "{" @@* "}" ]`
	Code         []*Line         `"code" "{" @@* "}"`
	Children     []*Function     `@@* "}"`
}

type ConstEntry struct {
	Pos   lexer.Position
	Index Addr     `@Addr`
	Value *Literal `@@`
}

type Literal struct {
	Nil    bool     `  @"nil"`
	True   bool     `| @"true"`
	False  bool     `| @"false"`
	Str    *string  `| @String`
	Neg    bool     `| ( @"-"?`
	Number *float64 `    @Number )`
}

type LocalEntry struct {
	Pos      lexer.Position
	Name     string   `@String`
	Register Register `@Register`
	Begin    int      `@Number`
	End      int      `@Number`
}

type UpValueEntry struct {
	Index Addr   `@Addr`
	Name  string `@String`
}

// Line is one lifted instruction with its address.
type Line struct {
	Pos  lexer.Position
	Addr Addr `@Addr`
	Op   *Op  `@@`
}

type Op struct {
	Jump   *JumpOp   `  @@`
	If     *IfOp     `| @@`
	Return *ReturnOp `| @@`
	Bind   *BindOp   `| @@`
	Data   *DataOp   `| @@`
	Unimpl *UnimplOp `| @@`
	Call   *CallOp   `| @@`
	Assign *AssignOp `| @@`
}

type JumpOp struct {
	Target int `"jmp" @Number`
}

// IfOp jumps to Target when Cond holds. With executes only on the taken
// edge.
type IfOp struct {
	Cond   *Expr     `"if" @@`
	Target int       `"goto" @Number`
	With   *AssignOp `[ "with" @@ ]`
}

type ReturnOp struct {
	Values []*Expr `"return" [ @@ { "," @@ } ]`
	Flags  []*Flag `@Flag*`
}

type BindOp struct {
	Target *Base `"bind" @@`
}

type DataOp struct {
	Value int `"data" @Number`
}

type UnimplOp struct {
	Opcode string `"unimplemented" @String`
}

type CallOp struct {
	Call  *Call   `@@`
	Flags []*Flag `@Flag*`
}

type AssignOp struct {
	Pos     lexer.Position
	Targets []*Target `@@ { "," @@ }`
	Value   *Expr     `"=" @@`
	Flags   []*Flag   `@Flag*`
}

// Target is an assignment destination. Open marks 'rN... = ...', which
// writes every vararg from rN up.
type Target struct {
	Ref  *Reference `@@`
	Open bool       `[ @"..." ]`
}

// Expr is a flat operand/operator chain. Binary precedence is resolved by
// the loader with Lua's rules; unary operators bind to their operand.
type Expr struct {
	Pos  lexer.Position
	Left *Unary        `@@`
	Ops  []*BinaryTail `@@*`
}

type BinaryTail struct {
	Op    string `@("or" | "and" | "==" | "~=" | "<=" | ">=" | "<" | ">" | "forloop" | ".." | "+" | "-" | "*" | "/" | "%" | "^")`
	Right *Unary `@@`
}

type Unary struct {
	Ops     []string `@("not" | "-" | "#")*`
	Operand *Primary `@@`
}

type Primary struct {
	Pos     lexer.Position
	Nil     bool       `  @"nil"`
	True    bool       `| @"true"`
	False   bool       `| @"false"`
	Number  *float64   `| @Number`
	Str     *string    `| @String`
	Const   *ConstRef  `| @Const`
	Vararg  bool       `| @"..."`
	Closure *int       `| "closure" @Number`
	Call    *Call      `| @@`
	Table   *Table     `| @@`
	Ref     *Reference `| @@`
	Sub     *Expr      `| "(" @@ ")"`
}

type Call struct {
	Callee *Reference `"call" @@`
	Args   []*Expr    `"(" [ @@ { "," @@ } ] ")"`
}

type Table struct {
	Entries []*TableEntry `"{" [ @@ { "," @@ } ] "}"`
}

type TableEntry struct {
	Key   *Expr `[ "[" @@ "]" "=" ]`
	Value *Expr `@@`
}

type Reference struct {
	Pos     lexer.Position
	Base    *Base          `@@`
	Indices []*IndexSuffix `@@*`
}

type Base struct {
	Register *Register   `  @Register`
	UpValue  *UpValueRef `| @UpValue`
	Global   *GlobalName `| @Global`
	Globals  bool        `| @"globals"`
}

type IndexSuffix struct {
	Key   *Expr  `  "[" @@ "]"`
	Field string `| "." @Ident`
}

// Register captures "r12" as 12.
type Register uint32

func (r *Register) Capture(values []string) error {
	n, err := operandNumber(values[0], "r")
	*r = Register(n)
	return err
}

// UpValueRef captures "u3" as 3.
type UpValueRef uint32

func (u *UpValueRef) Capture(values []string) error {
	n, err := operandNumber(values[0], "u")
	*u = UpValueRef(n)
	return err
}

// ConstRef captures "k7" as 7.
type ConstRef uint32

func (k *ConstRef) Capture(values []string) error {
	n, err := operandNumber(values[0], "k")
	*k = ConstRef(n)
	return err
}

// GlobalName captures "$print" or `$"odd name"` as the bare name.
type GlobalName string

func (g *GlobalName) Capture(values []string) error {
	name := strings.TrimPrefix(values[0], "$")
	if strings.HasPrefix(name, `"`) {
		unquoted, err := strconv.Unquote(name)
		if err != nil {
			return fmt.Errorf("invalid global name %s: %w", values[0], err)
		}
		name = unquoted
	}
	*g = GlobalName(name)
	return nil
}

// Addr captures "12:" as 12.
type Addr int

func (a *Addr) Capture(values []string) error {
	n, err := strconv.Atoi(strings.TrimSuffix(values[0], ":"))
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", values[0], err)
	}
	*a = Addr(n)
	return nil
}

// Flag is an instruction annotation such as [local] or [openargs 3].
type Flag struct {
	Name string
	Arg  int
}

func (f *Flag) Capture(values []string) error {
	fields := strings.Fields(strings.Trim(values[0], "[]"))
	f.Name = fields[0]
	if len(fields) > 1 {
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("invalid flag %s: %w", values[0], err)
		}
		f.Arg = n
	}
	return nil
}

func operandNumber(token, prefix string) (uint32, error) {
	n, err := strconv.ParseUint(strings.TrimPrefix(token, prefix), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid operand %q: %w", token, err)
	}
	v, err := safecast.Conv[uint32](n)
	if err != nil {
		return 0, fmt.Errorf("operand %q out of range: %w", token, err)
	}
	return v, nil
}
