package grammar

import (
	"fmt"
	"strconv"
	"strings"
)

func indent(level int) string {
	return strings.Repeat("  ", level)
}

func (l *Listing) String() string {
	var b strings.Builder
	b.WriteString(l.Header.String() + "\n")
	b.WriteString(l.Main.StringWithIndent(0))
	return b.String()
}

func (h *Header) String() string {
	s := fmt.Sprintf("chunk %s version %s", strconv.Quote(h.Name), strconv.Quote(h.Version))
	if h.Dialect != "" {
		s += " dialect " + strconv.Quote(h.Dialect)
	}
	return s
}

func (f *Function) StringWithIndent(level int) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%sfunction %d params %d upvalues %d", indent(level), f.ID, f.Params, f.UpValues))
	if f.Vararg {
		b.WriteString(" vararg")
	}
	b.WriteString(" {\n")

	if len(f.Constants) > 0 {
		b.WriteString(indent(level+1) + "constants {\n")
		for _, c := range f.Constants {
			b.WriteString(fmt.Sprintf("%s%d: %s\n", indent(level+2), c.Index, c.Value))
		}
		b.WriteString(indent(level+1) + "}\n")
	}
	if len(f.Locals) > 0 {
		b.WriteString(indent(level+1) + "locals {\n")
		for _, l := range f.Locals {
			b.WriteString(fmt.Sprintf("%s%s r%d %d %d\n", indent(level+2), strconv.Quote(l.Name), l.Register, l.Begin, l.End))
		}
		b.WriteString(indent(level+1) + "}\n")
	}
	if len(f.UpValueNames) > 0 {
		b.WriteString(indent(level+1) + "upvalnames {\n")
		for _, u := range f.UpValueNames {
			b.WriteString(fmt.Sprintf("%s%d: %s\n", indent(level+2), u.Index, strconv.Quote(u.Name)))
		}
		b.WriteString(indent(level+1) + "}\n")
	}

	b.WriteString(indent(level+1) + "code {\n")
	for _, line := range f.Code {
		b.WriteString(fmt.Sprintf("%s%d: %s\n", indent(level+2), line.Addr, line.Op))
	}
	b.WriteString(indent(level+1) + "}\n")

	for _, child := range f.Children {
		b.WriteString(child.StringWithIndent(level + 1))
	}
	b.WriteString(indent(level) + "}\n")
	return b.String()
}

func (l *Literal) String() string {
	switch {
	case l.Nil:
		return "nil"
	case l.True:
		return "true"
	case l.False:
		return "false"
	case l.Str != nil:
		return strconv.Quote(*l.Str)
	case l.Number != nil:
		n := formatNumber(*l.Number)
		if l.Neg {
			return "-" + n
		}
		return n
	}
	return "nil"
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

func (o *Op) String() string {
	switch {
	case o.Jump != nil:
		return fmt.Sprintf("jmp %d", o.Jump.Target)
	case o.If != nil:
		s := fmt.Sprintf("if %s goto %d", o.If.Cond, o.If.Target)
		if o.If.With != nil {
			s += " with " + o.If.With.String()
		}
		return s
	case o.Return != nil:
		s := "return"
		if len(o.Return.Values) > 0 {
			s += " " + joinExprs(o.Return.Values)
		}
		return s + flags(o.Return.Flags)
	case o.Bind != nil:
		return "bind " + o.Bind.Target.String()
	case o.Data != nil:
		return fmt.Sprintf("data %d", o.Data.Value)
	case o.Unimpl != nil:
		return "unimplemented " + strconv.Quote(o.Unimpl.Opcode)
	case o.Call != nil:
		return o.Call.Call.String() + flags(o.Call.Flags)
	case o.Assign != nil:
		return o.Assign.String()
	}
	return ""
}

func (a *AssignOp) String() string {
	targets := make([]string, len(a.Targets))
	for i, t := range a.Targets {
		targets[i] = t.Ref.String()
		if t.Open {
			targets[i] += "..."
		}
	}
	return strings.Join(targets, ", ") + " = " + a.Value.String() + flags(a.Flags)
}

func flags(fs []*Flag) string {
	var b strings.Builder
	for _, f := range fs {
		b.WriteString(" " + f.String())
	}
	return b.String()
}

func (f *Flag) String() string {
	if f.Name == "openargs" {
		return fmt.Sprintf("[openargs %d]", f.Arg)
	}
	return "[" + f.Name + "]"
}

func joinExprs(es []*Expr) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}

func (e *Expr) String() string {
	var b strings.Builder
	b.WriteString(e.Left.String())
	for _, op := range e.Ops {
		b.WriteString(" " + op.Op + " " + op.Right.String())
	}
	return b.String()
}

func (u *Unary) String() string {
	var b strings.Builder
	for _, op := range u.Ops {
		b.WriteString(op)
		if op == "not" {
			b.WriteString(" ")
		}
	}
	b.WriteString(u.Operand.String())
	return b.String()
}

func (p *Primary) String() string {
	switch {
	case p.Nil:
		return "nil"
	case p.True:
		return "true"
	case p.False:
		return "false"
	case p.Number != nil:
		return formatNumber(*p.Number)
	case p.Str != nil:
		return strconv.Quote(*p.Str)
	case p.Const != nil:
		return fmt.Sprintf("k%d", *p.Const)
	case p.Vararg:
		return "..."
	case p.Closure != nil:
		return fmt.Sprintf("closure %d", *p.Closure)
	case p.Call != nil:
		return p.Call.String()
	case p.Table != nil:
		return p.Table.String()
	case p.Ref != nil:
		return p.Ref.String()
	case p.Sub != nil:
		return "(" + p.Sub.String() + ")"
	}
	return "nil"
}

func (c *Call) String() string {
	return "call " + c.Callee.String() + "(" + joinExprs(c.Args) + ")"
}

func (t *Table) String() string {
	parts := make([]string, len(t.Entries))
	for i, e := range t.Entries {
		if e.Key != nil {
			parts[i] = "[" + e.Key.String() + "] = " + e.Value.String()
		} else {
			parts[i] = e.Value.String()
		}
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (r *Reference) String() string {
	var b strings.Builder
	b.WriteString(r.Base.String())
	for _, idx := range r.Indices {
		if idx.Key != nil {
			b.WriteString("[" + idx.Key.String() + "]")
		} else {
			b.WriteString("." + idx.Field)
		}
	}
	return b.String()
}

func (b *Base) String() string {
	switch {
	case b.Register != nil:
		return fmt.Sprintf("r%d", *b.Register)
	case b.UpValue != nil:
		return fmt.Sprintf("u%d", *b.UpValue)
	case b.Global != nil:
		return b.Global.String()
	}
	return "globals"
}

func (g GlobalName) String() string {
	name := string(g)
	if isPlainName(name) {
		return "$" + name
	}
	return "$" + strconv.Quote(name)
}

func isPlainName(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
