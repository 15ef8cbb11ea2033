package passes

import (
	"fmt"

	"luadec/internal/ast"
	"luadec/internal/ir"
)

// RenameLocalVariables chooses a source name for every register variable.
// Debug names are preferred; a name is suffixed when it would shadow a
// visible variable, a referenced global or an upvalue.
type RenameLocalVariables struct{}

func (RenameLocalVariables) Name() string { return "rename-local-variables" }
func (RenameLocalVariables) Description() string {
	return "assign unique source names to local variables"
}
func (RenameLocalVariables) Mutates() Mutation { return MutatesInstructions }

// namer tracks the names bound in each scope during a walk of the tree.
type namer struct {
	f        *ir.Function
	reserved map[string]bool
	bound    map[*scope]map[string]ir.Identifier
	changed  bool
}

func (n *namer) taken(sc *scope, name string, id ir.Identifier) bool {
	if n.reserved[name] || !ast.IsName(name) {
		return true
	}
	for s := sc; s != nil; s = s.parent {
		if other, ok := n.bound[s][name]; ok && other != id {
			return true
		}
	}
	return false
}

func (n *namer) bind(sc *scope, name string, id ir.Identifier) {
	m := n.bound[sc]
	if m == nil {
		m = make(map[string]ir.Identifier)
		n.bound[sc] = m
	}
	m[name] = id
}

// claim names id in sc. An existing name is kept so that running the pass
// twice changes nothing.
func (n *namer) claim(sc *scope, id ir.Identifier, want string) {
	if name, ok := n.f.Names[id]; ok {
		n.bind(sc, name, id)
		return
	}
	if !ast.IsName(want) {
		want = "var"
	}
	name := want
	for k := 2; n.taken(sc, name, id); k++ {
		name = fmt.Sprintf("%s_%d", want, k)
	}
	n.f.Names[id] = name
	n.bind(sc, name, id)
	n.changed = true
}

func (RenameLocalVariables) Run(ctx *Context, f *ir.Function) (bool, error) {
	root, err := buildScopes(ctx, f)
	if err != nil {
		return false, err
	}
	n := &namer{
		f:        f,
		reserved: reservedNames(f),
		bound:    make(map[*scope]map[string]ir.Identifier),
	}

	for i, p := range f.Parameters {
		name, ok := f.LocalAt(uint32(i), 0)
		if !ok {
			name = fmt.Sprintf("arg%d", i)
		}
		n.claim(root, p, name)
	}

	walkScopes(root, func(path []frame, st *stmt) {
		sc := path[len(path)-1].sc
		switch x := st.inst.(type) {
		case *ir.Assignment:
			if !x.IsLocalDeclaration {
				return
			}
			for i, l := range x.Left {
				n.claim(sc, l.Identifier, localName(f, x, i))
			}
		case *ir.NumericFor:
			if x.Initial == nil || len(x.Initial.Left) != 1 {
				return
			}
			id := x.Initial.Left[0].Identifier
			name, ok := f.LocalAt(id.Index, firstIndex(f, x.Body, x.End+1))
			if !ok {
				name = "i"
			}
			n.claim(st.scopes[0], id, name)
		case *ir.GenericFor:
			pc := firstIndex(f, x.Body, x.End+1)
			for i, v := range x.Vars {
				name, ok := f.LocalAt(v.Identifier.Index, pc)
				if !ok {
					name = genericForName(i)
				}
				n.claim(st.scopes[0], v.Identifier, name)
			}
		}
	})

	// Registers that never reached a declaration still need a name.
	for _, b := range f.Blocks() {
		for _, inst := range b.Instructions {
			for _, id := range append(ir.Defines(inst), ir.Uses(inst)...) {
				if id.IsRegister() {
					n.claim(root, id, "var")
				}
			}
		}
	}
	return n.changed, nil
}

// localName picks the preferred name of the i-th variable declared by a.
func localName(f *ir.Function, a *ir.Assignment, i int) string {
	if len(a.Locals) == len(a.Left) {
		return a.Locals[i]
	}
	reg := a.Left[i].Identifier.Index
	if name, ok := f.LocalAt(reg, a.End+1); ok {
		return name
	}
	if name, ok := f.LocalAt(reg, a.End); ok {
		return name
	}
	return "var"
}

func genericForName(i int) string {
	switch i {
	case 0:
		return "k"
	case 1:
		return "v"
	}
	return fmt.Sprintf("v%d", i+1)
}

// firstIndex returns the lifted index of the first instruction of block id,
// or fallback when the block is empty.
func firstIndex(f *ir.Function, id ir.BlockID, fallback int) int {
	b := f.Block(id)
	for _, inst := range b.Instructions[b.FirstNonPhi():] {
		return inst.Info().Begin
	}
	return fallback
}

// reservedNames returns the globals and upvalues f refers to. Locals must
// not shadow them.
func reservedNames(f *ir.Function) map[string]bool {
	reserved := make(map[string]bool)
	for _, b := range f.Blocks() {
		for _, inst := range b.Instructions {
			for _, u := range ir.Uses(inst) {
				if u.Kind == ir.IdentGlobal {
					reserved[u.Name] = true
				}
			}
		}
	}
	for i := range f.UpValueCount {
		reserved[upvalueName(f, i)] = true
	}
	return reserved
}

// upvalueName returns the source name of upvalue i of f.
func upvalueName(f *ir.Function, i uint32) string {
	if int(i) < len(f.UpValueNames) && f.UpValueNames[i] != "" {
		return f.UpValueNames[i]
	}
	if f.Parent != nil && int(i) < len(f.UpValueBindings) {
		id := f.UpValueBindings[i]
		switch id.Kind {
		case ir.IdentRegister:
			if name, ok := f.Parent.Names[id]; ok {
				return name
			}
		case ir.IdentUpValue:
			return upvalueName(f.Parent, id.Index)
		}
	}
	return fmt.Sprintf("upval%d", i)
}
