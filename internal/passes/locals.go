package passes

import (
	"slices"

	"luadec/internal/ir"
)

// DetectLocalVariables decides where each register variable is declared.
// A variable belongs to the innermost scope enclosing all of its
// occurrences. When its first occurrence is an assignment directly in that
// scope the assignment becomes the 'local' statement; otherwise a bare
// declaration is inserted ahead of the statement holding the first
// occurrence.
type DetectLocalVariables struct{}

func (DetectLocalVariables) Name() string { return "detect-local-variables" }
func (DetectLocalVariables) Description() string {
	return "place local declarations in the innermost enclosing scope"
}
func (DetectLocalVariables) Mutates() Mutation { return MutatesInstructions }

// occurrence is one read or write of a variable in the scope tree.
type occurrence struct {
	path []frame
	st   *stmt
	def  bool
}

// closuresIn returns the closures instantiated by inst.
func closuresIn(inst ir.Instruction) []*ir.Function {
	var out []*ir.Function
	ir.VisitInstructionExpressions(inst, func(e ir.Expression) {
		ir.VisitExpression(e, func(sub ir.Expression) {
			if c, ok := sub.(*ir.Closure); ok && c.Function != nil {
				out = append(out, c.Function)
			}
		})
	})
	return out
}

// loopVariables returns the identifiers a for loop declares itself.
func loopVariables(inst ir.Instruction) []ir.Identifier {
	switch x := inst.(type) {
	case *ir.NumericFor:
		if x.Initial != nil {
			return ir.Defines(x.Initial)
		}
	case *ir.GenericFor:
		return ir.Defines(x)
	}
	return nil
}

func (DetectLocalVariables) Run(ctx *Context, f *ir.Function) (bool, error) {
	root, err := buildScopes(ctx, f)
	if err != nil {
		return false, err
	}

	skip := make(map[ir.Identifier]bool)
	for _, p := range f.Parameters {
		skip[p] = true
	}
	var order []ir.Identifier
	sites := make(map[ir.Identifier][]occurrence)
	note := func(id ir.Identifier, path []frame, st *stmt, def bool) {
		if !id.IsRegister() || skip[id] {
			return
		}
		if _, seen := sites[id]; !seen {
			order = append(order, id)
		}
		sites[id] = append(sites[id], occurrence{path: path, st: st, def: def})
	}
	walkScopes(root, func(path []frame, st *stmt) {
		for _, v := range loopVariables(st.inst) {
			skip[v] = true
		}
		for _, u := range ir.Uses(st.inst) {
			note(u, path, st, false)
		}
		for _, c := range closuresIn(st.inst) {
			for _, id := range c.UpValueBindings {
				note(id, path, st, false)
			}
		}
		for _, d := range ir.Defines(st.inst) {
			note(d, path, st, true)
		}
	})

	var inPlace []*ir.Assignment
	wants := make(map[*ir.Assignment][]ir.Identifier)
	var anchors []*stmt
	inserts := make(map[*stmt][]ir.Identifier)
	insertAt := func(st *stmt, id ir.Identifier) {
		if _, ok := inserts[st]; !ok {
			anchors = append(anchors, st)
		}
		inserts[st] = append(inserts[st], id)
	}

	for _, id := range order {
		occ := sites[id]
		depth := commonDepth(occ)
		first := occ[0]
		anchor := first.path[depth-1]
		st := anchor.sc.stmts[anchor.i]
		if a, ok := first.st.inst.(*ir.Assignment); ok && first.def && len(first.path) == depth {
			if _, seen := wants[a]; !seen {
				inPlace = append(inPlace, a)
			}
			wants[a] = append(wants[a], id)
			continue
		}
		insertAt(st, id)
	}

	changed := false
	for _, a := range inPlace {
		if declaresExactly(a, wants[a]) {
			if !a.IsLocalDeclaration {
				a.IsLocalDeclaration = true
				changed = true
			}
			continue
		}
		st := stmtOf(root, a)
		for _, id := range wants[a] {
			insertAt(st, id)
		}
	}

	for _, st := range anchors {
		ids := inserts[st]
		decl := &ir.Assignment{Meta: *st.inst.Info(), IsLocalDeclaration: true}
		for _, id := range ids {
			decl.Left = append(decl.Left, ir.Ref(id))
		}
		b := f.Block(st.block)
		at := slices.Index(b.Instructions, st.inst)
		if at < 0 {
			at = len(b.Instructions)
		}
		b.Insert(at, decl)
		changed = true
	}

	recordBlockNames(f)
	return changed, nil
}

// commonDepth returns the length of the scope path all occurrences share.
func commonDepth(occ []occurrence) int {
	m := len(occ[0].path)
	for _, o := range occ[1:] {
		k := 0
		for k < m && k < len(o.path) && o.path[k].sc == occ[0].path[k].sc {
			k++
		}
		m = k
	}
	return m
}

// declaresExactly reports whether a defines exactly ids and stores into no
// table, so that it can be written as a 'local' statement.
func declaresExactly(a *ir.Assignment, ids []ir.Identifier) bool {
	if len(a.Left) != len(ids) {
		return false
	}
	for _, l := range a.Left {
		if l.HasIndex() || !slices.Contains(ids, l.Identifier) {
			return false
		}
	}
	return true
}

func stmtOf(root *scope, inst ir.Instruction) *stmt {
	var found *stmt
	walkScopes(root, func(_ []frame, st *stmt) {
		if found == nil && st.inst == inst {
			found = st
		}
	})
	return found
}

// recordBlockNames fills the per-block declared locals and referenced
// globals.
func recordBlockNames(f *ir.Function) {
	for _, b := range f.Blocks() {
		b.LocalsDefined = b.LocalsDefined[:0]
		b.GlobalsReferenced = b.GlobalsReferenced[:0]
		for _, inst := range b.Instructions {
			if a, ok := inst.(*ir.Assignment); ok && a.IsLocalDeclaration {
				b.LocalsDefined = append(b.LocalsDefined, ir.Defines(a)...)
			}
			b.LocalsDefined = append(b.LocalsDefined, loopVariables(inst)...)
			for _, u := range ir.Uses(inst) {
				if u.Kind == ir.IdentGlobal && !slices.Contains(b.GlobalsReferenced, u.Name) {
					b.GlobalsReferenced = append(b.GlobalsReferenced, u.Name)
				}
			}
		}
		slices.Sort(b.GlobalsReferenced)
	}
}
