package analysis

import "luadec/internal/ir"

// Site locates an instruction.
type Site struct {
	Block       ir.BlockID
	Instruction ir.Instruction
}

// DefUse records the defining site and all use sites of every identifier
// in an SSA function. Uses are recorded once per occurrence.
type DefUse struct {
	defs map[ir.Identifier]Site
	uses map[ir.Identifier][]Site
	// Conflicts lists identifiers defined more than once, which violates
	// SSA form.
	Conflicts []ir.Identifier
}

// ComputeDefUse scans every live block of f.
func ComputeDefUse(f *ir.Function) *DefUse {
	du := &DefUse{
		defs: make(map[ir.Identifier]Site),
		uses: make(map[ir.Identifier][]Site),
	}
	for _, b := range f.Blocks() {
		for _, inst := range b.Instructions {
			site := Site{Block: b.ID, Instruction: inst}
			for _, id := range ir.Defines(inst) {
				if _, dup := du.defs[id]; dup {
					du.Conflicts = append(du.Conflicts, id)
				}
				du.defs[id] = site
			}
			for _, id := range ir.Uses(inst) {
				du.uses[id] = append(du.uses[id], site)
			}
		}
	}
	return du
}

// Definition returns the defining site of id.
func (du *DefUse) Definition(id ir.Identifier) (Site, bool) {
	s, ok := du.defs[id]
	return s, ok
}

// Uses returns the use sites of id.
func (du *DefUse) Uses(id ir.Identifier) []Site { return du.uses[id] }

// UseCount returns the number of reads of id.
func (du *DefUse) UseCount(id ir.Identifier) int { return len(du.uses[id]) }

// Defined returns every identifier with a definition.
func (du *DefUse) Defined() []ir.Identifier {
	out := make([]ir.Identifier, 0, len(du.defs))
	for id := range du.defs {
		out = append(out, id)
	}
	return out
}
