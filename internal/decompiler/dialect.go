package decompiler

import (
	"sort"
	"strings"

	"luadec/internal/errors"
	"luadec/internal/passes"
)

// Dialect is a bytecode flavor with its own pass pipeline.
type Dialect struct {
	Name        string
	Description string
	// DataWords reports whether the lifter emits inline data words that
	// must be dropped before the CFG is built.
	DataWords bool
}

var dialects = map[string]*Dialect{
	"hks": {
		Name:        "hks",
		Description: "HavokScript (Lua 5.1 derivative with inline data words)",
		DataWords:   true,
	},
	"lua51": {
		Name:        "lua51",
		Description: "reference Lua 5.1",
	},
}

// DefaultDialect is used when neither the listing nor the caller names one.
const DefaultDialect = "hks"

// Lookup returns the named dialect.
func Lookup(name string) (*Dialect, error) {
	if d, ok := dialects[name]; ok {
		return d, nil
	}
	return nil, errors.New(errors.ErrorUnknownDialect, "unknown dialect %q", name).
		WithHelp("known dialects: " + strings.Join(Dialects(), ", ")).
		Build()
}

// Dialects lists the registered dialect names in sorted order.
func Dialects() []string {
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Pipeline builds the ordered pass list of the dialect. iterationCap
// bounds the fixpoint group; zero keeps the manager default.
func (d *Dialect) Pipeline(iterationCap int) *passes.Manager {
	m := passes.NewManager()
	if iterationCap > 0 {
		m.IterationCap = iterationCap
	}

	m.AddPass(passes.ApplyLabels{})
	if d.DataWords {
		m.AddPass(passes.CleanupDataInstructions{})
	}
	m.AddPass(passes.MergeConditionalJumps{})
	m.AddPass(passes.ValidateUpvalues{})
	m.AddPass(passes.BuildCFG{})
	m.AddPass(passes.ValidateGraph{})
	m.AddPass(passes.ResolveAmbiguousCallArgs{})
	m.AddPass(passes.SSATransform{})
	m.AddPass(passes.ResolveClosureUpValues{})
	m.AddPass(passes.EliminateDeadAssignments{PhiOnly: true})
	m.AddPass(passes.EliminateUnusedPhi{})

	m.PushLoopUntilUnchanged()
	m.AddPass(passes.ExpressionPropagation{})
	m.AddPass(passes.DetectListInitializers{})
	m.AddPass(passes.MergeCompoundConditionals{})
	m.AddPass(passes.MergeConditionalAssignments{})
	m.AddPass(passes.EliminateDeadAssignments{})
	m.PopLoopUntilUnchanged()

	m.AddPass(passes.DetectLoops{})
	m.AddPass(passes.DetectBreakContinue{})
	m.AddPass(passes.DetectTwoWayConditionals{})
	m.AddPass(passes.SimplifyIfElseFollowChain{})
	m.AddPass(passes.ValidateGraph{})
	m.AddPass(passes.EliminateDeadAssignments{PhiOnly: true})
	m.AddPass(passes.ExpressionPropagation{})
	m.AddPass(passes.DropSSASubscripts{})
	m.AddPass(passes.DetectLocalVariables{})
	m.AddPass(passes.RenameLocalVariables{})
	m.AddPass(passes.BuildAST{})
	return m
}
