package passes

import (
	"fmt"
	"strings"

	"github.com/tliron/commonlog"

	"luadec/internal/analysis"
	"luadec/internal/ast"
	"luadec/internal/errors"
	"luadec/internal/ir"
)

var log = commonlog.GetLogger("luadec.passes")

// DefaultIterationCap bounds a loop group when the manager is not told
// otherwise.
const DefaultIterationCap = 32

// Mutation declares the widest change a pass may make.
type Mutation uint8

const (
	// ReadOnly passes only inspect the function.
	ReadOnly Mutation = iota
	// MutatesInstructions passes rewrite instructions but keep block
	// linkage. A change invalidates def-use chains.
	MutatesInstructions
	// MutatesCFG passes add, remove or relink blocks. A change invalidates
	// every analysis.
	MutatesCFG
)

// Pass is one step of a decompilation pipeline.
type Pass interface {
	Name() string
	Description() string
	Mutates() Mutation
	// Run applies the pass and reports whether anything changed.
	Run(ctx *Context, f *ir.Function) (bool, error)
}

// Context is the per-function state threaded through a pipeline run.
type Context struct {
	Function *ir.Function
	Analyses *analysis.Cache
	// Output is set by the build-ast pass.
	Output *ast.Function
	// Warnings collects non-fatal conditions such as a loop group that did
	// not converge.
	Warnings []*errors.DecompileError

	pass string
}

// NewContext prepares a context for f.
func NewContext(f *ir.Function) *Context {
	return &Context{Function: f, Analyses: analysis.NewCache(f)}
}

// Dominance returns the cached dominance analysis.
func (c *Context) Dominance() *analysis.Dominance { return c.Analyses.Dominance() }

// DefUse returns the cached def-use chains.
func (c *Context) DefUse() *analysis.DefUse { return c.Analyses.DefUse() }

// Invalidate drops cached analyses. Passes that read an analysis again
// after mutating within a single run must call it themselves.
func (c *Context) Invalidate(kind analysis.Kind) { c.Analyses.Invalidate(kind) }

// Fail builds a fatal error for the running pass.
func (c *Context) Fail(code string, block ir.BlockID, format string, args ...any) *errors.DecompileError {
	return errors.New(code, format, args...).
		InFunction(c.Function.ID).
		InPass(c.pass).
		AtBlock(int(block)).
		Build()
}

type step struct {
	pass  Pass
	group *loopGroup
}

type loopGroup struct {
	steps []step
}

// Manager runs an ordered list of passes. Passes between
// PushLoopUntilUnchanged and PopLoopUntilUnchanged repeat until one full
// round reports no change or the iteration cap is reached.
type Manager struct {
	steps        []step
	open         []*loopGroup
	IterationCap int
}

// NewManager creates an empty pipeline.
func NewManager() *Manager {
	return &Manager{IterationCap: DefaultIterationCap}
}

// AddPass appends a pass to the innermost open loop group, or to the top
// level.
func (m *Manager) AddPass(p Pass) {
	s := step{pass: p}
	if n := len(m.open); n > 0 {
		m.open[n-1].steps = append(m.open[n-1].steps, s)
		return
	}
	m.steps = append(m.steps, s)
}

// PushLoopUntilUnchanged opens a loop group.
func (m *Manager) PushLoopUntilUnchanged() {
	m.open = append(m.open, &loopGroup{})
}

// PopLoopUntilUnchanged closes the innermost loop group.
func (m *Manager) PopLoopUntilUnchanged() {
	n := len(m.open)
	if n == 0 {
		panic("passes: PopLoopUntilUnchanged without matching push")
	}
	g := m.open[n-1]
	m.open = m.open[:n-1]
	s := step{group: g}
	if n > 1 {
		m.open[n-2].steps = append(m.open[n-2].steps, s)
		return
	}
	m.steps = append(m.steps, s)
}

// Describe lists the pipeline, one pass per line, indenting loop groups.
func (m *Manager) Describe() string {
	var b strings.Builder
	var walk func(steps []step, depth int)
	walk = func(steps []step, depth int) {
		for _, s := range steps {
			pad := strings.Repeat("  ", depth)
			if s.group != nil {
				fmt.Fprintf(&b, "%sloop until unchanged:\n", pad)
				walk(s.group.steps, depth+1)
				continue
			}
			fmt.Fprintf(&b, "%s%-32s %s\n", pad, s.pass.Name(), s.pass.Description())
		}
	}
	walk(m.steps, 0)
	return b.String()
}

// Names returns the pass names in execution order.
func (m *Manager) Names() []string {
	var out []string
	var walk func(steps []step)
	walk = func(steps []step) {
		for _, s := range steps {
			if s.group != nil {
				walk(s.group.steps)
				continue
			}
			out = append(out, s.pass.Name())
		}
	}
	walk(m.steps)
	return out
}

// Run executes the pipeline over f. A fatal error stops the pipeline for
// this function only; warnings are returned in the context.
func (m *Manager) Run(f *ir.Function) (*Context, error) {
	if len(m.open) > 0 {
		return nil, fmt.Errorf("passes: %d loop groups left open", len(m.open))
	}
	ctx := NewContext(f)
	for _, s := range m.steps {
		if _, err := m.runStep(ctx, s); err != nil {
			return ctx, err
		}
	}
	return ctx, nil
}

// RunGroupOnce executes every loop group once more and reports whether any
// pass changed the function. A converged pipeline returns false.
func (m *Manager) RunGroupOnce(ctx *Context) (bool, error) {
	changed := false
	for _, s := range m.steps {
		if s.group == nil {
			continue
		}
		for _, inner := range s.group.steps {
			c, err := m.runStep(ctx, inner)
			if err != nil {
				return changed, err
			}
			changed = changed || c
		}
	}
	return changed, nil
}

func (m *Manager) runStep(ctx *Context, s step) (bool, error) {
	if s.group != nil {
		return m.runGroup(ctx, s.group)
	}
	return m.runPass(ctx, s.pass)
}

func (m *Manager) runGroup(ctx *Context, g *loopGroup) (bool, error) {
	limit := m.IterationCap
	if limit <= 0 {
		limit = DefaultIterationCap
	}
	anyChange := false
	for iter := 1; ; iter++ {
		changed := false
		for _, s := range g.steps {
			c, err := m.runStep(ctx, s)
			if err != nil {
				return anyChange, err
			}
			changed = changed || c
		}
		anyChange = anyChange || changed
		if !changed {
			return anyChange, nil
		}
		if iter >= limit {
			w := errors.New(errors.ErrorFixpointNotReached,
				"loop group did not converge after %d iterations", limit).
				InFunction(ctx.Function.ID).
				WithNote("continuing with the state of the last iteration").
				Build()
			log.Warningf("%s", w.Error())
			ctx.Warnings = append(ctx.Warnings, w)
			return anyChange, nil
		}
	}
}

func (m *Manager) runPass(ctx *Context, p Pass) (changed bool, err error) {
	f := ctx.Function
	ctx.pass = p.Name()
	before := f.Generation()

	defer func() {
		if r := recover(); r != nil {
			changed = false
			err = recoveredError(r, f.ID, p.Name())
		}
	}()

	changed, err = p.Run(ctx, f)
	if err != nil {
		return false, errors.Attach(err, f.ID, p.Name())
	}
	log.Debugf("function %d: %s changed=%t", f.ID, p.Name(), changed)

	if f.Generation() != before {
		if p.Mutates() != MutatesCFG {
			return false, errors.New(errors.ErrorAnalysisStalenessViolation,
				"pass changed block linkage but declares no CFG mutation").
				InFunction(f.ID).InPass(p.Name()).Build()
		}
		ctx.Invalidate(analysis.KindAll)
		return changed, nil
	}
	if changed {
		switch p.Mutates() {
		case MutatesCFG:
			ctx.Invalidate(analysis.KindAll)
		case MutatesInstructions:
			ctx.Invalidate(analysis.KindDefUse)
		}
	}
	return changed, nil
}

func recoveredError(r any, function int, pass string) error {
	if stale, ok := r.(*analysis.StaleError); ok {
		return errors.New(errors.ErrorAnalysisStalenessViolation, "%s", stale.Error()).
			InFunction(function).InPass(pass).Build()
	}
	if de, ok := r.(*errors.DecompileError); ok {
		return errors.Attach(de, function, pass)
	}
	return errors.New(errors.ErrorPassFailure, "panic: %v", r).
		InFunction(function).InPass(pass).Build()
}
