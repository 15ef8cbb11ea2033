package passes_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luadec/internal/errors"
	"luadec/internal/ir"
	"luadec/internal/passes"
)

type fakePass struct {
	name    string
	mutates passes.Mutation
	run     func(ctx *passes.Context, f *ir.Function) (bool, error)
}

func (p *fakePass) Name() string             { return p.name }
func (p *fakePass) Description() string      { return "test pass " + p.name }
func (p *fakePass) Mutates() passes.Mutation { return p.mutates }
func (p *fakePass) Run(ctx *passes.Context, f *ir.Function) (bool, error) {
	return p.run(ctx, f)
}

func TestLoopGroupStopsAtCap(t *testing.T) {
	runs := 0
	m := passes.NewManager()
	m.IterationCap = 3
	m.PushLoopUntilUnchanged()
	m.AddPass(&fakePass{name: "always", run: func(*passes.Context, *ir.Function) (bool, error) {
		runs++
		return true, nil
	}})
	m.PopLoopUntilUnchanged()

	ctx, err := m.Run(loadMain(t, diamond))
	require.NoError(t, err)
	assert.Equal(t, 3, runs)
	require.Len(t, ctx.Warnings, 1)
	assert.Equal(t, errors.ErrorFixpointNotReached, ctx.Warnings[0].Code)
	assert.True(t, ctx.Warnings[0].IsWarning())
}

func TestLoopGroupConverges(t *testing.T) {
	runs := 0
	m := passes.NewManager()
	m.PushLoopUntilUnchanged()
	m.AddPass(&fakePass{name: "twice", run: func(*passes.Context, *ir.Function) (bool, error) {
		runs++
		return runs < 2, nil
	}})
	m.PopLoopUntilUnchanged()

	ctx, err := m.Run(loadMain(t, diamond))
	require.NoError(t, err)
	assert.Equal(t, 2, runs)
	assert.Empty(t, ctx.Warnings)
}

func TestUndeclaredCFGMutation(t *testing.T) {
	m := passes.NewManager()
	m.AddPass(&fakePass{name: "sneaky", mutates: passes.MutatesInstructions, run: func(_ *passes.Context, f *ir.Function) (bool, error) {
		f.NewBlock()
		return true, nil
	}})

	_, err := m.Run(loadMain(t, diamond))
	require.Error(t, err)
	assert.Equal(t, errors.ErrorAnalysisStalenessViolation, errors.Code(err))
	assert.Contains(t, err.Error(), "sneaky")
}

func TestStaleAnalysisRead(t *testing.T) {
	m := passes.NewManager()
	m.AddPass(passes.ApplyLabels{})
	m.AddPass(passes.BuildCFG{})
	m.AddPass(&fakePass{name: "stale-reader", mutates: passes.MutatesCFG, run: func(ctx *passes.Context, f *ir.Function) (bool, error) {
		ctx.Dominance()
		f.NewBlock()
		ctx.Dominance()
		return true, nil
	}})

	_, err := m.Run(loadMain(t, diamond))
	require.Error(t, err)
	assert.Equal(t, errors.ErrorAnalysisStalenessViolation, errors.Code(err))
}

func TestPanickingPass(t *testing.T) {
	m := passes.NewManager()
	m.AddPass(&fakePass{name: "boom", run: func(*passes.Context, *ir.Function) (bool, error) {
		panic("index out of range")
	}})

	_, err := m.Run(loadMain(t, diamond))
	require.Error(t, err)
	var de *errors.DecompileError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, errors.ErrorPassFailure, de.Code)
	assert.Equal(t, "boom", de.Pass)
	assert.Equal(t, 0, de.Function)
}

func TestDescribeIndentsGroups(t *testing.T) {
	m := passes.NewManager()
	m.AddPass(passes.ApplyLabels{})
	m.PushLoopUntilUnchanged()
	m.AddPass(passes.ExpressionPropagation{})
	m.PopLoopUntilUnchanged()

	out := m.Describe()
	assert.Contains(t, out, "loop until unchanged:\n")
	assert.Contains(t, out, "  expression-propagation")
	assert.Equal(t, []string{"apply-labels", "expression-propagation"}, m.Names())
}

func TestUnbalancedGroup(t *testing.T) {
	m := passes.NewManager()
	m.PushLoopUntilUnchanged()
	_, err := m.Run(loadMain(t, diamond))
	assert.Error(t, err)

	assert.Panics(t, func() { passes.NewManager().PopLoopUntilUnchanged() })
}
