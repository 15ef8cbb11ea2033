package passes_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luadec/internal/ast"
	"luadec/internal/decompiler"
	"luadec/internal/errors"
	"luadec/internal/ir"
	"luadec/internal/loader"
	"luadec/internal/passes"
)

const diamond = `chunk "diamond" version "1.0"
function 0 params 1 {
  code {
    0: if r0 == 1 goto 3
    1: r1 = 10
    2: jmp 4
    3: r1 = 20
    4: call $print(r1)
    5: return
  }
}
`

const whileLoop = `chunk "while" version "1.0"
function 0 params 1 {
  code {
    0: if r0 > 10 goto 3
    1: r0 = r0 + 1
    2: jmp 0
    3: return r0
  }
}
`

const repeatLoop = `chunk "repeat" version "1.0"
function 0 params 1 {
  code {
    0: r0 = r0 + 1
    1: if r0 < 10 goto 0
    2: return r0
  }
}
`

func loadMain(t *testing.T, src string) *ir.Function {
	t.Helper()
	chunk, err := loader.LoadString("test.lst", src)
	require.NoError(t, err)
	return chunk.Main
}

func fullPipeline(t *testing.T) *passes.Manager {
	t.Helper()
	d, err := decompiler.Lookup("lua51")
	require.NoError(t, err)
	return d.Pipeline(0)
}

func decompile(t *testing.T, src string) (*ir.Function, *passes.Context) {
	t.Helper()
	f := loadMain(t, src)
	ctx, err := fullPipeline(t).Run(f)
	require.NoError(t, err)
	require.NotNil(t, ctx.Output)
	return f, ctx
}

// frontEnd builds a manager running everything up to and including the
// fixpoint group.
func frontEnd() *passes.Manager {
	m := passes.NewManager()
	m.AddPass(passes.ApplyLabels{})
	m.AddPass(passes.MergeConditionalJumps{})
	m.AddPass(passes.ValidateUpvalues{})
	m.AddPass(passes.BuildCFG{})
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
	return m
}

func lastOf[T ir.Instruction](f *ir.Function) (T, *ir.BasicBlock) {
	var zero T
	for _, b := range f.Blocks() {
		if x, ok := b.Last().(T); ok {
			return x, b
		}
	}
	return zero, nil
}

func TestDiamondStructuresIntoIf(t *testing.T) {
	f, ctx := decompile(t, diamond)

	node, _ := lastOf[*ir.IfStatement](f)
	require.NotNil(t, node)
	require.NotEqual(t, ir.NoBlock, node.False)
	follow := f.Block(node.Follow)
	require.NotNil(t, follow)
	call, ok := follow.Instructions[0].(*ir.Assignment)
	require.True(t, ok)
	assert.IsType(t, &ir.FunctionCall{}, call.Right)

	// Both arms write the same merged local.
	trueArm := f.Block(node.True).Instructions[0].(*ir.Assignment)
	falseArm := f.Block(node.False).Instructions[0].(*ir.Assignment)
	assert.Equal(t, trueArm.Left[0].Identifier, falseArm.Left[0].Identifier)
	assert.False(t, trueArm.Left[0].Identifier.IsVersioned())

	expected := "local var\n" +
		"if arg0 ~= 1 then\n" +
		"\tvar = 10\n" +
		"else\n" +
		"\tvar = 20\n" +
		"end\n" +
		"print(var)\n"
	assert.Equal(t, expected, ctx.Output.String())
}

func TestWhileLoopIsPreTested(t *testing.T) {
	f, ctx := decompile(t, whileLoop)

	loop, _ := lastOf[*ir.While](f)
	require.NotNil(t, loop)
	assert.False(t, loop.IsPostTested)
	assert.Equal(t, loop.Header, f.Block(loop.Body).Successors[0])

	var jumps int
	for _, b := range f.Blocks() {
		for _, inst := range b.Instructions {
			if _, ok := inst.(*ir.ConditionalJump); ok {
				jumps++
			}
		}
	}
	assert.Zero(t, jumps)

	expected := "while arg0 <= 10 do\n" +
		"\targ0 = arg0 + 1\n" +
		"end\n" +
		"return arg0\n"
	assert.Equal(t, expected, ctx.Output.String())
}

func TestRepeatLoopIsPostTested(t *testing.T) {
	f, ctx := decompile(t, repeatLoop)

	loop, _ := lastOf[*ir.While](f)
	require.NotNil(t, loop)
	assert.True(t, loop.IsPostTested)
	assert.Equal(t, loop.Header, loop.Latch)

	expected := "repeat\n" +
		"\targ0 = arg0 + 1\n" +
		"until arg0 >= 10\n" +
		"return arg0\n"
	assert.Equal(t, expected, ctx.Output.String())
	assert.NoError(t, passes.ValidateCFG(f))
}

func formatBlocks(f *ir.Function) []string {
	var out []string
	for _, b := range f.Blocks() {
		for _, inst := range b.Instructions {
			out = append(out, ir.FormatInstruction(inst))
		}
	}
	return out
}

func TestSSARoundTrip(t *testing.T) {
	f := loadMain(t, diamond)
	m := passes.NewManager()
	m.AddPass(passes.ApplyLabels{})
	m.AddPass(passes.BuildCFG{})
	_, err := m.Run(f)
	require.NoError(t, err)
	before := formatBlocks(f)

	m = passes.NewManager()
	m.AddPass(passes.SSATransform{})
	ctx, err := m.Run(f)
	require.NoError(t, err)
	assert.True(t, f.IsSSA)
	var phis int
	for _, b := range f.Blocks() {
		phis += len(b.Phis())
	}
	assert.Equal(t, 1, phis)
	assert.Empty(t, ctx.DefUse().Conflicts, "every version has one definition")

	m = passes.NewManager()
	m.AddPass(passes.DropSSASubscripts{})
	_, err = m.Run(f)
	require.NoError(t, err)
	assert.False(t, f.IsSSA)
	assert.Equal(t, before, formatBlocks(f))
}

func TestFixpointGroupIsIdempotent(t *testing.T) {
	for _, src := range []string{diamond, whileLoop, repeatLoop} {
		f := loadMain(t, src)
		m := frontEnd()
		ctx, err := m.Run(f)
		require.NoError(t, err)
		require.Empty(t, ctx.Warnings)

		snapshot := formatBlocks(f)
		changed, err := m.RunGroupOnce(ctx)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, snapshot, formatBlocks(f))
	}
}

func countCalls(f *ir.Function) int {
	n := 0
	for _, b := range f.Blocks() {
		for _, inst := range b.Instructions {
			ir.VisitInstructionExpressions(inst, func(e ir.Expression) {
				ir.VisitExpression(e, func(sub ir.Expression) {
					if _, ok := sub.(*ir.FunctionCall); ok {
						n++
					}
				})
			})
		}
	}
	return n
}

func TestPropagationKeepsCalls(t *testing.T) {
	src := `chunk "calls" version "1.0"
function 0 {
  code {
    0: r0 = call $f()
    1: r1 = $g
    2: call r1(r0)
    3: r2 = $h
    4: call r2(r0)
    5: return
  }
}
`
	f := loadMain(t, src)
	_, err := frontEnd().Run(f)
	require.NoError(t, err)
	assert.Equal(t, 3, countCalls(f))

	// The shared result stays in its register.
	first := f.Block(f.Entry).Instructions[0].(*ir.Assignment)
	assert.IsType(t, &ir.FunctionCall{}, first.Right)
}

func TestPropagationStopsAtCapturedRegister(t *testing.T) {
	src := `chunk "capture" version "1.0"
function 0 {
  code {
    0: r0 = 5
    1: r1 = closure 1
    2: bind r0
    3: call $print(r0)
    4: return
  }
  function 1 upvalues 1 {
    code {
      0: u0 = 6
      1: return
    }
  }
}
`
	f := loadMain(t, src)
	_, err := frontEnd().Run(f)
	require.NoError(t, err)

	var printed ir.Expression
	for _, inst := range f.Block(f.Entry).Instructions {
		if a, ok := inst.(*ir.Assignment); ok && len(a.Left) == 0 {
			printed = a.Right.(*ir.FunctionCall).Args[0]
		}
	}
	require.NotNil(t, printed)
	ref, ok := printed.(*ir.IdentifierReference)
	require.True(t, ok, "captured register was replaced by %T", printed)
	assert.True(t, ref.Identifier.IsRegister())
	assert.Len(t, f.Closures[0].UpValueBindings, 1)
}

func TestBuildCFGTerminators(t *testing.T) {
	for _, src := range []string{diamond, whileLoop, repeatLoop} {
		f := loadMain(t, src)
		m := passes.NewManager()
		m.AddPass(passes.ApplyLabels{})
		m.AddPass(passes.BuildCFG{})
		m.AddPass(passes.ValidateGraph{})
		_, err := m.Run(f)
		require.NoError(t, err)

		for _, b := range f.Blocks() {
			switch b.Last().(type) {
			case *ir.ConditionalJump:
				assert.Len(t, b.Successors, 2)
			case *ir.Return:
				assert.Empty(t, b.Successors)
			case *ir.Jump:
				assert.Len(t, b.Successors, 1)
			default:
				assert.LessOrEqual(t, len(b.Successors), 1)
			}
		}
	}
}

func TestDanglingJumpTarget(t *testing.T) {
	src := `chunk "dangling" version "1.0"
function 0 {
  code {
    0: jmp 9
    1: return
  }
}
`
	f := loadMain(t, src)
	_, err := fullPipeline(t).Run(f)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorMalformedControlFlow, errors.Code(err))
}

func TestUnimplementedInstruction(t *testing.T) {
	src := `chunk "unimpl" version "1.0"
function 0 {
  code {
    0: unimplemented "OP_TFORPREP"
    1: return
  }
}
`
	f := loadMain(t, src)
	_, err := fullPipeline(t).Run(f)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorUnimplementedInstruction, errors.Code(err))
	assert.Contains(t, err.Error(), "build-cfg")
}

func TestLocalNamesAreDeduplicated(t *testing.T) {
	src := `chunk "names" version "1.0"
function 0 {
  locals {
    "x" r0 1 4
    "x" r1 2 4
    "print" r2 3 4
  }
  code {
    0: r0 = 1 [local]
    1: r1 = 2 [local]
    2: r2 = 3 [local]
    3: call $print(r0, r1, r2)
    4: return
  }
}
`
	_, ctx := decompile(t, src)
	expected := "local x = 1\n" +
		"local x_2 = 2\n" +
		"local print_2 = 3\n" +
		"print(x, x_2, print_2)\n"
	assert.Equal(t, expected, ctx.Output.String())
}

func TestMethodCallFolding(t *testing.T) {
	src := `chunk "method" version "1.0"
function 0 {
  code {
    0: r0 = $obj
    1: call r0.greet(r0, "hi")
    2: return
  }
}
`
	_, ctx := decompile(t, src)
	assert.Equal(t, "obj:greet(\"hi\")\n", ctx.Output.String())

	var calls int
	ast.Inspect(ctx.Output, func(n ast.Node) bool {
		if _, ok := n.(*ast.MethodCall); ok {
			calls++
		}
		return true
	})
	assert.Equal(t, 1, calls)
}

func TestPropagationKeepsCallOrder(t *testing.T) {
	const listing = `chunk "order" version "1.0"
function 0 {
  code {
    0: r0 = call $f()
    1: r1 = call $g()
    2: call $print(%s)
    3: return
  }
}
`
	tests := []struct {
		name     string
		args     string
		expected string
	}{
		{
			name:     "results used in call order",
			args:     "r0, r1",
			expected: "print(f(), g())\n",
		},
		{
			name:     "results used out of call order",
			args:     "r1, r0",
			expected: "local var = f()\nprint(g(), var)\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ctx := decompile(t, fmt.Sprintf(listing, tt.args))
			assert.Equal(t, tt.expected, ctx.Output.String())
		})
	}
}

func TestNumericForRecovery(t *testing.T) {
	src := `chunk "numfor" version "1.0"
function 0 {
  code {
    0: r0 = 1 - 1
    1: jmp 4
    2: r3 = r0
    3: call $print(r3)
    4: r0 = r0 + 1
    5: if r0 forloop 3 goto 2
    6: return
  }
}
`
	f, ctx := decompile(t, src)
	loop, _ := lastOf[*ir.NumericFor](f)
	require.NotNil(t, loop)
	assert.Equal(t, "for i = 1, 3 do\n\tprint(i)\nend\n", ctx.Output.String())
}

func TestGenericForRecovery(t *testing.T) {
	src := `chunk "genfor" version "1.0"
function 0 {
  code {
    0: r0, r1, r2 = call $pairs($t)
    1: jmp 4
    2: r2 = r3
    3: call $print(r3, r4)
    4: r3, r4 = call r0(r1, r2)
    5: if r3 ~= nil goto 2
    6: return
  }
}
`
	f, ctx := decompile(t, src)
	loop, _ := lastOf[*ir.GenericFor](f)
	require.NotNil(t, loop)
	assert.Equal(t, "for k, v in pairs(t) do\n\tprint(k, v)\nend\n", ctx.Output.String())
}

func TestBreakAndContinueInsideWhile(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		expected string
	}{
		{
			name: "break",
			src: `chunk "break" version "1.0"
function 0 params 1 {
  code {
    0: if r0 > 10 goto 5
    1: call $print(r0)
    2: if r0 == 5 goto 5
    3: r0 = r0 + 1
    4: jmp 0
    5: return r0
  }
}
`,
			expected: "while arg0 <= 10 do\n" +
				"\tprint(arg0)\n" +
				"\tif arg0 == 5 then\n" +
				"\t\tbreak\n" +
				"\tend\n" +
				"\targ0 = arg0 + 1\n" +
				"end\n" +
				"return arg0\n",
		},
		{
			name: "continue",
			src: `chunk "continue" version "1.0"
function 0 params 1 {
  code {
    0: if r0 > 10 goto 5
    1: r0 = r0 + 1
    2: if r0 == 5 goto 0
    3: call $print(r0)
    4: jmp 0
    5: return r0
  }
}
`,
			expected: "while arg0 <= 10 do\n" +
				"\targ0 = arg0 + 1\n" +
				"\tif arg0 == 5 then\n" +
				"\t\tcontinue\n" +
				"\tend\n" +
				"\tprint(arg0)\n" +
				"end\n" +
				"return arg0\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ctx := decompile(t, tt.src)
			assert.Equal(t, tt.expected, ctx.Output.String())
			assert.NoError(t, passes.ValidateCFG(f))
		})
	}
}

func TestElseIfChain(t *testing.T) {
	src := `chunk "elseif" version "1.0"
function 0 params 1 {
  code {
    0: if r0 ~= 1 goto 3
    1: call $print("one")
    2: jmp 7
    3: if r0 ~= 2 goto 6
    4: call $print("two")
    5: jmp 7
    6: call $print("other")
    7: return
  }
}
`
	f, ctx := decompile(t, src)

	var chained int
	for _, b := range f.Blocks() {
		if node, ok := b.Last().(*ir.IfStatement); ok && node.IsElseIf {
			chained++
		}
	}
	assert.Equal(t, 1, chained)

	expected := "if arg0 == 1 then\n" +
		"\tprint(\"one\")\n" +
		"elseif arg0 == 2 then\n" +
		"\tprint(\"two\")\n" +
		"else\n" +
		"\tprint(\"other\")\n" +
		"end\n"
	assert.Equal(t, expected, ctx.Output.String())
}

func TestListInitializers(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		expected string
	}{
		{
			name: "stores fold into the constructor",
			src: `chunk "list" version "1.0"
function 0 {
  code {
    0: r0 = {}
    1: r0[1] = "a"
    2: r0[2] = "b"
    3: r0.name = "c"
    4: call $print(r0)
    5: return
  }
}
`,
			expected: "print({\"a\", \"b\", name = \"c\"})\n",
		},
		{
			name: "store reading the table stays",
			src: `chunk "list" version "1.0"
function 0 {
  code {
    0: r0 = {}
    1: r0[1] = "a"
    2: r0[2] = r0
    3: $t = r0
    4: return
  }
}
`,
			expected: "local var = {\"a\"}\n" +
				"var[2] = var\n" +
				"t = var\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ctx := decompile(t, tt.src)
			assert.Equal(t, tt.expected, ctx.Output.String())
		})
	}
}

func TestCompoundConditionals(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		expected string
	}{
		{
			name: "and",
			src: `chunk "and" version "1.0"
function 0 params 2 {
  code {
    0: if r0 ~= 1 goto 3
    1: if r1 ~= 2 goto 3
    2: call $print("x")
    3: return
  }
}
`,
			expected: "if arg0 == 1 and arg1 == 2 then\n\tprint(\"x\")\nend\n",
		},
		{
			name: "or",
			src: `chunk "or" version "1.0"
function 0 params 2 {
  code {
    0: if r0 == 1 goto 2
    1: if r1 ~= 2 goto 3
    2: call $print("x")
    3: return
  }
}
`,
			expected: "if arg0 == 1 or arg1 == 2 then\n\tprint(\"x\")\nend\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ctx := decompile(t, tt.src)
			var ifs int
			for _, b := range f.Blocks() {
				if _, ok := b.Last().(*ir.IfStatement); ok {
					ifs++
				}
			}
			assert.Equal(t, 1, ifs)
			assert.Equal(t, tt.expected, ctx.Output.String())
		})
	}
}

func TestConditionalAssignments(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		expected string
	}{
		{
			name: "boolean materialization",
			src: `chunk "bool" version "1.0"
function 0 params 1 {
  code {
    0: if r0 == 1 goto 3
    1: r1 = false
    2: jmp 4
    3: r1 = true
    4: return r1
  }
}
`,
			expected: "local var = arg0 == 1\nreturn var\n",
		},
		{
			name: "or value",
			src: `chunk "or" version "1.0"
function 0 params 1 {
  code {
    0: r1 = r0
    1: if r1 goto 3
    2: r1 = 5
    3: return r1
  }
}
`,
			expected: "local var = arg0 or 5\nreturn var\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ctx := decompile(t, tt.src)
			node, _ := lastOf[*ir.IfStatement](f)
			assert.Nil(t, node)
			assert.Equal(t, tt.expected, ctx.Output.String())
		})
	}
}

func TestNestedWhileLoops(t *testing.T) {
	src := `chunk "nested" version "1.0"
function 0 params 2 {
  code {
    0: if r0 > 3 goto 7
    1: if r1 > 3 goto 5
    2: call $print(r0, r1)
    3: r1 = r1 + 1
    4: jmp 1
    5: r0 = r0 + 1
    6: jmp 0
    7: return
  }
}
`
	f, ctx := decompile(t, src)

	var loops int
	for _, b := range f.Blocks() {
		if _, ok := b.Last().(*ir.While); ok {
			loops++
		}
	}
	assert.Equal(t, 2, loops)

	expected := "while arg0 <= 3 do\n" +
		"\twhile arg1 <= 3 do\n" +
		"\t\tprint(arg0, arg1)\n" +
		"\t\targ1 = arg1 + 1\n" +
		"\tend\n" +
		"\targ0 = arg0 + 1\n" +
		"end\n"
	assert.Equal(t, expected, ctx.Output.String())
	assert.NoError(t, passes.ValidateCFG(f))
}

func TestLoopsAfterPreheaderInsertion(t *testing.T) {
	// The first loop is entered from both arms of an if, so it gets a
	// preheader before the repeat loop after it is classified.
	src := `chunk "multi" version "1.0"
function 0 params 1 {
  code {
    0: if r0 goto 3
    1: r1 = 1
    2: jmp 4
    3: r1 = 2
    4: call $print(r1)
    5: r1 = r1 + 1
    6: if r1 > 5 goto 8
    7: jmp 4
    8: r2 = 0
    9: r2 = r2 + 1
    10: if r2 < 3 goto 9
    11: return r2
  }
}
`
	f := loadMain(t, src)
	ctx, err := fullPipeline(t).Run(f)
	require.NoError(t, err)
	require.NotNil(t, ctx.Output)
	assert.Empty(t, ctx.Warnings)
	assert.NoError(t, passes.ValidateCFG(f))

	var pre, post int
	for _, b := range f.Blocks() {
		if w, ok := b.Last().(*ir.While); ok {
			if w.IsPostTested {
				post++
			} else {
				pre++
			}
		}
	}
	assert.Equal(t, 1, pre)
	assert.Equal(t, 1, post)

	out := ctx.Output.String()
	assert.Contains(t, out, "while true do\n")
	assert.Contains(t, out, "\t\tbreak\n")
	assert.Contains(t, out, "repeat\n")
	assert.Contains(t, out, "until ")
}
