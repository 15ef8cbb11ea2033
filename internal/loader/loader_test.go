package loader_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luadec/internal/errors"
	"luadec/internal/ir"
	"luadec/internal/loader"
)

const listing = `chunk "t.lua" version "1.2" dialect "lua51"
function 0 params 1 upvalues 0 vararg {
  constants {
    0: "print"
    2: 3
  }
  locals {
    "x" r1 1 6
    "(for index)" r5 0 1
  }
  code {
    0: r1 = k2 + -1 * 2 [local]
    1: r2 = $print
    2: r3 = call r2(r1) [openrets]
    3: call r2(k0) [openargs 4]
    4: r4 = closure 1
    5: bind r1
    6: if r1 < 1 goto 8 with r3 = r1
    7: r6... = ...
    8: return r0 [openargs 6]
  }
  function 1 params 0 upvalues 1 {
    upvalnames {
      0: "x"
    }
    code {
      0: r0 = u0 .. "a" .. "b"
      1: return r0
    }
  }
}
`

func load(t *testing.T, src string) *loader.Chunk {
	t.Helper()
	chunk, err := loader.LoadString("t.lst", src)
	require.NoError(t, err)
	return chunk
}

func TestLoadHeaderAndConstants(t *testing.T) {
	chunk := load(t, listing)
	assert.Equal(t, "t.lua", chunk.Name)
	assert.Equal(t, "lua51", chunk.Dialect)
	assert.Equal(t, "1.2.0", chunk.Version.String())

	main := chunk.Main
	assert.Equal(t, uint32(1), main.NumParams)
	assert.True(t, main.IsVararg)
	require.Len(t, main.Constants, 3)
	assert.Equal(t, ir.ConstNil, main.Constants[1].Kind)
	assert.Equal(t, 3.0, main.Constants[2].Number)
	assert.Equal(t, 2, main.Constants[2].ID)
	assert.Equal(t, []ir.Identifier{ir.Register(0)}, main.Parameters)

	require.Len(t, main.Locals, 1, "compiler-internal locals are skipped")
	assert.Equal(t, "x", main.Locals[0].Name)
	assert.Len(t, chunk.Functions(), 2)
}

func TestLoadExpressions(t *testing.T) {
	main := load(t, listing).Main
	require.Len(t, main.Instructions, 9)

	a := main.Instructions[0].(*ir.Assignment)
	assert.True(t, a.IsLocalDeclaration)
	assert.Equal(t, []string{"x"}, a.Locals)
	sum := a.Right.(*ir.BinOp)
	assert.Equal(t, ir.OpAdd, sum.Op)
	assert.Equal(t, 2, sum.Left.(*ir.Constant).ID)
	product := sum.Right.(*ir.BinOp)
	assert.Equal(t, ir.OpMul, product.Op)
	assert.Equal(t, -1.0, product.Left.(*ir.Constant).Number)

	global := main.Instructions[1].(*ir.Assignment).Right.(*ir.IdentifierReference)
	assert.Equal(t, ir.Global("print"), global.Identifier)

	child := main.Closures[0]
	concat := child.Instructions[0].(*ir.Assignment).Right.(*ir.Concat)
	assert.Len(t, concat.Exprs, 3)
	assert.Equal(t, ir.UpValue(0), concat.Exprs[0].(*ir.IdentifierReference).Identifier)
	assert.Equal(t, []string{"x"}, child.UpValueNames)
	assert.Same(t, main, child.Parent)
}

func TestLoadOpenCallsAndReturns(t *testing.T) {
	main := load(t, listing).Main

	rets := main.Instructions[2].(*ir.Assignment).Right.(*ir.FunctionCall)
	assert.True(t, rets.HasAmbiguousReturnCount)

	stmt := main.Instructions[3].(*ir.Assignment)
	assert.Empty(t, stmt.Left)
	args := stmt.Right.(*ir.FunctionCall)
	assert.True(t, args.HasAmbiguousArgumentCount)
	assert.Equal(t, uint32(4), args.BeginArg)
	assert.Equal(t, -1, args.FunctionDefIndex)

	vararg := main.Instructions[7].(*ir.Assignment)
	assert.True(t, vararg.IsAmbiguousVararg)
	assert.Equal(t, uint32(6), vararg.VarargAssignmentReg)

	ret := main.Instructions[8].(*ir.Return)
	assert.True(t, ret.IsAmbiguousReturnCount)
	assert.Equal(t, uint32(6), ret.BeginRet)
}

func TestLoadControlFlow(t *testing.T) {
	main := load(t, listing).Main

	closure := main.Instructions[4].(*ir.Assignment).Right.(*ir.Closure)
	assert.Same(t, main.Closures[0], closure.Function)
	bind := main.Instructions[5].(*ir.ClosureBinding)
	assert.Equal(t, ir.Register(1), bind.Identifier)

	cj := main.Instructions[6].(*ir.ConditionalJump)
	assert.Equal(t, ir.LabelID(8), cj.Target)
	assert.Equal(t, ir.NoBlock, cj.Dest)
	require.NotNil(t, cj.OnTaken)
	assert.Equal(t, 6, cj.OnTaken.Begin)
	assert.Equal(t, 8, main.LabelTargets[ir.LabelID(8)])
	assert.Equal(t, 18, cj.Line)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
	}{
		{
			name: "unknown constant",
			src:  "chunk \"e\" version \"1.0\"\nfunction 0 {\n  code {\n    0: r0 = k4\n  }\n}\n",
			code: errors.ErrorUnknownConstant,
		},
		{
			name: "unsupported version",
			src:  "chunk \"e\" version \"2.0\"\nfunction 0 {\n  code {\n    0: return\n  }\n}\n",
			code: errors.ErrorListingVersion,
		},
		{
			name: "duplicate function",
			src:  "chunk \"e\" version \"1.0\"\nfunction 0 {\n  code {\n    0: return\n  }\n  function 0 {\n    code {\n      0: return\n    }\n  }\n}\n",
			code: errors.ErrorDuplicateDefinition,
		},
		{
			name: "addresses out of order",
			src:  "chunk \"e\" version \"1.0\"\nfunction 0 {\n  code {\n    1: return\n    0: return\n  }\n}\n",
			code: errors.ErrorDuplicateDefinition,
		},
		{
			name: "upvalue out of range",
			src:  "chunk \"e\" version \"1.0\"\nfunction 0 upvalues 1 {\n  code {\n    0: r0 = u3\n  }\n}\n",
			code: errors.ErrorUnboundUpvalueReference,
		},
		{
			name: "unknown closure",
			src:  "chunk \"e\" version \"1.0\"\nfunction 0 {\n  code {\n    0: r0 = closure 7\n  }\n}\n",
			code: errors.ErrorListingSyntax,
		},
		{
			name: "syntax",
			src:  "chunk \"e\" version \"1.0\"\nfunction 0 {\n  code {\n    0: r0 = = r1\n  }\n}\n",
			code: errors.ErrorListingSyntax,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.LoadString("e.lst", tt.src)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.Code(err))
		})
	}
}

func TestLoadUnknownConstantPosition(t *testing.T) {
	_, err := loader.LoadString("e.lst", "chunk \"e\" version \"1.0\"\nfunction 0 {\n  code {\n    0: r0 = k4\n  }\n}\n")
	require.Error(t, err)
	var de *errors.DecompileError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 4, de.Position.Line)
	assert.Equal(t, 0, de.Function)
}
