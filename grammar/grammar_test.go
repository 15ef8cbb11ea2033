package grammar_test

import (
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luadec/grammar"
)

const sample = `chunk "sample.lua" version "1.0" dialect "hks"
// main chunk
function 0 params 1 upvalues 0 vararg {
  constants {
    0: "print"
    1: -2.5
    2: true
  }
  locals {
    "x" r1 2 9
  }
  code {
    0: r1 = k1
    1: r2 = $print
    2: call r2(r1, "hi") [openargs 3]
    3: if r1 < 0 goto 5 with r3 = r1
    4: jmp 6
    5: r4 = {r1, [k0] = r2.field}
    6: r5 = closure 1
    7: bind r1
    8: r6... = ... [local]
    9: return r5 [tail]
  }
  function 1 params 0 upvalues 1 {
    upvalnames {
      0: "x"
    }
    code {
      0: r0 = u0 + 1 .. "s"
      1: return r0
    }
  }
}
`

func TestParseSample(t *testing.T) {
	listing, err := grammar.ParseString("sample.lst", sample)
	require.NoError(t, err)

	assert.Equal(t, "sample.lua", listing.Header.Name)
	assert.Equal(t, "1.0", listing.Header.Version)
	assert.Equal(t, "hks", listing.Header.Dialect)

	main := listing.Main
	assert.Equal(t, 0, main.ID)
	assert.Equal(t, 1, main.Params)
	assert.True(t, main.Vararg)
	require.Len(t, main.Constants, 3)
	assert.Equal(t, "print", *main.Constants[0].Value.Str)
	assert.True(t, main.Constants[1].Value.Neg)
	assert.Equal(t, 2.5, *main.Constants[1].Value.Number)
	assert.True(t, main.Constants[2].Value.True)

	require.Len(t, main.Locals, 1)
	assert.Equal(t, "x", main.Locals[0].Name)
	assert.Equal(t, grammar.Register(1), main.Locals[0].Register)
	assert.Equal(t, 2, main.Locals[0].Begin)
	assert.Equal(t, 9, main.Locals[0].End)

	require.Len(t, main.Code, 10)
	call := main.Code[2].Op.Call
	require.NotNil(t, call)
	require.Len(t, call.Flags, 1)
	assert.Equal(t, "openargs", call.Flags[0].Name)
	assert.Equal(t, 3, call.Flags[0].Arg)

	cond := main.Code[3].Op.If
	require.NotNil(t, cond)
	assert.Equal(t, 5, cond.Target)
	require.NotNil(t, cond.With)

	open := main.Code[8].Op.Assign
	require.NotNil(t, open)
	assert.True(t, open.Targets[0].Open)
	assert.Equal(t, "local", open.Flags[0].Name)

	global := main.Code[1].Op.Assign.Value.Left.Operand.Ref.Base.Global
	require.NotNil(t, global)
	assert.Equal(t, grammar.GlobalName("print"), *global)

	require.Len(t, main.Children, 1)
	child := main.Children[0]
	assert.Equal(t, 1, child.UpValues)
	assert.Equal(t, "x", child.UpValueNames[0].Name)
	assert.Len(t, child.Code[0].Op.Assign.Value.Ops, 2)
}

func TestPrinterRoundTrip(t *testing.T) {
	listing, err := grammar.ParseString("sample.lst", sample)
	require.NoError(t, err)

	printed := listing.String()
	again, err := grammar.ParseString("printed.lst", printed)
	require.NoError(t, err)
	assert.Equal(t, printed, again.String())

	assert.Contains(t, printed, `2: call r2(r1, "hi") [openargs 3]`)
	assert.Contains(t, printed, `5: r4 = {r1, [k0] = r2.field}`)
	assert.Contains(t, printed, `8: r6... = ... [local]`)
	assert.Contains(t, printed, `1: -2.5`)
}

func TestQuotedGlobal(t *testing.T) {
	src := `chunk "g" version "1.0"
function 0 {
  code {
    0: r0 = $"odd name"
    1: return
  }
}`
	listing, err := grammar.ParseString("g.lst", src)
	require.NoError(t, err)
	global := listing.Main.Code[0].Op.Assign.Value.Left.Operand.Ref.Base.Global
	assert.Equal(t, grammar.GlobalName("odd name"), *global)
	assert.Contains(t, listing.String(), `$"odd name"`)
}

func TestParseErrorCaret(t *testing.T) {
	color.NoColor = true
	src := "chunk \"bad\" version \"1.0\"\nfunction 0 {\n  code {\n    0: r1 = = r2\n  }\n}\n"
	_, err := grammar.ParseString("bad.lst", src)
	require.Error(t, err)

	pos, ok := grammar.ErrorPosition(err)
	require.True(t, ok)
	assert.Equal(t, 4, pos.Line)

	msg := grammar.FormatParseError(src, err)
	lines := strings.Split(msg, "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Contains(t, lines[0], "line 4")
	assert.Equal(t, "    0: r1 = = r2", lines[1])
	assert.GreaterOrEqual(t, strings.Index(lines[2], "^"), strings.Index(lines[1], "0:"))
}
