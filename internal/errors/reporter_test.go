package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func TestErrorReporter(t *testing.T) {
	source := `function 0 params 0 upvalues 0 {
  code {
    0: jmp 7
    1: return
  }
}`

	reporter := NewErrorReporter("test.luair", source)

	err := New(ErrorMalformedControlFlow, "jump to address 7 has no target").
		InFunction(0).
		InPass("build-cfg").
		AtBlock(0).
		AtLine(3, 8).
		WithHelp("check the listing addresses").
		Build()
	formatted := reporter.FormatError(err.Diagnostic())

	assert.Contains(t, formatted, "error["+ErrorMalformedControlFlow+"]")
	assert.Contains(t, formatted, "function 0: jump to address 7 has no target")
	assert.Contains(t, formatted, "test.luair:3:8")
	assert.Contains(t, formatted, "0: jmp 7")
	assert.Contains(t, formatted, "= in pass build-cfg, block 0")
	assert.Contains(t, formatted, "help: check the listing addresses")
}

func TestErrorReporterWithoutPosition(t *testing.T) {
	reporter := NewErrorReporter("x.luair", "")
	err := New(ErrorFixpointNotReached, "loop group did not converge after %d iterations", 32).Build()

	formatted := reporter.FormatError(err.Diagnostic())
	assert.Contains(t, formatted, "warning["+ErrorFixpointNotReached+"]")
	assert.NotContains(t, formatted, "-->")
}

func TestErrorReporterFallsBackToFunctionHeader(t *testing.T) {
	source := `chunk "x" version "1.0"
function 0 {
  code {
    0: return
  }
  function 1 {
    code {
      0: return
    }
  }
}`
	reporter := NewErrorReporter("x.luair", source).WithFunctionHeaders(map[int]int{0: 2, 1: 6})

	err := New(ErrorPassFailure, "structuring left 2 blocks unplaced").
		InFunction(1).
		InPass("structure").
		AtBlock(4).
		Build()
	formatted := reporter.FormatError(err.Diagnostic())

	assert.Contains(t, formatted, "x.luair:6:3")
	assert.Contains(t, formatted, "  function 1 {")
	assert.Contains(t, formatted, "  ^^^^^^^^^^")
	assert.Contains(t, formatted, "= in pass structure, block 4")
}

func TestErrorReporterUnknownFunctionHasNoSnippet(t *testing.T) {
	reporter := NewErrorReporter("x.luair", "function 0 {\n}").WithFunctionHeaders(map[int]int{0: 1})
	err := New(ErrorPassFailure, "boom").InFunction(7).Build()

	formatted := reporter.FormatError(err.Diagnostic())
	assert.NotContains(t, formatted, "-->")
	assert.NotContains(t, formatted, "= in")
}

func TestDiagnosticIncludesCause(t *testing.T) {
	d := New(ErrorListingSyntax, "listing does not parse").Wrap(stderrors.New("unexpected token")).Build().Diagnostic()
	assert.Equal(t, "listing does not parse: unexpected token", d.Message)
	assert.Equal(t, NoFunction, d.Function)
	assert.Equal(t, -1, d.Block)
}

func TestMarkerUsesDisplayWidth(t *testing.T) {
	reporter := NewErrorReporter("x.luair", "")
	marker := reporter.createMarker(`  "日本" r1`, 10, 2, Error)
	// Two wide runes occupy four columns.
	assert.Equal(t, "       ^^", marker)
}

func TestDecompileErrorIs(t *testing.T) {
	err := New(ErrorUnboundUpvalueReference, "upvalue 3 of 2").InFunction(4).Build()
	wrapped := fmt.Errorf("decompiling: %w", err)

	assert.True(t, stderrors.Is(wrapped, Sentinel(ErrorUnboundUpvalueReference)))
	assert.False(t, stderrors.Is(wrapped, Sentinel(ErrorMalformedControlFlow)))
	assert.Equal(t, ErrorUnboundUpvalueReference, Code(wrapped))
	assert.Contains(t, err.Error(), "function 4")
}

func TestAttach(t *testing.T) {
	plain := stderrors.New("boom")
	de := Attach(plain, 2, "detect-loops")
	require.NotNil(t, de)
	assert.Equal(t, ErrorPassFailure, de.Code)
	assert.Equal(t, 2, de.Function)
	assert.ErrorIs(t, de, plain)

	coded := New(ErrorMalformedControlFlow, "dangling label").Build()
	de = Attach(coded, 5, "build-cfg")
	assert.Same(t, coded, de)
	assert.Equal(t, "build-cfg", de.Pass)
}

func TestWarningLevel(t *testing.T) {
	assert.True(t, New(ErrorFixpointNotReached, "x").Build().IsWarning())
	assert.False(t, New(ErrorUnimplementedInstruction, "x").Build().IsWarning())
	assert.NotEqual(t, "Unknown error", GetErrorDescription(ErrorAnalysisStalenessViolation))
}
