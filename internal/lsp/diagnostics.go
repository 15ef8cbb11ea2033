package lsp

import (
	"context"
	"fmt"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"luadec/grammar"
	"luadec/internal/decompiler"
	"luadec/internal/errors"
	"luadec/internal/loader"
)

const diagnosticSource = "luadec"

// Analyze parses, loads and decompiles text and returns every problem
// found as LSP diagnostics. A listing that does not parse or load stops at
// the first error; decompilation failures are reported per function.
func Analyze(ctx context.Context, path, text string, opts decompiler.Options) []protocol.Diagnostic {
	listing, err := grammar.ParseString(path, text)
	if err != nil {
		return []protocol.Diagnostic{ConvertParseError(err)}
	}
	lines := listing.FunctionLines()

	chunk, err := loader.Load(listing)
	if err != nil {
		return []protocol.Diagnostic{ConvertDecompileError(asDecompileError(err), lines)}
	}

	res, err := decompiler.Decompile(ctx, chunk, opts)
	if err != nil {
		return []protocol.Diagnostic{ConvertDecompileError(asDecompileError(err), lines)}
	}

	diagnostics := []protocol.Diagnostic{}
	for _, e := range res.Failures() {
		diagnostics = append(diagnostics, ConvertDecompileError(e, lines))
	}
	for _, w := range res.Warnings() {
		diagnostics = append(diagnostics, ConvertDecompileError(w, lines))
	}
	return diagnostics
}

func asDecompileError(err error) *errors.DecompileError {
	return errors.Attach(err, errors.NoFunction, "")
}

// ConvertParseError transforms a listing syntax error into a diagnostic at
// the offending token.
func ConvertParseError(err error) protocol.Diagnostic {
	var line, col uint32
	if pos, ok := grammar.ErrorPosition(err); ok {
		line, col = zeroBased(pos.Line), zeroBased(pos.Column)
	}
	return protocol.Diagnostic{
		Range: protocol.Range{
			Start: protocol.Position{Line: line, Character: col},
			End:   protocol.Position{Line: line, Character: col + 1},
		},
		Severity: ptrSeverity(protocol.DiagnosticSeverityError),
		Code:     &protocol.IntegerOrString{Value: errors.ErrorListingSyntax},
		Source:   ptrString(diagnosticSource),
		Message:  err.Error(),
	}
}

// ConvertDecompileError places e at its listing position, or at the header
// of the function it belongs to when it has none. Errors with neither sit
// on the first line.
func ConvertDecompileError(e *errors.DecompileError, lines map[int]int) protocol.Diagnostic {
	line := e.Position.Line
	col := e.Position.Column
	if line == 0 {
		line, col = lines[e.Function], 1
	}

	severity := protocol.DiagnosticSeverityError
	if e.IsWarning() {
		severity = protocol.DiagnosticSeverityWarning
	}

	msg := e.Message
	if e.Function != errors.NoFunction {
		msg = fmt.Sprintf("function %d: %s", e.Function, msg)
	}
	if e.Pass != "" {
		msg = fmt.Sprintf("%s (in %s)", msg, e.Pass)
	}
	if e.HelpText != "" {
		msg += "\nhelp: " + e.HelpText
	}

	start := protocol.Position{Line: zeroBased(line), Character: zeroBased(col)}
	return protocol.Diagnostic{
		Range:    protocol.Range{Start: start, End: protocol.Position{Line: start.Line, Character: start.Character + 1}},
		Severity: ptrSeverity(severity),
		Code:     &protocol.IntegerOrString{Value: e.Code},
		Source:   ptrString(diagnosticSource),
		Message:  msg,
	}
}

func zeroBased(n int) uint32 {
	if n <= 1 {
		return 0
	}
	return uint32(n - 1)
}

func ptrSeverity(s protocol.DiagnosticSeverity) *protocol.DiagnosticSeverity {
	return &s
}

func ptrString(s string) *string {
	return &s
}
