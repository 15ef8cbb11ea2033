package errors

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
)

// ErrorLevel represents the severity of an error
type ErrorLevel string

const (
	Error   ErrorLevel = "error"
	Warning ErrorLevel = "warning"
	Note    ErrorLevel = "note"
	Help    ErrorLevel = "help"
)

// Position is a 1-based location in a listing file. A zero Line means
// the error has no source location.
type Position struct {
	Line   int
	Column int
}

// Diagnostic is a rendered view of a DecompileError: the coded message,
// where it points in the listing and the pipeline scope it was raised in.
type Diagnostic struct {
	Level    ErrorLevel
	Code     string
	Message  string
	Position Position
	Length   int

	// Function is NoFunction for listing-wide problems.
	Function int
	Pass     string
	// Block is -1 when the error is not tied to a block.
	Block int

	Notes    []string
	HelpText string
}

// ErrorReporter renders diagnostics against the listing they came from.
type ErrorReporter struct {
	filename string
	lines    []string
	headers  map[int]int
}

// NewErrorReporter creates a new error reporter for a file
func NewErrorReporter(filename, source string) *ErrorReporter {
	return &ErrorReporter{
		filename: filename,
		lines:    strings.Split(source, "\n"),
	}
}

// WithFunctionHeaders maps function ids to the line of their header, so
// diagnostics scoped to a function but lacking a position point there.
func (er *ErrorReporter) WithFunctionHeaders(lines map[int]int) *ErrorReporter {
	er.headers = lines
	return er
}

// FormatError renders d in the style of rustc: a coded header, the listing
// lines around its position with a marker, then the pipeline scope, notes
// and help. Diagnostics with no position print only the header and trailer.
func (er *ErrorReporter) FormatError(d Diagnostic) string {
	var result strings.Builder

	levelColor := levelColor(d.Level)
	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	if d.Code != "" {
		fmt.Fprintf(&result, "%s[%s]: %s\n", levelColor(string(d.Level)), d.Code, d.Message)
	} else {
		fmt.Fprintf(&result, "%s: %s\n", levelColor(string(d.Level)), d.Message)
	}

	pos, length := er.locate(d)
	if pos.Line <= 0 || pos.Line > len(er.lines) {
		er.writeTrailer(&result, d, "  ")
		result.WriteString("\n")
		return result.String()
	}

	width := max(len(strconv.Itoa(pos.Line+1)), 3)
	indent := strings.Repeat(" ", width)
	number := func(n int) string { return fmt.Sprintf("%*d", width, n) }

	fmt.Fprintf(&result, "%s %s %s:%d:%d\n", indent, dim("-->"), er.filename, pos.Line, pos.Column)
	fmt.Fprintf(&result, "%s %s\n", indent, dim("│"))
	if pos.Line > 1 {
		fmt.Fprintf(&result, "%s %s %s\n", dim(number(pos.Line-1)), dim("│"), er.lines[pos.Line-2])
	}
	line := er.lines[pos.Line-1]
	fmt.Fprintf(&result, "%s %s %s\n", bold(number(pos.Line)), dim("│"), line)
	fmt.Fprintf(&result, "%s %s %s\n", indent, dim("│"), er.createMarker(line, pos.Column, length, d.Level))
	if pos.Line < len(er.lines) {
		fmt.Fprintf(&result, "%s %s %s\n", dim(number(pos.Line+1)), dim("│"), er.lines[pos.Line])
	}

	er.writeTrailer(&result, d, indent)
	result.WriteString("\n")
	return result.String()
}

// locate returns where d points. A function-scoped diagnostic without a
// position falls back to the "function N" keyword of its header.
func (er *ErrorReporter) locate(d Diagnostic) (Position, int) {
	if d.Position.Line > 0 {
		return Position{Line: d.Position.Line, Column: max(d.Position.Column, 1)}, d.Length
	}
	if d.Function == NoFunction {
		return Position{}, 0
	}
	line, ok := er.headers[d.Function]
	if !ok || line <= 0 || line > len(er.lines) {
		return Position{}, 0
	}
	keyword := fmt.Sprintf("function %d", d.Function)
	col := strings.Index(er.lines[line-1], keyword)
	if col < 0 {
		return Position{Line: line, Column: 1}, 1
	}
	return Position{Line: line, Column: col + 1}, len(keyword)
}

// writeTrailer appends the pipeline scope, notes and help text.
func (er *ErrorReporter) writeTrailer(result *strings.Builder, d Diagnostic, indent string) {
	dim := color.New(color.Faint).SprintFunc()

	if scope := scopeOf(d); scope != "" {
		fmt.Fprintf(result, "%s %s in %s\n", indent, dim("="), scope)
	}

	noteColor := color.New(color.FgBlue).SprintFunc()
	for _, note := range d.Notes {
		fmt.Fprintf(result, "%s %s %s %s\n", indent, dim("│"), noteColor("note:"), note)
	}

	if d.HelpText != "" {
		helpColor := color.New(color.FgGreen).SprintFunc()
		fmt.Fprintf(result, "%s %s %s %s\n", indent, dim("│"), helpColor("help:"), d.HelpText)
	}
}

// scopeOf names the pass and block d was raised in.
func scopeOf(d Diagnostic) string {
	var parts []string
	if d.Pass != "" {
		parts = append(parts, "pass "+d.Pass)
	}
	if d.Block >= 0 {
		parts = append(parts, fmt.Sprintf("block %d", d.Block))
	}
	return strings.Join(parts, ", ")
}

func levelColor(level ErrorLevel) func(...interface{}) string {
	switch level {
	case Warning:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	case Note:
		return color.New(color.FgBlue, color.Bold).SprintFunc()
	case Help:
		return color.New(color.FgGreen, color.Bold).SprintFunc()
	default:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	}
}

// createMarker underlines length display columns starting at column.
func (er *ErrorReporter) createMarker(line string, column, length int, level ErrorLevel) string {
	if length <= 0 {
		length = 1
	}
	prefix := line
	if column-1 < len(line) {
		prefix = line[:max(0, column-1)]
	}
	spaces := strings.Repeat(" ", runewidth.StringWidth(prefix))
	return spaces + levelColor(level)(strings.Repeat("^", length))
}
