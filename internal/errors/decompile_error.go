package errors

import (
	"errors"
	"fmt"
	"strings"
)

// DecompileError is a coded failure scoped to one function.
type DecompileError struct {
	Level    ErrorLevel
	Code     string
	Message  string
	Function int
	Pass     string
	Block    int
	Position Position
	Notes    []string
	HelpText string
	Cause    error
}

// NoFunction marks an error not tied to a function.
const NoFunction = -1

func (e *DecompileError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%s]", e.Level, e.Code)
	if e.Function != NoFunction {
		fmt.Fprintf(&b, " function %d", e.Function)
	}
	if e.Pass != "" {
		fmt.Fprintf(&b, " in %s", e.Pass)
	}
	if e.Block >= 0 {
		fmt.Fprintf(&b, " at block %d", e.Block)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *DecompileError) Unwrap() error { return e.Cause }

// Is matches another *DecompileError by code, so a bare code works as a
// sentinel: errors.Is(err, &DecompileError{Code: ErrorMalformedControlFlow}).
func (e *DecompileError) Is(target error) bool {
	t, ok := target.(*DecompileError)
	return ok && t.Code == e.Code
}

// IsWarning reports whether the error leaves the function's output usable.
func (e *DecompileError) IsWarning() bool { return e.Level == Warning }

// Diagnostic converts e for the reporter.
func (e *DecompileError) Diagnostic() Diagnostic {
	msg := e.Message
	if e.Function != NoFunction {
		msg = fmt.Sprintf("function %d: %s", e.Function, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Cause.Error())
	}
	return Diagnostic{
		Level:    e.Level,
		Code:     e.Code,
		Message:  msg,
		Position: e.Position,
		Length:   1,
		Function: e.Function,
		Pass:     e.Pass,
		Block:    e.Block,
		Notes:    e.Notes,
		HelpText: e.HelpText,
	}
}

// Code returns the code of the first *DecompileError in err's chain, or "".
func Code(err error) string {
	var de *DecompileError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Sentinel returns a code-only error usable as an errors.Is target.
func Sentinel(code string) error { return &DecompileError{Code: code} }

// ErrorBuilder provides a fluent interface for creating decompile errors
type ErrorBuilder struct {
	err DecompileError
}

// New starts an error with the given code.
func New(code, format string, args ...any) *ErrorBuilder {
	level := Error
	if IsWarning(code) {
		level = Warning
	}
	return &ErrorBuilder{err: DecompileError{
		Level:    level,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Function: NoFunction,
		Block:    -1,
	}}
}

// InFunction records the function id.
func (b *ErrorBuilder) InFunction(id int) *ErrorBuilder {
	b.err.Function = id
	return b
}

// InPass records the pass name.
func (b *ErrorBuilder) InPass(name string) *ErrorBuilder {
	b.err.Pass = name
	return b
}

// AtBlock records the block id.
func (b *ErrorBuilder) AtBlock(id int) *ErrorBuilder {
	b.err.Block = id
	return b
}

// AtLine records a listing position.
func (b *ErrorBuilder) AtLine(line, column int) *ErrorBuilder {
	b.err.Position = Position{Line: line, Column: column}
	return b
}

// WithNote adds a note to the error
func (b *ErrorBuilder) WithNote(format string, args ...any) *ErrorBuilder {
	b.err.Notes = append(b.err.Notes, fmt.Sprintf(format, args...))
	return b
}

// WithHelp sets help text on the error
func (b *ErrorBuilder) WithHelp(help string) *ErrorBuilder {
	b.err.HelpText = help
	return b
}

// Wrap records an underlying cause.
func (b *ErrorBuilder) Wrap(cause error) *ErrorBuilder {
	b.err.Cause = cause
	return b
}

// Build returns the completed error
func (b *ErrorBuilder) Build() *DecompileError {
	e := b.err
	return &e
}

// Attach fills in function and pass on err if it is a *DecompileError
// lacking them, or wraps any other error as a pass failure.
func Attach(err error, function int, pass string) *DecompileError {
	var de *DecompileError
	if errors.As(err, &de) {
		if de.Function == NoFunction {
			de.Function = function
		}
		if de.Pass == "" {
			de.Pass = pass
		}
		return de
	}
	return New(ErrorPassFailure, "pass failed").InFunction(function).InPass(pass).Wrap(err).Build()
}
