package grammar

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
)

func newParser() (*participle.Parser[Listing], error) {
	return participle.Build[Listing](
		participle.Lexer(ListingLexer),
		participle.Elide("Whitespace", "Comment"),
		participle.Unquote("String"),
		participle.UseLookahead(3),
	)
}

// ParseFile reads and parses the listing at path.
func ParseFile(path string) (*Listing, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParseString(path, string(source))
}

// ParseString parses a listing held in memory. filename is used in error
// positions only.
func ParseString(filename, source string) (*Listing, error) {
	parser, err := newParser()
	if err != nil {
		return nil, fmt.Errorf("failed to build parser: %w", err)
	}
	listing, err := parser.ParseString(filename, source)
	if err != nil {
		return nil, err
	}
	return listing, nil
}

// ErrorPosition returns the position of a parse error, if it has one.
func ErrorPosition(err error) (lexer.Position, bool) {
	var pe participle.Error
	if errors.As(err, &pe) {
		return pe.Position(), true
	}
	return lexer.Position{}, false
}

// FormatParseError renders a friendly caret-style parse error message.
func FormatParseError(src string, err error) string {
	var pe participle.Error
	if !errors.As(err, &pe) {
		return color.RedString("Unexpected error: %s", err)
	}

	pos := pe.Position()
	lines := strings.Split(src, "\n")
	if pos.Line <= 0 || pos.Line > len(lines) {
		return color.RedString("Syntax error at unknown location: %s", err)
	}

	line := lines[pos.Line-1]
	prefix := line
	if pos.Column-1 <= len(line) {
		prefix = line[:pos.Column-1]
	}
	caret := strings.Repeat(" ", runewidth.StringWidth(prefix)) + "^"

	var b strings.Builder
	b.WriteString(color.RedString("Syntax error in %s at line %d, column %d:", pos.Filename, pos.Line, pos.Column))
	b.WriteString("\n" + line + "\n")
	b.WriteString(color.HiRedString(caret))
	b.WriteString(fmt.Sprintf("\n→ %s\n", pe.Message()))
	return b.String()
}
