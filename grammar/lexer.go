package grammar

import (
	"github.com/alecthomas/participle/v2/lexer"
)

var ListingLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{"Comment", `//[^\n]*`, nil},

		// Flags are single tokens so that '[' stays unambiguous in indexing
		{"Flag", `\[(local|propagate|list|openrets|tail|openargs\s+[0-9]+)\]`, nil},

		{"String", `"(\\.|[^"\\])*"`, nil},

		// Operands (before identifiers: r1 is a register, not a name)
		{"Register", `r[0-9]+\b`, nil},
		{"UpValue", `u[0-9]+\b`, nil},
		{"Const", `k[0-9]+\b`, nil},
		{"Global", `\$([A-Za-z_][A-Za-z0-9_]*|"(\\.|[^"\\])*")`, nil},

		{"Ident", `[A-Za-z_][A-Za-z0-9_]*`, nil},

		// An address label "12:" heads each code line and constant entry
		{"Addr", `[0-9]+:`, nil},
		{"Number", `[0-9]+(\.[0-9]+)?([eE][-+]?[0-9]+)?`, nil},

		{"Operator", `\.\.\.|\.\.|==|~=|<=|>=|[-+*/%^#<>=]`, nil},
		{"Punctuation", `[{}[\]().,]`, nil},

		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})
