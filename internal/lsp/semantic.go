package lsp

import (
	"unicode/utf16"

	"github.com/alecthomas/participle/v2/lexer"

	"luadec/grammar"
)

// SemanticToken represents a single LSP semantic token entry
// Line and StartChar are 0-based positions
// TokenType is an index into SemanticTokenTypes
// TokenModifiers is a bitmask based on SemanticTokenModifiers
type SemanticToken struct {
	Line           uint32
	StartChar      uint32
	Length         uint32
	TokenType      int
	TokenModifiers int
}

// Keywords are the reserved words of the listing format.
var Keywords = []string{
	"and", "bind", "call", "chunk", "closure", "code", "constants", "data",
	"dialect", "false", "forloop", "function", "globals", "goto", "if",
	"jmp", "locals", "nil", "not", "or", "params", "return", "true",
	"unimplemented", "upvalnames", "upvalues", "vararg", "version", "with",
}

var keywordSet = func() map[string]bool {
	m := make(map[string]bool, len(Keywords))
	for _, k := range Keywords {
		m[k] = true
	}
	return m
}()

// collectSemanticTokens lexes text and classifies every token. Lexing
// stops quietly at the first invalid character so a half-typed document
// still highlights up to it.
func collectSemanticTokens(filename, text string) []SemanticToken {
	lx, err := grammar.ListingLexer.LexString(filename, text)
	if err != nil {
		return nil
	}
	names := lexer.SymbolsByRune(grammar.ListingLexer)

	var tokens []SemanticToken
	prevDot := false
	for {
		tok, err := lx.Next()
		if err != nil || tok.EOF() {
			return tokens
		}
		kind := names[tok.Type]
		if kind == "Whitespace" {
			continue
		}

		tokenType, modifiers := classify(kind, tok.Value, prevDot)
		prevDot = kind == "Punctuation" && tok.Value == "."
		if tokenType == "" {
			continue
		}
		tokens = append(tokens, makeToken(tok.Pos, tok.Value, tokenType, modifiers))
	}
}

func classify(kind, value string, afterDot bool) (string, int) {
	switch kind {
	case "Comment":
		return "comment", 0
	case "Flag":
		return "macro", 0
	case "String":
		return "string", 0
	case "Register":
		return "variable", 0
	case "UpValue":
		return "parameter", 0
	case "Const":
		return "enumMember", modifierBit("readonly")
	case "Global":
		return "property", modifierBit("static")
	case "Addr":
		return "number", modifierBit("declaration")
	case "Number":
		return "number", 0
	case "Operator":
		return "operator", 0
	case "Ident":
		if afterDot {
			return "property", 0
		}
		if keywordSet[value] {
			return "keyword", 0
		}
		return "variable", 0
	}
	return "", 0
}

// makeToken creates a semantic token for a lexed value. Lengths are in
// UTF-16 code units as LSP requires.
func makeToken(pos lexer.Position, value, tokenType string, modifiers int) SemanticToken {
	return SemanticToken{
		Line:           zeroBased(pos.Line),
		StartChar:      zeroBased(pos.Column),
		Length:         uint32(len(utf16.Encode([]rune(value)))),
		TokenType:      indexOf(tokenType, SemanticTokenTypes),
		TokenModifiers: modifiers,
	}
}

func modifierBit(name string) int {
	return 1 << indexOf(name, SemanticTokenModifiers)
}

// encodeSemanticTokens applies the LSP delta-line, delta-start encoding.
func encodeSemanticTokens(tokens []SemanticToken) []uint32 {
	data := make([]uint32, 0, len(tokens)*5)
	var prevLine, prevStart uint32
	for _, token := range tokens {
		deltaLine := token.Line - prevLine
		deltaStart := token.StartChar
		if deltaLine == 0 {
			deltaStart = token.StartChar - prevStart
		}
		data = append(data, deltaLine, deltaStart, token.Length, uint32(token.TokenType), uint32(token.TokenModifiers))
		prevLine = token.Line
		prevStart = token.StartChar
	}
	return data
}

// indexOf returns the index of a string in a slice, or 0 if not found
func indexOf(target string, list []string) int {
	for i, v := range list {
		if v == target {
			return i
		}
	}
	return 0
}
