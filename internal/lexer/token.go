package lexer

import "tsnc/internal/source"

// Kind tags the variant a Token holds (spec §3 "Token").
type Kind int

const (
	KindEOF Kind = iota
	KindKeyword
	KindIdentifier
	KindNumber
	KindNumberSuffix
	KindString
	KindTemplateString
	KindSymbol
	KindDot // standalone '.' after a fully-formed number, see spec §4.1 edge cases
)

func (k Kind) String() string {
	switch k {
	case KindEOF:
		return "eof"
	case KindKeyword:
		return "keyword"
	case KindIdentifier:
		return "identifier"
	case KindNumber:
		return "number"
	case KindNumberSuffix:
		return "number-suffix"
	case KindString:
		return "string"
	case KindTemplateString:
		return "template-string"
	case KindSymbol:
		return "symbol"
	case KindDot:
		return "dot"
	default:
		return "?"
	}
}

// Token is a tagged variant with its source location and raw lexeme,
// borrowed from the source buffer for the compile's lifetime (spec §3).
type Token struct {
	Kind   Kind
	Text   string // the raw lexeme, or keyword/symbol spelling
	Lexeme string // for strings: the decoded body; equal to Text otherwise
	Loc    source.Location
	// Parts holds the interpolation segments of a template-string token:
	// alternating literal-text and `${...}` expression-source slices,
	// literal segments first. Empty for non-template tokens.
	Parts []TemplatePart
}

// TemplatePart is one bracket-delimited or literal segment of a
// backtick-delimited template string (spec §4.1 "bracket-aware string
// splitting").
type TemplatePart struct {
	IsExpr bool
	Text   string // literal text, or the raw source of the `${...}` body
	Loc    source.Location
}

var keywords = map[string]bool{
	"fn": true, "let": true, "var": true, "const": true,
	"if": true, "else": true, "return": true, "while": true, "for": true,
	"match": true, "spawn": true, "import": true, "export": true,
	"channel": true, "log": true, "true": true, "false": true, "null": true,
	"class": true, "typedef": true, "new": true, "sizeof": true, "this": true,
	"try": true, "catch": true, "throw": true, "break": true, "continue": true,
	"delete": true, "static": true, "private": true, "as": true, "in": true,
	"do": true, "switch": true, "case": true, "default": true,
}

// operators in longest-match-wins order (spec §4.1).
var operators = []string{
	"<<=", ">>=", "&&=", "||=",
	"==", "!=", "<=", ">=", "&&", "||",
	"+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=",
	"<<", ">>", "++", "--", "->",
	"+", "-", "*", "/", "%", "&", "|", "^", "~", "!",
	"<", ">", "=", ".", ",", ";", ":", "?",
	"(", ")", "{", "}", "[", "]",
}

// numeric suffixes recognized by the lexer (spec §4.1): b B s S ub UB uB Ub
// us US uS Us ul UL uL Ul ull uLL ULL UlL Ull ULl uLl ulL. Matching is
// longest-first (see sortedSuffixes in scanner.go) and case-insensitive on
// the letters, but the original lexeme is preserved in the token text.
var numberSuffixes = []string{
	"b", "B", "s", "S",
	"ub", "UB", "uB", "Ub",
	"us", "US", "uS", "Us",
	"ul", "UL", "uL", "Ul",
	"ull", "uLL", "ULL", "UlL", "Ull", "ULl", "uLl", "ulL",
}
