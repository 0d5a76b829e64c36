package lexer

import (
	"sort"
	"unicode"

	"tsnc/internal/diag"
	"tsnc/internal/source"
)

// Scanner turns source text into a token stream, grounded on the teacher's
// internal/lexer/scanner.go hand-written switch-on-lookahead structure,
// extended with numeric suffixes, the three string forms, and longest-match
// operators (spec §4.1).
type Scanner struct {
	buf     *source.Buffer
	src     []byte
	start   int
	current int
	log     *diag.Logger

	// lastSignificant/lastText track the previous emitted token so a
	// following '-' can be classified as unary (numeric sign) vs binary
	// subtraction: unary only when the previous token cannot terminate an
	// expression (spec §4.1).
	lastSignificant Kind
	lastText        string
	haveLast        bool
}

var sortedOperators []string
var sortedSuffixes []string

func init() {
	sortedOperators = append([]string{}, operators...)
	sort.Slice(sortedOperators, func(i, j int) bool { return len(sortedOperators[i]) > len(sortedOperators[j]) })
	sortedSuffixes = append([]string{}, numberSuffixes...)
	sort.Slice(sortedSuffixes, func(i, j int) bool { return len(sortedSuffixes[i]) > len(sortedSuffixes[j]) })
}

func NewScanner(buf *source.Buffer) *Scanner {
	return &Scanner{buf: buf, src: buf.Text(), log: &diag.Logger{}}
}

// Tokenize runs the scanner to completion, returning every token (including
// a final EOF) and any diagnostics raised along the way (spec §4.1).
func Tokenize(buf *source.Buffer) ([]Token, []diag.Diagnostic) {
	s := NewScanner(buf)
	var toks []Token
	for {
		t := s.Next()
		toks = append(toks, t)
		if t.Kind == KindNumber {
			if suf, ok := s.maybeScanSuffix(); ok {
				toks = append(toks, suf)
			}
		}
		if t.Kind == KindEOF {
			break
		}
	}
	return toks, s.log.All()
}

func (s *Scanner) atEnd() bool { return s.current >= len(s.src) }

func (s *Scanner) peek() byte {
	if s.atEnd() {
		return 0
	}
	return s.src[s.current]
}

func (s *Scanner) peekAt(off int) byte {
	if s.current+off >= len(s.src) {
		return 0
	}
	return s.src[s.current+off]
}

func (s *Scanner) advance() byte {
	c := s.src[s.current]
	s.current++
	return c
}

func (s *Scanner) match(c byte) bool {
	if s.peek() != c {
		return false
	}
	s.current++
	return true
}

func (s *Scanner) loc() source.Location {
	return s.buf.Locate(s.start, s.current-s.start)
}

func (s *Scanner) skipTrivia() {
	for !s.atEnd() {
		c := s.peek()
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			s.current++
		case c == '/' && s.peekAt(1) == '/':
			for !s.atEnd() && s.peek() != '\n' {
				s.current++
			}
		case c == '/' && s.peekAt(1) == '*':
			s.current += 2
			for !s.atEnd() && !(s.peek() == '*' && s.peekAt(1) == '/') {
				s.current++
			}
			if !s.atEnd() {
				s.current += 2
			}
		default:
			return
		}
	}
}

// Next scans and returns the next token, emitting KindEOF forever once the
// source is exhausted.
func (s *Scanner) Next() Token {
	// Shebang at the very start of the file (grounded on the teacher's
	// skipShebang in internal/lexer/scanner.go).
	if s.current == 0 && len(s.src) >= 2 && s.src[0] == '#' && s.src[1] == '!' {
		for !s.atEnd() && s.peek() != '\n' {
			s.current++
		}
	}

	s.skipTrivia()
	s.start = s.current
	if s.atEnd() {
		return s.emit(Token{Kind: KindEOF, Loc: s.loc()})
	}

	c := s.peek()
	switch {
	case isDigit(c):
		return s.scanNumber()
	case c == '-' && isDigit(s.peekAt(1)) && s.canPrecedeUnaryMinus():
		return s.scanNumber()
	case isAlpha(c):
		return s.scanIdentifier()
	case c == '\'' || c == '"':
		return s.scanString(c)
	case c == '`':
		return s.scanTemplateString()
	default:
		return s.scanOperator()
	}
}

func (s *Scanner) emit(t Token) Token {
	s.lastSignificant = t.Kind
	s.lastText = t.Text
	s.haveLast = true
	return t
}

// canPrecedeUnaryMinus reports whether the previous significant token cannot
// terminate an expression, i.e. a following '-' must be a numeric literal's
// sign rather than a binary subtraction operator (spec §4.1).
func (s *Scanner) canPrecedeUnaryMinus() bool {
	if !s.haveLast {
		return true
	}
	switch s.lastSignificant {
	case KindIdentifier, KindNumber, KindNumberSuffix, KindString, KindTemplateString:
		return false
	case KindKeyword:
		switch s.lastText {
		case "true", "false", "null", "this":
			return false
		}
	}
	if s.lastSignificant == KindSymbol {
		switch s.lastText {
		case ")", "]", "}":
			return false
		}
	}
	return true
}

// scanNumber scans an optional leading '-', a decimal integer part, and an
// optional fractional part; a standalone '.' following a fully-formed
// number is left for the next call to scanOperator to pick up as its own
// dot token (spec §4.1 edge case, S2).
func (s *Scanner) scanNumber() Token {
	if s.peek() == '-' {
		s.advance()
	}
	for isDigit(s.peek()) {
		s.advance()
	}
	if s.peek() == '.' && isDigit(s.peekAt(1)) {
		s.advance()
		for isDigit(s.peek()) {
			s.advance()
		}
	}
	text := string(s.src[s.start:s.current])
	tok := s.emit(Token{Kind: KindNumber, Text: text, Lexeme: text, Loc: s.loc()})
	return tok
}

// maybeScanSuffix is called right after a KindNumber token is scanned; when
// the next characters begin a recognized suffix it scans and returns that
// suffix token.
func (s *Scanner) maybeScanSuffix() (Token, bool) {
	for _, suf := range sortedSuffixes {
		if s.hasPrefixFold(suf) && !isAlnum(s.peekAt(len(suf))) {
			start := s.current
			s.current += len(suf)
			s.start = start
			text := string(s.src[start:s.current])
			return s.emit(Token{Kind: KindNumberSuffix, Text: text, Lexeme: text, Loc: s.loc()}), true
		}
	}
	return Token{}, false
}

func (s *Scanner) hasPrefixFold(p string) bool {
	for i := 0; i < len(p); i++ {
		if s.peekAt(i) == 0 {
			return false
		}
		a, b := s.peekAt(i), p[i]
		if a != b && foldByte(a) != foldByte(b) {
			return false
		}
	}
	return true
}

func foldByte(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + 32
	}
	return c
}

func (s *Scanner) scanIdentifier() Token {
	for isAlnum(s.peek()) {
		s.advance()
	}
	text := string(s.src[s.start:s.current])
	kind := KindIdentifier
	if keywords[text] {
		kind = KindKeyword
	}
	return s.emit(Token{Kind: kind, Text: text, Lexeme: text, Loc: s.loc()})
}

// scanString handles the single- and double-quoted forms. '\' escapes the
// delimiter and itself (spec §4.1).
func (s *Scanner) scanString(delim byte) Token {
	s.advance() // opening delimiter
	var lexeme []byte
	for !s.atEnd() && s.peek() != delim {
		c := s.advance()
		if c == '\\' && !s.atEnd() {
			esc := s.advance()
			lexeme = append(lexeme, decodeEscape(esc))
			continue
		}
		lexeme = append(lexeme, c)
	}
	if s.atEnd() {
		loc := s.buf.Locate(s.start, 1)
		s.log.Errorf(diag.CodeUnterminatedStr, loc, "unterminated string literal")
		return s.emit(Token{Kind: KindString, Text: string(s.src[s.start:s.current]), Lexeme: string(lexeme), Loc: s.loc()})
	}
	s.advance() // closing delimiter
	text := string(s.src[s.start:s.current])
	return s.emit(Token{Kind: KindString, Text: text, Lexeme: string(lexeme), Loc: s.loc()})
}

func decodeEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	case '0':
		return 0
	default:
		return c // includes the delimiter and '\\' itself
	}
}

// scanTemplateString scans a backtick-delimited template string, splitting
// it into alternating literal/`${...}` segments. Bracket-aware: the splitter
// tracks brace nesting depth inside an interpolation so a literal `}` inside
// a nested object/block expression does not end the interpolation early
// (spec §1, "bracket-aware string splitting").
func (s *Scanner) scanTemplateString() Token {
	s.advance() // opening backtick
	var parts []TemplatePart
	var lit []byte
	litStart := s.current
	flushLit := func(end int) {
		if end > litStart {
			parts = append(parts, TemplatePart{Text: string(lit), Loc: s.buf.Locate(litStart, end-litStart)})
		}
		lit = nil
	}
	for !s.atEnd() && s.peek() != '`' {
		if s.peek() == '\\' {
			pos := s.current
			s.advance()
			if !s.atEnd() {
				lit = append(lit, decodeEscape(s.advance()))
			}
			_ = pos
			continue
		}
		if s.peek() == '$' && s.peekAt(1) == '{' {
			flushLit(s.current)
			s.current += 2
			exprStart := s.current
			depth := 1
			for !s.atEnd() && depth > 0 {
				switch s.peek() {
				case '{':
					depth++
				case '}':
					depth--
					if depth == 0 {
						break
					}
				}
				if depth > 0 {
					s.advance()
				}
			}
			exprText := string(s.src[exprStart:s.current])
			parts = append(parts, TemplatePart{IsExpr: true, Text: exprText, Loc: s.buf.Locate(exprStart, s.current-exprStart)})
			if !s.atEnd() {
				s.advance() // closing '}'
			}
			litStart = s.current
			continue
		}
		lit = append(lit, s.advance())
	}
	if s.atEnd() {
		loc := s.buf.Locate(s.start, 1)
		s.log.Errorf(diag.CodeUnterminatedStr, loc, "unterminated template string literal")
	} else {
		flushLit(s.current)
		s.advance() // closing backtick
	}
	text := string(s.src[s.start:s.current])
	return s.emit(Token{Kind: KindTemplateString, Text: text, Lexeme: text, Loc: s.loc(), Parts: parts})
}

func (s *Scanner) scanOperator() Token {
	// Standalone dot after a fully-formed number (S2): the lexer's main
	// switch only reaches here for '.', and scanNumber already consumed any
	// dot that had a following digit, so a lone '.' always tokenizes as Dot.
	if s.peek() == '.' {
		s.advance()
		text := string(s.src[s.start:s.current])
		return s.emit(Token{Kind: KindDot, Text: text, Lexeme: text, Loc: s.loc()})
	}
	for _, op := range sortedOperators {
		if op == "." {
			continue
		}
		if s.hasPrefixExact(op) {
			s.current += len(op)
			text := op
			return s.emit(Token{Kind: KindSymbol, Text: text, Lexeme: text, Loc: s.loc()})
		}
	}
	// Unknown character: emit an error, advance one byte, continue (spec §7).
	loc := s.buf.Locate(s.start, 1)
	s.log.Errorf(diag.CodeUnknownChar, loc, "unexpected character %q", s.peek())
	s.advance()
	return s.Next()
}

func (s *Scanner) hasPrefixExact(p string) bool {
	for i := 0; i < len(p); i++ {
		if s.peekAt(i) != p[i] {
			return false
		}
	}
	return true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isAlpha(c byte) bool { return c == '_' || unicode.IsLetter(rune(c)) }
func isAlnum(c byte) bool { return isAlpha(c) || isDigit(c) }
