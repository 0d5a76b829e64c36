package parser

import (
	"tsnc/internal/arena"
	"tsnc/internal/diag"
	"tsnc/internal/lexer"
)

// Rule produces a node or arena.Nil on failure; rules must not leave the
// cursor in a partially-advanced state on failure without the caller having
// wrapped them in Push/Revert — every combinator below does that wrapping
// itself so callers can compose freely (spec §4.2).
type Rule func() arena.Pos

// ArrayOf is the spec's `array_of`: greedy, it matches elements until one
// fails, reverting only that failed attempt, and returns the elements
// matched before it; when the first element fails it yields nothing and
// leaves the cursor where it started.
func (p *Parser) ArrayOf(rule Rule) []arena.Pos {
	p.cur.Push()
	var out []arena.Pos
	for {
		mark := p.cur.Pos()
		p.cur.Push()
		n := rule()
		if n == arena.Nil || p.cur.Pos() == mark {
			p.cur.Revert()
			break
		}
		p.cur.Commit()
		out = append(out, n)
	}
	p.cur.Commit()
	if len(out) == 0 {
		return nil
	}
	return out
}

// ListOf is the spec's `list_of`: comma-separated elements. A trailing comma
// with no following element, or a non-match right after a comma, emits the
// supplied diagnostic and yields an error node in that slot rather than
// aborting the whole list.
func (p *Parser) ListOf(rule Rule, beforeErr, afterErr string) []arena.Pos {
	var out []arena.Pos
	first := rule()
	if first == arena.Nil {
		return nil
	}
	out = append(out, first)
	for p.cur.MatchSymbol(",") {
		mark := p.cur.Pos()
		n := rule()
		if n == arena.Nil || p.cur.Pos() == mark {
			tok := p.cur.Peek()
			msg := afterErr
			if msg == "" {
				msg = beforeErr
			}
			p.log.Errorf(diag.CodeTrailingComma, p.loc(tok), "%s", msg)
			out = append(out, p.tree.Error(tok))
			break
		}
		out = append(out, n)
	}
	return out
}

// OneOf tries each rule in order, reverting between attempts, and returns
// the first that matches.
func (p *Parser) OneOf(rules ...Rule) arena.Pos {
	for _, r := range rules {
		p.cur.Push()
		n := r()
		if n != arena.Nil {
			p.cur.Commit()
			return n
		}
		p.cur.Revert()
	}
	return arena.Nil
}

// AllOf concatenates a sequence of rules; if any fails, the whole sequence
// reverts and AllOf returns nil.
func (p *Parser) AllOf(rules ...Rule) []arena.Pos {
	p.cur.Push()
	out := make([]arena.Pos, 0, len(rules))
	for _, r := range rules {
		n := r()
		if n == arena.Nil {
			p.cur.Revert()
			return nil
		}
		out = append(out, n)
	}
	p.cur.Commit()
	return out
}

// Eos consumes an optional statement terminator.
func (p *Parser) Eos() { p.cur.MatchSymbol(";") }

// EosRequired consumes a mandatory ';'. On failure it emits a diagnostic and
// recovers by skipping ahead to the next statement boundary — a ';' (which
// it consumes), a '}', or the start of a new statement — rather than
// scanning blindly for a ';' that might belong to a later statement
// (spec §4.2, §7).
func (p *Parser) EosRequired() {
	if p.cur.MatchSymbol(";") {
		return
	}
	tok := p.cur.Peek()
	p.log.Errorf(diag.CodeUnexpectedToken, p.loc(tok), "expected ';', got %q", tok.Text)
	p.syncToStatementBoundary()
}

// syncToStatementBoundary implements the parser's error recovery: skip ahead
// to the next ';', '}', or statement-starting keyword (spec §7).
func (p *Parser) syncToStatementBoundary() {
	for !p.cur.AtEnd() {
		if p.cur.CheckSymbol(";") {
			p.cur.Advance()
			return
		}
		if p.cur.CheckSymbol("}") {
			return
		}
		switch p.cur.Peek().Kind {
		case lexer.KindKeyword:
			switch p.cur.Peek().Text {
			case "fn", "let", "var", "const", "if", "while", "for", "return",
				"class", "import", "try", "throw", "switch", "break", "continue":
				return
			}
		}
		p.cur.Advance()
	}
}
