package parser

import (
	"tsnc/internal/diag"
	"tsnc/internal/lexer"
)

// Cursor is the transactional token cursor of spec §4.2: a stack of saved
// positions (push/commit/revert) paired with a per-transaction diagnostic
// log, so a production can attempt an alternative grammar rule and back out
// cleanly without emitting spurious diagnostics. Grounded on the teacher's
// ad hoc `saved := p.current; defer func(){p.current = saved}()` pattern in
// internal/parser/parser.go's isMapLiteral, promoted to a reusable type.
type Cursor struct {
	toks    []lexer.Token
	pos     int
	stack   []frame
	Log     *diag.Logger
}

type frame struct {
	pos      int
	logMark  int
}

func NewCursor(toks []lexer.Token, log *diag.Logger) *Cursor {
	return &Cursor{toks: toks, Log: log}
}

// Push saves the current position and diagnostic mark, opening a new
// transaction.
func (c *Cursor) Push() {
	c.stack = append(c.stack, frame{pos: c.pos, logMark: c.Log.Mark()})
}

// Commit discards the most recently pushed save point, keeping whatever
// advancement and diagnostics happened since.
func (c *Cursor) Commit() {
	c.stack = c.stack[:len(c.stack)-1]
}

// Revert restores the cursor to the most recently pushed position and
// discards every diagnostic logged since, so a failed alternative leaves no
// trace.
func (c *Cursor) Revert() {
	top := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
	c.pos = top.pos
	c.Log.Revert(top.logMark)
}

func (c *Cursor) Peek() lexer.Token  { return c.toks[c.pos] }
func (c *Cursor) PeekAt(n int) lexer.Token {
	if c.pos+n >= len(c.toks) {
		return c.toks[len(c.toks)-1]
	}
	return c.toks[c.pos+n]
}

func (c *Cursor) AtEnd() bool { return c.Peek().Kind == lexer.KindEOF }

func (c *Cursor) Advance() lexer.Token {
	t := c.toks[c.pos]
	if t.Kind != lexer.KindEOF {
		c.pos++
	}
	return t
}

func (c *Cursor) CheckSymbol(sym string) bool {
	t := c.Peek()
	return t.Kind == lexer.KindSymbol && t.Text == sym
}

func (c *Cursor) CheckKeyword(kw string) bool {
	t := c.Peek()
	return t.Kind == lexer.KindKeyword && t.Text == kw
}

func (c *Cursor) CheckKind(k lexer.Kind) bool { return c.Peek().Kind == k }

func (c *Cursor) MatchSymbol(sym string) bool {
	if c.CheckSymbol(sym) {
		c.Advance()
		return true
	}
	return false
}

func (c *Cursor) MatchKeyword(kw string) bool {
	if c.CheckKeyword(kw) {
		c.Advance()
		return true
	}
	return false
}

// Pos/Seek expose the raw token position. ArrayOf/ListOf use Pos as a
// progress mark to catch a rule that matched without consuming input;
// OneOf/AllOf restore position through the Push/Revert transaction stack.
func (c *Cursor) Pos() int     { return c.pos }
func (c *Cursor) Seek(p int)   { c.pos = p }
