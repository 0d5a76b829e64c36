package parser

import (
	"strconv"
	"time"

	"tsnc/internal/arena"
	"tsnc/internal/diag"
	"tsnc/internal/lexer"
	"tsnc/internal/source"
)

// expression is the top-level `,`-sequence production.
func (p *Parser) expression() arena.Pos {
	first := p.assignmentExpr()
	if !p.cur.CheckSymbol(",") {
		return first
	}
	n := p.tree.New(KindSequence, p.cur.Peek())
	items := p.tree.AppendSibling(arena.Nil, first)
	for p.cur.MatchSymbol(",") {
		items = p.tree.AppendSibling(items, p.assignmentExpr())
	}
	p.tree.Get(n).Body = items
	return n
}

var assignOps = map[string]bool{
	"=": true, "+=": true, "-=": true, "*=": true, "/=": true, "%=": true,
	"<<=": true, ">>=": true, "&=": true, "|=": true, "^=": true,
}

func (p *Parser) assignmentExpr() arena.Pos {
	lhs := p.conditionalExpr()
	tok := p.cur.Peek()
	if tok.Kind == lexer.KindSymbol && assignOps[tok.Text] {
		p.cur.Advance()
		n := p.tree.New(KindAssign, tok)
		nn := p.tree.Get(n)
		nn.Op = tok.Text
		nn.LValue = lhs
		nn.RValue = p.assignmentExpr()
		return n
	}
	return lhs
}

func (p *Parser) conditionalExpr() arena.Pos {
	cond := p.logicalOr()
	if p.cur.MatchSymbol("?") {
		tok := p.toks[p.cur.Pos()-1]
		n := p.tree.New(KindConditional, tok)
		nn := p.tree.Get(n)
		nn.Cond = cond
		nn.LValue = p.assignmentExpr()
		p.expectSymbol(":")
		nn.RValue = p.assignmentExpr()
		return n
	}
	return cond
}

// binaryLevel builds one precedence level: next() (op next())*.
func (p *Parser) binaryLevel(kind Kind, ops map[string]bool, next func() arena.Pos) arena.Pos {
	lhs := next()
	for {
		tok := p.cur.Peek()
		if tok.Kind != lexer.KindSymbol || !ops[tok.Text] {
			return lhs
		}
		p.cur.Advance()
		n := p.tree.New(kind, tok)
		nn := p.tree.Get(n)
		nn.Op = tok.Text
		nn.LValue = lhs
		nn.RValue = next()
		lhs = n
	}
}

var orOps = map[string]bool{"||": true}
var andOps = map[string]bool{"&&": true}
var bitOrOps = map[string]bool{"|": true}
var bitXorOps = map[string]bool{"^": true}
var bitAndOps = map[string]bool{"&": true}
var eqOps = map[string]bool{"==": true, "!=": true}
var relOps = map[string]bool{"<": true, "<=": true, ">": true, ">=": true}
var shiftOps = map[string]bool{"<<": true, ">>": true}
var addOps = map[string]bool{"+": true, "-": true}
var mulOps = map[string]bool{"*": true, "/": true, "%": true}

func (p *Parser) logicalOr() arena.Pos  { return p.binaryLevel(KindLogical, orOps, p.logicalAnd) }
func (p *Parser) logicalAnd() arena.Pos { return p.binaryLevel(KindLogical, andOps, p.bitOr) }
func (p *Parser) bitOr() arena.Pos      { return p.binaryLevel(KindBinary, bitOrOps, p.bitXor) }
func (p *Parser) bitXor() arena.Pos     { return p.binaryLevel(KindBinary, bitXorOps, p.bitAnd) }
func (p *Parser) bitAnd() arena.Pos     { return p.binaryLevel(KindBinary, bitAndOps, p.equality) }
func (p *Parser) equality() arena.Pos   { return p.binaryLevel(KindBinary, eqOps, p.relational) }
func (p *Parser) relational() arena.Pos { return p.binaryLevel(KindBinary, relOps, p.shift) }
func (p *Parser) shift() arena.Pos      { return p.binaryLevel(KindBinary, shiftOps, p.additive) }
func (p *Parser) additive() arena.Pos   { return p.binaryLevel(KindBinary, addOps, p.multiplicative) }
func (p *Parser) multiplicative() arena.Pos { return p.binaryLevel(KindBinary, mulOps, p.unary) }

var unaryPrefixOps = map[string]bool{"!": true, "-": true, "+": true, "~": true, "++": true, "--": true}

func (p *Parser) unary() arena.Pos {
	tok := p.cur.Peek()
	if tok.Kind == lexer.KindSymbol && unaryPrefixOps[tok.Text] {
		p.cur.Advance()
		n := p.tree.New(KindUnaryPrefix, tok)
		nn := p.tree.Get(n)
		nn.Op = tok.Text
		nn.RValue = p.unary()
		return n
	}
	if tok.Kind == lexer.KindKeyword && tok.Text == "new" {
		return p.newExpr()
	}
	if tok.Kind == lexer.KindKeyword && tok.Text == "sizeof" {
		return p.sizeofExpr()
	}
	return p.postfix()
}

func (p *Parser) newExpr() arena.Pos {
	tok := p.cur.Advance()
	n := p.tree.New(KindNew, tok)
	nn := p.tree.Get(n)
	nn.DataType = p.typeRef()
	if p.cur.CheckSymbol("(") {
		nn.Parameters = p.callArgs()
	}
	return n
}

func (p *Parser) sizeofExpr() arena.Pos {
	tok := p.cur.Advance()
	n := p.tree.New(KindSizeof, tok)
	p.expectSymbol("(")
	p.tree.Get(n).DataType = p.typeRef()
	p.expectSymbol(")")
	return n
}

var postfixOps = map[string]bool{"++": true, "--": true}

func (p *Parser) postfix() arena.Pos {
	n := p.callOrMember()
	tok := p.cur.Peek()
	if tok.Kind == lexer.KindSymbol && postfixOps[tok.Text] {
		p.cur.Advance()
		pn := p.tree.New(KindUnaryPostfix, tok)
		nn := p.tree.Get(pn)
		nn.Op = tok.Text
		nn.RValue = n
		return pn
	}
	return n
}

// callOrMember chains call/index/member-access productions left to right:
// primary (`(` args `)` | `[` expr `]` | `.` ident)*
func (p *Parser) callOrMember() arena.Pos {
	n := p.primary()
	for {
		tok := p.cur.Peek()
		switch {
		case tok.Kind == lexer.KindSymbol && tok.Text == "(":
			call := p.tree.New(KindCall, tok)
			nn := p.tree.Get(call)
			nn.RValue = n
			nn.Parameters = p.callArgs()
			n = call
		case tok.Kind == lexer.KindSymbol && tok.Text == "[":
			p.cur.Advance()
			idx := p.tree.New(KindIndex, tok)
			nn := p.tree.Get(idx)
			nn.RValue = n
			nn.LValue = p.expression()
			p.expectSymbol("]")
			n = idx
		case tok.Kind == lexer.KindDot:
			p.cur.Advance()
			nameTok := p.expectIdent()
			mem := p.tree.New(KindMember, tok)
			nn := p.tree.Get(mem)
			nn.RValue = n
			nn.Name = nameTok.Text
			n = mem
		default:
			return n
		}
	}
}

func (p *Parser) callArgs() arena.Pos {
	p.expectSymbol("(")
	var args arena.Pos = arena.Nil
	if !p.cur.CheckSymbol(")") {
		for {
			args = p.tree.AppendSibling(args, p.assignmentExpr())
			if !p.cur.MatchSymbol(",") {
				break
			}
		}
	}
	p.expectSymbol(")")
	return args
}

func (p *Parser) primary() arena.Pos {
	tok := p.cur.Peek()

	switch tok.Kind {
	case lexer.KindNumber:
		p.cur.Advance()
		return p.numberLiteral(tok)
	case lexer.KindString:
		p.cur.Advance()
		n := p.tree.New(KindLiteral, tok)
		p.tree.Get(n).Lit = Literal{Kind: LitString, S: tok.Lexeme}
		return n
	case lexer.KindTemplateString:
		p.cur.Advance()
		return p.templateStringExpr(tok)
	case lexer.KindIdentifier:
		p.cur.Advance()
		n := p.tree.New(KindIdentifierExpr, tok)
		p.tree.Get(n).Name = tok.Text
		return n
	case lexer.KindKeyword:
		switch tok.Text {
		case "true", "false":
			p.cur.Advance()
			n := p.tree.New(KindLiteral, tok)
			p.tree.Get(n).Lit = Literal{Kind: LitBool, B: tok.Text == "true"}
			return n
		case "null":
			p.cur.Advance()
			return p.tree.New(KindLiteral, tok)
		case "this":
			p.cur.Advance()
			return p.tree.New(KindThisExpr, tok)
		case "fn":
			return p.functionExpr()
		}
	case lexer.KindSymbol:
		switch tok.Text {
		case "(":
			p.cur.Advance()
			e := p.expression()
			p.expectSymbol(")")
			return e
		case "[":
			return p.arrayLiteral()
		case "{":
			return p.objectLiteral()
		}
	}

	p.log.Errorf(diag.CodeUnexpectedToken, p.loc(tok), "unexpected token %q", tok.Text)
	p.cur.Advance()
	return p.tree.Error(tok)
}

// numberLiteral classifies a scanned number token's text into the literal
// sum type; suffix tokens are consumed separately by the semantic layer when
// attached to a following operand, per spec §4.1.
func (p *Parser) numberLiteral(tok lexer.Token) arena.Pos {
	n := p.tree.New(KindLiteral, tok)
	nn := p.tree.Get(n)
	hasDot := false
	for _, c := range tok.Text {
		if c == '.' {
			hasDot = true
			break
		}
	}
	if hasDot {
		f, _ := strconv.ParseFloat(tok.Text, 64)
		nn.Lit = Literal{Kind: LitFloat, F: f}
		return n
	}
	if len(tok.Text) > 0 && tok.Text[0] == '-' {
		i, _ := strconv.ParseInt(tok.Text, 10, 64)
		nn.Lit = Literal{Kind: LitSigned, I: i}
		return n
	}
	u, _ := strconv.ParseUint(tok.Text, 10, 64)
	nn.Lit = Literal{Kind: LitUnsigned, U: u}
	return n
}

func (p *Parser) templateStringExpr(tok lexer.Token) arena.Pos {
	n := p.tree.New(KindLiteral, tok)
	nn := p.tree.Get(n)
	nn.Lit = Literal{Kind: LitString}
	var parts arena.Pos = arena.Nil
	for _, part := range tok.Parts {
		if !part.IsExpr {
			lit := p.tree.New(KindLiteral, tok)
			p.tree.Get(lit).Lit = Literal{Kind: LitString, S: part.Text}
			parts = p.tree.AppendSibling(parts, lit)
			continue
		}
		subBuf := source.New(p.buf.Path, []byte(part.Text), time.Time{})
		subToks, subDiags := lexer.Tokenize(subBuf)
		for _, d := range subDiags {
			d.Location = part.Loc
			p.log.Add(d)
		}
		inner := &Parser{buf: subBuf, cur: NewCursor(subToks, p.log), log: p.log, tree: p.tree, types: p.types}
		parts = p.tree.AppendSibling(parts, inner.expression())
	}
	nn.Body = parts
	return n
}

func (p *Parser) arrayLiteral() arena.Pos {
	tok := p.cur.Advance()
	n := p.tree.New(KindArrayLiteral, tok)
	var items arena.Pos = arena.Nil
	if !p.cur.CheckSymbol("]") {
		for {
			items = p.tree.AppendSibling(items, p.assignmentExpr())
			if !p.cur.MatchSymbol(",") {
				break
			}
		}
	}
	p.expectSymbol("]")
	p.tree.Get(n).Body = items
	return n
}

func (p *Parser) objectLiteral() arena.Pos {
	tok := p.cur.Advance()
	n := p.tree.New(KindObjectLiteral, tok)
	var fields arena.Pos = arena.Nil
	if !p.cur.CheckSymbol("}") {
		for {
			keyTok := p.cur.Peek()
			var key string
			if keyTok.Kind == lexer.KindString {
				p.cur.Advance()
				key = keyTok.Lexeme
			} else {
				key = p.expectIdent().Text
			}
			p.expectSymbol(":")
			val := p.assignmentExpr()
			field := p.tree.New(KindParam, keyTok)
			fn := p.tree.Get(field)
			fn.Name = key
			fn.Initializer = val
			fields = p.tree.AppendSibling(fields, field)
			if !p.cur.MatchSymbol(",") {
				break
			}
		}
	}
	p.expectSymbol("}")
	p.tree.Get(n).Body = fields
	return n
}

func (p *Parser) functionExpr() arena.Pos {
	tok := p.cur.Advance()
	n := p.tree.New(KindFunctionExpr, tok)
	nn := p.tree.Get(n)
	if p.cur.CheckKind(lexer.KindIdentifier) {
		nameTok := p.cur.Advance()
		nn.Name = nameTok.Text
	}
	nn.Parameters = p.paramList()
	if p.cur.MatchSymbol(":") {
		nn.DataType = p.typeRef()
	}
	nn.Body = p.block()
	return n
}
