package parser

import (
	"tsnc/internal/arena"
	"tsnc/internal/diag"
	"tsnc/internal/lexer"
	"tsnc/internal/source"
)

// typeScope records the names the parser knows refer to a type, purely to
// disambiguate grammar productions (e.g. `new Foo()` vs a call expression,
// or a generic instantiation `Foo<Bar>`); the full semantic scope lives in
// the types/modgraph packages (spec §4.2).
type typeScope struct {
	names map[string]bool
	outer *typeScope
}

func (s *typeScope) has(name string) bool {
	for t := s; t != nil; t = t.outer {
		if t.names[name] {
			return true
		}
	}
	return false
}

// Parser is the recursive-descent parser of spec §4.2.
type Parser struct {
	buf   *source.Buffer
	toks  []lexer.Token
	cur   *Cursor
	log   *diag.Logger
	tree  *Tree
	types *typeScope
}

func New(buf *source.Buffer, toks []lexer.Token, log *diag.Logger) *Parser {
	return &Parser{
		buf:   buf,
		toks:  toks,
		cur:   NewCursor(toks, log),
		log:   log,
		tree:  NewTree(),
		types: &typeScope{names: map[string]bool{}},
	}
}

func (p *Parser) loc(t lexer.Token) source.Location { return t.Loc }

// Parse runs `program := statement*` and returns the resulting Tree.
func (p *Parser) Parse() *Tree {
	root := p.tree.New(KindProgram, p.cur.Peek())
	var body arena.Pos = arena.Nil
	for !p.cur.AtEnd() {
		stmt := p.statement()
		body = p.tree.AppendSibling(body, stmt)
	}
	p.tree.Get(root).Body = body
	p.tree.Root = root
	return p.tree
}

func (p *Parser) errorAt(tok lexer.Token, code diag.Code, format string, args ...interface{}) arena.Pos {
	p.log.Errorf(code, p.loc(tok), format, args...)
	return p.tree.Error(tok)
}

func (p *Parser) expectSymbol(sym string) lexer.Token {
	if p.cur.CheckSymbol(sym) {
		return p.cur.Advance()
	}
	tok := p.cur.Peek()
	p.log.Errorf(diag.CodeUnexpectedToken, p.loc(tok), "expected %q, got %q", sym, tok.Text)
	return tok
}

func (p *Parser) expectIdent() lexer.Token {
	if p.cur.CheckKind(lexer.KindIdentifier) {
		return p.cur.Advance()
	}
	tok := p.cur.Peek()
	p.log.Errorf(diag.CodeUnexpectedToken, p.loc(tok), "expected identifier, got %q", tok.Text)
	return tok
}

// ---- statements ----

func (p *Parser) statement() arena.Pos {
	tok := p.cur.Peek()

	if p.cur.CheckSymbol("{") {
		return p.block()
	}
	if p.cur.CheckSymbol(";") {
		p.cur.Advance()
		return p.tree.New(KindExpressionStmt, tok)
	}

	if tok.Kind == lexer.KindKeyword {
		switch tok.Text {
		case "if":
			return p.ifStmt()
		case "while":
			return p.whileStmt()
		case "do":
			return p.doWhileStmt()
		case "for":
			return p.forStmt()
		case "switch":
			return p.switchStmt()
		case "try":
			return p.tryStmt()
		case "return":
			return p.returnStmt()
		case "break":
			p.cur.Advance()
			n := p.tree.New(KindBreak, tok)
			p.EosRequired()
			return n
		case "continue":
			p.cur.Advance()
			n := p.tree.New(KindContinue, tok)
			p.EosRequired()
			return n
		case "delete":
			p.cur.Advance()
			n := p.tree.New(KindDelete, tok)
			p.tree.Get(n).RValue = p.expression()
			p.EosRequired()
			return n
		case "throw":
			p.cur.Advance()
			n := p.tree.New(KindThrow, tok)
			p.tree.Get(n).RValue = p.expression()
			p.EosRequired()
			return n
		case "import":
			return p.importStmt()
		case "export":
			return p.exportStmt()
		case "let", "var", "const":
			n := p.varDecl()
			p.EosRequired()
			return n
		case "fn":
			return p.functionDecl()
		case "class":
			return p.classDecl()
		case "typedef":
			return p.typeDef()
		}
	}

	n := p.tree.New(KindExpressionStmt, tok)
	p.tree.Get(n).RValue = p.expression()
	p.EosRequired()
	return n
}

func (p *Parser) block() arena.Pos {
	tok := p.expectSymbol("{")
	n := p.tree.New(KindBlock, tok)
	var body arena.Pos = arena.Nil
	for !p.cur.AtEnd() && !p.cur.CheckSymbol("}") {
		stmt := p.statement()
		body = p.tree.AppendSibling(body, stmt)
	}
	p.expectSymbol("}")
	p.tree.Get(n).Body = body
	return n
}

func (p *Parser) ifStmt() arena.Pos {
	tok := p.cur.Advance()
	n := p.tree.New(KindIf, tok)
	p.expectSymbol("(")
	p.tree.Get(n).Cond = p.expression()
	p.expectSymbol(")")
	p.tree.Get(n).Body = p.statement()
	if p.cur.MatchKeyword("else") {
		p.tree.Get(n).ElseBody = p.statement()
	}
	return n
}

func (p *Parser) whileStmt() arena.Pos {
	tok := p.cur.Advance()
	n := p.tree.New(KindWhile, tok)
	p.expectSymbol("(")
	p.tree.Get(n).Cond = p.expression()
	p.expectSymbol(")")
	p.tree.Get(n).Body = p.statement()
	return n
}

func (p *Parser) doWhileStmt() arena.Pos {
	tok := p.cur.Advance()
	n := p.tree.New(KindDoWhile, tok)
	p.tree.Get(n).Flags |= FlagDeferCond
	p.tree.Get(n).Body = p.statement()
	if !p.cur.MatchKeyword("while") {
		p.errorAt(p.cur.Peek(), diag.CodeUnexpectedToken, "expected 'while' after do body")
	}
	p.expectSymbol("(")
	p.tree.Get(n).Cond = p.expression()
	p.expectSymbol(")")
	p.EosRequired()
	return n
}

// forStmt handles both the C-style and for-in productions, disambiguated by
// lookahead for the 'in' keyword after the loop variable (spec §4.2).
func (p *Parser) forStmt() arena.Pos {
	tok := p.cur.Advance()
	p.expectSymbol("(")

	if p.cur.CheckKind(lexer.KindIdentifier) && p.cur.PeekAt(1).Kind == lexer.KindKeyword && p.cur.PeekAt(1).Text == "in" {
		n := p.tree.New(KindForIn, tok)
		nameTok := p.cur.Advance()
		n2 := p.tree.Get(n)
		n2.Name = nameTok.Text
		p.cur.Advance() // 'in'
		n2.RValue = p.expression()
		p.expectSymbol(")")
		n2.Body = p.statement()
		return n
	}

	n := p.tree.New(KindForC, tok)
	nn := p.tree.Get(n)
	if !p.cur.CheckSymbol(";") {
		if p.cur.CheckKeyword("let") || p.cur.CheckKeyword("var") || p.cur.CheckKeyword("const") {
			nn.Initializer = p.varDecl()
		} else {
			e := p.tree.New(KindExpressionStmt, p.cur.Peek())
			p.tree.Get(e).RValue = p.expression()
			nn.Initializer = e
		}
	}
	p.expectSymbol(";")
	if !p.cur.CheckSymbol(";") {
		nn.Cond = p.expression()
	}
	p.expectSymbol(";")
	if !p.cur.CheckSymbol(")") {
		nn.LValue = p.expression() // step expression, reuses LValue slot
	}
	p.expectSymbol(")")
	nn.Body = p.statement()
	return n
}

func (p *Parser) switchStmt() arena.Pos {
	tok := p.cur.Advance()
	n := p.tree.New(KindSwitch, tok)
	p.expectSymbol("(")
	p.tree.Get(n).Cond = p.expression()
	p.expectSymbol(")")
	p.expectSymbol("{")
	var cases arena.Pos = arena.Nil
	for !p.cur.AtEnd() && !p.cur.CheckSymbol("}") {
		caseTok := p.cur.Peek()
		c := p.tree.New(KindCase, caseTok)
		if p.cur.MatchKeyword("case") {
			p.tree.Get(c).Cond = p.expression()
		} else if !p.cur.MatchKeyword("default") {
			p.errorAt(caseTok, diag.CodeUnexpectedToken, "expected 'case' or 'default'")
			p.syncToStatementBoundary()
			continue
		}
		p.expectSymbol(":")
		var body arena.Pos = arena.Nil
		for !p.cur.CheckKeyword("case") && !p.cur.CheckKeyword("default") && !p.cur.CheckSymbol("}") && !p.cur.AtEnd() {
			body = p.tree.AppendSibling(body, p.statement())
		}
		p.tree.Get(c).Body = body
		cases = p.tree.AppendSibling(cases, c)
	}
	p.expectSymbol("}")
	p.tree.Get(n).Body = cases
	return n
}

func (p *Parser) tryStmt() arena.Pos {
	tok := p.cur.Advance()
	n := p.tree.New(KindTry, tok)
	p.tree.Get(n).Body = p.block()
	if p.cur.MatchKeyword("catch") {
		catchTok := p.toks[p.cur.Pos()-1]
		c := p.tree.New(KindCatch, catchTok)
		if p.cur.MatchSymbol("(") {
			nameTok := p.expectIdent()
			p.tree.Get(c).Name = nameTok.Text
			p.expectSymbol(")")
		}
		p.tree.Get(c).Body = p.block()
		p.tree.Get(n).ElseBody = c
	}
	return n
}

func (p *Parser) returnStmt() arena.Pos {
	tok := p.cur.Advance()
	n := p.tree.New(KindReturn, tok)
	if !p.cur.CheckSymbol(";") && !p.cur.CheckSymbol("}") && !p.cur.AtEnd() {
		p.tree.Get(n).RValue = p.expression()
	}
	p.EosRequired()
	return n
}

func (p *Parser) importStmt() arena.Pos {
	tok := p.cur.Advance()
	n := p.tree.New(KindImport, tok)
	nn := p.tree.Get(n)
	if p.cur.CheckKind(lexer.KindString) {
		pathTok := p.cur.Advance()
		nn.Name = pathTok.Lexeme
	} else {
		nameTok := p.expectIdent()
		nn.Name = nameTok.Text
	}
	if p.cur.MatchKeyword("as") {
		aliasTok := p.expectIdent()
		alias := p.tree.New(KindIdentifierExpr, aliasTok)
		p.tree.Get(alias).Name = aliasTok.Text
		nn.Alias = alias
	}
	p.EosRequired()
	return n
}

func (p *Parser) exportStmt() arena.Pos {
	tok := p.cur.Advance()
	n := p.tree.New(KindExport, tok)
	p.tree.Get(n).Body = p.statement()
	return n
}

// varDecl handles `let`/`var`/`const` name [: type] [= expr].
func (p *Parser) varDecl() arena.Pos {
	tok := p.cur.Advance()
	n := p.tree.New(KindVarDecl, tok)
	nn := p.tree.Get(n)
	if tok.Text == "const" {
		nn.Flags |= FlagConst
	}
	nameTok := p.expectIdent()
	nn.Name = nameTok.Text
	if p.cur.MatchSymbol(":") {
		nn.DataType = p.typeRef()
	}
	if p.cur.MatchSymbol("=") {
		nn.Initializer = p.assignmentExpr()
	}
	return n
}

func (p *Parser) typeRef() arena.Pos {
	tok := p.expectIdent()
	n := p.tree.New(KindTypeRef, tok)
	p.tree.Get(n).Name = tok.Text
	// A TypeRef reuses TemplateParams (unused at a usage site) to hold the
	// instantiation argument list, e.g. List<i32>; only one level of nesting
	// is recognized since the lexer groups ">>" as one token, matching
	// compileClassDecl's other documented simplifications.
	if p.cur.MatchSymbol("<") {
		var args arena.Pos = arena.Nil
		for {
			args = p.tree.AppendSibling(args, p.typeRef())
			if !p.cur.MatchSymbol(",") {
				break
			}
		}
		p.expectSymbol(">")
		p.tree.Get(n).TemplateParams = args
	}
	for p.cur.MatchSymbol("[") {
		p.expectSymbol("]")
		p.tree.Get(n).Flags |= FlagArray
	}
	if p.cur.MatchSymbol("*") {
		p.tree.Get(n).Flags |= FlagPointer
	}
	return n
}

func (p *Parser) paramList() arena.Pos {
	p.expectSymbol("(")
	var params arena.Pos = arena.Nil
	if !p.cur.CheckSymbol(")") {
		for {
			tok := p.cur.Peek()
			pn := p.tree.New(KindParam, tok)
			nameTok := p.expectIdent()
			p.tree.Get(pn).Name = nameTok.Text
			if p.cur.MatchSymbol(":") {
				p.tree.Get(pn).DataType = p.typeRef()
			}
			if p.cur.MatchSymbol("=") {
				p.tree.Get(pn).Initializer = p.assignmentExpr()
			}
			params = p.tree.AppendSibling(params, pn)
			if !p.cur.MatchSymbol(",") {
				break
			}
		}
	}
	p.expectSymbol(")")
	return params
}

func (p *Parser) functionDecl() arena.Pos {
	tok := p.cur.Advance()
	n := p.tree.New(KindFunctionDecl, tok)
	nn := p.tree.Get(n)
	nameTok := p.expectIdent()
	nn.Name = nameTok.Text
	if p.cur.MatchSymbol("<") {
		nn.TemplateParams = p.templateParamList()
	}
	nn.Parameters = p.paramList()
	if p.cur.MatchSymbol(":") {
		nn.DataType = p.typeRef()
	}
	if p.cur.MatchSymbol("=>") {
		body := p.expression()
		ret := p.tree.New(KindReturn, tok)
		p.tree.Get(ret).RValue = body
		nn.Body = ret
		p.EosRequired()
		return n
	}
	nn.Body = p.block()
	return n
}

func (p *Parser) templateParamList() arena.Pos {
	var params arena.Pos = arena.Nil
	for {
		tok := p.expectIdent()
		p.types.names[tok.Text] = true
		tp := p.tree.New(KindTypeRef, tok)
		p.tree.Get(tp).Name = tok.Text
		params = p.tree.AppendSibling(params, tp)
		if !p.cur.MatchSymbol(",") {
			break
		}
	}
	p.expectSymbol(">")
	return params
}

func (p *Parser) classDecl() arena.Pos {
	tok := p.cur.Advance()
	n := p.tree.New(KindClassDecl, tok)
	nn := p.tree.Get(n)
	nameTok := p.expectIdent()
	nn.Name = nameTok.Text
	p.types.names[nameTok.Text] = true
	if p.cur.MatchSymbol("<") {
		nn.TemplateParams = p.templateParamList()
	}
	if p.cur.MatchSymbol(":") {
		var bases arena.Pos = arena.Nil
		for {
			bases = p.tree.AppendSibling(bases, p.typeRef())
			if !p.cur.MatchSymbol(",") {
				break
			}
		}
		nn.Inheritance = bases
	}
	p.expectSymbol("{")
	var members arena.Pos = arena.Nil
	for !p.cur.AtEnd() && !p.cur.CheckSymbol("}") {
		members = p.tree.AppendSibling(members, p.classMember())
	}
	p.expectSymbol("}")
	nn.Body = members
	return n
}

func (p *Parser) classMember() arena.Pos {
	var flags Flags
	for {
		if p.cur.MatchKeyword("private") {
			flags |= FlagPrivate
			continue
		}
		if p.cur.MatchKeyword("static") {
			flags |= FlagStatic
			continue
		}
		break
	}
	if p.cur.CheckKeyword("fn") {
		n := p.functionDecl()
		p.tree.Get(n).Flags |= flags
		return n
	}
	// field declaration: name [: type] [= init] ';'
	tok := p.cur.Peek()
	n := p.tree.New(KindVarDecl, tok)
	nn := p.tree.Get(n)
	nn.Flags |= flags
	nameTok := p.expectIdent()
	nn.Name = nameTok.Text
	if p.cur.MatchSymbol(":") {
		nn.DataType = p.typeRef()
	}
	if p.cur.MatchSymbol("=") {
		nn.Initializer = p.assignmentExpr()
	}
	p.EosRequired()
	return n
}

func (p *Parser) typeDef() arena.Pos {
	tok := p.cur.Advance()
	n := p.tree.New(KindTypeDef, tok)
	nameTok := p.expectIdent()
	p.tree.Get(n).Name = nameTok.Text
	p.types.names[nameTok.Text] = true
	p.expectSymbol("=")
	p.tree.Get(n).DataType = p.typeRef()
	p.EosRequired()
	return n
}
