package parser

import (
	"testing"
	"time"

	"tsnc/internal/arena"
	"tsnc/internal/diag"
	"tsnc/internal/lexer"
	"tsnc/internal/source"
)

func parse(t *testing.T, src string) (*Tree, *diag.Logger) {
	t.Helper()
	buf := source.New("<test>", []byte(src), time.Time{})
	toks, lexDiags := lexer.Tokenize(buf)
	log := &diag.Logger{}
	for _, d := range lexDiags {
		log.Add(d)
	}
	p := New(buf, toks, log)
	tree := p.Parse()
	return tree, log
}

// S3 — array_of(identifier) over a bare number must match nothing, leave
// the cursor where it started, and emit no diagnostics.
func TestArrayOfNoMatchLeavesNoTrace(t *testing.T) {
	buf := source.New("<test>", []byte("5"), time.Time{})
	toks, _ := lexer.Tokenize(buf)
	log := &diag.Logger{}
	p := New(buf, toks, log)

	identRule := func() arena.Pos {
		if !p.cur.CheckKind(lexer.KindIdentifier) {
			return arena.Nil
		}
		tok := p.cur.Advance()
		n := p.tree.New(KindIdentifierExpr, tok)
		p.tree.Get(n).Name = tok.Text
		return n
	}

	startPos := p.cur.Pos()
	out := p.ArrayOf(identRule)
	if out != nil {
		t.Fatalf("expected no matches, got %v", out)
	}
	if p.cur.Pos() != startPos {
		t.Fatalf("cursor moved: start=%d now=%d", startPos, p.cur.Pos())
	}
	if len(log.All()) != 0 {
		t.Fatalf("expected no diagnostics, got %v", log.All())
	}
}

func TestParseVarDeclAndExpression(t *testing.T) {
	tree, log := parse(t, "let x: int = 1 + 2 * 3;")
	if log.HasErrors() {
		t.Fatalf("unexpected errors: %v", log.All())
	}
	root := tree.Get(tree.Root)
	stmts := tree.Siblings(root.Body)
	if len(stmts) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(stmts))
	}
	decl := tree.Get(stmts[0])
	if decl.Kind != KindVarDecl || decl.Name != "x" {
		t.Fatalf("got %+v", decl)
	}
	init := tree.Get(decl.Initializer)
	if init.Kind != KindBinary || init.Op != "+" {
		t.Fatalf("expected top-level '+' binary, got %+v", init)
	}
	rhs := tree.Get(init.RValue)
	if rhs.Kind != KindBinary || rhs.Op != "*" {
		t.Fatalf("expected '*' nested on rhs by precedence, got %+v", rhs)
	}
}

func TestParseIfElseAndCall(t *testing.T) {
	tree, log := parse(t, `
		fn max(a: int, b: int): int {
			if (a > b) {
				return a;
			} else {
				return b;
			}
		}
		let r = max(1, 2);
	`)
	if log.HasErrors() {
		t.Fatalf("unexpected errors: %v", log.All())
	}
	stmts := tree.Siblings(tree.Get(tree.Root).Body)
	if len(stmts) != 2 {
		t.Fatalf("expected 2 top-level statements, got %d: %+v", len(stmts), stmts)
	}
	fn := tree.Get(stmts[0])
	if fn.Kind != KindFunctionDecl || fn.Name != "max" {
		t.Fatalf("got %+v", fn)
	}
	params := tree.Siblings(fn.Parameters)
	if len(params) != 2 {
		t.Fatalf("expected 2 params, got %d", len(params))
	}
	decl := tree.Get(stmts[1])
	call := tree.Get(decl.Initializer)
	if call.Kind != KindCall {
		t.Fatalf("expected call expr, got %+v", call)
	}
	args := tree.Siblings(call.Parameters)
	if len(args) != 2 {
		t.Fatalf("expected 2 call args, got %d", len(args))
	}
}

func TestParseForInAndClass(t *testing.T) {
	tree, log := parse(t, `
		class Point {
			private x: int = 0;
			fn length(): int {
				return this.x;
			}
		}
		for (item in items) {
			log(item);
		}
	`)
	if log.HasErrors() {
		t.Fatalf("unexpected errors: %v", log.All())
	}
	stmts := tree.Siblings(tree.Get(tree.Root).Body)
	if len(stmts) != 2 {
		t.Fatalf("expected 2 top-level statements, got %d", len(stmts))
	}
	class := tree.Get(stmts[0])
	if class.Kind != KindClassDecl || class.Name != "Point" {
		t.Fatalf("got %+v", class)
	}
	forIn := tree.Get(stmts[1])
	if forIn.Kind != KindForIn || forIn.Name != "item" {
		t.Fatalf("got %+v", forIn)
	}
}

func TestParserRecoversFromMissingSemicolon(t *testing.T) {
	tree, log := parse(t, "let x = 1\nlet y = 2;")
	if !log.HasErrors() {
		t.Fatalf("expected a diagnostic for the missing ';'")
	}
	stmts := tree.Siblings(tree.Get(tree.Root).Body)
	if len(stmts) != 2 {
		t.Fatalf("expected parser to recover and still see 2 decls, got %d: %+v", len(stmts), stmts)
	}
}
