package template

import (
	"testing"
	"time"

	"tsnc/internal/arena"
	"tsnc/internal/diag"
	"tsnc/internal/lexer"
	"tsnc/internal/parser"
	"tsnc/internal/source"
	"tsnc/internal/types"
)

func parseSnippet(t *testing.T, src string) *parser.Tree {
	t.Helper()
	buf := source.New("<tmpl>", []byte(src), time.Time{})
	toks, _ := lexer.Tokenize(buf)
	p := parser.New(buf, toks, &diag.Logger{})
	return p.Parse()
}

func TestCloneTreePreservesShapeAndMarksDetached(t *testing.T) {
	src := parseSnippet(t, "fn id(x: T): T { return x; }")
	clone := CloneTree(src)

	if clone.Nodes.Len() != src.Nodes.Len() {
		t.Fatalf("clone has %d nodes, want %d", clone.Nodes.Len(), src.Nodes.Len())
	}
	if clone.Root != src.Root {
		t.Fatalf("clone root = %v, want %v", clone.Root, src.Root)
	}
	for i := 0; i < src.Nodes.Len(); i++ {
		orig := src.Get(arena.Pos(i))
		got := clone.Get(arena.Pos(i))
		if got.Kind != orig.Kind || got.Name != orig.Name {
			t.Fatalf("node %d mismatch: got %+v want %+v", i, got, orig)
		}
		if !got.Flags.Has(parser.FlagDetached) {
			t.Errorf("node %d not marked detached", i)
		}
	}
}

func TestInstantiateCachesBySpecializationKey(t *testing.T) {
	src := parseSnippet(t, "fn id(x: T): T { return x; }")
	tmpl := &Template{Name: "id", AST: src, Params: []string{"T"}, Context: &Context{}}

	r := types.NewRegistry()
	b := types.RegisterBuiltins(r)

	calls := 0
	compile := func(clone *parser.Tree, declPos arena.Pos, params map[string]*types.DataType, ctx *Context) (*Instantiation, error) {
		calls++
		return &Instantiation{Tree: clone, Type: params["T"]}, nil
	}

	e := NewEngine(0)
	first, err := e.Instantiate(tmpl, []*types.DataType{b.I32}, 0, compile)
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.Instantiate(tmpl, []*types.DataType{b.I32}, 0, compile)
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("expected compile to run once, ran %d times", calls)
	}
	if first != second {
		t.Fatal("expected cached instantiation to be returned")
	}

	if _, err := e.Instantiate(tmpl, []*types.DataType{b.F64}, 0, compile); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("expected a distinct specialization to compile again, calls=%d", calls)
	}
}

func TestInstantiateDepthLimit(t *testing.T) {
	src := parseSnippet(t, "fn id(x: T): T { return x; }")
	tmpl := &Template{Name: "id", AST: src, Params: []string{"T"}, Context: &Context{}}
	r := types.NewRegistry()
	b := types.RegisterBuiltins(r)

	compile := func(clone *parser.Tree, declPos arena.Pos, params map[string]*types.DataType, ctx *Context) (*Instantiation, error) {
		return &Instantiation{Tree: clone}, nil
	}

	e := NewEngine(2)
	if _, err := e.Instantiate(tmpl, []*types.DataType{b.I32}, 3, compile); err == nil {
		t.Fatal("expected depth limit to be exceeded")
	}
}
