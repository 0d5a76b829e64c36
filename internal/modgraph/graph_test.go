package modgraph

import (
	"path/filepath"
	"testing"

	"tsnc/internal/types"
)

func TestResolveAppendsDefaultExtension(t *testing.T) {
	path, id, err := Resolve("/project/src", "./util")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(path) != DefaultExtension {
		t.Fatalf("expected default extension, got %q", path)
	}
	if id == 0 {
		t.Fatal("expected a non-zero module id")
	}
}

func TestCyclicImportDetected(t *testing.T) {
	g := NewGraph()
	popA, d := g.EnterImport(1, "a.tsn")
	if d != nil {
		t.Fatalf("unexpected cycle on first entry: %v", d)
	}
	defer popA()

	popB, d := g.EnterImport(2, "b.tsn")
	if d != nil {
		t.Fatalf("unexpected cycle on second entry: %v", d)
	}
	defer popB()

	_, d = g.EnterImport(1, "a.tsn")
	if d == nil {
		t.Fatal("expected a cyclic import diagnostic")
	}
}

func TestLoadDedupesConcurrentCallers(t *testing.T) {
	g := NewGraph()
	calls := 0
	loader := func() (*Module, error) {
		calls++
		return &Module{ID: 7, Path: "x.tsn"}, nil
	}

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			_, _ = g.Load(7, "x.tsn", loader)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	if calls != 1 {
		t.Fatalf("expected loader to run exactly once, ran %d times", calls)
	}
}

func TestScopeDestructorOrder(t *testing.T) {
	m := NewManager()
	m.Push(false, false, nil)

	a := &Symbol{Kind: SymValue, Name: "a", HasDtor: true}
	b := &Symbol{Kind: SymValue, Name: "b", HasDtor: true}
	c := &Symbol{Kind: SymValue, Name: "c", HasDtor: false}
	m.Declare(a)
	m.Declare(b)
	m.Declare(c)

	dtors := m.Pop()
	if len(dtors) != 2 || dtors[0].Name != "b" || dtors[1].Name != "a" {
		t.Fatalf("expected reverse-insertion-order [b,a], got %+v", dtors)
	}
}

func TestBreakCollectsThroughNestedScopesToLoop(t *testing.T) {
	m := NewManager()
	m.Push(true, false, nil) // loop scope
	m.Declare(&Symbol{Kind: SymValue, Name: "outer", HasDtor: true})
	m.Push(false, false, nil) // inner block
	m.Declare(&Symbol{Kind: SymValue, Name: "inner", HasDtor: true})

	dtors := m.ExitScopesTo(true)
	if len(dtors) != 2 || dtors[0].Name != "inner" || dtors[1].Name != "outer" {
		t.Fatalf("expected [inner,outer], got %+v", dtors)
	}
}

func TestEnclosingFunctionInherited(t *testing.T) {
	m := NewManager()
	fn := &types.Function{Name: "f"}
	m.Push(false, false, fn)
	m.Push(false, false, nil)
	if got := m.EnclosingFunction(); got != fn {
		t.Fatalf("expected inherited function %v, got %v", fn, got)
	}
}
