package template

import (
	"tsnc/internal/arena"
	"tsnc/internal/parser"
)

// CloneTree clones a template's AST into a fresh, detached arena (spec
// §4.5 step 2), so a specialization's transient type-parameter bindings
// never alias the template's canonical declaration. Arena Pos values are
// plain allocation-order indices, so replaying the same New() calls in the
// same order on a fresh arena reproduces identical Pos values — no pointer
// rewriting is needed, only a field-by-field copy per node.
func CloneTree(src *parser.Tree) *parser.Tree {
	dst := parser.NewTree()
	n := src.Nodes.Len()
	for i := 0; i < n; i++ {
		_, node := dst.Nodes.New()
		*node = *src.Get(arena.Pos(i))
		node.Flags |= parser.FlagDetached
	}
	dst.Root = src.Root
	return dst
}
