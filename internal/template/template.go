// Package template implements the generic class/function instantiation
// engine of spec §4.5: specialization caching, detached-AST cloning, and
// depth-limited recursive instantiation. Grounded on the origin-module +
// captured-imports shape of
// original_source/src/compiler/TemplateContext.cpp.
package template

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"tsnc/internal/arena"
	"tsnc/internal/parser"
	"tsnc/internal/types"
)

// ModuleImport/FunctionImport/TypeImport mirror TemplateContext's captured
// imports: the names visible at the template's definition site that its
// body may reference, recorded so a later instantiation resolves them
// against the origin module rather than the instantiation site.
type ModuleImport struct {
	Alias string
	ID    uint32
}

type FunctionImport struct {
	Alias string
	Fn    *types.Function
}

type TypeImport struct {
	Alias string
	Type  *types.DataType
}

// Context is the captured definition-site environment of one template
// declaration.
type Context struct {
	OriginModuleID uint32
	ModuleImports  []ModuleImport
	FunctionImports []FunctionImport
	TypeImports    []TypeImport
}

// Template is a generic class or function declaration: its original AST
// (never mutated after registration), the parameter names it binds, and the
// context captured at its definition site. DeclPos is the arena.Pos of the
// declaration node within AST; since CloneTree replays the same sequence of
// arena allocations, that same Pos addresses the equivalent node in every
// clone CloneTree produces, so a clone needs no re-walk to find its own
// declaration.
type Template struct {
	Name    string
	AST     *parser.Tree
	DeclPos arena.Pos
	Root    parser.Node // copy of the declaration node's static fields for quick inspection
	Params  []string
	Context *Context
}

// Instantiation is a completed specialization: the cloned, compiled AST
// plus whichever registry entities the compile produced (a type for a
// generic class, a function for a generic function).
type Instantiation struct {
	Tree *parser.Tree
	Type *types.DataType
	Func *types.Function
}

// CompileFunc runs the ordinary compiler (§4.6) over declPos, the template
// declaration node within clone (a cloned, detached template AST), with the
// template parameters bound to concrete types, and returns the resulting
// registry entities. Supplied by the compiler package to avoid template
// importing compiler (which imports template's AST clone API as part of its
// own lowering).
type CompileFunc func(clone *parser.Tree, declPos arena.Pos, params map[string]*types.DataType, ctx *Context) (*Instantiation, error)

// ErrDepthExceeded is returned when a specialization chain exceeds the
// configured recursion limit without converging on the cache (spec §4.5:
// "a genuine infinite specialization ... must be detected by a depth
// limit").
var ErrDepthExceeded = errors.New("template: specialization depth exceeded")

// Engine owns the specialization cache for one compile.
type Engine struct {
	maxDepth int
	cache    map[string]*Instantiation
}

// DefaultMaxDepth is the spec's suggested limit.
const DefaultMaxDepth = 64

func NewEngine(maxDepth int) *Engine {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Engine{maxDepth: maxDepth, cache: map[string]*Instantiation{}}
}

// specializationKey is (template-id, concrete-arg-id-list) per spec §4.5,
// expressed as a template name (templates don't have a registry id of their
// own until instantiated) plus the ordered argument type ids.
func specializationKey(templateName string, argIDs []types.ID) string {
	var b strings.Builder
	b.WriteString(templateName)
	for _, id := range argIDs {
		fmt.Fprintf(&b, "|%d", id)
	}
	return b.String()
}

// Instantiate resolves tmpl<args...>, returning the cached result if this
// exact specialization was already produced. depth is the caller's current
// instantiation nesting (0 for a top-level reference); it is the caller's
// responsibility to increment it across a recursive Instantiate call so
// genuinely unbounded specialization chains are caught rather than looping
// forever or exhausting memory.
func (e *Engine) Instantiate(tmpl *Template, args []*types.DataType, depth int, compile CompileFunc) (*Instantiation, error) {
	if depth > e.maxDepth {
		return nil, errors.Wrapf(ErrDepthExceeded, "instantiating %q at depth %d", tmpl.Name, depth)
	}
	if len(args) != len(tmpl.Params) {
		return nil, errors.Errorf("template: %q expects %d argument(s), got %d", tmpl.Name, len(tmpl.Params), len(args))
	}

	argIDs := make([]types.ID, len(args))
	for i, a := range args {
		argIDs[i] = a.EffectiveType().ID
	}
	key := specializationKey(tmpl.Name, argIDs)
	if cached, ok := e.cache[key]; ok {
		return cached, nil
	}

	clone := CloneTree(tmpl.AST)

	bound := make(map[string]*types.DataType, len(tmpl.Params))
	for i, p := range tmpl.Params {
		bound[p] = args[i]
	}

	inst, err := compile(clone, tmpl.DeclPos, bound, tmpl.Context)
	if err != nil {
		return nil, err
	}
	e.cache[key] = inst
	return inst, nil
}

// DisplayName generates the fully-qualified specialization name encoding
// the argument list (spec §4.5 step 4), e.g. "List<i32>".
func DisplayName(tmpl *Template, args []*types.DataType) string {
	names := make([]string, len(args))
	for i, a := range args {
		names[i] = a.FullyQualifiedName
	}
	return fmt.Sprintf("%s<%s>", tmpl.Name, strings.Join(names, ", "))
}
