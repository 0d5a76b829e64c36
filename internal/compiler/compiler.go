// Package compiler lowers a parsed AST (internal/parser) into the
// three-address IR of internal/ir (spec §4.6). Grounded on the teacher's
// internal/compiler/compiler.go and stmt_compiler.go visitor-per-node
// structure, retargeted from direct bytecode emission to IR emission; the
// control-flow lowering templates (if/while/do-while/for/switch/try) follow
// original_source's src/compiler/c_statements.cpp and c_tac.cpp.
package compiler

import (
	"github.com/pkg/errors"

	"tsnc/internal/arena"
	"tsnc/internal/diag"
	"tsnc/internal/ir"
	"tsnc/internal/modgraph"
	"tsnc/internal/parser"
	"tsnc/internal/source"
	"tsnc/internal/template"
	"tsnc/internal/types"
)

// Module is one compiled source file's output: the implicit module
// initializer (spec §4.6's "module initializer" step) plus every function
// declared at any scope within it.
type Module struct {
	Name      string
	Init      *ir.FunctionDef
	Functions []*ir.FunctionDef
	Imports   []source.ModuleID
}

// loopCtx is one entry of the break/continue label stack, pushed alongside
// the matching modgraph scope so a break or continue can both jump to the
// right label and unwind the right destructors.
type loopCtx struct {
	continueLabel ir.LabelID
	breakLabel    ir.LabelID
	hasContinue   bool
}

// Compiler lowers one parsed Tree into a Module. A fresh Compiler is used
// per source file; nested function bodies reuse the same Compiler but swap
// out `fn` for the duration of their own body.
type Compiler struct {
	tree     *parser.Tree
	types    *types.Registry
	builtins *types.Builtins
	funcs    *types.FunctionRegistry
	scopes   *modgraph.Manager
	log      *diag.Logger

	fn       *ir.FunctionDef
	mod      *Module
	loops    []loopCtx
	handlers []ir.LabelID // innermost-catch-label stack for throw (spec §4.6)

	arrayTypes map[types.ID]*types.DataType
	throwSlots map[*ir.FunctionDef]int

	imports   map[string]*modgraph.Module
	templates map[string]*template.Template
	engine    *template.Engine
}

func New(tree *parser.Tree, reg *types.Registry, b *types.Builtins, funcs *types.FunctionRegistry, log *diag.Logger) *Compiler {
	return &Compiler{
		tree:       tree,
		types:      reg,
		builtins:   b,
		funcs:      funcs,
		scopes:     modgraph.NewManager(),
		log:        log,
		arrayTypes: map[types.ID]*types.DataType{},
		throwSlots: map[*ir.FunctionDef]int{},
		templates:  map[string]*template.Template{},
		engine:     template.NewEngine(template.DefaultMaxDepth),
	}
}

// SetImports records the already-resolved modules a source file imports,
// keyed by the name it imports them under. The pipeline resolves and
// compiles every import (possibly as a nested child Pipeline, spec §5)
// before calling CompileModule, since compileImport only binds an alias
// for a module that Lookup can already find.
func (c *Compiler) SetImports(imports map[string]*modgraph.Module) {
	c.imports = imports
}

// CompileModule compiles the whole program into a module initializer
// function covering every top-level statement, plus one FunctionDef per
// function declared anywhere in the module.
func (c *Compiler) CompileModule(name string) *Module {
	c.mod = &Module{Name: name}
	c.fn = ir.NewFunctionDef("__init__")
	c.mod.Init = c.fn

	c.scopes.Push(false, false, nil)
	for importName, mod := range c.imports {
		c.scopes.Declare(&modgraph.Symbol{Kind: modgraph.SymModule, Name: importName, Module: mod})
		c.mod.Imports = append(c.mod.Imports, mod.ID)
	}
	root := c.tree.Get(c.tree.Root)
	for _, s := range c.tree.Siblings(root.Body) {
		c.compileStmt(s)
	}
	c.emitDtors(c.scopes.Pop())
	c.fn.Emit(ir.Instruction{Op: ir.OpRet})

	return c.mod
}

// emitDtors emits a destructor call for each symbol collected by a scope
// exit, innermost-declared first (the order modgraph already returns them
// in).
func (c *Compiler) emitDtors(locals []*modgraph.Symbol) {
	for _, sym := range locals {
		v, ok := sym.ValueHandle.(ir.Value)
		if !ok {
			continue
		}
		dtor := sym.ValueType.Destructor
		if dtor == nil {
			continue
		}
		fnVal := ir.Value{Kind: ir.ValFunctionRef, Func: dtor}
		c.fn.Emit(ir.Instruction{Op: ir.OpCall, Operands: [3]ir.Value{{}, fnVal, v}})
	}
}

// declareLocal binds name to v in the innermost scope, recording whether it
// needs a destructor call on scope exit.
func (c *Compiler) declareLocal(name string, t *types.DataType, v ir.Value) {
	c.scopes.Declare(&modgraph.Symbol{
		Kind:        modgraph.SymValue,
		Name:        name,
		ValueType:   t,
		HasDtor:     t != nil && t.Destructor != nil,
		ValueHandle: v,
	})
}

// arrayTypeOf memoizes a synthetic "array of elem" type, since the registry
// has no first-class array Instance (spec's DataType only names
// plain/function/template/alias/class) and array element identity is all a
// compile needs from it.
func (c *Compiler) arrayTypeOf(elem *types.DataType) *types.DataType {
	if elem == nil {
		elem = c.builtins.Void
	}
	if t, ok := c.arrayTypes[elem.ID]; ok {
		return t
	}
	t := &types.DataType{
		Instance:           types.InstPlain,
		Name:               elem.Name + "[]",
		FullyQualifiedName: elem.Name + "[]",
		Size:               16, // pointer + length, mirrors a slice header
	}
	c.arrayTypes[elem.ID] = t
	return t
}

// resolveType looks up a TypeRef node's named type, defaulting to void and
// logging resolve.not_found when the name is unknown. Array/pointer suffix
// flags are honored via arrayTypeOf; pointer-ness is tracked on the Value
// that holds an instance of the type, not on DataType itself.
func (c *Compiler) resolveType(p arena.Pos) *types.DataType {
	if p == arena.Nil {
		return c.builtins.Void
	}
	n := c.tree.Get(p)
	var base *types.DataType
	if n.TemplateParams != arena.Nil {
		base = c.resolveTemplateInstance(n)
	} else {
		base = c.lookupNamedType(n.Name)
	}
	if base == nil {
		c.log.Errorf(diag.CodeNotFound, n.Tok.Loc, "unknown type %q", n.Name)
		base = c.builtins.Void
	}
	if n.Flags.Has(parser.FlagArray) {
		base = c.arrayTypeOf(base)
	}
	return base
}

// registerTemplate records a generic class or function declaration (spec
// §4.5) in place of compiling it directly: its parameter names are not real
// types, so compiling the body now would only produce spurious "unknown
// type" diagnostics. The declaration is compiled lazily, once per distinct
// argument list, by resolveTemplateInstance.
func (c *Compiler) registerTemplate(name string, declPos arena.Pos) {
	n := c.tree.Get(declPos)
	var params []string
	for _, pp := range c.tree.Siblings(n.TemplateParams) {
		params = append(params, c.tree.Get(pp).Name)
	}
	c.templates[name] = &template.Template{
		Name:    name,
		AST:     c.tree,
		DeclPos: declPos,
		Root:    *n,
		Params:  params,
		Context: &template.Context{},
	}
}

// resolveTemplateInstance resolves a TypeRef carrying instantiation
// arguments (spec §4.5), e.g. List<i32>, against a template registered by
// an earlier generic class or function declaration in this module.
func (c *Compiler) resolveTemplateInstance(n *parser.Node) *types.DataType {
	tmpl, ok := c.templates[n.Name]
	if !ok {
		c.log.Errorf(diag.CodeNotFound, n.Tok.Loc, "unknown template %q", n.Name)
		return nil
	}
	var args []*types.DataType
	for _, ap := range c.tree.Siblings(n.TemplateParams) {
		args = append(args, c.resolveType(ap))
	}
	inst, err := c.engine.Instantiate(tmpl, args, 0, c.compileTemplateInstance)
	if err != nil {
		c.log.Errorf(diag.CodeInternal, n.Tok.Loc, "instantiating %s: %v", template.DisplayName(tmpl, args), err)
		return nil
	}
	if inst.Type != nil {
		return inst.Type
	}
	return nil
}

// compileTemplateInstance is the template.CompileFunc the engine calls on a
// cache miss: it swaps this Compiler's tree for the freshly cloned one,
// binds the template's parameter names as concrete types for the duration
// of the compile, renames the declaration to its specialization display
// name (spec §4.5 step 4) so distinct instantiations don't collide in the
// type registry's fully-qualified-name space, and re-enters the ordinary
// class/function declaration path at declPos (the same position CloneTree
// reproduces in every clone).
func (c *Compiler) compileTemplateInstance(clone *parser.Tree, declPos arena.Pos, params map[string]*types.DataType, _ *template.Context) (*template.Instantiation, error) {
	n := clone.Get(declPos)
	tmpl, ok := c.templates[n.Name]
	if !ok {
		return nil, errors.Errorf("template %q: no longer registered", n.Name)
	}
	args := make([]*types.DataType, len(tmpl.Params))
	for i, pname := range tmpl.Params {
		args[i] = params[pname]
	}
	displayName := template.DisplayName(tmpl, args)
	n.Name = displayName

	outerTree := c.tree
	c.tree = clone
	defer func() { c.tree = outerTree }()

	c.scopes.Push(false, false, nil)
	for name, t := range params {
		c.scopes.Declare(&modgraph.Symbol{Kind: modgraph.SymType, Name: name, Type: t})
	}
	defer c.scopes.Pop()

	switch n.Kind {
	case parser.KindClassDecl:
		c.compileClassDecl(declPos)
		fqn := c.mod.Name + "." + displayName
		t := c.types.ByFQN(fqn)
		if t == nil {
			return nil, errors.Errorf("template %q: class %q was not registered", tmpl.Name, fqn)
		}
		return &template.Instantiation{Tree: clone, Type: t}, nil
	case parser.KindFunctionDecl:
		fn := c.compileFunctionDecl(declPos, nil)
		return &template.Instantiation{Tree: clone, Func: fn}, nil
	default:
		return nil, errors.Errorf("template %q: unsupported declaration kind", n.Name)
	}
}

func (c *Compiler) lookupNamedType(name string) *types.DataType {
	switch name {
	case "void":
		return c.builtins.Void
	case "bool":
		return c.builtins.Bool
	case "i8":
		return c.builtins.I8
	case "i16":
		return c.builtins.I16
	case "i32":
		return c.builtins.I32
	case "i64":
		return c.builtins.I64
	case "u8":
		return c.builtins.U8
	case "u16":
		return c.builtins.U16
	case "u32":
		return c.builtins.U32
	case "u64":
		return c.builtins.U64
	case "f32":
		return c.builtins.F32
	case "f64":
		return c.builtins.F64
	case "string":
		return c.builtins.String
	}
	if t := c.types.ByFQN(name); t != nil {
		return t
	}
	if sym := c.scopes.Lookup(name); sym != nil && sym.Kind == modgraph.SymType {
		return sym.Type
	}
	return nil
}

// valueOf looks up a previously declared identifier as an IR value: a local
// or parameter register, or the zero Value (with nil type) if name does not
// name a value in scope.
func (c *Compiler) valueOf(name string) (ir.Value, *types.DataType) {
	sym := c.scopes.Lookup(name)
	if sym == nil || sym.Kind != modgraph.SymValue {
		return ir.Value{}, nil
	}
	v, _ := sym.ValueHandle.(ir.Value)
	return v, sym.ValueType
}
