// Package pipeline coordinates the lexer -> parser -> compiler -> optimizer
// -> register allocator -> backend chain of spec §2, and implements the
// concurrency & resource model of spec §5: one Pipeline compiles one
// source file single-threadedly; each import spawns a nested child
// Pipeline that shares the parent's type/function registries and module
// graph (so identifiers resolve consistently across the whole compile) but
// owns its own Compiler, diagnostic logger, and import stack frame.
// Grounded on the teacher's internal/module/module.go "resolve, load,
// cache" loader shape, generalized from its flat map[string]*vm.Module
// cache to per-module .cache files (internal/cache) and from its
// single-pass compile to the parse/compile/optimize/regalloc/backend
// chain every concrete component in this module actually implements.
package pipeline

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/mod/module"

	"tsnc/internal/backend"
	"tsnc/internal/cache"
	"tsnc/internal/compiler"
	"tsnc/internal/diag"
	"tsnc/internal/hostabi"
	"tsnc/internal/ir"
	"tsnc/internal/lexer"
	"tsnc/internal/modgraph"
	"tsnc/internal/optimize"
	"tsnc/internal/parser"
	"tsnc/internal/regalloc"
	"tsnc/internal/runtime"
	"tsnc/internal/source"
	"tsnc/internal/types"
)

// maxOptimizeIterations is the optimizer's fixed-point cap (spec §4.8).
const maxOptimizeIterations = 8

// Shared is the state a root Pipeline and every child Pipeline it spawns
// for an import hold in common: the single type/function registry and
// module graph for the whole compile, plus where compiled modules are
// cached on disk.
type Shared struct {
	Types     *types.Registry
	Builtins  *types.Builtins
	Funcs     *types.FunctionRegistry
	Graph     *modgraph.Graph
	HostABI   *hostabi.Registry
	Backend   backend.Backend
	CacheDir  string
	SearchDir []string
}

// NewShared seeds a fresh registry set with the builtin primitive types,
// the state one whole-program compile needs before the first file is
// lexed.
func NewShared(b backend.Backend, cacheDir string, searchDir []string) *Shared {
	reg := types.NewRegistry()
	builtins := types.RegisterBuiltins(reg)
	return &Shared{
		Types:     reg,
		Builtins:  builtins,
		Funcs:     types.NewFunctionRegistry(),
		Graph:     modgraph.NewGraph(),
		HostABI:   hostabi.NewRegistry(),
		Backend:   b,
		CacheDir:  cacheDir,
		SearchDir: searchDir,
	}
}

// Pipeline compiles one source file. Its Log accumulates every diagnostic
// from lexing through register allocation for that file only; a caller
// compiling a tree of imports merges child Pipelines' logs into its own
// (modgraph-style "the compile fails iff any file's log has an error").
type Pipeline struct {
	shared *Shared
	Log    *diag.Logger

	// ID correlates this Pipeline's diagnostics and cache writes across a
	// compile that spans many nested child Pipelines (one per import);
	// it has no on-disk meaning, unlike the content-derived ModuleID.
	ID uuid.UUID
}

func New(shared *Shared) *Pipeline {
	return &Pipeline{shared: shared, Log: &diag.Logger{}, ID: uuid.New()}
}

// Result is one file's compiled output: the lowered module plus the
// source.Buffer it was compiled from, needed to report runtime diagnostics
// through the instruction-to-source map (spec §6.4).
type Result struct {
	Module *compiler.Module
	Buffer *source.Buffer
}

// CompileFile is the pipeline's entry point: read, lex, parse, resolve
// imports (each a nested child Pipeline), compile to IR, optimize, and
// (unless the backend performs its own) register-allocate every function.
// It does not invoke the backend; callers needing a callable Artifact pass
// the Result to Generate.
func (p *Pipeline) CompileFile(path string) (*Result, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline: read %s", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	buf := source.New(path, text, info.ModTime())

	pop, cyc := p.shared.Graph.EnterImport(buf.ID(), path)
	if cyc != nil {
		p.Log.Add(*cyc)
		return nil, errors.New(cyc.String())
	}
	defer pop()

	toks, lexDiags := lexer.Tokenize(buf)
	for _, d := range lexDiags {
		p.Log.Add(d)
	}

	ps := parser.New(buf, toks, p.Log)
	tree := ps.Parse()

	imports, err := p.resolveImports(tree, filepath.Dir(path))
	if err != nil {
		return nil, err
	}

	c := compiler.New(tree, p.shared.Types, p.shared.Builtins, p.shared.Funcs, p.Log)
	c.SetImports(imports)
	mod := c.CompileModule(moduleNameOf(path))

	if p.Log.HasErrors() {
		return nil, errors.Errorf("pipeline: %s failed to compile (%d diagnostics)", path, len(p.Log.All()))
	}

	p.optimizeAndAllocate(mod)

	if err := p.writeCache(buf, mod); err != nil {
		// A cache write failure degrades to "always recompile this
		// module", not a hard failure of the compile itself.
		p.Log.Warnf(diag.CodeInternal, source.Location{File: path}, "cache write failed: %v", err)
	}

	return &Result{Module: mod, Buffer: buf}, nil
}

// optimizeAndAllocate runs the optimizer's copy-propagation/CSE/
// dead-store-elimination group to a fixed point (capped per spec §4.8),
// then register-allocates every function unless the target backend opts
// out (spec §4.10's PerformsOwnRegisterAllocation).
func (p *Pipeline) optimizeAndAllocate(mod *compiler.Module) {
	group := optimize.NewGroup()
	fns := mod.Functions
	if mod.Init != nil {
		fns = append([]*ir.FunctionDef{mod.Init}, fns...)
	}
	for _, fn := range fns {
		for i := 0; i < maxOptimizeIterations; i++ {
			if !group.Run(fn) {
				break
			}
		}
		if !p.shared.Backend.PerformsOwnRegisterAllocation() {
			live := ir.Compute(fn, optimize.IsFloatFunc(fn))
			regalloc.New(p.shared.Backend.GPCount(), p.shared.Backend.FPCount()).Allocate(fn, live)
		}
	}
}

// resolveImports finds and compiles every import statement at the root of
// tree, each as a nested child Pipeline (spec §5), first consulting the
// on-disk cache so an unchanged dependency need not be recompiled.
func (p *Pipeline) resolveImports(tree *parser.Tree, fromDir string) (map[string]*modgraph.Module, error) {
	root := tree.Get(tree.Root)
	out := map[string]*modgraph.Module{}
	for _, sp := range tree.Siblings(root.Body) {
		n := tree.Get(sp)
		if n.Kind != parser.KindImport {
			continue
		}
		modPath, err := p.findImport(n.Name, fromDir)
		if err != nil {
			p.Log.Errorf(diag.CodeModuleNotFound, n.Tok.Loc, "module %q not found: %v", n.Name, err)
			continue
		}
		m, err := p.loadImport(n.Name, modPath)
		if err != nil {
			p.Log.Errorf(diag.CodeModuleNotFound, n.Tok.Loc, "failed to compile module %q: %v", n.Name, err)
			continue
		}
		out[n.Name] = m
	}
	return out, nil
}

// findImport resolves a bare import name to a file under the search path,
// matching the teacher's ModuleLoader.findModule lookup order (direct
// file, then each search directory).
func (p *Pipeline) findImport(name, fromDir string) (string, error) {
	if err := module.CheckImportPath(name); err != nil {
		return "", errors.Wrapf(err, "invalid module path %q", name)
	}
	candidates := []string{filepath.Join(fromDir, name+".tsn")}
	for _, dir := range p.shared.SearchDir {
		candidates = append(candidates, filepath.Join(dir, name+".tsn"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", errors.Errorf("no .tsn file found for %q", name)
}

// loadImport compiles modPath as a nested child Pipeline sharing this
// Pipeline's registries, or reuses a valid cache entry in place of a
// recompile. Graph.Load deduplicates a module imported by more than one
// file in the same compile (a diamond dependency) so it is only ever
// lexed/parsed/compiled once, win or lose.
func (p *Pipeline) loadImport(name, modPath string) (*modgraph.Module, error) {
	info, err := os.Stat(modPath)
	if err != nil {
		return nil, err
	}
	id := source.HashPath(modPath)
	return p.shared.Graph.Load(id, modPath, func() (*modgraph.Module, error) {
		if cm, err := cache.Read(p.shared.CacheDir, id, info.ModTime()); err == nil {
			return &modgraph.Module{ID: id, Path: modPath, Name: cm.ModuleName}, nil
		}

		child := New(p.shared)
		res, err := child.CompileFile(modPath)
		p.Log.Append(child.Log)
		if err != nil {
			return nil, err
		}
		var deps []source.ModuleID
		for dep := range res.Module.Imports {
			deps = append(deps, dep)
		}
		return &modgraph.Module{ID: res.Buffer.ID(), Path: modPath, Name: name, Imports: deps}, nil
	})
}

// writeCache persists mod's registry-visible identity to disk under its
// source buffer's module id, the atomic-rename write of spec §5/§6.3.
func (p *Pipeline) writeCache(buf *source.Buffer, mod *compiler.Module) error {
	if p.shared.CacheDir == "" {
		return nil
	}
	var funcRecords []cache.FuncRecord
	for _, fn := range p.shared.Funcs.ByName(mod.Name) {
		funcRecords = append(funcRecords, cache.FuncRecord{
			ID:             uint32(fn.ID),
			Name:           fn.Name,
			AddressKind:    uint8(fn.AddressKind),
			Address:        fn.Address,
			WrapperAddress: fn.WrapperAddress,
		})
	}
	var typeRecords []cache.TypeRecord
	for _, t := range p.shared.Types.All() {
		if !strings.HasPrefix(t.FullyQualifiedName, mod.Name+".") {
			continue
		}
		typeRecords = append(typeRecords, cache.TypeRecord{
			ID:       uint32(t.ID),
			Name:     t.Name,
			Size:     t.Size,
			HostHash: t.HostHash,
			Meta:     t.Meta,
		})
	}
	return cache.Write(p.shared.CacheDir, cache.Module{
		SourceMtime: buf.ModTime.Unix(),
		SourceHash:  buf.Hash(),
		ModuleID:    uint32(buf.ID()),
		ModuleName:  mod.Name,
		ModulePath:  buf.Path,
		Types:       typeRecords,
		Funcs:       funcRecords,
	})
}

func moduleNameOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// NewRuntimeHeap sizes and maps a Heap per spec §6.2's -m bound, used by
// the vm backend's Artifact.Call path and by host bindings (stdlib/db)
// that materialize heap-resident results.
func NewRuntimeHeap(bytes uint32) (*runtime.Heap, error) {
	return runtime.New(bytes, os.Stdout)
}
