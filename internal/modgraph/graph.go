package modgraph

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"tsnc/internal/diag"
	"tsnc/internal/source"
)

// Module is one node of the graph: a resolved path, its id, and the list of
// modules it imports (by id), populated as the pipeline compiles it.
type Module struct {
	ID      source.ModuleID
	Path    string
	Name    string
	Imports []source.ModuleID
}

// Graph owns every module discovered during one compile, keyed by id, and
// the import stack used to detect cycles while a chain of imports is being
// resolved. Concurrent child-pipeline loads for the same module id are
// deduplicated through a singleflight.Group, matching the teacher's
// RWMutex-guarded cache in internal/module/module.go but generalized to
// collapse concurrent duplicate work rather than only serialize reads.
type Graph struct {
	mu      sync.RWMutex
	modules map[source.ModuleID]*Module

	stackMu sync.Mutex
	stack   []stackFrame

	group singleflight.Group
}

type stackFrame struct {
	id   source.ModuleID
	path string
}

func NewGraph() *Graph {
	return &Graph{modules: map[source.ModuleID]*Module{}}
}

func (g *Graph) Get(id source.ModuleID) (*Module, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.modules[id]
	return m, ok
}

func (g *Graph) put(m *Module) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.modules[m.ID] = m
}

// EnterImport pushes (id, path) onto the import stack, returning a cyclic
// import diagnostic naming every frame if id is already on the stack.
func (g *Graph) EnterImport(id source.ModuleID, path string) (func(), *diag.Diagnostic) {
	g.stackMu.Lock()
	defer g.stackMu.Unlock()

	for _, f := range g.stack {
		if f.id == id {
			frames := make([]string, 0, len(g.stack)+1)
			for _, sf := range g.stack {
				frames = append(frames, sf.path)
			}
			frames = append(frames, path)
			d := diag.New(diag.CodeCyclicImports, diag.Error, source.Location{},
				"cyclic import: %s", strings.Join(frames, " -> "))
			return func() {}, &d
		}
	}

	g.stack = append(g.stack, stackFrame{id: id, path: path})
	popped := false
	pop := func() {
		g.stackMu.Lock()
		defer g.stackMu.Unlock()
		if popped {
			return
		}
		popped = true
		g.stack = g.stack[:len(g.stack)-1]
	}
	return pop, nil
}

// Load runs loader exactly once per distinct module id even under
// concurrent child-pipeline calls, caching the result in the graph.
func (g *Graph) Load(id source.ModuleID, path string, loader func() (*Module, error)) (*Module, error) {
	if m, ok := g.Get(id); ok {
		return m, nil
	}
	key := fmt.Sprintf("%d", id)
	v, err, _ := g.group.Do(key, func() (interface{}, error) {
		if m, ok := g.Get(id); ok {
			return m, nil
		}
		m, err := loader()
		if err != nil {
			return nil, err
		}
		g.put(m)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Module), nil
}
