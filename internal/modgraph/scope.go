package modgraph

import "tsnc/internal/types"

// SymbolKind tags which arm of Symbol is populated.
type SymbolKind int

const (
	SymValue SymbolKind = iota
	SymType
	SymModule
	SymFunctionSet
)

// Symbol is the scope manager's identifier->entity mapping (spec §4.4):
// a value (local variable), a type name, an imported module, or an
// overload set of functions sharing a name.
type Symbol struct {
	Kind      SymbolKind
	Name      string
	ValueType *types.DataType
	Type      *types.DataType
	Module    *Module
	Functions []*types.Function

	// HasDtor and ValueHandle let the scope manager emit destructor calls on
	// scope exit without the compiler re-deriving destructibility.
	HasDtor     bool
	ValueHandle interface{}
}

// Scope is one lexical frame: a symbol table plus bookkeeping for
// deterministic destruction and break/continue destructor emission.
type Scope struct {
	symbols map[string]*Symbol
	// locals records live values in declaration order, independent of
	// `symbols`' map order, so destructors run in reverse insertion order.
	locals []*Symbol

	IsLoop    bool
	IsSwitch  bool
	Function  *types.Function
}

func newScope() *Scope {
	return &Scope{symbols: map[string]*Symbol{}}
}

// Manager is the stack of lexical scopes of spec §4.4.
type Manager struct {
	stack []*Scope
}

func NewManager() *Manager {
	return &Manager{}
}

// Push opens a new scope, inheriting the enclosing function unless fn is
// non-nil (entering a new function body).
func (m *Manager) Push(isLoop, isSwitch bool, fn *types.Function) *Scope {
	s := newScope()
	s.IsLoop = isLoop
	s.IsSwitch = isSwitch
	if fn != nil {
		s.Function = fn
	} else if len(m.stack) > 0 {
		s.Function = m.stack[len(m.stack)-1].Function
	}
	m.stack = append(m.stack, s)
	return s
}

// Pop closes the innermost scope and returns the locals that need a
// destructor call, in reverse insertion order (spec §4.4).
func (m *Manager) Pop() []*Symbol {
	n := len(m.stack)
	top := m.stack[n-1]
	m.stack = m.stack[:n-1]

	var needDtor []*Symbol
	for i := len(top.locals) - 1; i >= 0; i-- {
		if top.locals[i].HasDtor {
			needDtor = append(needDtor, top.locals[i])
		}
	}
	return needDtor
}

// Declare adds a symbol to the innermost scope, recording it in locals if
// it's a value so Pop can destruct it in order.
func (m *Manager) Declare(sym *Symbol) {
	top := m.stack[len(m.stack)-1]
	top.symbols[sym.Name] = sym
	if sym.Kind == SymValue {
		top.locals = append(top.locals, sym)
	}
}

// Lookup searches from the innermost scope outward.
func (m *Manager) Lookup(name string) *Symbol {
	for i := len(m.stack) - 1; i >= 0; i-- {
		if sym, ok := m.stack[i].symbols[name]; ok {
			return sym
		}
	}
	return nil
}

// ExitScopesTo walks outward from the innermost scope collecting the
// destructor-needing locals of every scope up to and including the nearest
// loop (for `continue`) or nearest loop/switch (for `break`), without
// actually popping them — the caller (compiler) emits destructor calls then
// continues compiling sibling statements in the still-open scopes.
func (m *Manager) ExitScopesTo(stopAtSwitchToo bool) []*Symbol {
	var out []*Symbol
	for i := len(m.stack) - 1; i >= 0; i-- {
		s := m.stack[i]
		for j := len(s.locals) - 1; j >= 0; j-- {
			if s.locals[j].HasDtor {
				out = append(out, s.locals[j])
			}
		}
		if s.IsLoop || (stopAtSwitchToo && s.IsSwitch) {
			break
		}
	}
	return out
}

// EnclosingFunction walks the scope stack to find the function the
// innermost scope belongs to, used by `this` resolution and return-type
// inference (spec §4.4).
func (m *Manager) EnclosingFunction() *types.Function {
	if len(m.stack) == 0 {
		return nil
	}
	return m.stack[len(m.stack)-1].Function
}

// ExitAll collects the destructor-needing locals of every open scope, in
// reverse insertion order, without popping them — used by `return`, which
// must unwind every enclosing scope up to the function boundary rather than
// stopping at the nearest loop or switch.
func (m *Manager) ExitAll() []*Symbol {
	var out []*Symbol
	for i := len(m.stack) - 1; i >= 0; i-- {
		s := m.stack[i]
		for j := len(s.locals) - 1; j >= 0; j-- {
			if s.locals[j].HasDtor {
				out = append(out, s.locals[j])
			}
		}
	}
	return out
}

// EnclosingLoopOrSwitch reports whether a break/continue is currently valid.
func (m *Manager) EnclosingLoopOrSwitch() (loop, sw bool) {
	for i := len(m.stack) - 1; i >= 0; i-- {
		if m.stack[i].IsLoop {
			return true, false
		}
		if m.stack[i].IsSwitch {
			return false, true
		}
	}
	return false, false
}
