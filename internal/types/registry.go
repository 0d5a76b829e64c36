package types

import "github.com/pkg/errors"

// Registry owns every DataType for one compile, keyed by id, fully
// qualified name, and (for host-bound types) host hash, per spec §4.3.
type Registry struct {
	nextID   ID
	byID     map[ID]*DataType
	byFQN    map[string]*DataType
	byHost   map[uint64]*DataType
}

func NewRegistry() *Registry {
	return &Registry{
		byID:   map[ID]*DataType{},
		byFQN:  map[string]*DataType{},
		byHost: map[uint64]*DataType{},
	}
}

// Add assigns t a fresh id and inserts it. Duplicate id (impossible, since
// Add assigns it) or duplicate host hash is a hard error per spec §4.3.
func (r *Registry) Add(t *DataType) error {
	if t.HostHash != 0 {
		if _, exists := r.byHost[t.HostHash]; exists {
			return errors.Errorf("types: duplicate host hash %#x for type %q", t.HostHash, t.FullyQualifiedName)
		}
	}
	if _, exists := r.byFQN[t.FullyQualifiedName]; exists {
		return errors.Errorf("types: duplicate fully qualified name %q", t.FullyQualifiedName)
	}
	r.nextID++
	t.ID = r.nextID
	r.byID[t.ID] = t
	r.byFQN[t.FullyQualifiedName] = t
	if t.HostHash != 0 {
		r.byHost[t.HostHash] = t
	}
	return nil
}

func (r *Registry) ByID(id ID) *DataType            { return r.byID[id] }
func (r *Registry) ByFQN(name string) *DataType     { return r.byFQN[name] }
func (r *Registry) ByHostHash(h uint64) *DataType   { return r.byHost[h] }
func (r *Registry) Len() int                        { return len(r.byID) }

func (r *Registry) All() []*DataType {
	out := make([]*DataType, 0, len(r.byID))
	for _, t := range r.byID {
		out = append(out, t)
	}
	return out
}

// FunctionRegistry owns every Function for one compile and assigns each a
// monotonically increasing id, the stable function id used during one
// process (spec §4.3).
type FunctionRegistry struct {
	nextID ID
	byID   map[ID]*Function
	byName map[string][]*Function
}

func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		byID:   map[ID]*Function{},
		byName: map[string][]*Function{},
	}
}

func (r *FunctionRegistry) Add(f *Function) ID {
	r.nextID++
	f.ID = r.nextID
	r.byID[f.ID] = f
	r.byName[f.Name] = append(r.byName[f.Name], f)
	return f.ID
}

func (r *FunctionRegistry) ByID(id ID) *Function { return r.byID[id] }

func (r *FunctionRegistry) ByName(name string) []*Function { return r.byName[name] }

// Match resolves an overload by name against every registered function with
// that name; see Match for the algorithm.
func (r *FunctionRegistry) Match(name string, retHint *DataType, argTps []*DataType, flags MatchFlags) []*Function {
	return Match(name, retHint, argTps, r.byName[name], flags)
}
