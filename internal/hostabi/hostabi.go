// Package hostabi implements the host binding ABI of spec §6.1: the
// call_context convention a backend uses to invoke a host-registered
// function, and the type-registration records the host side supplies for
// each bound type. Grounded on the teacher's internal/vm/network_http_server.go
// host-callback registration pattern, generalized from that file's ad hoc
// interface{} argument passing to the spec's explicit by-value/by-pointer/
// doubly-indirected convention.
package hostabi

import (
	"sync"

	"github.com/pkg/errors"

	"tsnc/internal/types"
)

// CallContext is passed to every wrapper, per spec §6.1. ReturnPtr and
// ThisPtr are unset (zero) when not applicable: a non-method call leaves
// ThisPtr at 0, a void-returning call leaves ReturnPtr at 0.
type CallContext struct {
	ReturnPtr           uintptr
	FunctionPtr         uintptr
	ThisPtr             uintptr
	ExecutionContextPtr uintptr
}

// ArgKind selects one of the three argument-passing conventions spec §6.1
// enumerates. The compiler picks the kind per-argument from the callee's
// signature; a wrapper trusts it without re-deriving it from the DataType,
// since a mismatch here is explicitly undefined behavior per the spec.
type ArgKind int

const (
	// ArgByValue passes a primitive's bits directly.
	ArgByValue ArgKind = iota
	// ArgByPointer passes the address of an object the callee treats as
	// a value (a class instance, a string, a vector).
	ArgByPointer
	// ArgDoublyIndirected is for a pointer-typed argument the callee
	// itself treats as a pointer: the wrapper stores the argument in a
	// scratch slot and passes the address of that slot.
	ArgDoublyIndirected
)

// Arg is one argument as handed to a Wrapper: Value holds either the raw
// value bits (ArgByValue) or the pointee address (ArgByPointer /
// ArgDoublyIndirected); Kind says which.
type Arg struct {
	Kind  ArgKind
	Value uintptr
}

// Wrapper is the ABI's entry point: void wrapper(call_context*, args...)
// for a non-method, or the same with ctx.ThisPtr set for a method. It is
// responsible for placement-constructing the return value (or writing
// through ctx.ReturnPtr for a primitive) and for forwarding args to the
// underlying Go implementation.
type Wrapper func(ctx *CallContext, args []Arg) error

// Method pairs a bound method's native function pointer with its wrapper.
// FuncPtr is opaque outside this package: it exists so a produced Artifact
// can round-trip "the function this wrapper forwards to" without the
// wrapper needing to expose a reflect-based call path.
type Method struct {
	Name       string
	FuncPtr    uintptr
	WrapperPtr uintptr
	Wrapper    Wrapper
	IsMethod   bool
}

// HostType is one host-registered type record: everything spec §6.1 says
// host code supplies when binding a type (host hash, size, alignment, meta
// flags, ordered properties and methods).
type HostType struct {
	HostHash  uint64
	Name      string
	Size      uint32
	Align     uint32
	Meta      types.Meta
	Properties []HostProperty
	Methods    []Method
}

// HostProperty is one bound field: its offset within the host type and the
// DataType its value is exposed as.
type HostProperty struct {
	Name   string
	Offset uint64
	Type   *types.DataType
}

// Registry owns every host-bound type and method for one process, indexed
// by host hash (to resolve a DataType.HostHash back to its wrapper table);
// it keeps no index by DataType id.
type Registry struct {
	mu    sync.RWMutex
	byHash map[uint64]*HostType
}

func NewRegistry() *Registry {
	return &Registry{byHash: map[uint64]*HostType{}}
}

// Register adds ht, rejecting a duplicate host hash (mirrors
// types.Registry.Add's duplicate-host-hash rule, since the two maps must
// stay in lockstep: every HostType registered here is expected to also be
// added to a types.Registry under the same hash).
func (r *Registry) Register(ht *HostType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byHash[ht.HostHash]; exists {
		return errors.Errorf("hostabi: duplicate host hash %#x for type %q", ht.HostHash, ht.Name)
	}
	r.byHash[ht.HostHash] = ht
	return nil
}

func (r *Registry) ByHostHash(h uint64) *HostType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byHash[h]
}

// Method resolves a bound method by type hash and name, the lookup a call
// through a DataType with a populated HostHash performs before invoking a
// Function whose AddressKind is types.AddressNative.
func (r *Registry) Method(hostHash uint64, name string) (Method, bool) {
	ht := r.ByHostHash(hostHash)
	if ht == nil {
		return Method{}, false
	}
	for _, m := range ht.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return Method{}, false
}

// Invoke calls a free function's wrapper with no `this`, the convention for
// every non-method binding (spec §6.1's "For non-methods").
func Invoke(w Wrapper, returnPtr uintptr, execCtx uintptr, args []Arg) error {
	ctx := &CallContext{ReturnPtr: returnPtr, ExecutionContextPtr: execCtx}
	return w(ctx, args)
}

// InvokeMethod calls a bound method's wrapper with ctx.ThisPtr set, the
// convention for every method binding (spec §6.1's "For methods: same,
// with call_context.thisPtr set").
func InvokeMethod(w Wrapper, thisPtr, returnPtr, execCtx uintptr, args []Arg) error {
	ctx := &CallContext{ReturnPtr: returnPtr, ThisPtr: thisPtr, ExecutionContextPtr: execCtx}
	return w(ctx, args)
}
