// Package backend defines the target abstraction of spec §4.10: something
// that accepts a compiled, optimized Module and turns it into a callable
// artifact. Two concrete backends implement it: backend/vmback (a
// register-based bytecode VM) and backend/native (an LLVM-IR-emitting
// native target).
package backend

import (
	"tsnc/internal/compiler"
	"tsnc/internal/source"
	"tsnc/internal/types"
)

// Backend is the pipeline's target abstraction. gp_count/fp_count feed
// internal/regalloc's two register pools; PerformsOwnRegisterAllocation
// lets a backend opt out of that pass entirely and do its own (neither
// concrete backend in this module does, but the interface leaves room for
// one that would, e.g. a backend handing allocation to an external
// assembler).
type Backend interface {
	GPCount() int
	FPCount() int
	PerformsOwnRegisterAllocation() bool
	Generate(mod *compiler.Module) (Artifact, error)
}

// Artifact is a backend-produced callable unit: the VM's instruction
// buffer plus source map, or the native backend's compiled LLVM module.
// Call follows the host binding ABI of spec §6.1: primitives are written
// through returnPtr, objects are passed/returned by pointer.
type Artifact interface {
	Call(fn *types.Function, returnPtr uintptr, argPtrs []uintptr) error
	// SourceLocation maps a backend-defined program counter (VM
	// instruction index, or native instruction offset) back to the
	// source location that produced it, per §4.10's "source map".
	SourceLocation(pc int) (source.Location, bool)
}
