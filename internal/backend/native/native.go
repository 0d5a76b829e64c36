// Package native implements the native x86-64 backend of spec §4.10: it
// lowers an allocated, optimized Module into an LLVM IR module using
// github.com/llir/llvm (the same library other_examples' bin2ll
// disassembler builds *ir.Func/*ir.Block graphs with), leaving actual
// machine-code generation to llc/clang as an out-of-scope external
// collaborator — this backend's job ends at producing a well-formed
// *ir.Module, matching spec §4.10's "translates IR opcodes to machine
// instructions" framing without mandating a hand-rolled assembler.
package native

import (
	"fmt"
	"math"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	llvmtypes "github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/pkg/errors"

	"tsnc/internal/backend"
	"tsnc/internal/compiler"
	irpkg "tsnc/internal/ir"
	"tsnc/internal/source"
	"tsnc/internal/types"
)

// ErrUnsupportedSignature is returned when a host function's signature
// can't be translated to the platform C calling convention (spec §4.10:
// "fallible if given a host function signature it cannot match; such
// failures are reported, not asserted").
var ErrUnsupportedSignature = errors.New("native: unsupported host function signature")

// Backend is the LLVM-IR-emitting native target. GP/FP mirror the
// platform's integer and SSE register files; like vmback it still wants
// internal/regalloc to run first (PerformsOwnRegisterAllocation is
// false) — the allocator's spill decisions become this backend's
// stack-slot allocas, rather than this package re-deriving its own.
type Backend struct {
	GP int
	FP int
}

func New(gpCount, fpCount int) *Backend { return &Backend{GP: gpCount, FP: fpCount} }

func (b *Backend) GPCount() int                       { return b.GP }
func (b *Backend) FPCount() int                       { return b.FP }
func (b *Backend) PerformsOwnRegisterAllocation() bool { return false }

// Artifact wraps the emitted LLVM module. Call always fails: spec §4.10
// frames codegen-to-object as llc/clang's job, an external collaborator
// this package never shells out to, so there is no in-process entry point
// to invoke.
type Artifact struct {
	Module *ir.Module
}

func (a *Artifact) String() string { return a.Module.String() }

func (a *Artifact) Call(fn *types.Function, returnPtr uintptr, argPtrs []uintptr) error {
	return errors.Errorf("native: in-process call of %q requires a compiled object (see llc/clang); this backend only emits LLVM IR", fn.Name)
}

func (a *Artifact) SourceLocation(pc int) (source.Location, bool) {
	return source.Location{}, false
}

// Generate translates every function of mod into an LLVM ir.Func within
// one ir.Module.
func (b *Backend) Generate(mod *compiler.Module) (backend.Artifact, error) {
	m := ir.NewModule()
	art := &Artifact{Module: m}
	funcsByName := map[string]*ir.Func{}

	fns := append([]*irpkg.FunctionDef{}, mod.Functions...)
	if mod.Init != nil {
		fns = append(fns, mod.Init)
	}

	for _, fn := range fns {
		llFn := m.NewFunc(fn.Name, llvmType(fn.Return), paramList(fn)...)
		funcsByName[fn.Name] = llFn
	}
	for _, fn := range fns {
		g := &funcGen{module: m, funcsByName: funcsByName}
		if err := g.generate(fn, funcsByName[fn.Name]); err != nil {
			return nil, errors.Wrapf(err, "native: generating function %q", fn.Name)
		}
	}
	return art, nil
}

func paramList(fn *irpkg.FunctionDef) []*ir.Param {
	params := make([]*ir.Param, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = ir.NewParam(fmt.Sprintf("a%d", i), llvmType(p))
	}
	return params
}

func llvmType(t *types.DataType) llvmtypes.Type {
	if t == nil {
		return llvmtypes.Void
	}
	if !t.Meta.Primitive {
		return llvmtypes.NewPointer(llvmtypes.I64) // every non-primitive is passed/returned by pointer, per §6.1
	}
	switch {
	case t.Meta.FloatingPoint && t.Size == 4:
		return llvmtypes.Float
	case t.Meta.FloatingPoint:
		return llvmtypes.Double
	case t.Size == 1:
		return llvmtypes.I8
	case t.Size == 2:
		return llvmtypes.I16
	case t.Size == 4:
		return llvmtypes.I32
	default:
		return llvmtypes.I64
	}
}

// llvmValue pairs an LLVM SSA value with whether it's floating-point,
// mirroring the GP/FP split carried through internal/ir and
// internal/regalloc — LLVM's own type system makes this recoverable from
// val.Type(), but threading the flag avoids a type-switch at every use.
type llvmValue struct {
	val   value.Value
	float bool
}

// funcGen holds the state threaded through one function's translation:
// the module it contributes to, the cross-function symbol table (for
// OpCall targets), and the per-IR-register/stack-slot/label scratch maps.
type funcGen struct {
	module      *ir.Module
	funcsByName map[string]*ir.Func

	block       *ir.Block
	values      map[irpkg.RegID]llvmValue
	blocks      map[irpkg.LabelID]*ir.Block
	stack       map[int]value.Value // stack-slot id -> alloca
	params      []llvmValue
	pendingArgs []llvmValue
}

func (g *funcGen) generate(fn *irpkg.FunctionDef, llFn *ir.Func) error {
	g.values = map[irpkg.RegID]llvmValue{}
	g.blocks = map[irpkg.LabelID]*ir.Block{}
	g.stack = map[int]value.Value{}
	g.params = make([]llvmValue, len(llFn.Params))
	for i, p := range llFn.Params {
		g.params[i] = llvmValue{val: p, float: isFloatType(p.Type())}
	}

	entry := llFn.NewBlock("entry")
	g.block = entry
	for id, size := range fn.Stack {
		g.stack[id] = entry.NewAlloca(llvmtypes.NewArray(uint64(size), llvmtypes.I8))
	}

	for i := range fn.Instructions {
		if fn.Instructions[i].Op == irpkg.OpLabel {
			lbl := fn.Instructions[i].Operands[0].AsLabel()
			if _, ok := g.blocks[lbl]; !ok {
				g.blocks[lbl] = llFn.NewBlock(fmt.Sprintf("L%d", lbl))
			}
		}
	}

	for _, ins := range fn.Instructions {
		if err := g.lower(ins); err != nil {
			return err
		}
	}
	if g.block.Term == nil {
		g.block.NewRet(nil)
	}
	return nil
}

func isFloatType(t llvmtypes.Type) bool {
	_, ok := t.(*llvmtypes.FloatType)
	return ok
}

func (g *funcGen) operand(v irpkg.Value) (llvmValue, error) {
	switch v.Kind {
	case irpkg.ValRegister:
		if val, ok := g.values[v.Reg]; ok {
			return val, nil
		}
		return llvmValue{val: constant.NewInt(llvmtypes.I64, 0)}, nil
	case irpkg.ValStackSlot:
		slot, ok := g.stack[v.SlotID]
		if !ok {
			return llvmValue{}, errors.Errorf("native: reference to unallocated stack slot %d", v.SlotID)
		}
		loaded := g.block.NewLoad(llvmType(v.Type), slot)
		return llvmValue{val: loaded, float: v.Type != nil && v.Type.Meta.FloatingPoint}, nil
	case irpkg.ValArgSlot:
		if v.ArgIndex < len(g.params) {
			return g.params[v.ArgIndex], nil
		}
		return llvmValue{}, errors.Errorf("native: argument index %d out of range", v.ArgIndex)
	case irpkg.ValImmediate:
		if v.Type != nil && v.Type.Meta.FloatingPoint {
			bits := floatFromBits(v.ImmBits, v.Type.Size)
			return llvmValue{val: constant.NewFloat(llvmtypes.Double, bits), float: true}, nil
		}
		return llvmValue{val: constant.NewInt(llvmtypes.I64, int64(v.ImmBits))}, nil
	default:
		return llvmValue{val: constant.NewInt(llvmtypes.I64, 0)}, nil
	}
}

func floatFromBits(bits uint64, size uint32) float64 {
	if size == 4 {
		return float64(math.Float32frombits(uint32(bits)))
	}
	return math.Float64frombits(bits)
}

func (g *funcGen) setDest(dest irpkg.Value, v llvmValue) {
	if dest.Type == nil && dest.Kind == irpkg.ValRegister && dest.Func == nil {
		return // the zero-value "no destination" sentinel
	}
	switch dest.Kind {
	case irpkg.ValRegister:
		g.values[dest.Reg] = v
	case irpkg.ValStackSlot:
		if slot, ok := g.stack[dest.SlotID]; ok {
			g.block.NewStore(v.val, slot)
		}
	}
}

// lower translates one IR instruction into the current LLVM block,
// switching blocks on OpLabel and terminating the current one on
// Jump/Branch/Ret/Throw, matching internal/ir's basic-block boundaries
// one-for-one with LLVM's.
func (g *funcGen) lower(ins irpkg.Instruction) error {
	switch ins.Op {
	case irpkg.OpNoop, irpkg.OpStackAllocate, irpkg.OpStackFree, irpkg.OpReserve, irpkg.OpModuleData:
		return nil

	case irpkg.OpLabel:
		blk := g.blocks[ins.Operands[0].AsLabel()]
		if g.block.Term == nil {
			g.block.NewBr(blk)
		}
		g.block = blk
		return nil

	case irpkg.OpAssign, irpkg.OpLoad, irpkg.OpResolve, irpkg.OpStore:
		v, err := g.operand(ins.Operands[1])
		if err != nil {
			return err
		}
		g.setDest(ins.Operands[0], v)
		return nil

	case irpkg.OpJump:
		g.block.NewBr(g.blocks[ins.Operands[0].AsLabel()])
		return nil

	case irpkg.OpBranch:
		cond, err := g.operand(ins.Operands[0])
		if err != nil {
			return err
		}
		intTy, ok := cond.val.Type().(*llvmtypes.IntType)
		if !ok {
			intTy = llvmtypes.I64
		}
		truthy := g.block.NewICmp(enum.IPredNE, cond.val, constant.NewInt(intTy, 0))
		g.block.NewCondBr(truthy, g.blocks[ins.Operands[1].AsLabel()], g.blocks[ins.Operands[2].AsLabel()])
		return nil

	case irpkg.OpRet:
		if ins.Operands[0].Type == nil {
			g.block.NewRet(nil)
			return nil
		}
		v, err := g.operand(ins.Operands[0])
		if err != nil {
			return err
		}
		g.block.NewRet(v.val)
		return nil

	case irpkg.OpThrow:
		// The native backend has no unwinder of its own: a thrown value
		// becomes an immediate trap. The unwind tables that would make
		// this a real exception are llc/clang's to emit once this
		// module is compiled to an object, not this package's.
		g.block.NewCall(g.trapFunc())
		g.block.NewUnreachable()
		return nil

	case irpkg.OpParam:
		v, err := g.operand(ins.Operands[0])
		if err != nil {
			return err
		}
		g.pendingArgs = append(g.pendingArgs, v)
		return nil

	case irpkg.OpCall:
		return g.lowerCall(ins)

	default:
		return g.lowerArith(ins)
	}
}

func (g *funcGen) trapFunc() *ir.Func {
	const name = "llvm.trap"
	if fn, ok := g.funcsByName[name]; ok {
		return fn
	}
	fn := g.module.NewFunc(name, llvmtypes.Void)
	g.funcsByName[name] = fn
	return fn
}

func (g *funcGen) lowerCall(ins irpkg.Instruction) error {
	fnVal := ins.Operands[1]
	if fnVal.Kind != irpkg.ValFunctionRef || fnVal.Func == nil {
		return errors.New("native: call to a non-static function reference is unsupported")
	}
	callee, ok := g.funcsByName[fnVal.Func.Name]
	if !ok {
		return errors.Wrapf(ErrUnsupportedSignature, "no native declaration for %q", fnVal.Func.Name)
	}
	args := g.pendingArgs
	g.pendingArgs = nil
	if len(args) != len(callee.Params) {
		return errors.Wrapf(ErrUnsupportedSignature, "call to %q: %d arguments pushed, %d expected", fnVal.Func.Name, len(args), len(callee.Params))
	}
	callArgs := make([]value.Value, len(args))
	for i, a := range args {
		callArgs[i] = a.val
	}
	result := g.block.NewCall(callee, callArgs...)
	g.setDest(ins.Operands[0], llvmValue{val: result})
	return nil
}

func (g *funcGen) lowerArith(ins irpkg.Instruction) error {
	d := ins.Op.Descriptor()
	if d.OperandCnt < 2 {
		return nil
	}
	b, err := g.operand(ins.Operands[1])
	if err != nil {
		return err
	}
	var c llvmValue
	hasC := d.OperandCnt > 2
	if hasC {
		c, err = g.operand(ins.Operands[2])
		if err != nil {
			return err
		}
	}
	result, err := arithOp(g.block, ins.Op, b, c, hasC)
	if err != nil {
		return err
	}
	g.setDest(ins.Operands[0], result)
	return nil
}
