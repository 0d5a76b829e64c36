package vmback

import (
	"fmt"
	"math"
	"unsafe"

	"tsnc/internal/types"
)

// toPtr converts a host-ABI uintptr (spec §6.1's call_context pointers) to
// an unsafe.Pointer at the one point the VM ever dereferences host memory.
func toPtr(p uintptr) unsafe.Pointer { return unsafe.Pointer(p) } //nolint:govet

// Frame is one call's register/stack/argument window. GP and FP are
// disjoint, matching internal/regalloc's two independent pools; Stack
// holds spilled values, indexed directly by the IR's stack-slot id.
type Frame struct {
	GP    []uint64
	FP    []uint64
	Stack []uint64
	Args  []uint64
	Ret   uint64
}

func newFrame(e *FuncEntry, args []uint64) *Frame {
	f := &Frame{
		GP:    make([]uint64, e.GPWindow),
		FP:    make([]uint64, e.FPWindow),
		Stack: make([]uint64, e.StackWords),
		Args:  make([]uint64, e.ArgWords),
	}
	copy(f.Args, args)
	return f
}

func readOperand(prog *Program, f *Frame, op Operand) uint64 {
	switch op.Kind {
	case OperandGP:
		return f.GP[op.Index]
	case OperandFP:
		return f.FP[op.Index]
	case OperandStack:
		return f.Stack[op.Index]
	case OperandArg:
		return f.Args[op.Index]
	case OperandConst:
		return prog.Constants[op.Index]
	case OperandModuleData:
		return prog.ModuleData[op.Index]
	case OperandFunc:
		return uint64(op.Index)
	default:
		return 0
	}
}

func writeOperand(prog *Program, f *Frame, op Operand, val uint64) {
	switch op.Kind {
	case OperandGP:
		f.GP[op.Index] = val
	case OperandFP:
		f.FP[op.Index] = val
	case OperandStack:
		f.Stack[op.Index] = val
	case OperandArg:
		f.Args[op.Index] = val
	case OperandModuleData:
		prog.ModuleData[op.Index] = val
	// OperandNone/OperandConst/OperandFunc: nothing to write to.
	default:
	}
}

func asInt(word uint64, size uint32) int64 {
	switch size {
	case 1:
		return int64(int8(word))
	case 2:
		return int64(int16(word))
	case 4:
		return int64(int32(word))
	default:
		return int64(word)
	}
}

func asUint(word uint64, size uint32) uint64 {
	switch size {
	case 1:
		return uint64(uint8(word))
	case 2:
		return uint64(uint16(word))
	case 4:
		return uint64(uint32(word))
	default:
		return word
	}
}

func asF32(word uint64) float32 { return math.Float32frombits(uint32(word)) }
func asF64(word uint64) float64 { return math.Float64frombits(word) }
func fromF32(v float32) uint64  { return uint64(math.Float32bits(v)) }
func fromF64(v float64) uint64  { return math.Float64bits(v) }
func boolWord(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

var intBinOps = map[Opcode]func(a, b int64) int64{
	OpIAdd: func(a, b int64) int64 { return a + b },
	OpISub: func(a, b int64) int64 { return a - b },
	OpIMul: func(a, b int64) int64 { return a * b },
	OpIDiv: func(a, b int64) int64 { return a / b },
	OpIMod: func(a, b int64) int64 { return a % b },
}
var uintBinOps = map[Opcode]func(a, b uint64) uint64{
	OpUAdd: func(a, b uint64) uint64 { return a + b },
	OpUSub: func(a, b uint64) uint64 { return a - b },
	OpUMul: func(a, b uint64) uint64 { return a * b },
	OpUDiv: func(a, b uint64) uint64 { return a / b },
	OpUMod: func(a, b uint64) uint64 { return a % b },
	OpShl:  func(a, b uint64) uint64 { return a << (b & 63) },
	OpShr:  func(a, b uint64) uint64 { return a >> (b & 63) },
	OpBAnd: func(a, b uint64) uint64 { return a & b },
	OpBOr:  func(a, b uint64) uint64 { return a | b },
	OpXor:  func(a, b uint64) uint64 { return a ^ b },
}
var f32BinOps = map[Opcode]func(a, b float32) float32{
	OpF32Add: func(a, b float32) float32 { return a + b },
	OpF32Sub: func(a, b float32) float32 { return a - b },
	OpF32Mul: func(a, b float32) float32 { return a * b },
	OpF32Div: func(a, b float32) float32 { return a / b },
	OpF32Mod: func(a, b float32) float32 { return float32(math.Mod(float64(a), float64(b))) },
}
var f64BinOps = map[Opcode]func(a, b float64) float64{
	OpF64Add: func(a, b float64) float64 { return a + b },
	OpF64Sub: func(a, b float64) float64 { return a - b },
	OpF64Mul: func(a, b float64) float64 { return a * b },
	OpF64Div: func(a, b float64) float64 { return a / b },
	OpF64Mod: math.Mod,
}

var intCmpOps = map[Opcode]func(a, b int64) bool{
	OpILt: func(a, b int64) bool { return a < b }, OpILte: func(a, b int64) bool { return a <= b },
	OpIGt: func(a, b int64) bool { return a > b }, OpIGte: func(a, b int64) bool { return a >= b },
	OpIEq: func(a, b int64) bool { return a == b }, OpINeq: func(a, b int64) bool { return a != b },
}
var uintCmpOps = map[Opcode]func(a, b uint64) bool{
	OpULt: func(a, b uint64) bool { return a < b }, OpULte: func(a, b uint64) bool { return a <= b },
	OpUGt: func(a, b uint64) bool { return a > b }, OpUGte: func(a, b uint64) bool { return a >= b },
	OpUEq: func(a, b uint64) bool { return a == b }, OpUNeq: func(a, b uint64) bool { return a != b },
}
var f32CmpOps = map[Opcode]func(a, b float32) bool{
	OpF32Lt: func(a, b float32) bool { return a < b }, OpF32Lte: func(a, b float32) bool { return a <= b },
	OpF32Gt: func(a, b float32) bool { return a > b }, OpF32Gte: func(a, b float32) bool { return a >= b },
	OpF32Eq: func(a, b float32) bool { return a == b }, OpF32Neq: func(a, b float32) bool { return a != b },
}
var f64CmpOps = map[Opcode]func(a, b float64) bool{
	OpF64Lt: func(a, b float64) bool { return a < b }, OpF64Lte: func(a, b float64) bool { return a <= b },
	OpF64Gt: func(a, b float64) bool { return a > b }, OpF64Gte: func(a, b float64) bool { return a >= b },
	OpF64Eq: func(a, b float64) bool { return a == b }, OpF64Neq: func(a, b float64) bool { return a != b },
}

var intUnaryOps = map[Opcode]func(a int64) int64{
	OpIInc: func(a int64) int64 { return a + 1 }, OpIDec: func(a int64) int64 { return a - 1 },
	OpINeg: func(a int64) int64 { return -a },
}
var uintUnaryOps = map[Opcode]func(a uint64) uint64{
	OpUInc: func(a uint64) uint64 { return a + 1 }, OpUDec: func(a uint64) uint64 { return a - 1 },
	OpUNeg: func(a uint64) uint64 { return -a },
}
var f32UnaryOps = map[Opcode]func(a float32) float32{
	OpF32Inc: func(a float32) float32 { return a + 1 }, OpF32Dec: func(a float32) float32 { return a - 1 },
	OpF32Neg: func(a float32) float32 { return -a },
}
var f64UnaryOps = map[Opcode]func(a float64) float64{
	OpF64Inc: func(a float64) float64 { return a + 1 }, OpF64Dec: func(a float64) float64 { return a - 1 },
	OpF64Neg: func(a float64) float64 { return -a },
}

// thrownValue unwinds an executing Call when OpThrow fires; it reaches the
// host as an ordinary error naming the throw's source location rather than
// escaping as a bare panic.
type thrownValue struct {
	word uint64
	loc  string
}

func (t *thrownValue) Error() string { return fmt.Sprintf("uncaught script exception at %s", t.loc) }

// Call implements backend.Artifact: it runs fn's bytecode to completion
// and writes its return value through returnPtr, if any.
func (p *Program) Call(fn *types.Function, returnPtr uintptr, argPtrs []uintptr) error {
	entry, ok := p.Functions[fn.Name]
	if !ok {
		return fmt.Errorf("vmback: no compiled entry for function %q", fn.Name)
	}
	args := make([]uint64, len(argPtrs))
	for i, ptr := range argPtrs {
		args[i] = *(*uint64)(toPtr(ptr))
	}
	ret, err := p.run(entry, args)
	if err != nil {
		return err
	}
	if returnPtr != 0 {
		*(*uint64)(toPtr(returnPtr)) = ret
	}
	return nil
}

// run executes one call to entry with the given raw argument words,
// handling nested OpCall instructions by recursing (the host Go stack
// stands in for the VM's own call stack, matching the teacher's
// RegisterVM.Execute/run split between call setup and the dispatch loop).
func (p *Program) run(entry *FuncEntry, args []uint64) (uint64, error) {
	frame := newFrame(entry, args)
	var pendingArgs []uint64
	pc := entry.Entry
	end := len(p.Instructions)
	for {
		if pc >= end {
			return frame.Ret, nil
		}
		ins := p.Instructions[pc]
		switch ins.Op {
		case OpHalt:
			return frame.Ret, nil

		case OpMove:
			writeOperand(p, frame, ins.A, readOperand(p, frame, ins.B))

		case OpLoadModuleData:
			size := asUint(readOperand(p, frame, ins.B), ins.B.Size)
			idx := len(p.ModuleData)
			p.ModuleData = append(p.ModuleData, make([]uint64, wordsFor(size))...)
			writeOperand(p, frame, ins.A, uint64(idx))

		case OpNot:
			v := readOperand(p, frame, ins.B)
			writeOperand(p, frame, ins.A, boolWord(v == 0))

		case OpInv:
			writeOperand(p, frame, ins.A, ^readOperand(p, frame, ins.B))

		case OpLAnd:
			a := readOperand(p, frame, ins.B) != 0
			b := readOperand(p, frame, ins.C) != 0
			writeOperand(p, frame, ins.A, boolWord(a && b))

		case OpLOr:
			a := readOperand(p, frame, ins.B) != 0
			b := readOperand(p, frame, ins.C) != 0
			writeOperand(p, frame, ins.A, boolWord(a || b))

		case OpCvt:
			writeOperand(p, frame, ins.A, convert(readOperand(p, frame, ins.B), ins.B, ins.A))

		case OpParam:
			pendingArgs = append(pendingArgs, readOperand(p, frame, ins.A))

		case OpCall:
			name := p.FuncNames[ins.B.Index]
			target, ok := p.Functions[name]
			if !ok {
				return 0, fmt.Errorf("vmback: call to unresolved function %q", name)
			}
			callArgs := pendingArgs
			pendingArgs = nil
			ret, err := p.run(target, callArgs)
			if err != nil {
				return 0, err
			}
			if ins.A.Kind != OperandNone {
				writeOperand(p, frame, ins.A, ret)
			}

		case OpRet:
			if ins.A.Kind != OperandNone {
				frame.Ret = readOperand(p, frame, ins.A)
			}
			return frame.Ret, nil

		case OpThrow:
			loc, _ := p.SourceLocation(pc)
			return 0, &thrownValue{word: readOperand(p, frame, ins.A), loc: fmt.Sprintf("%s:%d:%d", loc.File, loc.Line, loc.Column)}

		case OpJump:
			pc = ins.Target
			continue

		case OpJumpIfFalse:
			if readOperand(p, frame, ins.A) == 0 {
				pc = ins.Target
				continue
			}

		default:
			execArith(p, frame, ins)
		}
		pc++
	}
}

// execArith dispatches the pure-compute opcode families (arithmetic,
// comparison, increment/decrement/negate, shifts, bitwise) via the
// per-family tables above, picking the table by opcode since every IR
// opcode in these families already encodes its own type (OpIAdd vs
// OpF64Add, etc.) in its name; the operands' sizes only set the width
// each word is read at.
func execArith(p *Program, f *Frame, ins Instruction) {
	bWord := readOperand(p, f, ins.B)
	isUnary := ins.C.Kind == OperandNone && ins.Op != OpShl && ins.Op != OpShr &&
		ins.Op != OpBAnd && ins.Op != OpBOr && ins.Op != OpXor
	if isUnary {
		if op, ok := intUnaryOps[ins.Op]; ok {
			writeOperand(p, f, ins.A, uint64(op(asInt(bWord, ins.B.Size))))
			return
		}
		if op, ok := uintUnaryOps[ins.Op]; ok {
			writeOperand(p, f, ins.A, op(asUint(bWord, ins.B.Size)))
			return
		}
		if op, ok := f32UnaryOps[ins.Op]; ok {
			writeOperand(p, f, ins.A, fromF32(op(asF32(bWord))))
			return
		}
		if op, ok := f64UnaryOps[ins.Op]; ok {
			writeOperand(p, f, ins.A, fromF64(op(asF64(bWord))))
			return
		}
		return
	}

	cWord := readOperand(p, f, ins.C)
	if op, ok := intBinOps[ins.Op]; ok {
		writeOperand(p, f, ins.A, uint64(op(asInt(bWord, ins.B.Size), asInt(cWord, ins.C.Size))))
		return
	}
	if op, ok := uintBinOps[ins.Op]; ok {
		writeOperand(p, f, ins.A, op(asUint(bWord, ins.B.Size), asUint(cWord, ins.C.Size)))
		return
	}
	if op, ok := f32BinOps[ins.Op]; ok {
		writeOperand(p, f, ins.A, fromF32(op(asF32(bWord), asF32(cWord))))
		return
	}
	if op, ok := f64BinOps[ins.Op]; ok {
		writeOperand(p, f, ins.A, fromF64(op(asF64(bWord), asF64(cWord))))
		return
	}
	if op, ok := intCmpOps[ins.Op]; ok {
		writeOperand(p, f, ins.A, boolWord(op(asInt(bWord, ins.B.Size), asInt(cWord, ins.C.Size))))
		return
	}
	if op, ok := uintCmpOps[ins.Op]; ok {
		writeOperand(p, f, ins.A, boolWord(op(asUint(bWord, ins.B.Size), asUint(cWord, ins.C.Size))))
		return
	}
	if op, ok := f32CmpOps[ins.Op]; ok {
		writeOperand(p, f, ins.A, boolWord(op(asF32(bWord), asF32(cWord))))
		return
	}
	if op, ok := f64CmpOps[ins.Op]; ok {
		writeOperand(p, f, ins.A, boolWord(op(asF64(bWord), asF64(cWord))))
		return
	}
}

// convert implements OpCvt: reinterpret src's raw word under its declared
// type as dst's declared type's raw word.
func convert(word uint64, src, dst Operand) uint64 {
	switch {
	case src.Float && dst.Float:
		if src.Size == 4 && dst.Size == 8 {
			return fromF64(float64(asF32(word)))
		}
		if src.Size == 8 && dst.Size == 4 {
			return fromF32(float32(asF64(word)))
		}
		return word
	case src.Float && !dst.Float:
		if src.Size == 4 {
			return uint64(int64(asF32(word)))
		}
		return uint64(int64(asF64(word)))
	case !src.Float && dst.Float:
		if dst.Size == 4 {
			return fromF32(float32(asInt(word, src.Size)))
		}
		return fromF64(float64(asInt(word, src.Size)))
	default:
		return asUint(word, dst.Size)
	}
}

func wordsFor(byteSize uint64) int {
	return int((byteSize + 7) / 8)
}
