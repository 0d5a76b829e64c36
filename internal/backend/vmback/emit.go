package vmback

import (
	"tsnc/internal/backend"
	"tsnc/internal/compiler"
	"tsnc/internal/ir"
)

// opMap translates the IR's "pure compute" opcodes to their VM
// equivalent — a straight 1:1 lowering, since both share the same
// dest/operand shape once IR operands are resolved to VM Operands.
var opMap = map[ir.Opcode]Opcode{
	ir.OpIAdd: OpIAdd, ir.OpUAdd: OpUAdd, ir.OpF32Add: OpF32Add, ir.OpF64Add: OpF64Add,
	ir.OpISub: OpISub, ir.OpUSub: OpUSub, ir.OpF32Sub: OpF32Sub, ir.OpF64Sub: OpF64Sub,
	ir.OpIMul: OpIMul, ir.OpUMul: OpUMul, ir.OpF32Mul: OpF32Mul, ir.OpF64Mul: OpF64Mul,
	ir.OpIDiv: OpIDiv, ir.OpUDiv: OpUDiv, ir.OpF32Div: OpF32Div, ir.OpF64Div: OpF64Div,
	ir.OpIMod: OpIMod, ir.OpUMod: OpUMod, ir.OpF32Mod: OpF32Mod, ir.OpF64Mod: OpF64Mod,
	ir.OpILt: OpILt, ir.OpULt: OpULt, ir.OpF32Lt: OpF32Lt, ir.OpF64Lt: OpF64Lt,
	ir.OpILte: OpILte, ir.OpULte: OpULte, ir.OpF32Lte: OpF32Lte, ir.OpF64Lte: OpF64Lte,
	ir.OpIGt: OpIGt, ir.OpUGt: OpUGt, ir.OpF32Gt: OpF32Gt, ir.OpF64Gt: OpF64Gt,
	ir.OpIGte: OpIGte, ir.OpUGte: OpUGte, ir.OpF32Gte: OpF32Gte, ir.OpF64Gte: OpF64Gte,
	ir.OpIEq: OpIEq, ir.OpUEq: OpUEq, ir.OpF32Eq: OpF32Eq, ir.OpF64Eq: OpF64Eq,
	ir.OpINeq: OpINeq, ir.OpUNeq: OpUNeq, ir.OpF32Neq: OpF32Neq, ir.OpF64Neq: OpF64Neq,
	ir.OpIInc: OpIInc, ir.OpUInc: OpUInc, ir.OpF32Inc: OpF32Inc, ir.OpF64Inc: OpF64Inc,
	ir.OpIDec: OpIDec, ir.OpUDec: OpUDec, ir.OpF32Dec: OpF32Dec, ir.OpF64Dec: OpF64Dec,
	ir.OpINeg: OpINeg, ir.OpUNeg: OpUNeg, ir.OpF32Neg: OpF32Neg, ir.OpF64Neg: OpF64Neg,
	ir.OpShl: OpShl, ir.OpShr: OpShr, ir.OpLAnd: OpLAnd, ir.OpLOr: OpLOr,
	ir.OpBAnd: OpBAnd, ir.OpBOr: OpBOr, ir.OpXor: OpXor,
}

// Backend is the bytecode-VM implementation of backend.Backend. GP and FP
// are the register-window sizes handed to internal/regalloc; they bound
// how many live ranges of each class can avoid a spill.
type Backend struct {
	GP int
	FP int
}

// New returns a Backend sized for the given register-file widths.
func New(gpCount, fpCount int) *Backend {
	return &Backend{GP: gpCount, FP: fpCount}
}

func (b *Backend) GPCount() int                       { return b.GP }
func (b *Backend) FPCount() int                       { return b.FP }
func (b *Backend) PerformsOwnRegisterAllocation() bool { return false }

// Generate lowers every function of mod (already optimized and register
// allocated) into one shared Program.
func (b *Backend) Generate(mod *compiler.Module) (backend.Artifact, error) {
	prog := newProgram()
	fns := append([]*ir.FunctionDef{}, mod.Functions...)
	if mod.Init != nil {
		fns = append(fns, mod.Init)
		prog.Init = mod.Init.Name
	}
	// Entries are registered before any function body is emitted so that
	// forward/recursive calls resolve to the right name regardless of
	// emission order.
	for _, fn := range fns {
		prog.Functions[fn.Name] = &FuncEntry{Name: fn.Name}
		prog.internFunc(fn.Name)
	}
	for _, fn := range fns {
		prog.Functions[fn.Name] = emitFunction(prog, fn)
	}
	return prog, nil
}

// fixup records one not-yet-resolvable jump target: the VM instruction
// index whose Target field to fill in, and the IR label it targets.
type fixup struct {
	vmIdx int
	label ir.LabelID
}

func emitFunction(prog *Program, fn *ir.FunctionDef) *FuncEntry {
	entry := &FuncEntry{
		Name:       fn.Name,
		Entry:      len(prog.Instructions),
		StackWords: len(fn.Stack),
	}
	gpMax, fpMax, argMax := -1, -1, -1
	for _, ins := range fn.Instructions {
		for i := 0; i < ins.Op.Descriptor().OperandCnt; i++ {
			v := ins.Operands[i]
			switch v.Kind {
			case ir.ValRegister:
				if v.Type != nil && v.Type.Meta.FloatingPoint {
					if int(v.Reg) > fpMax {
						fpMax = int(v.Reg)
					}
				} else if int(v.Reg) > gpMax {
					gpMax = int(v.Reg)
				}
			case ir.ValArgSlot:
				if v.ArgIndex > argMax {
					argMax = v.ArgIndex
				}
			}
		}
	}
	entry.GPWindow = gpMax + 1
	entry.FPWindow = fpMax + 1
	entry.ArgWords = argMax + 1

	// vmIndexOfIR[i] is the VM instruction index the i'th IR instruction's
	// lowering starts at; the extra trailing slot lets a label placed at
	// the very end of the function resolve to "one past the last
	// instruction".
	vmIndexOfIR := make([]int, len(fn.Instructions)+1)
	var fixups []fixup

	emit := func(ins Instruction) int {
		idx := len(prog.Instructions)
		prog.Instructions = append(prog.Instructions, ins)
		return idx
	}
	resolve := func(v ir.Value) Operand { return resolveOperand(prog, v) }

	for irIdx, ins := range fn.Instructions {
		vmIndexOfIR[irIdx] = len(prog.Instructions)
		loc := ins.Loc
		switch ins.Op {
		case ir.OpNoop, ir.OpLabel, ir.OpStackAllocate, ir.OpStackFree:
			// No VM instruction: stack words are preallocated per-call
			// from FuncEntry.StackWords, and labels are a pure
			// IR-index concept resolved away by vmIndexOfIR.

		case ir.OpReserve:
			// A register/stack slot is always addressable; nothing to
			// execute until the matching Resolve assigns it.

		case ir.OpModuleData:
			emit(Instruction{Op: OpLoadModuleData, A: resolve(ins.Operands[0]), B: resolve(ins.Operands[1]), Loc: loc})

		case ir.OpResolve, ir.OpLoad, ir.OpStore, ir.OpAssign:
			emit(Instruction{Op: OpMove, A: resolve(ins.Operands[0]), B: resolve(ins.Operands[1]), Loc: loc})

		case ir.OpCvt:
			emit(Instruction{Op: OpCvt, A: resolve(ins.Operands[0]), B: resolve(ins.Operands[1]), Loc: loc})

		case ir.OpNot:
			emit(Instruction{Op: OpNot, A: resolve(ins.Operands[0]), B: resolve(ins.Operands[1]), Loc: loc})

		case ir.OpInv:
			emit(Instruction{Op: OpInv, A: resolve(ins.Operands[0]), B: resolve(ins.Operands[1]), Loc: loc})

		case ir.OpParam:
			emit(Instruction{Op: OpParam, A: resolve(ins.Operands[0]), Loc: loc})

		case ir.OpCall:
			fnOperand := ins.Operands[1]
			var funcIdx int32
			if fnOperand.Kind == ir.ValFunctionRef && fnOperand.Func != nil {
				funcIdx = prog.internFunc(fnOperand.Func.Name)
			}
			emit(Instruction{
				Op:  OpCall,
				A:   resolve(ins.Operands[0]),
				B:   Operand{Kind: OperandFunc, Index: funcIdx},
				C:   resolve(ins.Operands[2]),
				Loc: loc,
			})

		case ir.OpRet:
			emit(Instruction{Op: OpRet, A: resolve(ins.Operands[0]), Loc: loc})

		case ir.OpThrow:
			emit(Instruction{Op: OpThrow, A: resolve(ins.Operands[0]), Loc: loc})

		case ir.OpJump:
			idx := emit(Instruction{Op: OpJump, Loc: loc})
			fixups = append(fixups, fixup{vmIdx: idx, label: ins.Operands[0].AsLabel()})

		case ir.OpBranch:
			// Two VM instructions: jump to the false target when the
			// condition is zero, otherwise fall through to an
			// unconditional jump to the true target.
			cond := resolve(ins.Operands[0])
			jf := emit(Instruction{Op: OpJumpIfFalse, A: cond, Loc: loc})
			jt := emit(Instruction{Op: OpJump, Loc: loc})
			fixups = append(fixups, fixup{vmIdx: jf, label: ins.Operands[2].AsLabel()})
			fixups = append(fixups, fixup{vmIdx: jt, label: ins.Operands[1].AsLabel()})

		default:
			if vop, ok := opMap[ins.Op]; ok {
				inst := Instruction{Op: vop, Loc: loc}
				d := ins.Op.Descriptor()
				if d.OperandCnt > 0 {
					inst.A = resolve(ins.Operands[0])
				}
				if d.OperandCnt > 1 {
					inst.B = resolve(ins.Operands[1])
				}
				if d.OperandCnt > 2 {
					inst.C = resolve(ins.Operands[2])
				}
				emit(inst)
			}
		}
	}
	vmIndexOfIR[len(fn.Instructions)] = len(prog.Instructions)

	for _, fx := range fixups {
		prog.Instructions[fx.vmIdx].Target = vmIndexOfIR[fn.Labels[fx.label]]
	}

	return entry
}

func resolveOperand(prog *Program, v ir.Value) Operand {
	// A zero Value (emitted as the literal `{}` for an unused call result
	// or a void return) carries no Type; every operand that ever names a
	// real register, slot or immediate does, including one whose
	// allocated physical register id happens to be 0 — so Type, not
	// Reg/SlotID, is what distinguishes "no operand" from "operand 0".
	if v.Type == nil && v.Kind == ir.ValRegister && v.Func == nil {
		return Operand{Kind: OperandNone}
	}
	isFloat := v.Type != nil && v.Type.Meta.FloatingPoint
	var size uint32
	if v.Type != nil {
		size = v.Type.Size
	}
	switch v.Kind {
	case ir.ValRegister:
		if isFloat {
			return Operand{Kind: OperandFP, Index: int32(v.Reg), Float: true, Size: size}
		}
		return Operand{Kind: OperandGP, Index: int32(v.Reg), Size: size}
	case ir.ValStackSlot:
		return Operand{Kind: OperandStack, Index: int32(v.SlotID), Float: isFloat, Size: size}
	case ir.ValArgSlot:
		return Operand{Kind: OperandArg, Index: int32(v.ArgIndex), Float: isFloat, Size: size}
	case ir.ValImmediate:
		idx := int32(len(prog.Constants))
		prog.Constants = append(prog.Constants, v.ImmBits)
		return Operand{Kind: OperandConst, Index: idx, Float: isFloat, Size: size}
	case ir.ValModuleDataRef:
		return Operand{Kind: OperandModuleData, Index: int32(v.SlotRef), Float: isFloat, Size: size}
	case ir.ValFunctionRef:
		if v.Func == nil {
			return Operand{Kind: OperandNone}
		}
		return Operand{Kind: OperandFunc, Index: prog.internFunc(v.Func.Name)}
	default:
		return Operand{Kind: OperandNone}
	}
}
