// Package ir implements the three-address intermediate representation of
// spec §3/§4.7: Value operands, opcode-tagged Instructions, CFG
// construction, and liveness analysis. Grounded on
// original_source/include/tsn/compiler/IR.h's instruction/operand shape and
// src/optimize/ControlFlowGraph.cpp / liveness.cpp for the analyses.
package ir

import "tsnc/internal/types"

// ValueKind tags which arm of Value's tagged-variant is populated (spec §3
// "IR value").
type ValueKind int

const (
	ValRegister ValueKind = iota
	ValImmediate
	ValStackSlot
	ValArgSlot
	ValModuleDataRef
	ValTypeRef
	ValFunctionRef
	ValModuleRef
)

func (k ValueKind) String() string {
	switch k {
	case ValRegister:
		return "reg"
	case ValImmediate:
		return "imm"
	case ValStackSlot:
		return "slot"
	case ValArgSlot:
		return "arg"
	case ValModuleDataRef:
		return "moddata"
	case ValTypeRef:
		return "type"
	case ValFunctionRef:
		return "func"
	case ValModuleRef:
		return "module"
	default:
		return "?"
	}
}

// ValueFlags mirrors the is_pointer/is_read_only flag bundle.
type ValueFlags uint8

const (
	FlagPointer ValueFlags = 1 << iota
	FlagReadOnly
)

// RegID names an SSA-like register within one function's IR. Ids are
// assigned monotonically at emission time and never reused within a
// function, except through reserve/resolve phi-like joins.
type RegID uint32

// Value is the tagged-variant IR operand of spec §3.
type Value struct {
	Kind  ValueKind
	Type  *types.DataType
	Flags ValueFlags

	Reg RegID // ValRegister

	ImmBits uint64 // ValImmediate, raw bit pattern reinterpreted per Type

	SlotID int // ValStackSlot

	ArgIndex int // ValArgSlot

	ModuleID uint32 // ValModuleDataRef / ValModuleRef
	SlotRef  uint32 // ValModuleDataRef

	Func *types.Function // ValFunctionRef
}

func Reg(id RegID, t *types.DataType) Value { return Value{Kind: ValRegister, Reg: id, Type: t} }

func ImmInt(bits uint64, t *types.DataType) Value {
	return Value{Kind: ValImmediate, ImmBits: bits, Type: t}
}

func Slot(id int, t *types.DataType) Value { return Value{Kind: ValStackSlot, SlotID: id, Type: t} }

func Arg(index int, t *types.DataType) Value { return Value{Kind: ValArgSlot, ArgIndex: index, Type: t} }

func (v Value) IsRegister() bool { return v.Kind == ValRegister }
