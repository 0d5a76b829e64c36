package regalloc

import (
	"testing"

	"tsnc/internal/ir"
	"tsnc/internal/types"
)

func regv(id ir.RegID, t *types.DataType) ir.Value { return ir.Reg(id, t) }

func TestAllocateAssignsSingleRangeTheOnlyRegister(t *testing.T) {
	fn := ir.NewFunctionDef("f")
	i32 := &types.DataType{Meta: types.Meta{Primitive: true}, Size: 4}
	a := fn.AllocReg()
	b := fn.AllocReg()
	c := fn.AllocReg()
	// a = 1; ret a: the one live range must get the single physical
	// register this test grants, id 0. b and c are allocated but never used.
	fn.Emit(ir.Instruction{Op: ir.OpAssign, Operands: [3]ir.Value{regv(a, i32), ir.ImmInt(1, i32)}})
	fn.Emit(ir.Instruction{Op: ir.OpRet, Operands: [3]ir.Value{regv(a, i32)}})
	_ = b
	_ = c

	live := ir.Compute(fn, func(ir.RegID) bool { return false })
	alloc := New(1, 1)
	alloc.Allocate(fn, live)

	for _, ins := range fn.Instructions {
		for _, op := range ins.Operands {
			if op.Kind == ir.ValRegister && op.Reg != 0 {
				t.Fatalf("expected the single gp register to have been assigned as physical id 0, got: %#v", op)
			}
		}
	}
}

func TestAllocateSpillsWhenPoolExhausted(t *testing.T) {
	fn := ir.NewFunctionDef("f")
	i32 := &types.DataType{Meta: types.Meta{Primitive: true}, Size: 4}
	a := fn.AllocReg()
	b := fn.AllocReg()
	// Both a and b are live simultaneously across the same span, but only
	// one physical register is available: one of them must spill to a
	// stack slot.
	fn.Emit(ir.Instruction{Op: ir.OpAssign, Operands: [3]ir.Value{regv(a, i32), ir.ImmInt(1, i32)}})
	fn.Emit(ir.Instruction{Op: ir.OpAssign, Operands: [3]ir.Value{regv(b, i32), ir.ImmInt(2, i32)}})
	fn.Emit(ir.Instruction{Op: ir.OpIAdd, Operands: [3]ir.Value{regv(fn.AllocReg(), i32), regv(a, i32), regv(b, i32)}})

	live := ir.Compute(fn, func(ir.RegID) bool { return false })
	alloc := New(1, 1)
	frame := alloc.Allocate(fn, live)

	if frame == 0 {
		t.Fatalf("expected a non-zero stack frame from the spill, got 0")
	}

	sawSpillOperand := false
	for _, ins := range fn.Instructions {
		if ins.Op == ir.OpIAdd {
			for _, op := range ins.Operands[1:] {
				if op.Kind == ir.ValStackSlot {
					sawSpillOperand = true
				}
			}
		}
	}
	if !sawSpillOperand {
		t.Fatalf("expected the add's operands to reference the spilled register's stack slot, got: %#v", fn.Instructions)
	}
}

func TestAllocateReturnsZeroFrameWhenNothingSpills(t *testing.T) {
	fn := ir.NewFunctionDef("f")
	i32 := &types.DataType{Meta: types.Meta{Primitive: true}, Size: 4}
	a := fn.AllocReg()
	fn.Emit(ir.Instruction{Op: ir.OpAssign, Operands: [3]ir.Value{regv(a, i32), ir.ImmInt(1, i32)}})
	fn.Emit(ir.Instruction{Op: ir.OpRet, Operands: [3]ir.Value{regv(a, i32)}})

	live := ir.Compute(fn, func(ir.RegID) bool { return false })
	alloc := New(4, 4)
	frame := alloc.Allocate(fn, live)
	if frame != 0 {
		t.Fatalf("expected no spill with registers to spare, got frame size %d", frame)
	}
}

func TestAllocateSeparatesGPAndFPPools(t *testing.T) {
	fn := ir.NewFunctionDef("f")
	i32 := &types.DataType{Meta: types.Meta{Primitive: true}, Size: 4}
	f64 := &types.DataType{Meta: types.Meta{Primitive: true, FloatingPoint: true}, Size: 8}
	gpReg := fn.AllocReg()
	fpReg := fn.AllocReg()
	fn.Emit(ir.Instruction{Op: ir.OpAssign, Operands: [3]ir.Value{regv(gpReg, i32), ir.ImmInt(1, i32)}})
	fn.Emit(ir.Instruction{Op: ir.OpAssign, Operands: [3]ir.Value{regv(fpReg, f64), ir.ImmInt(0, f64)}})
	fn.Emit(ir.Instruction{Op: ir.OpRet, Operands: [3]ir.Value{regv(gpReg, i32)}})

	live := ir.Compute(fn, func(r ir.RegID) bool { return r == fpReg })
	alloc := New(1, 1)
	frame := alloc.Allocate(fn, live)
	if frame != 0 {
		t.Fatalf("expected independent GP/FP pools to avoid any spill, got frame size %d", frame)
	}
}
