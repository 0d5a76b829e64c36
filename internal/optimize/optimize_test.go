package optimize

import (
	"testing"

	"tsnc/internal/ir"
)

func reg(id ir.RegID) ir.Value { return ir.Value{Kind: ir.ValRegister, Reg: id} }
func imm(bits uint64) ir.Value { return ir.Value{Kind: ir.ValImmediate, ImmBits: bits} }

func TestCopyPropagationReplacesAssignedAlias(t *testing.T) {
	fn := ir.NewFunctionDef("f")
	r0 := fn.AllocReg()
	r1 := fn.AllocReg()
	r2 := fn.AllocReg()
	fn.Emit(ir.Instruction{Op: ir.OpAssign, Operands: [3]ir.Value{reg(r1), reg(r0)}})
	fn.Emit(ir.Instruction{Op: ir.OpIAdd, Operands: [3]ir.Value{reg(r2), reg(r1), imm(1)}})

	cfg := ir.BuildCFG(fn)
	changed := false
	for _, blk := range cfg.Blocks {
		if (CopyPropagation{}).RunBlock(fn, blk) {
			changed = true
		}
	}
	if !changed {
		t.Fatalf("expected copy propagation to change something")
	}
	if fn.Instructions[1].Operands[1].Reg != r0 {
		t.Fatalf("expected add's first operand rewritten to r0, got: %#v", fn.Instructions[1])
	}
}

func TestCopyPropagationIAddZeroAlias(t *testing.T) {
	fn := ir.NewFunctionDef("f")
	r0 := fn.AllocReg()
	r1 := fn.AllocReg()
	r2 := fn.AllocReg()
	fn.Emit(ir.Instruction{Op: ir.OpIAdd, Operands: [3]ir.Value{reg(r1), reg(r0), imm(0)}})
	fn.Emit(ir.Instruction{Op: ir.OpISub, Operands: [3]ir.Value{reg(r2), reg(r1), imm(1)}})

	cfg := ir.BuildCFG(fn)
	for _, blk := range cfg.Blocks {
		(CopyPropagation{}).RunBlock(fn, blk)
	}
	if fn.Instructions[1].Operands[1].Reg != r0 {
		t.Fatalf("expected iadd-with-zero to alias r1 to r0, got: %#v", fn.Instructions[1])
	}
}

func TestCopyPropagationErasesMappingOnRedefinition(t *testing.T) {
	fn := ir.NewFunctionDef("f")
	r0 := fn.AllocReg()
	r1 := fn.AllocReg()
	r2 := fn.AllocReg()
	fn.Emit(ir.Instruction{Op: ir.OpAssign, Operands: [3]ir.Value{reg(r1), reg(r0)}})
	fn.Emit(ir.Instruction{Op: ir.OpAssign, Operands: [3]ir.Value{reg(r1), imm(9)}})
	fn.Emit(ir.Instruction{Op: ir.OpIAdd, Operands: [3]ir.Value{reg(r2), reg(r1), imm(1)}})

	cfg := ir.BuildCFG(fn)
	for _, blk := range cfg.Blocks {
		(CopyPropagation{}).RunBlock(fn, blk)
	}
	got := fn.Instructions[2].Operands[1]
	if got.Kind != ir.ValImmediate || got.ImmBits != 9 {
		t.Fatalf("expected add to read the redefinition's value 9, not the stale alias r0, got: %#v", fn.Instructions[2])
	}
}

func TestCSEReusesEarlierComputation(t *testing.T) {
	fn := ir.NewFunctionDef("f")
	a := fn.AllocReg()
	b := fn.AllocReg()
	r1 := fn.AllocReg()
	r2 := fn.AllocReg()
	fn.Emit(ir.Instruction{Op: ir.OpIAdd, Operands: [3]ir.Value{reg(r1), reg(a), reg(b)}})
	fn.Emit(ir.Instruction{Op: ir.OpIAdd, Operands: [3]ir.Value{reg(r2), reg(a), reg(b)}})

	cfg := ir.BuildCFG(fn)
	changed := false
	for _, blk := range cfg.Blocks {
		if (CommonSubexpressionElimination{}).RunBlock(fn, blk) {
			changed = true
		}
	}
	if !changed {
		t.Fatalf("expected CSE to rewrite the redundant add")
	}
	got := fn.Instructions[1]
	if got.Op != ir.OpAssign || got.Operands[1].Reg != r1 {
		t.Fatalf("expected second add rewritten to assign r2, r1, got: %#v", got)
	}
}

func TestCSESkipsWhenOperandReassignedBetweenSites(t *testing.T) {
	fn := ir.NewFunctionDef("f")
	a := fn.AllocReg()
	b := fn.AllocReg()
	r1 := fn.AllocReg()
	r2 := fn.AllocReg()
	fn.Emit(ir.Instruction{Op: ir.OpIAdd, Operands: [3]ir.Value{reg(r1), reg(a), reg(b)}})
	fn.Emit(ir.Instruction{Op: ir.OpAssign, Operands: [3]ir.Value{reg(a), imm(42)}})
	fn.Emit(ir.Instruction{Op: ir.OpIAdd, Operands: [3]ir.Value{reg(r2), reg(a), reg(b)}})

	cfg := ir.BuildCFG(fn)
	for _, blk := range cfg.Blocks {
		(CommonSubexpressionElimination{}).RunBlock(fn, blk)
	}
	if fn.Instructions[2].Op != ir.OpIAdd {
		t.Fatalf("expected the second add to survive since `a` was reassigned, got: %#v", fn.Instructions[2])
	}
}

func TestDeadStoreEliminationRemovesUnusedRegister(t *testing.T) {
	fn := ir.NewFunctionDef("f")
	r0 := fn.AllocReg()
	r1 := fn.AllocReg()
	fn.Emit(ir.Instruction{Op: ir.OpAssign, Operands: [3]ir.Value{reg(r1), reg(r0)}})
	fn.Emit(ir.Instruction{Op: ir.OpRet, Operands: [3]ir.Value{reg(r0)}})

	cfg := ir.BuildCFG(fn)
	live := ir.Compute(fn, func(ir.RegID) bool { return false })
	changed := (DeadStoreElimination{}).RunFunction(fn, cfg, live)
	if !changed {
		t.Fatalf("expected dead-store elimination to drop the unused assign")
	}
	if len(fn.Instructions) != 1 || fn.Instructions[0].Op != ir.OpRet {
		t.Fatalf("expected only the ret to remain, got: %#v", fn.Instructions)
	}
}

func TestDeadStoreEliminationKeepsUnreadCallResult(t *testing.T) {
	fn := ir.NewFunctionDef("f")
	r0 := fn.AllocReg()
	fn.Emit(ir.Instruction{Op: ir.OpCall, Operands: [3]ir.Value{reg(r0), {Kind: ir.ValFunctionRef}, imm(0)}})
	fn.Emit(ir.Instruction{Op: ir.OpRet})

	cfg := ir.BuildCFG(fn)
	live := ir.Compute(fn, func(ir.RegID) bool { return false })
	changed := (DeadStoreElimination{}).RunFunction(fn, cfg, live)
	if changed {
		t.Fatalf("expected the call to survive even with its result unread, got: %#v", fn.Instructions)
	}
}

func TestGroupRunsToFixedPointAcrossSteps(t *testing.T) {
	fn := ir.NewFunctionDef("f")
	a := fn.AllocReg()
	r1 := fn.AllocReg()
	r2 := fn.AllocReg()
	// r1 = a; r2 = r1 + 5; ret r2 -- copy prop should fold r1 into a, then
	// dead-store elimination should drop the now-unread "r1 = a" assign.
	fn.Emit(ir.Instruction{Op: ir.OpAssign, Operands: [3]ir.Value{reg(r1), reg(a)}})
	fn.Emit(ir.Instruction{Op: ir.OpIAdd, Operands: [3]ir.Value{reg(r2), reg(r1), imm(5)}})
	fn.Emit(ir.Instruction{Op: ir.OpRet, Operands: [3]ir.Value{reg(r2)}})

	g := NewGroup()
	if !g.Run(fn) {
		t.Fatalf("expected the group to report at least one change")
	}
	if len(fn.Instructions) != 2 {
		t.Fatalf("expected the dead alias assign to be eliminated, got: %#v", fn.Instructions)
	}
	add := fn.Instructions[0]
	if add.Op != ir.OpIAdd || add.Operands[1].Reg != a {
		t.Fatalf("expected the add to read straight from a after propagation, got: %#v", add)
	}
}
