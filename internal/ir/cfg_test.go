package ir

import "testing"

func notFP(RegID) bool { return false }

func TestBuildCFGLinearFallthrough(t *testing.T) {
	fn := NewFunctionDef("f")
	r1 := fn.AllocReg()
	fn.Emit(Instruction{Op: OpAssign, Operands: [3]Value{Reg(r1, nil), ImmInt(1, nil)}})
	fn.Emit(Instruction{Op: OpRet, Operands: [3]Value{Reg(r1, nil)}})

	cfg := BuildCFG(fn)
	if len(cfg.Blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(cfg.Blocks))
	}
	if len(cfg.Blocks[0].To) != 0 {
		t.Fatalf("ret block should have no outgoing edges, got %v", cfg.Blocks[0].To)
	}
}

func TestBuildCFGBranchAndJump(t *testing.T) {
	fn := NewFunctionDef("f")
	r1 := fn.AllocReg()
	lblTrue := fn.AllocLabel()
	lblEnd := fn.AllocLabel()

	fn.Emit(Instruction{Op: OpBranch, Operands: [3]Value{Reg(r1, nil), Label(lblTrue), Label(lblEnd)}})
	// never reached: the branch's false target is lblEnd; this jump forms its own block
	fn.Emit(Instruction{Op: OpJump, Operands: [3]Value{Label(lblEnd)}})
	fn.Emit(Instruction{Op: OpLabel, Operands: [3]Value{Label(lblTrue)}})
	fn.Emit(Instruction{Op: OpAssign, Operands: [3]Value{Reg(r1, nil), ImmInt(2, nil)}})
	fn.Emit(Instruction{Op: OpLabel, Operands: [3]Value{Label(lblEnd)}})
	fn.Emit(Instruction{Op: OpRet, Operands: [3]Value{Reg(r1, nil)}})

	cfg := BuildCFG(fn)

	branchBlock := cfg.BlockOf(0)
	if len(cfg.Blocks[branchBlock].To) != 2 {
		t.Fatalf("branch block should have 2 outgoing edges, got %v", cfg.Blocks[branchBlock].To)
	}

	jumpBlock := cfg.BlockOf(1)
	if len(cfg.Blocks[jumpBlock].To) != 1 {
		t.Fatalf("jump block should have 1 outgoing edge, got %v", cfg.Blocks[jumpBlock].To)
	}

	endBlock := cfg.BlockOf(4) // the end label's block
	if len(cfg.Blocks[endBlock].From) < 2 {
		t.Fatalf("end block should be reachable from at least 2 predecessors, got %v", cfg.Blocks[endBlock].From)
	}
}

func TestCFGIsLoopDetectsBackwardJump(t *testing.T) {
	fn := NewFunctionDef("f")
	r1 := fn.AllocReg()
	top := fn.AllocLabel()

	fn.Emit(Instruction{Op: OpLabel, Operands: [3]Value{Label(top)}})
	fn.Emit(Instruction{Op: OpIInc, Operands: [3]Value{Reg(r1, nil), Reg(r1, nil)}})
	fn.Emit(Instruction{Op: OpJump, Operands: [3]Value{Label(top)}})

	cfg := BuildCFG(fn)
	loopBlock := cfg.BlockOf(0)
	if !cfg.IsLoop(loopBlock) {
		t.Fatalf("block containing the backward jump target should be detected as a loop")
	}
}

func TestCFGIsLoopFalseForStraightLine(t *testing.T) {
	fn := NewFunctionDef("f")
	r1 := fn.AllocReg()
	fn.Emit(Instruction{Op: OpAssign, Operands: [3]Value{Reg(r1, nil), ImmInt(1, nil)}})
	fn.Emit(Instruction{Op: OpRet, Operands: [3]Value{Reg(r1, nil)}})

	cfg := BuildCFG(fn)
	if cfg.IsLoop(cfg.BlockOf(0)) {
		t.Fatalf("straight-line code should not be detected as a loop")
	}
}
