package ir

import "testing"

func TestLivenessBasicRange(t *testing.T) {
	fn := NewFunctionDef("f")
	r1 := fn.AllocReg()
	r2 := fn.AllocReg()

	fn.Emit(Instruction{Op: OpAssign, Operands: [3]Value{Reg(r1, nil), ImmInt(1, nil)}})          // 0: def r1
	fn.Emit(Instruction{Op: OpAssign, Operands: [3]Value{Reg(r2, nil), ImmInt(2, nil)}})          // 1: def r2
	fn.Emit(Instruction{Op: OpIAdd, Operands: [3]Value{Reg(r2, nil), Reg(r1, nil), Reg(r2, nil)}}) // 2: use r1, use+def r2
	fn.Emit(Instruction{Op: OpRet, Operands: [3]Value{Reg(r2, nil)}})                              // 3: use r2

	l := Compute(fn, notFP)

	if l.IsLive(r1, 0) == false || l.IsLive(r1, 2) == false {
		t.Fatalf("r1 should be live from def (0) through its last use (2)")
	}
	if l.IsLive(r1, 3) {
		t.Fatalf("r1 should not be live past its last use")
	}
	if !l.IsLive(r2, 3) {
		t.Fatalf("r2 should be live through the final ret")
	}
}

func TestLivenessReassignmentThatReadsExtendsRange(t *testing.T) {
	fn := NewFunctionDef("f")
	r1 := fn.AllocReg()

	fn.Emit(Instruction{Op: OpAssign, Operands: [3]Value{Reg(r1, nil), ImmInt(1, nil)}})  // 0: def r1
	fn.Emit(Instruction{Op: OpIInc, Operands: [3]Value{Reg(r1, nil), Reg(r1, nil)}})       // 1: r1 = r1 + 1 (reads+defs)
	fn.Emit(Instruction{Op: OpRet, Operands: [3]Value{Reg(r1, nil)}})                      // 2: use r1

	l := Compute(fn, notFP)
	ranges := l.RangesOf(r1)
	if len(ranges) != 1 {
		t.Fatalf("expected a single extended range, got %d ranges", len(ranges))
	}
	if ranges[0].Begin != 0 || ranges[0].End != 2 {
		t.Fatalf("expected range [0,2], got [%d,%d]", ranges[0].Begin, ranges[0].End)
	}
}

func TestLivenessReassignmentThatDoesNotReadStartsNewRange(t *testing.T) {
	fn := NewFunctionDef("f")
	r1 := fn.AllocReg()

	fn.Emit(Instruction{Op: OpAssign, Operands: [3]Value{Reg(r1, nil), ImmInt(1, nil)}}) // 0: def r1
	fn.Emit(Instruction{Op: OpRet, Operands: [3]Value{Reg(r1, nil)}})                     // 1: use r1 (ends range 0)
	fn.Emit(Instruction{Op: OpAssign, Operands: [3]Value{Reg(r1, nil), ImmInt(2, nil)}}) // 2: fresh def, no read of old value

	l := Compute(fn, notFP)
	ranges := l.RangesOf(r1)
	if len(ranges) != 2 {
		t.Fatalf("expected 2 disjoint ranges, got %d", len(ranges))
	}
}

// TestLivenessBackwardJumpExtendsThroughLoop models:
//   0: r1 = 5
//   1: top:
//   2: r2 = r1 + 0       (last textual read of r1)
//   3: r3 = r2 < 10
//   4: branch r3 -> top, end
//   5: end:
//   6: ret r2
// r1 is read only once, at instruction 2, inside a loop body that is
// re-entered by the backward jump at instruction 4. A naive scan would let
// r1's range die at instruction 2, but the next loop iteration needs it
// again at instruction 2, so the fixed-point pass must extend r1's range
// through the backward-jump site at instruction 4.
func TestLivenessBackwardJumpExtendsThroughLoop(t *testing.T) {
	fn := NewFunctionDef("f")
	r1 := fn.AllocReg()
	r2 := fn.AllocReg()
	r3 := fn.AllocReg()
	top := fn.AllocLabel()
	end := fn.AllocLabel()

	fn.Emit(Instruction{Op: OpAssign, Operands: [3]Value{Reg(r1, nil), ImmInt(5, nil)}})              // 0
	fn.Emit(Instruction{Op: OpLabel, Operands: [3]Value{Label(top)}})                                  // 1
	fn.Emit(Instruction{Op: OpIAdd, Operands: [3]Value{Reg(r2, nil), Reg(r1, nil), ImmInt(0, nil)}})   // 2
	fn.Emit(Instruction{Op: OpILt, Operands: [3]Value{Reg(r3, nil), Reg(r2, nil), ImmInt(10, nil)}})   // 3
	fn.Emit(Instruction{Op: OpBranch, Operands: [3]Value{Reg(r3, nil), Label(top), Label(end)}})       // 4
	fn.Emit(Instruction{Op: OpLabel, Operands: [3]Value{Label(end)}})                                  // 5
	fn.Emit(Instruction{Op: OpRet, Operands: [3]Value{Reg(r2, nil)}})                                  // 6

	l := Compute(fn, notFP)

	if !l.IsLive(r1, 4) {
		t.Fatalf("r1 should stay live through the backward-jump site inside the loop")
	}
	if !l.IsLive(r1, 1) {
		t.Fatalf("r1's range should be extended back to cover the loop top")
	}
	if l.IsLive(r1, 6) {
		t.Fatalf("r1's range should not extend past the loop's exit edge")
	}
}
