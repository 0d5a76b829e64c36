package optimize

import "tsnc/internal/ir"

// CommonSubexpressionElimination implements spec §4.8's CSE step: within
// one block, remember every pure computation's opcode and operand pair; a
// later instruction with the same opcode and operands (modulo the
// destination) is rewritten to `assign dst, earlier_dst` instead of
// recomputing. A register redefinition invalidates any remembered
// expression that read it, since the "no operand reassigned between sites"
// condition then no longer holds.
type CommonSubexpressionElimination struct{}

func (CommonSubexpressionElimination) Name() string { return "common-subexpression-elimination" }

// pureComputeOps are opcodes whose result depends only on their operands,
// making them safe to remember and reuse across instructions in a block.
// Deliberately excludes load (aliasing), store/call/param (side effects),
// and the allocation/module-data/reserve/resolve family (identity-sensitive).
var pureComputeOps = func() map[ir.Opcode]bool {
	set := map[ir.Opcode]bool{
		ir.OpAssign: true, ir.OpCvt: true,
		ir.OpNot: true, ir.OpInv: true, ir.OpShl: true, ir.OpShr: true,
		ir.OpLAnd: true, ir.OpLOr: true, ir.OpBAnd: true, ir.OpBOr: true, ir.OpXor: true,
	}
	for _, op := range []ir.Opcode{
		ir.OpIAdd, ir.OpUAdd, ir.OpF32Add, ir.OpF64Add,
		ir.OpISub, ir.OpUSub, ir.OpF32Sub, ir.OpF64Sub,
		ir.OpIMul, ir.OpUMul, ir.OpF32Mul, ir.OpF64Mul,
		ir.OpIDiv, ir.OpUDiv, ir.OpF32Div, ir.OpF64Div,
		ir.OpIMod, ir.OpUMod, ir.OpF32Mod, ir.OpF64Mod,
		ir.OpILt, ir.OpULt, ir.OpF32Lt, ir.OpF64Lt,
		ir.OpILte, ir.OpULte, ir.OpF32Lte, ir.OpF64Lte,
		ir.OpIGt, ir.OpUGt, ir.OpF32Gt, ir.OpF64Gt,
		ir.OpIGte, ir.OpUGte, ir.OpF32Gte, ir.OpF64Gte,
		ir.OpIEq, ir.OpUEq, ir.OpF32Eq, ir.OpF64Eq,
		ir.OpINeq, ir.OpUNeq, ir.OpF32Neq, ir.OpF64Neq,
		ir.OpIInc, ir.OpUInc, ir.OpF32Inc, ir.OpF64Inc,
		ir.OpIDec, ir.OpUDec, ir.OpF32Dec, ir.OpF64Dec,
		ir.OpINeg, ir.OpUNeg, ir.OpF32Neg, ir.OpF64Neg,
	} {
		set[op] = true
	}
	return set
}()

type cseKey struct {
	op   ir.Opcode
	a, b ir.Value
}

func cseKeyOf(ins ir.Instruction) (cseKey, bool) {
	if !pureComputeOps[ins.Op] {
		return cseKey{}, false
	}
	d := ins.Op.Descriptor()
	if d.DestIndex < 0 {
		return cseKey{}, false
	}
	var operands [2]ir.Value
	oi := 0
	for i := 0; i < d.OperandCnt && oi < 2; i++ {
		if i == d.DestIndex {
			continue
		}
		operands[oi] = ins.Operands[i]
		oi++
	}
	return cseKey{op: ins.Op, a: operands[0], b: operands[1]}, true
}

func (CommonSubexpressionElimination) RunBlock(fn *ir.FunctionDef, blk ir.Block) bool {
	changed := false
	available := map[cseKey]ir.Value{}

	invalidate := func(reg ir.RegID) {
		for k := range available {
			if (k.a.IsRegister() && k.a.Reg == reg) || (k.b.IsRegister() && k.b.Reg == reg) {
				delete(available, k)
			}
		}
	}

	for i := blk.Begin; i < blk.End; i++ {
		ins := &fn.Instructions[i]

		if key, ok := cseKeyOf(*ins); ok {
			if earlier, found := available[key]; found {
				dest, _ := ins.Dest()
				*ins = ir.Instruction{Op: ir.OpAssign, Operands: [3]ir.Value{dest, earlier}, Loc: ins.Loc}
				changed = true
			}
		}

		if dest, ok := ins.Dest(); ok && dest.IsRegister() {
			invalidate(dest.Reg)
			if key, ok := cseKeyOf(*ins); ok {
				available[key] = dest
			}
		}
	}
	return changed
}
