package optimize

import "tsnc/internal/ir"

// CopyPropagation implements spec §4.8's copy-propagation step: within one
// block, `assign r, x` and `iadd r, x, 0` record r as an alias for x; every
// later operand reading r is rewritten to x directly, until r is
// redefined.
type CopyPropagation struct{}

func (CopyPropagation) Name() string { return "copy-propagation" }

func (CopyPropagation) RunBlock(fn *ir.FunctionDef, blk ir.Block) bool {
	changed := false
	known := map[ir.RegID]ir.Value{}

	for i := blk.Begin; i < blk.End; i++ {
		ins := &fn.Instructions[i]
		d := ins.Op.Descriptor()

		for oi := 0; oi < d.OperandCnt; oi++ {
			if oi == d.DestIndex {
				continue
			}
			v := ins.Operands[oi]
			if !v.IsRegister() {
				continue
			}
			if mapped, ok := known[v.Reg]; ok {
				mapped.Type = v.Type // preserve the operand's declared type
				ins.Operands[oi] = mapped
				changed = true
			}
		}

		dest, hasDest := ins.Dest()
		if !hasDest || !dest.IsRegister() {
			continue
		}
		delete(known, dest.Reg)

		switch ins.Op {
		case ir.OpAssign:
			known[dest.Reg] = ins.Operands[1]
		case ir.OpIAdd, ir.OpUAdd, ir.OpF32Add, ir.OpF64Add:
			if isZeroImmediate(ins.Operands[2]) {
				known[dest.Reg] = ins.Operands[1]
			}
		}
	}
	return changed
}

func isZeroImmediate(v ir.Value) bool {
	return v.Kind == ir.ValImmediate && v.ImmBits == 0
}
