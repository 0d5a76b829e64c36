package compiler

import (
	"tsnc/internal/ir"
	"tsnc/internal/types"
)

// family classifies a DataType for the purpose of selecting an opcode
// variant (spec §4.6 "dominant type" numeric family, folded into the
// signed/unsigned/f32/f64 split the IR opcodes already carry).
type family int

const (
	famSignedInt family = iota
	famUnsignedInt
	famF32
	famF64
)

func familyOf(t *types.DataType) family {
	if t == nil {
		return famSignedInt
	}
	if t.Meta.FloatingPoint {
		if t.Size == 4 {
			return famF32
		}
		return famF64
	}
	if t.Meta.Unsigned {
		return famUnsignedInt
	}
	return famSignedInt
}

// dominantType implements the numeric promotion spec §4.6 calls out for
// binary arithmetic between two primitive operands: float beats int, f64
// beats f32, and otherwise the wider integer wins; same-family same-size
// just returns either side.
func dominantType(b *types.Builtins, a, c *types.DataType) *types.DataType {
	fa, fc := familyOf(a), familyOf(c)
	rank := func(f family) int {
		switch f {
		case famF64:
			return 4
		case famF32:
			return 3
		case famUnsignedInt:
			return 2
		default:
			return 1
		}
	}
	if rank(fa) == rank(fc) && a != nil && c != nil && c.Size > a.Size {
		return c
	}
	if rank(fa) >= rank(fc) {
		if a != nil {
			return a
		}
		return c
	}
	return c
}

type arithOpSet struct {
	signed, unsigned, f32, f64 ir.Opcode
}

var binaryArith = map[string]arithOpSet{
	"+": {ir.OpIAdd, ir.OpUAdd, ir.OpF32Add, ir.OpF64Add},
	"-": {ir.OpISub, ir.OpUSub, ir.OpF32Sub, ir.OpF64Sub},
	"*": {ir.OpIMul, ir.OpUMul, ir.OpF32Mul, ir.OpF64Mul},
	"/": {ir.OpIDiv, ir.OpUDiv, ir.OpF32Div, ir.OpF64Div},
	"%": {ir.OpIMod, ir.OpUMod, ir.OpF32Mod, ir.OpF64Mod},
	"<": {ir.OpILt, ir.OpULt, ir.OpF32Lt, ir.OpF64Lt},
	"<=": {ir.OpILte, ir.OpULte, ir.OpF32Lte, ir.OpF64Lte},
	">": {ir.OpIGt, ir.OpUGt, ir.OpF32Gt, ir.OpF64Gt},
	">=": {ir.OpIGte, ir.OpUGte, ir.OpF32Gte, ir.OpF64Gte},
	"==": {ir.OpIEq, ir.OpUEq, ir.OpF32Eq, ir.OpF64Eq},
	"!=": {ir.OpINeq, ir.OpUNeq, ir.OpF32Neq, ir.OpF64Neq},
}

var unaryArith = map[string]arithOpSet{
	"++": {ir.OpIInc, ir.OpUInc, ir.OpF32Inc, ir.OpF64Inc},
	"--": {ir.OpIDec, ir.OpUDec, ir.OpF32Dec, ir.OpF64Dec},
	"neg": {ir.OpINeg, ir.OpUNeg, ir.OpF32Neg, ir.OpF64Neg},
}

func pick(set arithOpSet, f family) ir.Opcode {
	switch f {
	case famUnsignedInt:
		return set.unsigned
	case famF32:
		return set.f32
	case famF64:
		return set.f64
	default:
		return set.signed
	}
}

func binaryOpcode(op string, t *types.DataType) (ir.Opcode, bool) {
	set, ok := binaryArith[op]
	if !ok {
		return 0, false
	}
	return pick(set, familyOf(t)), true
}

func unaryOpcode(op string, t *types.DataType) (ir.Opcode, bool) {
	set, ok := unaryArith[op]
	if !ok {
		return 0, false
	}
	return pick(set, familyOf(t)), true
}

var comparisonOps = map[string]bool{
	"<": true, "<=": true, ">": true, ">=": true, "==": true, "!=": true,
}
