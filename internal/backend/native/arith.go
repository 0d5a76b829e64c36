package native

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	llvmtypes "github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/pkg/errors"

	irpkg "tsnc/internal/ir"
)

// arithOp lowers one IR arithmetic/comparison/bitwise/unary opcode to the
// matching LLVM instruction builder call, picking the signed/unsigned/
// float32/float64 family the same way vmback's execArith does: by the
// opcode's own name, since every member of these families already encodes
// its width and signedness (OpIAdd vs OpUAdd vs OpF64Add, ...).
func arithOp(block *ir.Block, op irpkg.Opcode, b, c llvmValue, hasC bool) (llvmValue, error) {
	if !hasC {
		return unaryOp(block, op, b)
	}
	return binOp(block, op, b, c)
}

func binOp(block *ir.Block, op irpkg.Opcode, b, c llvmValue) (llvmValue, error) {
	x, y := b.val, c.val
	switch op {
	case irpkg.OpIAdd:
		return llvmValue{val: block.NewAdd(x, y)}, nil
	case irpkg.OpUAdd:
		return llvmValue{val: block.NewAdd(x, y)}, nil
	case irpkg.OpF32Add, irpkg.OpF64Add:
		return llvmValue{val: block.NewFAdd(x, y), float: true}, nil
	case irpkg.OpISub, irpkg.OpUSub:
		return llvmValue{val: block.NewSub(x, y)}, nil
	case irpkg.OpF32Sub, irpkg.OpF64Sub:
		return llvmValue{val: block.NewFSub(x, y), float: true}, nil
	case irpkg.OpIMul, irpkg.OpUMul:
		return llvmValue{val: block.NewMul(x, y)}, nil
	case irpkg.OpF32Mul, irpkg.OpF64Mul:
		return llvmValue{val: block.NewFMul(x, y), float: true}, nil
	case irpkg.OpIDiv:
		return llvmValue{val: block.NewSDiv(x, y)}, nil
	case irpkg.OpUDiv:
		return llvmValue{val: block.NewUDiv(x, y)}, nil
	case irpkg.OpF32Div, irpkg.OpF64Div:
		return llvmValue{val: block.NewFDiv(x, y), float: true}, nil
	case irpkg.OpIMod:
		return llvmValue{val: block.NewSRem(x, y)}, nil
	case irpkg.OpUMod:
		return llvmValue{val: block.NewURem(x, y)}, nil
	case irpkg.OpF32Mod, irpkg.OpF64Mod:
		return llvmValue{val: block.NewFRem(x, y), float: true}, nil

	case irpkg.OpShl:
		return llvmValue{val: block.NewShl(x, y)}, nil
	case irpkg.OpShr:
		return llvmValue{val: block.NewLShr(x, y)}, nil
	case irpkg.OpBAnd:
		return llvmValue{val: block.NewAnd(x, y)}, nil
	case irpkg.OpBOr:
		return llvmValue{val: block.NewOr(x, y)}, nil
	case irpkg.OpXor:
		return llvmValue{val: block.NewXor(x, y)}, nil
	case irpkg.OpLAnd:
		return llvmValue{val: block.NewAnd(truthy(block, x), truthy(block, y))}, nil
	case irpkg.OpLOr:
		return llvmValue{val: block.NewOr(truthy(block, x), truthy(block, y))}, nil

	case irpkg.OpILt:
		return llvmValue{val: block.NewICmp(enum.IPredSLT, x, y)}, nil
	case irpkg.OpULt:
		return llvmValue{val: block.NewICmp(enum.IPredULT, x, y)}, nil
	case irpkg.OpF32Lt, irpkg.OpF64Lt:
		return llvmValue{val: block.NewFCmp(enum.FPredOLT, x, y)}, nil
	case irpkg.OpILte:
		return llvmValue{val: block.NewICmp(enum.IPredSLE, x, y)}, nil
	case irpkg.OpULte:
		return llvmValue{val: block.NewICmp(enum.IPredULE, x, y)}, nil
	case irpkg.OpF32Lte, irpkg.OpF64Lte:
		return llvmValue{val: block.NewFCmp(enum.FPredOLE, x, y)}, nil
	case irpkg.OpIGt:
		return llvmValue{val: block.NewICmp(enum.IPredSGT, x, y)}, nil
	case irpkg.OpUGt:
		return llvmValue{val: block.NewICmp(enum.IPredUGT, x, y)}, nil
	case irpkg.OpF32Gt, irpkg.OpF64Gt:
		return llvmValue{val: block.NewFCmp(enum.FPredOGT, x, y)}, nil
	case irpkg.OpIGte:
		return llvmValue{val: block.NewICmp(enum.IPredSGE, x, y)}, nil
	case irpkg.OpUGte:
		return llvmValue{val: block.NewICmp(enum.IPredUGE, x, y)}, nil
	case irpkg.OpF32Gte, irpkg.OpF64Gte:
		return llvmValue{val: block.NewFCmp(enum.FPredOGE, x, y)}, nil
	case irpkg.OpIEq, irpkg.OpUEq:
		return llvmValue{val: block.NewICmp(enum.IPredEQ, x, y)}, nil
	case irpkg.OpF32Eq, irpkg.OpF64Eq:
		return llvmValue{val: block.NewFCmp(enum.FPredOEQ, x, y)}, nil
	case irpkg.OpINeq, irpkg.OpUNeq:
		return llvmValue{val: block.NewICmp(enum.IPredNE, x, y)}, nil
	case irpkg.OpF32Neq, irpkg.OpF64Neq:
		return llvmValue{val: block.NewFCmp(enum.FPredONE, x, y)}, nil

	default:
		return llvmValue{}, errors.Errorf("native: unsupported binary opcode %v", op)
	}
}

func unaryOp(block *ir.Block, op irpkg.Opcode, b llvmValue) (llvmValue, error) {
	switch op {
	case irpkg.OpIInc, irpkg.OpUInc:
		return llvmValue{val: block.NewAdd(b.val, constant.NewInt(intTypeOf(b.val), 1))}, nil
	case irpkg.OpIDec, irpkg.OpUDec:
		return llvmValue{val: block.NewSub(b.val, constant.NewInt(intTypeOf(b.val), 1))}, nil
	case irpkg.OpINeg, irpkg.OpUNeg:
		return llvmValue{val: block.NewSub(constant.NewInt(intTypeOf(b.val), 0), b.val)}, nil
	case irpkg.OpF32Inc, irpkg.OpF64Inc:
		return llvmValue{val: block.NewFAdd(b.val, constant.NewFloat(floatTypeOf(b.val), 1)), float: true}, nil
	case irpkg.OpF32Dec, irpkg.OpF64Dec:
		return llvmValue{val: block.NewFSub(b.val, constant.NewFloat(floatTypeOf(b.val), 1)), float: true}, nil
	case irpkg.OpF32Neg, irpkg.OpF64Neg:
		return llvmValue{val: block.NewFNeg(b.val), float: true}, nil
	case irpkg.OpNot:
		truth := truthy(block, b.val)
		return llvmValue{val: block.NewXor(truth, constant.NewInt(llvmtypes.I1, 1))}, nil
	case irpkg.OpInv:
		return llvmValue{val: block.NewXor(b.val, constant.NewInt(intTypeOf(b.val), -1))}, nil
	default:
		return llvmValue{}, errors.Errorf("native: unsupported unary opcode %v", op)
	}
}

// truthy lowers a value to an i1 by comparing it against its type's zero,
// the same "any nonzero word is true" rule vmback's boolWord(word != 0)
// applies to raw words.
func truthy(block *ir.Block, v value.Value) value.Value {
	if it, ok := v.Type().(*llvmtypes.IntType); ok {
		if it.BitSize == 1 {
			return v
		}
		return block.NewICmp(enum.IPredNE, v, constant.NewInt(it, 0))
	}
	return block.NewFCmp(enum.FPredONE, v, constant.NewFloat(floatTypeOf(v), 0))
}

func intTypeOf(v value.Value) *llvmtypes.IntType {
	if it, ok := v.Type().(*llvmtypes.IntType); ok {
		return it
	}
	return llvmtypes.I64
}

func floatTypeOf(v value.Value) *llvmtypes.FloatType {
	if ft, ok := v.Type().(*llvmtypes.FloatType); ok {
		return ft
	}
	return llvmtypes.Double
}
