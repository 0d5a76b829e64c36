package vmback

import (
	"testing"
	"unsafe"

	"tsnc/internal/compiler"
	"tsnc/internal/ir"
	"tsnc/internal/regalloc"
	"tsnc/internal/types"
)

func noFloats(ir.RegID) bool { return false }

// buildAdd compiles a tiny "ret a + b" function straight against
// internal/ir, runs it through the real register allocator, and returns
// the FunctionDef ready for Generate — exercising the same
// optimize-then-allocate-then-lower pipeline the driver runs.
func buildAdd(i32 *types.DataType) *ir.FunctionDef {
	fn := ir.NewFunctionDef("add")
	fn.Params = []*types.DataType{i32, i32}
	sum := fn.AllocReg()
	fn.Emit(ir.Instruction{Op: ir.OpIAdd, Operands: [3]ir.Value{ir.Reg(sum, i32), ir.Arg(0, i32), ir.Arg(1, i32)}})
	fn.Emit(ir.Instruction{Op: ir.OpRet, Operands: [3]ir.Value{ir.Reg(sum, i32)}})
	live := ir.Compute(fn, noFloats)
	regalloc.New(4, 4).Allocate(fn, live)
	return fn
}

func TestGenerateAndCallAddsArguments(t *testing.T) {
	i32 := &types.DataType{Meta: types.Meta{Primitive: true, Integral: true}, Size: 4}
	mod := &compiler.Module{Name: "m", Functions: []*ir.FunctionDef{buildAdd(i32)}}

	art, err := New(4, 4).Generate(mod)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	fnRec := &types.Function{Name: "add"}
	a, b := int64(3), int64(4)
	var ret int64
	if err := art.Call(fnRec, uintptr(unsafe.Pointer(&ret)), []uintptr{uintptr(unsafe.Pointer(&a)), uintptr(unsafe.Pointer(&b))}); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if ret != 7 {
		t.Fatalf("expected add(3, 4) == 7, got %d", ret)
	}
}

func TestCallReportsUnknownFunction(t *testing.T) {
	mod := &compiler.Module{Name: "m"}
	art, err := New(4, 4).Generate(mod)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := art.Call(&types.Function{Name: "missing"}, 0, nil); err == nil {
		t.Fatalf("expected an error calling an unresolved function")
	}
}

func TestBranchSelectsCorrectSide(t *testing.T) {
	i32 := &types.DataType{Meta: types.Meta{Primitive: true, Integral: true}, Size: 4}
	fn := ir.NewFunctionDef("max")
	fn.Params = []*types.DataType{i32, i32}
	cond := fn.AllocReg()
	result := fn.AllocReg()
	trueLbl := fn.AllocLabel()
	falseLbl := fn.AllocLabel()
	endLbl := fn.AllocLabel()

	fn.Emit(ir.Instruction{Op: ir.OpIGt, Operands: [3]ir.Value{ir.Reg(cond, i32), ir.Arg(0, i32), ir.Arg(1, i32)}})
	fn.Emit(ir.Instruction{Op: ir.OpBranch, Operands: [3]ir.Value{ir.Reg(cond, i32), ir.Label(trueLbl), ir.Label(falseLbl)}})
	fn.Emit(ir.Instruction{Op: ir.OpLabel, Operands: [3]ir.Value{ir.Label(trueLbl)}})
	fn.Emit(ir.Instruction{Op: ir.OpAssign, Operands: [3]ir.Value{ir.Reg(result, i32), ir.Arg(0, i32)}})
	fn.Emit(ir.Instruction{Op: ir.OpJump, Operands: [3]ir.Value{ir.Label(endLbl)}})
	fn.Emit(ir.Instruction{Op: ir.OpLabel, Operands: [3]ir.Value{ir.Label(falseLbl)}})
	fn.Emit(ir.Instruction{Op: ir.OpAssign, Operands: [3]ir.Value{ir.Reg(result, i32), ir.Arg(1, i32)}})
	fn.Emit(ir.Instruction{Op: ir.OpLabel, Operands: [3]ir.Value{ir.Label(endLbl)}})
	fn.Emit(ir.Instruction{Op: ir.OpRet, Operands: [3]ir.Value{ir.Reg(result, i32)}})

	live := ir.Compute(fn, noFloats)
	regalloc.New(4, 4).Allocate(fn, live)

	mod := &compiler.Module{Name: "m", Functions: []*ir.FunctionDef{fn}}
	art, err := New(4, 4).Generate(mod)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	fnRec := &types.Function{Name: "max"}
	a, b := int64(9), int64(2)
	var ret int64
	if err := art.Call(fnRec, uintptr(unsafe.Pointer(&ret)), []uintptr{uintptr(unsafe.Pointer(&a)), uintptr(unsafe.Pointer(&b))}); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if ret != 9 {
		t.Fatalf("expected max(9, 2) == 9, got %d", ret)
	}
}
