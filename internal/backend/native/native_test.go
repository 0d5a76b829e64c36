package native

import (
	"strings"
	"testing"

	"github.com/llir/llvm/asm"

	"tsnc/internal/compiler"
	"tsnc/internal/ir"
	"tsnc/internal/regalloc"
	"tsnc/internal/types"
)

func noFloats(ir.RegID) bool { return false }

func buildAdd(i32 *types.DataType) *ir.FunctionDef {
	fn := ir.NewFunctionDef("add")
	fn.Params = []*types.DataType{i32, i32}
	fn.Return = i32
	sum := fn.AllocReg()
	fn.Emit(ir.Instruction{Op: ir.OpIAdd, Operands: [3]ir.Value{ir.Reg(sum, i32), ir.Arg(0, i32), ir.Arg(1, i32)}})
	fn.Emit(ir.Instruction{Op: ir.OpRet, Operands: [3]ir.Value{ir.Reg(sum, i32)}})
	live := ir.Compute(fn, noFloats)
	regalloc.New(4, 4).Allocate(fn, live)
	return fn
}

// TestGenerateProducesParsableIR verifies the emitted text round-trips
// through llir/llvm's own assembler, the same structural check other_examples'
// bin2ll tooling relies on to validate generated IR.
func TestGenerateProducesParsableIR(t *testing.T) {
	i32 := &types.DataType{Meta: types.Meta{Primitive: true, Integral: true}, Size: 4}
	mod := &compiler.Module{Name: "m", Functions: []*ir.FunctionDef{buildAdd(i32)}}

	art, err := New(8, 8).Generate(mod)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	text := art.(*Artifact).String()
	if !strings.Contains(text, "define i32 @add") {
		t.Fatalf("expected a define for @add, got:\n%s", text)
	}

	if _, err := asm.ParseString("generated.ll", text); err != nil {
		t.Fatalf("generated IR failed to parse: %v\n%s", err, text)
	}
}

func TestCallIsUnsupported(t *testing.T) {
	mod := &compiler.Module{Name: "m"}
	art, err := New(8, 8).Generate(mod)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	fn := &types.Function{Name: "add"}
	if err := art.Call(fn, 0, nil); err == nil {
		t.Fatalf("expected Call to report that in-process execution is unsupported")
	}
}

func TestUnresolvedCalleeReportsUnsupportedSignature(t *testing.T) {
	i32 := &types.DataType{Meta: types.Meta{Primitive: true, Integral: true}, Size: 4}
	fn := ir.NewFunctionDef("caller")
	fn.Return = i32
	target := &types.Function{Name: "missing"}
	r := fn.AllocReg()
	fn.Emit(ir.Instruction{Op: ir.OpCall, Operands: [3]ir.Value{ir.Reg(r, i32), {Kind: ir.ValFunctionRef, Func: target}, ir.ImmInt(0, i32)}})
	fn.Emit(ir.Instruction{Op: ir.OpRet, Operands: [3]ir.Value{ir.Reg(r, i32)}})
	live := ir.Compute(fn, noFloats)
	regalloc.New(4, 4).Allocate(fn, live)

	mod := &compiler.Module{Name: "m", Functions: []*ir.FunctionDef{fn}}
	if _, err := New(8, 8).Generate(mod); err == nil {
		t.Fatalf("expected Generate to fail resolving a call to an undeclared function")
	}
}
