package compiler

import (
	"testing"
	"time"

	"tsnc/internal/diag"
	"tsnc/internal/ir"
	"tsnc/internal/lexer"
	"tsnc/internal/parser"
	"tsnc/internal/source"
	"tsnc/internal/types"
)

func compileSource(t *testing.T, src string) (*Module, *diag.Logger) {
	t.Helper()
	buf := source.New("test.tsn", []byte(src), time.Time{})
	log := &diag.Logger{}
	toks, diags := lexer.Tokenize(buf)
	for _, d := range diags {
		log.Add(d)
	}
	p := parser.New(buf, toks, log)
	tree := p.Parse()

	reg := types.NewRegistry()
	builtins := types.RegisterBuiltins(reg)
	funcs := types.NewFunctionRegistry()

	c := New(tree, reg, builtins, funcs, log)
	mod := c.CompileModule("test")
	return mod, log
}

func countOp(instrs []ir.Instruction, op ir.Opcode) int {
	n := 0
	for _, ins := range instrs {
		if ins.Op == op {
			n++
		}
	}
	return n
}

func TestCompilePromotesIntPlusFloatToF64Add(t *testing.T) {
	mod, log := compileSource(t, `var x: f64 = 1 + 2.5;`)
	if log.HasErrors() {
		t.Fatalf("unexpected errors: %v", log.All())
	}
	if countOp(mod.Init.Instructions, ir.OpF64Add) != 1 {
		t.Fatalf("expected exactly one f64 add, got instructions: %#v", mod.Init.Instructions)
	}
}

func TestCompilePlainIntAddUsesSignedAdd(t *testing.T) {
	mod, log := compileSource(t, `var x: i32 = 1 + 2;`)
	if log.HasErrors() {
		t.Fatalf("unexpected errors: %v", log.All())
	}
	if countOp(mod.Init.Instructions, ir.OpIAdd) != 1 {
		t.Fatalf("expected exactly one signed int add, got: %#v", mod.Init.Instructions)
	}
}

func TestCompileIfElseEmitsBranchAndTwoPaths(t *testing.T) {
	src := `
	var x: bool = true;
	var y: i32 = 0;
	if (x) {
		y = 1;
	} else {
		y = 2;
	}
	`
	mod, log := compileSource(t, src)
	if log.HasErrors() {
		t.Fatalf("unexpected errors: %v", log.All())
	}
	if countOp(mod.Init.Instructions, ir.OpBranch) != 1 {
		t.Fatalf("expected exactly one branch, got: %#v", mod.Init.Instructions)
	}
	if countOp(mod.Init.Instructions, ir.OpLabel) != 3 {
		t.Fatalf("expected three labels (then/else/end), got: %#v", mod.Init.Instructions)
	}
}

func TestCompileWhileLoopBlockIsDetectedAsLoop(t *testing.T) {
	src := `
	var i: i32 = 0;
	while (i < 10) {
		i = i + 1;
	}
	`
	mod, log := compileSource(t, src)
	if log.HasErrors() {
		t.Fatalf("unexpected errors: %v", log.All())
	}

	cfg := ir.BuildCFG(mod.Init)
	foundLoop := false
	for bi := range cfg.Blocks {
		if cfg.IsLoop(bi) {
			foundLoop = true
			break
		}
	}
	if !foundLoop {
		t.Fatalf("expected at least one block reachably flowing to itself, got CFG: %#v", cfg.Blocks)
	}
}

func TestCompileFunctionDeclProducesSeparateFunctionDef(t *testing.T) {
	src := `
	fn add(a: i32, b: i32): i32 {
		return a + b;
	}
	var r: i32 = add(1, 2);
	`
	mod, log := compileSource(t, src)
	if log.HasErrors() {
		t.Fatalf("unexpected errors: %v", log.All())
	}
	if len(mod.Functions) != 1 {
		t.Fatalf("expected one compiled function, got %d", len(mod.Functions))
	}
	fn := mod.Functions[0]
	if countOp(fn.Instructions, ir.OpIAdd) != 1 {
		t.Fatalf("expected add's body to contain one signed add, got: %#v", fn.Instructions)
	}
	if countOp(mod.Init.Instructions, ir.OpCall) != 1 {
		t.Fatalf("expected the module initializer to call add once, got: %#v", mod.Init.Instructions)
	}
}

func TestCompileReturnInEachPathEmitsRet(t *testing.T) {
	src := `
	fn pick(a: i32): i32 {
		if (a > 0) {
			return a;
		}
		return 0;
	}
	`
	mod, log := compileSource(t, src)
	if log.HasErrors() {
		t.Fatalf("unexpected errors: %v", log.All())
	}
	if len(mod.Functions) != 1 {
		t.Fatalf("expected one compiled function, got %d", len(mod.Functions))
	}
	if countOp(mod.Functions[0].Instructions, ir.OpRet) != 2 {
		t.Fatalf("expected two returns (one per branch), got: %#v", mod.Functions[0].Instructions)
	}
}

func TestCompileBreakOutsideLoopIsDiagnosed(t *testing.T) {
	_, log := compileSource(t, `break;`)
	if !log.HasErrors() {
		t.Fatalf("expected a diagnostic for break outside a loop")
	}
	found := false
	for _, d := range log.All() {
		if d.Code == diag.CodeBreakOutsideLoop {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected flow.break_outside_loop among diagnostics, got: %v", log.All())
	}
}

func TestCompileInstantiatesGenericClassPerSpecialization(t *testing.T) {
	src := `
	class Box<T> {
		value: T;
	}
	let a: Box<i32>;
	let b: Box<f64>;
	let c: Box<i32>;
	`
	buf := source.New("test.tsn", []byte(src), time.Time{})
	log := &diag.Logger{}
	toks, diags := lexer.Tokenize(buf)
	for _, d := range diags {
		log.Add(d)
	}
	p := parser.New(buf, toks, log)
	tree := p.Parse()

	reg := types.NewRegistry()
	builtins := types.RegisterBuiltins(reg)
	funcs := types.NewFunctionRegistry()

	c := New(tree, reg, builtins, funcs, log)
	mod := c.CompileModule("test")
	if log.HasErrors() {
		t.Fatalf("unexpected errors: %v", log.All())
	}

	i32Box := reg.ByFQN(mod.Name + ".Box<i32>")
	f64Box := reg.ByFQN(mod.Name + ".Box<f64>")
	if i32Box == nil {
		t.Fatalf("expected a registered Box<i32> specialization")
	}
	if f64Box == nil {
		t.Fatalf("expected a registered Box<f64> specialization")
	}
	if i32Box == f64Box {
		t.Fatalf("Box<i32> and Box<f64> must be distinct types")
	}

	count := 0
	for _, ty := range reg.All() {
		if ty.Name == "Box<i32>" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected Box<i32> to be instantiated exactly once (cached on repeat use), got %d", count)
	}
}
