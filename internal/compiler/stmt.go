package compiler

import (
	"github.com/pkg/errors"

	"tsnc/internal/arena"
	"tsnc/internal/diag"
	"tsnc/internal/ir"
	"tsnc/internal/modgraph"
	"tsnc/internal/parser"
	"tsnc/internal/types"
)

// compileStmt lowers one statement node, following the control-flow
// lowering templates of spec §4.6: every loop shape reduces to a label
// pair plus a conditional branch, and every scope exit (break, continue,
// return, or falling off the end of a block) unwinds destructors through
// modgraph before transferring control.
func (c *Compiler) compileStmt(p arena.Pos) {
	if p == arena.Nil {
		return
	}
	n := c.tree.Get(p)
	switch n.Kind {
	case parser.KindBlock:
		c.compileBlock(p, false, false)
	case parser.KindExpressionStmt:
		c.compileExpr(n.RValue)
	case parser.KindVarDecl:
		c.compileVarDecl(p)
	case parser.KindIf:
		c.compileIf(p)
	case parser.KindWhile:
		c.compileWhile(p)
	case parser.KindDoWhile:
		c.compileDoWhile(p)
	case parser.KindForC:
		c.compileForC(p)
	case parser.KindForIn:
		c.compileForIn(p)
	case parser.KindSwitch:
		c.compileSwitch(p)
	case parser.KindTry:
		c.compileTry(p)
	case parser.KindThrow:
		c.compileThrow(p)
	case parser.KindReturn:
		c.compileReturn(p)
	case parser.KindBreak:
		c.compileBreakContinue(n, true)
	case parser.KindContinue:
		c.compileBreakContinue(n, false)
	case parser.KindDelete:
		c.compileDelete(p)
	case parser.KindFunctionDecl:
		if n.TemplateParams != arena.Nil {
			c.registerTemplate(n.Name, p)
			break
		}
		c.compileFunctionDecl(p, nil)
	case parser.KindClassDecl:
		if n.TemplateParams != arena.Nil {
			c.registerTemplate(n.Name, p)
			break
		}
		c.compileClassDecl(p)
	case parser.KindTypeDef:
		c.compileTypeDef(p)
	case parser.KindImport:
		c.compileImport(p)
	case parser.KindExport:
		c.compileStmt(n.Body)
	default:
		c.log.Errorf(diag.CodeInternal, n.Tok.Loc, "compiler: unhandled statement kind %d", n.Kind)
	}
}

// compileBlock pushes a scope, compiles p's statement(s), then pops and
// emits destructor calls for whatever the scope collected. p may be a real
// block (braces) or, since if/while/for bodies are a single `statement()`
// production in the grammar, any other single statement — both are valid
// loop/branch bodies per spec §4.2.
func (c *Compiler) compileBlock(p arena.Pos, isLoop, isSwitch bool) {
	n := c.tree.Get(p)
	c.scopes.Push(isLoop, isSwitch, nil)
	if n.Kind == parser.KindBlock {
		for _, s := range c.tree.Siblings(n.Body) {
			c.compileStmt(s)
		}
	} else {
		c.compileStmt(p)
	}
	c.emitDtors(c.scopes.Pop())
}

func (c *Compiler) compileVarDecl(p arena.Pos) {
	n := c.tree.Get(p)
	declared := c.resolveType(n.DataType)
	var v ir.Value
	if n.Initializer != arena.Nil {
		init := c.compileExpr(n.Initializer)
		if n.DataType == arena.Nil {
			declared = init.Type
		}
		dest := ir.Reg(c.fn.AllocReg(), declared)
		c.fn.Emit(ir.Instruction{Op: ir.OpAssign, Operands: [3]ir.Value{dest, init}, Loc: n.Tok.Loc})
		v = dest
	} else {
		v = ir.Reg(c.fn.AllocReg(), declared)
	}
	if n.Flags.Has(parser.FlagConst) {
		v.Flags |= ir.FlagReadOnly
	}
	c.declareLocal(n.Name, declared, v)
}

func (c *Compiler) compileIf(p arena.Pos) {
	n := c.tree.Get(p)
	cond := c.compileExpr(n.Cond)
	thenLbl, elseLbl, endLbl := c.fn.AllocLabel(), c.fn.AllocLabel(), c.fn.AllocLabel()
	c.fn.Emit(ir.Instruction{Op: ir.OpBranch, Operands: [3]ir.Value{cond, ir.Label(thenLbl), ir.Label(elseLbl)}, Loc: n.Tok.Loc})

	c.fn.Emit(ir.Instruction{Op: ir.OpLabel, Operands: [3]ir.Value{ir.Label(thenLbl)}})
	c.compileStmt(n.Body)
	c.fn.Emit(ir.Instruction{Op: ir.OpJump, Operands: [3]ir.Value{ir.Label(endLbl)}})

	c.fn.Emit(ir.Instruction{Op: ir.OpLabel, Operands: [3]ir.Value{ir.Label(elseLbl)}})
	if n.ElseBody != arena.Nil {
		c.compileStmt(n.ElseBody)
	}
	c.fn.Emit(ir.Instruction{Op: ir.OpLabel, Operands: [3]ir.Value{ir.Label(endLbl)}})
}

func (c *Compiler) compileWhile(p arena.Pos) {
	n := c.tree.Get(p)
	topLbl, bodyLbl, endLbl := c.fn.AllocLabel(), c.fn.AllocLabel(), c.fn.AllocLabel()

	c.fn.Emit(ir.Instruction{Op: ir.OpLabel, Operands: [3]ir.Value{ir.Label(topLbl)}})
	cond := c.compileExpr(n.Cond)
	c.fn.Emit(ir.Instruction{Op: ir.OpBranch, Operands: [3]ir.Value{cond, ir.Label(bodyLbl), ir.Label(endLbl)}, Loc: n.Tok.Loc})

	c.fn.Emit(ir.Instruction{Op: ir.OpLabel, Operands: [3]ir.Value{ir.Label(bodyLbl)}})
	c.loops = append(c.loops, loopCtx{continueLabel: topLbl, breakLabel: endLbl})
	c.compileBlock(n.Body, true, false)
	c.loops = c.loops[:len(c.loops)-1]
	c.fn.Emit(ir.Instruction{Op: ir.OpJump, Operands: [3]ir.Value{ir.Label(topLbl)}})

	c.fn.Emit(ir.Instruction{Op: ir.OpLabel, Operands: [3]ir.Value{ir.Label(endLbl)}})
}

func (c *Compiler) compileDoWhile(p arena.Pos) {
	n := c.tree.Get(p)
	topLbl, condLbl, endLbl := c.fn.AllocLabel(), c.fn.AllocLabel(), c.fn.AllocLabel()

	c.fn.Emit(ir.Instruction{Op: ir.OpLabel, Operands: [3]ir.Value{ir.Label(topLbl)}})
	c.loops = append(c.loops, loopCtx{continueLabel: condLbl, breakLabel: endLbl})
	c.compileBlock(n.Body, true, false)
	c.loops = c.loops[:len(c.loops)-1]

	c.fn.Emit(ir.Instruction{Op: ir.OpLabel, Operands: [3]ir.Value{ir.Label(condLbl)}})
	cond := c.compileExpr(n.Cond)
	c.fn.Emit(ir.Instruction{Op: ir.OpBranch, Operands: [3]ir.Value{cond, ir.Label(topLbl), ir.Label(endLbl)}, Loc: n.Tok.Loc})

	c.fn.Emit(ir.Instruction{Op: ir.OpLabel, Operands: [3]ir.Value{ir.Label(endLbl)}})
}

// compileForC pushes a scope covering the whole loop so the init variable's
// lifetime spans condition, body and step, per spec §4.6's C-style for.
func (c *Compiler) compileForC(p arena.Pos) {
	n := c.tree.Get(p)
	c.scopes.Push(false, false, nil)
	if n.Initializer != arena.Nil {
		c.compileStmt(n.Initializer)
	}

	topLbl, bodyLbl, stepLbl, endLbl := c.fn.AllocLabel(), c.fn.AllocLabel(), c.fn.AllocLabel(), c.fn.AllocLabel()
	c.fn.Emit(ir.Instruction{Op: ir.OpLabel, Operands: [3]ir.Value{ir.Label(topLbl)}})
	if n.Cond != arena.Nil {
		cond := c.compileExpr(n.Cond)
		c.fn.Emit(ir.Instruction{Op: ir.OpBranch, Operands: [3]ir.Value{cond, ir.Label(bodyLbl), ir.Label(endLbl)}, Loc: n.Tok.Loc})
	} else {
		c.fn.Emit(ir.Instruction{Op: ir.OpJump, Operands: [3]ir.Value{ir.Label(bodyLbl)}})
	}

	c.fn.Emit(ir.Instruction{Op: ir.OpLabel, Operands: [3]ir.Value{ir.Label(bodyLbl)}})
	c.loops = append(c.loops, loopCtx{continueLabel: stepLbl, breakLabel: endLbl})
	c.compileBlock(n.Body, true, false)
	c.loops = c.loops[:len(c.loops)-1]

	c.fn.Emit(ir.Instruction{Op: ir.OpLabel, Operands: [3]ir.Value{ir.Label(stepLbl)}})
	if n.LValue != arena.Nil {
		c.compileExpr(n.LValue)
	}
	c.fn.Emit(ir.Instruction{Op: ir.OpJump, Operands: [3]ir.Value{ir.Label(topLbl)}})

	c.fn.Emit(ir.Instruction{Op: ir.OpLabel, Operands: [3]ir.Value{ir.Label(endLbl)}})
	c.emitDtors(c.scopes.Pop())
}

// compileForIn lowers to an index-based loop: the iterable's `length`
// operator method gives the bound, and each element is loaded through
// elementRef, the same addressing index expressions use. There is no
// first-class iterator type (see arrayTypeOf's note on array-of-T
// representation), and an iterable without a `length` operator is rejected.
func (c *Compiler) compileForIn(p arena.Pos) {
	n := c.tree.Get(p)
	iterable := c.compileExpr(n.RValue)

	c.scopes.Push(false, false, nil)
	idx := ir.Reg(c.fn.AllocReg(), c.builtins.U64)
	c.fn.Emit(ir.Instruction{Op: ir.OpAssign, Operands: [3]ir.Value{idx, ir.ImmInt(0, c.builtins.U64)}, Loc: n.Tok.Loc})

	lenFn := c.lookupOperator("length", iterable.Type)
	var length ir.Value
	if lenFn != nil {
		length = ir.Reg(c.fn.AllocReg(), c.builtins.U64)
		c.fn.Emit(ir.Instruction{Op: ir.OpParam, Operands: [3]ir.Value{iterable}})
		c.fn.Emit(ir.Instruction{Op: ir.OpCall, Operands: [3]ir.Value{length, {Kind: ir.ValFunctionRef, Func: lenFn}, ir.ImmInt(1, c.builtins.I32)}})
	} else {
		c.log.Errorf(diag.CodeNoMatch, n.Tok.Loc, "type %q has no length operator for for-in iteration", safeTypeName(iterable.Type))
		length = ir.ImmInt(0, c.builtins.U64)
	}

	topLbl, bodyLbl, stepLbl, endLbl := c.fn.AllocLabel(), c.fn.AllocLabel(), c.fn.AllocLabel(), c.fn.AllocLabel()
	c.fn.Emit(ir.Instruction{Op: ir.OpLabel, Operands: [3]ir.Value{ir.Label(topLbl)}})
	cmp := ir.Reg(c.fn.AllocReg(), c.builtins.Bool)
	c.fn.Emit(ir.Instruction{Op: ir.OpULt, Operands: [3]ir.Value{cmp, idx, length}})
	c.fn.Emit(ir.Instruction{Op: ir.OpBranch, Operands: [3]ir.Value{cmp, ir.Label(bodyLbl), ir.Label(endLbl)}})

	c.fn.Emit(ir.Instruction{Op: ir.OpLabel, Operands: [3]ir.Value{ir.Label(bodyLbl)}})
	c.scopes.Push(true, false, nil)
	elemRef := c.elementRef(iterable, idx)
	elem := ir.Reg(c.fn.AllocReg(), elemRef.Type)
	c.fn.Emit(ir.Instruction{Op: ir.OpLoad, Operands: [3]ir.Value{elem, elemRef}})
	c.declareLocal(n.Name, elemRef.Type, elem)
	c.loops = append(c.loops, loopCtx{continueLabel: stepLbl, breakLabel: endLbl})
	if bodyNode := c.tree.Get(n.Body); bodyNode.Kind == parser.KindBlock {
		for _, s := range c.tree.Siblings(bodyNode.Body) {
			c.compileStmt(s)
		}
	} else {
		c.compileStmt(n.Body)
	}
	c.loops = c.loops[:len(c.loops)-1]
	c.emitDtors(c.scopes.Pop())

	c.fn.Emit(ir.Instruction{Op: ir.OpLabel, Operands: [3]ir.Value{ir.Label(stepLbl)}})
	c.fn.Emit(ir.Instruction{Op: ir.OpIInc, Operands: [3]ir.Value{idx, idx}})
	c.fn.Emit(ir.Instruction{Op: ir.OpJump, Operands: [3]ir.Value{ir.Label(topLbl)}})

	c.fn.Emit(ir.Instruction{Op: ir.OpLabel, Operands: [3]ir.Value{ir.Label(endLbl)}})
	c.emitDtors(c.scopes.Pop())
}

func safeTypeName(t *types.DataType) string {
	if t == nil {
		return "<unknown>"
	}
	return t.Name
}

// compileSwitch lowers to a chain of equality branches against Cond's
// value, one per case, falling through to `default` (if present) or the
// end label when nothing matches. Case bodies do not fall through to the
// next case (spec §4.6 switch has no C-style fallthrough).
func (c *Compiler) compileSwitch(p arena.Pos) {
	n := c.tree.Get(p)
	subject := c.compileExpr(n.Cond)
	endLbl := c.fn.AllocLabel()

	cases := c.tree.Siblings(n.Body)
	labels := make([]ir.LabelID, len(cases))
	var defaultIdx = -1
	for i := range cases {
		labels[i] = c.fn.AllocLabel()
		if c.tree.Get(cases[i]).Cond == arena.Nil {
			defaultIdx = i
		}
	}

	for i, cs := range cases {
		csNode := c.tree.Get(cs)
		if csNode.Cond == arena.Nil {
			continue
		}
		caseVal := c.compileExpr(csNode.Cond)
		t := dominantType(c.builtins, subject.Type, caseVal.Type)
		eqOp, _ := binaryOpcode("==", t)
		eq := ir.Reg(c.fn.AllocReg(), c.builtins.Bool)
		c.fn.Emit(ir.Instruction{Op: eqOp, Operands: [3]ir.Value{eq, subject, caseVal}})
		nextCheck := c.fn.AllocLabel()
		c.fn.Emit(ir.Instruction{Op: ir.OpBranch, Operands: [3]ir.Value{eq, ir.Label(labels[i]), ir.Label(nextCheck)}})
		c.fn.Emit(ir.Instruction{Op: ir.OpLabel, Operands: [3]ir.Value{ir.Label(nextCheck)}})
	}
	if defaultIdx >= 0 {
		c.fn.Emit(ir.Instruction{Op: ir.OpJump, Operands: [3]ir.Value{ir.Label(labels[defaultIdx])}})
	} else {
		c.fn.Emit(ir.Instruction{Op: ir.OpJump, Operands: [3]ir.Value{ir.Label(endLbl)}})
	}

	c.loops = append(c.loops, loopCtx{breakLabel: endLbl})
	for i, cs := range cases {
		csNode := c.tree.Get(cs)
		c.fn.Emit(ir.Instruction{Op: ir.OpLabel, Operands: [3]ir.Value{ir.Label(labels[i])}})
		c.scopes.Push(false, true, nil)
		for _, s := range c.tree.Siblings(csNode.Body) {
			c.compileStmt(s)
		}
		c.emitDtors(c.scopes.Pop())
		c.fn.Emit(ir.Instruction{Op: ir.OpJump, Operands: [3]ir.Value{ir.Label(endLbl)}})
	}
	c.loops = c.loops[:len(c.loops)-1]

	c.fn.Emit(ir.Instruction{Op: ir.OpLabel, Operands: [3]ir.Value{ir.Label(endLbl)}})
}

// compileTry pushes the catch label as the innermost handler before
// compiling the guarded body, so any throw reached while compiling it
// jumps here instead of propagating unconditionally (spec §4.6 throw/try).
func (c *Compiler) compileTry(p arena.Pos) {
	n := c.tree.Get(p)
	endLbl := c.fn.AllocLabel()

	hasCatch := n.ElseBody != arena.Nil
	var catchLbl ir.LabelID
	if hasCatch {
		catchLbl = c.fn.AllocLabel()
		c.handlers = append(c.handlers, catchLbl)
	}

	c.compileBlock(n.Body, false, false)
	c.fn.Emit(ir.Instruction{Op: ir.OpJump, Operands: [3]ir.Value{ir.Label(endLbl)}})

	if hasCatch {
		c.handlers = c.handlers[:len(c.handlers)-1]
		catchNode := c.tree.Get(n.ElseBody)
		c.fn.Emit(ir.Instruction{Op: ir.OpLabel, Operands: [3]ir.Value{ir.Label(catchLbl)}})
		c.scopes.Push(false, false, nil)
		if catchNode.Name != "" {
			slot := c.throwSlot()
			v := ir.Reg(c.fn.AllocReg(), c.builtins.Void)
			c.fn.Emit(ir.Instruction{Op: ir.OpLoad, Operands: [3]ir.Value{v, ir.Slot(slot, c.builtins.Void)}})
			c.declareLocal(catchNode.Name, c.builtins.Void, v)
		}
		catchBlock := c.tree.Get(catchNode.Body)
		for _, s := range c.tree.Siblings(catchBlock.Body) {
			c.compileStmt(s)
		}
		c.emitDtors(c.scopes.Pop())
	}

	c.fn.Emit(ir.Instruction{Op: ir.OpLabel, Operands: [3]ir.Value{ir.Label(endLbl)}})
}

// throwSlot lazily allocates the one stack slot this function uses to pass
// a thrown value from throw site to handler, memoized per FunctionDef since
// a function may contain several try/throw sites but needs only one slot.
func (c *Compiler) throwSlot() int {
	if id, ok := c.throwSlots[c.fn]; ok {
		return id
	}
	id := c.fn.AllocStackSlot(8)
	c.throwSlots[c.fn] = id
	return id
}

func (c *Compiler) compileThrow(p arena.Pos) {
	n := c.tree.Get(p)
	v := c.compileExpr(n.RValue)
	slot := c.throwSlot()
	c.fn.Emit(ir.Instruction{Op: ir.OpStore, Operands: [3]ir.Value{ir.Slot(slot, v.Type), v}, Loc: n.Tok.Loc})
	if len(c.handlers) > 0 {
		c.fn.Emit(ir.Instruction{Op: ir.OpJump, Operands: [3]ir.Value{ir.Label(c.handlers[len(c.handlers)-1])}})
		return
	}
	c.fn.Emit(ir.Instruction{Op: ir.OpThrow, Operands: [3]ir.Value{v}, Loc: n.Tok.Loc})
}

// compileReturn unwinds every open scope (ExitAll, not just to the nearest
// loop), since a return must run every enclosing destructor regardless of
// how many loops or switches it returns out of.
func (c *Compiler) compileReturn(p arena.Pos) {
	n := c.tree.Get(p)
	var v ir.Value
	if n.RValue != arena.Nil {
		v = c.compileExpr(n.RValue)
	}
	c.emitDtors(c.scopes.ExitAll())
	c.fn.Emit(ir.Instruction{Op: ir.OpRet, Operands: [3]ir.Value{v}, Loc: n.Tok.Loc})
}

func (c *Compiler) compileBreakContinue(n *parser.Node, isBreak bool) {
	if len(c.loops) == 0 {
		code := diag.CodeContinueOutsideLoop
		if isBreak {
			code = diag.CodeBreakOutsideLoop
		}
		c.log.Errorf(code, n.Tok.Loc, "%s used outside of a loop", n.Tok.Lexeme)
		return
	}
	top := c.loops[len(c.loops)-1]
	c.emitDtors(c.scopes.ExitScopesTo(isBreak))
	target := top.breakLabel
	if !isBreak {
		target = top.continueLabel
	}
	c.fn.Emit(ir.Instruction{Op: ir.OpJump, Operands: [3]ir.Value{ir.Label(target)}, Loc: n.Tok.Loc})
}

// compileDelete frees a stack allocation made by `new`. Deleting anything
// else is a diagnostic rather than a silent no-op, since the spec's `new`
// is the only construct that produces a freeable value.
func (c *Compiler) compileDelete(p arena.Pos) {
	n := c.tree.Get(p)
	v := c.compileExpr(n.RValue)
	if v.Kind != ir.ValRegister || v.Flags&ir.FlagPointer == 0 {
		c.log.Errorf(diag.CodeInternal, n.Tok.Loc, "delete target is not a heap/stack allocation")
		return
	}
	c.fn.Emit(ir.Instruction{Op: ir.OpStackFree, Operands: [3]ir.Value{v}, Loc: n.Tok.Loc})
}

func (c *Compiler) compileImport(p arena.Pos) {
	// Module graph loading and symbol re-export happen in the pipeline
	// stage ahead of compilation (spec §4.5); by the time CompileModule
	// runs, an import only needs to bind the already-resolved module's
	// exported symbols into this scope under the alias name if given.
	n := c.tree.Get(p)
	alias := n.Name
	if n.Alias != arena.Nil {
		alias = c.tree.Get(n.Alias).Name
	}
	mod := c.scopes.Lookup(n.Name)
	if mod == nil {
		c.log.Errorf(diag.CodeModuleNotFound, n.Tok.Loc, "module %q not resolved before compilation", n.Name)
		return
	}
	c.scopes.Declare(&modgraph.Symbol{Kind: modgraph.SymModule, Name: alias, Module: mod.Module})
}

func (c *Compiler) compileTypeDef(p arena.Pos) {
	n := c.tree.Get(p)
	aliased := c.resolveType(n.DataType)
	alias := &types.DataType{
		Instance:           types.InstAlias,
		Name:               n.Name,
		FullyQualifiedName: c.mod.Name + "." + n.Name,
		AliasOf:            aliased,
	}
	if err := c.types.Add(alias); err != nil {
		c.log.Errorf(diag.CodeInternal, n.Tok.Loc, "%s", errors.Wrapf(err, "declaring typedef %q", n.Name))
		return
	}
	c.scopes.Declare(&modgraph.Symbol{Kind: modgraph.SymType, Name: n.Name, Type: alias})
}

// compileFunctionDecl registers the function's signature, compiles its
// body into a fresh FunctionDef, and appends it to the module. owner is
// non-nil when compiling a class method, so `this` can be bound.
func (c *Compiler) compileFunctionDecl(p arena.Pos, owner *types.DataType) *types.Function {
	n := c.tree.Get(p)
	fn, _ := c.compileFunctionBody(n.Name, n.Parameters, n.Body, n.DataType, owner)
	c.scopes.Declare(&modgraph.Symbol{Kind: modgraph.SymFunctionSet, Name: n.Name, Functions: []*types.Function{fn}})
	return fn
}

// compileFunctionBody is shared by top-level declarations, class methods,
// and function expressions: it builds the Function signature, registers
// it, then compiles the body in a fresh FunctionDef with parameters bound
// as ValArgSlot locals.
func (c *Compiler) compileFunctionBody(name string, paramsPos, bodyPos, retTypePos arena.Pos, owner *types.DataType) (*types.Function, *ir.FunctionDef) {
	params := c.tree.Siblings(paramsPos)
	args := make([]types.Argument, 0, len(params)+1)
	if owner != nil {
		args = append(args, types.Argument{Type: owner, IsImplicit: true})
	}
	paramTypes := make([]*types.DataType, len(params))
	for i, pp := range params {
		pn := c.tree.Get(pp)
		t := c.resolveType(pn.DataType)
		paramTypes[i] = t
		args = append(args, types.Argument{Type: t})
	}
	retType := c.resolveType(retTypePos)

	sig := &types.DataType{Instance: types.InstFunction, ReturnType: retType, Arguments: args, Meta: types.Meta{IsFunction: true}}
	fqn := name
	if owner != nil {
		fqn = owner.FullyQualifiedName + "." + name
	} else if c.mod != nil {
		fqn = c.mod.Name + "." + name
	}
	fn := &types.Function{Name: name, DisplayName: name, FullyQualifiedName: fqn, Signature: sig, Flags: types.FunctionFlags{IsMethod: owner != nil}}
	c.funcs.Add(fn)

	outerFn, outerLoops, outerHandlers := c.fn, c.loops, c.handlers
	c.fn = ir.NewFunctionDef(fqn)
	c.fn.Return = retType
	c.fn.Params = paramTypes
	c.loops = nil
	c.handlers = nil

	c.scopes.Push(false, false, fn)
	argIdx := 0
	if owner != nil {
		c.declareLocal("this", owner, ir.Arg(argIdx, owner))
		argIdx++
	}
	for i, pp := range params {
		pn := c.tree.Get(pp)
		v := ir.Arg(argIdx, paramTypes[i])
		if pn.Initializer != arena.Nil {
			// Default parameter values are applied by the caller-side
			// compilation of a call with fewer arguments than parameters;
			// recording the default here is a follow-up once overload
			// resolution threads default-value info through function_match.
			_ = pn.Initializer
		}
		c.declareLocal(pn.Name, paramTypes[i], v)
		argIdx++
	}

	if bodyNode := c.tree.Get(bodyPos); bodyNode.Kind == parser.KindBlock {
		for _, s := range c.tree.Siblings(bodyNode.Body) {
			c.compileStmt(s)
		}
	} else {
		c.compileStmt(bodyPos)
	}
	c.emitDtors(c.scopes.Pop())
	if len(c.fn.Instructions) == 0 || !c.fn.Instructions[len(c.fn.Instructions)-1].Op.IsTerminator() {
		c.fn.Emit(ir.Instruction{Op: ir.OpRet})
	}

	c.mod.Functions = append(c.mod.Functions, c.fn)
	builtFn := c.fn
	c.fn, c.loops, c.handlers = outerFn, outerLoops, outerHandlers
	return fn, builtFn
}

// compileClassDecl registers the class's DataType (properties from field
// members, methods from function members) and compiles every method body.
// Forward references to classes not yet compiled in the same file are not
// resolved here — that needs the pre-pass hoisting step spec §4.6 calls
// out, not yet wired into this package.
func (c *Compiler) compileClassDecl(p arena.Pos) {
	n := c.tree.Get(p)
	class := &types.DataType{
		Instance:           types.InstClass,
		Name:               n.Name,
		FullyQualifiedName: c.mod.Name + "." + n.Name,
	}

	for _, basePos := range c.tree.Siblings(n.Inheritance) {
		baseNode := c.tree.Get(basePos)
		baseType := c.lookupNamedType(baseNode.Name)
		if baseType == nil {
			c.log.Errorf(diag.CodeNotFound, baseNode.Tok.Loc, "unknown base type %q", baseNode.Name)
			continue
		}
		class.Bases = append(class.Bases, types.Base{Type: baseType, Offset: uint64(class.Size)})
		class.Size += baseType.Size
	}

	var methodDecls []arena.Pos
	for _, m := range c.tree.Siblings(n.Body) {
		mn := c.tree.Get(m)
		if mn.Kind == parser.KindFunctionDecl {
			methodDecls = append(methodDecls, m)
			continue
		}
		t := c.resolveType(mn.DataType)
		class.Properties = append(class.Properties, types.Property{
			Name:   mn.Name,
			Access: accessOf(mn.Flags),
			Offset: uint64(class.Size),
			Type:   t,
		})
		class.Size += t.Size
	}

	if err := c.types.Add(class); err != nil {
		c.log.Errorf(diag.CodeInternal, n.Tok.Loc, "%s", errors.Wrapf(err, "declaring class %q", n.Name))
		return
	}
	c.scopes.Declare(&modgraph.Symbol{Kind: modgraph.SymType, Name: n.Name, Type: class})

	for _, m := range methodDecls {
		mn := c.tree.Get(m)
		method := c.compileFunctionDeclMethod(m, class)
		if mn.Name == "destructor" {
			class.Destructor = method
		}
		class.Methods = append(class.Methods, method)
	}
}

func (c *Compiler) compileFunctionDeclMethod(p arena.Pos, owner *types.DataType) *types.Function {
	n := c.tree.Get(p)
	fn, _ := c.compileFunctionBody(n.Name, n.Parameters, n.Body, n.DataType, owner)
	return fn
}

func accessOf(flags parser.Flags) types.Access {
	if flags.Has(parser.FlagPrivate) {
		return types.Private
	}
	return types.Public
}
