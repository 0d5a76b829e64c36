package compiler

import (
	"math"

	"tsnc/internal/arena"
	"tsnc/internal/diag"
	"tsnc/internal/ir"
	"tsnc/internal/parser"
	"tsnc/internal/types"
)

// compileExpr lowers one expression node into an IR Value, implementing the
// operator algorithm of spec §4.6: same-effective-type arithmetic emits
// directly, differing primitive types promote through the dominant-type
// rule, a left operand with a matching `operator<op>` method calls it (see
// compileBinary), and everything else falls through to a diagnostic.
func (c *Compiler) compileExpr(p arena.Pos) ir.Value {
	if p == arena.Nil {
		return ir.Value{}
	}
	n := c.tree.Get(p)
	switch n.Kind {
	case parser.KindLiteral:
		return c.compileLiteral(p)
	case parser.KindIdentifierExpr:
		v, t := c.valueOf(n.Name)
		if t == nil {
			c.log.Errorf(diag.CodeNotFound, n.Tok.Loc, "undefined identifier %q", n.Name)
			return ir.ImmInt(0, c.builtins.I32)
		}
		return v
	case parser.KindThisExpr:
		v, _ := c.valueOf("this")
		return v
	case parser.KindSequence:
		var last ir.Value
		for _, e := range c.tree.Siblings(n.Body) {
			last = c.compileExpr(e)
		}
		return last
	case parser.KindAssign:
		return c.compileAssign(p)
	case parser.KindConditional:
		return c.compileConditional(p)
	case parser.KindLogical:
		return c.compileLogical(p)
	case parser.KindBinary:
		return c.compileBinary(p)
	case parser.KindUnaryPrefix:
		return c.compileUnaryPrefix(p)
	case parser.KindUnaryPostfix:
		return c.compileUnaryPostfix(p)
	case parser.KindCall:
		return c.compileCall(p)
	case parser.KindIndex:
		return c.compileIndex(p)
	case parser.KindMember:
		return c.compileMember(p)
	case parser.KindNew:
		return c.compileNew(p)
	case parser.KindSizeof:
		t := c.resolveType(n.DataType)
		return ir.ImmInt(uint64(t.Size), c.builtins.U64)
	case parser.KindArrayLiteral:
		return c.compileArrayLiteral(p)
	case parser.KindObjectLiteral:
		return c.compileObjectLiteral(p)
	case parser.KindFunctionExpr:
		return c.compileFunctionExpr(p)
	default:
		c.log.Errorf(diag.CodeInternal, n.Tok.Loc, "compiler: unhandled expression kind %d", n.Kind)
		return ir.Value{}
	}
}

func (c *Compiler) compileLiteral(p arena.Pos) ir.Value {
	n := c.tree.Get(p)
	switch n.Lit.Kind {
	case parser.LitUnsigned:
		return ir.ImmInt(n.Lit.U, c.builtins.I32)
	case parser.LitSigned:
		return ir.ImmInt(uint64(n.Lit.I), c.builtins.I32)
	case parser.LitFloat:
		return ir.ImmInt(floatBits64(n.Lit.F), c.builtins.F64)
	case parser.LitBool:
		b := uint64(0)
		if n.Lit.B {
			b = 1
		}
		return ir.ImmInt(b, c.builtins.Bool)
	case parser.LitString:
		if n.Body != arena.Nil {
			return c.compileTemplateString(p)
		}
		return ir.Value{Kind: ir.ValImmediate, Type: c.builtins.String, ImmBits: 0}
	default:
		return ir.Value{Type: c.builtins.Void}
	}
}

func floatBits64(f float64) uint64 { return math.Float64bits(f) }

// compileTemplateString concatenates each interpolation part into a single
// string value. A dedicated concat opcode would belong in internal/ir, but
// the spec models string concatenation as a library operation (the `string`
// host type's `+` operator), so when `string` has an `operator+` method each
// step emits a call to it; otherwise each step assigns the next part, and
// the result holds the last part's value.
func (c *Compiler) compileTemplateString(p arena.Pos) ir.Value {
	n := c.tree.Get(p)
	parts := c.tree.Siblings(n.Body)
	if len(parts) == 0 {
		return ir.Value{Kind: ir.ValImmediate, Type: c.builtins.String}
	}
	result := c.compileExpr(parts[0])
	for _, part := range parts[1:] {
		rhs := c.compileExpr(part)
		dest := ir.Reg(c.fn.AllocReg(), c.builtins.String)
		concat := c.lookupOperator("+", c.builtins.String)
		if concat != nil {
			c.fn.Emit(ir.Instruction{Op: ir.OpCall, Operands: [3]ir.Value{dest, {Kind: ir.ValFunctionRef, Func: concat}, {}}})
		} else {
			c.fn.Emit(ir.Instruction{Op: ir.OpAssign, Operands: [3]ir.Value{dest, rhs}})
		}
		result = dest
	}
	return result
}

func (c *Compiler) lookupOperator(op string, t *types.DataType) *types.Function {
	for _, m := range t.Methods {
		if m.Name == "operator"+op {
			return m
		}
	}
	return nil
}

func (c *Compiler) compileAssign(p arena.Pos) ir.Value {
	n := c.tree.Get(p)
	target := c.tree.Get(n.LValue)
	rhs := c.compileExpr(n.RValue)

	if n.Op != "=" {
		cur := c.compileExpr(n.LValue)
		base := n.Op[:len(n.Op)-1] // "+=" -> "+"
		t := dominantType(c.builtins, cur.Type, rhs.Type)
		op, ok := binaryOpcode(base, t)
		if !ok {
			c.log.Errorf(diag.CodeInternal, n.Tok.Loc, "unsupported compound assignment %q", n.Op)
			return cur
		}
		dest := ir.Reg(c.fn.AllocReg(), t)
		c.fn.Emit(ir.Instruction{Op: op, Operands: [3]ir.Value{dest, cur, rhs}, Loc: n.Tok.Loc})
		rhs = dest
	}

	switch target.Kind {
	case parser.KindIdentifierExpr:
		v, t := c.valueOf(target.Name)
		if t == nil {
			c.log.Errorf(diag.CodeNotFound, target.Tok.Loc, "undefined identifier %q", target.Name)
			return rhs
		}
		c.fn.Emit(ir.Instruction{Op: ir.OpAssign, Operands: [3]ir.Value{v, rhs}, Loc: n.Tok.Loc})
		return v
	case parser.KindIndex:
		base := c.compileExpr(target.RValue)
		idx := c.compileExpr(target.LValue)
		c.fn.Emit(ir.Instruction{Op: ir.OpStore, Operands: [3]ir.Value{c.elementRef(base, idx), rhs}, Loc: n.Tok.Loc})
		return rhs
	case parser.KindMember:
		base := c.compileExpr(target.RValue)
		ref := c.memberRef(base, target.Name)
		c.fn.Emit(ir.Instruction{Op: ir.OpStore, Operands: [3]ir.Value{ref, rhs}, Loc: n.Tok.Loc})
		return rhs
	default:
		c.log.Errorf(diag.CodeNotWritable, target.Tok.Loc, "expression is not assignable")
		return rhs
	}
}

func (c *Compiler) compileConditional(p arena.Pos) ir.Value {
	n := c.tree.Get(p)
	cond := c.compileExpr(n.Cond)
	thenLbl, elseLbl, endLbl := c.fn.AllocLabel(), c.fn.AllocLabel(), c.fn.AllocLabel()
	c.fn.Emit(ir.Instruction{Op: ir.OpBranch, Operands: [3]ir.Value{cond, ir.Label(thenLbl), ir.Label(elseLbl)}, Loc: n.Tok.Loc})

	c.fn.Emit(ir.Instruction{Op: ir.OpLabel, Operands: [3]ir.Value{ir.Label(thenLbl)}})
	thenVal := c.compileExpr(n.LValue)
	result := ir.Reg(c.fn.AllocReg(), thenVal.Type)
	c.fn.Emit(ir.Instruction{Op: ir.OpAssign, Operands: [3]ir.Value{result, thenVal}})
	c.fn.Emit(ir.Instruction{Op: ir.OpJump, Operands: [3]ir.Value{ir.Label(endLbl)}})

	c.fn.Emit(ir.Instruction{Op: ir.OpLabel, Operands: [3]ir.Value{ir.Label(elseLbl)}})
	elseVal := c.compileExpr(n.RValue)
	c.fn.Emit(ir.Instruction{Op: ir.OpAssign, Operands: [3]ir.Value{result, elseVal}})

	c.fn.Emit(ir.Instruction{Op: ir.OpLabel, Operands: [3]ir.Value{ir.Label(endLbl)}})
	return result
}

// compileLogical short-circuits && and ||, matching the control-flow shape
// if/conditional already use rather than evaluating both sides unguarded.
func (c *Compiler) compileLogical(p arena.Pos) ir.Value {
	n := c.tree.Get(p)
	lhs := c.compileExpr(n.LValue)
	result := ir.Reg(c.fn.AllocReg(), c.builtins.Bool)
	c.fn.Emit(ir.Instruction{Op: ir.OpAssign, Operands: [3]ir.Value{result, lhs}})

	shortLbl, evalLbl, endLbl := c.fn.AllocLabel(), c.fn.AllocLabel(), c.fn.AllocLabel()
	if n.Op == "&&" {
		c.fn.Emit(ir.Instruction{Op: ir.OpBranch, Operands: [3]ir.Value{lhs, ir.Label(evalLbl), ir.Label(shortLbl)}})
	} else {
		c.fn.Emit(ir.Instruction{Op: ir.OpBranch, Operands: [3]ir.Value{lhs, ir.Label(shortLbl), ir.Label(evalLbl)}})
	}

	c.fn.Emit(ir.Instruction{Op: ir.OpLabel, Operands: [3]ir.Value{ir.Label(evalLbl)}})
	rhs := c.compileExpr(n.RValue)
	c.fn.Emit(ir.Instruction{Op: ir.OpAssign, Operands: [3]ir.Value{result, rhs}})
	c.fn.Emit(ir.Instruction{Op: ir.OpJump, Operands: [3]ir.Value{ir.Label(endLbl)}})

	c.fn.Emit(ir.Instruction{Op: ir.OpLabel, Operands: [3]ir.Value{ir.Label(shortLbl)}})
	c.fn.Emit(ir.Instruction{Op: ir.OpLabel, Operands: [3]ir.Value{ir.Label(endLbl)}})
	return result
}

func (c *Compiler) compileBinary(p arena.Pos) ir.Value {
	n := c.tree.Get(p)
	lhs := c.compileExpr(n.LValue)
	rhs := c.compileExpr(n.RValue)

	isNumeric := func(t *types.DataType) bool {
		return t != nil && t.Meta.Primitive && t.Family != types.FamilyNone
	}
	if isNumeric(lhs.Type) && isNumeric(rhs.Type) {
		t := dominantType(c.builtins, lhs.Type, rhs.Type)
		op, ok := binaryOpcode(n.Op, t)
		if ok {
			destType := t
			if comparisonOps[n.Op] {
				destType = c.builtins.Bool
			}
			dest := ir.Reg(c.fn.AllocReg(), destType)
			c.fn.Emit(ir.Instruction{Op: op, Operands: [3]ir.Value{dest, lhs, rhs}, Loc: n.Tok.Loc})
			return dest
		}
	}

	// Neither operand's type is a primitive pair the arithmetic table
	// covers: fall through to user-defined operator-method dispatch. The
	// first method named `operator<op>` on the left operand's type is
	// called; there is no overload resolution against the right operand's
	// type and no ambiguity check.
	if lhs.Type != nil {
		if m := c.lookupOperator(n.Op, lhs.Type); m != nil {
			dest := ir.Reg(c.fn.AllocReg(), m.ReturnType())
			c.fn.Emit(ir.Instruction{Op: ir.OpCall, Operands: [3]ir.Value{dest, {Kind: ir.ValFunctionRef, Func: m}, rhs}, Loc: n.Tok.Loc})
			return dest
		}
	}
	c.log.Errorf(diag.CodeNoMatch, n.Tok.Loc, "no operator %q for the given operand types", n.Op)
	return ir.Value{}
}

func (c *Compiler) compileUnaryPrefix(p arena.Pos) ir.Value {
	n := c.tree.Get(p)
	operand := c.compileExpr(n.RValue)
	switch n.Op {
	case "!":
		dest := ir.Reg(c.fn.AllocReg(), c.builtins.Bool)
		c.fn.Emit(ir.Instruction{Op: ir.OpNot, Operands: [3]ir.Value{dest, operand}, Loc: n.Tok.Loc})
		return dest
	case "~":
		dest := ir.Reg(c.fn.AllocReg(), operand.Type)
		c.fn.Emit(ir.Instruction{Op: ir.OpInv, Operands: [3]ir.Value{dest, operand}, Loc: n.Tok.Loc})
		return dest
	case "+":
		return operand
	case "-":
		op, _ := unaryOpcode("neg", operand.Type)
		dest := ir.Reg(c.fn.AllocReg(), operand.Type)
		c.fn.Emit(ir.Instruction{Op: op, Operands: [3]ir.Value{dest, operand}, Loc: n.Tok.Loc})
		return dest
	case "++", "--":
		op, _ := unaryOpcode(n.Op, operand.Type)
		c.fn.Emit(ir.Instruction{Op: op, Operands: [3]ir.Value{operand, operand}, Loc: n.Tok.Loc})
		return operand
	}
	return operand
}

// compileUnaryPostfix returns the pre-increment value, matching `x++`
// semantics: the old value is the expression's result, but the variable is
// still mutated in place.
func (c *Compiler) compileUnaryPostfix(p arena.Pos) ir.Value {
	n := c.tree.Get(p)
	operand := c.compileExpr(n.RValue)
	old := ir.Reg(c.fn.AllocReg(), operand.Type)
	c.fn.Emit(ir.Instruction{Op: ir.OpAssign, Operands: [3]ir.Value{old, operand}})
	op, _ := unaryOpcode(n.Op, operand.Type)
	c.fn.Emit(ir.Instruction{Op: op, Operands: [3]ir.Value{operand, operand}, Loc: n.Tok.Loc})
	return old
}

func (c *Compiler) compileCall(p arena.Pos) ir.Value {
	n := c.tree.Get(p)
	callee := c.tree.Get(n.RValue)

	var name string
	var implicitThis *ir.Value
	switch callee.Kind {
	case parser.KindIdentifierExpr:
		name = callee.Name
	case parser.KindMember:
		name = callee.Name
		thisVal := c.compileExpr(callee.RValue)
		implicitThis = &thisVal
	default:
		c.log.Errorf(diag.CodeInternal, n.Tok.Loc, "unsupported call target")
		return ir.Value{}
	}

	argPositions := c.tree.Siblings(n.Parameters)
	argVals := make([]ir.Value, 0, len(argPositions))
	argTypes := make([]*types.DataType, 0, len(argPositions))
	for _, a := range argPositions {
		v := c.compileExpr(a)
		argVals = append(argVals, v)
		argTypes = append(argTypes, v.Type)
	}

	candidates := c.funcs.ByName(name)
	flags := types.MatchFlags(0)
	if implicitThis != nil {
		flags |= types.MatchSkipImplicitArgs
	}
	matches := types.Match(name, nil, argTypes, candidates, flags)
	if len(matches) != 1 {
		if len(matches) == 0 {
			c.log.Errorf(diag.CodeNoMatch, n.Tok.Loc, "no matching function %q", name)
		} else {
			c.log.Errorf(diag.CodeOverloadAmbiguous, n.Tok.Loc, "call to %q is ambiguous", name)
		}
		return ir.Value{}
	}
	fn := matches[0]

	for _, a := range argVals {
		c.fn.Emit(ir.Instruction{Op: ir.OpParam, Operands: [3]ir.Value{a}})
	}
	if implicitThis != nil {
		c.fn.Emit(ir.Instruction{Op: ir.OpParam, Operands: [3]ir.Value{*implicitThis}})
	}

	dest := ir.Value{}
	if fn.ReturnType() != nil && fn.ReturnType() != c.builtins.Void {
		dest = ir.Reg(c.fn.AllocReg(), fn.ReturnType())
	}
	c.fn.Emit(ir.Instruction{
		Op:       ir.OpCall,
		Operands: [3]ir.Value{dest, {Kind: ir.ValFunctionRef, Func: fn}, ir.ImmInt(uint64(len(argVals)), c.builtins.I32)},
		Loc:      n.Tok.Loc,
	})
	return dest
}

// elementRef and memberRef build the addressable Value an index/member
// access loads from or stores into. A constant index or a resolved member
// copies the base Value, flags it as a pointer and records the constant
// offset in its SlotRef field, rather than using a dedicated "computed
// address" Value variant; a non-constant index yields a fresh pointer
// register holding base + idx.
func (c *Compiler) elementRef(base, idx ir.Value) ir.Value {
	if idx.Kind == ir.ValImmediate {
		ref := base
		ref.SlotRef = uint32(idx.ImmBits)
		ref.Flags |= ir.FlagPointer
		return ref
	}
	// Dynamic index: fold base and offset into a fresh pointer register
	// rather than the static SlotRef field, which only holds a constant
	// offset. Element-size scaling belongs to the backend's address-mode
	// lowering once it knows the target's pointer width.
	addr := ir.Reg(c.fn.AllocReg(), base.Type)
	addr.Flags |= ir.FlagPointer
	op, _ := binaryOpcode("+", c.builtins.U64)
	c.fn.Emit(ir.Instruction{Op: op, Operands: [3]ir.Value{addr, base, idx}})
	return addr
}

func (c *Compiler) memberRef(base ir.Value, name string) ir.Value {
	ref := base
	ref.Flags |= ir.FlagPointer
	if base.Type != nil {
		if prop := base.Type.GetProperty(name, false, false); prop != nil {
			ref.Type = prop.Type
			ref.SlotRef = uint32(prop.Offset)
		}
	}
	return ref
}

func (c *Compiler) compileIndex(p arena.Pos) ir.Value {
	n := c.tree.Get(p)
	base := c.compileExpr(n.RValue)
	idx := c.compileExpr(n.LValue)
	ref := c.elementRef(base, idx)
	elemType := c.builtins.Void
	if base.Type != nil {
		elemType = base.Type // array element type isn't separately tracked; see arrayTypeOf.
	}
	dest := ir.Reg(c.fn.AllocReg(), elemType)
	c.fn.Emit(ir.Instruction{Op: ir.OpLoad, Operands: [3]ir.Value{dest, ref}, Loc: n.Tok.Loc})
	return dest
}

func (c *Compiler) compileMember(p arena.Pos) ir.Value {
	n := c.tree.Get(p)
	base := c.compileExpr(n.RValue)
	ref := c.memberRef(base, n.Name)
	dest := ir.Reg(c.fn.AllocReg(), ref.Type)
	c.fn.Emit(ir.Instruction{Op: ir.OpLoad, Operands: [3]ir.Value{dest, ref}, Loc: n.Tok.Loc})
	return dest
}

func (c *Compiler) compileNew(p arena.Pos) ir.Value {
	n := c.tree.Get(p)
	t := c.resolveType(n.DataType)
	c.fn.AllocStackSlot(t.Size)
	dest := ir.Reg(c.fn.AllocReg(), t)
	dest.Flags |= ir.FlagPointer
	c.fn.Emit(ir.Instruction{Op: ir.OpStackAllocate, Operands: [3]ir.Value{dest, ir.ImmInt(uint64(t.Size), c.builtins.U64)}, Loc: n.Tok.Loc})

	args := c.tree.Siblings(n.Parameters)
	argVals := make([]ir.Value, 0, len(args))
	argTypes := make([]*types.DataType, 0, len(args))
	for _, a := range args {
		v := c.compileExpr(a)
		argVals = append(argVals, v)
		argTypes = append(argTypes, v.Type)
	}
	ctorCandidates := make([]*types.Function, 0)
	for _, m := range t.Methods {
		if m.Name == "constructor" {
			ctorCandidates = append(ctorCandidates, m)
		}
	}
	matches := types.Match("constructor", nil, argTypes, ctorCandidates, types.MatchSkipImplicitArgs)
	if len(matches) == 1 {
		for _, a := range argVals {
			c.fn.Emit(ir.Instruction{Op: ir.OpParam, Operands: [3]ir.Value{a}})
		}
		c.fn.Emit(ir.Instruction{Op: ir.OpParam, Operands: [3]ir.Value{dest}})
		c.fn.Emit(ir.Instruction{Op: ir.OpCall, Operands: [3]ir.Value{{}, {Kind: ir.ValFunctionRef, Func: matches[0]}, ir.ImmInt(uint64(len(argVals)), c.builtins.I32)}, Loc: n.Tok.Loc})
	} else if len(args) > 0 {
		c.log.Errorf(diag.CodeNoMatch, n.Tok.Loc, "no matching constructor for %q", t.Name)
	}
	return dest
}

func (c *Compiler) compileArrayLiteral(p arena.Pos) ir.Value {
	n := c.tree.Get(p)
	elems := c.tree.Siblings(n.Body)
	vals := make([]ir.Value, len(elems))
	var elemType *types.DataType
	for i, e := range elems {
		vals[i] = c.compileExpr(e)
		if elemType == nil {
			elemType = vals[i].Type
		}
	}
	arrT := c.arrayTypeOf(elemType)
	c.fn.AllocStackSlot(arrT.Size + uint32(len(elems))*elementSize(elemType))
	base := ir.Reg(c.fn.AllocReg(), arrT)
	base.Flags |= ir.FlagPointer
	c.fn.Emit(ir.Instruction{Op: ir.OpStackAllocate, Operands: [3]ir.Value{base, ir.ImmInt(uint64(arrT.Size), c.builtins.U64)}})
	for i, v := range vals {
		ref := base
		ref.SlotRef = uint32(i)
		c.fn.Emit(ir.Instruction{Op: ir.OpStore, Operands: [3]ir.Value{ref, v}})
	}
	return base
}

func elementSize(t *types.DataType) uint32 {
	if t == nil {
		return 8
	}
	return t.Size
}

func (c *Compiler) compileObjectLiteral(p arena.Pos) ir.Value {
	n := c.tree.Get(p)
	fields := c.tree.Siblings(n.Body)
	objT := &types.DataType{Instance: types.InstPlain, Name: "object", Size: uint32(len(fields)) * 8}
	base := ir.Reg(c.fn.AllocReg(), objT)
	base.Flags |= ir.FlagPointer
	c.fn.Emit(ir.Instruction{Op: ir.OpStackAllocate, Operands: [3]ir.Value{base, ir.ImmInt(uint64(objT.Size), c.builtins.U64)}})
	for i, f := range fields {
		fn := c.tree.Get(f)
		v := c.compileExpr(fn.Initializer)
		ref := base
		ref.SlotRef = uint32(i)
		c.fn.Emit(ir.Instruction{Op: ir.OpStore, Operands: [3]ir.Value{ref, v}})
	}
	return base
}

// compileFunctionExpr lowers an anonymous (or named) function expression
// into its own FunctionDef appended to the module, returning a
// function-reference Value at the definition site — spec §4.6 treats a
// function expression the same as a hoisted declaration once compiled.
func (c *Compiler) compileFunctionExpr(p arena.Pos) ir.Value {
	n := c.tree.Get(p)
	name := n.Name
	if name == "" {
		name = "<anonymous>"
	}
	fnSym, _ := c.compileFunctionBody(name, n.Parameters, n.Body, n.DataType, nil)
	return ir.Value{Kind: ir.ValFunctionRef, Func: fnSym, Type: fnSym.ReturnType()}
}
