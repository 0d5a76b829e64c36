package ir

// Opcode enumerates the IR operations of spec §3 "IR instruction".
type Opcode int

const (
	OpNoop Opcode = iota
	OpLabel
	OpStackAllocate
	OpStackFree
	OpModuleData
	OpReserve
	OpResolve
	OpLoad
	OpStore
	OpJump
	OpCvt
	OpParam
	OpCall
	OpRet
	OpBranch
	OpAssign
	OpThrow

	// Arithmetic/comparison, each with signed/unsigned/f32/f64 variants.
	OpIAdd
	OpUAdd
	OpF32Add
	OpF64Add
	OpISub
	OpUSub
	OpF32Sub
	OpF64Sub
	OpIMul
	OpUMul
	OpF32Mul
	OpF64Mul
	OpIDiv
	OpUDiv
	OpF32Div
	OpF64Div
	OpIMod
	OpUMod
	OpF32Mod
	OpF64Mod
	OpILt
	OpULt
	OpF32Lt
	OpF64Lt
	OpILte
	OpULte
	OpF32Lte
	OpF64Lte
	OpIGt
	OpUGt
	OpF32Gt
	OpF64Gt
	OpIGte
	OpUGte
	OpF32Gte
	OpF64Gte
	OpIEq
	OpUEq
	OpF32Eq
	OpF64Eq
	OpINeq
	OpUNeq
	OpF32Neq
	OpF64Neq
	OpIInc
	OpUInc
	OpF32Inc
	OpF64Inc
	OpIDec
	OpUDec
	OpF32Dec
	OpF64Dec
	OpINeg
	OpUNeg
	OpF32Neg
	OpF64Neg

	OpNot
	OpInv
	OpShl
	OpShr
	OpLAnd
	OpLOr
	OpBAnd
	OpBOr
	OpXor
)

// OperandKind constrains what an opcode's operand slot may hold.
type OperandKind int

const (
	OperandNil OperandKind = iota
	OperandImm
	OperandLabel
	OperandReg
	OperandVal // any Value variant
	OperandFun
)

// Descriptor is the static shape of one opcode: how many operands it takes,
// what kind each must be, and which operand (if any) is the instruction's
// assigned destination.
type Descriptor struct {
	Name       string
	OperandCnt int
	Operands   [3]OperandKind
	DestIndex  int // -1 if the opcode has no destination
}

var descriptors = map[Opcode]Descriptor{
	OpNoop:          {"noop", 0, [3]OperandKind{}, -1},
	OpLabel:         {"label", 1, [3]OperandKind{OperandLabel}, -1},
	OpStackAllocate: {"stack_allocate", 2, [3]OperandKind{OperandReg, OperandImm}, 0},
	OpStackFree:     {"stack_free", 1, [3]OperandKind{OperandReg}, -1},
	OpModuleData:    {"module_data", 2, [3]OperandKind{OperandReg, OperandImm}, 0},
	OpReserve:       {"reserve", 1, [3]OperandKind{OperandReg}, 0},
	OpResolve:       {"resolve", 2, [3]OperandKind{OperandReg, OperandVal}, 0},
	OpLoad:          {"load", 2, [3]OperandKind{OperandReg, OperandVal}, 0},
	OpStore:         {"store", 2, [3]OperandKind{OperandVal, OperandVal}, -1},
	OpJump:          {"jump", 1, [3]OperandKind{OperandLabel}, -1},
	OpCvt:           {"cvt", 2, [3]OperandKind{OperandReg, OperandVal}, 0},
	OpParam:         {"param", 1, [3]OperandKind{OperandVal}, -1},
	OpCall:          {"call", 3, [3]OperandKind{OperandReg, OperandFun, OperandImm}, 0},
	OpRet:           {"ret", 1, [3]OperandKind{OperandVal}, -1},
	OpBranch:        {"branch", 3, [3]OperandKind{OperandVal, OperandLabel, OperandLabel}, -1},
	OpAssign:        {"assign", 2, [3]OperandKind{OperandReg, OperandVal}, 0},
	OpThrow:         {"throw", 1, [3]OperandKind{OperandVal}, -1},
	OpNot:           {"not", 2, [3]OperandKind{OperandReg, OperandVal}, 0},
	OpInv:           {"inv", 2, [3]OperandKind{OperandReg, OperandVal}, 0},
	OpShl:           {"shl", 3, [3]OperandKind{OperandReg, OperandVal, OperandVal}, 0},
	OpShr:           {"shr", 3, [3]OperandKind{OperandReg, OperandVal, OperandVal}, 0},
	OpLAnd:          {"land", 3, [3]OperandKind{OperandReg, OperandVal, OperandVal}, 0},
	OpLOr:           {"lor", 3, [3]OperandKind{OperandReg, OperandVal, OperandVal}, 0},
	OpBAnd:          {"band", 3, [3]OperandKind{OperandReg, OperandVal, OperandVal}, 0},
	OpBOr:           {"bor", 3, [3]OperandKind{OperandReg, OperandVal, OperandVal}, 0},
	OpXor:           {"xor", 3, [3]OperandKind{OperandReg, OperandVal, OperandVal}, 0},
}

func init() {
	type binArith struct {
		op   Opcode
		name string
	}
	binaryOps := []binArith{
		{OpIAdd, "iadd"}, {OpUAdd, "uadd"}, {OpF32Add, "fadd32"}, {OpF64Add, "fadd64"},
		{OpISub, "isub"}, {OpUSub, "usub"}, {OpF32Sub, "fsub32"}, {OpF64Sub, "fsub64"},
		{OpIMul, "imul"}, {OpUMul, "umul"}, {OpF32Mul, "fmul32"}, {OpF64Mul, "fmul64"},
		{OpIDiv, "idiv"}, {OpUDiv, "udiv"}, {OpF32Div, "fdiv32"}, {OpF64Div, "fdiv64"},
		{OpIMod, "imod"}, {OpUMod, "umod"}, {OpF32Mod, "fmod32"}, {OpF64Mod, "fmod64"},
		{OpILt, "ilt"}, {OpULt, "ult"}, {OpF32Lt, "flt32"}, {OpF64Lt, "flt64"},
		{OpILte, "ilte"}, {OpULte, "ulte"}, {OpF32Lte, "flte32"}, {OpF64Lte, "flte64"},
		{OpIGt, "igt"}, {OpUGt, "ugt"}, {OpF32Gt, "fgt32"}, {OpF64Gt, "fgt64"},
		{OpIGte, "igte"}, {OpUGte, "ugte"}, {OpF32Gte, "fgte32"}, {OpF64Gte, "fgte64"},
		{OpIEq, "ieq"}, {OpUEq, "ueq"}, {OpF32Eq, "feq32"}, {OpF64Eq, "feq64"},
		{OpINeq, "ineq"}, {OpUNeq, "uneq"}, {OpF32Neq, "fneq32"}, {OpF64Neq, "fneq64"},
	}
	for _, b := range binaryOps {
		descriptors[b.op] = Descriptor{b.name, 3, [3]OperandKind{OperandReg, OperandVal, OperandVal}, 0}
	}

	unaryOps := []binArith{
		{OpIInc, "iinc"}, {OpUInc, "uinc"}, {OpF32Inc, "finc32"}, {OpF64Inc, "finc64"},
		{OpIDec, "idec"}, {OpUDec, "udec"}, {OpF32Dec, "fdec32"}, {OpF64Dec, "fdec64"},
		{OpINeg, "ineg"}, {OpUNeg, "uneg"}, {OpF32Neg, "fneg32"}, {OpF64Neg, "fneg64"},
	}
	for _, u := range unaryOps {
		descriptors[u.op] = Descriptor{u.name, 2, [3]OperandKind{OperandReg, OperandVal}, 0}
	}
}

func (op Opcode) Descriptor() Descriptor { return descriptors[op] }
func (op Opcode) String() string         { return descriptors[op].Name }

// IsTerminator reports whether op ends a basic block (spec §4.7).
func (op Opcode) IsTerminator() bool {
	return op == OpJump || op == OpBranch || op == OpRet || op == OpThrow
}
