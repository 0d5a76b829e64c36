// Package parser implements the recursive-descent grammar of spec §4.2 over
// a transactional token cursor, producing a fixed-width arena-resident AST
// (spec §3 "AST node").
package parser

import (
	"tsnc/internal/arena"
	"tsnc/internal/lexer"
)

type Kind int

const (
	KindError Kind = iota
	KindProgram
	KindBlock
	KindIf
	KindWhile
	KindDoWhile
	KindForC
	KindForIn
	KindSwitch
	KindCase
	KindTry
	KindCatch
	KindReturn
	KindBreak
	KindContinue
	KindDelete
	KindThrow
	KindImport
	KindExport
	KindVarDecl
	KindFunctionDecl
	KindClassDecl
	KindTypeDef
	KindParam
	KindExpressionStmt

	KindSequence
	KindAssign
	KindConditional
	KindLogical
	KindBinary
	KindUnaryPrefix
	KindUnaryPostfix
	KindCall
	KindIndex
	KindMember
	KindNew
	KindSizeof
	KindIdentifierExpr
	KindThisExpr
	KindLiteral
	KindArrayLiteral
	KindObjectLiteral
	KindFunctionExpr
	KindTypeRef
)

// Flags mirrors the flag word of spec §3.
type Flags uint16

const (
	FlagConst Flags = 1 << iota
	FlagStatic
	FlagPrivate
	FlagArray
	FlagPointer
	FlagGetter
	FlagSetter
	FlagDeferCond // do-while: condition evaluated after body
	FlagDetached  // template-cloned node
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// LiteralKind tags which arm of the literal-value sum is populated.
type LiteralKind int

const (
	LitNone LiteralKind = iota
	LitUnsigned
	LitSigned
	LitFloat
	LitString
	LitBool
)

type Literal struct {
	Kind LiteralKind
	U    uint64
	I    int64
	F    float64
	S    string
	B    bool
}

// Node is the fixed-width AST record of spec §3. Children are referenced by
// arena.Pos rather than by Go pointer so the whole tree can be relocated
// (cloned for template instantiation) by copying its nodes in allocation
// order with no id rewriting, and so serialization can walk it without
// pointer chasing through interfaces.
type Node struct {
	Kind    Kind
	Tok     lexer.Token
	Lit     Literal
	Flags   Flags
	Op      string // operator text for Binary/Logical/Unary/Assign nodes

	DataType      arena.Pos
	LValue        arena.Pos
	RValue        arena.Pos
	Cond          arena.Pos
	Body          arena.Pos
	ElseBody      arena.Pos
	Initializer   arena.Pos
	Parameters    arena.Pos
	TemplateParams arena.Pos
	Modifier      arena.Pos
	Alias         arena.Pos
	Inheritance   arena.Pos
	Next          arena.Pos

	Name string // identifier/property/param name where applicable
}

// Tree owns the arena backing one compile's (or one template clone's) AST.
type Tree struct {
	Nodes *arena.Arena[Node]
	Root  arena.Pos
}

func NewTree() *Tree {
	return &Tree{Nodes: &arena.Arena[Node]{}}
}

func (t *Tree) New(kind Kind, tok lexer.Token) arena.Pos {
	p, n := t.Nodes.New()
	n.Kind = kind
	n.Tok = tok
	n.Next = arena.Nil
	n.DataType, n.LValue, n.RValue, n.Cond = arena.Nil, arena.Nil, arena.Nil, arena.Nil
	n.Body, n.ElseBody, n.Initializer, n.Parameters = arena.Nil, arena.Nil, arena.Nil, arena.Nil
	n.TemplateParams, n.Modifier, n.Alias, n.Inheritance = arena.Nil, arena.Nil, arena.Nil, arena.Nil
	return p
}

func (t *Tree) Get(p arena.Pos) *Node { return t.Nodes.Get(p) }

// Error returns a sentinel node of kind error, per the parser's errorNode()
// helper (spec §4.2).
func (t *Tree) Error(tok lexer.Token) arena.Pos { return t.New(KindError, tok) }

// AppendSibling threads b onto the end of a's Next-chain, or returns b alone
// if a is Nil, implementing the `next` sibling list of spec §3.
func (t *Tree) AppendSibling(a, b arena.Pos) arena.Pos {
	if a == arena.Nil {
		return b
	}
	cur := a
	for t.Get(cur).Next != arena.Nil {
		cur = t.Get(cur).Next
	}
	t.Get(cur).Next = b
	return a
}

// Siblings collects a Next-chain into a slice, for callers that want
// random access instead of walking links by hand.
func (t *Tree) Siblings(head arena.Pos) []arena.Pos {
	var out []arena.Pos
	for p := head; p != arena.Nil; p = t.Get(p).Next {
		out = append(out, p)
	}
	return out
}
