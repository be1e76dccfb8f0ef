// Package ast is the type-checked tree handed to the lowering engine.
// Every identifier is resolved to its declaration and every expression
// carries its C type.
package ast

import (
	"fmt"

	"sicc/pkg/ctype"
)

type Pos struct {
	Line int
}

// Op is an expression operator.
type Op uint8

const (
	Add Op = iota + 1
	Sub
	Mul
	Div
	Mod
	Shl
	Shr
	Lt
	Le
	Gt
	Ge
	Eq
	Ne
	BitAnd
	BitOr
	BitXor
	LogAnd
	LogOr
	Comma

	Neg
	Plus
	Compl
	Not
	Deref
	AddrOf
)

var opNames = map[Op]string{
	Add: "+", Sub: "-", Mul: "*", Div: "/", Mod: "%", Shl: "<<", Shr: ">>",
	Lt: "<", Le: "<=", Gt: ">", Ge: ">=", Eq: "==", Ne: "!=",
	BitAnd: "&", BitOr: "|", BitXor: "^", LogAnd: "&&", LogOr: "||", Comma: ",",
	Neg: "-", Plus: "+", Compl: "~", Not: "!", Deref: "*", AddrOf: "&",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)", int(o))
}

func (o Op) IsRelational() bool { return o >= Lt && o <= Ne }
func (o Op) IsShift() bool      { return o == Shl || o == Shr }

// Decl is a declared object or function.
type Decl struct {
	Name    string
	Type    *ctype.Type
	Storage ctype.Storage
	Pos     Pos

	// Local objects live in the frame at Offset. For a variable-length
	// array Offset is the slot holding the address of its storage.
	Local  bool
	Offset int64
	VLA    bool

	// Sym is the assembler symbol of objects with static storage and of
	// functions.
	Sym string

	Inits   []Init
	Defined bool
}

// Init stores X, converted to Type, at byte offset Off of the object.
type Init struct {
	Off  int64
	Type *ctype.Type
	X    Expr
}

type Func struct {
	Decl      *Decl
	Params    []*Decl
	Body      *Block
	FrameSize int64
	Pos       Pos
}

// Unit is one translation unit.
type Unit struct {
	File    string
	Globals []*Decl
	Funcs   []*Func
	Strings []*StringLit
}
