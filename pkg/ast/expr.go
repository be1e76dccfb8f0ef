package ast

import (
	"fmt"
	"strconv"
	"strings"

	"sicc/pkg/ctype"
)

// Expr is a typed expression.
type Expr interface {
	Type() *ctype.Type
	Pos() Pos
	String() string
	exprNode()
}

// Node carries the position and type shared by every expression.
type Node struct {
	P Pos
	T *ctype.Type
}

func (n *Node) Type() *ctype.Type { return n.T }
func (n *Node) Pos() Pos          { return n.P }
func (n *Node) exprNode()         {}

type Ident struct {
	Node
	Decl *Decl
}

type IntLit struct {
	Node
	Value uint64
}

type FloatLit struct {
	Node
	Value float64
}

// StringLit is a string literal stored as a static char array named Sym.
type StringLit struct {
	Node
	Value string
	Sym   string
}

type Unary struct {
	Node
	Op Op
	X  Expr
}

type Binary struct {
	Node
	Op   Op
	X, Y Expr
}

// Assign is "=" when Op is zero and a compound assignment otherwise.
type Assign struct {
	Node
	Op       Op
	LHS, RHS Expr
}

type IncDec struct {
	Node
	Inc  bool
	Post bool
	X    Expr
}

type Cond struct {
	Node
	C, Then, Else Expr
}

// Cast converts X to the node's type.
type Cast struct {
	Node
	X Expr
}

type Member struct {
	Node
	X     Expr
	Arrow bool
	Field *ctype.Member
}

type Index struct {
	Node
	X, Idx Expr
}

type Call struct {
	Node
	Fn   *Decl
	Args []Expr
}

// SizeofType is sizeof applied to a variable-length array type; other
// sizeof expressions are folded to IntLit by the front end.
type SizeofType struct {
	Node
	Of *ctype.Type
}

func (e *Ident) String() string     { return e.Decl.Name }
func (e *IntLit) String() string    { return strconv.FormatUint(e.Value, 10) }
func (e *FloatLit) String() string  { return strconv.FormatFloat(e.Value, 'g', -1, 64) }
func (e *StringLit) String() string { return strconv.Quote(e.Value) }
func (e *Unary) String() string     { return fmt.Sprintf("(%s%s)", e.Op, e.X) }
func (e *Binary) String() string    { return fmt.Sprintf("(%s %s %s)", e.X, e.Op, e.Y) }
func (e *Assign) String() string {
	op := "="
	if e.Op != 0 {
		op = e.Op.String() + "="
	}
	return fmt.Sprintf("(%s %s %s)", e.LHS, op, e.RHS)
}
func (e *IncDec) String() string {
	op := "--"
	if e.Inc {
		op = "++"
	}
	if e.Post {
		return fmt.Sprintf("(%s%s)", e.X, op)
	}
	return fmt.Sprintf("(%s%s)", op, e.X)
}
func (e *Cond) String() string { return fmt.Sprintf("(%s ? %s : %s)", e.C, e.Then, e.Else) }
func (e *Cast) String() string { return fmt.Sprintf("((%s)%s)", e.T, e.X) }
func (e *Member) String() string {
	if e.Arrow {
		return fmt.Sprintf("%s->%s", e.X, e.Field.Name)
	}
	return fmt.Sprintf("%s.%s", e.X, e.Field.Name)
}
func (e *Index) String() string { return fmt.Sprintf("%s[%s]", e.X, e.Idx) }
func (e *Call) String() string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", e.Fn.Name, strings.Join(args, ", "))
}
func (e *SizeofType) String() string { return fmt.Sprintf("sizeof(%s)", e.Of) }

// NewInt builds an integer literal of type t.
func NewInt(pos Pos, t *ctype.Type, v uint64) *IntLit {
	return &IntLit{Node: Node{P: pos, T: t}, Value: v}
}

// IsNullPointerConstant reports whether e is an integer constant zero,
// optionally cast to void *.
func IsNullPointerConstant(e Expr) bool {
	switch x := e.(type) {
	case *IntLit:
		return x.Value == 0 && x.T.IsInteger()
	case *Cast:
		if x.T.IsVoidPointer() || x.T.IsInteger() {
			return IsNullPointerConstant(x.X)
		}
	}
	return false
}
