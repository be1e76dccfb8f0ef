package ast

import (
	"fmt"
	"io"
	"strings"
)

type Stmt interface {
	Pos() Pos
	stmtNode()
}

type StmtNode struct {
	P Pos
}

func (n *StmtNode) Pos() Pos  { return n.P }
func (n *StmtNode) stmtNode() {}

type ExprStmt struct {
	StmtNode
	X Expr
}

// DeclStmt declares local objects; their initializers run in order.
type DeclStmt struct {
	StmtNode
	Decls []*Decl
	// Dims holds, per VLA declaration, the dimension length expressions in
	// the order of the type's dynamic dimensions.
	Dims map[*Decl][]Expr
}

type Block struct {
	StmtNode
	Stmts []Stmt
}

type If struct {
	StmtNode
	C    Expr
	Then Stmt
	Else Stmt
}

type While struct {
	StmtNode
	C    Expr
	Body Stmt
}

type DoWhile struct {
	StmtNode
	Body Stmt
	C    Expr
}

// For has optional Init, C and Post.
type For struct {
	StmtNode
	Init Stmt
	C    Expr
	Post Expr
	Body Stmt
}

type Return struct {
	StmtNode
	X Expr
}

type Break struct{ StmtNode }
type Continue struct{ StmtNode }

// AsmOperand is one "constraint"(expr) operand of an extended asm.
type AsmOperand struct {
	Constraint string
	X          Expr
}

type AsmStmt struct {
	StmtNode
	Template string
	Outputs  []AsmOperand
	Inputs   []AsmOperand
	Clobbers []string
}

// Dump writes an indented rendering of a unit.
func Dump(w io.Writer, u *Unit) {
	for _, g := range u.Globals {
		fmt.Fprintf(w, "global %s %s\n", g.Type, g.Name)
	}
	for _, f := range u.Funcs {
		fmt.Fprintf(w, "func %s %s\n", f.Decl.Name, f.Decl.Type)
		dumpStmt(w, f.Body, 1)
	}
}

func dumpStmt(w io.Writer, s Stmt, depth int) {
	ind := strings.Repeat("  ", depth)
	switch s := s.(type) {
	case *Block:
		fmt.Fprintf(w, "%s{\n", ind)
		for _, st := range s.Stmts {
			dumpStmt(w, st, depth+1)
		}
		fmt.Fprintf(w, "%s}\n", ind)
	case *ExprStmt:
		fmt.Fprintf(w, "%s%s\n", ind, s.X)
	case *DeclStmt:
		for _, d := range s.Decls {
			fmt.Fprintf(w, "%sdecl %s %s\n", ind, d.Type, d.Name)
			for _, in := range d.Inits {
				fmt.Fprintf(w, "%s  +%d = %s\n", ind, in.Off, in.X)
			}
		}
	case *If:
		fmt.Fprintf(w, "%sif %s\n", ind, s.C)
		dumpStmt(w, s.Then, depth+1)
		if s.Else != nil {
			fmt.Fprintf(w, "%selse\n", ind)
			dumpStmt(w, s.Else, depth+1)
		}
	case *While:
		fmt.Fprintf(w, "%swhile %s\n", ind, s.C)
		dumpStmt(w, s.Body, depth+1)
	case *DoWhile:
		fmt.Fprintf(w, "%sdo\n", ind)
		dumpStmt(w, s.Body, depth+1)
		fmt.Fprintf(w, "%swhile %s\n", ind, s.C)
	case *For:
		fmt.Fprintf(w, "%sfor\n", ind)
		if s.Init != nil {
			dumpStmt(w, s.Init, depth+1)
		}
		if s.C != nil {
			fmt.Fprintf(w, "%s  cond %s\n", ind, s.C)
		}
		if s.Post != nil {
			fmt.Fprintf(w, "%s  post %s\n", ind, s.Post)
		}
		dumpStmt(w, s.Body, depth+1)
	case *Return:
		if s.X == nil {
			fmt.Fprintf(w, "%sreturn\n", ind)
		} else {
			fmt.Fprintf(w, "%sreturn %s\n", ind, s.X)
		}
	case *Break:
		fmt.Fprintf(w, "%sbreak\n", ind)
	case *Continue:
		fmt.Fprintf(w, "%scontinue\n", ind)
	case *AsmStmt:
		fmt.Fprintf(w, "%sasm %q\n", ind, s.Template)
	default:
		fmt.Fprintf(w, "%s%T\n", ind, s)
	}
}
