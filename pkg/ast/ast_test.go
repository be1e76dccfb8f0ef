package ast

import (
	"strings"
	"testing"

	"sicc/pkg/ctype"
)

func TestIsNullPointerConstant(t *testing.T) {
	intT := ctype.Basic(ctype.Int)
	voidPtr := ctype.Basic(ctype.Void).PointerTo()
	intPtr := intT.PointerTo()
	zero := NewInt(Pos{}, intT, 0)

	tests := []struct {
		name string
		expr Expr
		want bool
	}{
		{"Zero", zero, true},
		{"One", NewInt(Pos{}, intT, 1), false},
		{"VoidPointerCast", &Cast{Node: Node{T: voidPtr}, X: zero}, true},
		{"IntPointerCast", &Cast{Node: Node{T: intPtr}, X: zero}, false},
		{"NestedCast", &Cast{Node: Node{T: voidPtr}, X: &Cast{Node: Node{T: intT}, X: zero}}, true},
		{"Float", &FloatLit{Node: Node{T: ctype.Basic(ctype.Double)}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNullPointerConstant(tt.expr); got != tt.want {
				t.Errorf("IsNullPointerConstant(%s) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestDump(t *testing.T) {
	intT := ctype.Basic(ctype.Int)
	x := &Decl{Name: "x", Type: intT, Local: true}
	ident := &Ident{Node: Node{T: intT}, Decl: x}
	body := &Block{Stmts: []Stmt{
		&DeclStmt{Decls: []*Decl{x}},
		&While{
			C:    &Binary{Node: Node{T: intT}, Op: Lt, X: ident, Y: NewInt(Pos{}, intT, 10)},
			Body: &ExprStmt{X: &IncDec{Node: Node{T: intT}, Inc: true, Post: true, X: ident}},
		},
		&Return{X: ident},
	}}
	u := &Unit{
		Globals: []*Decl{{Name: "g", Type: intT}},
		Funcs: []*Func{{
			Decl: &Decl{Name: "main", Type: intT.FunctionOf(&ctype.FuncSig{})},
			Body: body,
		}},
	}

	var sb strings.Builder
	Dump(&sb, u)
	got := sb.String()
	for _, want := range []string{"global int g", "func main", "decl int x", "while (x < 10)", "(x++)", "return x"} {
		if !strings.Contains(got, want) {
			t.Errorf("dump missing %q:\n%s", want, got)
		}
	}
}
