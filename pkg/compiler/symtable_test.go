package compiler

import (
	"testing"

	"sicc/pkg/ast"
	"sicc/pkg/ctype"
)

func TestSymbolTable(t *testing.T) {
	intType := ctype.Basic(ctype.Int)

	t.Run("FrameAllocation", func(t *testing.T) {
		s := NewSymbolTable()
		s.EnterFunction()
		c := s.Allocate(1, 1)
		i := s.Allocate(4, 4)
		d := s.Allocate(8, 8)
		if c != 0 || i != 4 || d != 8 {
			t.Errorf("offsets = %d, %d, %d; want 0, 4, 8", c, i, d)
		}
		s.EnterScope()
		s.Allocate(2, 2)
		s.ExitScope()
		if size := s.ExitFunction(); size != 18 {
			t.Errorf("frame size = %d, want 18", size)
		}

		s.EnterFunction()
		if off := s.Allocate(4, 4); off != 0 {
			t.Errorf("new function starts at %d, want 0", off)
		}
	})

	t.Run("Shadowing", func(t *testing.T) {
		s := NewSymbolTable()
		g := &ast.Decl{Name: "x", Type: intType}
		if _, err := s.Define(g); err != nil {
			t.Fatal(err)
		}
		s.EnterFunction()
		inner := &ast.Decl{Name: "x", Type: ctype.Basic(ctype.Char), Local: true}
		if _, err := s.Define(inner); err != nil {
			t.Fatalf("shadowing a global: %v", err)
		}
		if sym, _ := s.Lookup("x"); sym.Decl != inner || sym.Scope != ScopeLocal {
			t.Errorf("lookup found %+v, want the local", sym)
		}
		if _, err := s.Define(&ast.Decl{Name: "x", Type: intType, Local: true}); err == nil {
			t.Errorf("redefining a local should fail")
		}
		s.ExitFunction()
		if sym, _ := s.Lookup("x"); sym.Decl != g {
			t.Errorf("global not visible after the function")
		}
	})

	t.Run("Redeclaration", func(t *testing.T) {
		s := NewSymbolTable()
		first := &ast.Decl{Name: "a", Type: intType.ArrayOf(-1), Storage: ctype.Extern}
		s.Define(first)
		got, err := s.Define(&ast.Decl{Name: "a", Type: intType.ArrayOf(4)})
		if err != nil {
			t.Fatal(err)
		}
		if got != first || got.Type.Len() != 4 {
			t.Errorf("redeclaration should complete the first decl, got len %d", got.Type.Len())
		}
		if _, err := s.Define(&ast.Decl{Name: "a", Type: ctype.Basic(ctype.Char)}); err == nil {
			t.Errorf("conflicting redeclaration should fail")
		}
	})

	t.Run("Typedefs", func(t *testing.T) {
		s := NewSymbolTable()
		if err := s.DefineTypedef("u8", ctype.Basic(ctype.UChar)); err != nil {
			t.Fatal(err)
		}
		if !s.IsTypedef("u8") || s.IsTypedef("missing") {
			t.Errorf("IsTypedef mismatch")
		}
		if err := s.DefineTypedef("u8", ctype.Basic(ctype.UChar)); err != nil {
			t.Errorf("compatible typedef redefinition: %v", err)
		}
		if err := s.DefineTypedef("u8", intType); err == nil {
			t.Errorf("incompatible typedef redefinition should fail")
		}
		s.EnterFunction()
		s.Define(&ast.Decl{Name: "u8", Type: intType, Local: true})
		if s.IsTypedef("u8") {
			t.Errorf("a local object should hide the typedef")
		}
	})

	t.Run("Tags", func(t *testing.T) {
		s := NewSymbolTable()
		outer, _ := s.Tag("node", false, true)
		s.EnterFunction()
		if r, _ := s.Tag("node", false, false); r != outer {
			t.Errorf("reference should find the file-scope tag")
		}
		inner, _ := s.Tag("node", false, true)
		if inner == outer {
			t.Errorf("declaration in a block should create a new tag")
		}
		if _, err := s.Tag("node", true, false); err == nil {
			t.Errorf("union reference to a struct tag should fail")
		}
	})

	t.Run("StaticNames", func(t *testing.T) {
		s := NewSymbolTable()
		a, b := s.StaticName("count"), s.StaticName("count")
		if a == b || a == "count" {
			t.Errorf("static names %q and %q should be unique", a, b)
		}
	})
}

func TestSymbolTableString(t *testing.T) {
	s := NewSymbolTable()
	s.Define(&ast.Decl{Name: "g", Type: ctype.Basic(ctype.Int)})
	s.DefineTypedef("T", ctype.Basic(ctype.Char))
	s.EnterFunction()
	s.Define(&ast.Decl{Name: "l", Type: ctype.Basic(ctype.Long), Offset: 8, Local: true})

	got := s.String()
	assertContains(t, got, "0 typedef char T")
	assertContains(t, got, "0 int g @0")
	assertContains(t, got, "1 long l @8")
}
