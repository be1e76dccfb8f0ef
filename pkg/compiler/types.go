package compiler

import (
	"sicc/pkg/ast"
	"sicc/pkg/ctype"
)

// The helpers below give each expression node the type C assigns it.
// Operands that do not fit an operator get a best-effort type; the
// lowering engine reports the error with the values at hand.

func (p *Parser) binaryType(op ast.Op, x, y ast.Expr) *ctype.Type {
	tx, ty := x.Type().Decay(), y.Type().Decay()
	intType := ctype.Basic(ctype.Int)
	switch op {
	case ast.LogAnd, ast.LogOr, ast.Lt, ast.Le, ast.Gt, ast.Ge, ast.Eq, ast.Ne:
		return intType
	case ast.Shl, ast.Shr:
		if tx.IsInteger() {
			return ctype.Promote(p.tgt, x.Type())
		}
		return intType
	case ast.Add:
		switch {
		case tx.IsPointer():
			return tx.Unqualified()
		case ty.IsPointer():
			return ty.Unqualified()
		}
	case ast.Sub:
		switch {
		case tx.IsPointer() && ty.IsPointer():
			return ctype.Basic(p.tgt.PtrDiffType())
		case tx.IsPointer():
			return tx.Unqualified()
		}
	}
	if tx.IsArith() && ty.IsArith() {
		return ctype.Common(p.tgt, x.Type(), y.Type())
	}
	return intType
}

func (p *Parser) unaryType(op ast.Op, x ast.Expr) *ctype.Type {
	t := x.Type()
	switch op {
	case ast.Not:
		return ctype.Basic(ctype.Int)
	case ast.AddrOf:
		return t.Unqualified().PointerTo()
	case ast.Deref:
		if d := t.Decay(); d.IsPointer() {
			return d.Elem()
		}
		return ctype.Basic(ctype.Int)
	}
	if t.IsInteger() {
		return ctype.Promote(p.tgt, t)
	}
	return t.Unqualified()
}

// indexType is the element type of a[i] or i[a].
func (p *Parser) indexType(x, idx ast.Expr) *ctype.Type {
	if t := x.Type().Decay(); t.IsPointer() {
		return t.Elem()
	}
	if t := idx.Type().Decay(); t.IsPointer() {
		return t.Elem()
	}
	return ctype.Basic(ctype.Int)
}

// condType unifies the arm types of a conditional expression.
func (p *Parser) condType(b, c ast.Expr) *ctype.Type {
	tb, tc := b.Type().Decay(), c.Type().Decay()
	switch {
	case tb.IsVoid() || tc.IsVoid():
		return ctype.Basic(ctype.Void)
	case tb.IsArith() && tc.IsArith():
		return ctype.Common(p.tgt, b.Type(), c.Type())
	case tb.IsRecord() && tc.IsRecord():
		return tb.Unqualified()
	case tb.IsPointer() && tc.IsPointer():
		switch {
		case ast.IsNullPointerConstant(b):
			return tc
		case ast.IsNullPointerConstant(c), tb.Elem().IsVoid():
			return tb
		case tc.Elem().IsVoid():
			return tc
		}
		return tb
	case tb.IsPointer():
		return tb
	case tc.IsPointer():
		return tc
	}
	return tb
}
