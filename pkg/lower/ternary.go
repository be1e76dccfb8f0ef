package lower

import (
	"sicc/pkg/ast"
	"sicc/pkg/ctype"
	"sicc/pkg/diag"
	"sicc/pkg/icode"
	"sicc/pkg/vreg"
)

// arm is one lowered branch of a conditional expression.
type arm struct {
	e    ast.Expr
	code *icode.List
	v    vreg.ID
}

// lowerArm lowers one branch into its own list. The register file is
// empty when it starts and again when it ends: the arm's value is left
// in memory or in its origin, to be converted once both types are known.
func (l *Lowerer) lowerArm(e ast.Expr, r role) (*arm, error) {
	a := &arm{e: e, code: icode.NewList()}
	v, err := l.expr(e, a.code, r)
	if err != nil {
		return nil, err
	}
	if v != vreg.NoID && r == asValue {
		if v, err = l.rvalue(v, a.code); err != nil {
			return nil, err
		}
	}
	if err := l.vr.InvalidateAll(a.code); err != nil {
		return nil, err
	}
	l.vr.DiscardAll()
	a.v = v
	return a, nil
}

// armType unifies the result types of a conditional expression.
func (l *Lowerer) armType(pos ast.Pos, b, c *arm) (*ctype.Type, error) {
	if b.v == vreg.NoID || c.v == vreg.NoID {
		if b.v != c.v {
			return nil, l.errorf(pos, diag.ErrIncompatibleType, "type mismatch in conditional expression")
		}
		return ctype.Basic(ctype.Void), nil
	}
	tb, tc := decayed(l.typeOf(b.v)), decayed(l.typeOf(c.v))
	nb := ast.IsNullPointerConstant(b.e) || l.isNullConst(b.v)
	nc := ast.IsNullPointerConstant(c.e) || l.isNullConst(c.v)
	switch {
	case tb.IsArith() && tc.IsArith():
		return ctype.Common(l.tgt, ctype.Promote(l.tgt, tb), ctype.Promote(l.tgt, tc)), nil
	case tb.IsRecord() && tc.IsRecord() && tb.Record == tc.Record:
		return tb.Unqualified(), nil
	case tb.IsPointer() && tc.IsInteger() && nc:
		return tb, nil
	case tc.IsPointer() && tb.IsInteger() && nb:
		return tc, nil
	case tb.IsPointer() && tc.IsPointer():
		eb, ec := tb.Elem(), tc.Elem()
		switch {
		case nb && tb.IsVoidPointer():
			return tc, nil
		case nc && tc.IsVoidPointer():
			return tb, nil
		case eb.IsVoid():
			return tb, nil
		case ec.IsVoid():
			return tc, nil
		case ctype.Compatible(eb.Unqualified(), ec.Unqualified()):
			return tb, nil
		}
		l.warnf(pos, diag.WarnPointerMismatch, "pointer type mismatch in conditional expression")
		return ctype.Basic(ctype.Void).PointerTo(), nil
	case tb.IsPointer() && tc.IsInteger():
		l.warnf(pos, diag.WarnPointerInteger, "pointer/integer type mismatch in conditional expression")
		return tb, nil
	case tc.IsPointer() && tb.IsInteger():
		l.warnf(pos, diag.WarnPointerInteger, "pointer/integer type mismatch in conditional expression")
		return tc, nil
	}
	return nil, l.errorf(pos, diag.ErrIncompatibleType, "type mismatch in conditional expression ('%s' and '%s')", tb, tc)
}

// ternary lowers c ? b : d. Both arms are lowered in private lists before
// the result type is chosen; each then ends by converting its value into
// one shared result register. Record results are copied into dest, or a
// fresh frame buffer when dest is NoID.
func (l *Lowerer) ternary(e *ast.Cond, il *icode.List, r role, dest vreg.ID) (vreg.ID, error) {
	if e.T.IsRecord() && (r == asValue || dest != vreg.NoID) {
		return l.ternaryRecord(e, il, dest)
	}
	lfalse, join := l.newLabel(), l.newLabel()
	if err := l.cond(e.C, il, lfalse, false); err != nil {
		return vreg.NoID, err
	}
	if err := l.vr.InvalidateAll(il); err != nil {
		return vreg.NoID, err
	}
	b, err := l.lowerArm(e.Then, r)
	if err != nil {
		return vreg.NoID, err
	}
	c, err := l.lowerArm(e.Else, r)
	if err != nil {
		return vreg.NoID, err
	}

	res := vreg.NoID
	var t *ctype.Type
	if r == asValue {
		if t, err = l.armType(e.Pos(), b, c); err != nil {
			return vreg.NoID, err
		}
	}
	if t != nil && !t.IsVoid() {
		vb, err := l.convert(b.v, t, b.code)
		if err != nil {
			return vreg.NoID, err
		}
		rp, err := l.vr.FaultIn(vb, b.code)
		if err != nil {
			return vreg.NoID, err
		}
		l.vr.DiscardAll()

		vc, err := l.convert(c.v, t, c.code)
		if err != nil {
			return vreg.NoID, err
		}
		cp, err := l.vr.FaultIn(vc, c.code)
		if err != nil {
			return vreg.NoID, err
		}
		l.movePair(rp, cp, t, icode.Refs{Use: [2]vreg.ID{vc}}, c.code)
		l.vr.DiscardAll()

		res = l.vr.NewAnon(t)
		l.vr.Map(res, rp)
	}

	il.Merge(b.code)
	il.Append(&icode.Jump{Target: join}, &icode.Mark{Label: lfalse})
	il.Merge(c.code)
	il.Append(&icode.Mark{Label: join})
	return res, nil
}

// ternaryRecord lowers a conditional expression of struct or union type.
func (l *Lowerer) ternaryRecord(e *ast.Cond, il *icode.List, dest vreg.ID) (vreg.ID, error) {
	t := e.T.Unqualified()
	if dest == vreg.NoID {
		slot := l.vr.Frame.Alloc(t.Size(l.tgt), t.Align(l.tgt))
		dest = l.vr.NewStacked(t, slot)
	}
	lfalse, join := l.newLabel(), l.newLabel()
	if err := l.cond(e.C, il, lfalse, false); err != nil {
		return vreg.NoID, err
	}
	if err := l.vr.InvalidateAll(il); err != nil {
		return vreg.NoID, err
	}
	copyArm := func(x ast.Expr) error {
		src, err := l.operand(x, il)
		if err != nil {
			return err
		}
		if st := l.typeOf(src); !st.IsRecord() || st.Record != t.Record {
			return l.errorf(x.Pos(), diag.ErrIncompatibleType, "type mismatch in conditional expression ('%s' and '%s')", t, st)
		}
		if err := l.blockCopy(l.vr.Disconnect(dest), src, il); err != nil {
			return err
		}
		return l.vr.InvalidateAll(il)
	}
	if err := copyArm(e.Then); err != nil {
		return vreg.NoID, err
	}
	il.Append(&icode.Jump{Target: join}, &icode.Mark{Label: lfalse})
	if err := copyArm(e.Else); err != nil {
		return vreg.NoID, err
	}
	il.Append(&icode.Mark{Label: join})
	return dest, nil
}
