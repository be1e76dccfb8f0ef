package lower

import (
	"math"

	"sicc/pkg/ast"
	"sicc/pkg/ctype"
	"sicc/pkg/diag"
	"sicc/pkg/icode"
	"sicc/pkg/vreg"
)

// checkLvalue validates the destination of an assignment.
func (l *Lowerer) checkLvalue(pos ast.Pos, id vreg.ID, what string) error {
	v := l.vr.Get(id)
	switch {
	case !v.IsLvalue():
		return l.errorf(pos, diag.ErrNotLvalue, "lvalue required as %s", what)
	case v.Type.IsArray():
		return l.errorf(pos, diag.ErrIncompatibleType, "assignment to expression with array type")
	case v.Type.IsFunction():
		return l.errorf(pos, diag.ErrNotLvalue, "lvalue required as %s", what)
	case v.Type.IsConst() || v.Type.IsRecord() && v.Type.Record.HasConst():
		return l.errorf(pos, diag.ErrReadOnly, "assignment of read-only location")
	}
	return nil
}

// checkAssign type-checks storing src into an object of type dt. Pointer
// and integer mixes are warnings; anything else that does not convert is
// an error. ctx names the operation in messages.
func (l *Lowerer) checkAssign(pos ast.Pos, dt *ctype.Type, src vreg.ID, e ast.Expr, ctx string) error {
	st := decayed(l.typeOf(src))
	dt = dt.Unqualified()
	switch {
	case dt.IsArith() && st.IsArith():
		return nil
	case dt.IsPointer() && st.IsPointer():
		de, se := dt.Elem(), st.Elem()
		switch {
		case de.IsVoid() || se.IsVoid():
		case !ctype.Compatible(de.Unqualified(), se.Unqualified()):
			l.warnf(pos, diag.WarnPointerMismatch, "%s from incompatible pointer type '%s' to '%s'", ctx, st, dt)
			return nil
		}
		if se.TopQual()&^de.TopQual() != 0 {
			l.warnf(pos, diag.WarnPointerMismatch, "%s discards qualifiers from pointer target type", ctx)
		}
		return nil
	case dt.IsPointer() && st.IsInteger():
		if !ast.IsNullPointerConstant(e) && !l.isNullConst(src) {
			l.warnf(pos, diag.WarnPointerInteger, "%s makes pointer from integer without a cast", ctx)
		}
		return nil
	case dt.IsInteger() && st.IsPointer():
		if dt.Kind != ctype.Bool {
			l.warnf(pos, diag.WarnPointerInteger, "%s makes integer from pointer without a cast", ctx)
		}
		return nil
	case dt.IsRecord() && st.IsRecord() && dt.Record == st.Record:
		return nil
	}
	return l.errorf(pos, diag.ErrIncompatibleType, "incompatible types in %s to type '%s' from type '%s'", ctx, dt, st)
}

// blockCopy copies the aggregate src into dst through the backend.
func (l *Lowerer) blockCopy(dst, src vreg.ID, il *icode.List) error {
	size := l.typeOf(dst).Size(l.tgt)
	dp, err := l.vr.AddrOf(dst, il)
	if err != nil {
		return err
	}
	pd, err := l.vr.FaultIn(dp, il)
	if err != nil {
		return err
	}
	gd := l.vr.Claim(dp)
	defer gd.Release()
	ps, err := l.vr.FaultIn(src, il)
	if err != nil {
		return err
	}
	in := l.backend.BlockCopy(pd[0], ps[0], size)
	*in.Vregs() = icode.Refs{Use: [2]vreg.ID{dp, src}}
	il.Append(in)
	return nil
}

// store converts val to the type of dst and writes it, encoding
// bitfields. It returns the value the assignment expression yields.
func (l *Lowerer) store(pos ast.Pos, dst, val vreg.ID, il *icode.List, r role) (vreg.ID, error) {
	dt := l.typeOf(dst)
	if dt.Bits != nil {
		return l.encode(pos, dst, val, il, r)
	}
	v, err := l.convert(val, dt.Unqualified(), il)
	if err != nil {
		return vreg.NoID, err
	}
	if err := l.vr.StoreTo(dst, v, il); err != nil {
		return vreg.NoID, err
	}
	return v, nil
}

func (l *Lowerer) assign(e *ast.Assign, il *icode.List, r role) (vreg.ID, error) {
	dst, err := l.operand(e.LHS, il)
	if err != nil {
		return vreg.NoID, err
	}
	if err := l.checkLvalue(e.Pos(), dst, "left operand of assignment"); err != nil {
		return vreg.NoID, err
	}
	dt := l.typeOf(dst)
	if dt.IsRecord() {
		return l.assignRecord(e, dst, il, r)
	}
	src, err := l.value(e.RHS, il)
	if err != nil {
		return vreg.NoID, err
	}
	if err := l.checkAssign(e.Pos(), dt, src, e.RHS, "assignment"); err != nil {
		return vreg.NoID, err
	}
	return l.store(e.Pos(), dst, src, il, r)
}

// assignRecord lowers struct and union assignment to a block copy. A
// conditional right-hand side copies straight into the destination.
func (l *Lowerer) assignRecord(e *ast.Assign, dst vreg.ID, il *icode.List, r role) (vreg.ID, error) {
	dt := l.typeOf(dst)
	if c, ok := e.RHS.(*ast.Cond); ok {
		if st := c.T; !st.IsRecord() || st.Record != dt.Record {
			return vreg.NoID, l.errorf(e.Pos(), diag.ErrIncompatibleType, "incompatible types when assigning to type '%s' from type '%s'", dt, st)
		}
		return l.ternary(c, il, r, dst)
	}
	src, err := l.operand(e.RHS, il)
	if err != nil {
		return vreg.NoID, err
	}
	if st := l.typeOf(src); !st.IsRecord() || st.Record != dt.Record {
		return vreg.NoID, l.errorf(e.Pos(), diag.ErrIncompatibleType, "incompatible types when assigning to type '%s' from type '%s'", dt, st)
	}
	if err := l.blockCopy(dst, src, il); err != nil {
		return vreg.NoID, err
	}
	return dst, nil
}

func (l *Lowerer) compound(e *ast.Assign, il *icode.List, r role) (vreg.ID, error) {
	dst, err := l.operand(e.LHS, il)
	if err != nil {
		return vreg.NoID, err
	}
	if err := l.checkLvalue(e.Pos(), dst, "left operand of assignment"); err != nil {
		return vreg.NoID, err
	}
	dt := l.typeOf(dst)
	src, err := l.operand(e.RHS, il)
	if err != nil {
		return vreg.NoID, err
	}
	res, err := l.combine(e.Pos(), e.Op, l.vr.Disconnect(dst), src, e.RHS, il)
	if err != nil {
		return vreg.NoID, err
	}
	if dt.IsPointer() && !l.typeOf(res).IsPointer() {
		return vreg.NoID, l.invalidOperands(e.Pos(), e.Op, dt, l.typeOf(src))
	}
	return l.store(e.Pos(), dst, res, il, r)
}

// combine computes cur op src for a compound assignment or an increment.
// cur is a private copy of the destination, so loading and decoding it
// leaves the destination itself untouched.
func (l *Lowerer) combine(pos ast.Pos, op ast.Op, cur, src vreg.ID, esrc ast.Expr, il *icode.List) (vreg.ID, error) {
	ct, st := decayed(l.typeOf(cur)), decayed(l.typeOf(src))
	if ct.IsPointer() && (op == ast.Add || op == ast.Sub) {
		return l.pointerArith(pos, op, cur, src, il)
	}
	if err := l.checkArith(pos, op, ct, st); err != nil {
		return vreg.NoID, err
	}
	a, b, t, err := l.convertOperands(pos, op, cur, src, nil, esrc, il)
	if err != nil {
		return vreg.NoID, err
	}
	return l.arith(pos, op, a, b, t, il)
}

func (l *Lowerer) incDec(e *ast.IncDec, il *icode.List, r role) (vreg.ID, error) {
	dst, err := l.operand(e.X, il)
	if err != nil {
		return vreg.NoID, err
	}
	what := "decrement operand"
	op := ast.Sub
	if e.Inc {
		what, op = "increment operand", ast.Add
	}
	if err := l.checkLvalue(e.Pos(), dst, what); err != nil {
		return vreg.NoID, err
	}
	dt := l.typeOf(dst)
	if !dt.IsScalar() {
		return vreg.NoID, l.errorf(e.Pos(), diag.ErrInvalidOperands, "wrong type argument to %s", what)
	}
	cur, err := l.rvalue(l.vr.Disconnect(dst), il)
	if err != nil {
		return vreg.NoID, err
	}
	old := vreg.NoID
	if e.Post && r == asValue {
		if old, err = l.copyValue(cur, il); err != nil {
			return vreg.NoID, err
		}
	}
	one := l.vr.NewConst(l.basic(ctype.Int), 1)
	if dt.IsFloat() {
		one = l.vr.NewConst(dt.Unqualified(), math.Float64bits(1))
	}
	res, err := l.combine(e.Pos(), op, cur, one, nil, il)
	if err != nil {
		return vreg.NoID, err
	}
	val, err := l.store(e.Pos(), dst, res, il, r)
	if err != nil || old == vreg.NoID {
		return val, err
	}
	return old, nil
}
