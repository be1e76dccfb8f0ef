package lower

import (
	"math"

	"sicc/pkg/ast"
	"sicc/pkg/ctype"
	"sicc/pkg/diag"
	"sicc/pkg/icode"
	"sicc/pkg/vreg"
)

// normalize truncates v to the size of t and extends it back to 64 bits
// according to t's signedness. Constant vregs always hold normalized bits.
func (l *Lowerer) normalize(v uint64, t *ctype.Type) uint64 {
	if t.IsFloat() {
		return v
	}
	if t.IsInteger() && t.Kind == ctype.Bool {
		if v != 0 {
			return 1
		}
		return 0
	}
	size := t.Size(l.tgt)
	if t.Bits != nil {
		size = t.Bits.UnitSize
	}
	if size <= 0 || size >= 8 {
		return v
	}
	bits := int(size * 8)
	v &= ctype.WidthMask(bits)
	if !l.tgt.IsUnsigned(t) && v>>(bits-1)&1 == 1 {
		v |= ^ctype.WidthMask(bits)
	}
	return v
}

func (l *Lowerer) toFloat(bits uint64, from *ctype.Type) float64 {
	switch {
	case from.IsFloat():
		return math.Float64frombits(bits)
	case l.tgt.IsUnsigned(from):
		return float64(bits)
	}
	return float64(int64(bits))
}

// foldConvert converts the normalized constant bits of type from to type to.
func (l *Lowerer) foldConvert(bits uint64, from, to *ctype.Type) (uint64, bool) {
	switch {
	case !to.IsScalar() || !from.IsScalar():
		return 0, false
	case to.IsInteger() && to.Kind == ctype.Bool:
		if from.IsFloat() {
			return l.normalize(b2u(math.Float64frombits(bits) != 0), to), true
		}
		return b2u(bits != 0), true
	case to.IsFloat():
		f := l.toFloat(bits, from)
		if l.tgt.Size(to.Kind) == 4 {
			f = float64(float32(f))
		}
		return math.Float64bits(f), true
	case from.IsFloat():
		f := math.Float64frombits(bits)
		if l.tgt.IsUnsigned(to) && f >= 0 {
			return l.normalize(uint64(f), to), true
		}
		return l.normalize(uint64(int64(f)), to), true
	}
	return l.normalize(bits, to), true
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// convert returns id's value converted to type to, emitting a cast when
// the machine representation changes.
func (l *Lowerer) convert(id vreg.ID, to *ctype.Type, il *icode.List) (vreg.ID, error) {
	id, err := l.rvalue(id, il)
	if err != nil {
		return vreg.NoID, err
	}
	if to.IsVoid() {
		return id, nil
	}
	v := l.vr.Get(id)
	from := v.Type
	if v.Const != nil {
		if bits, ok := l.foldConvert(v.Const.Bits, from, to); ok {
			return l.vr.NewConst(to, bits), nil
		}
	}
	if ctype.Compatible(from, to) {
		return id, nil
	}
	if to.IsInteger() && to.Kind == ctype.Bool {
		return l.toBool(id, il)
	}
	fw, tw := l.vr.Width(from), l.vr.Width(to)
	if !fw.Float && !tw.Float && fw.Size == tw.Size && l.vr.IsMulti(from) == l.vr.IsMulti(to) {
		d, err := l.vr.Anonymify(id, il)
		if err != nil {
			return vreg.NoID, err
		}
		l.vr.Retype(d, to)
		return d, nil
	}
	sp, err := l.vr.FaultIn(id, il)
	if err != nil {
		return vreg.NoID, err
	}
	g := l.vr.Claim(id)
	defer g.Release()
	nid, np, err := l.vr.NewTemp(to, il)
	if err != nil {
		return vreg.NoID, err
	}
	il.Append(&icode.Cast{Refs: icode.Refs{Def: nid, Use: [2]vreg.ID{id}}, Dst: np, Src: sp, From: fw, To: tw})
	return nid, nil
}

// promote applies the integer promotions. A bitfield promotes according
// to its width before it is decoded.
func (l *Lowerer) promote(id vreg.ID, il *icode.List) (vreg.ID, error) {
	t := l.typeOf(id)
	if t.Bits == nil {
		var err error
		if id, err = l.rvalue(id, il); err != nil {
			return vreg.NoID, err
		}
		t = l.typeOf(id)
	}
	return l.convert(id, ctype.Promote(l.tgt, t), il)
}

func (l *Lowerer) invalidOperands(pos ast.Pos, op ast.Op, a, b *ctype.Type) error {
	return l.errorf(pos, diag.ErrInvalidOperands, "invalid operands to binary %s (have '%s' and '%s')", op, decayed(a), decayed(b))
}

// isNullConst reports whether id is a constant null pointer.
func (l *Lowerer) isNullConst(id vreg.ID) bool {
	v := l.vr.Get(id)
	return v.Const != nil && v.Const.Bits == 0 && (v.Type.IsInteger() || v.Type.IsVoidPointer())
}

// convertOperands brings the operands of a binary operator to a common
// type and returns them as rvalues along with that type. Shifts promote
// each side on its own and the result has the left operand's type;
// pointer operands of comparisons are checked rather than converted.
func (l *Lowerer) convertOperands(pos ast.Pos, op ast.Op, a, b vreg.ID, ea, eb ast.Expr, il *icode.List) (vreg.ID, vreg.ID, *ctype.Type, error) {
	ta, tb := l.typeOf(a), l.typeOf(b)
	da, db := decayed(ta), decayed(tb)
	fail := func(err error) (vreg.ID, vreg.ID, *ctype.Type, error) { return vreg.NoID, vreg.NoID, nil, err }

	switch {
	case op.IsShift():
		if !da.IsInteger() || !db.IsInteger() {
			return fail(l.invalidOperands(pos, op, ta, tb))
		}
		a, err := l.promote(a, il)
		if err != nil {
			return fail(err)
		}
		b, err := l.promote(b, il)
		if err != nil {
			return fail(err)
		}
		if l.vr.IsMulti(l.typeOf(b)) {
			if b, err = l.convert(b, l.basic(ctype.UInt), il); err != nil {
				return fail(err)
			}
		}
		return a, b, l.typeOf(a), nil

	case da.IsArith() && db.IsArith():
		c := ctype.Common(l.tgt, ctype.Promote(l.tgt, ta), ctype.Promote(l.tgt, tb))
		a, err := l.convert(a, c, il)
		if err != nil {
			return fail(err)
		}
		b, err := l.convert(b, c, il)
		if err != nil {
			return fail(err)
		}
		return a, b, c, nil

	case op.IsRelational() && (da.IsPointer() || db.IsPointer()):
		a, err := l.rvalue(a, il)
		if err != nil {
			return fail(err)
		}
		b, err := l.rvalue(b, il)
		if err != nil {
			return fail(err)
		}
		switch {
		case da.IsPointer() && db.IsPointer():
			pa, pb := da.Elem().Unqualified(), db.Elem().Unqualified()
			if !ctype.Compatible(pa, pb) && !pa.IsVoid() && !pb.IsVoid() {
				l.warnf(pos, diag.WarnPointerMismatch, "comparison of distinct pointer types lacks a cast")
			}
			return a, b, da, nil
		case da.IsPointer() && db.IsInteger():
			if !ast.IsNullPointerConstant(eb) && !l.isNullConst(b) {
				l.warnf(pos, diag.WarnPointerInteger, "comparison between pointer and integer")
			}
			b, err = l.convert(b, da, il)
			return a, b, da, err
		case db.IsPointer() && da.IsInteger():
			if !ast.IsNullPointerConstant(ea) && !l.isNullConst(a) {
				l.warnf(pos, diag.WarnPointerInteger, "comparison between pointer and integer")
			}
			a, err = l.convert(a, db, il)
			return a, b, db, err
		}
	}
	return fail(l.invalidOperands(pos, op, ta, tb))
}
