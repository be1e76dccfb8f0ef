package lower

import (
	"sicc/pkg/ast"
	"sicc/pkg/ctype"
	"sicc/pkg/diag"
	"sicc/pkg/icode"
	"sicc/pkg/vreg"
)

// pointerArith lowers ptr + int, int + ptr, ptr - int and ptr - ptr.
func (l *Lowerer) pointerArith(pos ast.Pos, op ast.Op, a, b vreg.ID, il *icode.List) (vreg.ID, error) {
	a, err := l.rvalue(a, il)
	if err != nil {
		return vreg.NoID, err
	}
	b, err = l.rvalue(b, il)
	if err != nil {
		return vreg.NoID, err
	}
	ta, tb := l.typeOf(a), l.typeOf(b)
	if op == ast.Sub && ta.IsPointer() && tb.IsPointer() {
		return l.pointerDiff(pos, a, b, il)
	}
	if op == ast.Add && tb.IsPointer() {
		a, b = b, a
		ta, tb = tb, ta
	}
	if !ta.IsPointer() || !tb.IsInteger() {
		return vreg.NoID, l.invalidOperands(pos, op, ta, tb)
	}
	elem, err := l.elemType(pos, ta)
	if err != nil {
		return vreg.NoID, err
	}
	idx, err := l.convert(b, l.ptrDiffType(), il)
	if err != nil {
		return vreg.NoID, err
	}
	off, err := l.scale(idx, elem, il)
	if err != nil {
		return vreg.NoID, err
	}
	d, err := l.vr.Anonymify(a, il)
	if err != nil {
		return vreg.NoID, err
	}
	if c := l.vr.Get(off).Const; c != nil && c.Bits == 0 {
		return d, nil
	}
	iop := icode.Add
	if op == ast.Sub {
		iop = icode.Sub
	}
	if err := l.binop(iop, d, off, l.vr.Width(ta), il); err != nil {
		return vreg.NoID, err
	}
	return d, nil
}

// elemType returns the pointed-to type used for scaling. Arithmetic on
// void and function pointers is an accepted extension with element size
// one.
func (l *Lowerer) elemType(pos ast.Pos, pt *ctype.Type) (*ctype.Type, error) {
	elem := pt.Elem()
	switch {
	case elem.IsVoid() || elem.IsFunction():
		l.warnf(pos, diag.WarnVoidArith, "pointer of type '%s' used in arithmetic", pt)
		return l.basic(ctype.Char), nil
	case elem.IsVLA():
		return elem, nil
	case elem.Size(l.tgt) == 0:
		return nil, l.errorf(pos, diag.ErrInvalidOperands, "arithmetic on pointer to an incomplete type '%s'", elem)
	}
	return elem, nil
}

// scale multiplies an index of the pointer difference type by the size of
// elem.
func (l *Lowerer) scale(idx vreg.ID, elem *ctype.Type, il *icode.List) (vreg.ID, error) {
	pd := l.ptrDiffType()
	if elem.IsVLA() {
		size, err := l.runtimeSize(elem, il)
		if err != nil {
			return vreg.NoID, err
		}
		if size, err = l.convert(size, pd, il); err != nil {
			return vreg.NoID, err
		}
		return l.arith(ast.Pos{}, ast.Mul, idx, size, pd, il)
	}
	n := uint64(elem.Size(l.tgt))
	if n == 1 {
		return idx, nil
	}
	if c := l.vr.Get(idx).Const; c != nil {
		return l.vr.NewConst(pd, l.normalize(c.Bits*n, pd)), nil
	}
	d, err := l.vr.Anonymify(idx, il)
	if err != nil {
		return vreg.NoID, err
	}
	w := l.vr.Width(pd)
	if isPow2(n) {
		err = l.applyConst(d, icode.Shl, log2(n), w, il)
	} else {
		err = l.applyConst(d, icode.Mul, n, w, il)
	}
	return d, err
}

// pointerDiff lowers p - q to the number of elements between them.
func (l *Lowerer) pointerDiff(pos ast.Pos, a, b vreg.ID, il *icode.List) (vreg.ID, error) {
	ta, tb := l.typeOf(a), l.typeOf(b)
	ea, eb := ta.Elem().Unqualified(), tb.Elem().Unqualified()
	if !ctype.Compatible(ea, eb) {
		return vreg.NoID, l.invalidOperands(pos, ast.Sub, ta, tb)
	}
	elem, err := l.elemType(pos, ta)
	if err != nil {
		return vreg.NoID, err
	}
	pd := l.ptrDiffType()
	d, err := l.vr.Anonymify(a, il)
	if err != nil {
		return vreg.NoID, err
	}
	if err := l.binop(icode.Sub, d, b, l.vr.Width(ta), il); err != nil {
		return vreg.NoID, err
	}
	l.vr.Retype(d, pd)
	if elem.IsVLA() {
		size, err := l.runtimeSize(elem, il)
		if err != nil {
			return vreg.NoID, err
		}
		if size, err = l.convert(size, pd, il); err != nil {
			return vreg.NoID, err
		}
		return l.arith(pos, ast.Div, d, size, pd, il)
	}
	n := uint64(elem.Size(l.tgt))
	switch {
	case n == 1:
		return d, nil
	case isPow2(n):
		err = l.applyConst(d, icode.Shr, log2(n), l.vr.Width(pd), il)
	default:
		err = l.applyConst(d, icode.Div, n, l.vr.Width(pd), il)
	}
	return d, err
}

// dimVar is the frame slot holding the length of a dynamic array
// dimension.
func (l *Lowerer) dimVar(dim *ctype.Dim) vreg.ID {
	d, ok := l.dimDecls[dim]
	if !ok {
		d = &ast.Decl{Name: "dim", Type: l.sizeType(), Local: true, Offset: dim.Slot}
		l.dimDecls[dim] = d
	}
	return l.vr.NewVar(d)
}

// runtimeSize computes sizeof(t) at run time for a type whose array
// dimensions may be dynamic. Constant parts are folded together.
func (l *Lowerer) runtimeSize(t *ctype.Type, il *icode.List) (vreg.ID, error) {
	st := l.sizeType()
	acc := vreg.NoID
	n := int64(1)
	cur := t
	for cur.IsArray() {
		if dyn := cur.Chain[0].Dyn; dyn != nil {
			dim := l.dimVar(dyn)
			if acc == vreg.NoID {
				acc = dim
			} else {
				var err error
				if acc, err = l.arith(ast.Pos{}, ast.Mul, acc, dim, st, il); err != nil {
					return vreg.NoID, err
				}
			}
		} else {
			n *= cur.Chain[0].Len
		}
		cur = cur.Elem()
	}
	n *= cur.Size(l.tgt)
	c := l.vr.NewConst(st, l.normalize(uint64(n), st))
	if acc == vreg.NoID {
		return c, nil
	}
	if n == 1 {
		return acc, nil
	}
	return l.arith(ast.Pos{}, ast.Mul, acc, c, st, il)
}
