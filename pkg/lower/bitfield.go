package lower

import (
	"sicc/pkg/ast"
	"sicc/pkg/ctype"
	"sicc/pkg/diag"
	"sicc/pkg/icode"
	"sicc/pkg/vreg"
)

// fieldType is the declared type of a bitfield without its descriptor.
func fieldType(t *ctype.Type) *ctype.Type { return ctype.Basic(t.Kind) }

// decode reads the bitfield id designates: load the storage unit, mask
// the field, then sign-extend it with a shift pair or shift it down.
func (l *Lowerer) decode(id vreg.ID, il *icode.List) (vreg.ID, error) {
	t := l.typeOf(id)
	bf := t.Bits
	if l.vr.IsMulti(fieldType(t)) {
		return l.decodeWide(id, il)
	}
	d, err := l.vr.Anonymify(id, il)
	if err != nil {
		return vreg.NoID, err
	}
	w := icode.Width{Size: bf.UnitSize, Unsigned: true}
	if err := l.applyConst(d, icode.And, bf.Mask, w, il); err != nil {
		return vreg.NoID, err
	}
	if l.tgt.IsUnsignedKind(t.Kind) {
		if bf.Offset > 0 {
			if err := l.applyConst(d, icode.Shr, uint64(bf.Offset), w, il); err != nil {
				return vreg.NoID, err
			}
		}
	} else {
		if bf.Shl > 0 {
			if err := l.applyConst(d, icode.Shl, uint64(bf.Shl), w, il); err != nil {
				return vreg.NoID, err
			}
		}
		sw := icode.Width{Size: bf.UnitSize}
		if err := l.applyConst(d, icode.Shr, uint64(bf.Shr), sw, il); err != nil {
			return vreg.NoID, err
		}
	}
	l.vr.Retype(d, fieldType(t))
	return d, nil
}

// encode stores src into the bitfield dst designates and returns the
// stored field value. The storage unit is read back through a fresh vreg
// after the value has been shifted into place, so its address is
// recomputed rather than taken from a register the value computation may
// have reused.
func (l *Lowerer) encode(pos ast.Pos, dst, src vreg.ID, il *icode.List, r role) (vreg.ID, error) {
	t := l.typeOf(dst)
	bf := t.Bits
	signed := !l.tgt.IsUnsignedKind(t.Kind)
	if c := l.vr.Get(src).Const; c != nil && l.typeOf(src).IsInteger() && !bf.Fits(c.Bits, signed) {
		l.warnf(pos, diag.WarnOverflow, "overflow in conversion to bit-field of width %d", bf.Width)
	}
	if l.vr.IsMulti(fieldType(t)) {
		return l.encodeWide(pos, dst, src, il, r)
	}
	val, err := l.convert(src, fieldType(t), il)
	if err != nil {
		return vreg.NoID, err
	}
	if val, err = l.vr.Anonymify(val, il); err != nil {
		return vreg.NoID, err
	}
	w := icode.Width{Size: bf.UnitSize, Unsigned: true}
	if err := l.applyConst(val, icode.And, ctype.WidthMask(bf.Width), w, il); err != nil {
		return vreg.NoID, err
	}
	if bf.Offset > 0 {
		if err := l.applyConst(val, icode.Shl, uint64(bf.Offset), w, il); err != nil {
			return vreg.NoID, err
		}
	}
	gv := l.vr.Claim(val)
	defer gv.Release()

	unit, err := l.vr.Anonymify(l.vr.Disconnect(dst), il)
	if err != nil {
		return vreg.NoID, err
	}
	if err := l.applyConst(unit, icode.And, bf.InvMask, w, il); err != nil {
		return vreg.NoID, err
	}
	if err := l.binop(icode.Or, unit, val, w, il); err != nil {
		return vreg.NoID, err
	}
	if err := l.vr.StoreTo(l.vr.Disconnect(dst), unit, il); err != nil {
		return vreg.NoID, err
	}
	if r == asEffect {
		return unit, nil
	}
	gv.Release()
	return l.decode(l.vr.Disconnect(dst), il)
}

// unitView returns a copy of the bitfield lvalue id that reads and writes
// its whole storage unit as an integer of type ut.
func (l *Lowerer) unitView(id vreg.ID, ut *ctype.Type) vreg.ID {
	u := l.vr.Disconnect(id)
	l.vr.Retype(u, ut)
	return u
}

// wideConst computes d op k on a storage unit held in a register pair.
func (l *Lowerer) wideConst(op ast.Op, d vreg.ID, k uint64, t *ctype.Type, il *icode.List) (vreg.ID, error) {
	kt := t
	if op == ast.Shl || op == ast.Shr {
		kt = ctype.Basic(ctype.Int)
	}
	return l.arith(ast.Pos{}, op, d, l.vr.NewConst(kt, k), t, il)
}

// decodeWide is decode for a storage unit wider than a register.
func (l *Lowerer) decodeWide(id vreg.ID, il *icode.List) (vreg.ID, error) {
	t := l.typeOf(id)
	bf := t.Bits
	ut := ctype.Basic(t.Kind.ToUnsigned())
	d, err := l.wideConst(ast.BitAnd, l.unitView(id, ut), bf.Mask, ut, il)
	if err != nil {
		return vreg.NoID, err
	}
	if l.tgt.IsUnsignedKind(t.Kind) {
		if bf.Offset > 0 {
			if d, err = l.wideConst(ast.Shr, d, uint64(bf.Offset), ut, il); err != nil {
				return vreg.NoID, err
			}
		}
	} else {
		if bf.Shl > 0 {
			if d, err = l.wideConst(ast.Shl, d, uint64(bf.Shl), ut, il); err != nil {
				return vreg.NoID, err
			}
		}
		st := ctype.Basic(t.Kind.ToSigned())
		l.vr.Retype(d, st)
		if d, err = l.wideConst(ast.Shr, d, uint64(bf.Shr), st, il); err != nil {
			return vreg.NoID, err
		}
	}
	l.vr.Retype(d, fieldType(t))
	return d, nil
}

// encodeWide is encode for a storage unit wider than a register. The
// unit is combined as a two-word integer and stored back whole.
func (l *Lowerer) encodeWide(pos ast.Pos, dst, src vreg.ID, il *icode.List, r role) (vreg.ID, error) {
	t := l.typeOf(dst)
	bf := t.Bits
	ut := ctype.Basic(t.Kind.ToUnsigned())
	val, err := l.convert(src, ut, il)
	if err != nil {
		return vreg.NoID, err
	}
	if val, err = l.wideConst(ast.BitAnd, val, ctype.WidthMask(bf.Width), ut, il); err != nil {
		return vreg.NoID, err
	}
	if bf.Offset > 0 {
		if val, err = l.wideConst(ast.Shl, val, uint64(bf.Offset), ut, il); err != nil {
			return vreg.NoID, err
		}
	}
	unit, err := l.wideConst(ast.BitAnd, l.unitView(dst, ut), bf.InvMask, ut, il)
	if err != nil {
		return vreg.NoID, err
	}
	if unit, err = l.arith(pos, ast.BitOr, unit, val, ut, il); err != nil {
		return vreg.NoID, err
	}
	if err := l.vr.StoreTo(l.unitView(dst, ut), unit, il); err != nil {
		return vreg.NoID, err
	}
	if r == asEffect {
		return unit, nil
	}
	return l.decode(l.vr.Disconnect(dst), il)
}
