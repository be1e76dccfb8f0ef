package lower

import (
	"sicc/pkg/ast"
	"sicc/pkg/ctype"
	"sicc/pkg/diag"
	"sicc/pkg/icode"
	"sicc/pkg/vreg"
)

// operand lowers e for its value and rejects void results. The vreg is
// returned as is: lvalues stay lvalues and bitfields stay encoded.
func (l *Lowerer) operand(e ast.Expr, il *icode.List) (vreg.ID, error) {
	id, err := l.expr(e, il, asValue)
	if err != nil {
		return vreg.NoID, err
	}
	if id == vreg.NoID {
		return vreg.NoID, l.errorf(e.Pos(), diag.ErrInvalidOperands, "void value not ignored as it ought to be")
	}
	return id, nil
}

// value lowers e to an rvalue.
func (l *Lowerer) value(e ast.Expr, il *icode.List) (vreg.ID, error) {
	id, err := l.operand(e, il)
	if err != nil {
		return vreg.NoID, err
	}
	return l.rvalue(id, il)
}

// rvalue decodes bitfields and decays arrays and functions to pointers.
func (l *Lowerer) rvalue(id vreg.ID, il *icode.List) (vreg.ID, error) {
	t := l.typeOf(id)
	switch {
	case t.Bits != nil:
		return l.decode(id, il)
	case t.IsArray() || t.IsFunction():
		d, err := l.vr.Anonymify(id, il)
		if err != nil {
			return vreg.NoID, err
		}
		l.vr.Retype(d, t.Decay())
		return d, nil
	}
	return id, nil
}

func decayed(t *ctype.Type) *ctype.Type {
	if t.IsArray() || t.IsFunction() {
		return t.Decay()
	}
	return t
}

// words returns the per-word widths of a value of type t.
func (l *Lowerer) words(t *ctype.Type) []icode.Width {
	if l.vr.IsMulti(t) {
		lo, hi := l.vr.WordWidths(t)
		return []icode.Width{lo, hi}
	}
	return []icode.Width{l.vr.Width(t)}
}

// movePair copies a value between register sets, ordering the moves so
// overlapping pairs are not clobbered.
func (l *Lowerer) movePair(dst, src icode.Pair, t *ctype.Type, refs icode.Refs, il *icode.List) {
	ws := l.words(t)
	if len(ws) == 1 {
		if dst[0] != src[0] {
			il.Append(&icode.Move{Refs: refs, Dst: dst[0], Src: src[0], W: ws[0]})
		}
		return
	}
	switch {
	case dst[0] == src[1] && dst[1] == src[0]:
		a, b := src[0], src[1]
		il.Append(
			&icode.Binop{Refs: refs, Op: icode.Xor, Dst: a, Src: b, W: ws[0]},
			&icode.Binop{Refs: refs, Op: icode.Xor, Dst: b, Src: a, W: ws[0]},
			&icode.Binop{Refs: refs, Op: icode.Xor, Dst: a, Src: b, W: ws[0]},
		)
	case dst[0] == src[1]:
		il.Append(
			&icode.Move{Refs: refs, Dst: dst[1], Src: src[1], W: ws[1]},
			&icode.Move{Refs: refs, Dst: dst[0], Src: src[0], W: ws[0]},
		)
	default:
		for i := range 2 {
			if dst[i] != src[i] {
				il.Append(&icode.Move{Refs: refs, Dst: dst[i], Src: src[i], W: ws[i]})
			}
		}
	}
}

// copyValue returns a fresh anonymous copy of id's value.
func (l *Lowerer) copyValue(id vreg.ID, il *icode.List) (vreg.ID, error) {
	sp, err := l.vr.FaultIn(id, il)
	if err != nil {
		return vreg.NoID, err
	}
	g := l.vr.Claim(id)
	defer g.Release()
	t := l.typeOf(id)
	nid, np, err := l.vr.NewTemp(t, il)
	if err != nil {
		return vreg.NoID, err
	}
	l.movePair(np, sp, t, icode.Refs{Def: nid, Use: [2]vreg.ID{id}}, il)
	return nid, nil
}

// applyConst computes d = d op k in place. d must be anonymous.
func (l *Lowerer) applyConst(d vreg.ID, op icode.Op, k uint64, w icode.Width, il *icode.List) error {
	pd, err := l.vr.FaultIn(d, il)
	if err != nil {
		return err
	}
	g := l.vr.Claim(d)
	defer g.Release()
	c := l.vr.NewConst(l.sizeType(), k)
	pc, err := l.vr.FaultIn(c, il)
	if err != nil {
		return err
	}
	il.Append(&icode.Binop{Refs: icode.Refs{Def: d, Use: [2]vreg.ID{d, c}}, Op: op, Dst: pd[0], Src: pc[0], W: w})
	l.vr.Unmap(c)
	return nil
}

// binop computes d = d op s word by word. d must be anonymous.
func (l *Lowerer) binop(op icode.Op, d, s vreg.ID, w icode.Width, il *icode.List) error {
	ps, err := l.vr.FaultIn(s, il)
	if err != nil {
		return err
	}
	gs := l.vr.Claim(s)
	defer gs.Release()
	pd, err := l.vr.FaultIn(d, il)
	if err != nil {
		return err
	}
	il.Append(&icode.Binop{Refs: icode.Refs{Def: d, Use: [2]vreg.ID{d, s}}, Op: op, Dst: pd[0], Src: ps[0], W: w})
	return nil
}
