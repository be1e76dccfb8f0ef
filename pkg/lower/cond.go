package lower

import (
	"sicc/pkg/ast"
	"sicc/pkg/ctype"
	"sicc/pkg/diag"
	"sicc/pkg/icode"
	"sicc/pkg/vreg"
)

var relConds = map[ast.Op]icode.Cond{
	ast.Eq: icode.Eq, ast.Ne: icode.Ne,
	ast.Lt: icode.Lt, ast.Le: icode.Le,
	ast.Gt: icode.Gt, ast.Ge: icode.Ge,
}

// constTruth folds e when it is a constant expression.
func (l *Lowerer) constTruth(e ast.Expr) (truth, ok bool) {
	if !e.Type().IsScalar() {
		return false, false
	}
	v, err := l.Eval(e, Optional)
	if err != nil {
		return false, false
	}
	return v != 0, true
}

// cond lowers e as a condition: control reaches target when e's truth
// equals onTrue and falls through otherwise. Every register is spilled
// before each branch, so on both paths the register file is empty.
func (l *Lowerer) cond(e ast.Expr, il *icode.List, target icode.Label, onTrue bool) error {
	if truth, ok := l.constTruth(e); ok {
		if truth == onTrue {
			if err := l.vr.InvalidateAll(il); err != nil {
				return err
			}
			il.Append(&icode.Jump{Target: target})
		}
		return nil
	}
	switch e := e.(type) {
	case *ast.Unary:
		if e.Op == ast.Not {
			return l.cond(e.X, il, target, !onTrue)
		}
	case *ast.Binary:
		switch {
		case e.Op == ast.LogAnd || e.Op == ast.LogOr:
			return l.condLogical(e, il, target, onTrue)
		case e.Op == ast.Comma:
			if _, err := l.expr(e.X, il, asEffect); err != nil {
				return err
			}
			return l.cond(e.Y, il, target, onTrue)
		case e.Op.IsRelational():
			return l.condCompare(e, il, target, onTrue)
		}
	}
	id, err := l.value(e, il)
	if err != nil {
		return err
	}
	if !l.typeOf(id).IsScalar() {
		return l.errorf(e.Pos(), diag.ErrInvalidOperands, "used %s where scalar is required", l.typeOf(id))
	}
	return l.testZero(id, il, target, onTrue)
}

// condLogical lowers && and ||. The right operand is lowered only on the
// path where it decides the result, and not at all when the left operand
// is a constant that already does.
func (l *Lowerer) condLogical(e *ast.Binary, il *icode.List, target icode.Label, onTrue bool) error {
	and := e.Op == ast.LogAnd
	if truth, ok := l.constTruth(e.X); ok {
		if truth != and {
			// 0 && y is false, 1 || y is true.
			if truth == onTrue {
				if err := l.vr.InvalidateAll(il); err != nil {
					return err
				}
				il.Append(&icode.Jump{Target: target})
			}
			return nil
		}
		return l.cond(e.Y, il, target, onTrue)
	}
	if and == onTrue {
		skip := l.newLabel()
		if err := l.cond(e.X, il, skip, !and); err != nil {
			return err
		}
		if err := l.cond(e.Y, il, target, onTrue); err != nil {
			return err
		}
		il.Append(&icode.Mark{Label: skip})
		return nil
	}
	if err := l.cond(e.X, il, target, onTrue); err != nil {
		return err
	}
	return l.cond(e.Y, il, target, onTrue)
}

// testZero branches to target when id's truth equals onTrue.
func (l *Lowerer) testZero(id vreg.ID, il *icode.List, target icode.Label, onTrue bool) error {
	t := l.typeOf(id)
	p, err := l.vr.FaultIn(id, il)
	if err != nil {
		return err
	}
	if err := l.vr.InvalidateAll(il); err != nil {
		return err
	}
	use := icode.Refs{Use: [2]vreg.ID{id}}
	c := icode.Ne
	if !onTrue {
		c = icode.Eq
	}
	if !l.vr.IsMulti(t) {
		il.Append(
			&icode.Cmp{Refs: use, A: p[0], B: icode.NoReg, W: l.vr.Width(t)},
			&icode.Branch{Cond: c, Unsigned: true, Target: target},
		)
		return nil
	}
	lo, hi := l.vr.WordWidths(t)
	if onTrue {
		il.Append(
			&icode.Cmp{Refs: use, A: p[1], B: icode.NoReg, W: hi},
			&icode.Branch{Cond: icode.Ne, Unsigned: true, Target: target},
			&icode.Cmp{Refs: use, A: p[0], B: icode.NoReg, W: lo},
			&icode.Branch{Cond: icode.Ne, Unsigned: true, Target: target},
		)
		return nil
	}
	skip := l.newLabel()
	il.Append(
		&icode.Cmp{Refs: use, A: p[1], B: icode.NoReg, W: hi},
		&icode.Branch{Cond: icode.Ne, Unsigned: true, Target: skip},
		&icode.Cmp{Refs: use, A: p[0], B: icode.NoReg, W: lo},
		&icode.Branch{Cond: icode.Eq, Unsigned: true, Target: target},
		&icode.Mark{Label: skip},
	)
	return nil
}

// condCompare lowers a relational or equality operator as a condition.
func (l *Lowerer) condCompare(e *ast.Binary, il *icode.List, target icode.Label, onTrue bool) error {
	a, err := l.operand(e.X, il)
	if err != nil {
		return err
	}
	b, err := l.operand(e.Y, il)
	if err != nil {
		return err
	}
	ta, tb := decayed(l.typeOf(a)), decayed(l.typeOf(b))
	na, nb := l.nonNegativeConst(a), l.nonNegativeConst(b)
	a, b, t, err := l.convertOperands(e.Pos(), e.Op, a, b, e.X, e.Y, il)
	if err != nil {
		return err
	}
	if e.Op != ast.Eq && e.Op != ast.Ne && ta.IsInteger() && tb.IsInteger() && l.tgt.IsUnsigned(t) {
		ua := l.tgt.IsUnsigned(ctype.Promote(l.tgt, ta))
		ub := l.tgt.IsUnsigned(ctype.Promote(l.tgt, tb))
		if ua != ub && !na && !nb {
			l.warnf(e.Pos(), diag.WarnSignCompare, "comparison of integer expressions of different signedness: '%s' and '%s'", ta, tb)
		}
	}
	c := relConds[e.Op]
	if !onTrue {
		c = c.Negate()
	}
	if l.vr.IsMulti(t) {
		return l.wideCompare(c, a, b, t, il, target)
	}
	pb, err := l.vr.FaultIn(b, il)
	if err != nil {
		return err
	}
	gb := l.vr.Claim(b)
	pa, err := l.vr.FaultIn(a, il)
	gb.Release()
	if err != nil {
		return err
	}
	if err := l.vr.InvalidateAll(il); err != nil {
		return err
	}
	w := l.vr.Width(t)
	il.Append(
		&icode.Cmp{Refs: icode.Refs{Use: [2]vreg.ID{a, b}}, A: pa[0], B: pb[0], W: w},
		&icode.Branch{Cond: c, Unsigned: w.Unsigned, Target: target},
	)
	return nil
}

func (l *Lowerer) nonNegativeConst(id vreg.ID) bool {
	v := l.vr.Get(id)
	return v.Const != nil && int64(v.Const.Bits) >= 0
}

// wideCompare branches to target when a c b holds for two-register
// integers. The high words decide unless they are equal; the low words
// then break the tie with an unsigned compare whatever the signedness of
// the type.
func (l *Lowerer) wideCompare(c icode.Cond, a, b vreg.ID, t *ctype.Type, il *icode.List, target icode.Label) error {
	pb, err := l.vr.FaultIn(b, il)
	if err != nil {
		return err
	}
	gb := l.vr.Claim(b)
	pa, err := l.vr.FaultIn(a, il)
	gb.Release()
	if err != nil {
		return err
	}
	if err := l.vr.InvalidateAll(il); err != nil {
		return err
	}
	lo, hi := l.vr.WordWidths(t)
	use := icode.Refs{Use: [2]vreg.ID{a, b}}
	skip := l.newLabel()
	il.Append(&icode.Cmp{Refs: use, A: pa[1], B: pb[1], W: hi})
	switch c {
	case icode.Eq:
		il.Append(&icode.Branch{Cond: icode.Ne, Unsigned: hi.Unsigned, Target: skip})
	case icode.Ne:
		il.Append(&icode.Branch{Cond: icode.Ne, Unsigned: hi.Unsigned, Target: target})
	default:
		il.Append(
			&icode.Branch{Cond: c.Strict(), Unsigned: hi.Unsigned, Target: target},
			&icode.Branch{Cond: icode.Ne, Unsigned: hi.Unsigned, Target: skip},
		)
	}
	il.Append(
		&icode.Cmp{Refs: use, A: pa[0], B: pb[0], W: lo},
		&icode.Branch{Cond: c, Unsigned: true, Target: target},
		&icode.Mark{Label: skip},
	)
	return nil
}

// setClear materializes a 0/1 int from a branch sequence that jumps to
// its argument label when the result is 1.
func (l *Lowerer) setClear(il *icode.List, branches func(onTrue icode.Label) error) (vreg.ID, error) {
	ltrue, join := l.newLabel(), l.newLabel()
	if err := branches(ltrue); err != nil {
		return vreg.NoID, err
	}
	res, p, err := l.vr.NewTemp(l.basic(ctype.Int), il)
	if err != nil {
		return vreg.NoID, err
	}
	w := l.vr.Width(l.basic(ctype.Int))
	def := icode.Refs{Def: res}
	il.Append(
		&icode.LoadConst{Refs: def, Dst: p[0], Value: 0, W: w},
		&icode.Jump{Target: join},
		&icode.Mark{Label: ltrue},
		&icode.LoadConst{Refs: def, Dst: p[0], Value: 1, W: w},
		&icode.Mark{Label: join},
	)
	return res, nil
}

// boolValue lowers a relational, logical or ! expression for its 0/1
// value.
func (l *Lowerer) boolValue(e ast.Expr, il *icode.List) (vreg.ID, error) {
	if v, err := l.Eval(e, Optional); err == nil {
		return l.vr.NewConst(l.basic(ctype.Int), v), nil
	}
	return l.setClear(il, func(ltrue icode.Label) error {
		return l.cond(e, il, ltrue, true)
	})
}

// toBool converts a scalar to _Bool.
func (l *Lowerer) toBool(id vreg.ID, il *icode.List) (vreg.ID, error) {
	res, err := l.setClear(il, func(ltrue icode.Label) error {
		return l.testZero(id, il, ltrue, true)
	})
	if err != nil {
		return vreg.NoID, err
	}
	d, err := l.vr.Anonymify(res, il)
	if err != nil {
		return vreg.NoID, err
	}
	l.vr.Retype(d, l.basic(ctype.Bool))
	return d, nil
}
