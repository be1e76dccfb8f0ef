package lower

import (
	"math"

	"sicc/pkg/ast"
	"sicc/pkg/ctype"
	"sicc/pkg/diag"
	"sicc/pkg/icode"
	"sicc/pkg/vreg"
)

// expr lowers e and returns the vreg designating its result, or NoID for
// a void expression. Lvalues are returned unloaded so callers can read,
// write or take the address of them.
func (l *Lowerer) expr(e ast.Expr, il *icode.List, r role) (vreg.ID, error) {
	switch e := e.(type) {
	case *ast.Ident:
		return l.vr.NewVar(e.Decl), nil
	case *ast.IntLit:
		return l.vr.NewConst(e.T, l.normalize(e.Value, e.T)), nil
	case *ast.FloatLit:
		f := e.Value
		if l.tgt.Size(e.T.Kind) == 4 {
			f = float64(float32(f))
		}
		return l.vr.NewConst(e.T, math.Float64bits(f)), nil
	case *ast.StringLit:
		return l.vr.NewVar(l.stringDecl(e)), nil
	case *ast.SizeofType:
		return l.runtimeSize(e.Of, il)
	case *ast.Unary:
		return l.unary(e, il)
	case *ast.Binary:
		switch {
		case e.Op == ast.Comma:
			if _, err := l.expr(e.X, il, asEffect); err != nil {
				return vreg.NoID, err
			}
			return l.expr(e.Y, il, r)
		case e.Op == ast.LogAnd || e.Op == ast.LogOr || e.Op.IsRelational():
			return l.boolValue(e, il)
		}
		return l.binary(e, il)
	case *ast.Assign:
		if e.Op != 0 {
			return l.compound(e, il, r)
		}
		return l.assign(e, il, r)
	case *ast.IncDec:
		return l.incDec(e, il, r)
	case *ast.Cond:
		return l.ternary(e, il, r, vreg.NoID)
	case *ast.Cast:
		return l.cast(e, il)
	case *ast.Member:
		return l.member(e, il)
	case *ast.Index:
		return l.index(e, il)
	case *ast.Call:
		return l.call(e, il)
	}
	return vreg.NoID, l.errorf(e.Pos(), diag.ErrUnsupported, "unsupported expression %s", e)
}

func (l *Lowerer) stringDecl(s *ast.StringLit) *ast.Decl {
	if d, ok := l.strDecls[s.Sym]; ok {
		return d
	}
	d := &ast.Decl{Name: s.Sym, Type: s.T, Storage: ctype.Static, Sym: s.Sym, Defined: true}
	l.strDecls[s.Sym] = d
	return d
}

func (l *Lowerer) unary(e *ast.Unary, il *icode.List) (vreg.ID, error) {
	switch e.Op {
	case ast.Not:
		return l.boolValue(e, il)

	case ast.Deref:
		p, err := l.value(e.X, il)
		if err != nil {
			return vreg.NoID, err
		}
		pt := l.typeOf(p)
		if !pt.IsPointer() {
			return vreg.NoID, l.errorf(e.Pos(), diag.ErrInvalidOperands, "invalid type argument of unary '*' (have '%s')", pt)
		}
		elem := pt.Elem()
		if elem.IsVoid() {
			return vreg.NoID, l.errorf(e.Pos(), diag.ErrInvalidOperands, "dereferencing 'void *' pointer")
		}
		return l.vr.NewDeref(p, elem, 0), nil

	case ast.AddrOf:
		x, err := l.operand(e.X, il)
		if err != nil {
			return vreg.NoID, err
		}
		v := l.vr.Get(x)
		switch {
		case v.Type.IsFunction():
			return l.rvalue(x, il)
		case v.Type.Bits != nil:
			return vreg.NoID, l.errorf(e.Pos(), diag.ErrInvalidOperands, "cannot take address of bit-field")
		case !v.IsLvalue() && v.Stack == nil:
			return vreg.NoID, l.errorf(e.Pos(), diag.ErrNotLvalue, "lvalue required as unary '&' operand")
		}
		p, err := l.vr.AddrOf(x, il)
		if err != nil {
			return vreg.NoID, err
		}
		l.vr.Retype(p, e.T)
		return p, nil

	case ast.Plus, ast.Neg, ast.Compl:
		x, err := l.operand(e.X, il)
		if err != nil {
			return vreg.NoID, err
		}
		xt := decayed(l.typeOf(x))
		if !xt.IsArith() || (e.Op == ast.Compl && !xt.IsInteger()) {
			return vreg.NoID, l.errorf(e.Pos(), diag.ErrInvalidOperands, "wrong type argument to unary %s (have '%s')", e.Op, xt)
		}
		x, err = l.promote(x, il)
		if err != nil || e.Op == ast.Plus {
			return x, err
		}
		op := icode.Neg
		if e.Op == ast.Compl {
			op = icode.Not
		}
		return l.negate(op, x, il)
	}
	return vreg.NoID, l.errorf(e.Pos(), diag.ErrUnsupported, "unsupported unary operator %s", e.Op)
}

// negate computes -x or ~x on a promoted operand.
func (l *Lowerer) negate(op icode.Op, x vreg.ID, il *icode.List) (vreg.ID, error) {
	t := l.typeOf(x)
	if c := l.vr.Get(x).Const; c != nil {
		if t.IsFloat() {
			return l.vr.NewConst(t, math.Float64bits(-math.Float64frombits(c.Bits))), nil
		}
		v := -c.Bits
		if op == icode.Not {
			v = ^c.Bits
		}
		return l.vr.NewConst(t, l.normalize(v, t)), nil
	}
	if l.vr.IsMulti(t) && op == icode.Neg {
		// 0 - x with a borrow between the words.
		d, p, err := l.vr.NewTemp(t, il)
		if err != nil {
			return vreg.NoID, err
		}
		g := l.vr.Claim(d)
		defer g.Release()
		px, err := l.vr.FaultIn(x, il)
		if err != nil {
			return vreg.NoID, err
		}
		lo, hi := l.vr.WordWidths(t)
		refs := icode.Refs{Def: d, Use: [2]vreg.ID{x}}
		il.Append(
			&icode.LoadConst{Refs: refs, Dst: p[0], W: lo},
			&icode.LoadConst{Refs: refs, Dst: p[1], W: hi},
			&icode.Binop{Refs: refs, Op: icode.Sub, Dst: p[0], Src: px[0], W: lo},
			&icode.Binop{Refs: refs, Op: icode.Sbb, Dst: p[1], Src: px[1], W: hi},
		)
		return d, nil
	}
	d, err := l.vr.Anonymify(x, il)
	if err != nil {
		return vreg.NoID, err
	}
	p := l.vr.Get(d).Pregs
	ws := l.words(t)
	for i, w := range ws {
		il.Append(&icode.Unop{Refs: icode.Refs{Def: d, Use: [2]vreg.ID{d}}, Op: op, Dst: p[i], W: w})
	}
	return d, nil
}

func (l *Lowerer) cast(e *ast.Cast, il *icode.List) (vreg.ID, error) {
	to := e.T.Unqualified()
	x, err := l.expr(e.X, il, asValue)
	if err != nil {
		return vreg.NoID, err
	}
	if to.IsVoid() {
		return vreg.NoID, nil
	}
	if x == vreg.NoID {
		return vreg.NoID, l.errorf(e.Pos(), diag.ErrInvalidOperands, "void value not ignored as it ought to be")
	}
	from := decayed(l.typeOf(x))
	switch {
	case !to.IsScalar():
		return vreg.NoID, l.errorf(e.Pos(), diag.ErrIncompatibleType, "conversion to non-scalar type requested")
	case !from.IsScalar():
		return vreg.NoID, l.errorf(e.Pos(), diag.ErrIncompatibleType, "cannot convert '%s' to '%s'", from, to)
	case from.IsFloat() && to.IsPointer(), from.IsPointer() && to.IsFloat():
		return vreg.NoID, l.errorf(e.Pos(), diag.ErrIncompatibleType, "cannot convert '%s' to '%s'", from, to)
	}
	return l.convert(x, to, il)
}

// member lowers s.f and p->f. The result is re-expressed directly against
// the outermost base so chains of member operators stay one level deep.
func (l *Lowerer) member(e *ast.Member, il *icode.List) (vreg.ID, error) {
	var base vreg.ID
	if e.Arrow {
		p, err := l.value(e.X, il)
		if err != nil {
			return vreg.NoID, err
		}
		pt := l.typeOf(p)
		if !pt.IsPointer() || !pt.Elem().IsRecord() {
			return vreg.NoID, l.errorf(e.Pos(), diag.ErrInvalidOperands, "invalid type argument of '->' (have '%s')", pt)
		}
		base = l.vr.NewDeref(p, pt.Elem(), 0)
	} else {
		var err error
		if base, err = l.operand(e.X, il); err != nil {
			return vreg.NoID, err
		}
		if !l.typeOf(base).IsRecord() {
			return vreg.NoID, l.errorf(e.Pos(), diag.ErrInvalidOperands, "request for member '%s' in something not a structure or union", e.Field.Name)
		}
	}
	mt := e.Field.Type
	if q := l.typeOf(base).TopQual(); q != 0 {
		mt = mt.WithQual(q)
	}
	return l.vr.Disconnect(l.vr.NewMember(base, mt, e.Field.Offset)), nil
}

// index lowers a[i] as *(a + i). A constant index into an array object of
// fixed element size becomes a member access with no arithmetic.
func (l *Lowerer) index(e *ast.Index, il *icode.List) (vreg.ID, error) {
	a, err := l.operand(e.X, il)
	if err != nil {
		return vreg.NoID, err
	}
	i, err := l.operand(e.Idx, il)
	if err != nil {
		return vreg.NoID, err
	}
	if decayed(l.typeOf(i)).IsPointer() {
		a, i = i, a
	}
	at := l.typeOf(a)
	if c := l.vr.Get(i).Const; c != nil && at.IsArray() && !at.IsVLA() && l.typeOf(i).IsInteger() && l.vr.Get(a).IsLvalue() {
		elem := at.Elem()
		off := int64(c.Bits) * elem.Size(l.tgt)
		return l.vr.Disconnect(l.vr.NewMember(a, elem, off)), nil
	}
	p, err := l.pointerArith(e.Pos(), ast.Add, a, i, il)
	if err != nil {
		return vreg.NoID, err
	}
	return l.vr.NewDeref(p, l.typeOf(p).Elem(), 0), nil
}

// call passes arguments through frame slots. Registers do not survive a
// call, so everything live is spilled first.
func (l *Lowerer) call(e *ast.Call, il *icode.List) (vreg.ID, error) {
	ft := e.Fn.Type
	sig := ft.Func()
	if sig == nil {
		return vreg.NoID, l.errorf(e.Pos(), diag.ErrInvalidOperands, "called object '%s' is not a function", e.Fn.Name)
	}
	ret := ft.Elem()
	if ret.IsRecord() {
		return vreg.NoID, l.errorf(e.Pos(), diag.ErrUnsupported, "functions returning '%s' are not supported", ret)
	}
	if sig.Proto {
		switch {
		case len(e.Args) < len(sig.Params):
			return vreg.NoID, l.errorf(e.Pos(), diag.ErrInvalidOperands, "too few arguments to function '%s'", e.Fn.Name)
		case len(e.Args) > len(sig.Params) && !sig.Variadic:
			return vreg.NoID, l.errorf(e.Pos(), diag.ErrInvalidOperands, "too many arguments to function '%s'", e.Fn.Name)
		}
	}
	var args []icode.Arg
	for i, a := range e.Args {
		v, err := l.value(a, il)
		if err != nil {
			return vreg.NoID, err
		}
		var pt *ctype.Type
		if sig.Proto && i < len(sig.Params) {
			pt = sig.Params[i].Unqualified()
			if err := l.checkAssign(a.Pos(), pt, v, a, "passing argument"); err != nil {
				return vreg.NoID, err
			}
		} else {
			pt = l.argPromote(l.typeOf(v))
		}
		if pt.IsRecord() {
			return vreg.NoID, l.errorf(a.Pos(), diag.ErrUnsupported, "passing '%s' by value is not supported", pt)
		}
		if v, err = l.convert(v, pt, il); err != nil {
			return vreg.NoID, err
		}
		arg, err := l.passArg(v, pt, il)
		if err != nil {
			return vreg.NoID, err
		}
		args = append(args, arg)
	}
	return l.emitCall(e.Fn.Sym, args, ret, il)
}

// argPromote applies the default argument promotions.
func (l *Lowerer) argPromote(t *ctype.Type) *ctype.Type {
	if t.IsFloat() && t.Kind == ctype.Float {
		return l.basic(ctype.Double)
	}
	return ctype.Promote(l.tgt, t)
}

// passArg stores an argument into a fresh outgoing slot.
func (l *Lowerer) passArg(v vreg.ID, t *ctype.Type, il *icode.List) (icode.Arg, error) {
	w := l.vr.Width(t)
	if l.vr.IsMulti(t) {
		w = icode.Width{Size: t.Size(l.tgt), Unsigned: w.Unsigned}
	}
	slot := l.vr.Frame.Alloc(w.Size, min(w.Size, l.tgt.RegSize))
	if err := l.vr.StoreTo(l.vr.NewStacked(t, slot), v, il); err != nil {
		return icode.Arg{}, err
	}
	return icode.Arg{Addr: icode.FrameAddr(slot.Off), W: w}, nil
}

func (l *Lowerer) emitCall(fn string, args []icode.Arg, ret *ctype.Type, il *icode.List) (vreg.ID, error) {
	if err := l.vr.InvalidateAll(il); err != nil {
		return vreg.NoID, err
	}
	if ret.IsVoid() {
		il.Append(&icode.Call{Fn: fn, Args: args, Ret: icode.NoPair})
		return vreg.NoID, nil
	}
	res, p, err := l.vr.NewTemp(ret, il)
	if err != nil {
		return vreg.NoID, err
	}
	rw := l.vr.Width(ret)
	if l.vr.IsMulti(ret) {
		rw.Size = ret.Size(l.tgt)
	}
	il.Append(&icode.Call{Refs: icode.Refs{Def: res}, Fn: fn, Args: args, Ret: p, RetW: rw})
	return res, nil
}

// runtimeCall invokes a software arithmetic routine on two-register
// operands.
func (l *Lowerer) runtimeCall(fn string, ret *ctype.Type, il *icode.List, args ...vreg.ID) (vreg.ID, error) {
	var out []icode.Arg
	for _, a := range args {
		arg, err := l.passArg(a, l.typeOf(a), il)
		if err != nil {
			return vreg.NoID, err
		}
		out = append(out, arg)
	}
	return l.emitCall(fn, out, ret, il)
}
