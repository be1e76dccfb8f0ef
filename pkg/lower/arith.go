package lower

import (
	"modernc.org/mathutil"

	"sicc/pkg/ast"
	"sicc/pkg/ctype"
	"sicc/pkg/diag"
	"sicc/pkg/icode"
	"sicc/pkg/vreg"
)

var binops = map[ast.Op]icode.Op{
	ast.Add: icode.Add, ast.Sub: icode.Sub, ast.Mul: icode.Mul, ast.Div: icode.Div,
	ast.Mod: icode.Mod, ast.Shl: icode.Shl, ast.Shr: icode.Shr,
	ast.BitAnd: icode.And, ast.BitOr: icode.Or, ast.BitXor: icode.Xor,
}

// wideOps gives the low and high word operations of a two-register
// operator that needs no runtime routine.
var wideOps = map[ast.Op][2]icode.Op{
	ast.Add:    {icode.Add, icode.Adc},
	ast.Sub:    {icode.Sub, icode.Sbb},
	ast.BitAnd: {icode.And, icode.And},
	ast.BitOr:  {icode.Or, icode.Or},
	ast.BitXor: {icode.Xor, icode.Xor},
}

func runtimeRoutine(op ast.Op, unsigned bool) string {
	switch op {
	case ast.Mul:
		return "__sicc_mul64"
	case ast.Div:
		if unsigned {
			return "__sicc_udiv64"
		}
		return "__sicc_div64"
	case ast.Mod:
		if unsigned {
			return "__sicc_umod64"
		}
		return "__sicc_mod64"
	case ast.Shl:
		return "__sicc_shl64"
	case ast.Shr:
		if unsigned {
			return "__sicc_ushr64"
		}
		return "__sicc_shr64"
	}
	return ""
}

func isPow2(v uint64) bool { return mathutil.PopCountUint64(v) == 1 }

func log2(v uint64) uint64 { return uint64(mathutil.BitLenUint64(v) - 1) }

func (l *Lowerer) binary(e *ast.Binary, il *icode.List) (vreg.ID, error) {
	a, err := l.operand(e.X, il)
	if err != nil {
		return vreg.NoID, err
	}
	b, err := l.operand(e.Y, il)
	if err != nil {
		return vreg.NoID, err
	}
	ta, tb := decayed(l.typeOf(a)), decayed(l.typeOf(b))
	if (e.Op == ast.Add || e.Op == ast.Sub) && (ta.IsPointer() || tb.IsPointer()) {
		return l.pointerArith(e.Pos(), e.Op, a, b, il)
	}
	if err := l.checkArith(e.Pos(), e.Op, ta, tb); err != nil {
		return vreg.NoID, err
	}
	a, b, t, err := l.convertOperands(e.Pos(), e.Op, a, b, e.X, e.Y, il)
	if err != nil {
		return vreg.NoID, err
	}
	return l.arith(e.Pos(), e.Op, a, b, t, il)
}

// checkArith validates operand types of a non-pointer arithmetic operator.
func (l *Lowerer) checkArith(pos ast.Pos, op ast.Op, ta, tb *ctype.Type) error {
	switch op {
	case ast.Add, ast.Sub, ast.Mul, ast.Div:
		if ta.IsArith() && tb.IsArith() {
			return nil
		}
	case ast.Mod, ast.Shl, ast.Shr, ast.BitAnd, ast.BitOr, ast.BitXor:
		if ta.IsInteger() && tb.IsInteger() {
			return nil
		}
	}
	return l.invalidOperands(pos, op, ta, tb)
}

// arith computes a op b on operands already converted to t (for shifts, a
// has type t and b its own promoted type).
func (l *Lowerer) arith(pos ast.Pos, op ast.Op, a, b vreg.ID, t *ctype.Type, il *icode.List) (vreg.ID, error) {
	ca, cb := l.vr.Get(a).Const, l.vr.Get(b).Const
	if ca != nil && cb != nil {
		if v, ok := l.fold(op, ca.Bits, cb.Bits, t, l.typeOf(b)); ok {
			return l.vr.NewConst(t, v), nil
		}
	}
	if (op == ast.Div || op == ast.Mod) && cb != nil && cb.Bits == 0 && t.IsInteger() {
		l.warnf(pos, diag.WarnDivByZero, "division by zero")
	}
	if !t.IsFloat() && l.vr.IsMulti(t) {
		return l.arithWide(op, a, b, t, il)
	}
	if l.opts.Optimize > 0 {
		if d, ok, err := l.strengthReduce(op, a, b, t, il); ok || err != nil {
			return d, err
		}
	}
	d, err := l.vr.Anonymify(a, il)
	if err != nil {
		return vreg.NoID, err
	}
	if err := l.binop(binops[op], d, b, l.vr.Width(t), il); err != nil {
		return vreg.NoID, err
	}
	return d, nil
}

func (l *Lowerer) arithWide(op ast.Op, a, b vreg.ID, t *ctype.Type, il *icode.List) (vreg.ID, error) {
	ops, ok := wideOps[op]
	if !ok {
		return l.runtimeCall(runtimeRoutine(op, l.tgt.IsUnsigned(t)), t, il, a, b)
	}
	pb, err := l.vr.FaultIn(b, il)
	if err != nil {
		return vreg.NoID, err
	}
	gb := l.vr.Claim(b)
	defer gb.Release()
	d, err := l.vr.Anonymify(a, il)
	if err != nil {
		return vreg.NoID, err
	}
	pd := l.vr.Get(d).Pregs
	lo, hi := l.vr.WordWidths(t)
	refs := icode.Refs{Def: d, Use: [2]vreg.ID{d, b}}
	il.Append(
		&icode.Binop{Refs: refs, Op: ops[0], Dst: pd[0], Src: pb[0], W: lo},
		&icode.Binop{Refs: refs, Op: ops[1], Dst: pd[1], Src: pb[1], W: hi},
	)
	return d, nil
}

// strengthReduce rewrites multiply, divide and modulo by a power of two.
// Only unsigned operands qualify, plus multiplication with the constant on
// the left; a shift does not round a negative quotient toward zero.
func (l *Lowerer) strengthReduce(op ast.Op, a, b vreg.ID, t *ctype.Type, il *icode.List) (vreg.ID, bool, error) {
	if !t.IsInteger() {
		return vreg.NoID, false, nil
	}
	unsigned := l.tgt.IsUnsigned(t)
	ca, cb := l.vr.Get(a).Const, l.vr.Get(b).Const
	w := l.vr.Width(t)

	var x vreg.ID
	var iop icode.Op
	var k uint64
	switch {
	case op == ast.Mul && ca != nil && isPow2(ca.Bits):
		x, iop, k = b, icode.Shl, log2(ca.Bits)
	case op == ast.Mul && unsigned && cb != nil && isPow2(cb.Bits):
		x, iop, k = a, icode.Shl, log2(cb.Bits)
	case op == ast.Div && unsigned && cb != nil && isPow2(cb.Bits):
		x, iop, k = a, icode.Shr, log2(cb.Bits)
	case op == ast.Mod && unsigned && cb != nil && isPow2(cb.Bits):
		x, iop, k = a, icode.And, cb.Bits-1
	default:
		return vreg.NoID, false, nil
	}
	d, err := l.vr.Anonymify(x, il)
	if err != nil {
		return vreg.NoID, true, err
	}
	if err := l.applyConst(d, iop, k, w, il); err != nil {
		return vreg.NoID, true, err
	}
	return d, true, nil
}
