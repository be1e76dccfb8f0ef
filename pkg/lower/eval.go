package lower

import (
	"errors"
	"fmt"
	"math"

	"sicc/pkg/ast"
	"sicc/pkg/ctype"
	"sicc/pkg/diag"
)

// EvalMode says whether a constant is required or merely wanted.
type EvalMode uint8

const (
	// Required reports forbidden operators as errors.
	Required EvalMode = iota
	// Optional returns ErrNotConstant so the caller can fall back to
	// run-time evaluation.
	Optional
)

var ErrNotConstant = errors.New("not a constant expression")

type notConstError struct {
	msg string
}

func (e *notConstError) Error() string { return ErrNotConstant.Error() + ": " + e.msg }
func (e *notConstError) Unwrap() error { return ErrNotConstant }

func notConst(format string, args ...any) error {
	return &notConstError{msg: fmt.Sprintf(format, args...)}
}

// Eval folds an integer constant expression. The result is normalized to
// the expression's type: truncated to its width and sign or zero
// extended to 64 bits.
func (l *Lowerer) Eval(e ast.Expr, mode EvalMode) (uint64, error) {
	v, err := l.eval(e)
	if err == nil {
		return v, nil
	}
	if mode == Optional {
		return 0, err
	}
	msg := err.Error()
	var nc *notConstError
	if errors.As(err, &nc) {
		msg = nc.msg
	}
	return 0, l.errorf(e.Pos(), diag.ErrNotConstant, "%s", msg)
}

func (l *Lowerer) eval(e ast.Expr) (uint64, error) {
	switch e := e.(type) {
	case *ast.IntLit:
		return l.normalize(e.Value, e.T), nil

	case *ast.Cast:
		if !e.T.IsInteger() && !e.T.IsPointer() {
			return 0, notConst("cast to '%s' in an integer constant expression", e.T)
		}
		if fl, ok := e.X.(*ast.FloatLit); ok {
			v, _ := l.foldConvert(math.Float64bits(fl.Value), fl.T, e.T)
			return v, nil
		}
		x, err := l.eval(e.X)
		if err != nil {
			return 0, err
		}
		xt := decayed(e.X.Type())
		if !xt.IsInteger() && !xt.IsPointer() {
			return 0, notConst("operand of type '%s' in an integer constant expression", xt)
		}
		v, _ := l.foldConvert(x, xt, e.T)
		return v, nil

	case *ast.Unary:
		switch e.Op {
		case ast.Plus, ast.Neg, ast.Compl:
			x, err := l.evalAs(e.X, e.T)
			if err != nil {
				return 0, err
			}
			switch e.Op {
			case ast.Neg:
				x = -x
			case ast.Compl:
				x = ^x
			}
			return l.normalize(x, e.T), nil
		case ast.Not:
			x, err := l.eval(e.X)
			if err != nil {
				return 0, err
			}
			return b2u(x == 0), nil
		}
		return 0, notConst("unary '%s' in a constant expression", e.Op)

	case *ast.Binary:
		return l.evalBinary(e)

	case *ast.Cond:
		c, err := l.eval(e.C)
		if err != nil {
			return 0, err
		}
		arm := e.Else
		if c != 0 {
			arm = e.Then
		}
		return l.evalAs(arm, e.T)

	case *ast.Assign:
		return 0, notConst("assignment is not allowed in a constant expression")
	case *ast.IncDec:
		return 0, notConst("increment or decrement is not allowed in a constant expression")
	case *ast.Call:
		return 0, notConst("function call is not allowed in a constant expression")
	case *ast.Ident:
		return 0, notConst("'%s' is not a constant", e.Decl.Name)
	}
	return 0, notConst("'%s' is not a constant expression", e)
}

// evalAs folds e and converts the result to t.
func (l *Lowerer) evalAs(e ast.Expr, t *ctype.Type) (uint64, error) {
	x, err := l.eval(e)
	if err != nil {
		return 0, err
	}
	xt := decayed(e.Type())
	if !xt.IsScalar() || xt.IsFloat() {
		return 0, notConst("operand of type '%s' in an integer constant expression", xt)
	}
	v, _ := l.foldConvert(x, xt, t)
	return v, nil
}

func (l *Lowerer) evalBinary(e *ast.Binary) (uint64, error) {
	switch e.Op {
	case ast.LogAnd, ast.LogOr:
		x, err := l.eval(e.X)
		if err != nil {
			return 0, err
		}
		if (x != 0) == (e.Op == ast.LogOr) {
			return b2u(x != 0), nil
		}
		y, err := l.eval(e.Y)
		if err != nil {
			return 0, err
		}
		return b2u(y != 0), nil
	case ast.Comma:
		return 0, notConst("comma operator is not allowed in a constant expression")
	}

	tx, ty := decayed(e.X.Type()), decayed(e.Y.Type())
	if !tx.IsInteger() || !ty.IsInteger() {
		return 0, notConst("operands of type '%s' and '%s' in an integer constant expression", tx, ty)
	}
	t := ctype.Common(l.tgt, tx, ty)
	if e.Op.IsShift() {
		t = ctype.Promote(l.tgt, tx)
	}
	x, err := l.evalAs(e.X, t)
	if err != nil {
		return 0, err
	}
	yt := t
	if e.Op.IsShift() {
		yt = ctype.Promote(l.tgt, ty)
	}
	y, err := l.evalAs(e.Y, yt)
	if err != nil {
		return 0, err
	}
	if e.Op.IsRelational() {
		return b2u(compare(e.Op, x, y, l.tgt.IsUnsigned(t))), nil
	}
	v, ok := l.fold(e.Op, x, y, t, yt)
	if !ok {
		if e.Op == ast.Div || e.Op == ast.Mod {
			return 0, notConst("division by zero in a constant expression")
		}
		return 0, notConst("'%s' cannot be folded", e)
	}
	return v, nil
}

func compare(op ast.Op, x, y uint64, unsigned bool) bool {
	var lt bool
	if unsigned {
		lt = x < y
	} else {
		lt = int64(x) < int64(y)
	}
	switch op {
	case ast.Eq:
		return x == y
	case ast.Ne:
		return x != y
	case ast.Lt:
		return lt
	case ast.Le:
		return lt || x == y
	case ast.Gt:
		return !lt && x != y
	case ast.Ge:
		return !lt
	}
	return false
}

// fold computes x op y for normalized constants of type t; yt is the type
// of y, which differs from t only for shifts. It reports false when the
// operation cannot be folded.
func (l *Lowerer) fold(op ast.Op, x, y uint64, t, yt *ctype.Type) (uint64, bool) {
	if t.IsFloat() {
		fx, fy := math.Float64frombits(x), math.Float64frombits(y)
		var f float64
		switch op {
		case ast.Add:
			f = fx + fy
		case ast.Sub:
			f = fx - fy
		case ast.Mul:
			f = fx * fy
		case ast.Div:
			f = fx / fy
		default:
			return 0, false
		}
		if l.tgt.Size(t.Kind) == 4 {
			f = float64(float32(f))
		}
		return math.Float64bits(f), true
	}
	if !t.IsInteger() {
		return 0, false
	}
	unsigned := l.tgt.IsUnsigned(t)
	var v uint64
	switch op {
	case ast.Add:
		v = x + y
	case ast.Sub:
		v = x - y
	case ast.Mul:
		v = x * y
	case ast.Div, ast.Mod:
		if y == 0 {
			return 0, false
		}
		switch {
		case unsigned && op == ast.Div:
			v = x / y
		case unsigned:
			v = x % y
		case op == ast.Div:
			v = uint64(int64(x) / int64(y))
		default:
			v = uint64(int64(x) % int64(y))
		}
	case ast.Shl, ast.Shr:
		if !l.tgt.IsUnsigned(yt) && int64(y) < 0 || y >= uint64(t.Size(l.tgt)*8) {
			return 0, false
		}
		switch {
		case op == ast.Shl:
			v = x << y
		case unsigned:
			v = x >> y
		default:
			v = uint64(int64(x) >> y)
		}
	case ast.BitAnd:
		v = x & y
	case ast.BitOr:
		v = x | y
	case ast.BitXor:
		v = x ^ y
	default:
		return 0, false
	}
	return l.normalize(v, t), true
}
