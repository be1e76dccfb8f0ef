package lower

import (
	"encoding/binary"
	"fmt"
	"math"

	"sicc/pkg/ast"
	"sicc/pkg/ctype"
	"sicc/pkg/diag"
	"sicc/pkg/icode"
)

// Unit lowers a translation unit. Functions are lowered even after errors
// so every diagnostic is reported; the returned error then summarizes
// them.
func (l *Lowerer) Unit(u *ast.Unit) (*icode.Program, error) {
	prog := &icode.Program{Target: l.tgt.Name}
	for _, g := range u.Globals {
		if g.Type.IsFunction() || g.Storage == ctype.Typedef || g.Storage == ctype.Extern && !g.Defined {
			continue
		}
		d, err := l.datum(g)
		if err != nil {
			continue
		}
		prog.Data = append(prog.Data, d)
	}
	for _, s := range u.Strings {
		prog.Data = append(prog.Data, l.stringDatum(s))
	}
	for _, f := range u.Funcs {
		fn, err := l.Func(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Decl.Name, err)
		}
		prog.Funcs = append(prog.Funcs, fn)
	}
	if n := l.diags.ErrorCount(); n > 0 {
		return prog, fmt.Errorf("%d error(s) in %s", n, u.File)
	}
	return prog, nil
}

func (l *Lowerer) order() binary.ByteOrder {
	if l.tgt.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (l *Lowerer) stringDatum(s *ast.StringLit) *icode.Datum {
	size := s.T.Size(l.tgt)
	buf := make([]byte, size)
	copy(buf, s.Value)
	return &icode.Datum{Sym: s.Sym, Size: size, Align: 1, Init: buf}
}

// datum builds the static image of a global object.
func (l *Lowerer) datum(g *ast.Decl) (*icode.Datum, error) {
	size := g.Type.Size(l.tgt)
	if size == 0 && !g.Type.IsVoid() {
		return nil, l.errorf(g.Pos, diag.ErrLayout, "storage size of '%s' isn't known", g.Name)
	}
	d := &icode.Datum{Sym: g.Sym, Size: size, Align: g.Type.Align(l.tgt), Init: make([]byte, size)}
	for _, in := range g.Inits {
		if err := l.staticInit(g, d, in); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (l *Lowerer) staticInit(g *ast.Decl, d *icode.Datum, in ast.Init) error {
	buf := d.Init[in.Off:]
	t := in.Type
	switch {
	case t.IsArray():
		s, ok := in.X.(*ast.StringLit)
		if !ok {
			return l.errorf(in.X.Pos(), diag.ErrNotConstant, "invalid initializer for '%s'", g.Name)
		}
		copy(buf[:t.Size(l.tgt)], s.Value)
		return nil

	case t.IsFloat():
		f, err := l.evalFloat(in.X)
		if err != nil {
			return l.errorf(in.X.Pos(), diag.ErrNotConstant, "initializer element is not constant")
		}
		if l.tgt.Size(t.Kind) == 4 {
			l.order().PutUint32(buf, math.Float32bits(float32(f)))
		} else {
			l.order().PutUint64(buf, math.Float64bits(f))
		}
		return nil

	case t.Bits != nil:
		v, err := l.Eval(in.X, Required)
		if err != nil {
			return err
		}
		bf := t.Bits
		v, _ = l.foldConvert(v, decayed(in.X.Type()), fieldType(t))
		unit := l.readUint(buf, bf.UnitSize)&bf.InvMask | v&ctype.WidthMask(bf.Width)<<uint(bf.Offset)
		l.writeUint(buf, unit, bf.UnitSize)
		return nil

	case t.IsScalar():
		if sym, off, ok := l.addrConst(in.X); ok {
			if !t.IsPointer() && t.Size(l.tgt) != l.tgt.PtrSize {
				return l.errorf(in.X.Pos(), diag.ErrNotConstant, "initializer element is not computable at load time")
			}
			d.Relocs = append(d.Relocs, icode.Reloc{Off: in.Off, Sym: sym, Add: off, Size: l.tgt.PtrSize})
			return nil
		}
		v, err := l.Eval(in.X, Required)
		if err != nil {
			return err
		}
		from := decayed(in.X.Type())
		if t.IsPointer() && from.IsInteger() && !ast.IsNullPointerConstant(in.X) {
			l.warnf(in.X.Pos(), diag.WarnPointerInteger, "initialization makes pointer from integer without a cast")
		}
		v, _ = l.foldConvert(v, from, t)
		l.writeUint(buf, v, t.Size(l.tgt))
		return nil
	}
	return l.errorf(in.X.Pos(), diag.ErrNotConstant, "initializer element is not constant")
}

func (l *Lowerer) writeUint(buf []byte, v uint64, size int64) {
	o := l.order()
	switch size {
	case 1:
		buf[0] = byte(v)
	case 2:
		o.PutUint16(buf, uint16(v))
	case 4:
		o.PutUint32(buf, uint32(v))
	default:
		o.PutUint64(buf, v)
	}
}

func (l *Lowerer) readUint(buf []byte, size int64) uint64 {
	o := l.order()
	switch size {
	case 1:
		return uint64(buf[0])
	case 2:
		return uint64(o.Uint16(buf))
	case 4:
		return uint64(o.Uint32(buf))
	}
	return o.Uint64(buf)
}

// addrConst recognizes address constants: the address of a static object
// or string, optionally displaced by a constant.
func (l *Lowerer) addrConst(e ast.Expr) (string, int64, bool) {
	switch e := e.(type) {
	case *ast.Unary:
		if e.Op == ast.AddrOf {
			return l.lvalueConst(e.X)
		}
	case *ast.Ident, *ast.StringLit:
		if t := e.Type(); t.IsArray() || t.IsFunction() {
			return l.lvalueConst(e)
		}
	case *ast.Cast:
		if e.T.IsPointer() || e.T.Size(l.tgt) == l.tgt.PtrSize {
			return l.addrConst(e.X)
		}
	case *ast.Binary:
		if e.Op != ast.Add && e.Op != ast.Sub {
			break
		}
		x, y := e.X, e.Y
		if e.Op == ast.Add && decayed(y.Type()).IsPointer() {
			x, y = y, x
		}
		pt := decayed(x.Type())
		if !pt.IsPointer() {
			break
		}
		sym, off, ok := l.addrConst(x)
		if !ok {
			break
		}
		k, err := l.Eval(y, Optional)
		if err != nil {
			break
		}
		n := int64(k) * max(pt.Elem().Size(l.tgt), 1)
		if e.Op == ast.Sub {
			n = -n
		}
		return sym, off + n, true
	}
	return "", 0, false
}

func (l *Lowerer) lvalueConst(e ast.Expr) (string, int64, bool) {
	switch e := e.(type) {
	case *ast.Ident:
		if e.Decl.Local || e.Decl.Sym == "" {
			return "", 0, false
		}
		return e.Decl.Sym, 0, true
	case *ast.StringLit:
		return e.Sym, 0, true
	case *ast.Member:
		if e.Arrow {
			return "", 0, false
		}
		sym, off, ok := l.lvalueConst(e.X)
		return sym, off + e.Field.Offset, ok
	case *ast.Index:
		base, idx := e.X, e.Idx
		if !base.Type().IsArray() {
			base, idx = idx, base
		}
		if !base.Type().IsArray() || base.Type().IsVLA() {
			return "", 0, false
		}
		sym, off, ok := l.lvalueConst(base)
		if !ok {
			return "", 0, false
		}
		k, err := l.Eval(idx, Optional)
		if err != nil {
			return "", 0, false
		}
		return sym, off + int64(k)*e.T.Size(l.tgt), true
	}
	return "", 0, false
}

// evalFloat folds a floating constant expression.
func (l *Lowerer) evalFloat(e ast.Expr) (float64, error) {
	switch e := e.(type) {
	case *ast.FloatLit:
		return e.Value, nil
	case *ast.Cast:
		f, err := l.evalFloat(e.X)
		if err != nil {
			return 0, err
		}
		if e.T.IsFloat() && l.tgt.Size(e.T.Kind) == 4 {
			f = float64(float32(f))
		}
		return f, nil
	case *ast.Unary:
		if e.Op == ast.Neg || e.Op == ast.Plus {
			f, err := l.evalFloat(e.X)
			if e.Op == ast.Neg {
				f = -f
			}
			return f, err
		}
	case *ast.Binary:
		if !e.T.IsFloat() {
			break
		}
		x, err := l.evalFloat(e.X)
		if err != nil {
			return 0, err
		}
		y, err := l.evalFloat(e.Y)
		if err != nil {
			return 0, err
		}
		v, ok := l.fold(e.Op, math.Float64bits(x), math.Float64bits(y), e.T, e.T)
		if !ok {
			return 0, notConst("'%s' cannot be folded", e)
		}
		return math.Float64frombits(v), nil
	}
	v, err := l.eval(e)
	if err != nil {
		return 0, err
	}
	return l.toFloat(v, decayed(e.Type())), nil
}
