package lower

import (
	"slices"
	"strings"

	"sicc/pkg/ast"
	"sicc/pkg/ctype"
	"sicc/pkg/diag"
	"sicc/pkg/icode"
	"sicc/pkg/vreg"
)

// scope lowers one statement-level piece of code into a private list that
// is merged only when it succeeds. Afterwards every register mapping,
// claim and vreg is discarded and temporary frame slots are returned.
func (l *Lowerer) scope(pos ast.Pos, il *icode.List, fn func(il *icode.List) error) error {
	sub := icode.NewList()
	mark := l.vr.Frame.Mark()
	err := fn(sub)
	l.vr.Reset()
	l.vr.Frame.Release(mark)
	if err != nil {
		return l.fail(pos, err)
	}
	il.Merge(sub)
	return nil
}

// Func lowers a function definition. Errors in a statement are recorded
// and lowering resumes with the next statement; only a resource error is
// returned.
func (l *Lowerer) Func(f *ast.Func) (*icode.Func, error) {
	l.fn = f
	l.vr = vreg.NewState(l.tgt, l.opts.Strategy(), f.FrameSize)
	l.loops = nil
	clear(l.dimDecls)

	out := &icode.Func{Name: f.Decl.Sym, Code: icode.NewList()}
	ret := f.Decl.Type.Elem()
	if !ret.IsVoid() {
		out.RetW = l.fullWidth(ret)
	}
	for _, p := range f.Params {
		if p.Type.IsRecord() {
			return nil, l.errorf(p.Pos, diag.ErrUnsupported, "parameter '%s' of type '%s' is not supported", p.Name, p.Type)
		}
		out.Params = append(out.Params, icode.Param{Name: p.Name, Addr: icode.FrameAddr(p.Offset), W: l.fullWidth(p.Type)})
	}
	if err := l.block(f.Body, out.Code); err != nil {
		return nil, err
	}
	if _, ok := out.Code.Last().(*icode.Ret); !ok {
		err := l.scope(f.Pos, out.Code, func(il *icode.List) error {
			if ret.IsVoid() {
				il.Append(&icode.Ret{Src: icode.NoPair})
				return nil
			}
			return l.ret(l.vr.NewConst(ret, 0), ret, il)
		})
		if err != nil {
			return nil, err
		}
	}
	out.FrameSize = l.vr.Frame.Size()
	return out, nil
}

// fullWidth is the width of a value of t as passed and returned: the whole
// object for two-register types.
func (l *Lowerer) fullWidth(t *ctype.Type) icode.Width {
	w := l.vr.Width(t)
	if l.vr.IsMulti(t) {
		w.Size = t.Size(l.tgt)
	}
	return w
}

func (l *Lowerer) ret(v vreg.ID, t *ctype.Type, il *icode.List) error {
	p, err := l.vr.FaultIn(v, il)
	if err != nil {
		return err
	}
	il.Append(&icode.Ret{Refs: icode.Refs{Use: [2]vreg.ID{v}}, Src: p, W: l.fullWidth(t)})
	return nil
}

func (l *Lowerer) block(b *ast.Block, il *icode.List) error {
	for _, s := range b.Stmts {
		if err := l.nested(s, il); err != nil {
			return err
		}
	}
	return nil
}

// nested lowers a statement and swallows errors that are already reported
// and do not end the unit.
func (l *Lowerer) nested(s ast.Stmt, il *icode.List) error {
	if err := l.stmt(s, il); err != nil && IsFatal(err) {
		return err
	}
	return nil
}

func (l *Lowerer) loop(brk, cont icode.Label, body ast.Stmt, il *icode.List) error {
	l.loops = append(l.loops, loopLabels{brk: brk, cont: cont})
	defer func() { l.loops = l.loops[:len(l.loops)-1] }()
	return l.nested(body, il)
}

func (l *Lowerer) stmt(s ast.Stmt, il *icode.List) error {
	switch s := s.(type) {
	case *ast.Block:
		return l.block(s, il)

	case *ast.ExprStmt:
		return l.scope(s.Pos(), il, func(il *icode.List) error {
			_, err := l.expr(s.X, il, asEffect)
			return err
		})

	case *ast.DeclStmt:
		for _, d := range s.Decls {
			if !d.Local {
				continue
			}
			err := l.scope(d.Pos, il, func(il *icode.List) error {
				if d.VLA {
					return l.vlaDecl(d, s.Dims[d], il)
				}
				return l.localInit(d, il)
			})
			if err != nil {
				return err
			}
		}
		return nil

	case *ast.If:
		lelse := l.newLabel()
		if err := l.scope(s.Pos(), il, func(il *icode.List) error {
			return l.cond(s.C, il, lelse, false)
		}); err != nil {
			return err
		}
		if err := l.nested(s.Then, il); err != nil {
			return err
		}
		if s.Else == nil {
			il.Append(&icode.Mark{Label: lelse})
			return nil
		}
		end := l.newLabel()
		il.Append(&icode.Jump{Target: end}, &icode.Mark{Label: lelse})
		if err := l.nested(s.Else, il); err != nil {
			return err
		}
		il.Append(&icode.Mark{Label: end})
		return nil

	case *ast.While:
		top, exit := l.newLabel(), l.newLabel()
		il.Append(&icode.Mark{Label: top})
		if err := l.scope(s.Pos(), il, func(il *icode.List) error {
			return l.cond(s.C, il, exit, false)
		}); err != nil {
			return err
		}
		if err := l.loop(exit, top, s.Body, il); err != nil {
			return err
		}
		il.Append(&icode.Jump{Target: top}, &icode.Mark{Label: exit})
		return nil

	case *ast.DoWhile:
		top, cont, exit := l.newLabel(), l.newLabel(), l.newLabel()
		il.Append(&icode.Mark{Label: top})
		if err := l.loop(exit, cont, s.Body, il); err != nil {
			return err
		}
		il.Append(&icode.Mark{Label: cont})
		if err := l.scope(s.Pos(), il, func(il *icode.List) error {
			return l.cond(s.C, il, top, true)
		}); err != nil {
			return err
		}
		il.Append(&icode.Mark{Label: exit})
		return nil

	case *ast.For:
		if s.Init != nil {
			if err := l.stmt(s.Init, il); err != nil {
				return err
			}
		}
		top, cont, exit := l.newLabel(), l.newLabel(), l.newLabel()
		il.Append(&icode.Mark{Label: top})
		if s.C != nil {
			if err := l.scope(s.Pos(), il, func(il *icode.List) error {
				return l.cond(s.C, il, exit, false)
			}); err != nil {
				return err
			}
		}
		if err := l.loop(exit, cont, s.Body, il); err != nil {
			return err
		}
		il.Append(&icode.Mark{Label: cont})
		if s.Post != nil {
			if err := l.scope(s.Pos(), il, func(il *icode.List) error {
				_, err := l.expr(s.Post, il, asEffect)
				return err
			}); err != nil {
				return err
			}
		}
		il.Append(&icode.Jump{Target: top}, &icode.Mark{Label: exit})
		return nil

	case *ast.Break:
		if len(l.loops) == 0 {
			return l.errorf(s.Pos(), diag.ErrSyntax, "break statement not within loop")
		}
		il.Append(&icode.Jump{Target: l.loops[len(l.loops)-1].brk})
		return nil

	case *ast.Continue:
		if len(l.loops) == 0 {
			return l.errorf(s.Pos(), diag.ErrSyntax, "continue statement not within a loop")
		}
		il.Append(&icode.Jump{Target: l.loops[len(l.loops)-1].cont})
		return nil

	case *ast.Return:
		return l.scope(s.Pos(), il, func(il *icode.List) error {
			return l.returnStmt(s, il)
		})

	case *ast.AsmStmt:
		return l.scope(s.Pos(), il, func(il *icode.List) error {
			return l.asm(s, il)
		})
	}
	return l.errorf(s.Pos(), diag.ErrUnsupported, "unsupported statement %T", s)
}

func (l *Lowerer) returnStmt(s *ast.Return, il *icode.List) error {
	ret := l.fn.Decl.Type.Elem()
	if s.X == nil {
		il.Append(&icode.Ret{Src: icode.NoPair})
		return nil
	}
	if ret.IsVoid() {
		return l.errorf(s.Pos(), diag.ErrIncompatibleType, "'return' with a value, in function returning void")
	}
	v, err := l.value(s.X, il)
	if err != nil {
		return err
	}
	if err := l.checkAssign(s.Pos(), ret, v, s.X, "return"); err != nil {
		return err
	}
	if v, err = l.convert(v, ret.Unqualified(), il); err != nil {
		return err
	}
	return l.ret(v, ret, il)
}

// vlaDecl evaluates the dimensions of a variable-length array, records
// them in their frame slots and allocates the storage.
func (l *Lowerer) vlaDecl(d *ast.Decl, dims []ast.Expr, il *icode.List) error {
	i := 0
	for t := d.Type; t.IsArray(); t = t.Elem() {
		dyn := t.Chain[0].Dyn
		if dyn == nil {
			continue
		}
		if i >= len(dims) {
			return l.errorf(d.Pos, diag.ErrUnsupported, "missing dimension for variable-length array '%s'", d.Name)
		}
		n, err := l.value(dims[i], il)
		if err != nil {
			return err
		}
		if !l.typeOf(n).IsInteger() {
			return l.errorf(dims[i].Pos(), diag.ErrInvalidOperands, "size of array '%s' has non-integer type", d.Name)
		}
		if n, err = l.convert(n, l.sizeType(), il); err != nil {
			return err
		}
		if err := l.vr.StoreTo(l.dimVar(dyn), n, il); err != nil {
			return err
		}
		i++
	}
	size, err := l.runtimeSize(d.Type, il)
	if err != nil {
		return err
	}
	sp, err := l.vr.FaultIn(size, il)
	if err != nil {
		return err
	}
	g := l.vr.Claim(size)
	defer g.Release()
	pt := d.Type.Elem().PointerTo()
	p, pp, err := l.vr.NewTemp(pt, il)
	if err != nil {
		return err
	}
	il.Append(&icode.Alloca{Refs: icode.Refs{Def: p, Use: [2]vreg.ID{size}}, Dst: pp[0], Size: sp[0]})
	slot := &ast.Decl{Name: d.Name, Type: pt, Local: true, Offset: d.Offset}
	return l.vr.StoreTo(l.vr.NewVar(slot), p, il)
}

// localInit runs the initializers of an automatic object. Aggregates are
// cleared first so members without an initializer read as zero.
func (l *Lowerer) localInit(d *ast.Decl, il *icode.List) error {
	if len(d.Inits) == 0 {
		return nil
	}
	obj := l.vr.NewVar(d)
	if d.Type.IsAggregate() {
		if err := l.zeroFill(d.Offset, d.Type.Size(l.tgt), il); err != nil {
			return err
		}
	}
	for _, in := range d.Inits {
		dst := l.vr.Disconnect(l.vr.NewMember(obj, in.Type, in.Off))
		if err := l.initOne(d.Pos, dst, in, il); err != nil {
			return err
		}
	}
	return nil
}

func (l *Lowerer) initOne(pos ast.Pos, dst vreg.ID, in ast.Init, il *icode.List) error {
	if s, ok := in.X.(*ast.StringLit); ok && in.Type.IsArray() {
		n := min(int64(len(s.Value))+1, in.Type.Size(l.tgt))
		ct := in.Type.Elem().Unqualified()
		for i := range n {
			var b uint64
			if i < int64(len(s.Value)) {
				b = uint64(s.Value[i])
			}
			c := l.vr.NewConst(ct, l.normalize(b, ct))
			if err := l.vr.StoreTo(l.vr.NewMember(dst, ct, i), c, il); err != nil {
				return err
			}
		}
		return nil
	}
	if in.Type.IsRecord() {
		if c, ok := in.X.(*ast.Cond); ok {
			_, err := l.ternary(c, il, asValue, dst)
			return err
		}
		src, err := l.operand(in.X, il)
		if err != nil {
			return err
		}
		if st := l.typeOf(src); !st.IsRecord() || st.Record != in.Type.Record {
			return l.errorf(pos, diag.ErrIncompatibleType, "invalid initializer of type '%s' for '%s'", st, in.Type)
		}
		return l.blockCopy(dst, src, il)
	}
	src, err := l.value(in.X, il)
	if err != nil {
		return err
	}
	if err := l.checkAssign(in.X.Pos(), in.Type, src, in.X, "initialization"); err != nil {
		return err
	}
	_, err = l.store(in.X.Pos(), dst, src, il, asEffect)
	return err
}

// zeroFill clears size bytes of the frame at off, a register at a time.
func (l *Lowerer) zeroFill(off, size int64, il *icode.List) error {
	zero := l.vr.NewConst(l.sizeType(), 0)
	p, err := l.vr.FaultIn(zero, il)
	if err != nil {
		return err
	}
	for w := l.tgt.RegSize; w > 0; w /= 2 {
		for ; size >= w; off, size = off+w, size-w {
			il.Append(&icode.Store{
				Refs: icode.Refs{Use: [2]vreg.ID{zero}},
				Src:  p[0], Dst: icode.FrameAddr(off), W: icode.Width{Size: w, Unsigned: true},
			})
		}
	}
	return nil
}

// asm lowers an extended asm statement. Clobbered registers, inputs and
// outputs stay claimed until the template has been emitted.
func (l *Lowerer) asm(s *ast.AsmStmt, il *icode.List) error {
	var guards []*vreg.Guard
	defer func() {
		for _, g := range guards {
			g.Release()
		}
	}()
	names := l.tgt.RegNames()
	for _, c := range s.Clobbers {
		if c == "memory" || c == "cc" {
			continue
		}
		i := slices.Index(names, strings.TrimPrefix(c, "%"))
		if i < 0 {
			return l.errorf(s.Pos(), diag.ErrUnsupported, "unknown register name '%s' in asm", c)
		}
		guards = append(guards, l.vr.Regs.Claim(icode.Reg(i)))
	}

	out := &icode.Asm{Text: s.Template, Clobbers: s.Clobbers}
	for _, op := range s.Inputs {
		if op.Constraint != "r" {
			return l.errorf(s.Pos(), diag.ErrUnsupported, "unsupported asm input constraint '%s'", op.Constraint)
		}
		v, err := l.value(op.X, il)
		if err != nil {
			return err
		}
		if !l.typeOf(v).IsScalar() || l.vr.IsMulti(l.typeOf(v)) {
			return l.errorf(s.Pos(), diag.ErrUnsupported, "asm operand of type '%s' does not fit a register", l.typeOf(v))
		}
		p, err := l.vr.FaultIn(v, il)
		if err != nil {
			return l.asmFail(s.Pos(), err)
		}
		guards = append(guards, l.vr.Claim(v))
		out.In = append(out.In, p[0])
	}

	type output struct{ dst, tmp vreg.ID }
	var outs []output
	for _, op := range s.Outputs {
		if op.Constraint != "=r" {
			return l.errorf(s.Pos(), diag.ErrUnsupported, "unsupported asm output constraint '%s'", op.Constraint)
		}
		dst, err := l.operand(op.X, il)
		if err != nil {
			return err
		}
		if err := l.checkLvalue(s.Pos(), dst, "asm output"); err != nil {
			return err
		}
		t := l.typeOf(dst)
		if !t.IsScalar() || l.vr.IsMulti(t) || t.Bits != nil {
			return l.errorf(s.Pos(), diag.ErrUnsupported, "asm operand of type '%s' does not fit a register", t)
		}
		tmp, p, err := l.vr.NewTemp(t.Unqualified(), il)
		if err != nil {
			return l.asmFail(s.Pos(), err)
		}
		guards = append(guards, l.vr.Claim(tmp))
		out.Out = append(out.Out, p[0])
		outs = append(outs, output{dst: dst, tmp: tmp})
	}
	il.Append(out)

	for _, g := range guards {
		g.Release()
	}
	for _, o := range outs {
		if err := l.vr.StoreTo(o.dst, o.tmp, il); err != nil {
			return err
		}
	}
	return nil
}

func (l *Lowerer) asmFail(pos ast.Pos, err error) error {
	return l.errorf(pos, diag.ErrNoRegister, "impossible register constraint in 'asm': %v", err)
}
