package vreg

import (
	"fmt"

	"sicc/pkg/ast"
	"sicc/pkg/ctype"
	"sicc/pkg/icode"
)

// State is the value model of one function being lowered: the vreg arena,
// the register file and the frame.
type State struct {
	Arena
	Regs  *RegFile
	Frame *Frame
	tgt   *ctype.Target
}

func NewState(tgt *ctype.Target, s Strategy, frameBase int64) *State {
	return &State{
		Regs:  NewRegFile(tgt, s),
		Frame: NewFrame(frameBase),
		tgt:   tgt,
	}
}

func (s *State) Target() *ctype.Target { return s.tgt }

func (s *State) sizeOf(t *ctype.Type) int64 {
	if t.Bits != nil {
		return t.Bits.UnitSize
	}
	return t.Size(s.tgt)
}

func (s *State) newVreg(v Vreg) ID {
	v.Size = s.sizeOf(v.Type)
	v.Pregs = icode.NoPair
	return s.add(v)
}

func (s *State) NewAnon(t *ctype.Type) ID { return s.newVreg(Vreg{Type: t}) }

func (s *State) NewVar(d *ast.Decl) ID { return s.newVreg(Vreg{Type: d.Type, Var: d}) }

func (s *State) NewConst(t *ctype.Type, bits uint64) ID {
	return s.newVreg(Vreg{Type: t, Const: &Const{Bits: bits}})
}

// NewDeref is the object of type t at byte offset off from the address
// held by ptr.
func (s *State) NewDeref(ptr ID, t *ctype.Type, off int64) ID {
	return s.newVreg(Vreg{Type: t, FromPtr: ptr, Off: off})
}

// NewMember is the member of type t at byte offset off within parent.
func (s *State) NewMember(parent ID, t *ctype.Type, off int64) ID {
	return s.newVreg(Vreg{Type: t, Parent: parent, Off: off})
}

// NewStacked is an anonymous value living in slot.
func (s *State) NewStacked(t *ctype.Type, slot *Slot) ID {
	return s.newVreg(Vreg{Type: t, Stack: slot})
}

// AddrValue reports whether a register holding a value of type t holds the
// object's address rather than its contents.
func AddrValue(t *ctype.Type) bool { return t.IsAggregate() || t.IsFunction() }

// ClassOf returns the register class values of type t live in.
func ClassOf(t *ctype.Type) Class {
	if t.IsFloat() {
		return FPR
	}
	return GPR
}

// Width is the machine view of a value of type t. Aggregates are seen
// through their address.
func (s *State) Width(t *ctype.Type) icode.Width {
	switch {
	case t.Bits != nil:
		return icode.Width{Size: t.Bits.UnitSize, Unsigned: true}
	case t.IsFloat():
		return icode.Width{Size: s.tgt.Size(t.Kind), Float: true}
	case AddrValue(t) || t.IsPointer():
		return icode.Width{Size: s.tgt.PtrSize, Unsigned: true}
	}
	return icode.Width{Size: s.tgt.Size(t.Kind), Unsigned: s.tgt.IsUnsigned(t)}
}

// WordWidths returns the widths of the low and high word of a
// multi-register type. The low word is always unsigned.
func (s *State) WordWidths(t *ctype.Type) (lo, hi icode.Width) {
	lo = icode.Width{Size: s.tgt.RegSize, Unsigned: true}
	hi = icode.Width{Size: s.tgt.RegSize, Unsigned: s.tgt.IsUnsigned(t)}
	return lo, hi
}

func (s *State) IsMulti(t *ctype.Type) bool { return t.Bits == nil && s.tgt.IsMultiReg(t) }

// alloc returns a reserved register of class c, spilling a victim chosen
// by the strategy when the class is exhausted.
func (s *State) alloc(c Class, il *icode.List) (icode.Reg, error) {
	if r, ok := s.Regs.take(c); ok {
		return r, nil
	}
	cands := s.Regs.spillable(c)
	if len(cands) == 0 {
		return icode.NoReg, ErrNoRegister
	}
	victim := s.Regs.strategy.Victim(s.Regs, cands)
	if err := s.Spill(s.Regs.Owner(victim), il); err != nil {
		return icode.NoReg, err
	}
	if r, ok := s.Regs.take(c); ok {
		return r, nil
	}
	return icode.NoReg, ErrNoRegister
}

// allocFor reserves the register(s) a value of type t needs.
func (s *State) allocFor(t *ctype.Type, il *icode.List) (icode.Pair, error) {
	pair := icode.NoPair
	r0, err := s.alloc(ClassOf(t), il)
	if err != nil {
		return pair, err
	}
	pair[0] = r0
	if s.IsMulti(t) {
		r1, err := s.alloc(GPR, il)
		if err != nil {
			s.Regs.release(r0)
			return icode.NoPair, err
		}
		pair[1] = r1
	}
	return pair, nil
}

// NewTemp creates an anonymous vreg of type t with fresh registers.
func (s *State) NewTemp(t *ctype.Type, il *icode.List) (ID, icode.Pair, error) {
	pair, err := s.allocFor(t, il)
	if err != nil {
		return NoID, pair, err
	}
	id := s.NewAnon(t)
	s.Map(id, pair)
	return id, pair, nil
}

// Map records that id's value is cached in pair, releasing whatever id
// held before.
func (s *State) Map(id ID, pair icode.Pair) {
	v := s.Get(id)
	for _, r := range v.Pregs {
		if r != icode.NoReg && r != pair[0] && r != pair[1] {
			s.Regs.release(r)
		}
	}
	for _, r := range pair {
		if r == icode.NoReg {
			continue
		}
		if old := s.Regs.Owner(r); old != NoID && old != id {
			ov := s.Get(old)
			for _, or := range ov.Pregs {
				if or != icode.NoReg && or != pair[0] && or != pair[1] {
					s.Regs.release(or)
				}
			}
			ov.Pregs = icode.NoPair
		}
		s.Regs.setOwner(r, id)
	}
	v.Pregs = pair
}

// Unmap forgets id's registers without saving them.
func (s *State) Unmap(id ID) {
	v := s.Get(id)
	for _, r := range v.Pregs {
		s.Regs.release(r)
	}
	v.Pregs = icode.NoPair
}

// Claim guards id's current registers.
func (s *State) Claim(id ID) *Guard {
	v := s.Get(id)
	return s.Regs.Claim(v.Pregs[0], v.Pregs[1])
}

// Spill evicts id from its registers. Values with an origin can be
// reloaded from it and are simply dropped; anonymous values are stored to
// their stack slot first.
func (s *State) Spill(id ID, il *icode.List) error {
	if id == NoID {
		return nil
	}
	v := s.Get(id)
	if !v.Resident() {
		return nil
	}
	if v.IsAnon() {
		if AddrValue(v.Type) {
			if v.Stack == nil {
				return fmt.Errorf("vreg: cannot spill anonymous %s without storage", v.Type)
			}
		} else {
			if v.Stack == nil {
				w := s.Width(v.Type)
				size := w.Size
				if s.IsMulti(v.Type) {
					size = 2 * s.tgt.RegSize
				}
				v.Stack = s.Frame.Alloc(size, min(size, s.tgt.RegSize))
			}
			s.storeWords(il, id, v.Pregs, icode.FrameAddr(v.Stack.Off), v.Type)
		}
	}
	s.Unmap(id)
	return nil
}

// InvalidateAll spills every resident value so no register carries state
// across a branch or call.
func (s *State) InvalidateAll(il *icode.List) error {
	for _, r := range s.Regs.InUse() {
		if owner := s.Regs.Owner(r); owner != NoID {
			if err := s.Spill(owner, il); err != nil {
				return err
			}
		}
	}
	return nil
}

// DiscardAll forgets every register mapping except those of keep.
func (s *State) DiscardAll(keep ...ID) {
	for _, r := range s.Regs.InUse() {
		owner := s.Regs.Owner(r)
		kept := false
		for _, k := range keep {
			if owner == k && k != NoID {
				kept = true
			}
		}
		if kept {
			continue
		}
		if owner != NoID {
			s.Get(owner).Pregs = icode.NoPair
		}
		s.Regs.release(r)
	}
}

// Reset ends a statement: registers, claims and vregs are all discarded.
func (s *State) Reset() {
	s.Regs.reset()
	s.Arena.Reset()
}

func (s *State) loadWords(il *icode.List, id ID, pair icode.Pair, addr icode.Addr, t *ctype.Type) {
	if s.IsMulti(t) {
		lo, hi := s.WordWidths(t)
		loOff, hiOff := s.tgt.WordOffsets()
		il.Append(
			&icode.Load{Refs: icode.Refs{Def: id}, Dst: pair[0], Src: addr.Plus(loOff), W: lo},
			&icode.Load{Refs: icode.Refs{Def: id}, Dst: pair[1], Src: addr.Plus(hiOff), W: hi},
		)
		return
	}
	il.Append(&icode.Load{Refs: icode.Refs{Def: id}, Dst: pair[0], Src: addr, W: s.Width(t)})
}

func (s *State) storeWords(il *icode.List, id ID, pair icode.Pair, addr icode.Addr, t *ctype.Type) {
	if s.IsMulti(t) {
		lo, hi := s.WordWidths(t)
		loOff, hiOff := s.tgt.WordOffsets()
		il.Append(
			&icode.Store{Refs: icode.Refs{Use: [2]ID{id}}, Src: pair[0], Dst: addr.Plus(loOff), W: lo},
			&icode.Store{Refs: icode.Refs{Use: [2]ID{id}}, Src: pair[1], Dst: addr.Plus(hiOff), W: hi},
		)
		return
	}
	il.Append(&icode.Store{Refs: icode.Refs{Use: [2]ID{id}}, Src: pair[0], Dst: addr, W: s.Width(t)})
}

// lvalueAddr returns a memory operand for the object id designates. Any
// base register it uses is resident on return.
func (s *State) lvalueAddr(id ID, il *icode.List) (icode.Addr, error) {
	v := s.Get(id)
	switch {
	case v.Var != nil:
		d := v.Var
		if d.VLA {
			return icode.Addr{}, fmt.Errorf("vreg: variable-length array %s has no fixed address", d.Name)
		}
		if d.Local {
			return icode.FrameAddr(d.Offset + v.Off), nil
		}
		return icode.SymAddr(d.Sym, v.Off), nil
	case v.FromPtr != NoID:
		base, err := s.FaultIn(v.FromPtr, il)
		if err != nil {
			return icode.Addr{}, err
		}
		return icode.RegAddr(base[0], v.Off), nil
	case v.Parent != NoID:
		base, err := s.lvalueAddr(v.Parent, il)
		if err != nil {
			return icode.Addr{}, err
		}
		return base.Plus(v.Off), nil
	case v.Stack != nil:
		return icode.FrameAddr(v.Stack.Off), nil
	}
	return icode.Addr{}, fmt.Errorf("vreg: v%d (%s) is not in memory", id, v.Type)
}

// FaultIn makes id's value resident and returns its registers, emitting a
// load when needed. Aggregates and functions fault in as their address.
func (s *State) FaultIn(id ID, il *icode.List) (icode.Pair, error) {
	v := s.Get(id)
	if v.Resident() {
		for _, r := range v.Pregs {
			if r != icode.NoReg {
				s.Regs.touch(r)
			}
		}
		return v.Pregs, nil
	}
	pair, err := s.allocFor(v.Type, il)
	if err != nil {
		return pair, err
	}
	switch {
	case v.Const != nil:
		if s.IsMulti(v.Type) {
			lo, hi := s.WordWidths(v.Type)
			bits := uint(s.tgt.RegSize * 8)
			il.Append(
				&icode.LoadConst{Refs: icode.Refs{Def: id}, Dst: pair[0], Value: v.Const.Bits & ctype.WidthMask(int(bits)), W: lo},
				&icode.LoadConst{Refs: icode.Refs{Def: id}, Dst: pair[1], Value: v.Const.Bits >> bits, W: hi},
			)
		} else {
			il.Append(&icode.LoadConst{Refs: icode.Refs{Def: id}, Dst: pair[0], Value: v.Const.Bits, W: s.Width(v.Type)})
		}
	case v.Var != nil && v.Var.VLA && v.Off == 0:
		il.Append(&icode.Load{
			Refs: icode.Refs{Def: id}, Dst: pair[0],
			Src: icode.FrameAddr(v.Var.Offset), W: icode.Width{Size: s.tgt.PtrSize, Unsigned: true},
		})
	default:
		addr, err := s.lvalueAddr(id, il)
		if err != nil {
			s.Regs.release(pair[0])
			s.Regs.release(pair[1])
			return icode.NoPair, err
		}
		if AddrValue(v.Type) {
			il.Append(&icode.LoadAddr{Refs: icode.Refs{Def: id}, Dst: pair[0], Src: addr})
		} else {
			s.loadWords(il, id, pair, addr, v.Type)
		}
	}
	s.Map(id, pair)
	return pair, nil
}

// AddrOf returns a new anonymous pointer vreg holding the address of the
// object id designates.
func (s *State) AddrOf(id ID, il *icode.List) (ID, error) {
	v := s.Get(id)
	pt := v.Type.Unqualified().PointerTo()
	if v.IsAnon() && v.Stack == nil {
		if AddrValue(v.Type) && v.Resident() {
			nid, pair, err := s.NewTemp(pt, il)
			if err != nil {
				return NoID, err
			}
			il.Append(&icode.Move{Refs: icode.Refs{Def: nid, Use: [2]ID{id}}, Dst: pair[0], Src: v.Pregs[0], W: s.Width(pt)})
			return nid, nil
		}
		return NoID, fmt.Errorf("vreg: cannot take the address of an rvalue of type %s", v.Type)
	}
	if v.Var != nil && v.Var.VLA && v.Off == 0 {
		p, err := s.FaultIn(id, il)
		if err != nil {
			return NoID, err
		}
		nid := s.NewAnon(pt)
		s.Map(nid, icode.Pair{p[0], icode.NoReg})
		v.Pregs = icode.NoPair
		return nid, nil
	}
	nid, pair, err := s.NewTemp(pt, il)
	if err != nil {
		return NoID, err
	}
	g := s.Regs.Claim(pair[0])
	defer g.Release()
	addr, err := s.lvalueAddr(id, il)
	if err != nil {
		return NoID, err
	}
	il.Append(&icode.LoadAddr{Refs: icode.Refs{Def: nid, Use: [2]ID{id}}, Dst: pair[0], Src: addr})
	return nid, nil
}

// StoreTo writes src, already converted to dst's type, into the object
// dst designates.
func (s *State) StoreTo(dst, src ID, il *icode.List) error {
	sp, err := s.FaultIn(src, il)
	if err != nil {
		return err
	}
	g := s.Regs.Claim(sp[0], sp[1])
	defer g.Release()
	addr, err := s.lvalueAddr(dst, il)
	if err != nil {
		return err
	}
	t := s.Get(dst).Type
	s.storeWords(il, src, sp, addr, t)
	if d := s.Get(dst); d.Resident() {
		s.Unmap(dst)
	}
	return nil
}

// Anonymify returns a vreg holding id's value that may be mutated in
// place. An anonymous vreg is returned as is; otherwise the registers move
// to a copy with no origin and id will reload on its next use.
func (s *State) Anonymify(id ID, il *icode.List) (ID, error) {
	pair, err := s.FaultIn(id, il)
	if err != nil {
		return NoID, err
	}
	v := s.Get(id)
	if v.IsAnon() {
		return id, nil
	}
	nid := s.NewAnon(v.Type)
	v.Pregs = icode.NoPair
	s.Map(nid, pair)
	return nid, nil
}

// Disconnect returns a shallow copy of id whose parent or pointer link
// skips one level: a member of a member, of a variable, or of an object
// reached through a pointer is re-expressed directly against that base
// with the offsets folded together.
func (s *State) Disconnect(id ID) ID {
	c := *s.Get(id)
	c.Pregs = icode.NoPair
	if c.Parent != NoID {
		p := s.Get(c.Parent)
		switch {
		case p.Var != nil && !p.Var.VLA:
			c.Var, c.Parent = p.Var, NoID
			c.Off += p.Off
		case p.FromPtr != NoID:
			c.FromPtr, c.Parent = p.FromPtr, NoID
			c.Off += p.Off
		case p.Parent != NoID:
			c.Parent = p.Parent
			c.Off += p.Off
		}
	}
	return s.add(c)
}

// Retype changes the type of an anonymous vreg whose register contents
// already represent a value of t.
func (s *State) Retype(id ID, t *ctype.Type) {
	v := s.Get(id)
	v.Type = t
	v.Size = s.sizeOf(t)
}
