package vreg

import (
	"errors"

	"sicc/pkg/ctype"
	"sicc/pkg/icode"
)

// ErrNoRegister is returned when every register of a class is claimed.
var ErrNoRegister = errors.New("no register available")

// Class is a register class.
type Class uint8

const (
	GPR Class = iota
	FPR
)

type physReg struct {
	class   Class
	used    bool
	owner   ID
	claimed int
	stamp   uint64
}

// RegFile tracks what each physical register holds. A register is free,
// reserved (used with no owner yet) or owned by a vreg.
type RegFile struct {
	regs     []physReg
	strategy Strategy
	clock    uint64
}

func NewRegFile(tgt *ctype.Target, s Strategy) *RegFile {
	rf := &RegFile{strategy: s}
	for range tgt.GPRs {
		rf.regs = append(rf.regs, physReg{class: GPR})
	}
	for range tgt.FPRs {
		rf.regs = append(rf.regs, physReg{class: FPR})
	}
	return rf
}

func (rf *RegFile) Len() int                     { return len(rf.regs) }
func (rf *RegFile) Class(r icode.Reg) Class      { return rf.regs[r].class }
func (rf *RegFile) Owner(r icode.Reg) ID         { return rf.regs[r].owner }
func (rf *RegFile) Used(r icode.Reg) bool        { return rf.regs[r].used }
func (rf *RegFile) Allocatable(r icode.Reg) bool { return rf.regs[r].claimed == 0 }
func (rf *RegFile) Stamp(r icode.Reg) uint64     { return rf.regs[r].stamp }

func (rf *RegFile) touch(r icode.Reg) {
	rf.clock++
	rf.regs[r].stamp = rf.clock
}

// take reserves the first free register of class c.
func (rf *RegFile) take(c Class) (icode.Reg, bool) {
	for i := range rf.regs {
		p := &rf.regs[i]
		if p.class == c && !p.used && p.claimed == 0 {
			p.used = true
			p.owner = NoID
			rf.touch(icode.Reg(i))
			return icode.Reg(i), true
		}
	}
	return icode.NoReg, false
}

// spillable lists owned, unclaimed registers of class c.
func (rf *RegFile) spillable(c Class) []icode.Reg {
	var out []icode.Reg
	for i, p := range rf.regs {
		if p.class == c && p.used && p.owner != NoID && p.claimed == 0 {
			out = append(out, icode.Reg(i))
		}
	}
	return out
}

func (rf *RegFile) setOwner(r icode.Reg, id ID) {
	p := &rf.regs[r]
	p.used = true
	p.owner = id
	rf.touch(r)
}

func (rf *RegFile) release(r icode.Reg) {
	if r == icode.NoReg {
		return
	}
	p := &rf.regs[r]
	p.used = false
	p.owner = NoID
}

// InUse lists the registers currently reserved or owned.
func (rf *RegFile) InUse() []icode.Reg {
	var out []icode.Reg
	for i, p := range rf.regs {
		if p.used {
			out = append(out, icode.Reg(i))
		}
	}
	return out
}

func (rf *RegFile) reset() {
	for i := range rf.regs {
		rf.regs[i].used = false
		rf.regs[i].owner = NoID
		rf.regs[i].claimed = 0
	}
}

// Guard is a scoped claim on registers: while it is held the registers
// cannot be chosen as spill victims or handed out. Release is idempotent
// and meant to be deferred.
type Guard struct {
	rf   *RegFile
	regs []icode.Reg
	done bool
}

func (rf *RegFile) Claim(regs ...icode.Reg) *Guard {
	g := &Guard{rf: rf}
	for _, r := range regs {
		if r == icode.NoReg {
			continue
		}
		rf.regs[r].claimed++
		g.regs = append(g.regs, r)
	}
	return g
}

func (g *Guard) Release() {
	if g == nil || g.done {
		return
	}
	for _, r := range g.regs {
		g.rf.regs[r].claimed--
	}
	g.done = true
}
