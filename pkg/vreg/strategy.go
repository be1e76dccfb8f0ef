package vreg

import "sicc/pkg/icode"

// Strategy picks the register to spill when a class is exhausted.
// Candidates are never empty and are listed in register order.
type Strategy interface {
	Victim(rf *RegFile, cands []icode.Reg) icode.Reg
}

// Rotation cycles through the register file so consecutive spills hit
// different registers.
type Rotation struct {
	next icode.Reg
}

func (s *Rotation) Victim(rf *RegFile, cands []icode.Reg) icode.Reg {
	victim := cands[0]
	for _, r := range cands {
		if r >= s.next {
			victim = r
			break
		}
	}
	s.next = victim + 1
	if int(s.next) >= rf.Len() {
		s.next = 0
	}
	return victim
}

// LRU spills the register whose value was least recently touched.
type LRU struct{}

func (LRU) Victim(rf *RegFile, cands []icode.Reg) icode.Reg {
	victim := cands[0]
	for _, r := range cands[1:] {
		if rf.Stamp(r) < rf.Stamp(victim) {
			victim = r
		}
	}
	return victim
}

// StrategyFor returns the spill strategy used at an optimization level.
func StrategyFor(level int) Strategy {
	if level > 0 {
		return LRU{}
	}
	return &Rotation{}
}
