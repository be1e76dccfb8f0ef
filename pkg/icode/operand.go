// Package icode is the architecture-neutral instruction stream produced by
// the lowering engine.
package icode

import "fmt"

// Reg is a physical register index into the target's register file.
type Reg int16

const NoReg Reg = -1

// VID identifies the vreg an operand was resolved from. The zero value
// means "no vreg".
type VID int32

const NoVID VID = 0

// Label is a branch target, unique within a function.
type Label int

func (l Label) String() string { return fmt.Sprintf(".L%d", int(l)) }

// Width is the machine view of a value: its size in bytes, whether
// arithmetic on it is unsigned, and whether it lives in a float register.
type Width struct {
	Size     int64
	Unsigned bool
	Float    bool
}

func (w Width) String() string {
	switch {
	case w.Float:
		return fmt.Sprintf("f%d", w.Size*8)
	case w.Unsigned:
		return fmt.Sprintf("u%d", w.Size*8)
	}
	return fmt.Sprintf("i%d", w.Size*8)
}

type AddrKind uint8

const (
	AddrSym AddrKind = iota + 1
	AddrFrame
	AddrReg
)

// Addr is a memory operand.
type Addr struct {
	Kind AddrKind
	Sym  string // AddrSym
	Base Reg    // AddrReg
	Off  int64
}

func SymAddr(sym string, off int64) Addr { return Addr{Kind: AddrSym, Sym: sym, Base: NoReg, Off: off} }
func FrameAddr(off int64) Addr           { return Addr{Kind: AddrFrame, Base: NoReg, Off: off} }
func RegAddr(r Reg, off int64) Addr      { return Addr{Kind: AddrReg, Base: r, Off: off} }

// Plus returns a with its displacement moved by n bytes.
func (a Addr) Plus(n int64) Addr {
	a.Off += n
	return a
}

func (a Addr) format(p printer) string {
	var base string
	switch a.Kind {
	case AddrSym:
		base = a.Sym
	case AddrFrame:
		base = "fp"
	case AddrReg:
		base = p.reg(a.Base)
	default:
		base = "?"
	}
	switch {
	case a.Off > 0:
		return fmt.Sprintf("[%s+%d]", base, a.Off)
	case a.Off < 0:
		return fmt.Sprintf("[%s%d]", base, a.Off)
	}
	return "[" + base + "]"
}

func (a Addr) String() string { return a.format(printer{}) }

// Pair is the register slots of a value: Pair[1] is NoReg unless the value
// is a multi-register object, in which case Pair[0] is the low word.
type Pair [2]Reg

var NoPair = Pair{NoReg, NoReg}

func (p Pair) Multi() bool { return p[1] != NoReg }

type printer struct {
	names []string
}

func (p printer) reg(r Reg) string {
	if r == NoReg {
		return "-"
	}
	if int(r) < len(p.names) {
		return p.names[r]
	}
	return fmt.Sprintf("r%d", int(r))
}

func (p printer) pair(pr Pair) string {
	if pr.Multi() {
		return p.reg(pr[1]) + ":" + p.reg(pr[0])
	}
	return p.reg(pr[0])
}
