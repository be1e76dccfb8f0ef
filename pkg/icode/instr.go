package icode

import (
	"fmt"
	"strings"
)

// Instr is one icode instruction. The set of instructions is closed; a
// backend adds machine-specific operations through Ext.
type Instr interface {
	Vregs() *Refs
	format(p printer) string
}

// Refs records which vregs an instruction defines and uses.
type Refs struct {
	Def VID
	Use [2]VID
}

func (r *Refs) Vregs() *Refs { return r }

func (r Refs) suffix() string {
	var ids []string
	if r.Def != NoVID {
		ids = append(ids, fmt.Sprintf("def v%d", r.Def))
	}
	for _, u := range r.Use {
		if u != NoVID {
			ids = append(ids, fmt.Sprintf("v%d", u))
		}
	}
	if len(ids) == 0 {
		return ""
	}
	return "\t; " + strings.Join(ids, " ")
}

// Op is an arithmetic or logical operation.
type Op uint8

const (
	Add Op = iota + 1
	Adc    // add with carry
	Sub
	Sbb // subtract with borrow
	Mul
	Div
	Mod
	And
	Or
	Xor
	Shl
	Shr // arithmetic unless the width is unsigned
	Neg
	Not // bitwise complement
)

var opNames = map[Op]string{
	Add: "add", Adc: "adc", Sub: "sub", Sbb: "sbb", Mul: "mul", Div: "div", Mod: "mod",
	And: "and", Or: "or", Xor: "xor", Shl: "shl", Shr: "shr", Neg: "neg", Not: "not",
}

func (o Op) String() string { return opNames[o] }

// Cond is a branch condition evaluated against the last Cmp.
type Cond uint8

const (
	Eq Cond = iota + 1
	Ne
	Lt
	Le
	Gt
	Ge
)

var condNames = map[Cond]string{Eq: "eq", Ne: "ne", Lt: "lt", Le: "le", Gt: "gt", Ge: "ge"}

func (c Cond) String() string { return condNames[c] }

// Negate returns the condition that holds exactly when c does not.
func (c Cond) Negate() Cond {
	switch c {
	case Eq:
		return Ne
	case Ne:
		return Eq
	case Lt:
		return Ge
	case Le:
		return Gt
	case Gt:
		return Le
	case Ge:
		return Lt
	}
	return c
}

// Strict returns the strict form of an ordering condition (Le -> Lt).
func (c Cond) Strict() Cond {
	switch c {
	case Le:
		return Lt
	case Ge:
		return Gt
	}
	return c
}

type LoadConst struct {
	Refs
	Dst   Reg
	Value uint64
	W     Width
}

// LoadAddr computes the address of Src into Dst.
type LoadAddr struct {
	Refs
	Dst Reg
	Src Addr
}

// Load reads W.Size bytes from Src, extending to the register width.
type Load struct {
	Refs
	Dst Reg
	Src Addr
	W   Width
}

type Store struct {
	Refs
	Src Reg
	Dst Addr
	W   Width
}

type Move struct {
	Refs
	Dst, Src Reg
	W        Width
}

// Binop computes Dst = Dst Op Src at width W.
type Binop struct {
	Refs
	Op       Op
	Dst, Src Reg
	W        Width
}

type Unop struct {
	Refs
	Op  Op
	Dst Reg
	W   Width
}

// Cmp sets the condition state from A - B; B == NoReg compares with zero.
type Cmp struct {
	Refs
	A, B Reg
	W    Width
}

type Branch struct {
	Refs
	Cond     Cond
	Unsigned bool
	Target   Label
}

type Jump struct {
	Refs
	Target Label
}

// Mark places a label.
type Mark struct {
	Refs
	Label Label
}

// Cast converts between widths; pairs carry multi-register values.
type Cast struct {
	Refs
	Dst, Src Pair
	From, To Width
}

// Arg is an outgoing call argument, stored in the caller's frame.
type Arg struct {
	Addr Addr
	W    Width
}

// Call invokes a function or runtime routine. Arguments are read from
// their frame slots; a non-void result lands in Ret.
type Call struct {
	Refs
	Fn   string
	Args []Arg
	Ret  Pair
	RetW Width
}

// Ret returns from the current function; Src is NoPair for void.
type Ret struct {
	Refs
	Src Pair
	W   Width
}

// CopyStruct copies Size bytes from the address in Src to the address in Dst.
type CopyStruct struct {
	Refs
	Dst, Src Reg
	Size     int64
}

// Alloca reserves Size bytes of dynamic frame storage and puts its
// address in Dst.
type Alloca struct {
	Refs
	Dst, Size Reg
}

// Asm is an inline assembly passthrough.
type Asm struct {
	Refs
	Text     string
	In, Out  []Reg
	Clobbers []string
}

// ArchOp is a backend-specific operation. Expand gives its meaning in
// generic instructions for consumers that do not know the operation.
type ArchOp interface {
	Name() string
	Format(reg func(Reg) string) string
	Expand() []Instr
}

// Ext wraps a backend-specific operation.
type Ext struct {
	Refs
	Op ArchOp
}

func (i *LoadConst) format(p printer) string {
	return fmt.Sprintf("li.%s %s, %#x", i.W, p.reg(i.Dst), i.Value) + i.suffix()
}

func (i *LoadAddr) format(p printer) string {
	return fmt.Sprintf("lea %s, %s", p.reg(i.Dst), i.Src.format(p)) + i.suffix()
}

func (i *Load) format(p printer) string {
	return fmt.Sprintf("ld.%s %s, %s", i.W, p.reg(i.Dst), i.Src.format(p)) + i.suffix()
}

func (i *Store) format(p printer) string {
	return fmt.Sprintf("st.%s %s, %s", i.W, i.Dst.format(p), p.reg(i.Src)) + i.suffix()
}

func (i *Move) format(p printer) string {
	return fmt.Sprintf("mov %s, %s", p.reg(i.Dst), p.reg(i.Src)) + i.suffix()
}

func (i *Binop) format(p printer) string {
	return fmt.Sprintf("%s.%s %s, %s", i.Op, i.W, p.reg(i.Dst), p.reg(i.Src)) + i.suffix()
}

func (i *Unop) format(p printer) string {
	return fmt.Sprintf("%s.%s %s", i.Op, i.W, p.reg(i.Dst)) + i.suffix()
}

func (i *Cmp) format(p printer) string {
	b := "0"
	if i.B != NoReg {
		b = p.reg(i.B)
	}
	return fmt.Sprintf("cmp.%s %s, %s", i.W, p.reg(i.A), b) + i.suffix()
}

func (i *Branch) format(p printer) string {
	u := ""
	if i.Unsigned {
		u = "u"
	}
	return fmt.Sprintf("b%s%s %s", i.Cond, u, i.Target)
}

func (i *Jump) format(p printer) string { return "jmp " + i.Target.String() }
func (i *Mark) format(p printer) string { return i.Label.String() + ":" }

func (i *Cast) format(p printer) string {
	return fmt.Sprintf("cast.%s.%s %s, %s", i.From, i.To, p.pair(i.Dst), p.pair(i.Src)) + i.suffix()
}

func (i *Call) format(p printer) string {
	args := make([]string, len(i.Args))
	for n, a := range i.Args {
		args[n] = a.W.String() + " " + a.Addr.format(p)
	}
	ret := ""
	if i.RetW.Size > 0 {
		ret = fmt.Sprintf(" -> %s.%s", p.pair(i.Ret), i.RetW)
	}
	return fmt.Sprintf("call %s(%s)%s", i.Fn, strings.Join(args, ", "), ret) + i.suffix()
}

func (i *Ret) format(p printer) string {
	if i.Src[0] == NoReg {
		return "ret"
	}
	return fmt.Sprintf("ret.%s %s", i.W, p.pair(i.Src)) + i.suffix()
}

func (i *CopyStruct) format(p printer) string {
	return fmt.Sprintf("copy [%s], [%s], %d", p.reg(i.Dst), p.reg(i.Src), i.Size) + i.suffix()
}

func (i *Alloca) format(p printer) string {
	return fmt.Sprintf("alloca %s, %s", p.reg(i.Dst), p.reg(i.Size)) + i.suffix()
}

func (i *Asm) format(p printer) string {
	regs := func(rs []Reg) string {
		s := make([]string, len(rs))
		for n, r := range rs {
			s[n] = p.reg(r)
		}
		return strings.Join(s, ",")
	}
	return fmt.Sprintf("asm %q out(%s) in(%s) clobber(%s)", i.Text, regs(i.Out), regs(i.In), strings.Join(i.Clobbers, ","))
}

func (i *Ext) format(p printer) string { return i.Op.Format(p.reg) + i.suffix() }

// Format renders one instruction with the given register names.
func Format(in Instr, names []string) string { return in.format(printer{names: names}) }
