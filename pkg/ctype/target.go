package ctype

import (
	"fmt"
	"sort"
)

// Target describes the architecture characteristics the lowering engine
// depends on.
type Target struct {
	Name      string
	PtrSize   int64
	RegSize   int64 // width of a general-purpose register
	BigEndian bool

	CharSigned bool

	// NativeLongDouble is false on targets without a hardware extended
	// precision type; long double is then computed as double.
	NativeLongDouble bool

	GPRs []string
	FPRs []string

	sizes  [numKinds]int64
	aligns [numKinds]int64
}

func (t *Target) Size(k Kind) int64 {
	if k == LongDouble && !t.NativeLongDouble {
		return t.sizes[Double]
	}
	return t.sizes[k]
}

func (t *Target) Align(k Kind) int64 {
	if k == LongDouble && !t.NativeLongDouble {
		return t.aligns[Double]
	}
	return max(t.aligns[k], 1)
}

// IsMultiReg reports whether values of ty need a register pair.
func (t *Target) IsMultiReg(ty *Type) bool {
	return ty.IsInteger() && t.Size(ty.Kind) > t.RegSize
}

// IsUnsigned reports whether arithmetic on ty is unsigned. Pointers
// compare unsigned.
func (t *Target) IsUnsigned(ty *Type) bool {
	if ty.IsPointer() || ty.IsArray() || ty.IsFunction() {
		return true
	}
	if len(ty.Chain) != 0 {
		return false
	}
	return t.IsUnsignedKind(ty.Kind)
}

func (t *Target) IsUnsignedKind(k Kind) bool {
	switch k {
	case Bool, UChar, UShort, UInt, ULong, ULongLong:
		return true
	case Char:
		return !t.CharSigned
	}
	return false
}

// SignedHolds reports whether the signed kind s can represent every value
// of the unsigned kind u.
func (t *Target) SignedHolds(s, u Kind) bool {
	return t.Size(s) > t.Size(u)
}

// LongHoldsUInt reports whether long can represent every unsigned int.
func (t *Target) LongHoldsUInt() bool { return t.SignedHolds(Long, UInt) }

// WordOffsets returns the memory offsets of the low and high register
// words of a multi-register value.
func (t *Target) WordOffsets() (lo, hi int64) {
	if t.BigEndian {
		return t.RegSize, 0
	}
	return 0, t.RegSize
}

// SizeType is the kind of size_t and of VLA dimension slots.
func (t *Target) SizeType() Kind {
	if t.PtrSize == t.Size(ULong) {
		return ULong
	}
	return ULongLong
}

// PtrDiffType is the kind of a pointer difference.
func (t *Target) PtrDiffType() Kind { return t.SizeType().ToSigned() }

func (t *Target) String() string { return t.Name }

type sizeSpec struct {
	kind        Kind
	size, align int64
}

func newTarget(t Target, specs []sizeSpec) *Target {
	for _, s := range specs {
		t.sizes[s.kind] = s.size
		t.aligns[s.kind] = s.align
	}
	for _, pair := range [][2]Kind{{Char, SChar}, {Char, UChar}, {Short, UShort}, {Int, UInt}, {Long, ULong}, {LongLong, ULongLong}} {
		t.sizes[pair[1]] = t.sizes[pair[0]]
		t.aligns[pair[1]] = t.aligns[pair[0]]
	}
	t.sizes[Bool], t.aligns[Bool] = 1, 1
	return &t
}

func ilp32(ldSize, ldAlign, llAlign int64) []sizeSpec {
	return []sizeSpec{
		{Char, 1, 1}, {Short, 2, 2}, {Int, 4, 4}, {Long, 4, 4}, {LongLong, 8, llAlign},
		{Float, 4, 4}, {Double, 8, llAlign}, {LongDouble, ldSize, ldAlign},
	}
}

var targets = map[string]*Target{
	"x86": newTarget(Target{
		Name: "x86", PtrSize: 4, RegSize: 4, CharSigned: true, NativeLongDouble: true,
		GPRs: []string{"eax", "ebx", "ecx", "edx", "esi", "edi"},
		FPRs: []string{"xmm0", "xmm1", "xmm2", "xmm3", "xmm4", "xmm5", "xmm6", "xmm7"},
	}, ilp32(12, 4, 4)),
	"amd64": newTarget(Target{
		Name: "amd64", PtrSize: 8, RegSize: 8, CharSigned: true, NativeLongDouble: true,
		GPRs: []string{"rax", "rbx", "rcx", "rdx", "rsi", "rdi", "r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15"},
		FPRs: []string{"xmm0", "xmm1", "xmm2", "xmm3", "xmm4", "xmm5", "xmm6", "xmm7"},
	}, []sizeSpec{
		{Char, 1, 1}, {Short, 2, 2}, {Int, 4, 4}, {Long, 8, 8}, {LongLong, 8, 8},
		{Float, 4, 4}, {Double, 8, 8}, {LongDouble, 16, 16},
	}),
	"mips": newTarget(Target{
		Name: "mips", PtrSize: 4, RegSize: 4, BigEndian: true, CharSigned: true,
		GPRs: []string{"$8", "$9", "$10", "$11", "$12", "$13", "$14", "$15", "$16", "$17", "$18", "$19", "$20", "$21", "$22", "$23"},
		FPRs: []string{"$f4", "$f6", "$f8", "$f10", "$f16", "$f18"},
	}, ilp32(8, 8, 8)),
	"sparc": newTarget(Target{
		Name: "sparc", PtrSize: 4, RegSize: 4, BigEndian: true, CharSigned: true,
		GPRs: []string{"%l0", "%l1", "%l2", "%l3", "%l4", "%l5", "%l6", "%l7"},
		FPRs: []string{"%f0", "%f2", "%f4", "%f6", "%f8", "%f10"},
	}, ilp32(16, 8, 8)),
	"ppc": newTarget(Target{
		Name: "ppc", PtrSize: 4, RegSize: 4, BigEndian: true,
		GPRs: []string{"r14", "r15", "r16", "r17", "r18", "r19", "r20", "r21", "r22", "r23", "r24"},
		FPRs: []string{"f14", "f15", "f16", "f17", "f18", "f19"},
	}, ilp32(16, 16, 8)),
}

// Lookup returns the named built-in target.
func Lookup(name string) (*Target, error) {
	t, ok := targets[name]
	if !ok {
		return nil, fmt.Errorf("unknown target %q (have %v)", name, Names())
	}
	return t, nil
}

func MustLookup(name string) *Target {
	t, err := Lookup(name)
	if err != nil {
		panic(err)
	}
	return t
}

func Names() []string {
	names := make([]string, 0, len(targets))
	for n := range targets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RegNames lists register names by index: general-purpose registers
// first, then floating-point registers.
func (t *Target) RegNames() []string {
	names := make([]string, 0, len(t.GPRs)+len(t.FPRs))
	names = append(names, t.GPRs...)
	return append(names, t.FPRs...)
}
