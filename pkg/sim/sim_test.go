package sim

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"sicc/pkg/ctype"
	"sicc/pkg/icode"
)

var (
	w32  = icode.Width{Size: 4}
	u32  = icode.Width{Size: 4, Unsigned: true}
	w8   = icode.Width{Size: 1}
	f64w = icode.Width{Size: 8, Float: true}
)

// newFunc builds a function from a straight list of instructions.
func newFunc(name string, params []icode.Param, ret icode.Width, frame int64, code ...icode.Instr) *icode.Func {
	l := icode.NewList()
	l.Append(code...)
	return &icode.Func{Name: name, Params: params, RetW: ret, FrameSize: frame, Code: l}
}

func mustMachine(t *testing.T, tgt string, prog *icode.Program) *Machine {
	t.Helper()
	m, err := New(ctype.MustLookup(tgt), prog)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestArithmeticAndReturn(t *testing.T) {
	params := []icode.Param{
		{Name: "a", Addr: icode.FrameAddr(0), W: w32},
		{Name: "b", Addr: icode.FrameAddr(4), W: w32},
	}
	f := newFunc("sub", params, w32, 8,
		&icode.Load{Dst: 0, Src: icode.FrameAddr(0), W: w32},
		&icode.Load{Dst: 1, Src: icode.FrameAddr(4), W: w32},
		&icode.Binop{Op: icode.Sub, Dst: 0, Src: 1, W: w32},
		&icode.Ret{Src: icode.Pair{0, icode.NoReg}, W: w32},
	)
	m := mustMachine(t, "x86", &icode.Program{Funcs: []*icode.Func{f}})
	got, err := m.Call("sub", 3, 10)
	if err != nil {
		t.Fatal(err)
	}
	if int64(got) != -7 {
		t.Errorf("sub(3, 10) = %d, want -7", int64(got))
	}
}

func TestBinopWidths(t *testing.T) {
	m := mustMachine(t, "x86", &icode.Program{})
	a := &activation{regs: make([]uint64, 4)}
	tests := []struct {
		name string
		op   icode.Op
		x, y uint64
		w    icode.Width
		want uint64
	}{
		{"char wraps", icode.Add, 100, 100, w8, uint64(0xFFFFFFFFFFFFFFC8)},
		{"signed shr", icode.Shr, uint64(0xFFFFFFFFFFFFFFF0), 2, w32, uint64(0xFFFFFFFFFFFFFFFC)},
		{"unsigned shr", icode.Shr, 0xFFFFFFF0, 2, u32, 0x3FFFFFFC},
		{"signed div", icode.Div, uint64(0xFFFFFFFFFFFFFFF9), 2, w32, uint64(0xFFFFFFFFFFFFFFFD)},
		{"unsigned div", icode.Div, 0xFFFFFFF9, 2, u32, 0x7FFFFFFC},
		{"mod", icode.Mod, 17, 5, w32, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.binop(a, tt.op, tt.x, tt.y, tt.w)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %#x, want %#x", got, tt.want)
			}
		})
	}
	if _, err := m.binop(a, icode.Div, 1, 0, w32); !errors.Is(err, ErrDivideByZero) {
		t.Errorf("division by zero: got %v", err)
	}
}

func TestCarryChain(t *testing.T) {
	m := mustMachine(t, "x86", &icode.Program{})
	a := &activation{regs: make([]uint64, 4)}
	lo, _ := m.binop(a, icode.Add, 0xFFFFFFFF, 1, u32)
	hi, _ := m.binop(a, icode.Adc, 0, 0, w32)
	if lo != 0 || hi != 1 {
		t.Errorf("add/adc: lo=%#x hi=%#x, want 0 and 1", lo, hi)
	}
	lo, _ = m.binop(a, icode.Sub, 0, 1, u32)
	hi, _ = m.binop(a, icode.Sbb, 1, 0, w32)
	if lo != 0xFFFFFFFF || hi != 0 {
		t.Errorf("sub/sbb: lo=%#x hi=%#x, want 0xffffffff and 0", lo, hi)
	}
}

func TestStaticDataAndRelocs(t *testing.T) {
	prog := &icode.Program{Data: []*icode.Datum{
		{Sym: "x", Size: 4, Align: 4, Init: []byte{0, 0, 0, 42}},
		{Sym: "p", Size: 4, Align: 4, Init: make([]byte, 4), Relocs: []icode.Reloc{{Off: 0, Sym: "x", Add: 2, Size: 4}}},
	}}
	m := mustMachine(t, "mips", prog)
	v, err := m.Load("x", 0, w32)
	if err != nil || v != 42 {
		t.Errorf("x = %d, %v; want 42 (big-endian)", v, err)
	}
	p, _ := m.Load("p", 0, u32)
	x, _ := m.Addr("x")
	if int64(p) != x+2 {
		t.Errorf("p = %#x, want %#x", p, x+2)
	}
}

func TestFloatLoadStore(t *testing.T) {
	prog := &icode.Program{Data: []*icode.Datum{{Sym: "f", Size: 4, Align: 4, Init: make([]byte, 4)}}}
	m := mustMachine(t, "amd64", prog)
	fw := icode.Width{Size: 4, Float: true}
	if err := m.Store("f", 0, fw, math.Float64bits(1.5)); err != nil {
		t.Fatal(err)
	}
	v, _ := m.Load("f", 0, fw)
	if math.Float64frombits(v) != 1.5 {
		t.Errorf("f = %v, want 1.5", math.Float64frombits(v))
	}
	if got := convert(math.Float64bits(-2.7), f64w, w32); int64(got) != -2 {
		t.Errorf("(int)-2.7 = %d", int64(got))
	}
}

func TestCallNativeAndBranch(t *testing.T) {
	// Prints 'A' three times with a counted loop.
	f := newFunc("main", nil, w32, 16,
		&icode.LoadConst{Dst: 0, Value: 3, W: w32},
		&icode.Store{Src: 0, Dst: icode.FrameAddr(0), W: w32},
		&icode.Mark{Label: 1},
		&icode.Load{Dst: 0, Src: icode.FrameAddr(0), W: w32},
		&icode.Cmp{A: 0, B: icode.NoReg, W: w32},
		&icode.Branch{Cond: icode.Eq, Target: 2},
		&icode.LoadConst{Dst: 1, Value: 'A', W: w32},
		&icode.Store{Src: 1, Dst: icode.FrameAddr(4), W: w32},
		&icode.Call{Fn: "putchar", Args: []icode.Arg{{Addr: icode.FrameAddr(4), W: w32}}, Ret: icode.NoPair},
		&icode.Load{Dst: 0, Src: icode.FrameAddr(0), W: w32},
		&icode.LoadConst{Dst: 1, Value: 1, W: w32},
		&icode.Binop{Op: icode.Sub, Dst: 0, Src: 1, W: w32},
		&icode.Store{Src: 0, Dst: icode.FrameAddr(0), W: w32},
		&icode.Jump{Target: 1},
		&icode.Mark{Label: 2},
		&icode.Ret{Src: icode.Pair{0, icode.NoReg}, W: w32},
	)
	m := mustMachine(t, "x86", &icode.Program{Funcs: []*icode.Func{f}})
	var out bytes.Buffer
	m.Output = &out
	if _, err := m.Call("main"); err != nil {
		t.Fatal(err)
	}
	if out.String() != "AAA" {
		t.Errorf("output %q, want %q", out.String(), "AAA")
	}
}

func TestStepLimit(t *testing.T) {
	f := newFunc("spin", nil, icode.Width{}, 0,
		&icode.Mark{Label: 1},
		&icode.Jump{Target: 1},
	)
	m := mustMachine(t, "x86", &icode.Program{Funcs: []*icode.Func{f}})
	m.MaxSteps = 1000
	if _, err := m.Call("spin"); !errors.Is(err, ErrStepLimit) {
		t.Errorf("got %v, want ErrStepLimit", err)
	}
}

func TestRuntimeRoutines(t *testing.T) {
	neg := func(v int64) uint64 { return uint64(v) }
	tests := []struct {
		fn   string
		a, b uint64
		want uint64
	}{
		{"__sicc_mul64", 1 << 32, 3, 3 << 32},
		{"__sicc_div64", neg(-9), 2, neg(-4)},
		{"__sicc_udiv64", neg(-9), 2, 0x7FFFFFFFFFFFFFFB},
		{"__sicc_mod64", neg(-9), 2, neg(-1)},
		{"__sicc_shr64", neg(-16), 2, neg(-4)},
		{"__sicc_ushr64", 1 << 40, 8, 1 << 32},
	}
	for _, tt := range tests {
		if got := runtimeRoutines[tt.fn](nil, []uint64{tt.a, tt.b}); got != tt.want {
			t.Errorf("%s(%#x, %#x) = %#x, want %#x", tt.fn, tt.a, tt.b, got, tt.want)
		}
	}
}
