package lower_test

import (
	"fmt"
	"strings"
	"testing"

	"sicc/pkg/compiler"
	"sicc/pkg/ctype"
	"sicc/pkg/diag"
	"sicc/pkg/icode"
	"sicc/pkg/lower"
	"sicc/pkg/sim"
	"sicc/pkg/vreg"
)

var allTargets = []string{"x86", "amd64", "mips"}

func emitted(bag *diag.Bag) string {
	var sb strings.Builder
	if bag != nil {
		bag.Emit(&sb)
	}
	return sb.String()
}

// lowerSource runs the front end and lowers the unit with opts.
func lowerSource(t *testing.T, target, source string, opts ...lower.Option) (*icode.Program, *diag.Bag, error) {
	t.Helper()
	tgt := ctype.MustLookup(target)
	bag := diag.NewBag("test.c")
	u, err := compiler.Front(source, t.TempDir(), compiler.Options{Target: tgt}, bag)
	if err != nil {
		t.Fatalf("front end failed on %s: %v\n%s", target, err, emitted(bag))
	}
	prog, err := lower.New(tgt, bag, opts...).Unit(u)
	return prog, bag, err
}

func mustLower(t *testing.T, target, source string, opts ...lower.Option) *icode.Program {
	t.Helper()
	prog, bag, err := lowerSource(t, target, source, opts...)
	if err != nil {
		t.Fatalf("lowering failed on %s: %v\n%s", target, err, emitted(bag))
	}
	return prog
}

func call(t *testing.T, target string, prog *icode.Program, fn string, args ...uint64) int64 {
	t.Helper()
	m, err := sim.New(ctype.MustLookup(target), prog)
	if err != nil {
		t.Fatalf("sim.New: %v", err)
	}
	ret, err := m.Call(fn, args...)
	if err != nil {
		t.Fatalf("run %s on %s: %v", fn, target, err)
	}
	return int64(ret)
}

func runMain(t *testing.T, target, source string, opts ...lower.Option) int64 {
	t.Helper()
	return call(t, target, mustLower(t, target, source, opts...), "main")
}

// binops counts the generic arithmetic operations in f.
func binops(f *icode.Func) map[icode.Op]int {
	n := make(map[icode.Op]int)
	for in := range f.Code.All() {
		switch in := in.(type) {
		case *icode.Binop:
			n[in.Op]++
		case *icode.Unop:
			n[in.Op]++
		}
	}
	return n
}

func calls(f *icode.Func) []string {
	var names []string
	for in := range f.Code.All() {
		if c, ok := in.(*icode.Call); ok {
			names = append(names, c.Fn)
		}
	}
	return names
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func TestConversions(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected int64
	}{
		{"UCharPromotes", "unsigned char uc = 255; return uc + 1;", 256},
		{"SignedCharToUnsigned", "signed char sc = -1; unsigned u = sc; return u == 0xffffffffu;", 1},
		{"ShortToUnsignedShort", "short s = -2; unsigned short us = s; return us;", 65534},
		{"DoubleTruncates", "double d = 3.75; return (int)d;", 3},
		{"NegativeDoubleTruncates", "double d = -2.5; return (int)d;", -2},
		{"FloatArith", "float f = 1.5f; return (int)(f * 4);", 6},
		{"LongLongToUChar", "long long ll = -1; unsigned char b = ll; return b;", 255},
		{"UnsignedToDouble", "unsigned u = 3000000000u; double d = u; return d > 2.9e9;", 1},
		{"Bool", "_Bool b = 256; return b;", 1},
		{"BoolFromPointer", "int x; int *p = &x; _Bool b = p; return b + !p;", 1},
		{"CharArithWraps", "char c = 127; c = c + 1; return c;", -128},
	}
	for _, target := range allTargets {
		for _, tt := range tests {
			t.Run(target+"/"+tt.name, func(t *testing.T) {
				src := "int main() { " + tt.body + " }"
				if got := runMain(t, target, src); got != tt.expected {
					t.Errorf("%s: got %d, want %d", tt.body, got, tt.expected)
				}
			})
		}
	}
}

func TestPointerArithmetic(t *testing.T) {
	src := `
int main() {
    int a[5] = {1, 2, 3, 4, 5};
    int *p = &a[4];
    int *q = a + 1;
    char *c = (char *)p;
    return (p - q) * 100 + (c - (char *)a) + *(p - 2) * 1000 + p[-1] * 10000;
}`
	for _, target := range allTargets {
		if got := runMain(t, target, src); got != 43316 {
			t.Errorf("%s: got %d, want 43316", target, got)
		}
	}
}

func TestPointerRoundTrip(t *testing.T) {
	src := `
struct T { int a, b, c; };
int main() {
    struct T ts[10];
    char cs[10];
    long long ls[10];
    int n = 5;
    int vs[4][n];
    int k = 3;
    int ok = 0;
    ok += (ts + k) - ts == k;
    ok += (cs + k) - cs == k;
    ok += (ls + k) - ls == k;
    ok += (vs + k) - vs == k;
    ok += (char *)(vs + 1) - (char *)vs == n * 4;
    ok += &ts[k] - &ts[1] == k - 1;
    return ok;
}`
	for _, target := range allTargets {
		for _, opt := range []int{0, 1} {
			if got := runMain(t, target, src, lower.WithOptimize(opt)); got != 6 {
				t.Errorf("%s -O%d: %d of 6 round trips hold", target, opt, got)
			}
		}
	}
}

func TestVariableLengthArrays(t *testing.T) {
	src := `
int sum(int n) {
    int m[n][4];
    int i, j, s = 0;
    for (i = 0; i < n; i++)
        for (j = 0; j < 4; j++)
            m[i][j] = i * 10 + j;
    for (i = 0; i < n; i++)
        s += m[i][3];
    return s + (int)sizeof m;
}
int main() { return sum(3); }`
	// 3 + 13 + 23 plus 3 * 4 * sizeof(int)
	for _, target := range allTargets {
		if got := runMain(t, target, src); got != 87 {
			t.Errorf("%s: got %d, want 87", target, got)
		}
	}
}

func TestBitFieldIsolation(t *testing.T) {
	const decl = `
struct S { int before; unsigned a : 3; unsigned b : 5; int c : 6; int after; } s;
`
	tests := []struct {
		name     string
		body     string
		expected int64
	}{
		{"Neighbours", `
    s.before = -1; s.after = -1;
    s.a = 7; s.b = 0; s.c = -1;
    s.b = 31; s.a = 2;
    return s.a * 10000 + s.b * 100 + s.c * 10 + (s.before == -1) + (s.after == -1) * 2;`, 23093},
		{"CompoundWraps", `
    s.b = 30; s.b += 5;
    s.c = 31; s.c++;
    return s.b * 100 + s.c;`, 268},
		{"ReadAfterOverflow", `
    s.a = 9;
    return s.a;`, 1},
		{"AssignmentValue", `
    int v = (s.a = 13);
    return v * 10 + s.a;`, 55},
	}
	for _, target := range allTargets {
		for _, tt := range tests {
			t.Run(target+"/"+tt.name, func(t *testing.T) {
				src := decl + "int main() {" + tt.body + "\n}"
				if got := runMain(t, target, src); got != tt.expected {
					t.Errorf("got %d, want %d", got, tt.expected)
				}
			})
		}
	}
}

func TestWideBitFields(t *testing.T) {
	src := `
struct W { unsigned long long lo:40; long long s:20; int after; } w;

int main() {
	w.after = 7;
	w.lo = 0x12345678ABLL;
	w.s = -3;
	w.lo += 1;
	if (w.lo != 0x12345678ACLL) return 1;
	if (w.s != -3) return 2;
	if (w.after != 7) return 3;
	w.lo = 0xFFFFFFFFFFLL;
	w.lo++;
	if (w.lo != 0) return 4;
	if (w.s != -3) return 5;
	w.s -= 1;
	return (int)w.lo + w.s + 10;
}`
	for _, target := range []string{"x86", "amd64", "mips", "sparc", "ppc"} {
		tgt := ctype.MustLookup(target)
		for _, level := range []int{0, 1} {
			m, err := sim.New(tgt, mustLower(t, target, src, lower.WithOptimize(level)))
			if err != nil {
				t.Fatal(err)
			}
			if ret, err := m.Call("main"); err != nil || int64(ret) != 6 {
				t.Errorf("%s -O%d: main = %d (%v), want 6", target, level, int64(ret), err)
				continue
			}
			want := uint64(0xFFFFC) << 40
			if tgt.BigEndian {
				want = uint64(0xFFFFC) << 4
			}
			if v, err := m.Load("w", 0, icode.Width{Size: 8, Unsigned: true}); err != nil || v != want {
				t.Errorf("%s -O%d: unit = %#x (%v), want %#x", target, level, v, err, want)
			}
		}
	}
}

func TestMultiWordCompare(t *testing.T) {
	exprs := []string{
		"a > b",
		"!(a < b)",
		"-a < b",
		"m < b",
		"(unsigned long long)m > u",
		"u + 1 == a",
		"a >= a && a <= a",
		"a != b",
		"(a & u) == 0",
		"(a | 1) - b == a",
		"a * 3 / 2 == 0x180000000LL",
		"(a >> 1) == 0x80000000LL",
		"(b << 32) == a",
		"-m % 2 == 1",
	}
	for _, target := range allTargets {
		for _, expr := range exprs {
			t.Run(target+"/"+expr, func(t *testing.T) {
				src := fmt.Sprintf(`
int main() {
    long long a = 0x100000000LL, b = 1, m = -1;
    unsigned long long u = 0xffffffffULL;
    if (%s) return 1;
    return 0;
}`, expr)
				if got := runMain(t, target, src); got != 1 {
					t.Errorf("%s is false", expr)
				}
			})
		}
	}
}

func TestMultiWordBoundaries(t *testing.T) {
	ops := []struct {
		op string
		fn func(x, y int64) bool
	}{
		{"<", func(x, y int64) bool { return x < y }},
		{"<=", func(x, y int64) bool { return x <= y }},
		{">", func(x, y int64) bool { return x > y }},
		{">=", func(x, y int64) bool { return x >= y }},
		{"==", func(x, y int64) bool { return x == y }},
		{"!=", func(x, y int64) bool { return x != y }},
	}
	pairs := [][2]int64{
		{0x100000000, 0xFFFFFFFF},
		{0xFFFFFFFF, 0x100000000},
		{0x180000000, 0x100000001},
		{-1, 0},
		{-0x100000000, -0xFFFFFFFF},
		{0x7FFFFFFF80000000, 0x7FFFFFFF7FFFFFFF},
		{42, 42},
	}
	for _, target := range allTargets {
		for _, p := range pairs {
			var body strings.Builder
			want := int64(0)
			for i, o := range ops {
				fmt.Fprintf(&body, "    if (x %s y) r |= %d;\n", o.op, 1<<i)
				fmt.Fprintf(&body, "    r |= (x %s y) << %d;\n", o.op, i+8)
				if o.fn(p[0], p[1]) {
					want |= 1<<i | 1<<(i+8)
				}
			}
			src := fmt.Sprintf(`
int main() {
    long long x = %dLL, y = %dLL;
    int r = 0;
%s    return r;
}`, p[0], p[1], body.String())
			t.Run(fmt.Sprintf("%s/%#x_%#x", target, p[0], p[1]), func(t *testing.T) {
				if got := runMain(t, target, src); got != want {
					t.Errorf("got %#x, want %#x", got, want)
				}
			})
		}
	}
}

func TestWideOperationsPerTarget(t *testing.T) {
	src := `
long long add(long long x, long long y) { return x + y; }
long long mul(long long x, long long y) { return x * y; }
int main() { return 0; }`
	tests := []struct {
		target   string
		adc      bool
		mulCalls bool
	}{
		{"x86", true, true},
		{"mips", true, true},
		{"amd64", false, false},
	}
	for _, tt := range tests {
		prog := mustLower(t, tt.target, src)
		if got := binops(prog.Func("add"))[icode.Adc] > 0; got != tt.adc {
			t.Errorf("%s: add with carry = %v, want %v", tt.target, got, tt.adc)
		}
		if got := contains(calls(prog.Func("mul")), "__sicc_mul64"); got != tt.mulCalls {
			t.Errorf("%s: runtime multiply = %v, want %v", tt.target, got, tt.mulCalls)
		}
		m := prog.Func("add")
		if m.RetW.Size != 8 {
			t.Errorf("%s: add returns %d bytes, want 8", tt.target, m.RetW.Size)
		}
	}
}

func TestShortCircuit(t *testing.T) {
	src := `
int hits;
int side() { hits++; return 1; }
int main() {
    int z = 0, o = 1, r = 0;
    if (z && side()) r += 1;
    if (o || side()) r += 2;
    r += (o && side()) * 4;
    return r * 10 + hits;
}`
	for _, target := range allTargets {
		if got := runMain(t, target, src); got != 61 {
			t.Errorf("%s: got %d, want 61", target, got)
		}
	}

	sideEffects := `
int main() {
    int x = 0;
    int r = 0 && (x = 5);
    r += 1 || (x = 7);
    if (0 && (x = 9)) r = 100;
    return x * 10 + r;
}`
	for _, target := range allTargets {
		if got := runMain(t, target, sideEffects); got != 1 {
			t.Errorf("%s: got %d, want 1", target, got)
		}
	}

	folded := `
int side() { return 1; }
int f(int a) {
    if (0 && side()) return 1;
    if (1 || side()) return 2;
    return a;
}`
	prog := mustLower(t, "x86", folded)
	if got := calls(prog.Func("f")); len(got) != 0 {
		t.Errorf("constant-decided operands should not be lowered, got calls %v", got)
	}
}

func TestTernaryTyping(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected int64
	}{
		{"UnsignedArm", "long long r = x ? -1 : u; return r == 4294967295LL;", 1},
		{"LongLongArm", "long long r = x ? -1 : 2LL; return r == -1;", 1},
		{"DoubleArm", "double d = x ? 1 : 2.5; return (int)(d * 2);", 2},
		{"PointerAndNull", "int *p = x ? &x : 0; return *p;", 1},
		{"Nested", "return x ? u ? 3 : 4 : 5;", 3},
		{"IntLongArms", "return sizeof(x ? (int)u : (long)u) == sizeof(long);", 1},
		{"NullTakesPointerType", "int *p = &x; return *(!x ? (void *)0 : p);", 1},
		{"AsLvalueSource", "int a = 10, b = 20; int c = (x ? a : b) + 1; return c;", 11},
	}
	for _, target := range allTargets {
		for _, tt := range tests {
			t.Run(target+"/"+tt.name, func(t *testing.T) {
				src := "int main() { int x = 1; unsigned u = 2; " + tt.body + " }"
				if got := runMain(t, target, src); got != tt.expected {
					t.Errorf("got %d, want %d", got, tt.expected)
				}
			})
		}
	}
}

func TestStrengthReduction(t *testing.T) {
	src := `
unsigned f(unsigned x) { return x * 8 + x / 4 + x % 16; }
int g(int x) { return x / 4; }
int h(int x) { return 8 * x; }
int main() { return 0; }`

	unopt := mustLower(t, "x86", src)
	if n := binops(unopt.Func("f")); n[icode.Mul] != 1 || n[icode.Div] != 1 || n[icode.Mod] != 1 {
		t.Errorf("-O0 should keep the arithmetic, got %v", n)
	}

	opt := mustLower(t, "x86", src, lower.WithOptimize(1))
	n := binops(opt.Func("f"))
	if n[icode.Mul]+n[icode.Div]+n[icode.Mod] != 0 {
		t.Errorf("-O1 left multiply or divide in f: %v", n)
	}
	if n[icode.Shl] != 1 || n[icode.Shr] != 1 || n[icode.And] != 1 {
		t.Errorf("-O1 f: got %v, want one shl, shr and and", n)
	}
	if n := binops(opt.Func("g")); n[icode.Div] != 1 {
		t.Errorf("signed division must not become a shift: %v", n)
	}
	if n := binops(opt.Func("h")); n[icode.Shl] != 1 || n[icode.Mul] != 0 {
		t.Errorf("constant-first multiply should become a shift: %v", n)
	}

	for _, x := range []uint64{0, 1, 7, 100, 0xfffffff3} {
		want := call(t, "x86", unopt, "f", x)
		if got := call(t, "x86", opt, "f", x); got != want {
			t.Errorf("f(%d): -O1 %d, -O0 %d", x, got, want)
		}
	}
	if got := call(t, "x86", opt, "g", uint64(0xfffffff9)); got != -1 {
		t.Errorf("g(-7) = %d, want -1", got)
	}
}

func TestRegisterPressure(t *testing.T) {
	src := `
int f(int a, int b, int c, int d, int e, int g, int h) {
    return ((a + b) * (c + d)) + ((e + g) * (h + a)) + ((a * b) + (c * d) * (e + (g * h)));
}
long long w(long long a, long long b, long long c, long long d) {
    return (a + b) * (c - d) + (a ^ c) - ((b | d) + (a + (b + (c + d))));
}`
	a, b, c, d, e, g, h := int64(1), int64(2), int64(3), int64(4), int64(5), int64(6), int64(7)
	wantF := (a+b)*(c+d) + (e+g)*(h+a) + (a*b + (c*d)*(e+g*h))
	wantW := (a+b)*(c-d) + (a ^ c) - ((b | d) + (a + (b + (c + d))))

	strategies := map[string]func() vreg.Strategy{
		"Rotation": func() vreg.Strategy { return &vreg.Rotation{} },
		"LRU":      func() vreg.Strategy { return vreg.LRU{} },
	}
	for _, target := range allTargets {
		for name, s := range strategies {
			t.Run(target+"/"+name, func(t *testing.T) {
				prog := mustLower(t, target, src, lower.WithStrategy(s))
				if got := call(t, target, prog, "f", 1, 2, 3, 4, 5, 6, 7); got != wantF {
					t.Errorf("f = %d, want %d", got, wantF)
				}
				if got := call(t, target, prog, "w", 1, 2, 3, 4); got != wantW {
					t.Errorf("w = %d, want %d", got, wantW)
				}
			})
		}
	}
}

func TestBlockCopyBackend(t *testing.T) {
	src := `
struct P { int x, y, z; } a, b;
int main() { b.y = 9; a = b; return a.y; }`

	kinds := func(prog *icode.Program) (ext, copies int) {
		for in := range prog.Func("main").Code.All() {
			switch in := in.(type) {
			case *icode.Ext:
				if _, ok := in.Op.(*lower.RepMovs); ok {
					ext++
				}
			case *icode.CopyStruct:
				copies++
			}
		}
		return
	}

	x86 := mustLower(t, "x86", src)
	if ext, copies := kinds(x86); ext != 1 || copies != 0 {
		t.Errorf("x86: got %d rep movs and %d copies, want one rep movs", ext, copies)
	}
	mips := mustLower(t, "mips", src)
	if ext, copies := kinds(mips); ext != 0 || copies != 1 {
		t.Errorf("mips: got %d rep movs and %d copies, want one copy", ext, copies)
	}
	generic := mustLower(t, "x86", src, lower.WithBackend(lower.GenericBackend(ctype.MustLookup("x86"))))
	if ext, copies := kinds(generic); ext != 0 || copies != 1 {
		t.Errorf("generic backend: got %d rep movs and %d copies, want one copy", ext, copies)
	}
	for _, target := range allTargets {
		if got := runMain(t, target, src); got != 9 {
			t.Errorf("%s: got %d, want 9", target, got)
		}
	}
}

func TestStructTernaryCopiesOnBothArms(t *testing.T) {
	src := `
struct P { int x, y; } a = {1, 2}, b = {3, 4}, c;
int k;
int main() { c = k ? a : b; return c.x * 10 + c.y; }`

	copies := func(prog *icode.Program) (n int) {
		for in := range prog.Func("main").Code.All() {
			switch in := in.(type) {
			case *icode.Ext:
				if _, ok := in.Op.(*lower.RepMovs); ok {
					n++
				}
			case *icode.CopyStruct:
				n++
			}
		}
		return
	}
	for _, target := range allTargets {
		for _, level := range []int{0, 1} {
			prog := mustLower(t, target, src, lower.WithOptimize(level))
			if n := copies(prog); n != 2 {
				t.Errorf("%s -O%d: got %d block copies, want one per arm", target, level, n)
			}
			if got := call(t, target, prog, "main"); got != 34 {
				t.Errorf("%s -O%d: k=0 got %d, want 34", target, level, got)
			}
		}
	}

	tgt := ctype.MustLookup("mips")
	prog := mustLower(t, "mips", src)
	m, err := sim.New(tgt, prog)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Store("k", 0, icode.Width{Size: 4}, 1); err != nil {
		t.Fatal(err)
	}
	if ret, err := m.Call("main"); err != nil || int64(ret) != 12 {
		t.Errorf("k=1: got %d (%v), want 12", int64(ret), err)
	}
}

func TestLoweringDiagnostics(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
		fail bool
	}{
		{"InvalidOperands", "struct S { int a; } s; int main() { return s + 1; }", diag.ErrInvalidOperands, true},
		{"IncompatibleAssign", "struct S { int a; } s; int main() { int x; x = s; return 0; }", diag.ErrIncompatibleType, true},
		{"NotLvalue", "int main() { int a; a + 1 = 2; return 0; }", diag.ErrNotLvalue, true},
		{"ReadOnly", "const int c = 1; int main() { c = 2; return 0; }", diag.ErrReadOnly, true},
		{"NonConstantStatic", "int x; int y = x + 1; int main() { return 0; }", diag.ErrNotConstant, true},
		{"DerefVoid", "int main() { void *p = 0; return *p; }", diag.ErrInvalidOperands, true},
		{"AddressOfBitField", "struct B { unsigned a : 3; } b; int main() { unsigned *p = &b.a; return 0; }", diag.ErrInvalidOperands, true},
		{"BreakOutsideLoop", "int main() { break; return 0; }", diag.ErrSyntax, true},
		{"PointerFromInteger", "int main() { int *p; p = 5; return 0; }", diag.WarnPointerInteger, false},
		{"PointerIntegerCompare", "int main() { int *p = 0; return p == 5; }", diag.WarnPointerInteger, false},
		{"PointerMismatch", "int main() { int i; char *p = &i; return 0; }", diag.WarnPointerMismatch, false},
		{"VoidArith", "int main() { void *p = 0; p = p + 1; return 0; }", diag.WarnVoidArith, false},
		{"SignCompare", "int main() { int i = -1; unsigned u = 1; return i < u; }", diag.WarnSignCompare, false},
		{"BitFieldOverflow", "struct B { unsigned a : 3; } b; int main() { b.a = 9; return 0; }", diag.WarnOverflow, false},
		{"DivByZero", "int main() { int x = 4; return x % 0; }", diag.WarnDivByZero, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, bag, err := lowerSource(t, "x86", tt.src)
			if !bag.Has(tt.code) {
				t.Errorf("expected %s, got:\n%s", tt.code, emitted(bag))
			}
			if (err != nil) != tt.fail {
				t.Errorf("err = %v, want failure %v\n%s", err, tt.fail, emitted(bag))
			}
			if lower.IsFatal(err) {
				t.Errorf("%s should not be fatal", tt.code)
			}
		})
	}
}

func TestErrorsDoNotStopTheFunction(t *testing.T) {
	src := `
struct S { int a; } s;
int main() {
    int x;
    x = s;
    x = s + 1;
    return x;
}`
	prog, bag, err := lowerSource(t, "x86", src)
	if err == nil {
		t.Fatalf("expected an error")
	}
	if n := bag.ErrorCount(); n != 2 {
		t.Errorf("got %d errors, want 2:\n%s", n, emitted(bag))
	}
	if prog == nil || prog.Func("main") == nil {
		t.Fatalf("main should still be lowered")
	}
	if _, ok := prog.Func("main").Code.Last().(*icode.Ret); !ok {
		t.Errorf("main should end with a return")
	}
}

func TestAsm(t *testing.T) {
	t.Run("Operands", func(t *testing.T) {
		prog := mustLower(t, "x86", `
int main() {
    int x = 1, y;
    __asm__ volatile ("mov %1, %0" : "=r"(y) : "r"(x) : "ecx", "memory");
    return y;
}`)
		var found *icode.Asm
		for in := range prog.Func("main").Code.All() {
			if a, ok := in.(*icode.Asm); ok {
				found = a
			}
		}
		if found == nil {
			t.Fatalf("no asm instruction emitted")
		}
		if len(found.In) != 1 || len(found.Out) != 1 {
			t.Fatalf("asm has %d inputs and %d outputs, want 1 and 1", len(found.In), len(found.Out))
		}
		ecx := icode.Reg(2)
		if found.In[0] == ecx || found.Out[0] == ecx {
			t.Errorf("clobbered register used for an operand")
		}
		if found.In[0] == found.Out[0] {
			t.Errorf("input and output share %d", found.In[0])
		}
	})

	t.Run("UnsupportedConstraint", func(t *testing.T) {
		_, bag, err := lowerSource(t, "x86", `int main() { int x; __asm__("nop" : "=m"(x)); return 0; }`)
		if err == nil || !bag.Has(diag.ErrUnsupported) {
			t.Errorf("expected E009, got %v\n%s", err, emitted(bag))
		}
	})

	t.Run("UnknownClobber", func(t *testing.T) {
		_, bag, _ := lowerSource(t, "x86", `int main() { __asm__("nop" : : : "r99"); return 0; }`)
		if !bag.Has(diag.ErrUnsupported) {
			t.Errorf("expected E009, got\n%s", emitted(bag))
		}
	})

	t.Run("NoRegisterLeft", func(t *testing.T) {
		_, bag, err := lowerSource(t, "x86", `
int main() {
    int x = 1;
    __asm__("nop" : : "r"(x) : "eax", "ebx", "ecx", "edx", "esi", "edi");
    return 0;
}`)
		if !lower.IsFatal(err) {
			t.Errorf("expected a fatal error, got %v", err)
		}
		if !bag.Has(diag.ErrNoRegister) {
			t.Errorf("expected E010, got\n%s", emitted(bag))
		}
	})
}

func TestFrameSizeCoversTemporaries(t *testing.T) {
	src := `
int f(int a, int b, int c, int d, int e, int g, int h) {
    return (a + (b + (c + (d + (e + (g + (h + a))))))) * (h + (g + (e + (d + (c + (b + a))))));
}`
	prog := mustLower(t, "x86", src)
	fn := prog.Func("f")
	if fn.FrameSize < 7*4 {
		t.Errorf("frame size %d smaller than the parameters", fn.FrameSize)
	}
	if got := call(t, "x86", prog, "f", 1, 2, 3, 4, 5, 6, 7); got != 29*28 {
		t.Errorf("f = %d, want %d", got, 29*28)
	}
}
