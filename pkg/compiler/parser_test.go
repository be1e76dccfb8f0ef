package compiler

import (
	"errors"
	"testing"

	"sicc/pkg/ast"
	"sicc/pkg/ctype"
	"sicc/pkg/diag"
)

func parseUnit(t *testing.T, target, src string) *ast.Unit {
	t.Helper()
	u, err := parseSource(target, src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return u
}

func parseSource(target, src string) (*ast.Unit, error) {
	tokens, err := Lex(src)
	if err != nil {
		return nil, err
	}
	return Parse(tokens, src, ctype.MustLookup(target), diag.NewBag("test.c"))
}

func parseError(t *testing.T, src string) *Error {
	t.Helper()
	_, err := parseSource("x86", src)
	if err == nil {
		t.Fatalf("expected parse error for:\n%s", src)
	}
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("error %v is not a *Error", err)
	}
	return pe
}

func global(t *testing.T, u *ast.Unit, name string) *ast.Decl {
	t.Helper()
	for _, d := range u.Globals {
		if d.Name == name {
			return d
		}
	}
	t.Fatalf("global %q not found", name)
	return nil
}

func TestParser_LiteralTypes(t *testing.T) {
	tests := []struct {
		target string
		expr   string
		want   string
	}{
		{"x86", "1", "int"},
		{"x86", "2147483647", "int"},
		{"x86", "2147483648", "long long"},
		{"amd64", "2147483648", "long"},
		{"x86", "0x80000000", "unsigned int"},
		{"x86", "10u", "unsigned int"},
		{"x86", "4294967296u", "unsigned long long"},
		{"x86", "1L", "long"},
		{"x86", "1ul", "unsigned long"},
		{"x86", "1LL", "long long"},
		{"x86", "'a'", "int"},
		{"x86", "1.5", "double"},
		{"x86", "1.5f", "float"},
		{"x86", "1.5L", "long double"},
		{"x86", "1 < 2", "int"},
		{"x86", "(char)1 + (char)2", "int"},
		{"x86", "1u + 1L", "unsigned long"},
		{"amd64", "1u + 1L", "long"},
		{"x86", "1 + 2.0f", "float"},
		{"x86", "sizeof(int)", "unsigned long"},
		{"amd64", "sizeof(long)", "unsigned long"},
		{"x86", "(short)1 << 2LL", "int"},
		{"x86", "~(unsigned char)1", "int"},
		{"x86", "1 ? 2 : 3.0", "double"},
	}
	for _, tt := range tests {
		t.Run(tt.target+"/"+tt.expr, func(t *testing.T) {
			u := parseUnit(t, tt.target, "long double v = "+tt.expr+";")
			v := global(t, u, "v")
			if len(v.Inits) != 1 {
				t.Fatalf("got %d inits, want 1", len(v.Inits))
			}
			if got := v.Inits[0].X.Type().String(); got != tt.want {
				t.Errorf("type of %s = %q, want %q", tt.expr, got, tt.want)
			}
		})
	}
}

func TestParser_Declarators(t *testing.T) {
	src := `
int *a[3];
int (*p)[3];
char **pp;
const char *s;
char *const cp;
int m[2][3];
int f(int x, char *y);
int g();
int h(int arr[], int n);
typedef unsigned long ulong;
ulong ul;
int arr[] = {1, 2};
int arr[2];
`
	u := parseUnit(t, "x86", src)
	tests := []struct {
		name string
		want string
	}{
		{"a", "int *[3]"},
		{"p", "int (*)[3]"},
		{"pp", "char **"},
		{"s", "const char *"},
		{"cp", "char *const"},
		{"m", "int [2][3]"},
		{"ul", "unsigned long"},
		{"arr", "int [2]"},
	}
	for _, tt := range tests {
		if got := global(t, u, tt.name).Type.String(); got != tt.want {
			t.Errorf("%s: type = %q, want %q", tt.name, got, tt.want)
		}
	}
	if n := len(u.Globals); n != 8 {
		t.Errorf("got %d globals, want 8 (functions and typedefs excluded, arr listed once)", n)
	}
}

func TestParser_FunctionSignatures(t *testing.T) {
	u := parseUnit(t, "x86", `
int g();
int h(int arr[], int n, ...) { return n; }
int g(void) { return 0; }
`)
	if len(u.Funcs) != 2 {
		t.Fatalf("got %d functions, want 2", len(u.Funcs))
	}
	h := u.Funcs[0]
	sig := h.Decl.Type.Func()
	if !sig.Proto || !sig.Variadic || len(sig.Params) != 2 {
		t.Fatalf("h signature = %+v", sig)
	}
	if got := h.Params[0].Type.String(); got != "int *" {
		t.Errorf("array parameter adjusted to %q, want %q", got, "int *")
	}
	if h.Params[0].Offset != 0 || h.Params[1].Offset != 4 || h.FrameSize != 8 {
		t.Errorf("param offsets %d, %d frame %d", h.Params[0].Offset, h.Params[1].Offset, h.FrameSize)
	}
	if g := u.Funcs[1].Decl; !g.Type.Func().Proto {
		t.Errorf("g should have gained a prototype")
	}
}

func TestParser_StructLayout(t *testing.T) {
	u := parseUnit(t, "x86", `
struct S { char c; int i; short s; } g;
union U { char c; double d; } un;
struct B { unsigned a : 3, b : 5; int : 0; int c; } bits;
`)
	r := global(t, u, "g").Type.Record
	if r.Size != 12 || r.Align != 4 {
		t.Errorf("struct S size %d align %d, want 12 and 4", r.Size, r.Align)
	}
	offsets := map[string]int64{"c": 0, "i": 4, "s": 8}
	for _, m := range r.Members {
		if want, ok := offsets[m.Name]; ok && m.Offset != want {
			t.Errorf("S.%s at %d, want %d", m.Name, m.Offset, want)
		}
	}
	if un := global(t, u, "un").Type.Record; un.Size != 8 || !un.Union {
		t.Errorf("union U size %d union %v", un.Size, un.Union)
	}
	b := global(t, u, "bits").Type.Record
	if b.Size != 8 {
		t.Errorf("struct B size %d, want 8", b.Size)
	}
	for _, m := range b.Members {
		if m.Name == "b" && (m.Type.Bits == nil || m.Type.Bits.Width != 5) {
			t.Errorf("B.b is not a 5-bit field: %v", m.Type)
		}
	}
}

func TestParser_Initializers(t *testing.T) {
	u := parseUnit(t, "x86", `
int a[] = {1, 2, 3,};
struct P { int x; int y; } ps[] = {1, 2, 3, 4};
int m[2][3] = {{1}, {4, 5}};
char s[] = "hi";
char t5[5] = "hi";
union U { char c; int i; } un = {7};
struct Q { int n; char name[4]; } q = {1, "abc"};
`)
	tests := []struct {
		name    string
		typ     string
		offsets []int64
	}{
		{"a", "int [3]", []int64{0, 4, 8}},
		{"ps", "struct P [2]", []int64{0, 4, 8, 12}},
		{"m", "int [2][3]", []int64{0, 12, 16}},
		{"s", "char [3]", []int64{0}},
		{"t5", "char [5]", []int64{0}},
		{"un", "union U", []int64{0}},
		{"q", "struct Q", []int64{0, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := global(t, u, tt.name)
			if got := d.Type.String(); got != tt.typ {
				t.Errorf("type = %q, want %q", got, tt.typ)
			}
			if len(d.Inits) != len(tt.offsets) {
				t.Fatalf("got %d inits, want %d", len(d.Inits), len(tt.offsets))
			}
			for i, in := range d.Inits {
				if in.Off != tt.offsets[i] {
					t.Errorf("init %d at %d, want %d", i, in.Off, tt.offsets[i])
				}
			}
		})
	}
	if got := global(t, u, "un").Inits[0].Type.String(); got != "char" {
		t.Errorf("union initializes %q, want its first member", got)
	}
	if _, ok := global(t, u, "s").Inits[0].X.(*ast.StringLit); !ok {
		t.Errorf("char array initializer is not a string literal")
	}
	if len(u.Strings) != 0 {
		t.Errorf("array initializers should not register %d string literals", len(u.Strings))
	}
}

func TestParser_Locals(t *testing.T) {
	u := parseUnit(t, "x86", `
int f(int n) {
	char c;
	int x = 1;
	static int calls = 0;
	int a[n][3];
	{
		int x = 2;
	}
	return sizeof a;
}
`)
	f := u.Funcs[0]
	decls := f.Body.Stmts
	c := decls[0].(*ast.DeclStmt).Decls[0]
	x := decls[1].(*ast.DeclStmt).Decls[0]
	if c.Offset != 4 || x.Offset != 8 {
		t.Errorf("c at %d, x at %d, want 4 and 8", c.Offset, x.Offset)
	}
	calls := global(t, u, "calls")
	if calls.Sym == "calls" || calls.Storage != ctype.Static {
		t.Errorf("block static got symbol %q storage %v", calls.Sym, calls.Storage)
	}
	vla := decls[3].(*ast.DeclStmt)
	a := vla.Decls[0]
	if !a.VLA || len(vla.Dims[a]) != 1 {
		t.Fatalf("a: VLA %v dims %d", a.VLA, len(vla.Dims[a]))
	}
	if got := a.Type.String(); got != "int [*][3]" {
		t.Errorf("a type = %q", got)
	}
	ret := decls[5].(*ast.Return)
	if _, ok := ret.X.(*ast.SizeofType); !ok {
		t.Errorf("sizeof a = %T, want a run-time size", ret.X)
	}
	if f.FrameSize < a.Offset+4 {
		t.Errorf("frame size %d does not cover the VLA slot at %d", f.FrameSize, a.Offset)
	}
}

func TestParser_StringLiterals(t *testing.T) {
	u := parseUnit(t, "x86", `
char *greet = "hello" " world";
int f(void) { char *s = "x"; return s[0]; }
`)
	if len(u.Strings) != 2 {
		t.Fatalf("got %d strings, want 2", len(u.Strings))
	}
	if u.Strings[0].Value != "hello world" || u.Strings[0].Sym != ".LC0" {
		t.Errorf("first string = %q %q", u.Strings[0].Value, u.Strings[0].Sym)
	}
	if got := u.Strings[1].Type().String(); got != "char [2]" {
		t.Errorf("string type %q, want char [2]", got)
	}
}

func TestParser_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
		msg  string
	}{
		{"Undeclared", "int f(void) { return y; }", diag.ErrUndeclared, "'y' undeclared"},
		{"Implicit function", "int f(void) { return g(1); }", diag.ErrUndeclared, "implicit declaration of function 'g'"},
		{"Call non-function", "int v; int f(void) { return v(); }", diag.ErrUnsupported, "not a function"},
		{"Missing semicolon", "int f(void) { return 1 }", diag.ErrSyntax, "expected"},
		{"Redefinition", "int f(void) { int a; int a; return 0; }", diag.ErrIncompatibleType, "redefinition of 'a'"},
		{"Conflicting types", "int v; char v;", diag.ErrIncompatibleType, "conflicting types for 'v'"},
		{"Function redefinition", "int f(void) { return 0; } int f(void) { return 1; }", diag.ErrIncompatibleType, "redefinition of 'f'"},
		{"Excess elements", "int a[2] = {1, 2, 3};", diag.ErrIncompatibleType, "excess elements"},
		{"Empty scalar", "int x = {};", diag.ErrIncompatibleType, "empty scalar initializer"},
		{"No member", "struct S { int a; } s; int f(void) { return s.b; }", diag.ErrInvalidOperands, "has no member named 'b'"},
		{"Member of scalar", "int v; int f(void) { return v.x; }", diag.ErrInvalidOperands, "not a structure or union"},
		{"Incomplete member access", "struct T *p; int f(void) { return p->x; }", diag.ErrLayout, "incomplete type"},
		{"File-scope VLA", "int n; int a[n];", diag.ErrNotConstant, "at file scope"},
		{"Pointer to VLA", "int f(int n) { int (*p)[n]; return 0; }", diag.ErrUnsupported, "pointer to variable-length array"},
		{"VLA initializer", "int f(int n) { int a[n] = {1}; return 0; }", diag.ErrIncompatibleType, "may not be initialized"},
		{"Negative array", "int a[-1];", diag.ErrInvalidOperands, "size of array is negative"},
		{"Void parameter", "int f(void x);", diag.ErrIncompatibleType, "void type"},
		{"Array of voids", "void a[3];", diag.ErrIncompatibleType, "array of voids"},
		{"Bad specifier combination", "int char x;", diag.ErrSyntax, "invalid combination"},
		{"Two types", "struct S { int a; }; int struct S x;", diag.ErrSyntax, "two or more data types"},
		{"Sizeof function", "int f(void); int n = sizeof(f);", diag.ErrInvalidOperands, "invalid application of 'sizeof'"},
		{"Auto at file scope", "auto int x;", diag.ErrSyntax, "'auto' or 'register'"},
		{"Wrong tag kind", "struct S { int a; }; union S u;", diag.ErrSyntax, "wrong kind of tag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := parseError(t, tt.src)
			if pe.Code != tt.code {
				t.Errorf("code = %s, want %s (%s)", pe.Code, tt.code, pe.Msg)
			}
			assertContains(t, pe.Msg, tt.msg)
		})
	}
}

func TestParser_ErrorSnippet(t *testing.T) {
	pe := parseError(t, "int main(void) {\n  return missing;\n}")
	if pe.Line != 2 {
		t.Errorf("line = %d, want 2", pe.Line)
	}
	if pe.Snippet != "return missing;" {
		t.Errorf("snippet = %q", pe.Snippet)
	}
	assertContains(t, pe.Error(), "line 2")
}
