package compiler

import (
	"testing"

	"sicc/pkg/ctype"
	"sicc/pkg/diag"
)

// simpleSource is a minimal program: one function, a couple of locals and
// a loop.
const simpleSource = `
int main() {
    int sum = 0;
    int i;
    for (i = 0; i < 10; i++) {
        sum += i;
    }
    return sum;
}
`

// complexSource exercises most of the front end and the lowering paths:
// structs, bit-fields, pointers, long long arithmetic, conditionals and
// calls.
const complexSource = `
#define N 16

struct point { int x; int y; };
struct flags { unsigned a : 3; unsigned b : 5; int c : 4; };

static int table[N];
long long acc = 1;
char *msg = "bench";

int dot(struct point *p, struct point *q) {
    return p->x * q->x + p->y * q->y;
}

int fib(int n) {
    if (n < 2) return n;
    return fib(n - 1) + fib(n - 2);
}

unsigned mix(unsigned h, int v) {
    h ^= v;
    h = (h << 5) | (h >> 27);
    return h * 33;
}

long long widen(int a, unsigned b) {
    long long r = a;
    r = r * b + (r >> 3);
    return r < 0 ? -r : r;
}

int main() {
    struct point a = {3, 4};
    struct point b = {5, 6};
    struct flags f;
    unsigned h = 5381;
    int i;
    int total = 0;

    f.a = 5;
    f.b = 17;
    f.c = -3;
    for (i = 0; i < N; i++) {
        table[i] = i * i;
        h = mix(h, table[i]);
        if (i % 3 == 0 && table[i] > 4 || i == 7) {
            total += i;
        } else {
            total -= 1;
        }
    }
    while (total > 100) {
        total /= 2;
    }
    acc += widen(total, h);
    total += dot(&a, &b) + fib(10);
    total += f.a + f.b + f.c;
    total += msg[0] == 'b' ? 1 : 0;
    return total;
}
`

func benchOptions() Options {
	return Options{Target: ctype.MustLookup("x86")}
}

// --- Lex (tokenisation) benchmarks ---

func BenchmarkLex_Simple(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Lex(simpleSource); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkLex_Complex(b *testing.B) {
	src, err := Preprocess(complexSource, ".", Predefined(ctype.MustLookup("x86")))
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Lex(src); err != nil {
			b.Fatal(err)
		}
	}
}

// --- Parse benchmarks ---
// Tokens are pre-computed outside the timed region.

func benchParse(b *testing.B, source string) {
	tgt := ctype.MustLookup("x86")
	src, err := Preprocess(source, ".", Predefined(tgt))
	if err != nil {
		b.Fatal(err)
	}
	tokens, err := Lex(src)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Parse(tokens, src, tgt, diag.NewBag("")); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkParse_Simple(b *testing.B)  { benchParse(b, simpleSource) }
func BenchmarkParse_Complex(b *testing.B) { benchParse(b, complexSource) }

// --- Full pipeline benchmarks (Preprocess + Lex + Parse + Lower) ---

func benchPipeline(b *testing.B, source string, optimize int) {
	opts := benchOptions()
	opts.Optimize = optimize
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, _, err := Compile(source, ".", opts); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCompilerPipeline_Simple(b *testing.B)    { benchPipeline(b, simpleSource, 0) }
func BenchmarkCompilerPipeline_Complex(b *testing.B)   { benchPipeline(b, complexSource, 0) }
func BenchmarkCompilerPipeline_ComplexO1(b *testing.B) { benchPipeline(b, complexSource, 1) }
