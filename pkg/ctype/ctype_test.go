package ctype

import "testing"

var integerKinds = []Kind{Bool, Char, SChar, UChar, Short, UShort, Int, UInt, Long, ULong, LongLong, ULongLong}

func TestCommonTable(t *testing.T) {
	tests := []struct {
		target string
		a, b   Kind
		want   Kind
	}{
		{"x86", Char, Short, Int},
		{"x86", UChar, UShort, Int},
		{"x86", Int, UInt, UInt},
		{"x86", Long, UInt, ULong},
		{"amd64", Long, UInt, Long},
		{"x86", LongLong, UInt, LongLong},
		{"x86", LongLong, ULong, LongLong},
		{"amd64", LongLong, ULong, ULongLong},
		{"x86", ULongLong, Int, ULongLong},
		{"x86", Int, Float, Float},
		{"x86", Float, Double, Double},
		{"mips", LongDouble, Double, LongDouble},
		{"ppc", Char, UInt, UInt},
	}
	for _, tt := range tests {
		tgt := MustLookup(tt.target)
		got := Common(tgt, Basic(tt.a), Basic(tt.b))
		if got.Kind != tt.want {
			t.Errorf("%s: Common(%s, %s) = %s, want %s", tt.target, tt.a, tt.b, got, tt.want)
		}
	}
}

func TestCommonProperties(t *testing.T) {
	for _, name := range Names() {
		tgt := MustLookup(name)
		for _, a := range integerKinds {
			for _, b := range integerKinds {
				c := Common(tgt, Basic(a), Basic(b))
				if c != Common(tgt, Basic(b), Basic(a)) {
					t.Fatalf("%s: Common(%s, %s) is not symmetric", name, a, b)
				}
				if Rank(c.Kind) < Rank(Int) {
					t.Errorf("%s: Common(%s, %s) = %s below int", name, a, b, c)
				}
				pa, pb := Promote(tgt, Basic(a)), Promote(tgt, Basic(b))
				if Rank(c.Kind) < Rank(pa.Kind) || Rank(c.Kind) < Rank(pb.Kind) {
					t.Errorf("%s: Common(%s, %s) = %s outranked by an operand", name, a, b, c)
				}
				if tgt.Size(c.Kind) < tgt.Size(pa.Kind) || tgt.Size(c.Kind) < tgt.Size(pb.Kind) {
					t.Errorf("%s: Common(%s, %s) = %s narrower than an operand", name, a, b, c)
				}
				ua, ub := tgt.IsUnsignedKind(pa.Kind), tgt.IsUnsignedKind(pb.Kind)
				if ua == ub && tgt.IsUnsignedKind(c.Kind) != ua {
					t.Errorf("%s: Common(%s, %s) = %s changed signedness", name, a, b, c)
				}
			}
		}
	}
}

func TestPromoteIdempotent(t *testing.T) {
	tgt := MustLookup("x86")
	for _, k := range integerKinds {
		p := Promote(tgt, Basic(k))
		if Promote(tgt, p) != p {
			t.Errorf("Promote not idempotent on %s", k)
		}
		if Rank(k) >= Rank(Int) && p != Basic(k) {
			t.Errorf("Promote(%s) = %s, want unchanged", k, p)
		}
	}
}

func TestPromoteBitField(t *testing.T) {
	tgt := MustLookup("x86")
	tests := []struct {
		kind  Kind
		width int
		want  Kind
	}{
		{UInt, 3, Int},
		{UInt, 31, Int},
		{UInt, 32, UInt},
		{Int, 32, Int},
		{UChar, 8, Int},
		{Long, 20, Int},
	}
	for _, tt := range tests {
		bt := Basic(tt.kind).WithBits(NewBitField(tt.kind, tgt.Size(tt.kind), 0, tt.width))
		if got := Promote(tgt, bt); got.Kind != tt.want {
			t.Errorf("Promote(%s:%d) = %s, want %s", tt.kind, tt.width, got, tt.want)
		}
	}
}

func TestLongHoldsUInt(t *testing.T) {
	if MustLookup("x86").LongHoldsUInt() {
		t.Error("x86 long should not hold every unsigned int")
	}
	if !MustLookup("amd64").LongHoldsUInt() {
		t.Error("amd64 long should hold every unsigned int")
	}
}

func TestLayoutBitFields(t *testing.T) {
	mk := func() *Record {
		return &Record{Tag: "s", Members: []*Member{
			{Name: "a", Type: Basic(UInt), IsBitField: true, Width: 3},
			{Name: "b", Type: Basic(UInt), IsBitField: true, Width: 5},
			{Name: "c", Type: Basic(Int), IsBitField: true, Width: 7},
			{Name: "d", Type: Basic(Char)},
		}}
	}

	r := mk()
	if err := LayoutRecord(MustLookup("x86"), r); err != nil {
		t.Fatal(err)
	}
	a, b, c, d := r.Members[0], r.Members[1], r.Members[2], r.Members[3]
	if a.Type.Bits.Mask != 0x7 || a.Type.Bits.Offset != 0 {
		t.Errorf("a: %+v", a.Type.Bits)
	}
	if b.Type.Bits.Mask != 0xF8 || b.Type.Bits.Offset != 3 {
		t.Errorf("b: %+v", b.Type.Bits)
	}
	if c.Type.Bits.Offset != 8 || c.Type.Bits.Shl != 17 || c.Type.Bits.Shr != 25 {
		t.Errorf("c: %+v", c.Type.Bits)
	}
	if d.Offset != 2 {
		t.Errorf("d.Offset = %d, want 2", d.Offset)
	}
	if r.Size != 4 || r.Align != 4 {
		t.Errorf("size/align = %d/%d, want 4/4", r.Size, r.Align)
	}
	if a.Type.Bits.InvMask != 0xFFFFFFF8 {
		t.Errorf("a.InvMask = %#x", a.Type.Bits.InvMask)
	}

	r = mk()
	if err := LayoutRecord(MustLookup("mips"), r); err != nil {
		t.Fatal(err)
	}
	a = r.Members[0]
	if a.Type.Bits.Offset != 29 || a.Type.Bits.Mask != 0xE0000000 || a.Type.Bits.Shl != 0 {
		t.Errorf("big-endian a: %+v", a.Type.Bits)
	}
}

func TestLayoutStraddle(t *testing.T) {
	r := &Record{Members: []*Member{
		{Name: "a", Type: Basic(UInt), IsBitField: true, Width: 30},
		{Name: "b", Type: Basic(UInt), IsBitField: true, Width: 4},
		{Type: Basic(UInt), IsBitField: true, Width: 0},
		{Name: "c", Type: Basic(UInt), IsBitField: true, Width: 1},
	}}
	if err := LayoutRecord(MustLookup("x86"), r); err != nil {
		t.Fatal(err)
	}
	if r.Members[1].Offset != 4 || r.Members[1].Type.Bits.Offset != 0 {
		t.Errorf("b should start a new unit, got offset %d bit %d", r.Members[1].Offset, r.Members[1].Type.Bits.Offset)
	}
	if r.Members[3].Offset != 8 {
		t.Errorf("c after zero-width field at %d, want 8", r.Members[3].Offset)
	}
	if r.Size != 12 {
		t.Errorf("size = %d, want 12", r.Size)
	}
}

func TestLayoutWideBitField(t *testing.T) {
	tests := []struct {
		target string
		lo, s  int
	}{
		{"x86", 0, 40},
		{"amd64", 0, 40},
		{"mips", 24, 4},
	}
	for _, tt := range tests {
		r := &Record{Members: []*Member{
			{Name: "lo", Type: Basic(ULongLong), IsBitField: true, Width: 40},
			{Name: "s", Type: Basic(LongLong), IsBitField: true, Width: 20},
		}}
		if err := LayoutRecord(MustLookup(tt.target), r); err != nil {
			t.Fatalf("%s: %v", tt.target, err)
		}
		lo, s := r.Members[0].Type.Bits, r.Members[1].Type.Bits
		if lo.UnitSize != 8 || r.Members[1].Offset != 0 || r.Size != 8 {
			t.Errorf("%s: both fields must share one 8-byte unit, got unit %d, offset %d, size %d", tt.target, lo.UnitSize, r.Members[1].Offset, r.Size)
		}
		if lo.Offset != tt.lo || s.Offset != tt.s {
			t.Errorf("%s: bit offsets %d, %d, want %d, %d", tt.target, lo.Offset, s.Offset, tt.lo, tt.s)
		}
	}
}

func TestTypeString(t *testing.T) {
	tests := []struct {
		typ  *Type
		want string
	}{
		{Basic(Int).PointerTo(), "int *"},
		{Basic(Int).PointerTo().ArrayOf(3), "int *[3]"},
		{Basic(Int).ArrayOf(3).PointerTo(), "int (*)[3]"},
		{Basic(Char).WithQual(Const).PointerTo(), "const char *"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestDecayAndCompatible(t *testing.T) {
	arr := Basic(Int).ArrayOf(4)
	if !Compatible(arr.Decay(), Basic(Int).PointerTo()) {
		t.Error("int[4] should decay to int *")
	}
	if Compatible(Basic(Int).PointerTo(), Basic(Long).PointerTo()) {
		t.Error("int * and long * are not compatible")
	}
	if !Compatible(Basic(Int).ArrayOf(-1), arr) {
		t.Error("incomplete array should match a complete one")
	}
	vla := Basic(Int).DynArrayOf(&Dim{Slot: 8})
	if !vla.IsVLA() || vla.Size(MustLookup("x86")) != 0 {
		t.Error("dynamic array should be a VLA with no static size")
	}
}

func TestBitFieldFits(t *testing.T) {
	bf := NewBitField(UInt, 4, 0, 3)
	if !bf.Fits(7, false) || bf.Fits(9, false) {
		t.Error("unsigned 3-bit range")
	}
	if !bf.Fits(^uint64(3), true) || bf.Fits(^uint64(4), true) || !bf.Fits(3, true) || bf.Fits(4, true) {
		t.Error("signed 3-bit range")
	}
}
