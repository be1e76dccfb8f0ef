package ctype

import (
	"fmt"
	"strings"
)

// Qual is a set of type qualifiers.
type Qual uint8

const (
	Const Qual = 1 << iota
	Volatile
	Restrict
)

func (q Qual) String() string {
	var parts []string
	if q&Const != 0 {
		parts = append(parts, "const")
	}
	if q&Volatile != 0 {
		parts = append(parts, "volatile")
	}
	if q&Restrict != 0 {
		parts = append(parts, "restrict")
	}
	return strings.Join(parts, " ")
}

// Storage is the storage class of a declaration.
type Storage uint8

const (
	Auto Storage = iota
	Register
	Static
	Extern
	Typedef
)

type DerivedKind uint8

const (
	PointerTo DerivedKind = iota + 1
	ArrayOf
	FunctionOf
)

// Derived is one step of a declarator chain.
type Derived struct {
	Kind DerivedKind
	Qual Qual     // qualifiers of the pointer itself
	Len  int64    // array element count, -1 when incomplete or dynamic
	Dyn  *Dim     // runtime length of a variable-length dimension
	Func *FuncSig // parameter list of a function declarator
}

// Dim locates the runtime length of one variable-length array dimension:
// a frame slot, written when the declaration executes, holding the
// element count as an unsigned long.
type Dim struct {
	Slot int64
}

type FuncSig struct {
	Params   []*Type
	Variadic bool
	Proto    bool
}

// Type is an immutable C type. Chain holds the declarator chain with the
// outermost derivation first, so "int *a[3]" is [ArrayOf(3), PointerTo]
// over Int. Bits is set only on bitfield members.
type Type struct {
	Kind   Kind
	Qual   Qual
	Record *Record
	Chain  []Derived
	Bits   *BitField
}

var basic [numKinds]*Type

func init() {
	for k := Kind(0); k < numKinds; k++ {
		if k != Struct && k != Union {
			basic[k] = &Type{Kind: k}
		}
	}
}

// Basic returns the shared unqualified type of an arithmetic or void kind.
func Basic(k Kind) *Type {
	if t := basic[k]; t != nil {
		return t
	}
	panic(fmt.Sprintf("ctype: no basic type for %s", k))
}

func RecordType(r *Record) *Type {
	k := Struct
	if r.Union {
		k = Union
	}
	return &Type{Kind: k, Record: r}
}

func (t *Type) derive(d Derived) *Type {
	c := *t
	c.Chain = append([]Derived{d}, t.Chain...)
	c.Bits = nil
	return &c
}

func (t *Type) PointerTo() *Type { return t.derive(Derived{Kind: PointerTo}) }

// ArrayOf derives an array of n elements; n < 0 means incomplete.
func (t *Type) ArrayOf(n int64) *Type { return t.derive(Derived{Kind: ArrayOf, Len: n}) }

// DynArrayOf derives a variable-length array whose length lives in dim.
func (t *Type) DynArrayOf(dim *Dim) *Type {
	return t.derive(Derived{Kind: ArrayOf, Len: -1, Dyn: dim})
}

func (t *Type) FunctionOf(sig *FuncSig) *Type {
	return t.derive(Derived{Kind: FunctionOf, Func: sig})
}

// Elem strips the outermost derivation: the pointee, element or return type.
func (t *Type) Elem() *Type {
	if len(t.Chain) == 0 {
		return t
	}
	c := *t
	c.Chain = t.Chain[1:]
	c.Bits = nil
	return &c
}

// Decay applies the array-to-pointer and function-to-pointer conversions.
func (t *Type) Decay() *Type {
	switch {
	case t.IsArray():
		return t.Elem().PointerTo()
	case t.IsFunction():
		return t.PointerTo()
	}
	return t
}

// WithQual returns t with q added to its top-level qualifiers.
func (t *Type) WithQual(q Qual) *Type {
	c := *t
	if len(t.Chain) > 0 {
		c.Chain = append([]Derived(nil), t.Chain...)
		c.Chain[0].Qual |= q
	} else {
		c.Qual |= q
	}
	return &c
}

func (t *Type) WithBits(bf *BitField) *Type {
	c := *t
	c.Bits = bf
	return &c
}

// Unqualified drops the top-level qualifiers and any bitfield descriptor.
func (t *Type) Unqualified() *Type {
	if t.TopQual() == 0 && t.Bits == nil {
		return t
	}
	c := *t
	c.Bits = nil
	if len(t.Chain) > 0 {
		c.Chain = append([]Derived(nil), t.Chain...)
		c.Chain[0].Qual = 0
	} else {
		c.Qual = 0
	}
	return &c
}

func (t *Type) TopQual() Qual {
	if len(t.Chain) > 0 {
		return t.Chain[0].Qual
	}
	return t.Qual
}

func (t *Type) outer() DerivedKind {
	if len(t.Chain) == 0 {
		return 0
	}
	return t.Chain[0].Kind
}

func (t *Type) IsPointer() bool  { return t.outer() == PointerTo }
func (t *Type) IsArray() bool    { return t.outer() == ArrayOf }
func (t *Type) IsFunction() bool { return t.outer() == FunctionOf }
func (t *Type) IsConst() bool    { return t.TopQual()&Const != 0 }
func (t *Type) IsBitField() bool { return t.Bits != nil }

func (t *Type) IsVoid() bool    { return len(t.Chain) == 0 && t.Kind == Void }
func (t *Type) IsInteger() bool { return len(t.Chain) == 0 && t.Kind.IsInteger() }
func (t *Type) IsFloat() bool   { return len(t.Chain) == 0 && t.Kind.IsFloat() }
func (t *Type) IsArith() bool   { return len(t.Chain) == 0 && t.Kind.IsArith() }
func (t *Type) IsScalar() bool  { return t.IsArith() || t.IsPointer() }
func (t *Type) IsRecord() bool {
	return len(t.Chain) == 0 && (t.Kind == Struct || t.Kind == Union)
}
func (t *Type) IsAggregate() bool { return t.IsRecord() || t.IsArray() }

// IsVoidPointer reports whether t is a pointer to (possibly qualified) void.
func (t *Type) IsVoidPointer() bool { return t.IsPointer() && t.Elem().IsVoid() }

// IsVLA reports whether any leading array dimension of t is dynamic.
func (t *Type) IsVLA() bool {
	for _, d := range t.Chain {
		if d.Kind != ArrayOf {
			return false
		}
		if d.Dyn != nil {
			return true
		}
	}
	return false
}

// Len returns the element count of an array type, -1 when unknown.
func (t *Type) Len() int64 {
	if !t.IsArray() || t.Chain[0].Dyn != nil {
		return -1
	}
	return t.Chain[0].Len
}

func (t *Type) Func() *FuncSig {
	if !t.IsFunction() {
		return nil
	}
	return t.Chain[0].Func
}

// Size returns sizeof(t) on tgt. Variable-length and incomplete arrays
// report 0; their size is only known at run time.
func (t *Type) Size(tgt *Target) int64 {
	switch t.outer() {
	case PointerTo:
		return tgt.PtrSize
	case FunctionOf:
		return 1
	case ArrayOf:
		if t.Chain[0].Dyn != nil || t.Chain[0].Len < 0 {
			return 0
		}
		return t.Chain[0].Len * t.Elem().Size(tgt)
	}
	if t.Record != nil {
		return t.Record.Size
	}
	return tgt.Size(t.Kind)
}

func (t *Type) Align(tgt *Target) int64 {
	switch t.outer() {
	case PointerTo:
		return tgt.PtrSize
	case FunctionOf:
		return 1
	case ArrayOf:
		return t.Elem().Align(tgt)
	}
	if t.Record != nil {
		return max(t.Record.Align, 1)
	}
	return tgt.Align(t.Kind)
}

func (t *Type) String() string {
	base := t.Kind.String()
	if t.Record != nil && t.Record.Tag != "" {
		base += " " + t.Record.Tag
	}
	if q := t.Qual.String(); q != "" {
		base = q + " " + base
	}
	var d string
	for _, dv := range t.Chain {
		switch dv.Kind {
		case PointerTo:
			d = "*" + d
			if q := dv.Qual.String(); q != "" {
				d = "*" + q + " " + d[1:]
			}
		case ArrayOf:
			if strings.HasPrefix(d, "*") {
				d = "(" + d + ")"
			}
			switch {
			case dv.Dyn != nil:
				d += "[*]"
			case dv.Len < 0:
				d += "[]"
			default:
				d += fmt.Sprintf("[%d]", dv.Len)
			}
		case FunctionOf:
			if strings.HasPrefix(d, "*") {
				d = "(" + d + ")"
			}
			d += "()"
		}
	}
	if t.Bits != nil {
		d += fmt.Sprintf(":%d", t.Bits.Width)
	}
	if d = strings.TrimRight(d, " "); d == "" {
		return base
	}
	return base + " " + d
}

// Compatible reports whether a and b denote the same type, ignoring
// qualifiers and allowing an incomplete array length to match any length.
func Compatible(a, b *Type) bool {
	if a.Kind != b.Kind || len(a.Chain) != len(b.Chain) {
		return false
	}
	if a.Record != b.Record {
		return false
	}
	for i := range a.Chain {
		x, y := a.Chain[i], b.Chain[i]
		if x.Kind != y.Kind {
			return false
		}
		if x.Kind == ArrayOf && x.Dyn == nil && y.Dyn == nil && x.Len >= 0 && y.Len >= 0 && x.Len != y.Len {
			return false
		}
	}
	return true
}
