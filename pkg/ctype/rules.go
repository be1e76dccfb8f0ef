package ctype

// Promote applies the integer promotions to t. Bitfields promote to int
// when int can represent every value of the field's width and signedness,
// otherwise to their declared type. Types of rank int or above, and
// non-integer types, are returned unchanged.
func Promote(tgt *Target, t *Type) *Type {
	if t.Bits != nil {
		intBits := int(tgt.Size(Int) * 8)
		w := t.Bits.Width
		if tgt.IsUnsignedKind(t.Kind) {
			if w < intBits {
				return Basic(Int)
			}
		} else if w <= intBits {
			return Basic(Int)
		}
		return Promote(tgt, Basic(t.Kind))
	}
	if !t.IsInteger() || Rank(t.Kind) >= Rank(Int) {
		return t
	}
	if tgt.Size(t.Kind) < tgt.Size(Int) || !tgt.IsUnsignedKind(t.Kind) {
		return Basic(Int)
	}
	return Basic(UInt)
}

// Common returns the type both operands of a binary arithmetic operator
// are converted to by the usual arithmetic conversions.
func Common(tgt *Target, a, b *Type) *Type {
	if a.IsFloat() || b.IsFloat() {
		k := a.Kind
		if !a.IsFloat() || (b.IsFloat() && Rank(b.Kind) > Rank(a.Kind)) {
			k = b.Kind
		}
		return Basic(k)
	}
	a, b = Promote(tgt, a), Promote(tgt, b)
	ka, kb := a.Kind, b.Kind
	if ka == kb {
		return Basic(ka)
	}
	ua, ub := tgt.IsUnsignedKind(ka), tgt.IsUnsignedKind(kb)
	if ua == ub {
		if Rank(ka) >= Rank(kb) {
			return Basic(ka)
		}
		return Basic(kb)
	}
	u, s := ka, kb
	if ub {
		u, s = kb, ka
	}
	switch {
	case Rank(u) >= Rank(s):
		return Basic(u)
	case tgt.SignedHolds(s, u):
		return Basic(s)
	}
	return Basic(s.ToUnsigned())
}
