package ctype

import (
	"fmt"

	"modernc.org/mathutil"
)

// Record is a struct or union definition.
type Record struct {
	Tag      string
	Union    bool
	Members  []*Member
	Size     int64
	Align    int64
	Complete bool
}

// Member is one struct/union member. For bitfields Offset is the byte
// offset of the storage unit and Type.Bits describes the field within it.
type Member struct {
	Name       string
	Type       *Type
	Offset     int64
	IsBitField bool
	Width      int
}

func (r *Record) Lookup(name string) *Member {
	for _, m := range r.Members {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// HasConst reports whether some member, at any depth of nested records,
// is const-qualified.
func (r *Record) HasConst() bool {
	for _, m := range r.Members {
		if m.Type.IsConst() || m.Type.IsRecord() && m.Type.Record.HasConst() {
			return true
		}
	}
	return false
}

// BitField is the precomputed access descriptor of a bitfield member.
// Offset counts from the least significant bit of the storage unit value
// as loaded from memory, so byte order is already folded in.
type BitField struct {
	Unit     Kind
	UnitSize int64
	Offset   int
	Width    int
	Mask     uint64 // exactly the field's bits within the unit
	InvMask  uint64 // the unit's bits outside the field
	Shl      int    // left shift bringing the field's top bit to the unit's top
	Shr      int    // arithmetic right shift sign-extending the field
}

// WidthMask returns a mask of the low n bits.
func WidthMask(n int) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return 1<<uint(n) - 1
}

func NewBitField(unit Kind, unitSize int64, offset, width int) *BitField {
	ubits := int(unitSize * 8)
	mask := WidthMask(width) << uint(offset)
	return &BitField{
		Unit:     unit,
		UnitSize: unitSize,
		Offset:   offset,
		Width:    width,
		Mask:     mask,
		InvMask:  WidthMask(ubits) &^ mask,
		Shl:      ubits - (offset + width),
		Shr:      ubits - width,
	}
}

// Fits reports whether the constant v can be stored in the field without
// losing bits, interpreting v as signed when the field is signed.
func (bf *BitField) Fits(v uint64, signed bool) bool {
	if signed {
		if int64(v) < 0 {
			return mathutil.BitLenUint64(^v)+1 <= bf.Width
		}
		return mathutil.BitLenUint64(v)+1 <= bf.Width
	}
	return mathutil.BitLenUint64(v) <= bf.Width
}

func alignUp(n, a int64) int64 {
	if a <= 1 {
		return n
	}
	return (n + a - 1) / a * a
}

// LayoutRecord assigns member offsets, bitfield descriptors, size and
// alignment. A bitfield occupies a storage unit of its declared type; a
// field that would straddle its unit starts a fresh one, and a zero-width
// field closes the current unit. On big-endian targets the first field of a
// unit occupies its most significant bits.
func LayoutRecord(tgt *Target, r *Record) error {
	var bitPos int64
	align := int64(1)
	size := int64(0)
	for _, m := range r.Members {
		if r.Union {
			bitPos = 0
		}
		if !m.IsBitField {
			if m.Type.IsFunction() || m.Type.IsVoid() {
				return fmt.Errorf("member %q has invalid type %s", m.Name, m.Type)
			}
			a := m.Type.Align(tgt)
			m.Offset = alignUp((bitPos+7)/8, a)
			bitPos = (m.Offset + m.Type.Size(tgt)) * 8
			align = mathutil.MaxInt64(align, a)
			size = mathutil.MaxInt64(size, bitPos/8)
			continue
		}

		if !m.Type.IsInteger() {
			return fmt.Errorf("bit-field %q has non-integer type %s", m.Name, m.Type)
		}
		usz := tgt.Size(m.Type.Kind)
		ubits := usz * 8
		if m.Width < 0 || int64(m.Width) > ubits {
			return fmt.Errorf("width of bit-field %q exceeds its type", m.Name)
		}
		if m.Width == 0 {
			if m.Name != "" {
				return fmt.Errorf("zero width for bit-field %q", m.Name)
			}
			bitPos = alignUp(bitPos, ubits)
			continue
		}
		unit := bitPos / ubits * ubits
		if bitPos+int64(m.Width) > unit+ubits {
			unit += ubits
			bitPos = unit
		}
		rel := int(bitPos - unit)
		off := rel
		if tgt.BigEndian {
			off = int(ubits) - rel - m.Width
		}
		m.Offset = unit / 8
		m.Type = m.Type.WithBits(NewBitField(m.Type.Kind, usz, off, m.Width))
		bitPos += int64(m.Width)
		align = mathutil.MaxInt64(align, tgt.Align(m.Type.Kind))
		size = mathutil.MaxInt64(size, (bitPos+7)/8)
	}
	r.Align = align
	r.Size = alignUp(size, align)
	r.Complete = true
	return nil
}
