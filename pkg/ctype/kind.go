package ctype

// Kind is the base code of a C type, the part of a type left once the
// declarator chain (pointers, arrays, functions) is stripped.
type Kind uint8

const (
	Void Kind = iota
	Bool
	Char
	SChar
	UChar
	Short
	UShort
	Int
	UInt
	Long
	ULong
	LongLong
	ULongLong
	Float
	Double
	LongDouble
	Struct
	Union

	numKinds
)

var kindNames = [numKinds]string{
	Void:       "void",
	Bool:       "_Bool",
	Char:       "char",
	SChar:      "signed char",
	UChar:      "unsigned char",
	Short:      "short",
	UShort:     "unsigned short",
	Int:        "int",
	UInt:       "unsigned int",
	Long:       "long",
	ULong:      "unsigned long",
	LongLong:   "long long",
	ULongLong:  "unsigned long long",
	Float:      "float",
	Double:     "double",
	LongDouble: "long double",
	Struct:     "struct",
	Union:      "union",
}

func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return "kind?"
}

func (k Kind) IsInteger() bool { return k >= Bool && k <= ULongLong }
func (k Kind) IsFloat() bool   { return k >= Float && k <= LongDouble }
func (k Kind) IsArith() bool   { return k.IsInteger() || k.IsFloat() }

// Rank is the integer conversion rank. Floating kinds rank above every
// integer kind so that one comparison orders the whole arithmetic lattice.
func Rank(k Kind) int {
	switch k {
	case Bool:
		return 1
	case Char, SChar, UChar:
		return 2
	case Short, UShort:
		return 3
	case Int, UInt:
		return 4
	case Long, ULong:
		return 5
	case LongLong, ULongLong:
		return 6
	case Float:
		return 7
	case Double:
		return 8
	case LongDouble:
		return 9
	}
	return 0
}

// ToUnsigned returns the unsigned kind of the same rank.
func (k Kind) ToUnsigned() Kind {
	switch k {
	case Char, SChar:
		return UChar
	case Short:
		return UShort
	case Int:
		return UInt
	case Long:
		return ULong
	case LongLong:
		return ULongLong
	}
	return k
}

// ToSigned returns the signed kind of the same rank.
func (k Kind) ToSigned() Kind {
	switch k {
	case Char, UChar:
		return SChar
	case UShort:
		return Short
	case UInt:
		return Int
	case ULong:
		return Long
	case ULongLong:
		return LongLong
	}
	return k
}
