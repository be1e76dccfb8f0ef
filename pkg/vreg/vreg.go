// Package vreg is the value model of the lowering engine: virtual
// registers, the physical register file they are cached in, and the frame
// slots they spill to.
package vreg

import (
	"fmt"

	"sicc/pkg/ast"
	"sicc/pkg/ctype"
	"sicc/pkg/icode"
)

// ID addresses a vreg in its Arena.
type ID = icode.VID

const NoID = icode.NoVID

// Const is a literal embedded in a vreg: an integer value, or the IEEE
// double bits of a floating constant.
type Const struct {
	Bits uint64
}

// Slot is a frame location.
type Slot struct {
	Off  int64
	Size int64
}

// Vreg is one C value during lowering. At most one of Var, Const, FromPtr
// and Parent is set; Off is the byte displacement applied to the object
// they designate.
type Vreg struct {
	Type *ctype.Type
	Size int64

	Var     *ast.Decl
	Const   *Const
	FromPtr ID
	Parent  ID
	Off     int64

	Stack *Slot
	Pregs icode.Pair
}

// IsAnon reports whether v has no origin and may be mutated in place.
func (v *Vreg) IsAnon() bool {
	return v.Var == nil && v.Const == nil && v.FromPtr == NoID && v.Parent == NoID
}

func (v *Vreg) Resident() bool { return v.Pregs[0] != icode.NoReg }

// IsLvalue reports whether v designates an object.
func (v *Vreg) IsLvalue() bool {
	return v.Var != nil || v.FromPtr != NoID || v.Parent != NoID
}

func (v *Vreg) String() string {
	var origin string
	switch {
	case v.Var != nil:
		origin = "var " + v.Var.Name
	case v.Const != nil:
		origin = fmt.Sprintf("const %#x", v.Const.Bits)
	case v.FromPtr != NoID:
		origin = fmt.Sprintf("*v%d", v.FromPtr)
	case v.Parent != NoID:
		origin = fmt.Sprintf("v%d.", v.Parent)
	default:
		origin = "anon"
	}
	if v.Off != 0 {
		origin += fmt.Sprintf("+%d", v.Off)
	}
	return fmt.Sprintf("%s %s", v.Type, origin)
}

// Arena owns the vregs of the statement being lowered. IDs are indices;
// the whole arena is discarded at once.
type Arena struct {
	vregs []*Vreg
}

func (a *Arena) add(v Vreg) ID {
	a.vregs = append(a.vregs, &v)
	return ID(len(a.vregs))
}

func (a *Arena) Get(id ID) *Vreg {
	if id == NoID || int(id) > len(a.vregs) {
		panic(fmt.Sprintf("vreg: bad id v%d", id))
	}
	return a.vregs[id-1]
}

func (a *Arena) Len() int { return len(a.vregs) }

func (a *Arena) Reset() {
	clear(a.vregs)
	a.vregs = a.vregs[:0]
}
