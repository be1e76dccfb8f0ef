package icode

import (
	"fmt"
	"io"
)

// Param is where a function expects an incoming argument.
type Param struct {
	Name string
	Addr Addr
	W    Width
}

type Func struct {
	Name      string
	Params    []Param
	RetW      Width // Size 0 for void
	FrameSize int64
	Code      *List
}

// Reloc patches the address of Sym+Add into Datum bytes at Off.
type Reloc struct {
	Off  int64
	Sym  string
	Add  int64
	Size int64
}

// Datum is a static object.
type Datum struct {
	Sym    string
	Size   int64
	Align  int64
	Init   []byte
	Relocs []Reloc
}

type Program struct {
	Target string
	Funcs  []*Func
	Data   []*Datum
}

func (p *Program) Func(name string) *Func {
	for _, f := range p.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func (p *Program) Datum(sym string) *Datum {
	for _, d := range p.Data {
		if d.Sym == sym {
			return d
		}
	}
	return nil
}

func (p *Program) Format(w io.Writer, names []string) error {
	for _, d := range p.Data {
		if _, err := fmt.Fprintf(w, "data %s size=%d align=%d init=% x\n", d.Sym, d.Size, d.Align, d.Init); err != nil {
			return err
		}
		for _, r := range d.Relocs {
			fmt.Fprintf(w, "\treloc +%d -> %s%+d\n", r.Off, r.Sym, r.Add)
		}
	}
	for _, f := range p.Funcs {
		fmt.Fprintf(w, "func %s frame=%d\n", f.Name, f.FrameSize)
		for _, pr := range f.Params {
			fmt.Fprintf(w, "\tparam %s %s %s\n", pr.Name, pr.W, pr.Addr)
		}
		if err := f.Code.Format(w, names); err != nil {
			return err
		}
	}
	return nil
}
