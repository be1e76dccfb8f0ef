package lower

import (
	"fmt"

	"sicc/pkg/ctype"
	"sicc/pkg/icode"
)

// Backend is the per-architecture capability the engine consults instead
// of switching on the target name.
type Backend interface {
	Target() *ctype.Target
	// BlockCopy copies size bytes between the addresses held in src and
	// dst.
	BlockCopy(dst, src icode.Reg, size int64) icode.Instr
}

type genericBackend struct {
	tgt *ctype.Target
}

// GenericBackend uses only generic icode.
func GenericBackend(tgt *ctype.Target) Backend { return &genericBackend{tgt: tgt} }

func (b *genericBackend) Target() *ctype.Target { return b.tgt }

func (b *genericBackend) BlockCopy(dst, src icode.Reg, size int64) icode.Instr {
	return &icode.CopyStruct{Dst: dst, Src: src, Size: size}
}

type x86Backend struct {
	tgt *ctype.Target
}

func (b *x86Backend) Target() *ctype.Target { return b.tgt }

func (b *x86Backend) BlockCopy(dst, src icode.Reg, size int64) icode.Instr {
	return &icode.Ext{Op: &RepMovs{Dst: dst, Src: src, Size: size}}
}

// RepMovs is a string-move block copy.
type RepMovs struct {
	Dst, Src icode.Reg
	Size     int64
}

func (op *RepMovs) Name() string { return "rep movsb" }

func (op *RepMovs) Format(reg func(icode.Reg) string) string {
	return fmt.Sprintf("rep movsb %s, %s, %d", reg(op.Dst), reg(op.Src), op.Size)
}

func (op *RepMovs) Expand() []icode.Instr {
	return []icode.Instr{&icode.CopyStruct{Dst: op.Dst, Src: op.Src, Size: op.Size}}
}

var backends = map[string]func(*ctype.Target) Backend{
	"x86":   func(t *ctype.Target) Backend { return &x86Backend{tgt: t} },
	"amd64": func(t *ctype.Target) Backend { return &x86Backend{tgt: t} },
}

// BackendFor returns the registered backend for tgt, or the generic one.
func BackendFor(tgt *ctype.Target) Backend {
	if mk, ok := backends[tgt.Name]; ok {
		return mk(tgt)
	}
	return GenericBackend(tgt)
}
