// Package sim executes icode programs. It models a flat byte-addressed
// memory with the target's byte order, a register file per activation and
// the carry and compare state the icode instructions depend on.
package sim

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/bits"
	"os"

	"sicc/pkg/ctype"
	"sicc/pkg/icode"
)

const (
	DataBase  = 0x1000
	StackSize = 1 << 20
	// DefaultMaxSteps bounds a Call so a looping program fails instead of
	// hanging its caller.
	DefaultMaxSteps = 10_000_000
)

var (
	ErrUnknownFunction = errors.New("unknown function")
	ErrUnknownSymbol   = errors.New("unknown symbol")
	ErrBadAddress      = errors.New("address out of range")
	ErrDivideByZero    = errors.New("integer division by zero")
	ErrStepLimit       = errors.New("step limit exceeded")
	ErrStackOverflow   = errors.New("stack overflow")
	ErrUnsupported     = errors.New("unsupported instruction")
)

// Native is a function implemented by the simulator. Arguments arrive
// normalized to their widths; the result is normalized by the caller.
type Native func(m *Machine, args []uint64) uint64

type compiled struct {
	fn     *icode.Func
	code   []icode.Instr
	labels map[icode.Label]int
}

// Machine runs the functions of one program.
type Machine struct {
	Mem      []byte
	MaxSteps int
	// Output receives characters written by putchar. Nil means os.Stdout.
	Output  io.Writer
	Natives map[string]Native

	tgt   *ctype.Target
	order binary.ByteOrder
	prog  *icode.Program
	syms  map[string]int64
	funcs map[string]*compiled
	nregs int

	stackBase int64
	sp        int64
	steps     int
}

// New lays out the program's static data and applies its relocations.
func New(tgt *ctype.Target, prog *icode.Program) (*Machine, error) {
	m := &Machine{
		MaxSteps: DefaultMaxSteps,
		tgt:      tgt,
		order:    binary.LittleEndian,
		prog:     prog,
		syms:     make(map[string]int64),
		funcs:    make(map[string]*compiled),
		nregs:    len(tgt.RegNames()),
	}
	if tgt.BigEndian {
		m.order = binary.BigEndian
	}
	m.Natives = map[string]Native{"putchar": putchar}
	for name, fn := range runtimeRoutines {
		m.Natives[name] = fn
	}

	for i, f := range prog.Funcs {
		m.syms[f.Name] = int64(0x100 + 16*i)
		m.funcs[f.Name] = compile(f)
	}
	addr := int64(DataBase)
	for _, d := range prog.Data {
		addr = alignUp(addr, max(d.Align, 1))
		m.syms[d.Sym] = addr
		addr += max(d.Size, 1)
	}
	m.stackBase = alignUp(addr, 16)
	m.sp = m.stackBase
	m.Mem = make([]byte, m.stackBase+StackSize)

	for _, d := range prog.Data {
		base := m.syms[d.Sym]
		copy(m.Mem[base:], d.Init)
		for _, r := range d.Relocs {
			target, ok := m.syms[r.Sym]
			if !ok {
				return nil, fmt.Errorf("relocation in %s: %w %q", d.Sym, ErrUnknownSymbol, r.Sym)
			}
			if err := m.write(base+r.Off, r.Size, uint64(target+r.Add)); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func compile(f *icode.Func) *compiled {
	c := &compiled{fn: f, code: f.Code.Slice(), labels: make(map[icode.Label]int)}
	for i, in := range c.code {
		if mk, ok := in.(*icode.Mark); ok {
			c.labels[mk.Label] = i
		}
	}
	return c
}

func alignUp(n, a int64) int64 { return (n + a - 1) / a * a }

// Addr returns the address of a function or static object.
func (m *Machine) Addr(sym string) (int64, bool) {
	a, ok := m.syms[sym]
	return a, ok
}

// Load reads a value of width w at byte offset off of the static object sym.
func (m *Machine) Load(sym string, off int64, w icode.Width) (uint64, error) {
	a, ok := m.syms[sym]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownSymbol, sym)
	}
	return m.load(a+off, w)
}

// Store writes v, a value of width w, at byte offset off of sym.
func (m *Machine) Store(sym string, off int64, w icode.Width, v uint64) error {
	a, ok := m.syms[sym]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownSymbol, sym)
	}
	return m.store(a+off, w, v)
}

// Call runs the named function. Integer arguments are passed as their
// bits, floating ones as IEEE double bits. The result is normalized to the
// function's return width.
func (m *Machine) Call(name string, args ...uint64) (uint64, error) {
	m.steps = 0
	m.sp = m.stackBase
	c, ok := m.funcs[name]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownFunction, name)
	}
	if len(args) != len(c.fn.Params) {
		return 0, fmt.Errorf("%s: want %d arguments, have %d", name, len(c.fn.Params), len(args))
	}
	fp, err := m.pushFrame(c.fn)
	if err != nil {
		return 0, err
	}
	for i, p := range c.fn.Params {
		if err := m.store(fp+p.Addr.Off, p.W, normalize(args[i], p.W)); err != nil {
			return 0, err
		}
	}
	v, err := m.run(c, fp)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return normalize(v, c.fn.RetW), nil
}

func (m *Machine) pushFrame(f *icode.Func) (int64, error) {
	fp := alignUp(m.sp, 16)
	if fp+f.FrameSize > int64(len(m.Mem)) {
		return 0, ErrStackOverflow
	}
	m.sp = fp + f.FrameSize
	clear(m.Mem[fp:m.sp])
	return fp, nil
}

func (m *Machine) output() io.Writer {
	if m.Output == nil {
		return os.Stdout
	}
	return m.Output
}

func putchar(m *Machine, args []uint64) uint64 {
	fmt.Fprintf(m.output(), "%c", byte(args[0]))
	return args[0]
}

// normalize truncates v to w and extends it back to 64 bits.
func normalize(v uint64, w icode.Width) uint64 {
	if w.Float || w.Size <= 0 || w.Size >= 8 {
		return v
	}
	n := uint(w.Size * 8)
	mask := uint64(1)<<n - 1
	v &= mask
	if !w.Unsigned && v>>(n-1)&1 == 1 {
		v |= ^mask
	}
	return v
}

func (m *Machine) check(addr, size int64) error {
	if addr < 0 || size < 0 || addr+size > int64(len(m.Mem)) {
		return fmt.Errorf("%w: %#x+%d", ErrBadAddress, addr, size)
	}
	return nil
}

func (m *Machine) read(addr, size int64) (uint64, error) {
	if err := m.check(addr, size); err != nil {
		return 0, err
	}
	b := m.Mem[addr : addr+size]
	switch size {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(m.order.Uint16(b)), nil
	case 4:
		return uint64(m.order.Uint32(b)), nil
	case 8:
		return m.order.Uint64(b), nil
	}
	return 0, fmt.Errorf("%w: %d-byte access", ErrUnsupported, size)
}

func (m *Machine) write(addr, size int64, v uint64) error {
	if err := m.check(addr, size); err != nil {
		return err
	}
	b := m.Mem[addr : addr+size]
	switch size {
	case 1:
		b[0] = byte(v)
	case 2:
		m.order.PutUint16(b, uint16(v))
	case 4:
		m.order.PutUint32(b, uint32(v))
	case 8:
		m.order.PutUint64(b, v)
	default:
		return fmt.Errorf("%w: %d-byte access", ErrUnsupported, size)
	}
	return nil
}

// load reads a value of width w. Floats are held as double bits; a long
// double occupies its first eight bytes.
func (m *Machine) load(addr int64, w icode.Width) (uint64, error) {
	if w.Float {
		if w.Size == 4 {
			v, err := m.read(addr, 4)
			return math.Float64bits(float64(math.Float32frombits(uint32(v)))), err
		}
		return m.read(addr, 8)
	}
	v, err := m.read(addr, w.Size)
	return normalize(v, w), err
}

func (m *Machine) store(addr int64, w icode.Width, v uint64) error {
	if w.Float {
		if w.Size == 4 {
			return m.write(addr, 4, uint64(math.Float32bits(float32(math.Float64frombits(v)))))
		}
		return m.write(addr, 8, v)
	}
	if w.Size > 8 {
		return fmt.Errorf("%w: %d-byte store", ErrUnsupported, w.Size)
	}
	return m.write(addr, w.Size, v)
}

// activation is the state of one running function.
type activation struct {
	c     *compiled
	fp    int64
	regs  []uint64
	carry bool
	cmpA  uint64
	cmpB  uint64
	cmpW  icode.Width
}

func (a *activation) pair(p icode.Pair) (lo, hi uint64) {
	lo = a.regs[p[0]]
	if p.Multi() {
		hi = a.regs[p[1]]
	}
	return lo, hi
}

func (m *Machine) addr(a *activation, ad icode.Addr) (int64, error) {
	switch ad.Kind {
	case icode.AddrSym:
		base, ok := m.syms[ad.Sym]
		if !ok {
			return 0, fmt.Errorf("%w %q", ErrUnknownSymbol, ad.Sym)
		}
		return base + ad.Off, nil
	case icode.AddrFrame:
		return a.fp + ad.Off, nil
	case icode.AddrReg:
		base := normalize(a.regs[ad.Base], icode.Width{Size: m.tgt.PtrSize, Unsigned: true})
		return int64(base) + ad.Off, nil
	}
	return 0, fmt.Errorf("%w: address kind %d", ErrUnsupported, ad.Kind)
}

// join combines the words of a two-register value.
func (m *Machine) join(lo, hi uint64) uint64 {
	n := uint(m.tgt.RegSize * 8)
	if n >= 64 {
		return lo
	}
	return lo&(uint64(1)<<n-1) | hi<<n
}

func (m *Machine) split(v uint64, w icode.Width) (lo, hi uint64) {
	n := uint(m.tgt.RegSize * 8)
	word := icode.Width{Size: m.tgt.RegSize, Unsigned: true}
	if n >= 64 {
		return v, 0
	}
	return normalize(v, word), normalize(v>>n, icode.Width{Size: m.tgt.RegSize, Unsigned: w.Unsigned})
}

func (m *Machine) run(c *compiled, fp int64) (uint64, error) {
	a := &activation{c: c, fp: fp, regs: make([]uint64, m.nregs)}
	for pc := 0; pc < len(c.code); pc++ {
		m.steps++
		if m.MaxSteps > 0 && m.steps > m.MaxSteps {
			return 0, ErrStepLimit
		}
		in := c.code[pc]
		switch in := in.(type) {
		case *icode.Jump:
			pc = c.labels[in.Target]
			continue
		case *icode.Branch:
			if m.taken(a, in) {
				pc = c.labels[in.Target]
			}
			continue
		case *icode.Ret:
			if in.Src[0] == icode.NoReg {
				return 0, nil
			}
			lo, hi := a.pair(in.Src)
			if in.Src.Multi() {
				return m.join(lo, hi), nil
			}
			return normalize(lo, in.W), nil
		}
		if err := m.exec(a, in); err != nil {
			return 0, fmt.Errorf("%s: %w", icode.Format(in, m.tgt.RegNames()), err)
		}
	}
	return 0, nil
}

func (m *Machine) exec(a *activation, in icode.Instr) error {
	switch in := in.(type) {
	case *icode.Mark:

	case *icode.LoadConst:
		a.regs[in.Dst] = normalize(in.Value, in.W)

	case *icode.LoadAddr:
		ad, err := m.addr(a, in.Src)
		if err != nil {
			return err
		}
		a.regs[in.Dst] = uint64(ad)

	case *icode.Load:
		ad, err := m.addr(a, in.Src)
		if err != nil {
			return err
		}
		v, err := m.load(ad, in.W)
		if err != nil {
			return err
		}
		a.regs[in.Dst] = v

	case *icode.Store:
		ad, err := m.addr(a, in.Dst)
		if err != nil {
			return err
		}
		return m.store(ad, in.W, a.regs[in.Src])

	case *icode.Move:
		a.regs[in.Dst] = normalize(a.regs[in.Src], in.W)

	case *icode.Binop:
		v, err := m.binop(a, in.Op, a.regs[in.Dst], a.regs[in.Src], in.W)
		if err != nil {
			return err
		}
		a.regs[in.Dst] = v

	case *icode.Unop:
		x := a.regs[in.Dst]
		switch {
		case in.W.Float && in.Op == icode.Neg:
			x = math.Float64bits(-math.Float64frombits(x))
		case in.Op == icode.Neg:
			x = normalize(-x, in.W)
		case in.Op == icode.Not:
			x = normalize(^x, in.W)
		default:
			return fmt.Errorf("%w: unary %s", ErrUnsupported, in.Op)
		}
		a.regs[in.Dst] = x

	case *icode.Cmp:
		a.cmpW = in.W
		a.cmpA = a.regs[in.A]
		a.cmpB = 0
		if in.B != icode.NoReg {
			a.cmpB = a.regs[in.B]
		}

	case *icode.Cast:
		lo, hi := a.pair(in.Src)
		v := lo
		if in.Src.Multi() {
			v = m.join(lo, hi)
		}
		v = convert(v, in.From, in.To)
		if in.Dst.Multi() {
			a.regs[in.Dst[0]], a.regs[in.Dst[1]] = m.split(v, in.To)
		} else {
			a.regs[in.Dst[0]] = normalize(v, in.To)
		}

	case *icode.Call:
		return m.call(a, in)

	case *icode.CopyStruct:
		return m.copyBlock(a.regs[in.Dst], a.regs[in.Src], in.Size)

	case *icode.Alloca:
		size := int64(a.regs[in.Size])
		p := alignUp(m.sp, 16)
		if size < 0 || p+size > int64(len(m.Mem)) {
			return ErrStackOverflow
		}
		m.sp = p + size
		clear(m.Mem[p:m.sp])
		a.regs[in.Dst] = uint64(p)

	case *icode.Ext:
		for _, x := range in.Op.Expand() {
			if err := m.exec(a, x); err != nil {
				return err
			}
		}

	default:
		return fmt.Errorf("%w %T", ErrUnsupported, in)
	}
	return nil
}

func (m *Machine) copyBlock(dst, src uint64, size int64) error {
	if err := m.check(int64(dst), size); err != nil {
		return err
	}
	if err := m.check(int64(src), size); err != nil {
		return err
	}
	copy(m.Mem[dst:int64(dst)+size], m.Mem[src:int64(src)+size])
	return nil
}

func (m *Machine) binop(a *activation, op icode.Op, x, y uint64, w icode.Width) (uint64, error) {
	if w.Float {
		fx, fy := math.Float64frombits(x), math.Float64frombits(y)
		var f float64
		switch op {
		case icode.Add:
			f = fx + fy
		case icode.Sub:
			f = fx - fy
		case icode.Mul:
			f = fx * fy
		case icode.Div:
			f = fx / fy
		default:
			return 0, fmt.Errorf("%w: floating %s", ErrUnsupported, op)
		}
		if w.Size == 4 {
			f = float64(float32(f))
		}
		return math.Float64bits(f), nil
	}

	x, y = normalize(x, w), normalize(y, w)
	n := uint(w.Size * 8)
	mask := ^uint64(0)
	if n < 64 {
		mask = uint64(1)<<n - 1
	}
	ux, uy := x&mask, y&mask
	var v uint64
	switch op {
	case icode.Add, icode.Adc:
		var cin uint64
		if op == icode.Adc && a.carry {
			cin = 1
		}
		var cout uint64
		v, cout = bits.Add64(ux, uy, cin)
		if n < 64 {
			cout = v >> n & 1
		}
		a.carry = cout == 1
	case icode.Sub, icode.Sbb:
		var bin uint64
		if op == icode.Sbb && a.carry {
			bin = 1
		}
		var bout uint64
		v, bout = bits.Sub64(ux, uy, bin)
		if n < 64 {
			bout = v >> n & 1
		}
		a.carry = bout == 1
	case icode.Mul:
		v = x * y
	case icode.Div, icode.Mod:
		if uy == 0 {
			return 0, ErrDivideByZero
		}
		switch {
		case w.Unsigned && op == icode.Div:
			v = ux / uy
		case w.Unsigned:
			v = ux % uy
		case int64(x) == math.MinInt64 && int64(y) == -1:
			v = x
			if op == icode.Mod {
				v = 0
			}
		case op == icode.Div:
			v = uint64(int64(x) / int64(y))
		default:
			v = uint64(int64(x) % int64(y))
		}
	case icode.And:
		v = x & y
	case icode.Or:
		v = x | y
	case icode.Xor:
		v = x ^ y
	case icode.Shl:
		v = x << min(uy, 63)
		if uy >= 64 {
			v = 0
		}
	case icode.Shr:
		switch {
		case w.Unsigned:
			v = ux >> min(uy, 63)
			if uy >= 64 {
				v = 0
			}
		default:
			v = uint64(int64(x) >> min(uy, 63))
		}
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupported, op)
	}
	return normalize(v, w), nil
}

func (m *Machine) taken(a *activation, br *icode.Branch) bool {
	x, y := a.cmpA, a.cmpB
	if a.cmpW.Float {
		fx, fy := math.Float64frombits(x), math.Float64frombits(y)
		switch br.Cond {
		case icode.Eq:
			return fx == fy
		case icode.Ne:
			return fx != fy
		case icode.Lt:
			return fx < fy
		case icode.Le:
			return fx <= fy
		case icode.Gt:
			return fx > fy
		case icode.Ge:
			return fx >= fy
		}
		return false
	}
	x, y = normalize(x, a.cmpW), normalize(y, a.cmpW)
	var lt bool
	if br.Unsigned || a.cmpW.Unsigned {
		n := uint(a.cmpW.Size * 8)
		if n > 0 && n < 64 {
			x &= uint64(1)<<n - 1
			y &= uint64(1)<<n - 1
		}
		lt = x < y
	} else {
		lt = int64(x) < int64(y)
	}
	switch br.Cond {
	case icode.Eq:
		return x == y
	case icode.Ne:
		return x != y
	case icode.Lt:
		return lt
	case icode.Le:
		return lt || x == y
	case icode.Gt:
		return !lt && x != y
	case icode.Ge:
		return !lt
	}
	return false
}

// convert changes the representation of a value between widths.
func convert(v uint64, from, to icode.Width) uint64 {
	switch {
	case from.Float && to.Float:
		f := math.Float64frombits(v)
		if to.Size == 4 {
			f = float64(float32(f))
		}
		return math.Float64bits(f)
	case to.Float:
		var f float64
		if from.Unsigned {
			f = float64(normalize(v, from))
		} else {
			f = float64(int64(normalize(v, from)))
		}
		if to.Size == 4 {
			f = float64(float32(f))
		}
		return math.Float64bits(f)
	case from.Float:
		f := math.Float64frombits(v)
		if to.Unsigned && f >= 0 {
			return normalize(uint64(f), to)
		}
		return normalize(uint64(int64(f)), to)
	}
	return normalize(normalize(v, from), to)
}

func (m *Machine) call(a *activation, in *icode.Call) error {
	args := make([]uint64, len(in.Args))
	for i, arg := range in.Args {
		ad, err := m.addr(a, arg.Addr)
		if err != nil {
			return err
		}
		if args[i], err = m.load(ad, arg.W); err != nil {
			return err
		}
	}

	var ret uint64
	if c, ok := m.funcs[in.Fn]; ok {
		saved := m.sp
		fp, err := m.pushFrame(c.fn)
		if err != nil {
			return err
		}
		for i, p := range c.fn.Params {
			if i >= len(args) {
				break
			}
			if err := m.store(fp+p.Addr.Off, p.W, normalize(args[i], p.W)); err != nil {
				return err
			}
		}
		ret, err = m.run(c, fp)
		m.sp = saved
		if err != nil {
			return fmt.Errorf("%s: %w", in.Fn, err)
		}
	} else if fn, ok := m.Natives[in.Fn]; ok {
		ret = fn(m, args)
	} else {
		return fmt.Errorf("%w %q", ErrUnknownFunction, in.Fn)
	}

	if in.Ret[0] == icode.NoReg {
		return nil
	}
	if in.Ret.Multi() {
		a.regs[in.Ret[0]], a.regs[in.Ret[1]] = m.split(ret, in.RetW)
		return nil
	}
	a.regs[in.Ret[0]] = normalize(ret, in.RetW)
	return nil
}
