// Package lower turns type-checked C expressions and statements into
// icode. A Lowerer is the explicit context threaded through every
// lowering function; it owns the value model of the function being
// lowered and reports into a diag.Bag.
package lower

import (
	"errors"
	"fmt"

	"sicc/pkg/ast"
	"sicc/pkg/ctype"
	"sicc/pkg/diag"
	"sicc/pkg/icode"
	"sicc/pkg/vreg"
)

// ErrorKind classifies lowering failures.
type ErrorKind uint8

const (
	// KindType is an operand or assignment type error. Lowering of the
	// statement stops; the function continues with the next one.
	KindType ErrorKind = iota + 1
	// KindConst is an operator that is not allowed in a required constant
	// expression.
	KindConst
	// KindResource means no register could be obtained. It aborts the unit.
	KindResource
)

func (k ErrorKind) String() string {
	switch k {
	case KindType:
		return "type"
	case KindConst:
		return "constant"
	case KindResource:
		return "resource"
	}
	return "unknown"
}

// Error is a reported lowering failure. The same condition is recorded in
// the Lowerer's diagnostics.
type Error struct {
	Kind ErrorKind
	Pos  ast.Pos
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d: %s", e.Pos.Line, e.Msg)
}

// IsFatal reports whether err must abort the whole translation unit.
func IsFatal(err error) bool {
	var le *Error
	return errors.As(err, &le) && le.Kind == KindResource
}

// role tells an expression lowering function how its result is used.
type role uint8

const (
	asValue  role = iota // the result is consumed
	asEffect             // only side effects matter
)

// Options configure a Lowerer.
type Options struct {
	Optimize int
	Backend  Backend
	Strategy func() vreg.Strategy
}

type Option func(*Options)

// WithOptimize sets the optimization level. Level 1 and up enables
// strength reduction and the LRU spill strategy.
func WithOptimize(level int) Option {
	return func(o *Options) { o.Optimize = level }
}

func WithBackend(b Backend) Option {
	return func(o *Options) { o.Backend = b }
}

// WithStrategy overrides the spill strategy. newStrategy is called once per
// function.
func WithStrategy(newStrategy func() vreg.Strategy) Option {
	return func(o *Options) { o.Strategy = newStrategy }
}

type loopLabels struct {
	brk, cont icode.Label
}

// Lowerer lowers one translation unit. It is not safe for concurrent use;
// independent units use independent Lowerers.
type Lowerer struct {
	tgt     *ctype.Target
	backend Backend
	opts    Options
	diags   *diag.Bag

	vr     *vreg.State
	fn     *ast.Func
	labels int
	loops  []loopLabels

	dimDecls map[*ctype.Dim]*ast.Decl
	strDecls map[string]*ast.Decl
}

func New(tgt *ctype.Target, diags *diag.Bag, opts ...Option) *Lowerer {
	o := Options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Backend == nil {
		o.Backend = BackendFor(tgt)
	}
	if o.Strategy == nil {
		level := o.Optimize
		o.Strategy = func() vreg.Strategy { return vreg.StrategyFor(level) }
	}
	if diags == nil {
		diags = diag.NewBag("")
	}
	return &Lowerer{
		tgt:      tgt,
		backend:  o.Backend,
		opts:     o,
		diags:    diags,
		dimDecls: make(map[*ctype.Dim]*ast.Decl),
		strDecls: make(map[string]*ast.Decl),
	}
}

func (l *Lowerer) Target() *ctype.Target { return l.tgt }

func (l *Lowerer) Diagnostics() *diag.Bag { return l.diags }

func (l *Lowerer) newLabel() icode.Label {
	l.labels++
	return icode.Label(l.labels)
}

func (l *Lowerer) errorf(pos ast.Pos, code string, format string, args ...any) error {
	d := l.diags.Errorf(code, pos.Line, format, args...)
	kind := KindType
	switch code {
	case diag.ErrNotConstant:
		kind = KindConst
	case diag.ErrNoRegister:
		kind = KindResource
	}
	return &Error{Kind: kind, Pos: pos, Msg: d.Message}
}

func (l *Lowerer) warnf(pos ast.Pos, code string, format string, args ...any) {
	l.diags.Warnf(code, pos.Line, format, args...)
}

// fail reports an error from the value model that has not been reported
// yet.
func (l *Lowerer) fail(pos ast.Pos, err error) error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		return err
	}
	if errors.Is(err, vreg.ErrNoRegister) {
		return l.errorf(pos, diag.ErrNoRegister, "%v", err)
	}
	return l.errorf(pos, diag.ErrUnsupported, "%v", err)
}

func (l *Lowerer) typeOf(id vreg.ID) *ctype.Type { return l.vr.Get(id).Type }

func (l *Lowerer) basic(k ctype.Kind) *ctype.Type { return ctype.Basic(k) }

func (l *Lowerer) sizeType() *ctype.Type    { return ctype.Basic(l.tgt.SizeType()) }
func (l *Lowerer) ptrDiffType() *ctype.Type { return ctype.Basic(l.tgt.PtrDiffType()) }
