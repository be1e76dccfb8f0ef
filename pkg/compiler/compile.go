package compiler

import (
	"errors"
	"fmt"
	"strconv"

	"sicc/pkg/ast"
	"sicc/pkg/ctype"
	"sicc/pkg/diag"
	"sicc/pkg/icode"
	"sicc/pkg/lower"
)

// Options configure one compilation.
type Options struct {
	Target   *ctype.Target
	Optimize int
	File     string            // name used in diagnostics
	Defines  map[string]string // extra object-like macros
}

// Predefined returns the macros every unit sees for tgt.
func Predefined(tgt *ctype.Target) map[string]string {
	return map[string]string{
		"__sicc__":             "1",
		"__" + tgt.Name + "__": "1",
		"__SIZEOF_POINTER__":   strconv.FormatInt(tgt.PtrSize, 10),
		"__SIZEOF_LONG__":      strconv.FormatInt(tgt.Size(ctype.Long), 10),
		"__SIZEOF_INT__":       strconv.FormatInt(tgt.Size(ctype.Int), 10),
	}
}

// Front runs the front end only and returns the typed unit. Front-end
// errors are recorded in bag as well as returned.
func Front(src, baseDir string, opts Options, bag *diag.Bag) (*ast.Unit, error) {
	defines := Predefined(opts.Target)
	for k, v := range opts.Defines {
		defines[k] = v
	}
	src, err := Preprocess(src, baseDir, defines)
	if err != nil {
		bag.Errorf(diag.ErrSyntax, 0, "preprocess: %v", err)
		return nil, err
	}
	tokens, err := Lex(src)
	if err != nil {
		bag.Errorf(diag.ErrSyntax, 0, "%v", err)
		return nil, err
	}
	u, err := Parse(tokens, src, opts.Target, bag)
	if err != nil {
		var pe *Error
		if errors.As(err, &pe) {
			bag.Errorf(pe.Code, pe.Line, "%s", pe.Msg)
		} else {
			bag.Errorf(diag.ErrSyntax, 0, "%v", err)
		}
		return nil, err
	}
	return u, nil
}

// Compile translates one C source into an icode program. The returned bag
// holds every diagnostic, warnings included, even when compilation
// succeeds.
func Compile(src, baseDir string, opts Options) (*icode.Program, *diag.Bag, error) {
	if opts.Target == nil {
		return nil, nil, fmt.Errorf("compile: no target")
	}
	bag := diag.NewBag(opts.File)
	u, err := Front(src, baseDir, opts, bag)
	if err != nil {
		return nil, bag, err
	}
	l := lower.New(opts.Target, bag, lower.WithOptimize(opts.Optimize))
	prog, err := l.Unit(u)
	if err != nil {
		return prog, bag, err
	}
	return prog, bag, nil
}
