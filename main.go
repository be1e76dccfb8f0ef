package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"sicc/pkg/compiler"
	"sicc/pkg/ctype"
	"sicc/pkg/diag"
	"sicc/pkg/icode"
	"sicc/pkg/sim"
)

// defineFlags collects repeated -D NAME[=VALUE] options.
type defineFlags map[string]string

func (d defineFlags) String() string {
	var parts []string
	for k, v := range d {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (d defineFlags) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if name == "" {
		return fmt.Errorf("empty macro name in %q", s)
	}
	if !ok {
		value = "1"
	}
	d[name] = value
	return nil
}

type unit struct {
	path string
	prog *icode.Program
	bag  *diag.Bag
	err  error
}

func main() {
	targetName := flag.String("target", "x86", "target architecture ("+strings.Join(ctype.Names(), ", ")+")")
	optimize := flag.Int("O", 0, "optimization level")
	runMain := flag.Bool("run", false, "run main() of each input on the simulator")
	jobs := flag.Int("j", runtime.NumCPU(), "number of files compiled in parallel")
	dump := flag.Bool("dump", false, "print the generated icode")
	verbose := flag.Bool("v", false, "report each phase")
	defines := defineFlags{}
	flag.Var(defines, "D", "define a macro (NAME or NAME=VALUE); may be repeated")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "nothing to do: provide one or more .c files")
		flag.Usage()
		os.Exit(2)
	}
	tgt, err := ctype.Lookup(*targetName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	units := make([]*unit, flag.NArg())
	var g errgroup.Group
	g.SetLimit(max(*jobs, 1))
	for i, path := range flag.Args() {
		g.Go(func() error {
			units[i] = compileFile(path, tgt, *optimize, defines)
			return nil
		})
	}
	_ = g.Wait()

	failed := false
	for _, u := range units {
		if u.bag != nil {
			u.bag.Emit(os.Stderr)
		}
		if u.err != nil {
			fmt.Fprintf(os.Stderr, "%s: compilation failed: %v\n", u.path, u.err)
			failed = true
			continue
		}
		if *verbose {
			fmt.Fprintf(os.Stderr, "compiled %s for %s: %d functions, %d data objects, %d warnings\n",
				u.path, tgt, len(u.prog.Funcs), len(u.prog.Data), u.bag.WarningCount())
		}
		if *dump {
			if err := u.prog.Format(os.Stdout, tgt.RegNames()); err != nil {
				fmt.Fprintf(os.Stderr, "write icode: %v\n", err)
				os.Exit(1)
			}
		}
		if *runMain {
			if err := run(u, tgt, os.Stdout); err != nil {
				fmt.Fprintf(os.Stderr, "run failed for %q: %v\n", u.path, err)
				failed = true
			}
		}
	}
	if failed {
		os.Exit(1)
	}
}

func compileFile(path string, tgt *ctype.Target, optimize int, defines defineFlags) *unit {
	u := &unit{path: path}
	source, err := os.ReadFile(path)
	if err != nil {
		u.err = fmt.Errorf("failed to read input file: %w", err)
		return u
	}
	u.prog, u.bag, u.err = compiler.Compile(string(source), filepath.Dir(path), compiler.Options{
		Target:   tgt,
		Optimize: optimize,
		File:     path,
		Defines:  defines,
	})
	return u
}

// run executes main() of a compiled unit, copying its putchar output to w.
func run(u *unit, tgt *ctype.Target, w io.Writer) error {
	m, err := sim.New(tgt, u.prog)
	if err != nil {
		return err
	}
	m.Output = w
	ret, err := m.Call("main")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "run complete (%s): main returned %d\n", u.path, int64(ret))
	return nil
}
