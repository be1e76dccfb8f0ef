// Command ccompiler prints every phase of one compilation: preprocessed
// source, tokens, the typed unit and the lowered icode.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"sicc/pkg/ast"
	"sicc/pkg/compiler"
	"sicc/pkg/ctype"
	"sicc/pkg/diag"
	"sicc/pkg/lower"
)

const testSource = `int x = 10;
int y = 20;
int main() { return x + y; }
`

func main() {
	targetName := flag.String("target", "x86", "target architecture")
	optimize := flag.Int("O", 0, "optimization level")
	flag.Parse()

	tgt, err := ctype.Lookup(*targetName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	src := testSource
	baseDir := "."
	file := "<builtin>"
	if flag.NArg() > 0 {
		file = flag.Arg(0)
		data, err := os.ReadFile(file)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read error:", err)
			os.Exit(1)
		}
		src = string(data)
		baseDir = filepath.Dir(file)
	}

	// Preprocess
	src, err = compiler.Preprocess(src, baseDir, compiler.Predefined(tgt))
	if err != nil {
		fmt.Fprintln(os.Stderr, "preprocess error:", err)
		os.Exit(1)
	}

	fmt.Printf("Source:\n%s\n", src)

	// Lex
	tokens, err := compiler.Lex(src)
	if err != nil {
		fmt.Fprintln(os.Stderr, "lex error:", err)
		os.Exit(1)
	}

	fmt.Printf("Tokens (%d)\n", len(tokens))
	for _, tok := range tokens {
		fmt.Println(" ", tok)
	}
	fmt.Println()

	// Parse
	bag := diag.NewBag(file)
	unit, err := compiler.Parse(tokens, src, tgt, bag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "parse error:", err)
		os.Exit(1)
	}

	fmt.Println("AST")
	ast.Dump(os.Stdout, unit)
	fmt.Println()

	// Lower
	prog, err := lower.New(tgt, bag, lower.WithOptimize(*optimize)).Unit(unit)
	bag.Emit(os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "lowering error:", err)
		os.Exit(1)
	}

	fmt.Println("Generated icode")
	if err := prog.Format(os.Stdout, tgt.RegNames()); err != nil {
		fmt.Fprintln(os.Stderr, "write error:", err)
		os.Exit(1)
	}
}
