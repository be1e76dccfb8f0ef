package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sicc/pkg/ctype"
)

const libHeader = `
#ifndef LIB_H
#define LIB_H
int putchar(int c);

void puts_n(char *s) {
    while (*s)
        putchar(*s++);
    putchar('\n');
}

int square(int x) { return x * x; }
#endif
`

const libApp = `
#include "lib.h"
#include "lib.h"

int main() {
    puts_n("Lib Test Start");
#ifdef GREETING
    puts_n(GREETING);
#endif
    if (square(SIDE) == SIDE * SIDE)
        puts_n("Square OK");
    puts_n("Lib Test Done");
    return square(SIDE);
}
`

func writeApp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "lib.h"), []byte(libHeader), 0o644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "app.c")
	if err := os.WriteFile(path, []byte(libApp), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLibraryApp(t *testing.T) {
	path := writeApp(t)
	defines := defineFlags{}
	for _, d := range []string{"SIDE=7", `GREETING="hi there"`} {
		if err := defines.Set(d); err != nil {
			t.Fatal(err)
		}
	}

	for _, name := range []string{"x86", "amd64", "mips"} {
		tgt := ctype.MustLookup(name)
		u := compileFile(path, tgt, 1, defines)
		if u.err != nil {
			var diags bytes.Buffer
			u.bag.Emit(&diags)
			t.Fatalf("%s: compile failed: %v\n%s", name, u.err, diags.String())
		}

		var output bytes.Buffer
		if err := run(u, tgt, &output); err != nil {
			t.Fatalf("%s: run failed: %v", name, err)
		}
		outStr := output.String()
		expectedFragments := []string{
			"Lib Test Start",
			"hi there",
			"Square OK",
			"Lib Test Done",
			"main returned 49",
		}
		for _, frag := range expectedFragments {
			if !strings.Contains(outStr, frag) {
				t.Errorf("%s: output missing %q. Got:\n%s", name, frag, outStr)
			}
		}
	}
}

func TestCompileFileErrors(t *testing.T) {
	tgt := ctype.MustLookup("x86")
	if u := compileFile(filepath.Join(t.TempDir(), "missing.c"), tgt, 0, nil); u.err == nil {
		t.Errorf("missing input should fail")
	}

	// SIDE is undefined without -D.
	u := compileFile(writeApp(t), tgt, 0, nil)
	if u.err == nil {
		t.Fatalf("expected an undeclared identifier error")
	}
	if !u.bag.Has("E002") {
		var diags bytes.Buffer
		u.bag.Emit(&diags)
		t.Errorf("expected E002, got:\n%s", diags.String())
	}
}

func TestDefineFlags(t *testing.T) {
	d := defineFlags{}
	if err := d.Set("DEBUG"); err != nil || d["DEBUG"] != "1" {
		t.Errorf("bare name: got %q, %v", d["DEBUG"], err)
	}
	if err := d.Set("N=3"); err != nil || d["N"] != "3" {
		t.Errorf("NAME=VALUE: got %q, %v", d["N"], err)
	}
	if err := d.Set("=3"); err == nil {
		t.Errorf("empty name should be rejected")
	}
}
