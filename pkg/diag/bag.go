package diag

import (
	"fmt"
	"io"
	"sync"
)

// Bag collects the diagnostics of one translation unit. It is safe for
// concurrent use so a driver can share one bag across workers.
type Bag struct {
	mu       sync.Mutex
	file     string
	diags    []*Diagnostic
	errors   int
	warnings int
}

func NewBag(file string) *Bag {
	return &Bag{file: file}
}

func (b *Bag) File() string { return b.file }

func (b *Bag) Add(d *Diagnostic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d.File == "" {
		d.File = b.file
	}
	b.diags = append(b.diags, d)
	switch d.Severity {
	case Error:
		b.errors++
	case Warning:
		b.warnings++
	}
}

func (b *Bag) Errorf(code string, line int, format string, args ...any) *Diagnostic {
	d := &Diagnostic{Severity: Error, Code: code, Line: line, Message: fmt.Sprintf(format, args...)}
	b.Add(d)
	return d
}

func (b *Bag) Warnf(code string, line int, format string, args ...any) *Diagnostic {
	d := &Diagnostic{Severity: Warning, Code: code, Line: line, Message: fmt.Sprintf(format, args...)}
	b.Add(d)
	return d
}

func (b *Bag) HasErrors() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errors > 0
}

func (b *Bag) ErrorCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errors
}

func (b *Bag) WarningCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.warnings
}

// Diagnostics returns a copy of everything reported so far.
func (b *Bag) Diagnostics() []*Diagnostic {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Diagnostic, len(b.diags))
	copy(out, b.diags)
	return out
}

// Has reports whether a diagnostic with the given code was recorded.
func (b *Bag) Has(code string) bool {
	for _, d := range b.Diagnostics() {
		if d.Code == code {
			return true
		}
	}
	return false
}

// Emit writes every diagnostic followed by a summary line.
func (b *Bag) Emit(w io.Writer) {
	for _, d := range b.Diagnostics() {
		fmt.Fprintln(w, d)
	}
	b.mu.Lock()
	errs, warns := b.errors, b.warnings
	b.mu.Unlock()
	switch {
	case errs > 0 && warns > 0:
		fmt.Fprintf(w, "%s: %d error(s) and %d warning(s)\n", b.file, errs, warns)
	case errs > 0:
		fmt.Fprintf(w, "%s: %d error(s)\n", b.file, errs)
	case warns > 0:
		fmt.Fprintf(w, "%s: %d warning(s)\n", b.file, warns)
	}
}
