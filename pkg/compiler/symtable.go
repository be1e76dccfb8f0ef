package compiler

import (
	"fmt"
	"sort"
	"strings"

	"sicc/pkg/ast"
	"sicc/pkg/ctype"
)

type ScopeType int

const (
	ScopeGlobal ScopeType = iota
	ScopeLocal
)

// Symbol is an ordinary identifier: an object, a function or a typedef
// name.
type Symbol struct {
	Decl    *ast.Decl
	Typedef *ctype.Type
	Scope   ScopeType
}

type scope struct {
	kind   ScopeType
	idents map[string]*Symbol
	tags   map[string]*ctype.Record
}

func newScope(kind ScopeType) *scope {
	return &scope{kind: kind, idents: make(map[string]*Symbol), tags: make(map[string]*ctype.Record)}
}

// SymbolTable resolves identifiers and struct tags through nested block
// scopes and hands out frame offsets to the locals of the function being
// parsed. Offsets grow upwards from zero; a block's storage is not reused
// after the block closes.
type SymbolTable struct {
	scopes []*scope

	nextLocal int64
	frameSize int64
	statics   int
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{scopes: []*scope{newScope(ScopeGlobal)}}
}

func (s *SymbolTable) EnterFunction() {
	s.scopes = append(s.scopes, newScope(ScopeLocal))
	s.nextLocal = 0
	s.frameSize = 0
}

// ExitFunction closes the parameter scope and returns the frame size the
// function's locals need.
func (s *SymbolTable) ExitFunction() int64 {
	s.ExitScope()
	return s.frameSize
}

func (s *SymbolTable) EnterScope() {
	if !s.inFunction() {
		panic("EnterScope called outside function")
	}
	s.scopes = append(s.scopes, newScope(ScopeLocal))
}

func (s *SymbolTable) ExitScope() {
	if len(s.scopes) > 1 {
		s.scopes = s.scopes[:len(s.scopes)-1]
	}
}

func (s *SymbolTable) inFunction() bool {
	return len(s.scopes) > 1
}

func (s *SymbolTable) top() *scope { return s.scopes[len(s.scopes)-1] }

// Allocate reserves size bytes of the frame at the given alignment.
func (s *SymbolTable) Allocate(size, align int64) int64 {
	if align > 1 {
		s.nextLocal = (s.nextLocal + align - 1) / align * align
	}
	off := s.nextLocal
	s.nextLocal += size
	s.frameSize = max(s.frameSize, s.nextLocal)
	return off
}

// StaticName returns a unique assembler symbol for a block-scope static.
func (s *SymbolTable) StaticName(name string) string {
	s.statics++
	return fmt.Sprintf("%s.%d", name, s.statics)
}

// Define binds name in the innermost scope. A file-scope name may be
// declared again with a compatible type; the earlier Decl is returned so
// every use shares it.
func (s *SymbolTable) Define(d *ast.Decl) (*ast.Decl, error) {
	sc := s.top()
	if prev, ok := sc.idents[d.Name]; ok {
		if prev.Decl == nil || sc.kind == ScopeLocal && d.Storage != ctype.Extern {
			return nil, fmt.Errorf("redefinition of '%s'", d.Name)
		}
		if !ctype.Compatible(prev.Decl.Type, d.Type) {
			return nil, fmt.Errorf("conflicting types for '%s'", d.Name)
		}
		// A later declaration may complete an array length or add a
		// prototype.
		switch pt := prev.Decl.Type; {
		case pt.IsArray() && pt.Len() < 0:
			prev.Decl.Type = d.Type
		case pt.IsFunction() && !pt.Func().Proto && d.Type.Func().Proto:
			prev.Decl.Type = d.Type
		}
		return prev.Decl, nil
	}
	sc.idents[d.Name] = &Symbol{Decl: d, Scope: sc.kind}
	return d, nil
}

func (s *SymbolTable) DefineTypedef(name string, t *ctype.Type) error {
	sc := s.top()
	if prev, ok := sc.idents[name]; ok && (prev.Typedef == nil || !ctype.Compatible(prev.Typedef, t)) {
		return fmt.Errorf("redefinition of '%s'", name)
	}
	sc.idents[name] = &Symbol{Typedef: t, Scope: sc.kind}
	return nil
}

func (s *SymbolTable) Lookup(name string) (*Symbol, bool) {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if sym, ok := s.scopes[i].idents[name]; ok {
			return sym, true
		}
	}
	return nil, false
}

// IsTypedef reports whether name currently denotes a type.
func (s *SymbolTable) IsTypedef(name string) bool {
	sym, ok := s.Lookup(name)
	return ok && sym.Typedef != nil
}

// Tag returns the record named tag. With declare set, a record missing
// from the innermost scope is created there (a forward declaration or the
// start of a definition); otherwise outer scopes are searched first.
func (s *SymbolTable) Tag(tag string, union, declare bool) (*ctype.Record, error) {
	if !declare {
		for i := len(s.scopes) - 1; i >= 0; i-- {
			if r, ok := s.scopes[i].tags[tag]; ok {
				return r, s.checkTag(r, tag, union)
			}
		}
	} else if r, ok := s.top().tags[tag]; ok {
		return r, s.checkTag(r, tag, union)
	}
	r := &ctype.Record{Tag: tag, Union: union}
	s.top().tags[tag] = r
	return r, nil
}

func (s *SymbolTable) checkTag(r *ctype.Record, tag string, union bool) error {
	if r.Union != union {
		return fmt.Errorf("'%s' defined as wrong kind of tag", tag)
	}
	return nil
}

func (s *SymbolTable) String() string {
	var sb strings.Builder
	for depth, sc := range s.scopes {
		names := make([]string, 0, len(sc.idents))
		for name := range sc.idents {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			sym := sc.idents[name]
			if sym.Typedef != nil {
				fmt.Fprintf(&sb, "%d typedef %s %s\n", depth, sym.Typedef, name)
				continue
			}
			fmt.Fprintf(&sb, "%d %s %s @%d\n", depth, sym.Decl.Type, name, sym.Decl.Offset)
		}
	}
	return sb.String()
}
