package compiler

import (
	"slices"

	"sicc/pkg/ast"
	"sicc/pkg/ctype"
	"sicc/pkg/diag"
	"sicc/pkg/lower"
)

var storageClasses = map[TokenType]ctype.Storage{
	STATIC:   ctype.Static,
	EXTERN:   ctype.Extern,
	TYPEDEF:  ctype.Typedef,
	REGISTER: ctype.Register,
	AUTO:     ctype.Auto,
}

// declSpec is the result of parsing declaration specifiers.
type declSpec struct {
	storage    ctype.Storage
	hasStorage bool
	base       *ctype.Type
	line       int
}

// declOp is one derivation of a declarator.
type declOp struct {
	kind   ctype.DerivedKind
	qual   ctype.Qual
	n      int64    // array length, -1 when absent
	dim    ast.Expr // length of a variable-length dimension
	sig    *ctype.FuncSig
	params []*ast.Decl
}

// declarator is a parsed declarator. ops are applied to the base type in
// order, so the last one is the outermost derivation.
type declarator struct {
	name string
	line int
	ops  []declOp
}

// declContext says where a declarator appears, which decides what a
// non-constant array length means.
type declContext int

const (
	ctxGlobal declContext = iota
	ctxLocal
	ctxParam
	ctxMember
	ctxTypeName
)

// startsType reports whether tok can begin a type name.
func (p *Parser) startsType(tok Token) bool {
	switch tok.Type {
	case VOID, CHAR, SHORT, INT, LONG, SIGNED, UNSIGNED, FLOAT, DOUBLE, BOOL,
		STRUCT, UNION, CONST, VOLATILE:
		return true
	case IDENTIFIER:
		return p.syms.IsTypedef(tok.Lexeme)
	}
	return false
}

// startsDecl reports whether tok can begin a declaration.
func (p *Parser) startsDecl(tok Token) bool {
	if _, ok := storageClasses[tok.Type]; ok {
		return true
	}
	return p.startsType(tok)
}

func (p *Parser) parseDeclSpecs() (declSpec, error) {
	spec := declSpec{storage: ctype.Auto, line: p.peek().Line}
	var qual ctype.Qual
	var named *ctype.Type
	counts := make(map[TokenType]int)

loop:
	for {
		tok := p.peek()
		switch tok.Type {
		case STATIC, EXTERN, TYPEDEF, REGISTER, AUTO:
			if spec.hasStorage {
				return spec, p.fmtError(tok, "multiple storage classes in declaration specifiers")
			}
			spec.hasStorage = true
			spec.storage = storageClasses[tok.Type]
			p.advance()
		case CONST:
			qual |= ctype.Const
			p.advance()
		case VOLATILE:
			qual |= ctype.Volatile
			p.advance()
		case VOID, CHAR, SHORT, INT, LONG, SIGNED, UNSIGNED, FLOAT, DOUBLE, BOOL:
			if named != nil {
				return spec, p.fmtError(tok, "two or more data types in declaration specifiers")
			}
			counts[tok.Type]++
			p.advance()
		case STRUCT, UNION:
			if named != nil || len(counts) > 0 {
				return spec, p.fmtError(tok, "two or more data types in declaration specifiers")
			}
			p.advance()
			t, err := p.parseRecordSpec(tok.Type == UNION, tok)
			if err != nil {
				return spec, err
			}
			named = t
		case IDENTIFIER:
			if named != nil || len(counts) > 0 || !p.syms.IsTypedef(tok.Lexeme) {
				break loop
			}
			sym, _ := p.syms.Lookup(tok.Lexeme)
			named = sym.Typedef
			p.advance()
		default:
			break loop
		}
	}

	t := named
	if t == nil {
		k, err := p.basicKind(counts, spec.line)
		if err != nil {
			return spec, err
		}
		t = ctype.Basic(k)
	}
	if qual != 0 {
		t = t.WithQual(qual)
	}
	spec.base = t
	return spec, nil
}

// basicKind resolves a multiset of arithmetic type keywords.
func (p *Parser) basicKind(counts map[TokenType]int, line int) (ctype.Kind, error) {
	bad := func() (ctype.Kind, error) {
		return 0, p.semError(line, diag.ErrSyntax, "invalid combination of type specifiers")
	}
	for tt, n := range counts {
		if n > 1 && !(tt == LONG && n == 2) {
			return bad()
		}
	}
	signed, unsigned := counts[SIGNED] > 0, counts[UNSIGNED] > 0
	if signed && unsigned {
		return bad()
	}
	pick := func(s, u ctype.Kind) ctype.Kind {
		if unsigned {
			return u
		}
		return s
	}
	sized := counts[SHORT] + counts[LONG]
	switch {
	case len(counts) == 0:
		return 0, p.semError(line, diag.ErrSyntax, "type specifier missing")
	case counts[VOID] > 0:
		if len(counts) > 1 {
			return bad()
		}
		return ctype.Void, nil
	case counts[BOOL] > 0:
		if len(counts) > 1 {
			return bad()
		}
		return ctype.Bool, nil
	case counts[FLOAT] > 0:
		if len(counts) > 1 {
			return bad()
		}
		return ctype.Float, nil
	case counts[DOUBLE] > 0:
		if signed || unsigned || counts[SHORT] > 0 || counts[LONG] > 1 || counts[INT] > 0 {
			return bad()
		}
		if counts[LONG] == 1 {
			return ctype.LongDouble, nil
		}
		return ctype.Double, nil
	case counts[CHAR] > 0:
		if sized > 0 || counts[INT] > 0 {
			return bad()
		}
		switch {
		case signed:
			return ctype.SChar, nil
		case unsigned:
			return ctype.UChar, nil
		}
		return ctype.Char, nil
	case counts[SHORT] > 0:
		if counts[LONG] > 0 {
			return bad()
		}
		return pick(ctype.Short, ctype.UShort), nil
	case counts[LONG] == 2:
		return pick(ctype.LongLong, ctype.ULongLong), nil
	case counts[LONG] == 1:
		return pick(ctype.Long, ctype.ULong), nil
	}
	return pick(ctype.Int, ctype.UInt), nil
}

// parseRecordSpec parses what follows "struct" or "union": a tag, a
// member list, or both. A complete definition is laid out immediately.
func (p *Parser) parseRecordSpec(union bool, kw Token) (*ctype.Type, error) {
	tag := ""
	if p.peek().Type == IDENTIFIER {
		tag = p.advance().Lexeme
	}
	if p.peek().Type != LBRACE {
		if tag == "" {
			return nil, p.fmtError(p.peek(), "expected '{' or tag after %s", kw.Lexeme)
		}
		r, err := p.syms.Tag(tag, union, p.peek().Type == SEMICOLON)
		if err != nil {
			return nil, p.semError(kw.Line, diag.ErrSyntax, "%v", err)
		}
		return ctype.RecordType(r), nil
	}

	r := &ctype.Record{Union: union}
	if tag != "" {
		var err error
		if r, err = p.syms.Tag(tag, union, true); err != nil {
			return nil, p.semError(kw.Line, diag.ErrSyntax, "%v", err)
		}
		if r.Complete {
			return nil, p.semError(kw.Line, diag.ErrSyntax, "redefinition of '%s %s'", kw.Lexeme, tag)
		}
	}
	p.advance() // {

	var members []*ctype.Member
	for !p.accept(RBRACE) {
		spec, err := p.parseDeclSpecs()
		if err != nil {
			return nil, err
		}
		if spec.hasStorage {
			return nil, p.semError(spec.line, diag.ErrSyntax, "storage class specified for a member")
		}
		for {
			m, err := p.parseMember(spec, members)
			if err != nil {
				return nil, err
			}
			members = append(members, m)
			if !p.accept(COMMA) {
				break
			}
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
	}
	r.Members = members
	if err := ctype.LayoutRecord(p.tgt, r); err != nil {
		return nil, p.semError(kw.Line, diag.ErrLayout, "%v", err)
	}
	return ctype.RecordType(r), nil
}

func (p *Parser) parseMember(spec declSpec, prev []*ctype.Member) (*ctype.Member, error) {
	m := &ctype.Member{Type: spec.base}
	line := p.peek().Line
	if p.peek().Type != COLON {
		d, err := p.parseDeclarator(false)
		if err != nil {
			return nil, err
		}
		if m.Type, _, err = p.buildType(spec.base, d, ctxMember); err != nil {
			return nil, err
		}
		m.Name, line = d.name, d.line
	}
	if tok := p.peek(); p.accept(COLON) {
		x, err := p.parseConditional()
		if err != nil {
			return nil, err
		}
		w, ok := p.constInt(x)
		if !ok || int64(w) < 0 {
			return nil, p.semError(tok.Line, diag.ErrNotConstant, "bit-field '%s' width not an integer constant", m.Name)
		}
		m.IsBitField, m.Width = true, int(w)
	}
	switch {
	case m.Name == "" && !m.IsBitField:
		return nil, p.semError(line, diag.ErrSyntax, "declaration does not declare anything")
	case m.Name != "" && slices.ContainsFunc(prev, func(o *ctype.Member) bool { return o.Name == m.Name }):
		return nil, p.semError(line, diag.ErrSyntax, "duplicate member '%s'", m.Name)
	case m.Type.IsRecord() && !m.Type.Record.Complete, m.Type.IsArray() && m.Type.Len() < 0:
		return nil, p.semError(line, diag.ErrLayout, "field '%s' has incomplete type", m.Name)
	}
	return m, nil
}

// constInt folds an integer constant expression without reporting.
func (p *Parser) constInt(x ast.Expr) (uint64, bool) {
	if !x.Type().IsInteger() {
		return 0, false
	}
	v, err := p.consts.Eval(x, lower.Optional)
	return v, err == nil
}

// parseDeclarator parses pointers, a name (optional when abstract) or a
// parenthesized inner declarator, then array and function suffixes.
func (p *Parser) parseDeclarator(abstract bool) (*declarator, error) {
	var ptrs []declOp
	for p.accept(STAR) {
		op := declOp{kind: ctype.PointerTo}
		for {
			if p.accept(CONST) {
				op.qual |= ctype.Const
			} else if p.accept(VOLATILE) {
				op.qual |= ctype.Volatile
			} else {
				break
			}
		}
		ptrs = append(ptrs, op)
	}

	d := &declarator{line: p.peek().Line}
	var inner *declarator
	tok := p.peek()
	switch {
	case tok.Type == IDENTIFIER:
		p.advance()
		d.name, d.line = tok.Lexeme, tok.Line
	case tok.Type == LPAREN && p.nestedDeclarator():
		p.advance()
		var err error
		if inner, err = p.parseDeclarator(abstract); err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		d.name, d.line = inner.name, inner.line
	case !abstract:
		return nil, p.fmtError(tok, "expected identifier, got %s (%q)", tok.Type, tok.Lexeme)
	}

	suffixes, err := p.parseSuffixes()
	if err != nil {
		return nil, err
	}
	d.ops = append(d.ops, ptrs...)
	for i := len(suffixes) - 1; i >= 0; i-- {
		d.ops = append(d.ops, suffixes[i])
	}
	if inner != nil {
		d.ops = append(d.ops, inner.ops...)
	}
	return d, nil
}

// nestedDeclarator reports whether the '(' at the current position opens
// a parenthesized declarator rather than a parameter list.
func (p *Parser) nestedDeclarator() bool {
	next := p.peekNext()
	switch next.Type {
	case STAR, LPAREN, LBRACKET:
		return true
	case IDENTIFIER:
		return !p.syms.IsTypedef(next.Lexeme)
	}
	return false
}

func (p *Parser) parseSuffixes() ([]declOp, error) {
	var ops []declOp
	for {
		switch tok := p.peek(); tok.Type {
		case LBRACKET:
			p.advance()
			op := declOp{kind: ctype.ArrayOf, n: -1}
			if !p.accept(RBRACKET) {
				x, err := p.parseAssignment()
				if err != nil {
					return nil, err
				}
				if _, err := p.expect(RBRACKET); err != nil {
					return nil, err
				}
				if v, ok := p.constInt(x); ok {
					if !p.tgt.IsUnsigned(x.Type()) && int64(v) < 0 {
						return nil, p.semError(tok.Line, diag.ErrInvalidOperands, "size of array is negative")
					}
					op.n = int64(v)
				} else {
					op.dim = x
				}
			}
			ops = append(ops, op)
		case LPAREN:
			p.advance()
			sig, params, err := p.parseParams()
			if err != nil {
				return nil, err
			}
			ops = append(ops, declOp{kind: ctype.FunctionOf, sig: sig, params: params})
		default:
			return ops, nil
		}
	}
}

// parseParams parses a parameter list after its '('. An empty list
// declares a function without a prototype.
func (p *Parser) parseParams() (*ctype.FuncSig, []*ast.Decl, error) {
	sig := &ctype.FuncSig{}
	if p.accept(RPAREN) {
		return sig, nil, nil
	}
	sig.Proto = true
	if p.peek().Type == VOID && p.peekNext().Type == RPAREN {
		p.advance()
		p.advance()
		return sig, nil, nil
	}
	var params []*ast.Decl
	p.syms.scopes = append(p.syms.scopes, newScope(ScopeLocal))
	defer p.syms.ExitScope()
	for {
		if p.accept(ELLIPSIS) {
			sig.Variadic = true
			if _, err := p.expect(RPAREN); err != nil {
				return nil, nil, err
			}
			return sig, params, nil
		}
		spec, err := p.parseDeclSpecs()
		if err != nil {
			return nil, nil, err
		}
		if spec.hasStorage && spec.storage != ctype.Register {
			return nil, nil, p.semError(spec.line, diag.ErrSyntax, "storage class specified for parameter")
		}
		d, err := p.parseDeclarator(true)
		if err != nil {
			return nil, nil, err
		}
		t, _, err := p.buildType(spec.base, d, ctxParam)
		if err != nil {
			return nil, nil, err
		}
		switch {
		case t.IsArray():
			t = t.Elem().PointerTo().WithQual(t.TopQual())
		case t.IsFunction():
			t = t.PointerTo()
		case t.IsVoid():
			return nil, nil, p.semError(d.line, diag.ErrIncompatibleType, "parameter '%s' has void type", d.name)
		}
		sig.Params = append(sig.Params, t)
		param := &ast.Decl{Name: d.name, Type: t, Storage: spec.storage, Pos: ast.Pos{Line: d.line}, Local: true}
		if d.name != "" {
			// Later parameters may refer to earlier ones in array lengths.
			if _, err := p.syms.Define(param); err != nil {
				return nil, nil, p.semError(d.line, diag.ErrIncompatibleType, "%v", err)
			}
		}
		params = append(params, param)
		if p.accept(RPAREN) {
			return sig, params, nil
		}
		if _, err := p.expect(COMMA); err != nil {
			return nil, nil, err
		}
	}
}

// buildType applies a declarator to its base type. For locals, every
// variable-length dimension gets a frame slot for its length; the length
// expressions are returned outermost first.
func (p *Parser) buildType(base *ctype.Type, d *declarator, ctx declContext) (*ctype.Type, []ast.Expr, error) {
	t := base
	var dims []ast.Expr
	for i, op := range d.ops {
		switch op.kind {
		case ctype.PointerTo:
			t = t.PointerTo()
			if op.qual != 0 {
				t = t.WithQual(op.qual)
			}
		case ctype.ArrayOf:
			switch {
			case t.IsFunction():
				return nil, nil, p.semError(d.line, diag.ErrIncompatibleType, "declaration of '%s' as array of functions", d.name)
			case t.IsVoid():
				return nil, nil, p.semError(d.line, diag.ErrIncompatibleType, "declaration of '%s' as array of voids", d.name)
			}
			switch {
			case op.dim == nil:
				t = t.ArrayOf(op.n)
			case ctx == ctxParam && i == len(d.ops)-1:
				t = t.ArrayOf(-1)
			case ctx == ctxLocal:
				st := p.tgt.SizeType()
				slot := p.syms.Allocate(p.tgt.Size(st), p.tgt.Align(st))
				t = t.DynArrayOf(&ctype.Dim{Slot: slot})
				dims = append(dims, op.dim)
			case ctx == ctxGlobal:
				return nil, nil, p.semError(d.line, diag.ErrNotConstant, "variably modified '%s' at file scope", d.name)
			default:
				return nil, nil, p.semError(d.line, diag.ErrUnsupported, "variable-length array type is not supported here")
			}
		case ctype.FunctionOf:
			if t.IsArray() || t.IsFunction() {
				return nil, nil, p.semError(d.line, diag.ErrIncompatibleType, "'%s' declared as function returning %s", d.name, t)
			}
			t = t.FunctionOf(op.sig)
		}
	}
	slices.Reverse(dims)
	if len(dims) > 0 && !t.IsVLA() {
		return nil, nil, p.semError(d.line, diag.ErrUnsupported, "pointer to variable-length array '%s' is not supported", d.name)
	}
	return t, dims, nil
}

// parseTypeName parses the type in a cast or sizeof.
func (p *Parser) parseTypeName() (*ctype.Type, error) {
	spec, err := p.parseDeclSpecs()
	if err != nil {
		return nil, err
	}
	if spec.hasStorage {
		return nil, p.semError(spec.line, diag.ErrSyntax, "storage class in type name")
	}
	d, err := p.parseDeclarator(true)
	if err != nil {
		return nil, err
	}
	if d.name != "" {
		return nil, p.semError(d.line, diag.ErrSyntax, "unexpected identifier '%s' in type name", d.name)
	}
	t, _, err := p.buildType(spec.base, d, ctxTypeName)
	return t, err
}

// parseExternal parses one file-scope declaration or function definition.
func (p *Parser) parseExternal() error {
	spec, err := p.parseDeclSpecs()
	if err != nil {
		return err
	}
	if spec.hasStorage && (spec.storage == ctype.Auto || spec.storage == ctype.Register) {
		return p.semError(spec.line, diag.ErrSyntax, "file-scope declaration specifies 'auto' or 'register'")
	}
	if p.accept(SEMICOLON) {
		return nil
	}
	for first := true; ; first = false {
		d, err := p.parseDeclarator(false)
		if err != nil {
			return err
		}
		t, _, err := p.buildType(spec.base, d, ctxGlobal)
		if err != nil {
			return err
		}
		switch {
		case spec.storage == ctype.Typedef:
			if err := p.syms.DefineTypedef(d.name, t); err != nil {
				return p.semError(d.line, diag.ErrIncompatibleType, "%v", err)
			}
		case t.IsFunction():
			decl, err := p.declare(&ast.Decl{Name: d.name, Type: t, Storage: spec.storage, Pos: ast.Pos{Line: d.line}, Sym: d.name})
			if err != nil {
				return err
			}
			if first && p.peek().Type == LBRACE {
				return p.parseFunctionDef(decl, d)
			}
		default:
			if err := p.globalObject(spec, d, t); err != nil {
				return err
			}
		}
		if !p.accept(COMMA) {
			break
		}
	}
	_, err = p.expect(SEMICOLON)
	return err
}

func (p *Parser) declare(d *ast.Decl) (*ast.Decl, error) {
	merged, err := p.syms.Define(d)
	if err != nil {
		return nil, p.semError(d.Pos.Line, diag.ErrIncompatibleType, "%v", err)
	}
	return merged, nil
}

// globalObject declares a file-scope object. Repeated declarations share
// one Decl, which is listed in the unit once.
func (p *Parser) globalObject(spec declSpec, d *declarator, t *ctype.Type) error {
	decl, err := p.declare(&ast.Decl{Name: d.name, Type: t, Storage: spec.storage, Pos: ast.Pos{Line: d.line}, Sym: d.name})
	if err != nil {
		return err
	}
	if decl.Storage == ctype.Extern && spec.storage != ctype.Extern {
		decl.Storage = spec.storage
	}
	if spec.storage != ctype.Extern {
		decl.Defined = true
	}
	if tok := p.peek(); p.accept(ASSIGN) {
		if len(decl.Inits) > 0 {
			return p.semError(tok.Line, diag.ErrIncompatibleType, "redefinition of '%s'", d.name)
		}
		if err := p.initObject(decl); err != nil {
			return err
		}
		decl.Defined = true
	}
	if !p.listed[decl] {
		p.listed[decl] = true
		p.unit.Globals = append(p.unit.Globals, decl)
	}
	return nil
}

// initObject parses the initializer of decl and completes an array type
// whose length comes from it.
func (p *Parser) initObject(decl *ast.Decl) error {
	n, err := p.parseInitializer(decl.Type, 0, &decl.Inits)
	if err != nil {
		return err
	}
	if decl.Type.IsArray() && decl.Type.Len() < 0 {
		decl.Type = decl.Type.Elem().ArrayOf(n)
	}
	return nil
}

// parseFunctionDef parses the body of a function whose declarator has
// been read. Parameters get the first frame slots.
func (p *Parser) parseFunctionDef(decl *ast.Decl, d *declarator) error {
	line := p.peek().Line
	if decl.Defined {
		return p.semError(d.line, diag.ErrIncompatibleType, "redefinition of '%s'", decl.Name)
	}
	decl.Defined = true
	params := d.ops[len(d.ops)-1].params

	p.syms.EnterFunction()
	for _, param := range params {
		if param.Name == "" {
			return p.semError(param.Pos.Line, diag.ErrSyntax, "parameter name omitted")
		}
		param.Offset = p.syms.Allocate(param.Type.Size(p.tgt), param.Type.Align(p.tgt))
		if _, err := p.declare(param); err != nil {
			return err
		}
	}
	body, err := p.parseBlock(false)
	if err != nil {
		return err
	}
	frame := p.syms.ExitFunction()
	p.unit.Funcs = append(p.unit.Funcs, &ast.Func{
		Decl:      decl,
		Params:    params,
		Body:      body,
		FrameSize: frame,
		Pos:       ast.Pos{Line: line},
	})
	return nil
}

// parseInitializer parses the initializer of an object of type t at byte
// offset off and appends its element stores to out. It returns how many
// array elements were given, for completing an incomplete array.
func (p *Parser) parseInitializer(t *ctype.Type, off int64, out *[]ast.Init) (int64, error) {
	if p.peek().Type == LBRACE {
		return p.parseBraced(t, off, out)
	}
	if t.IsArray() {
		if n, ok := p.stringInit(t, off, out); ok {
			return n, nil
		}
		return 0, p.semError(p.peek().Line, diag.ErrIncompatibleType, "array must be initialized with a brace-enclosed initializer")
	}
	x, err := p.parseAssignment()
	if err != nil {
		return 0, err
	}
	*out = append(*out, ast.Init{Off: off, Type: t, X: x})
	return 1, nil
}

func (p *Parser) parseBraced(t *ctype.Type, off int64, out *[]ast.Init) (int64, error) {
	p.advance() // {
	n, err := p.parseInitList(t, off, out, true)
	if err != nil {
		return 0, err
	}
	p.accept(COMMA)
	if _, err := p.expect(RBRACE); err != nil {
		return 0, err
	}
	return n, nil
}

// stringInit initializes a character array from a string literal.
func (p *Parser) stringInit(t *ctype.Type, off int64, out *[]ast.Init) (int64, bool) {
	elem := t.Elem()
	if p.peek().Type != STRING || !elem.IsInteger() || p.tgt.Size(elem.Kind) != 1 {
		return 0, false
	}
	tok := p.advance()
	n := int64(len(tok.Lexeme)) + 1
	it := t
	if t.Len() < 0 {
		it = elem.ArrayOf(n)
	}
	s := &ast.StringLit{Node: ast.Node{P: pos(tok), T: it}, Value: tok.Lexeme}
	*out = append(*out, ast.Init{Off: off, Type: it, X: s})
	return n, true
}

// parseInitList fills the sub-objects of t from the current list. An
// unbraced list (brace elision) stops once t is full and leaves the
// separating comma to the enclosing list.
func (p *Parser) parseInitList(t *ctype.Type, off int64, out *[]ast.Init, braced bool) (int64, error) {
	switch {
	case t.IsArray():
		elem, n := t.Elem(), t.Len()
		size := elem.Size(p.tgt)
		var i int64
		for ; n < 0 || i < n; i++ {
			if !p.nextItem(i, braced) {
				break
			}
			if err := p.parseItem(elem, off+i*size, out); err != nil {
				return 0, err
			}
		}
		return i, p.checkExcess(braced)

	case t.IsRecord():
		var i int64
		for _, m := range t.Record.Members {
			if m.Name == "" {
				continue
			}
			if !p.nextItem(i, braced) {
				break
			}
			if err := p.parseItem(m.Type, off+m.Offset, out); err != nil {
				return 0, err
			}
			i++
			if t.Record.Union {
				break
			}
		}
		return 1, p.checkExcess(braced)
	}

	if p.peek().Type == RBRACE {
		return 0, p.semError(p.peek().Line, diag.ErrIncompatibleType, "empty scalar initializer")
	}
	x, err := p.parseAssignment()
	if err != nil {
		return 0, err
	}
	*out = append(*out, ast.Init{Off: off, Type: t, X: x})
	return 1, p.checkExcess(braced)
}

// nextItem moves to item i of the current list and reports whether there
// is one.
func (p *Parser) nextItem(i int64, braced bool) bool {
	if i > 0 {
		if p.peek().Type != COMMA || p.peekNext().Type == RBRACE {
			return false
		}
		p.advance()
	}
	return p.peek().Type != RBRACE
}

func (p *Parser) checkExcess(braced bool) error {
	if braced && p.peek().Type == COMMA && p.peekNext().Type != RBRACE {
		return p.semError(p.peek().Line, diag.ErrIncompatibleType, "excess elements in initializer")
	}
	return nil
}

func (p *Parser) parseItem(t *ctype.Type, off int64, out *[]ast.Init) error {
	if p.peek().Type == LBRACE {
		_, err := p.parseBraced(t, off, out)
		return err
	}
	if t.IsArray() {
		if _, ok := p.stringInit(t, off, out); ok {
			return nil
		}
	}
	if t.IsAggregate() {
		_, err := p.parseInitList(t, off, out, false)
		return err
	}
	x, err := p.parseAssignment()
	if err != nil {
		return err
	}
	*out = append(*out, ast.Init{Off: off, Type: t, X: x})
	return nil
}
