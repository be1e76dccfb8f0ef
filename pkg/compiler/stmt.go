package compiler

import (
	"sicc/pkg/ast"
	"sicc/pkg/ctype"
	"sicc/pkg/diag"
)

// Parse builds the typed unit of a preprocessed token stream. Errors in
// constant folding land in bag; the first syntax or declaration error
// stops parsing and is returned.
func Parse(tokens []Token, rawSource string, tgt *ctype.Target, bag *diag.Bag) (*ast.Unit, error) {
	p := NewParser(tokens, rawSource, tgt, bag)
	for p.peek().Type != EOF {
		if err := p.parseExternal(); err != nil {
			return nil, err
		}
	}
	return p.unit, nil
}

func (p *Parser) parseStatement() (ast.Stmt, error) {
	tok := p.peek()
	node := ast.StmtNode{P: pos(tok)}
	switch tok.Type {
	case LBRACE:
		return p.parseBlock(true)
	case IF:
		return p.parseIf()
	case WHILE:
		return p.parseWhile()
	case DO:
		return p.parseDoWhile()
	case FOR:
		return p.parseFor()
	case RETURN:
		return p.parseReturn()
	case ASM:
		return p.parseAsm()
	case BREAK, CONTINUE:
		p.advance()
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		if tok.Type == BREAK {
			return &ast.Break{StmtNode: node}, nil
		}
		return &ast.Continue{StmtNode: node}, nil
	case SEMICOLON:
		p.advance()
		return &ast.Block{StmtNode: node}, nil
	}
	if p.startsDecl(tok) {
		return p.parseLocalDecl()
	}
	x, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return &ast.ExprStmt{StmtNode: node, X: x}, nil
}

// parseBlock parses { ... }. A function body shares the scope of the
// parameters, so it opens no scope of its own.
func (p *Parser) parseBlock(newScope bool) (*ast.Block, error) {
	tok, err := p.expect(LBRACE)
	if err != nil {
		return nil, err
	}
	if newScope {
		p.syms.EnterScope()
		defer p.syms.ExitScope()
	}
	b := &ast.Block{StmtNode: ast.StmtNode{P: pos(tok)}}
	for !p.accept(RBRACE) {
		if p.peek().Type == EOF {
			return nil, p.fmtError(p.peek(), "expected '}' before end of input")
		}
		s, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		b.Stmts = append(b.Stmts, s)
	}
	return b, nil
}

// parseParenExpr parses ( expression ).
func (p *Parser) parseParenExpr() (ast.Expr, error) {
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	x, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	return x, nil
}

func (p *Parser) parseIf() (ast.Stmt, error) {
	tok := p.advance()
	c, err := p.parseParenExpr()
	if err != nil {
		return nil, err
	}
	then, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	s := &ast.If{StmtNode: ast.StmtNode{P: pos(tok)}, C: c, Then: then}
	if p.accept(ELSE) {
		if s.Else, err = p.parseStatement(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (p *Parser) parseWhile() (ast.Stmt, error) {
	tok := p.advance()
	c, err := p.parseParenExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &ast.While{StmtNode: ast.StmtNode{P: pos(tok)}, C: c, Body: body}, nil
}

func (p *Parser) parseDoWhile() (ast.Stmt, error) {
	tok := p.advance()
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(WHILE); err != nil {
		return nil, err
	}
	c, err := p.parseParenExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return &ast.DoWhile{StmtNode: ast.StmtNode{P: pos(tok)}, Body: body, C: c}, nil
}

// parseFor handles for (init; cond; post). A declaration in init is
// scoped to the loop.
func (p *Parser) parseFor() (ast.Stmt, error) {
	tok := p.advance()
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	p.syms.EnterScope()
	defer p.syms.ExitScope()

	s := &ast.For{StmtNode: ast.StmtNode{P: pos(tok)}}
	var err error
	switch next := p.peek(); {
	case p.accept(SEMICOLON):
	case p.startsDecl(next):
		if s.Init, err = p.parseLocalDecl(); err != nil {
			return nil, err
		}
	default:
		x, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		s.Init = &ast.ExprStmt{StmtNode: ast.StmtNode{P: pos(next)}, X: x}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
	}
	if p.peek().Type != SEMICOLON {
		if s.C, err = p.parseExpression(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	if p.peek().Type != RPAREN {
		if s.Post, err = p.parseExpression(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	if s.Body, err = p.parseStatement(); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *Parser) parseReturn() (ast.Stmt, error) {
	tok := p.advance()
	s := &ast.Return{StmtNode: ast.StmtNode{P: pos(tok)}}
	if p.peek().Type != SEMICOLON {
		x, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		s.X = x
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return s, nil
}

// parseAsm parses asm [volatile] ("template" : outputs : inputs : clobbers).
func (p *Parser) parseAsm() (ast.Stmt, error) {
	tok := p.advance()
	p.accept(VOLATILE)
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	tmpl, err := p.expect(STRING)
	if err != nil {
		return nil, err
	}
	s := &ast.AsmStmt{StmtNode: ast.StmtNode{P: pos(tok)}, Template: tmpl.Lexeme}
	if p.accept(COLON) {
		if s.Outputs, err = p.parseAsmOperands(); err != nil {
			return nil, err
		}
		if p.accept(COLON) {
			if s.Inputs, err = p.parseAsmOperands(); err != nil {
				return nil, err
			}
			if p.accept(COLON) {
				for p.peek().Type == STRING {
					s.Clobbers = append(s.Clobbers, p.advance().Lexeme)
					if !p.accept(COMMA) {
						break
					}
				}
			}
		}
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *Parser) parseAsmOperands() ([]ast.AsmOperand, error) {
	var ops []ast.AsmOperand
	for p.peek().Type == STRING {
		c := p.advance()
		x, err := p.parseParenExpr()
		if err != nil {
			return nil, err
		}
		ops = append(ops, ast.AsmOperand{Constraint: c.Lexeme, X: x})
		if !p.accept(COMMA) {
			break
		}
	}
	return ops, nil
}

// parseLocalDecl parses a block-scope declaration. Automatic objects get
// frame slots; block-scope statics become unit globals under a unique
// symbol.
func (p *Parser) parseLocalDecl() (ast.Stmt, error) {
	tok := p.peek()
	spec, err := p.parseDeclSpecs()
	if err != nil {
		return nil, err
	}
	st := &ast.DeclStmt{StmtNode: ast.StmtNode{P: pos(tok)}}
	if p.accept(SEMICOLON) {
		return st, nil
	}
	for {
		d, err := p.parseDeclarator(false)
		if err != nil {
			return nil, err
		}
		t, dims, err := p.buildType(spec.base, d, ctxLocal)
		if err != nil {
			return nil, err
		}
		line := ast.Pos{Line: d.line}
		switch {
		case spec.storage == ctype.Typedef:
			if len(dims) > 0 {
				return nil, p.semError(d.line, diag.ErrUnsupported, "variable-length typedef '%s' is not supported", d.name)
			}
			if err := p.syms.DefineTypedef(d.name, t); err != nil {
				return nil, p.semError(d.line, diag.ErrIncompatibleType, "%v", err)
			}

		case t.IsFunction(), spec.storage == ctype.Extern:
			if _, err := p.declare(&ast.Decl{Name: d.name, Type: t, Storage: ctype.Extern, Pos: line, Sym: d.name}); err != nil {
				return nil, err
			}
			if p.peek().Type == ASSIGN {
				return nil, p.semError(d.line, diag.ErrIncompatibleType, "'%s' has both 'extern' and initializer", d.name)
			}

		case spec.storage == ctype.Static:
			if len(dims) > 0 {
				return nil, p.semError(d.line, diag.ErrNotConstant, "storage size of '%s' isn't constant", d.name)
			}
			decl := &ast.Decl{Name: d.name, Type: t, Storage: ctype.Static, Pos: line, Sym: p.syms.StaticName(d.name), Defined: true}
			if _, err := p.declare(decl); err != nil {
				return nil, err
			}
			if p.accept(ASSIGN) {
				if err := p.initObject(decl); err != nil {
					return nil, err
				}
			}
			p.unit.Globals = append(p.unit.Globals, decl)

		default:
			decl, err := p.localObject(spec, d, t, dims)
			if err != nil {
				return nil, err
			}
			if decl.VLA {
				if st.Dims == nil {
					st.Dims = make(map[*ast.Decl][]ast.Expr)
				}
				st.Dims[decl] = dims
			}
			st.Decls = append(st.Decls, decl)
		}
		if !p.accept(COMMA) {
			break
		}
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return st, nil
}

// localObject declares an automatic object. It is in scope within its own
// initializer; the frame slot is assigned once the initializer has fixed
// the size. A variable-length array's slot holds the address of its
// storage.
func (p *Parser) localObject(spec declSpec, d *declarator, t *ctype.Type, dims []ast.Expr) (*ast.Decl, error) {
	decl := &ast.Decl{Name: d.name, Type: t, Storage: spec.storage, Pos: ast.Pos{Line: d.line}, Local: true, VLA: len(dims) > 0}
	if _, err := p.declare(decl); err != nil {
		return nil, err
	}
	if tok := p.peek(); p.accept(ASSIGN) {
		if decl.VLA {
			return nil, p.semError(tok.Line, diag.ErrIncompatibleType, "variable-sized object may not be initialized")
		}
		if err := p.initObject(decl); err != nil {
			return nil, err
		}
	}
	if decl.VLA {
		decl.Offset = p.syms.Allocate(p.tgt.PtrSize, p.tgt.PtrSize)
		return decl, nil
	}
	size := decl.Type.Size(p.tgt)
	if size == 0 {
		return nil, p.semError(d.line, diag.ErrLayout, "storage size of '%s' isn't known", d.name)
	}
	decl.Offset = p.syms.Allocate(size, decl.Type.Align(p.tgt))
	return decl, nil
}
