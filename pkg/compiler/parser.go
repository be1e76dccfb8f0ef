package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"sicc/pkg/ast"
	"sicc/pkg/ctype"
	"sicc/pkg/diag"
	"sicc/pkg/lower"
)

// Parser consumes the flat token slice produced by the Lexer and builds a
// typed ast.Unit. Identifiers are resolved while parsing and every
// expression node gets its C type; operand checks that need values are
// left to the lowering engine.
//
// Grammar (C subset):
//
//	unit        = (declaration | functionDef)* EOF
//	declaration = declSpecs (declarator ("=" initializer)? ("," ...)*)? ";"
//	statement   = block | if | while | do | for | return | break | continue
//	            | asm | declaration | expression? ";"
//	expression  = assignment ("," assignment)*
//	assignment  = conditional (assignOp assignment)?
//	conditional = binary ("?" expression ":" conditional)?
//	binary      = cast (binaryOp cast)*      by precedence
//	cast        = "(" typeName ")" cast | unary
//	unary       = ("++"|"--") unary | ("&"|"*"|"+"|"-"|"~"|"!") cast
//	            | "sizeof" unary | "sizeof" "(" typeName ")" | postfix
//	postfix     = primary ("[" expression "]" | "(" args ")" | "." IDENT
//	            | "->" IDENT | "++" | "--")*
//	primary     = IDENT | INTEGER | FLOAT_LIT | STRING+ | "(" expression ")"
type Parser struct {
	tokens      []Token
	pos         int
	sourceLines []string

	tgt    *ctype.Target
	consts *lower.Lowerer // folds array lengths and bit-field widths
	syms   *SymbolTable
	unit   *ast.Unit
	listed map[*ast.Decl]bool // objects already in unit.Globals
}

// Error is a front-end failure tied to a source line.
type Error struct {
	Line    int
	Code    string
	Msg     string
	Snippet string
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d: %s\n  |> %s", e.Line, e.Msg, e.Snippet)
}

func NewParser(tokens []Token, rawSource string, tgt *ctype.Target, bag *diag.Bag) *Parser {
	return &Parser{
		tokens:      tokens,
		sourceLines: strings.Split(rawSource, "\n"),
		tgt:         tgt,
		consts:      lower.New(tgt, bag),
		syms:        NewSymbolTable(),
		unit:        &ast.Unit{File: bag.File()},
		listed:      make(map[*ast.Decl]bool),
	}
}

// fmtError wraps a syntax error with the source line where the token appears.
func (p *Parser) fmtError(tok Token, format string, args ...any) error {
	return p.semError(tok.Line, diag.ErrSyntax, format, args...)
}

// semError reports a semantic error with its diagnostic code.
func (p *Parser) semError(line int, code, format string, args ...any) error {
	snippet := "<source unavailable>"
	if i := line - 1; i >= 0 && i < len(p.sourceLines) {
		snippet = strings.TrimSpace(p.sourceLines[i])
	}
	return &Error{Line: line, Code: code, Msg: fmt.Sprintf(format, args...), Snippet: snippet}
}

// peek returns the current token without consuming it.
func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos]
}

// peekNext returns the token immediately after the current one.
func (p *Parser) peekNext() Token {
	return p.peekAt(1)
}

// peekAt returns the token at the given offset from the current position.
func (p *Parser) peekAt(offset int) Token {
	if p.pos+offset >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos+offset]
}

// advance consumes and returns the current token.
func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// accept consumes the current token when it has type tt.
func (p *Parser) accept(tt TokenType) bool {
	if p.peek().Type == tt {
		p.advance()
		return true
	}
	return false
}

// expect consumes the current token if it matches tt, otherwise returns an error.
func (p *Parser) expect(tt TokenType) (Token, error) {
	tok := p.advance()
	if tok.Type != tt {
		return tok, p.fmtError(tok, "expected %s, got %s (%q)", tt, tok.Type, tok.Lexeme)
	}
	return tok, nil
}

func pos(tok Token) ast.Pos { return ast.Pos{Line: tok.Line} }

// parseExpression is the entry point for expression parsing.
func (p *Parser) parseExpression() (ast.Expr, error) {
	x, err := p.parseAssignment()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == COMMA {
		tok := p.advance()
		y, err := p.parseAssignment()
		if err != nil {
			return nil, err
		}
		x = &ast.Binary{Node: ast.Node{P: pos(tok), T: y.Type().Decay()}, Op: ast.Comma, X: x, Y: y}
	}
	return x, nil
}

var assignOps = map[TokenType]ast.Op{
	ASSIGN:         0,
	PLUS_ASSIGN:    ast.Add,
	MINUS_ASSIGN:   ast.Sub,
	STAR_ASSIGN:    ast.Mul,
	SLASH_ASSIGN:   ast.Div,
	PERCENT_ASSIGN: ast.Mod,
	AND_ASSIGN:     ast.BitAnd,
	PIPE_ASSIGN:    ast.BitOr,
	CARET_ASSIGN:   ast.BitXor,
	SHL_ASSIGN:     ast.Shl,
	SHR_ASSIGN:     ast.Shr,
}

// parseAssignment handles = and the compound assignments, which are
// right associative. Whether the left side is assignable is checked
// during lowering.
func (p *Parser) parseAssignment() (ast.Expr, error) {
	lhs, err := p.parseConditional()
	if err != nil {
		return nil, err
	}
	op, ok := assignOps[p.peek().Type]
	if !ok {
		return lhs, nil
	}
	tok := p.advance()
	rhs, err := p.parseAssignment()
	if err != nil {
		return nil, err
	}
	return &ast.Assign{Node: ast.Node{P: pos(tok), T: lhs.Type().Unqualified()}, Op: op, LHS: lhs, RHS: rhs}, nil
}

// parseConditional handles c ? a : b.
func (p *Parser) parseConditional() (ast.Expr, error) {
	c, err := p.parseBinary(1)
	if err != nil {
		return nil, err
	}
	if p.peek().Type != QUESTION {
		return c, nil
	}
	tok := p.advance()
	then, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(COLON); err != nil {
		return nil, err
	}
	els, err := p.parseConditional()
	if err != nil {
		return nil, err
	}
	return &ast.Cond{Node: ast.Node{P: pos(tok), T: p.condType(then, els)}, C: c, Then: then, Else: els}, nil
}

// binaryOps gives each binary operator token its AST operator and
// precedence; higher binds tighter.
var binaryOps = map[TokenType]struct {
	op   ast.Op
	prec int
}{
	OR_LOGICAL:  {ast.LogOr, 1},
	AND_LOGICAL: {ast.LogAnd, 2},
	PIPE:        {ast.BitOr, 3},
	CARET:       {ast.BitXor, 4},
	AND:         {ast.BitAnd, 5},
	EQUALS:      {ast.Eq, 6},
	NOT_EQ:      {ast.Ne, 6},
	LESS:        {ast.Lt, 7},
	GREATER:     {ast.Gt, 7},
	LESS_EQ:     {ast.Le, 7},
	GREATER_EQ:  {ast.Ge, 7},
	SHL_OP:      {ast.Shl, 8},
	SHR_OP:      {ast.Shr, 8},
	PLUS:        {ast.Add, 9},
	MINUS:       {ast.Sub, 9},
	STAR:        {ast.Mul, 10},
	SLASH:       {ast.Div, 10},
	PERCENT:     {ast.Mod, 10},
}

// parseBinary parses left-associative binary operators of at least
// precedence minPrec.
func (p *Parser) parseBinary(minPrec int) (ast.Expr, error) {
	x, err := p.parseCast()
	if err != nil {
		return nil, err
	}
	for {
		b, ok := binaryOps[p.peek().Type]
		if !ok || b.prec < minPrec {
			return x, nil
		}
		tok := p.advance()
		y, err := p.parseBinary(b.prec + 1)
		if err != nil {
			return nil, err
		}
		x = &ast.Binary{Node: ast.Node{P: pos(tok), T: p.binaryType(b.op, x, y)}, Op: b.op, X: x, Y: y}
	}
}

// parseCast handles (type)expr; anything else is a unary expression.
func (p *Parser) parseCast() (ast.Expr, error) {
	if p.peek().Type == LPAREN && p.startsType(p.peekNext()) {
		tok := p.advance()
		t, err := p.parseTypeName()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		x, err := p.parseCast()
		if err != nil {
			return nil, err
		}
		return &ast.Cast{Node: ast.Node{P: pos(tok), T: t}, X: x}, nil
	}
	return p.parseUnary()
}

var unaryOps = map[TokenType]ast.Op{
	AND:   ast.AddrOf,
	STAR:  ast.Deref,
	PLUS:  ast.Plus,
	MINUS: ast.Neg,
	TILDE: ast.Compl,
	NOT:   ast.Not,
}

func (p *Parser) parseUnary() (ast.Expr, error) {
	tok := p.peek()
	switch tok.Type {
	case PLUS_PLUS, MINUS_MINUS:
		p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.IncDec{Node: ast.Node{P: pos(tok), T: x.Type().Unqualified()}, Inc: tok.Type == PLUS_PLUS, X: x}, nil
	case SIZEOF:
		return p.parseSizeof()
	}
	op, ok := unaryOps[tok.Type]
	if !ok {
		return p.parsePostfix()
	}
	p.advance()
	x, err := p.parseCast()
	if err != nil {
		return nil, err
	}
	return &ast.Unary{Node: ast.Node{P: pos(tok), T: p.unaryType(op, x)}, Op: op, X: x}, nil
}

// parseSizeof folds sizeof to an integer literal of type size_t, except
// for variable-length arrays whose size is computed at run time.
func (p *Parser) parseSizeof() (ast.Expr, error) {
	tok := p.advance()
	var t *ctype.Type
	if p.peek().Type == LPAREN && p.startsType(p.peekNext()) {
		p.advance()
		var err error
		if t, err = p.parseTypeName(); err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
	} else {
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		t = x.Type()
		if t.IsBitField() {
			return nil, p.semError(tok.Line, diag.ErrInvalidOperands, "'sizeof' applied to a bit-field")
		}
	}
	st := ctype.Basic(p.tgt.SizeType())
	if t.IsVLA() {
		return &ast.SizeofType{Node: ast.Node{P: pos(tok), T: st}, Of: t}, nil
	}
	size := t.Size(p.tgt)
	if t.IsFunction() || t.IsVoid() || size == 0 {
		return nil, p.semError(tok.Line, diag.ErrInvalidOperands, "invalid application of 'sizeof' to type '%s'", t)
	}
	return ast.NewInt(pos(tok), st, uint64(size)), nil
}

func (p *Parser) parsePostfix() (ast.Expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		switch tok.Type {
		case LBRACKET:
			p.advance()
			idx, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(RBRACKET); err != nil {
				return nil, err
			}
			x = &ast.Index{Node: ast.Node{P: pos(tok), T: p.indexType(x, idx)}, X: x, Idx: idx}

		case DOT, ARROW:
			p.advance()
			name, err := p.expect(IDENTIFIER)
			if err != nil {
				return nil, err
			}
			if x, err = p.member(x, tok, name); err != nil {
				return nil, err
			}

		case PLUS_PLUS, MINUS_MINUS:
			p.advance()
			x = &ast.IncDec{Node: ast.Node{P: pos(tok), T: x.Type().Unqualified()}, Inc: tok.Type == PLUS_PLUS, Post: true, X: x}

		case LPAREN:
			return nil, p.fmtError(tok, "called object '%s' is not a function name", x)

		default:
			return x, nil
		}
	}
}

// member resolves the field of s.f or p->f.
func (p *Parser) member(x ast.Expr, op, name Token) (ast.Expr, error) {
	t := x.Type()
	arrow := op.Type == ARROW
	if arrow {
		t = t.Decay()
		if !t.IsPointer() {
			return nil, p.semError(op.Line, diag.ErrInvalidOperands, "invalid type argument of '->' (have '%s')", t)
		}
		t = t.Elem()
	}
	if !t.IsRecord() {
		return nil, p.semError(op.Line, diag.ErrInvalidOperands, "request for member '%s' in something not a structure or union", name.Lexeme)
	}
	if !t.Record.Complete {
		return nil, p.semError(op.Line, diag.ErrLayout, "dereferencing pointer to incomplete type '%s'", t)
	}
	f := t.Record.Lookup(name.Lexeme)
	if f == nil {
		return nil, p.semError(op.Line, diag.ErrInvalidOperands, "'%s' has no member named '%s'", t, name.Lexeme)
	}
	mt := f.Type
	if q := t.TopQual(); q != 0 {
		mt = mt.WithQual(q)
	}
	return &ast.Member{Node: ast.Node{P: pos(op), T: mt}, X: x, Arrow: arrow, Field: f}, nil
}

func (p *Parser) parseCallArgs() ([]ast.Expr, error) {
	var args []ast.Expr
	if p.accept(RPAREN) {
		return nil, nil
	}
	for {
		a, err := p.parseAssignment()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if p.accept(RPAREN) {
			return args, nil
		}
		if _, err := p.expect(COMMA); err != nil {
			return nil, err
		}
	}
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	tok := p.advance()
	switch tok.Type {
	case INTEGER:
		return p.intLiteral(tok)

	case FLOAT_LIT:
		return p.floatLiteral(tok)

	case STRING:
		return p.stringLiteral(tok), nil

	case IDENTIFIER:
		sym, ok := p.syms.Lookup(tok.Lexeme)
		if p.peek().Type == LPAREN {
			if !ok || sym.Decl == nil {
				return nil, p.semError(tok.Line, diag.ErrUndeclared, "implicit declaration of function '%s'", tok.Lexeme)
			}
			if !sym.Decl.Type.IsFunction() {
				return nil, p.semError(tok.Line, diag.ErrUnsupported, "called object '%s' is not a function", tok.Lexeme)
			}
			p.advance()
			args, err := p.parseCallArgs()
			if err != nil {
				return nil, err
			}
			return &ast.Call{Node: ast.Node{P: pos(tok), T: sym.Decl.Type.Elem()}, Fn: sym.Decl, Args: args}, nil
		}
		if !ok || sym.Decl == nil {
			return nil, p.semError(tok.Line, diag.ErrUndeclared, "'%s' undeclared", tok.Lexeme)
		}
		return &ast.Ident{Node: ast.Node{P: pos(tok), T: sym.Decl.Type}, Decl: sym.Decl}, nil

	case LPAREN:
		x, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return x, nil
	}
	return nil, p.fmtError(tok, "expected expression, got %s (%q)", tok.Type, tok.Lexeme)
}

// intLiteral types an integer constant by its value, base and suffix: the
// first of the candidate kinds that can represent it.
func (p *Parser) intLiteral(tok Token) (ast.Expr, error) {
	text := strings.TrimRight(tok.Lexeme, "uUlL")
	suffix := strings.ToLower(tok.Lexeme[len(text):])
	v, err := strconv.ParseUint(text, 0, 64)
	if err != nil {
		return nil, p.semError(tok.Line, diag.ErrInvalidOperands, "integer constant %s is too large", tok.Lexeme)
	}
	decimal := !strings.HasPrefix(text, "0") || text == "0"

	var kinds []ctype.Kind
	switch strings.ReplaceAll(suffix, "l", "L") {
	case "":
		kinds = []ctype.Kind{ctype.Int, ctype.UInt, ctype.Long, ctype.ULong, ctype.LongLong, ctype.ULongLong}
	case "u":
		kinds = []ctype.Kind{ctype.UInt, ctype.ULong, ctype.ULongLong}
	case "L":
		kinds = []ctype.Kind{ctype.Long, ctype.ULong, ctype.LongLong, ctype.ULongLong}
	case "uL", "Lu":
		kinds = []ctype.Kind{ctype.ULong, ctype.ULongLong}
	case "LL":
		kinds = []ctype.Kind{ctype.LongLong, ctype.ULongLong}
	case "uLL", "LLu":
		kinds = []ctype.Kind{ctype.ULongLong}
	default:
		return nil, p.fmtError(tok, "invalid suffix on integer constant %s", tok.Lexeme)
	}
	for _, k := range kinds {
		unsigned := p.tgt.IsUnsignedKind(k)
		if decimal && unsigned && !strings.Contains(suffix, "u") {
			// Decimal constants without a u suffix only take signed types.
			continue
		}
		bits := p.tgt.Size(k) * 8
		limit := ctype.WidthMask(int(bits))
		if !unsigned {
			limit >>= 1
		}
		if v <= limit {
			return ast.NewInt(pos(tok), ctype.Basic(k), v), nil
		}
	}
	return ast.NewInt(pos(tok), ctype.Basic(ctype.ULongLong), v), nil
}

func (p *Parser) floatLiteral(tok Token) (ast.Expr, error) {
	text := strings.TrimRight(tok.Lexeme, "fFlL")
	k := ctype.Double
	switch strings.ToLower(tok.Lexeme[len(text):]) {
	case "f":
		k = ctype.Float
	case "l":
		k = ctype.LongDouble
	case "":
	default:
		return nil, p.fmtError(tok, "invalid suffix on floating constant %s", tok.Lexeme)
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, p.fmtError(tok, "invalid floating constant %s", tok.Lexeme)
	}
	return &ast.FloatLit{Node: ast.Node{P: pos(tok), T: ctype.Basic(k)}, Value: v}, nil
}

// stringLiteral registers the literal as a static char array of the unit.
func (p *Parser) stringLiteral(tok Token) *ast.StringLit {
	t := ctype.Basic(ctype.Char).ArrayOf(int64(len(tok.Lexeme)) + 1)
	s := &ast.StringLit{
		Node:  ast.Node{P: pos(tok), T: t},
		Value: tok.Lexeme,
		Sym:   fmt.Sprintf(".LC%d", len(p.unit.Strings)),
	}
	p.unit.Strings = append(p.unit.Strings, s)
	return s
}
