package compiler

import (
	"fmt"
	"strings"
	"unicode"
)

// keywords maps source text to its keyword TokenType.
var keywords = map[string]TokenType{
	"void":     VOID,
	"char":     CHAR,
	"short":    SHORT,
	"int":      INT,
	"long":     LONG,
	"signed":   SIGNED,
	"unsigned": UNSIGNED,
	"float":    FLOAT,
	"double":   DOUBLE,
	"_Bool":    BOOL,
	"struct":   STRUCT,
	"union":    UNION,
	"const":    CONST,
	"volatile": VOLATILE,
	"static":   STATIC,
	"extern":   EXTERN,
	"typedef":  TYPEDEF,
	"register": REGISTER,
	"auto":     AUTO,
	"if":       IF,
	"else":     ELSE,
	"while":    WHILE,
	"do":       DO,
	"for":      FOR,
	"return":   RETURN,
	"break":    BREAK,
	"continue": CONTINUE,
	"sizeof":   SIZEOF,
	"asm":      ASM,
	"__asm__":  ASM,
}

// operators lists punctuation longest first so the scanner can take the
// first prefix that matches.
var operators = []struct {
	text string
	tt   TokenType
}{
	{"<<=", SHL_ASSIGN}, {">>=", SHR_ASSIGN}, {"...", ELLIPSIS},
	{"->", ARROW}, {"++", PLUS_PLUS}, {"--", MINUS_MINUS},
	{"<<", SHL_OP}, {">>", SHR_OP}, {"&&", AND_LOGICAL}, {"||", OR_LOGICAL},
	{"<=", LESS_EQ}, {">=", GREATER_EQ}, {"==", EQUALS}, {"!=", NOT_EQ},
	{"+=", PLUS_ASSIGN}, {"-=", MINUS_ASSIGN}, {"*=", STAR_ASSIGN}, {"/=", SLASH_ASSIGN},
	{"%=", PERCENT_ASSIGN}, {"&=", AND_ASSIGN}, {"|=", PIPE_ASSIGN}, {"^=", CARET_ASSIGN},
	{"{", LBRACE}, {"}", RBRACE}, {"(", LPAREN}, {")", RPAREN}, {"[", LBRACKET}, {"]", RBRACKET},
	{".", DOT}, {";", SEMICOLON}, {",", COMMA}, {":", COLON}, {"?", QUESTION},
	{"+", PLUS}, {"-", MINUS}, {"*", STAR}, {"/", SLASH}, {"&", AND}, {"|", PIPE},
	{"^", CARET}, {"~", TILDE}, {"%", PERCENT}, {"!", NOT}, {"<", LESS}, {">", GREATER},
	{"=", ASSIGN},
}

// Lexer holds all mutable state for a single scanning pass over src.
type Lexer struct {
	src  []rune
	pos  int // index of the next rune to consume
	line int // current 1-based source line
}

func newLexer(src string) *Lexer {
	return &Lexer{src: []rune(src), pos: 0, line: 1}
}

// peek returns the rune at the current position without advancing.
func (l *Lexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

// peek2 returns the rune one position ahead of the current position.
func (l *Lexer) peek2() rune {
	if l.pos+1 >= len(l.src) {
		return 0
	}
	return l.src[l.pos+1]
}

// advance consumes one rune and returns it.
func (l *Lexer) advance() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	r := l.src[l.pos]
	l.pos++
	if r == '\n' {
		l.line++
	}
	return r
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.src) && unicode.IsSpace(l.peek()) {
		l.advance()
	}
}

// skipLineComment discards everything from the current position to end-of-line.
func (l *Lexer) skipLineComment() {
	for l.pos < len(l.src) && l.peek() != '\n' {
		l.advance()
	}
}

// skipBlockComment discards everything up to and including the closing "*/".
// The opening "/*" must already have been consumed.
func (l *Lexer) skipBlockComment() error {
	startLine := l.line
	for l.pos < len(l.src) {
		if l.peek() == '*' && l.peek2() == '/' {
			l.advance()
			l.advance()
			return nil
		}
		l.advance()
	}
	return fmt.Errorf("unterminated block comment (opened on line %d)", startLine)
}

// scanIdent collects a full identifier or keyword token.
func (l *Lexer) scanIdent() Token {
	line := l.line
	start := l.pos
	for l.pos < len(l.src) {
		r := l.peek()
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			break
		}
		l.advance()
	}
	lexeme := string(l.src[start:l.pos])
	tt := IDENTIFIER
	if kw, ok := keywords[lexeme]; ok {
		tt = kw
	}
	return Token{Type: tt, Lexeme: lexeme, Line: line}
}

func isHexDigit(r rune) bool {
	return unicode.IsDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// scanNumber collects an integer or floating literal with its suffix.
// A literal containing '.' or a decimal exponent is a FLOAT_LIT.
func (l *Lexer) scanNumber() (Token, error) {
	line := l.line
	start := l.pos
	isFloat := false

	if l.peek() == '0' && (l.peek2() == 'x' || l.peek2() == 'X') {
		l.advance()
		l.advance()
		for isHexDigit(l.peek()) {
			l.advance()
		}
	} else {
		for unicode.IsDigit(l.peek()) {
			l.advance()
		}
		if l.peek() == '.' {
			isFloat = true
			l.advance()
			for unicode.IsDigit(l.peek()) {
				l.advance()
			}
		}
		if l.peek() == 'e' || l.peek() == 'E' {
			isFloat = true
			l.advance()
			if l.peek() == '+' || l.peek() == '-' {
				l.advance()
			}
			if !unicode.IsDigit(l.peek()) {
				return Token{}, fmt.Errorf("exponent has no digits on line %d", line)
			}
			for unicode.IsDigit(l.peek()) {
				l.advance()
			}
		}
	}

	// Suffixes stay in the lexeme; the parser picks the literal's type.
	for strings.ContainsRune("uUlLfF", l.peek()) {
		l.advance()
	}
	if r := l.peek(); unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
		return Token{}, fmt.Errorf("invalid suffix %q on number on line %d", r, line)
	}

	tt := INTEGER
	if isFloat {
		tt = FLOAT_LIT
	}
	return Token{Type: tt, Lexeme: string(l.src[start:l.pos]), Line: line}, nil
}

// scanEscape decodes the escape sequence after a backslash, which has
// already been consumed.
func (l *Lexer) scanEscape(line int) (rune, error) {
	next := l.advance()
	switch next {
	case 'n':
		return '\n', nil
	case 'r':
		return '\r', nil
	case 't':
		return '\t', nil
	case 'a':
		return '\a', nil
	case 'b':
		return '\b', nil
	case 'f':
		return '\f', nil
	case 'v':
		return '\v', nil
	case '\\', '\'', '"', '?':
		return next, nil
	case 'x':
		if !isHexDigit(l.peek()) {
			return 0, fmt.Errorf("\\x used with no following hex digits on line %d", line)
		}
		var v rune
		for isHexDigit(l.peek()) {
			r := l.advance()
			switch {
			case r >= 'a':
				v = v*16 + r - 'a' + 10
			case r >= 'A':
				v = v*16 + r - 'A' + 10
			default:
				v = v*16 + r - '0'
			}
		}
		return v & 0xFF, nil
	}
	if next >= '0' && next <= '7' {
		v := next - '0'
		for i := 0; i < 2 && l.peek() >= '0' && l.peek() <= '7'; i++ {
			v = v*8 + l.advance() - '0'
		}
		return v & 0xFF, nil
	}
	return 0, fmt.Errorf("unknown escape sequence \\%c on line %d", next, line)
}

// scanChar collects a character literal 'c'. It is emitted as an INTEGER
// token holding the character's value.
func (l *Lexer) scanChar() (Token, error) {
	line := l.line
	l.advance() // consume opening '

	r := l.peek()
	if r == '\'' {
		return Token{}, fmt.Errorf("empty character literal on line %d", line)
	}
	var val rune
	if r == '\\' {
		l.advance()
		v, err := l.scanEscape(line)
		if err != nil {
			return Token{}, err
		}
		val = v
	} else {
		val = l.advance()
	}

	if l.peek() != '\'' {
		return Token{}, fmt.Errorf("unterminated character literal on line %d", line)
	}
	l.advance()
	return Token{Type: INTEGER, Lexeme: fmt.Sprintf("%d", val), Line: line}, nil
}

// scanString collects a string literal "..." with escapes decoded.
func (l *Lexer) scanString() (Token, error) {
	line := l.line
	l.advance() // consume opening "
	var val strings.Builder

	for l.pos < len(l.src) {
		r := l.peek()
		if r == '"' {
			break
		}
		if r == '\n' {
			return Token{}, fmt.Errorf("unterminated string literal on line %d", line)
		}
		l.advance()
		if r == '\\' {
			v, err := l.scanEscape(line)
			if err != nil {
				return Token{}, err
			}
			val.WriteByte(byte(v))
			continue
		}
		val.WriteRune(r)
	}

	if l.pos >= len(l.src) {
		return Token{}, fmt.Errorf("unterminated string literal on line %d", line)
	}
	l.advance() // consume closing "

	return Token{Type: STRING, Lexeme: val.String(), Line: line}, nil
}

// matchOperator consumes the longest operator at the current position.
func (l *Lexer) matchOperator() (Token, bool) {
	line := l.line
	for _, op := range operators {
		n := len(op.text)
		if l.pos+n > len(l.src) {
			continue
		}
		if string(l.src[l.pos:l.pos+n]) == op.text {
			l.pos += n
			return Token{Type: op.tt, Lexeme: op.text, Line: line}, true
		}
	}
	return Token{}, false
}

// nextToken skips whitespace/comments and returns the next Token.
func (l *Lexer) nextToken() (Token, error) {
	for {
		l.skipWhitespace()
		if l.pos >= len(l.src) {
			return Token{Type: EOF, Lexeme: "", Line: l.line}, nil
		}
		if l.peek() == '/' && l.peek2() == '/' {
			l.skipLineComment()
			continue
		}
		if l.peek() == '/' && l.peek2() == '*' {
			l.advance()
			l.advance()
			if err := l.skipBlockComment(); err != nil {
				return Token{}, err
			}
			continue
		}
		break
	}

	ch := l.peek()
	switch {
	case unicode.IsLetter(ch) || ch == '_':
		return l.scanIdent(), nil
	case unicode.IsDigit(ch), ch == '.' && unicode.IsDigit(l.peek2()):
		return l.scanNumber()
	case ch == '"':
		return l.scanString()
	case ch == '\'':
		return l.scanChar()
	}
	if tok, ok := l.matchOperator(); ok {
		return tok, nil
	}
	return Token{}, fmt.Errorf("unexpected character %q on line %d", ch, l.line)
}

// Lex converts source text into a flat token slice terminated by EOF.
// Adjacent string literals are concatenated.
func Lex(src string) ([]Token, error) {
	l := newLexer(src)
	var tokens []Token
	for {
		tok, err := l.nextToken()
		if err != nil {
			return nil, err
		}
		if tok.Type == STRING && len(tokens) > 0 && tokens[len(tokens)-1].Type == STRING {
			tokens[len(tokens)-1].Lexeme += tok.Lexeme
			continue
		}
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			break
		}
	}
	return tokens, nil
}
