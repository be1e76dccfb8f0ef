package compiler

import "fmt"

// TokenType identifies the category of a lexed token.
type TokenType int

const (
	EOF TokenType = iota // sentinel: end of input

	// Literals
	IDENTIFIER // variable / function name
	INTEGER    // integer or character literal; suffixes stay in the lexeme
	FLOAT_LIT  // floating literal, e.g. 1.5, 2e3f
	STRING     // string literal "..." with escapes decoded

	// Type keywords
	VOID
	CHAR
	SHORT
	INT
	LONG
	SIGNED
	UNSIGNED
	FLOAT
	DOUBLE
	BOOL // "_Bool"
	STRUCT
	UNION

	// Qualifiers and storage classes
	CONST
	VOLATILE
	STATIC
	EXTERN
	TYPEDEF
	REGISTER
	AUTO

	// Statement keywords
	IF
	ELSE
	WHILE
	DO
	FOR
	RETURN
	BREAK
	CONTINUE
	SIZEOF
	ASM

	// Paired delimiters
	LBRACE   // {
	RBRACE   // }
	LPAREN   // (
	RPAREN   // )
	LBRACKET // [
	RBRACKET // ]

	// Punctuation
	DOT       // .
	ARROW     // ->
	SEMICOLON // ;
	COMMA     // ,
	COLON     // :
	QUESTION  // ?
	ELLIPSIS  // ...

	// Arithmetic operators
	PLUS        // +
	MINUS       // -
	STAR        // *
	SLASH       // /
	AND         // & (binary bitwise AND, or unary address-of)
	PIPE        // |
	CARET       // ^
	TILDE       // ~
	PERCENT     // %
	SHL_OP      // <<
	SHR_OP      // >>
	AND_LOGICAL // &&
	OR_LOGICAL  // ||
	NOT         // !

	PLUS_PLUS   // ++
	MINUS_MINUS // --

	// Assignment
	ASSIGN         // =
	PLUS_ASSIGN    // +=
	MINUS_ASSIGN   // -=
	STAR_ASSIGN    // *=
	SLASH_ASSIGN   // /=
	PERCENT_ASSIGN // %=
	AND_ASSIGN     // &=
	PIPE_ASSIGN    // |=
	CARET_ASSIGN   // ^=
	SHL_ASSIGN     // <<=
	SHR_ASSIGN     // >>=

	// Comparison
	EQUALS     // ==
	NOT_EQ     // !=
	LESS       // <
	GREATER    // >
	LESS_EQ    // <=
	GREATER_EQ // >=
)

var tokenNames = [...]string{
	EOF:            "EOF",
	IDENTIFIER:     "IDENTIFIER",
	INTEGER:        "INTEGER",
	FLOAT_LIT:      "FLOAT_LIT",
	STRING:         "STRING",
	VOID:           "VOID",
	CHAR:           "CHAR",
	SHORT:          "SHORT",
	INT:            "INT",
	LONG:           "LONG",
	SIGNED:         "SIGNED",
	UNSIGNED:       "UNSIGNED",
	FLOAT:          "FLOAT",
	DOUBLE:         "DOUBLE",
	BOOL:           "BOOL",
	STRUCT:         "STRUCT",
	UNION:          "UNION",
	CONST:          "CONST",
	VOLATILE:       "VOLATILE",
	STATIC:         "STATIC",
	EXTERN:         "EXTERN",
	TYPEDEF:        "TYPEDEF",
	REGISTER:       "REGISTER",
	AUTO:           "AUTO",
	IF:             "IF",
	ELSE:           "ELSE",
	WHILE:          "WHILE",
	DO:             "DO",
	FOR:            "FOR",
	RETURN:         "RETURN",
	BREAK:          "BREAK",
	CONTINUE:       "CONTINUE",
	SIZEOF:         "SIZEOF",
	ASM:            "ASM",
	LBRACE:         "LBRACE",
	RBRACE:         "RBRACE",
	LPAREN:         "LPAREN",
	RPAREN:         "RPAREN",
	LBRACKET:       "LBRACKET",
	RBRACKET:       "RBRACKET",
	DOT:            "DOT",
	ARROW:          "ARROW",
	SEMICOLON:      "SEMICOLON",
	COMMA:          "COMMA",
	COLON:          "COLON",
	QUESTION:       "QUESTION",
	ELLIPSIS:       "ELLIPSIS",
	PLUS:           "PLUS",
	MINUS:          "MINUS",
	STAR:           "STAR",
	SLASH:          "SLASH",
	AND:            "AND",
	PIPE:           "PIPE",
	CARET:          "CARET",
	TILDE:          "TILDE",
	PERCENT:        "PERCENT",
	SHL_OP:         "SHL_OP",
	SHR_OP:         "SHR_OP",
	AND_LOGICAL:    "AND_LOGICAL",
	OR_LOGICAL:     "OR_LOGICAL",
	NOT:            "NOT",
	PLUS_PLUS:      "PLUS_PLUS",
	MINUS_MINUS:    "MINUS_MINUS",
	ASSIGN:         "ASSIGN",
	PLUS_ASSIGN:    "PLUS_ASSIGN",
	MINUS_ASSIGN:   "MINUS_ASSIGN",
	STAR_ASSIGN:    "STAR_ASSIGN",
	SLASH_ASSIGN:   "SLASH_ASSIGN",
	PERCENT_ASSIGN: "PERCENT_ASSIGN",
	AND_ASSIGN:     "AND_ASSIGN",
	PIPE_ASSIGN:    "PIPE_ASSIGN",
	CARET_ASSIGN:   "CARET_ASSIGN",
	SHL_ASSIGN:     "SHL_ASSIGN",
	SHR_ASSIGN:     "SHR_ASSIGN",
	EQUALS:         "EQUALS",
	NOT_EQ:         "NOT_EQ",
	LESS:           "LESS",
	GREATER:        "GREATER",
	LESS_EQ:        "LESS_EQ",
	GREATER_EQ:     "GREATER_EQ",
}

func (tt TokenType) String() string {
	if int(tt) >= 0 && int(tt) < len(tokenNames) {
		return tokenNames[tt]
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// Token is a single lexical unit produced by the Lexer.
type Token struct {
	Type   TokenType
	Lexeme string // the exact source text that was matched
	Line   int    // 1-based source line
}

func (t Token) String() string {
	return fmt.Sprintf("%-10s %-14q  line %d", t.Type, t.Lexeme, t.Line)
}
