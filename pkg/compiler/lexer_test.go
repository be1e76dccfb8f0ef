package compiler

import (
	"reflect"
	"testing"
)

func TestLex(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Token
		wantErr  bool
	}{
		{
			name:  "Empty",
			input: "",
			expected: []Token{
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Keywords and Identifiers",
			input: "unsigned long _Bool __asm__ volatile sizeof foo _x1",
			expected: []Token{
				{Type: UNSIGNED, Lexeme: "unsigned", Line: 1},
				{Type: LONG, Lexeme: "long", Line: 1},
				{Type: BOOL, Lexeme: "_Bool", Line: 1},
				{Type: ASM, Lexeme: "__asm__", Line: 1},
				{Type: VOLATILE, Lexeme: "volatile", Line: 1},
				{Type: SIZEOF, Lexeme: "sizeof", Line: 1},
				{Type: IDENTIFIER, Lexeme: "foo", Line: 1},
				{Type: IDENTIFIER, Lexeme: "_x1", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Integers with suffixes",
			input: "123 0x1A 10u 0x10UL 7LL",
			expected: []Token{
				{Type: INTEGER, Lexeme: "123", Line: 1},
				{Type: INTEGER, Lexeme: "0x1A", Line: 1},
				{Type: INTEGER, Lexeme: "10u", Line: 1},
				{Type: INTEGER, Lexeme: "0x10UL", Line: 1},
				{Type: INTEGER, Lexeme: "7LL", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Floats",
			input: "1.5 2e3 .5f 3.0L 1e-2",
			expected: []Token{
				{Type: FLOAT_LIT, Lexeme: "1.5", Line: 1},
				{Type: FLOAT_LIT, Lexeme: "2e3", Line: 1},
				{Type: FLOAT_LIT, Lexeme: ".5f", Line: 1},
				{Type: FLOAT_LIT, Lexeme: "3.0L", Line: 1},
				{Type: FLOAT_LIT, Lexeme: "1e-2", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Character literals",
			input: `'a' '\n' '\x41' '\0' '\'' '\101'`,
			expected: []Token{
				{Type: INTEGER, Lexeme: "97", Line: 1},
				{Type: INTEGER, Lexeme: "10", Line: 1},
				{Type: INTEGER, Lexeme: "65", Line: 1},
				{Type: INTEGER, Lexeme: "0", Line: 1},
				{Type: INTEGER, Lexeme: "39", Line: 1},
				{Type: INTEGER, Lexeme: "65", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Longest operator wins",
			input: "<<= >>= ... -> ++ -- << >> <= >= += |= ^= %= ? :",
			expected: []Token{
				{Type: SHL_ASSIGN, Lexeme: "<<=", Line: 1},
				{Type: SHR_ASSIGN, Lexeme: ">>=", Line: 1},
				{Type: ELLIPSIS, Lexeme: "...", Line: 1},
				{Type: ARROW, Lexeme: "->", Line: 1},
				{Type: PLUS_PLUS, Lexeme: "++", Line: 1},
				{Type: MINUS_MINUS, Lexeme: "--", Line: 1},
				{Type: SHL_OP, Lexeme: "<<", Line: 1},
				{Type: SHR_OP, Lexeme: ">>", Line: 1},
				{Type: LESS_EQ, Lexeme: "<=", Line: 1},
				{Type: GREATER_EQ, Lexeme: ">=", Line: 1},
				{Type: PLUS_ASSIGN, Lexeme: "+=", Line: 1},
				{Type: PIPE_ASSIGN, Lexeme: "|=", Line: 1},
				{Type: CARET_ASSIGN, Lexeme: "^=", Line: 1},
				{Type: PERCENT_ASSIGN, Lexeme: "%=", Line: 1},
				{Type: QUESTION, Lexeme: "?", Line: 1},
				{Type: COLON, Lexeme: ":", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Adjacent Tokens",
			input: "p->x+++y",
			expected: []Token{
				{Type: IDENTIFIER, Lexeme: "p", Line: 1},
				{Type: ARROW, Lexeme: "->", Line: 1},
				{Type: IDENTIFIER, Lexeme: "x", Line: 1},
				{Type: PLUS_PLUS, Lexeme: "++", Line: 1},
				{Type: PLUS, Lexeme: "+", Line: 1},
				{Type: IDENTIFIER, Lexeme: "y", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "String concatenation",
			input: `"ab" "c\td"`,
			expected: []Token{
				{Type: STRING, Lexeme: "abc\td", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Comments and lines",
			input: "a /* x\n y */ b // c\nd",
			expected: []Token{
				{Type: IDENTIFIER, Lexeme: "a", Line: 1},
				{Type: IDENTIFIER, Lexeme: "b", Line: 2},
				{Type: IDENTIFIER, Lexeme: "d", Line: 3},
				{Type: EOF, Lexeme: "", Line: 3},
			},
		},
		{name: "Unterminated String", input: "\"hello", wantErr: true},
		{name: "String across newline", input: "\"he\nllo\"", wantErr: true},
		{name: "Unterminated comment", input: "/* abc", wantErr: true},
		{name: "Unknown escape", input: `"\q"`, wantErr: true},
		{name: "Empty char", input: "''", wantErr: true},
		{name: "Multi char", input: "'ab'", wantErr: true},
		{name: "Bad suffix", input: "12abc", wantErr: true},
		{name: "Exponent without digits", input: "1e+", wantErr: true},
		{name: "Stray character", input: "a @ b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Lex(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("Lex() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr {
				if !reflect.DeepEqual(got, tt.expected) {
					t.Errorf("Lex() = %v, want %v", got, tt.expected)
				}
			}
		})
	}
}

func TestLexErrorLine(t *testing.T) {
	_, err := Lex("int x;\nint y = 'ab';")
	if err == nil {
		t.Fatal("expected error")
	}
	assertContains(t, err.Error(), "line 2")
}
