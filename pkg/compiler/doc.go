// Package compiler is the front end of sicc: a preprocessor, lexer and
// type-checking parser for a C subset, wired to the lowering engine.
//
// Pipeline: C source → Preprocess → Lex → Parse (typed ast.Unit) → lower.Unit (icode)
package compiler
