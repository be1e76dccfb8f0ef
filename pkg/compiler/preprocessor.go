package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Macro represents a defined macro, either simple or function-like.
type Macro struct {
	Args []string // nil for object-like macros
	Body string
}

// preprocessor expands #include, #define and the #ifdef family. Directive
// lines are replaced by empty lines, so line numbers hold up to the first
// #include.
type preprocessor struct {
	defines   map[string]Macro
	including map[string]bool // files on the current include stack
	done      map[string]bool // files already expanded once
}

// Preprocess expands directives in src. Quoted includes resolve against
// baseDir. predefined seeds object-like macros such as the target name.
func Preprocess(src, baseDir string, predefined map[string]string) (string, error) {
	pp := &preprocessor{
		defines:   make(map[string]Macro),
		including: make(map[string]bool),
		done:      make(map[string]bool),
	}
	for name, body := range predefined {
		pp.defines[name] = Macro{Body: body}
	}
	return pp.expand(src, baseDir)
}

// condFrame tracks one #ifdef/#ifndef nesting level.
type condFrame struct {
	active   bool // lines in the current branch are kept
	parentOn bool
	seenElse bool
}

func (pp *preprocessor) expand(src, baseDir string) (string, error) {
	var out strings.Builder
	var conds []condFrame
	on := func() bool { return len(conds) == 0 || conds[len(conds)-1].active }

	for i, line := range strings.Split(src, "\n") {
		lineNo := i + 1
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			if on() {
				out.WriteString(pp.applyDefines(line, pp.defines))
			}
			out.WriteByte('\n')
			continue
		}

		directive, rest, _ := strings.Cut(strings.TrimSpace(trimmed[1:]), " ")
		rest = strings.TrimSpace(rest)
		switch directive {
		case "ifdef", "ifndef":
			_, defined := pp.defines[rest]
			cond := defined == (directive == "ifdef")
			conds = append(conds, condFrame{active: on() && cond, parentOn: on()})
		case "else":
			if len(conds) == 0 {
				return "", fmt.Errorf("#else without #ifdef on line %d", lineNo)
			}
			top := &conds[len(conds)-1]
			if top.seenElse {
				return "", fmt.Errorf("#else after #else on line %d", lineNo)
			}
			top.seenElse = true
			top.active = top.parentOn && !top.active
		case "endif":
			if len(conds) == 0 {
				return "", fmt.Errorf("#endif without #ifdef on line %d", lineNo)
			}
			conds = conds[:len(conds)-1]
		case "define":
			if on() {
				if err := pp.define(rest, lineNo); err != nil {
					return "", err
				}
			}
		case "undef":
			if on() {
				delete(pp.defines, rest)
			}
		case "include":
			if on() {
				text, err := pp.include(rest, baseDir, lineNo)
				if err != nil {
					return "", err
				}
				out.WriteString(text)
			}
		default:
			if on() {
				return "", fmt.Errorf("unknown directive #%s on line %d", directive, lineNo)
			}
		}
		out.WriteByte('\n')
	}
	if len(conds) > 0 {
		return "", fmt.Errorf("unterminated #ifdef")
	}
	return out.String(), nil
}

// define parses "NAME body" or "NAME(a, b) body".
func (pp *preprocessor) define(rest string, lineNo int) error {
	nameEnd := strings.IndexFunc(rest, func(r rune) bool { return !isIdentPart(r) })
	if nameEnd < 0 {
		nameEnd = len(rest)
	}
	name := rest[:nameEnd]
	if name == "" || !isIdentStart(rune(name[0])) {
		return fmt.Errorf("macro name missing on line %d", lineNo)
	}
	rest = rest[nameEnd:]

	var args []string
	if strings.HasPrefix(rest, "(") {
		closeParen := strings.Index(rest, ")")
		if closeParen < 0 {
			return fmt.Errorf("unterminated macro parameter list on line %d", lineNo)
		}
		args = []string{}
		if params := strings.TrimSpace(rest[1:closeParen]); params != "" {
			for _, a := range strings.Split(params, ",") {
				args = append(args, strings.TrimSpace(a))
			}
		}
		rest = rest[closeParen+1:]
	}
	body := strings.TrimSpace(rest)
	if args == nil {
		body = pp.applyDefines(body, pp.defines)
	}
	pp.defines[name] = Macro{Args: args, Body: body}
	return nil
}

// include splices a quoted file, expanded with the shared macro table.
// A file is expanded at most once per unit.
func (pp *preprocessor) include(rest, baseDir string, lineNo int) (string, error) {
	parts := strings.SplitN(rest, "\"", 3)
	if len(parts) < 3 {
		return "", fmt.Errorf("invalid include directive on line %d: %s", lineNo, rest)
	}
	path, err := filepath.Abs(filepath.Join(baseDir, parts[1]))
	if err != nil {
		return "", err
	}
	if pp.including[path] {
		return "", fmt.Errorf("circular include detected: %s", parts[1])
	}
	if pp.done[path] {
		return "", nil
	}
	pp.done[path] = true

	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read included file %s: %w", parts[1], err)
	}
	pp.including[path] = true
	defer delete(pp.including, path)
	return pp.expand(string(content), filepath.Dir(path))
}

// applyDefines replaces macro names on word boundaries outside string and
// character literals.
func (pp *preprocessor) applyDefines(input string, defines map[string]Macro) string {
	if len(defines) == 0 {
		return input
	}
	var sb strings.Builder
	n := len(input)
	i := 0
	for i < n {
		c := input[i]
		if c == '"' || c == '\'' {
			j := skipLiteral(input, i)
			sb.WriteString(input[i:j])
			i = j
			continue
		}
		if !isIdentStart(rune(c)) {
			sb.WriteByte(c)
			i++
			continue
		}
		start := i
		for i < n && isIdentPart(rune(input[i])) {
			i++
		}
		word := input[start:i]
		macro, ok := defines[word]
		switch {
		case !ok:
			sb.WriteString(word)
		case macro.Args == nil:
			sb.WriteString(macro.Body)
		default:
			args, end, ok := macroArgs(input, i)
			if !ok || len(args) != len(macro.Args) && !(len(macro.Args) == 0 && len(args) == 1 && args[0] == "") {
				sb.WriteString(word)
				continue
			}
			// Parameters are substituted in one pass so an argument text
			// never gets rewritten by a later parameter name.
			params := make(map[string]Macro, len(macro.Args))
			for k, name := range macro.Args {
				params[name] = Macro{Body: args[k]}
			}
			sb.WriteString(pp.applyDefines(pp.applyDefines(macro.Body, params), defines))
			i = end
		}
	}
	return sb.String()
}

// skipLiteral returns the index just past the literal starting at i.
func skipLiteral(s string, i int) int {
	quote := s[i]
	for i++; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case quote:
			return i + 1
		}
	}
	return len(s)
}

// macroArgs splits the parenthesized argument list of a function-like
// macro invocation starting at or after i.
func macroArgs(s string, i int) ([]string, int, bool) {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	if i >= len(s) || s[i] != '(' {
		return nil, i, false
	}
	var args []string
	var cur strings.Builder
	depth := 0
	for i++; i < len(s); i++ {
		switch c := s[i]; {
		case c == '(':
			depth++
			cur.WriteByte(c)
		case c == ')' && depth == 0:
			return append(args, strings.TrimSpace(cur.String())), i + 1, true
		case c == ')':
			depth--
			cur.WriteByte(c)
		case c == ',' && depth == 0:
			args = append(args, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return nil, i, false
}

func isIdentStart(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}
