// Package diag collects compiler errors and warnings.
package diag

import "fmt"

// Severity is the severity level of a diagnostic.
type Severity int

const (
	Error Severity = iota
	Warning
	Note
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Note:
		return "note"
	default:
		return "unknown"
	}
}

// Codes. E0xx are errors that stop lowering of the current statement,
// W0xx are warnings after which lowering continues.
const (
	ErrSyntax           = "E001"
	ErrUndeclared       = "E002"
	ErrInvalidOperands  = "E003"
	ErrIncompatibleType = "E004"
	ErrNotLvalue        = "E005"
	ErrReadOnly         = "E006"
	ErrNotConstant      = "E007"
	ErrLayout           = "E008"
	ErrUnsupported      = "E009"
	ErrNoRegister       = "E010"

	WarnPointerInteger  = "W001"
	WarnPointerMismatch = "W002"
	WarnVoidArith       = "W003"
	WarnSignCompare     = "W004"
	WarnOverflow        = "W005"
	WarnDivByZero       = "W006"
)

// Diagnostic is one reported condition.
type Diagnostic struct {
	Severity Severity
	Code     string
	File     string
	Line     int
	Message  string
}

func (d *Diagnostic) String() string {
	loc := d.File
	if d.Line > 0 {
		loc = fmt.Sprintf("%s:%d", d.File, d.Line)
	}
	if loc == "" {
		return fmt.Sprintf("%s[%s]: %s", d.Severity, d.Code, d.Message)
	}
	return fmt.Sprintf("%s: %s[%s]: %s", loc, d.Severity, d.Code, d.Message)
}
