package typeset

import (
	"errors"
	"fmt"
	"strings"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Severity grades a diagnostic
type Severity int

const (
	// SeverityError aborts compilation
	SeverityError Severity = iota
	// SeverityWarning is reported but does not stop compilation
	SeverityWarning
)

// String returns the string representation of the severity
func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Diagnostic is a compiler message tied to a source position
type Diagnostic struct {
	Severity Severity
	Path     string
	Line     int
	Col      int
	Message  string
	// Trace lists the call frames that led to an error, outermost first
	Trace []string
}

// String formats the diagnostic as path:line:col: severity: message
func (d Diagnostic) String() string {
	var b strings.Builder
	if d.Path != "" {
		b.WriteString(d.Path)
		if d.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", d.Line, d.Col)
		}
		b.WriteString(": ")
	}
	b.WriteString(d.Severity.String())
	b.WriteString(": ")
	b.WriteString(d.Message)
	return b.String()
}

// CompileError is returned when a document program fails
type CompileError struct {
	Diagnostics []Diagnostic
}

// Error implements the error interface
func (e *CompileError) Error() string {
	if len(e.Diagnostics) == 0 {
		return "compilation failed"
	}
	return e.Diagnostics[0].String()
}

// Messages renders every diagnostic as a string
func (e *CompileError) Messages() []string {
	return Messages(e.Diagnostics)
}

// Messages renders diagnostics as strings
func Messages(diags []Diagnostic) []string {
	out := make([]string, len(diags))
	for i, d := range diags {
		out[i] = d.String()
	}
	return out
}

func positioned(sev Severity, pos syntax.Position, msg string) Diagnostic {
	d := Diagnostic{Severity: sev, Message: msg}
	if pos.IsValid() {
		d.Path = pos.Filename()
		d.Line = int(pos.Line)
		d.Col = int(pos.Col)
	}
	return d
}

// diagnose converts a Starlark failure into diagnostics
func diagnose(err error) []Diagnostic {
	var (
		syntaxErr  syntax.Error
		resolveErr resolve.ErrorList
		evalErr    *starlark.EvalError
	)

	switch {
	case errors.As(err, &evalErr):
		return []Diagnostic{fromEvalError(evalErr)}
	case errors.As(err, &resolveErr):
		diags := make([]Diagnostic, len(resolveErr))
		for i, e := range resolveErr {
			diags[i] = positioned(SeverityError, e.Pos, e.Msg)
		}
		return diags
	case errors.As(err, &syntaxErr):
		return []Diagnostic{positioned(SeverityError, syntaxErr.Pos, syntaxErr.Msg)}
	default:
		return []Diagnostic{{Severity: SeverityError, Message: err.Error()}}
	}
}

func fromEvalError(err *starlark.EvalError) Diagnostic {
	d := Diagnostic{Severity: SeverityError, Message: err.Msg}
	// innermost frame with a real source position
	for i := len(err.CallStack) - 1; i >= 0; i-- {
		fr := err.CallStack[i]
		if fr.Pos.IsValid() && fr.Pos.Filename() != "<builtin>" {
			d.Path = fr.Pos.Filename()
			d.Line = int(fr.Pos.Line)
			d.Col = int(fr.Pos.Col)
			break
		}
	}
	for _, fr := range err.CallStack {
		d.Trace = append(d.Trace, fmt.Sprintf("%s@%s", fr.Name, fr.Pos))
	}
	return d
}
