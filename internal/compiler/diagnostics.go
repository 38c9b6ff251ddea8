package compiler

import (
	"errors"
	"fmt"

	"github.com/jward/pagelogic/internal/dom"
)

// Severity is the type of a Diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Code identifies the kind of a Diagnostic.
type Code string

const (
	CodeBadScopeName  Code = "bad-scope-name"
	CodeDupScopeName  Code = "dup-scope-name"
	CodeBadDirective  Code = "bad-directive"
	CodeRefNotFound   Code = "ref-not-found"
	CodeExprSyntax    Code = "expr-syntax"
	CodeBadMarkup     Code = "bad-markup"
	CodeSelfReference Code = "self-reference"
)

// Diagnostic is one compile problem attributed to a source location.
type Diagnostic struct {
	Type Severity `json:"type"`
	Code Code     `json:"code"`
	Msg  string   `json:"msg"`
	Loc  dom.Loc  `json:"loc"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s: %s", d.Loc, d.Type, d.Msg)
}

// IsError reports whether d blocks descriptor generation.
func (d Diagnostic) IsError() bool { return d.Type == SeverityError }

type diagnostics struct {
	list []Diagnostic
}

func (ds *diagnostics) errorf(code Code, loc dom.Loc, format string, args ...any) {
	ds.list = append(ds.list, Diagnostic{Type: SeverityError, Code: code, Msg: fmt.Sprintf(format, args...), Loc: loc})
}

func (ds *diagnostics) warnf(code Code, loc dom.Loc, format string, args ...any) {
	ds.list = append(ds.list, Diagnostic{Type: SeverityWarning, Code: code, Msg: fmt.Sprintf(format, args...), Loc: loc})
}

// Errors returns the error diagnostics of ds.
func Errors(ds []Diagnostic) []Diagnostic {
	var out []Diagnostic
	for _, d := range ds {
		if d.IsError() {
			out = append(out, d)
		}
	}
	return out
}

// joinErrors folds error diagnostics into a single error.
func joinErrors(ds []Diagnostic) error {
	errs := Errors(ds)
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("compile had %d error(s): %w", len(errs), errors.New(errs[0].String()))
}
