package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/jward/pagelogic"
)

// formatPagesText formats CLIPage results as aligned columns.
func formatPagesText(w io.Writer, pages []CLIPage) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tSCOPES\tERRORS")
	for _, p := range pages {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", p.Path, p.Scopes, p.Errors)
	}
	tw.Flush()
}

// formatDiagnosticsText formats diagnostics as "file:line:col: severity: msg [code]".
func formatDiagnosticsText(w io.Writer, ds []CLIDiagnostic) {
	for _, d := range ds {
		fmt.Fprintf(w, "%s:%d:%d: %s: %s [%s]\n", d.File, d.Line, d.Col, d.Severity, d.Message, d.Code)
	}
}

// formatScopesText formats CLIScope results as aligned columns.
func formatScopesText(w io.Writer, scopes []CLIScope) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTAG\tPARENT\tISOLATE\tLINE")
	for _, s := range scopes {
		parent := "-"
		if s.Parent != nil {
			parent = fmt.Sprint(*s.Parent)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\t%d\n", s.ID, s.Name, s.Tag, parent, s.Isolate, s.Line)
	}
	tw.Flush()
}

// formatValuesText formats CLIValue results as aligned columns.
func formatValuesText(w io.Writer, vs []CLIValue) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCOPE\tKEY\tKIND\tSOURCE\tLINE")
	for _, v := range vs {
		scope := fmt.Sprint(v.Scope)
		if v.ScopeName != "" {
			scope += " (" + v.ScopeName + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", scope, v.Key, v.Kind, v.Source, v.Line)
	}
	tw.Flush()
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []CLIPage:
		formatPagesText(w, v)
	case []CLIDiagnostic:
		formatDiagnosticsText(w, v)
	case []CLIScope:
		formatScopesText(w, v)
	case []CLIValue:
		formatValuesText(w, v)
	case CLIRender:
		fmt.Fprintln(w, v.HTML)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// outputResult writes a CLIResult to stdout in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(stdout, result)
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}

func diagnosticsToCLI(file string, ds []*pagelogic.DiagnosticRecord) []CLIDiagnostic {
	out := make([]CLIDiagnostic, 0, len(ds))
	for _, d := range ds {
		out = append(out, CLIDiagnostic{
			File:     file,
			Line:     d.Line,
			Col:      d.Col,
			Severity: d.Severity,
			Code:     d.Code,
			Message:  d.Message,
		})
	}
	return out
}

func resultDiagnosticsToCLI(ds []pagelogic.Diagnostic) []CLIDiagnostic {
	out := make([]CLIDiagnostic, 0, len(ds))
	for _, d := range ds {
		out = append(out, CLIDiagnostic{
			File:     d.Loc.File,
			Line:     d.Loc.Line,
			Col:      d.Loc.Col,
			Severity: string(d.Type),
			Code:     string(d.Code),
			Message:  d.Msg,
		})
	}
	return out
}

// scopesToCLI converts stored scopes, mapping parent row ids to data-lid values.
func scopesToCLI(scopes []*pagelogic.ScopeRecord) []CLIScope {
	lids := make(map[int64]int, len(scopes))
	for _, s := range scopes {
		lids[s.ID] = s.LID
	}
	out := make([]CLIScope, 0, len(scopes))
	for _, s := range scopes {
		cs := CLIScope{ID: s.LID, Name: s.Name, Tag: s.Tag, Isolate: s.Isolate, Line: s.Line, Col: s.Col}
		if s.ParentScopeID != nil {
			if lid, ok := lids[*s.ParentScopeID]; ok {
				cs.Parent = &lid
			}
		}
		out = append(out, cs)
	}
	return out
}

func valuesToCLI(vs []pagelogic.ValueInfo) []CLIValue {
	out := make([]CLIValue, 0, len(vs))
	for _, v := range vs {
		out = append(out, CLIValue{
			Scope:     v.ScopeID,
			ScopeName: v.ScopeName,
			Key:       v.Key,
			Kind:      v.Kind,
			Source:    v.Source,
			File:      v.File,
			Line:      v.Line,
			Col:       v.Col,
		})
	}
	return out
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
