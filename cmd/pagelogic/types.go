package main

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// CLIPage is a JSON-friendly compiled page.
type CLIPage struct {
	Path   string `json:"path"`
	Scopes int    `json:"scopes"`
	Errors int    `json:"errors"`
}

// CLIDiagnostic is a JSON-friendly compile diagnostic.
type CLIDiagnostic struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Col      int    `json:"col"`
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// CLIScope is a JSON-friendly scope. ID and Parent are data-lid values.
type CLIScope struct {
	ID      int    `json:"id"`
	Name    string `json:"name,omitempty"`
	Tag     string `json:"tag,omitempty"`
	Isolate bool   `json:"isolate,omitempty"`
	Parent  *int   `json:"parent,omitempty"`
	Line    int    `json:"line"`
	Col     int    `json:"col"`
}

// CLIValue is a JSON-friendly value.
type CLIValue struct {
	Scope     int    `json:"scope"`
	ScopeName string `json:"scope_name,omitempty"`
	Key       string `json:"key"`
	Kind      string `json:"kind"`
	Source    string `json:"source"`
	File      string `json:"file"`
	Line      int    `json:"line"`
	Col       int    `json:"col"`
}

// CLIRender is the result of rendering a page.
type CLIRender struct {
	File string `json:"file"`
	HTML string `json:"html"`
}
