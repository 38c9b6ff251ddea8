package store

import "time"

// Page is one compiled markup file.
type Page struct {
	ID           int64
	Path         string
	Hash         string
	ScopeCount   int
	ErrorCount   int
	LastCompiled time.Time
}

// Scope is one compile-time scope of a page. LID is the scope id written to
// the markup's data-lid attribute.
type Scope struct {
	ID            int64
	PageID        int64
	LID           int
	Name          string
	Isolate       bool
	Tag           string
	Line          int
	Col           int
	ParentScopeID *int64
}

// Value kinds.
const (
	KindLiteral    = "literal"
	KindExpression = "expression"
)

// Value is one reactive cell of a scope. Source is the qualified expression
// in JS form, or the JSON encoding of a literal.
type Value struct {
	ID      int64
	PageID  int64
	ScopeID int64
	Key     string
	Kind    string
	Source  string
	Line    int
	Col     int
}

// Ref is one resolved dependency edge from a value to the value it reads.
type Ref struct {
	ID            int64
	ValueID       int64
	TargetValueID int64
	Accessor      string
}

// Diagnostic is a stored compile diagnostic.
type Diagnostic struct {
	ID       int64
	PageID   int64
	Severity string
	Code     string
	Message  string
	Line     int
	Col      int
}
