// Package compiler turns an annotated markup tree into a scope-tree
// descriptor. Compilation runs four passes over one page: the builder
// creates scopes and values and stamps correlation ids into the tree, the
// qualifier rewrites free identifiers into receiver accesses, the resolver
// proves every access reaches a value and records the dependency refs, and
// the generator emits the descriptor. Any error diagnostic suppresses the
// descriptor.
package compiler

import (
	"github.com/jward/pagelogic/internal/descriptor"
	"github.com/jward/pagelogic/internal/dom"
	"github.com/jward/pagelogic/internal/expr"
)

// Result is the outcome of compiling one page.
type Result struct {
	File        string
	Root        *dom.Node
	Scope       *Scope
	Diagnostics []Diagnostic
	Descriptor  *descriptor.Scope // nil when HasErrors
}

// HasErrors reports whether any diagnostic is an error.
func (r *Result) HasErrors() bool {
	return len(Errors(r.Diagnostics)) > 0
}

// Err returns nil or an error summarizing the error diagnostics.
func (r *Result) Err() error {
	return joinErrors(r.Diagnostics)
}

// Option configures Compile.
type Option func(*options)

type options struct {
	file    string
	globals map[string]bool
	diags   []Diagnostic
}

// WithFile sets the file name reported in the result.
func WithFile(name string) Option {
	return func(o *options) { o.file = name }
}

// WithGlobals adds names that are resolved from the runtime globals and
// never qualified.
func WithGlobals(names ...string) Option {
	return func(o *options) {
		for _, n := range names {
			o.globals[n] = true
		}
	}
}

// WithDiagnostics seeds the result with diagnostics produced before
// compilation, typically by the parser.
func WithDiagnostics(ds ...Diagnostic) Option {
	return func(o *options) { o.diags = append(o.diags, ds...) }
}

// DefaultGlobals returns the names of the builtin runtime globals.
func DefaultGlobals() []string {
	names := expr.GlobalNames(expr.Builtins(nil))
	return append(names, "undefined", "NaN", "Infinity")
}

// Compile compiles the tree rooted at root. The tree is modified in place:
// scoped elements get a dom.IDAttr attribute, logic and expression
// attributes are removed, and interpolated text is replaced by marker
// comments.
func Compile(root *dom.Node, opts ...Option) *Result {
	o := &options{globals: map[string]bool{}}
	WithGlobals(DefaultGlobals()...)(o)
	for _, opt := range opts {
		opt(o)
	}

	diags := &diagnostics{list: append([]Diagnostic(nil), o.diags...)}
	b := &builder{diags: diags}
	scope := b.build(root)

	for _, v := range Values(scope) {
		if n := v.Expr(); n != nil {
			v.Val = Qualify(expr.Clone(n), v.Key, o.globals)
		}
	}

	r := &resolver{diags: diags}
	r.resolve(scope)

	res := &Result{File: o.file, Root: root, Scope: scope, Diagnostics: diags.list}
	if !res.HasErrors() {
		res.Descriptor = generate(scope)
	}
	return res
}
