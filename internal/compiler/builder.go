package compiler

import (
	"fmt"
	"html"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/jward/pagelogic/internal/dom"
	"github.com/jward/pagelogic/internal/expr"
)

// Markup conventions understood by the builder.
const (
	LogicPrefix = ":"
	NameAttr    = LogicPrefix + "aka"
	IsolateAttr = LogicPrefix + "isolate"

	AttrPrefix  = "attr$"
	TextPrefix  = "text$"
	ClassPrefix = "class$"
	StylePrefix = "style$"
	EventPrefix = "event$"
)

// StructuralTags always get a scope.
var StructuralTags = map[string]bool{"html": true, "head": true, "body": true}

var numberLiteral = regexp.MustCompile(`^-?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

type builder struct {
	diags  *diagnostics
	nextID int
}

// build creates the scope tree for root. The root always gets scope 0.
func (b *builder) build(root *dom.Node) *Scope {
	return b.scope(root, nil)
}

func (b *builder) scope(n *dom.Node, parent *Scope) *Scope {
	s := newScope(b.nextID, n, parent)
	b.nextID++
	if n.Kind == dom.ElementNode {
		b.attributes(n, s)
		n.SetAttr(dom.IDAttr, strconv.Itoa(s.ID))
	}
	b.content(n, s)
	return s
}

// content scans the children of n, which belong to scope s.
func (b *builder) content(n *dom.Node, s *Scope) {
	if n.Raw {
		return
	}
	for _, c := range slices.Clone(n.Children) {
		switch c.Kind {
		case dom.ElementNode:
			if needsScope(c) {
				b.scope(c, s)
			} else {
				b.content(c, s)
			}
		case dom.TextNode:
			if c.Expr != nil {
				b.text(n, c, s)
			}
		}
	}
}

// needsScope reports whether element n must be bound to its own scope: it
// is structural, carries logic or expression attributes, or directly holds
// interpolated text.
func needsScope(n *dom.Node) bool {
	if StructuralTags[strings.ToLower(n.Tag)] {
		return true
	}
	for _, a := range n.Attrs {
		if strings.HasPrefix(a.Name, LogicPrefix) || a.Expr != nil {
			return true
		}
	}
	if n.Raw {
		return false
	}
	for _, c := range n.Children {
		if c.Kind == dom.TextNode && c.Expr != nil {
			return true
		}
	}
	return false
}

func (b *builder) attributes(n *dom.Node, s *Scope) {
	for _, a := range slices.Clone(n.Attrs) {
		switch {
		case a.Name == NameAttr:
			n.RemoveAttr(a.Name)
			b.name(a, s)
		case a.Name == IsolateAttr:
			n.RemoveAttr(a.Name)
			if a.Expr != nil || (a.Value != "" && a.Value != "true") {
				b.diags.errorf(CodeBadDirective, a.Loc, "invalid directive attribute %s=%q", a.Name, a.Value)
				continue
			}
			s.Isolate = true
		case strings.HasPrefix(a.Name, LogicPrefix):
			n.RemoveAttr(a.Name)
			key := strings.TrimPrefix(a.Name, LogicPrefix)
			if !expr.IsIdentifierName(key) || strings.HasPrefix(key, "$") {
				b.diags.errorf(CodeBadDirective, a.Loc, "invalid directive attribute %s", a.Name)
				continue
			}
			if _, dup := s.Values[key]; dup {
				b.diags.errorf(CodeBadDirective, a.Loc, "duplicate directive attribute %s", a.Name)
				continue
			}
			v := &Value{Key: key, Src: n, Loc: a.Loc}
			if a.Expr != nil {
				v.Val = a.Expr
			} else {
				v.Val = literalValue(html.UnescapeString(a.Value))
			}
			s.add(v)
		case a.Expr != nil:
			n.RemoveAttr(a.Name)
			s.add(&Value{Key: AttrPrefix + a.Name, Val: a.Expr, Src: n, Loc: a.Loc})
		}
	}
}

func (b *builder) name(a *dom.Attr, s *Scope) {
	name := html.UnescapeString(a.Value)
	if a.Expr != nil || !expr.IsIdentifierName(name) || strings.HasPrefix(name, "$") {
		b.diags.errorf(CodeBadScopeName, a.Loc, "invalid scope name %q", a.Value)
		return
	}
	if s.Parent != nil {
		if other := s.Parent.Child(name); other != nil && other != s {
			b.diags.errorf(CodeDupScopeName, a.Loc, "duplicate scope name %q", name)
			return
		}
	}
	s.Name = name
}

// text lifts an interpolated text node into an anonymous value and leaves
// a pair of marker comments in its place.
func (b *builder) text(parent, t *dom.Node, s *Scope) {
	i := len(s.Texts)
	v := &Value{Key: fmt.Sprintf("%s%d", TextPrefix, i), Val: t.Expr, Src: t, Loc: t.Loc}
	s.Texts = append(s.Texts, v)
	s.add(v)
	open, close := dom.TextMarkers(i)
	parent.ReplaceChild(t, dom.NewComment(open), dom.NewComment(close))
}

// literalValue types a literal logic attribute value.
func literalValue(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if numberLiteral.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}
