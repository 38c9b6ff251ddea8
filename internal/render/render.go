// Package render is the server-side platform adapter. It binds the values
// of a live context to the compiled markup tree through value callbacks and
// serializes the result.
package render

import (
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"

	"github.com/jward/pagelogic/internal/compiler"
	"github.com/jward/pagelogic/internal/dom"
	"github.com/jward/pagelogic/internal/expr"
	"github.com/jward/pagelogic/internal/reactive"
)

// Page is a compiled markup tree bound to a live context.
type Page struct {
	root  *dom.Node
	ctx   *reactive.Context
	elems map[int]*dom.Node
}

// Bind installs a callback on every adapter value of ctx that writes the
// value's result into root: attr$ values set attributes, class$ values
// toggle class tokens, style$ values set style properties and text$ values
// fill the slot between their marker comments. Values without an adapter
// prefix are left alone. root must be the tree the descriptor was compiled
// from.
func Bind(root *dom.Node, ctx *reactive.Context) (*Page, error) {
	p := &Page{root: root, ctx: ctx, elems: map[int]*dom.Node{0: root}}
	dom.Walk(root, func(n *dom.Node) bool {
		if a, ok := n.Attr(dom.IDAttr); ok && n.Kind == dom.ElementNode {
			if id, err := strconv.Atoi(a.Value); err == nil {
				p.elems[id] = n
			}
		}
		return true
	})

	var errs []error
	var visit func(s reactive.Scope)
	visit = func(s reactive.Scope) {
		el, ok := p.elems[s.ID()]
		if !ok {
			errs = append(errs, fmt.Errorf("scope %d has no element", s.ID()))
			return
		}
		for _, v := range s.Values() {
			if err := p.bindValue(el, v); err != nil {
				errs = append(errs, fmt.Errorf("scope %d value %s: %w", s.ID(), v.Key(), err))
			}
		}
		for _, c := range s.Children() {
			visit(c)
		}
	}
	visit(ctx.Root())
	if len(errs) > 0 {
		return nil, fmt.Errorf("render: bind had %d error(s): %w", len(errs), errs[0])
	}
	return p, nil
}

func (p *Page) bindValue(el *dom.Node, v reactive.Value) error {
	key := v.Key()
	switch {
	case strings.HasPrefix(key, compiler.AttrPrefix):
		name := strings.TrimPrefix(key, compiler.AttrPrefix)
		v.SetCallback(func(x any) any {
			setAttr(el, name, x)
			return x
		})
	case strings.HasPrefix(key, compiler.ClassPrefix):
		name := strings.TrimPrefix(key, compiler.ClassPrefix)
		v.SetCallback(func(x any) any {
			toggleClass(el, name, expr.Truthy(x))
			return x
		})
	case strings.HasPrefix(key, compiler.StylePrefix):
		name := strings.TrimPrefix(key, compiler.StylePrefix)
		v.SetCallback(func(x any) any {
			setStyle(el, name, x)
			return x
		})
	case strings.HasPrefix(key, compiler.TextPrefix):
		n, err := strconv.Atoi(strings.TrimPrefix(key, compiler.TextPrefix))
		if err != nil {
			return fmt.Errorf("bad text key %q", key)
		}
		open, close := dom.TextMarkers(n)
		parent, _ := findMarker(el, open)
		if parent == nil {
			return fmt.Errorf("text slot %d not found", n)
		}
		v.SetCallback(func(x any) any {
			fillSlot(parent, open, close, x)
			return x
		})
	}
	return nil
}

// Context returns the bound context.
func (p *Page) Context() *reactive.Context { return p.ctx }

// Root returns the bound tree.
func (p *Page) Root() *dom.Node { return p.root }

// Element returns the element bound to scope id.
func (p *Page) Element(id int) (*dom.Node, bool) {
	n, ok := p.elems[id]
	return n, ok
}

// Refresh recomputes every value, updating the tree.
func (p *Page) Refresh() { p.ctx.Refresh() }

// Render writes the current markup to w.
func (p *Page) Render(w io.Writer) error {
	if err := dom.Render(w, p.root); err != nil {
		return fmt.Errorf("render: write: %w", err)
	}
	return nil
}

// HTML returns the current markup.
func (p *Page) HTML() string { return dom.String(p.root) }

func setAttr(el *dom.Node, name string, x any) {
	switch {
	case expr.IsNullish(x) || x == false:
		el.RemoveAttr(name)
	case x == true:
		el.SetAttr(name, "")
	default:
		el.SetAttr(name, html.EscapeString(expr.ToString(x)))
	}
}

func toggleClass(el *dom.Node, name string, on bool) {
	var classes []string
	if a, ok := el.Attr("class"); ok {
		for _, c := range strings.Fields(a.Value) {
			if c != name {
				classes = append(classes, c)
			}
		}
	}
	if on {
		classes = append(classes, name)
	}
	if len(classes) == 0 {
		el.RemoveAttr("class")
		return
	}
	el.SetAttr("class", strings.Join(classes, " "))
}

func setStyle(el *dom.Node, name string, x any) {
	props := map[string]string{}
	var order []string
	if a, ok := el.Attr("style"); ok {
		for _, decl := range strings.Split(a.Value, ";") {
			k, val, found := strings.Cut(decl, ":")
			k = strings.TrimSpace(k)
			if !found || k == "" {
				continue
			}
			if _, seen := props[k]; !seen {
				order = append(order, k)
			}
			props[k] = strings.TrimSpace(val)
		}
	}
	if expr.IsNullish(x) || x == false || x == "" {
		delete(props, name)
	} else {
		if _, seen := props[name]; !seen {
			order = append(order, name)
		}
		props[name] = html.EscapeString(expr.ToString(x))
	}
	var decls []string
	for _, k := range order {
		if v, ok := props[k]; ok {
			decls = append(decls, k+": "+v)
		}
	}
	if len(decls) == 0 {
		el.RemoveAttr("style")
		return
	}
	el.SetAttr("style", strings.Join(decls, "; "))
}

// findMarker finds the comment with the given data within the region of el
// owned by its scope: descendants of el that are not inside another scoped
// element.
func findMarker(el *dom.Node, data string) (*dom.Node, int) {
	for i, c := range el.Children {
		switch c.Kind {
		case dom.CommentNode:
			if c.Text == data {
				return el, i
			}
		case dom.ElementNode:
			if _, scoped := c.Attr(dom.IDAttr); scoped {
				continue
			}
			if p, j := findMarker(c, data); p != nil {
				return p, j
			}
		}
	}
	return nil, -1
}

// fillSlot replaces the nodes between the open and close markers of parent
// with the text of x.
func fillSlot(parent *dom.Node, open, close string, x any) {
	start, end := -1, -1
	for i, c := range parent.Children {
		if c.Kind != dom.CommentNode {
			continue
		}
		if c.Text == open && start < 0 {
			start = i
		} else if c.Text == close && start >= 0 {
			end = i
			break
		}
	}
	if start < 0 || end < 0 {
		return
	}
	var text string
	if !expr.IsNullish(x) {
		text = html.EscapeString(expr.ToString(x))
	}
	children := make([]*dom.Node, 0, len(parent.Children))
	children = append(children, parent.Children[:start+1]...)
	if text != "" {
		t := dom.NewText(text)
		t.Parent = parent
		children = append(children, t)
	}
	children = append(children, parent.Children[end:]...)
	parent.Children = children
}
