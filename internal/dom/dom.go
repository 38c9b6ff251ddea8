// Package dom holds the annotated markup tree the compiler consumes and the
// render adapter mutates. Attribute and text values are either plain strings
// or expression ASTs produced by the front end.
package dom

import (
	"fmt"
	"strings"

	"github.com/jward/pagelogic/internal/expr"
)

// Kind identifies the type of a Node.
type Kind int

const (
	DocumentNode Kind = iota
	ElementNode
	TextNode
	CommentNode
	DoctypeNode
)

func (k Kind) String() string {
	switch k {
	case DocumentNode:
		return "document"
	case ElementNode:
		return "element"
	case TextNode:
		return "text"
	case CommentNode:
		return "comment"
	case DoctypeNode:
		return "doctype"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IDAttr carries the compile-time scope id on the element a scope is bound to.
const IDAttr = "data-lid"

// Loc is a 1-based source position.
type Loc struct {
	File string `json:"file,omitempty"`
	Line int    `json:"line"`
	Col  int    `json:"col"`
}

func (l Loc) String() string {
	if l.File == "" {
		return fmt.Sprintf("%d:%d", l.Line, l.Col)
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Col)
}

// Attr is an element attribute. Expr is non-nil when the value is an
// expression; Value then holds the original source text.
type Attr struct {
	Name  string
	Value string
	Expr  expr.Node
	Loc   Loc
}

// Node is one node of the markup tree. Text holds raw markup for text nodes
// and the data of comment and doctype nodes.
type Node struct {
	Kind        Kind
	Tag         string
	Attrs       []*Attr
	Text        string
	Expr        expr.Node
	Children    []*Node
	Parent      *Node
	Loc         Loc
	SelfClosing bool
	// Raw marks element content that must not be parsed or escaped (script, style).
	Raw bool
}

// NewElement returns an element node with the given tag.
func NewElement(tag string) *Node {
	return &Node{Kind: ElementNode, Tag: tag}
}

// NewText returns a text node holding raw markup.
func NewText(markup string) *Node {
	return &Node{Kind: TextNode, Text: markup}
}

// NewComment returns a comment node.
func NewComment(data string) *Node {
	return &Node{Kind: CommentNode, Text: data}
}

// TextMarkers returns the comment data bracketing the n-th live text slot of
// a scope.
func TextMarkers(n int) (open, close string) {
	return fmt.Sprintf("$t%d", n), fmt.Sprintf("/t%d", n)
}

// Attr returns the attribute with the given name.
func (n *Node) Attr(name string) (*Attr, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// SetAttr sets a literal attribute value, adding the attribute if missing.
func (n *Node) SetAttr(name, value string) {
	if a, ok := n.Attr(name); ok {
		a.Value = value
		a.Expr = nil
		return
	}
	n.Attrs = append(n.Attrs, &Attr{Name: name, Value: value})
}

// RemoveAttr deletes every attribute with the given name.
func (n *Node) RemoveAttr(name string) {
	kept := n.Attrs[:0]
	for _, a := range n.Attrs {
		if a.Name != name {
			kept = append(kept, a)
		}
	}
	n.Attrs = kept
}

// AppendChild adds c as the last child of n.
func (n *Node) AppendChild(c *Node) {
	c.Parent = n
	n.Children = append(n.Children, c)
}

// ReplaceChild replaces old with the given nodes, preserving position.
// It reports whether old was found.
func (n *Node) ReplaceChild(old *Node, with ...*Node) bool {
	for i, c := range n.Children {
		if c != old {
			continue
		}
		for _, w := range with {
			w.Parent = n
		}
		children := make([]*Node, 0, len(n.Children)-1+len(with))
		children = append(children, n.Children[:i]...)
		children = append(children, with...)
		children = append(children, n.Children[i+1:]...)
		n.Children = children
		old.Parent = nil
		return true
	}
	return false
}

// Walk visits n and its descendants in document order. Returning false from
// fn skips the node's children.
func Walk(n *Node, fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		Walk(c, fn)
	}
}

// Clone returns a deep copy of n with fresh parent links.
func (n *Node) Clone() *Node {
	c := *n
	c.Parent = nil
	c.Attrs = make([]*Attr, len(n.Attrs))
	for i, a := range n.Attrs {
		ac := *a
		c.Attrs[i] = &ac
	}
	c.Children = make([]*Node, 0, len(n.Children))
	for _, ch := range n.Children {
		cc := ch.Clone()
		cc.Parent = &c
		c.Children = append(c.Children, cc)
	}
	return &c
}

// TextContent returns the concatenated raw text of n's descendants.
func (n *Node) TextContent() string {
	var sb strings.Builder
	Walk(n, func(c *Node) bool {
		if c.Kind == TextNode {
			sb.WriteString(c.Text)
		}
		return true
	})
	return sb.String()
}
