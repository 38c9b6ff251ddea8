// Package parse is the front end: it turns page markup into the annotated
// dom tree, with ${...} interpolations and logic attribute values parsed
// into expr ASTs. Both markup and expressions are parsed with tree-sitter.
package parse

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/pagelogic/internal/dom"
)

// ProblemKind classifies a front-end problem.
type ProblemKind string

const (
	MarkupProblem ProblemKind = "markup"
	ExprProblem   ProblemKind = "expr"
)

// Problem is a recoverable front-end error attributed to a source location.
type Problem struct {
	Kind ProblemKind
	Loc  dom.Loc
	Msg  string
}

// Document is a parsed page.
type Document struct {
	Root     *dom.Node
	Problems []Problem
}

// ParseHTML parses page markup. Malformed markup and expressions are
// reported as Problems; the returned error is reserved for parser failure.
func ParseHTML(ctx context.Context, file string, src []byte) (*Document, error) {
	tree, err := parseBytes(ctx, maskInterpolations(src), "html")
	if err != nil {
		return nil, fmt.Errorf("parse: %s: %w", file, err)
	}
	b := &htmlBuilder{file: file, src: src, doc: &Document{}}
	b.indexLines()
	root := &dom.Node{Kind: dom.DocumentNode, Loc: b.loc(0)}
	b.children(root, tree.RootNode(), 0, uint32(len(src)))
	b.doc.Root = root
	return b.doc, nil
}

type htmlBuilder struct {
	file  string
	src   []byte
	lines []int
	doc   *Document
}

func (b *htmlBuilder) indexLines() {
	b.lines = []int{0}
	for i, c := range b.src {
		if c == '\n' {
			b.lines = append(b.lines, i+1)
		}
	}
}

func (b *htmlBuilder) loc(off int) dom.Loc {
	line := sort.Search(len(b.lines), func(i int) bool { return b.lines[i] > off }) - 1
	return dom.Loc{File: b.file, Line: line + 1, Col: off - b.lines[line] + 1}
}

func (b *htmlBuilder) problem(kind ProblemKind, off int, format string, args ...any) {
	b.doc.Problems = append(b.doc.Problems, Problem{Kind: kind, Loc: b.loc(off), Msg: fmt.Sprintf(format, args...)})
}

// children converts the content of n between byte offsets from and to.
// Element-like children become nodes; the bytes between them become text.
func (b *htmlBuilder) children(parent *dom.Node, n *sitter.Node, from, to uint32) {
	pos := from
	flush := func(end uint32) {
		if end > pos {
			b.text(parent, pos, end)
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		var node *dom.Node
		switch c.Type() {
		case "element", "script_element", "style_element":
			node = b.element(c)
		case "comment":
			body := strings.TrimSuffix(strings.TrimPrefix(b.content(c), "<!--"), "-->")
			node = dom.NewComment(body)
		case "doctype":
			raw := b.content(c)
			node = &dom.Node{Kind: dom.DoctypeNode, Text: strings.TrimSuffix(strings.TrimPrefix(raw, "<!"), ">")}
		case "erroneous_end_tag":
			b.problem(MarkupProblem, int(c.StartByte()), "unexpected end tag %s", b.content(c))
			flush(c.StartByte())
			pos = c.EndByte()
			continue
		case "ERROR":
			b.problem(MarkupProblem, int(c.StartByte()), "malformed markup")
			continue
		default:
			continue
		}
		if c.StartByte() < pos || c.EndByte() > to {
			continue
		}
		node.Loc = b.loc(int(c.StartByte()))
		flush(c.StartByte())
		parent.AppendChild(node)
		pos = c.EndByte()
	}
	flush(to)
}

func (b *htmlBuilder) content(n *sitter.Node) string {
	return string(b.src[n.StartByte():n.EndByte()])
}

func (b *htmlBuilder) element(n *sitter.Node) *dom.Node {
	var startTag, endTag *sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		switch c := n.NamedChild(i); c.Type() {
		case "start_tag", "self_closing_tag":
			if startTag == nil {
				startTag = c
			}
		case "end_tag":
			endTag = c
		}
	}
	el := dom.NewElement("")
	if startTag == nil {
		b.problem(MarkupProblem, int(n.StartByte()), "element without a start tag")
		return el
	}
	for i := 0; i < int(startTag.NamedChildCount()); i++ {
		switch c := startTag.NamedChild(i); c.Type() {
		case "tag_name":
			el.Tag = b.content(c)
		case "attribute":
			el.Attrs = append(el.Attrs, b.attribute(c))
		}
	}
	if startTag.Type() == "self_closing_tag" {
		el.SelfClosing = true
		return el
	}
	end := n.EndByte()
	if endTag != nil {
		end = endTag.StartByte()
	}
	if n.Type() != "element" {
		el.Raw = true
		if end > startTag.EndByte() {
			el.AppendChild(dom.NewText(string(b.src[startTag.EndByte():end])))
		}
		return el
	}
	b.children(el, n, startTag.EndByte(), end)
	return el
}

func (b *htmlBuilder) attribute(n *sitter.Node) *dom.Attr {
	a := &dom.Attr{Loc: b.loc(int(n.StartByte()))}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		var from, to uint32
		switch c.Type() {
		case "attribute_name":
			a.Name = b.content(c)
			continue
		case "attribute_value":
			from, to = c.StartByte(), c.EndByte()
		case "quoted_attribute_value":
			from, to = c.StartByte(), c.EndByte()
			// Quotes synthesized around an unquoted ${...} belong to the value.
			if b.src[from] != '$' {
				from, to = from+1, to-1
			}
		default:
			continue
		}
		a.Value = string(b.src[from:to])
		x, err := ParseTemplate(a.Value)
		if err != nil {
			b.exprProblem(int(from), err)
			continue
		}
		a.Expr = x
	}
	return a
}

func (b *htmlBuilder) text(parent *dom.Node, from, to uint32) {
	t := dom.NewText(string(b.src[from:to]))
	t.Loc = b.loc(int(from))
	if !parent.Raw {
		x, err := ParseTemplate(t.Text)
		if err != nil {
			b.exprProblem(int(from), err)
		}
		t.Expr = x
	}
	parent.AppendChild(t)
}

func (b *htmlBuilder) exprProblem(base int, err error) {
	if se, ok := err.(*SyntaxError); ok {
		b.problem(ExprProblem, base+se.Offset, "%s", se.Msg)
		return
	}
	b.problem(ExprProblem, base, "%v", err)
}
