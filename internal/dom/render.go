package dom

import (
	"bufio"
	"io"
	"strings"
)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

// Render serializes n as markup. Text and attribute values are written as
// stored; callers escape computed content before putting it in the tree.
// Self-closing non-void elements are written with an explicit end tag.
func Render(w io.Writer, n *Node) error {
	bw := bufio.NewWriter(w)
	render(bw, n)
	return bw.Flush()
}

// String renders n to a string.
func String(n *Node) string {
	var sb strings.Builder
	_ = Render(&sb, n)
	return sb.String()
}

func render(w *bufio.Writer, n *Node) {
	switch n.Kind {
	case DocumentNode:
		for _, c := range n.Children {
			render(w, c)
		}
	case DoctypeNode:
		w.WriteString("<!")
		w.WriteString(n.Text)
		w.WriteString(">")
	case CommentNode:
		w.WriteString("<!--")
		w.WriteString(n.Text)
		w.WriteString("-->")
	case TextNode:
		w.WriteString(n.Text)
	case ElementNode:
		w.WriteString("<")
		w.WriteString(n.Tag)
		for _, a := range n.Attrs {
			w.WriteString(" ")
			w.WriteString(a.Name)
			if a.Value == "" && a.Expr == nil {
				continue
			}
			q := `"`
			if strings.Contains(a.Value, `"`) {
				q = `'`
			}
			w.WriteString("=")
			w.WriteString(q)
			w.WriteString(a.Value)
			w.WriteString(q)
		}
		if voidElements[strings.ToLower(n.Tag)] {
			w.WriteString(">")
			return
		}
		w.WriteString(">")
		for _, c := range n.Children {
			render(w, c)
		}
		w.WriteString("</")
		w.WriteString(n.Tag)
		w.WriteString(">")
	}
}
