package parse

import (
	"html"
	"strings"

	"github.com/jward/pagelogic/internal/expr"
)

// SyntaxError reports a malformed expression. Offset is the byte offset of
// the problem within the text that was parsed.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string { return e.Msg }

type segment struct {
	text string
	off  int
	expr bool
}

// splitInterpolations cuts s into literal runs and ${...} expression bodies.
func splitInterpolations(s string) ([]segment, error) {
	var segs []segment
	pos := 0
	for {
		i := strings.Index(s[pos:], "${")
		if i < 0 {
			break
		}
		i += pos
		end := matchBrace(s, i+2)
		if end < 0 {
			return nil, &SyntaxError{Offset: i, Msg: "unterminated ${ interpolation"}
		}
		if i > pos {
			segs = append(segs, segment{text: s[pos:i], off: pos})
		}
		segs = append(segs, segment{text: s[i+2 : end], off: i + 2, expr: true})
		pos = end + 1
	}
	if pos < len(s) {
		segs = append(segs, segment{text: s[pos:], off: pos})
	}
	return segs, nil
}

// matchBrace returns the index of the } closing the brace opened just
// before start, skipping strings and nested template literals, or -1.
func matchBrace(s string, start int) int {
	depth := 1
	for i := start; i < len(s); i++ {
		switch c := s[i]; c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		case '\'', '"':
			i = skipQuoted(s, i, c)
			if i < 0 {
				return -1
			}
		case '`':
			for i++; i < len(s) && s[i] != '`'; i++ {
				switch {
				case s[i] == '\\':
					i++
				case strings.HasPrefix(s[i:], "${"):
					if i = matchBrace(s, i+2); i < 0 {
						return -1
					}
				}
			}
			if i >= len(s) {
				return -1
			}
		}
	}
	return -1
}

func skipQuoted(s string, i int, q byte) int {
	for i++; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case q:
			return i
		}
	}
	return -1
}

// ParseTemplate parses text containing ${...} interpolations. It returns
// nil when s contains none. A value made of exactly one interpolation is
// that expression; mixed content becomes a template literal whose literal
// parts are HTML-unescaped.
func ParseTemplate(s string) (expr.Node, error) {
	if !strings.Contains(s, "${") {
		return nil, nil
	}
	segs, err := splitInterpolations(s)
	if err != nil {
		return nil, err
	}
	if len(segs) == 1 && segs[0].expr {
		return parseSegment(segs[0])
	}
	t := &expr.Template{}
	quasi := ""
	for _, seg := range segs {
		if !seg.expr {
			quasi += html.UnescapeString(seg.text)
			continue
		}
		x, err := parseSegment(seg)
		if err != nil {
			return nil, err
		}
		t.Quasis = append(t.Quasis, quasi)
		t.Exprs = append(t.Exprs, x)
		quasi = ""
	}
	t.Quasis = append(t.Quasis, quasi)
	return t, nil
}

func parseSegment(seg segment) (expr.Node, error) {
	x, err := ParseExpr(seg.text)
	if se, ok := err.(*SyntaxError); ok {
		return nil, &SyntaxError{Offset: seg.off + se.Offset, Msg: se.Msg}
	}
	return x, err
}

// maskInterpolations returns a copy of src in which the body of every
// ${...} is replaced by filler of the same length, so markup characters
// inside expressions cannot confuse the HTML grammar. An interpolation used
// as an unquoted attribute value gets synthetic quotes in place of its $
// and closing brace. Newlines are kept so positions stay aligned.
func maskInterpolations(src []byte) []byte {
	out := append([]byte(nil), src...)
	s := string(src)
	pos := 0
	for {
		i := strings.Index(s[pos:], "${")
		if i < 0 {
			return out
		}
		i += pos
		end := matchBrace(s, i+2)
		if end < 0 {
			return out
		}
		for j := i + 2; j < end; j++ {
			if out[j] != '\n' {
				out[j] = '_'
			}
		}
		if unquotedValue(s, i) {
			out[i], out[i+1], out[end] = '"', '_', '"'
		}
		pos = end + 1
	}
}

// unquotedValue reports whether the ${ at i directly follows an attribute
// '=' sign.
func unquotedValue(s string, i int) bool {
	j := i - 1
	for j >= 0 && (s[j] == ' ' || s[j] == '\t') {
		j--
	}
	return j > 0 && s[j] == '='
}
