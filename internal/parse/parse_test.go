package parse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/pagelogic/internal/dom"
	"github.com/jward/pagelogic/internal/expr"
)

func TestParseExpr_Format(t *testing.T) {
	t.Parallel()
	tests := []struct {
		src  string
		want string
	}{
		{"a + b * 2", "a + b * 2"},
		{"(a + b) * 2", "(a + b) * 2"},
		{"this.x + 1", "this.x + 1"},
		{`data["user"]`, `data["user"]`},
		{"user.name.toUpperCase()", "user.name.toUpperCase()"},
		{"ok ? 'yes' : 'no'", `ok ? "yes" : "no"`},
		{"items.map((v) => v * 2)", "items.map((v) => v * 2)"},
		{"x => x", "(x) => x"},
		{"{a: 1, b}", "{ a: 1, b: b }"},
		{"!done && count > 0", "!done && count > 0"},
		{"typeof x === 'string'", `typeof x === "string"`},
		{"`Hi ${name}!`", "`Hi ${name}!`"},
		{"null ?? undefined", "null ?? undefined"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			n, err := ParseExpr(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, expr.Format(n))
		})
	}
}

func TestParseExpr_FunctionBody(t *testing.T) {
	t.Parallel()
	n, err := ParseExpr(`function (list) {
		let total = 0;
		for (const item of list) {
			if (!item) continue;
			total += item;
		}
		return total;
	}`)
	require.NoError(t, err)
	fn, ok := n.(*expr.Function)
	require.True(t, ok)
	assert.False(t, fn.Arrow)
	require.Len(t, fn.Params, 1)

	f, err := expr.Eval(fn, nil, nil)
	require.NoError(t, err)
	got, err := expr.CallValue(f, nil, []any{1.0, nil, 2.0})
	require.NoError(t, err)
	assert.Equal(t, 3.0, got)
}

func TestParseExpr_NamedFunction(t *testing.T) {
	t.Parallel()
	n, err := ParseExpr(`function fact(n) { return n < 2 ? 1 : n * fact(n - 1); }`)
	require.NoError(t, err)
	fn, ok := n.(*expr.Function)
	require.True(t, ok)
	assert.Equal(t, "fact", fn.Name)

	f, err := expr.Eval(fn, nil, nil)
	require.NoError(t, err)
	got, err := expr.CallValue(f, nil, 5.0)
	require.NoError(t, err)
	assert.Equal(t, 120.0, got)
}

func TestParseExpr_Errors(t *testing.T) {
	t.Parallel()
	for _, src := range []string{"", "a +", "a; b", "a) + (b", "new Foo()"} {
		t.Run(src, func(t *testing.T) {
			_, err := ParseExpr(src)
			require.Error(t, err)
			var se *SyntaxError
			assert.ErrorAs(t, err, &se)
		})
	}
}

func TestParseTemplate(t *testing.T) {
	t.Parallel()

	n, err := ParseTemplate("plain text")
	require.NoError(t, err)
	assert.Nil(t, n)

	n, err = ParseTemplate("${user}")
	require.NoError(t, err)
	assert.Equal(t, &expr.Identifier{Name: "user"}, n)

	n, err = ParseTemplate("Hello ${name} &amp; ${ {a: '}'}.a }!")
	require.NoError(t, err)
	tpl, ok := n.(*expr.Template)
	require.True(t, ok)
	assert.Equal(t, []string{"Hello ", " & ", "!"}, tpl.Quasis)
	require.Len(t, tpl.Exprs, 2)

	_, err = ParseTemplate("broken ${a")
	require.Error(t, err)
	var se *SyntaxError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 7, se.Offset)
}

func TestMaskInterpolations(t *testing.T) {
	t.Parallel()
	src := "<p title=\"${a > b}\">${x <\n y}</p><i :v=${1 + 2}/>"
	masked := string(maskInterpolations([]byte(src)))
	assert.Equal(t, "<p title=\"${_____}\">${___\n__}</p><i :v=\"______\"/>", masked)
	assert.Len(t, masked, len(src))
}

func parseDoc(t *testing.T, src string) *Document {
	t.Helper()
	doc, err := ParseHTML(context.Background(), "page.html", []byte(src))
	require.NoError(t, err)
	return doc
}

func TestParseHTML_RoundTripsPlainMarkup(t *testing.T) {
	t.Parallel()
	src := "<!DOCTYPE html>\n<html><body><p class=\"a\">Hi &amp; bye<!-- c --></p><br></body></html>\n"
	doc := parseDoc(t, src)
	assert.Empty(t, doc.Problems)
	assert.Equal(t, src, dom.String(doc.Root))
}

func TestParseHTML_Interpolations(t *testing.T) {
	t.Parallel()
	doc := parseDoc(t, `<div><span>${data.user}</span><div :aka="data" :user="bob"/></div>`)
	require.Empty(t, doc.Problems)
	require.Len(t, doc.Root.Children, 1)

	outer := doc.Root.Children[0]
	assert.Equal(t, "div", outer.Tag)
	require.Len(t, outer.Children, 2)

	span := outer.Children[0]
	require.Len(t, span.Children, 1)
	text := span.Children[0]
	assert.Equal(t, dom.TextNode, text.Kind)
	require.NotNil(t, text.Expr)
	assert.Equal(t, "data.user", expr.Format(text.Expr))

	inner := outer.Children[1]
	assert.True(t, inner.SelfClosing)
	aka, ok := inner.Attr(":aka")
	require.True(t, ok)
	assert.Equal(t, "data", aka.Value)
	assert.Nil(t, aka.Expr)
	user, ok := inner.Attr(":user")
	require.True(t, ok)
	assert.Equal(t, "bob", user.Value)
}

func TestParseHTML_UnquotedExpressionAttribute(t *testing.T) {
	t.Parallel()
	doc := parseDoc(t, `<div :x="1"><div :x=${this.x + 1}/></div>`)
	require.Empty(t, doc.Problems)
	outer := doc.Root.Children[0]
	require.Len(t, outer.Children, 1)
	inner := outer.Children[0]
	assert.True(t, inner.SelfClosing)
	x, ok := inner.Attr(":x")
	require.True(t, ok)
	assert.Equal(t, "${this.x + 1}", x.Value)
	require.NotNil(t, x.Expr)
	assert.Equal(t, "this.x + 1", expr.Format(x.Expr))
}

func TestParseHTML_Locations(t *testing.T) {
	t.Parallel()
	doc := parseDoc(t, "<div>\n  <p title=\"${a +}\">x</p>\n</div>")
	require.Len(t, doc.Problems, 1)
	p := doc.Problems[0]
	assert.Equal(t, ExprProblem, p.Kind)
	assert.Equal(t, "page.html", p.Loc.File)
	assert.Equal(t, 2, p.Loc.Line)

	div := doc.Root.Children[0]
	assert.Equal(t, dom.Loc{File: "page.html", Line: 1, Col: 1}, div.Loc)
	var para *dom.Node
	for _, c := range div.Children {
		if c.Kind == dom.ElementNode {
			para = c
		}
	}
	require.NotNil(t, para)
	assert.Equal(t, dom.Loc{File: "page.html", Line: 2, Col: 3}, para.Loc)
}

func TestParseHTML_ScriptIsRaw(t *testing.T) {
	t.Parallel()
	doc := parseDoc(t, "<script>const s = `${a}` < 1;</script>")
	require.Len(t, doc.Root.Children, 1)
	script := doc.Root.Children[0]
	assert.True(t, script.Raw)
	require.Len(t, script.Children, 1)
	assert.Nil(t, script.Children[0].Expr)
	assert.Equal(t, "const s = `${a}` < 1;", script.Children[0].Text)
}

func TestLanguageForFile(t *testing.T) {
	t.Parallel()
	lang, ok := LanguageForFile("pages/Index.HTML")
	assert.True(t, ok)
	assert.Equal(t, "html", lang)
	_, ok = LanguageForFile("main.go")
	assert.False(t, ok)
}
