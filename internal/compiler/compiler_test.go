package compiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/pagelogic/internal/dom"
	"github.com/jward/pagelogic/internal/expr"
	"github.com/jward/pagelogic/internal/parse"
)

func compileSrc(t *testing.T, src string, opts ...Option) *Result {
	t.Helper()
	doc, err := parse.ParseHTML(context.Background(), "page.html", []byte(src))
	require.NoError(t, err)
	require.Empty(t, doc.Problems)
	return Compile(doc.Root, append([]Option{WithFile("page.html")}, opts...)...)
}

func scopeByID(t *testing.T, root *Scope, id int) *Scope {
	t.Helper()
	var found *Scope
	Walk(root, func(s *Scope) {
		if s.ID == id {
			found = s
		}
	})
	require.NotNil(t, found, "scope %d", id)
	return found
}

func formatAll(ns []expr.Node) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = expr.Format(n)
	}
	return out
}

func codes(ds []Diagnostic) []Code {
	var out []Code
	for _, d := range ds {
		out = append(out, d.Code)
	}
	return out
}

func TestCompile_SiblingNamedScope(t *testing.T) {
	t.Parallel()
	res := compileSrc(t, `<div><span>${data.user}</span><div :aka="data" :user="bob"/></div>`)
	require.Empty(t, res.Diagnostics)
	require.NotNil(t, res.Descriptor)

	span := scopeByID(t, res.Scope, 1)
	require.Len(t, span.Texts, 1)
	text := span.Texts[0]
	assert.Equal(t, "text$0", text.Key)
	assert.Equal(t, "this.data.user", expr.Format(text.Expr()))
	assert.Equal(t, []string{`this.data.$value("user")`}, formatAll(text.Refs))

	data := scopeByID(t, res.Scope, 2)
	assert.Equal(t, "data", data.Name)
	require.Len(t, text.Targets, 1)
	assert.Same(t, data.Values["user"], text.Targets[0])
	assert.Equal(t, "bob", data.Values["user"].Val)

	assert.Equal(t,
		`<div><span data-lid="1"><!--$t0--><!--/t0--></span><div data-lid="2"></div></div>`,
		dom.String(res.Root))
}

func TestCompile_ChildRedeclaresParentName(t *testing.T) {
	t.Parallel()
	res := compileSrc(t, `<div :x="1"><div :x=${this.x + 1}/></div>`)
	require.Empty(t, res.Diagnostics)

	parent := scopeByID(t, res.Scope, 1)
	child := scopeByID(t, res.Scope, 2)
	assert.Equal(t, 1.0, parent.Values["x"].Val)

	x := child.Values["x"]
	assert.Equal(t, "this.$parent.x + 1", expr.Format(x.Expr()))
	assert.Equal(t, []string{`this.$parent.$value("x")`}, formatAll(x.Refs))
	require.Len(t, x.Targets, 1)
	assert.Same(t, parent.Values["x"], x.Targets[0])
}

func TestQualify(t *testing.T) {
	t.Parallel()
	globals := map[string]bool{"Math": true}
	tests := []struct {
		name string
		key  string
		src  string
		want string
	}{
		{"free identifiers", "k", "a + b.c", "this.a + this.b.c"},
		{"computed property", "k", "a[i]", "this.a[this.i]"},
		{"global", "k", "Math.max(a, 1)", "Math.max(this.a, 1)"},
		{"arrow params", "k", "items.map((x) => x * factor)", "this.items.map((x) => x * this.factor)"},
		{"object keys untouched", "k", "{ a: b }", "{ a: this.b }"},
		{"self identifier", "x", "x + 1", "this.$parent.x + 1"},
		{"self receiver access", "x", "this.x + 1", "this.$parent.x + 1"},
		{"self inside function", "x", "list.map(() => x)", "this.list.map(() => this.x)"},
		{"already qualified", "k", "this.$parent.k + this.a", "this.$parent.k + this.a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := parse.ParseExpr(tt.src)
			require.NoError(t, err)
			got := Qualify(n, tt.key, globals)
			assert.Equal(t, tt.want, expr.Format(got))
		})
	}
}

func TestQualify_Idempotent(t *testing.T) {
	t.Parallel()
	srcs := []string{
		"a + b.c",
		"x + this.x",
		"items.filter((it) => it.done && it.owner === user).length",
		"function (a) { let b = a; var c = 1; return a + b + c + d; }",
	}
	for _, src := range srcs {
		n, err := parse.ParseExpr(src)
		require.NoError(t, err)
		once := Qualify(n, "x", nil)
		first := expr.Format(once)
		twice := Qualify(expr.Clone(once), "x", nil)
		assert.Equal(t, first, expr.Format(twice), src)
	}
}

func TestQualify_LocalBindings(t *testing.T) {
	t.Parallel()
	n, err := parse.ParseExpr(`function ({ a }, [b]) {
		var c = 1;
		for (const item of list) {
			c += item;
		}
		try {
			c += risky();
		} catch (e) {
			c += e;
		}
		return a + b + c + d;
	}`)
	require.NoError(t, err)
	out := expr.Format(Qualify(n, "k", nil))
	assert.Contains(t, out, "return a + b + c + this.d;")
	assert.Contains(t, out, "for (const item of this.list)")
	assert.Contains(t, out, "c += this.risky();")
	assert.Contains(t, out, "c += e;")
}

func TestCompile_NamedFunctionExpression(t *testing.T) {
	t.Parallel()
	res := compileSrc(t, `<div :n="5" :f="${function fact(k) { return k < 2 ? 1 : k * fact(k - 1); }}"/>`)
	assert.Empty(t, res.Diagnostics)
	f := scopeByID(t, res.Scope, 1).Values["f"]
	out := expr.Format(f.Val.(expr.Node))
	assert.Contains(t, out, "function fact(k)")
	assert.Contains(t, out, "k * fact(k - 1)")
	assert.Empty(t, f.Refs)
}

func TestCompile_ReferenceNotFound(t *testing.T) {
	t.Parallel()
	res := compileSrc(t, `<div><p>${missing.name}</p></div>`)
	require.True(t, res.HasErrors())
	assert.Nil(t, res.Descriptor)
	require.Len(t, res.Diagnostics, 1)
	d := res.Diagnostics[0]
	assert.Equal(t, CodeRefNotFound, d.Code)
	assert.Equal(t, "Reference not found: missing", d.Msg)
	assert.Equal(t, "page.html", d.Loc.File)

	err := res.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile had 1 error(s)")
}

func TestCompile_IsolateCutsAncestors(t *testing.T) {
	t.Parallel()
	res := compileSrc(t, `<div :a="1"><div :isolate>${a}</div></div>`)
	require.True(t, res.HasErrors())
	assert.Equal(t, []Code{CodeRefNotFound}, codes(res.Diagnostics))
	assert.Nil(t, res.Descriptor)

	inner := scopeByID(t, res.Scope, 2)
	assert.True(t, inner.Isolate)
	assert.Empty(t, inner.Texts[0].Refs)
}

func TestCompile_IsolatedSelfReference(t *testing.T) {
	t.Parallel()
	res := compileSrc(t, `<div :isolate :x=${x}/>`)
	assert.False(t, res.HasErrors())
	assert.Equal(t, []Code{CodeSelfReference}, codes(res.Diagnostics))
	require.NotNil(t, res.Descriptor)
	assert.Empty(t, scopeByID(t, res.Scope, 1).Values["x"].Refs)
}

func TestCompile_SelfReferenceInsideFunction(t *testing.T) {
	t.Parallel()
	res := compileSrc(t, `<div :f=${() => f}/>`)
	assert.Empty(t, res.Diagnostics)
	f := scopeByID(t, res.Scope, 1).Values["f"]
	assert.Equal(t, []string{`this.$value("f")`}, formatAll(f.Refs))
	assert.Equal(t, []*Value{f}, f.Targets)
}

func TestCompile_SelfReferenceInsideFunctionTargetsOuterBinding(t *testing.T) {
	t.Parallel()
	res := compileSrc(t, `<div :x="1"><p :x=${() => x}/></div>`)
	assert.Empty(t, res.Diagnostics)
	outer := scopeByID(t, res.Scope, 1).Values["x"]
	inner := scopeByID(t, res.Scope, 2).Values["x"]
	assert.Equal(t, []string{`this.$value("x")`}, formatAll(inner.Refs))
	assert.Equal(t, []*Value{outer}, inner.Targets)
}

func TestCompile_RefsAreDeduplicated(t *testing.T) {
	t.Parallel()
	res := compileSrc(t, `<div :a="1" :b="2"><p>${a + b + a}</p></div>`)
	require.Empty(t, res.Diagnostics)
	p := scopeByID(t, res.Scope, 2)
	assert.Equal(t, []string{`this.$value("a")`, `this.$value("b")`}, formatAll(p.Texts[0].Refs))
}

func TestCompile_RefsInsideFunctions(t *testing.T) {
	t.Parallel()
	res := compileSrc(t, `<div :items=${[1, 2]} :total=${items.reduce((s, v) => s + v * scale, 0)} :scale="2"/>`)
	require.Empty(t, res.Diagnostics)
	total := scopeByID(t, res.Scope, 1).Values["total"]
	assert.Equal(t, []string{`this.$value("items")`, `this.$value("scale")`}, formatAll(total.Refs))
}

func TestCompile_ScopeNames(t *testing.T) {
	t.Parallel()
	res := compileSrc(t, `<div><p :aka="1x"></p><p :aka="n"></p><p :aka="n"></p><p :aka="m"></p></div>`)
	assert.Equal(t, []Code{CodeBadScopeName, CodeDupScopeName}, codes(res.Diagnostics))
	assert.Nil(t, res.Descriptor)

	var names []string
	for _, c := range res.Scope.Children {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"", "n", "", "m"}, names)
}

func TestCompile_BadDirectives(t *testing.T) {
	t.Parallel()
	res := compileSrc(t, `<div :foo-bar="1" :isolate="no" :ok="1"></div>`)
	assert.Equal(t, []Code{CodeBadDirective, CodeBadDirective}, codes(res.Diagnostics))
	s := scopeByID(t, res.Scope, 1)
	assert.False(t, s.Isolate)
	assert.Equal(t, []string{"ok"}, s.Keys)
}

func TestCompile_LiteralTyping(t *testing.T) {
	t.Parallel()
	res := compileSrc(t, `<div :n="42" :f="1.5" :t="true" :s="hi" :e="a &amp; b"/>`)
	require.Empty(t, res.Diagnostics)
	s := scopeByID(t, res.Scope, 1)
	assert.Equal(t, 42.0, s.Values["n"].Val)
	assert.Equal(t, 1.5, s.Values["f"].Val)
	assert.Equal(t, true, s.Values["t"].Val)
	assert.Equal(t, "hi", s.Values["s"].Val)
	assert.Equal(t, "a & b", s.Values["e"].Val)

	v := res.Descriptor.Children[0].Values["n"]
	assert.Equal(t, &expr.Literal{Value: 42.0}, v.Exp)
	assert.Empty(t, v.Refs)
}

func TestCompile_AttributeExpressions(t *testing.T) {
	t.Parallel()
	res := compileSrc(t, `<a class="link" href="/u/${id}" :id="7">go</a>`)
	require.Empty(t, res.Diagnostics)
	s := scopeByID(t, res.Scope, 1)
	assert.Equal(t, []string{"attr$href", "id"}, s.Keys)
	href := s.Values["attr$href"]
	assert.Equal(t, "`/u/${this.id}`", expr.Format(href.Expr()))
	assert.Equal(t, []string{`this.$value("id")`}, formatAll(href.Refs))
	assert.Equal(t, `<a class="link" data-lid="1">go</a>`, dom.String(res.Root))
}

func TestCompile_ScopeIDsAndStructuralTags(t *testing.T) {
	t.Parallel()
	res := compileSrc(t, `<html><head><title>t</title></head><body><main :n="3"><p>${n}</p><p>plain</p></main></body></html>`)
	require.Empty(t, res.Diagnostics)

	var ids []int
	var tags []string
	Walk(res.Scope, func(s *Scope) {
		ids = append(ids, s.ID)
		tags = append(tags, s.Node.Tag)
	})
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, ids)
	assert.Equal(t, []string{"", "html", "head", "body", "main", "p"}, tags)

	p := scopeByID(t, res.Scope, 5)
	assert.Equal(t, []string{`this.$value("n")`}, formatAll(p.Texts[0].Refs))
	assert.Same(t, scopeByID(t, res.Scope, 4).Values["n"], p.Texts[0].Targets[0])
}

func TestCompile_GeneratesDescriptor(t *testing.T) {
	t.Parallel()
	res := compileSrc(t, `<div :aka="card" :title="Hi"><h1>${title}!</h1></div>`)
	require.Empty(t, res.Diagnostics)
	d := res.Descriptor
	require.NotNil(t, d)
	assert.Equal(t, 0, d.ID)
	require.Len(t, d.Children, 1)

	card := d.Children[0]
	assert.Equal(t, "card", card.Name)
	assert.Equal(t, []string{"title"}, card.Keys())
	require.Len(t, card.Children, 1)

	h1 := card.Children[0]
	text := h1.Values["text$0"]
	require.NotNil(t, text)
	assert.Equal(t, "`${this.title}!`", expr.Format(text.Exp))
	assert.Equal(t, []string{`this.$value("title")`}, formatAll(text.Refs))
}

func TestCompile_ExtraGlobals(t *testing.T) {
	t.Parallel()
	res := compileSrc(t, `<div :total="3"><p>${money(total)}</p></div>`, WithGlobals("money"))
	require.Empty(t, res.Diagnostics)
	p := scopeByID(t, res.Scope, 2)
	assert.Equal(t, "money(this.total)", expr.Format(p.Texts[0].Expr()))
}
