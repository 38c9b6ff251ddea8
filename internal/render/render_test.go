package render

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/pagelogic/internal/compiler"
	"github.com/jward/pagelogic/internal/dom"
	"github.com/jward/pagelogic/internal/parse"
	"github.com/jward/pagelogic/internal/reactive"
)

func bootPage(t *testing.T, src string) *Page {
	t.Helper()
	doc, err := parse.ParseHTML(context.Background(), "page.html", []byte(src))
	require.NoError(t, err)
	res := compiler.Compile(doc.Root)
	require.NoError(t, res.Err())
	p, err := Bind(res.Root, reactive.New(res.Descriptor))
	require.NoError(t, err)
	p.Refresh()
	return p
}

func TestScenario_SiblingNamedScopeRenders(t *testing.T) {
	t.Parallel()
	p := bootPage(t, `<div><span>${data.user}</span><div :aka="data" :user="bob"/></div>`)
	assert.Equal(t,
		`<div><span data-lid="1"><!--$t0-->bob<!--/t0--></span><div data-lid="2"></div></div>`,
		p.HTML())
}

func TestAdapterValues(t *testing.T) {
	t.Parallel()
	p := bootPage(t, `<div :n="2"><p class="a" :class$on=${n > 1} :style$color=${n > 1 ? "red" : null} title="${n}x">Count: ${n}</p></div>`)
	assert.Equal(t,
		`<div data-lid="1"><p class="a on" data-lid="2" title="2x" style="color: red"><!--$t0-->Count: 2<!--/t0--></p></div>`,
		p.HTML())

	outer, ok := p.Context().Scope(1)
	require.True(t, ok)
	require.NoError(t, outer.Set("n", 1.0))
	assert.Equal(t,
		`<div data-lid="1"><p class="a" data-lid="2" title="1x"><!--$t0-->Count: 1<!--/t0--></p></div>`,
		p.HTML())

	var buf bytes.Buffer
	require.NoError(t, p.Render(&buf))
	assert.Equal(t, p.HTML(), buf.String())
}

func TestTextIsEscaped(t *testing.T) {
	t.Parallel()
	p := bootPage(t, `<div :s="&lt;b&gt;"><i>${s}</i><u>${null}</u></div>`)
	assert.Equal(t,
		`<div data-lid="1"><i data-lid="2"><!--$t0-->&lt;b&gt;<!--/t0--></i><u data-lid="3"><!--$t0--><!--/t0--></u></div>`,
		p.HTML())
}

func TestBooleanAttributes(t *testing.T) {
	t.Parallel()
	p := bootPage(t, `<div :on="true"><input disabled=${on} hidden=${!on}></div>`)
	el, ok := p.Element(2)
	require.True(t, ok)
	_, disabled := el.Attr("disabled")
	_, hidden := el.Attr("hidden")
	assert.True(t, disabled)
	assert.False(t, hidden)
}

func TestBindRejectsForeignTree(t *testing.T) {
	t.Parallel()
	doc, err := parse.ParseHTML(context.Background(), "page.html", []byte(`<div :a="1"></div>`))
	require.NoError(t, err)
	res := compiler.Compile(doc.Root)
	require.NoError(t, res.Err())

	_, err = Bind(dom.NewElement("div"), reactive.New(res.Descriptor))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scope 1 has no element")
}
