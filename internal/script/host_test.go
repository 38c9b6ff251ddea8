package script

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/pagelogic/internal/expr"
)

const mathSource = `
func double(x) {
	return x * 2
}

func greet(name) {
	return "hello " + name
}

export("double", double)
export("greet", greet)
`

func TestRunSource_RecordsExports(t *testing.T) {
	t.Parallel()

	h := NewHost("")
	require.NoError(t, h.RunSource(context.Background(), "math.risor", mathSource))
	assert.Equal(t, []string{"double", "greet"}, h.Names())
}

func TestCall(t *testing.T) {
	t.Parallel()

	h := NewHost("")
	require.NoError(t, h.RunSource(context.Background(), "math.risor", mathSource))

	got, err := h.Call(context.Background(), "double", 21.0)
	require.NoError(t, err)
	assert.Equal(t, 42.0, got)

	got, err = h.Call(context.Background(), "greet", "world")
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)
}

func TestCall_UnknownHelper(t *testing.T) {
	t.Parallel()

	h := NewHost("")
	_, err := h.Call(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no helper "nope"`)
}

func TestCall_ConvertsCollections(t *testing.T) {
	t.Parallel()

	h := NewHost("")
	require.NoError(t, h.RunSource(context.Background(), "c.risor", `
func pair(a, b) {
	return [a, b]
}
export("pair", pair)
`))
	got, err := h.Call(context.Background(), "pair", 1.5, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{1.5, nil}, got)
}

func TestGlobals_CallableFromExpressions(t *testing.T) {
	t.Parallel()

	h := NewHost("")
	require.NoError(t, h.RunSource(context.Background(), "math.risor", mathSource))

	globals := h.Globals()
	require.Contains(t, globals, "double")
	fn, ok := globals["double"].(expr.Func)
	require.True(t, ok)
	got, err := fn(4.0)
	require.NoError(t, err)
	assert.Equal(t, 8.0, got)
}

func TestExport_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want string
	}{
		{"not a function", `export("x", 1)`, "must be a function"},
		{"bad name", `func f() { return 1 }
export("a-b", f)`, "invalid helper name"},
		{"arity", `export("x")`, "export"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := NewHost("")
			err := h.RunSource(context.Background(), "bad.risor", tt.src)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Empty(t, h.Names())
		})
	}
}

func TestExport_DuplicateAcrossScripts(t *testing.T) {
	t.Parallel()

	h := NewHost("")
	require.NoError(t, h.RunSource(context.Background(), "a.risor", mathSource))
	err := h.RunSource(context.Background(), "b.risor", `
func double(x) { return x }
export("double", double)
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `helper "double" already exported by a.risor`)
}

func TestLoadAll_FromFS(t *testing.T) {
	t.Parallel()

	mapFS := fstest.MapFS{
		"math.risor":        &fstest.MapFile{Data: []byte(mathSource)},
		"fmt/money.risor":   &fstest.MapFile{Data: []byte("func money(n) { return n }\nexport(\"money\", money)\n")},
		"notes/readme.txt":  &fstest.MapFile{Data: []byte("not a script")},
		"lib_helpers.risor": &fstest.MapFile{Data: []byte("func shout(s) { return s + \"!\" }\n")},
	}
	h := NewHost("", WithFS(mapFS))
	require.NoError(t, h.LoadAll(context.Background()))
	assert.Equal(t, []string{"double", "greet", "money"}, h.Names())
}

func TestLoadAll_ImportsSharedModule(t *testing.T) {
	t.Parallel()

	mapFS := fstest.MapFS{
		"lib_helpers.risor": &fstest.MapFile{Data: []byte(`
func shout(s) {
	return s + "!"
}
`)},
		"page.risor": &fstest.MapFile{Data: []byte(`
import lib_helpers

func loud(s) {
	return lib_helpers.shout(s)
}
export("loud", loud)
`)},
	}
	h := NewHost("", WithFS(mapFS))
	require.NoError(t, h.LoadAll(context.Background()))

	got, err := h.Call(context.Background(), "loud", "hey")
	require.NoError(t, err)
	assert.Equal(t, "hey!", got)
}

func TestLoadAll_FromDisk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "math.risor"), []byte(mathSource), 0644))

	h := NewHost(dir)
	require.NoError(t, h.LoadAll(context.Background()))
	got, err := h.Call(context.Background(), "double", 5.0)
	require.NoError(t, err)
	assert.Equal(t, 10.0, got)
}

func TestLoadAll_MissingDirIsEmpty(t *testing.T) {
	t.Parallel()

	h := NewHost(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, h.LoadAll(context.Background()))
	assert.Empty(t, h.Names())
}

func TestLoadScript_FromFS(t *testing.T) {
	t.Parallel()

	content := `x := 42`
	h := NewHost("", WithFS(fstest.MapFS{
		"helpers/a.risor": &fstest.MapFile{Data: []byte(content)},
	}))

	got, err := h.LoadScript("/helpers/a.risor")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	_, err = h.LoadScript("missing.risor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "from fs")
}

func TestLog_UsesLogger(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var lines []string
	logf := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, fmt.Sprintf(format, args...))
	}
	h := NewHost("", WithLogger(logf))
	require.NoError(t, h.RunSource(context.Background(), "l.risor", `log.Warn("careful")`))
	require.Len(t, lines, 1)
	assert.Equal(t, "[l.risor] WARN: careful", lines[0])
}
