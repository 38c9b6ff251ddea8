package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/pagelogic"
	"github.com/jward/pagelogic/internal/config"
)

const scenarioPage = `<div><span>${data.user}</span><div :aka="data" :user="bob"/></div>`

// execute runs the root command in-process and returns what it wrote to
// stdout. Flag variables are reset first since cobra keeps them between runs.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	stdout = &buf
	t.Cleanup(func() { stdout = os.Stdout })
	flagConfig, flagDB, flagFormat, flagScriptsDir = "", "", "text", ""
	flagEmit, flagForce, flagReverse = "json", false, false
	errorHandled = false

	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// project creates a directory with a quiet config and the scenario page.
// It returns the config path and the page path.
func project(t *testing.T, page string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "pagelogic.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("database: db/test.db\nlogging:\n  quiet: true\n"), 0o644))
	pagesDir := filepath.Join(dir, "pages")
	require.NoError(t, os.MkdirAll(pagesDir, 0o755))
	pagePath := filepath.Join(pagesDir, "index.html")
	require.NoError(t, os.WriteFile(pagePath, []byte(page), 0o644))
	return cfgPath, pagePath
}

func TestValidateFormat(t *testing.T) {
	assert.NoError(t, validateFormat("json"))
	assert.NoError(t, validateFormat("text"))
	err := validateFormat("yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
}

func TestParseIntArg(t *testing.T) {
	n, err := parseIntArg("12", "scope")
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	_, err = parseIntArg("x", "scope")
	assert.ErrorContains(t, err, `invalid scope "x"`)
	_, err = parseIntArg("-1", "scope")
	assert.ErrorContains(t, err, "must be non-negative")
}

func TestScopesToCLI_MapsParentsToLIDs(t *testing.T) {
	root := int64(10)
	scopes := []*pagelogic.ScopeRecord{
		{ID: 10, LID: 0},
		{ID: 11, LID: 1, Tag: "span", ParentScopeID: &root},
	}
	got := scopesToCLI(scopes)
	require.Len(t, got, 2)
	assert.Nil(t, got[0].Parent)
	require.NotNil(t, got[1].Parent)
	assert.Equal(t, 0, *got[1].Parent)
	assert.Equal(t, "span", got[1].Tag)
}

func TestFormatDiagnosticsText(t *testing.T) {
	var buf bytes.Buffer
	formatDiagnosticsText(&buf, []CLIDiagnostic{
		{File: "a.html", Line: 2, Col: 5, Severity: "error", Code: "ref-not-found", Message: "Reference not found: x"},
	})
	assert.Equal(t, "a.html:2:5: error: Reference not found: x [ref-not-found]\n", buf.String())
}

func TestRender(t *testing.T) {
	cfgPath, pagePath := project(t, scenarioPage)

	out, err := execute(t, "--config", cfgPath, "render", pagePath)
	require.NoError(t, err)
	assert.Equal(t,
		`<div><span data-lid="1"><!--$t0-->bob<!--/t0--></span><div data-lid="2"></div></div>`+"\n",
		out)
}

func TestRender_BuiltinHelpers(t *testing.T) {
	cfgPath, pagePath := project(t, `<p :n="2">${plural(n, "apple")}</p>`)

	out, err := execute(t, "--config", cfgPath, "render", pagePath)
	require.NoError(t, err)
	assert.Equal(t, `<p data-lid="1"><!--$t0-->apples<!--/t0--></p>`+"\n", out)
}

func TestRender_ScriptsDirOverridesBuiltins(t *testing.T) {
	cfgPath, pagePath := project(t, `<p :n="bob">${shout(n)}</p>`)
	scriptsDir := filepath.Join(filepath.Dir(cfgPath), "scripts")
	require.NoError(t, os.MkdirAll(scriptsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(scriptsDir, "shout.risor"),
		[]byte("func shout(s) { return s + \"!\" }\nexport(\"shout\", shout)\n"), 0o644))

	out, err := execute(t, "--config", cfgPath, "render", pagePath)
	require.NoError(t, err)
	assert.Contains(t, out, "<!--$t0-->bob!<!--/t0-->")
}

func TestRender_CompileErrors(t *testing.T) {
	cfgPath, pagePath := project(t, `<p>${missing}</p>`)

	out, err := execute(t, "--config", cfgPath, "--format", "json", "render", pagePath)
	require.Error(t, err)
	assert.True(t, errorHandled)

	var res CLIResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "render", res.Command)
	assert.Contains(t, res.Error, "Reference not found: missing")
}

func TestInspect(t *testing.T) {
	cfgPath, pagePath := project(t, scenarioPage)

	out, err := execute(t, "--config", cfgPath, "inspect", pagePath)
	require.NoError(t, err)
	var desc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &desc))
	assert.Contains(t, desc, "children")

	out, err = execute(t, "--config", cfgPath, "inspect", "--emit", "js", pagePath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "init("), out)

	_, err = execute(t, "--config", cfgPath, "inspect", "--emit", "wasm", pagePath)
	assert.ErrorContains(t, err, "invalid --emit")
}

func TestCompileThenQuery(t *testing.T) {
	cfgPath, pagePath := project(t, scenarioPage)
	pagesDir := filepath.Dir(pagePath)

	out, err := execute(t, "--config", cfgPath, "--format", "json", "compile", pagesDir)
	require.NoError(t, err)
	var res CLIResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "compile", res.Command)
	assert.Empty(t, res.Results)
	assert.FileExists(t, filepath.Join(filepath.Dir(cfgPath), "db", "test.db"))

	out, err = execute(t, "--config", cfgPath, "--format", "json", "query", "deps", pagePath, "1", "text$0")
	require.NoError(t, err)
	var deps struct {
		Results []CLIValue `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &deps))
	require.Len(t, deps.Results, 1)
	assert.Equal(t, 2, deps.Results[0].Scope)
	assert.Equal(t, "user", deps.Results[0].Key)

	out, err = execute(t, "--config", cfgPath, "query", "deps", "--reverse", pagePath, "2", "user")
	require.NoError(t, err)
	assert.Contains(t, out, "text$0")

	out, err = execute(t, "--config", cfgPath, "query", "scopes", pagePath)
	require.NoError(t, err)
	assert.Contains(t, out, "data")
	assert.Contains(t, out, "span")
}

func TestCompile_FailsOnErrors(t *testing.T) {
	cfgPath, pagePath := project(t, `<p>${missing}</p>`)

	out, err := execute(t, "--config", cfgPath, "compile", filepath.Dir(pagePath))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 page(s) failed to compile")
	assert.Contains(t, out, "Reference not found: missing [ref-not-found]")
}

func TestQuery_MissingDatabase(t *testing.T) {
	cfgPath, pagePath := project(t, scenarioPage)

	_, err := execute(t, "--config", cfgPath, "query", "scopes", pagePath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database not found")
}

func newTestWatcher(t *testing.T, root string, out *bytes.Buffer) *pageWatcher {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "watch.db")
	open := func() (*pagelogic.Engine, func(), error) {
		e, err := pagelogic.New(dbPath, pagelogic.WithLogger(func(string, ...any) {}))
		if err != nil {
			return nil, nil, err
		}
		return e, func() { e.Close() }, nil
	}
	isPage := func(p string) bool { return strings.HasSuffix(p, ".html") }
	w, err := newPageWatcher(root, filepath.Join(root, "scripts"), 10*time.Millisecond, isPage, open, out)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

func TestPageWatcher_Apply(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "index.html")
	require.NoError(t, os.WriteFile(path, []byte(scenarioPage), 0o644))

	var out bytes.Buffer
	w := newTestWatcher(t, root, &out)
	ctx := context.Background()

	w.apply(ctx, []string{path})
	assert.Contains(t, out.String(), "Compiled "+path+": ok")
	p, err := w.engine.Query().Page(path)
	require.NoError(t, err)
	require.NotNil(t, p)

	require.NoError(t, os.WriteFile(path, []byte(`<p>${missing}</p>`), 0o644))
	out.Reset()
	w.apply(ctx, []string{path})
	assert.Contains(t, out.String(), "Reference not found: missing")
	assert.Contains(t, out.String(), "1 error(s)")

	require.NoError(t, os.Remove(path))
	out.Reset()
	w.apply(ctx, []string{path})
	assert.Contains(t, out.String(), "Removed "+path)
	p, err = w.engine.Query().Page(path)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestPageWatcher_Reload(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "index.html")
	require.NoError(t, os.WriteFile(path, []byte(scenarioPage), 0o644))

	var out bytes.Buffer
	w := newTestWatcher(t, root, &out)
	before := w.engine

	w.reload(context.Background())
	assert.NotSame(t, before, w.engine)
	assert.Contains(t, out.String(), "Scripts changed")
	assert.Contains(t, out.String(), "Compiled "+path+": ok")
}

func TestPageWatcher_IsScript(t *testing.T) {
	root := t.TempDir()
	var out bytes.Buffer
	w := newTestWatcher(t, root, &out)

	assert.True(t, w.isScript(filepath.Join(root, "scripts", "fmt.risor")))
	assert.True(t, w.isScript(filepath.Join(root, "scripts", "lib", "a.risor")))
	assert.False(t, w.isScript(filepath.Join(root, "scripts", "notes.txt")))
	assert.False(t, w.isScript(filepath.Join(root, "other", "fmt.risor")))
	assert.False(t, w.isScript(filepath.Join(root, "scripts-old", "fmt.risor")))
}

func TestNewLogger(t *testing.T) {
	logf, closeLog, err := newLogger(config.LoggingConfig{Quiet: true})
	require.NoError(t, err)
	logf("ignored %d", 1)
	require.NoError(t, closeLog())

	logPath := filepath.Join(t.TempDir(), "pagelogic.log")
	logf, closeLog, err = newLogger(config.LoggingConfig{Output: logPath})
	require.NoError(t, err)
	logf("hello %s", "log")
	require.NoError(t, closeLog())
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello log")
}
