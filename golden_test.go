package pagelogic

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/pagelogic/scripts"
)

// Golden test format.
type goldenFile struct {
	Scopes      []goldenScope `json:"scopes,omitempty"`
	Deps        []goldenDep   `json:"deps,omitempty"`
	Diagnostics []goldenDiag  `json:"diagnostics,omitempty"`
	HTML        *string       `json:"html,omitempty"`
}

type goldenScope struct {
	ID     int    `json:"id"`
	Name   string `json:"name,omitempty"`
	Tag    string `json:"tag,omitempty"`
	Parent *int   `json:"parent,omitempty"`
}

type goldenValue struct {
	Scope int    `json:"scope"`
	Key   string `json:"key"`
}

type goldenDep struct {
	From goldenValue `json:"from"`
	To   goldenValue `json:"to"`
}

type goldenDiag struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Line     int    `json:"line"`
	Message  string `json:"message"`
}

// TestGolden compiles every testdata/pages/{case}/page.html with the
// built-in helpers and checks it against the case's golden.json.
func TestGolden(t *testing.T) {
	cases, err := os.ReadDir(filepath.Join("testdata", "pages"))
	if err != nil {
		t.Skip("no testdata directory found")
	}

	for _, c := range cases {
		if !c.IsDir() {
			continue
		}
		testDir := filepath.Join("testdata", "pages", c.Name())
		goldenPath := filepath.Join(testDir, "golden.json")
		pagePath := filepath.Join(testDir, "page.html")
		if _, err := os.Stat(goldenPath); err != nil {
			continue
		}

		t.Run(c.Name(), func(t *testing.T) {
			runGoldenTest(t, pagePath, goldenPath)
		})
	}
}

func runGoldenTest(t *testing.T, pagePath, goldenPath string) {
	t.Helper()

	goldenData, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	var golden goldenFile
	require.NoError(t, json.Unmarshal(goldenData, &golden))

	absPage, err := filepath.Abs(pagePath)
	require.NoError(t, err)

	engine := newTestEngine(t, WithScriptsFS(scripts.FS))
	ctx := context.Background()
	require.NoError(t, engine.CompileFiles(ctx, []string{absPage}))
	q := engine.Query()

	if len(golden.Scopes) > 0 {
		t.Run("scopes", func(t *testing.T) {
			verifyScopes(t, q, absPage, golden.Scopes)
		})
	}
	if len(golden.Deps) > 0 {
		t.Run("deps", func(t *testing.T) {
			verifyDeps(t, q, absPage, golden.Deps)
		})
	}

	t.Run("diagnostics", func(t *testing.T) {
		ds, err := q.Diagnostics(absPage)
		require.NoError(t, err)
		require.Len(t, ds, len(golden.Diagnostics))
		for i, want := range golden.Diagnostics {
			got := ds[i]
			assert.Equal(t, want.Code, got.Code)
			assert.Equal(t, want.Severity, got.Severity)
			assert.Equal(t, want.Line, got.Line)
			assert.Equal(t, want.Message, got.Message)
		}
	})

	if golden.HTML != nil {
		t.Run("render", func(t *testing.T) {
			p, err := engine.Boot(ctx, absPage)
			require.NoError(t, err)
			assert.Equal(t, strings.TrimSpace(*golden.HTML), strings.TrimSpace(p.HTML()))
		})
	}
}

func verifyScopes(t *testing.T, q *QueryBuilder, path string, want []goldenScope) {
	t.Helper()
	scopes, err := q.Scopes(path)
	require.NoError(t, err)
	require.Len(t, scopes, len(want))

	lids := map[int64]int{}
	for _, s := range scopes {
		lids[s.ID] = s.LID
	}
	for i, w := range want {
		got := scopes[i]
		assert.Equal(t, w.ID, got.LID, "scope %d id", i)
		assert.Equal(t, w.Name, got.Name, "scope %d name", w.ID)
		if w.Tag != "" {
			assert.Equal(t, w.Tag, got.Tag, "scope %d tag", w.ID)
		}
		if w.Parent == nil {
			assert.Nil(t, got.ParentScopeID, "scope %d parent", w.ID)
			continue
		}
		require.NotNil(t, got.ParentScopeID, "scope %d parent", w.ID)
		assert.Equal(t, *w.Parent, lids[*got.ParentScopeID], "scope %d parent", w.ID)
	}
}

func verifyDeps(t *testing.T, q *QueryBuilder, path string, want []goldenDep) {
	t.Helper()
	for _, d := range want {
		deps, err := q.Dependencies(path, d.From.Scope, d.From.Key)
		require.NoError(t, err)
		found := false
		for _, v := range deps {
			if v.ScopeID == d.To.Scope && v.Key == d.To.Key {
				found = true
				break
			}
		}
		assert.True(t, found, "missing edge %d.%s -> %d.%s (got %v)",
			d.From.Scope, d.From.Key, d.To.Scope, d.To.Key, deps)
	}
}
