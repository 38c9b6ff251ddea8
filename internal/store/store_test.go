package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

// insertTestPage is a helper that inserts a page and returns it with ID set.
func insertTestPage(t *testing.T, s *Store, path string) *Page {
	t.Helper()
	p := &Page{Path: path, Hash: "abc123", LastCompiled: time.Now().Truncate(time.Second)}
	id, err := s.InsertPage(p)
	require.NoError(t, err)
	require.Positive(t, id)
	return p
}

func insertTestScope(t *testing.T, s *Store, pageID int64, lid int, name string, parent *int64) *Scope {
	t.Helper()
	sc := &Scope{PageID: pageID, LID: lid, Name: name, Tag: "div", ParentScopeID: parent}
	_, err := s.InsertScope(sc)
	require.NoError(t, err)
	return sc
}

func insertTestValue(t *testing.T, s *Store, pageID, scopeID int64, key, src string) *Value {
	t.Helper()
	v := &Value{PageID: pageID, ScopeID: scopeID, Key: key, Kind: KindExpression, Source: src}
	_, err := s.InsertValue(v)
	require.NoError(t, err)
	return v
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{"pages", "scopes", "values_", "refs", "diagnostics", "descriptors", "metadata"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestMigrate_WALMode(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	var mode string
	err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode)
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)
}

// =============================================================================
// Pages
// =============================================================================

func TestPage_InsertAndRetrieve(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	p := insertTestPage(t, s, "/site/index.html")
	require.NoError(t, s.UpdatePageStats(p.ID, 4, 1))

	got, err := s.PageByPath("/site/index.html")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "abc123", got.Hash)
	assert.Equal(t, 4, got.ScopeCount)
	assert.Equal(t, 1, got.ErrorCount)
}

func TestPage_ByPathNotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	got, err := s.PageByPath("/nonexistent.html")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPages_OrderedByPath(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	insertTestPage(t, s, "/b.html")
	insertTestPage(t, s, "/a.html")

	pages, err := s.Pages()
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "/a.html", pages[0].Path)
	assert.Equal(t, "/b.html", pages[1].Path)
}

// =============================================================================
// Scopes, values, refs
// =============================================================================

func TestScope_InsertAndQuery(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	p := insertTestPage(t, s, "/index.html")

	root := insertTestScope(t, s, p.ID, 0, "", nil)
	child := &Scope{PageID: p.ID, LID: 1, Name: "data", Isolate: true, Tag: "section", Line: 3, Col: 5, ParentScopeID: &root.ID}
	_, err := s.InsertScope(child)
	require.NoError(t, err)

	scopes, err := s.ScopesByPage(p.ID)
	require.NoError(t, err)
	require.Len(t, scopes, 2)
	assert.Equal(t, 0, scopes[0].LID)
	assert.Nil(t, scopes[0].ParentScopeID)
	assert.Equal(t, "data", scopes[1].Name)
	assert.True(t, scopes[1].Isolate)
	assert.Equal(t, "section", scopes[1].Tag)
	require.NotNil(t, scopes[1].ParentScopeID)
	assert.Equal(t, root.ID, *scopes[1].ParentScopeID)

	got, err := s.ScopeByLID(p.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, child.ID, got.ID)

	missing, err := s.ScopeByLID(p.ID, 9)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestScope_DuplicateLIDRejected(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	p := insertTestPage(t, s, "/index.html")
	insertTestScope(t, s, p.ID, 0, "", nil)

	_, err := s.InsertScope(&Scope{PageID: p.ID, LID: 0})
	require.Error(t, err)
}

func TestValues_AndDependencyEdges(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	p := insertTestPage(t, s, "/index.html")
	root := insertTestScope(t, s, p.ID, 0, "", nil)
	data := insertTestScope(t, s, p.ID, 1, "data", &root.ID)

	user := &Value{PageID: p.ID, ScopeID: data.ID, Key: "user", Kind: KindLiteral, Source: `"bob"`, Line: 1, Col: 20}
	_, err := s.InsertValue(user)
	require.NoError(t, err)
	text := insertTestValue(t, s, p.ID, root.ID, "text$0", "this.data.user")
	title := insertTestValue(t, s, p.ID, root.ID, "attr$title", "this.data.user")

	for _, v := range []*Value{text, title} {
		_, err := s.InsertRef(&Ref{ValueID: v.ID, TargetValueID: user.ID, Accessor: `this.data.$value("user")`})
		require.NoError(t, err)
	}

	vs, err := s.ValuesByScope(root.ID)
	require.NoError(t, err)
	require.Len(t, vs, 2)
	assert.Equal(t, "text$0", vs[0].Key)
	assert.Equal(t, "attr$title", vs[1].Key)

	all, err := s.ValuesByPage(p.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	got, err := s.ValueByKey(data.ID, "user")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, KindLiteral, got.Kind)
	assert.Equal(t, `"bob"`, got.Source)
	assert.Equal(t, 20, got.Col)

	none, err := s.ValueByKey(data.ID, "nope")
	require.NoError(t, err)
	assert.Nil(t, none)

	deps, err := s.Dependencies(text.ID)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, user.ID, deps[0].ID)

	dependents, err := s.Dependents(user.ID)
	require.NoError(t, err)
	require.Len(t, dependents, 2)
	assert.Equal(t, text.ID, dependents[0].ID)
	assert.Equal(t, title.ID, dependents[1].ID)

	refs, err := s.RefsFrom(title.ID)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, `this.data.$value("user")`, refs[0].Accessor)
}

func TestRef_ForeignKeyEnforced(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	_, err := s.InsertRef(&Ref{ValueID: 999, TargetValueID: 998})
	require.Error(t, err)
}

// =============================================================================
// Diagnostics, descriptors, metadata
// =============================================================================

func TestDiagnostics_SourceOrder(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	p := insertTestPage(t, s, "/index.html")

	_, err := s.InsertDiagnostic(&Diagnostic{PageID: p.ID, Severity: "warning", Code: "self-reference", Message: "late", Line: 9, Col: 1})
	require.NoError(t, err)
	_, err = s.InsertDiagnostic(&Diagnostic{PageID: p.ID, Severity: "error", Code: "ref-not-found", Message: "Reference not found: x", Line: 2, Col: 4})
	require.NoError(t, err)

	ds, err := s.DiagnosticsByPage(p.ID)
	require.NoError(t, err)
	require.Len(t, ds, 2)
	assert.Equal(t, "ref-not-found", ds[0].Code)
	assert.Equal(t, "Reference not found: x", ds[0].Message)
	assert.Equal(t, "self-reference", ds[1].Code)
}

func TestDescriptor_PutReplaces(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	p := insertTestPage(t, s, "/index.html")

	js, err := s.Descriptor(p.ID)
	require.NoError(t, err)
	assert.Empty(t, js)

	require.NoError(t, s.PutDescriptor(p.ID, `{"id":0}`))
	require.NoError(t, s.PutDescriptor(p.ID, `{"id":0,"name":"x"}`))
	js, err = s.Descriptor(p.ID)
	require.NoError(t, err)
	assert.Equal(t, `{"id":0,"name":"x"}`, js)
}

func TestMetadata(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	v, err := s.GetMetadata("scripts_hash")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetMetadata("scripts_hash", "a"))
	require.NoError(t, s.SetMetadata("scripts_hash", "b"))
	v, err = s.GetMetadata("scripts_hash")
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

// =============================================================================
// Deletion
// =============================================================================

func TestDeletePageData(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	p := insertTestPage(t, s, "/index.html")
	other := insertTestPage(t, s, "/other.html")

	for _, page := range []*Page{p, other} {
		root := insertTestScope(t, s, page.ID, 0, "", nil)
		child := insertTestScope(t, s, page.ID, 1, "c", &root.ID)
		a := insertTestValue(t, s, page.ID, child.ID, "a", "1")
		b := insertTestValue(t, s, page.ID, root.ID, "b", "this.c.a")
		_, err := s.InsertRef(&Ref{ValueID: b.ID, TargetValueID: a.ID})
		require.NoError(t, err)
		_, err = s.InsertDiagnostic(&Diagnostic{PageID: page.ID, Severity: "warning", Code: "self-reference"})
		require.NoError(t, err)
		require.NoError(t, s.PutDescriptor(page.ID, "{}"))
	}

	require.NoError(t, s.DeletePageData(p.ID))

	count := func(q string, args ...any) int {
		var n int
		require.NoError(t, s.db.QueryRow(q, args...).Scan(&n))
		return n
	}
	assert.Equal(t, 0, count("SELECT COUNT(*) FROM scopes WHERE page_id = ?", p.ID))
	assert.Equal(t, 0, count("SELECT COUNT(*) FROM values_ WHERE page_id = ?", p.ID))
	assert.Equal(t, 0, count("SELECT COUNT(*) FROM diagnostics WHERE page_id = ?", p.ID))
	assert.Equal(t, 0, count("SELECT COUNT(*) FROM descriptors WHERE page_id = ?", p.ID))
	assert.Equal(t, 1, count("SELECT COUNT(*) FROM refs"))

	// The page row and the other page's data survive.
	got, err := s.PageByPath("/index.html")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Equal(t, 2, count("SELECT COUNT(*) FROM scopes WHERE page_id = ?", other.ID))

	require.NoError(t, s.DeletePage(other.ID))
	got, err = s.PageByPath("/other.html")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, count("SELECT COUNT(*) FROM refs"))
}

// =============================================================================
// Hashes
// =============================================================================

func TestContentHash(t *testing.T) {
	t.Parallel()
	assert.Equal(t, ContentHash([]byte("<p>a</p>")), ContentHash([]byte("<p>a</p>")))
	assert.NotEqual(t, ContentHash([]byte("<p>a</p>")), ContentHash([]byte("<p>b</p>")))
	assert.Len(t, ContentHash(nil), 64)
}

func TestSourcesHash_Deterministic(t *testing.T) {
	t.Parallel()
	a := SourcesHash(map[string]string{"x.risor": "1", "y.risor": "2"})
	b := SourcesHash(map[string]string{"y.risor": "2", "x.risor": "1"})
	assert.Equal(t, a, b)

	// Moving bytes between names changes the hash.
	c := SourcesHash(map[string]string{"x.risor": "12", "y.risor": ""})
	assert.NotEqual(t, a, c)
}
