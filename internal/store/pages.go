package store

import (
	"database/sql"
	"fmt"
)

// --- Page operations ---

func (s *Store) InsertPage(p *Page) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO pages (path, hash, scope_count, error_count, last_compiled) VALUES (?, ?, ?, ?, ?)",
		p.Path, p.Hash, p.ScopeCount, p.ErrorCount, p.LastCompiled,
	)
	if err != nil {
		return 0, fmt.Errorf("insert page: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	p.ID = id
	return id, nil
}

// UpdatePageStats records the outcome of compiling a page.
func (s *Store) UpdatePageStats(pageID int64, scopeCount, errorCount int) error {
	_, err := s.db.Exec(
		"UPDATE pages SET scope_count = ?, error_count = ? WHERE id = ?",
		scopeCount, errorCount, pageID,
	)
	if err != nil {
		return fmt.Errorf("update page stats: %w", err)
	}
	return nil
}

const pageCols = "id, path, hash, scope_count, error_count, last_compiled"

func scanPage(scanner interface{ Scan(...any) error }) (*Page, error) {
	p := &Page{}
	if err := scanner.Scan(&p.ID, &p.Path, &p.Hash, &p.ScopeCount, &p.ErrorCount, &p.LastCompiled); err != nil {
		return nil, err
	}
	return p, nil
}

// PageByPath returns the page stored for path, or nil.
func (s *Store) PageByPath(path string) (*Page, error) {
	p, err := scanPage(s.db.QueryRow("SELECT "+pageCols+" FROM pages WHERE path = ?", path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("page by path: %w", err)
	}
	return p, nil
}

// Pages returns every stored page ordered by path.
func (s *Store) Pages() ([]*Page, error) {
	rows, err := s.db.Query("SELECT " + pageCols + " FROM pages ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("pages: %w", err)
	}
	defer rows.Close()
	var pages []*Page
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// --- Scope operations ---

func (s *Store) InsertScope(sc *Scope) (int64, error) {
	id, err := insertScopeTx(s.db, sc)
	if err != nil {
		return 0, err
	}
	sc.ID = id
	return id, nil
}

const scopeCols = "id, page_id, lid, name, isolate, tag, line, col, parent_scope_id"

func scanScope(scanner interface{ Scan(...any) error }) (*Scope, error) {
	sc := &Scope{}
	var name, tag sql.NullString
	err := scanner.Scan(&sc.ID, &sc.PageID, &sc.LID, &name, &sc.Isolate, &tag, &sc.Line, &sc.Col, &sc.ParentScopeID)
	if err != nil {
		return nil, err
	}
	sc.Name = name.String
	sc.Tag = tag.String
	return sc, nil
}

// ScopesByPage returns the scopes of a page in id (document) order.
func (s *Store) ScopesByPage(pageID int64) ([]*Scope, error) {
	rows, err := s.db.Query("SELECT "+scopeCols+" FROM scopes WHERE page_id = ? ORDER BY lid", pageID)
	if err != nil {
		return nil, fmt.Errorf("scopes by page: %w", err)
	}
	defer rows.Close()
	var scopes []*Scope
	for rows.Next() {
		sc, err := scanScope(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scope: %w", err)
		}
		scopes = append(scopes, sc)
	}
	return scopes, rows.Err()
}

// ScopeByLID returns the scope of a page with the given markup id, or nil.
func (s *Store) ScopeByLID(pageID int64, lid int) (*Scope, error) {
	sc, err := scanScope(s.db.QueryRow("SELECT "+scopeCols+" FROM scopes WHERE page_id = ? AND lid = ?", pageID, lid))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scope by lid: %w", err)
	}
	return sc, nil
}

// --- Value operations ---

func (s *Store) InsertValue(v *Value) (int64, error) {
	id, err := insertValueTx(s.db, v)
	if err != nil {
		return 0, err
	}
	v.ID = id
	return id, nil
}

// ValueCols is the column list for value queries, exported for use by
// QueryBuilder.
const ValueCols = "id, page_id, scope_id, key, kind, source, line, col"

// ScanValueRow scans a single row into a Value. Exported for use by
// QueryBuilder.
func ScanValueRow(scanner interface{ Scan(...any) error }) (*Value, error) {
	v := &Value{}
	var src sql.NullString
	if err := scanner.Scan(&v.ID, &v.PageID, &v.ScopeID, &v.Key, &v.Kind, &src, &v.Line, &v.Col); err != nil {
		return nil, err
	}
	v.Source = src.String
	return v, nil
}

func (s *Store) queryValues(query string, args ...any) ([]*Value, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var values []*Value
	for rows.Next() {
		v, err := ScanValueRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan value: %w", err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// ValuesByScope returns the values of a scope in declaration order.
func (s *Store) ValuesByScope(scopeID int64) ([]*Value, error) {
	vs, err := s.queryValues("SELECT "+ValueCols+" FROM values_ WHERE scope_id = ? ORDER BY id", scopeID)
	if err != nil {
		return nil, fmt.Errorf("values by scope: %w", err)
	}
	return vs, nil
}

// ValuesByPage returns every value of a page.
func (s *Store) ValuesByPage(pageID int64) ([]*Value, error) {
	vs, err := s.queryValues("SELECT "+ValueCols+" FROM values_ WHERE page_id = ? ORDER BY id", pageID)
	if err != nil {
		return nil, fmt.Errorf("values by page: %w", err)
	}
	return vs, nil
}

// ValueByKey returns the value bound to key on a scope, or nil.
func (s *Store) ValueByKey(scopeID int64, key string) (*Value, error) {
	vs, err := s.queryValues("SELECT "+ValueCols+" FROM values_ WHERE scope_id = ? AND key = ?", scopeID, key)
	if err != nil {
		return nil, fmt.Errorf("value by key: %w", err)
	}
	if len(vs) == 0 {
		return nil, nil
	}
	return vs[0], nil
}

// --- Ref operations ---

func (s *Store) InsertRef(r *Ref) (int64, error) {
	id, err := insertRefTx(s.db, r)
	if err != nil {
		return 0, err
	}
	r.ID = id
	return id, nil
}

// Dependencies returns the values that valueID reads.
func (s *Store) Dependencies(valueID int64) ([]*Value, error) {
	vs, err := s.queryValues(
		"SELECT "+prefixCols("v", ValueCols)+" FROM refs r JOIN values_ v ON v.id = r.target_value_id WHERE r.value_id = ? ORDER BY r.id",
		valueID,
	)
	if err != nil {
		return nil, fmt.Errorf("dependencies: %w", err)
	}
	return vs, nil
}

// Dependents returns the values that read valueID.
func (s *Store) Dependents(valueID int64) ([]*Value, error) {
	vs, err := s.queryValues(
		"SELECT "+prefixCols("v", ValueCols)+" FROM refs r JOIN values_ v ON v.id = r.value_id WHERE r.target_value_id = ? ORDER BY v.id",
		valueID,
	)
	if err != nil {
		return nil, fmt.Errorf("dependents: %w", err)
	}
	return vs, nil
}

// RefsFrom returns the dependency edges leaving valueID.
func (s *Store) RefsFrom(valueID int64) ([]*Ref, error) {
	rows, err := s.db.Query("SELECT id, value_id, target_value_id, accessor FROM refs WHERE value_id = ? ORDER BY id", valueID)
	if err != nil {
		return nil, fmt.Errorf("refs from: %w", err)
	}
	defer rows.Close()
	var refs []*Ref
	for rows.Next() {
		r := &Ref{}
		var acc sql.NullString
		if err := rows.Scan(&r.ID, &r.ValueID, &r.TargetValueID, &acc); err != nil {
			return nil, fmt.Errorf("scan ref: %w", err)
		}
		r.Accessor = acc.String
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// --- Diagnostic operations ---

func (s *Store) InsertDiagnostic(d *Diagnostic) (int64, error) {
	id, err := insertDiagnosticTx(s.db, d)
	if err != nil {
		return 0, err
	}
	d.ID = id
	return id, nil
}

// DiagnosticsByPage returns the diagnostics of a page in source order.
func (s *Store) DiagnosticsByPage(pageID int64) ([]*Diagnostic, error) {
	rows, err := s.db.Query(
		"SELECT id, page_id, severity, code, message, line, col FROM diagnostics WHERE page_id = ? ORDER BY line, col, id",
		pageID,
	)
	if err != nil {
		return nil, fmt.Errorf("diagnostics by page: %w", err)
	}
	defer rows.Close()
	var ds []*Diagnostic
	for rows.Next() {
		d := &Diagnostic{}
		var msg sql.NullString
		if err := rows.Scan(&d.ID, &d.PageID, &d.Severity, &d.Code, &msg, &d.Line, &d.Col); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		d.Message = msg.String
		ds = append(ds, d)
	}
	return ds, rows.Err()
}

// --- Descriptor operations ---

// PutDescriptor stores the JSON descriptor of a page, replacing any previous
// one.
func (s *Store) PutDescriptor(pageID int64, json string) error {
	return putDescriptorTx(s.db, pageID, json)
}

// Descriptor returns the JSON descriptor of a page, or "" when the page has
// none (it failed to compile).
func (s *Store) Descriptor(pageID int64) (string, error) {
	var js string
	err := s.db.QueryRow("SELECT json FROM descriptors WHERE page_id = ?", pageID).Scan(&js)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("descriptor: %w", err)
	}
	return js, nil
}
