package pagelogic

import (
	"fmt"

	"github.com/jward/pagelogic/internal/descriptor"
	"github.com/jward/pagelogic/internal/store"
)

// QueryBuilder provides a query API over compiled pages in the Store.
type QueryBuilder struct {
	store *store.Store
}

// Location is a source position within a page.
type Location struct {
	File string
	Line int
	Col  int
}

// ValueInfo is a stored value addressed by its page and scope id.
type ValueInfo struct {
	Location
	ScopeID   int
	ScopeName string
	Key       string
	Kind      string
	Source    string
}

// String renders v as "scope 1 (name).key".
func (v ValueInfo) String() string {
	if v.ScopeName == "" {
		return fmt.Sprintf("scope %d.%s", v.ScopeID, v.Key)
	}
	return fmt.Sprintf("scope %d (%s).%s", v.ScopeID, v.ScopeName, v.Key)
}

// Pages returns every compiled page ordered by path.
func (q *QueryBuilder) Pages() ([]*PageRecord, error) {
	pages, err := q.store.Pages()
	if err != nil {
		return nil, fmt.Errorf("pages: %w", err)
	}
	return pages, nil
}

// Page returns the page compiled from path, or nil.
func (q *QueryBuilder) Page(path string) (*PageRecord, error) {
	p, err := q.store.PageByPath(path)
	if err != nil {
		return nil, fmt.Errorf("page: %w", err)
	}
	return p, nil
}

// Diagnostics returns the compile diagnostics of a page in source order.
func (q *QueryBuilder) Diagnostics(path string) ([]*DiagnosticRecord, error) {
	p, err := q.store.PageByPath(path)
	if err != nil {
		return nil, fmt.Errorf("diagnostics: lookup page: %w", err)
	}
	if p == nil {
		return nil, nil
	}
	ds, err := q.store.DiagnosticsByPage(p.ID)
	if err != nil {
		return nil, fmt.Errorf("diagnostics: %w", err)
	}
	return ds, nil
}

// Scopes returns the scopes of a page in id order.
func (q *QueryBuilder) Scopes(path string) ([]*ScopeRecord, error) {
	p, err := q.store.PageByPath(path)
	if err != nil {
		return nil, fmt.Errorf("scopes: lookup page: %w", err)
	}
	if p == nil {
		return nil, nil
	}
	scopes, err := q.store.ScopesByPage(p.ID)
	if err != nil {
		return nil, fmt.Errorf("scopes: %w", err)
	}
	return scopes, nil
}

// Values returns the values declared on scope scopeID of a page.
func (q *QueryBuilder) Values(path string, scopeID int) ([]ValueInfo, error) {
	vs, err := q.queryValues(path,
		`SELECT `+valueInfoCols+` FROM values_ v JOIN scopes s ON s.id = v.scope_id
		 WHERE v.page_id = ? AND s.lid = ? ORDER BY v.id`,
		scopeID,
	)
	if err != nil {
		return nil, fmt.Errorf("values: %w", err)
	}
	return vs, nil
}

// Dependencies returns the values read by value key of scope scopeID.
func (q *QueryBuilder) Dependencies(path string, scopeID int, key string) ([]ValueInfo, error) {
	vs, err := q.queryValues(path,
		`SELECT `+valueInfoCols+` FROM refs r
		 JOIN values_ src ON src.id = r.value_id
		 JOIN scopes ss ON ss.id = src.scope_id
		 JOIN values_ v ON v.id = r.target_value_id
		 JOIN scopes s ON s.id = v.scope_id
		 WHERE src.page_id = ? AND ss.lid = ? AND src.key = ? ORDER BY r.id`,
		scopeID, key,
	)
	if err != nil {
		return nil, fmt.Errorf("dependencies: %w", err)
	}
	return vs, nil
}

// Dependents returns the values that read value key of scope scopeID.
func (q *QueryBuilder) Dependents(path string, scopeID int, key string) ([]ValueInfo, error) {
	vs, err := q.queryValues(path,
		`SELECT `+valueInfoCols+` FROM refs r
		 JOIN values_ dst ON dst.id = r.target_value_id
		 JOIN scopes ds ON ds.id = dst.scope_id
		 JOIN values_ v ON v.id = r.value_id
		 JOIN scopes s ON s.id = v.scope_id
		 WHERE dst.page_id = ? AND ds.lid = ? AND dst.key = ? ORDER BY v.id`,
		scopeID, key,
	)
	if err != nil {
		return nil, fmt.Errorf("dependents: %w", err)
	}
	return vs, nil
}

// Descriptor returns the stored descriptor of a page, or nil when the page
// is unknown or failed to compile.
func (q *QueryBuilder) Descriptor(path string) (*descriptor.Scope, error) {
	p, err := q.store.PageByPath(path)
	if err != nil {
		return nil, fmt.Errorf("descriptor: lookup page: %w", err)
	}
	if p == nil {
		return nil, nil
	}
	js, err := q.store.Descriptor(p.ID)
	if err != nil {
		return nil, fmt.Errorf("descriptor: %w", err)
	}
	if js == "" {
		return nil, nil
	}
	return descriptor.Decode([]byte(js))
}

const valueInfoCols = "s.lid, s.name, v.key, v.kind, v.source, v.line, v.col"

// queryValues runs query with the page id of path prepended to args.
func (q *QueryBuilder) queryValues(path, query string, args ...any) ([]ValueInfo, error) {
	p, err := q.store.PageByPath(path)
	if err != nil {
		return nil, fmt.Errorf("lookup page: %w", err)
	}
	if p == nil {
		return nil, nil
	}
	rows, err := q.store.DB().Query(query, append([]any{p.ID}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ValueInfo
	for rows.Next() {
		v := ValueInfo{Location: Location{File: path}}
		var name, src *string
		if err := rows.Scan(&v.ScopeID, &name, &v.Key, &v.Kind, &src, &v.Line, &v.Col); err != nil {
			return nil, fmt.Errorf("scan value: %w", err)
		}
		if name != nil {
			v.ScopeName = *name
		}
		if src != nil {
			v.Source = *src
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
