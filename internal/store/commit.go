package store

import (
	"database/sql"
	"fmt"
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// CommitBatch inserts all buffered data from a BatchedStore into SQLite
// within a single transaction. Fake (negative) IDs are remapped to real
// IDs, and all FK references within the batch are rewritten using the
// fakeToReal mapping.
//
// Insert order respects FK dependencies:
//  1. Scopes (depend on page_id, parent_scope_id)
//  2. Values (depend on page_id, scope_id)
//  3. Refs (depend on value_id, target_value_id)
//  4. Diagnostics (depend on page_id only)
//  5. Descriptors (depend on page_id only)
func (s *Store) CommitBatch(batch *BatchedStore) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	fakeToReal := make(map[int64]int64)
	remap := func(id int64) int64 {
		if id < 0 {
			return fakeToReal[id]
		}
		return id
	}

	// 1. Scopes. Parents precede children in the batch.
	for _, sc := range batch.Scopes {
		if sc.ParentScopeID != nil && *sc.ParentScopeID < 0 {
			realID := fakeToReal[*sc.ParentScopeID]
			sc.ParentScopeID = &realID
		}
		realID, err := insertScopeTx(tx, &sc)
		if err != nil {
			return fmt.Errorf("commit batch: scope %d: %w", sc.LID, err)
		}
		fakeToReal[sc.ID] = realID
	}

	// 2. Values
	for _, v := range batch.Values {
		v.ScopeID = remap(v.ScopeID)
		realID, err := insertValueTx(tx, &v)
		if err != nil {
			return fmt.Errorf("commit batch: value %q: %w", v.Key, err)
		}
		fakeToReal[v.ID] = realID
	}

	// 3. Refs
	for _, r := range batch.Refs {
		r.ValueID = remap(r.ValueID)
		r.TargetValueID = remap(r.TargetValueID)
		if _, err := insertRefTx(tx, &r); err != nil {
			return fmt.Errorf("commit batch: ref %q: %w", r.Accessor, err)
		}
	}

	// 4. Diagnostics
	for _, d := range batch.Diagnostics {
		if _, err := insertDiagnosticTx(tx, &d); err != nil {
			return fmt.Errorf("commit batch: diagnostic %s: %w", d.Code, err)
		}
	}

	// 5. Descriptors
	for pageID, js := range batch.Descriptors {
		if err := putDescriptorTx(tx, pageID, js); err != nil {
			return fmt.Errorf("commit batch: descriptor: %w", err)
		}
	}

	return tx.Commit()
}

func lastID(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func insertScopeTx(tx execer, sc *Scope) (int64, error) {
	id, err := lastID(tx.Exec(
		`INSERT INTO scopes (page_id, lid, name, isolate, tag, line, col, parent_scope_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.PageID, sc.LID, sc.Name, sc.Isolate, sc.Tag, sc.Line, sc.Col, sc.ParentScopeID,
	))
	if err != nil {
		return 0, fmt.Errorf("insert scope: %w", err)
	}
	return id, nil
}

func insertValueTx(tx execer, v *Value) (int64, error) {
	id, err := lastID(tx.Exec(
		`INSERT INTO values_ (page_id, scope_id, key, kind, source, line, col)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.PageID, v.ScopeID, v.Key, v.Kind, v.Source, v.Line, v.Col,
	))
	if err != nil {
		return 0, fmt.Errorf("insert value: %w", err)
	}
	return id, nil
}

func insertRefTx(tx execer, r *Ref) (int64, error) {
	id, err := lastID(tx.Exec(
		"INSERT INTO refs (value_id, target_value_id, accessor) VALUES (?, ?, ?)",
		r.ValueID, r.TargetValueID, r.Accessor,
	))
	if err != nil {
		return 0, fmt.Errorf("insert ref: %w", err)
	}
	return id, nil
}

func insertDiagnosticTx(tx execer, d *Diagnostic) (int64, error) {
	id, err := lastID(tx.Exec(
		`INSERT INTO diagnostics (page_id, severity, code, message, line, col)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		d.PageID, d.Severity, d.Code, d.Message, d.Line, d.Col,
	))
	if err != nil {
		return 0, fmt.Errorf("insert diagnostic: %w", err)
	}
	return id, nil
}

func putDescriptorTx(tx execer, pageID int64, json string) error {
	_, err := tx.Exec(
		"INSERT INTO descriptors (page_id, json) VALUES (?, ?) ON CONFLICT(page_id) DO UPDATE SET json = excluded.json",
		pageID, json,
	)
	if err != nil {
		return fmt.Errorf("put descriptor: %w", err)
	}
	return nil
}
