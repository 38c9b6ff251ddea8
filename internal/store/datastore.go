package store

// DataStore is the interface for compile-phase writes. Both Store (direct
// SQLite) and BatchedStore (in-memory buffering for parallel compilation)
// implement this interface.
type DataStore interface {
	// Inserts return the assigned ID. Scope parents and ref endpoints may
	// name IDs returned earlier by the same DataStore.
	InsertScope(sc *Scope) (int64, error)
	InsertValue(v *Value) (int64, error)
	InsertRef(r *Ref) (int64, error)
	InsertDiagnostic(d *Diagnostic) (int64, error)
	PutDescriptor(pageID int64, json string) error
}

// Compile-time check: *Store satisfies DataStore.
var _ DataStore = (*Store)(nil)
