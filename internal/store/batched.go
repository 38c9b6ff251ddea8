package store

import "sync"

// BatchedStore buffers compile output in memory using fake (negative) IDs.
// It implements DataStore so the compiler's writer does not need to know
// whether it is hitting SQLite or an in-memory buffer.
//
// Thread safety: the mutex protects fake ID allocation and slice appends.
type BatchedStore struct {
	mu sync.Mutex

	Scopes      []Scope
	Values      []Value
	Refs        []Ref
	Diagnostics []Diagnostic
	Descriptors map[int64]string

	nextFakeID int64 // starts at -1, decrements
}

// Compile-time check: *BatchedStore satisfies DataStore.
var _ DataStore = (*BatchedStore)(nil)

// NewBatchedStore creates an empty BatchedStore.
func NewBatchedStore() *BatchedStore {
	return &BatchedStore{
		Descriptors: map[int64]string{},
		nextFakeID:  -1,
	}
}

func (b *BatchedStore) allocFakeID() int64 {
	id := b.nextFakeID
	b.nextFakeID--
	return id
}

func (b *BatchedStore) InsertScope(sc *Scope) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	sc.ID = fakeID
	b.Scopes = append(b.Scopes, *sc)
	return fakeID, nil
}

func (b *BatchedStore) InsertValue(v *Value) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	v.ID = fakeID
	b.Values = append(b.Values, *v)
	return fakeID, nil
}

func (b *BatchedStore) InsertRef(r *Ref) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	r.ID = fakeID
	b.Refs = append(b.Refs, *r)
	return fakeID, nil
}

func (b *BatchedStore) InsertDiagnostic(d *Diagnostic) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	d.ID = fakeID
	b.Diagnostics = append(b.Diagnostics, *d)
	return fakeID, nil
}

func (b *BatchedStore) PutDescriptor(pageID int64, json string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Descriptors[pageID] = json
	return nil
}

// Len reports the number of buffered rows.
func (b *BatchedStore) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Scopes) + len(b.Values) + len(b.Refs) + len(b.Diagnostics) + len(b.Descriptors)
}
