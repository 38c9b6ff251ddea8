package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for compiled pages.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS pages (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  hash            TEXT,
  scope_count     INTEGER DEFAULT 0,
  error_count     INTEGER DEFAULT 0,
  last_compiled   TIMESTAMP
);

CREATE TABLE IF NOT EXISTS scopes (
  id              INTEGER PRIMARY KEY,
  page_id         INTEGER NOT NULL REFERENCES pages(id),
  lid             INTEGER NOT NULL,
  name            TEXT,
  isolate         BOOLEAN DEFAULT FALSE,
  tag             TEXT,
  line            INTEGER,
  col             INTEGER,
  parent_scope_id INTEGER REFERENCES scopes(id)
);

CREATE TABLE IF NOT EXISTS values_ (
  id              INTEGER PRIMARY KEY,
  page_id         INTEGER NOT NULL REFERENCES pages(id),
  scope_id        INTEGER NOT NULL REFERENCES scopes(id),
  key             TEXT NOT NULL,
  kind            TEXT NOT NULL,
  source          TEXT,
  line            INTEGER,
  col             INTEGER
);

CREATE TABLE IF NOT EXISTS refs (
  id              INTEGER PRIMARY KEY,
  value_id        INTEGER NOT NULL REFERENCES values_(id),
  target_value_id INTEGER NOT NULL REFERENCES values_(id),
  accessor        TEXT
);

CREATE TABLE IF NOT EXISTS diagnostics (
  id              INTEGER PRIMARY KEY,
  page_id         INTEGER NOT NULL REFERENCES pages(id),
  severity        TEXT NOT NULL,
  code            TEXT NOT NULL,
  message         TEXT,
  line            INTEGER,
  col             INTEGER
);

CREATE TABLE IF NOT EXISTS descriptors (
  page_id         INTEGER PRIMARY KEY REFERENCES pages(id),
  json            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT
);

CREATE INDEX IF NOT EXISTS idx_scopes_page ON scopes(page_id);
CREATE INDEX IF NOT EXISTS idx_scopes_parent ON scopes(parent_scope_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_scopes_page_lid ON scopes(page_id, lid);
CREATE INDEX IF NOT EXISTS idx_values_page ON values_(page_id);
CREATE INDEX IF NOT EXISTS idx_values_scope ON values_(scope_id);
CREATE INDEX IF NOT EXISTS idx_values_key ON values_(key);
CREATE INDEX IF NOT EXISTS idx_refs_value ON refs(value_id);
CREATE INDEX IF NOT EXISTS idx_refs_target ON refs(target_value_id);
CREATE INDEX IF NOT EXISTS idx_diagnostics_page ON diagnostics(page_id);
CREATE INDEX IF NOT EXISTS idx_diagnostics_code ON diagnostics(code);
`

// DeletePageData transactionally removes everything compiled from a page,
// keeping the page row. Deletes in reverse-dependency order to respect FK
// constraints.
func (s *Store) DeletePageData(pageID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		"DELETE FROM refs WHERE value_id IN (SELECT id FROM values_ WHERE page_id = ?)",
		"DELETE FROM values_ WHERE page_id = ?",
		"UPDATE scopes SET parent_scope_id = NULL WHERE page_id = ?",
		"DELETE FROM scopes WHERE page_id = ?",
		"DELETE FROM diagnostics WHERE page_id = ?",
		"DELETE FROM descriptors WHERE page_id = ?",
	} {
		if _, err := tx.Exec(q, pageID); err != nil {
			return fmt.Errorf("delete page data: %w", err)
		}
	}
	return tx.Commit()
}

// DeletePage removes a page and all of its data.
func (s *Store) DeletePage(pageID int64) error {
	if err := s.DeletePageData(pageID); err != nil {
		return err
	}
	if _, err := s.db.Exec("DELETE FROM pages WHERE id = ?", pageID); err != nil {
		return fmt.Errorf("delete page: %w", err)
	}
	return nil
}

// GetMetadata returns the value stored under key, or "" when absent.
func (s *Store) GetMetadata(key string) (string, error) {
	var v sql.NullString
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %s: %w", key, err)
	}
	return v.String, nil
}

// SetMetadata stores value under key, replacing any previous value.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set metadata %s: %w", key, err)
	}
	return nil
}
