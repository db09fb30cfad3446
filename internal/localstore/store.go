// Package localstore provides SQLite-backed client-local persistence for
// the content cache, editor preview snapshots, and UI settings. Each
// concern lives in its own namespace with an independent schema version:
// bumping one version clears that namespace only.
package localstore

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Current schema versions. Bumping a value invalidates the whole
// namespace atomically on the next Open.
const (
	cacheVersion    = 1
	previewVersion  = 1
	settingsVersion = 1
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS ns_versions (
	ns      TEXT PRIMARY KEY,
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS cache_entries (
	path          TEXT PRIMARY KEY,
	content       TEXT NOT NULL DEFAULT '',
	etag          TEXT NOT NULL DEFAULT '',
	last_modified TEXT NOT NULL DEFAULT '',
	cached_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS previews (
	path TEXT PRIMARY KEY,
	html TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
);
`

// Store wraps a sql.DB with namespaced key/value operations.
type Store struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database, applies the schema, and
// clears any namespace whose stored version differs from the current one.
func Open(dsn string) (*Store, error) {
	return open(dsn, map[string]int{
		"cache":    cacheVersion,
		"preview":  previewVersion,
		"settings": settingsVersion,
	})
}

func open(dsn string, versions map[string]int) (*Store, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("localstore: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("localstore: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("localstore: apply schema: %w", err)
	}
	for ns, v := range versions {
		if err := migrateNamespace(conn, ns, v); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return &Store{conn: conn}, nil
}

// namespace tables, keyed by namespace name.
var namespaceTables = map[string]string{
	"cache":    "cache_entries",
	"preview":  "previews",
	"settings": "settings",
}

// migrateNamespace clears a namespace whose persisted version does not
// match want, then records the current version.
func migrateNamespace(conn *sql.DB, ns string, want int) error {
	var have int
	err := conn.QueryRow(`SELECT version FROM ns_versions WHERE ns = ?`, ns).Scan(&have)
	switch {
	case err == sql.ErrNoRows:
		have = 0
	case err != nil:
		return fmt.Errorf("localstore: read version for %s: %w", ns, err)
	}
	if have != want {
		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("localstore: begin migration for %s: %w", ns, err)
		}
		defer tx.Rollback()
		if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM %s`, namespaceTables[ns])); err != nil {
			return fmt.Errorf("localstore: clear %s: %w", ns, err)
		}
		if _, err := tx.Exec(`INSERT INTO ns_versions (ns, version) VALUES (?, ?)
			ON CONFLICT(ns) DO UPDATE SET version = excluded.version`, ns, want); err != nil {
			return fmt.Errorf("localstore: record version for %s: %w", ns, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("localstore: commit migration for %s: %w", ns, err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}
