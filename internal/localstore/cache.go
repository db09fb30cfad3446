package localstore

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// CacheEntry is the last-known content of a remote file plus the
// validators needed for a conditional re-fetch. Entries are replaced
// wholesale on a fresh fetch, never merged, and are not expired: staleness
// is discovered by revalidation, not predicted.
type CacheEntry struct {
	Path         string
	Content      string
	ETag         string
	LastModified string // HTTP-date string, may be empty
	CachedAt     time.Time
}

// GetEntry returns the cache entry for path, or false when absent.
func (s *Store) GetEntry(path string) (*CacheEntry, bool, error) {
	e := CacheEntry{Path: path}
	err := s.conn.QueryRow(
		`SELECT content, etag, last_modified, cached_at FROM cache_entries WHERE path = ?`,
		path,
	).Scan(&e.Content, &e.ETag, &e.LastModified, &e.CachedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("localstore: get cache entry %s: %w", path, err)
	}
	return &e, true, nil
}

// PutEntry inserts or wholly replaces the entry for e.Path.
func (s *Store) PutEntry(e CacheEntry) error {
	if e.CachedAt.IsZero() {
		e.CachedAt = time.Now()
	}
	_, err := s.conn.Exec(`INSERT INTO cache_entries (path, content, etag, last_modified, cached_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			content = excluded.content,
			etag = excluded.etag,
			last_modified = excluded.last_modified,
			cached_at = excluded.cached_at`,
		e.Path, e.Content, e.ETag, e.LastModified, e.CachedAt)
	if err != nil {
		return fmt.Errorf("localstore: put cache entry %s: %w", e.Path, err)
	}
	return nil
}

// TouchEntryValidators updates only the revalidation metadata for path,
// leaving content untouched. Used when the remote reports a change whose
// body is byte-identical to the cached copy.
func (s *Store) TouchEntryValidators(path, etag, lastModified string) error {
	_, err := s.conn.Exec(
		`UPDATE cache_entries SET etag = ?, last_modified = ?, cached_at = ? WHERE path = ?`,
		etag, lastModified, time.Now(), path)
	if err != nil {
		return fmt.Errorf("localstore: touch cache entry %s: %w", path, err)
	}
	return nil
}

// DeleteEntry removes the entry for path, if any.
func (s *Store) DeleteEntry(path string) error {
	if _, err := s.conn.Exec(`DELETE FROM cache_entries WHERE path = ?`, path); err != nil {
		return fmt.Errorf("localstore: delete cache entry %s: %w", path, err)
	}
	return nil
}

// DeleteSubtree removes the entries and preview snapshots for dir and
// everything beneath it, after a confirmed remote directory delete.
func (s *Store) DeleteSubtree(dir string) error {
	like := strings.ReplaceAll(strings.ReplaceAll(dir, `\`, `\\`), "%", `\%`)
	like = strings.ReplaceAll(like, "_", `\_`) + "/%"
	for _, table := range []string{"cache_entries", "previews"} {
		if _, err := s.conn.Exec(
			fmt.Sprintf(`DELETE FROM %s WHERE path = ? OR path LIKE ? ESCAPE '\'`, table),
			dir, like); err != nil {
			return fmt.Errorf("localstore: delete subtree %s: %w", dir, err)
		}
	}
	return nil
}

// RenameEntry re-keys the entry at from to to, dropping any entry that
// already sits at to.
func (s *Store) RenameEntry(from, to string) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("localstore: rename cache entry: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM cache_entries WHERE path = ?`, to); err != nil {
		return fmt.Errorf("localstore: rename cache entry: %w", err)
	}
	if _, err := tx.Exec(`UPDATE cache_entries SET path = ? WHERE path = ?`, to, from); err != nil {
		return fmt.Errorf("localstore: rename cache entry: %w", err)
	}
	return tx.Commit()
}
