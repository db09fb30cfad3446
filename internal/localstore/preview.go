package localstore

import (
	"database/sql"
	"fmt"
)

// GetPreview returns the serialized markup snapshot for path, if present.
// Snapshots are best-effort; absence is not an error.
func (s *Store) GetPreview(path string) (string, bool, error) {
	var html string
	err := s.conn.QueryRow(`SELECT html FROM previews WHERE path = ?`, path).Scan(&html)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("localstore: get preview %s: %w", path, err)
	}
	return html, true, nil
}

// PutPreview stores the rendered markup snapshot for path.
func (s *Store) PutPreview(path, html string) error {
	_, err := s.conn.Exec(`INSERT INTO previews (path, html) VALUES (?, ?)
		ON CONFLICT(path) DO UPDATE SET html = excluded.html`, path, html)
	if err != nil {
		return fmt.Errorf("localstore: put preview %s: %w", path, err)
	}
	return nil
}

// DeletePreview removes the snapshot for path, if any.
func (s *Store) DeletePreview(path string) error {
	if _, err := s.conn.Exec(`DELETE FROM previews WHERE path = ?`, path); err != nil {
		return fmt.Errorf("localstore: delete preview %s: %w", path, err)
	}
	return nil
}
