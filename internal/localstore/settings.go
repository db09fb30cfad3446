package localstore

import (
	"database/sql"
	"fmt"
)

// Setting keys. Each is independent of the cache and preview namespaces,
// so clearing one does not lose the others.
const (
	KeyLastOpened  = "last_opened"
	KeyRestoreLast = "restore_last"
	KeySortOrder   = "sort_order"
)

// GetSetting returns the value stored under key, or "" when unset.
func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.conn.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("localstore: get setting %s: %w", key, err)
	}
	return value, nil
}

// PutSetting stores value under key.
func (s *Store) PutSetting(key, value string) error {
	_, err := s.conn.Exec(`INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("localstore: put setting %s: %w", key, err)
	}
	return nil
}
