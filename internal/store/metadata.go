package store

import (
	"database/sql"
	"fmt"
)

// GetMeta reads an engine-state value. The second return is false when the
// key has never been written.
func (db *DB) GetMeta(key string) (string, bool, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get metadata %s: %w", key, MapError(err))
	}
	return value, true, nil
}

// SetMeta writes an engine-state value.
func (db *DB) SetMeta(key, value string) error {
	return setMeta(db.DB, key, value)
}

func setMeta(q querier, key, value string) error {
	_, err := q.Exec(`
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set metadata %s: %w", key, MapError(err))
	}
	return nil
}
