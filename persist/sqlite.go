package persist

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteBackend keeps one row per persisted key.
type SQLiteBackend struct {
	db *sql.DB
}

func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) Load(key string) ([]byte, bool, error) {
	var data []byte
	err := b.db.QueryRow(`SELECT value FROM persistent_storage WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (b *SQLiteBackend) Save(key string, data []byte) error {
	_, err := b.db.Exec(`
		INSERT INTO persistent_storage (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, data, time.Now().UnixNano(),
	)
	return err
}

func (b *SQLiteBackend) Delete(key string) error {
	_, err := b.db.Exec(`DELETE FROM persistent_storage WHERE key = ?`, key)
	return err
}

func (b *SQLiteBackend) Keys() ([]string, error) {
	rows, err := b.db.Query(`SELECT key FROM persistent_storage ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
