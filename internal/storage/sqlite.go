package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the embedded, single-node Store backend: one table,
// one row per key, guarded by a version column for compare-and-swap.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) a SQLite database at path
// and ensures the kv table exists.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writes; avoid pool contention on a single file.

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS kv (
			key     TEXT PRIMARY KEY,
			value   BLOB NOT NULL,
			version INTEGER NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: create kv table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (Record, bool, error) {
	var rec Record
	err := s.db.QueryRowContext(ctx, `SELECT value, version FROM kv WHERE key = ?`, key).
		Scan(&rec.Value, &rec.Version)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("storage: sqlite get: %w", err)
	}
	return rec, true, nil
}

func (s *SQLiteStore) CompareAndSwap(ctx context.Context, key string, expectedVersion int64, value []byte) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage: sqlite begin tx: %w", err)
	}
	defer tx.Rollback()

	var currentVersion int64
	err = tx.QueryRowContext(ctx, `SELECT version FROM kv WHERE key = ?`, key).Scan(&currentVersion)
	switch {
	case err == sql.ErrNoRows:
		if expectedVersion != 0 {
			return 0, ErrVersionMismatch
		}
		newVersion := int64(1)
		if _, err := tx.ExecContext(ctx, `INSERT INTO kv (key, value, version) VALUES (?, ?, ?)`, key, value, newVersion); err != nil {
			return 0, fmt.Errorf("storage: sqlite insert: %w", err)
		}
		return newVersion, tx.Commit()
	case err != nil:
		return 0, fmt.Errorf("storage: sqlite read version: %w", err)
	}

	if currentVersion != expectedVersion {
		return 0, ErrVersionMismatch
	}
	newVersion := currentVersion + 1
	if _, err := tx.ExecContext(ctx, `UPDATE kv SET value = ?, version = ? WHERE key = ?`, value, newVersion, key); err != nil {
		return 0, fmt.Errorf("storage: sqlite update: %w", err)
	}
	return newVersion, tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
