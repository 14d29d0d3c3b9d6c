package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the shared-deployment Store backend, for multiple
// forged processes coordinating through one database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and ensures the kv table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS kv (
			key     TEXT PRIMARY KEY,
			value   BYTEA NOT NULL,
			version BIGINT NOT NULL
		)`); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: create kv table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (Record, bool, error) {
	var rec Record
	err := s.pool.QueryRow(ctx, `SELECT value, version FROM kv WHERE key = $1`, key).
		Scan(&rec.Value, &rec.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("storage: postgres get: %w", err)
	}
	return rec, true, nil
}

// CompareAndSwap retries up to three times on a serialization failure or deadlock,
// mirroring the teacher's WithRetry pattern, since a single-statement
// UPSERT under SERIALIZABLE can still lose a race to a concurrent writer.
func (s *PostgresStore) CompareAndSwap(ctx context.Context, key string, expectedVersion int64, value []byte) (int64, error) {
	var newVersion int64
	err := WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		v, err := s.compareAndSwapOnce(ctx, key, expectedVersion, value)
		newVersion = v
		return err
	})
	return newVersion, err
}

func (s *PostgresStore) compareAndSwapOnce(ctx context.Context, key string, expectedVersion int64, value []byte) (int64, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return 0, fmt.Errorf("storage: postgres begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var currentVersion int64
	err = tx.QueryRow(ctx, `SELECT version FROM kv WHERE key = $1 FOR UPDATE`, key).Scan(&currentVersion)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if expectedVersion != 0 {
			return 0, ErrVersionMismatch
		}
		if _, err := tx.Exec(ctx, `INSERT INTO kv (key, value, version) VALUES ($1, $2, 1)`, key, value); err != nil {
			return 0, fmt.Errorf("storage: postgres insert: %w", err)
		}
		return 1, tx.Commit(ctx)
	case err != nil:
		return 0, fmt.Errorf("storage: postgres read version: %w", err)
	}

	if currentVersion != expectedVersion {
		return 0, ErrVersionMismatch
	}
	newVersion := currentVersion + 1
	if _, err := tx.Exec(ctx, `UPDATE kv SET value = $1, version = $2 WHERE key = $3`, value, newVersion, key); err != nil {
		return 0, fmt.Errorf("storage: postgres update: %w", err)
	}
	return newVersion, tx.Commit(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// isRetriable returns true for Postgres error codes indicating a
// transient conflict worth retrying, per the teacher's classification.
func isRetriable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01": // serialization_failure, deadlock_detected
		return true
	default:
		return false
	}
}
