// Package storage provides Forge's persistence layer: a pluggable
// key-value Store with atomic single-key read-modify-write, backed by
// SQLite (modernc.org/sqlite, for single-node / embedded deployment) or
// Postgres (pgx/v5, for shared deployment), plus the idempotency-key and
// debounced-snapshot layers built on top of it.
package storage

import (
	"context"
	"errors"
)

// ErrVersionMismatch is returned by CompareAndSwap when expectedVersion
// does not match the key's current version — someone else wrote first.
var ErrVersionMismatch = errors.New("storage: version mismatch")

// Record is one stored value plus its optimistic-concurrency version.
type Record struct {
	Value   []byte
	Version int64
}

// Store is the minimal persistence contract every backend implements: get
// a key, and atomically compare-and-swap it. Forge never needs range
// scans, secondary indexes, or transactions spanning multiple keys — the
// entire engine state lives under one key, and idempotency keys each live
// under their own.
type Store interface {
	// Get returns the current value and version for key, or ok=false if
	// the key has never been written.
	Get(ctx context.Context, key string) (rec Record, ok bool, err error)

	// CompareAndSwap writes value under key if the key's current version
	// equals expectedVersion (0 means "key must not exist yet"). On
	// success the new version is returned. On mismatch it returns
	// ErrVersionMismatch and the caller should Get and retry.
	CompareAndSwap(ctx context.Context, key string, expectedVersion int64, value []byte) (newVersion int64, err error)

	Close() error
}
