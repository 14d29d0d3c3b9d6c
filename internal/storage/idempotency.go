package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrIdempotencyPayloadMismatch is returned when the same idempotency key
// is reused with a different request payload hash.
var ErrIdempotencyPayloadMismatch = errors.New("storage: idempotency key reused with different payload")

// ErrIdempotencyInProgress indicates a matching idempotency key is
// currently being processed by another request.
var ErrIdempotencyInProgress = errors.New("storage: idempotency key request already in progress")

// IdempotencyLookup describes the outcome of Begin.
type IdempotencyLookup struct {
	Owned        bool // true: caller won the reservation and should process the request
	Completed    bool
	StatusCode   int
	ResponseData json.RawMessage
}

type idempotencyRecord struct {
	Status       string          `json:"status"` // "in_progress" | "completed"
	RequestHash  string          `json:"request_hash"`
	StatusCode   int             `json:"status_code,omitempty"`
	ResponseData json.RawMessage `json:"response_data,omitempty"`
}

// IdempotencyStore layers Idempotency-Key request replay on top of a
// Store, mirroring the teacher's Begin/Complete/ClearInProgress trio but
// backed by the generic compare-and-swap Store instead of a dedicated
// Postgres table.
type IdempotencyStore struct {
	store Store
}

func NewIdempotencyStore(store Store) *IdempotencyStore {
	return &IdempotencyStore{store: store}
}

func idempotencyStoreKey(endpoint, key string) string {
	return "idem:" + endpoint + ":" + key
}

// Begin reserves key for processing. If it returns a lookup with
// Owned=true, the caller must process the request and call Complete (or
// ClearInProgress on failure). If Completed=true, the caller should replay
// the stored response instead of re-executing.
func (s *IdempotencyStore) Begin(ctx context.Context, endpoint, key, requestHash string) (IdempotencyLookup, error) {
	storeKey := idempotencyStoreKey(endpoint, key)

	for {
		existing, ok, err := s.store.Get(ctx, storeKey)
		if err != nil {
			return IdempotencyLookup{}, err
		}
		if !ok {
			rec := idempotencyRecord{Status: "in_progress", RequestHash: requestHash}
			payload, _ := json.Marshal(rec)
			if _, err := s.store.CompareAndSwap(ctx, storeKey, 0, payload); err != nil {
				if errors.Is(err, ErrVersionMismatch) {
					continue // someone else reserved it first; re-read and fall through below
				}
				return IdempotencyLookup{}, err
			}
			return IdempotencyLookup{Owned: true}, nil
		}

		var rec idempotencyRecord
		if err := json.Unmarshal(existing.Value, &rec); err != nil {
			return IdempotencyLookup{}, fmt.Errorf("storage: decode idempotency record: %w", err)
		}
		if rec.Status == "abandoned" {
			reserved := idempotencyRecord{Status: "in_progress", RequestHash: requestHash}
			payload, _ := json.Marshal(reserved)
			if _, err := s.store.CompareAndSwap(ctx, storeKey, existing.Version, payload); err != nil {
				if errors.Is(err, ErrVersionMismatch) {
					continue
				}
				return IdempotencyLookup{}, err
			}
			return IdempotencyLookup{Owned: true}, nil
		}
		if rec.RequestHash != requestHash {
			return IdempotencyLookup{}, ErrIdempotencyPayloadMismatch
		}
		if rec.Status == "completed" {
			return IdempotencyLookup{Completed: true, StatusCode: rec.StatusCode, ResponseData: rec.ResponseData}, nil
		}
		return IdempotencyLookup{}, ErrIdempotencyInProgress
	}
}

// Complete stores the final response for a previously reserved key.
func (s *IdempotencyStore) Complete(ctx context.Context, endpoint, key string, statusCode int, responseData any) error {
	storeKey := idempotencyStoreKey(endpoint, key)
	existing, ok, err := s.store.Get(ctx, storeKey)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("storage: complete idempotency: key not found")
	}
	var rec idempotencyRecord
	if err := json.Unmarshal(existing.Value, &rec); err != nil {
		return fmt.Errorf("storage: decode idempotency record: %w", err)
	}
	payload, err := json.Marshal(responseData)
	if err != nil {
		return fmt.Errorf("storage: marshal idempotency response: %w", err)
	}
	rec.Status = "completed"
	rec.StatusCode = statusCode
	rec.ResponseData = payload

	encoded, _ := json.Marshal(rec)
	_, err = s.store.CompareAndSwap(ctx, storeKey, existing.Version, encoded)
	return err
}

// ClearInProgress marks an in-progress reservation abandoned so a later
// request with the same key is free to retry rather than blocking on
// ErrIdempotencyInProgress forever.
func (s *IdempotencyStore) ClearInProgress(ctx context.Context, endpoint, key string) error {
	storeKey := idempotencyStoreKey(endpoint, key)
	existing, ok, err := s.store.Get(ctx, storeKey)
	if err != nil || !ok {
		return err
	}
	var rec idempotencyRecord
	if err := json.Unmarshal(existing.Value, &rec); err != nil {
		return fmt.Errorf("storage: decode idempotency record: %w", err)
	}
	if rec.Status != "in_progress" {
		return nil
	}
	rec.Status = "abandoned"
	encoded, _ := json.Marshal(rec)
	_, err = s.store.CompareAndSwap(ctx, storeKey, existing.Version, encoded)
	return err
}
