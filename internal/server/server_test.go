package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/akashi/internal/adapter"
	"github.com/ashita-ai/akashi/internal/engine"
	"github.com/ashita-ai/akashi/internal/hash"
	"github.com/ashita-ai/akashi/internal/model"
	"github.com/ashita-ai/akashi/internal/server"
	"github.com/ashita-ai/akashi/internal/storage"
)

// memStore is an in-process storage.Store fake, reused from the storage
// package's own test helper so the server package can exercise
// storage.IdempotencyStore without a real database.
type memStore struct {
	mu   sync.Mutex
	data map[string]storage.Record
}

func newIdemStore() *memStore { return &memStore{data: make(map[string]storage.Record)} }

func (m *memStore) Get(_ context.Context, key string) (storage.Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.data[key]
	return rec, ok, nil
}

func (m *memStore) CompareAndSwap(_ context.Context, key string, expectedVersion int64, value []byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.data[key]
	if !ok {
		if expectedVersion != 0 {
			return 0, storage.ErrVersionMismatch
		}
		m.data[key] = storage.Record{Value: append([]byte(nil), value...), Version: 1}
		return 1, nil
	}
	if current.Version != expectedVersion {
		return 0, storage.ErrVersionMismatch
	}
	next := current.Version + 1
	m.data[key] = storage.Record{Value: append([]byte(nil), value...), Version: next}
	return next, nil
}

func (m *memStore) Close() error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*server.Server, *engine.Engine) {
	t.Helper()
	eng := engine.New(adapter.NewRegistry(nil), discardLogger())
	idem := storage.NewIdempotencyStore(newIdemStore())
	srv := server.New(server.ServerConfig{
		Engine:              eng,
		Idempotency:         idem,
		Logger:              discardLogger(),
		Port:                0,
		ReadTimeout:         5 * time.Second,
		WriteTimeout:        5 * time.Second,
		Version:             "test",
		MaxRequestBodyBytes: 1 << 20,
		CORSAllowedOrigins:  []string{"*"},
	})
	return srv, eng
}

func decodeEnvelope(t *testing.T, body []byte) model.APIResponse {
	t.Helper()
	var env model.APIResponse
	require.NoError(t, json.Unmarshal(body, &env))
	return env
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandleCreateAndGetState(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"name": "dev", "base_state": "main"})
	req := httptest.NewRequest(http.MethodPost, "/v1/states", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/states/dev", nil)
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandleGetStateNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/states/missing", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleSubmitChangeSet(t *testing.T) {
	srv, _ := newTestServer(t)

	symID := model.SymbolID(model.ExtensionAdapter("notes.md"), "notes.md", model.DocumentFragment)
	cs := model.ChangeSet{
		State: "main",
		Ops: []model.Op{{
			State:  "main",
			Target: model.Target{SymbolID: symID},
			Writes: []string{symID},
			Effect: model.Effect{
				Kind:      model.EffectUpsertFile,
				Path:      "notes.md",
				Content:   "hello",
				AfterHash: hash.String("hello"),
			},
		}},
	}
	body, _ := json.Marshal(cs)

	req := httptest.NewRequest(http.MethodPost, "/v1/change-sets", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	env := decodeEnvelope(t, w.Body.Bytes())
	outcome, ok := env.Data.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "accepted", outcome["status"])
}

func TestHandleSubmitChangeSetIdempotentReplay(t *testing.T) {
	srv, _ := newTestServer(t)

	symID := model.SymbolID(model.ExtensionAdapter("notes.md"), "notes.md", model.DocumentFragment)
	cs := model.ChangeSet{
		State: "main",
		Ops: []model.Op{{
			State:  "main",
			Target: model.Target{SymbolID: symID},
			Writes: []string{symID},
			Effect: model.Effect{
				Kind:      model.EffectUpsertFile,
				Path:      "notes.md",
				Content:   "hello",
				AfterHash: hash.String("hello"),
			},
		}},
	}
	body, _ := json.Marshal(cs)

	req := httptest.NewRequest(http.MethodPost, "/v1/change-sets", bytes.NewReader(body))
	req.Header.Set("Idempotency-Key", "key-1")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/change-sets", bytes.NewReader(body))
	req.Header.Set("Idempotency-Key", "key-1")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestHandlePromoteAndResolveConflict(t *testing.T) {
	srv, eng := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"name": "dev", "base_state": "main"})
	req := httptest.NewRequest(http.MethodPost, "/v1/states", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	symID := model.SymbolID(model.ExtensionAdapter("notes.md"), "notes.md", model.DocumentFragment)
	outcome, err := eng.Submit(model.ChangeSet{
		State: "dev",
		Ops: []model.Op{{
			State:  "dev",
			Target: model.Target{SymbolID: symID},
			Writes: []string{symID},
			Effect: model.Effect{
				Kind:      model.EffectUpsertFile,
				Path:      "notes.md",
				Content:   "hi",
				AfterHash: hash.String("hi"),
			},
		}},
	})
	require.NoError(t, err)
	require.Equal(t, model.ChangeSetAccepted, outcome.Status)

	promoteBody, _ := json.Marshal(map[string]any{
		"source_state": "dev",
		"op_ids":       outcome.Accepted,
	})
	req = httptest.NewRequest(http.MethodPost, "/v1/states/main/promote", bytes.NewReader(promoteBody))
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandleListConflictsUnknownState(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/states/nope/conflicts", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/v1/states", nil)
	req.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "https://example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDEchoed(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}
