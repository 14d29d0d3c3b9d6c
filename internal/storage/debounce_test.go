package storage_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/akashi/internal/adapter"
	"github.com/ashita-ai/akashi/internal/engine"
	"github.com/ashita-ai/akashi/internal/hash"
	"github.com/ashita-ai/akashi/internal/model"
	"github.com/ashita-ai/akashi/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPersister_FlushesAndReloads(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	eng := engine.New(adapter.NewRegistry(nil), discardLogger())
	store := newMemStore()
	persister := storage.NewPersister(eng, store, 10*time.Millisecond, discardLogger())

	go persister.Run(ctx)

	symID := model.SymbolID(model.ExtensionAdapter("notes.md"), "notes.md", model.DocumentFragment)
	_, err := eng.Submit(model.ChangeSet{
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
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok, err := store.Get(ctx, "engine:snapshot")
		return err == nil && ok
	}, time.Second, 5*time.Millisecond)

	cancel()

	restored := engine.New(adapter.NewRegistry(nil), discardLogger())
	reloader := storage.NewPersister(restored, store, 10*time.Millisecond, discardLogger())
	require.NoError(t, reloader.Load(context.Background()))

	tree, err := restored.Materialize("main")
	require.NoError(t, err)
	require.Equal(t, "hello", tree["notes.md"])
}
