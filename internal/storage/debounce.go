package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashita-ai/akashi/internal/engine"
)

const snapshotKey = "engine:snapshot"

// snapshotSource is the subset of *engine.Engine the persister needs,
// narrowed so tests can fake it without standing up a whole engine.
type snapshotSource interface {
	Snapshot() engine.Snapshot
	Restore(snap engine.Snapshot)
	Events() *engine.Hub
}

// Persister debounces writes of an engine's full state to a Store behind a
// single key. It never writes on every accepted op — it coalesces bursts
// of activity into one flush per debounce window, mirroring how the
// teacher's notify connection coalesces reconnect attempts rather than
// retrying on every single failure.
type Persister struct {
	store  Store
	engine snapshotSource
	delay  time.Duration
	logger *slog.Logger
}

// NewPersister builds a Persister that flushes eng's state to store no
// more than once per delay.
func NewPersister(eng *engine.Engine, store Store, delay time.Duration, logger *slog.Logger) *Persister {
	return &Persister{store: store, engine: eng, delay: delay, logger: logger}
}

// Load restores the engine from the last persisted snapshot, if any. It is
// a no-op if the store has never been written to.
func (p *Persister) Load(ctx context.Context) error {
	rec, ok, err := p.store.Get(ctx, snapshotKey)
	if err != nil {
		return fmt.Errorf("storage: load snapshot: %w", err)
	}
	if !ok {
		return nil
	}
	var snap engine.Snapshot
	if err := json.Unmarshal(rec.Value, &snap); err != nil {
		return fmt.Errorf("storage: decode snapshot: %w", err)
	}
	p.engine.Restore(snap)
	return nil
}

// Run subscribes to the engine's event hub and flushes a debounced
// snapshot to the store until ctx is cancelled. It blocks, so callers
// should run it in its own goroutine.
func (p *Persister) Run(ctx context.Context) {
	events, unsubscribe := p.engine.Events().Subscribe()
	defer unsubscribe()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			p.flush(context.Background())
			return
		case <-events:
			if timer == nil {
				timer = time.NewTimer(p.delay)
				timerC = timer.C
			}
		case <-timerC:
			p.flush(ctx)
			timer = nil
			timerC = nil
		}
	}
}

func (p *Persister) flush(ctx context.Context) {
	snap := p.engine.Snapshot()
	payload, err := json.Marshal(snap)
	if err != nil {
		p.logger.Error("storage: marshal snapshot", "error", err)
		return
	}

	for {
		existing, ok, err := p.store.Get(ctx, snapshotKey)
		if err != nil {
			p.logger.Error("storage: read snapshot version", "error", err)
			return
		}
		version := int64(0)
		if ok {
			version = existing.Version
		}
		if _, err := p.store.CompareAndSwap(ctx, snapshotKey, version, payload); err != nil {
			if errors.Is(err, ErrVersionMismatch) {
				continue
			}
			p.logger.Error("storage: write snapshot", "error", err)
			return
		}
		return
	}
}
