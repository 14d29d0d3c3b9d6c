// Package engine implements the in-memory core of spec §4: the
// conflict classifier, the atomic change-set submission pipeline, the
// symbol index, the tree materializer, and state-to-state promotion. It
// holds no transport or persistence awareness — storage snapshots and
// replays it; server wires it to HTTP/SSE/MCP.
package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ashita-ai/akashi/internal/adapter"
	"github.com/ashita-ai/akashi/internal/audit"
	"github.com/ashita-ai/akashi/internal/model"
)

// Engine holds all mutable state behind a single mutex, per spec §5's
// single-writer model: one change set is evaluated start-to-finish before
// the next begins.
type Engine struct {
	mu sync.Mutex

	registry *adapter.Registry
	logger   *slog.Logger
	events   *Hub
	audit    *audit.Chain

	states     map[string]*model.State
	indexes    map[string]*stateIndex
	ops        map[string]model.Op
	conflicts  map[string]model.Conflict
	changeSets map[string]model.ChangeSetRecord // keyed by change-set id, for idempotent resubmission
	sequence   map[string]int64                 // per-state monotonic change-set sequence
	opSeq      int64                             // global canonical-order counter
	conflictSeq int64
}

// New constructs an Engine with a single default state, matching the
// teacher's pattern of returning a ready-to-use zero-config core. Python
// parsing is whatever registry was built with (adapter.NewRegistry(nil)
// uses the regex python parser).
func New(registry *adapter.Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		registry:   registry,
		logger:     logger,
		events:     newHub(),
		audit:      audit.New(),
		states:     make(map[string]*model.State),
		indexes:    make(map[string]*stateIndex),
		ops:        make(map[string]model.Op),
		conflicts:  make(map[string]model.Conflict),
		changeSets: make(map[string]model.ChangeSetRecord),
		sequence:   make(map[string]int64),
	}
	e.createStateLocked("main", "", nil, model.DefaultPolicy())
	return e
}

// Events returns the broadcast hub server/SSE code subscribes to.
func (e *Engine) Events() *Hub { return e.events }

// AuditChain returns the tamper-evident hash chain of accepted change
// sets, for the audit/verification HTTP surface.
func (e *Engine) AuditChain() *audit.Chain { return e.audit }

// CreateState registers a new named state rooted at baseState's current
// heads (or explicit baseHeads, when provided, for forks of a point in
// history rather than the tip). "prod" gets StrictPolicy by convention;
// everything else gets DefaultPolicy, mirroring the teacher's environment-
// tier defaults.
func (e *Engine) CreateState(name, baseState string, baseHeads []string) (model.State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.states[name]; exists {
		return model.State{}, model.NewAPIError(model.ErrCodeStateExists, "state %q already exists", name)
	}

	policy := model.DefaultPolicy()
	if name == "prod" {
		policy = model.StrictPolicy()
	}

	if baseState != "" {
		base, ok := e.states[baseState]
		if !ok {
			return model.State{}, model.NewAPIError(model.ErrCodeStateMissing, "base state %q not found", baseState)
		}
		if baseHeads == nil {
			baseHeads = append([]string(nil), base.Heads...)
		}
	}

	st := e.createStateLocked(name, baseState, baseHeads, policy)
	return *st, nil
}

func (e *Engine) createStateLocked(name, baseState string, baseHeads []string, policy model.Policy) *model.State {
	now := time.Now().UTC()
	st := &model.State{
		Name:      name,
		BaseState: baseState,
		BaseHeads: append([]string(nil), baseHeads...),
		Heads:     nil,
		Policy:    policy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	e.states[name] = st
	idx := newStateIndex()
	idx.heads = append([]string(nil), baseHeads...)
	e.indexes[name] = idx
	return st
}

// GetState returns a copy of the named state.
func (e *Engine) GetState(name string) (model.State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[name]
	if !ok {
		return model.State{}, false
	}
	return *st, true
}

// ListStates returns a copy of every registered state, sorted by name.
func (e *Engine) ListStates() []model.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.State, 0, len(e.states))
	for _, st := range e.states {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetOp returns a copy of a single op by id, searching the global log.
func (e *Engine) GetOp(id string) (model.Op, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	op, ok := e.ops[id]
	return op, ok
}

// ListConflicts returns every conflict recorded for state, optionally
// filtered to open ones only.
func (e *Engine) ListConflicts(state string, openOnly bool) []model.Conflict {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []model.Conflict
	for _, c := range e.conflicts {
		if c.State != state {
			continue
		}
		if openOnly && c.Status != model.ConflictOpen {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ListChangeSets returns every recorded change-set outcome for state,
// sorted by sequence, for the GET /v1/change-sets?state= listing.
func (e *Engine) ListChangeSets(state string) []model.ChangeSetRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []model.ChangeSetRecord
	for _, rec := range e.changeSets {
		if rec.State != state {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// GetChangeSetRecord returns a previously recorded change-set outcome, used
// for idempotent resubmission (spec §4.2 invariant: resubmitting an
// identical change set replays its original outcome rather than
// re-evaluating).
func (e *Engine) GetChangeSetRecord(id string) (model.ChangeSetRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.changeSets[id]
	return rec, ok
}

func (e *Engine) nextOpSeq() int64 {
	e.opSeq++
	return e.opSeq
}

func (e *Engine) nextConflictID() string {
	e.conflictSeq++
	return fmt.Sprintf("conflict_%d", e.conflictSeq)
}

// lookupOp resolves an op id against the global log, the function shape
// staging.isAncestorOrSelf needs for ancestry walks.
func (e *Engine) lookupOp(id string) (model.Op, bool) {
	op, ok := e.ops[id]
	return op, ok
}

// stateHasOpenConflicts reports whether state currently has any conflict
// with status "open", the signal the classifier's policy rule consumes.
func (e *Engine) stateHasOpenConflicts(state string) bool {
	for _, c := range e.conflicts {
		if c.State == state && c.Status == model.ConflictOpen {
			return true
		}
	}
	return false
}
