package engine

import (
	"github.com/ashita-ai/akashi/internal/audit"
	"github.com/ashita-ai/akashi/internal/model"
)

// Snapshot is the complete serializable state of an Engine: every state,
// op, conflict, change-set record, sequence counter, and audit link. The
// storage layer persists this as a single opaque blob and debounces writes
// behind it; it never inspects the fields itself.
type Snapshot struct {
	States      map[string]model.State        `json:"states"`
	Indexes     map[string]IndexSnapshot      `json:"indexes"`
	Ops         map[string]model.Op           `json:"ops"`
	Conflicts   map[string]model.Conflict     `json:"conflicts"`
	ChangeSets  map[string]model.ChangeSetRecord `json:"change_sets"`
	Sequence    map[string]int64              `json:"sequence"`
	OpSeq       int64                         `json:"op_seq"`
	ConflictSeq int64                         `json:"conflict_seq"`
	AuditLinks  []audit.Link                  `json:"audit_links"`
}

// IndexSnapshot is the serializable form of a stateIndex.
type IndexSnapshot struct {
	SymbolHead map[string]string `json:"symbol_head"`
	SymbolHash map[string]string `json:"symbol_hash"`
	OpIDs      []string          `json:"op_ids"`
	Heads      []string          `json:"heads"`
}

// Snapshot captures the engine's entire state for persistence.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	states := make(map[string]model.State, len(e.states))
	for name, st := range e.states {
		states[name] = *st
	}
	indexes := make(map[string]IndexSnapshot, len(e.indexes))
	for name, idx := range e.indexes {
		indexes[name] = IndexSnapshot{
			SymbolHead: copyStrMap(idx.symbolHead),
			SymbolHash: copyStrMap(idx.symbolHash),
			OpIDs:      append([]string(nil), idx.opIDs...),
			Heads:      append([]string(nil), idx.heads...),
		}
	}
	ops := make(map[string]model.Op, len(e.ops))
	for id, op := range e.ops {
		ops[id] = op
	}
	conflicts := make(map[string]model.Conflict, len(e.conflicts))
	for id, c := range e.conflicts {
		conflicts[id] = c
	}
	changeSets := make(map[string]model.ChangeSetRecord, len(e.changeSets))
	for id, rec := range e.changeSets {
		changeSets[id] = rec
	}
	sequence := make(map[string]int64, len(e.sequence))
	for name, seq := range e.sequence {
		sequence[name] = seq
	}

	return Snapshot{
		States:      states,
		Indexes:     indexes,
		Ops:         ops,
		Conflicts:   conflicts,
		ChangeSets:  changeSets,
		Sequence:    sequence,
		OpSeq:       e.opSeq,
		ConflictSeq: e.conflictSeq,
		AuditLinks:  e.audit.Links(),
	}
}

// Restore replaces the engine's entire state with snap, for startup
// recovery from a persisted snapshot. The caller must not use the engine
// concurrently with Restore.
func (e *Engine) Restore(snap Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.states = make(map[string]*model.State, len(snap.States))
	for name, st := range snap.States {
		v := st
		e.states[name] = &v
	}
	e.indexes = make(map[string]*stateIndex, len(snap.Indexes))
	for name, is := range snap.Indexes {
		e.indexes[name] = &stateIndex{
			symbolHead: copyStrMap(is.SymbolHead),
			symbolHash: copyStrMap(is.SymbolHash),
			opIDs:      append([]string(nil), is.OpIDs...),
			heads:      append([]string(nil), is.Heads...),
		}
	}
	e.ops = make(map[string]model.Op, len(snap.Ops))
	for id, op := range snap.Ops {
		e.ops[id] = op
	}
	e.conflicts = make(map[string]model.Conflict, len(snap.Conflicts))
	for id, c := range snap.Conflicts {
		e.conflicts[id] = c
	}
	e.changeSets = make(map[string]model.ChangeSetRecord, len(snap.ChangeSets))
	for id, rec := range snap.ChangeSets {
		e.changeSets[id] = rec
	}
	e.sequence = make(map[string]int64, len(snap.Sequence))
	for name, seq := range snap.Sequence {
		e.sequence[name] = seq
	}
	e.opSeq = snap.OpSeq
	e.conflictSeq = snap.ConflictSeq
	e.audit = audit.Restore(snap.AuditLinks)
}

func copyStrMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
