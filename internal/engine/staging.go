package engine

import (
	"github.com/ashita-ai/akashi/internal/adapter"
	"github.com/ashita-ai/akashi/internal/model"
)

// staging is the per-submission working view the classifier and submit
// pipeline evaluate ops against: a copy-on-write snapshot of the target
// state's symbol_head/symbol_hash/tree, plus bookkeeping for ops accepted
// earlier in the same change set (spec §4.3 step 4).
type staging struct {
	state string

	symbolHead map[string]string // symbol -> op id
	symbolHash map[string]string // symbol -> declared hash
	tree       map[string]string // path -> text

	// localParents tracks op ids accepted earlier in this change set, so
	// later ops in the set may cite them as parents/ancestors even though
	// they are not yet in the persistent log.
	localParents map[string]bool

	// lookup resolves an op id to its Op, across both the persistent log
	// and this change set's already-accepted ops, for ancestry walks.
	lookup func(id string) (model.Op, bool)

	hasOpenConflicts bool

	registry *adapter.Registry
}

// isAncestorOrSelf reports whether id is reachable from any of roots by
// following Parents transitively (including roots themselves), per the
// glossary's "ancestor-or-self: reflexive-transitive closure over
// parents (including intra-change-set local_parents)".
func (s *staging) isAncestorOrSelf(id string, roots []string) bool {
	visited := make(map[string]bool)
	queue := append([]string(nil), roots...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == id {
			return true
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true
		op, ok := s.lookup(cur)
		if !ok {
			continue
		}
		queue = append(queue, op.Parents...)
	}
	return false
}

// applySymbolWrites updates staged symbol_head/symbol_hash for an op being
// provisionally accepted, per spec §4.5.
func (s *staging) applySymbolWrites(op model.Op) {
	for _, sym := range op.Writes {
		s.symbolHead[sym] = op.ID
		switch {
		case op.Effect.SymbolHashesNull[sym]:
			delete(s.symbolHash, sym)
		case op.Effect.SymbolHashes != nil:
			if h, ok := op.Effect.SymbolHashes[sym]; ok {
				s.symbolHash[sym] = h
				continue
			}
			fallthrough
		default:
			if h, ok := legacySymbolHash(op, sym); ok {
				s.symbolHash[sym] = h
			}
		}
	}
}

// legacySymbolHash implements the fallback table of spec §4.5 for ops that
// omit effect.symbol_hashes.
func legacySymbolHash(op model.Op, symbol string) (string, bool) {
	e := op.Effect
	switch e.Kind {
	case model.EffectUpsertFile:
		parsed, ok := model.ParseSymbolID(symbol)
		if ok && parsed.Fragment == model.DocumentFragment && e.AfterHash != "" {
			return e.AfterHash, true
		}
	case model.EffectReplaceBody:
		if e.AfterHash != "" {
			return e.AfterHash, true
		}
	case model.EffectJSONSetKey:
		want := model.SymbolID(model.AdapterJSON, e.Path, model.KeyFragment(e.Key))
		if symbol == want && e.AfterHash != "" {
			return e.AfterHash, true
		}
	case model.EffectPythonReplaceSymbol, model.EffectPythonInsertSymbol:
		want := model.SymbolID(model.AdapterPython, e.Path, model.PythonFragment(e.SymbolKind, e.SymbolName))
		if symbol == want && e.AfterHash != "" {
			return e.AfterHash, true
		}
	}
	return "", false
}
