package engine

import (
	"github.com/ashita-ai/akashi/internal/adapter"
	"github.com/ashita-ai/akashi/internal/model"
)

// applyEffect mutates tree in place per spec §4.6: upsert/delete act on
// the whole file; json/python effects re-render the target path through
// its adapter; unknown effect kinds are skipped; replace_body (legacy)
// rewrites the file named by path_hint.
func applyEffect(tree map[string]string, registry *adapter.Registry, op model.Op) {
	e := op.Effect
	switch e.Kind {
	case model.EffectUpsertFile:
		tree[e.Path] = registry.Dispatch(e.Path).Apply(e, tree[e.Path])
	case model.EffectDeleteFile:
		delete(tree, e.Path)
	case model.EffectJSONSetKey, model.EffectJSONDeleteKey:
		tree[e.Path] = registry.ByName(model.AdapterJSON).Apply(e, tree[e.Path])
	case model.EffectPythonReplaceSymbol, model.EffectPythonInsertSymbol, model.EffectPythonDeleteSymbol:
		tree[e.Path] = registry.ByName(model.AdapterPython).Apply(e, tree[e.Path])
	case model.EffectReplaceBody:
		path := op.Target.PathHint
		if path == "" {
			return
		}
		tree[path] = registry.Dispatch(path).Apply(e, tree[path])
	default:
		// Unknown effect kinds are skipped, per spec §4.6.
	}
}

// symbolContentHash resolves the derived content hash for a symbol by
// reading its actual content from tree via its adapter — the "semantic
// check against actual file state" of spec §4.4 rule 1. ok is false if the
// symbol cannot currently be resolved (missing file, missing key/def, or a
// parse failure), in which case callers fall back to the declared
// symbolHash map.
func symbolContentHash(tree map[string]string, registry *adapter.Registry, symbolID string) (string, bool) {
	parsed, ok := model.ParseSymbolID(symbolID)
	if !ok {
		return "", false
	}
	text, hasFile := tree[parsed.Path]
	if !hasFile {
		return "", false
	}
	hashes := registry.ByName(parsed.Adapter).SymbolHashes(parsed.Path, text)
	h, ok := hashes[symbolID]
	return h, ok
}
