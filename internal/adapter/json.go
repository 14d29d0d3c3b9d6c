package adapter

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/ashita-ai/akashi/internal/hash"
	"github.com/ashita-ai/akashi/internal/model"
)

// JSONAdapter treats each top-level key of a JSON object as a symbol.
type JSONAdapter struct{}

func (JSONAdapter) Name() string { return model.AdapterJSON }

// parseObject attempts to parse text as a JSON object. ok is false if text
// is not valid JSON or its top-level value is not an object.
func parseObject(text string) (map[string]any, bool) {
	if text == "" {
		return nil, false
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	return obj, ok
}

// SymbolHashes parses text as a JSON object; on failure returns {}, per
// spec §4.1. Each top-level key maps to sym://json/<path>#key:<enc>.
func (JSONAdapter) SymbolHashes(path, text string) map[string]string {
	obj, ok := parseObject(text)
	if !ok {
		return map[string]string{}
	}
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		out[model.SymbolID(model.AdapterJSON, path, model.KeyFragment(k))] = hash.Content(v)
	}
	return out
}

// Diff returns per-top-level-key edits, skipping keys whose canonical JSON
// values are equal; ok is false if either side is not a JSON object.
func (JSONAdapter) Diff(_, before, after string) ([]Edit, bool) {
	beforeObj, beforeOK := parseObject(before)
	afterObj, afterOK := parseObject(after)
	if !beforeOK || !afterOK {
		return nil, false
	}

	keys := make(map[string]bool, len(beforeObj)+len(afterObj))
	for k := range beforeObj {
		keys[k] = true
	}
	for k := range afterObj {
		keys[k] = true
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var edits []Edit
	for _, k := range sorted {
		bv, bOK := beforeObj[k]
		av, aOK := afterObj[k]
		if bOK && aOK && hash.Content(bv) == hash.Content(av) {
			continue
		}
		edits = append(edits, Edit{
			Key:          model.KeyFragment(k),
			BeforeExists: bOK,
			AfterExists:  aOK,
			BeforeValue:  bv,
			AfterValue:   av,
		})
	}
	return edits, true
}

// Apply re-serializes the parsed object with sorted keys, two-space
// indent, and a trailing newline, after applying a single json_set_key or
// json_delete_key effect.
func (JSONAdapter) Apply(effect model.Effect, currentText string) string {
	obj, ok := parseObject(currentText)
	if !ok {
		obj = map[string]any{}
	}
	switch effect.Kind {
	case model.EffectJSONSetKey:
		obj[effect.Key] = effect.Value
	case model.EffectJSONDeleteKey:
		delete(obj, effect.Key)
	default:
		return currentText
	}
	return marshalSortedIndent(obj)
}

func marshalSortedIndent(obj map[string]any) string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
		buf.WriteString("  ")
		kb, _ := json.Marshal(k)
		buf.Write(kb)
		buf.WriteString(": ")
		vb, _ := json.MarshalIndent(obj[k], "  ", "  ")
		buf.Write(vb)
	}
	if len(keys) > 0 {
		buf.WriteByte('\n')
	}
	buf.WriteByte('}')
	buf.WriteByte('\n')
	return buf.String()
}
