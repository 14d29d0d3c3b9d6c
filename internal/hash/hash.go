// Package hash provides the canonical JSON serialization and content-hash
// function used everywhere an op id, change-set id, or symbol content hash
// is computed. Mismatched canonicalization silently corrupts ancestry
// checks, so every caller in this module goes through here.
package hash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

const (
	hashLen = 20 // truncated hex chars, per spec.md §3.
)

// Content computes the deterministic "hash_<20 hex chars>" digest of an
// arbitrary JSON value. Object keys are sorted lexicographically by
// codepoint before serialization so that equal values always hash equal
// regardless of map iteration or field order.
func Content(v any) string {
	canon := canonicalize(v)
	buf, err := json.Marshal(canon)
	if err != nil {
		// canonicalize only ever produces json.Marshal-safe values
		// (maps with string keys, slices, and scalars), so this cannot fail.
		panic(fmt.Sprintf("hash: canonical marshal: %v", err))
	}
	sum := sha256.Sum256(buf)
	return "hash_" + hex.EncodeToString(sum[:])[:hashLen]
}

// String is a convenience wrapper for hashing a raw string (document
// adapter content, python symbol body text, etc).
func String(s string) string {
	return Content(s)
}

// canonicalize walks v and produces a value whose JSON encoding is
// deterministic: map[string]any becomes an *orderedMap that marshals keys
// in sorted order; everything else passes through after recursing into
// slices and nested maps.
func canonicalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return newOrderedMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = canonicalize(e)
		}
		return out
	default:
		return v
	}
}

// orderedMap marshals to JSON with keys sorted by codepoint, independent of
// Go map iteration order.
type orderedMap struct {
	keys   []string
	values map[string]any
}

func newOrderedMap(m map[string]any) *orderedMap {
	keys := make([]string, 0, len(m))
	values := make(map[string]any, len(m))
	for k, v := range m {
		keys = append(keys, k)
		values[k] = canonicalize(v)
	}
	sort.Strings(keys)
	return &orderedMap{keys: keys, values: values}
}

func (m *orderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// OpID derives the op id "op_<hash>" from the op's fields excluding id,
// accepted_at, and canonical_order (assigned on acceptance). Callers pass a
// map built from the op's stable fields only.
func OpID(fields map[string]any) string {
	return "op_" + Content(fields)[len("hash_"):]
}

// ChangeSetID derives the change-set id "cs_<hash>" the same way.
func ChangeSetID(fields map[string]any) string {
	return "cs_" + Content(fields)[len("hash_"):]
}

// PromoteOpID derives a deterministic id for a promoted op, per the
// "ID generation determinism" design note: re-running a partially applied
// promotion must reproduce the same ids so idempotency kicks in.
func PromoteOpID(sourceOpID, sourceState, targetState string, parentHeads []string) string {
	return "op_promote_" + Content(map[string]any{
		"source_op_id": sourceOpID,
		"source_state": sourceState,
		"target_state": targetState,
		"parent_heads": anySlice(parentHeads),
	})[len("hash_"):]
}

func anySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
