package model

import "time"

// EffectKind enumerates the tagged effect variants of spec §3.
type EffectKind string

const (
	EffectUpsertFile           EffectKind = "upsert_file"
	EffectDeleteFile           EffectKind = "delete_file"
	EffectJSONSetKey           EffectKind = "json_set_key"
	EffectJSONDeleteKey        EffectKind = "json_delete_key"
	EffectPythonReplaceSymbol  EffectKind = "python_replace_symbol"
	EffectPythonInsertSymbol   EffectKind = "python_insert_symbol"
	EffectPythonDeleteSymbol   EffectKind = "python_delete_symbol"
	EffectReplaceBody          EffectKind = "replace_body" // legacy
)

// Effect is the tagged variant describing how one op mutates a file.
// Only the fields relevant to Kind are populated; the rest are zero.
type Effect struct {
	Kind EffectKind `json:"kind"`

	Path    string `json:"path,omitempty"`
	Content string `json:"content,omitempty"` // upsert_file

	Key   string `json:"key,omitempty"`   // json_set_key / json_delete_key
	Value any    `json:"value,omitempty"` // json_set_key

	SymbolKind       string  `json:"symbol_kind,omitempty"`         // python_*: "def" | "class"
	SymbolName       string  `json:"symbol_name,omitempty"`         // python_*
	BeforeContent    string  `json:"before_content,omitempty"`      // python_replace_symbol / python_delete_symbol
	AfterContent     string  `json:"after_content,omitempty"`       // python_replace_symbol / python_insert_symbol / replace_body (legacy)
	InsertAfterKey   *string `json:"insert_after_key,omitempty"`    // python_insert_symbol
	InsertBeforeKey  *string `json:"insert_before_key,omitempty"`   // python_insert_symbol

	// SymbolHashes declares the post-effect content hash per written symbol;
	// a null entry (represented here by presence in SymbolHashesNull) means
	// the symbol was deleted.
	SymbolHashes     map[string]string `json:"symbol_hashes,omitempty"`
	SymbolHashesNull map[string]bool   `json:"-"`

	// AfterHash is the legacy single post-effect hash used when
	// SymbolHashes is absent, per spec §4.5.
	AfterHash string `json:"after_hash,omitempty"`
}

// PreconditionKind enumerates the two precondition shapes of spec §3.
type PreconditionKind string

const (
	PreconditionSymbolExists  PreconditionKind = "symbol_exists"
	PreconditionSignatureHash PreconditionKind = "signature_hash"
)

// Precondition is a single op-acceptance precondition.
type Precondition struct {
	Kind  PreconditionKind `json:"kind"`
	Value string           `json:"value,omitempty"` // signature_hash
}

// Target names the primary symbol and file an op acts on.
type Target struct {
	SymbolID string `json:"symbol_id"`
	PathHint string `json:"path_hint,omitempty"`
}

// Metadata carries free-form op provenance plus the well-known fields
// spec §3 names explicitly.
type Metadata struct {
	Author    string `json:"author,omitempty"`
	Intent    string `json:"intent,omitempty"`
	Timestamp string `json:"timestamp,omitempty"` // RFC3339; set by normalization if empty

	// Set by the promoter (spec §4.7); absent on ordinary ops.
	SourceState string `json:"source_state,omitempty"`
	SourceOpID  string `json:"source_op_id,omitempty"`

	Extra map[string]any `json:"-"` // additional free fields; part of the identity hash, not encoded to or decoded from JSON
}

// Op is a single immutable, content-addressed operation.
type Op struct {
	ID      string   `json:"id,omitempty"`
	State   string   `json:"state"`
	Parents []string `json:"parents,omitempty"`

	Target        Target         `json:"target"`
	Preconditions []Precondition `json:"preconditions,omitempty"`
	Reads         []string       `json:"reads,omitempty"`
	Writes        []string       `json:"writes"`
	Effect        Effect         `json:"effect"`
	Resolves      []string       `json:"resolves,omitempty"`
	Metadata      Metadata       `json:"metadata,omitempty"`

	// Assigned on acceptance; zero value until then.
	AcceptedAt     time.Time `json:"accepted_at,omitempty"`
	CanonicalOrder int64     `json:"canonical_order,omitempty"`
}

// Clone returns a deep-enough copy of op safe for mutation (new id,
// parents, etc.) without aliasing slices with the original.
func (op Op) Clone() Op {
	out := op
	out.Parents = append([]string(nil), op.Parents...)
	out.Reads = append([]string(nil), op.Reads...)
	out.Writes = append([]string(nil), op.Writes...)
	out.Resolves = append([]string(nil), op.Resolves...)
	out.Preconditions = append([]Precondition(nil), op.Preconditions...)
	if op.Effect.SymbolHashes != nil {
		out.Effect.SymbolHashes = make(map[string]string, len(op.Effect.SymbolHashes))
		for k, v := range op.Effect.SymbolHashes {
			out.Effect.SymbolHashes[k] = v
		}
	}
	if op.Effect.SymbolHashesNull != nil {
		out.Effect.SymbolHashesNull = make(map[string]bool, len(op.Effect.SymbolHashesNull))
		for k, v := range op.Effect.SymbolHashesNull {
			out.Effect.SymbolHashesNull[k] = v
		}
	}
	return out
}

// IdentityFields returns the map of fields hashed to derive the op's id:
// every field except id, accepted_at, and canonical_order, per spec §3
// invariant 1.
func (op Op) IdentityFields() map[string]any {
	return map[string]any{
		"state":         op.State,
		"parents":       toAnySlice(op.Parents),
		"target":        map[string]any{"symbol_id": op.Target.SymbolID, "path_hint": op.Target.PathHint},
		"preconditions": preconditionsToAny(op.Preconditions),
		"reads":         toAnySlice(op.Reads),
		"writes":        toAnySlice(op.Writes),
		"effect":        effectToAny(op.Effect),
		"resolves":      toAnySlice(op.Resolves),
		"metadata":      metadataToAny(op.Metadata),
	}
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func preconditionsToAny(ps []Precondition) []any {
	out := make([]any, len(ps))
	for i, p := range ps {
		out[i] = map[string]any{"kind": string(p.Kind), "value": p.Value}
	}
	return out
}

func effectToAny(e Effect) map[string]any {
	m := map[string]any{
		"kind":    string(e.Kind),
		"path":    e.Path,
		"content": e.Content,
		"key":     e.Key,
		"value":   e.Value,

		"symbol_kind":       e.SymbolKind,
		"symbol_name":       e.SymbolName,
		"before_content":    e.BeforeContent,
		"after_content":     e.AfterContent,
		"after_hash":        e.AfterHash,
	}
	if e.InsertAfterKey != nil {
		m["insert_after_key"] = *e.InsertAfterKey
	}
	if e.InsertBeforeKey != nil {
		m["insert_before_key"] = *e.InsertBeforeKey
	}
	if e.SymbolHashes != nil || e.SymbolHashesNull != nil {
		sh := map[string]any{}
		for k, v := range e.SymbolHashes {
			sh[k] = v
		}
		for k := range e.SymbolHashesNull {
			sh[k] = nil
		}
		m["symbol_hashes"] = sh
	}
	return m
}

func metadataToAny(m Metadata) map[string]any {
	out := map[string]any{
		"author":    m.Author,
		"intent":    m.Intent,
		"timestamp": m.Timestamp,
	}
	if m.SourceState != "" {
		out["source_state"] = m.SourceState
	}
	if m.SourceOpID != "" {
		out["source_op_id"] = m.SourceOpID
	}
	for k, v := range m.Extra {
		out[k] = v
	}
	return out
}
