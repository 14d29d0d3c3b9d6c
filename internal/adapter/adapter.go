// Package adapter implements the per-extension language adapters of
// spec §4.1: a pure (symbol_hashes, diff, apply) trio per file type.
package adapter

import (
	"context"

	"github.com/ashita-ai/akashi/internal/model"
	"github.com/ashita-ai/akashi/internal/pyparse"
)

// Edit describes one symbol-level change surfaced by Diff.
type Edit struct {
	Key          string // "document" | "key:<enc>" | "<kind>:<enc>"
	BeforeExists bool
	AfterExists  bool
	BeforeValue  any
	AfterValue   any
}

// Adapter is the trio of pure operations every language adapter exposes.
type Adapter interface {
	// Name is the adapter name used in symbol ids ("document", "json",
	// "python", "text", ...).
	Name() string

	// SymbolHashes maps symbol id -> content hash for every symbol path
	// currently holds.
	SymbolHashes(path, text string) map[string]string

	// Diff returns per-symbol edits between before and after. ok is false
	// when the adapter cannot produce a structural diff (document adapters
	// always return ok=false; json/python return ok=false on parse failure
	// or non-object/duplicate content).
	Diff(path, before, after string) (edits []Edit, ok bool)

	// Apply renders effect against currentText. It is total: a malformed
	// or inapplicable effect returns currentText unchanged.
	Apply(effect model.Effect, currentText string) string
}

// Registry resolves an Adapter by adapter name, so callers that only have
// a symbol id (not a file path) can still dispatch.
type Registry struct {
	document *DocumentAdapter
	json     *JSONAdapter
	python   *PythonAdapter
}

// NewRegistry builds the standard adapter set. pyParser may be nil, in
// which case PythonAdapter falls back to pyparse.RegexParser for every
// call (no external process configured).
func NewRegistry(pyParser pyparse.Parser) *Registry {
	if pyParser == nil {
		pyParser = pyparse.RegexParser{}
	}
	return &Registry{
		document: &DocumentAdapter{},
		json:     &JSONAdapter{},
		python:   &PythonAdapter{Parser: pyParser},
	}
}

// Dispatch selects an adapter by file extension, per spec §4.1.
func (r *Registry) Dispatch(path string) Adapter {
	switch model.ExtensionAdapter(path) {
	case model.AdapterJSON:
		return r.json
	case model.AdapterPython:
		return r.python
	default:
		// markdown, text, and file all use the opaque document adapter;
		// only the symbol-id adapter-name segment differs, which the
		// DocumentAdapter derives itself from the extension.
		return r.document
	}
}

// ByName resolves an adapter by the adapter-name segment of a symbol id
// ("document" adapters all share behavior regardless of which extension
// name — markdown/text/file — they were dispatched under).
func (r *Registry) ByName(name string) Adapter {
	switch name {
	case model.AdapterJSON:
		return r.json
	case model.AdapterPython:
		return r.python
	default:
		return r.document
	}
}

// PythonParseResult exposes the python adapter's parsed structure for
// callers (the conflict classifier's verification check) that need to
// inspect parse errors and duplicate top-level names directly.
func (r *Registry) PythonParseResult(text string) pyparse.Result {
	return r.python.ParseResult(text)
}

// backgroundCtx is used by call sites (classifier, materializer) that
// don't thread a context through legacy Adapter.Apply-style pure calls but
// still need one for the python adapter's ParseTopLevel.
func backgroundCtx() context.Context {
	return context.Background()
}
