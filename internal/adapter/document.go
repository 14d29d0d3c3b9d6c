package adapter

import (
	"github.com/ashita-ai/akashi/internal/hash"
	"github.com/ashita-ai/akashi/internal/model"
)

// DocumentAdapter treats a file as an opaque whole document: one symbol,
// fragment "document", hash of the raw text. Covers markdown, text, and
// any unrecognized extension.
type DocumentAdapter struct{}

func (DocumentAdapter) Name() string { return model.AdapterDocument }

// SymbolHashes returns a single {document -> hash(text)} entry, keyed
// under the extension-derived adapter name (markdown/text/file), not the
// literal "document" — symbol ids must match what ExtensionAdapter
// dispatches path to, per spec §8 scenario S1.
func (DocumentAdapter) SymbolHashes(path, text string) map[string]string {
	return map[string]string{
		model.SymbolID(model.ExtensionAdapter(path), path, model.DocumentFragment): hash.String(text),
	}
}

// Diff is not supported for document adapters — callers use file-level
// upsert_file/delete_file directly, per spec §4.1.
func (DocumentAdapter) Diff(_, _, _ string) ([]Edit, bool) {
	return nil, false
}

// Apply handles upsert_file, delete_file, and the legacy replace_body
// effect (whose content lives in AfterContent, addressed via path_hint at
// the call site — Apply itself just swaps in the new text).
func (DocumentAdapter) Apply(effect model.Effect, currentText string) string {
	switch effect.Kind {
	case model.EffectUpsertFile:
		return effect.Content
	case model.EffectDeleteFile:
		return ""
	case model.EffectReplaceBody:
		return effect.AfterContent
	default:
		return currentText
	}
}
