// Package model defines Forge's data model: symbol identifiers, operations,
// change sets, conflicts, and states, per spec §3.
package model

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Adapter names used in symbol identifiers and for extension dispatch.
const (
	AdapterDocument = "document"
	AdapterJSON     = "json"
	AdapterPython   = "python"
	AdapterText     = "text"
	AdapterFile     = "file"
)

// SymbolID builds "sym://<adapter>/<path>#<fragment>". path is normalized
// to forward slashes regardless of host OS.
func SymbolID(adapter, filePath, fragment string) string {
	clean := path.Clean(strings.ReplaceAll(filePath, `\`, "/"))
	clean = strings.TrimPrefix(clean, "./")
	return fmt.Sprintf("sym://%s/%s#%s", adapter, clean, fragment)
}

// DocumentFragment is the fixed fragment for whole-document symbols.
const DocumentFragment = "document"

// KeyFragment builds the "key:<url-encoded-key>" fragment for a JSON
// top-level key symbol.
func KeyFragment(key string) string {
	return "key:" + url.QueryEscape(key)
}

// PythonFragment builds the "<kind>:<url-encoded-name>" fragment for a
// Python top-level def/class symbol. kind must be "def" or "class".
func PythonFragment(kind, name string) string {
	return kind + ":" + url.QueryEscape(name)
}

// ParsedSymbolID is the decomposed form of a symbol identifier.
type ParsedSymbolID struct {
	Adapter  string
	Path     string
	Fragment string
}

// ParseSymbolID decomposes "sym://<adapter>/<path>#<fragment>". Returns
// ok=false if s is not a well-formed symbol id.
func ParseSymbolID(s string) (ParsedSymbolID, bool) {
	const prefix = "sym://"
	if !strings.HasPrefix(s, prefix) {
		return ParsedSymbolID{}, false
	}
	rest := s[len(prefix):]
	hashIdx := strings.IndexByte(rest, '#')
	if hashIdx < 0 {
		return ParsedSymbolID{}, false
	}
	head, fragment := rest[:hashIdx], rest[hashIdx+1:]
	slashIdx := strings.IndexByte(head, '/')
	if slashIdx < 0 {
		return ParsedSymbolID{}, false
	}
	return ParsedSymbolID{
		Adapter:  head[:slashIdx],
		Path:     head[slashIdx+1:],
		Fragment: fragment,
	}, true
}

// ExtensionAdapter returns the adapter name the file extension dispatches
// to, per spec §4.1: .py -> python, .json -> json, .md/.markdown -> markdown
// (a document variant), .txt -> text, else -> file.
func ExtensionAdapter(filePath string) string {
	lower := strings.ToLower(filePath)
	switch {
	case strings.HasSuffix(lower, ".py"):
		return AdapterPython
	case strings.HasSuffix(lower, ".json"):
		return AdapterJSON
	case strings.HasSuffix(lower, ".md"), strings.HasSuffix(lower, ".markdown"):
		return "markdown"
	case strings.HasSuffix(lower, ".txt"):
		return AdapterText
	default:
		return AdapterFile
	}
}

// IsDocumentAdapter reports whether adapter is one of the opaque,
// whole-file document adapters (everything except json and python).
func IsDocumentAdapter(adapter string) bool {
	return adapter != AdapterJSON && adapter != AdapterPython
}
