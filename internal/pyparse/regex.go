package pyparse

import (
	"context"
	"regexp"
)

// topLevelRE matches "def name" or "class name" anchored at line start
// (no leading whitespace, so nested/indented defs are excluded).
var topLevelRE = regexp.MustCompile(`(?m)^(def|class)\s+([A-Za-z_][A-Za-z0-9_]*)`)

// RegexParser is the pure fallback parser of spec §4.1: used when the
// external AST parser is unavailable (unless strict mode disables it).
// It never reports parse_error=true — a regex scan cannot fail to parse.
type RegexParser struct{}

// ParseTopLevel implements Parser.
func (RegexParser) ParseTopLevel(_ context.Context, content string) (Result, error) {
	matches := topLevelRE.FindAllStringSubmatchIndex(content, -1)
	spans := make([]rawSpan, 0, len(matches))
	for _, m := range matches {
		kind := content[m[2]:m[3]]
		name := content[m[4]:m[5]]
		spans = append(spans, rawSpan{Kind: kind, Name: name, Start: m[0]})
	}
	return extendSpans(spans, content), nil
}
