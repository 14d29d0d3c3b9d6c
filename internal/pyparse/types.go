// Package pyparse implements the Python top-level symbol parser contract
// of spec §4.1: an external AST-backed parser process speaking a small JSON
// protocol, with a pure regex fallback satisfying the same interface.
package pyparse

import "context"

// Symbol describes one top-level def/class span.
type Symbol struct {
	Kind  string // "def" | "class"
	Name  string
	Start int
	End   int
	Body  string // text[Start:End), with inter-symbol whitespace folded into the preceding symbol
}

// Key returns the "kind:name" map key used in Result.Symbols and Result.Order.
func (s Symbol) Key() string {
	return s.Kind + ":" + s.Name
}

// Result is the parse outcome, matching
// parse_python_top_level(text) -> {symbols, order, duplicates, parse_error}.
type Result struct {
	Symbols    map[string]Symbol
	Order      []string
	Duplicates []string
	ParseError bool
}

// Mode selects which backend the external process should prefer.
type Mode string

const (
	ModeAuto       Mode = "auto"
	ModePreferAST  Mode = "ast"
	ModePreferCST  Mode = "libcst"
)

// Parser is the capability interface every implementation satisfies:
// the external AST-backed process and the regex fallback alike.
type Parser interface {
	ParseTopLevel(ctx context.Context, content string) (Result, error)
}
