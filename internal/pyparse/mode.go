package pyparse

import (
	"context"
	"errors"
)

// ModeParser combines the external AST-backed parser with the regex
// fallback, selected by Mode, with a Strict flag that disables the
// fallback entirely (per spec §4.1: "unless strict mode disables
// fallback"). When External is nil, ModeParser always uses the fallback.
type ModeParser struct {
	External *ExternalParser
	Fallback Parser // defaults to RegexParser{} if nil
	Strict   bool
}

// NewModeParser builds a ModeParser. Pass a nil external to always use the
// regex fallback (e.g. when no parser binary is configured).
func NewModeParser(external *ExternalParser, strict bool) *ModeParser {
	return &ModeParser{External: external, Fallback: RegexParser{}, Strict: strict}
}

// ParseTopLevel implements Parser.
func (m *ModeParser) ParseTopLevel(ctx context.Context, content string) (Result, error) {
	if m.External != nil {
		res, err := m.External.ParseTopLevel(ctx, content)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, ErrParserUnavailable) {
			return Result{}, err
		}
		if m.Strict {
			// Strict mode disables the fallback: an unavailable external
			// parser is reported as a parse failure, not silently downgraded.
			return Result{ParseError: true}, nil
		}
	}
	fallback := m.Fallback
	if fallback == nil {
		fallback = RegexParser{}
	}
	return fallback.ParseTopLevel(ctx, content)
}
