package adapter

import (
	"sort"
	"strings"

	"github.com/ashita-ai/akashi/internal/hash"
	"github.com/ashita-ai/akashi/internal/model"
	"github.com/ashita-ai/akashi/internal/pyparse"
)

// PythonAdapter treats each top-level def/class as a symbol, delegating
// span discovery to a pyparse.Parser (external AST process or regex
// fallback).
type PythonAdapter struct {
	Parser pyparse.Parser
}

func (PythonAdapter) Name() string { return model.AdapterPython }

func (a PythonAdapter) parse(text string) pyparse.Result {
	res, err := a.Parser.ParseTopLevel(backgroundCtx(), text)
	if err != nil {
		return pyparse.Result{ParseError: true}
	}
	return res
}

// SymbolHashes maps sym://python/<path>#<kind>:<enc(name)> -> hash(body)
// for each top-level def/class. Returns {} if parsing failed.
func (a PythonAdapter) SymbolHashes(path, text string) map[string]string {
	res := a.parse(text)
	if res.ParseError {
		return map[string]string{}
	}
	out := make(map[string]string, len(res.Symbols))
	for _, key := range res.Order {
		sym := res.Symbols[key]
		id := model.SymbolID(model.AdapterPython, path, model.PythonFragment(sym.Kind, sym.Name))
		out[id] = hash.String(sym.Body)
	}
	return out
}

// ParseResult exposes the parsed structure for callers that need it
// directly (the classifier's verification-conflict check, and apply()'s
// span lookup), avoiding a second parse where the caller already has one.
func (a PythonAdapter) ParseResult(text string) pyparse.Result {
	return a.parse(text)
}

// Diff produces a reordered edit sequence: after-order symbol changes
// (insert or modified replace) first, then before-only symbols in
// name-sorted order (deletes). Byte-identical bodies are skipped. Returns
// ok=false if either side fails to parse or has duplicate top-level names.
func (a PythonAdapter) Diff(_, before, after string) ([]Edit, bool) {
	beforeRes := a.parse(before)
	afterRes := a.parse(after)
	if beforeRes.ParseError || afterRes.ParseError {
		return nil, false
	}
	if len(beforeRes.Duplicates) > 0 || len(afterRes.Duplicates) > 0 {
		return nil, false
	}

	var edits []Edit
	for _, key := range afterRes.Order {
		afterSym := afterRes.Symbols[key]
		beforeSym, existedBefore := beforeRes.Symbols[key]
		if existedBefore && beforeSym.Body == afterSym.Body {
			continue
		}
		edits = append(edits, Edit{
			Key:          key,
			BeforeExists: existedBefore,
			AfterExists:  true,
			BeforeValue:  valueOrNil(existedBefore, beforeSym.Body),
			AfterValue:   afterSym.Body,
		})
	}

	var deletedKeys []string
	for _, key := range beforeRes.Order {
		if _, stillExists := afterRes.Symbols[key]; !stillExists {
			deletedKeys = append(deletedKeys, key)
		}
	}
	sort.Strings(deletedKeys)
	for _, key := range deletedKeys {
		beforeSym := beforeRes.Symbols[key]
		edits = append(edits, Edit{
			Key:          key,
			BeforeExists: true,
			AfterExists:  false,
			BeforeValue:  beforeSym.Body,
			AfterValue:   nil,
		})
	}

	return edits, true
}

func valueOrNil(exists bool, v string) any {
	if !exists {
		return nil
	}
	return v
}

// Apply locates the target symbol by (symbol_kind, symbol_name) and
// mutates currentText: replace/delete swap the symbol's span; insert
// anchors after insert_after_key's end, else before insert_before_key's
// start, else end of file, ensuring the inserted block is newline-
// terminated and separated from surrounding text by a newline.
func (a PythonAdapter) Apply(effect model.Effect, currentText string) string {
	switch effect.Kind {
	case model.EffectPythonReplaceSymbol:
		return a.applyReplace(effect, currentText)
	case model.EffectPythonDeleteSymbol:
		return a.applyDelete(effect, currentText)
	case model.EffectPythonInsertSymbol:
		return a.applyInsert(effect, currentText)
	default:
		return currentText
	}
}

func (a PythonAdapter) applyReplace(effect model.Effect, currentText string) string {
	res := a.parse(currentText)
	if res.ParseError {
		return currentText
	}
	key := effect.SymbolKind + ":" + effect.SymbolName
	sym, ok := res.Symbols[key]
	if !ok {
		return currentText
	}
	block := ensureTrailingNewline(effect.AfterContent)
	return currentText[:sym.Start] + block + currentText[sym.End:]
}

func (a PythonAdapter) applyDelete(effect model.Effect, currentText string) string {
	res := a.parse(currentText)
	if res.ParseError {
		return currentText
	}
	key := effect.SymbolKind + ":" + effect.SymbolName
	sym, ok := res.Symbols[key]
	if !ok {
		return currentText
	}
	return currentText[:sym.Start] + currentText[sym.End:]
}

func (a PythonAdapter) applyInsert(effect model.Effect, currentText string) string {
	res := a.parse(currentText)
	if res.ParseError {
		return currentText
	}
	block := ensureTrailingNewline(effect.AfterContent)

	if effect.InsertAfterKey != nil {
		if sym, ok := res.Symbols[*effect.InsertAfterKey]; ok {
			return insertAt(currentText, sym.End, block)
		}
	}
	if effect.InsertBeforeKey != nil {
		if sym, ok := res.Symbols[*effect.InsertBeforeKey]; ok {
			return insertAt(currentText, sym.Start, block)
		}
	}
	return insertAt(currentText, len(currentText), block)
}

// insertAt inserts block at offset, ensuring a newline separates it from
// whatever precedes and follows it in currentText.
func insertAt(currentText string, offset int, block string) string {
	before := currentText[:offset]
	after := currentText[offset:]
	if before != "" && !strings.HasSuffix(before, "\n") {
		before += "\n"
	}
	if after != "" && !strings.HasPrefix(after, "\n") {
		block = ensureTrailingNewline(block)
	}
	return before + block + after
}

func ensureTrailingNewline(s string) string {
	if s == "" {
		return "\n"
	}
	if strings.HasSuffix(s, "\n") {
		// Collapse any run of trailing newlines to exactly one.
		return strings.TrimRight(s, "\n") + "\n"
	}
	return s + "\n"
}
