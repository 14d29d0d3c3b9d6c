package engine

import (
	"fmt"

	"github.com/ashita-ai/akashi/internal/model"
)

// conflictIDFunc assigns the next conflict id; classify itself is pure
// given one (CreatedAt is stamped by the caller after classify returns, see
// stampConflicts in submit.go).
type conflictIDFunc func() string

// classify runs the four ordered rules of spec §4.4 against a staged op
// and returns every conflict it produces (possibly none, possibly more
// than one in principle, though in practice a semantic_write_conflict on
// evaluation stops the pipeline before later rules would matter for THIS
// op — all rules still run so policy/verification conflicts on the same
// op are reported together when no write conflict fires first).
func classify(op model.Op, st *staging, policy model.Policy, nextConflictID conflictIDFunc) []model.Conflict {
	var conflicts []model.Conflict

	// Rule 1: preconditions.
	for _, pre := range op.Preconditions {
		switch pre.Kind {
		case model.PreconditionSymbolExists:
			if _, exists := st.symbolHead[op.Target.SymbolID]; !exists {
				conflicts = append(conflicts, model.Conflict{
					ID:     nextConflictID(),
					State:  st.state,
					Ops:    []string{op.ID},
					Type:   model.ConflictPrecondition,
					Target: op.Target.SymbolID,
					Reason: fmt.Sprintf("symbol_exists precondition failed: %s has no writer", op.Target.SymbolID),
					Status: model.ConflictOpen,
				})
			}
		case model.PreconditionSignatureHash:
			resolved, derivable := symbolContentHash(st.tree, st.registry, op.Target.SymbolID)
			var actual string
			if derivable {
				actual = resolved
			} else {
				actual = st.symbolHash[op.Target.SymbolID]
			}
			if actual != pre.Value {
				conflicts = append(conflicts, model.Conflict{
					ID:     nextConflictID(),
					State:  st.state,
					Ops:    []string{op.ID},
					Type:   model.ConflictPrecondition,
					Target: op.Target.SymbolID,
					Reason: fmt.Sprintf("signature_hash precondition failed: expected %s, found %s", pre.Value, actual),
					Status: model.ConflictOpen,
				})
			}
		}
	}

	// Rule 2: semantic write conflict.
	for _, sym := range op.Writes {
		head, exists := st.symbolHead[sym]
		if !exists {
			continue
		}
		if st.isAncestorOrSelf(head, op.Parents) {
			continue
		}
		conflicts = append(conflicts, model.Conflict{
			ID:     nextConflictID(),
			State:  st.state,
			Ops:    []string{head, op.ID},
			Type:   model.ConflictSemanticWrite,
			Target: sym,
			Reason: fmt.Sprintf("symbol %s was last written by %s, which is not an ancestor of this op", sym, head),
			Status: model.ConflictOpen,
		})
	}

	// Rule 3: policy conflict.
	if !policy.AllowOpenConflicts && st.hasOpenConflicts {
		conflicts = append(conflicts, model.Conflict{
			ID:     nextConflictID(),
			State:  st.state,
			Ops:    []string{op.ID},
			Type:   model.ConflictPolicy,
			Target: op.Target.SymbolID,
			Reason: "state policy disallows submission while open conflicts exist",
			Status: model.ConflictOpen,
		})
	}

	// Rule 4: verification conflict (python files only).
	if verifyConflict := verifyPythonEffect(op, st); verifyConflict != nil {
		verifyConflict.ID = nextConflictID()
		conflicts = append(conflicts, *verifyConflict)
	}

	return conflicts
}

// verifyPythonEffect applies op's effect to a scratch copy of the staged
// tree and re-parses the result, per spec §4.4 rule 4. Returns nil if the
// op doesn't target a .py file or verification passes.
func verifyPythonEffect(op model.Op, st *staging) *model.Conflict {
	path := pythonTargetPath(op)
	if path == "" {
		return nil
	}

	scratch := make(map[string]string, len(st.tree))
	for k, v := range st.tree {
		scratch[k] = v
	}
	applyEffect(scratch, st.registry, op)

	res := st.registry.PythonParseResult(scratch[path])

	if res.ParseError {
		return &model.Conflict{
			State:  op.State,
			Ops:    []string{op.ID},
			Type:   model.ConflictVerification,
			Target: op.Target.SymbolID,
			Reason: "python adapter parse failed after applying operation",
			Status: model.ConflictOpen,
		}
	}
	if len(res.Duplicates) > 0 {
		return &model.Conflict{
			State:  op.State,
			Ops:    []string{op.ID},
			Type:   model.ConflictVerification,
			Target: op.Target.SymbolID,
			Reason: fmt.Sprintf("duplicate top-level symbols after applying operation: %v", res.Duplicates),
			Status: model.ConflictOpen,
		}
	}
	return nil
}

func pythonTargetPath(op model.Op) string {
	switch op.Effect.Kind {
	case model.EffectPythonReplaceSymbol, model.EffectPythonInsertSymbol, model.EffectPythonDeleteSymbol:
		return op.Effect.Path
	default:
		return ""
	}
}
