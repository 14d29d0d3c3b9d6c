package model

import "fmt"

// ValidateOp checks the shape invariants of an op: writes non-empty,
// target symbol id well-formed, effect kind recognized, precondition kinds
// recognized. It does not check preconditions/ancestry against any index —
// that is the classifier's job.
func ValidateOp(op Op) error {
	if op.State == "" {
		return fmt.Errorf("op: state is required")
	}
	if op.Target.SymbolID == "" {
		return fmt.Errorf("op: target.symbol_id is required")
	}
	if _, ok := ParseSymbolID(op.Target.SymbolID); !ok {
		return fmt.Errorf("op: target.symbol_id %q is not a well-formed symbol id", op.Target.SymbolID)
	}
	if len(op.Writes) == 0 {
		return fmt.Errorf("op: writes must be non-empty")
	}
	for _, w := range op.Writes {
		if _, ok := ParseSymbolID(w); !ok {
			return fmt.Errorf("op: writes entry %q is not a well-formed symbol id", w)
		}
	}
	for _, r := range op.Reads {
		if _, ok := ParseSymbolID(r); !ok {
			return fmt.Errorf("op: reads entry %q is not a well-formed symbol id", r)
		}
	}
	for _, p := range op.Preconditions {
		switch p.Kind {
		case PreconditionSymbolExists, PreconditionSignatureHash:
		default:
			return fmt.Errorf("op: unrecognized precondition kind %q", p.Kind)
		}
	}
	if err := validateEffect(op.Effect); err != nil {
		return err
	}
	return nil
}

func validateEffect(e Effect) error {
	switch e.Kind {
	case EffectUpsertFile:
		if e.Path == "" {
			return fmt.Errorf("effect upsert_file: path is required")
		}
	case EffectDeleteFile:
		if e.Path == "" {
			return fmt.Errorf("effect delete_file: path is required")
		}
	case EffectJSONSetKey:
		if e.Path == "" || e.Key == "" {
			return fmt.Errorf("effect json_set_key: path and key are required")
		}
	case EffectJSONDeleteKey:
		if e.Path == "" || e.Key == "" {
			return fmt.Errorf("effect json_delete_key: path and key are required")
		}
	case EffectPythonReplaceSymbol:
		if e.Path == "" || e.SymbolKind == "" || e.SymbolName == "" {
			return fmt.Errorf("effect python_replace_symbol: path, symbol_kind, symbol_name are required")
		}
	case EffectPythonInsertSymbol:
		if e.Path == "" || e.SymbolKind == "" || e.SymbolName == "" {
			return fmt.Errorf("effect python_insert_symbol: path, symbol_kind, symbol_name are required")
		}
	case EffectPythonDeleteSymbol:
		if e.Path == "" || e.SymbolKind == "" || e.SymbolName == "" {
			return fmt.Errorf("effect python_delete_symbol: path, symbol_kind, symbol_name are required")
		}
	case EffectReplaceBody:
		// legacy: only requires after_content; path comes from target.path_hint.
	default:
		return fmt.Errorf("effect: unrecognized kind %q", e.Kind)
	}
	return nil
}

// ValidateChangeSet checks change-set shape: a state name and non-empty
// ops. Per-op errors (an op whose state differs from the change set's, or
// an op shape error) are NOT returned here — the engine evaluates those
// op-by-op so that an earlier
// op in the set can still be accepted before a later shape error stops
// evaluation (spec §4.3 step 5).
func ValidateChangeSet(cs ChangeSet) error {
	if cs.State == "" {
		return fmt.Errorf("change_set: state is required")
	}
	if len(cs.Ops) == 0 {
		return fmt.Errorf("change_set: ops must be non-empty")
	}
	return nil
}
