package engine

import "github.com/ashita-ai/akashi/internal/model"

// stateIndex is the mutable per-state view the engine keeps in memory: the
// symbol_head/symbol_hash maps of spec §3, the state's heads (a minimal
// antichain of op ids), and the ordered list of op ids accepted in this
// state, which Promote scans for earlier promotions and Snapshot persists.
type stateIndex struct {
	symbolHead map[string]string // symbol -> op id of the op that last wrote it
	symbolHash map[string]string // symbol -> declared content hash after that write
	opIDs      []string          // accepted op ids, in canonical acceptance order
	heads      []string          // minimal antichain: op ids with no accepted child in this state
}

func newStateIndex() *stateIndex {
	return &stateIndex{
		symbolHead: make(map[string]string),
		symbolHash: make(map[string]string),
	}
}

// snapshot returns copies of the maps/slices suitable for handing to a
// staging view without risk of the caller mutating engine state.
func (idx *stateIndex) snapshot() (symbolHead, symbolHash map[string]string) {
	symbolHead = make(map[string]string, len(idx.symbolHead))
	for k, v := range idx.symbolHead {
		symbolHead[k] = v
	}
	symbolHash = make(map[string]string, len(idx.symbolHash))
	for k, v := range idx.symbolHash {
		symbolHash[k] = v
	}
	return symbolHead, symbolHash
}

// recordAccepted folds a newly accepted op into the index: advances
// symbol_head/symbol_hash, appends to opIDs, and updates heads by dropping
// any of the op's parents that belonged to this state's prior heads and
// adding the op itself.
func (idx *stateIndex) recordAccepted(op model.Op) {
	for _, sym := range op.Writes {
		idx.symbolHead[sym] = op.ID
		switch {
		case op.Effect.SymbolHashesNull[sym]:
			delete(idx.symbolHash, sym)
		case op.Effect.SymbolHashes != nil:
			if h, ok := op.Effect.SymbolHashes[sym]; ok {
				idx.symbolHash[sym] = h
				continue
			}
			if h, ok := legacySymbolHash(op, sym); ok {
				idx.symbolHash[sym] = h
			}
		default:
			if h, ok := legacySymbolHash(op, sym); ok {
				idx.symbolHash[sym] = h
			}
		}
	}

	idx.opIDs = append(idx.opIDs, op.ID)

	parentSet := make(map[string]bool, len(op.Parents))
	for _, p := range op.Parents {
		parentSet[p] = true
	}
	newHeads := idx.heads[:0:0]
	for _, h := range idx.heads {
		if !parentSet[h] {
			newHeads = append(newHeads, h)
		}
	}
	idx.heads = append(newHeads, op.ID)
}
