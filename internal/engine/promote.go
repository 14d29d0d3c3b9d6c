package engine

import (
	"time"

	"github.com/ashita-ai/akashi/internal/hash"
	"github.com/ashita-ai/akashi/internal/model"
)

// Promote replays sourceOpIDs (ops that already exist in sourceState) onto
// targetState, per spec §4.7. Each replayed op gets a deterministic new id
// derived from (source_op_id, source_state, target_state, parent_heads) so
// promoting the same ops onto the same target tip twice is a no-op the
// second time, and it is evaluated through the same classifier targetState
// would apply to any other submission — a promoted op can still conflict.
// A source op that an earlier promotion already copied into targetState is
// reported as a duplicate of that copy instead of being copied again.
func (e *Engine) Promote(sourceState, targetState string, sourceOpIDs []string) (model.Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.states[sourceState]; !ok {
		return model.Outcome{}, model.NewAPIError(model.ErrCodeStateMissing, "source state %q not found", sourceState)
	}
	tgtSt, ok := e.states[targetState]
	if !ok {
		return model.Outcome{}, model.NewAPIError(model.ErrCodeStateMissing, "target state %q not found", targetState)
	}
	idx := e.indexes[targetState]

	symbolHead, symbolHash := idx.snapshot()
	tree, err := e.materializeHeadsLocked(tgtSt)
	if err != nil {
		return model.Outcome{}, err
	}
	stg := &staging{
		state:            targetState,
		symbolHead:       symbolHead,
		symbolHash:       symbolHash,
		tree:             tree,
		localParents:     make(map[string]bool),
		lookup:           e.lookupOp,
		hasOpenConflicts: e.stateHasOpenConflicts(targetState),
		registry:         e.registry,
	}

	targetHeads := append([]string(nil), tgtSt.Heads...)
	if len(targetHeads) == 0 {
		targetHeads = append([]string(nil), tgtSt.BaseHeads...)
	}

	var results []model.OpResult
	var accepted []model.Op
	var acceptedIDs []string
	var conflictIDs []string
	var newConflicts []model.Conflict

	// Ancestry walks also see ops promoted earlier in this same call.
	stg.lookup = func(id string) (model.Op, bool) {
		for _, op := range accepted {
			if op.ID == id {
				return op, true
			}
		}
		return e.lookupOp(id)
	}

	alreadyPromoted := make(map[string]string) // source op id -> its copy in target
	for _, id := range idx.opIDs {
		if prior, ok := e.ops[id]; ok && prior.Metadata.SourceState == sourceState && prior.Metadata.SourceOpID != "" {
			alreadyPromoted[prior.Metadata.SourceOpID] = id
		}
	}

	// Each source op is promoted as if submitted as its own single-op
	// change set (spec §4.7 step 4): a conflicted or rejected op stops the
	// promotion entirely, leaving every later source op id untouched,
	// while ops already promoted earlier in this same call remain
	// committed — they succeeded as independent units before the failure.
	for _, srcID := range sourceOpIDs {
		srcOp, found := e.ops[srcID]
		if !found || srcOp.State != sourceState {
			results = append(results, model.OpResult{OpID: srcID, Status: model.OpRejected, Error: "source op not found in source state"})
			break
		}
		if prior, ok := alreadyPromoted[srcID]; ok {
			results = append(results, model.OpResult{OpID: prior, Status: model.OpAccepted, Duplicate: true})
			continue
		}

		newID := hash.PromoteOpID(srcOp.ID, sourceState, targetState, targetHeads)
		if _, already := e.ops[newID]; already {
			results = append(results, model.OpResult{OpID: newID, Status: model.OpAccepted, Duplicate: true})
			continue
		}

		op := srcOp.Clone()
		op.ID = newID
		op.State = targetState
		op.Parents = append([]string(nil), targetHeads...)
		op.Metadata.SourceState = sourceState
		op.Metadata.SourceOpID = srcOp.ID
		op.AcceptedAt = time.Time{}
		op.CanonicalOrder = 0

		opConflicts := stampConflicts(classify(op, stg, tgtSt.Policy, e.nextConflictID))
		if len(opConflicts) > 0 {
			ids := make([]string, len(opConflicts))
			for i, c := range opConflicts {
				ids[i] = c.ID
			}
			newConflicts = append(newConflicts, opConflicts...)
			conflictIDs = append(conflictIDs, ids...)
			stg.hasOpenConflicts = true
			results = append(results, model.OpResult{OpID: op.ID, Status: model.OpConflicted, ConflictIDs: ids})
			break
		}

		op.AcceptedAt = time.Now().UTC()
		op.CanonicalOrder = e.nextOpSeq()

		applyEffect(stg.tree, e.registry, op)
		stg.applySymbolWrites(op)
		stg.localParents[op.ID] = true
		targetHeads = []string{op.ID}

		accepted = append(accepted, op)
		acceptedIDs = append(acceptedIDs, op.ID)
		results = append(results, model.OpResult{OpID: op.ID, Status: model.OpAccepted})
	}

	for _, op := range accepted {
		e.ops[op.ID] = op
		idx.recordAccepted(op)
		e.events.Publish(Event{Kind: EventOpAccepted, State: targetState, Payload: op})
		e.resolveReferenced(op)
	}
	for _, c := range newConflicts {
		e.conflicts[c.ID] = c
		e.events.Publish(Event{Kind: EventConflict, State: targetState, Payload: c})
	}
	if len(accepted) > 0 || len(newConflicts) > 0 {
		tgtSt.Heads = append([]string(nil), idx.heads...)
		tgtSt.UpdatedAt = time.Now().UTC()
		e.events.Publish(Event{Kind: EventStateUpdate, State: targetState, Payload: *tgtSt})
	}

	recID := "promote_" + hash.Content(map[string]any{
		"source_state":  sourceState,
		"target_state":  targetState,
		"source_op_ids": toAnySlice(sourceOpIDs),
	})[len("hash_"):]

	if len(acceptedIDs) > 0 {
		e.audit.Append(targetState, recID, acceptedIDs)
	}

	status := changeSetStatus(results)
	e.sequence[targetState]++
	rec := model.ChangeSetRecord{
		ID:            recID,
		State:         targetState,
		Sequence:      e.sequence[targetState],
		Status:        status,
		Results:       results,
		AcceptedOpIDs: acceptedIDs,
		ConflictIDs:   conflictIDs,
		CreatedAt:     time.Now().UTC(),
	}
	e.changeSets[recID] = rec
	e.events.Publish(Event{Kind: EventChangeSet, State: targetState, Payload: rec})

	return e.outcomeFromRecord(rec, false), nil
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
