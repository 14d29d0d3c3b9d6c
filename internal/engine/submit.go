package engine

import (
	"time"

	"github.com/ashita-ai/akashi/internal/hash"
	"github.com/ashita-ai/akashi/internal/model"
)

// Submit runs the six-step atomic submission pipeline of spec §4.3:
// normalize, idempotency check, state check, stage, evaluate each op in
// order against the staged view, then commit everything that was accepted.
//
// Evaluation stops at the first op that is rejected (a state other than the
// change set's, or a shape error) or conflicted; every op after it is marked skipped without being evaluated.
// Commit is all-or-nothing for the whole change set: the log, indexes, and
// state heads are only mutated when every op in the set was accepted —
// otherwise nothing is written, though the per-op results (including an
// "accepted" result for an op that preceded the failure) and any newly
// raised conflicts are still recorded in the change-set outcome.
func (e *Engine) Submit(cs model.ChangeSet) (model.Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Step 1: normalize.
	if err := model.ValidateChangeSet(cs); err != nil {
		return model.Outcome{}, model.NewAPIError(model.ErrCodeInvalidInput, "%s", err)
	}
	if cs.Metadata.Timestamp == "" {
		cs.Metadata.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if cs.ID == "" {
		cs.ID = hash.ChangeSetID(cs.IdentityFields())
	}

	// Step 2: idempotency check.
	if rec, exists := e.changeSets[cs.ID]; exists {
		return e.outcomeFromRecord(rec, true), nil
	}

	// Step 3: state check.
	st, ok := e.states[cs.State]
	if !ok {
		return model.Outcome{}, model.NewAPIError(model.ErrCodeStateMissing, "state %q not found", cs.State)
	}
	idx := e.indexes[cs.State]

	// Step 4: stage.
	symbolHead, symbolHash := idx.snapshot()
	tree, err := e.materializeHeadsLocked(st)
	if err != nil {
		return model.Outcome{}, err
	}
	stg := &staging{
		state:            cs.State,
		symbolHead:       symbolHead,
		symbolHash:       symbolHash,
		tree:             tree,
		localParents:     make(map[string]bool),
		lookup:           e.lookupOp,
		hasOpenConflicts: e.stateHasOpenConflicts(cs.State),
		registry:         e.registry,
	}

	// Step 5: evaluate each op against the staged view.
	var results []model.OpResult
	var accepted []model.Op
	var acceptedIDs []string
	var conflictIDs []string
	var newConflicts []model.Conflict

	var stoppedEarly bool

	// Ancestry walks also see ops provisionally accepted earlier in this set.
	stg.lookup = func(id string) (model.Op, bool) {
		for _, op := range accepted {
			if op.ID == id {
				return op, true
			}
		}
		return e.lookupOp(id)
	}

	for i, raw := range cs.Ops {
		if raw.State != "" && raw.State != cs.State {
			results = append(results, model.OpResult{Status: model.OpRejected, Error: "op state does not match change set state"})
			results = skipRemaining(results, cs.Ops[i+1:])
			stoppedEarly = true
			break
		}

		op := raw.Clone()
		op.State = cs.State
		if op.Metadata.Timestamp == "" {
			op.Metadata.Timestamp = cs.Metadata.Timestamp
		}
		if op.Metadata.Author == "" {
			op.Metadata.Author = cs.Metadata.Author
		}

		if shapeErr := model.ValidateOp(op); shapeErr != nil {
			results = append(results, model.OpResult{Status: model.OpRejected, Error: shapeErr.Error()})
			results = skipRemaining(results, cs.Ops[i+1:])
			stoppedEarly = true
			break
		}

		if op.ID == "" {
			op.ID = hash.OpID(op.IdentityFields())
		}

		if _, already := e.ops[op.ID]; already || stg.localParents[op.ID] {
			results = append(results, model.OpResult{OpID: op.ID, Status: model.OpAccepted, Duplicate: true})
			continue
		}

		opConflicts := stampConflicts(classify(op, stg, st.Policy, e.nextConflictID))
		if len(opConflicts) > 0 {
			ids := make([]string, len(opConflicts))
			for i, c := range opConflicts {
				ids[i] = c.ID
			}
			newConflicts = append(newConflicts, opConflicts...)
			conflictIDs = append(conflictIDs, ids...)
			results = append(results, model.OpResult{OpID: op.ID, Status: model.OpConflicted, ConflictIDs: ids})
			results = skipRemaining(results, cs.Ops[i+1:])
			stoppedEarly = true
			break
		}

		op.AcceptedAt = time.Now().UTC()
		op.CanonicalOrder = e.nextOpSeq()

		applyEffect(stg.tree, e.registry, op)
		stg.applySymbolWrites(op)
		stg.localParents[op.ID] = true

		accepted = append(accepted, op)
		acceptedIDs = append(acceptedIDs, op.ID)
		results = append(results, model.OpResult{OpID: op.ID, Status: model.OpAccepted})
	}

	// Step 6: commit or record. Commit is all-or-nothing: an op evaluated
	// as accepted before a later op in the same set stopped evaluation is
	// reported in Results as accepted but never written to the log/index,
	// per spec §8 scenario S5.
	if stoppedEarly {
		accepted = nil
		acceptedIDs = nil
	}

	for _, op := range accepted {
		e.ops[op.ID] = op
		idx.recordAccepted(op)
		e.events.Publish(Event{Kind: EventOpAccepted, State: cs.State, Payload: op})
		e.resolveReferenced(op)
	}
	for _, c := range newConflicts {
		e.conflicts[c.ID] = c
		e.events.Publish(Event{Kind: EventConflict, State: cs.State, Payload: c})
	}
	if len(accepted) > 0 {
		st.Heads = append([]string(nil), idx.heads...)
		st.UpdatedAt = time.Now().UTC()
		e.events.Publish(Event{Kind: EventStateUpdate, State: cs.State, Payload: *st})
	}

	if len(acceptedIDs) > 0 {
		e.audit.Append(cs.State, cs.ID, acceptedIDs)
	}

	status := changeSetStatus(results)
	e.sequence[cs.State]++
	rec := model.ChangeSetRecord{
		ID:            cs.ID,
		State:         cs.State,
		Sequence:      e.sequence[cs.State],
		Status:        status,
		Results:       results,
		AcceptedOpIDs: acceptedIDs,
		ConflictIDs:   conflictIDs,
		CreatedAt:     time.Now().UTC(),
	}
	e.changeSets[cs.ID] = rec
	e.events.Publish(Event{Kind: EventChangeSet, State: cs.State, Payload: rec})

	return e.outcomeFromRecord(rec, false), nil
}

// materializeHeadsLocked is Materialize's body minus locking, for callers
// that already hold e.mu.
func (e *Engine) materializeHeadsLocked(st *model.State) (map[string]string, error) {
	heads := st.Heads
	if len(heads) == 0 {
		heads = st.BaseHeads
	}
	ops := e.ancestryOps(heads)
	tree := make(map[string]string)
	for _, op := range ops {
		applyEffect(tree, e.registry, op)
	}
	return tree, nil
}

// skipRemaining appends a skipped result for every op evaluation stopped
// short of reaching, per spec §4.3 step 5.
func skipRemaining(results []model.OpResult, remaining []model.Op) []model.OpResult {
	for range remaining {
		results = append(results, model.OpResult{Status: model.OpSkipped})
	}
	return results
}

// stampConflicts sets CreatedAt on freshly classified conflicts, which
// classify itself leaves zero since it has no reason to call time.Now
// four separate times across its rules.
func stampConflicts(conflicts []model.Conflict) []model.Conflict {
	now := time.Now().UTC()
	for i := range conflicts {
		conflicts[i].CreatedAt = now
	}
	return conflicts
}

func changeSetStatus(results []model.OpResult) model.ChangeSetStatus {
	var anyAccepted, anyOther bool
	for _, r := range results {
		switch r.Status {
		case model.OpAccepted:
			anyAccepted = true
		default:
			anyOther = true
		}
	}
	switch {
	case anyAccepted && !anyOther:
		return model.ChangeSetAccepted
	case anyAccepted && anyOther:
		return model.ChangeSetConflicted
	default:
		return model.ChangeSetRejected
	}
}

func (e *Engine) outcomeFromRecord(rec model.ChangeSetRecord, duplicate bool) model.Outcome {
	details := make([]model.Conflict, 0, len(rec.ConflictIDs))
	for _, id := range rec.ConflictIDs {
		if c, ok := e.conflicts[id]; ok {
			details = append(details, c)
		}
	}
	return model.Outcome{
		OK:              rec.Status != model.ChangeSetRejected,
		ChangeSetID:     rec.ID,
		Status:          rec.Status,
		Accepted:        rec.AcceptedOpIDs,
		Conflicts:       rec.ConflictIDs,
		ConflictDetails: details,
		Results:         rec.Results,
		Duplicate:       duplicate,
	}
}
