package engine

import (
	"time"

	"github.com/ashita-ai/akashi/internal/model"
)

// ResolveConflict marks an open conflict resolved directly (the operator-
// initiated path, as opposed to an accepted op's Resolves list resolving
// it automatically — see resolveReferenced in submit.go). resolvedBy is
// free-form provenance, mirroring op.Metadata.Author.
func (e *Engine) ResolveConflict(conflictID, resolvedBy string) (model.Conflict, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.conflicts[conflictID]
	if !ok {
		return model.Conflict{}, model.NewAPIError(model.ErrCodeNotFound, "conflict %q not found", conflictID)
	}
	if c.Status == model.ConflictResolved {
		return c, nil
	}

	now := time.Now().UTC()
	c.Status = model.ConflictResolved
	c.ResolvedAt = &now
	c.ResolvedBy = resolvedBy
	e.conflicts[conflictID] = c
	e.events.Publish(Event{Kind: EventConflict, State: c.State, Payload: c})
	return c, nil
}

// resolveReferenced marks every conflict id named in op.Resolves resolved,
// per spec §4.8: an accepted op that lists a conflict in Resolves is
// treated as the fix for it.
func (e *Engine) resolveReferenced(op model.Op) {
	if len(op.Resolves) == 0 {
		return
	}
	now := time.Now().UTC()
	for _, cid := range op.Resolves {
		c, ok := e.conflicts[cid]
		if !ok || c.Status == model.ConflictResolved {
			continue
		}
		c.Status = model.ConflictResolved
		c.ResolvedAt = &now
		c.ResolvedBy = op.Metadata.Author
		e.conflicts[cid] = c
		e.events.Publish(Event{Kind: EventConflict, State: c.State, Payload: c})
	}
}
