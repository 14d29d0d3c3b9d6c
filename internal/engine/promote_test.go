package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/akashi/internal/model"
)

func TestPromote_UnknownSourceStateErrors(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Promote("nope", "main", []string{"op_1"})
	require.Error(t, err)
	apiErr, ok := err.(*model.APIError)
	require.True(t, ok)
	assert.Equal(t, model.ErrCodeStateMissing, apiErr.Code)
}

func TestPromote_UnknownTargetStateErrors(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Promote("main", "nope", []string{"op_1"})
	require.Error(t, err)
	apiErr, ok := err.(*model.APIError)
	require.True(t, ok)
	assert.Equal(t, model.ErrCodeStateMissing, apiErr.Code)
}

func TestPromote_UnknownSourceOpIsRejectedNotErrored(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.CreateState("dev", "", nil)
	require.NoError(t, err)

	out, err := e.Promote("main", "dev", []string{"does_not_exist"})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, model.OpRejected, out.Results[0].Status)
}

func TestPromote_ConflictingOpSurfacesAsConflictNotError(t *testing.T) {
	e := newTestEngine(t)
	first, err := e.Submit(model.ChangeSet{State: "main", Ops: []model.Op{upsertOp("main", "a.txt", "hello\n")}})
	require.NoError(t, err)
	require.Len(t, first.Accepted, 1)

	_, err = e.CreateState("prod", "", nil)
	require.NoError(t, err)
	// Prod already has its own unrelated write to the same path, so
	// replaying main's op onto prod (parented on main's history, not
	// prod's) is a stale semantic write.
	_, err = e.Submit(model.ChangeSet{State: "prod", Ops: []model.Op{upsertOp("prod", "a.txt", "already-here\n")}})
	require.NoError(t, err)

	out, err := e.Promote("main", "prod", first.Accepted)
	require.NoError(t, err)
	assert.Equal(t, model.ChangeSetRejected, out.Status)
	require.Len(t, out.Conflicts, 1)
	assert.Equal(t, model.ConflictSemanticWrite, out.ConflictDetails[0].Type)
}

func TestPromote_StopsOnFirstConflictAndLeavesLaterOpsUnattempted(t *testing.T) {
	e := newTestEngine(t)
	a, err := e.Submit(model.ChangeSet{State: "main", Ops: []model.Op{upsertOp("main", "a.txt", "hello\n")}})
	require.NoError(t, err)
	b, err := e.Submit(model.ChangeSet{State: "main", Ops: []model.Op{upsertOp("main", "b.txt", "world\n")}})
	require.NoError(t, err)

	_, err = e.CreateState("dev", "", nil)
	require.NoError(t, err)
	// Pre-seed dev with a conflicting write to a.txt so promoting a.txt
	// first fails and, per spec, stops the promotion before b.txt is ever
	// attempted.
	_, err = e.Submit(model.ChangeSet{State: "dev", Ops: []model.Op{upsertOp("dev", "a.txt", "dev-local\n")}})
	require.NoError(t, err)

	out, err := e.Promote("main", "dev", append(append([]string(nil), a.Accepted...), b.Accepted...))
	require.NoError(t, err)
	require.Len(t, out.Results, 1, "promotion must stop at the first conflicted source op")
	assert.Equal(t, model.OpConflicted, out.Results[0].Status)

	tree, err := e.Materialize("dev")
	require.NoError(t, err)
	_, exists := tree["b.txt"]
	assert.False(t, exists, "b.txt's promotion must never be attempted once a.txt conflicts")
	assert.Equal(t, "dev-local\n", tree["a.txt"], "conflicting promoted op must not overwrite the target's own history")
}

func TestPromote_EarlierSuccessfulPromotionsInSameCallStayCommittedAfterLaterConflict(t *testing.T) {
	e := newTestEngine(t)
	a, err := e.Submit(model.ChangeSet{State: "main", Ops: []model.Op{upsertOp("main", "a.txt", "hello\n")}})
	require.NoError(t, err)
	b, err := e.Submit(model.ChangeSet{State: "main", Ops: []model.Op{upsertOp("main", "b.txt", "world\n")}})
	require.NoError(t, err)

	_, err = e.CreateState("dev", "", nil)
	require.NoError(t, err)
	// Pre-seed dev with a conflicting write to b.txt; a.txt is promoted
	// first and succeeds as its own independent unit before b.txt's
	// promotion conflicts and stops the call.
	_, err = e.Submit(model.ChangeSet{State: "dev", Ops: []model.Op{upsertOp("dev", "b.txt", "dev-local\n")}})
	require.NoError(t, err)

	out, err := e.Promote("main", "dev", append(append([]string(nil), a.Accepted...), b.Accepted...))
	require.NoError(t, err)
	require.Len(t, out.Results, 2)
	assert.Equal(t, model.OpAccepted, out.Results[0].Status)
	assert.Equal(t, model.OpConflicted, out.Results[1].Status)

	tree, err := e.Materialize("dev")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", tree["a.txt"], "the earlier promotion that already succeeded as its own unit must not be rolled back")
	assert.Equal(t, "dev-local\n", tree["b.txt"])
}

func TestPromote_RecordedAsChangeSetWithSourceMetadata(t *testing.T) {
	e := newTestEngine(t)
	first, err := e.Submit(model.ChangeSet{State: "main", Ops: []model.Op{upsertOp("main", "a.txt", "hello\n")}})
	require.NoError(t, err)

	_, err = e.CreateState("dev", "", nil)
	require.NoError(t, err)

	out, err := e.Promote("main", "dev", first.Accepted)
	require.NoError(t, err)
	require.Len(t, out.Accepted, 1)

	promotedOp, ok := e.GetOp(out.Accepted[0])
	require.True(t, ok)
	assert.Equal(t, "main", promotedOp.Metadata.SourceState)
	assert.Equal(t, first.Accepted[0], promotedOp.Metadata.SourceOpID)
	assert.Equal(t, "dev", promotedOp.State)

	rec, ok := e.GetChangeSetRecord(out.ChangeSetID)
	require.True(t, ok)
	assert.Equal(t, "dev", rec.State)
}
