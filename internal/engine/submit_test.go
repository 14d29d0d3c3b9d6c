package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/akashi/internal/adapter"
	"github.com/ashita-ai/akashi/internal/hash"
	"github.com/ashita-ai/akashi/internal/model"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return New(adapter.NewRegistry(nil), nil)
}

func upsertOp(state, path, content string) model.Op {
	id := model.SymbolID(model.ExtensionAdapter(path), path, model.DocumentFragment)
	return model.Op{
		State:  state,
		Target: model.Target{SymbolID: id},
		Writes: []string{id},
		Effect: model.Effect{
			Kind:      model.EffectUpsertFile,
			Path:      path,
			Content:   content,
			AfterHash: hash.String(content),
		},
	}
}

func TestSubmit_AcceptsIndependentWrites(t *testing.T) {
	e := newTestEngine(t)
	out, err := e.Submit(model.ChangeSet{
		State: "main",
		Ops:   []model.Op{upsertOp("main", "a.txt", "hello\n"), upsertOp("main", "b.txt", "world\n")},
	})
	require.NoError(t, err)
	assert.Equal(t, model.ChangeSetAccepted, out.Status)
	assert.Len(t, out.Accepted, 2)
	assert.Empty(t, out.Conflicts)
}

func TestSubmit_SequentialWriteWithCorrectParentAccepted(t *testing.T) {
	e := newTestEngine(t)
	first, err := e.Submit(model.ChangeSet{State: "main", Ops: []model.Op{upsertOp("main", "a.txt", "v1\n")}})
	require.NoError(t, err)
	require.Len(t, first.Accepted, 1)

	second := upsertOp("main", "a.txt", "v2\n")
	second.Parents = []string{first.Accepted[0]}
	out, err := e.Submit(model.ChangeSet{State: "main", Ops: []model.Op{second}})
	require.NoError(t, err)
	assert.Equal(t, model.ChangeSetAccepted, out.Status)
	assert.Len(t, out.Accepted, 1)
}

func TestSubmit_SemanticWriteConflictWhenParentStale(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Submit(model.ChangeSet{State: "main", Ops: []model.Op{upsertOp("main", "a.txt", "v1\n")}})
	require.NoError(t, err)

	// Second write doesn't cite the first op as a parent, so it isn't an
	// ancestor-or-self of the symbol's current head.
	out, err := e.Submit(model.ChangeSet{State: "main", Ops: []model.Op{upsertOp("main", "a.txt", "v2-conflicting\n")}})
	require.NoError(t, err)
	assert.Equal(t, model.ChangeSetRejected, out.Status)
	require.Len(t, out.Conflicts, 1)
	assert.Equal(t, model.ConflictSemanticWrite, out.ConflictDetails[0].Type)
}

func TestSubmit_IdempotentResubmission(t *testing.T) {
	e := newTestEngine(t)
	cs := model.ChangeSet{State: "main", Ops: []model.Op{upsertOp("main", "a.txt", "hello\n")}}

	first, err := e.Submit(cs)
	require.NoError(t, err)
	require.False(t, first.Duplicate)

	second, err := e.Submit(cs)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.ChangeSetID, second.ChangeSetID)
	assert.Equal(t, first.Accepted, second.Accepted)
}

func TestSubmit_PreconditionSymbolExistsFails(t *testing.T) {
	e := newTestEngine(t)
	id := model.SymbolID(model.ExtensionAdapter("missing.txt"), "missing.txt", model.DocumentFragment)
	op := model.Op{
		State:         "main",
		Target:        model.Target{SymbolID: id},
		Writes:        []string{id},
		Preconditions: []model.Precondition{{Kind: model.PreconditionSymbolExists}},
		Effect:        model.Effect{Kind: model.EffectUpsertFile, Path: "missing.txt", Content: "x\n", AfterHash: hash.String("x\n")},
	}
	out, err := e.Submit(model.ChangeSet{State: "main", Ops: []model.Op{op}})
	require.NoError(t, err)
	assert.Equal(t, model.ChangeSetRejected, out.Status)
	require.Len(t, out.ConflictDetails, 1)
	assert.Equal(t, model.ConflictPrecondition, out.ConflictDetails[0].Type)
}

func TestSubmit_ConflictInSecondOpDiscardsFirstOpsProvisionalAcceptance(t *testing.T) {
	e := newTestEngine(t)

	// Op #2 targets a symbol that was never written, so its precondition
	// fails and the change set conflicts on the second op while the first
	// op (an unrelated upsert) would otherwise have been accepted cleanly.
	missingID := model.SymbolID(model.ExtensionAdapter("missing.txt"), "missing.txt", model.DocumentFragment)
	op1 := upsertOp("main", "a.txt", "hello\n")
	op2 := model.Op{
		State:         "main",
		Target:        model.Target{SymbolID: missingID},
		Writes:        []string{missingID},
		Preconditions: []model.Precondition{{Kind: model.PreconditionSymbolExists}},
		Effect:        model.Effect{Kind: model.EffectUpsertFile, Path: "missing.txt", Content: "x\n", AfterHash: hash.String("x\n")},
	}

	out, err := e.Submit(model.ChangeSet{State: "main", Ops: []model.Op{op1, op2}})
	require.NoError(t, err)

	assert.Equal(t, model.ChangeSetConflicted, out.Status)
	assert.Empty(t, out.Accepted, "nothing commits when any op in the set conflicts")

	require.Len(t, out.Results, 2)
	assert.Equal(t, model.OpAccepted, out.Results[0].Status, "op #1 is reported as accepted in the record")
	assert.Equal(t, model.OpConflicted, out.Results[1].Status)
	require.Len(t, out.ConflictDetails, 1)
	assert.Equal(t, model.ConflictPrecondition, out.ConflictDetails[0].Type)

	tree, err := e.Materialize("main")
	require.NoError(t, err)
	assert.Empty(t, tree, "op #1's effect must not be written to the log despite its accepted result")

	st, ok := e.GetState("main")
	require.True(t, ok)
	assert.Empty(t, st.Heads, "state heads must not advance when the change set as a whole failed")
}

func TestSubmit_RejectionStopsEvaluationAndMarksRemainingOpsSkipped(t *testing.T) {
	e := newTestEngine(t)

	bad := upsertOp("main", "", "x\n")
	bad.Target = model.Target{}
	good := upsertOp("main", "a.txt", "hello\n")

	out, err := e.Submit(model.ChangeSet{State: "main", Ops: []model.Op{bad, good}})
	require.NoError(t, err)

	assert.Equal(t, model.ChangeSetRejected, out.Status)
	require.Len(t, out.Results, 2)
	assert.Equal(t, model.OpRejected, out.Results[0].Status)
	assert.Equal(t, model.OpSkipped, out.Results[1].Status, "op after a rejection is never evaluated")

	tree, err := e.Materialize("main")
	require.NoError(t, err)
	assert.Empty(t, tree)
}

func TestSubmit_UnknownStateErrors(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Submit(model.ChangeSet{State: "nope", Ops: []model.Op{upsertOp("nope", "a.txt", "x\n")}})
	require.Error(t, err)
	apiErr, ok := err.(*model.APIError)
	require.True(t, ok)
	assert.Equal(t, model.ErrCodeStateMissing, apiErr.Code)
}

func TestMaterialize_FoldsAcceptedOps(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Submit(model.ChangeSet{
		State: "main",
		Ops:   []model.Op{upsertOp("main", "a.txt", "hello\n"), upsertOp("main", "b.txt", "world\n")},
	})
	require.NoError(t, err)

	tree, err := e.Materialize("main")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", tree["a.txt"])
	assert.Equal(t, "world\n", tree["b.txt"])
}

func TestPromote_ReplaysOntoTargetState(t *testing.T) {
	e := newTestEngine(t)
	out, err := e.Submit(model.ChangeSet{State: "main", Ops: []model.Op{upsertOp("main", "a.txt", "hello\n")}})
	require.NoError(t, err)
	require.Len(t, out.Accepted, 1)

	_, err = e.CreateState("prod", "", nil)
	require.NoError(t, err)

	promoteOut, err := e.Promote("main", "prod", out.Accepted)
	require.NoError(t, err)
	assert.Equal(t, model.ChangeSetAccepted, promoteOut.Status)
	require.Len(t, promoteOut.Accepted, 1)
	assert.NotEqual(t, out.Accepted[0], promoteOut.Accepted[0])

	tree, err := e.Materialize("prod")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", tree["a.txt"])

	// Re-promoting the same source op onto the same target tip is a no-op.
	again, err := e.Promote("main", "prod", out.Accepted)
	require.NoError(t, err)
	require.Len(t, again.Results, 1)
	assert.True(t, again.Results[0].Duplicate)
}

func TestResolveConflict_MarksResolved(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Submit(model.ChangeSet{State: "main", Ops: []model.Op{upsertOp("main", "a.txt", "v1\n")}})
	require.NoError(t, err)
	out, err := e.Submit(model.ChangeSet{State: "main", Ops: []model.Op{upsertOp("main", "a.txt", "v2-conflicting\n")}})
	require.NoError(t, err)
	require.Len(t, out.Conflicts, 1)

	resolved, err := e.ResolveConflict(out.Conflicts[0], "alice")
	require.NoError(t, err)
	assert.Equal(t, model.ConflictResolved, resolved.Status)
	assert.Equal(t, "alice", resolved.ResolvedBy)

	open := e.ListConflicts("main", true)
	assert.Empty(t, open)
}
