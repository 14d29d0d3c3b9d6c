package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/akashi/internal/model"
)

func deleteOp(state, path string, parents []string) model.Op {
	id := model.SymbolID(model.ExtensionAdapter(path), path, model.DocumentFragment)
	return model.Op{
		State:   state,
		Parents: parents,
		Target:  model.Target{SymbolID: id},
		Writes:  []string{id},
		Effect:  model.Effect{Kind: model.EffectDeleteFile, Path: path},
	}
}

func TestMaterialize_UnknownStateErrors(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Materialize("nope")
	require.Error(t, err)
	apiErr, ok := err.(*model.APIError)
	require.True(t, ok)
	assert.Equal(t, model.ErrCodeStateMissing, apiErr.Code)
}

func TestMaterialize_EmptyStateHasNoFiles(t *testing.T) {
	e := newTestEngine(t)
	tree, err := e.Materialize("main")
	require.NoError(t, err)
	assert.Empty(t, tree)
}

func TestMaterialize_DeleteFileRemovesPathFromTree(t *testing.T) {
	e := newTestEngine(t)
	out, err := e.Submit(model.ChangeSet{State: "main", Ops: []model.Op{upsertOp("main", "a.txt", "hello\n")}})
	require.NoError(t, err)
	require.Len(t, out.Accepted, 1)

	del := deleteOp("main", "a.txt", out.Accepted)
	out2, err := e.Submit(model.ChangeSet{State: "main", Ops: []model.Op{del}})
	require.NoError(t, err)
	require.Equal(t, model.ChangeSetAccepted, out2.Status)

	tree, err := e.Materialize("main")
	require.NoError(t, err)
	_, exists := tree["a.txt"]
	assert.False(t, exists)
}

func TestMaterialize_JSONSetKeyProducesStructuredContent(t *testing.T) {
	e := newTestEngine(t)
	keyA := model.SymbolID(model.AdapterJSON, "config.json", model.KeyFragment("enabled"))
	op := model.Op{
		State:  "main",
		Target: model.Target{SymbolID: keyA},
		Writes: []string{keyA},
		Effect: model.Effect{Kind: model.EffectJSONSetKey, Path: "config.json", Key: "enabled", Value: true},
	}
	out, err := e.Submit(model.ChangeSet{State: "main", Ops: []model.Op{op}})
	require.NoError(t, err)
	require.Equal(t, model.ChangeSetAccepted, out.Status)

	tree, err := e.Materialize("main")
	require.NoError(t, err)
	assert.Contains(t, tree["config.json"], "enabled")
}

func TestMaterialize_FollowsBaseStateHeadsAcrossFork(t *testing.T) {
	e := newTestEngine(t)
	base, err := e.Submit(model.ChangeSet{State: "main", Ops: []model.Op{upsertOp("main", "a.txt", "from-main\n")}})
	require.NoError(t, err)
	require.Len(t, base.Accepted, 1)

	_, err = e.CreateState("dev", "main", nil)
	require.NoError(t, err)

	devOp := upsertOp("dev", "b.txt", "from-dev\n")
	devOp.Parents = base.Accepted
	devOut, err := e.Submit(model.ChangeSet{State: "dev", Ops: []model.Op{devOp}})
	require.NoError(t, err)
	require.Equal(t, model.ChangeSetAccepted, devOut.Status)

	tree, err := e.Materialize("dev")
	require.NoError(t, err)
	assert.Equal(t, "from-main\n", tree["a.txt"], "dev should transparently include main's history via base_heads")
	assert.Equal(t, "from-dev\n", tree["b.txt"])
}

func TestAncestryOps_SkipsUnknownParentIDs(t *testing.T) {
	e := newTestEngine(t)
	out, err := e.Submit(model.ChangeSet{State: "main", Ops: []model.Op{upsertOp("main", "a.txt", "hello\n")}})
	require.NoError(t, err)

	ops := e.ancestryOps(append(out.Accepted, "ghost_op_does_not_exist"))
	require.Len(t, ops, 1)
	assert.Equal(t, out.Accepted[0], ops[0].ID)
}
