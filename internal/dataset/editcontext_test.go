package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEditContext(t *testing.T) (*EditContext, AssetID) {
	t.Helper()

	ds, record := newTestDataSet(t)
	ec := NewEditContext(ds)

	id, err := ec.NewAsset("asset", Location{}, record)
	require.NoError(t, err)
	ec.CommitPendingUndoContext()

	return ec, id
}

func propertyHash(t *testing.T, ec *EditContext, id AssetID) uint64 {
	t.Helper()

	h, err := ec.DataSet().HashProperties(id)
	require.NoError(t, err)

	return h
}

// N edits followed by N undos restore the initial state; N redos return to
// the post-edit state.
func TestEditContext_UndoRedoRoundTrip(t *testing.T) {
	ec, id := newTestEditContext(t)
	initial := propertyHash(t, ec, id)

	edits := []struct {
		name  string
		value float32
	}{
		{"edit x", 1},
		{"edit y", 2},
		{"edit z", 3},
	}

	paths := []string{"position.x", "position.y", "position.z"}

	for i, edit := range edits {
		require.NoError(t, ec.WithUndoContext(edit.name, func(tc *EditContext) error {
			return tc.SetProperty(id, paths[i], F32Value(edit.value))
		}))
	}

	ec.CommitPendingUndoContext()
	edited := propertyHash(t, ec, id)
	require.NotEqual(t, initial, edited)

	for range edits {
		require.NoError(t, ec.Undo())
	}

	assert.Equal(t, initial, propertyHash(t, ec, id))

	for range edits {
		require.NoError(t, ec.Redo())
	}

	assert.Equal(t, edited, propertyHash(t, ec, id))
}

// Consecutive operations sharing a context name extend one undo group.
func TestEditContext_GroupsByContextName(t *testing.T) {
	ec, id := newTestEditContext(t)
	initial := propertyHash(t, ec, id)

	require.NoError(t, ec.WithUndoContext("drag", func(tc *EditContext) error {
		return tc.SetProperty(id, "position.x", F32Value(1))
	}))
	require.NoError(t, ec.WithUndoContext("drag", func(tc *EditContext) error {
		return tc.SetProperty(id, "position.x", F32Value(2))
	}))

	// A different name closes the drag group.
	require.NoError(t, ec.WithUndoContext("rename", func(tc *EditContext) error {
		return tc.RenameAsset(id, "renamed")
	}))
	ec.CommitPendingUndoContext()

	// Undo the rename, then the whole drag in one step.
	require.NoError(t, ec.Undo())
	assert.Equal(t, "asset", mustAsset(t, ec.DataSet(), id).Name)

	require.NoError(t, ec.Undo())
	assert.Equal(t, initial, propertyHash(t, ec, id))
}

func TestEditContext_UndoDeleteRestoresAsset(t *testing.T) {
	ec, id := newTestEditContext(t)

	require.NoError(t, ec.WithUndoContext("set", func(tc *EditContext) error {
		return tc.SetProperty(id, "label", StringValue("keep me"))
	}))

	require.NoError(t, ec.WithUndoContext("delete", func(tc *EditContext) error {
		return tc.DeleteAsset(id)
	}))
	ec.CommitPendingUndoContext()

	_, err := ec.DataSet().Asset(id)
	require.ErrorIs(t, err, ErrAssetNotFound)

	require.NoError(t, ec.Undo())

	v, err := ec.DataSet().ResolveProperty(id, "label")
	require.NoError(t, err)
	assert.Equal(t, "keep me", v.Str)
}

func TestEditContext_ModifiedAssets(t *testing.T) {
	ec, id := newTestEditContext(t)
	ec.ClearAllModifiedFlags()

	require.NoError(t, ec.WithUndoContext("edit", func(tc *EditContext) error {
		return tc.SetProperty(id, "position.x", F32Value(9))
	}))

	assert.True(t, ec.ModifiedAssets().Contains(id))

	ec.ClearModifiedFlag(id)
	assert.False(t, ec.ModifiedAssets().Contains(id))
}

func TestEditContext_EmptyGroupsLeaveNoUndoStep(t *testing.T) {
	ec, id := newTestEditContext(t)

	require.NoError(t, ec.WithUndoContext("noop", func(*EditContext) error { return nil }))
	ec.CommitPendingUndoContext()

	// The noop group was dropped, so the newest undo step is still the
	// helper's asset creation and Undo removes the asset.
	require.NoError(t, ec.Undo())
	_, err := ec.DataSet().Asset(id)
	assert.ErrorIs(t, err, ErrAssetNotFound)
}

func TestEditContext_ScratchFlush(t *testing.T) {
	ec, id := newTestEditContext(t)

	scratch := ec.NewScratchContext([]AssetID{id})
	require.NoError(t, scratch.WithUndoContext("scratch edit", func(tc *EditContext) error {
		return tc.SetProperty(id, "label", StringValue("from scratch"))
	}))

	// The main context is untouched until the flush.
	v, err := ec.DataSet().ResolveProperty(id, "label")
	require.NoError(t, err)
	assert.Equal(t, "", v.Str)

	require.NoError(t, scratch.FlushTo(ec, "apply scratch"))
	ec.CommitPendingUndoContext()

	v, err = ec.DataSet().ResolveProperty(id, "label")
	require.NoError(t, err)
	assert.Equal(t, "from scratch", v.Str)

	// The flush is a single undoable step on the main context.
	require.NoError(t, ec.Undo())

	v, err = ec.DataSet().ResolveProperty(id, "label")
	require.NoError(t, err)
	assert.Equal(t, "", v.Str)
}

func TestDiffDataSets_ForwardAndReverse(t *testing.T) {
	ds, record := newTestDataSet(t)

	id, _ := ds.NewAsset("a", Location{}, record)
	require.NoError(t, ds.SetProperty(id, "position.x", F32Value(1)))

	before := ds.Clone()
	require.NoError(t, ds.SetProperty(id, "position.x", F32Value(2)))
	require.NoError(t, ds.SetProperty(id, "label", StringValue("new")))
	require.NoError(t, ds.SetNullOverride(id, "maybe_scale", NullOverrideSetNonNull))

	forward, reverse := DiffDataSets(before, ds, []AssetID{id})
	require.False(t, forward.IsEmpty())

	// Applying forward to a copy of before reproduces after.
	replay := before.Clone()
	require.NoError(t, replay.Apply(forward))

	afterHash, _ := ds.HashProperties(id)
	replayHash, _ := replay.HashProperties(id)
	assert.Equal(t, afterHash, replayHash)

	// Applying reverse to after restores before.
	require.NoError(t, ds.Apply(reverse))

	beforeHash, _ := before.HashProperties(id)
	restoredHash, _ := ds.HashProperties(id)
	assert.Equal(t, beforeHash, restoredHash)
}

func TestDiffDataSets_RestrictedToIDs(t *testing.T) {
	ds, record := newTestDataSet(t)

	tracked, _ := ds.NewAsset("tracked", Location{}, record)
	ignored, _ := ds.NewAsset("ignored", Location{}, record)

	before := ds.Clone()
	require.NoError(t, ds.SetProperty(tracked, "position.x", F32Value(1)))
	require.NoError(t, ds.SetProperty(ignored, "position.x", F32Value(1)))

	forward, _ := DiffDataSets(before, ds, []AssetID{tracked})
	for _, op := range forward.Ops {
		assert.Equal(t, tracked, op.Asset)
	}
}

func TestSingleObject_RoundsOutContract(t *testing.T) {
	set := testSchemaSet(t)
	record := transformRecord(t, set)

	obj := NewSingleObject(set, record)
	require.NoError(t, obj.SetProperty("label", StringValue("solo")))
	require.ErrorIs(t, obj.SetProperty("label", F32Value(1)), ErrValueDoesNotMatchSchema)

	v, err := obj.ResolveProperty("label")
	require.NoError(t, err)
	assert.Equal(t, "solo", v.Str)

	// Defaults come from the schema.
	v, err = obj.ResolveProperty("position.x")
	require.NoError(t, err)
	assert.Equal(t, float32(0), v.F32)

	// Nullable gating applies without a prototype chain.
	_, err = obj.ResolveProperty("maybe_scale.value.x")
	require.ErrorIs(t, err, ErrPathParentIsNull)

	require.NoError(t, obj.SetNullOverride("maybe_scale", NullOverrideSetNonNull))

	_, err = obj.ResolveProperty("maybe_scale.value.x")
	require.NoError(t, err)

	// The contents hash tracks the property state.
	h1 := obj.ContentsHash()
	require.NoError(t, obj.SetProperty("label", StringValue("changed")))
	assert.NotEqual(t, h1, obj.ContentsHash())
}
