package dataset

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"github.com/anvilengine/anvil/internal/schema"
)

// undoGroup is one committed undo step: the patch pair produced by diffing
// the data set before and after a named group of edits.
type undoGroup struct {
	contextName string
	forward     *Diff
	reverse     *Diff
}

// pendingGroup accumulates edits sharing a context name until a different
// name (or an undo/redo/save) closes the group.
type pendingGroup struct {
	contextName string
	// preImages holds a clone of each touched asset as it looked when the
	// group opened; nil marks an asset that did not exist yet.
	preImages map[AssetID]*Asset
}

// EditContext wraps a DataSet with grouped undo/redo and modified-asset
// tracking. All mutations should flow through it; direct DataSet access is
// read-only.
type EditContext struct {
	ds       *DataSet
	pending  *pendingGroup
	undo     []undoGroup
	redo     []undoGroup
	modified mapset.Set[AssetID]

	// committed accumulates every committed forward diff, so a scratch
	// context can be flushed into its parent by replay.
	committed []*Diff
}

// NewEditContext wraps a data set.
func NewEditContext(ds *DataSet) *EditContext {
	return &EditContext{
		ds:       ds,
		modified: mapset.NewThreadUnsafeSet[AssetID](),
	}
}

// DataSet exposes the wrapped data set for reads.
func (ec *EditContext) DataSet() *DataSet { return ec.ds }

// SchemaSet returns the schema set in use.
func (ec *EditContext) SchemaSet() *schema.Set { return ec.ds.SchemaSet() }

// WithUndoContext runs fn with all its edits grouped under name.
// Consecutive calls with the same name extend one undo group; a different
// name commits the previous group first.
func (ec *EditContext) WithUndoContext(name string, fn func(*EditContext) error) error {
	if ec.pending != nil && ec.pending.contextName != name {
		ec.CommitPendingUndoContext()
	}

	if ec.pending == nil {
		ec.pending = &pendingGroup{contextName: name, preImages: map[AssetID]*Asset{}}
	}

	return fn(ec)
}

// CommitPendingUndoContext closes the open group, if any, pushing its diff
// pair onto the undo stack. Groups that changed nothing are dropped.
func (ec *EditContext) CommitPendingUndoContext() {
	if ec.pending == nil {
		return
	}

	group := ec.pending
	ec.pending = nil

	ids := make([]AssetID, 0, len(group.preImages))
	before := New(ec.ds.schemaSet)

	for id, pre := range group.preImages {
		ids = append(ids, id)

		if pre != nil {
			before.assets[id] = pre
		}
	}

	forward, reverse := DiffDataSets(before, ec.ds, ids)
	if forward.IsEmpty() && reverse.IsEmpty() {
		return
	}

	ec.undo = append(ec.undo, undoGroup{contextName: group.contextName, forward: forward, reverse: reverse})
	ec.redo = nil
	ec.committed = append(ec.committed, forward)
}

// Undo reverts the most recent undo group.
func (ec *EditContext) Undo() error {
	ec.CommitPendingUndoContext()

	if len(ec.undo) == 0 {
		return nil
	}

	group := ec.undo[len(ec.undo)-1]
	ec.undo = ec.undo[:len(ec.undo)-1]

	if err := ec.ds.Apply(group.reverse); err != nil {
		return fmt.Errorf("undo %q: %w", group.contextName, err)
	}

	ec.markDiffModified(group.reverse)
	ec.redo = append(ec.redo, group)

	return nil
}

// Redo re-applies the most recently undone group.
func (ec *EditContext) Redo() error {
	ec.CommitPendingUndoContext()

	if len(ec.redo) == 0 {
		return nil
	}

	group := ec.redo[len(ec.redo)-1]
	ec.redo = ec.redo[:len(ec.redo)-1]

	if err := ec.ds.Apply(group.forward); err != nil {
		return fmt.Errorf("redo %q: %w", group.contextName, err)
	}

	ec.markDiffModified(group.forward)
	ec.undo = append(ec.undo, group)

	return nil
}

// ModifiedAssets returns the set of assets changed since the flags were
// last cleared.
func (ec *EditContext) ModifiedAssets() mapset.Set[AssetID] {
	return ec.modified.Clone()
}

// ClearModifiedFlag forgets one asset's modified state (typically after a
// save).
func (ec *EditContext) ClearModifiedFlag(id AssetID) {
	ec.modified.Remove(id)
}

// ClearAllModifiedFlags forgets all modified state.
func (ec *EditContext) ClearAllModifiedFlags() {
	ec.modified = mapset.NewThreadUnsafeSet[AssetID]()
}

// touch snapshots an asset's pre-image into the open group and marks it
// modified.
func (ec *EditContext) touch(id AssetID) {
	ec.modified.Add(id)

	if ec.pending == nil {
		// Edits outside WithUndoContext form an anonymous group.
		ec.pending = &pendingGroup{preImages: map[AssetID]*Asset{}}
	}

	if _, seen := ec.pending.preImages[id]; seen {
		return
	}

	if a, ok := ec.ds.assets[id]; ok {
		ec.pending.preImages[id] = a.Clone()
	} else {
		ec.pending.preImages[id] = nil
	}
}

func (ec *EditContext) markDiffModified(d *Diff) {
	for i := range d.Ops {
		ec.modified.Add(d.Ops[i].Asset)
	}
}

// ---------------------------------------------------------------------------
// Mutating operations. Each touches the asset first so undo groups capture
// the pre-image.
// ---------------------------------------------------------------------------

// NewAsset creates an asset; see DataSet.NewAsset.
func (ec *EditContext) NewAsset(name string, location Location, record *schema.Record) (AssetID, error) {
	id := uuid.New()
	ec.touch(id)

	return ec.ds.NewAssetWithID(id, name, location, record)
}

// NewAssetWithID creates an asset under a fixed ID; see
// DataSet.NewAssetWithID.
func (ec *EditContext) NewAssetWithID(id AssetID, name string, location Location, record *schema.Record) (AssetID, error) {
	ec.touch(id)
	return ec.ds.NewAssetWithID(id, name, location, record)
}

// DeleteAsset removes an asset.
func (ec *EditContext) DeleteAsset(id AssetID) error {
	ec.touch(id)
	return ec.ds.DeleteAsset(id)
}

// CopyAsset duplicates an asset.
func (ec *EditContext) CopyAsset(id AssetID, name string, location Location) (AssetID, error) {
	newID, err := ec.ds.CopyAsset(id, name, location)
	if err != nil {
		return uuid.Nil, err
	}

	// The copy did not exist when the group opened.
	ec.modified.Add(newID)

	if ec.pending == nil {
		ec.pending = &pendingGroup{preImages: map[AssetID]*Asset{}}
	}

	if _, seen := ec.pending.preImages[newID]; !seen {
		ec.pending.preImages[newID] = nil
	}

	return newID, nil
}

// RenameAsset renames an asset.
func (ec *EditContext) RenameAsset(id AssetID, name string) error {
	ec.touch(id)
	return ec.ds.RenameAsset(id, name)
}

// RelocateAsset moves an asset.
func (ec *EditContext) RelocateAsset(id AssetID, location Location) error {
	ec.touch(id)
	return ec.ds.RelocateAsset(id, location)
}

// SetPrototype attaches or detaches a prototype.
func (ec *EditContext) SetPrototype(id, prototype AssetID) error {
	ec.touch(id)
	return ec.ds.SetPrototype(id, prototype)
}

// SetProperty stores a property override.
func (ec *EditContext) SetProperty(id AssetID, path string, value Value) error {
	ec.touch(id)
	return ec.ds.SetProperty(id, path, value)
}

// ClearPropertyOverride removes a property override.
func (ec *EditContext) ClearPropertyOverride(id AssetID, path string) error {
	ec.touch(id)
	return ec.ds.ClearPropertyOverride(id, path)
}

// SetNullOverride sets a nullable path's state.
func (ec *EditContext) SetNullOverride(id AssetID, path string, state NullOverride) error {
	ec.touch(id)
	return ec.ds.SetNullOverride(id, path, state)
}

// SetOverrideBehavior flips a container between append and replace.
func (ec *EditContext) SetOverrideBehavior(id AssetID, path string, behavior OverrideBehavior) error {
	ec.touch(id)
	return ec.ds.SetOverrideBehavior(id, path, behavior)
}

// AddDynamicArrayEntry appends a dynamic-array entry.
func (ec *EditContext) AddDynamicArrayEntry(id AssetID, path string) (uuid.UUID, error) {
	ec.touch(id)
	return ec.ds.AddDynamicArrayEntry(id, path)
}

// RemoveDynamicArrayEntry removes a local dynamic-array entry.
func (ec *EditContext) RemoveDynamicArrayEntry(id AssetID, path string, entry uuid.UUID) error {
	ec.touch(id)
	return ec.ds.RemoveDynamicArrayEntry(id, path, entry)
}

// MoveDynamicArrayEntry reorders a local dynamic-array entry.
func (ec *EditContext) MoveDynamicArrayEntry(id AssetID, path string, entry uuid.UUID, newIndex int) error {
	ec.touch(id)
	return ec.ds.MoveDynamicArrayEntry(id, path, entry, newIndex)
}

// AddMapEntry inserts a map entry.
func (ec *EditContext) AddMapEntry(id AssetID, path string) (uuid.UUID, error) {
	ec.touch(id)
	return ec.ds.AddMapEntry(id, path)
}

// RemoveMapEntry removes a local map entry.
func (ec *EditContext) RemoveMapEntry(id AssetID, path string, entry uuid.UUID) error {
	ec.touch(id)
	return ec.ds.RemoveMapEntry(id, path, entry)
}

// SetFileReferenceOverride binds a path-style file reference to an asset.
func (ec *EditContext) SetFileReferenceOverride(id AssetID, relPath string, target AssetID) error {
	ec.touch(id)
	return ec.ds.SetFileReferenceOverride(id, relPath, target)
}

// SetImportInfo records import provenance on an asset.
func (ec *EditContext) SetImportInfo(id AssetID, info *ImportInfo) error {
	ec.touch(id)
	return ec.ds.SetImportInfo(id, info)
}

// ---------------------------------------------------------------------------
// Scratch contexts
// ---------------------------------------------------------------------------

// NewScratchContext spawns an edit context over a copy of a subset of the
// assets. Edits there do not affect the parent until FlushTo replays them.
func (ec *EditContext) NewScratchContext(ids []AssetID) *EditContext {
	scratch := New(ec.ds.schemaSet)

	for _, id := range ids {
		if a, ok := ec.ds.assets[id]; ok {
			scratch.assets[id] = a.Clone()
		}
	}

	return NewEditContext(scratch)
}

// FlushTo replays every committed diff of this context into the target
// context as one undo group named name.
func (ec *EditContext) FlushTo(target *EditContext, name string) error {
	ec.CommitPendingUndoContext()

	return target.WithUndoContext(name, func(tc *EditContext) error {
		for _, d := range ec.committed {
			for i := range d.Ops {
				tc.touch(d.Ops[i].Asset)
			}

			if err := tc.ds.Apply(d); err != nil {
				return fmt.Errorf("flushing scratch context: %w", err)
			}
		}

		return nil
	})
}
