package dataset

import (
	"fmt"

	"github.com/google/uuid"
)

// DiffOpKind enumerates the patch operations a Diff carries.
type DiffOpKind uint8

// Diff operations.
const (
	DiffOpCreateAsset DiffOpKind = iota
	DiffOpDeleteAsset
	DiffOpSetName
	DiffOpSetLocation
	DiffOpSetPrototype
	DiffOpSetImportInfo
	DiffOpSetProperty
	DiffOpClearProperty
	DiffOpSetNullOverride
	DiffOpClearNullOverride
	DiffOpSetReplaceMode
	DiffOpClearReplaceMode
	DiffOpSetDynamicArrayEntries
	DiffOpSetMapEntries
	DiffOpSetFileReference
	DiffOpClearFileReference
)

// DiffOp is one patch step. Which payload fields are meaningful depends on
// Kind.
type DiffOp struct {
	Kind  DiffOpKind
	Asset AssetID
	Path  string

	Snapshot   *Asset // create/delete carry a full asset snapshot
	Name       string
	Location   Location
	Prototype  AssetID
	ImportInfo *ImportInfo
	Value      Value
	NullState  NullOverride
	Entries    []uuid.UUID
	RefTarget  AssetID
}

// Diff is an ordered patch transforming one data set into another.
type Diff struct {
	Ops []DiffOp
}

// IsEmpty reports whether the diff changes nothing.
func (d *Diff) IsEmpty() bool { return len(d.Ops) == 0 }

// DiffDataSets computes the smallest-by-operation-count forward and reverse
// patches between two data sets, restricted to the given asset IDs.
// Applying forward to before yields after (for those assets); reverse
// undoes it.
func DiffDataSets(before, after *DataSet, ids []AssetID) (forward, reverse *Diff) {
	forward = &Diff{}
	reverse = &Diff{}

	sorted := append([]AssetID(nil), ids...)
	sortAssetIDs(sorted)

	for _, id := range sorted {
		b := before.assets[id]
		a := after.assets[id]

		switch {
		case b == nil && a == nil:
			continue
		case b == nil:
			forward.Ops = append(forward.Ops, DiffOp{Kind: DiffOpCreateAsset, Asset: id, Snapshot: a.Clone()})
			reverse.Ops = append(reverse.Ops, DiffOp{Kind: DiffOpDeleteAsset, Asset: id})
		case a == nil:
			forward.Ops = append(forward.Ops, DiffOp{Kind: DiffOpDeleteAsset, Asset: id})
			reverse.Ops = append(reverse.Ops, DiffOp{Kind: DiffOpCreateAsset, Asset: id, Snapshot: b.Clone()})
		default:
			diffAsset(b, a, forward, reverse)
		}
	}

	return forward, reverse
}

func diffAsset(b, a *Asset, forward, reverse *Diff) {
	id := a.ID

	if b.Name != a.Name {
		forward.Ops = append(forward.Ops, DiffOp{Kind: DiffOpSetName, Asset: id, Name: a.Name})
		reverse.Ops = append(reverse.Ops, DiffOp{Kind: DiffOpSetName, Asset: id, Name: b.Name})
	}

	if b.Location != a.Location {
		forward.Ops = append(forward.Ops, DiffOp{Kind: DiffOpSetLocation, Asset: id, Location: a.Location})
		reverse.Ops = append(reverse.Ops, DiffOp{Kind: DiffOpSetLocation, Asset: id, Location: b.Location})
	}

	if b.Prototype != a.Prototype {
		forward.Ops = append(forward.Ops, DiffOp{Kind: DiffOpSetPrototype, Asset: id, Prototype: a.Prototype})
		reverse.Ops = append(reverse.Ops, DiffOp{Kind: DiffOpSetPrototype, Asset: id, Prototype: b.Prototype})
	}

	if !importInfoEqual(b.ImportInfo, a.ImportInfo) {
		forward.Ops = append(forward.Ops, DiffOp{Kind: DiffOpSetImportInfo, Asset: id, ImportInfo: a.ImportInfo})
		reverse.Ops = append(reverse.Ops, DiffOp{Kind: DiffOpSetImportInfo, Asset: id, ImportInfo: b.ImportInfo})
	}

	// Properties.
	for _, path := range unionKeys(b.Properties, a.Properties) {
		bv, bok := b.Properties[path]
		av, aok := a.Properties[path]

		switch {
		case !bok:
			forward.Ops = append(forward.Ops, DiffOp{Kind: DiffOpSetProperty, Asset: id, Path: path, Value: av.Clone()})
			reverse.Ops = append(reverse.Ops, DiffOp{Kind: DiffOpClearProperty, Asset: id, Path: path})
		case !aok:
			forward.Ops = append(forward.Ops, DiffOp{Kind: DiffOpClearProperty, Asset: id, Path: path})
			reverse.Ops = append(reverse.Ops, DiffOp{Kind: DiffOpSetProperty, Asset: id, Path: path, Value: bv.Clone()})
		case !bv.Equal(av):
			forward.Ops = append(forward.Ops, DiffOp{Kind: DiffOpSetProperty, Asset: id, Path: path, Value: av.Clone()})
			reverse.Ops = append(reverse.Ops, DiffOp{Kind: DiffOpSetProperty, Asset: id, Path: path, Value: bv.Clone()})
		}
	}

	// Null overrides.
	for _, path := range unionKeys(b.NullOverrides, a.NullOverrides) {
		bs, bok := b.NullOverrides[path]
		as, aok := a.NullOverrides[path]

		switch {
		case !bok:
			forward.Ops = append(forward.Ops, DiffOp{Kind: DiffOpSetNullOverride, Asset: id, Path: path, NullState: as})
			reverse.Ops = append(reverse.Ops, DiffOp{Kind: DiffOpClearNullOverride, Asset: id, Path: path})
		case !aok:
			forward.Ops = append(forward.Ops, DiffOp{Kind: DiffOpClearNullOverride, Asset: id, Path: path})
			reverse.Ops = append(reverse.Ops, DiffOp{Kind: DiffOpSetNullOverride, Asset: id, Path: path, NullState: bs})
		case bs != as:
			forward.Ops = append(forward.Ops, DiffOp{Kind: DiffOpSetNullOverride, Asset: id, Path: path, NullState: as})
			reverse.Ops = append(reverse.Ops, DiffOp{Kind: DiffOpSetNullOverride, Asset: id, Path: path, NullState: bs})
		}
	}

	// Replace-mode paths.
	for _, path := range sortedStringSet(b.ReplaceModePaths.Union(a.ReplaceModePaths)) {
		inB := b.ReplaceModePaths.Contains(path)
		inA := a.ReplaceModePaths.Contains(path)

		switch {
		case inA && !inB:
			forward.Ops = append(forward.Ops, DiffOp{Kind: DiffOpSetReplaceMode, Asset: id, Path: path})
			reverse.Ops = append(reverse.Ops, DiffOp{Kind: DiffOpClearReplaceMode, Asset: id, Path: path})
		case inB && !inA:
			forward.Ops = append(forward.Ops, DiffOp{Kind: DiffOpClearReplaceMode, Asset: id, Path: path})
			reverse.Ops = append(reverse.Ops, DiffOp{Kind: DiffOpSetReplaceMode, Asset: id, Path: path})
		}
	}

	// Dynamic array entry lists (replaced wholesale per path when changed).
	for _, path := range unionKeys(b.DynamicArrayEntries, a.DynamicArrayEntries) {
		be := b.DynamicArrayEntries[path]
		ae := a.DynamicArrayEntries[path]

		if !entrySlicesEqual(be, ae) {
			forward.Ops = append(forward.Ops, DiffOp{Kind: DiffOpSetDynamicArrayEntries, Asset: id, Path: path, Entries: append([]uuid.UUID(nil), ae...)})
			reverse.Ops = append(reverse.Ops, DiffOp{Kind: DiffOpSetDynamicArrayEntries, Asset: id, Path: path, Entries: append([]uuid.UUID(nil), be...)})
		}
	}

	// Map entry sets.
	for _, path := range unionKeys(b.MapEntries, a.MapEntries) {
		var be, ae []uuid.UUID
		if set, ok := b.MapEntries[path]; ok {
			be = sortedEntrySet(set)
		}

		if set, ok := a.MapEntries[path]; ok {
			ae = sortedEntrySet(set)
		}

		if !entrySlicesEqual(be, ae) {
			forward.Ops = append(forward.Ops, DiffOp{Kind: DiffOpSetMapEntries, Asset: id, Path: path, Entries: ae})
			reverse.Ops = append(reverse.Ops, DiffOp{Kind: DiffOpSetMapEntries, Asset: id, Path: path, Entries: be})
		}
	}

	// File reference overrides.
	for _, ref := range unionKeys(b.FileReferenceOverrides, a.FileReferenceOverrides) {
		bt, bok := b.FileReferenceOverrides[ref]
		at, aok := a.FileReferenceOverrides[ref]

		switch {
		case !bok:
			forward.Ops = append(forward.Ops, DiffOp{Kind: DiffOpSetFileReference, Asset: id, Path: ref, RefTarget: at})
			reverse.Ops = append(reverse.Ops, DiffOp{Kind: DiffOpClearFileReference, Asset: id, Path: ref})
		case !aok:
			forward.Ops = append(forward.Ops, DiffOp{Kind: DiffOpClearFileReference, Asset: id, Path: ref})
			reverse.Ops = append(reverse.Ops, DiffOp{Kind: DiffOpSetFileReference, Asset: id, Path: ref, RefTarget: bt})
		case bt != at:
			forward.Ops = append(forward.Ops, DiffOp{Kind: DiffOpSetFileReference, Asset: id, Path: ref, RefTarget: at})
			reverse.Ops = append(reverse.Ops, DiffOp{Kind: DiffOpSetFileReference, Asset: id, Path: ref, RefTarget: bt})
		}
	}
}

// Apply executes a diff against the data set. Patch application bypasses
// schema validation: the diff was derived from already-validated states.
func (ds *DataSet) Apply(d *Diff) error {
	for i := range d.Ops {
		op := &d.Ops[i]

		switch op.Kind {
		case DiffOpCreateAsset:
			if err := ds.InsertAsset(op.Snapshot.Clone()); err != nil {
				return fmt.Errorf("applying create: %w", err)
			}

			continue
		case DiffOpDeleteAsset:
			if err := ds.DeleteAsset(op.Asset); err != nil {
				return fmt.Errorf("applying delete: %w", err)
			}

			continue
		}

		a, err := ds.Asset(op.Asset)
		if err != nil {
			return fmt.Errorf("applying diff op: %w", err)
		}

		switch op.Kind {
		case DiffOpSetName:
			a.Name = op.Name
		case DiffOpSetLocation:
			a.Location = op.Location
		case DiffOpSetPrototype:
			a.Prototype = op.Prototype
		case DiffOpSetImportInfo:
			a.ImportInfo = op.ImportInfo
		case DiffOpSetProperty:
			a.Properties[op.Path] = op.Value.Clone()
		case DiffOpClearProperty:
			delete(a.Properties, op.Path)
		case DiffOpSetNullOverride:
			a.NullOverrides[op.Path] = op.NullState
		case DiffOpClearNullOverride:
			delete(a.NullOverrides, op.Path)
		case DiffOpSetReplaceMode:
			a.ReplaceModePaths.Add(op.Path)
		case DiffOpClearReplaceMode:
			a.ReplaceModePaths.Remove(op.Path)
		case DiffOpSetDynamicArrayEntries:
			if len(op.Entries) == 0 {
				delete(a.DynamicArrayEntries, op.Path)
			} else {
				a.DynamicArrayEntries[op.Path] = append([]uuid.UUID(nil), op.Entries...)
			}
		case DiffOpSetMapEntries:
			if len(op.Entries) == 0 {
				delete(a.MapEntries, op.Path)
			} else {
				set := newEntrySet()
				for _, e := range op.Entries {
					set.Add(e)
				}

				a.MapEntries[op.Path] = set
			}
		case DiffOpSetFileReference:
			a.FileReferenceOverrides[op.Path] = op.RefTarget
		case DiffOpClearFileReference:
			delete(a.FileReferenceOverrides, op.Path)
		}
	}

	return nil
}

func importInfoEqual(a, b *ImportInfo) bool {
	if (a == nil) != (b == nil) {
		return false
	}

	if a == nil {
		return true
	}

	if a.ImporterID != b.ImporterID || a.SourceFilePath != b.SourceFilePath || a.ImportableName != b.ImportableName {
		return false
	}

	if len(a.FileReferences) != len(b.FileReferences) {
		return false
	}

	for i := range a.FileReferences {
		if a.FileReferences[i] != b.FileReferences[i] {
			return false
		}
	}

	return true
}

func entrySlicesEqual(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
