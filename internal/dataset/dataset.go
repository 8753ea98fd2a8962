package dataset

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/anvilengine/anvil/internal/schema"
)

// DataSet owns every asset of one edit context and implements the property
// store contract: schema-checked writes, prototype-resolved reads,
// container entry management, and asset lifecycle.
type DataSet struct {
	schemaSet *schema.Set
	assets    map[AssetID]*Asset
}

// New returns an empty data set bound to a schema set.
func New(schemaSet *schema.Set) *DataSet {
	return &DataSet{
		schemaSet: schemaSet,
		assets:    map[AssetID]*Asset{},
	}
}

// SchemaSet returns the schema set the data set resolves types against.
func (ds *DataSet) SchemaSet() *schema.Set { return ds.schemaSet }

// Asset returns the asset with the given ID.
func (ds *DataSet) Asset(id AssetID) (*Asset, error) {
	a, ok := ds.assets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, id)
	}

	return a, nil
}

// Assets iterates all assets. The map must not be mutated by callers.
func (ds *DataSet) Assets() map[AssetID]*Asset { return ds.assets }

// AssetIDs returns every asset ID.
func (ds *DataSet) AssetIDs() []AssetID {
	out := make([]AssetID, 0, len(ds.assets))
	for id := range ds.assets {
		out = append(out, id)
	}

	return out
}

// Clone deep-copies the data set. Snapshots handed to worker threads are
// produced this way; the schema set is immutable and shared.
func (ds *DataSet) Clone() *DataSet {
	out := New(ds.schemaSet)
	for id, a := range ds.assets {
		out.assets[id] = a.Clone()
	}

	return out
}

// NewAsset registers a fresh asset of the given record type and returns its
// generated ID.
func (ds *DataSet) NewAsset(name string, location Location, record *schema.Record) (AssetID, error) {
	return ds.NewAssetWithID(uuid.New(), name, location, record)
}

// NewAssetWithID registers an asset under a caller-chosen ID (used by
// loaders and diff application).
func (ds *DataSet) NewAssetWithID(id AssetID, name string, location Location, record *schema.Record) (AssetID, error) {
	if _, exists := ds.assets[id]; exists {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrDuplicateAssetID, id)
	}

	if err := ds.validateLocation(id, location); err != nil {
		return uuid.Nil, err
	}

	ds.assets[id] = newAsset(id, name, location, record)

	return id, nil
}

// InsertAsset registers a fully formed asset (loader path).
func (ds *DataSet) InsertAsset(a *Asset) error {
	if _, exists := ds.assets[a.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAssetID, a.ID)
	}

	ds.assets[a.ID] = a

	return nil
}

// DeleteAsset removes an asset.
func (ds *DataSet) DeleteAsset(id AssetID) error {
	if _, ok := ds.assets[id]; !ok {
		return fmt.Errorf("%w: %s", ErrAssetNotFound, id)
	}

	delete(ds.assets, id)

	return nil
}

// CopyAsset deep-copies an asset to a new ID under the given name and
// location.
func (ds *DataSet) CopyAsset(id AssetID, name string, location Location) (AssetID, error) {
	src, err := ds.Asset(id)
	if err != nil {
		return uuid.Nil, err
	}

	newID := uuid.New()
	if err := ds.validateLocation(newID, location); err != nil {
		return uuid.Nil, err
	}

	copied := src.Clone()
	copied.ID = newID
	copied.Name = name
	copied.Location = location
	ds.assets[newID] = copied

	return newID, nil
}

// RenameAsset changes an asset's display name.
func (ds *DataSet) RenameAsset(id AssetID, name string) error {
	a, err := ds.Asset(id)
	if err != nil {
		return err
	}

	a.Name = name

	return nil
}

// RelocateAsset moves an asset to another location. Relocating a path node
// underneath itself is rejected.
func (ds *DataSet) RelocateAsset(id AssetID, location Location) error {
	a, err := ds.Asset(id)
	if err != nil {
		return err
	}

	if err := ds.validateLocation(id, location); err != nil {
		return err
	}

	a.Location = location

	return nil
}

// validateLocation checks that a location's chain exists, terminates at a
// root, and does not run through the asset being placed.
func (ds *DataSet) validateLocation(id AssetID, location Location) error {
	seen := map[AssetID]bool{}

	for cur := location.PathNodeID; cur != uuid.Nil; {
		if cur == id {
			return fmt.Errorf("%w: %s", ErrNewLocationIsChildOfCurrentAsset, id)
		}

		if seen[cur] {
			return fmt.Errorf("%w: via %s", ErrLocationCycle, cur)
		}

		seen[cur] = true

		node, ok := ds.assets[cur]
		if !ok {
			return fmt.Errorf("%w: path node %s", ErrLocationParentNotFound, cur)
		}

		cur = node.Location.PathNodeID
	}

	return nil
}

// SetPrototype attaches (or with uuid.Nil detaches) a prototype. The
// prototype must share the asset's record schema and the chain must stay
// acyclic. Existing overrides are preserved.
func (ds *DataSet) SetPrototype(id AssetID, prototype AssetID) error {
	a, err := ds.Asset(id)
	if err != nil {
		return err
	}

	if prototype == uuid.Nil {
		a.Prototype = uuid.Nil
		return nil
	}

	proto, err := ds.Asset(prototype)
	if err != nil {
		return err
	}

	if proto.Schema.Fingerprint() != a.Schema.Fingerprint() {
		return fmt.Errorf("%w: prototype %s has schema %s, asset has %s",
			ErrInvalidSchema, prototype, proto.Schema.Name(), a.Schema.Name())
	}

	for cur := prototype; cur != uuid.Nil; {
		if cur == id {
			return fmt.Errorf("%w: %s", ErrPrototypeCycle, id)
		}

		next, ok := ds.assets[cur]
		if !ok {
			break
		}

		cur = next.Prototype
	}

	a.Prototype = prototype

	return nil
}

// SetProperty stores an override at path. The value variant must match the
// schema-resolved terminal type and every container ancestor entry must be
// present in the resolved entry list. Null-override states of ancestors are
// not enforced on writes; they gate reads.
func (ds *DataSet) SetProperty(id AssetID, path string, value Value) error {
	a, err := ds.Asset(id)
	if err != nil {
		return err
	}

	terminal, err := ds.schemaSet.PropertySchema(a.Schema, path)
	if err != nil {
		return err
	}

	if !value.matchesSchema(terminal) {
		return fmt.Errorf("%w: path %q wants %s, got %s", ErrValueDoesNotMatchSchema, path, terminal.Kind, value.Kind)
	}

	if terminal.Kind == schema.KindAssetRef && value.Ref != uuid.Nil {
		target, refErr := ds.Asset(value.Ref)
		if refErr != nil {
			return refErr
		}

		if target.Schema.Fingerprint() != terminal.Ref {
			return fmt.Errorf("%w: ref target %s is a %s", ErrInvalidSchema, value.Ref, target.Schema.Name())
		}
	}

	if err := ds.checkContainerAncestors(a, path); err != nil {
		return err
	}

	a.Properties[path] = value

	return nil
}

// ClearPropertyOverride removes the asset's own override at path, restoring
// inheritance.
func (ds *DataSet) ClearPropertyOverride(id AssetID, path string) error {
	a, err := ds.Asset(id)
	if err != nil {
		return err
	}

	delete(a.Properties, path)

	return nil
}

// SetNullOverride records the null state of a nullable path.
func (ds *DataSet) SetNullOverride(id AssetID, path string, state NullOverride) error {
	a, err := ds.Asset(id)
	if err != nil {
		return err
	}

	terminal, err := ds.schemaSet.PropertySchema(a.Schema, path)
	if err != nil {
		return err
	}

	if terminal.Kind != schema.KindNullable {
		return fmt.Errorf("%w: %q is not nullable", ErrValueDoesNotMatchSchema, path)
	}

	if state == NullOverrideUnset {
		delete(a.NullOverrides, path)
	} else {
		a.NullOverrides[path] = state
	}

	return nil
}

// SetOverrideBehavior flips a container path between append and replace
// mode.
func (ds *DataSet) SetOverrideBehavior(id AssetID, path string, behavior OverrideBehavior) error {
	a, err := ds.Asset(id)
	if err != nil {
		return err
	}

	terminal, err := ds.schemaSet.PropertySchema(a.Schema, path)
	if err != nil {
		return err
	}

	if !terminal.Kind.IsContainer() {
		return fmt.Errorf("%w: %q is not a container", ErrValueDoesNotMatchSchema, path)
	}

	if behavior == OverrideBehaviorReplace {
		a.ReplaceModePaths.Add(path)
	} else {
		a.ReplaceModePaths.Remove(path)
	}

	return nil
}

// AddDynamicArrayEntry appends a fresh entry UUID at a dynamic-array path
// and returns it.
func (ds *DataSet) AddDynamicArrayEntry(id AssetID, path string) (uuid.UUID, error) {
	a, err := ds.Asset(id)
	if err != nil {
		return uuid.Nil, err
	}

	if err := ds.checkContainerKind(a, path, schema.KindDynamicArray); err != nil {
		return uuid.Nil, err
	}

	entry := uuid.New()
	a.DynamicArrayEntries[path] = append(a.DynamicArrayEntries[path], entry)

	return entry, nil
}

// RemoveDynamicArrayEntry removes a locally added entry. Entries inherited
// from a prototype cannot be removed here; shadow them with replace mode.
func (ds *DataSet) RemoveDynamicArrayEntry(id AssetID, path string, entry uuid.UUID) error {
	a, err := ds.Asset(id)
	if err != nil {
		return err
	}

	entries := a.DynamicArrayEntries[path]
	for i, e := range entries {
		if e == entry {
			a.DynamicArrayEntries[path] = append(entries[:i:i], entries[i+1:]...)
			return nil
		}
	}

	return fmt.Errorf("%w: %s at %q", ErrEntryNotFound, entry, path)
}

// MoveDynamicArrayEntry reorders a locally added entry to newIndex within
// the asset's own entry list.
func (ds *DataSet) MoveDynamicArrayEntry(id AssetID, path string, entry uuid.UUID, newIndex int) error {
	a, err := ds.Asset(id)
	if err != nil {
		return err
	}

	entries := a.DynamicArrayEntries[path]

	from := -1
	for i, e := range entries {
		if e == entry {
			from = i
			break
		}
	}

	if from < 0 {
		return fmt.Errorf("%w: %s at %q", ErrEntryNotFound, entry, path)
	}

	if newIndex < 0 {
		newIndex = 0
	}

	if newIndex >= len(entries) {
		newIndex = len(entries) - 1
	}

	moved := entries[from]
	entries = append(entries[:from], entries[from+1:]...)
	entries = append(entries[:newIndex], append([]uuid.UUID{moved}, entries[newIndex:]...)...)
	a.DynamicArrayEntries[path] = entries

	return nil
}

// AddMapEntry inserts a fresh entry UUID at a map path and returns it.
func (ds *DataSet) AddMapEntry(id AssetID, path string) (uuid.UUID, error) {
	a, err := ds.Asset(id)
	if err != nil {
		return uuid.Nil, err
	}

	if err := ds.checkContainerKind(a, path, schema.KindMap); err != nil {
		return uuid.Nil, err
	}

	entry := uuid.New()

	set, ok := a.MapEntries[path]
	if !ok {
		set = newEntrySet()
		a.MapEntries[path] = set
	}

	if !set.Add(entry) {
		return uuid.Nil, fmt.Errorf("%w: %s at %q", ErrDuplicateEntry, entry, path)
	}

	return entry, nil
}

// RemoveMapEntry removes a locally added map entry.
func (ds *DataSet) RemoveMapEntry(id AssetID, path string, entry uuid.UUID) error {
	a, err := ds.Asset(id)
	if err != nil {
		return err
	}

	set, ok := a.MapEntries[path]
	if !ok || !set.Contains(entry) {
		return fmt.Errorf("%w: %s at %q", ErrEntryNotFound, entry, path)
	}

	set.Remove(entry)

	return nil
}

// SetFileReferenceOverride binds a source-relative path reference to a
// concrete asset.
func (ds *DataSet) SetFileReferenceOverride(id AssetID, relPath string, target AssetID) error {
	a, err := ds.Asset(id)
	if err != nil {
		return err
	}

	a.FileReferenceOverrides[relPath] = target

	return nil
}

// SetImportInfo records where the asset's content is imported from.
func (ds *DataSet) SetImportInfo(id AssetID, info *ImportInfo) error {
	a, err := ds.Asset(id)
	if err != nil {
		return err
	}

	a.ImportInfo = info

	return nil
}

// checkContainerKind verifies that path resolves to a container of the
// given kind on the asset's schema.
func (ds *DataSet) checkContainerKind(a *Asset, path string, kind schema.Kind) error {
	terminal, err := ds.schemaSet.PropertySchema(a.Schema, path)
	if err != nil {
		return err
	}

	if terminal.Kind != kind {
		return fmt.Errorf("%w: %q is not a %s", ErrValueDoesNotMatchSchema, path, kind)
	}

	return ds.checkContainerAncestors(a, path)
}

// checkContainerAncestors verifies that every container segment on the
// path names an entry present in the prototype-resolved entry list of its
// container.
func (ds *DataSet) checkContainerAncestors(a *Asset, path string) error {
	cur := schema.RecordOf(a.Schema.Fingerprint())
	prefix := ""

	for _, segment := range splitPath(path) {
		if cur.Kind.IsContainer() {
			entry, parseErr := uuid.Parse(segment)
			if parseErr != nil {
				return fmt.Errorf("%w: container segment %q", ErrEntryNotFound, segment)
			}

			if !ds.resolvedEntryExists(a, prefix, cur.Kind, entry) {
				return fmt.Errorf("%w: %s at %q", ErrEntryNotFound, entry, prefix)
			}
		}

		next, err := ds.schemaSet.StepSegment(cur, segment)
		if err != nil {
			return err
		}

		cur = next
		prefix = joinPath(prefix, segment)
	}

	return nil
}

// resolvedEntryExists checks an entry against the prototype-resolved entry
// list at a container path.
func (ds *DataSet) resolvedEntryExists(a *Asset, containerPath string, kind schema.Kind, entry uuid.UUID) bool {
	if kind == schema.KindDynamicArray {
		entries, err := ds.resolveDynamicArrayEntriesOn(a, containerPath)
		if err != nil {
			return false
		}

		for _, e := range entries {
			if e == entry {
				return true
			}
		}

		return false
	}

	entries, err := ds.resolveMapEntriesOn(a, containerPath)
	if err != nil {
		return false
	}

	return entries.Contains(entry)
}
