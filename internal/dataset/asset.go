package dataset

import (
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"github.com/anvilengine/anvil/internal/schema"
)

// NullOverride is the per-asset override state of a nullable property path.
type NullOverride uint8

// Null override states. Unset inherits from the prototype chain; an
// entirely unset nullable defaults to null.
const (
	NullOverrideUnset NullOverride = iota
	NullOverrideSetNull
	NullOverrideSetNonNull
)

// String renders the state for storage and diagnostics.
func (n NullOverride) String() string {
	switch n {
	case NullOverrideSetNull:
		return "null"
	case NullOverrideSetNonNull:
		return "non_null"
	default:
		return "unset"
	}
}

// ParseNullOverride is the inverse of NullOverride.String.
func ParseNullOverride(s string) (NullOverride, bool) {
	switch s {
	case "null":
		return NullOverrideSetNull, true
	case "non_null":
		return NullOverrideSetNonNull, true
	case "unset":
		return NullOverrideUnset, true
	default:
		return NullOverrideUnset, false
	}
}

// OverrideBehavior selects how a container path combines with the prototype
// chain: Append unions prototype entries with local entries, Replace
// shadows the prototype below the container.
type OverrideBehavior uint8

// Container override behaviors.
const (
	OverrideBehaviorAppend OverrideBehavior = iota
	OverrideBehaviorReplace
)

// Location places an asset under a path node within a data source.
type Location struct {
	// SourceID identifies the owning data source.
	SourceID uuid.UUID
	// PathNodeID is the parent path node asset, or uuid.Nil for the root.
	PathNodeID AssetID
}

// IsRoot reports whether the location is a data source root.
func (l Location) IsRoot() bool { return l.PathNodeID == uuid.Nil }

// ImportInfo records where an imported asset's content comes from, so
// re-imports can find it again.
type ImportInfo struct {
	ImporterID     uuid.UUID
	SourceFilePath string
	// ImportableName distinguishes importables in multi-importable source
	// files; empty for the default importable.
	ImportableName string
	// FileReferences are the source-relative paths the importable refers to.
	FileReferences []string
}

// Asset is one editable record: identity, schema, namespace position, and
// the sparse override maps that combine with the prototype chain.
type Asset struct {
	ID             AssetID
	Schema         *schema.Record
	Name           string
	Location       Location
	Prototype      AssetID // uuid.Nil when the asset has no prototype
	ImportInfo     *ImportInfo
	SchemaMigrated bool // loaded by name with a mismatched fingerprint; resave expected

	Properties             map[string]Value
	NullOverrides          map[string]NullOverride
	ReplaceModePaths       mapset.Set[string]
	DynamicArrayEntries    map[string][]uuid.UUID
	MapEntries             map[string]mapset.Set[uuid.UUID]
	FileReferenceOverrides map[string]AssetID
}

func newAsset(id AssetID, name string, location Location, record *schema.Record) *Asset {
	return &Asset{
		ID:                     id,
		Schema:                 record,
		Name:                   name,
		Location:               location,
		Properties:             map[string]Value{},
		NullOverrides:          map[string]NullOverride{},
		ReplaceModePaths:       mapset.NewThreadUnsafeSet[string](),
		DynamicArrayEntries:    map[string][]uuid.UUID{},
		MapEntries:             map[string]mapset.Set[uuid.UUID]{},
		FileReferenceOverrides: map[string]AssetID{},
	}
}

// NewAssetForLoad constructs an empty asset shell for storage loaders,
// which fill the override maps directly from file contents.
func NewAssetForLoad(id AssetID, name string, location Location, record *schema.Record) *Asset {
	return newAsset(id, name, location, record)
}

// NewEntrySet returns an empty map-entry set (exported for loaders).
func NewEntrySet() mapset.Set[uuid.UUID] {
	return newEntrySet()
}

// IsPathNode reports whether the asset is a namespace path node.
func (a *Asset) IsPathNode() bool {
	return a.Schema != nil && a.Schema.Name() == schema.PathNodeTypeName
}

// Clone returns a deep copy of the asset.
func (a *Asset) Clone() *Asset {
	out := &Asset{
		ID:                     a.ID,
		Schema:                 a.Schema,
		Name:                   a.Name,
		Location:               a.Location,
		Prototype:              a.Prototype,
		SchemaMigrated:         a.SchemaMigrated,
		Properties:             make(map[string]Value, len(a.Properties)),
		NullOverrides:          make(map[string]NullOverride, len(a.NullOverrides)),
		ReplaceModePaths:       a.ReplaceModePaths.Clone(),
		DynamicArrayEntries:    make(map[string][]uuid.UUID, len(a.DynamicArrayEntries)),
		MapEntries:             make(map[string]mapset.Set[uuid.UUID], len(a.MapEntries)),
		FileReferenceOverrides: make(map[string]AssetID, len(a.FileReferenceOverrides)),
	}

	if a.ImportInfo != nil {
		info := *a.ImportInfo
		info.FileReferences = append([]string(nil), a.ImportInfo.FileReferences...)
		out.ImportInfo = &info
	}

	for path, value := range a.Properties {
		out.Properties[path] = value.Clone()
	}

	for path, state := range a.NullOverrides {
		out.NullOverrides[path] = state
	}

	for path, entries := range a.DynamicArrayEntries {
		out.DynamicArrayEntries[path] = append([]uuid.UUID(nil), entries...)
	}

	for path, entries := range a.MapEntries {
		out.MapEntries[path] = entries.Clone()
	}

	for ref, target := range a.FileReferenceOverrides {
		out.FileReferenceOverrides[ref] = target
	}

	return out
}

// sortedKeys returns map keys in ascending order for deterministic
// iteration.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// sortedEntrySet returns a set's UUIDs in ascending string order.
func sortedEntrySet(s mapset.Set[uuid.UUID]) []uuid.UUID {
	out := s.ToSlice()
	sort.Slice(out, func(i, j int) bool {
		return strings.Compare(out[i].String(), out[j].String()) < 0
	})

	return out
}

// splitPath splits a dotted path into segments; the empty path has none.
func splitPath(path string) []string {
	if path == "" {
		return nil
	}

	return strings.Split(path, ".")
}

// joinPath appends a segment to a (possibly empty) path prefix.
func joinPath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}

	return prefix + "." + segment
}

// newEntrySet returns an empty map-entry set.
func newEntrySet() mapset.Set[uuid.UUID] {
	return mapset.NewThreadUnsafeSet[uuid.UUID]()
}

// unionKeys returns the sorted union of two maps' keys.
func unionKeys[A, B any](a map[string]A, b map[string]B) []string {
	seen := make(map[string]bool, len(a)+len(b))
	for k := range a {
		seen[k] = true
	}

	for k := range b {
		seen[k] = true
	}

	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}

// sortedStringSet returns a set's members in ascending order.
func sortedStringSet(s mapset.Set[string]) []string {
	out := s.ToSlice()
	sort.Strings(out)

	return out
}

// sortAssetIDs orders IDs by string form for deterministic diffs.
func sortAssetIDs(ids []AssetID) {
	sort.Slice(ids, func(i, j int) bool {
		return strings.Compare(ids[i].String(), ids[j].String()) < 0
	})
}
