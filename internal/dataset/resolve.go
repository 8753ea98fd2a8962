package dataset

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"github.com/anvilengine/anvil/internal/schema"
)

// maxPrototypeDepth bounds prototype-chain walks so a corrupt chain cannot
// spin forever. SetPrototype rejects cycles; this is the backstop for data
// loaded from disk.
const maxPrototypeDepth = 64

// ResolveProperty reads the value at path on an asset per the override
// rules: the asset's own override wins, then the prototype chain subject to
// null overrides and container replace modes, then the schema default.
func (ds *DataSet) ResolveProperty(id AssetID, path string) (Value, error) {
	a, err := ds.Asset(id)
	if err != nil {
		return Value{}, err
	}

	terminal, err := ds.schemaSet.PropertySchema(a.Schema, path)
	if err != nil {
		return Value{}, err
	}

	// A read through a null ancestor fails regardless of stored overrides.
	if err := ds.checkNullAncestors(a, path); err != nil {
		return Value{}, err
	}

	if err := ds.checkContainerAncestors(a, path); err != nil {
		return Value{}, err
	}

	containerAncestors := ds.containerAncestorPaths(a, path)

	cur := a
	for depth := 0; cur != nil && depth < maxPrototypeDepth; depth++ {
		if value, ok := cur.Properties[path]; ok {
			return value, nil
		}

		// Replace mode at any container ancestor shadows everything the
		// prototype chain holds below that container.
		stopped := false

		for _, containerPath := range containerAncestors {
			if cur.ReplaceModePaths.Contains(containerPath) {
				stopped = true
				break
			}
		}

		if stopped || cur.Prototype == uuid.Nil {
			break
		}

		cur = ds.assets[cur.Prototype]
	}

	return DefaultValue(ds.schemaSet, terminal), nil
}

// ResolveNullOverride returns the effective null state of a nullable path:
// the first explicit override on the prototype chain, or Unset when no
// asset in the chain has one (an unset nullable is null).
func (ds *DataSet) ResolveNullOverride(id AssetID, path string) (NullOverride, error) {
	a, err := ds.Asset(id)
	if err != nil {
		return NullOverrideUnset, err
	}

	terminal, err := ds.schemaSet.PropertySchema(a.Schema, path)
	if err != nil {
		return NullOverrideUnset, err
	}

	if terminal.Kind != schema.KindNullable {
		return NullOverrideUnset, fmt.Errorf("%w: %q is not nullable", ErrValueDoesNotMatchSchema, path)
	}

	cur := a
	for depth := 0; cur != nil && depth < maxPrototypeDepth; depth++ {
		if state, ok := cur.NullOverrides[path]; ok {
			return state, nil
		}

		if cur.Prototype == uuid.Nil {
			break
		}

		cur = ds.assets[cur.Prototype]
	}

	return NullOverrideUnset, nil
}

// ResolveOverrideBehavior returns the asset's own behavior at a container
// path. Replace mode is not inherited; each asset shadows independently.
func (ds *DataSet) ResolveOverrideBehavior(id AssetID, path string) (OverrideBehavior, error) {
	a, err := ds.Asset(id)
	if err != nil {
		return OverrideBehaviorAppend, err
	}

	if a.ReplaceModePaths.Contains(path) {
		return OverrideBehaviorReplace, nil
	}

	return OverrideBehaviorAppend, nil
}

// ResolveDynamicArrayEntries returns the ordered entry list at a
// dynamic-array path: prototype entries first, local entries appended, with
// the chain truncated at the first asset (starting from the leaf) that has
// the container in replace mode.
func (ds *DataSet) ResolveDynamicArrayEntries(id AssetID, path string) ([]uuid.UUID, error) {
	a, err := ds.Asset(id)
	if err != nil {
		return nil, err
	}

	if err := ds.checkContainerKind(a, path, schema.KindDynamicArray); err != nil {
		return nil, err
	}

	return ds.resolveDynamicArrayEntriesOn(a, path)
}

func (ds *DataSet) resolveDynamicArrayEntriesOn(a *Asset, path string) ([]uuid.UUID, error) {
	chain, err := ds.entryChain(a, path)
	if err != nil {
		return nil, err
	}

	var entries []uuid.UUID

	// Root-most ancestor contributes first so appended child entries land
	// after inherited ones.
	for i := len(chain) - 1; i >= 0; i-- {
		entries = append(entries, chain[i].DynamicArrayEntries[path]...)
	}

	return entries, nil
}

// ResolveMapEntries returns the entry set at a map path, unioned across the
// prototype chain subject to replace mode.
func (ds *DataSet) ResolveMapEntries(id AssetID, path string) (mapset.Set[uuid.UUID], error) {
	a, err := ds.Asset(id)
	if err != nil {
		return nil, err
	}

	if err := ds.checkContainerKind(a, path, schema.KindMap); err != nil {
		return nil, err
	}

	return ds.resolveMapEntriesOn(a, path)
}

func (ds *DataSet) resolveMapEntriesOn(a *Asset, path string) (mapset.Set[uuid.UUID], error) {
	chain, err := ds.entryChain(a, path)
	if err != nil {
		return nil, err
	}

	entries := newEntrySet()

	for _, link := range chain {
		if set, ok := link.MapEntries[path]; ok {
			entries = entries.Union(set)
		}
	}

	return entries, nil
}

// entryChain walks the prototype chain for container-entry resolution,
// truncating at the first asset that holds the container in replace mode
// (that asset's own entries still count).
func (ds *DataSet) entryChain(a *Asset, path string) ([]*Asset, error) {
	var chain []*Asset

	cur := a
	for depth := 0; cur != nil; depth++ {
		if depth >= maxPrototypeDepth {
			return nil, fmt.Errorf("%w: at %s", ErrPrototypeCycle, a.ID)
		}

		chain = append(chain, cur)

		if cur.ReplaceModePaths.Contains(path) || cur.Prototype == uuid.Nil {
			break
		}

		cur = ds.assets[cur.Prototype]
	}

	return chain, nil
}

// checkNullAncestors fails with ErrPathParentIsNull when any nullable
// ancestor of path does not resolve to SetNonNull.
func (ds *DataSet) checkNullAncestors(a *Asset, path string) error {
	cur := schema.RecordOf(a.Schema.Fingerprint())
	prefix := ""

	for _, segment := range splitPath(path) {
		if cur.Kind == schema.KindNullable {
			state := ds.resolveNullOverrideOn(a, prefix)
			if state != NullOverrideSetNonNull {
				return fmt.Errorf("%w: %q", ErrPathParentIsNull, prefix)
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

func (ds *DataSet) resolveNullOverrideOn(a *Asset, path string) NullOverride {
	cur := a
	for depth := 0; cur != nil && depth < maxPrototypeDepth; depth++ {
		if state, ok := cur.NullOverrides[path]; ok {
			return state
		}

		if cur.Prototype == uuid.Nil {
			break
		}

		cur = ds.assets[cur.Prototype]
	}

	return NullOverrideUnset
}

// containerAncestorPaths lists the container prefixes of path on the
// asset's schema, shallowest first.
func (ds *DataSet) containerAncestorPaths(a *Asset, path string) []string {
	var out []string

	cur := schema.RecordOf(a.Schema.Fingerprint())
	prefix := ""

	for _, segment := range splitPath(path) {
		if cur.Kind.IsContainer() {
			out = append(out, prefix)
		}

		next, err := ds.schemaSet.StepSegment(cur, segment)
		if err != nil {
			return out
		}

		cur = next
		prefix = joinPath(prefix, segment)
	}

	return out
}
