package dataset

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"github.com/anvilengine/anvil/internal/hashing"
	"github.com/anvilengine/anvil/internal/schema"
)

// SingleObject is a standalone schema-typed record with no prototype and no
// namespace position. Import data is stored this way: one single object per
// imported asset, keyed by the owning asset's ID on disk.
type SingleObject struct {
	Schema              *schema.Record
	Properties          map[string]Value
	NullOverrides       map[string]NullOverride
	DynamicArrayEntries map[string][]uuid.UUID
	MapEntries          map[string]mapset.Set[uuid.UUID]

	schemaSet *schema.Set
}

// NewSingleObject returns an empty single object of the given record type.
func NewSingleObject(set *schema.Set, record *schema.Record) *SingleObject {
	return &SingleObject{
		Schema:              record,
		Properties:          map[string]Value{},
		NullOverrides:       map[string]NullOverride{},
		DynamicArrayEntries: map[string][]uuid.UUID{},
		MapEntries:          map[string]mapset.Set[uuid.UUID]{},
		schemaSet:           set,
	}
}

// SchemaSet returns the schema set the object validates against.
func (o *SingleObject) SchemaSet() *schema.Set { return o.schemaSet }

// SetProperty stores a value at path after schema validation.
func (o *SingleObject) SetProperty(path string, value Value) error {
	terminal, err := o.schemaSet.PropertySchema(o.Schema, path)
	if err != nil {
		return err
	}

	if !value.matchesSchema(terminal) {
		return fmt.Errorf("%w: path %q wants %s, got %s", ErrValueDoesNotMatchSchema, path, terminal.Kind, value.Kind)
	}

	o.Properties[path] = value

	return nil
}

// ResolveProperty reads a value at path, falling back to the schema
// default. Null ancestors gate reads the same way they do for assets.
func (o *SingleObject) ResolveProperty(path string) (Value, error) {
	terminal, err := o.schemaSet.PropertySchema(o.Schema, path)
	if err != nil {
		return Value{}, err
	}

	cur := schema.RecordOf(o.Schema.Fingerprint())
	prefix := ""

	for _, segment := range splitPath(path) {
		if cur.Kind == schema.KindNullable {
			if o.NullOverrides[prefix] != NullOverrideSetNonNull {
				return Value{}, fmt.Errorf("%w: %q", ErrPathParentIsNull, prefix)
			}
		}

		next, stepErr := o.schemaSet.StepSegment(cur, segment)
		if stepErr != nil {
			return Value{}, stepErr
		}

		cur = next
		prefix = joinPath(prefix, segment)
	}

	if value, ok := o.Properties[path]; ok {
		return value, nil
	}

	return DefaultValue(o.schemaSet, terminal), nil
}

// SetNullOverride records a nullable path's state.
func (o *SingleObject) SetNullOverride(path string, state NullOverride) error {
	terminal, err := o.schemaSet.PropertySchema(o.Schema, path)
	if err != nil {
		return err
	}

	if terminal.Kind != schema.KindNullable {
		return fmt.Errorf("%w: %q is not nullable", ErrValueDoesNotMatchSchema, path)
	}

	if state == NullOverrideUnset {
		delete(o.NullOverrides, path)
	} else {
		o.NullOverrides[path] = state
	}

	return nil
}

// AddDynamicArrayEntry appends an entry at a dynamic-array path.
func (o *SingleObject) AddDynamicArrayEntry(path string) (uuid.UUID, error) {
	terminal, err := o.schemaSet.PropertySchema(o.Schema, path)
	if err != nil {
		return uuid.Nil, err
	}

	if terminal.Kind != schema.KindDynamicArray {
		return uuid.Nil, fmt.Errorf("%w: %q is not a dynamic array", ErrValueDoesNotMatchSchema, path)
	}

	entry := uuid.New()
	o.DynamicArrayEntries[path] = append(o.DynamicArrayEntries[path], entry)

	return entry, nil
}

// AddMapEntry inserts an entry at a map path.
func (o *SingleObject) AddMapEntry(path string) (uuid.UUID, error) {
	terminal, err := o.schemaSet.PropertySchema(o.Schema, path)
	if err != nil {
		return uuid.Nil, err
	}

	if terminal.Kind != schema.KindMap {
		return uuid.Nil, fmt.Errorf("%w: %q is not a map", ErrValueDoesNotMatchSchema, path)
	}

	set, ok := o.MapEntries[path]
	if !ok {
		set = newEntrySet()
		o.MapEntries[path] = set
	}

	entry := uuid.New()
	set.Add(entry)

	return entry, nil
}

// ContentsHash is a deterministic hash of the object's schema and full
// property state. Downstream builds key on it to decide whether a re-import
// actually changed anything.
func (o *SingleObject) ContentsHash() hashing.Hash64 {
	digest := hashing.NewDigest64()
	fp := o.Schema.Fingerprint()
	digest.Write(fp[:])

	for _, path := range sortedKeys(o.Properties) {
		digest.WriteString(path)
		hashValue(digest, o.Properties[path])
	}

	for _, path := range sortedKeys(o.NullOverrides) {
		digest.WriteString(path)
		digest.WriteUint64(uint64(o.NullOverrides[path]))
	}

	for _, path := range sortedKeys(o.DynamicArrayEntries) {
		digest.WriteString(path)

		for _, entry := range o.DynamicArrayEntries[path] {
			digest.WriteUUID(entry)
		}
	}

	for _, path := range sortedKeys(o.MapEntries) {
		digest.WriteString(path)

		for _, entry := range sortedEntrySet(o.MapEntries[path]) {
			digest.WriteUUID(entry)
		}
	}

	return digest.Sum64()
}
