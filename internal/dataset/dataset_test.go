package dataset

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anvilengine/anvil/internal/schema"
)

// testSchemaSet links the fixture types the data set tests run against.
func testSchemaSet(t *testing.T) *schema.Set {
	t.Helper()

	vec3 := schema.RecordDef{Name: "Vec3"}
	vec3.AddField("x", uuid.Nil, schema.DefF32())
	vec3.AddField("y", uuid.Nil, schema.DefF32())
	vec3.AddField("z", uuid.Nil, schema.DefF32())

	transform := schema.RecordDef{Name: "Transform"}
	transform.AddField("position", uuid.Nil, schema.DefNamed("Vec3"))
	transform.AddField("label", uuid.Nil, schema.DefString())
	transform.AddField("a", uuid.Nil, schema.DefDynamicArray(schema.DefI32()))
	transform.AddField("lookup", uuid.Nil, schema.DefMap(schema.DefString(), schema.DefI64()))
	transform.AddField("maybe_scale", uuid.Nil, schema.DefNullable(schema.DefNamed("Vec3")))
	transform.AddField("mode", uuid.Nil, schema.DefNamed("Mode"))

	mode := schema.EnumDef{Name: "Mode", Symbols: []schema.SymbolDef{{Name: "Static"}, {Name: "Dynamic"}}}

	linker := schema.NewLinker()
	linker.RegisterRecord(vec3)
	linker.RegisterRecord(transform)
	linker.RegisterEnum(mode)

	set, err := linker.Link()
	require.NoError(t, err)

	return set
}

func transformRecord(t *testing.T, set *schema.Set) *schema.Record {
	t.Helper()

	named, ok := set.FindNamedType("Transform")
	require.True(t, ok)

	return named.(*schema.Record)
}

func newTestDataSet(t *testing.T) (*DataSet, *schema.Record) {
	t.Helper()

	set := testSchemaSet(t)

	return New(set), transformRecord(t, set)
}

func TestDataSet_PrototypeOverride(t *testing.T) {
	ds, record := newTestDataSet(t)

	p, err := ds.NewAsset("parent", Location{}, record)
	require.NoError(t, err)
	require.NoError(t, ds.SetProperty(p, "position.x", F32Value(10)))

	c, err := ds.NewAsset("child", Location{}, record)
	require.NoError(t, err)
	require.NoError(t, ds.SetPrototype(c, p))
	require.NoError(t, ds.SetProperty(c, "position.x", F32Value(20)))

	px, err := ds.ResolveProperty(p, "position.x")
	require.NoError(t, err)
	assert.Equal(t, float32(10), px.F32)

	cx, err := ds.ResolveProperty(c, "position.x")
	require.NoError(t, err)
	assert.Equal(t, float32(20), cx.F32)

	// No override anywhere falls back to the schema default.
	cy, err := ds.ResolveProperty(c, "position.y")
	require.NoError(t, err)
	assert.Equal(t, float32(0), cy.F32)

	cz, err := ds.ResolveProperty(c, "position.z")
	require.NoError(t, err)
	assert.Equal(t, float32(0), cz.F32)

	// Clearing the child's override restores inheritance.
	require.NoError(t, ds.ClearPropertyOverride(c, "position.x"))

	inherited, err := ds.ResolveProperty(c, "position.x")
	require.NoError(t, err)
	assert.Equal(t, float32(10), inherited.F32)
}

func TestDataSet_PrototypeChainInheritance(t *testing.T) {
	ds, record := newTestDataSet(t)

	grand, _ := ds.NewAsset("grand", Location{}, record)
	parent, _ := ds.NewAsset("parent", Location{}, record)
	child, _ := ds.NewAsset("child", Location{}, record)

	require.NoError(t, ds.SetPrototype(parent, grand))
	require.NoError(t, ds.SetPrototype(child, parent))
	require.NoError(t, ds.SetProperty(grand, "label", StringValue("from grand")))

	v, err := ds.ResolveProperty(child, "label")
	require.NoError(t, err)
	assert.Equal(t, "from grand", v.Str)
}

func TestDataSet_EnumDefault(t *testing.T) {
	ds, record := newTestDataSet(t)

	id, _ := ds.NewAsset("a", Location{}, record)

	v, err := ds.ResolveProperty(id, "mode")
	require.NoError(t, err)
	assert.Equal(t, schema.KindEnum, v.Kind)
	assert.Equal(t, "Static", v.Symbol)
}

func TestDataSet_ValueMustMatchSchema(t *testing.T) {
	ds, record := newTestDataSet(t)

	id, _ := ds.NewAsset("a", Location{}, record)

	err := ds.SetProperty(id, "position.x", StringValue("nope"))
	require.ErrorIs(t, err, ErrValueDoesNotMatchSchema)

	err = ds.SetProperty(id, "position.missing", F32Value(1))
	require.ErrorIs(t, err, schema.ErrSchemaNotFound)
}

func TestDataSet_NullOverrides(t *testing.T) {
	ds, record := newTestDataSet(t)

	p, _ := ds.NewAsset("parent", Location{}, record)
	c, _ := ds.NewAsset("child", Location{}, record)
	require.NoError(t, ds.SetPrototype(c, p))

	// Unset nullables are null: reads through them fail.
	_, err := ds.ResolveProperty(c, "maybe_scale.value.x")
	require.ErrorIs(t, err, ErrPathParentIsNull)

	// The prototype's SetNonNull is inherited.
	require.NoError(t, ds.SetNullOverride(p, "maybe_scale", NullOverrideSetNonNull))

	v, err := ds.ResolveProperty(c, "maybe_scale.value.x")
	require.NoError(t, err)
	assert.Equal(t, float32(0), v.F32)

	// The child's own SetNull wins over the prototype.
	require.NoError(t, ds.SetNullOverride(c, "maybe_scale", NullOverrideSetNull))

	_, err = ds.ResolveProperty(c, "maybe_scale.value.x")
	require.ErrorIs(t, err, ErrPathParentIsNull)

	state, err := ds.ResolveNullOverride(c, "maybe_scale")
	require.NoError(t, err)
	assert.Equal(t, NullOverrideSetNull, state)

	// Writes through a null ancestor are allowed; only reads gate.
	require.NoError(t, ds.SetProperty(c, "maybe_scale.value.x", F32Value(5)))

	err = ds.SetNullOverride(c, "position", NullOverrideSetNull)
	require.ErrorIs(t, err, ErrValueDoesNotMatchSchema)
}

func TestDataSet_DynamicArrayAppendAndReplace(t *testing.T) {
	ds, record := newTestDataSet(t)

	p, _ := ds.NewAsset("parent", Location{}, record)

	u1, err := ds.AddDynamicArrayEntry(p, "a")
	require.NoError(t, err)
	u2, err := ds.AddDynamicArrayEntry(p, "a")
	require.NoError(t, err)
	require.NoError(t, ds.SetProperty(p, "a."+u1.String(), I32Value(1)))
	require.NoError(t, ds.SetProperty(p, "a."+u2.String(), I32Value(2)))

	c, _ := ds.NewAsset("child", Location{}, record)
	require.NoError(t, ds.SetPrototype(c, p))

	u3, err := ds.AddDynamicArrayEntry(c, "a")
	require.NoError(t, err)
	require.NoError(t, ds.SetProperty(c, "a."+u3.String(), I32Value(3)))

	// Append mode: prototype entries first, local entries after.
	entries, err := ds.ResolveDynamicArrayEntries(c, "a")
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{u1, u2, u3}, entries)

	// The child reads prototype values through inherited entries.
	v, err := ds.ResolveProperty(c, "a."+u1.String())
	require.NoError(t, err)
	assert.Equal(t, int32(1), v.I32)

	// Replace mode shadows the prototype's entries below the container.
	require.NoError(t, ds.SetOverrideBehavior(c, "a", OverrideBehaviorReplace))

	entries, err = ds.ResolveDynamicArrayEntries(c, "a")
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{u3}, entries)

	_, err = ds.ResolveProperty(c, "a."+u1.String())
	require.ErrorIs(t, err, ErrEntryNotFound)

	// Back to append restores the union.
	require.NoError(t, ds.SetOverrideBehavior(c, "a", OverrideBehaviorAppend))

	entries, err = ds.ResolveDynamicArrayEntries(c, "a")
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestDataSet_DynamicArrayEntryChecks(t *testing.T) {
	ds, record := newTestDataSet(t)

	id, _ := ds.NewAsset("a", Location{}, record)

	err := ds.SetProperty(id, "a."+uuid.NewString(), I32Value(1))
	require.ErrorIs(t, err, ErrEntryNotFound)

	entry, err := ds.AddDynamicArrayEntry(id, "a")
	require.NoError(t, err)

	require.NoError(t, ds.RemoveDynamicArrayEntry(id, "a", entry))
	require.ErrorIs(t, ds.RemoveDynamicArrayEntry(id, "a", entry), ErrEntryNotFound)
}

func TestDataSet_DynamicArrayMove(t *testing.T) {
	ds, record := newTestDataSet(t)

	id, _ := ds.NewAsset("a", Location{}, record)

	u1, _ := ds.AddDynamicArrayEntry(id, "a")
	u2, _ := ds.AddDynamicArrayEntry(id, "a")
	u3, _ := ds.AddDynamicArrayEntry(id, "a")

	require.NoError(t, ds.MoveDynamicArrayEntry(id, "a", u3, 0))

	entries, err := ds.ResolveDynamicArrayEntries(id, "a")
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{u3, u1, u2}, entries)
}

func TestDataSet_MapEntries(t *testing.T) {
	ds, record := newTestDataSet(t)

	p, _ := ds.NewAsset("parent", Location{}, record)
	c, _ := ds.NewAsset("child", Location{}, record)
	require.NoError(t, ds.SetPrototype(c, p))

	k1, err := ds.AddMapEntry(p, "lookup")
	require.NoError(t, err)
	k2, err := ds.AddMapEntry(c, "lookup")
	require.NoError(t, err)

	entries, err := ds.ResolveMapEntries(c, "lookup")
	require.NoError(t, err)
	assert.True(t, entries.Contains(k1))
	assert.True(t, entries.Contains(k2))

	require.NoError(t, ds.SetOverrideBehavior(c, "lookup", OverrideBehaviorReplace))

	entries, err = ds.ResolveMapEntries(c, "lookup")
	require.NoError(t, err)
	assert.False(t, entries.Contains(k1))
	assert.True(t, entries.Contains(k2))

	require.NoError(t, ds.RemoveMapEntry(c, "lookup", k2))
	require.ErrorIs(t, ds.RemoveMapEntry(c, "lookup", k2), ErrEntryNotFound)
}

func TestDataSet_PrototypeRules(t *testing.T) {
	set := testSchemaSet(t)
	ds := New(set)
	record := transformRecord(t, set)

	vec3Named, _ := set.FindNamedType("Vec3")
	vec3 := vec3Named.(*schema.Record)

	a, _ := ds.NewAsset("a", Location{}, record)
	b, _ := ds.NewAsset("b", Location{}, record)
	other, _ := ds.NewAsset("other", Location{}, vec3)

	require.ErrorIs(t, ds.SetPrototype(a, other), ErrInvalidSchema)

	require.NoError(t, ds.SetPrototype(b, a))
	require.ErrorIs(t, ds.SetPrototype(a, b), ErrPrototypeCycle)

	require.NoError(t, ds.SetPrototype(b, uuid.Nil))
	assert.Equal(t, uuid.Nil, mustAsset(t, ds, b).Prototype)
}

func TestDataSet_Locations(t *testing.T) {
	set := testSchemaSet(t)
	ds := New(set)
	record := transformRecord(t, set)
	pathNode := set.PathNodeRecord()

	root, err := ds.NewAsset("textures", Location{}, pathNode)
	require.NoError(t, err)

	child, err := ds.NewAsset("stone", Location{PathNodeID: root}, record)
	require.NoError(t, err)

	// Unknown parents are rejected.
	_, err = ds.NewAsset("bad", Location{PathNodeID: uuid.New()}, record)
	require.ErrorIs(t, err, ErrLocationParentNotFound)

	// A path node cannot move underneath itself.
	sub, err := ds.NewAsset("sub", Location{PathNodeID: root}, pathNode)
	require.NoError(t, err)
	require.ErrorIs(t, ds.RelocateAsset(root, Location{PathNodeID: sub}), ErrNewLocationIsChildOfCurrentAsset)

	require.NoError(t, ds.RelocateAsset(child, Location{PathNodeID: sub}))
	assert.Equal(t, sub, mustAsset(t, ds, child).Location.PathNodeID)

	require.NoError(t, ds.RenameAsset(child, "granite"))
	assert.Equal(t, "granite", mustAsset(t, ds, child).Name)
}

func TestDataSet_CopyAsset(t *testing.T) {
	ds, record := newTestDataSet(t)

	src, _ := ds.NewAsset("src", Location{}, record)
	require.NoError(t, ds.SetProperty(src, "label", StringValue("payload")))

	dup, err := ds.CopyAsset(src, "copy", Location{})
	require.NoError(t, err)
	require.NotEqual(t, src, dup)

	v, err := ds.ResolveProperty(dup, "label")
	require.NoError(t, err)
	assert.Equal(t, "payload", v.Str)

	// The copy is independent of the source.
	require.NoError(t, ds.SetProperty(dup, "label", StringValue("changed")))

	original, err := ds.ResolveProperty(src, "label")
	require.NoError(t, err)
	assert.Equal(t, "payload", original.Str)
}

func TestDataSet_HashProperties(t *testing.T) {
	ds, record := newTestDataSet(t)

	id, _ := ds.NewAsset("a", Location{}, record)

	before, err := ds.HashProperties(id)
	require.NoError(t, err)

	// Hashing is stable for unchanged data.
	again, err := ds.HashProperties(id)
	require.NoError(t, err)
	assert.Equal(t, before, again)

	require.NoError(t, ds.SetProperty(id, "position.x", F32Value(1)))

	after, err := ds.HashProperties(id)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)

	require.NoError(t, ds.ClearPropertyOverride(id, "position.x"))

	restored, err := ds.HashProperties(id)
	require.NoError(t, err)
	assert.Equal(t, before, restored)
}

func mustAsset(t *testing.T, ds *DataSet, id AssetID) *Asset {
	t.Helper()

	a, err := ds.Asset(id)
	require.NoError(t, err)

	return a
}
