package storage

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anvilengine/anvil/internal/dataset"
	"github.com/anvilengine/anvil/internal/schema"
)

func storageTestSchema(t *testing.T) *schema.Set {
	t.Helper()

	material := schema.RecordDef{Name: "Material", TypeUUID: uuid.MustParse("77777777-7777-4777-8777-777777777777")}
	material.AddField("name", uuid.Nil, schema.DefString())
	material.AddField("roughness", uuid.Nil, schema.DefF64())
	material.AddField("texture", uuid.Nil, schema.DefAssetRef("Material"))
	material.AddField("layers", uuid.Nil, schema.DefDynamicArray(schema.DefU32()))
	material.AddField("flags", uuid.Nil, schema.DefMap(schema.DefString(), schema.DefBoolean()))
	material.AddField("tint", uuid.Nil, schema.DefNullable(schema.DefF32()))
	material.AddField("icc", uuid.Nil, schema.DefBytes())

	linker := schema.NewLinker()
	linker.RegisterRecord(material)

	set, err := linker.Link()
	require.NoError(t, err)

	return set
}

func materialRecord(t *testing.T, set *schema.Set) *schema.Record {
	t.Helper()

	named, ok := set.FindNamedType("Material")
	require.True(t, ok)

	return named.(*schema.Record)
}

// Serialize then deserialize must preserve every observable property read.
func TestAssetJSON_RoundTrip(t *testing.T) {
	set := storageTestSchema(t)
	record := materialRecord(t, set)
	ds := dataset.New(set)

	proto, err := ds.NewAsset("proto", dataset.Location{}, record)
	require.NoError(t, err)

	id, err := ds.NewAsset("stone", dataset.Location{SourceID: uuid.New()}, record)
	require.NoError(t, err)
	require.NoError(t, ds.SetPrototype(id, proto))

	require.NoError(t, ds.SetProperty(id, "name", dataset.StringValue("granite")))
	require.NoError(t, ds.SetProperty(id, "roughness", dataset.F64Value(0.75)))
	require.NoError(t, ds.SetProperty(id, "texture", dataset.AssetRefValue(proto)))
	require.NoError(t, ds.SetProperty(id, "icc", dataset.BytesValue([]byte{1, 2, 3, 254})))
	require.NoError(t, ds.SetNullOverride(id, "tint", dataset.NullOverrideSetNonNull))
	require.NoError(t, ds.SetProperty(id, "tint.value", dataset.F32Value(0.5)))

	entry, err := ds.AddDynamicArrayEntry(id, "layers")
	require.NoError(t, err)
	require.NoError(t, ds.SetProperty(id, "layers."+entry.String(), dataset.U32Value(7)))

	mapKey, err := ds.AddMapEntry(id, "flags")
	require.NoError(t, err)

	require.NoError(t, ds.SetOverrideBehavior(id, "layers", dataset.OverrideBehaviorReplace))

	a, err := ds.Asset(id)
	require.NoError(t, err)

	a.FileReferenceOverrides["textures/base.png"] = proto
	a.ImportInfo = &dataset.ImportInfo{
		ImporterID:     uuid.New(),
		SourceFilePath: "src/material.mat",
		ImportableName: "base",
		FileReferences: []string{"textures/base.png"},
	}

	data, err := EncodeAsset(set, a)
	require.NoError(t, err)

	decoded, err := DecodeAsset(set, data)
	require.NoError(t, err)

	assert.Equal(t, a.ID, decoded.ID)
	assert.Equal(t, a.Name, decoded.Name)
	assert.Equal(t, a.Location, decoded.Location)
	assert.Equal(t, a.Prototype, decoded.Prototype)
	assert.Equal(t, a.ImportInfo, decoded.ImportInfo)
	assert.False(t, decoded.SchemaMigrated)

	// Same observable reads through a rebuilt data set.
	restored := dataset.New(set)
	protoAsset, err := ds.Asset(proto)
	require.NoError(t, err)
	require.NoError(t, restored.InsertAsset(protoAsset.Clone()))
	require.NoError(t, restored.InsertAsset(decoded))

	for _, path := range []string{"name", "roughness", "texture", "icc", "tint.value", "layers." + entry.String()} {
		want, wantErr := ds.ResolveProperty(id, path)
		require.NoError(t, wantErr, path)

		got, gotErr := restored.ResolveProperty(id, path)
		require.NoError(t, gotErr, path)
		assert.True(t, want.Equal(got), path)
	}

	entries, err := restored.ResolveDynamicArrayEntries(id, "layers")
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{entry}, entries)

	flags, err := restored.ResolveMapEntries(id, "flags")
	require.NoError(t, err)
	assert.True(t, flags.Contains(mapKey))

	behavior, err := restored.ResolveOverrideBehavior(id, "layers")
	require.NoError(t, err)
	assert.Equal(t, dataset.OverrideBehaviorReplace, behavior)

	// The property hash, which folds in every override map, agrees too.
	wantHash, err := ds.HashProperties(id)
	require.NoError(t, err)

	gotHash, err := restored.HashProperties(id)
	require.NoError(t, err)
	assert.Equal(t, wantHash, gotHash)
}

// Data stored against an older structural version loads by name and is
// flagged for resave.
func TestAssetJSON_SchemaMigrated(t *testing.T) {
	set := storageTestSchema(t)
	record := materialRecord(t, set)
	ds := dataset.New(set)

	id, err := ds.NewAsset("stone", dataset.Location{}, record)
	require.NoError(t, err)
	require.NoError(t, ds.SetProperty(id, "name", dataset.StringValue("granite")))

	a, err := ds.Asset(id)
	require.NoError(t, err)

	data, err := EncodeAsset(set, a)
	require.NoError(t, err)

	// Swap the stored fingerprint for an unknown one.
	tampered := []byte(string(data))
	old := record.Fingerprint().String()
	replaced := false

	for i := 0; i+len(old) <= len(tampered); i++ {
		if string(tampered[i:i+len(old)]) == old {
			copy(tampered[i:], []byte("00000000000000000000000000000000"))

			replaced = true

			break
		}
	}

	require.True(t, replaced)

	decoded, err := DecodeAsset(set, tampered)
	require.NoError(t, err)
	assert.True(t, decoded.SchemaMigrated)
	assert.Equal(t, record.Fingerprint(), decoded.Schema.Fingerprint())
}

func TestAssetJSON_RejectsUnknownSchema(t *testing.T) {
	_, err := DecodeAsset(storageTestSchema(t), []byte(`{
		"asset_id": "2d4154f7-2b3c-4223-8767-7e8d1fa70447",
		"schema_name": "Nope",
		"schema_fingerprint": "00000000000000000000000000000000",
		"name": "x"
	}`))
	require.ErrorIs(t, err, schema.ErrSchemaNotFound)
}

func TestTreeStore_SaveLoad(t *testing.T) {
	set := storageTestSchema(t)
	record := materialRecord(t, set)
	ds := dataset.New(set)
	fsys := newMemFs()

	first, _ := ds.NewAsset("first", dataset.Location{}, record)
	second, _ := ds.NewAsset("second", dataset.Location{}, record)
	require.NoError(t, ds.SetProperty(first, "name", dataset.StringValue("one")))
	require.NoError(t, ds.SetProperty(second, "name", dataset.StringValue("two")))

	for _, id := range []dataset.AssetID{first, second} {
		a, err := ds.Asset(id)
		require.NoError(t, err)
		require.NoError(t, SaveAssetFile(fsys, "assets_id_based", set, a))
	}

	loaded, err := LoadAllAssets(fsys, "assets_id_based", set)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	require.NoError(t, DeleteAssetFile(fsys, "assets_id_based", first))

	loaded, err = LoadAllAssets(fsys, "assets_id_based", set)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, second, loaded[0].ID)

	// Deleting a missing file stays quiet.
	require.NoError(t, DeleteAssetFile(fsys, "assets_id_based", first))
}
