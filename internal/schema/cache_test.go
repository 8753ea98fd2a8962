package schema

import (
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linkedTestSet(t *testing.T) *Set {
	t.Helper()

	mode := EnumDef{Name: "Mode", Symbols: []SymbolDef{{Name: "Off"}, {Name: "On"}}}

	sprite := RecordDef{Name: "Sprite", TypeUUID: uuid.MustParse("4c0b3a84-14c7-42f3-90fb-47a1a3b1f1aa")}
	sprite.AddField("width", uuid.Nil, DefU32())
	sprite.AddField("mode", uuid.Nil, DefNamed("Mode"))
	sprite.AddField("pixels", uuid.Nil, DefBytes())
	sprite.AddField("lut", uuid.Nil, DefNamed("LUT"))
	sprite.AddField("frames", uuid.Nil, DefDynamicArray(DefNamed("Mode")))
	sprite.AddField("extra", uuid.Nil, DefNullable(DefMap(DefString(), DefF64())))

	linker := NewLinker()
	linker.RegisterEnum(mode)
	linker.RegisterRecord(sprite)
	linker.RegisterFixed(FixedDef{Name: "LUT", Length: 256})

	set, err := linker.Link()
	require.NoError(t, err)

	return set
}

// Storing and loading the cache must preserve the exact
// fingerprint-to-type mapping.
func TestSchemaCache_RoundTrip(t *testing.T) {
	fsys := afero.NewMemMapFs()
	set := linkedTestSet(t)

	require.NoError(t, SaveCache(fsys, "schema_cache.json", set))

	types, err := LoadCache(fsys, "schema_cache.json")
	require.NoError(t, err)

	loaded := NewSetFromTypes(types)

	for _, original := range set.All() {
		restored, ok := loaded.NamedType(original.Fingerprint())
		require.True(t, ok, "missing %s", original.Name())
		assert.Equal(t, original.Name(), restored.Name())
		assert.Equal(t, original.TypeUUID(), restored.TypeUUID())

		switch v := original.(type) {
		case *Record:
			restoredRecord, isRecord := restored.(*Record)
			require.True(t, isRecord)
			require.Len(t, restoredRecord.Fields(), len(v.Fields()))

			for i, field := range v.Fields() {
				assert.Equal(t, field.Name, restoredRecord.Fields()[i].Name)
				assert.Equal(t, field.Schema, restoredRecord.Fields()[i].Schema)
			}
		case *Enum:
			restoredEnum, isEnum := restored.(*Enum)
			require.True(t, isEnum)
			assert.Equal(t, v.Symbols(), restoredEnum.Symbols())
		case *Fixed:
			restoredFixed, isFixed := restored.(*Fixed)
			require.True(t, isFixed)
			assert.Equal(t, v.Length(), restoredFixed.Length())
		}
	}
}

func TestSchemaCache_MissingFileIsEmpty(t *testing.T) {
	types, err := LoadCache(afero.NewMemMapFs(), "nope.json")
	require.NoError(t, err)
	assert.Empty(t, types)
}

// A re-linked type with the same fingerprint merges as a no-op; an older
// structural version coexists under its own fingerprint without stealing
// the name binding.
func TestSchemaSet_MergeCachedVersions(t *testing.T) {
	set := linkedTestSet(t)
	live, _ := set.FindNamedType("Sprite")

	stale := &Record{
		name:        "Sprite",
		typeUUID:    live.TypeUUID(),
		fingerprint: Fingerprint{0xde, 0xad},
		fields:      []Field{{Name: "legacy", Schema: Boolean()}},
	}

	set.Merge([]NamedType{stale, live})

	byName, ok := set.FindNamedType("Sprite")
	require.True(t, ok)
	assert.Equal(t, live.Fingerprint(), byName.Fingerprint())

	old, ok := set.NamedType(Fingerprint{0xde, 0xad})
	require.True(t, ok)
	assert.Equal(t, "Sprite", old.Name())
}
