package engine

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anvilengine/anvil/internal/build"
	"github.com/anvilengine/anvil/internal/dataset"
	"github.com/anvilengine/anvil/internal/hashing"
	"github.com/anvilengine/anvil/internal/importer"
	"github.com/anvilengine/anvil/internal/schema"
)

type nopPlugin struct {
	record schema.RecordDef
}

func (p nopPlugin) Setup(reg *PluginRegistration) error {
	reg.Linker.RegisterRecord(p.record)
	return nil
}

func TestPluginRegistration_Finish(t *testing.T) {
	reg := NewPluginRegistration()

	def := schema.RecordDef{Name: "Thing"}
	def.AddField("flag", [16]byte{}, schema.DefBoolean())
	require.NoError(t, reg.RegisterPlugin(nopPlugin{record: def}))

	set, err := reg.Finish()
	require.NoError(t, err)

	_, ok := set.FindNamedType("Thing")
	assert.True(t, ok)

	// The built-in path node always links.
	assert.NotNil(t, set.PathNodeRecord())
}

func TestCombinedBuildHash_CommutativeAndSensitive(t *testing.T) {
	a := dataset.AssetID{1}
	b := dataset.AssetID{2}

	h1 := build.CombinedBuildHash(
		map[dataset.AssetID]hashing.Hash64{a: 10, b: 20},
		map[dataset.AssetID]hashing.Hash64{a: 30},
	)

	// Map iteration order cannot matter: rebuild the same maps.
	h2 := build.CombinedBuildHash(
		map[dataset.AssetID]hashing.Hash64{b: 20, a: 10},
		map[dataset.AssetID]hashing.Hash64{a: 30},
	)
	assert.Equal(t, h1, h2)

	h3 := build.CombinedBuildHash(
		map[dataset.AssetID]hashing.Hash64{a: 11, b: 20},
		map[dataset.AssetID]hashing.Hash64{a: 30},
	)
	assert.NotEqual(t, h1, h3)
}

func TestEngine_NoBuildersIsQuiet(t *testing.T) {
	reg := NewPluginRegistration()

	set, err := reg.Finish()
	require.NoError(t, err)

	eng, err := New(Config{
		Fs:             afero.NewMemMapFs(),
		ImportDataRoot: "import_data",
		JobDataRoot:    "job_data",
		BuildDataRoot:  "build_data",
		WorkerCount:    1,
	}, set, importer.NewRegistry(), build.NewBuilderRegistry(), build.NewProcessorRegistry())
	require.NoError(t, err)
	defer eng.Close()

	ec := dataset.NewEditContext(dataset.New(set))

	// First tick always builds (no previous hash) and publishes an empty
	// manifest; a second tick is a no-op.
	first, err := eng.Update(context.Background(), ec)
	require.NoError(t, err)
	assert.True(t, first.BuildRan)
	assert.Empty(t, first.Manifest.Entries)

	second, err := eng.Update(context.Background(), ec)
	require.NoError(t, err)
	assert.False(t, second.BuildRan)
}
