package anvil

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anvilengine/anvil/internal/dataset"
	"github.com/anvilengine/anvil/internal/storage"
)

func openTestProject(t *testing.T, fsys afero.Fs) *Project {
	t.Helper()

	project, err := Open(context.Background(), "proj",
		WithFs(fsys), WithWorkers(2), WithoutLock())
	require.NoError(t, err)
	t.Cleanup(project.Close)

	return project
}

func writeSourceFile(t *testing.T, fsys afero.Fs, path, contents string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fsys, path, []byte(contents), 0o644))
}

func TestProject_ImportAndBuild(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeSourceFile(t, fsys, "src/rock.sd", `{"name": "rock", "value": 4.5}`)

	project := openTestProject(t, fsys)
	ctx := context.Background()

	assetID, err := project.ImportFile(ctx, "src/rock.sd")
	require.NoError(t, err)
	require.NotEqual(t, dataset.AssetID{}, assetID)

	result, err := project.Build(ctx)
	require.NoError(t, err)
	require.True(t, result.BuildRan)
	require.NotNil(t, result.Manifest)
	require.Len(t, result.Manifest.Entries, 1)

	// The primary artifact reuses the asset's ID and its payload is on
	// disk at the manifest's content-addressed path.
	entry := result.Manifest.Entries[0]
	assert.Equal(t, assetID, entry.ArtifactID)

	artifactPath := storage.UUIDAndHashToPath("proj/build_data", entry.ArtifactID, entry.BuildHash, storage.ArtifactFileExtension)

	_, payload, err := storage.ReadArtifact(fsys, artifactPath)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "rock")

	// The published manifest matches the returned one.
	published, err := project.Manifest()
	require.NoError(t, err)
	require.Len(t, published.Entries, 1)
	assert.Equal(t, entry.ArtifactID, published.Entries[0].ArtifactID)
	assert.Equal(t, entry.BuildHash, published.Entries[0].BuildHash)

	// Imported default overrides landed on the asset.
	v, err := project.EditContext().DataSet().ResolveProperty(assetID, "name")
	require.NoError(t, err)
	assert.Equal(t, "rock", v.Str)
}

func TestProject_RebuildOnlyWhenHashMoves(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeSourceFile(t, fsys, "src/rock.sd", `{"name": "rock", "value": 1}`)

	project := openTestProject(t, fsys)
	ctx := context.Background()

	assetID, err := project.ImportFile(ctx, "src/rock.sd")
	require.NoError(t, err)

	first, err := project.Build(ctx)
	require.NoError(t, err)
	require.True(t, first.BuildRan)

	// Nothing changed: the combined build hash holds and no pass runs.
	second, err := project.Build(ctx)
	require.NoError(t, err)
	assert.False(t, second.BuildRan)
	assert.Equal(t, first.CombinedBuildHash, second.CombinedBuildHash)

	// Editing asset data moves the hash and triggers a pass.
	require.NoError(t, project.EditContext().WithUndoContext("edit", func(tc *dataset.EditContext) error {
		return tc.SetProperty(assetID, "value", dataset.F64Value(2))
	}))
	project.EditContext().CommitPendingUndoContext()

	third, err := project.Build(ctx)
	require.NoError(t, err)
	assert.True(t, third.BuildRan)
	assert.NotEqual(t, first.CombinedBuildHash, third.CombinedBuildHash)
}

// Touching a source file's mtime without changing contents re-imports, but
// the unchanged contents hash keeps downstream jobs cached: no new
// artifacts.
func TestProject_TouchedSourceReimportsWithoutRebuildingArtifacts(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeSourceFile(t, fsys, "src/rock.sd", `{"name": "rock", "value": 1}`)

	project := openTestProject(t, fsys)
	ctx := context.Background()

	assetID, err := project.ImportFile(ctx, "src/rock.sd")
	require.NoError(t, err)

	first, err := project.Build(ctx)
	require.NoError(t, err)
	require.True(t, first.BuildRan)

	metaBefore, err := storage.ReadImportMetadata(fsys, storage.ImportDataPath("proj/import_data", assetID))
	require.NoError(t, err)

	// Touch the mtime, contents unchanged.
	future := time.Now().Add(time.Hour)
	require.NoError(t, fsys.Chtimes("src/rock.sd", future, future))

	second, err := project.Build(ctx)
	require.NoError(t, err)

	// The importer ran again: the metadata header moved...
	metaAfter, err := storage.ReadImportMetadata(fsys, storage.ImportDataPath("proj/import_data", assetID))
	require.NoError(t, err)
	assert.True(t, second.ImportedAnything)
	assert.NotEqual(t, metaBefore.SourceFileModified, metaAfter.SourceFileModified)

	// ...but the contents hash is identical, so the downstream job hit its
	// cache and the artifact is byte-identical.
	assert.Equal(t, metaBefore.ContentsHash, metaAfter.ContentsHash)
	require.True(t, second.BuildRan)
	require.Len(t, second.Manifest.Entries, 1)
	assert.Equal(t, first.Manifest.Entries[0].BuildHash, second.Manifest.Entries[0].BuildHash)
}

func TestProject_SaveAndReopen(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeSourceFile(t, fsys, "src/rock.sd", `{"name": "rock", "value": 4.5}`)

	ctx := context.Background()

	project := openTestProject(t, fsys)

	assetID, err := project.ImportFile(ctx, "src/rock.sd")
	require.NoError(t, err)

	_, err = project.Build(ctx)
	require.NoError(t, err)
	require.NoError(t, project.SaveAssets())
	project.Close()

	reopened := openTestProject(t, fsys)

	v, err := reopened.EditContext().DataSet().ResolveProperty(assetID, "name")
	require.NoError(t, err)
	assert.Equal(t, "rock", v.Str)

	// The reopened project agrees the build is up to date.
	result, err := reopened.Build(ctx)
	require.NoError(t, err)
	assert.False(t, result.BuildRan)
	assert.False(t, result.ImportedAnything)
}
