package storage

import (
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPruneArtifacts_RemovesUnreferenced(t *testing.T) {
	fsys := newMemFs()
	meta := ArtifactMetadata{AssetType: uuid.New()}

	keepID := uuid.New()
	keepHash, keepPath, err := WriteArtifact(fsys, "build_data", keepID, meta, []byte("keep"))
	require.NoError(t, err)

	staleID := uuid.New()
	_, stalePath, err := WriteArtifact(fsys, "build_data", staleID, meta, []byte("stale"))
	require.NoError(t, err)

	manifest := &Manifest{Entries: []ManifestEntry{{
		ArtifactID:   keepID,
		BuildHash:    keepHash,
		ArtifactType: meta.AssetType,
	}}}

	removed, err := PruneArtifacts(fsys, "build_data", manifest)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	keepExists, _ := afero.Exists(fsys, keepPath)
	assert.True(t, keepExists)

	staleExists, _ := afero.Exists(fsys, stalePath)
	assert.False(t, staleExists)

	// A second prune finds nothing.
	removed, err = PruneArtifacts(fsys, "build_data", manifest)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
