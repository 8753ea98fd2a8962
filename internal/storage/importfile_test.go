package storage

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anvilengine/anvil/internal/dataset"
)

func TestImportFile_RoundTrip(t *testing.T) {
	set := storageTestSchema(t)
	record := materialRecord(t, set)
	fsys := newMemFs()

	obj := dataset.NewSingleObject(set, record)
	require.NoError(t, obj.SetProperty("name", dataset.StringValue("granite")))
	require.NoError(t, obj.SetProperty("roughness", dataset.F64Value(0.25)))
	// A bytes payload large enough to matter lands in its own B3F block.
	payload := make([]byte, 1024)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, obj.SetProperty("icc", dataset.BytesValue(payload)))

	meta := ImportMetadata{
		SourceFileModified: 1234567890,
		SourceFileSize:     4096,
		ContentsHash:       obj.ContentsHash(),
	}

	assetID := uuid.New()
	path := ImportDataPath("import_data", assetID)
	require.NoError(t, WriteImportData(fsys, path, obj, meta))

	// The metadata header reads without touching the object JSON.
	gotMeta, err := ReadImportMetadata(fsys, path)
	require.NoError(t, err)
	assert.Equal(t, meta, gotMeta)

	loaded, loadedMeta, err := ReadImportData(fsys, set, path)
	require.NoError(t, err)
	assert.Equal(t, meta, loadedMeta)

	name, err := loaded.ResolveProperty("name")
	require.NoError(t, err)
	assert.Equal(t, "granite", name.Str)

	rough, err := loaded.ResolveProperty("roughness")
	require.NoError(t, err)
	assert.Equal(t, 0.25, rough.F64)

	icc, err := loaded.ResolveProperty("icc")
	require.NoError(t, err)
	assert.Equal(t, payload, icc.Bytes)

	// The contents hash is reproducible from the loaded object.
	assert.Equal(t, meta.ContentsHash, loaded.ContentsHash())
}

func TestImportFile_RejectsWrongTag(t *testing.T) {
	fsys := newMemFs()

	writer := NewB3FWriter([4]byte{'N', 'O', 'P', 'E'}, 1)
	writer.AddBlock([]byte("x"))
	writer.AddBlock([]byte("y"))

	var buf bytes.Buffer
	require.NoError(t, writer.Write(&buf))
	require.NoError(t, afero.WriteFile(fsys, "import_data/x.if", buf.Bytes(), 0o644))

	_, err := ReadImportMetadata(fsys, "import_data/x.if")
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestImportMetadata_Hash(t *testing.T) {
	a := ImportMetadata{SourceFileModified: 1, SourceFileSize: 2, ContentsHash: 3}
	b := a
	assert.Equal(t, a.Hash(), b.Hash())

	b.SourceFileModified = 99
	assert.NotEqual(t, a.Hash(), b.Hash())
}
