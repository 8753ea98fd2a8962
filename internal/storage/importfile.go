package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/anvilengine/anvil/internal/dataset"
	"github.com/anvilengine/anvil/internal/hashing"
	"github.com/anvilengine/anvil/internal/schema"
)

// Import data files are B3F containers tagged HYIF, version 1:
//
//	block 0      length-prefixed binary metadata header
//	block 1      UTF-8 JSON of the single object
//	blocks 2..N  byte buffers referenced by the JSON via {"$buffer": i}
//
// The metadata block alone answers the re-import question (mtime/size) and
// the rebuild question (contents hash) without parsing the JSON.

// ImportFileExtension is the extension of import data files.
const ImportFileExtension = "if"

var importFileTag = [4]byte{'H', 'Y', 'I', 'F'}

const importFileVersion = 1

// importMetadataSize is the fixed encoded size of ImportMetadata.
const importMetadataSize = 24

// ImportMetadata is the header of an import data file.
type ImportMetadata struct {
	// SourceFileModified is the source file's mtime in nanoseconds since
	// the Unix epoch at import time.
	SourceFileModified uint64
	// SourceFileSize is the source file's size in bytes at import time.
	SourceFileSize uint64
	// ContentsHash is the deterministic hash of the import data's
	// schema-typed contents.
	ContentsHash hashing.Hash64
}

// Hash folds the metadata into a single value for the combined build hash.
func (m ImportMetadata) Hash() hashing.Hash64 {
	digest := hashing.NewDigest64()
	digest.WriteUint64(m.SourceFileModified)
	digest.WriteUint64(m.SourceFileSize)
	digest.WriteUint64(m.ContentsHash)

	return digest.Sum64()
}

func (m ImportMetadata) encode() []byte {
	out := make([]byte, 8+importMetadataSize)
	binary.LittleEndian.PutUint64(out[0:8], importMetadataSize)
	binary.LittleEndian.PutUint64(out[8:16], m.SourceFileModified)
	binary.LittleEndian.PutUint64(out[16:24], m.SourceFileSize)
	binary.LittleEndian.PutUint64(out[24:32], m.ContentsHash)

	return out
}

func decodeImportMetadata(data []byte) (ImportMetadata, error) {
	if len(data) < 8 {
		return ImportMetadata{}, fmt.Errorf("%w: metadata block", ErrTruncated)
	}

	length := binary.LittleEndian.Uint64(data[0:8])
	if length != importMetadataSize || len(data) < 8+importMetadataSize {
		return ImportMetadata{}, fmt.Errorf("%w: metadata header length %d", ErrTruncated, length)
	}

	return ImportMetadata{
		SourceFileModified: binary.LittleEndian.Uint64(data[8:16]),
		SourceFileSize:     binary.LittleEndian.Uint64(data[16:24]),
		ContentsHash:       binary.LittleEndian.Uint64(data[24:32]),
	}, nil
}

// singleObjectJSON is the wire shape of block 1.
type singleObjectJSON struct {
	SchemaName        string                     `json:"schema_name"`
	SchemaFingerprint string                     `json:"schema_fingerprint"`
	Properties        map[string]json.RawMessage `json:"properties,omitempty"`
	NullOverrides     map[string]string          `json:"null_overrides,omitempty"`
	DynArrayEntries   map[string][]string        `json:"dynamic_array_entries,omitempty"`
	MapEntries        map[string][]string        `json:"map_entries,omitempty"`
}

// WriteImportData writes a single object plus metadata to path in the HYIF
// container format.
func WriteImportData(fsys afero.Fs, path string, obj *dataset.SingleObject, meta ImportMetadata) error {
	wire := singleObjectJSON{
		SchemaName:        obj.Schema.Name(),
		SchemaFingerprint: obj.Schema.Fingerprint().String(),
	}

	var buffers [][]byte

	if len(obj.Properties) > 0 {
		wire.Properties = map[string]json.RawMessage{}

		// Sorted paths keep buffer block order deterministic.
		for _, p := range sortedMapKeys(obj.Properties) {
			encoded, err := encodeValue(obj.Properties[p], &buffers)
			if err != nil {
				return fmt.Errorf("import data property %q: %w", p, err)
			}

			wire.Properties[p] = encoded
		}
	}

	if len(obj.NullOverrides) > 0 {
		wire.NullOverrides = map[string]string{}
		for p, state := range obj.NullOverrides {
			wire.NullOverrides[p] = state.String()
		}
	}

	if len(obj.DynamicArrayEntries) > 0 {
		wire.DynArrayEntries = map[string][]string{}
		for p, entries := range obj.DynamicArrayEntries {
			wire.DynArrayEntries[p] = uuidStrings(entries)
		}
	}

	if len(obj.MapEntries) > 0 {
		wire.MapEntries = map[string][]string{}
		for p, entries := range obj.MapEntries {
			wire.MapEntries[p] = uuidStrings(sortedUUIDs(entries.ToSlice()))
		}
	}

	objJSON, err := json.MarshalIndent(&wire, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding import data: %w", err)
	}

	writer := NewB3FWriter(importFileTag, importFileVersion)
	writer.AddBlock(meta.encode())
	writer.AddBlock(objJSON)

	for _, buffer := range buffers {
		writer.AddBlock(buffer)
	}

	var out bytes.Buffer
	if err := writer.Write(&out); err != nil {
		return fmt.Errorf("encoding import data container: %w", err)
	}

	if err := ensureParentDir(fsys, path); err != nil {
		return err
	}

	if err := afero.WriteFile(fsys, path, out.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing import data %s: %w", path, err)
	}

	return nil
}

// ReadImportMetadata reads only the metadata header of an import data file.
func ReadImportMetadata(fsys afero.Fs, path string) (ImportMetadata, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return ImportMetadata{}, err
	}

	reader, err := newImportReader(data)
	if err != nil {
		return ImportMetadata{}, fmt.Errorf("import data %s: %w", path, err)
	}

	metaBlock, err := reader.ReadBlock(0)
	if err != nil {
		return ImportMetadata{}, fmt.Errorf("import data %s: %w", path, err)
	}

	return decodeImportMetadata(metaBlock)
}

// ReadImportData reads the full single object and its metadata.
func ReadImportData(fsys afero.Fs, set *schema.Set, path string) (*dataset.SingleObject, ImportMetadata, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, ImportMetadata{}, err
	}

	reader, err := newImportReader(data)
	if err != nil {
		return nil, ImportMetadata{}, fmt.Errorf("import data %s: %w", path, err)
	}

	metaBlock, err := reader.ReadBlock(0)
	if err != nil {
		return nil, ImportMetadata{}, err
	}

	meta, err := decodeImportMetadata(metaBlock)
	if err != nil {
		return nil, ImportMetadata{}, err
	}

	objBlock, err := reader.ReadBlock(1)
	if err != nil {
		return nil, ImportMetadata{}, err
	}

	buffers := make([][]byte, 0, reader.BlockCount()-2)
	for i := 2; i < reader.BlockCount(); i++ {
		block, blockErr := reader.ReadBlock(i)
		if blockErr != nil {
			return nil, ImportMetadata{}, blockErr
		}

		buffers = append(buffers, block)
	}

	obj, err := decodeSingleObject(set, objBlock, buffers)
	if err != nil {
		return nil, ImportMetadata{}, fmt.Errorf("import data %s: %w", path, err)
	}

	return obj, meta, nil
}

func newImportReader(data []byte) (*B3FReader, error) {
	reader, err := NewB3FReader(data)
	if err != nil {
		return nil, err
	}

	if reader.Tag() != importFileTag {
		return nil, fmt.Errorf("%w: tag %q is not HYIF", ErrBadMagic, reader.Tag())
	}

	if reader.Version() != importFileVersion {
		return nil, fmt.Errorf("%w: import data version %d", ErrBadVersion, reader.Version())
	}

	if reader.BlockCount() < 2 {
		return nil, fmt.Errorf("%w: import data needs metadata and object blocks", ErrTruncated)
	}

	return reader, nil
}

func decodeSingleObject(set *schema.Set, objJSON []byte, buffers [][]byte) (*dataset.SingleObject, error) {
	var wire singleObjectJSON
	if err := json.Unmarshal(objJSON, &wire); err != nil {
		return nil, fmt.Errorf("%w: single object: %v", ErrMalformedJSON, err)
	}

	fp, err := schema.ParseFingerprint(wire.SchemaFingerprint)
	if err != nil {
		return nil, err
	}

	record, _, err := resolveRecord(set, wire.SchemaName, fp)
	if err != nil {
		return nil, err
	}

	obj := dataset.NewSingleObject(set, record)

	for path, raw := range wire.Properties {
		terminal, pathErr := set.PropertySchema(record, path)
		if pathErr != nil {
			return nil, fmt.Errorf("property %q: %w", path, pathErr)
		}

		value, valErr := decodeValue(raw, terminal, set, buffers)
		if valErr != nil {
			return nil, fmt.Errorf("property %q: %w", path, valErr)
		}

		obj.Properties[path] = value
	}

	for path, stateName := range wire.NullOverrides {
		state, ok := dataset.ParseNullOverride(stateName)
		if !ok {
			return nil, fmt.Errorf("%w: null override %q", ErrMalformedJSON, stateName)
		}

		obj.NullOverrides[path] = state
	}

	for path, entries := range wire.DynArrayEntries {
		parsed, parseErr := parseUUIDs(entries)
		if parseErr != nil {
			return nil, parseErr
		}

		obj.DynamicArrayEntries[path] = parsed
	}

	for path, entries := range wire.MapEntries {
		parsed, parseErr := parseUUIDs(entries)
		if parseErr != nil {
			return nil, parseErr
		}

		entrySet := dataset.NewEntrySet()
		for _, e := range parsed {
			entrySet.Add(e)
		}

		obj.MapEntries[path] = entrySet
	}

	return obj, nil
}

// ImportDataPath returns the fanout path of an asset's import data file.
func ImportDataPath(root string, assetID uuid.UUID) string {
	return UUIDToPath(root, assetID, ImportFileExtension)
}

func ensureParentDir(fsys afero.Fs, path string) error {
	dir := parentDir(path)
	if dir == "" {
		return nil
	}

	if err := fsys.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	return nil
}

func parentDir(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[:i]
		}
	}

	return ""
}
