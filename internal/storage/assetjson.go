package storage

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/anvilengine/anvil/internal/dataset"
	"github.com/anvilengine/anvil/internal/schema"
)

// AssetFileExtension is the extension of asset JSON files.
const AssetFileExtension = "af"

// assetFileJSON is the wire shape of one .af file.
type assetFileJSON struct {
	AssetID           string                     `json:"asset_id"`
	SchemaName        string                     `json:"schema_name"`
	SchemaFingerprint string                     `json:"schema_fingerprint"`
	Prototype         string                     `json:"prototype,omitempty"`
	Name              string                     `json:"name"`
	SourceID          string                     `json:"source_id,omitempty"`
	ParentPathNode    string                     `json:"parent_path_node,omitempty"`
	Properties        map[string]json.RawMessage `json:"properties,omitempty"`
	NullOverrides     map[string]string          `json:"null_overrides,omitempty"`
	ReplaceModePaths  []string                   `json:"properties_in_replace_mode,omitempty"`
	DynArrayEntries   map[string][]string        `json:"dynamic_array_entries,omitempty"`
	MapEntries        map[string][]string        `json:"map_entries,omitempty"`
	FileReferences    map[string]string          `json:"file_references,omitempty"`
	ImportInfo        *importInfoJSON            `json:"import_info,omitempty"`
}

type importInfoJSON struct {
	ImporterID     string   `json:"importer_id"`
	SourceFilePath string   `json:"source_file"`
	ImportableName string   `json:"importable_name,omitempty"`
	FileReferences []string `json:"file_references,omitempty"`
}

// EncodeAsset serializes one asset to its .af JSON form.
func EncodeAsset(set *schema.Set, a *dataset.Asset) ([]byte, error) {
	file := assetFileJSON{
		AssetID:           a.ID.String(),
		SchemaName:        a.Schema.Name(),
		SchemaFingerprint: a.Schema.Fingerprint().String(),
		Name:              a.Name,
	}

	if a.Prototype != uuid.Nil {
		file.Prototype = a.Prototype.String()
	}

	if a.Location.SourceID != uuid.Nil {
		file.SourceID = a.Location.SourceID.String()
	}

	if a.Location.PathNodeID != uuid.Nil {
		file.ParentPathNode = a.Location.PathNodeID.String()
	}

	if len(a.Properties) > 0 {
		file.Properties = map[string]json.RawMessage{}

		for path, value := range a.Properties {
			encoded, err := encodeValue(value, nil)
			if err != nil {
				return nil, fmt.Errorf("property %q: %w", path, err)
			}

			file.Properties[path] = encoded
		}
	}

	if len(a.NullOverrides) > 0 {
		file.NullOverrides = map[string]string{}
		for path, state := range a.NullOverrides {
			file.NullOverrides[path] = state.String()
		}
	}

	if a.ReplaceModePaths.Cardinality() > 0 {
		file.ReplaceModePaths = a.ReplaceModePaths.ToSlice()
	}

	if len(a.DynamicArrayEntries) > 0 {
		file.DynArrayEntries = map[string][]string{}
		for path, entries := range a.DynamicArrayEntries {
			file.DynArrayEntries[path] = uuidStrings(entries)
		}
	}

	if len(a.MapEntries) > 0 {
		file.MapEntries = map[string][]string{}
		for path, entries := range a.MapEntries {
			file.MapEntries[path] = uuidStrings(sortedUUIDs(entries.ToSlice()))
		}
	}

	if len(a.FileReferenceOverrides) > 0 {
		file.FileReferences = map[string]string{}
		for ref, target := range a.FileReferenceOverrides {
			file.FileReferences[ref] = target.String()
		}
	}

	if a.ImportInfo != nil {
		file.ImportInfo = &importInfoJSON{
			ImporterID:     a.ImportInfo.ImporterID.String(),
			SourceFilePath: a.ImportInfo.SourceFilePath,
			ImportableName: a.ImportInfo.ImportableName,
			FileReferences: a.ImportInfo.FileReferences,
		}
	}

	return json.MarshalIndent(&file, "", "  ")
}

// DecodeAsset parses a .af file. The stored fingerprint is verified against
// the live schema set; when only the name matches, the asset loads against
// the live schema and is flagged SchemaMigrated so callers resave it.
func DecodeAsset(set *schema.Set, data []byte) (*dataset.Asset, error) {
	var file assetFileJSON
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: asset file: %v", ErrMalformedJSON, err)
	}

	id, err := uuid.Parse(file.AssetID)
	if err != nil {
		return nil, fmt.Errorf("%w: asset_id %q", ErrUUIDParse, file.AssetID)
	}

	fp, err := schema.ParseFingerprint(file.SchemaFingerprint)
	if err != nil {
		return nil, fmt.Errorf("asset %s: %w", id, err)
	}

	record, migrated, err := resolveRecord(set, file.SchemaName, fp)
	if err != nil {
		return nil, fmt.Errorf("asset %s: %w", id, err)
	}

	location := dataset.Location{}

	if file.SourceID != "" {
		if location.SourceID, err = uuid.Parse(file.SourceID); err != nil {
			return nil, fmt.Errorf("%w: source_id %q", ErrUUIDParse, file.SourceID)
		}
	}

	if file.ParentPathNode != "" {
		if location.PathNodeID, err = uuid.Parse(file.ParentPathNode); err != nil {
			return nil, fmt.Errorf("%w: parent_path_node %q", ErrUUIDParse, file.ParentPathNode)
		}
	}

	a := dataset.NewAssetForLoad(id, file.Name, location, record)
	a.SchemaMigrated = migrated

	if file.Prototype != "" {
		if a.Prototype, err = uuid.Parse(file.Prototype); err != nil {
			return nil, fmt.Errorf("%w: prototype %q", ErrUUIDParse, file.Prototype)
		}
	}

	for path, raw := range file.Properties {
		terminal, pathErr := set.PropertySchema(record, path)
		if pathErr != nil {
			return nil, fmt.Errorf("asset %s property %q: %w", id, path, pathErr)
		}

		value, valErr := decodeValue(raw, terminal, set, nil)
		if valErr != nil {
			return nil, fmt.Errorf("asset %s property %q: %w", id, path, valErr)
		}

		a.Properties[path] = value
	}

	for path, stateName := range file.NullOverrides {
		state, ok := dataset.ParseNullOverride(stateName)
		if !ok {
			return nil, fmt.Errorf("%w: null override %q", ErrMalformedJSON, stateName)
		}

		a.NullOverrides[path] = state
	}

	for _, path := range file.ReplaceModePaths {
		a.ReplaceModePaths.Add(path)
	}

	for path, entries := range file.DynArrayEntries {
		parsed, parseErr := parseUUIDs(entries)
		if parseErr != nil {
			return nil, parseErr
		}

		a.DynamicArrayEntries[path] = parsed
	}

	for path, entries := range file.MapEntries {
		parsed, parseErr := parseUUIDs(entries)
		if parseErr != nil {
			return nil, parseErr
		}

		entrySet := dataset.NewEntrySet()
		for _, e := range parsed {
			entrySet.Add(e)
		}

		a.MapEntries[path] = entrySet
	}

	for ref, targetStr := range file.FileReferences {
		target, parseErr := uuid.Parse(targetStr)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: file reference target %q", ErrUUIDParse, targetStr)
		}

		a.FileReferenceOverrides[ref] = target
	}

	if file.ImportInfo != nil {
		importerID, parseErr := uuid.Parse(file.ImportInfo.ImporterID)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: importer_id %q", ErrUUIDParse, file.ImportInfo.ImporterID)
		}

		a.ImportInfo = &dataset.ImportInfo{
			ImporterID:     importerID,
			SourceFilePath: file.ImportInfo.SourceFilePath,
			ImportableName: file.ImportInfo.ImportableName,
			FileReferences: file.ImportInfo.FileReferences,
		}
	}

	return a, nil
}

// resolveRecord locates the record type for stored data: exact fingerprint
// match first, then name with the schema-migrated flag.
func resolveRecord(set *schema.Set, name string, fp schema.Fingerprint) (*schema.Record, bool, error) {
	if t, ok := set.NamedType(fp); ok {
		if r, isRecord := t.(*schema.Record); isRecord {
			return r, false, nil
		}

		return nil, false, fmt.Errorf("%w: %q is not a record", schema.ErrSchemaNotFound, name)
	}

	t, ok := set.FindNamedType(name)
	if !ok {
		return nil, false, fmt.Errorf("%w: %q (fingerprint %s)", schema.ErrSchemaNotFound, name, fp)
	}

	r, isRecord := t.(*schema.Record)
	if !isRecord {
		return nil, false, fmt.Errorf("%w: %q is not a record", schema.ErrSchemaNotFound, name)
	}

	return r, true, nil
}

// ---------------------------------------------------------------------------
// Value codec
// ---------------------------------------------------------------------------

// bufferRef externalizes large byte payloads into numbered binary blocks
// (import-data files); inline storage uses base64.
type bufferRef struct {
	Buffer int `json:"$buffer"`
}

// encodeValue renders a value as JSON. When buffers is non-nil, bytes
// payloads are appended to it and encoded as {"$buffer": index} references;
// otherwise bytes are inlined as base64.
func encodeValue(v dataset.Value, buffers *[][]byte) (json.RawMessage, error) {
	switch v.Kind {
	case schema.KindBoolean:
		return json.Marshal(v.Bool)
	case schema.KindI32:
		return json.Marshal(v.I32)
	case schema.KindI64:
		return json.Marshal(v.I64)
	case schema.KindU32:
		return json.Marshal(v.U32)
	case schema.KindU64:
		return json.Marshal(v.U64)
	case schema.KindF32:
		return json.Marshal(v.F32)
	case schema.KindF64:
		return json.Marshal(v.F64)
	case schema.KindBytes:
		if buffers != nil {
			*buffers = append(*buffers, v.Bytes)
			return json.Marshal(bufferRef{Buffer: len(*buffers) - 1})
		}

		return json.Marshal(base64.StdEncoding.EncodeToString(v.Bytes))
	case schema.KindFixed:
		return json.Marshal(base64.StdEncoding.EncodeToString(v.Bytes))
	case schema.KindString:
		return json.Marshal(v.Str)
	case schema.KindAssetRef:
		return json.Marshal(v.Ref.String())
	case schema.KindEnum:
		return json.Marshal(v.Symbol)
	default:
		return nil, fmt.Errorf("%w: cannot encode %s value", ErrMalformedJSON, v.Kind)
	}
}

// decodeValue parses a JSON value against its schema-resolved terminal
// type. buffers supplies externalized byte blocks when decoding import
// data.
func decodeValue(raw json.RawMessage, terminal schema.Schema, set *schema.Set, buffers [][]byte) (dataset.Value, error) {
	switch terminal.Kind {
	case schema.KindBoolean:
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return dataset.Value{}, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
		}

		return dataset.BoolValue(v), nil
	case schema.KindI32:
		n, err := parseInt(raw, 32)
		if err != nil {
			return dataset.Value{}, err
		}

		return dataset.I32Value(int32(n)), nil
	case schema.KindI64:
		n, err := parseInt(raw, 64)
		if err != nil {
			return dataset.Value{}, err
		}

		return dataset.I64Value(n), nil
	case schema.KindU32:
		n, err := parseUint(raw, 32)
		if err != nil {
			return dataset.Value{}, err
		}

		return dataset.U32Value(uint32(n)), nil
	case schema.KindU64:
		n, err := parseUint(raw, 64)
		if err != nil {
			return dataset.Value{}, err
		}

		return dataset.U64Value(n), nil
	case schema.KindF32:
		var v float32
		if err := json.Unmarshal(raw, &v); err != nil {
			return dataset.Value{}, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
		}

		return dataset.F32Value(v), nil
	case schema.KindF64:
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return dataset.Value{}, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
		}

		return dataset.F64Value(v), nil
	case schema.KindBytes:
		if len(raw) > 0 && raw[0] == '{' {
			var ref bufferRef
			if err := json.Unmarshal(raw, &ref); err != nil {
				return dataset.Value{}, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
			}

			if ref.Buffer < 0 || ref.Buffer >= len(buffers) {
				return dataset.Value{}, fmt.Errorf("%w: buffer index %d out of range", ErrMalformedJSON, ref.Buffer)
			}

			return dataset.BytesValue(buffers[ref.Buffer]), nil
		}

		data, err := parseBase64(raw)
		if err != nil {
			return dataset.Value{}, err
		}

		return dataset.BytesValue(data), nil
	case schema.KindFixed:
		data, err := parseBase64(raw)
		if err != nil {
			return dataset.Value{}, err
		}

		return dataset.FixedValue(data), nil
	case schema.KindString:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return dataset.Value{}, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
		}

		return dataset.StringValue(v), nil
	case schema.KindAssetRef:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return dataset.Value{}, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
		}

		target, err := uuid.Parse(v)
		if err != nil {
			return dataset.Value{}, fmt.Errorf("%w: asset ref %q", ErrUUIDParse, v)
		}

		return dataset.AssetRefValue(target), nil
	case schema.KindEnum:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return dataset.Value{}, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
		}

		return dataset.EnumValue(v), nil
	default:
		return dataset.Value{}, fmt.Errorf("%w: cannot decode %s value", ErrMalformedJSON, terminal.Kind)
	}
}

func parseInt(raw json.RawMessage, bits int) (int64, error) {
	n, err := strconv.ParseInt(string(raw), 10, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: integer %q", ErrMalformedJSON, string(raw))
	}

	return n, nil
}

func parseUint(raw json.RawMessage, bits int) (uint64, error) {
	n, err := strconv.ParseUint(string(raw), 10, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: unsigned integer %q", ErrMalformedJSON, string(raw))
	}

	return n, nil
}

func parseBase64(raw json.RawMessage) ([]byte, error) {
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrMalformedJSON, err)
	}

	return data, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}

	return out
}

func parseUUIDs(strs []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, len(strs))

	for i, s := range strs {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %q", ErrUUIDParse, s)
		}

		out[i] = id
	}

	return out, nil
}

func sortedUUIDs(ids []uuid.UUID) []uuid.UUID {
	out := append([]uuid.UUID(nil), ids...)
	sortUUIDSlice(out)

	return out
}
