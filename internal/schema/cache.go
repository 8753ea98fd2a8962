package schema

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// The schema cache persists every linked named type so previously saved
// data remains readable even when the schema source files that produced it
// are gone or have changed. Cached types merge into the live set by
// fingerprint: an identical fingerprint is a no-op, a differing fingerprint
// coexists as an older structural version.

type cacheFileJSON struct {
	Types []typeJSON `json:"types"`
}

// SaveCache writes the full schema set to a JSON cache file.
func SaveCache(fsys afero.Fs, path string, set *Set) error {
	file := cacheFileJSON{}

	for _, t := range set.All() {
		file.Types = append(file.Types, namedTypeToJSON(t))
	}

	data, err := json.MarshalIndent(&file, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding schema cache: %w", err)
	}

	if err := afero.WriteFile(fsys, path, data, 0o644); err != nil {
		return fmt.Errorf("writing schema cache %s: %w", path, err)
	}

	return nil
}

// LoadCache reads a schema cache file back into named types, ready for
// Set.Merge. A missing file is not an error; it yields no types.
func LoadCache(fsys afero.Fs, path string) ([]NamedType, error) {
	exists, err := afero.Exists(fsys, path)
	if err != nil {
		return nil, err
	}

	if !exists {
		return nil, nil
	}

	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("reading schema cache %s: %w", path, err)
	}

	var file cacheFileJSON
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: schema cache %s: %v", ErrInvalidSchemaFile, path, err)
	}

	types := make([]NamedType, 0, len(file.Types))

	for i := range file.Types {
		t, convErr := namedTypeFromJSON(&file.Types[i])
		if convErr != nil {
			return nil, fmt.Errorf("schema cache %s: %w", path, convErr)
		}

		types = append(types, t)
	}

	return types, nil
}

func namedTypeToJSON(t NamedType) typeJSON {
	out := typeJSON{
		Name:        t.Name(),
		Aliases:     t.Aliases(),
		Fingerprint: t.Fingerprint().String(),
	}

	if t.TypeUUID() != uuid.Nil {
		out.TypeUUID = t.TypeUUID().String()
	}

	switch v := t.(type) {
	case *Record:
		out.Type = "record"

		for _, f := range v.Fields() {
			field := fieldJSON{
				Name:    f.Name,
				Aliases: f.Aliases,
				Type:    schemaToJSON(f.Schema),
				Markup:  f.Markup,
			}
			if f.FieldUUID != uuid.Nil {
				field.FieldUUID = f.FieldUUID.String()
			}

			out.Fields = append(out.Fields, field)
		}
	case *Enum:
		out.Type = "enum"

		for _, s := range v.Symbols() {
			sym := symbolJSON{Name: s.Name, Aliases: s.Aliases}
			if s.SymbolUUID != uuid.Nil {
				sym.SymbolUUID = s.SymbolUUID.String()
			}

			out.Symbols = append(out.Symbols, sym)
		}
	case *Fixed:
		out.Type = "fixed"
		out.Length = v.Length()
	}

	return out
}

func schemaToJSON(s Schema) schemaJSON {
	out := schemaJSON{Kind: s.Kind, Length: s.Length}

	if s.Inner != nil {
		inner := schemaToJSON(*s.Inner)
		out.Inner = &inner
	}

	if s.Key != nil {
		key := schemaToJSON(*s.Key)
		out.Key = &key
	}

	if !s.Ref.IsZero() {
		out.RefFingerprint = s.Ref.String()
	}

	return out
}

func namedTypeFromJSON(t *typeJSON) (NamedType, error) {
	fp, err := ParseFingerprint(t.Fingerprint)
	if err != nil {
		return nil, err
	}

	typeUUID, err := parseOptionalUUID(t.TypeUUID)
	if err != nil {
		return nil, fmt.Errorf("%w: type %q has bad type_uuid", ErrInvalidSchemaFile, t.Name)
	}

	switch t.Type {
	case "record":
		fields := make([]Field, 0, len(t.Fields))

		for i := range t.Fields {
			f := &t.Fields[i]

			fieldUUID, fieldErr := parseOptionalUUID(f.FieldUUID)
			if fieldErr != nil {
				return nil, fmt.Errorf("%w: field %q of %q has bad field_uuid", ErrInvalidSchemaFile, f.Name, t.Name)
			}

			fieldSchema, schemaErr := schemaFromJSON(&f.Type)
			if schemaErr != nil {
				return nil, schemaErr
			}

			fields = append(fields, Field{
				Name:      f.Name,
				FieldUUID: fieldUUID,
				Aliases:   f.Aliases,
				Schema:    fieldSchema,
				Markup:    f.Markup,
			})
		}

		return &Record{name: t.Name, typeUUID: typeUUID, fingerprint: fp, aliases: t.Aliases, fields: fields}, nil
	case "enum":
		symbols := make([]Symbol, 0, len(t.Symbols))

		for _, s := range t.Symbols {
			symbolUUID, symErr := parseOptionalUUID(s.SymbolUUID)
			if symErr != nil {
				return nil, fmt.Errorf("%w: symbol %q of %q has bad symbol_uuid", ErrInvalidSchemaFile, s.Name, t.Name)
			}

			symbols = append(symbols, Symbol{Name: s.Name, SymbolUUID: symbolUUID, Aliases: s.Aliases})
		}

		if len(symbols) == 0 {
			return nil, fmt.Errorf("%w: cached enum %q has no symbols", ErrInvalidSchemaFile, t.Name)
		}

		return &Enum{name: t.Name, typeUUID: typeUUID, fingerprint: fp, aliases: t.Aliases, symbols: symbols}, nil
	case "fixed":
		return &Fixed{name: t.Name, typeUUID: typeUUID, fingerprint: fp, aliases: t.Aliases, length: t.Length}, nil
	default:
		return nil, fmt.Errorf("%w: unknown cached type kind %q", ErrInvalidSchemaFile, t.Type)
	}
}

func schemaFromJSON(s *schemaJSON) (Schema, error) {
	out := Schema{Kind: s.Kind, Length: s.Length}

	if s.Inner != nil {
		inner, err := schemaFromJSON(s.Inner)
		if err != nil {
			return Schema{}, err
		}

		out.Inner = &inner
	}

	if s.Key != nil {
		key, err := schemaFromJSON(s.Key)
		if err != nil {
			return Schema{}, err
		}

		out.Key = &key
	}

	if s.RefFingerprint != "" {
		ref, err := ParseFingerprint(s.RefFingerprint)
		if err != nil {
			return Schema{}, err
		}

		out.Ref = ref
	}

	return out, nil
}

// NewSetFromTypes assembles a Set directly from linked types (used by the
// cache loader in contexts with no live linker output).
func NewSetFromTypes(types []NamedType) *Set {
	set := newSet()
	set.Merge(types)

	return set
}
