package schema

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	sigsyaml "sigs.k8s.io/yaml"
)

// Schema source files declare types in JSON (or YAML, converted to JSON
// before parsing). A file is either a bare array of declarations or an
// object {"format_version": "1.x.y", "types": [...]}.
var sourceFormatConstraint = mustConstraint(">= 1.0.0, < 2.0.0")

func mustConstraint(expr string) *semver.Constraints {
	c, err := semver.NewConstraint(expr)
	if err != nil {
		panic(err)
	}

	return c
}

// typeJSON is the wire form of one named-type declaration, shared by schema
// source files and the schema cache.
type typeJSON struct {
	Type     string       `json:"type"`
	Name     string       `json:"name"`
	TypeUUID string       `json:"type_uuid,omitempty"`
	Aliases  []string     `json:"aliases,omitempty"`
	Fields   []fieldJSON  `json:"fields,omitempty"`
	Symbols  []symbolJSON `json:"symbols,omitempty"`
	Length   int          `json:"length,omitempty"`

	// Fingerprint is set in the schema cache only.
	Fingerprint string `json:"fingerprint,omitempty"`
}

type fieldJSON struct {
	Name      string            `json:"name"`
	FieldUUID string            `json:"field_uuid,omitempty"`
	Aliases   []string          `json:"aliases,omitempty"`
	Type      schemaJSON        `json:"type"`
	Markup    map[string]string `json:"markup,omitempty"`
}

type symbolJSON struct {
	Name       string   `json:"name"`
	SymbolUUID string   `json:"symbol_uuid,omitempty"`
	Aliases    []string `json:"aliases,omitempty"`
}

// schemaJSON encodes a field schema. Primitives serialize as a bare string
// ("i32", "string", ...); containers and named references serialize as an
// object keyed by "type".
type schemaJSON struct {
	Kind     Kind
	Inner    *schemaJSON
	Key      *schemaJSON
	Length   int
	TypeName string
	// RefFingerprint is populated in the schema cache only.
	RefFingerprint string
}

type schemaObjectJSON struct {
	Type        string      `json:"type"`
	Inner       *schemaJSON `json:"inner,omitempty"`
	Key         *schemaJSON `json:"key,omitempty"`
	Value       *schemaJSON `json:"value,omitempty"`
	Length      int         `json:"length,omitempty"`
	Name        string      `json:"name,omitempty"`
	Fingerprint string      `json:"fingerprint,omitempty"`
}

// UnmarshalJSON accepts either a bare kind string or a schema object.
func (s *schemaJSON) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}

		kind, ok := kindFromName(name)
		if !ok || kind == KindNullable || kind.IsContainer() || kind == KindStaticArray {
			return fmt.Errorf("%w: %q is not a primitive schema", ErrInvalidSchemaFile, name)
		}

		s.Kind = kind

		return nil
	}

	var obj schemaObjectJSON
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	// "ref" names a record, enum, or fixed; the linker settles which.
	if obj.Type == "ref" {
		obj.Type = KindRecord.String()
	}

	kind, ok := kindFromName(obj.Type)
	if !ok {
		return fmt.Errorf("%w: unknown schema kind %q", ErrInvalidSchemaFile, obj.Type)
	}

	s.Kind = kind
	s.Inner = obj.Inner
	s.Key = obj.Key
	s.Length = obj.Length
	s.TypeName = obj.Name
	s.RefFingerprint = obj.Fingerprint

	if kind == KindMap {
		s.Inner = obj.Value
	}

	switch kind {
	case KindNullable, KindStaticArray, KindDynamicArray:
		if s.Inner == nil {
			return fmt.Errorf("%w: %s schema missing inner", ErrInvalidSchemaFile, kind)
		}
	case KindMap:
		if s.Key == nil || s.Inner == nil {
			return fmt.Errorf("%w: map schema missing key or value", ErrInvalidSchemaFile)
		}
	case KindAssetRef, KindRecord, KindEnum, KindFixed:
		// Source files reference by name; the schema cache may reference
		// by fingerprint alone.
		if s.TypeName == "" && s.RefFingerprint == "" {
			return fmt.Errorf("%w: %s schema missing name", ErrInvalidSchemaFile, kind)
		}
	}

	return nil
}

// MarshalJSON emits primitives as bare strings and everything else as an
// object.
func (s schemaJSON) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case KindNullable, KindStaticArray, KindDynamicArray:
		return json.Marshal(schemaObjectJSON{Type: s.Kind.String(), Inner: s.Inner, Length: s.Length})
	case KindMap:
		return json.Marshal(schemaObjectJSON{Type: s.Kind.String(), Key: s.Key, Value: s.Inner})
	case KindAssetRef, KindRecord, KindEnum, KindFixed:
		return json.Marshal(schemaObjectJSON{Type: s.Kind.String(), Name: s.TypeName, Fingerprint: s.RefFingerprint})
	default:
		return json.Marshal(s.Kind.String())
	}
}

func (s *schemaJSON) toDefType() DefType {
	t := DefType{Kind: s.Kind, Length: s.Length, TypeName: s.TypeName}
	if s.Inner != nil {
		inner := s.Inner.toDefType()
		t.Inner = &inner
	}

	if s.Key != nil {
		key := s.Key.toDefType()
		t.Key = &key
	}

	return t
}

type sourceFileJSON struct {
	FormatVersion string     `json:"format_version"`
	Types         []typeJSON `json:"types"`
}

// AddSourceFile parses one schema source file (JSON, or YAML converted to
// JSON) and registers its declarations.
func (l *Linker) AddSourceFile(fsys afero.Fs, path string) error {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return fmt.Errorf("reading schema source %s: %w", path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		data, err = sigsyaml.YAMLToJSON(data)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidSchemaFile, path, err)
		}
	}

	var decls []typeJSON

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &decls); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidSchemaFile, path, err)
		}
	} else {
		var file sourceFileJSON
		if err := json.Unmarshal(data, &file); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidSchemaFile, path, err)
		}

		if file.FormatVersion != "" {
			v, verErr := semver.NewVersion(file.FormatVersion)
			if verErr != nil {
				return fmt.Errorf("%w: %s: bad format_version %q", ErrInvalidSchemaFile, path, file.FormatVersion)
			}

			if !sourceFormatConstraint.Check(v) {
				return fmt.Errorf("%w: %s: unsupported format_version %s", ErrInvalidSchemaFile, path, v)
			}
		}

		decls = file.Types
	}

	for i := range decls {
		if err := l.registerTypeJSON(&decls[i]); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	return nil
}

// AddSourceDir registers every .json/.yaml/.yml schema source file directly
// under dir, in name order for determinism.
func (l *Linker) AddSourceDir(fsys afero.Fs, dir string) error {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("reading schema dir %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".json", ".yaml", ".yml":
			names = append(names, entry.Name())
		}
	}

	sort.Strings(names)

	for _, name := range names {
		if err := l.AddSourceFile(fsys, filepath.Join(dir, name)); err != nil {
			return err
		}
	}

	return nil
}

func (l *Linker) registerTypeJSON(decl *typeJSON) error {
	typeUUID, err := parseOptionalUUID(decl.TypeUUID)
	if err != nil {
		return fmt.Errorf("%w: type %q has bad type_uuid %q", ErrInvalidSchemaFile, decl.Name, decl.TypeUUID)
	}

	switch decl.Type {
	case "record":
		def := RecordDef{Name: decl.Name, TypeUUID: typeUUID, Aliases: decl.Aliases}

		for _, f := range decl.Fields {
			fieldUUID, fieldErr := parseOptionalUUID(f.FieldUUID)
			if fieldErr != nil {
				return fmt.Errorf("%w: field %q of %q has bad field_uuid", ErrInvalidSchemaFile, f.Name, decl.Name)
			}

			def.Fields = append(def.Fields, FieldDef{
				Name:      f.Name,
				FieldUUID: fieldUUID,
				Aliases:   f.Aliases,
				Type:      f.Type.toDefType(),
				Markup:    f.Markup,
			})
		}

		l.RegisterRecord(def)
	case "enum":
		def := EnumDef{Name: decl.Name, TypeUUID: typeUUID, Aliases: decl.Aliases}

		for _, s := range decl.Symbols {
			symbolUUID, symErr := parseOptionalUUID(s.SymbolUUID)
			if symErr != nil {
				return fmt.Errorf("%w: symbol %q of %q has bad symbol_uuid", ErrInvalidSchemaFile, s.Name, decl.Name)
			}

			def.Symbols = append(def.Symbols, SymbolDef{Name: s.Name, SymbolUUID: symbolUUID, Aliases: s.Aliases})
		}

		l.RegisterEnum(def)
	case "fixed":
		l.RegisterFixed(FixedDef{Name: decl.Name, TypeUUID: typeUUID, Aliases: decl.Aliases, Length: decl.Length})
	default:
		return fmt.Errorf("%w: unknown declaration type %q", ErrInvalidSchemaFile, decl.Type)
	}

	return nil
}

func parseOptionalUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}

	return uuid.Parse(s)
}
