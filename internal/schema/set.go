package schema

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// NullableValueSegment is the path segment that steps from a nullable field
// into its value.
const NullableValueSegment = "value"

// Set is an immutable collection of linked named types, addressable by
// canonical name and by fingerprint. Multiple structural versions of a type
// may coexist under distinct fingerprints; name lookup returns the most
// recently inserted version.
type Set struct {
	byFingerprint map[Fingerprint]NamedType
	byName        map[string]NamedType
}

func newSet() *Set {
	return &Set{
		byFingerprint: map[Fingerprint]NamedType{},
		byName:        map[string]NamedType{},
	}
}

func (s *Set) insert(t NamedType) {
	s.byFingerprint[t.Fingerprint()] = t
	s.byName[t.Name()] = t
}

// FindNamedType resolves a type by canonical name or alias.
func (s *Set) FindNamedType(name string) (NamedType, bool) {
	if t, ok := s.byName[name]; ok {
		return t, true
	}

	for _, t := range s.byName {
		for _, alias := range t.Aliases() {
			if alias == name {
				return t, true
			}
		}
	}

	return nil, false
}

// NamedType resolves a type by fingerprint.
func (s *Set) NamedType(fp Fingerprint) (NamedType, bool) {
	t, ok := s.byFingerprint[fp]
	return t, ok
}

// Record resolves a record by fingerprint, failing for other kinds.
func (s *Set) Record(fp Fingerprint) (*Record, error) {
	t, ok := s.byFingerprint[fp]
	if !ok {
		return nil, fmt.Errorf("%w: fingerprint %s", ErrSchemaNotFound, fp)
	}

	r, ok := t.(*Record)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a record", ErrSchemaNotFound, t.Name())
	}

	return r, nil
}

// Enum resolves an enum by fingerprint, failing for other kinds.
func (s *Set) Enum(fp Fingerprint) (*Enum, error) {
	t, ok := s.byFingerprint[fp]
	if !ok {
		return nil, fmt.Errorf("%w: fingerprint %s", ErrSchemaNotFound, fp)
	}

	e, ok := t.(*Enum)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an enum", ErrSchemaNotFound, t.Name())
	}

	return e, nil
}

// Fixed resolves a fixed by fingerprint, failing for other kinds.
func (s *Set) Fixed(fp Fingerprint) (*Fixed, error) {
	t, ok := s.byFingerprint[fp]
	if !ok {
		return nil, fmt.Errorf("%w: fingerprint %s", ErrSchemaNotFound, fp)
	}

	f, ok := t.(*Fixed)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a fixed", ErrSchemaNotFound, t.Name())
	}

	return f, nil
}

// PathNodeRecord returns the built-in path node record type.
func (s *Set) PathNodeRecord() *Record {
	t, _ := s.FindNamedType(PathNodeTypeName)
	r, _ := t.(*Record)

	return r
}

// All returns every named type sorted by canonical name then fingerprint,
// for deterministic serialization.
func (s *Set) All() []NamedType {
	out := make([]NamedType, 0, len(s.byFingerprint))
	for _, t := range s.byFingerprint {
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name() != out[j].Name() {
			return out[i].Name() < out[j].Name()
		}

		fi, fj := out[i].Fingerprint(), out[j].Fingerprint()

		return fi.String() < fj.String()
	})

	return out
}

// Merge inserts types from another source (typically the schema cache).
// Types whose fingerprint is already present are a no-op; a cached type
// whose name matches a live type but whose fingerprint differs coexists
// under its own fingerprint without displacing the name binding.
func (s *Set) Merge(types []NamedType) {
	for _, t := range types {
		if _, exists := s.byFingerprint[t.Fingerprint()]; exists {
			continue
		}

		s.byFingerprint[t.Fingerprint()] = t

		if _, nameTaken := s.byName[t.Name()]; !nameTaken {
			s.byName[t.Name()] = t
		}
	}
}

// PropertySchema walks a dotted property path from a root record and
// returns the schema at the terminal segment. Dynamic array and map
// segments are entry UUIDs; static array segments are indices; nullable
// segments must be the sentinel "value".
func (s *Set) PropertySchema(root *Record, path string) (Schema, error) {
	cur := RecordOf(root.Fingerprint())
	if path == "" {
		return cur, nil
	}

	for _, segment := range strings.Split(path, ".") {
		next, err := s.StepSegment(cur, segment)
		if err != nil {
			return Schema{}, fmt.Errorf("path %q: %w", path, err)
		}

		cur = next
	}

	return cur, nil
}

// StepSegment advances one path segment from cur.
func (s *Set) StepSegment(cur Schema, segment string) (Schema, error) {
	switch cur.Kind {
	case KindRecord:
		record, err := s.Record(cur.Ref)
		if err != nil {
			return Schema{}, err
		}

		field, ok := record.FieldSchema(segment)
		if !ok {
			return Schema{}, fmt.Errorf("%w: record %q has no field %q", ErrSchemaNotFound, record.Name(), segment)
		}

		return field, nil
	case KindNullable:
		if segment != NullableValueSegment {
			return Schema{}, fmt.Errorf("%w: nullable segment must be %q, got %q", ErrSchemaNotFound, NullableValueSegment, segment)
		}

		return *cur.Inner, nil
	case KindDynamicArray, KindMap:
		if _, err := uuid.Parse(segment); err != nil {
			return Schema{}, fmt.Errorf("%w: container segment %q is not an entry uuid", ErrSchemaNotFound, segment)
		}

		return *cur.Inner, nil
	case KindStaticArray:
		index, err := strconv.Atoi(segment)
		if err != nil || index < 0 || index >= cur.Length {
			return Schema{}, fmt.Errorf("%w: static array segment %q out of range", ErrSchemaNotFound, segment)
		}

		return *cur.Inner, nil
	default:
		return Schema{}, fmt.Errorf("%w: cannot descend into %s with segment %q", ErrSchemaNotFound, cur.Kind, segment)
	}
}
