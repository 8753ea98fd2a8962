package schema

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/google/uuid"

	"github.com/anvilengine/anvil/internal/hashing"
)

// Built-in path node record. Path nodes structure the asset namespace; they
// carry no fields of their own.
const PathNodeTypeName = "PathNode"

// PathNodeTypeUUID is the stable identity of the built-in PathNode record.
var PathNodeTypeUUID = uuid.MustParse("c2a14ab4-d0f7-4a29-951a-1c17ae3eb63d")

// Linker gathers type declarations from register calls and source
// directories, then resolves references, canonicalizes aliases, computes
// fingerprints, and produces an immutable Set.
type Linker struct {
	records []RecordDef
	enums   []EnumDef
	fixeds  []FixedDef
}

// NewLinker returns a linker pre-populated with the built-in PathNode
// record.
func NewLinker() *Linker {
	l := &Linker{}
	l.RegisterRecord(RecordDef{
		Name:     PathNodeTypeName,
		TypeUUID: PathNodeTypeUUID,
	})

	return l
}

// RegisterRecord adds a record declaration.
func (l *Linker) RegisterRecord(def RecordDef) {
	l.records = append(l.records, def)
}

// RegisterEnum adds an enum declaration.
func (l *Linker) RegisterEnum(def EnumDef) {
	l.enums = append(l.enums, def)
}

// RegisterFixed adds a fixed declaration.
func (l *Linker) RegisterFixed(def FixedDef) {
	l.fixeds = append(l.fixeds, def)
}

// declKind distinguishes the three named-type declaration families during
// linking.
type declKind uint8

const (
	declRecord declKind = iota
	declEnum
	declFixed
)

// decl is the linker's uniform view of one declaration.
type decl struct {
	kind   declKind
	record *RecordDef
	enum   *EnumDef
	fixed  *FixedDef
}

func (d *decl) name() string {
	switch d.kind {
	case declRecord:
		return d.record.Name
	case declEnum:
		return d.enum.Name
	default:
		return d.fixed.Name
	}
}

func (d *decl) typeUUID() uuid.UUID {
	switch d.kind {
	case declRecord:
		return d.record.TypeUUID
	case declEnum:
		return d.enum.TypeUUID
	default:
		return d.fixed.TypeUUID
	}
}

func (d *decl) aliases() []string {
	switch d.kind {
	case declRecord:
		return d.record.Aliases
	case declEnum:
		return d.enum.Aliases
	default:
		return d.fixed.Aliases
	}
}

// Link resolves all registered declarations into a Set. It fails on
// unresolved references, duplicate type or field or symbol names, and
// type-UUID collisions between non-equivalent declarations.
func (l *Linker) Link() (*Set, error) {
	decls := make([]*decl, 0, len(l.records)+len(l.enums)+len(l.fixeds))
	for i := range l.records {
		decls = append(decls, &decl{kind: declRecord, record: &l.records[i]})
	}

	for i := range l.enums {
		decls = append(decls, &decl{kind: declEnum, enum: &l.enums[i]})
	}

	for i := range l.fixeds {
		decls = append(decls, &decl{kind: declFixed, fixed: &l.fixeds[i]})
	}

	// Name resolution table: canonical names and aliases all map to the
	// declaration's canonical name.
	byName := make(map[string]*decl, len(decls))

	canonical := make(map[string]string)

	for _, d := range decls {
		name := d.name()
		if name == "" {
			return nil, fmt.Errorf("%w: declaration with empty name", ErrInvalidSchemaFile)
		}

		if _, exists := canonical[name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateTypeName, name)
		}

		canonical[name] = name
		byName[name] = d
	}

	for _, d := range decls {
		for _, alias := range d.aliases() {
			if owner, exists := canonical[alias]; exists && owner != d.name() {
				return nil, fmt.Errorf("%w: alias %q of %q collides with %q", ErrDuplicateTypeName, alias, d.name(), owner)
			}

			canonical[alias] = d.name()
		}
	}

	// Canonicalize every reference, validate per-declaration structure,
	// and collect the direct reference set of each type.
	refs := make(map[string]map[string]bool, len(decls))

	for _, d := range decls {
		refSet := map[string]bool{}
		refs[d.name()] = refSet

		switch d.kind {
		case declRecord:
			seen := map[string]bool{}
			for i := range d.record.Fields {
				f := &d.record.Fields[i]
				if seen[f.Name] {
					return nil, fmt.Errorf("%w: field %q of record %q", ErrDuplicateTypeName, f.Name, d.record.Name)
				}

				seen[f.Name] = true

				if err := l.canonicalizeDefType(&f.Type, canonical, byName, refSet); err != nil {
					return nil, fmt.Errorf("record %q field %q: %w", d.record.Name, f.Name, err)
				}
			}
		case declEnum:
			if len(d.enum.Symbols) == 0 {
				return nil, fmt.Errorf("%w: enum %q has no symbols", ErrInvalidSchemaFile, d.enum.Name)
			}

			seen := map[string]bool{}
			for _, sym := range d.enum.Symbols {
				if seen[sym.Name] {
					return nil, fmt.Errorf("%w: symbol %q of enum %q", ErrDuplicateTypeName, sym.Name, d.enum.Name)
				}

				seen[sym.Name] = true
			}
		case declFixed:
			if d.fixed.Length <= 0 {
				return nil, fmt.Errorf("%w: fixed %q has non-positive length", ErrInvalidSchemaFile, d.fixed.Name)
			}
		}
	}

	// Type UUID collisions: the same UUID may only appear on equivalent
	// declarations (a re-registration is a no-op).
	if err := checkUUIDCollisions(decls); err != nil {
		return nil, err
	}

	// Partial fingerprints use referenced type names as placeholders so
	// cycles terminate.
	partial := make(map[string]hashing.Hash128, len(decls))
	for _, d := range decls {
		partial[d.name()] = partialFingerprint(d)
	}

	// Transitive closure of references per type, fix-point iteration.
	closure := transitiveClosure(refs)

	// Final fingerprint: hash the sorted sequence of partial fingerprints
	// of the type and everything it reaches.
	fingerprints := make(map[string]Fingerprint, len(decls))

	for _, d := range decls {
		members := make([]string, 0, len(closure[d.name()])+1)
		members = append(members, d.name())

		for ref := range closure[d.name()] {
			if ref != d.name() {
				members = append(members, ref)
			}
		}

		sort.Strings(members)

		// Seed with the type's own partial hash so mutually-recursive
		// types (which share a closure set) get distinct fingerprints.
		digest := hashing.NewDigest128()
		digest.WriteHash128(partial[d.name()])

		for _, member := range members {
			digest.WriteString(member)
			digest.WriteHash128(partial[member])
		}

		fingerprints[d.name()] = Fingerprint(digest.Sum128())
	}

	// Construct the linked types.
	set := newSet()

	for _, d := range decls {
		fp := fingerprints[d.name()]

		switch d.kind {
		case declRecord:
			fields := make([]Field, 0, len(d.record.Fields))
			for _, f := range d.record.Fields {
				fields = append(fields, Field{
					Name:      f.Name,
					FieldUUID: f.FieldUUID,
					Aliases:   f.Aliases,
					Schema:    resolveDefType(f.Type, fingerprints),
					Markup:    f.Markup,
				})
			}

			set.insert(&Record{
				name:        d.record.Name,
				typeUUID:    d.record.TypeUUID,
				fingerprint: fp,
				aliases:     d.record.Aliases,
				fields:      fields,
			})
		case declEnum:
			symbols := make([]Symbol, 0, len(d.enum.Symbols))
			for _, s := range d.enum.Symbols {
				symbols = append(symbols, Symbol{Name: s.Name, SymbolUUID: s.SymbolUUID, Aliases: s.Aliases})
			}

			set.insert(&Enum{
				name:        d.enum.Name,
				typeUUID:    d.enum.TypeUUID,
				fingerprint: fp,
				aliases:     d.enum.Aliases,
				symbols:     symbols,
			})
		case declFixed:
			set.insert(&Fixed{
				name:        d.fixed.Name,
				typeUUID:    d.fixed.TypeUUID,
				fingerprint: fp,
				aliases:     d.fixed.Aliases,
				length:      d.fixed.Length,
			})
		}
	}

	return set, nil
}

// canonicalizeDefType rewrites every named reference in t to its canonical
// name, fixes the reference kind to the referenced declaration's family, and
// records the reference in refSet.
func (l *Linker) canonicalizeDefType(t *DefType, canonical map[string]string, byName map[string]*decl, refSet map[string]bool) error {
	switch t.Kind {
	case KindNullable, KindStaticArray, KindDynamicArray:
		return l.canonicalizeDefType(t.Inner, canonical, byName, refSet)
	case KindMap:
		if err := l.canonicalizeDefType(t.Key, canonical, byName, refSet); err != nil {
			return err
		}

		return l.canonicalizeDefType(t.Inner, canonical, byName, refSet)
	case KindAssetRef, KindRecord, KindEnum, KindFixed:
		name, ok := canonical[t.TypeName]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnresolvedReference, t.TypeName)
		}

		t.TypeName = name
		refSet[name] = true

		target := byName[name]
		if t.Kind == KindAssetRef {
			if target.kind != declRecord {
				return fmt.Errorf("%w: asset_ref target %q is not a record", ErrUnresolvedReference, name)
			}

			return nil
		}

		// A named reference takes the kind of whatever it resolved to.
		switch target.kind {
		case declRecord:
			t.Kind = KindRecord
		case declEnum:
			t.Kind = KindEnum
		case declFixed:
			t.Kind = KindFixed
		}

		return nil
	default:
		return nil
	}
}

// checkUUIDCollisions rejects two non-equivalent declarations sharing a
// stable type UUID.
func checkUUIDCollisions(decls []*decl) error {
	byUUID := map[uuid.UUID]*decl{}

	for _, d := range decls {
		id := d.typeUUID()
		if id == uuid.Nil {
			continue
		}

		prev, exists := byUUID[id]
		if !exists {
			byUUID[id] = d
			continue
		}

		equal := prev.kind == d.kind
		if equal {
			switch d.kind {
			case declRecord:
				equal = reflect.DeepEqual(prev.record, d.record)
			case declEnum:
				equal = reflect.DeepEqual(prev.enum, d.enum)
			case declFixed:
				equal = reflect.DeepEqual(prev.fixed, d.fixed)
			}
		}

		if !equal {
			return fmt.Errorf("%w: %s and %s both claim %s", ErrTypeUUIDCollision, prev.name(), d.name(), id)
		}
	}

	return nil
}

// partialFingerprint hashes one declaration in isolation, with referenced
// types represented by their canonical names. Aliases and markup are
// presentation metadata and stay out of the hash.
func partialFingerprint(d *decl) hashing.Hash128 {
	digest := hashing.NewDigest128()

	switch d.kind {
	case declRecord:
		digest.WriteString("record")
		digest.WriteString(d.record.Name)
		digest.WriteUUID(d.record.TypeUUID)

		for _, f := range d.record.Fields {
			digest.WriteString(f.Name)
			digest.WriteUUID(f.FieldUUID)
			hashDefType(digest, f.Type)
		}
	case declEnum:
		digest.WriteString("enum")
		digest.WriteString(d.enum.Name)
		digest.WriteUUID(d.enum.TypeUUID)

		for _, s := range d.enum.Symbols {
			digest.WriteString(s.Name)
			digest.WriteUUID(s.SymbolUUID)
		}
	case declFixed:
		digest.WriteString("fixed")
		digest.WriteString(d.fixed.Name)
		digest.WriteUUID(d.fixed.TypeUUID)
		digest.WriteUint64(uint64(d.fixed.Length))
	}

	return digest.Sum128()
}

// hashDefType writes a canonicalized def type's structure into the digest.
func hashDefType(digest *hashing.Digest128, t DefType) {
	digest.WriteUint32(uint32(t.Kind))

	switch t.Kind {
	case KindNullable, KindStaticArray, KindDynamicArray:
		if t.Kind == KindStaticArray {
			digest.WriteUint64(uint64(t.Length))
		}

		hashDefType(digest, *t.Inner)
	case KindMap:
		hashDefType(digest, *t.Key)
		hashDefType(digest, *t.Inner)
	case KindAssetRef, KindRecord, KindEnum, KindFixed:
		digest.WriteString(t.TypeName)
	}
}

// transitiveClosure expands direct reference sets to their fix-point.
func transitiveClosure(direct map[string]map[string]bool) map[string]map[string]bool {
	closure := make(map[string]map[string]bool, len(direct))
	for name, refSet := range direct {
		copied := make(map[string]bool, len(refSet))
		for ref := range refSet {
			copied[ref] = true
		}

		closure[name] = copied
	}

	for changed := true; changed; {
		changed = false

		for _, refSet := range closure {
			for ref := range refSet {
				for indirect := range closure[ref] {
					if !refSet[indirect] {
						refSet[indirect] = true
						changed = true
					}
				}
			}
		}
	}

	return closure
}

// resolveDefType converts a canonicalized def type into a linked schema.
func resolveDefType(t DefType, fingerprints map[string]Fingerprint) Schema {
	switch t.Kind {
	case KindNullable, KindStaticArray, KindDynamicArray:
		inner := resolveDefType(*t.Inner, fingerprints)
		return Schema{Kind: t.Kind, Inner: &inner, Length: t.Length}
	case KindMap:
		key := resolveDefType(*t.Key, fingerprints)
		value := resolveDefType(*t.Inner, fingerprints)

		return Schema{Kind: KindMap, Key: &key, Inner: &value}
	case KindAssetRef, KindRecord, KindEnum, KindFixed:
		return Schema{Kind: t.Kind, Ref: fingerprints[t.TypeName]}
	default:
		return Schema{Kind: t.Kind}
	}
}
