package schema

import "github.com/google/uuid"

// NamedType is a linked record, enum, or fixed type.
type NamedType interface {
	// Name is the canonical type name.
	Name() string
	// TypeUUID is the stable identity assigned by the author; it survives
	// renames, unlike the fingerprint.
	TypeUUID() uuid.UUID
	// Fingerprint is the structural identity (see Fingerprint).
	Fingerprint() Fingerprint
	// Aliases are alternative names that resolve to this type.
	Aliases() []string
}

// Field is a single field of a linked record.
type Field struct {
	Name      string
	FieldUUID uuid.UUID
	Aliases   []string
	Schema    Schema
	Markup    map[string]string
}

// Record is a linked record type: a named, ordered sequence of fields.
type Record struct {
	name        string
	typeUUID    uuid.UUID
	fingerprint Fingerprint
	aliases     []string
	fields      []Field
}

// Name implements NamedType.
func (r *Record) Name() string { return r.name }

// TypeUUID implements NamedType.
func (r *Record) TypeUUID() uuid.UUID { return r.typeUUID }

// Fingerprint implements NamedType.
func (r *Record) Fingerprint() Fingerprint { return r.fingerprint }

// Aliases implements NamedType.
func (r *Record) Aliases() []string { return r.aliases }

// Fields returns the record's fields in declaration order.
func (r *Record) Fields() []Field { return r.fields }

// FieldSchema returns the schema of the named field.
func (r *Record) FieldSchema(name string) (Schema, bool) {
	for i := range r.fields {
		if r.fields[i].Name == name {
			return r.fields[i].Schema, true
		}
	}

	return Schema{}, false
}

// Symbol is a single symbol of a linked enum. Symbol 0 is the default.
type Symbol struct {
	Name       string
	SymbolUUID uuid.UUID
	Aliases    []string
}

// Enum is a linked enum type: a named, ordered sequence of symbols.
type Enum struct {
	name        string
	typeUUID    uuid.UUID
	fingerprint Fingerprint
	aliases     []string
	symbols     []Symbol
}

// Name implements NamedType.
func (e *Enum) Name() string { return e.name }

// TypeUUID implements NamedType.
func (e *Enum) TypeUUID() uuid.UUID { return e.typeUUID }

// Fingerprint implements NamedType.
func (e *Enum) Fingerprint() Fingerprint { return e.fingerprint }

// Aliases implements NamedType.
func (e *Enum) Aliases() []string { return e.aliases }

// Symbols returns the enum's symbols in declaration order.
func (e *Enum) Symbols() []Symbol { return e.symbols }

// DefaultSymbol returns symbol 0.
func (e *Enum) DefaultSymbol() Symbol { return e.symbols[0] }

// FindSymbol resolves a symbol by name or alias.
func (e *Enum) FindSymbol(name string) (Symbol, bool) {
	for _, sym := range e.symbols {
		if sym.Name == name {
			return sym, true
		}

		for _, alias := range sym.Aliases {
			if alias == name {
				return sym, true
			}
		}
	}

	return Symbol{}, false
}

// Fixed is a linked fixed type: a named byte blob of known length.
type Fixed struct {
	name        string
	typeUUID    uuid.UUID
	fingerprint Fingerprint
	aliases     []string
	length      int
}

// Name implements NamedType.
func (f *Fixed) Name() string { return f.name }

// TypeUUID implements NamedType.
func (f *Fixed) TypeUUID() uuid.UUID { return f.typeUUID }

// Fingerprint implements NamedType.
func (f *Fixed) Fingerprint() Fingerprint { return f.fingerprint }

// Aliases implements NamedType.
func (f *Fixed) Aliases() []string { return f.aliases }

// Length returns the blob length in bytes.
func (f *Fixed) Length() int { return f.length }
