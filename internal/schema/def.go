package schema

import "github.com/google/uuid"

// DefType is the pre-link form of a Schema: named-type references are held
// by name (or alias) and resolved by the linker.
type DefType struct {
	Kind     Kind
	Inner    *DefType // nullable/static-array/dynamic-array element, map value
	Key      *DefType // map key
	Length   int      // static array length
	TypeName string   // named reference (asset_ref/record/enum/fixed)
}

// DefNullable wraps inner in a nullable def.
func DefNullable(inner DefType) DefType {
	return DefType{Kind: KindNullable, Inner: &inner}
}

// DefStaticArray returns a fixed-length array def.
func DefStaticArray(inner DefType, length int) DefType {
	return DefType{Kind: KindStaticArray, Inner: &inner, Length: length}
}

// DefDynamicArray returns a growable array def.
func DefDynamicArray(inner DefType) DefType {
	return DefType{Kind: KindDynamicArray, Inner: &inner}
}

// DefMap returns a map def.
func DefMap(key, value DefType) DefType {
	return DefType{Kind: KindMap, Key: &key, Inner: &value}
}

// DefBoolean returns the boolean def.
func DefBoolean() DefType { return DefType{Kind: KindBoolean} }

// DefI32 returns the i32 def.
func DefI32() DefType { return DefType{Kind: KindI32} }

// DefI64 returns the i64 def.
func DefI64() DefType { return DefType{Kind: KindI64} }

// DefU32 returns the u32 def.
func DefU32() DefType { return DefType{Kind: KindU32} }

// DefU64 returns the u64 def.
func DefU64() DefType { return DefType{Kind: KindU64} }

// DefF32 returns the f32 def.
func DefF32() DefType { return DefType{Kind: KindF32} }

// DefF64 returns the f64 def.
func DefF64() DefType { return DefType{Kind: KindF64} }

// DefBytes returns the bytes def.
func DefBytes() DefType { return DefType{Kind: KindBytes} }

// DefString returns the string def.
func DefString() DefType { return DefType{Kind: KindString} }

// DefAssetRef returns an asset-reference def constrained to typeName.
func DefAssetRef(typeName string) DefType {
	return DefType{Kind: KindAssetRef, TypeName: typeName}
}

// DefNamed returns a reference def to a record, enum, or fixed by name. The
// linker determines which of the three it is.
func DefNamed(typeName string) DefType {
	return DefType{Kind: KindRecord, TypeName: typeName}
}

// FieldDef declares one field of a record.
type FieldDef struct {
	Name      string
	FieldUUID uuid.UUID
	Aliases   []string
	Type      DefType
	Markup    map[string]string
}

// RecordDef declares a record type for linking.
type RecordDef struct {
	Name     string
	TypeUUID uuid.UUID
	Aliases  []string
	Fields   []FieldDef
}

// AddField appends a field declaration and returns the def for chaining.
func (d *RecordDef) AddField(name string, fieldUUID uuid.UUID, t DefType) *RecordDef {
	d.Fields = append(d.Fields, FieldDef{Name: name, FieldUUID: fieldUUID, Type: t})
	return d
}

// SymbolDef declares one symbol of an enum.
type SymbolDef struct {
	Name       string
	SymbolUUID uuid.UUID
	Aliases    []string
}

// EnumDef declares an enum type for linking. Symbol 0 is the default.
type EnumDef struct {
	Name     string
	TypeUUID uuid.UUID
	Aliases  []string
	Symbols  []SymbolDef
}

// FixedDef declares a fixed type for linking.
type FixedDef struct {
	Name     string
	TypeUUID uuid.UUID
	Aliases  []string
	Length   int
}
