// Package schema implements the reflective, versioned type system that the
// rest of the pipeline is built on: named record/enum/fixed types, structural
// fingerprinting over the transitive reference closure, a linker that
// resolves aliased references from JSON/YAML source files, and
// schema-directed property path traversal.
package schema

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Fingerprint is the 128-bit structural identity of a named type. It is
// derived from the type's definition and the definitions of every type it
// transitively references, so it changes whenever any reachable structure
// changes and is stable across cyclic references.
type Fingerprint [16]byte

// UUID reinterprets the fingerprint as a UUID.
func (f Fingerprint) UUID() uuid.UUID {
	return uuid.UUID(f)
}

// String renders the fingerprint as 32 lowercase hex characters.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// IsZero reports whether the fingerprint is unset.
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

// ParseFingerprint parses a 32-character hex fingerprint.
func ParseFingerprint(s string) (Fingerprint, error) {
	var f Fingerprint

	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 16 {
		return f, fmt.Errorf("%w: %q is not a 32-hex fingerprint", ErrInvalidSchemaFile, s)
	}

	copy(f[:], raw)

	return f, nil
}

// Kind enumerates the schema variants a field (or container element) can
// take.
type Kind uint8

// Schema variants.
const (
	KindInvalid Kind = iota
	KindNullable
	KindBoolean
	KindI32
	KindI64
	KindU32
	KindU64
	KindF32
	KindF64
	KindBytes
	KindString
	KindStaticArray
	KindDynamicArray
	KindMap
	KindAssetRef
	KindRecord
	KindEnum
	KindFixed
)

var kindNames = map[Kind]string{
	KindNullable:     "nullable",
	KindBoolean:      "bool",
	KindI32:          "i32",
	KindI64:          "i64",
	KindU32:          "u32",
	KindU64:          "u64",
	KindF32:          "f32",
	KindF64:          "f64",
	KindBytes:        "bytes",
	KindString:       "string",
	KindStaticArray:  "static_array",
	KindDynamicArray: "dynamic_array",
	KindMap:          "map",
	KindAssetRef:     "asset_ref",
	KindRecord:       "record",
	KindEnum:         "enum",
	KindFixed:        "fixed",
}

// String returns the canonical lowercase name of the kind, as used in
// schema source files and the schema cache.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("kind(%d)", uint8(k))
}

// kindFromName is the inverse of Kind.String.
func kindFromName(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}

	return KindInvalid, false
}

// IsContainer reports whether the kind holds entries addressed by a path
// segment (dynamic array or map).
func (k Kind) IsContainer() bool {
	return k == KindDynamicArray || k == KindMap
}

// Schema is the fully linked type of a field. Named references are resolved
// to fingerprints; use a Set to look the referenced type up.
type Schema struct {
	Kind   Kind
	Inner  *Schema     // nullable/static-array/dynamic-array element, map value
	Key    *Schema     // map key
	Length int         // static array length
	Ref    Fingerprint // asset_ref constraint, record, enum, fixed
}

// Nullable wraps inner in a nullable schema.
func Nullable(inner Schema) Schema {
	return Schema{Kind: KindNullable, Inner: &inner}
}

// StaticArray returns a fixed-length array schema.
func StaticArray(inner Schema, length int) Schema {
	return Schema{Kind: KindStaticArray, Inner: &inner, Length: length}
}

// DynamicArray returns a growable array schema.
func DynamicArray(inner Schema) Schema {
	return Schema{Kind: KindDynamicArray, Inner: &inner}
}

// Map returns a map schema.
func Map(key, value Schema) Schema {
	return Schema{Kind: KindMap, Key: &key, Inner: &value}
}

// Boolean returns the boolean schema.
func Boolean() Schema { return Schema{Kind: KindBoolean} }

// I32 returns the 32-bit signed integer schema.
func I32() Schema { return Schema{Kind: KindI32} }

// I64 returns the 64-bit signed integer schema.
func I64() Schema { return Schema{Kind: KindI64} }

// U32 returns the 32-bit unsigned integer schema.
func U32() Schema { return Schema{Kind: KindU32} }

// U64 returns the 64-bit unsigned integer schema.
func U64() Schema { return Schema{Kind: KindU64} }

// F32 returns the 32-bit float schema.
func F32() Schema { return Schema{Kind: KindF32} }

// F64 returns the 64-bit float schema.
func F64() Schema { return Schema{Kind: KindF64} }

// Bytes returns the byte-blob schema.
func Bytes() Schema { return Schema{Kind: KindBytes} }

// Str returns the string schema.
func Str() Schema { return Schema{Kind: KindString} }

// AssetRef returns a reference schema constrained to assets whose declared
// record type is at least the record identified by fp.
func AssetRef(fp Fingerprint) Schema {
	return Schema{Kind: KindAssetRef, Ref: fp}
}

// RecordOf returns a schema referencing the named record with fingerprint fp.
func RecordOf(fp Fingerprint) Schema {
	return Schema{Kind: KindRecord, Ref: fp}
}

// EnumOf returns a schema referencing the named enum with fingerprint fp.
func EnumOf(fp Fingerprint) Schema {
	return Schema{Kind: KindEnum, Ref: fp}
}

// FixedOf returns a schema referencing the named fixed with fingerprint fp.
func FixedOf(fp Fingerprint) Schema {
	return Schema{Kind: KindFixed, Ref: fp}
}
