// Package dataset implements the in-memory property store: schema-typed
// assets with sparse overrides, prototype inheritance over
// nullable/array/map containers, the transactional edit context with
// undo/redo, and standalone single objects used for import data.
package dataset

import (
	"bytes"

	"github.com/google/uuid"

	"github.com/anvilengine/anvil/internal/schema"
)

// AssetID identifies one asset. IDs are plain UUIDs; the alias keeps
// signatures readable.
type AssetID = uuid.UUID

// Value is the tagged payload stored at a property path. Kind selects which
// field carries the data. Container and record kinds carry no payload of
// their own; their contents live at descendant paths.
type Value struct {
	Kind  schema.Kind
	Bool  bool
	I32   int32
	I64   int64
	U32   uint32
	U64   uint64
	F32   float32
	F64   float64
	Bytes []byte
	Str   string
	// Ref is the target asset of an asset-reference value.
	Ref AssetID
	// Symbol is the symbol name of an enum value.
	Symbol string
}

// BoolValue returns a boolean value.
func BoolValue(v bool) Value { return Value{Kind: schema.KindBoolean, Bool: v} }

// I32Value returns an i32 value.
func I32Value(v int32) Value { return Value{Kind: schema.KindI32, I32: v} }

// I64Value returns an i64 value.
func I64Value(v int64) Value { return Value{Kind: schema.KindI64, I64: v} }

// U32Value returns a u32 value.
func U32Value(v uint32) Value { return Value{Kind: schema.KindU32, U32: v} }

// U64Value returns a u64 value.
func U64Value(v uint64) Value { return Value{Kind: schema.KindU64, U64: v} }

// F32Value returns an f32 value.
func F32Value(v float32) Value { return Value{Kind: schema.KindF32, F32: v} }

// F64Value returns an f64 value.
func F64Value(v float64) Value { return Value{Kind: schema.KindF64, F64: v} }

// BytesValue returns a bytes value.
func BytesValue(v []byte) Value { return Value{Kind: schema.KindBytes, Bytes: v} }

// StringValue returns a string value.
func StringValue(v string) Value { return Value{Kind: schema.KindString, Str: v} }

// AssetRefValue returns an asset-reference value.
func AssetRefValue(target AssetID) Value {
	return Value{Kind: schema.KindAssetRef, Ref: target}
}

// EnumValue returns an enum value carrying a symbol name.
func EnumValue(symbol string) Value {
	return Value{Kind: schema.KindEnum, Symbol: symbol}
}

// FixedValue returns a fixed-blob value.
func FixedValue(v []byte) Value { return Value{Kind: schema.KindFixed, Bytes: v} }

// Equal reports deep equality of two values.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}

	switch v.Kind {
	case schema.KindBoolean:
		return v.Bool == other.Bool
	case schema.KindI32:
		return v.I32 == other.I32
	case schema.KindI64:
		return v.I64 == other.I64
	case schema.KindU32:
		return v.U32 == other.U32
	case schema.KindU64:
		return v.U64 == other.U64
	case schema.KindF32:
		return v.F32 == other.F32
	case schema.KindF64:
		return v.F64 == other.F64
	case schema.KindBytes, schema.KindFixed:
		return bytes.Equal(v.Bytes, other.Bytes)
	case schema.KindString:
		return v.Str == other.Str
	case schema.KindAssetRef:
		return v.Ref == other.Ref
	case schema.KindEnum:
		return v.Symbol == other.Symbol
	default:
		return true
	}
}

// Clone returns a deep copy of the value.
func (v Value) Clone() Value {
	out := v
	if v.Bytes != nil {
		out.Bytes = append([]byte(nil), v.Bytes...)
	}

	return out
}

// matchesSchema reports whether the value variant is storable at a path of
// the given schema.
func (v Value) matchesSchema(s schema.Schema) bool {
	switch s.Kind {
	case schema.KindEnum:
		return v.Kind == schema.KindEnum
	case schema.KindFixed:
		return v.Kind == schema.KindFixed || v.Kind == schema.KindBytes
	default:
		return v.Kind == s.Kind
	}
}

// DefaultValue returns the schema default for a terminal schema: zero for
// scalars, empty for bytes/strings, the nil asset reference, and symbol 0
// for enums.
func DefaultValue(set *schema.Set, s schema.Schema) Value {
	switch s.Kind {
	case schema.KindEnum:
		if e, err := set.Enum(s.Ref); err == nil {
			return EnumValue(e.DefaultSymbol().Name)
		}

		return Value{Kind: schema.KindEnum}
	case schema.KindFixed:
		if f, err := set.Fixed(s.Ref); err == nil {
			return FixedValue(make([]byte, f.Length()))
		}

		return Value{Kind: schema.KindFixed}
	default:
		return Value{Kind: s.Kind}
	}
}
