package dataset

import (
	"math"
	"sort"

	"github.com/anvilengine/anvil/internal/hashing"
	"github.com/anvilengine/anvil/internal/schema"
)

// HashProperties returns a stable hash of an asset's schema fingerprint,
// prototype, and normalized override maps. The rebuild-decision layer
// compares these across ticks.
func (ds *DataSet) HashProperties(id AssetID) (hashing.Hash64, error) {
	a, err := ds.Asset(id)
	if err != nil {
		return 0, err
	}

	digest := hashing.NewDigest64()
	fp := a.Schema.Fingerprint()
	digest.Write(fp[:])
	digest.WriteUUID(a.Prototype)

	for _, path := range sortedKeys(a.Properties) {
		digest.WriteString(path)
		hashValue(digest, a.Properties[path])
	}

	for _, path := range sortedKeys(a.NullOverrides) {
		digest.WriteString(path)
		digest.WriteUint64(uint64(a.NullOverrides[path]))
	}

	replacePaths := a.ReplaceModePaths.ToSlice()
	sort.Strings(replacePaths)

	for _, path := range replacePaths {
		digest.WriteString(path)
	}

	for _, path := range sortedKeys(a.DynamicArrayEntries) {
		digest.WriteString(path)

		for _, entry := range a.DynamicArrayEntries[path] {
			digest.WriteUUID(entry)
		}
	}

	for _, path := range sortedKeys(a.MapEntries) {
		digest.WriteString(path)

		for _, entry := range sortedEntrySet(a.MapEntries[path]) {
			digest.WriteUUID(entry)
		}
	}

	for _, ref := range sortedKeys(a.FileReferenceOverrides) {
		digest.WriteString(ref)
		digest.WriteUUID(a.FileReferenceOverrides[ref])
	}

	return digest.Sum64(), nil
}

// hashValue folds one value into the digest with a kind tag so distinct
// variants cannot alias.
func hashValue(digest *hashing.Digest64, v Value) {
	digest.WriteUint64(uint64(v.Kind))

	switch v.Kind {
	case schema.KindBoolean:
		if v.Bool {
			digest.WriteUint64(1)
		} else {
			digest.WriteUint64(0)
		}
	case schema.KindI32:
		digest.WriteUint64(uint64(uint32(v.I32)))
	case schema.KindI64:
		digest.WriteUint64(uint64(v.I64))
	case schema.KindU32:
		digest.WriteUint64(uint64(v.U32))
	case schema.KindU64:
		digest.WriteUint64(v.U64)
	case schema.KindF32:
		digest.WriteUint64(uint64(math.Float32bits(v.F32)))
	case schema.KindF64:
		digest.WriteUint64(math.Float64bits(v.F64))
	case schema.KindBytes, schema.KindFixed:
		digest.WriteUint64(uint64(len(v.Bytes)))
		digest.Write(v.Bytes)
	case schema.KindString:
		digest.WriteString(v.Str)
	case schema.KindAssetRef:
		digest.WriteUUID(v.Ref)
	case schema.KindEnum:
		digest.WriteString(v.Symbol)
	}
}
