package build

import (
	"github.com/anvilengine/anvil/internal/dataset"
	"github.com/anvilengine/anvil/internal/hashing"
)

// CombinedBuildHash aggregates every asset property hash and every
// import-data metadata hash into a single pass-level value. XOR combines
// them because asset iteration order is nondeterministic; commutativity
// avoids sorting the whole set each tick.
func CombinedBuildHash(assetHashes, importMetadataHashes map[dataset.AssetID]hashing.Hash64) hashing.Hash64 {
	var combined hashing.Hash64

	for id, h := range assetHashes {
		digest := hashing.NewDigest64()
		digest.WriteUUID(id)
		digest.WriteUint64(h)
		combined ^= digest.Sum64()
	}

	for id, h := range importMetadataHashes {
		digest := hashing.NewDigest64()
		digest.WriteUUID(id)
		digest.WriteUint64(h)
		combined ^= digest.Sum64()
	}

	return combined
}
