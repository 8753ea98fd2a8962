package build

import (
	"sort"

	"github.com/google/uuid"

	"github.com/anvilengine/anvil/internal/hashing"
)

// JobID is the 128-bit content identity of a job: processor type UUID,
// processor version, and the canonical serialization of the input. Two
// enqueues of the same work share one JobID and execute at most once per
// pass.
type JobID = hashing.Hash128

// ComputeJobID derives a job's identity from its processor and input.
func ComputeJobID(processorID uuid.UUID, version uint32, input []byte) JobID {
	digest := hashing.NewDigest128()
	digest.WriteUUID(processorID)
	digest.WriteUint32(version)
	digest.WriteUint64(uint64(len(input)))
	digest.Write(input)

	return digest.Sum128()
}

// ComputeJobCacheKey injects the dependencies hash into a job identity,
// producing the key the persistent job cache is consulted under: the sorted
// import-data contents hashes and the sorted upstream JobIDs. A job whose
// inputs and reachable data are unchanged hits the cache across passes.
func ComputeJobCacheKey(id JobID, importDataHashes []hashing.Hash64, upstream []JobID) hashing.Hash128 {
	sortedImports := append([]hashing.Hash64(nil), importDataHashes...)
	sort.Slice(sortedImports, func(i, j int) bool { return sortedImports[i] < sortedImports[j] })

	sortedUpstream := append([]JobID(nil), upstream...)
	sort.Slice(sortedUpstream, func(i, j int) bool {
		return string(sortedUpstream[i][:]) < string(sortedUpstream[j][:])
	})

	digest := hashing.NewDigest128()
	digest.WriteHash128(id)
	digest.WriteUint64(uint64(len(sortedImports)))

	for _, h := range sortedImports {
		digest.WriteUint64(h)
	}

	digest.WriteUint64(uint64(len(sortedUpstream)))

	for _, h := range sortedUpstream {
		digest.WriteHash128(h)
	}

	return digest.Sum128()
}

// DerivedArtifactID deterministically derives the ID of a secondary
// artifact from its owning job and emission index. The primary artifact of
// an asset uses the asset's own ID instead.
func DerivedArtifactID(jobID JobID, index int) uuid.UUID {
	digest := hashing.NewDigest128()
	digest.WriteHash128(jobID)
	digest.WriteUint64(uint64(index))

	return digest.Sum128().UUID()
}
