package build

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/anvilengine/anvil/internal/dataset"
	"github.com/anvilengine/anvil/internal/hashing"
	"github.com/anvilengine/anvil/internal/storage"
)

// The persistent job cache memoizes completed jobs across passes. Entries
// are keyed by the job cache key (JobID plus dependencies hash) and live
// under the job data root in B3F containers tagged AVJC: block 0 is JSON
// metadata (the artifacts the job emitted), block 1 the serialized output.
// Artifact payloads are not duplicated here; the artifact store is
// content-addressed and append-only, so a cache hit reuses the files the
// original run wrote.

var jobCacheTag = [4]byte{'A', 'V', 'J', 'C'}

const (
	jobCacheVersion   = 1
	jobCacheExtension = "jc"
)

// WrittenArtifact records one artifact a job emitted, as it exists on disk.
type WrittenArtifact struct {
	AssetID      dataset.AssetID
	ArtifactID   storage.ArtifactID
	AssetType    uuid.UUID
	Dependencies []storage.ArtifactID
	BuildHash    hashing.Hash64
	DebugName    string
}

type cachedArtifactJSON struct {
	AssetID      string   `json:"asset_id"`
	ArtifactID   string   `json:"artifact_id"`
	AssetType    string   `json:"asset_type"`
	Dependencies []string `json:"dependencies,omitempty"`
	BuildHash    string   `json:"build_hash"`
	DebugName    string   `json:"debug_name,omitempty"`
}

type cachedEnqueueJSON struct {
	ProcessorID string `json:"processor_id"`
	Input       []byte `json:"input"`
	DebugName   string `json:"debug_name,omitempty"`
}

type jobCacheMetaJSON struct {
	Artifacts []cachedArtifactJSON `json:"artifacts"`
	Enqueued  []cachedEnqueueJSON  `json:"enqueued,omitempty"`
}

// CachedJob is a job cache entry: the serialized output, the artifacts the
// original run emitted, and the child jobs it enqueued (replayed on a hit
// so spawned jobs still reach the executor).
type CachedJob struct {
	Output    []byte
	Artifacts []WrittenArtifact
	Enqueued  []EnqueuedJob
}

func jobCachePath(root string, key hashing.Hash128) string {
	return storage.UUIDToPath(root, key.UUID(), jobCacheExtension)
}

// WriteJobCache persists a completed job's outcome under its cache key.
func WriteJobCache(fsys afero.Fs, root string, key hashing.Hash128, entry *CachedJob) error {
	meta := jobCacheMetaJSON{}

	for _, a := range entry.Artifacts {
		wire := cachedArtifactJSON{
			AssetID:    a.AssetID.String(),
			ArtifactID: a.ArtifactID.String(),
			AssetType:  a.AssetType.String(),
			BuildHash:  fmt.Sprintf("%016x", a.BuildHash),
			DebugName:  a.DebugName,
		}
		for _, dep := range a.Dependencies {
			wire.Dependencies = append(wire.Dependencies, dep.String())
		}

		meta.Artifacts = append(meta.Artifacts, wire)
	}

	for _, child := range entry.Enqueued {
		meta.Enqueued = append(meta.Enqueued, cachedEnqueueJSON{
			ProcessorID: child.ProcessorID.String(),
			Input:       child.Input,
			DebugName:   child.DebugName,
		})
	}

	metaJSON, err := json.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("encoding job cache entry: %w", err)
	}

	writer := storage.NewB3FWriter(jobCacheTag, jobCacheVersion)
	writer.AddBlock(metaJSON)
	writer.AddBlock(entry.Output)

	var out bytes.Buffer
	if err := writer.Write(&out); err != nil {
		return fmt.Errorf("encoding job cache container: %w", err)
	}

	path := jobCachePath(root, key)
	if err := fsys.MkdirAll(parentDir(path), 0o750); err != nil {
		return fmt.Errorf("creating job cache directory: %w", err)
	}

	if err := afero.WriteFile(fsys, path, out.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing job cache %s: %w", path, err)
	}

	return nil
}

// ReadJobCache looks up a cache entry. A missing or unreadable entry is a
// miss, never an error; the job just runs.
func ReadJobCache(fsys afero.Fs, root string, key hashing.Hash128) (*CachedJob, bool) {
	data, err := afero.ReadFile(fsys, jobCachePath(root, key))
	if err != nil {
		return nil, false
	}

	reader, err := storage.NewB3FReader(data)
	if err != nil || reader.Tag() != jobCacheTag || reader.Version() != jobCacheVersion || reader.BlockCount() < 2 {
		return nil, false
	}

	metaBlock, err := reader.ReadBlock(0)
	if err != nil {
		return nil, false
	}

	var meta jobCacheMetaJSON
	if err := json.Unmarshal(metaBlock, &meta); err != nil {
		return nil, false
	}

	output, err := reader.ReadBlock(1)
	if err != nil {
		return nil, false
	}

	entry := &CachedJob{Output: append([]byte(nil), output...)}

	for _, wire := range meta.Artifacts {
		artifact, convErr := decodeCachedArtifact(wire)
		if convErr != nil {
			return nil, false
		}

		entry.Artifacts = append(entry.Artifacts, artifact)
	}

	for _, child := range meta.Enqueued {
		processorID, parseErr := uuid.Parse(child.ProcessorID)
		if parseErr != nil {
			return nil, false
		}

		entry.Enqueued = append(entry.Enqueued, EnqueuedJob{
			ProcessorID: processorID,
			Input:       child.Input,
			DebugName:   child.DebugName,
		})
	}

	return entry, true
}

func decodeCachedArtifact(wire cachedArtifactJSON) (WrittenArtifact, error) {
	assetID, err := uuid.Parse(wire.AssetID)
	if err != nil {
		return WrittenArtifact{}, err
	}

	artifactID, err := uuid.Parse(wire.ArtifactID)
	if err != nil {
		return WrittenArtifact{}, err
	}

	assetType, err := uuid.Parse(wire.AssetType)
	if err != nil {
		return WrittenArtifact{}, err
	}

	var buildHash hashing.Hash64
	if _, err := fmt.Sscanf(wire.BuildHash, "%016x", &buildHash); err != nil {
		return WrittenArtifact{}, err
	}

	out := WrittenArtifact{
		AssetID:    assetID,
		ArtifactID: artifactID,
		AssetType:  assetType,
		BuildHash:  buildHash,
		DebugName:  wire.DebugName,
	}

	for _, dep := range wire.Dependencies {
		depID, depErr := uuid.Parse(dep)
		if depErr != nil {
			return WrittenArtifact{}, depErr
		}

		out.Dependencies = append(out.Dependencies, depID)
	}

	return out, nil
}

func parentDir(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[:i]
		}
	}

	return ""
}
