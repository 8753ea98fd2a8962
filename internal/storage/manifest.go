package storage

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/anvilengine/anvil/internal/hashing"
)

// Manifest file names under the build data root.
const (
	ManifestFileName      = "manifest.json"
	DebugManifestFileName = "manifest_debug.json"
)

// ManifestEntry describes one shipped artifact.
type ManifestEntry struct {
	ArtifactID ArtifactID
	BuildHash  hashing.Hash64
	// SymbolHash addresses the artifact by name hash when non-zero.
	SymbolHash hashing.Hash64
	// ArtifactType is the runtime asset type UUID.
	ArtifactType uuid.UUID
	// DebugName is carried into the debug manifest only.
	DebugName string
}

// Manifest is the published list of artifacts from the most recent
// successful build pass.
type Manifest struct {
	Entries []ManifestEntry
}

// Sort orders entries by artifact ID for deterministic files.
func (m *Manifest) Sort() {
	sort.Slice(m.Entries, func(i, j int) bool {
		return strings.Compare(m.Entries[i].ArtifactID.String(), m.Entries[j].ArtifactID.String()) < 0
	})
}

type manifestEntryJSON struct {
	ArtifactID   string `json:"artifact_id"`
	BuildHash    string `json:"build_hash"`
	SymbolHash   string `json:"symbol_hash,omitempty"`
	ArtifactType string `json:"artifact_type"`
}

type debugManifestEntryJSON struct {
	manifestEntryJSON
	DebugName string `json:"debug_name,omitempty"`
}

// WriteManifests atomically publishes the release and debug manifests under
// the build data root: each is written to a temp file and renamed over the
// previous manifest, so observers never see a partial file.
func WriteManifests(fsys afero.Fs, buildRoot string, m *Manifest) error {
	m.Sort()

	release := make([]manifestEntryJSON, 0, len(m.Entries))
	debug := make([]debugManifestEntryJSON, 0, len(m.Entries))

	for _, e := range m.Entries {
		wire := manifestEntryJSON{
			ArtifactID:   e.ArtifactID.String(),
			BuildHash:    fmt.Sprintf("%016x", e.BuildHash),
			ArtifactType: e.ArtifactType.String(),
		}
		if e.SymbolHash != 0 {
			wire.SymbolHash = fmt.Sprintf("%016x", e.SymbolHash)
		}

		release = append(release, wire)
		debug = append(debug, debugManifestEntryJSON{manifestEntryJSON: wire, DebugName: e.DebugName})
	}

	if err := writeJSONAtomic(fsys, path.Join(buildRoot, ManifestFileName), release); err != nil {
		return err
	}

	return writeJSONAtomic(fsys, path.Join(buildRoot, DebugManifestFileName), debug)
}

// ReadManifest loads the release manifest. A missing file yields an empty
// manifest.
func ReadManifest(fsys afero.Fs, buildRoot string) (*Manifest, error) {
	manifestPath := path.Join(buildRoot, ManifestFileName)

	exists, err := afero.Exists(fsys, manifestPath)
	if err != nil {
		return nil, err
	}

	if !exists {
		return &Manifest{}, nil
	}

	data, err := afero.ReadFile(fsys, manifestPath)
	if err != nil {
		return nil, err
	}

	var wire []manifestEntryJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", ErrMalformedJSON, err)
	}

	m := &Manifest{Entries: make([]ManifestEntry, 0, len(wire))}

	for _, e := range wire {
		artifactID, parseErr := uuid.Parse(e.ArtifactID)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: artifact_id %q", ErrUUIDParse, e.ArtifactID)
		}

		artifactType, parseErr := uuid.Parse(e.ArtifactType)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: artifact_type %q", ErrUUIDParse, e.ArtifactType)
		}

		buildHash, parseErr := strconv.ParseUint(e.BuildHash, 16, 64)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: build_hash %q", ErrMalformedJSON, e.BuildHash)
		}

		entry := ManifestEntry{
			ArtifactID:   artifactID,
			BuildHash:    buildHash,
			ArtifactType: artifactType,
		}

		if e.SymbolHash != "" {
			symbolHash, symErr := strconv.ParseUint(e.SymbolHash, 16, 64)
			if symErr != nil {
				return nil, fmt.Errorf("%w: symbol_hash %q", ErrMalformedJSON, e.SymbolHash)
			}

			entry.SymbolHash = symbolHash
		}

		m.Entries = append(m.Entries, entry)
	}

	return m, nil
}

func writeJSONAtomic(fsys afero.Fs, filePath string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filePath, err)
	}

	if err := ensureParentDir(fsys, filePath); err != nil {
		return err
	}

	tmp := filePath + ".tmp"
	if err := afero.WriteFile(fsys, tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}

	if err := fsys.Rename(tmp, filePath); err != nil {
		return fmt.Errorf("publishing %s: %w", filePath, err)
	}

	return nil
}
