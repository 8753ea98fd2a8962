package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/anvilengine/anvil/internal/hashing"
)

// Built artifact files carry a length-prefixed binary metadata header (the
// artifact's dependency list and asset type) followed by the raw payload.
// The runtime loader reads the header to schedule dependency loads before
// touching the payload.

// ArtifactFileExtension is the extension of built artifact files.
const ArtifactFileExtension = "bf"

// maxArtifactHeaderSize bounds header reads so a corrupt length prefix
// cannot drive a huge allocation.
const maxArtifactHeaderSize = 1 << 20

// ArtifactID identifies a built artifact. The primary artifact of an asset
// reuses the asset's ID.
type ArtifactID = uuid.UUID

// ArtifactMetadata is the header of a built artifact file.
type ArtifactMetadata struct {
	// Dependencies are artifacts that must be loaded before this one.
	Dependencies []ArtifactID
	// AssetType is the type UUID of the runtime asset the payload decodes
	// into.
	AssetType uuid.UUID
}

func (m ArtifactMetadata) encode() []byte {
	body := make([]byte, 4+16*len(m.Dependencies)+16)
	binary.LittleEndian.PutUint32(body[0:4], uint32(len(m.Dependencies)))

	offset := 4
	for _, dep := range m.Dependencies {
		copy(body[offset:offset+16], dep[:])
		offset += 16
	}

	copy(body[offset:offset+16], m.AssetType[:])

	out := make([]byte, 8+len(body))
	binary.LittleEndian.PutUint64(out[0:8], uint64(len(body)))
	copy(out[8:], body)

	return out
}

func decodeArtifactMetadata(data []byte) (ArtifactMetadata, int, error) {
	if len(data) < 8 {
		return ArtifactMetadata{}, 0, fmt.Errorf("%w: artifact header", ErrTruncated)
	}

	length := binary.LittleEndian.Uint64(data[0:8])
	if length > maxArtifactHeaderSize || len(data) < int(8+length) {
		return ArtifactMetadata{}, 0, fmt.Errorf("%w: artifact header length %d", ErrTruncated, length)
	}

	body := data[8 : 8+length]
	if len(body) < 20 {
		return ArtifactMetadata{}, 0, fmt.Errorf("%w: artifact header body", ErrTruncated)
	}

	depCount := int(binary.LittleEndian.Uint32(body[0:4]))
	if len(body) < 4+16*depCount+16 {
		return ArtifactMetadata{}, 0, fmt.Errorf("%w: artifact header dependencies", ErrTruncated)
	}

	meta := ArtifactMetadata{Dependencies: make([]ArtifactID, depCount)}

	offset := 4
	for i := 0; i < depCount; i++ {
		copy(meta.Dependencies[i][:], body[offset:offset+16])
		offset += 16
	}

	copy(meta.AssetType[:], body[offset:offset+16])

	return meta, int(8 + length), nil
}

// WriteArtifact writes a header-prefixed artifact payload to
// root/<fanout>/<artifact>-<hash>.bf and returns the build hash of the
// payload bytes along with the written path.
func WriteArtifact(fsys afero.Fs, root string, artifactID ArtifactID, meta ArtifactMetadata, payload []byte) (hashing.Hash64, string, error) {
	buildHash := hashing.Sum64(payload)
	path := UUIDAndHashToPath(root, artifactID, buildHash, ArtifactFileExtension)

	var out bytes.Buffer
	out.Write(meta.encode())
	out.Write(payload)

	if err := ensureParentDir(fsys, path); err != nil {
		return 0, "", err
	}

	if err := afero.WriteFile(fsys, path, out.Bytes(), 0o644); err != nil {
		return 0, "", fmt.Errorf("writing artifact %s: %w", path, err)
	}

	return buildHash, path, nil
}

// ReadArtifact reads a built artifact's metadata and payload.
func ReadArtifact(fsys afero.Fs, path string) (ArtifactMetadata, []byte, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return ArtifactMetadata{}, nil, err
	}

	meta, headerLen, err := decodeArtifactMetadata(data)
	if err != nil {
		return ArtifactMetadata{}, nil, fmt.Errorf("artifact %s: %w", path, err)
	}

	return meta, data[headerLen:], nil
}
