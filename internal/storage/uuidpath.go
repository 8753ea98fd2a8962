package storage

import (
	"encoding/hex"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// The uuid-fanout layout places a file for UUID 2d4154f7... at
// root/2/d/2d4154f7....ext: two single-hex-character directories keep any
// one directory from accumulating every file.

// hex32 renders a UUID as 32 lowercase hex characters without hyphens.
func hex32(id uuid.UUID) string {
	return hex.EncodeToString(id[:])
}

// UUIDToPath returns root/<h0>/<h1>/<hex32>.<ext> for the UUID.
func UUIDToPath(root string, id uuid.UUID, ext string) string {
	encoded := hex32(id)
	return path.Join(root, encoded[0:1], encoded[1:2], encoded+"."+ext)
}

// UUIDAndHashToPath returns root/<h0>/<h1>/<hex32>-<hex-hash>.<ext>.
func UUIDAndHashToPath(root string, id uuid.UUID, hash uint64, ext string) string {
	encoded := hex32(id)
	return path.Join(root, encoded[0:1], encoded[1:2], fmt.Sprintf("%s-%x.%s", encoded, hash, ext))
}

// PathToUUID parses a fanout path back to its UUID, rejecting paths that do
// not match the layout.
func PathToUUID(root, filePath string) (uuid.UUID, error) {
	stem, err := fanoutStem(root, filePath)
	if err != nil {
		return uuid.Nil, err
	}

	if strings.ContainsRune(stem, '-') {
		return uuid.Nil, fmt.Errorf("%w: %q carries a hash suffix", ErrNotFanoutPath, filePath)
	}

	return parseHex32(stem)
}

// PathToUUIDAndHash parses a hash-suffixed fanout path back to its UUID and
// content hash.
func PathToUUIDAndHash(root, filePath string) (uuid.UUID, uint64, error) {
	stem, err := fanoutStem(root, filePath)
	if err != nil {
		return uuid.Nil, 0, err
	}

	sep := strings.IndexByte(stem, '-')
	if sep < 0 {
		return uuid.Nil, 0, fmt.Errorf("%w: %q has no hash suffix", ErrNotFanoutPath, filePath)
	}

	id, err := parseHex32(stem[:sep])
	if err != nil {
		return uuid.Nil, 0, err
	}

	hash, err := strconv.ParseUint(stem[sep+1:], 16, 64)
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("%w: hash suffix %q", ErrNotFanoutPath, stem[sep+1:])
	}

	return id, hash, nil
}

// fanoutStem validates the fanout shape of filePath under root and returns
// the filename without directories or extension.
func fanoutStem(root, filePath string) (string, error) {
	rel := strings.TrimPrefix(path.Clean(filePath), path.Clean(root))
	rel = strings.TrimPrefix(rel, "/")

	parts := strings.Split(rel, "/")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: %q", ErrNotFanoutPath, filePath)
	}

	name := parts[2]
	if len(parts[0]) != 1 || len(parts[1]) != 1 || len(name) < 2 {
		return "", fmt.Errorf("%w: %q", ErrNotFanoutPath, filePath)
	}

	if parts[0][0] != name[0] || parts[1][0] != name[1] {
		return "", fmt.Errorf("%w: fanout directories disagree with filename in %q", ErrNotFanoutPath, filePath)
	}

	if dot := strings.IndexByte(name, '.'); dot >= 0 {
		name = name[:dot]
	} else {
		return "", fmt.Errorf("%w: %q has no extension", ErrNotFanoutPath, filePath)
	}

	return name, nil
}

func parseHex32(s string) (uuid.UUID, error) {
	if len(s) != 32 {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrUUIDParse, s)
	}

	raw, err := hex.DecodeString(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrUUIDParse, s)
	}

	var id uuid.UUID
	copy(id[:], raw)

	return id, nil
}
