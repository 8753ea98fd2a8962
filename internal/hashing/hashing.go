// Package hashing provides the two hash families used across the pipeline:
// 64-bit xxhash for build/property/metadata hashes and 128-bit blake3 for
// schema fingerprints, job identities, and derived artifact identities.
package hashing

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"lukechampine.com/blake3"
)

// Hash64 is a 64-bit content hash (build hashes, property hashes,
// import-data metadata hashes).
type Hash64 = uint64

// Hash128 is a 128-bit content hash (schema fingerprints, job IDs).
type Hash128 [16]byte

// UUID reinterprets the hash as a UUID for path fanout and display.
func (h Hash128) UUID() uuid.UUID {
	return uuid.UUID(h)
}

// Digest64 accumulates data into a 64-bit hash. The zero value is not
// usable; create one with NewDigest64.
type Digest64 struct {
	d *xxhash.Digest
}

// NewDigest64 returns an empty 64-bit digest.
func NewDigest64() *Digest64 {
	return &Digest64{d: xxhash.New()}
}

// Write appends raw bytes to the digest.
func (d *Digest64) Write(p []byte) {
	_, _ = d.d.Write(p)
}

// WriteString appends a string to the digest, length-prefixed so that
// adjacent strings cannot collide by concatenation.
func (d *Digest64) WriteString(s string) {
	d.WriteUint64(uint64(len(s)))
	_, _ = d.d.WriteString(s)
}

// WriteUint64 appends a little-endian uint64 to the digest.
func (d *Digest64) WriteUint64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = d.d.Write(buf[:])
}

// WriteUUID appends a UUID's raw bytes to the digest.
func (d *Digest64) WriteUUID(id uuid.UUID) {
	_, _ = d.d.Write(id[:])
}

// Sum64 returns the accumulated hash.
func (d *Digest64) Sum64() Hash64 {
	return d.d.Sum64()
}

// Sum64 hashes a single byte slice.
func Sum64(data []byte) Hash64 {
	return xxhash.Sum64(data)
}

// Digest128 accumulates data into a 128-bit hash. The zero value is not
// usable; create one with NewDigest128.
type Digest128 struct {
	h *blake3.Hasher
}

// NewDigest128 returns an empty 128-bit digest.
func NewDigest128() *Digest128 {
	return &Digest128{h: blake3.New(16, nil)}
}

// Write appends raw bytes to the digest.
func (d *Digest128) Write(p []byte) {
	_, _ = d.h.Write(p)
}

// WriteString appends a length-prefixed string to the digest.
func (d *Digest128) WriteString(s string) {
	d.WriteUint64(uint64(len(s)))
	_, _ = d.h.Write([]byte(s))
}

// WriteUint32 appends a little-endian uint32 to the digest.
func (d *Digest128) WriteUint32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, _ = d.h.Write(buf[:])
}

// WriteUint64 appends a little-endian uint64 to the digest.
func (d *Digest128) WriteUint64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = d.h.Write(buf[:])
}

// WriteUUID appends a UUID's raw bytes to the digest.
func (d *Digest128) WriteUUID(id uuid.UUID) {
	_, _ = d.h.Write(id[:])
}

// WriteHash128 appends another 128-bit hash to the digest.
func (d *Digest128) WriteHash128(h Hash128) {
	_, _ = d.h.Write(h[:])
}

// Sum128 returns the accumulated hash.
func (d *Digest128) Sum128() Hash128 {
	var out Hash128
	d.h.Sum(out[:0])
	return out
}

// Sum128 hashes a single byte slice.
func Sum128(data []byte) Hash128 {
	var out Hash128
	sum := blake3.Sum256(data)
	copy(out[:], sum[:16])
	return out
}
