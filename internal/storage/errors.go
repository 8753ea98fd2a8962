// Package storage implements the on-disk formats: the B3F binary block
// container, uuid-fanout path layout, asset JSON files (id-based and
// path-based), import-data files, header-prefixed built artifacts, and the
// published manifest. All file access goes through afero so tests run
// against in-memory filesystems.
package storage

import "errors"

// Sentinel errors for the storage subsystem.
var (
	// ErrBadMagic indicates a B3F file whose magic number or expected file
	// tag is wrong. A byte-swapped magic is reported as ErrByteSwapped.
	ErrBadMagic = errors.New("bad b3f magic")

	// ErrByteSwapped indicates a B3F file written with the opposite
	// endianness; readers refuse rather than swap.
	ErrByteSwapped = errors.New("b3f file is byte-swapped")

	// ErrBadVersion indicates an unsupported format version.
	ErrBadVersion = errors.New("unsupported format version")

	// ErrTruncated indicates a file shorter than its header promises.
	ErrTruncated = errors.New("truncated file")

	// ErrMalformedJSON indicates an unparseable JSON payload.
	ErrMalformedJSON = errors.New("malformed json")

	// ErrUUIDParse indicates an unparseable UUID in a file or path.
	ErrUUIDParse = errors.New("uuid parse failure")

	// ErrNotFanoutPath indicates a path that does not match the uuid
	// fanout layout.
	ErrNotFanoutPath = errors.New("path does not match uuid fanout layout")
)
