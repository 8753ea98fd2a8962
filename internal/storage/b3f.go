package storage

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Basic Binary Block Format (B3F).
//
// Layout:
//
//	[4]  magic 0xBB33FF00
//	[4]  file tag (4 arbitrary user bytes)
//	[4]  version (user meaning)
//	[4]  block count n
//	[8]  u64 zero
//	[8n] u64 ending offset of each block, relative to the data area
//	[x]  pad to 16-byte offset
//	[..] block bytes, each padded to a 16-byte boundary
//
// The u64 zero plus the n end offsets form an (n+1)-element array: block i
// spans [align16(end[i-1]), end[i]) within the data area. Block locations
// are computable from the header alone, and 16-byte alignment lets a reader
// reinterpret a block as 128-bit-aligned data without copying.
//
// All integers are little-endian. A reader that sees the byte-swapped magic
// refuses with ErrByteSwapped rather than swapping.

const (
	b3fMagic        = 0xBB33FF00
	b3fMagicSwapped = 0x00FF33BB
	b3fHeaderSize   = 16
	b3fBlockLenSize = 8
	b3fAlignment    = 16
)

func alignUp16(v int) int {
	return (v + b3fAlignment - 1) / b3fAlignment * b3fAlignment
}

// B3FWriter encodes a sequence of byte blocks into the B3F container.
type B3FWriter struct {
	tag     [4]byte
	version uint32
	blocks  [][]byte
}

// NewB3FWriter returns a writer for the given user tag and version.
func NewB3FWriter(tag [4]byte, version uint32) *B3FWriter {
	return &B3FWriter{tag: tag, version: version}
}

// AddBlock appends a block. The slice is not copied; it must stay valid
// until Write returns.
func (w *B3FWriter) AddBlock(data []byte) {
	w.blocks = append(w.blocks, data)
}

// Write encodes the container.
func (w *B3FWriter) Write(out io.Writer) error {
	var scratch [8]byte

	writeU32 := func(v uint32) error {
		binary.LittleEndian.PutUint32(scratch[:4], v)
		_, err := out.Write(scratch[:4])

		return err
	}

	writeU64 := func(v uint64) error {
		binary.LittleEndian.PutUint64(scratch[:8], v)
		_, err := out.Write(scratch[:8])

		return err
	}

	if err := writeU32(b3fMagic); err != nil {
		return err
	}

	if _, err := out.Write(w.tag[:]); err != nil {
		return err
	}

	if err := writeU32(w.version); err != nil {
		return err
	}

	if err := writeU32(uint32(len(w.blocks))); err != nil {
		return err
	}

	// Single u64 zero, then each block's ending offset. The next block
	// begins at the previous end rounded up to 16.
	if err := writeU64(0); err != nil {
		return err
	}

	blockBegin := 0
	for _, block := range w.blocks {
		blockEnd := blockBegin + len(block)
		if err := writeU64(uint64(blockEnd)); err != nil {
			return err
		}

		blockBegin = alignUp16(blockEnd)
	}

	// Pad the offset table so block 0 starts 16-byte aligned.
	offsetTableEnd := b3fHeaderSize + (len(w.blocks)+1)*b3fBlockLenSize
	if pad := alignUp16(offsetTableEnd) - offsetTableEnd; pad > 0 {
		if _, err := out.Write(make([]byte, pad)); err != nil {
			return err
		}
	}

	var padding [b3fAlignment]byte

	for _, block := range w.blocks {
		if _, err := out.Write(block); err != nil {
			return err
		}

		if rem := len(block) % b3fAlignment; rem != 0 {
			if _, err := out.Write(padding[:b3fAlignment-rem]); err != nil {
				return err
			}
		}
	}

	return nil
}

// B3FReader decodes a B3F container held in memory.
type B3FReader struct {
	data       []byte
	tag        [4]byte
	version    uint32
	blockCount int
}

// NewB3FReader validates the header of data and returns a reader over it.
func NewB3FReader(data []byte) (*B3FReader, error) {
	if len(data) < b3fHeaderSize+b3fBlockLenSize {
		return nil, fmt.Errorf("%w: %d bytes is too short for a b3f header", ErrTruncated, len(data))
	}

	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic != b3fMagic {
		if magic == b3fMagicSwapped {
			return nil, ErrByteSwapped
		}

		return nil, fmt.Errorf("%w: 0x%08X", ErrBadMagic, magic)
	}

	r := &B3FReader{data: data}
	copy(r.tag[:], data[4:8])
	r.version = binary.LittleEndian.Uint32(data[8:12])
	r.blockCount = int(binary.LittleEndian.Uint32(data[12:16]))

	if len(data) < b3fHeaderSize+(r.blockCount+1)*b3fBlockLenSize {
		return nil, fmt.Errorf("%w: offset table exceeds file size", ErrTruncated)
	}

	return r, nil
}

// Tag returns the 4-byte user tag.
func (r *B3FReader) Tag() [4]byte { return r.tag }

// Version returns the user version field.
func (r *B3FReader) Version() uint32 { return r.version }

// BlockCount returns the number of blocks.
func (r *B3FReader) BlockCount() int { return r.blockCount }

// blockLocation computes the [begin, end) byte range of block index within
// the file, without touching block bodies.
func (r *B3FReader) blockLocation(index int) (int, int, error) {
	if index < 0 || index >= r.blockCount {
		return 0, 0, fmt.Errorf("%w: block %d of %d", ErrTruncated, index, r.blockCount)
	}

	offsetBase := b3fHeaderSize + index*b3fBlockLenSize
	begin := int(binary.LittleEndian.Uint64(r.data[offsetBase : offsetBase+8]))
	end := int(binary.LittleEndian.Uint64(r.data[offsetBase+8 : offsetBase+16]))

	begin = alignUp16(begin)
	dataOffset := alignUp16(b3fHeaderSize + (r.blockCount+1)*b3fBlockLenSize)

	if dataOffset+end > len(r.data) || begin > end {
		return 0, 0, fmt.Errorf("%w: block %d spans past end of file", ErrTruncated, index)
	}

	return dataOffset + begin, dataOffset + end, nil
}

// ReadBlock returns block index's bytes (trailing padding excluded). The
// returned slice aliases the reader's data.
func (r *B3FReader) ReadBlock(index int) ([]byte, error) {
	begin, end, err := r.blockLocation(index)
	if err != nil {
		return nil, err
	}

	return r.data[begin:end], nil
}
