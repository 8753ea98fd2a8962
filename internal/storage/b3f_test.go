package storage

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeB3F(t *testing.T, tag [4]byte, version uint32, blocks [][]byte) []byte {
	t.Helper()

	writer := NewB3FWriter(tag, version)
	for _, block := range blocks {
		writer.AddBlock(block)
	}

	var out bytes.Buffer
	require.NoError(t, writer.Write(&out))

	return out.Bytes()
}

// Exact layout check: blocks AAA, BBBB, and seventeen C bytes with tag TEST
// version 7.
func TestB3F_Layout(t *testing.T) {
	blocks := [][]byte{
		[]byte("AAA"),
		[]byte("BBBB"),
		bytes.Repeat([]byte("C"), 17),
	}

	data := writeB3F(t, [4]byte{'T', 'E', 'S', 'T'}, 7, blocks)

	// Magic at offset 0, then tag, version, block count.
	assert.Equal(t, uint32(0xBB33FF00), binary.LittleEndian.Uint32(data[0:4]))
	assert.Equal(t, []byte("TEST"), data[4:8])
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(data[8:12]))
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(data[12:16]))

	// u64 zero, then the end offset of each block within the data area.
	// Starts round up to 16: AAA ends at 3, BBBB spans [16,20), the C
	// block spans [32,49).
	assert.Equal(t, uint64(0), binary.LittleEndian.Uint64(data[16:24]))
	assert.Equal(t, uint64(3), binary.LittleEndian.Uint64(data[24:32]))
	assert.Equal(t, uint64(16+4), binary.LittleEndian.Uint64(data[32:40]))
	assert.Equal(t, uint64(32+17), binary.LittleEndian.Uint64(data[40:48]))

	// The data area starts 16-byte aligned and the file is padded to 16.
	headerAndTable := 16 + 4*8
	dataOffset := (headerAndTable + 15) / 16 * 16
	assert.Equal(t, byte('A'), data[dataOffset])
	assert.Zero(t, len(data)%16)
}

// Reading block i from the writer's output yields exactly the input block.
func TestB3F_RoundTrip(t *testing.T) {
	cases := [][][]byte{
		{},
		{{}},
		{[]byte("one")},
		{[]byte("AAA"), []byte("BBBB"), bytes.Repeat([]byte("C"), 17)},
		{bytes.Repeat([]byte{0xAB}, 16), bytes.Repeat([]byte{0xCD}, 31), {0x01}},
	}

	for _, blocks := range cases {
		data := writeB3F(t, [4]byte{'R', 'T', 'R', 'P'}, 1, blocks)

		reader, err := NewB3FReader(data)
		require.NoError(t, err)
		assert.Equal(t, [4]byte{'R', 'T', 'R', 'P'}, reader.Tag())
		assert.Equal(t, uint32(1), reader.Version())
		require.Equal(t, len(blocks), reader.BlockCount())

		for i, expected := range blocks {
			got, readErr := reader.ReadBlock(i)
			require.NoError(t, readErr)
			assert.Equal(t, expected, got)
		}
	}
}

func TestB3F_RejectsBadMagic(t *testing.T) {
	data := writeB3F(t, [4]byte{'T', 'E', 'S', 'T'}, 1, [][]byte{[]byte("x")})
	data[0] = 0x01

	_, err := NewB3FReader(data)
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestB3F_RejectsByteSwappedMagic(t *testing.T) {
	data := writeB3F(t, [4]byte{'T', 'E', 'S', 'T'}, 1, [][]byte{[]byte("x")})

	// Simulate a foreign-endian writer by reversing the magic bytes.
	data[0], data[1], data[2], data[3] = data[3], data[2], data[1], data[0]

	_, err := NewB3FReader(data)
	require.ErrorIs(t, err, ErrByteSwapped)
}

func TestB3F_RejectsTruncated(t *testing.T) {
	data := writeB3F(t, [4]byte{'T', 'E', 'S', 'T'}, 1, [][]byte{bytes.Repeat([]byte("x"), 64)})

	_, err := NewB3FReader(data[:10])
	require.ErrorIs(t, err, ErrTruncated)

	reader, err := NewB3FReader(data[:48])
	require.NoError(t, err)

	_, err = reader.ReadBlock(0)
	require.ErrorIs(t, err, ErrTruncated)

	_, err = reader.ReadBlock(5)
	require.ErrorIs(t, err, ErrTruncated)
}
