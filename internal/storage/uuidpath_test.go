package storage

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDToPath_Fanout(t *testing.T) {
	id := uuid.MustParse("2d4154f7-2b3c-4223-8767-7e8d1fa70447")

	path := UUIDToPath("root", id, "af")
	assert.Equal(t, "root/2/d/2d4154f72b3c422387677e8d1fa70447.af", path)
}

func TestUUIDAndHashToPath_Fanout(t *testing.T) {
	id := uuid.MustParse("2d41f453-d622-4b2f-ab9b-c8021a6c7dde")

	path := UUIDAndHashToPath("root", id, 0x45647afbadf0c93d, "bf")
	assert.Equal(t, "root/2/d/2d41f453d6224b2fab9bc8021a6c7dde-45647afbadf0c93d.bf", path)
}

// path_to_uuid(uuid_to_path(root, u, ext), root) == u for every uuid.
func TestUUIDPath_RoundTrip(t *testing.T) {
	for i := 0; i < 32; i++ {
		id := uuid.New()

		parsed, err := PathToUUID("some/root", UUIDToPath("some/root", id, "if"))
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	}
}

func TestUUIDPath_HashRoundTrip(t *testing.T) {
	id := uuid.New()
	hash := uint64(0xdeadbeef12345678)

	parsedID, parsedHash, err := PathToUUIDAndHash("r", UUIDAndHashToPath("r", id, hash, "bf"))
	require.NoError(t, err)
	assert.Equal(t, id, parsedID)
	assert.Equal(t, hash, parsedHash)
}

func TestPathToUUID_RejectsNonFanout(t *testing.T) {
	cases := []string{
		"root/2d4154f72b3c422387677e8d1fa70447.af",       // no fanout dirs
		"root/a/b/2d4154f72b3c422387677e8d1fa70447.af",   // dirs disagree with name
		"root/2/d/not-a-uuid.af",                         // bad uuid
		"root/2/d/2d4154f72b3c422387677e8d1fa70447",      // no extension
		"root/2/d/e/2d4154f72b3c422387677e8d1fa70447.af", // too deep
	}

	for _, path := range cases {
		_, err := PathToUUID("root", path)
		assert.Error(t, err, path)
	}
}

func TestPathToUUIDAndHash_RejectsPlainPath(t *testing.T) {
	id := uuid.New()

	_, _, err := PathToUUIDAndHash("r", UUIDToPath("r", id, "af"))
	require.ErrorIs(t, err, ErrNotFanoutPath)

	_, err = PathToUUID("r", UUIDAndHashToPath("r", id, 7, "bf"))
	require.ErrorIs(t, err, ErrNotFanoutPath)
}
