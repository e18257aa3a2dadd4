package zip

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExtraFieldsUnicodePath(t *testing.T) {
	raw := []byte("r\xc3\xa9sum\xc3\xa9.txt")
	field := makeUnicodeExtra(tagUnicodePath, raw, "résumé.txt")

	fields, err := ParseExtraFields(field)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, tagUnicodePath, fields[0].Tag)

	ue, ok := fields[0].Parsed.(*UnicodeExtra)
	require.True(t, ok)
	assert.Equal(t, "résumé.txt", ue.Value)
	assert.True(t, ue.MatchesCRC(raw))
	assert.False(t, ue.MatchesCRC([]byte("other")))
}

func TestParseExtraFieldsZip64(t *testing.T) {
	field := makeZip64Extra(1<<33, 1<<32, 12345, true)
	fields, err := ParseExtraFields(field)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, tagZip64, fields[0].Tag)

	usize, csize, offset, _, err := resolveZip64(fields[0].Data, true, true, true, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<33), usize)
	assert.Equal(t, uint64(1<<32), csize)
	assert.Equal(t, uint64(12345), offset)
}

func TestParseExtraFieldsNTFS(t *testing.T) {
	mtime := time.Date(2022, 3, 4, 5, 6, 7, 0, time.UTC)
	atime := time.Date(2022, 3, 4, 5, 6, 8, 0, time.UTC)
	ctime := time.Date(2022, 3, 4, 5, 6, 9, 0, time.UTC)
	field := makeNTFSExtra(mtime, atime, ctime)

	fields, err := ParseExtraFields(field)
	require.NoError(t, err)
	require.Len(t, fields, 1)

	ntfs, ok := fields[0].Parsed.(*NTFSExtra)
	require.True(t, ok)
	assert.WithinDuration(t, mtime, ntfs.ModTime, time.Second)
	assert.WithinDuration(t, atime, ntfs.AccessTime, time.Second)
	assert.WithinDuration(t, ctime, ntfs.CreateTime, time.Second)
}

func TestParseExtraFieldsUnixNew(t *testing.T) {
	field := makeUnixNewExtra(1000, 1000)
	fields, err := ParseExtraFields(field)
	require.NoError(t, err)
	require.Len(t, fields, 1)

	owner, ok := fields[0].Parsed.(*UnixOwnerExtra)
	require.True(t, ok)
	assert.True(t, owner.New)
	assert.Equal(t, uint64(1000), owner.UID)
	assert.Equal(t, uint64(1000), owner.GID)
}

func TestParseExtraFieldsExtendedTimestamp(t *testing.T) {
	mtime := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	field := makeExtTimestampExtra(mtime, true)
	fields, err := ParseExtraFields(field)
	require.NoError(t, err)
	require.Len(t, fields, 1)

	ts, ok := fields[0].Parsed.(*ExtendedTimestampExtra)
	require.True(t, ok)
	require.NotNil(t, ts.ModTime)
	assert.Equal(t, mtime.Unix(), ts.ModTime.Unix())
}

func TestParseExtraFieldsTruncatedLengthErrors(t *testing.T) {
	// Declares a 10-byte payload but only supplies 2.
	data := []byte{0x01, 0x00, 0x0a, 0x00, 0xAA, 0xBB}
	_, err := ParseExtraFields(data)
	assert.Error(t, err)
}

func TestParseExtraFieldsMultipleRecords(t *testing.T) {
	var combined []byte
	combined = append(combined, makeNTFSExtra(time.Now(), time.Now(), time.Now())...)
	combined = append(combined, makeUnixNewExtra(1, 1)...)

	fields, err := ParseExtraFields(combined)
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, tagNTFS, fields[0].Tag)
	assert.Equal(t, tagUnixNew, fields[1].Tag)
}
