package arj

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeBasicHeader encodes one basic header: magic, length, payload, CRC.
func writeBasicHeader(buf *bytes.Buffer, payload []byte) {
	buf.Write(Magic[:])
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(payload)))
	buf.Write(lenBuf[:])
	buf.Write(payload)
	var crcBuf [4]byte
	binary.LittleEndian.PutUint32(crcBuf[:], crc32.ChecksumIEEE(payload))
	buf.Write(crcBuf[:])
}

// writeExtendedTerminator writes the zero-length extended-header
// terminator that follows every basic header.
func writeExtendedTerminator(buf *bytes.Buffer) {
	buf.Write([]byte{0, 0})
}

// buildFixed builds the minimum 29-byte fixed interior of a basic header.
func buildFixed(hostOS, flags, method, fileType uint8, modTime uint32, csize, usize, crc uint32) []byte {
	fixed := make([]byte, 29)
	fixed[0] = 2  // archiver version
	fixed[1] = 2  // min version to extract
	fixed[2] = hostOS
	fixed[3] = flags
	fixed[4] = method
	fixed[5] = fileType
	fixed[6] = 0 // reserved
	binary.LittleEndian.PutUint32(fixed[7:11], modTime)
	binary.LittleEndian.PutUint32(fixed[11:15], csize)
	binary.LittleEndian.PutUint32(fixed[15:19], usize)
	binary.LittleEndian.PutUint32(fixed[19:23], crc)
	binary.LittleEndian.PutUint16(fixed[23:25], 0) // filespec position
	binary.LittleEndian.PutUint16(fixed[25:27], 0) // access mode
	fixed[27] = 0                                  // first chapter
	fixed[28] = 0                                  // last chapter
	return fixed
}

// buildPayload assembles a basic header payload: first-header-size byte,
// the fixed interior, then NUL-terminated name and comment.
func buildPayload(fixed []byte, name, comment string) []byte {
	firstHdrSize := 1 + len(fixed)
	payload := make([]byte, 0, firstHdrSize+len(name)+1+len(comment)+1)
	payload = append(payload, byte(firstHdrSize))
	payload = append(payload, fixed...)
	payload = append(payload, []byte(name)...)
	payload = append(payload, 0)
	payload = append(payload, []byte(comment)...)
	payload = append(payload, 0)
	return payload
}

func buildArchive(content string) []byte {
	var buf bytes.Buffer

	mainFixed := buildFixed(HostUnix, 0, 0, 0, 0, 0, 0, 0)
	mainPayload := buildPayload(mainFixed, "", "")
	writeBasicHeader(&buf, mainPayload)
	writeExtendedTerminator(&buf)

	data := []byte(content)
	crc := crc32.ChecksumIEEE(data)
	entryFixed := buildFixed(HostUnix, 0, MethodStored, FileTypeText, 0, uint32(len(data)), uint32(len(data)), crc)
	entryPayload := buildPayload(entryFixed, "hello.txt", "")
	writeBasicHeader(&buf, entryPayload)
	writeExtendedTerminator(&buf)
	buf.Write(data)

	// terminating zero-length header
	buf.Write(Magic[:])
	buf.Write([]byte{0, 0})

	return buf.Bytes()
}

func TestReaderReadsStoredEntry(t *testing.T) {
	archive := buildArchive("hello, arj")
	r, err := NewReader(bytes.NewReader(archive), nil)
	require.NoError(t, err)
	require.NotNil(t, r.Main)
	assert.False(t, r.Main.Garbled())
	assert.False(t, r.Main.Volume())

	e, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "hello.txt", e.Name)
	assert.Equal(t, uint8(MethodStored), e.Method)
	assert.False(t, e.IsDir())

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello, arj", string(got))

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReaderRejectsGarbledArchive(t *testing.T) {
	var buf bytes.Buffer
	mainFixed := buildFixed(HostUnix, flagGarbled, 0, 0, 0, 0, 0, 0)
	mainPayload := buildPayload(mainFixed, "", "")
	writeBasicHeader(&buf, mainPayload)
	writeExtendedTerminator(&buf)

	_, err := NewReader(bytes.NewReader(buf.Bytes()), nil)
	require.Error(t, err)
	var uerr *UnsupportedFeatureError
	assert.ErrorAs(t, err, &uerr)
}

func TestReaderDetectsCRCMismatch(t *testing.T) {
	archive := buildArchive("hello, arj")
	// Corrupt one data byte after the main+local headers, leaving the
	// stored CRC stale so verification fails once the stream drains.
	dataIdx := bytes.Index(archive, []byte("hello, arj"))
	require.GreaterOrEqual(t, dataIdx, 0)
	archive[dataIdx] ^= 0xFF

	r, err := NewReader(bytes.NewReader(archive), nil)
	require.NoError(t, err)
	_, err = r.Next()
	require.NoError(t, err)

	_, err = io.ReadAll(r)
	require.Error(t, err)
	var cerr *CRCMismatchError
	assert.ErrorAs(t, err, &cerr)
}

func TestSyncToMagicSkipsOverlappingFalseStart(t *testing.T) {
	var buf bytes.Buffer
	// A false start (0x60, 0x60) immediately preceding the real magic
	// pair must not consume the second 0x60 needed to start the real one.
	buf.Write([]byte{0x60, 0x60, 0xEA})

	mainFixed := buildFixed(HostUnix, 0, 0, 0, 0, 0, 0, 0)
	mainPayload := buildPayload(mainFixed, "", "")
	var rest bytes.Buffer
	writeBasicHeader(&rest, mainPayload)
	writeExtendedTerminator(&rest)

	full := append(buf.Bytes()[:1], rest.Bytes()...)
	r, err := NewReader(bytes.NewReader(full), nil)
	require.NoError(t, err)
	assert.NotNil(t, r.Main)
}

func TestParseBasicFieldsExtendedTimestamps(t *testing.T) {
	fixed := buildFixed(HostUnix, 0, MethodStored, FileTypeBinary, 1000, 10, 10, 0)
	// Append the optional 4-byte extended file position plus the
	// 12-byte access/create/high-size extension.
	ext := make([]byte, 4+12)
	binary.LittleEndian.PutUint32(ext[4:8], 2000)    // access time
	binary.LittleEndian.PutUint32(ext[8:12], 3000)   // create time
	binary.LittleEndian.PutUint32(ext[12:16], 0)     // original size high
	fixed = append(fixed, ext...)

	payload := buildPayload(fixed, "big.bin", "")
	fields, name, _, err := parseBasicFields(payload, decodeCP437)
	require.NoError(t, err)
	assert.Equal(t, "big.bin", name)
	assert.Equal(t, int64(2000), fields.accessTime.Unix())
	assert.Equal(t, int64(3000), fields.createTime.Unix())
}
