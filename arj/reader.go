package arj

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"time"

	"golang.org/x/text/encoding/charmap"
)

const maxBasicHeaderLen = 2600

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	// Decode converts raw name/comment bytes to a string. Defaults to
	// CP437, the ARJ format's default charset.
	Decode func([]byte) string
}

func (o *ReaderOptions) decode() func([]byte) string {
	if o != nil && o.Decode != nil {
		return o.Decode
	}
	return decodeCP437
}

// Reader provides forward-only access to an ARJ archive's entries
// (spec.md §4.6). The main header is parsed eagerly by NewReader;
// Next advances through the local-file headers that follow.
type Reader struct {
	br      *bufio.Reader
	decode  func([]byte) string
	Main    *MainHeader
	current *entryStream
	done    bool
}

// NewReader scans r for the main header and returns a Reader positioned
// to read the first entry.
func NewReader(r io.Reader, opts *ReaderOptions) (*Reader, error) {
	ar := &Reader{br: bufio.NewReaderSize(r, 32*1024), decode: opts.decode()}

	payload, err := ar.scanHeader()
	if err != nil {
		return nil, wrapScanError("reading main header", err)
	}
	fields, name, comment, err := parseBasicFields(payload, ar.decode)
	if err != nil {
		return nil, err
	}
	main := &MainHeader{
		ArchiverVersion:     fields.version,
		MinVersionToExtract: fields.minVersion,
		HostOS:              fields.hostOS,
		Flags:               fields.flags,
		Modified:            fields.modTime,
		Created:             fields.createTime,
		ArchiveSize:         fields.compressedSize,
		Name:                name,
		Comment:             comment,
	}
	if main.Garbled() {
		return nil, &UnsupportedFeatureError{Feature: "GARBLED (encrypted) archive"}
	}
	if main.Volume() {
		return nil, &UnsupportedFeatureError{Feature: "VOLUME (multi-volume) archive"}
	}
	extended, err := ar.readExtendedBlocks()
	if err != nil {
		return nil, err
	}
	main.Extended = extended
	ar.Main = main
	return ar, nil
}

func decodeCP437(b []byte) string {
	out, err := charmap.CodePage437.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

func wrapScanError(context string, err error) error {
	if err == io.EOF {
		return newFormatError(context + ": truncated before main header")
	}
	return &FormatError{Context: context, Err: err}
}

// Next advances to the next entry, draining and closing the current
// one's stream first. It returns io.EOF once the archive's terminating
// zero-length header is reached.
func (r *Reader) Next() (*Entry, error) {
	if r.done {
		return nil, io.EOF
	}
	if r.current != nil {
		if err := r.current.Close(); err != nil {
			return nil, err
		}
		r.current = nil
	}

	payload, err := r.scanHeader()
	if err == io.EOF {
		r.done = true
		return nil, io.EOF
	}
	if err != nil {
		return nil, wrapScanError("reading local file header", err)
	}

	fields, name, comment, err := parseBasicFields(payload, r.decode)
	if err != nil {
		return nil, err
	}
	uncompressedSize := int64(fields.originalSize)
	if fields.originalSize64 != 0 {
		uncompressedSize = int64(fields.originalSize64)
	}
	e := &Entry{
		Name:             name,
		Comment:          comment,
		HostOS:           fields.hostOS,
		Flags:            fields.flags,
		Method:           fields.method,
		Type:             fields.fileType,
		Modified:         fields.modTime,
		AccessTime:       fields.accessTime,
		CRC32:            fields.crc32,
		CompressedSize:   int64(fields.compressedSize),
		UncompressedSize: uncompressedSize,
		FileSpecPosition: fields.filespecPosition,
		FileAccessMode:   fields.accessMode,
		FirstChapter:     fields.firstChapter,
		LastChapter:      fields.lastChapter,
	}

	extended, err := r.readExtendedBlocks()
	if err != nil {
		return nil, err
	}
	e.Extended = extended

	if e.Garbled() {
		return nil, &UnsupportedFeatureError{Feature: "GARBLED (encrypted) entry"}
	}

	if e.IsDir() || e.Type == FileTypeComment {
		r.current = nil
		return e, nil
	}

	if e.Method != MethodStored {
		return nil, &UnsupportedFeatureError{Feature: "ARJ compression method other than STORED"}
	}

	bounded := &boundedReader{r: r.br, n: e.CompressedSize}
	r.current = &entryStream{bounded: bounded, entry: e}
	return e, nil
}

// Read reads from the current entry's bounded, CRC-verified stream.
func (r *Reader) Read(p []byte) (int, error) {
	if r.current == nil {
		return 0, &IllegalStateError{Op: "read without a STORED entry selected"}
	}
	return r.current.Read(p)
}

// scanHeader implements the magic-pair rolling scan plus basic-header
// length/CRC validation (spec.md §4.6). It returns io.EOF for the
// legitimate zero-length terminator header.
func (r *Reader) scanHeader() ([]byte, error) {
	for {
		if err := r.syncToMagic(); err != nil {
			return nil, err
		}
		var lenBuf [2]byte
		if _, err := io.ReadFull(r.br, lenBuf[:]); err != nil {
			return nil, err
		}
		length := binary.LittleEndian.Uint16(lenBuf[:])
		if length == 0 {
			return nil, io.EOF
		}
		if length > maxBasicHeaderLen {
			continue
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(r.br, payload); err != nil {
			return nil, err
		}
		var crcBuf [4]byte
		if _, err := io.ReadFull(r.br, crcBuf[:]); err != nil {
			return nil, err
		}
		want := binary.LittleEndian.Uint32(crcBuf[:])
		if got := crc32.ChecksumIEEE(payload); got != want {
			continue
		}
		return payload, nil
	}
}

// syncToMagic advances the stream to just past the next occurrence of
// the magic pair, using a rolling two-byte window so an overlapping
// false start (0x60, 0x60, 0xEA) is not missed.
func (r *Reader) syncToMagic() error {
	for {
		b1, err := r.br.ReadByte()
		if err != nil {
			return err
		}
		if b1 != Magic[0] {
			continue
		}
		b2, err := r.br.ReadByte()
		if err != nil {
			return err
		}
		if b2 == Magic[1] {
			return nil
		}
		if b2 == Magic[0] {
			_ = r.br.UnreadByte()
		}
	}
}

// readExtendedBlocks reads the length+payload+CRC sequence that follows
// every basic header, stopping at the zero-length terminator.
func (r *Reader) readExtendedBlocks() ([]ExtendedBlock, error) {
	var blocks []ExtendedBlock
	for {
		var lenBuf [2]byte
		if _, err := io.ReadFull(r.br, lenBuf[:]); err != nil {
			return nil, wrapFormatErrorIO("reading extended-header length", err)
		}
		length := binary.LittleEndian.Uint16(lenBuf[:])
		if length == 0 {
			return blocks, nil
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(r.br, payload); err != nil {
			return nil, wrapFormatErrorIO("reading extended-header payload", err)
		}
		var crcBuf [4]byte
		if _, err := io.ReadFull(r.br, crcBuf[:]); err != nil {
			return nil, wrapFormatErrorIO("reading extended-header CRC", err)
		}
		want := binary.LittleEndian.Uint32(crcBuf[:])
		if got := crc32.ChecksumIEEE(payload); got != want {
			return nil, &CRCMismatchError{Context: "extended header", Got: got, Expected: want}
		}
		blocks = append(blocks, ExtendedBlock{Data: payload})
	}
}

func wrapFormatErrorIO(context string, err error) error {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return &FormatError{Context: context, Err: err}
}

// basicFields is the shared fixed-layout interior common to the main
// header and every local-file header.
type basicFields struct {
	version          uint8
	minVersion       uint8
	hostOS           uint8
	flags            uint8
	method           uint8
	fileType         uint8
	modTime          time.Time
	accessTime       time.Time
	createTime       time.Time
	compressedSize   uint32
	originalSize     uint32
	originalSize64   uint64
	crc32            uint32
	filespecPosition uint16
	accessMode       uint16
	firstChapter     uint8
	lastChapter      uint8
}

// parseBasicFields decodes a basic header's fixed interior plus its
// NUL-terminated name and comment (spec.md §4.6): a 1-byte
// first-header-size followed by (size-1) fixed bytes, then the name and
// comment strings.
func parseBasicFields(payload []byte, decode func([]byte) string) (basicFields, string, string, error) {
	var f basicFields
	if len(payload) < 1 {
		return f, "", "", newFormatError("empty basic header")
	}
	firstHdrSize := int(payload[0])
	if firstHdrSize < 1 || firstHdrSize > len(payload) {
		return f, "", "", newFormatError("first-header size overruns basic header")
	}
	fixed := payload[1:firstHdrSize]
	const minFixedLen = 29
	if len(fixed) < minFixedLen {
		return f, "", "", newFormatError("basic header shorter than the minimum fixed layout")
	}

	f.version = fixed[0]
	f.minVersion = fixed[1]
	f.hostOS = fixed[2]
	f.flags = fixed[3]
	f.method = fixed[4]
	f.fileType = fixed[5]
	// fixed[6] is reserved.
	modSecs := binary.LittleEndian.Uint32(fixed[7:11])
	f.modTime = time.Unix(int64(modSecs), 0).UTC()
	f.compressedSize = binary.LittleEndian.Uint32(fixed[11:15])
	f.originalSize = binary.LittleEndian.Uint32(fixed[15:19])
	f.crc32 = binary.LittleEndian.Uint32(fixed[19:23])
	f.filespecPosition = binary.LittleEndian.Uint16(fixed[23:25])
	f.accessMode = binary.LittleEndian.Uint16(fixed[25:27])
	f.firstChapter = fixed[27]
	f.lastChapter = fixed[28]

	rest := fixed[minFixedLen:]
	if len(rest) >= 4 {
		rest = rest[4:] // extended file position, unused outside multi-volume
	}
	if len(rest) >= 12 {
		accessSecs := binary.LittleEndian.Uint32(rest[0:4])
		createSecs := binary.LittleEndian.Uint32(rest[4:8])
		origSizeHigh := binary.LittleEndian.Uint32(rest[8:12])
		f.accessTime = time.Unix(int64(accessSecs), 0).UTC()
		f.createTime = time.Unix(int64(createSecs), 0).UTC()
		f.originalSize64 = uint64(origSizeHigh)<<32 | uint64(f.originalSize)
	}

	nameComment := payload[firstHdrSize:]
	name, remainder, err := readNulString(nameComment, decode)
	if err != nil {
		return f, "", "", err
	}
	comment, _, err := readNulString(remainder, decode)
	if err != nil {
		return f, "", "", err
	}
	return f, name, comment, nil
}

func readNulString(b []byte, decode func([]byte) string) (string, []byte, error) {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return "", nil, newFormatError("name/comment not NUL-terminated")
	}
	return decode(b[:i]), b[i+1:], nil
}

// boundedReader mirrors the zip package's: reports io.ErrUnexpectedEOF on
// a short read rather than a silent truncation.
type boundedReader struct {
	r *bufio.Reader
	n int64
}

func (b *boundedReader) Read(p []byte) (int, error) {
	if b.n <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > b.n {
		p = p[:b.n]
	}
	n, err := b.r.Read(p)
	b.n -= int64(n)
	if err == io.EOF && b.n > 0 {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

// entryStream is a STORED entry's bounded, CRC-verifying stream, per
// spec.md §4.6's BoundedInputStream(CRC32VerifyingInputStream(...)).
type entryStream struct {
	bounded  *boundedReader
	entry    *Entry
	hash     uint32
	n        int64
	verified bool
}

func (s *entryStream) Read(p []byte) (int, error) {
	n, err := s.bounded.Read(p)
	if n > 0 {
		s.hash = crc32.Update(s.hash, crc32.IEEETable, p[:n])
		s.n += int64(n)
	}
	if err == io.EOF {
		if verr := s.verify(); verr != nil {
			return n, verr
		}
	}
	return n, err
}

func (s *entryStream) verify() error {
	if s.verified {
		return nil
	}
	s.verified = true
	if s.n != s.entry.UncompressedSize {
		return &SizeMismatchError{Name: s.entry.Name, Got: s.n, Expected: s.entry.UncompressedSize}
	}
	if s.hash != s.entry.CRC32 {
		return &CRCMismatchError{Context: s.entry.Name, Got: s.hash, Expected: s.entry.CRC32}
	}
	return nil
}

// Close drains any unread bytes so the underlying stream is positioned
// at the next header.
func (s *entryStream) Close() error {
	_, err := io.Copy(io.Discard, s)
	if err == io.EOF {
		err = nil
	}
	return err
}
