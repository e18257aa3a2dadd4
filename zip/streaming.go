package zip

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kirasys/archivekit/compressor"
	"github.com/kirasys/archivekit/internal/binutil"
)

// StreamReader provides forward-only access to a ZIP archive's entries
// without requiring the source to seek (spec.md §4.4). Next advances to
// the next local header; the StreamReader itself is then an io.Reader
// over that entry's decompressed, CRC-verified data.
type StreamReader struct {
	io.Reader
	br   *bufio.Reader
	opts *OpenOptions
}

// NewStreamReader wraps r for sequential entry-by-entry reading.
func NewStreamReader(r io.Reader, opts *OpenOptions) *StreamReader {
	if opts == nil {
		opts = defaultOpenOptions()
	}
	return &StreamReader{br: bufio.NewReaderSize(r, 32*1024), opts: opts}
}

// Buffered returns any bytes read past the end of the zip stream (e.g.
// into a central directory it then discarded), so a caller that knows
// more non-zip data follows can recover them.
func (r *StreamReader) Buffered() io.Reader { return r.br }

// Read reads the current entry's decompressed, CRC-verified data. It
// returns an IllegalStateError if Next has not yet selected an entry.
func (r *StreamReader) Read(p []byte) (int, error) {
	if r.Reader == nil {
		return 0, &IllegalStateError{Op: "read before Next selected an entry"}
	}
	return r.Reader.Read(p)
}

// Next advances to the next entry, discarding any unread bytes of the
// current one first. It returns io.EOF once the central directory is
// reached and discarded.
func (r *StreamReader) Next() (*Entry, error) {
	if r.Reader != nil {
		if _, err := io.Copy(io.Discard, r.Reader); err != nil {
			return nil, err
		}
	}

	sig, err := r.br.Peek(4)
	if err != nil {
		return nil, err
	}
	switch binary.LittleEndian.Uint32(sig) {
	case fileHeaderSignature:
	case directoryHeaderSignature:
		return nil, r.discardCentralDirectory()
	default:
		return nil, newFormatError("unexpected signature where a local file header was expected")
	}

	hdr := make([]byte, fileHeaderLen)
	if _, err := io.ReadFull(r.br, hdr); err != nil {
		return nil, err
	}
	b := binutil.ReadBuf(hdr[4:])

	e := &Entry{}
	e.ReaderVersion = b.Uint16()
	e.Flags = b.Uint16()
	e.Method = b.Uint16()
	modTime := b.Uint16()
	modDate := b.Uint16()
	e.Modified = dosToTime(modDate, modTime)
	e.CRC32 = b.Uint32()
	csize32 := b.Uint32()
	usize32 := b.Uint32()
	e.CompressedSize64 = uint64(csize32)
	e.UncompressedSize64 = uint64(usize32)

	nameLen := int(b.Uint16())
	extraLen := int(b.Uint16())
	rest := make([]byte, nameLen+extraLen)
	if _, err := io.ReadFull(r.br, rest); err != nil {
		return nil, err
	}
	e.NameRaw = rest[:nameLen]

	if !r.opts.IgnoreLocalHeaderExtra {
		fields, err := ParseExtraFields(rest[nameLen:])
		if err != nil {
			return nil, err
		}
		e.LocalExtra = fields
		e.Extra = fields
	}
	decodeNames(e, r.opts)

	if e.Encrypted() {
		return nil, &UnsupportedFeatureError{Feature: "encrypted entry"}
	}

	factory, ok := r.opts.registry().ByCode(e.Method)
	if !ok || !factory.InputAvailable() {
		return nil, &UnsupportedFeatureError{Feature: fmt.Sprintf("compression method %d", e.Method)}
	}

	if e.HasDataDescriptor() && e.Method == Store {
		// spec.md §9: the descriptor boundary for a STORED entry in a
		// non-seekable stream cannot be found without a sentinel. Refused
		// explicitly rather than guessed at.
		return nil, &UnsupportedFeatureError{Feature: "STORED entry with data descriptor in a forward-only stream"}
	}

	var compressed io.Reader = io.LimitReader(r.br, int64(e.CompressedSize64))
	if e.HasDataDescriptor() {
		compressed = r.br
	}

	limitBytes := r.opts.memoryLimitBytes()
	decomp, err := factory.NewDecompressor(compressed, limitBytes)
	if err != nil {
		return nil, asMemoryLimitErr(err, r.opts.MemoryLimitKB)
	}

	finalize := &finalizingReader{r: decomp, inner: decomp}
	if e.HasDataDescriptor() {
		finalize.onEOF = func() error { return r.consumeDescriptor(e) }
	}
	var crcSource io.Reader = finalize
	if limitBytes > 0 {
		crcSource = newMemoryLimitingReader(finalize, r.opts.MemoryLimitKB, limitBytes)
	}
	verifying := newCRCVerifyingReaderFunc(crcSource, e.Name, func() (uint32, int64) {
		return e.CRC32, int64(e.UncompressedSize64)
	})
	r.Reader = &composedReader{Reader: verifying, inner: decomp}
	return e, nil
}

// finalizingReader runs onEOF exactly once, the first time the wrapped
// reader reports io.EOF, before that EOF is propagated. This is how a
// data-descriptor entry's trailer (CRC + sizes) gets consumed and applied
// to the entry after the decompressor has finished draining the
// compressed bytes but before CRC verification runs.
type finalizingReader struct {
	r     io.Reader
	inner io.ReadCloser
	onEOF func() error
	done  bool
}

func (f *finalizingReader) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if err == io.EOF && !f.done {
		f.done = true
		if f.onEOF != nil {
			if ferr := f.onEOF(); ferr != nil {
				return n, ferr
			}
		}
	}
	return n, err
}

// consumeDescriptor reads and validates the data descriptor that follows
// a bit-3 entry's compressed data, filling in CRC/sizes on the entry. The
// descriptor widens its size fields to 8 bytes when the local header
// reserved a ZIP64 extra field for this entry (spec.md §4.4/§6) - the
// entry's own sizes aren't known yet at this point, so that reservation
// is the only signal available for which width to read.
func (r *StreamReader) consumeDescriptor(e *Entry) error {
	zip64 := findZip64Raw(e.LocalExtra) != nil

	var sig [4]byte
	peek, err := r.br.Peek(4)
	if err != nil {
		return err
	}
	copy(sig[:], peek)
	hasSig := binary.LittleEndian.Uint32(sig[:]) == dataDescriptorSignature

	headerLen := 12
	if zip64 {
		headerLen = 20
	}
	if hasSig {
		headerLen += 4
	}
	buf := make([]byte, headerLen)
	if _, err := io.ReadFull(r.br, buf); err != nil {
		return err
	}
	b := binutil.ReadBuf(buf)
	if hasSig {
		b.Uint32()
	}
	e.CRC32 = b.Uint32()
	if zip64 {
		e.CompressedSize64 = b.Uint64()
		e.UncompressedSize64 = b.Uint64()
	} else {
		e.CompressedSize64 = uint64(b.Uint32())
		e.UncompressedSize64 = uint64(b.Uint32())
	}
	return nil
}

func (r *StreamReader) discardCentralDirectory() error {
	for {
		sig, err := r.br.Peek(4)
		if err != nil {
			return err
		}
		switch binary.LittleEndian.Uint32(sig) {
		case directoryHeaderSignature:
			if err := r.discardOneCentralRecord(); err != nil {
				return err
			}
		case directoryEndSignature:
			if err := r.discardEOCD(); err != nil {
				return err
			}
			return io.EOF
		case directory64EndSignature:
			if err := r.discardZip64EOCD(); err != nil {
				return err
			}
		case directory64LocSignature:
			if _, err := r.br.Discard(directory64LocLen); err != nil {
				return err
			}
		default:
			return newFormatError("unrecognized record while discarding central directory")
		}
	}
}

func (r *StreamReader) discardOneCentralRecord() error {
	if _, err := r.br.Discard(28); err != nil {
		return err
	}
	lenBuf, err := r.br.Peek(6)
	if err != nil {
		return err
	}
	total := int(binary.LittleEndian.Uint16(lenBuf[0:2])) +
		int(binary.LittleEndian.Uint16(lenBuf[2:4])) +
		int(binary.LittleEndian.Uint16(lenBuf[4:6]))
	_, err = r.br.Discard(18 + total)
	return err
}

func (r *StreamReader) discardEOCD() error {
	if _, err := r.br.Discard(20); err != nil {
		return err
	}
	lenBuf, err := r.br.Peek(2)
	if err != nil {
		return err
	}
	_, err = r.br.Discard(2 + int(binary.LittleEndian.Uint16(lenBuf)))
	return err
}

func (r *StreamReader) discardZip64EOCD() error {
	lenBuf, err := r.br.Peek(12)
	if err != nil {
		return err
	}
	total := 12 + binary.LittleEndian.Uint64(lenBuf[4:12])
	_, err = r.br.Discard(int(total))
	return err
}
