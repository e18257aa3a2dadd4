package zip

import (
	"errors"
	"hash/crc32"
	"io"
	"strings"

	"github.com/kirasys/archivekit/compressor"
	"github.com/kirasys/archivekit/internal/binutil"
)

// Zip64Policy controls when the Writer escalates an entry (or the
// archive summary records) to ZIP64 extra fields (spec.md §4.5 step 3).
type Zip64Policy int

const (
	// Zip64AsNeeded writes ZIP64 structures only when a size, offset, or
	// entry count would overflow its 32-bit field.
	Zip64AsNeeded Zip64Policy = iota
	// Zip64Always always writes ZIP64 extras and the ZIP64 EOCD/locator.
	Zip64Always
	// Zip64Never fails if a ZIP64 structure would be required.
	Zip64Never
)

// UnicodeExtraPolicy controls whether the Writer attaches a Unicode
// path/comment extra field next to the encoded name (spec.md §4.5 step
// 2, §9).
type UnicodeExtraPolicy int

const (
	UnicodeExtraNever UnicodeExtraPolicy = iota
	UnicodeExtraAlways
	// UnicodeExtraNotEncodeable emits the extra only when the encoded name
	// bytes differ from the name's UTF-8 bytes. It does not decode those
	// bytes again, so it does not check whether the configured encoding
	// could round-trip the name losslessly.
	UnicodeExtraNotEncodeable
)

// WriterOptions configures a Writer.
type WriterOptions struct {
	Comment string

	// Encode converts a name/comment string to its on-disk bytes (e.g.
	// CP437). Defaults to UTF-8 passthrough.
	Encode func(string) []byte
	// EncodingName is returned by Writer.Encoding; purely informational
	// (e.g. "UTF-8", or "" for the platform default).
	EncodingName string

	UseZip64                 Zip64Policy
	UseLanguageEncodingFlag  bool
	CreateUnicodeExtraFields UnicodeExtraPolicy
	FallbackToUTF8           bool

	// WriteExtendedTimestamps attaches an extended-timestamp extra field
	// (0x5455, mtime only) to every entry, so readers that prefer it over
	// the DOS-resolution Modified field can recover full time precision.
	WriteExtendedTimestamps bool

	// Level is the default deflate level (0-9); 0 means the codec's
	// default.
	Level int
	// Method is the compression method used for every non-directory entry
	// whose Method is Store (zero); when it is non-zero, an entry cannot
	// select Store explicitly.
	Method uint16

	Registry *compressor.Registry
}

func (o *WriterOptions) registry() *compressor.Registry {
	if o.Registry != nil {
		return o.Registry
	}
	return compressor.NewRegistry()
}

func (o *WriterOptions) encode(s string) []byte {
	if o.Encode != nil {
		return o.Encode(s)
	}
	return []byte(s)
}

func defaultWriterOptions() *WriterOptions {
	return &WriterOptions{EncodingName: "UTF-8"}
}

// Writer builds a ZIP archive. The destination may be a pure io.Writer
// (stream-only) or additionally implement io.Seeker/io.ReaderAt, which
// enables the seek-back size/CRC patching path (spec.md §4.5).
type Writer struct {
	cw       *countWriter
	seeker   io.Seeker
	opts     *WriterOptions
	putOrder []*writtenEntry
	current  *openEntry
	finished bool
}

type writtenEntry struct {
	*Entry
	offset      uint64
	extraCDOnly []byte // extra bytes appended for the central-directory copy only (e.g. zip64)
}

type openEntry struct {
	entry            *Entry
	localOffset      int64
	nonSeekableDescr bool
	zip64Reserved    bool
	zip64PatchOffset int64 // file offset of the reserved zip64 extra payload, for seek-back patch
	crc              uint32
	uncompressedN    int64
	compressedCW     *countWriter
	comp             io.WriteCloser
}

// NewWriter creates a Writer over dst. If dst implements io.Seeker, the
// Writer uses the seek-back patching protocol; otherwise every entry with
// an unknown size uses a trailing data descriptor.
func NewWriter(dst io.Writer, opts *WriterOptions) *Writer {
	if opts == nil {
		opts = defaultWriterOptions()
	}
	w := &Writer{cw: &countWriter{w: dst}, opts: opts}
	if s, ok := dst.(io.Seeker); ok {
		w.seeker = s
	}
	return w
}

// IsSeekable reports whether the destination supports the seek-back
// patching protocol.
func (w *Writer) IsSeekable() bool { return w.seeker != nil }

// Encoding returns the writer's configured encoding name.
func (w *Writer) Encoding() string { return w.opts.EncodingName }

// PutEntry begins writing a new entry. The previous entry, if any, must
// already be closed with CloseEntry.
func (w *Writer) PutEntry(e *Entry) error {
	if w.finished {
		return &IllegalStateError{Op: "putEntry after finish"}
	}
	if w.current != nil {
		return &IllegalStateError{Op: "putEntry without closing previous entry"}
	}
	if len(e.Name) > uint16max {
		return errLongName
	}

	method := e.Method
	if method == Store && w.opts.Method != 0 && !strings.HasSuffix(e.Name, "/") {
		method = w.opts.Method
	}
	e.Method = method

	factory, ok := w.opts.registry().ByCode(method)
	if !ok || !factory.OutputAvailable() {
		return &UnsupportedFeatureError{Feature: "compression method has no writer"}
	}

	isDir := strings.HasSuffix(e.Name, "/")
	if isDir {
		e.Method = Store
		e.CompressedSize64 = 0
		e.UncompressedSize64 = 0
	}

	nameRaw, nameIsUTF8 := w.encodeName(e)
	e.NameRaw = nameRaw
	if nameIsUTF8 {
		e.Flags |= flagUTF8
	} else {
		e.Flags &^= flagUTF8
	}

	e.CreatorVersion = e.CreatorVersion&0xff00 | zipVersion20
	e.ReaderVersion = zipVersion20

	sizeKnown := e.UncompressedSize64 != 0 || isDir
	nonSeekable := w.seeker == nil

	if method == Store && nonSeekable && !sizeKnown {
		return &IllegalStateError{Op: "Store on non-seekable output requires a known size and CRC before putEntry"}
	}
	if method == Store && sizeKnown {
		// compressed size always equals uncompressed size for Store; fix it
		// up now so a header written eagerly (non-seekable path) carries the
		// right value instead of a stale zero.
		e.CompressedSize64 = e.UncompressedSize64
	}

	oe := &openEntry{entry: e, localOffset: w.cw.count}

	reserveZip64 := w.opts.UseZip64 == Zip64Always ||
		(w.opts.UseZip64 == Zip64AsNeeded && e.UncompressedSize64 >= uint32max)

	// commonExtra carries forward into the central-directory record too
	// (via e.LocalExtra, see writeCentralRecord); the zip64 placeholder
	// below does not, since the central copy gets its own zip64 extra
	// with the local header offset folded in.
	var commonExtra []byte
	if w.opts.CreateUnicodeExtraFields != UnicodeExtraNever {
		if w.shouldAddUnicodeExtra(e.Name, nameRaw) {
			commonExtra = append(commonExtra, makeUnicodeExtra(tagUnicodePath, nameRaw, e.Name)...)
		}
	}
	if w.opts.WriteExtendedTimestamps {
		commonExtra = append(commonExtra, makeExtTimestampExtra(e.Modified, false)...)
	}
	e.LocalExtra, _ = ParseExtraFields(commonExtra)
	e.Extra = e.LocalExtra

	extra := append([]byte(nil), commonExtra...)
	var zip64PatchOffset int64
	if reserveZip64 {
		placeholder := makeZip64Extra(0, 0, 0, false)
		e.ReaderVersion = zipVersion45
		// zip64PatchOffset points past the placeholder's own tag+len header,
		// at the start of its 16-byte usize/csize payload.
		zip64PatchOffset = w.cw.count + fileHeaderLen + int64(len(nameRaw)) + int64(len(extra)) + 4
		extra = append(extra, placeholder...)
	}

	if !isDir {
		e.Flags |= flagDataDescriptor
		if w.seeker != nil || sizeKnown {
			e.Flags &^= flagDataDescriptor
		}
	} else {
		e.Flags &^= flagDataDescriptor
	}
	oe.nonSeekableDescr = nonSeekable && e.Flags&flagDataDescriptor != 0
	oe.zip64Reserved = reserveZip64
	oe.zip64PatchOffset = zip64PatchOffset

	if err := w.writeLocalHeader(e, nameRaw, extra); err != nil {
		return err
	}

	var underlying io.Writer = w.cw
	oe.compressedCW = &countWriter{w: underlying}
	comp, err := factory.NewCompressor(oe.compressedCW, w.opts.Level)
	if err != nil {
		return err
	}
	oe.comp = comp
	w.current = oe
	return nil
}

// shouldAddUnicodeExtra applies the CreateUnicodeExtraFields policy.
func (w *Writer) shouldAddUnicodeExtra(name string, raw []byte) bool {
	switch w.opts.CreateUnicodeExtraFields {
	case UnicodeExtraAlways:
		return true
	case UnicodeExtraNotEncodeable:
		return string(raw) != name
	default:
		return false
	}
}

// encodeName encodes e.Name per the writer's configured encoding,
// applying the fallback-to-UTF-8 policy from spec.md §4.5 step 2.
func (w *Writer) encodeName(e *Entry) (raw []byte, isUTF8 bool) {
	if e.NonUTF8 {
		return w.opts.encode(e.Name), false
	}
	valid, require := detectUTF8(e.Name)
	if require && valid {
		return []byte(e.Name), true
	}
	if w.opts.FallbackToUTF8 {
		candidate := w.opts.encode(e.Name)
		if string(candidate) != e.Name && !require {
			return candidate, false
		}
	}
	return w.opts.encode(e.Name), false
}

func (w *Writer) writeLocalHeader(e *Entry, nameRaw, extra []byte) error {
	if len(extra) > uint16max {
		return errLongExtra
	}
	var buf [fileHeaderLen]byte
	b := binutil.WriteBuf(buf[:])
	b.Uint32(fileHeaderSignature)
	b.Uint16(e.ReaderVersion)
	b.Uint16(e.Flags)
	b.Uint16(e.Method)
	date, tm := timeToDOS(e.Modified)
	b.Uint16(tm)
	b.Uint16(date)
	if e.Flags&flagDataDescriptor != 0 {
		b.Uint32(0)
		b.Uint32(0)
		b.Uint32(0)
	} else {
		b.Uint32(e.CRC32)
		b.Uint32(uint32(e.CompressedSize64))
		b.Uint32(uint32(e.UncompressedSize64))
	}
	b.Uint16(uint16(len(nameRaw)))
	b.Uint16(uint16(len(extra)))
	if _, err := w.cw.Write(buf[:]); err != nil {
		return err
	}
	if _, err := w.cw.Write(nameRaw); err != nil {
		return err
	}
	_, err := w.cw.Write(extra)
	return err
}

// Write streams uncompressed bytes into the currently open entry.
func (w *Writer) Write(p []byte) (int, error) {
	if w.current == nil {
		return 0, &IllegalStateError{Op: "write without putEntry"}
	}
	n, err := w.current.comp.Write(p)
	w.current.crc = crc32.Update(w.current.crc, crc32.IEEETable, p[:n])
	w.current.uncompressedN += int64(n)
	return n, err
}

// CloseEntry finalizes the currently open entry: flushes the compressor,
// then either seeks back to patch the local header (seekable
// destination) or appends a trailing data descriptor (non-seekable).
func (w *Writer) CloseEntry() error {
	if w.current == nil {
		return &IllegalStateError{Op: "closeEntry without putEntry"}
	}
	oe := w.current
	w.current = nil
	e := oe.entry

	if err := oe.comp.Close(); err != nil {
		return err
	}

	if e.UncompressedSize64 == 0 {
		e.UncompressedSize64 = uint64(oe.uncompressedN)
	}
	if e.CompressedSize64 == 0 {
		e.CompressedSize64 = uint64(oe.compressedCW.count)
	}
	if e.CRC32 == 0 {
		e.CRC32 = oe.crc
	}
	e.LocalHeaderOffset = uint64(oe.localOffset)

	overflow := e.isZip64()
	if overflow && w.opts.UseZip64 == Zip64Never {
		return &UnsupportedFeatureError{Feature: "entry requires ZIP64 under Never policy"}
	}

	if oe.nonSeekableDescr {
		return w.writeDataDescriptor(e, overflow)
	}

	if overflow && !oe.zip64Reserved {
		if w.seeker == nil {
			return &UnsupportedFeatureError{Feature: "ZIP64 required but not preallocated on non-seekable output"}
		}
		return &UnsupportedFeatureError{Feature: "ZIP64 required but not preallocated (set UseZip64=Always, or predeclare entry size, to reserve it)"}
	}

	if w.seeker != nil {
		return w.patchLocalHeader(oe)
	}
	w.putOrder = append(w.putOrder, &writtenEntry{Entry: e, offset: uint64(oe.localOffset)})
	return nil
}

func (w *Writer) writeDataDescriptor(e *Entry, zip64 bool) error {
	var buf []byte
	if zip64 {
		buf = make([]byte, 4+4+8+8)
	} else {
		buf = make([]byte, 4+4+4+4)
	}
	b := binutil.WriteBuf(buf)
	b.Uint32(dataDescriptorSignature)
	b.Uint32(e.CRC32)
	if zip64 {
		b.Uint64(e.CompressedSize64)
		b.Uint64(e.UncompressedSize64)
	} else {
		b.Uint32(uint32(e.CompressedSize64))
		b.Uint32(uint32(e.UncompressedSize64))
	}
	if _, err := w.cw.Write(buf); err != nil {
		return err
	}
	w.putOrder = append(w.putOrder, &writtenEntry{Entry: e, offset: uint64(e.LocalHeaderOffset)})
	return nil
}

// patchLocalHeader seeks back to the fixed-width crc/csize/usize window
// (and, if reserved, the zip64 placeholder) and overwrites it with the
// now-known final values, then returns the stream position to the
// current end of the archive.
func (w *Writer) patchLocalHeader(oe *openEntry) error {
	e := oe.entry
	end := w.cw.count

	var buf [12]byte
	b := binutil.WriteBuf(buf[:])
	b.Uint32(e.CRC32)
	if e.isZip64() || oe.zip64Reserved {
		b.Uint32(uint32max)
		b.Uint32(uint32max)
	} else {
		b.Uint32(uint32(e.CompressedSize64))
		b.Uint32(uint32(e.UncompressedSize64))
	}
	if _, err := w.seeker.Seek(oe.localOffset+14, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.cw.w.Write(buf[:]); err != nil {
		return err
	}

	if oe.zip64Reserved {
		var zbuf [16]byte
		zb := binutil.WriteBuf(zbuf[:])
		zb.Uint64(e.UncompressedSize64)
		zb.Uint64(e.CompressedSize64)
		if _, err := w.seeker.Seek(oe.zip64PatchOffset, io.SeekStart); err != nil {
			return err
		}
		if _, err := w.cw.w.Write(zbuf[:]); err != nil {
			return err
		}
	}

	if _, err := w.seeker.Seek(end, io.SeekStart); err != nil {
		return err
	}
	w.putOrder = append(w.putOrder, &writtenEntry{Entry: e, offset: uint64(oe.localOffset)})
	return nil
}

// Finish flushes the central directory, optional ZIP64 EOCD/locator, and
// the final EOCD record, in the original put order (spec.md §4.5).
func (w *Writer) Finish() error {
	if w.current != nil {
		return &IllegalStateError{Op: "finish with an entry still open"}
	}
	if w.finished {
		return &IllegalStateError{Op: "finish called twice"}
	}
	w.finished = true

	cdStart := w.cw.count
	for _, we := range w.putOrder {
		if err := w.writeCentralRecord(we); err != nil {
			return err
		}
	}
	cdSize := uint64(w.cw.count - cdStart)
	records := uint64(len(w.putOrder))

	overflow := records >= uint16max || cdSize >= uint32max || uint64(cdStart) >= uint32max
	needZip64 := w.opts.UseZip64 == Zip64Always ||
		(w.opts.UseZip64 == Zip64AsNeeded && overflow)
	if overflow && w.opts.UseZip64 == Zip64Never {
		return &UnsupportedFeatureError{Feature: "central directory requires ZIP64 under Never policy"}
	}

	if needZip64 {
		if err := w.writeZip64EOCD(records, cdSize, uint64(cdStart)); err != nil {
			return err
		}
		records, cdSize, cdStart = uint16max, uint32max, uint32max
	}

	return w.writeEOCD(records, cdSize, uint64(cdStart))
}

func (w *Writer) writeCentralRecord(we *writtenEntry) error {
	e := we.Entry
	extra := append([]byte(nil), flattenExtra(e.LocalExtra)...)

	var csize32, usize32, offset32 uint32 = uint32(e.CompressedSize64), uint32(e.UncompressedSize64), uint32(we.offset)
	if e.isZip64() || w.opts.UseZip64 == Zip64Always {
		csize32, usize32, offset32 = uint32max, uint32max, uint32max
		extra = append(extra, makeZip64Extra(e.UncompressedSize64, e.CompressedSize64, we.offset, true)...)
		if e.ReaderVersion < zipVersion45 {
			e.ReaderVersion = zipVersion45
		}
	}
	if len(extra) > uint16max {
		return errLongExtra
	}
	commentRaw := w.opts.encode(e.Comment)

	var buf [directoryHeaderLen]byte
	b := binutil.WriteBuf(buf[:])
	b.Uint32(directoryHeaderSignature)
	b.Uint16(e.CreatorVersion)
	b.Uint16(e.ReaderVersion)
	b.Uint16(e.Flags)
	b.Uint16(e.Method)
	date, tm := timeToDOS(e.Modified)
	b.Uint16(tm)
	b.Uint16(date)
	b.Uint32(e.CRC32)
	b.Uint32(csize32)
	b.Uint32(usize32)
	b.Uint16(uint16(len(e.NameRaw)))
	b.Uint16(uint16(len(extra)))
	b.Uint16(uint16(len(commentRaw)))
	b.Uint16(0) // disk number start
	b.Uint16(0) // internal attrs
	b.Uint32(e.ExternalAttrs)
	b.Uint32(offset32)
	if _, err := w.cw.Write(buf[:]); err != nil {
		return err
	}
	if _, err := w.cw.Write(e.NameRaw); err != nil {
		return err
	}
	if _, err := w.cw.Write(extra); err != nil {
		return err
	}
	_, err := w.cw.Write(commentRaw)
	return err
}

func flattenExtra(fields []ExtraField) []byte {
	var out []byte
	for _, f := range fields {
		out = append(out, appendExtraHeader(f.Tag, f.Data)...)
	}
	return out
}

func (w *Writer) writeZip64EOCD(records, cdSize, cdOffset uint64) error {
	var buf [directory64EndLen + directory64LocLen]byte
	b := binutil.WriteBuf(buf[:])
	b.Uint32(directory64EndSignature)
	b.Uint64(directory64EndLen - 12)
	b.Uint16(zipVersion45)
	b.Uint16(zipVersion45)
	b.Uint32(0)
	b.Uint32(0)
	b.Uint64(records)
	b.Uint64(records)
	b.Uint64(cdSize)
	b.Uint64(cdOffset)

	b.Uint32(directory64LocSignature)
	b.Uint32(0)
	b.Uint64(cdOffset + cdSize)
	b.Uint32(1)
	_, err := w.cw.Write(buf[:])
	return err
}

func (w *Writer) writeEOCD(records, cdSize, cdOffset uint64) error {
	if len(w.opts.Comment) > uint16max {
		return errors.New("zip: comment too long")
	}
	var buf [directoryEndLen]byte
	b := binutil.WriteBuf(buf[:])
	b.Uint32(directoryEndSignature)
	b.Uint16(0)
	b.Uint16(0)
	b.Uint16(uint16(records))
	b.Uint16(uint16(records))
	b.Uint32(uint32(cdSize))
	b.Uint32(uint32(cdOffset))
	b.Uint16(uint16(len(w.opts.Comment)))
	if _, err := w.cw.Write(buf[:]); err != nil {
		return err
	}
	_, err := w.cw.Write([]byte(w.opts.Comment))
	return err
}

// Close finishes the archive if it has not already been finished. It is
// safe to call multiple times.
func (w *Writer) Close() error {
	if w.finished {
		return nil
	}
	return w.Finish()
}
