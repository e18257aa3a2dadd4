package zip

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/kirasys/archivekit/compressor"
	"github.com/kirasys/archivekit/internal/binutil"
)

// OpenOptions configures a Reader.
type OpenOptions struct {
	// Encoding decodes raw name/comment bytes when the UTF-8 flag is
	// clear and no Unicode extra field applies. Defaults to UTF-8.
	Encoding func([]byte) string

	// UseUnicodeExtra enables the Unicode path/comment extra-field
	// override described in spec.md §4.2/§4.3. Default true.
	UseUnicodeExtra bool

	// IgnoreLocalHeaderExtra skips parsing the local header's own extra
	// field (sizes are always taken from the central directory, never the
	// local header; spec.md §4.3 step 4).
	IgnoreLocalHeaderExtra bool

	// Registry resolves compression methods. Defaults to
	// compressor.NewRegistry().
	Registry *compressor.Registry

	// CaseInsensitiveNames makes GetEntries match names case-insensitively.
	CaseInsensitiveNames bool

	// MemoryLimitKB bounds, per entry, both how much a buffering
	// decompressor may allocate and how many decompressed bytes may be
	// read, whatever the method; 0 means unbounded.
	MemoryLimitKB int64
}

func (o *OpenOptions) decodeFunc() func([]byte) string {
	if o != nil && o.Encoding != nil {
		return o.Encoding
	}
	return func(b []byte) string { return string(b) }
}

func (o *OpenOptions) registry() *compressor.Registry {
	if o != nil && o.Registry != nil {
		return o.Registry
	}
	return compressor.NewRegistry()
}

func defaultOpenOptions() *OpenOptions {
	return &OpenOptions{UseUnicodeExtra: true}
}

// Reader provides random access to a ZIP archive's entries, resolving
// local headers lazily on first data request (spec.md §4.3).
type Reader struct {
	src      io.ReaderAt
	size     int64
	closer   io.Closer
	opts     *OpenOptions
	entries  []*Entry
	byName   map[string][]*Entry
	comment  []byte
	isZip64  bool
}

// Open opens a seekable ZIP archive from src, which must support both
// io.ReaderAt and io.Closer semantics via closer (pass nil if src does
// not need closing, e.g. a bytes.Reader).
func Open(src io.ReaderAt, size int64, closer io.Closer, opts *OpenOptions) (*Reader, error) {
	if opts == nil {
		opts = defaultOpenOptions()
	}
	e, eocdOffset, err := locateEOCD(src, size)
	if err != nil {
		return nil, err
	}
	if err := findZip64(src, e, eocdOffset); err != nil {
		return nil, err
	}

	entries, err := readCentralDirectory(src, int64(e.cdOffset), e.totalEntries, opts)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		src:     src,
		size:    size,
		closer:  closer,
		opts:    opts,
		entries: entries,
		comment: e.comment,
		isZip64: e.isZip64,
	}
	r.buildIndex()
	return r, nil
}

// OpenSegments opens a split/spanned archive given the path to its final
// .zip segment: it discovers the sibling .zNN segments, opens them all,
// validates the spanning signature, and proceeds as Open.
func OpenSegments(finalZipPath string, opts *OpenOptions) (*Reader, error) {
	paths, err := DiscoverSegments(finalZipPath)
	if err != nil {
		return nil, err
	}
	segs, err := OpenSegmentFiles(paths)
	if err != nil {
		return nil, err
	}
	sr, err := newSegmentReader(segs)
	if err != nil {
		for _, s := range segs {
			s.Close()
		}
		return nil, err
	}
	if err := sr.validateSplitSignature(); err != nil {
		sr.Close()
		return nil, err
	}
	r, err := Open(&readerAtSeeker{sr}, sr.Size(), sr, opts)
	if err != nil {
		sr.Close()
		return nil, err
	}
	return r, nil
}

// readerAtSeeker adapts a segmentReader (an io.ReadSeeker) to io.ReaderAt
// for random-access use by the central-directory walk and local-header
// resolution, which both address the archive by absolute offset.
type readerAtSeeker struct {
	sr *segmentReader
}

func (s *readerAtSeeker) ReadAt(p []byte, off int64) (int, error) {
	if _, err := s.sr.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(s.sr, p)
}

func (r *Reader) buildIndex() {
	r.byName = make(map[string][]*Entry, len(r.entries))
	for _, e := range r.entries {
		key := r.indexKey(e.Name)
		r.byName[key] = append(r.byName[key], e)
	}
}

func (r *Reader) indexKey(name string) string {
	if r.opts.CaseInsensitiveNames {
		return strings.ToLower(name)
	}
	return name
}

// Entries returns every entry in central-directory order.
func (r *Reader) Entries() []*Entry { return r.entries }

// Comment returns the archive-level EOCD comment.
func (r *Reader) Comment() []byte { return r.comment }

// GetEntries returns every entry with the given name, in
// central-directory order (duplicates are preserved, per spec.md §4.3).
func (r *Reader) GetEntries(name string) []*Entry {
	return r.byName[r.indexKey(name)]
}

// Close releases the underlying source, if any.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// resolveLocal seeks to the entry's local header, validates its
// signature, and skips past its name/extra fields to find the data
// offset. Sizes are always taken from the central directory, never
// recomputed from the local header (spec.md §4.3 step 4).
func (r *Reader) resolveLocal(e *Entry) error {
	if e.dataResolved {
		return nil
	}
	hdr := make([]byte, fileHeaderLen)
	if _, err := r.src.ReadAt(hdr, int64(e.LocalHeaderOffset)); err != nil {
		return wrapFormatError("reading local file header", err)
	}
	if binary.LittleEndian.Uint32(hdr[0:4]) != fileHeaderSignature {
		return newFormatError("local file header has wrong signature")
	}
	b := binutil.ReadBuf(hdr[26:])
	nameLen := int(b.Uint16())
	extraLen := int(b.Uint16())

	if !r.opts.IgnoreLocalHeaderExtra && extraLen > 0 {
		extraBuf := make([]byte, extraLen)
		if _, err := r.src.ReadAt(extraBuf, int64(e.LocalHeaderOffset)+fileHeaderLen+int64(nameLen)); err != nil {
			return wrapFormatError("reading local extra field", err)
		}
		fields, err := ParseExtraFields(extraBuf)
		if err != nil {
			return err
		}
		e.LocalExtra = fields
	}

	e.dataOffset = int64(e.LocalHeaderOffset) + fileHeaderLen + int64(nameLen) + int64(extraLen)
	e.dataResolved = true
	return nil
}

// GetRawInputStream returns the entry's compressed bytes, unverified and
// undecompressed.
func (r *Reader) GetRawInputStream(e *Entry) (io.Reader, error) {
	if err := r.resolveLocal(e); err != nil {
		return nil, err
	}
	return newBoundedReader(io.NewSectionReader(r.src, e.dataOffset, int64(e.CompressedSize64)), int64(e.CompressedSize64)), nil
}

// SectionReader returns a seekable view of the entry's raw (compressed)
// bytes. Unlike GetRawInputStream, the result supports Seek, which lets
// callers like Archive.ServeHTTP hand a STORED entry straight to
// http.ServeContent for Range support.
func (r *Reader) SectionReader(e *Entry) (*io.SectionReader, error) {
	if err := r.resolveLocal(e); err != nil {
		return nil, err
	}
	return io.NewSectionReader(r.src, e.dataOffset, int64(e.CompressedSize64)), nil
}

// GetInputStream composes the entry's decompressed, CRC-verified stream:
// BoundedInputStream(compressed slice) -> decompressor -> CRC-verifying
// reader, per spec.md §4.3 step 5. If e is encrypted, an
// UnsupportedFeatureError is returned immediately.
func (r *Reader) GetInputStream(e *Entry) (io.ReadCloser, error) {
	if e.Encrypted() {
		return nil, &UnsupportedFeatureError{Feature: "encrypted entry"}
	}
	raw, err := r.GetRawInputStream(e)
	if err != nil {
		return nil, err
	}
	factory, ok := r.opts.registry().ByCode(e.Method)
	if !ok || !factory.InputAvailable() {
		return nil, &UnsupportedFeatureError{Feature: fmt.Sprintf("compression method %d", e.Method)}
	}
	limitBytes := r.opts.memoryLimitBytes()
	decomp, err := factory.NewDecompressor(raw, limitBytes)
	if err != nil {
		return nil, asMemoryLimitErr(err, r.opts.MemoryLimitKB)
	}
	var decompressed io.Reader = decomp
	if limitBytes > 0 {
		decompressed = newMemoryLimitingReader(decomp, r.opts.MemoryLimitKB, limitBytes)
	}
	verifying := newCRCVerifyingReader(decompressed, e.Name, e.CRC32, int64(e.UncompressedSize64))
	return &composedReader{Reader: verifying, inner: decomp}, nil
}

// composedReader reads through the CRC-verifying wrapper; Close closes
// the decompressor beneath it.
type composedReader struct {
	io.Reader
	inner io.ReadCloser
}

func (c *composedReader) Close() error { return c.inner.Close() }
