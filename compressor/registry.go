// Package compressor provides a pluggable registry of decompressing and
// compressing stream factories keyed by both textual method name (for
// auto-detection and the ARJ/TAR-adjacent world) and numeric ZIP method
// code (for archive/zip-family containers).
//
// A process has no implicit global registry: callers build one with
// NewRegistry, which seeds it with every built-in factory, and may
// Register additional or overriding factories before handing the
// registry to a zip.Reader/zip.Writer.
package compressor

import (
	"errors"
	"io"
)

// ErrMemoryLimitExceeded is returned by a Decompressor (or surfaced
// through the reader it returns) when honoring limitBytes would require
// buffering more than that many bytes. A limitBytes of 0 means unbounded.
var ErrMemoryLimitExceeded = errors.New("compressor: memory limit exceeded")

// Decompressor constructs a decompressing reader over r. limitBytes caps
// how much a codec that must buffer its input or output up front (e.g.
// the raw lz4-block codec) may allocate before giving up with
// ErrMemoryLimitExceeded; 0 means unbounded. Streaming codecs that never
// buffer the whole entry are free to ignore it, since the caller is
// expected to additionally bound the bytes it reads from the result.
type Decompressor func(r io.Reader, limitBytes int64) (io.ReadCloser, error)

// Compressor constructs a compressing writer over w at the given level
// (codec-specific meaning; 0 means "default").
type Compressor func(w io.Writer, level int) (io.WriteCloser, error)

// Factory describes one compression method: its canonical name, the ZIP
// method codes (if any) it answers to, and its capabilities.
type Factory struct {
	Name        string
	MethodCodes []uint16

	NewDecompressor Decompressor
	NewCompressor   Compressor

	// Matches is used for signature-based auto-detection of a standalone
	// compressed stream (as opposed to a ZIP entry, whose method is
	// already known from its header). It receives up to the first 12
	// bytes of the stream.
	Matches func(sig []byte) bool
}

// InputAvailable reports whether this factory can decompress.
func (f *Factory) InputAvailable() bool { return f.NewDecompressor != nil }

// OutputAvailable reports whether this factory can compress.
func (f *Factory) OutputAvailable() bool { return f.NewCompressor != nil }

// Registry resolves method names/codes to Factory implementations.
type Registry struct {
	byName map[string]*Factory
	byCode map[uint16]*Factory
	all    []*Factory
}

// NewRegistry builds a Registry pre-populated with every built-in codec
// (store, deflate, deflate64, bzip2, lzma, xz, zstd, snappy-framed,
// lz4-block, lz4-framed, z, pack200, ppmd). Callers may Register further
// factories; registering a name or code that already exists overrides it.
func NewRegistry() *Registry {
	r := &Registry{byName: map[string]*Factory{}, byCode: map[uint16]*Factory{}}
	for _, f := range builtinFactories() {
		r.Register(f)
	}
	return r
}

// Register adds or replaces a factory under its name and every method
// code it declares.
func (r *Registry) Register(f *Factory) {
	r.byName[f.Name] = f
	for _, code := range f.MethodCodes {
		r.byCode[code] = f
	}
	for i, old := range r.all {
		if old.Name == f.Name {
			r.all[i] = f
			return
		}
	}
	r.all = append(r.all, f)
}

// ByName looks up a factory by its canonical textual name.
func (r *Registry) ByName(name string) (*Factory, bool) {
	f, ok := r.byName[name]
	return f, ok
}

// ByCode looks up a factory by ZIP method code.
func (r *Registry) ByCode(code uint16) (*Factory, bool) {
	f, ok := r.byCode[code]
	return f, ok
}

// Detect reads sig (the first up-to-12 bytes of a standalone stream) and
// returns the first registered factory whose Matches predicate accepts
// it, in registration order.
func (r *Registry) Detect(sig []byte) (*Factory, bool) {
	for _, f := range r.all {
		if f.Matches != nil && f.Matches(sig) {
			return f, true
		}
	}
	return nil, false
}
