package compressor

import (
	"io"

	"github.com/klauspost/compress/flate"
)

// deflateFactory is ZIP method 8, backed by klauspost/compress/flate
// (a drop-in, faster replacement for compress/flate used throughout the
// retrieval pack, e.g. xenking/zipstream imports klauspost/compress/zip).
func deflateFactory() *Factory {
	return &Factory{
		Name:        "deflate",
		MethodCodes: []uint16{8},
		NewDecompressor: func(r io.Reader, _ int64) (io.ReadCloser, error) {
			return flate.NewReader(r), nil
		},
		NewCompressor: func(w io.Writer, level int) (io.WriteCloser, error) {
			if level == 0 {
				level = flate.DefaultCompression
			}
			return flate.NewWriter(w, level)
		},
	}
}

// deflate64Factory is ZIP method 9. klauspost/compress does not implement
// Deflate64's extended window/length coding, and no other pack library
// does either; it is registered so lookups resolve, but decompression
// refuses explicitly per spec.md's "method must be recognized or
// data-read must fail with an unsupported-method signal".
func deflate64Factory() *Factory {
	return &Factory{
		Name:        "deflate64",
		MethodCodes: []uint16{9},
		NewDecompressor: func(r io.Reader, _ int64) (io.ReadCloser, error) {
			return nil, &UnsupportedMethodError{Method: "deflate64"}
		},
	}
}

// UnsupportedMethodError is returned by a registered factory that cannot
// actually decode/encode (Deflate64, PPMd, Pack200): the method code is
// recognized, but no implementation is available.
type UnsupportedMethodError struct {
	Method string
}

func (e *UnsupportedMethodError) Error() string {
	return "compressor: unsupported method: " + e.Method
}
