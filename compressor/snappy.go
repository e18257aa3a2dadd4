package compressor

import (
	"io"

	"github.com/golang/snappy"
)

// snappyFramedFactory is the "snappy-framed" textual codec (RFC-less,
// de-facto "framing format" defined by the snappy project), backed by
// github.com/golang/snappy as wired into nabbar-golib/archive and
// Carlson-JLQ-Syft_SourceCode_Analysis.
//
// Snappy has no assigned ZIP method code, so this factory is reachable
// only by name, matching spec.md §4.7's textual-name registry entries.
func snappyFramedFactory() *Factory {
	return &Factory{
		Name: "snappy-framed",
		NewDecompressor: func(r io.Reader, _ int64) (io.ReadCloser, error) {
			return io.NopCloser(snappy.NewReader(r)), nil
		},
		NewCompressor: func(w io.Writer, level int) (io.WriteCloser, error) {
			return snappy.NewBufferedWriter(w), nil
		},
		Matches: func(sig []byte) bool {
			const magic = "\xff\x06\x00\x00sNaPpY"
			return len(sig) >= len(magic) && string(sig[:len(magic)]) == magic
		},
	}
}
