package compressor

import (
	"io"

	"github.com/dsnet/compress/bzip2"
)

// bzip2Factory is ZIP method 12, backed by github.com/dsnet/compress/bzip2
// (the BZIP2 implementation the nabbar-golib/archive manifest wires in;
// stdlib compress/bzip2 has no encoder, which this module's writer path
// needs).
func bzip2Factory() *Factory {
	return &Factory{
		Name:        "bzip2",
		MethodCodes: []uint16{12},
		NewDecompressor: func(r io.Reader, _ int64) (io.ReadCloser, error) {
			return bzip2.NewReader(r, nil)
		},
		NewCompressor: func(w io.Writer, level int) (io.WriteCloser, error) {
			var cfg *bzip2.WriterConfig
			if level != 0 {
				cfg = &bzip2.WriterConfig{Level: level}
			}
			return bzip2.NewWriter(w, cfg)
		},
		Matches: func(sig []byte) bool {
			return len(sig) >= 3 && sig[0] == 'B' && sig[1] == 'Z' && sig[2] == 'h'
		},
	}
}
