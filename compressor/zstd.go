package compressor

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

// zstdFactory is ZIP method 93, backed by klauspost/compress/zstd (wired
// into both bodgit/sevenzip and nabbar-golib/archive manifests).
func zstdFactory() *Factory {
	return &Factory{
		Name:        "zstd",
		MethodCodes: []uint16{93},
		NewDecompressor: func(r io.Reader, _ int64) (io.ReadCloser, error) {
			dec, err := zstd.NewReader(r)
			if err != nil {
				return nil, err
			}
			return &zstdReadCloser{dec}, nil
		},
		NewCompressor: func(w io.Writer, level int) (io.WriteCloser, error) {
			opts := []zstd.EOption{}
			if level != 0 {
				opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
			}
			return zstd.NewWriter(w, opts...)
		},
		Matches: func(sig []byte) bool {
			return len(sig) >= 4 && sig[0] == 0x28 && sig[1] == 0xB5 && sig[2] == 0x2F && sig[3] == 0xFD
		},
	}
}

// zstdReadCloser adapts *zstd.Decoder (whose Close takes no error) to
// io.ReadCloser.
type zstdReadCloser struct {
	dec *zstd.Decoder
}

func (z *zstdReadCloser) Read(p []byte) (int, error) { return z.dec.Read(p) }
func (z *zstdReadCloser) Close() error {
	z.dec.Close()
	return nil
}
