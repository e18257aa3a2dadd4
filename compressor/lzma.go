package compressor

import (
	"io"

	"github.com/ulikunitz/xz/lzma"
)

// lzmaFactory is ZIP method 14, backed by github.com/ulikunitz/xz/lzma
// (the raw-LZMA codec wired into bodgit/sevenzip and nabbar-golib/archive
// for the same method family).
func lzmaFactory() *Factory {
	return &Factory{
		Name:        "lzma",
		MethodCodes: []uint16{14},
		NewDecompressor: func(r io.Reader, _ int64) (io.ReadCloser, error) {
			lr, err := lzma.NewReader(r)
			if err != nil {
				return nil, err
			}
			return io.NopCloser(lr), nil
		},
		NewCompressor: func(w io.Writer, level int) (io.WriteCloser, error) {
			lw, err := lzma.NewWriter(w)
			if err != nil {
				return nil, err
			}
			return lw, nil
		},
	}
}
