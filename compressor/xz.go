package compressor

import (
	"io"

	"github.com/ulikunitz/xz"
)

// xzFactory is ZIP method 95, backed by github.com/ulikunitz/xz, the XZ
// container codec wired into both bodgit/sevenzip and nabbar-golib/archive.
func xzFactory() *Factory {
	return &Factory{
		Name:        "xz",
		MethodCodes: []uint16{95},
		NewDecompressor: func(r io.Reader, _ int64) (io.ReadCloser, error) {
			xr, err := xz.NewReader(r)
			if err != nil {
				return nil, err
			}
			return io.NopCloser(xr), nil
		},
		NewCompressor: func(w io.Writer, level int) (io.WriteCloser, error) {
			xw, err := xz.NewWriter(w)
			if err != nil {
				return nil, err
			}
			return xw, nil
		},
		Matches: func(sig []byte) bool {
			magic := []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}
			return len(sig) >= len(magic) && string(sig[:len(magic)]) == string(magic)
		},
	}
}
