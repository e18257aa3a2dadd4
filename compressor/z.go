package compressor

import (
	"compress/lzw"
	"fmt"
	"io"
)

// zMagic is the 2-byte magic of the classic Unix "compress" (.Z) format.
var zMagic = [2]byte{0x1f, 0x9d}

// zFactory is the "z" textual codec (Unix compress, LZW). No pack library
// in the retrieval pack implements this legacy format; it is the one
// codec in this registry built directly on the standard library
// (compress/lzw), per the justification SPEC_FULL.md requires when no
// third-party implementation is available.
func zFactory() *Factory {
	return &Factory{
		Name: "z",
		NewDecompressor: func(r io.Reader, _ int64) (io.ReadCloser, error) {
			var header [3]byte
			if _, err := io.ReadFull(r, header[:]); err != nil {
				return nil, err
			}
			if header[0] != zMagic[0] || header[1] != zMagic[1] {
				return nil, fmt.Errorf("compressor: not a .Z stream")
			}
			return lzw.NewReader(r, lzw.LSB, 8), nil
		},
		Matches: func(sig []byte) bool {
			return len(sig) >= 2 && sig[0] == zMagic[0] && sig[1] == zMagic[1]
		},
	}
}
