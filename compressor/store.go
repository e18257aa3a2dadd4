package compressor

import "io"

// storeFactory is the identity codec: ZIP method 0, no transformation.
func storeFactory() *Factory {
	return &Factory{
		Name:        "store",
		MethodCodes: []uint16{0},
		NewDecompressor: func(r io.Reader, _ int64) (io.ReadCloser, error) {
			return io.NopCloser(r), nil
		},
		NewCompressor: func(w io.Writer, level int) (io.WriteCloser, error) {
			return nopWriteCloser{w}, nil
		},
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
