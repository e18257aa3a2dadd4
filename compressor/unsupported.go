package compressor

import "io"

// pack200Factory and ppmdFactory register names/method codes so lookups
// resolve cleanly, but refuse on first read: no Go ecosystem library for
// either appears anywhere in the retrieval pack (see SPEC_FULL.md's
// DOMAIN STACK "not wired" list), and spec.md requires an unsupported
// entry to fail with a clear signal rather than silently vanish from the
// registry.
func pack200Factory() *Factory {
	return &Factory{
		Name: "pack200",
		NewDecompressor: func(r io.Reader, _ int64) (io.ReadCloser, error) {
			return nil, &UnsupportedMethodError{Method: "pack200"}
		},
	}
}

func ppmdFactory() *Factory {
	return &Factory{
		Name:        "ppmd",
		MethodCodes: []uint16{98},
		NewDecompressor: func(r io.Reader, _ int64) (io.ReadCloser, error) {
			return nil, &UnsupportedMethodError{Method: "ppmd"}
		},
	}
}
