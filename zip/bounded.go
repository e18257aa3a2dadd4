package zip

import (
	"hash/crc32"
	"io"
)

// boundedReader limits reads to at most n bytes from the underlying
// reader, the way io.LimitReader does, but reports io.ErrUnexpectedEOF
// rather than a silent short read when the underlying source runs dry
// before n bytes have been produced.
type boundedReader struct {
	r io.Reader
	n int64
}

func newBoundedReader(r io.Reader, n int64) *boundedReader {
	return &boundedReader{r: r, n: n}
}

func (b *boundedReader) Read(p []byte) (int, error) {
	if b.n <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > b.n {
		p = p[:b.n]
	}
	n, err := b.r.Read(p)
	b.n -= int64(n)
	if err == io.EOF && b.n > 0 {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

// crcVerifyingReader wraps a decompressed entry stream, accumulating a
// running CRC-32 and a byte count. At end-of-stream it verifies both
// against the entry's declared values, surfacing a CRCMismatchError or
// SizeMismatchError instead of io.EOF when either check fails.
//
// expected is resolved lazily (not at construction time) so a streaming
// data-descriptor entry - whose CRC/size aren't known until its trailer
// has been read - can still be verified: the caller updates the entry
// before expected() is invoked, which happens only once the wrapped
// reader itself reports io.EOF.
type crcVerifyingReader struct {
	r        io.Reader
	name     string
	hash     uint32
	n        int64
	expected func() (crc uint32, size int64)
	verified bool
}

func newCRCVerifyingReader(r io.Reader, name string, expectedCRC uint32, expectedSize int64) *crcVerifyingReader {
	return &crcVerifyingReader{r: r, name: name, expected: func() (uint32, int64) { return expectedCRC, expectedSize }}
}

func newCRCVerifyingReaderFunc(r io.Reader, name string, expected func() (uint32, int64)) *crcVerifyingReader {
	return &crcVerifyingReader{r: r, name: name, expected: expected}
}

func (c *crcVerifyingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.hash = crc32.Update(c.hash, crc32.IEEETable, p[:n])
		c.n += int64(n)
	}
	if err == io.EOF {
		if verr := c.verify(); verr != nil {
			return n, verr
		}
	}
	return n, err
}

func (c *crcVerifyingReader) verify() error {
	if c.verified {
		return nil
	}
	c.verified = true
	expectedCRC, expectedSize := c.expected()
	if c.n != expectedSize {
		return &SizeMismatchError{Name: c.name, Got: c.n, Expected: expectedSize}
	}
	if c.hash != expectedCRC {
		return &CRCMismatchError{Name: c.name, Got: c.hash, Expected: expectedCRC}
	}
	return nil
}

// Close releases the underlying reader if it is closeable.
func (c *crcVerifyingReader) Close() error {
	if rc, ok := c.r.(io.Closer); ok {
		return rc.Close()
	}
	return nil
}
