package zip

import (
	"errors"
	"io"

	"github.com/kirasys/archivekit/compressor"
)

// memoryLimitBytes converts OpenOptions.MemoryLimitKB (KiB, 0 = unbounded)
// into the byte budget compressor.Decompressor expects (spec.md §5).
func (o *OpenOptions) memoryLimitBytes() int64 {
	if o == nil || o.MemoryLimitKB <= 0 {
		return 0
	}
	return o.MemoryLimitKB * 1024
}

// memoryLimitingReader enforces OpenOptions.MemoryLimitKB against a
// decompressor's output. Most codecs never learn about the limit (they
// stream rather than buffer), so this reader also counts bytes as they
// pass through and fails once the running total exceeds the budget -
// this is what actually stops an entry from being decompressed into
// unbounded memory by a caller that, say, io.ReadAll's the result. It
// additionally translates compressor.ErrMemoryLimitExceeded, the
// codec-agnostic sentinel a buffering decompressor like lz4-block raises
// when it must allocate past the budget before returning any bytes at
// all, into this package's typed error (spec.md §5/§7).
type memoryLimitingReader struct {
	r         io.Reader
	limitKB   int64
	remaining int64
}

func newMemoryLimitingReader(r io.Reader, limitKB, limitBytes int64) *memoryLimitingReader {
	return &memoryLimitingReader{r: r, limitKB: limitKB, remaining: limitBytes}
}

func (m *memoryLimitingReader) Read(p []byte) (int, error) {
	if int64(len(p)) > m.remaining+1 {
		p = p[:m.remaining+1]
	}
	n, err := m.r.Read(p)
	m.remaining -= int64(n)
	if errors.Is(err, compressor.ErrMemoryLimitExceeded) || m.remaining < 0 {
		return n, &MemoryLimitExceededError{LimitKB: m.limitKB}
	}
	return n, err
}

// Close releases the underlying reader if it is closeable, so wrapping a
// crcVerifyingReader's Close chain in a memoryLimitingReader doesn't drop
// the inner decompressor's own Close.
func (m *memoryLimitingReader) Close() error {
	if rc, ok := m.r.(io.Closer); ok {
		return rc.Close()
	}
	return nil
}

// asMemoryLimitErr translates the same sentinel when it surfaces eagerly,
// from NewDecompressor itself, rather than from a later Read (the case for
// a buffering codec like lz4-block, which allocates before returning).
func asMemoryLimitErr(err error, limitKB int64) error {
	if errors.Is(err, compressor.ErrMemoryLimitExceeded) {
		return &MemoryLimitExceededError{LimitKB: limitKB}
	}
	return err
}
