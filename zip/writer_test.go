package zip

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSeeker is a minimal io.WriteSeeker backed by an in-memory byte slice,
// used to exercise the Writer's seek-back patching protocol.
type memSeeker struct {
	buf []byte
	pos int64
}

func (m *memSeeker) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *memSeeker) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = m.pos
	case io.SeekEnd:
		base = int64(len(m.buf))
	}
	m.pos = base + offset
	return m.pos, nil
}

func TestWriterReaderRoundTripSeekable(t *testing.T) {
	dst := &memSeeker{}
	w := NewWriter(dst, nil)
	require.True(t, w.IsSeekable())

	entries := map[string]string{
		"hello.txt":  "hello, world",
		"dir/":       "",
		"dir/nested": "nested content",
	}

	for _, name := range []string{"hello.txt", "dir/", "dir/nested"} {
		e := &Entry{Name: name}
		require.NoError(t, w.PutEntry(e))
		if !e.IsDir() {
			_, err := w.Write([]byte(entries[name]))
			require.NoError(t, err)
		}
		require.NoError(t, w.CloseEntry())
	}
	require.NoError(t, w.Finish())

	r, err := Open(bytes.NewReader(dst.buf), int64(len(dst.buf)), nil, nil)
	require.NoError(t, err)
	require.Len(t, r.Entries(), 3)

	for _, name := range []string{"hello.txt", "dir/nested"} {
		es := r.GetEntries(name)
		require.Len(t, es, 1)
		rc, err := r.GetInputStream(es[0])
		require.NoError(t, err)
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, entries[name], string(got))
	}

	dirEntries := r.GetEntries("dir/")
	require.Len(t, dirEntries, 1)
	assert.True(t, dirEntries[0].IsDir())
}

func TestWriterNonSeekableUsesDataDescriptor(t *testing.T) {
	var buf bytes.Buffer
	// Only a compressing method (not Store) may have an unknown size on
	// non-seekable output; Store requires size+CRC known up front there.
	w := NewWriter(&buf, &WriterOptions{Method: Deflate})
	require.False(t, w.IsSeekable())

	e := &Entry{Name: "stream.txt"}
	require.NoError(t, w.PutEntry(e))
	assert.True(t, e.HasDataDescriptor())

	_, err := w.Write([]byte("streamed payload"))
	require.NoError(t, err)
	require.NoError(t, w.CloseEntry())
	require.NoError(t, w.Finish())

	data := buf.Bytes()
	r, err := Open(bytes.NewReader(data), int64(len(data)), nil, nil)
	require.NoError(t, err)
	require.Len(t, r.Entries(), 1)

	rc, err := r.GetInputStream(r.Entries()[0])
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "streamed payload", string(got))
}

func TestWriterStoreOnNonSeekableRequiresKnownSize(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, nil)

	e := &Entry{Name: "unsized.txt", Method: Store}
	err := w.PutEntry(e)
	var ierr *IllegalStateError
	assert.ErrorAs(t, err, &ierr)
}

func TestWriterPutEntryWithoutClosingPrevious(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, nil)

	e1 := &Entry{Name: "a.txt", UncompressedSize64: 1}
	require.NoError(t, w.PutEntry(e1))
	_, err := w.Write([]byte("a"))
	require.NoError(t, err)

	e2 := &Entry{Name: "b.txt"}
	err = w.PutEntry(e2)
	var ierr *IllegalStateError
	assert.ErrorAs(t, err, &ierr)
}

func TestWriterDeflateRoundTrip(t *testing.T) {
	dst := &memSeeker{}
	w := NewWriter(dst, &WriterOptions{Method: Deflate})

	e := &Entry{Name: "compressed.txt"}
	require.NoError(t, w.PutEntry(e))
	payload := bytes.Repeat([]byte("compress me please "), 100)
	_, err := w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.CloseEntry())
	require.NoError(t, w.Finish())

	r, err := Open(bytes.NewReader(dst.buf), int64(len(dst.buf)), nil, nil)
	require.NoError(t, err)
	es := r.GetEntries("compressed.txt")
	require.Len(t, es, 1)
	assert.Equal(t, Deflate, es[0].Method)

	rc, err := r.GetInputStream(es[0])
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestWriterUnicodeExtraRoundTrip(t *testing.T) {
	dst := &memSeeker{}
	w := NewWriter(dst, &WriterOptions{CreateUnicodeExtraFields: UnicodeExtraAlways})

	e := &Entry{Name: "résumé.txt"}
	require.NoError(t, w.PutEntry(e))
	_, err := w.Write([]byte("cv"))
	require.NoError(t, err)
	require.NoError(t, w.CloseEntry())
	require.NoError(t, w.Finish())

	r, err := Open(bytes.NewReader(dst.buf), int64(len(dst.buf)), nil, nil)
	require.NoError(t, err)
	es := r.GetEntries("résumé.txt")
	require.Len(t, es, 1)
	assert.Equal(t, "résumé.txt", es[0].Name)
}

func TestWriterExtendedTimestampRoundTrip(t *testing.T) {
	dst := &memSeeker{}
	w := NewWriter(dst, &WriterOptions{WriteExtendedTimestamps: true})

	mtime := time.Date(2024, 3, 15, 12, 30, 0, 0, time.UTC)
	e := &Entry{Name: "dated.txt", Modified: mtime}
	require.NoError(t, w.PutEntry(e))
	_, err := w.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, w.CloseEntry())
	require.NoError(t, w.Finish())

	r, err := Open(bytes.NewReader(dst.buf), int64(len(dst.buf)), nil, nil)
	require.NoError(t, err)
	es := r.GetEntries("dated.txt")
	require.Len(t, es, 1)

	var found *ExtendedTimestampExtra
	for _, f := range es[0].Extra {
		if ext, ok := f.Parsed.(*ExtendedTimestampExtra); ok {
			found = ext
		}
	}
	require.NotNil(t, found)
	require.NotNil(t, found.ModTime)
	assert.Equal(t, mtime.Unix(), found.ModTime.Unix())
}
