package zip

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamReaderReadsSequentially(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, &WriterOptions{Method: Deflate})

	for _, name := range []string{"one.txt", "two.txt"} {
		e := &Entry{Name: name}
		require.NoError(t, w.PutEntry(e))
		_, err := w.Write([]byte("content of " + name))
		require.NoError(t, err)
		require.NoError(t, w.CloseEntry())
	}
	require.NoError(t, w.Finish())

	sr := NewStreamReader(bytes.NewReader(buf.Bytes()), nil)

	e1, err := sr.Next()
	require.NoError(t, err)
	assert.Equal(t, "one.txt", e1.Name)
	got1, err := io.ReadAll(sr)
	require.NoError(t, err)
	assert.Equal(t, "content of one.txt", string(got1))

	e2, err := sr.Next()
	require.NoError(t, err)
	assert.Equal(t, "two.txt", e2.Name)
	got2, err := io.ReadAll(sr)
	require.NoError(t, err)
	assert.Equal(t, "content of two.txt", string(got2))

	_, err = sr.Next()
	assert.Equal(t, io.EOF, err)
}

func TestStreamReaderSkipsUnreadEntry(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, &WriterOptions{Method: Deflate})
	for _, name := range []string{"a.txt", "b.txt"} {
		e := &Entry{Name: name}
		require.NoError(t, w.PutEntry(e))
		_, err := w.Write([]byte("payload-" + name))
		require.NoError(t, err)
		require.NoError(t, w.CloseEntry())
	}
	require.NoError(t, w.Finish())

	sr := NewStreamReader(bytes.NewReader(buf.Bytes()), nil)
	_, err := sr.Next()
	require.NoError(t, err)
	// Advance without draining the first entry's stream.
	e2, err := sr.Next()
	require.NoError(t, err)
	assert.Equal(t, "b.txt", e2.Name)
	got, err := io.ReadAll(sr)
	require.NoError(t, err)
	assert.Equal(t, "payload-b.txt", string(got))
}
