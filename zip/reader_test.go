package zip

import (
	"bytes"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSimpleArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	dst := &memSeeker{}
	w := NewWriter(dst, nil)
	for name, content := range files {
		e := &Entry{Name: name}
		require.NoError(t, w.PutEntry(e))
		if !e.IsDir() {
			_, err := w.Write([]byte(content))
			require.NoError(t, err)
		}
		require.NoError(t, w.CloseEntry())
	}
	require.NoError(t, w.Finish())
	return dst.buf
}

func TestReaderGetEntriesCaseSensitive(t *testing.T) {
	data := buildSimpleArchive(t, map[string]string{"Foo.txt": "x"})
	r, err := Open(bytes.NewReader(data), int64(len(data)), nil, nil)
	require.NoError(t, err)

	assert.Len(t, r.GetEntries("Foo.txt"), 1)
	assert.Len(t, r.GetEntries("foo.txt"), 0)
}

func TestReaderGetEntriesCaseInsensitive(t *testing.T) {
	data := buildSimpleArchive(t, map[string]string{"Foo.txt": "x"})
	r, err := Open(bytes.NewReader(data), int64(len(data)), nil, &OpenOptions{
		UseUnicodeExtra:      true,
		CaseInsensitiveNames: true,
	})
	require.NoError(t, err)
	assert.Len(t, r.GetEntries("foo.txt"), 1)
}

func TestReaderCRCMismatchSurfaces(t *testing.T) {
	data := buildSimpleArchive(t, map[string]string{"a.txt": "original"})

	// Flip a byte inside the raw file data (after all headers) so the
	// stored CRC no longer matches.
	marker := []byte("original")
	idx := bytes.Index(data, marker)
	require.GreaterOrEqual(t, idx, 0)
	corrupted := append([]byte(nil), data...)
	corrupted[idx] ^= 0xFF

	r, err := Open(bytes.NewReader(corrupted), int64(len(corrupted)), nil, nil)
	require.NoError(t, err)
	rc, err := r.GetInputStream(r.Entries()[0])
	require.NoError(t, err)
	_, err = io.ReadAll(rc)
	require.Error(t, err)
	var cerr *CRCMismatchError
	assert.ErrorAs(t, err, &cerr)
}

func TestReaderEnforcesMemoryLimit(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 8192)
	data := buildSimpleArchive(t, map[string]string{"big.txt": string(payload)})

	r, err := Open(bytes.NewReader(data), int64(len(data)), nil, &OpenOptions{MemoryLimitKB: 1})
	require.NoError(t, err)

	rc, err := r.GetInputStream(r.Entries()[0])
	require.NoError(t, err)
	_, err = io.ReadAll(rc)
	require.Error(t, err)
	var merr *MemoryLimitExceededError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, int64(1), merr.LimitKB)
}

func TestReaderMemoryLimitAllowsEntryUnderBudget(t *testing.T) {
	data := buildSimpleArchive(t, map[string]string{"small.txt": "tiny"})

	r, err := Open(bytes.NewReader(data), int64(len(data)), nil, &OpenOptions{MemoryLimitKB: 64})
	require.NoError(t, err)

	rc, err := r.GetInputStream(r.Entries()[0])
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "tiny", string(got))
}

func TestSafeJoinRejectsTraversal(t *testing.T) {
	_, err := SafeJoin("/dest", "../../etc/passwd")
	assert.ErrorIs(t, err, ErrZipSlip)

	_, err = SafeJoin("/dest", "/etc/passwd")
	assert.NoError(t, err) // absolute path gets cleaned relative to destDir

	ok, err := SafeJoin("/dest", "sub/dir/file.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/dest", "sub/dir/file.txt"), ok)
}

func TestArchiveExtract(t *testing.T) {
	data := buildSimpleArchive(t, map[string]string{
		"a.txt":      "alpha",
		"sub/":       "",
		"sub/b.txt":  "beta",
	})
	r, err := Open(bytes.NewReader(data), int64(len(data)), nil, nil)
	require.NoError(t, err)
	archive := NewArchive(r)

	destDir := t.TempDir()
	require.NoError(t, archive.Extract(destDir, nil))

	got, err := os.ReadFile(filepath.Join(destDir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(got))

	got, err = os.ReadFile(filepath.Join(destDir, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "beta", string(got))

	info, err := os.Stat(filepath.Join(destDir, "sub"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestTemplateBuild(t *testing.T) {
	tmpl := &Template{
		Entries: []TemplateEntry{
			{
				Entry: &Entry{
					Name:               "t1.txt",
					UncompressedSize64: uint64(len("template content")),
					CRC32:              crc32.ChecksumIEEE([]byte("template content")),
				},
				Open: func() (io.ReadCloser, error) {
					return io.NopCloser(bytes.NewReader([]byte("template content"))), nil
				},
			},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, tmpl.Build(&buf))

	data := buf.Bytes()
	r, err := Open(bytes.NewReader(data), int64(len(data)), nil, nil)
	require.NoError(t, err)
	es := r.GetEntries("t1.txt")
	require.Len(t, es, 1)

	rc, err := r.GetInputStream(es[0])
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "template content", string(got))
}
