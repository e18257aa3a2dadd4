package zip

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveServeHTTPFullBody(t *testing.T) {
	data := buildSimpleArchive(t, map[string]string{"index.html": "<h1>hi</h1>"})
	r, err := Open(bytes.NewReader(data), int64(len(data)), nil, nil)
	require.NoError(t, err)
	archive := NewArchive(r)

	req := httptest.NewRequest(http.MethodGet, "/index.html", nil)
	rec := httptest.NewRecorder()
	archive.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<h1>hi</h1>", rec.Body.String())
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestArchiveServeHTTPRangeRequest(t *testing.T) {
	data := buildSimpleArchive(t, map[string]string{"file.txt": "0123456789"})
	r, err := Open(bytes.NewReader(data), int64(len(data)), nil, nil)
	require.NoError(t, err)
	archive := NewArchive(r)

	req := httptest.NewRequest(http.MethodGet, "/file.txt", nil)
	req.Header.Set("Range", "bytes=2-4")
	rec := httptest.NewRecorder()
	archive.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "234", rec.Body.String())
}

func TestArchiveServeHTTPNotFound(t *testing.T) {
	data := buildSimpleArchive(t, map[string]string{"a.txt": "x"})
	r, err := Open(bytes.NewReader(data), int64(len(data)), nil, nil)
	require.NoError(t, err)
	archive := NewArchive(r)

	req := httptest.NewRequest(http.MethodGet, "/missing.txt", nil)
	rec := httptest.NewRecorder()
	archive.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
