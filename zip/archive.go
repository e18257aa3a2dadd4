package zip

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Template describes an archive to build from pre-declared entries, each
// paired with a function that supplies its uncompressed bytes. Entries
// must carry a correct CRC32 and UncompressedSize64 up front so Build can
// stream straight through the Writer without buffering content.
type Template struct {
	Entries []TemplateEntry
	Options *WriterOptions
}

// TemplateEntry pairs an Entry with its data source.
type TemplateEntry struct {
	Entry *Entry
	Open  func() (io.ReadCloser, error)
}

// Build writes every entry in t to w via a Writer, in declaration order,
// and finishes the archive.
func (t *Template) Build(w io.Writer) error {
	zw := NewWriter(w, t.Options)
	for _, te := range t.Entries {
		if err := zw.PutEntry(te.Entry); err != nil {
			return err
		}
		if !te.Entry.IsDir() {
			rc, err := te.Open()
			if err != nil {
				return err
			}
			_, copyErr := io.Copy(zw, rc)
			closeErr := rc.Close()
			if copyErr != nil {
				return copyErr
			}
			if closeErr != nil {
				return closeErr
			}
		}
		if err := zw.CloseEntry(); err != nil {
			return err
		}
	}
	return zw.Finish()
}

// Archive is a convenience wrapper around a Reader for whole-archive
// operations: safe extraction to a directory and serving a named entry
// over HTTP.
type Archive struct {
	*Reader
}

// NewArchive wraps an already-open Reader.
func NewArchive(r *Reader) *Archive { return &Archive{Reader: r} }

// ErrZipSlip is returned by SafeJoin when an entry name would resolve
// outside destDir.
var ErrZipSlip = errors.New("zip: entry path escapes destination directory")

// SafeJoin joins destDir with name, refusing any name whose cleaned,
// destDir-relative path would escape destDir (a "zip-slip" entry using
// ".." segments). An absolute name is joined under destDir rather than
// refused.
func SafeJoin(destDir, name string) (string, error) {
	cleaned := path.Clean(filepath.ToSlash(name))
	joined := filepath.Join(destDir, filepath.FromSlash(cleaned))
	rel, err := filepath.Rel(destDir, joined)
	if err != nil {
		return "", ErrZipSlip
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrZipSlip
	}
	return joined, nil
}

// ExtractOptions configures Archive.Extract.
type ExtractOptions struct {
	// DirMode and FileMode override the mode bits recorded on each entry
	// (0 keeps the entry's own Mode()).
	DirMode  os.FileMode
	FileMode os.FileMode
}

// Extract writes every entry into destDir, using SafeJoin to refuse any
// entry whose name would escape it. Directory entries and the parent
// directories of file entries are created as needed.
func (a *Archive) Extract(destDir string, opts *ExtractOptions) error {
	if opts == nil {
		opts = &ExtractOptions{}
	}
	for _, e := range a.Entries() {
		target, err := SafeJoin(destDir, e.Name)
		if err != nil {
			return err
		}
		if e.IsDir() {
			mode := opts.DirMode
			if mode == 0 {
				mode = 0o755
			}
			if err := os.MkdirAll(target, mode); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := a.extractFile(e, target, opts); err != nil {
			return err
		}
	}
	return nil
}

func (a *Archive) extractFile(e *Entry, target string, opts *ExtractOptions) error {
	mode := opts.FileMode
	if mode == 0 {
		mode = e.Mode().Perm()
		if mode == 0 {
			mode = 0o644
		}
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	defer f.Close()

	rc, err := a.GetInputStream(e)
	if err != nil {
		return err
	}
	defer rc.Close()

	if _, err := io.Copy(f, rc); err != nil {
		return err
	}
	if !e.Modified.IsZero() {
		_ = os.Chtimes(target, e.Modified, e.Modified)
	}
	return nil
}

// ServeHTTP serves the single entry named by the request path (relative
// to the archive root) as an HTTP response. STORED entries are served
// through http.ServeContent so Range requests work; every other method
// is copied in full since byte-range access into a compressed stream
// would require decompressing from the start for every request anyway.
func (a *Archive) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	name := strings.TrimPrefix(req.URL.Path, "/")
	entries := a.GetEntries(name)
	if len(entries) == 0 {
		http.NotFound(w, req)
		return
	}
	e := entries[0]
	if e.Encrypted() {
		http.Error(w, "entry is encrypted", http.StatusForbidden)
		return
	}

	ctype := mime.TypeByExtension(path.Ext(e.Name))
	if ctype != "" {
		w.Header().Set("Content-Type", ctype)
	}

	if e.Method == Store {
		sr, err := a.SectionReader(e)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		http.ServeContent(w, req, path.Base(e.Name), modTimeOrZero(e.Modified), sr)
		return
	}

	rc, err := a.GetInputStream(e)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer rc.Close()
	io.Copy(w, rc)
}

func modTimeOrZero(t time.Time) time.Time {
	if t.IsZero() {
		return time.Unix(0, 0)
	}
	return t
}
