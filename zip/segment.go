package zip

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// splitSignature is the 4-byte marker required at the start of the first
// segment of a split/spanned ZIP archive (spec.md §4.1, §6).
const splitSignature uint32 = 0x08074b50

// Segment is a single read-only seekable sub-channel of a multi-segment
// archive.
type Segment interface {
	io.ReadSeeker
	io.Closer
}

// segmentReader concatenates an ordered list of seekable, read-only
// segments into one logical read-only channel. Reads and seeks cross
// segment boundaries transparently; later segments are not pre-seeked
// until the logical position reaches them.
//
// Adapted from the teacher's multireadseeker, generalized from an
// in-memory write-time assembly helper into a read-time split-archive
// channel with spanning-signature validation.
type segmentReader struct {
	segments []segmentSpan
	size     int64
	pos      int64
	active   int
	seeked   bool
}

type segmentSpan struct {
	offset int64
	length int64
	seg    Segment
}

// newSegmentReader builds a segmentReader over segs, whose lengths are
// determined by Seek(0, io.SeekEnd) on each.
func newSegmentReader(segs []Segment) (*segmentReader, error) {
	sr := &segmentReader{}
	var offset int64
	for _, s := range segs {
		length, err := s.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, err
		}
		if length == 0 {
			continue
		}
		sr.segments = append(sr.segments, segmentSpan{offset: offset, length: length, seg: s})
		offset += length
	}
	sr.size = offset
	return sr, nil
}

// Size returns the combined size of all segments.
func (sr *segmentReader) Size() int64 { return sr.size }

func (sr *segmentReader) Read(p []byte) (n int, err error) {
	if sr.pos >= sr.size {
		return 0, io.EOF
	}
	for len(p) > 0 && sr.active < len(sr.segments) {
		span := &sr.segments[sr.active]
		localOff := sr.pos - span.offset
		remaining := span.length - localOff

		if !sr.seeked {
			if _, err = span.seg.Seek(localOff, io.SeekStart); err != nil {
				return n, err
			}
			sr.seeked = true
		}

		toRead := int64(len(p))
		if toRead > remaining {
			toRead = remaining
		}
		var n2 int
		n2, err = span.seg.Read(p[:toRead])
		n += n2
		sr.pos += int64(n2)
		p = p[n2:]

		if int64(n2) == remaining || err == io.EOF {
			sr.active++
			sr.seeked = false
			if sr.active < len(sr.segments) {
				err = nil
			}
			continue
		}
		if err != nil {
			return n, err
		}
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (sr *segmentReader) Seek(offset int64, whence int) (int64, error) {
	var newOffset int64
	switch whence {
	case io.SeekStart:
		newOffset = offset
	case io.SeekCurrent:
		newOffset = sr.pos + offset
	case io.SeekEnd:
		newOffset = sr.size + offset
	}
	if newOffset < 0 {
		return 0, newFormatError("seek before start of archive")
	}
	if newOffset > sr.size {
		newOffset = sr.size
	}
	sr.pos = newOffset
	sr.active = sort.Search(len(sr.segments), func(i int) bool {
		return sr.segments[i].offset+sr.segments[i].length > newOffset
	})
	sr.seeked = false
	return newOffset, nil
}

// Close closes every owned segment, returning the first error but closing
// all of them regardless.
func (sr *segmentReader) Close() error {
	var first error
	for _, span := range sr.segments {
		if err := span.seg.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// validateSplitSignature reads and checks the spanning signature from the
// first 4 bytes of the first segment, then rewinds the whole channel.
func (sr *segmentReader) validateSplitSignature() error {
	if len(sr.segments) == 0 {
		return newFormatError("no segments")
	}
	var buf [4]byte
	if _, err := sr.segments[0].seg.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := io.ReadFull(sr.segments[0].seg, buf[:]); err != nil {
		return wrapFormatError("reading split signature", err)
	}
	if binary.LittleEndian.Uint32(buf[:]) != splitSignature {
		return newFormatError("missing split archive spanning signature")
	}
	_, err := sr.Seek(0, io.SeekStart)
	return err
}

var segmentSuffixPattern = regexp.MustCompile(`^\.[zZ](\d+)$`)

// DiscoverSegments finds the sibling .zNN segments of a split archive
// given the path of its final .zip segment, and returns them in read
// order (ascending numeric extension, .zip last).
//
// Example: given "a.zip" next to "a.z01", "a.z02", "a.z03", it returns
// ["a.z01", "a.z02", "a.z03", "a.zip"].
func DiscoverSegments(finalZipPath string) ([]string, error) {
	dir := filepath.Dir(finalZipPath)
	base := strings.TrimSuffix(filepath.Base(finalZipPath), filepath.Ext(finalZipPath))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type numbered struct {
		path string
		num  int
	}
	var found []numbered
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, base) {
			continue
		}
		suffix := name[len(base):]
		m := segmentSuffixPattern.FindStringSubmatch(suffix)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		found = append(found, numbered{path: filepath.Join(dir, name), num: n})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].num < found[j].num })

	paths := make([]string, 0, len(found)+1)
	for _, f := range found {
		paths = append(paths, f.path)
	}
	paths = append(paths, finalZipPath)
	return paths, nil
}

// OpenSegmentFiles opens each path in paths for reading and returns them
// as Segments, closing any already-opened files if a later open fails.
func OpenSegmentFiles(paths []string) ([]Segment, error) {
	segs := make([]Segment, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			for _, s := range segs {
				s.Close()
			}
			return nil, err
		}
		segs = append(segs, f)
	}
	return segs, nil
}
