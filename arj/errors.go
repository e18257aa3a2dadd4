package arj

import "fmt"

// FormatError reports a structural problem with the archive bytes: a
// main header that never validates, a truncated header, or an
// extended-header length that overruns the stream.
type FormatError struct {
	Context string
	Err     error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("arj: format error (%s): %v", e.Context, e.Err)
	}
	return fmt.Sprintf("arj: format error: %s", e.Context)
}

func (e *FormatError) Unwrap() error { return e.Err }

func newFormatError(context string) error { return &FormatError{Context: context} }

// UnsupportedFeatureError reports a recognized but unsupported feature:
// GARBLED (encrypted) or VOLUME (multi-volume) archives, or a
// compression method other than STORED.
type UnsupportedFeatureError struct {
	Feature string
}

func (e *UnsupportedFeatureError) Error() string {
	return fmt.Sprintf("arj: unsupported feature: %s", e.Feature)
}

// CRCMismatchError reports that a basic header, extended-header block,
// or entry's decompressed data did not match its stored CRC-32.
type CRCMismatchError struct {
	Context  string
	Got      uint32
	Expected uint32
}

func (e *CRCMismatchError) Error() string {
	return fmt.Sprintf("arj: checksum mismatch (%s): got %#08x, want %#08x", e.Context, e.Got, e.Expected)
}

// SizeMismatchError reports that the number of bytes read from an
// entry's stream did not match its declared original size.
type SizeMismatchError struct {
	Name     string
	Got      int64
	Expected int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("arj: size mismatch for %q: got %d bytes, want %d", e.Name, e.Got, e.Expected)
}

// IllegalStateError reports a misuse of the Reader protocol, such as
// reading from an entry's stream after advancing past it.
type IllegalStateError struct {
	Op string
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("arj: illegal state: %s", e.Op)
}
