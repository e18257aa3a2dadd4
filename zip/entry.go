package zip

import (
	"os"
	"path"
	"time"

	"github.com/kirasys/archivekit/internal/binutil"
)

// Compression method codes (spec.md GLOSSARY).
const (
	Store      uint16 = 0
	Deflate    uint16 = 8
	Deflate64  uint16 = 9
	BZIP2      uint16 = 12
	LZMA       uint16 = 14
	Zstd       uint16 = 93
	XZ         uint16 = 95
	PPMd       uint16 = 98
)

// General-purpose bit flags (spec.md §3).
const (
	flagEncrypted      uint16 = 1 << 0
	flagDataDescriptor uint16 = 1 << 3
	flagStrongEnc      uint16 = 1 << 6
	flagUTF8           uint16 = 1 << 11
	flagCDEncrypted    uint16 = 1 << 13
)

// NameSource identifies where an entry's decoded Name (or Comment) came
// from, for tests and diagnostics that need to distinguish a genuinely
// UTF-8-flagged name from one recovered via the Unicode extra field.
type NameSource int

const (
	// NameSourceRaw means the name was decoded from the raw bytes using
	// the archive's configured encoding (no UTF-8 bit, no matching
	// Unicode extra field).
	NameSourceRaw NameSource = iota
	// NameSourceUTF8Flag means general-purpose bit 11 was set and the
	// raw bytes were decoded as UTF-8 directly.
	NameSourceUTF8Flag
	// NameSourceUnicodeExtra means a Unicode path/comment extra field's
	// stored CRC matched the raw bytes, so its UTF-8 payload replaced the
	// decoded name.
	NameSourceUnicodeExtra
)

// Creator version high byte (spec.md struct.go creatorXxx, kept from the
// teacher verbatim since the ZIP spec assigns these exact values).
const (
	creatorFAT    = 0
	creatorUnix   = 3
	creatorNTFS   = 11
	creatorVFAT   = 14
	creatorMacOSX = 19

	zipVersion20 = 20
	zipVersion45 = 45

	uint16max = 1<<16 - 1
	uint32max = 1<<32 - 1
)

// Entry is one logical member of a ZIP archive: the merged view of its
// central-directory record, its local header (once resolved), and any
// data descriptor.
type Entry struct {
	// Name is the decoded member name. NameSource records how it was
	// obtained; NameRaw holds the undecoded bytes as stored on disk.
	Name       string
	NameRaw    []byte
	NameSource NameSource

	Comment        string
	CommentRaw     []byte
	CommentSource  NameSource

	NonUTF8 bool

	CreatorVersion uint16
	ReaderVersion  uint16
	Flags          uint16
	Method         uint16

	Modified time.Time

	CRC32 uint32

	CompressedSize64   uint64
	UncompressedSize64 uint64

	// Extra carries every extra-field record attached to the
	// central-directory copy of this entry, decoded where recognized and
	// preserved opaque otherwise. LocalExtra holds the (possibly
	// different) local-header copy, populated once the local header has
	// been resolved.
	Extra      []ExtraField
	LocalExtra []ExtraField

	ExternalAttrs uint32
	DiskNumStart  uint32

	// LocalHeaderOffset is the byte offset of this entry's local file
	// header within the (possibly multi-segment) archive.
	LocalHeaderOffset uint64

	// dataOffset is filled in lazily once the local header has been
	// resolved; see Reader.resolveLocal.
	dataOffset    int64
	dataResolved  bool
}

// IsDir reports whether the entry represents a directory (its name ends
// in '/').
func (e *Entry) IsDir() bool {
	return len(e.Name) > 0 && e.Name[len(e.Name)-1] == '/'
}

// Encrypted reports whether general-purpose bit 0 or bit 6 is set.
func (e *Entry) Encrypted() bool {
	return e.Flags&flagEncrypted != 0 || e.Flags&flagStrongEnc != 0
}

// HasDataDescriptor reports whether general-purpose bit 3 is set.
func (e *Entry) HasDataDescriptor() bool {
	return e.Flags&flagDataDescriptor != 0
}

// FileInfo adapts the entry to os.FileInfo.
func (e *Entry) FileInfo() os.FileInfo { return entryFileInfo{e} }

type entryFileInfo struct{ e *Entry }

func (fi entryFileInfo) Name() string       { return path.Base(fi.e.Name) }
func (fi entryFileInfo) Size() int64        { return int64(fi.e.UncompressedSize64) }
func (fi entryFileInfo) IsDir() bool        { return fi.Mode().IsDir() }
func (fi entryFileInfo) ModTime() time.Time { return fi.e.Modified }
func (fi entryFileInfo) Mode() os.FileMode  { return fi.e.Mode() }
func (fi entryFileInfo) Sys() interface{}   { return fi.e }

// Mode returns the permission and type bits recorded in ExternalAttrs,
// interpreted according to the creator platform in CreatorVersion.
func (e *Entry) Mode() (mode os.FileMode) {
	switch e.CreatorVersion >> 8 {
	case creatorUnix, creatorMacOSX:
		mode = unixModeToFileMode(e.ExternalAttrs >> 16)
	case creatorNTFS, creatorVFAT, creatorFAT:
		mode = msdosModeToFileMode(e.ExternalAttrs)
	}
	if e.IsDir() {
		mode |= os.ModeDir
	}
	return mode
}

// SetMode encodes mode into ExternalAttrs/CreatorVersion for writing.
func (e *Entry) SetMode(mode os.FileMode) {
	e.CreatorVersion = e.CreatorVersion&0xff | creatorUnix<<8
	e.ExternalAttrs = fileModeToUnixMode(mode) << 16
	if mode&os.ModeDir != 0 {
		e.ExternalAttrs |= msdosDir
	}
	if mode&0200 == 0 {
		e.ExternalAttrs |= msdosReadOnly
	}
}

// isZip64 reports whether the entry's sizes or offset require ZIP64
// extra-field overflow resolution.
func (e *Entry) isZip64() bool {
	return e.CompressedSize64 >= uint32max || e.UncompressedSize64 >= uint32max || e.LocalHeaderOffset >= uint32max
}

func timeToDOS(t time.Time) (date, tm uint16) {
	packed := binutil.TimeToDOS(t)
	return uint16(packed >> 16), uint16(packed)
}

func dosToTime(date, tm uint16) time.Time {
	return binutil.DOSToTime(uint32(date)<<16 | uint32(tm))
}
