package arj

import "time"

// Magic is the two-byte pair that opens every basic header.
var Magic = [2]byte{0x60, 0xEA}

// Main-header flag bits (spec.md §3/§6): GARBLED marks encrypted
// content, VOLUME marks a multi-volume member, EXTFILE/PATHSYM/BACKUP
// describe per-file handling. Values match the values every ARJ
// implementation (arj.org's reference unarj included) has converged on.
const (
	flagGarbled = 0x01
	flagVolume  = 0x04
	flagExtFile = 0x10
	flagPathSym = 0x20
	flagBackup  = 0x40
)

// Host OS codes recorded in the basic header.
const (
	HostMSDOS = 0
	HostUnix  = 2
	HostWin32 = 11
)

// Compression method codes. Only MethodStored is decodable; Reader.Next
// returns UnsupportedFeatureError for an entry with any other value, so
// such an entry is not handed out for reading at all.
const (
	MethodStored = 0
)

// File-type codes.
const (
	FileTypeBinary    = 0
	FileTypeText      = 1
	FileTypeComment   = 2
	FileTypeDirectory = 3
	FileTypeLabel     = 4
)

// ExtendedBlock is one opaque, CRC-validated block from a header's
// extended-data sequence (spec.md §4.6/§9): the library does not
// interpret its payload, only verifies and preserves it.
type ExtendedBlock struct {
	Data []byte
}

// MainHeader is the archive-level basic header: the first valid header
// found during the magic scan.
type MainHeader struct {
	ArchiverVersion     uint8
	MinVersionToExtract uint8
	HostOS              uint8
	Flags               uint8
	Created             time.Time
	Modified            time.Time
	ArchiveSize         uint32
	SecurityEnvelopeLen uint16
	Name                string
	Comment             string
	Extended            []ExtendedBlock
}

// Garbled reports whether the archive is marked encrypted.
func (h *MainHeader) Garbled() bool { return h.Flags&flagGarbled != 0 }

// Volume reports whether the archive is one member of a multi-volume set.
func (h *MainHeader) Volume() bool { return h.Flags&flagVolume != 0 }

// Entry is one file recorded by a local-file header: name, method,
// sizes, CRC, timestamps, flags, and an opaque extended-header sequence.
type Entry struct {
	Name    string
	Comment string

	HostOS uint8
	Flags  uint8
	Method uint8
	Type   uint8

	Modified   time.Time
	AccessTime time.Time

	CRC32            uint32
	CompressedSize   int64
	UncompressedSize int64

	FileSpecPosition uint16
	FileAccessMode   uint16
	FirstChapter     uint8
	LastChapter      uint8

	Extended []ExtendedBlock

	// dataOffset is not set by the Reader and stays zero: the Reader
	// consumes data strictly in stream order, does not count the bytes it
	// has consumed, and does not seek.
	dataOffset int64
}

// IsDir reports whether the entry's file type marks it a directory.
func (e *Entry) IsDir() bool { return e.Type == FileTypeDirectory }

// Garbled reports whether the entry is marked encrypted.
func (e *Entry) Garbled() bool { return e.Flags&flagGarbled != 0 }

// Backup reports the BACKUP attribute bit.
func (e *Entry) Backup() bool { return e.Flags&flagBackup != 0 }

// PathSym reports the PATHSYM (stored as a symbolic path) attribute bit.
func (e *Entry) PathSym() bool { return e.Flags&flagPathSym != 0 }
