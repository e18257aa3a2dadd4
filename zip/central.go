package zip

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/kirasys/archivekit/internal/binutil"
)

const (
	fileHeaderSignature      = 0x04034b50
	directoryHeaderSignature = 0x02014b50
	directoryEndSignature    = 0x06054b50
	directory64LocSignature  = 0x07064b50
	directory64EndSignature  = 0x06064b50
	dataDescriptorSignature  = 0x08074b50

	fileHeaderLen      = 30
	directoryHeaderLen = 46
	directoryEndLen    = 22
	directory64LocLen  = 20
	directory64EndLen  = 56

	maxEOCDSearch = 64*1024 + directoryEndLen
)

// eocd is the parsed End-Of-Central-Directory record, with ZIP64 fields
// merged in when a ZIP64 locator/record was found (spec.md §4.3 step 2).
type eocd struct {
	diskNumber       uint16
	cdDiskStart      uint16
	entriesOnDisk    uint64
	totalEntries     uint64
	cdSize           uint64
	cdOffset         uint64
	comment          []byte
	isZip64          bool
	zip64VersionMade uint16
	zip64VersionNeed uint16
}

// locateEOCD scans the last maxEOCDSearch bytes of src from the tail for
// the EOCD signature, choosing the last candidate whose declared comment
// length fits in the remaining tail (spec.md §4.3 step 1).
func locateEOCD(src io.ReaderAt, size int64) (*eocd, int64, error) {
	searchLen := int64(maxEOCDSearch)
	if searchLen > size {
		searchLen = size
	}
	if searchLen < directoryEndLen {
		return nil, 0, newFormatError("archive too small to contain EOCD")
	}
	buf := make([]byte, searchLen)
	if _, err := src.ReadAt(buf, size-searchLen); err != nil && err != io.EOF {
		return nil, 0, wrapFormatError("reading EOCD search window", err)
	}

	sigBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(sigBuf, directoryEndSignature)

	for i := len(buf) - directoryEndLen; i >= 0; i-- {
		if !bytes.Equal(buf[i:i+4], sigBuf) {
			continue
		}
		commentLen := int(binary.LittleEndian.Uint16(buf[i+20 : i+22]))
		if i+directoryEndLen+commentLen > len(buf) {
			continue
		}
		record := buf[i : i+directoryEndLen]
		b := binutil.ReadBuf(record[4:])
		e := &eocd{}
		e.diskNumber = b.Uint16()
		e.cdDiskStart = b.Uint16()
		e.entriesOnDisk = uint64(b.Uint16())
		e.totalEntries = uint64(b.Uint16())
		e.cdSize = uint64(b.Uint32())
		e.cdOffset = uint64(b.Uint32())
		e.comment = append([]byte(nil), buf[i+directoryEndLen:i+directoryEndLen+commentLen]...)
		eocdOffset := size - searchLen + int64(i)
		return e, eocdOffset, nil
	}
	return nil, 0, newFormatError("EOCD record not found: not a zip archive")
}

// findZip64 looks immediately before the EOCD for a ZIP64 locator and, if
// present, merges the 64-bit ZIP64 EOCD fields into e.
func findZip64(src io.ReaderAt, e *eocd, eocdOffset int64) error {
	if eocdOffset < directory64LocLen {
		return nil
	}
	locBuf := make([]byte, directory64LocLen)
	if _, err := src.ReadAt(locBuf, eocdOffset-directory64LocLen); err != nil {
		return nil //nolint:nilerr // absent locator is not an error
	}
	if binary.LittleEndian.Uint32(locBuf[0:4]) != directory64LocSignature {
		return nil
	}
	b := binutil.ReadBuf(locBuf[4:])
	_ = b.Uint32() // disk of zip64 EOCD
	zip64Offset := b.Uint64()

	recBuf := make([]byte, directory64EndLen)
	if _, err := src.ReadAt(recBuf, int64(zip64Offset)); err != nil {
		return wrapFormatError("reading zip64 EOCD record", err)
	}
	if binary.LittleEndian.Uint32(recBuf[0:4]) != directory64EndSignature {
		return newFormatError("zip64 EOCD locator points at wrong signature")
	}
	rb := binutil.ReadBuf(recBuf[4:])
	_ = rb.Uint64() // record size
	e.zip64VersionMade = rb.Uint16()
	e.zip64VersionNeed = rb.Uint16()
	_ = rb.Uint32() // disk number
	_ = rb.Uint32() // disk with CD start
	e.entriesOnDisk = rb.Uint64()
	e.totalEntries = rb.Uint64()
	e.cdSize = rb.Uint64()
	e.cdOffset = rb.Uint64()
	e.isZip64 = true
	return nil
}

// nameDecoder decodes raw name/comment bytes using the archive's
// configured encoding.
type nameDecoder func([]byte) string

// readCentralDirectory walks totalEntries consecutive central-directory
// records starting at cdOffset, producing the ordered entry list
// (spec.md §4.3 step 3).
func readCentralDirectory(src io.ReaderAt, cdOffset int64, totalEntries uint64, opts *OpenOptions) ([]*Entry, error) {
	entries := make([]*Entry, 0, totalEntries)
	offset := cdOffset

	for i := uint64(0); i < totalEntries; i++ {
		hdr := make([]byte, directoryHeaderLen)
		if _, err := src.ReadAt(hdr, offset); err != nil {
			return nil, wrapFormatError("reading central directory record", err)
		}
		if binary.LittleEndian.Uint32(hdr[0:4]) != directoryHeaderSignature {
			return nil, newFormatError("central directory record has wrong signature")
		}
		b := binutil.ReadBuf(hdr[4:])

		e := &Entry{}
		e.CreatorVersion = b.Uint16()
		e.ReaderVersion = b.Uint16()
		e.Flags = b.Uint16()
		e.Method = b.Uint16()
		modTime := b.Uint16()
		modDate := b.Uint16()
		e.Modified = dosToTime(modDate, modTime)
		e.CRC32 = b.Uint32()
		csize32 := b.Uint32()
		usize32 := b.Uint32()
		nameLen := int(b.Uint16())
		extraLen := int(b.Uint16())
		commentLen := int(b.Uint16())
		diskStart32 := b.Uint16()
		_ = b.Uint16() // internal attrs
		e.ExternalAttrs = b.Uint32()
		offset32 := b.Uint32()

		e.CompressedSize64 = uint64(csize32)
		e.UncompressedSize64 = uint64(usize32)
		e.DiskNumStart = uint32(diskStart32)
		e.LocalHeaderOffset = uint64(offset32)

		rest := make([]byte, nameLen+extraLen+commentLen)
		if _, err := src.ReadAt(rest, offset+directoryHeaderLen); err != nil {
			return nil, wrapFormatError("reading central directory name/extra/comment", err)
		}
		e.NameRaw = append([]byte(nil), rest[:nameLen]...)
		extraRaw := rest[nameLen : nameLen+extraLen]
		e.CommentRaw = append([]byte(nil), rest[nameLen+extraLen:]...)

		var err error
		e.Extra, err = ParseExtraFields(extraRaw)
		if err != nil {
			return nil, err
		}

		if err := resolveEntryZip64(e); err != nil {
			return nil, err
		}

		decodeNames(e, opts)

		offset += int64(directoryHeaderLen + nameLen + extraLen + commentLen)
		entries = append(entries, e)
	}
	return entries, nil
}

// resolveEntryZip64 applies the ZIP64 extra-field overflow resolution
// (spec.md §3 invariant): if any of csize/usize/offset/disk-start equals
// its 32-bit sentinel, a ZIP64 extra field must supply the 64-bit value.
func resolveEntryZip64(e *Entry) error {
	needUSize := e.UncompressedSize64 == uint32max
	needCSize := e.CompressedSize64 == uint32max
	needOffset := e.LocalHeaderOffset == uint32max
	needDisk := e.DiskNumStart == uint16max

	if !needUSize && !needCSize && !needOffset && !needDisk {
		return nil
	}
	raw := findZip64Raw(e.Extra)
	if raw == nil {
		return newFormatError("entry size/offset is a ZIP64 sentinel but no ZIP64 extra field is present")
	}
	usize, csize, offset, disk, err := resolveZip64(raw, needUSize, needCSize, needOffset, needDisk)
	if err != nil {
		return err
	}
	if needUSize {
		e.UncompressedSize64 = usize
	}
	if needCSize {
		e.CompressedSize64 = csize
	}
	if needOffset {
		e.LocalHeaderOffset = offset
	}
	if needDisk {
		e.DiskNumStart = disk
	}
	return nil
}

// decodeNames resolves Name/Comment from raw bytes, the UTF-8 flag, and
// (if enabled) the Unicode extra fields, tagging NameSource/CommentSource
// per spec.md §4.3.
func decodeNames(e *Entry, opts *OpenOptions) {
	decode := opts.decodeFunc()

	if e.Flags&flagUTF8 != 0 {
		e.Name = string(e.NameRaw)
		e.NameSource = NameSourceUTF8Flag
		e.Comment = string(e.CommentRaw)
		e.CommentSource = NameSourceUTF8Flag
	} else {
		e.Name = decode(e.NameRaw)
		e.NameSource = NameSourceRaw
		e.Comment = decode(e.CommentRaw)
		e.CommentSource = NameSourceRaw
	}

	if !opts.UseUnicodeExtra {
		return
	}
	for _, f := range e.Extra {
		switch f.Tag {
		case tagUnicodePath:
			if u, ok := f.Parsed.(*UnicodeExtra); ok && u.MatchesCRC(e.NameRaw) {
				e.Name = u.Value
				e.NameSource = NameSourceUnicodeExtra
			}
		case tagUnicodeComment:
			if u, ok := f.Parsed.(*UnicodeExtra); ok && u.MatchesCRC(e.CommentRaw) {
				e.Comment = u.Value
				e.CommentSource = NameSourceUnicodeExtra
			}
		}
	}
}
