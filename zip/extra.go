package zip

import (
	"hash/crc32"
	"time"

	"github.com/kirasys/archivekit/internal/binutil"
)

// Extra-field tag IDs (spec.md §4.2).
const (
	tagZip64           uint16 = 0x0001
	tagNTFS            uint16 = 0x000a
	tagUnixOld         uint16 = 0x000d
	tagStrongEncrypt   uint16 = 0x0017
	tagUnicodeComment  uint16 = 0x6375
	tagUnicodePath     uint16 = 0x7075
	tagUnixNew         uint16 = 0x7875
	tagExtTimestamp    uint16 = 0x5455
	tagAES             uint16 = 0x9901
)

// ExtraField is one (tag, payload) record from an entry's extra-field
// area. Data always holds the raw payload so unknown tags round-trip
// verbatim; Parsed holds one of the *Extra types below when the tag was
// recognized.
type ExtraField struct {
	Tag    uint16
	Data   []byte
	Parsed interface{}
}

// UnicodeExtra is the Unicode path (0x7075) or comment (0x6375) extra
// field: a version byte, a CRC-32 of the original name/comment bytes, and
// a UTF-8 payload that replaces the decoded string iff the CRC matches.
type UnicodeExtra struct {
	Version uint8
	CRC32   uint32
	Value   string
}

// ExtendedTimestampExtra is the X5455 extra field (0x5455): up to three
// Unix timestamps, gated by Flags bits 0 (mtime), 1 (atime), 2 (ctime).
// The central-directory copy is conventionally truncated to mtime only.
type ExtendedTimestampExtra struct {
	Flags      uint8
	ModTime    *time.Time
	AccessTime *time.Time
	CreateTime *time.Time
}

// NTFSExtra is the NTFS extra field (0x000a): Windows FILETIME triples
// under tag 0x0001.
type NTFSExtra struct {
	ModTime    time.Time
	AccessTime time.Time
	CreateTime time.Time
}

// UnixOwnerExtra is the Info-ZIP Unix UID/GID extra field, old (0x000d)
// or new (0x7875) form.
type UnixOwnerExtra struct {
	New bool
	UID uint64
	GID uint64
}

// AESExtra is the WinZip AES extra field (0x9901): enough fields to
// identify the vendor, key strength, and true compression method so the
// reader can refuse with a clear unsupported-encryption error.
type AESExtra struct {
	VendorVersion uint16
	VendorID      [2]byte
	Strength      uint8
	RealMethod    uint16
}

// ParseExtraFields walks a raw extra-field area and decodes every
// recognized tag, preserving unrecognized or malformed ones as opaque
// records. Parsers never read past a record's declared length.
func ParseExtraFields(data []byte) ([]ExtraField, error) {
	var fields []ExtraField
	b := binutil.ReadBuf(data)
	for b.Len() >= 4 {
		tag := b.Uint16()
		length := int(b.Uint16())
		if length > b.Len() {
			return fields, newFormatError("extra field length overruns record")
		}
		payload := append([]byte(nil), b.Sub(length)...)
		field := ExtraField{Tag: tag, Data: payload}
		field.Parsed = parseKnownExtra(tag, payload)
		fields = append(fields, field)
	}
	return fields, nil
}

func parseKnownExtra(tag uint16, payload []byte) interface{} {
	switch tag {
	case tagUnicodePath, tagUnicodeComment:
		return parseUnicodeExtra(payload)
	case tagExtTimestamp:
		return parseExtTimestamp(payload)
	case tagNTFS:
		return parseNTFS(payload)
	case tagUnixOld:
		return parseUnixOld(payload)
	case tagUnixNew:
		return parseUnixNew(payload)
	case tagAES:
		return parseAES(payload)
	default:
		return nil
	}
}

func parseUnicodeExtra(payload []byte) *UnicodeExtra {
	if len(payload) < 5 {
		return nil
	}
	b := binutil.ReadBuf(payload)
	version := b.Uint8()
	if version != 1 {
		return nil
	}
	crc := b.Uint32()
	return &UnicodeExtra{Version: version, CRC32: crc, Value: string(b)}
}

// MatchesCRC reports whether u's stored CRC equals CRC32 of raw.
func (u *UnicodeExtra) MatchesCRC(raw []byte) bool {
	return u != nil && u.CRC32 == crc32.ChecksumIEEE(raw)
}

func parseExtTimestamp(payload []byte) *ExtendedTimestampExtra {
	if len(payload) < 1 {
		return nil
	}
	b := binutil.ReadBuf(payload)
	flags := b.Uint8()
	ext := &ExtendedTimestampExtra{Flags: flags}
	read := func() *time.Time {
		if b.Len() < 4 {
			return nil
		}
		t := time.Unix(int64(int32(b.Uint32())), 0).UTC()
		return &t
	}
	if flags&0x1 != 0 {
		ext.ModTime = read()
	}
	if flags&0x2 != 0 {
		ext.AccessTime = read()
	}
	if flags&0x4 != 0 {
		ext.CreateTime = read()
	}
	return ext
}

func makeExtTimestampExtra(mtime time.Time, includeAccessCreate bool) []byte {
	flags := uint8(0x1)
	size := 5
	if includeAccessCreate {
		flags |= 0x6
		size = 13
	}
	buf := make([]byte, size)
	b := binutil.WriteBuf(buf)
	b.Uint8(flags)
	b.Uint32(uint32(mtime.Unix()))
	if includeAccessCreate {
		b.Uint32(uint32(mtime.Unix()))
		b.Uint32(uint32(mtime.Unix()))
	}
	return appendExtraHeader(tagExtTimestamp, buf)
}

// windowsEpochOffset is the number of 100ns intervals between the
// Windows FILETIME epoch (1601-01-01) and the Unix epoch (1970-01-01).
const windowsEpochOffset = 116444736000000000

func filetimeToTime(ft uint64) time.Time {
	if ft == 0 {
		return time.Time{}
	}
	nsec := (int64(ft) - windowsEpochOffset) * 100
	return time.Unix(0, nsec).UTC()
}

func timeToFiletime(t time.Time) uint64 {
	return uint64(t.UnixNano()/100 + windowsEpochOffset)
}

func parseNTFS(payload []byte) *NTFSExtra {
	if len(payload) < 4 {
		return nil
	}
	b := binutil.ReadBuf(payload)
	b.Sub(4) // reserved
	ext := &NTFSExtra{}
	for b.Len() >= 4 {
		subTag := b.Uint16()
		subSize := int(b.Uint16())
		if subSize > b.Len() {
			break
		}
		sub := b.Sub(subSize)
		if subTag == 0x0001 && len(sub) >= 24 {
			sb := binutil.ReadBuf(sub)
			ext.ModTime = filetimeToTime(sb.Uint64())
			ext.AccessTime = filetimeToTime(sb.Uint64())
			ext.CreateTime = filetimeToTime(sb.Uint64())
		}
	}
	return ext
}

func makeNTFSExtra(mtime, atime, ctime time.Time) []byte {
	buf := make([]byte, 4+4+28)
	b := binutil.WriteBuf(buf)
	b.Uint32(0) // reserved
	b.Uint16(0x0001)
	b.Uint16(24)
	b.Uint64(timeToFiletime(mtime))
	b.Uint64(timeToFiletime(atime))
	b.Uint64(timeToFiletime(ctime))
	return appendExtraHeader(tagNTFS, buf)
}

func parseUnixOld(payload []byte) *UnixOwnerExtra {
	// Layout: atime(4) mtime(4) uid(2) gid(2); uid/gid only when present.
	if len(payload) < 12 {
		return nil
	}
	b := binutil.ReadBuf(payload)
	b.Sub(8) // atime, mtime
	uid := b.Uint16()
	gid := b.Uint16()
	return &UnixOwnerExtra{New: false, UID: uint64(uid), GID: uint64(gid)}
}

func parseUnixNew(payload []byte) *UnixOwnerExtra {
	if len(payload) < 3 {
		return nil
	}
	b := binutil.ReadBuf(payload)
	version := b.Uint8()
	if version != 1 {
		return nil
	}
	uidSize := int(b.Uint8())
	if uidSize > b.Len() || uidSize > 8 {
		return nil
	}
	uid := readVarUint(b.Sub(uidSize))
	if b.Len() < 1 {
		return &UnixOwnerExtra{New: true, UID: uid}
	}
	gidSize := int(b.Uint8())
	if gidSize > b.Len() || gidSize > 8 {
		return &UnixOwnerExtra{New: true, UID: uid}
	}
	gid := readVarUint(b.Sub(gidSize))
	return &UnixOwnerExtra{New: true, UID: uid, GID: gid}
}

func readVarUint(b []byte) uint64 {
	var v uint64
	for i, by := range b {
		v |= uint64(by) << (8 * i)
	}
	return v
}

func makeUnixNewExtra(uid, gid uint64) []byte {
	buf := make([]byte, 3+8+8)
	b := binutil.WriteBuf(buf)
	b.Uint8(1)
	b.Uint8(8)
	b.Uint64(uid)
	b.Uint8(8)
	b.Uint64(gid)
	return appendExtraHeader(tagUnixNew, buf)
}

func parseAES(payload []byte) *AESExtra {
	if len(payload) < 7 {
		return nil
	}
	b := binutil.ReadBuf(payload)
	ext := &AESExtra{VendorVersion: b.Uint16()}
	copy(ext.VendorID[:], b.Sub(2))
	ext.Strength = b.Uint8()
	ext.RealMethod = b.Uint16()
	return ext
}

func appendExtraHeader(tag uint16, payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	b := binutil.WriteBuf(out)
	b.Uint16(tag)
	b.Uint16(uint16(len(payload)))
	copy(out[4:], payload)
	return out
}

func makeUnicodeExtra(tag uint16, raw []byte, value string) []byte {
	buf := make([]byte, 5+len(value))
	b := binutil.WriteBuf(buf)
	b.Uint8(1)
	b.Uint32(crc32.ChecksumIEEE(raw))
	copy(buf[5:], value)
	return appendExtraHeader(tag, buf)
}

// findZip64Raw returns the raw zip64 extra payload, if present.
func findZip64Raw(fields []ExtraField) []byte {
	for _, f := range fields {
		if f.Tag == tagZip64 {
			return f.Data
		}
	}
	return nil
}

// resolveZip64 decodes the zip64 extra field's 64-bit values in the order
// dictated by which of the four 32-bit fields were sentinel-valued. Order:
// uncompressed size, compressed size, local header offset, disk start.
func resolveZip64(payload []byte, needUSize, needCSize, needOffset, needDisk bool) (usize, csize, offset uint64, disk uint32, err error) {
	b := binutil.ReadBuf(payload)
	need64 := func(want bool, dst *uint64) error {
		if !want {
			return nil
		}
		if b.Len() < 8 {
			return newFormatError("zip64 extra field truncated")
		}
		*dst = b.Uint64()
		return nil
	}
	if err = need64(needUSize, &usize); err != nil {
		return
	}
	if err = need64(needCSize, &csize); err != nil {
		return
	}
	if err = need64(needOffset, &offset); err != nil {
		return
	}
	if needDisk {
		if b.Len() < 4 {
			err = newFormatError("zip64 extra field truncated (disk start)")
			return
		}
		disk = b.Uint32()
	}
	return
}

func makeZip64Extra(usize, csize, offset uint64, includeOffset bool) []byte {
	size := 16
	if includeOffset {
		size = 24
	}
	buf := make([]byte, size)
	b := binutil.WriteBuf(buf)
	b.Uint64(usize)
	b.Uint64(csize)
	if includeOffset {
		b.Uint64(offset)
	}
	return appendExtraHeader(tagZip64, buf)
}
