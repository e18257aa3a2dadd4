// Package zip reads and writes ZIP archives.
//
// It provides a seekable reader (Reader) that walks the central directory
// for random access, a forward-only streaming reader (StreamReader) for
// sources that cannot seek, and a Writer that builds archives to either a
// seekable or a stream-only destination. A Reader may additionally be
// opened over a split/spanned archive (multiple numbered .zNN segments
// plus a final .zip) via OpenSegments.
//
// Compression methods are resolved through a pluggable registry
// (see package compressor); STORED and DEFLATE are always available.
//
// See: https://www.pkware.com/appnote
package zip
