// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zip

import (
	"io"
	"unicode/utf8"
)

// countWriter tallies bytes written, giving the Writer a running archive
// offset without needing the destination to support Seek.
type countWriter struct {
	w     io.Writer
	count int64
}

func (w *countWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.count += int64(n)
	return n, err
}

// detectUTF8 reports whether s is valid UTF-8, and whether it contains a
// character outside the CP-437-ish ASCII subset and so requires the
// UTF-8 flag.
// The heuristic (forbid 0x7e/0x5c to dodge EUC-KR/Shift-JIS
// currency-symbol collisions) is the same one archive/zip uses.
func detectUTF8(s string) (valid, require bool) {
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		if r < 0x20 || r > 0x7d || r == 0x5c {
			if !utf8.ValidRune(r) || (r == utf8.RuneError && size == 1) {
				return false, false
			}
			require = true
		}
	}
	return true, require
}
