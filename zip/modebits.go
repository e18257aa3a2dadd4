// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zip

import "os"

// Unix mode bits (spec.md §3): the ZIP spec doesn't name these, but
// they're the values every writer/reader has converged on.
const (
	sIFMT   = 0xf000
	sIFSOCK = 0xc000
	sIFLNK  = 0xa000
	sIFREG  = 0x8000
	sIFBLK  = 0x6000
	sIFDIR  = 0x4000
	sIFCHR  = 0x2000
	sIFIFO  = 0x1000
	sISUID  = 0x800
	sISGID  = 0x400
	sISVTX  = 0x200

	msdosDir      = 0x10
	msdosReadOnly = 0x01
)

func msdosModeToFileMode(m uint32) (mode os.FileMode) {
	if m&msdosDir != 0 {
		mode = os.ModeDir | 0777
	} else {
		mode = 0666
	}
	if m&msdosReadOnly != 0 {
		mode &^= 0222
	}
	return mode
}

func fileModeToUnixMode(mode os.FileMode) uint32 {
	var m uint32
	switch mode & os.ModeType {
	default:
		m = sIFREG
	case os.ModeDir:
		m = sIFDIR
	case os.ModeSymlink:
		m = sIFLNK
	case os.ModeNamedPipe:
		m = sIFIFO
	case os.ModeSocket:
		m = sIFSOCK
	case os.ModeDevice:
		if mode&os.ModeCharDevice != 0 {
			m = sIFCHR
		} else {
			m = sIFBLK
		}
	}
	if mode&os.ModeSetuid != 0 {
		m |= sISUID
	}
	if mode&os.ModeSetgid != 0 {
		m |= sISGID
	}
	if mode&os.ModeSticky != 0 {
		m |= sISVTX
	}
	return m | uint32(mode&0777)
}

func unixModeToFileMode(m uint32) os.FileMode {
	mode := os.FileMode(m & 0777)
	switch m & sIFMT {
	case sIFBLK:
		mode |= os.ModeDevice
	case sIFCHR:
		mode |= os.ModeDevice | os.ModeCharDevice
	case sIFDIR:
		mode |= os.ModeDir
	case sIFIFO:
		mode |= os.ModeNamedPipe
	case sIFLNK:
		mode |= os.ModeSymlink
	case sIFREG:
	case sIFSOCK:
		mode |= os.ModeSocket
	}
	if m&sISGID != 0 {
		mode |= os.ModeSetgid
	}
	if m&sISUID != 0 {
		mode |= os.ModeSetuid
	}
	if m&sISVTX != 0 {
		mode |= os.ModeSticky
	}
	return mode
}
