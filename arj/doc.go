// Package arj reads ARJ archives: a magic-pair scan locates each
// CRC-protected basic header, the first of which is the archive's main
// header and every one after it a per-file local header. Only the
// STORED method is decoded; encrypted or multi-volume archives are
// refused outright.
package arj
