// Package rdb implements the binary snapshot codec of spec.md §4.6
// (component H): a point-in-time dump of every database, written
// deterministically in the most compact representation each value's
// encoding allows, with an integrity footer and a loader that never
// fires expirations mid-load.
package rdb

import (
	"errors"
	"hash/crc64"
)

// Header magic and the format version this package writes and reads.
// The version is bumped whenever the wire layout changes in a way the
// migrations package (repurposed, see DESIGN.md) needs to translate.
const (
	magic          = "REDIS"
	formatVersion  = "0011"
	headerLen      = len(magic) + len(formatVersion)
)

// Opcodes that may appear instead of a type tag at record boundaries
// (spec.md §4.6's "sequence of records").
const (
	opAux         byte = 0xFA // auxiliary field (run-id, etc.); skipped by the loader
	opExpireTimeMs byte = 0xFC
	opSelectDB    byte = 0xFE
	opEOF         byte = 0xFF
)

// Type tags identifying the body that follows a key (spec.md §4.6
// "per type tag the body is").
const (
	typeStringCompact byte = 0  // any encoding written as one encoded byte-string
	typeListGeneral   byte = 1
	typeSetGeneral    byte = 2
	typeZsetGeneral   byte = 3
	typeHashGeneral   byte = 4
	typeHashZipmap    byte = 9 // legacy tag, read as compact hash and converted
	typeListCompact   byte = 10
	typeSetCompact    byte = 11
	typeHashCompact   byte = 13
	typeZsetCompact   byte = 12
)

// Length-prefix high-bit tags (spec.md §4.6 table).
const (
	lenMask6   byte = 0x00 // 00: 6-bit inline length
	lenMask14  byte = 0x40 // 01: 14-bit length
	lenMask32  byte = 0x80 // 10: 32-bit length
	lenEncoded byte = 0xC0 // 11: encoded-value marker
)

// Encoded-value sub-types (low 6 bits of a lenEncoded byte). Sub-type
// bytes 253/254 are SPEC_FULL's extension replacing the single LZF
// compressor with a pluggable snappy/zstd pair; 0/1/2 are unchanged
// from spec.md. 253/254 already have both high bits set, so they are
// written as the whole marker byte and readLength reports only their
// low 6 bits (61/62).
const (
	encInt8        byte = 0
	encInt16       byte = 1
	encInt32       byte = 2
	encCompressZstd byte = 253
	encCompressSnappy byte = 254
)

// Zset score sentinel bytes (spec.md §4.6): a score record is either
// one of these markers or a writeLength-prefixed decimal string. None
// of these three values can collide with a real length's leading
// byte: score strings never exceed the 6-bit inline length range.
const (
	scoreNaN    byte = 253
	scorePosInf byte = 254
	scoreNegInf byte = 255
)

// ErrBadMagic is returned when a stream does not begin with the
// expected header.
var ErrBadMagic = errors.New("rdb: bad header magic or unrecognized version")

// ErrChecksumMismatch is returned when a non-zero trailing CRC-64
// does not match the computed one (spec.md §4.6 loader behavior).
var ErrChecksumMismatch = errors.New("rdb: checksum mismatch")

// crcTable is the ISO polynomial CRC-64 table spec.md's footer uses.
var crcTable = crc64.MakeTable(crc64.ISO)
