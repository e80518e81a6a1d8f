package rdb

import (
	"encoding/binary"
	"io"
)

// writeLength writes n using spec.md §4.6's length-prefix scheme: a
// 6-bit inline length, a 14-bit length, or a 32-bit length, each
// picked as the smallest that fits.
func writeLength(w io.Writer, n uint64) error {
	switch {
	case n < 1<<6:
		_, err := w.Write([]byte{lenMask6 | byte(n)})
		return err
	case n < 1<<14:
		hi := byte(n >> 8)
		lo := byte(n)
		_, err := w.Write([]byte{lenMask14 | hi, lo})
		return err
	default:
		var buf [5]byte
		buf[0] = lenMask32
		binary.BigEndian.PutUint32(buf[1:], uint32(n))
		_, err := w.Write(buf[:])
		return err
	}
}

// writeEncodedMarker writes a lenEncoded byte carrying subType in its
// low 6 bits, announcing that an encoded-value body (not a plain
// length) follows.
func writeEncodedMarker(w io.Writer, subType byte) error {
	_, err := w.Write([]byte{lenEncoded | subType})
	return err
}

// readLength reads a length-prefix byte (and any continuation bytes).
// If the two high bits are 11 (lenEncoded), isEncoded is true and
// subType carries the low 6 bits instead of a length.
func readLength(r io.Reader) (n uint64, isEncoded bool, subType byte, err error) {
	var first [1]byte
	if _, err = io.ReadFull(r, first[:]); err != nil {
		return 0, false, 0, err
	}
	tag := first[0] & 0xC0
	switch tag {
	case lenMask6:
		return uint64(first[0] & 0x3F), false, 0, nil
	case lenMask14:
		var second [1]byte
		if _, err = io.ReadFull(r, second[:]); err != nil {
			return 0, false, 0, err
		}
		return uint64(first[0]&0x3F)<<8 | uint64(second[0]), false, 0, nil
	case lenMask32:
		var rest [4]byte
		if _, err = io.ReadFull(r, rest[:]); err != nil {
			return 0, false, 0, err
		}
		return uint64(binary.BigEndian.Uint32(rest[:])), false, 0, nil
	default: // lenEncoded
		return 0, true, first[0] & 0x3F, nil
	}
}
