package rdb

import (
	"io"
	"strconv"
)

// writeString is spec.md §4.6's encoded byte-string writer: it first
// tries the three integer sub-types, then the active compressor, and
// only falls back to a plain length-prefixed byte-string when neither
// representation is smaller.
func writeString(w io.Writer, b []byte, compressor Compressor) error {
	if ok, err := writeIntString(w, b); ok || err != nil {
		return err
	}
	if compressor != nil && len(b) > 20 {
		compressed := compressor.Compress(b)
		if len(compressed) < len(b) {
			if err := writeEncodedMarker(w, compressor.SubType()); err != nil {
				return err
			}
			if err := writeLength(w, uint64(len(compressed))); err != nil {
				return err
			}
			if err := writeLength(w, uint64(len(b))); err != nil {
				return err
			}
			_, err := w.Write(compressed)
			return err
		}
	}
	if err := writeLength(w, uint64(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// writeIntString emits b as an encInt8/16/32 sub-type if it is the
// canonical decimal rendering of a value fitting one of those widths,
// reporting whether it did so.
func writeIntString(w io.Writer, b []byte) (bool, error) {
	if len(b) == 0 || len(b) > 20 {
		return false, nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil || strconv.FormatInt(n, 10) != string(b) {
		return false, nil
	}
	switch {
	case n >= -(1<<7) && n < 1<<7:
		if err := writeEncodedMarker(w, encInt8); err != nil {
			return true, err
		}
		_, err := w.Write([]byte{byte(int8(n))})
		return true, err
	case n >= -(1<<15) && n < 1<<15:
		if err := writeEncodedMarker(w, encInt16); err != nil {
			return true, err
		}
		_, err := w.Write([]byte{byte(uint16(int16(n))), byte(uint16(int16(n)) >> 8)})
		return true, err
	case n >= -(1<<31) && n < 1<<31:
		if err := writeEncodedMarker(w, encInt32); err != nil {
			return true, err
		}
		u := uint32(int32(n))
		_, err := w.Write([]byte{byte(u), byte(u >> 8), byte(u >> 16), byte(u >> 24)})
		return true, err
	default:
		return false, nil
	}
}

// readString reads whatever writeString produced.
func readString(r io.Reader) ([]byte, error) {
	n, isEncoded, subType, err := readLength(r)
	if err != nil {
		return nil, err
	}
	if !isEncoded {
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		return buf, nil
	}
	switch subType {
	case encInt8:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, err
		}
		return []byte(strconv.FormatInt(int64(int8(b[0])), 10)), nil
	case encInt16:
		var b [2]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, err
		}
		v := int16(uint16(b[0]) | uint16(b[1])<<8)
		return []byte(strconv.FormatInt(int64(v), 10)), nil
	case encInt32:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, err
		}
		v := int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
		return []byte(strconv.FormatInt(int64(v), 10)), nil
	default:
		compressor := compressorForSubType(subType)
		if compressor == nil {
			return nil, ErrBadMagic
		}
		compressedLen, _, _, err := readLength(r)
		if err != nil {
			return nil, err
		}
		origLen, _, _, err := readLength(r)
		if err != nil {
			return nil, err
		}
		compressed := make([]byte, compressedLen)
		if _, err := io.ReadFull(r, compressed); err != nil {
			return nil, err
		}
		return compressor.Decompress(make([]byte, 0, origLen), compressed)
	}
}
