package rdb

import (
	"encoding/binary"
	"hash"
	"hash/crc64"
	"io"
	"math"
	"strconv"

	"github.com/pborman/uuid"

	"github.com/coreworks/memkv/database"
	"github.com/coreworks/memkv/types"
	"github.com/coreworks/memkv/value"
)

// crcWriter tees every byte written through it into a running CRC-64
// so the footer (spec.md §4.6) never needs a second pass over the
// file.
type crcWriter struct {
	w   io.Writer
	sum hash.Hash64
}

func newCRCWriter(w io.Writer) *crcWriter {
	return &crcWriter{w: w, sum: crc64.New(crcTable)}
}

func (c *crcWriter) Write(p []byte) (int, error) {
	c.sum.Write(p)
	return c.w.Write(p)
}

// Save writes a full snapshot of every database in dbs to w, in
// spec.md §4.6's wire format: header, an aux run-id field, one
// SELECT_DB-delimited block of key records per non-empty database,
// then an EOF opcode and CRC-64 footer. compressor may be nil to
// disable string compression (checksums are always written; spec.md's
// "zero if checksums disabled" case is not exercised here since this
// package always computes one).
func Save(w io.Writer, dbs []*database.DB, compressor Compressor) error {
	cw := newCRCWriter(w)

	if _, err := cw.Write([]byte(magic + formatVersion)); err != nil {
		return err
	}
	if err := writeAux(cw, "run-id", uuid.New()); err != nil {
		return err
	}

	for _, db := range dbs {
		if db.Size() == 0 {
			continue
		}
		if _, err := cw.Write([]byte{opSelectDB}); err != nil {
			return err
		}
		if err := writeLength(cw, uint64(db.ID)); err != nil {
			return err
		}
		for key, v := range db.Keyspace() {
			if deadline, ok := db.GetExpireAt(key); ok {
				if _, err := cw.Write([]byte{opExpireTimeMs}); err != nil {
					return err
				}
				var buf [8]byte
				binary.LittleEndian.PutUint64(buf[:], uint64(deadline))
				if _, err := cw.Write(buf[:]); err != nil {
					return err
				}
			}
			if err := writeValue(cw, key, v, compressor); err != nil {
				return err
			}
		}
	}

	if _, err := cw.Write([]byte{opEOF}); err != nil {
		return err
	}
	var footer [8]byte
	binary.LittleEndian.PutUint64(footer[:], cw.sum.Sum64())
	_, err := w.Write(footer[:])
	return err
}

func writeAux(w io.Writer, key, val string) error {
	if _, err := w.Write([]byte{opAux}); err != nil {
		return err
	}
	if err := writeString(w, []byte(key), nil); err != nil {
		return err
	}
	return writeString(w, []byte(val), nil)
}

// writeValue writes key then a type tag and body for v. The tag
// records which encoding tier produced the value (spec.md §4.6's
// per-type tag table); the body format for a given Type is the same
// regardless of tier, since this codec's compact encodings are
// already typed Go slices rather than a packed byte buffer (see
// DESIGN.md) — the loader rebuilds through the same typed ops either
// way and re-derives the tier from current thresholds.
func writeValue(w io.Writer, key string, v *value.Value, compressor Compressor) error {
	tag, err := valueTag(v)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte{tag}); err != nil {
		return err
	}
	if err := writeString(w, []byte(key), compressor); err != nil {
		return err
	}
	switch v.Type {
	case value.TypeString:
		return writeString(w, types.StringBytes(v), compressor)
	case value.TypeList:
		elems := types.ListElements(v)
		if err := writeLength(w, uint64(len(elems))); err != nil {
			return err
		}
		for _, e := range elems {
			if err := writeString(w, e, compressor); err != nil {
				return err
			}
		}
		return nil
	case value.TypeSet:
		members := types.SetMembers(v)
		if err := writeLength(w, uint64(len(members))); err != nil {
			return err
		}
		for _, m := range members {
			if err := writeString(w, []byte(m), compressor); err != nil {
				return err
			}
		}
		return nil
	case value.TypeHash:
		pairs := types.HashPairs(v)
		if err := writeLength(w, uint64(len(pairs))); err != nil {
			return err
		}
		for _, p := range pairs {
			if err := writeString(w, []byte(p.Field), compressor); err != nil {
				return err
			}
			if err := writeString(w, p.Value, compressor); err != nil {
				return err
			}
		}
		return nil
	case value.TypeZSet:
		pairs := types.ZSetPairs(v)
		if err := writeLength(w, uint64(len(pairs))); err != nil {
			return err
		}
		for _, p := range pairs {
			if err := writeString(w, []byte(p.Member), compressor); err != nil {
				return err
			}
			if err := writeScore(w, p.Score); err != nil {
				return err
			}
		}
		return nil
	default:
		return ErrBadMagic
	}
}

func valueTag(v *value.Value) (byte, error) {
	switch v.Type {
	case value.TypeString:
		return typeStringCompact, nil
	case value.TypeList:
		if v.Encoding == value.EncListZiplist {
			return typeListCompact, nil
		}
		return typeListGeneral, nil
	case value.TypeSet:
		if v.Encoding == value.EncSetHashtable {
			return typeSetGeneral, nil
		}
		return typeSetCompact, nil
	case value.TypeHash:
		if v.Encoding == value.EncHashZiplist {
			return typeHashCompact, nil
		}
		return typeHashGeneral, nil
	case value.TypeZSet:
		if v.Encoding == value.EncZsetZiplist {
			return typeZsetCompact, nil
		}
		return typeZsetGeneral, nil
	default:
		return 0, ErrBadMagic
	}
}

// writeScore writes a zset score using the NaN/+Inf/-Inf sentinel
// bytes of spec.md §4.6 in place of a length-prefixed decimal string.
func writeScore(w io.Writer, score float64) error {
	switch {
	case math.IsNaN(score):
		_, err := w.Write([]byte{scoreNaN})
		return err
	case math.IsInf(score, 1):
		_, err := w.Write([]byte{scorePosInf})
		return err
	case math.IsInf(score, -1):
		_, err := w.Write([]byte{scoreNegInf})
		return err
	default:
		s := strconv.FormatFloat(score, 'g', -1, 64)
		if err := writeLength(w, uint64(len(s))); err != nil {
			return err
		}
		_, err := w.Write([]byte(s))
		return err
	}
}
