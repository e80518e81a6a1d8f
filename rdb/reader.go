package rdb

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/coreworks/memkv/config"
	"github.com/coreworks/memkv/database"
	"github.com/coreworks/memkv/types"
)

// Load reads a snapshot previously written by Save into dbs, looked
// up by index through dbByID. Per spec.md §4.6's loader behavior, the
// loading flag is implicit in this function's shape: each key is
// rebuilt through the types ops and its deadline is attached with
// SetExpireAt only after the value is complete, so an already-past
// deadline is loaded as-is and left for the expire engine to reap
// afterward instead of firing mid-load.
func Load(r io.Reader, dbByID func(id int) *database.DB, cfg *config.Config) error {
	cr := newCRCReader(r)

	header := make([]byte, headerLen)
	if _, err := io.ReadFull(cr, header); err != nil {
		return err
	}
	if string(header[:len(magic)]) != magic || string(header[len(magic):]) != formatVersion {
		return ErrBadMagic
	}

	cur := dbByID(0)
	for {
		var tagBuf [1]byte
		if _, err := io.ReadFull(cr, tagBuf[:]); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		tag := tagBuf[0]

		switch tag {
		case opEOF:
			if cfg != nil && !cfg.RDBChecksum {
				return nil
			}
			return verifyChecksum(r, cr.sum.Sum64())
		case opAux:
			if _, err := readString(cr); err != nil {
				return err
			}
			if _, err := readString(cr); err != nil {
				return err
			}
		case opSelectDB:
			id, _, _, err := readLength(cr)
			if err != nil {
				return err
			}
			cur = dbByID(int(id))
			if cur == nil {
				return fmt.Errorf("rdb: snapshot references unknown database %d", id)
			}
		case opExpireTimeMs:
			var buf [8]byte
			if _, err := io.ReadFull(cr, buf[:]); err != nil {
				return err
			}
			deadline := int64(binary.LittleEndian.Uint64(buf[:]))
			if err := loadValue(cr, cur, cfg, &deadline); err != nil {
				return err
			}
		default:
			if err := loadValueTagged(cr, cur, cfg, tag, nil); err != nil {
				return err
			}
		}
	}
}

func verifyChecksum(r io.Reader, computed uint64) error {
	var footer [8]byte
	if _, err := io.ReadFull(r, footer[:]); err != nil {
		return err
	}
	want := binary.LittleEndian.Uint64(footer[:])
	if want != 0 && want != computed {
		return ErrChecksumMismatch
	}
	return nil
}

// loadValue reads a tag byte then delegates; used after an
// EXPIRETIME_MS record, which is always immediately followed by the
// key/value it applies to.
func loadValue(r io.Reader, db *database.DB, cfg *config.Config, deadline *int64) error {
	var tagBuf [1]byte
	if _, err := io.ReadFull(r, tagBuf[:]); err != nil {
		return err
	}
	return loadValueTagged(r, db, cfg, tagBuf[0], deadline)
}

func loadValueTagged(r io.Reader, db *database.DB, cfg *config.Config, tag byte, deadline *int64) error {
	keyBytes, err := readString(r)
	if err != nil {
		return err
	}
	key := string(keyBytes)
	ops := &types.Ops{DB: db, Cfg: cfg}

	switch tag {
	case typeStringCompact:
		raw, err := readString(r)
		if err != nil {
			return err
		}
		ops.String().Set(key, raw)
	case typeListCompact, typeListGeneral:
		n, _, _, err := readLength(r)
		if err != nil {
			return err
		}
		elems := make([][]byte, n)
		for i := range elems {
			if elems[i], err = readString(r); err != nil {
				return err
			}
		}
		if _, err := ops.List().Push(key, false, elems...); err != nil {
			return err
		}
	case typeSetCompact, typeSetGeneral:
		n, _, _, err := readLength(r)
		if err != nil {
			return err
		}
		members := make([]string, n)
		for i := range members {
			b, err := readString(r)
			if err != nil {
				return err
			}
			members[i] = string(b)
		}
		if _, err := ops.Set().Add(key, members...); err != nil {
			return err
		}
	case typeHashCompact, typeHashGeneral, typeHashZipmap:
		n, _, _, err := readLength(r)
		if err != nil {
			return err
		}
		for i := uint64(0); i < n; i++ {
			field, err := readString(r)
			if err != nil {
				return err
			}
			val, err := readString(r)
			if err != nil {
				return err
			}
			if _, err := ops.Hash().Set(key, string(field), val); err != nil {
				return err
			}
		}
	case typeZsetCompact, typeZsetGeneral:
		n, _, _, err := readLength(r)
		if err != nil {
			return err
		}
		pairs := make(map[string]float64, n)
		for i := uint64(0); i < n; i++ {
			member, err := readString(r)
			if err != nil {
				return err
			}
			score, err := readScore(r)
			if err != nil {
				return err
			}
			pairs[string(member)] = score
		}
		if _, err := ops.ZSet().Add(key, pairs); err != nil {
			return err
		}
	default:
		return fmt.Errorf("rdb: unknown type tag 0x%02x", tag)
	}

	if deadline != nil {
		db.SetExpireAt(key, *deadline)
	}
	return nil
}

func readScore(r io.Reader) (float64, error) {
	var first [1]byte
	if _, err := io.ReadFull(r, first[:]); err != nil {
		return 0, err
	}
	switch first[0] {
	case scoreNaN:
		return nan(), nil
	case scorePosInf:
		return posInf(), nil
	case scoreNegInf:
		return negInf(), nil
	default:
		n := uint64(first[0] & 0x3F) // inline-length tag this package always writes for scores
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return 0, err
		}
		return parseScore(buf)
	}
}
