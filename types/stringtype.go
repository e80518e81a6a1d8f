package types

import (
	"strconv"

	"github.com/coreworks/memkv/kverrors"
	"github.com/coreworks/memkv/value"
)

// StringOps implements the string commands of spec.md §6.1 against
// component B's Value object.
type StringOps struct{ *Ops }

func (o *Ops) String() *StringOps { return &StringOps{o} }

func asString(v *value.Value) ([]byte, error) {
	if v.Type != value.TypeString {
		return nil, kverrors.Wrongtype()
	}
	switch v.Encoding {
	case value.EncIntInline:
		return []byte(strconv.FormatInt(v.Data.(int64), 10)), nil
	case value.EncRaw:
		return v.Data.([]byte), nil
	default:
		return nil, kverrors.Wrongtype()
	}
}

// stringCacheField is the sentinel field name under which the hot-field
// cache (shared with the hash type, SPEC_FULL §4.3) stores a string
// key's value: strings have no fields of their own, but reuse the same
// cache keyed by (db, key, ""). Every lookup still goes through
// LookupForRead first so lazy expiration and hit/miss counters fire
// normally; the cache only spares re-reading v.Data for large raw
// values that are read far more often than they are written.
const stringCacheField = ""

// Get returns key's raw bytes, or (nil, false) if absent.
func (s *StringOps) Get(key string) ([]byte, bool, error) {
	v, ok := s.DB.LookupForRead(key, false)
	if !ok {
		return nil, false, nil
	}
	if v.Encoding == value.EncRaw {
		if cached, present, hit := hotCacheGet(s.DB.ID, key, stringCacheField); hit && present {
			return cached, true, nil
		}
	}
	b, err := asString(v)
	if err == nil && v.Encoding == value.EncRaw {
		hotCachePutPresent(s.DB.ID, key, stringCacheField, b)
	}
	return b, true, err
}

// newStringValue picks the compact integer encoding when val parses
// cleanly as a decimal int64, otherwise the raw encoding (spec.md
// §3.1 string row).
func newStringValue(val []byte) *value.Value {
	if n, ok := parseStrictInt(val); ok {
		return value.SharedInt(n)
	}
	return value.NewValue(value.TypeString, value.EncRaw, val)
}

func parseStrictInt(b []byte) (int64, bool) {
	if len(b) == 0 || len(b) > 20 {
		return 0, false
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, false
	}
	// Reject non-canonical forms ("+1", "01", "-0") so that re-encoding
	// the integer always reproduces the original bytes.
	if strconv.FormatInt(n, 10) != string(b) {
		return 0, false
	}
	return n, true
}

// Set is SET key value: add-or-overwrite, clearing any TTL.
func (s *StringOps) Set(key string, val []byte) {
	nv := newStringValue(val)
	s.DB.Set(key, nv)
	if nv.Encoding == value.EncRaw {
		hotCachePutPresent(s.DB.ID, key, stringCacheField, nv.Data.([]byte))
	}
	s.notify("set", key)
}

// SetNX sets key only if absent; returns whether it set.
func (s *StringOps) SetNX(key string, val []byte) bool {
	if s.DB.Exists(key) {
		return false
	}
	s.Set(key, val)
	return true
}

// unshareRaw implements spec.md §4.3's "string unshare-before-mutate":
// before a destructive in-place mutation, the value must be
// exclusively owned and in the general raw encoding.
func (s *StringOps) unshareRaw(key string) ([]byte, error) {
	v, ok := s.DB.LookupForWrite(key)
	if !ok {
		fresh := value.NewValue(value.TypeString, value.EncRaw, []byte{})
		s.DB.Add(key, fresh)
		return fresh.Data.([]byte), nil
	}
	if v.Type != value.TypeString {
		return nil, kverrors.Wrongtype()
	}
	if v.Encoding == value.EncRaw && v.Refcount() == 1 {
		return v.Data.([]byte), nil
	}
	cur, err := asString(v)
	if err != nil {
		return nil, err
	}
	fresh := append([]byte(nil), cur...)
	freshValue := value.NewValue(value.TypeString, value.EncRaw, fresh)
	s.DB.Overwrite(key, freshValue)
	return fresh, nil
}

// Append implements APPEND key value, returning the new length.
func (s *StringOps) Append(key string, suffix []byte) (int, error) {
	cur, err := s.unshareRaw(key)
	if err != nil {
		return 0, err
	}
	next := append(cur, suffix...)
	v, _ := s.DB.LookupForWrite(key)
	v.Data = next
	hotCachePutPresent(s.DB.ID, key, stringCacheField, next)
	s.notify("append", key)
	return len(next), nil
}

// IncrBy implements INCR/INCRBY/DECR/DECRBY key delta.
func (s *StringOps) IncrBy(key string, delta int64) (int64, error) {
	v, ok := s.DB.LookupForWrite(key)
	var cur int64
	if ok {
		b, err := asString(v)
		if err != nil {
			return 0, err
		}
		n, valid := parseStrictInt(b)
		if !valid {
			return 0, kverrors.New(kverrors.CodeNotInteger, "value is not an integer or out of range")
		}
		cur = n
	}
	next := cur + delta
	if ok {
		s.DB.Overwrite(key, value.NewValue(value.TypeString, value.EncIntInline, next))
	} else {
		s.DB.Add(key, value.NewValue(value.TypeString, value.EncIntInline, next))
	}
	s.notify("incrby", key)
	return next, nil
}

// IncrByFloat implements INCRBYFLOAT key delta.
func (s *StringOps) IncrByFloat(key string, delta float64) (float64, error) {
	v, ok := s.DB.LookupForWrite(key)
	var cur float64
	if ok {
		b, err := asString(v)
		if err != nil {
			return 0, err
		}
		f, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return 0, kverrors.New(kverrors.CodeNotFloat, "value is not a valid float")
		}
		cur = f
	}
	next := cur + delta
	repr := strconv.FormatFloat(next, 'f', -1, 64)
	if ok {
		s.DB.Overwrite(key, value.NewValue(value.TypeString, value.EncRaw, []byte(repr)))
	} else {
		s.DB.Add(key, value.NewValue(value.TypeString, value.EncRaw, []byte(repr)))
	}
	hotCachePutPresent(s.DB.ID, key, stringCacheField, []byte(repr))
	s.notify("incrbyfloat", key)
	return next, nil
}

// Len returns STRLEN key.
func (s *StringOps) Len(key string) (int, error) {
	v, ok := s.DB.LookupForRead(key, false)
	if !ok {
		return 0, nil
	}
	b, err := asString(v)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}
