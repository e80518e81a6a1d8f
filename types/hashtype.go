package types

import (
	"strconv"

	"github.com/coreworks/memkv/common"
	"github.com/coreworks/memkv/kverrors"
	"github.com/coreworks/memkv/scan"
	"github.com/coreworks/memkv/value"
)

// HashPair is one field/value pair of the compact packed encoding
// (spec.md §3.1 "packed contiguous key/value array"). Exported so the
// snapshot codec (component H) can walk a compact hash's payload
// without duplicating the encoding-tier logic.
type HashPair struct {
	Field string
	Value []byte
}

// HashOps implements the hash commands of spec.md §6.4.
type HashOps struct{ *Ops }

func (o *Ops) Hash() *HashOps { return &HashOps{o} }

func (h *HashOps) overLimit(pairs []HashPair, newField string, newVal []byte) bool {
	if len(newField) > h.Cfg.HashMaxZiplistValue || len(newVal) > h.Cfg.HashMaxZiplistValue {
		return true
	}
	if len(pairs)+1 > h.Cfg.HashMaxZiplistEntries {
		return true
	}
	for _, p := range pairs {
		if len(p.Field) > h.Cfg.HashMaxZiplistValue || len(p.Value) > h.Cfg.HashMaxZiplistValue {
			return true
		}
	}
	return false
}

func upgradeHashToTable(pairs []HashPair) map[string][]byte {
	m := make(map[string][]byte, len(pairs))
	for _, p := range pairs {
		m[p.Field] = p.Value
	}
	return m
}

func (h *HashOps) ensureHash(key string) (*value.Value, error) {
	v, ok := h.DB.LookupForWrite(key)
	if !ok {
		v = value.NewValue(value.TypeHash, value.EncHashZiplist, []HashPair{})
		h.DB.Add(key, v)
		return v, nil
	}
	if v.Type != value.TypeHash {
		return nil, kverrors.Wrongtype()
	}
	return v, nil
}

// setField sets field=val in-place, upgrading encoding if needed, and
// reports whether the field was newly created.
func (h *HashOps) setField(v *value.Value, key, field string, val []byte) bool {
	val = common.CopyBytes(val)
	defer hotCachePutPresent(h.DB.ID, key, field, val)
	switch v.Encoding {
	case value.EncHashZiplist:
		pairs := v.Data.([]HashPair)
		for i := range pairs {
			if pairs[i].Field == field {
				pairs[i].Value = val
				v.Data = pairs
				return false
			}
		}
		if h.overLimit(pairs, field, val) {
			m := upgradeHashToTable(pairs)
			m[field] = val
			v.Encoding = value.EncHashtable
			v.Data = m
		} else {
			v.Data = append(pairs, HashPair{Field: field, Value: val})
		}
		return true
	case value.EncHashtable:
		m := v.Data.(map[string][]byte)
		_, existed := m[field]
		m[field] = val
		return !existed
	}
	return false
}

// Set implements HSET key field value, returning whether field is new.
func (h *HashOps) Set(key, field string, val []byte) (bool, error) {
	v, err := h.ensureHash(key)
	if err != nil {
		return false, err
	}
	created := h.setField(v, key, field, val)
	h.notify("hset", key)
	return created, nil
}

// SetMany implements HMSET key field value…, setting every pair under
// a single notification.
func (h *HashOps) SetMany(key string, pairs []HashPair) error {
	v, err := h.ensureHash(key)
	if err != nil {
		return err
	}
	for _, p := range pairs {
		h.setField(v, key, p.Field, p.Value)
	}
	h.notify("hset", key)
	return nil
}

// GetMany implements HMGET key field…, returning one slot per
// requested field (nil, false for a missing field).
func (h *HashOps) GetMany(key string, fields ...string) ([][]byte, []bool, error) {
	vals := make([][]byte, len(fields))
	found := make([]bool, len(fields))
	for i, f := range fields {
		val, ok, err := h.Get(key, f)
		if err != nil {
			return nil, nil, err
		}
		vals[i], found[i] = val, ok
	}
	return vals, found, nil
}

// SetNX implements HSETNX key field value.
func (h *HashOps) SetNX(key, field string, val []byte) (bool, error) {
	existing, ok, err := h.Get(key, field)
	if err != nil {
		return false, err
	}
	if ok {
		_ = existing
		return false, nil
	}
	_, err = h.Set(key, field, val)
	return err == nil, err
}

// Get implements HGET key field.
func (h *HashOps) Get(key, field string) ([]byte, bool, error) {
	v, ok := h.DB.LookupForRead(key, false)
	if !ok {
		return nil, false, nil
	}
	if v.Type != value.TypeHash {
		return nil, false, kverrors.Wrongtype()
	}
	switch v.Encoding {
	case value.EncHashZiplist:
		for _, p := range v.Data.([]HashPair) {
			if p.Field == field {
				return p.Value, true, nil
			}
		}
		return nil, false, nil
	case value.EncHashtable:
		if cached, present, hit := hotCacheGet(h.DB.ID, key, field); hit {
			return cached, present, nil
		}
		val, ok := v.Data.(map[string][]byte)[field]
		if ok {
			hotCachePutPresent(h.DB.ID, key, field, val)
		} else {
			hotCachePutAbsent(h.DB.ID, key, field)
		}
		return val, ok, nil
	}
	return nil, false, nil
}

// Del implements HDEL key field…, deleting the key if it empties.
func (h *HashOps) Del(key string, fields ...string) (int, error) {
	v, ok := h.DB.LookupForWrite(key)
	if !ok {
		return 0, nil
	}
	if v.Type != value.TypeHash {
		return 0, kverrors.Wrongtype()
	}

	removed := 0
	switch v.Encoding {
	case value.EncHashZiplist:
		pairs := v.Data.([]HashPair)
		for _, f := range fields {
			for i := range pairs {
				if pairs[i].Field == f {
					pairs = append(pairs[:i], pairs[i+1:]...)
					removed++
					break
				}
			}
		}
		v.Data = pairs
	case value.EncHashtable:
		m := v.Data.(map[string][]byte)
		for _, f := range fields {
			if _, ok := m[f]; ok {
				delete(m, f)
				removed++
			}
		}
	}
	for _, f := range fields {
		hotCachePutAbsent(h.DB.ID, key, f)
	}
	if removed > 0 {
		h.notify("hdel", key)
	}
	h.deleteIfEmpty(key, h.lenUnsafe(v) == 0)
	return removed, nil
}

func (h *HashOps) lenUnsafe(v *value.Value) int {
	switch v.Encoding {
	case value.EncHashZiplist:
		return len(v.Data.([]HashPair))
	case value.EncHashtable:
		return len(v.Data.(map[string][]byte))
	}
	return 0
}

// Len implements HLEN key.
func (h *HashOps) Len(key string) (int, error) {
	v, ok := h.DB.LookupForRead(key, false)
	if !ok {
		return 0, nil
	}
	if v.Type != value.TypeHash {
		return 0, kverrors.Wrongtype()
	}
	return h.lenUnsafe(v), nil
}

// Exists implements HEXISTS key field.
func (h *HashOps) Exists(key, field string) (bool, error) {
	_, ok, err := h.Get(key, field)
	return ok, err
}

// GetAll implements HGETALL key.
func (h *HashOps) GetAll(key string) ([]string, [][]byte, error) {
	v, ok := h.DB.LookupForRead(key, false)
	if !ok {
		return nil, nil, nil
	}
	if v.Type != value.TypeHash {
		return nil, nil, kverrors.Wrongtype()
	}
	switch v.Encoding {
	case value.EncHashZiplist:
		pairs := v.Data.([]HashPair)
		fields := make([]string, len(pairs))
		vals := make([][]byte, len(pairs))
		for i, p := range pairs {
			fields[i], vals[i] = p.Field, p.Value
		}
		return fields, vals, nil
	case value.EncHashtable:
		m := v.Data.(map[string][]byte)
		fields := make([]string, 0, len(m))
		vals := make([][]byte, 0, len(m))
		for f, val := range m {
			fields = append(fields, f)
			vals = append(vals, val)
		}
		return fields, vals, nil
	}
	return nil, nil, nil
}

// Keys implements HKEYS key.
func (h *HashOps) Keys(key string) ([]string, error) {
	fields, _, err := h.GetAll(key)
	return fields, err
}

// Vals implements HVALS key.
func (h *HashOps) Vals(key string) ([][]byte, error) {
	_, vals, err := h.GetAll(key)
	return vals, err
}

// Scan implements HSCAN key cursor [MATCH pattern] [COUNT count]
// (spec.md §4.5, §6.1): a compact-encoded hash collapses to one call
// with the cursor resetting to 0; a hashtable-encoded hash drives the
// true reverse-binary cursor over field names, with values looked up
// afterward for whatever the cursor pass matched.
func (h *HashOps) Scan(key string, cursor uint64, count int, pattern string) (uint64, []string, [][]byte, error) {
	v, ok := h.DB.LookupForRead(key, true)
	if !ok {
		return 0, nil, nil, nil
	}
	if v.Type != value.TypeHash {
		return 0, nil, nil, kverrors.Wrongtype()
	}

	matchesPattern := func(field string) bool {
		return pattern == "" || pattern == "*" || common.GlobMatch(pattern, field)
	}

	switch v.Encoding {
	case value.EncHashZiplist:
		pairs := v.Data.([]HashPair)
		fields := make([]string, 0, len(pairs))
		vals := make([][]byte, 0, len(pairs))
		for _, p := range pairs {
			if matchesPattern(p.Field) {
				fields = append(fields, p.Field)
				vals = append(vals, p.Value)
			}
		}
		return 0, fields, vals, nil
	case value.EncHashtable:
		m := v.Data.(map[string][]byte)
		names := make([]string, 0, len(m))
		for f := range m {
			names = append(names, f)
		}
		next, matched := scan.Scan(names, cursor, count, pattern)
		vals := make([][]byte, len(matched))
		for i, f := range matched {
			vals[i] = m[f]
		}
		return next, matched, vals, nil
	}
	return 0, nil, nil, nil
}

// IncrBy implements HINCRBY key field delta.
func (h *HashOps) IncrBy(key, field string, delta int64) (int64, error) {
	v, err := h.ensureHash(key)
	if err != nil {
		return 0, err
	}
	cur, ok, err := h.Get(key, field)
	if err != nil {
		return 0, err
	}
	var n int64
	if ok {
		n, err = strconv.ParseInt(string(cur), 10, 64)
		if err != nil {
			return 0, kverrors.New(kverrors.CodeNotInteger, "hash value is not an integer")
		}
	}
	next := n + delta
	h.setField(v, key, field, []byte(strconv.FormatInt(next, 10)))
	h.notify("hincrby", key)
	return next, nil
}

// IncrByFloat implements HINCRBYFLOAT key field delta.
func (h *HashOps) IncrByFloat(key, field string, delta float64) (float64, error) {
	v, err := h.ensureHash(key)
	if err != nil {
		return 0, err
	}
	cur, ok, err := h.Get(key, field)
	if err != nil {
		return 0, err
	}
	var f float64
	if ok {
		f, err = strconv.ParseFloat(string(cur), 64)
		if err != nil {
			return 0, kverrors.New(kverrors.CodeNotFloat, "hash value is not a float")
		}
	}
	next := f + delta
	repr := strconv.FormatFloat(next, 'f', -1, 64)
	h.setField(v, key, field, []byte(repr))
	h.notify("hincrbyfloat", key)
	return next, nil
}
