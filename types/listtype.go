package types

import (
	"container/list"

	"github.com/coreworks/memkv/common"
	"github.com/coreworks/memkv/kverrors"
	"github.com/coreworks/memkv/value"
)

// ListOps implements the list commands of spec.md §6.2. The compact
// encoding stores elements as a flat [][]byte (the packed contiguous
// array of spec.md §3.1); the general encoding upgrades to
// container/list for ordered general-purpose sequences.
type ListOps struct{ *Ops }

func (o *Ops) List() *ListOps { return &ListOps{o} }

func asCompactList(v *value.Value) ([][]byte, error) {
	if v.Type != value.TypeList || v.Encoding != value.EncListZiplist {
		return nil, kverrors.Wrongtype()
	}
	return v.Data.([][]byte), nil
}

func asLinkedList(v *value.Value) (*list.List, error) {
	if v.Type != value.TypeList || v.Encoding != value.EncListLinked {
		return nil, kverrors.Wrongtype()
	}
	return v.Data.(*list.List), nil
}

// overLimit reports whether a compact list, with a new element of
// length newLen added, exceeds the compact thresholds of spec.md §6.5.
func (l *ListOps) overLimit(elems [][]byte, newLen int) bool {
	if newLen > l.Cfg.ListMaxZiplistValue {
		return true
	}
	if len(elems)+1 > l.Cfg.ListMaxZiplistEntries {
		return true
	}
	for _, e := range elems {
		if len(e) > l.Cfg.ListMaxZiplistValue {
			return true
		}
	}
	return false
}

func upgradeToLinked(elems [][]byte) *list.List {
	ll := list.New()
	for _, e := range elems {
		ll.PushBack(e)
	}
	return ll
}

// Push implements LPUSH/RPUSH (left=true pushes to the head). Creates
// the key if absent, upgrading the compact encoding in place once a
// pushed element breaches a threshold (spec.md §3.1, §4.3).
func (l *ListOps) Push(key string, left bool, vals ...[]byte) (int, error) {
	v, ok := l.DB.LookupForWrite(key)
	if !ok {
		v = value.NewValue(value.TypeList, value.EncListZiplist, [][]byte{})
		l.DB.Add(key, v)
	} else if v.Type != value.TypeList {
		return 0, kverrors.Wrongtype()
	}

	for _, val := range vals {
		val = common.CopyBytes(val)
		switch v.Encoding {
		case value.EncListZiplist:
			elems := v.Data.([][]byte)
			if l.overLimit(elems, len(val)) {
				ll := upgradeToLinked(elems)
				if left {
					ll.PushFront(val)
				} else {
					ll.PushBack(val)
				}
				v.Encoding = value.EncListLinked
				v.Data = ll
			} else {
				if left {
					elems = append([][]byte{val}, elems...)
				} else {
					elems = append(elems, val)
				}
				v.Data = elems
			}
		case value.EncListLinked:
			ll := v.Data.(*list.List)
			if left {
				ll.PushFront(val)
			} else {
				ll.PushBack(val)
			}
		}
	}
	l.DB.MarkReady(key)
	l.notify("lpush_or_rpush", key)
	return l.lenUnsafe(v), nil
}

func (l *ListOps) lenUnsafe(v *value.Value) int {
	switch v.Encoding {
	case value.EncListZiplist:
		return len(v.Data.([][]byte))
	case value.EncListLinked:
		return v.Data.(*list.List).Len()
	}
	return 0
}

// Len returns LLEN key.
func (l *ListOps) Len(key string) (int, error) {
	v, ok := l.DB.LookupForRead(key, false)
	if !ok {
		return 0, nil
	}
	if v.Type != value.TypeList {
		return 0, kverrors.Wrongtype()
	}
	return l.lenUnsafe(v), nil
}

// Pop implements LPOP/RPOP; deletes the key if it becomes empty
// (spec.md §4.3 aggregate empty-becomes-absent).
func (l *ListOps) Pop(key string, left bool) ([]byte, bool, error) {
	v, ok := l.DB.LookupForWrite(key)
	if !ok {
		return nil, false, nil
	}
	if v.Type != value.TypeList {
		return nil, false, kverrors.Wrongtype()
	}

	var out []byte
	var empty bool
	switch v.Encoding {
	case value.EncListZiplist:
		elems := v.Data.([][]byte)
		if len(elems) == 0 {
			return nil, false, nil
		}
		if left {
			out = elems[0]
			elems = elems[1:]
		} else {
			out = elems[len(elems)-1]
			elems = elems[:len(elems)-1]
		}
		v.Data = elems
		empty = len(elems) == 0
	case value.EncListLinked:
		ll := v.Data.(*list.List)
		var e *list.Element
		if left {
			e = ll.Front()
		} else {
			e = ll.Back()
		}
		if e == nil {
			return nil, false, nil
		}
		out = e.Value.([]byte)
		ll.Remove(e)
		empty = ll.Len() == 0
	}
	l.notify("lpop_or_rpop", key)
	l.deleteIfEmpty(key, empty)
	return out, true, nil
}

// Index implements LINDEX key index, supporting negative indices.
func (l *ListOps) Index(key string, index int) ([]byte, bool, error) {
	v, ok := l.DB.LookupForRead(key, false)
	if !ok {
		return nil, false, nil
	}
	if v.Type != value.TypeList {
		return nil, false, kverrors.Wrongtype()
	}

	switch v.Encoding {
	case value.EncListZiplist:
		elems := v.Data.([][]byte)
		idx := normalizeIndex(index, len(elems))
		if idx < 0 || idx >= len(elems) {
			return nil, false, nil
		}
		return elems[idx], true, nil
	case value.EncListLinked:
		ll := v.Data.(*list.List)
		idx := normalizeIndex(index, ll.Len())
		if idx < 0 || idx >= ll.Len() {
			return nil, false, nil
		}
		e := ll.Front()
		for i := 0; i < idx; i++ {
			e = e.Next()
		}
		return e.Value.([]byte), true, nil
	}
	return nil, false, nil
}

func normalizeIndex(index, length int) int {
	if index < 0 {
		return length + index
	}
	return index
}

// Range implements LRANGE key start stop (inclusive, Redis-style
// negative indices, clamped to the list bounds).
func (l *ListOps) Range(key string, start, stop int) ([][]byte, error) {
	v, ok := l.DB.LookupForRead(key, false)
	if !ok {
		return nil, nil
	}
	if v.Type != value.TypeList {
		return nil, kverrors.Wrongtype()
	}

	var all [][]byte
	switch v.Encoding {
	case value.EncListZiplist:
		all = v.Data.([][]byte)
	case value.EncListLinked:
		ll := v.Data.(*list.List)
		all = make([][]byte, 0, ll.Len())
		for e := ll.Front(); e != nil; e = e.Next() {
			all = append(all, e.Value.([]byte))
		}
	}

	n := len(all)
	s := normalizeIndex(start, n)
	e := normalizeIndex(stop, n)
	if s < 0 {
		s = 0
	}
	if e >= n {
		e = n - 1
	}
	if s > e || n == 0 {
		return [][]byte{}, nil
	}
	out := make([][]byte, e-s+1)
	copy(out, all[s:e+1])
	return out, nil
}

// Set implements LSET key index value; the index must already exist.
func (l *ListOps) Set(key string, index int, val []byte) error {
	v, ok := l.DB.LookupForWrite(key)
	if !ok {
		return kverrors.New(kverrors.CodeNoSuchKey, "no such key")
	}
	if v.Type != value.TypeList {
		return kverrors.Wrongtype()
	}
	val = common.CopyBytes(val)

	switch v.Encoding {
	case value.EncListZiplist:
		elems := v.Data.([][]byte)
		idx := normalizeIndex(index, len(elems))
		if idx < 0 || idx >= len(elems) {
			return kverrors.New(kverrors.CodeOutOfRange, "index out of range")
		}
		elems[idx] = val
	case value.EncListLinked:
		ll := v.Data.(*list.List)
		idx := normalizeIndex(index, ll.Len())
		if idx < 0 || idx >= ll.Len() {
			return kverrors.New(kverrors.CodeOutOfRange, "index out of range")
		}
		e := ll.Front()
		for i := 0; i < idx; i++ {
			e = e.Next()
		}
		e.Value = val
	}
	l.notify("lset", key)
	return nil
}

// Trim implements LTRIM key start stop, discarding elements outside
// the inclusive range; deletes the key if the result is empty.
func (l *ListOps) Trim(key string, start, stop int) error {
	v, ok := l.DB.LookupForWrite(key)
	if !ok {
		return nil
	}
	if v.Type != value.TypeList {
		return kverrors.Wrongtype()
	}

	var all [][]byte
	switch v.Encoding {
	case value.EncListZiplist:
		all = v.Data.([][]byte)
	case value.EncListLinked:
		ll := v.Data.(*list.List)
		all = make([][]byte, 0, ll.Len())
		for e := ll.Front(); e != nil; e = e.Next() {
			all = append(all, e.Value.([]byte))
		}
	}

	n := len(all)
	s := normalizeIndex(start, n)
	e := normalizeIndex(stop, n)
	if s < 0 {
		s = 0
	}
	if e >= n {
		e = n - 1
	}

	var trimmed [][]byte
	if s > e || n == 0 {
		trimmed = [][]byte{}
	} else {
		trimmed = append([][]byte(nil), all[s:e+1]...)
	}

	switch v.Encoding {
	case value.EncListZiplist:
		v.Data = trimmed
	case value.EncListLinked:
		v.Data = upgradeToLinked(trimmed)
	}
	l.notify("ltrim", key)
	l.deleteIfEmpty(key, len(trimmed) == 0)
	return nil
}
