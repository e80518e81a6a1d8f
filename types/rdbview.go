package types

import (
	"container/list"
	"sort"
	"strconv"

	"github.com/RoaringBitmap/roaring"

	"github.com/coreworks/memkv/value"
	"github.com/coreworks/memkv/zset"
)

// StringBytes returns a string value's raw bytes regardless of
// whether it is currently stored as an inline integer or raw buffer.
// Used by both the snapshot codec (component H) and the rewrite
// pipeline (component J) to serialize a string key's minimal
// reconstruction without each duplicating the int-inline check.
func StringBytes(v *value.Value) []byte {
	if v.Encoding == value.EncIntInline {
		return []byte(strconv.FormatInt(v.Data.(int64), 10))
	}
	return v.Data.([]byte)
}

// ListElements returns every element of a list value in order,
// regardless of its current encoding tier. The snapshot codec
// (component H) uses this to serialize a list without duplicating
// the compact/linked split.
func ListElements(v *value.Value) [][]byte {
	switch v.Encoding {
	case value.EncListZiplist:
		return v.Data.([][]byte)
	default:
		ll := v.Data.(*list.List)
		out := make([][]byte, 0, ll.Len())
		for e := ll.Front(); e != nil; e = e.Next() {
			out = append(out, e.Value.([]byte))
		}
		return out
	}
}

// SetMembers returns every member of a set value as decimal strings
// (for the int tiers) or raw strings (for the hashtable tier),
// regardless of encoding. Order is unspecified for the hashtable
// tier.
func SetMembers(v *value.Value) []string {
	switch v.Encoding {
	case value.EncSetIntset:
		arr := v.Data.([]int64)
		out := make([]string, len(arr))
		for i, n := range arr {
			out[i] = strconv.FormatInt(n, 10)
		}
		return out
	case value.EncSetRoaring:
		bm := v.Data.(*roaring.Bitmap)
		out := make([]string, 0, bm.GetCardinality())
		it := bm.Iterator()
		for it.HasNext() {
			out = append(out, strconv.FormatUint(uint64(it.Next()), 10))
		}
		return out
	default:
		m := v.Data.(map[string]struct{})
		out := make([]string, 0, len(m))
		for member := range m {
			out = append(out, member)
		}
		return out
	}
}

// HashPairs returns every field/value pair of a hash value, in
// sorted-field order for the hashtable tier so a dump is
// deterministic byte-for-byte.
func HashPairs(v *value.Value) []HashPair {
	switch v.Encoding {
	case value.EncHashZiplist:
		return v.Data.([]HashPair)
	default:
		m := v.Data.(map[string][]byte)
		fields := make([]string, 0, len(m))
		for f := range m {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		out := make([]HashPair, len(fields))
		for i, f := range fields {
			out[i] = HashPair{Field: f, Value: m[f]}
		}
		return out
	}
}

// ZSetPairs returns every member/score pair of a zset value, in
// sorted-member order for the skiplist tier so a dump is
// deterministic byte-for-byte.
func ZSetPairs(v *value.Value) []ZSetPair {
	switch v.Encoding {
	case value.EncZsetZiplist:
		return v.Data.([]ZSetPair)
	default:
		zs := v.Data.(*zset.ZSet)
		members := make([]string, 0, zs.Len())
		for m := range zs.Companion {
			members = append(members, m)
		}
		sort.Strings(members)
		out := make([]ZSetPair, len(members))
		for i, m := range members {
			score, _ := zs.Score(m)
			out[i] = ZSetPair{Member: m, Score: score}
		}
		return out
	}
}
