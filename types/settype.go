package types

import (
	"math/rand"
	"strconv"

	"github.com/RoaringBitmap/roaring"

	"github.com/coreworks/memkv/common"
	"github.com/coreworks/memkv/kverrors"
	"github.com/coreworks/memkv/scan"
	"github.com/coreworks/memkv/value"
)

// SetOps implements the set commands of spec.md §6.3, with the
// three-tier encoding described in SPEC_FULL §3: a sorted int64 array
// (compact), a roaring.Bitmap (internal acceleration for large
// all-integer sets), and a general string hash-table. Only the first
// and third are ever user-visible via OBJECT ENCODING.
type SetOps struct{ *Ops }

func (o *Ops) Set() *SetOps { return &SetOps{o} }

// parseSetUint32 reports whether member is representable as a 32-bit
// non-negative integer, the range roaring.Bitmap can hold.
func parseSetUint32(member string) (uint32, bool) {
	n, err := strconv.ParseInt(member, 10, 64)
	if err != nil || n < 0 || n > int64(^uint32(0)) {
		return 0, false
	}
	if strconv.FormatInt(n, 10) != member {
		return 0, false
	}
	return uint32(n), true
}

func insertSortedInt64(s []int64, n int64) ([]int64, bool) {
	lo, hi := 0, len(s)
	for lo < hi {
		mid := (lo + hi) / 2
		if s[mid] < n {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(s) && s[lo] == n {
		return s, false
	}
	s = append(s, 0)
	copy(s[lo+1:], s[lo:])
	s[lo] = n
	return s, true
}

func containsSortedInt64(s []int64, n int64) bool {
	lo, hi := 0, len(s)
	for lo < hi {
		mid := (lo + hi) / 2
		if s[mid] < n {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo < len(s) && s[lo] == n
}

func removeSortedInt64(s []int64, n int64) ([]int64, bool) {
	lo, hi := 0, len(s)
	for lo < hi {
		mid := (lo + hi) / 2
		if s[mid] < n {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo >= len(s) || s[lo] != n {
		return s, false
	}
	return append(s[:lo], s[lo+1:]...), true
}

// Add implements SADD key member…, returning the number newly added.
// Encoding upgrades happen in place and never downgrade (spec.md §3.1).
func (s *SetOps) Add(key string, members ...string) (int, error) {
	v, ok := s.DB.LookupForWrite(key)
	if !ok {
		v = value.NewValue(value.TypeSet, value.EncSetIntset, []int64{})
		s.DB.Add(key, v)
	} else if v.Type != value.TypeSet {
		return 0, kverrors.Wrongtype()
	}

	added := 0
	for _, m := range members {
		if s.addOne(v, m) {
			added++
		}
	}
	if added > 0 {
		s.notify("sadd", key)
	}
	return added, nil
}

func (s *SetOps) addOne(v *value.Value, member string) bool {
	switch v.Encoding {
	case value.EncSetIntset:
		n, isInt := parseSetUint32(member)
		if !isInt {
			s.upgradeIntsetToHashtable(v)
			return s.addToHashtable(v, member)
		}
		arr := v.Data.([]int64)
		next, inserted := insertSortedInt64(arr, int64(n))
		v.Data = next
		if inserted && len(next) > s.Cfg.SetMaxIntsetEntries {
			s.upgradeIntsetToRoaring(v)
		}
		return inserted
	case value.EncSetRoaring:
		n, isInt := parseSetUint32(member)
		if !isInt {
			s.upgradeRoaringToHashtable(v)
			return s.addToHashtable(v, member)
		}
		bm := v.Data.(*roaring.Bitmap)
		if bm.Contains(n) {
			return false
		}
		bm.Add(n)
		return true
	case value.EncSetHashtable:
		return s.addToHashtable(v, member)
	}
	return false
}

func (s *SetOps) addToHashtable(v *value.Value, member string) bool {
	m := v.Data.(map[string]struct{})
	if _, exists := m[member]; exists {
		return false
	}
	m[member] = struct{}{}
	return true
}

func (s *SetOps) upgradeIntsetToRoaring(v *value.Value) {
	arr := v.Data.([]int64)
	bm := roaring.NewBitmap()
	for _, n := range arr {
		bm.Add(uint32(n))
	}
	v.Encoding = value.EncSetRoaring
	v.Data = bm
}

func (s *SetOps) upgradeIntsetToHashtable(v *value.Value) {
	arr := v.Data.([]int64)
	m := make(map[string]struct{}, len(arr))
	for _, n := range arr {
		m[strconv.FormatInt(n, 10)] = struct{}{}
	}
	v.Encoding = value.EncSetHashtable
	v.Data = m
}

func (s *SetOps) upgradeRoaringToHashtable(v *value.Value) {
	bm := v.Data.(*roaring.Bitmap)
	m := make(map[string]struct{}, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		m[strconv.FormatUint(uint64(it.Next()), 10)] = struct{}{}
	}
	v.Encoding = value.EncSetHashtable
	v.Data = m
}

// IsMember implements SISMEMBER key member.
func (s *SetOps) IsMember(key, member string) (bool, error) {
	v, ok := s.DB.LookupForRead(key, false)
	if !ok {
		return false, nil
	}
	if v.Type != value.TypeSet {
		return false, kverrors.Wrongtype()
	}
	switch v.Encoding {
	case value.EncSetIntset:
		n, isInt := parseSetUint32(member)
		if !isInt {
			return false, nil
		}
		return containsSortedInt64(v.Data.([]int64), int64(n)), nil
	case value.EncSetRoaring:
		n, isInt := parseSetUint32(member)
		if !isInt {
			return false, nil
		}
		return v.Data.(*roaring.Bitmap).Contains(n), nil
	case value.EncSetHashtable:
		_, found := v.Data.(map[string]struct{})[member]
		return found, nil
	}
	return false, nil
}

// Card implements SCARD key.
func (s *SetOps) Card(key string) (int, error) {
	v, ok := s.DB.LookupForRead(key, false)
	if !ok {
		return 0, nil
	}
	if v.Type != value.TypeSet {
		return 0, kverrors.Wrongtype()
	}
	return s.cardUnsafe(v), nil
}

func (s *SetOps) cardUnsafe(v *value.Value) int {
	switch v.Encoding {
	case value.EncSetIntset:
		return len(v.Data.([]int64))
	case value.EncSetRoaring:
		return int(v.Data.(*roaring.Bitmap).GetCardinality())
	case value.EncSetHashtable:
		return len(v.Data.(map[string]struct{}))
	}
	return 0
}

// Members implements SMEMBERS key.
func (s *SetOps) Members(key string) ([]string, error) {
	v, ok := s.DB.LookupForRead(key, false)
	if !ok {
		return nil, nil
	}
	if v.Type != value.TypeSet {
		return nil, kverrors.Wrongtype()
	}
	return s.membersUnsafe(v), nil
}

func (s *SetOps) membersUnsafe(v *value.Value) []string {
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
	case value.EncSetHashtable:
		m := v.Data.(map[string]struct{})
		out := make([]string, 0, len(m))
		for k := range m {
			out = append(out, k)
		}
		return out
	}
	return nil
}

// removeOne deletes member from v's current encoding, reporting
// whether it was present. Shared by Rem, Pop and Move so the
// per-encoding removal logic lives in one place.
func (s *SetOps) removeOne(v *value.Value, member string) bool {
	switch v.Encoding {
	case value.EncSetIntset:
		n, isInt := parseSetUint32(member)
		if !isInt {
			return false
		}
		arr := v.Data.([]int64)
		next, removed := removeSortedInt64(arr, int64(n))
		v.Data = next
		return removed
	case value.EncSetRoaring:
		n, isInt := parseSetUint32(member)
		if !isInt {
			return false
		}
		bm := v.Data.(*roaring.Bitmap)
		if !bm.Contains(n) {
			return false
		}
		bm.Remove(n)
		return true
	case value.EncSetHashtable:
		mm := v.Data.(map[string]struct{})
		if _, found := mm[member]; !found {
			return false
		}
		delete(mm, member)
		return true
	}
	return false
}

// Rem implements SREM key member…, deleting the key if it empties
// (spec.md §4.3 aggregate empty-becomes-absent).
func (s *SetOps) Rem(key string, members ...string) (int, error) {
	v, ok := s.DB.LookupForWrite(key)
	if !ok {
		return 0, nil
	}
	if v.Type != value.TypeSet {
		return 0, kverrors.Wrongtype()
	}

	removed := 0
	for _, m := range members {
		if s.removeOne(v, m) {
			removed++
		}
	}
	if removed > 0 {
		s.notify("srem", key)
	}
	s.deleteIfEmpty(key, s.cardUnsafe(v) == 0)
	return removed, nil
}

// Pop implements SPOP key [count], removing and returning up to count
// distinct random members (count <= 0 is treated as 1), deleting the
// key if it empties.
func (s *SetOps) Pop(key string, count int) ([]string, error) {
	if count <= 0 {
		count = 1
	}
	v, ok := s.DB.LookupForWrite(key)
	if !ok {
		return nil, nil
	}
	if v.Type != value.TypeSet {
		return nil, kverrors.Wrongtype()
	}

	all := s.membersUnsafe(v)
	if count > len(all) {
		count = len(all)
	}
	rand.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	popped := all[:count]
	for _, m := range popped {
		s.removeOne(v, m)
	}
	if len(popped) > 0 {
		s.notify("spop", key)
	}
	s.deleteIfEmpty(key, s.cardUnsafe(v) == 0)
	return popped, nil
}

// RandMember implements SRANDMEMBER key [count]: a count of 0 returns
// nil, a positive count returns up to count distinct members without
// removing them, and a negative count returns exactly -count members,
// possibly with repeats.
func (s *SetOps) RandMember(key string, count int) ([]string, error) {
	v, ok := s.DB.LookupForRead(key, false)
	if !ok {
		return nil, nil
	}
	if v.Type != value.TypeSet {
		return nil, kverrors.Wrongtype()
	}
	all := s.membersUnsafe(v)
	if len(all) == 0 || count == 0 {
		return nil, nil
	}
	if count < 0 {
		out := make([]string, -count)
		for i := range out {
			out[i] = all[rand.Intn(len(all))]
		}
		return out, nil
	}
	rand.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	if count > len(all) {
		count = len(all)
	}
	return all[:count], nil
}

// Move implements SMOVE src dst member: atomically removes member
// from src and adds it to dst, reporting whether it was present in
// src. dst's type is checked before src is touched, so a WRONGTYPE
// dst leaves src untouched.
func (s *SetOps) Move(src, dst, member string) (bool, error) {
	if src == dst {
		return s.IsMember(src, member)
	}

	dv, dstExists := s.DB.LookupForWrite(dst)
	if dstExists && dv.Type != value.TypeSet {
		return false, kverrors.Wrongtype()
	}

	sv, ok := s.DB.LookupForWrite(src)
	if !ok {
		return false, nil
	}
	if sv.Type != value.TypeSet {
		return false, kverrors.Wrongtype()
	}
	if !s.removeOne(sv, member) {
		return false, nil
	}
	s.notify("srem", src)
	s.deleteIfEmpty(src, s.cardUnsafe(sv) == 0)

	if !dstExists {
		dv = value.NewValue(value.TypeSet, value.EncSetIntset, []int64{})
		s.DB.Add(dst, dv)
	}
	s.addOne(dv, member)
	s.notify("smove", dst)
	return true, nil
}

// Inter computes SINTER key…, always against the in-memory member
// lists regardless of source encodings.
func (s *SetOps) Inter(keys ...string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	sets := make([]map[string]struct{}, len(keys))
	for i, k := range keys {
		v, ok := s.DB.LookupForRead(k, false)
		if !ok {
			return []string{}, nil
		}
		if v.Type != value.TypeSet {
			return nil, kverrors.Wrongtype()
		}
		m := make(map[string]struct{})
		for _, mem := range s.membersUnsafe(v) {
			m[mem] = struct{}{}
		}
		sets[i] = m
	}
	out := []string{}
	for mem := range sets[0] {
		inAll := true
		for _, m := range sets[1:] {
			if _, ok := m[mem]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			out = append(out, mem)
		}
	}
	return out, nil
}

// Union computes SUNION key….
func (s *SetOps) Union(keys ...string) ([]string, error) {
	seen := make(map[string]struct{})
	for _, k := range keys {
		v, ok := s.DB.LookupForRead(k, false)
		if !ok {
			continue
		}
		if v.Type != value.TypeSet {
			return nil, kverrors.Wrongtype()
		}
		for _, mem := range s.membersUnsafe(v) {
			seen[mem] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for mem := range seen {
		out = append(out, mem)
	}
	return out, nil
}

// Diff computes SDIFF key…: members of the first key not present in
// any of the remaining keys.
func (s *SetOps) Diff(keys ...string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	first, ok := s.DB.LookupForRead(keys[0], false)
	if !ok {
		return []string{}, nil
	}
	if first.Type != value.TypeSet {
		return nil, kverrors.Wrongtype()
	}
	exclude := make(map[string]struct{})
	for _, k := range keys[1:] {
		v, ok := s.DB.LookupForRead(k, false)
		if !ok {
			continue
		}
		if v.Type != value.TypeSet {
			return nil, kverrors.Wrongtype()
		}
		for _, mem := range s.membersUnsafe(v) {
			exclude[mem] = struct{}{}
		}
	}
	out := []string{}
	for _, mem := range s.membersUnsafe(first) {
		if _, excluded := exclude[mem]; !excluded {
			out = append(out, mem)
		}
	}
	return out, nil
}

// storeResult replaces dest with a set containing members, deleting
// dest instead if members is empty (spec.md §4.3 aggregate
// empty-becomes-absent), and returns the resulting cardinality.
func (s *SetOps) storeResult(event, dest string, members []string) (int, error) {
	s.DB.Delete(dest)
	if len(members) == 0 {
		s.notify(event, dest)
		return 0, nil
	}
	v := value.NewValue(value.TypeSet, value.EncSetIntset, []int64{})
	s.DB.Add(dest, v)
	for _, m := range members {
		s.addOne(v, m)
	}
	s.notify(event, dest)
	return s.cardUnsafe(v), nil
}

// InterStore implements SINTERSTORE dest key…, writing SINTER's result
// into dest.
func (s *SetOps) InterStore(dest string, keys ...string) (int, error) {
	members, err := s.Inter(keys...)
	if err != nil {
		return 0, err
	}
	return s.storeResult("sinterstore", dest, members)
}

// UnionStore implements SUNIONSTORE dest key…, writing SUNION's result
// into dest.
func (s *SetOps) UnionStore(dest string, keys ...string) (int, error) {
	members, err := s.Union(keys...)
	if err != nil {
		return 0, err
	}
	return s.storeResult("sunionstore", dest, members)
}

// DiffStore implements SDIFFSTORE dest key…, writing SDIFF's result
// into dest.
func (s *SetOps) DiffStore(dest string, keys ...string) (int, error) {
	members, err := s.Diff(keys...)
	if err != nil {
		return 0, err
	}
	return s.storeResult("sdiffstore", dest, members)
}

// Scan implements SSCAN key cursor [MATCH pattern] [COUNT count]
// (spec.md §6.1). The intset encoding is always small enough to
// collapse to a single call per spec.md §4.5; roaring and hashtable
// members are walked through component G's true cursor since either
// can hold as many members as the general encoding.
func (s *SetOps) Scan(key string, cursor uint64, count int, pattern string) (next uint64, members []string, err error) {
	v, ok := s.DB.LookupForRead(key, false)
	if !ok {
		return 0, nil, nil
	}
	if v.Type != value.TypeSet {
		return 0, nil, kverrors.Wrongtype()
	}
	if v.Encoding == value.EncSetIntset {
		all := s.membersUnsafe(v)
		out := make([]string, 0, len(all))
		for _, m := range all {
			if pattern == "" || pattern == "*" || common.GlobMatch(pattern, m) {
				out = append(out, m)
			}
		}
		return 0, out, nil
	}
	next, members = scan.Scan(s.membersUnsafe(v), cursor, count, pattern)
	return next, members, nil
}
