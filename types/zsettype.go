package types

import (
	"sort"
	"strconv"

	"github.com/coreworks/memkv/common"
	"github.com/coreworks/memkv/kverrors"
	"github.com/coreworks/memkv/scan"
	"github.com/coreworks/memkv/value"
	"github.com/coreworks/memkv/zset"
)

// ZSetPair is one member/score entry of the compact packed encoding
// (spec.md §3.1 "packed contiguous member/score array"). Exported so
// the snapshot codec (component H) can walk a compact zset's payload
// without duplicating the encoding-tier logic.
type ZSetPair struct {
	Member string
	Score  float64
}

// ZSetOps implements the sorted-set commands of spec.md §6.5, backed
// by component E's skip list once the general encoding is reached.
type ZSetOps struct{ *Ops }

func (o *Ops) ZSet() *ZSetOps { return &ZSetOps{o} }

func lessPair(aScore float64, aMember string, bScore float64, bMember string) bool {
	if aScore != bScore {
		return aScore < bScore
	}
	return aMember < bMember
}

func (z *ZSetOps) overLimit(pairs []ZSetPair, newMember string) bool {
	if len(newMember) > z.Cfg.ZsetMaxZiplistValue {
		return true
	}
	if len(pairs)+1 > z.Cfg.ZsetMaxZiplistEntries {
		return true
	}
	for _, p := range pairs {
		if len(p.Member) > z.Cfg.ZsetMaxZiplistValue {
			return true
		}
	}
	return false
}

func upgradeZsetToSkiplist(pairs []ZSetPair) *zset.ZSet {
	z := zset.NewZSet()
	for _, p := range pairs {
		z.Add(p.Score, p.Member)
	}
	return z
}

func (z *ZSetOps) ensureZSet(key string) (*value.Value, error) {
	v, ok := z.DB.LookupForWrite(key)
	if !ok {
		v = value.NewValue(value.TypeZSet, value.EncZsetZiplist, []ZSetPair{})
		z.DB.Add(key, v)
		return v, nil
	}
	if v.Type != value.TypeZSet {
		return nil, kverrors.Wrongtype()
	}
	return v, nil
}

// addOne sets member's score in-place (insert or re-score), upgrading
// the encoding if needed, and reports whether the member is new.
func (z *ZSetOps) addOne(v *value.Value, score float64, member string) bool {
	switch v.Encoding {
	case value.EncZsetZiplist:
		pairs := v.Data.([]ZSetPair)
		for i := range pairs {
			if pairs[i].Member == member {
				pairs[i].Score = score
				v.Data = pairs
				return false
			}
		}
		if z.overLimit(pairs, member) {
			zs := upgradeZsetToSkiplist(pairs)
			zs.Add(score, member)
			v.Encoding = value.EncZsetSkiplist
			v.Data = zs
		} else {
			v.Data = append(pairs, ZSetPair{Member: member, Score: score})
		}
		return true
	case value.EncZsetSkiplist:
		return v.Data.(*zset.ZSet).Add(score, member)
	}
	return false
}

// Add implements ZADD key score member…, returning how many members
// were newly added (spec.md §8 invariant 6: re-adding an existing
// member reorders without changing cardinality).
func (z *ZSetOps) Add(key string, pairs map[string]float64) (int, error) {
	v, err := z.ensureZSet(key)
	if err != nil {
		return 0, err
	}
	added := 0
	for member, score := range pairs {
		if z.addOne(v, score, member) {
			added++
		}
	}
	z.notify("zadd", key)
	return added, nil
}

// IncrBy implements ZINCRBY key delta member.
func (z *ZSetOps) IncrBy(key string, delta float64, member string) (float64, error) {
	cur, ok, err := z.Score(key, member)
	if err != nil {
		return 0, err
	}
	var next float64
	if ok {
		next = cur + delta
	} else {
		next = delta
	}
	v, err := z.ensureZSet(key)
	if err != nil {
		return 0, err
	}
	z.addOne(v, next, member)
	z.notify("zincrby", key)
	return next, nil
}

// Score implements ZSCORE key member.
func (z *ZSetOps) Score(key, member string) (float64, bool, error) {
	v, ok := z.DB.LookupForRead(key, false)
	if !ok {
		return 0, false, nil
	}
	if v.Type != value.TypeZSet {
		return 0, false, kverrors.Wrongtype()
	}
	switch v.Encoding {
	case value.EncZsetZiplist:
		for _, p := range v.Data.([]ZSetPair) {
			if p.Member == member {
				return p.Score, true, nil
			}
		}
		return 0, false, nil
	case value.EncZsetSkiplist:
		score, found := v.Data.(*zset.ZSet).Score(member)
		return score, found, nil
	}
	return 0, false, nil
}

func (z *ZSetOps) cardUnsafe(v *value.Value) int {
	switch v.Encoding {
	case value.EncZsetZiplist:
		return len(v.Data.([]ZSetPair))
	case value.EncZsetSkiplist:
		return v.Data.(*zset.ZSet).Len()
	}
	return 0
}

// Card implements ZCARD key.
func (z *ZSetOps) Card(key string) (int, error) {
	v, ok := z.DB.LookupForRead(key, false)
	if !ok {
		return 0, nil
	}
	if v.Type != value.TypeZSet {
		return 0, kverrors.Wrongtype()
	}
	return z.cardUnsafe(v), nil
}

// sortedPairs returns every (member, score) of key in (score, member)
// ascending order, regardless of encoding.
func (z *ZSetOps) sortedPairs(key string) ([]ZSetPair, error) {
	v, ok := z.DB.LookupForRead(key, false)
	if !ok {
		return nil, nil
	}
	if v.Type != value.TypeZSet {
		return nil, kverrors.Wrongtype()
	}
	switch v.Encoding {
	case value.EncZsetZiplist:
		pairs := append([]ZSetPair(nil), v.Data.([]ZSetPair)...)
		sort.Slice(pairs, func(i, j int) bool {
			return lessPair(pairs[i].Score, pairs[i].Member, pairs[j].Score, pairs[j].Member)
		})
		return pairs, nil
	case value.EncZsetSkiplist:
		zs := v.Data.(*zset.ZSet)
		out := make([]ZSetPair, 0, zs.Len())
		for n := zs.List.First(); n != nil; n = n.Next() {
			out = append(out, ZSetPair{Member: n.Member, Score: n.Score})
		}
		return out, nil
	}
	return nil, nil
}

// Range implements ZRANGE/ZREVRANGE key start stop, clamping
// out-of-bound indices and returning empty for an inverted range
// (spec.md §8 "ZRANGE 0 -1 returns all; ZRANGE 5 3 returns empty").
func (z *ZSetOps) Range(key string, start, stop int, reverse bool) ([]ZSetPair, error) {
	all, err := z.sortedPairs(key)
	if err != nil {
		return nil, err
	}
	if reverse {
		for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
			all[i], all[j] = all[j], all[i]
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
		return []ZSetPair{}, nil
	}
	return append([]ZSetPair(nil), all[s:e+1]...), nil
}

// RangeByScore implements ZRANGEBYSCORE/ZREVRANGEBYSCORE.
func (z *ZSetOps) RangeByScore(key string, r zset.ScoreRange, reverse bool) ([]ZSetPair, error) {
	all, err := z.sortedPairs(key)
	if err != nil {
		return nil, err
	}
	out := []ZSetPair{}
	for _, p := range all {
		if r.MinExclusive && p.Score <= r.Min {
			continue
		}
		if !r.MinExclusive && p.Score < r.Min {
			continue
		}
		if r.MaxExclusive && p.Score >= r.Max {
			continue
		}
		if !r.MaxExclusive && p.Score > r.Max {
			continue
		}
		out = append(out, p)
	}
	if reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

// RangeByLex implements ZRANGEBYLEX/ZREVRANGEBYLEX (only meaningful
// when all members share one score, per spec.md §8).
func (z *ZSetOps) RangeByLex(key string, r zset.LexRange, reverse bool) ([]ZSetPair, error) {
	all, err := z.sortedPairs(key)
	if err != nil {
		return nil, err
	}
	out := []ZSetPair{}
	for _, p := range all {
		if !r.MinNegInf {
			if r.MinExclusive && p.Member <= r.Min {
				continue
			}
			if !r.MinExclusive && p.Member < r.Min {
				continue
			}
		}
		if !r.MaxPosInf {
			if r.MaxExclusive && p.Member >= r.Max {
				continue
			}
			if !r.MaxExclusive && p.Member > r.Max {
				continue
			}
		}
		out = append(out, p)
	}
	if reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

// Count implements ZCOUNT key min max.
func (z *ZSetOps) Count(key string, r zset.ScoreRange) (int, error) {
	out, err := z.RangeByScore(key, r, false)
	if err != nil {
		return 0, err
	}
	return len(out), nil
}

// LexCount implements ZLEXCOUNT key min max.
func (z *ZSetOps) LexCount(key string, r zset.LexRange) (int, error) {
	out, err := z.RangeByLex(key, r, false)
	if err != nil {
		return 0, err
	}
	return len(out), nil
}

// Rank implements ZRANK/ZREVRANK key member, returning a 0-based rank.
func (z *ZSetOps) Rank(key, member string, reverse bool) (int, bool, error) {
	all, err := z.sortedPairs(key)
	if err != nil {
		return 0, false, err
	}
	for i, p := range all {
		if p.Member == member {
			if reverse {
				return len(all) - 1 - i, true, nil
			}
			return i, true, nil
		}
	}
	return 0, false, nil
}

// Rem implements ZREM key member…, deleting the key if it empties.
func (z *ZSetOps) Rem(key string, members ...string) (int, error) {
	v, ok := z.DB.LookupForWrite(key)
	if !ok {
		return 0, nil
	}
	if v.Type != value.TypeZSet {
		return 0, kverrors.Wrongtype()
	}

	removed := 0
	switch v.Encoding {
	case value.EncZsetZiplist:
		pairs := v.Data.([]ZSetPair)
		for _, m := range members {
			for i := range pairs {
				if pairs[i].Member == m {
					pairs = append(pairs[:i], pairs[i+1:]...)
					removed++
					break
				}
			}
		}
		v.Data = pairs
	case value.EncZsetSkiplist:
		zs := v.Data.(*zset.ZSet)
		for _, m := range members {
			if zs.Remove(m) {
				removed++
			}
		}
	}
	if removed > 0 {
		z.notify("zrem", key)
	}
	z.deleteIfEmpty(key, z.cardUnsafe(v) == 0)
	return removed, nil
}

// RemRangeByRank implements ZREMRANGEBYRANK key start stop.
func (z *ZSetOps) RemRangeByRank(key string, start, stop int) (int, error) {
	kept, err := z.rangeComplement(key, func(all []ZSetPair) map[string]struct{} {
		n := len(all)
		s := normalizeIndex(start, n)
		e := normalizeIndex(stop, n)
		if s < 0 {
			s = 0
		}
		if e >= n {
			e = n - 1
		}
		doomed := make(map[string]struct{})
		if s <= e {
			for i := s; i <= e; i++ {
				doomed[all[i].Member] = struct{}{}
			}
		}
		return doomed
	})
	if err != nil {
		return 0, err
	}
	return z.applyRemoval(key, kept)
}

// RemRangeByScore implements ZREMRANGEBYSCORE key min max.
func (z *ZSetOps) RemRangeByScore(key string, r zset.ScoreRange) (int, error) {
	matched, err := z.RangeByScore(key, r, false)
	if err != nil {
		return 0, err
	}
	members := make([]string, len(matched))
	for i, p := range matched {
		members[i] = p.Member
	}
	return z.Rem(key, members...)
}

// RemRangeByLex implements ZREMRANGEBYLEX key min max.
func (z *ZSetOps) RemRangeByLex(key string, r zset.LexRange) (int, error) {
	matched, err := z.RangeByLex(key, r, false)
	if err != nil {
		return 0, err
	}
	members := make([]string, len(matched))
	for i, p := range matched {
		members[i] = p.Member
	}
	return z.Rem(key, members...)
}

func (z *ZSetOps) rangeComplement(key string, pick func([]ZSetPair) map[string]struct{}) (map[string]struct{}, error) {
	all, err := z.sortedPairs(key)
	if err != nil {
		return nil, err
	}
	return pick(all), nil
}

func (z *ZSetOps) applyRemoval(key string, doomed map[string]struct{}) (int, error) {
	members := make([]string, 0, len(doomed))
	for m := range doomed {
		members = append(members, m)
	}
	return z.Rem(key, members...)
}

// UnionStore implements ZUNIONSTORE dest key…, summing scores for
// members present in more than one source set.
func (z *ZSetOps) UnionStore(dest string, keys ...string) (int, error) {
	totals := make(map[string]float64)
	for _, k := range keys {
		pairs, err := z.sortedPairs(k)
		if err != nil {
			return 0, err
		}
		for _, p := range pairs {
			totals[p.Member] += p.Score
		}
	}
	return z.storeResult(dest, totals)
}

// InterStore implements ZINTERSTORE dest key…, summing scores for
// members present in every source set.
func (z *ZSetOps) InterStore(dest string, keys ...string) (int, error) {
	if len(keys) == 0 {
		z.DB.Delete(dest)
		return 0, nil
	}
	first, err := z.sortedPairs(keys[0])
	if err != nil {
		return 0, err
	}
	totals := make(map[string]float64, len(first))
	for _, p := range first {
		totals[p.Member] = p.Score
	}
	for _, k := range keys[1:] {
		pairs, err := z.sortedPairs(k)
		if err != nil {
			return 0, err
		}
		present := make(map[string]float64, len(pairs))
		for _, p := range pairs {
			present[p.Member] = p.Score
		}
		for m, score := range totals {
			if add, ok := present[m]; ok {
				totals[m] = score + add
			} else {
				delete(totals, m)
			}
		}
	}
	return z.storeResult(dest, totals)
}

func (z *ZSetOps) storeResult(dest string, totals map[string]float64) (int, error) {
	z.DB.Delete(dest)
	if len(totals) == 0 {
		return 0, nil
	}
	v := value.NewValue(value.TypeZSet, value.EncZsetZiplist, []ZSetPair{})
	z.DB.Add(dest, v)
	for member, score := range totals {
		z.addOne(v, score, member)
	}
	z.notify("zunionstore_or_zinterstore", dest)
	return len(totals), nil
}

// Scan implements ZSCAN key cursor [MATCH pattern] [COUNT count]
// (spec.md §4.5, §6.1): a ziplist-encoded zset collapses to one call
// with the cursor resetting to 0; a skiplist-encoded zset drives the
// true reverse-binary cursor over member names, with scores looked up
// afterward for whatever the cursor pass matched.
func (z *ZSetOps) Scan(key string, cursor uint64, count int, pattern string) (uint64, []ZSetPair, error) {
	v, ok := z.DB.LookupForRead(key, true)
	if !ok {
		return 0, nil, nil
	}
	if v.Type != value.TypeZSet {
		return 0, nil, kverrors.Wrongtype()
	}

	matchesPattern := func(member string) bool {
		return pattern == "" || pattern == "*" || common.GlobMatch(pattern, member)
	}

	switch v.Encoding {
	case value.EncZsetZiplist:
		pairs := v.Data.([]ZSetPair)
		out := make([]ZSetPair, 0, len(pairs))
		for _, p := range pairs {
			if matchesPattern(p.Member) {
				out = append(out, p)
			}
		}
		return 0, out, nil
	case value.EncZsetSkiplist:
		zs := v.Data.(*zset.ZSet)
		names := make([]string, 0, zs.Len())
		scores := make(map[string]float64, zs.Len())
		for n := zs.List.First(); n != nil; n = n.Next() {
			names = append(names, n.Member)
			scores[n.Member] = n.Score
		}
		next, matched := scan.Scan(names, cursor, count, pattern)
		out := make([]ZSetPair, len(matched))
		for i, m := range matched {
			out[i] = ZSetPair{Member: m, Score: scores[m]}
		}
		return next, out, nil
	}
	return 0, nil, nil
}

// unused helper retained for call sites that format scores for replies.
func formatScore(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }
