// Package zset implements the ordered index backing the sorted-set
// type (spec.md §3.3/§4.4, component E): a skip list of (score,
// member) nodes with per-level span counters for O(log n) rank, plus
// the companion member->score map that together form a ZSet.
//
// Hand-rolled per spec.md — no pack library offers a ranked skip
// list; see DESIGN.md for why petar/GoLLRB (seen in
// eth/stagedsync/header_data_struct.go) was considered and rejected.
package zset

import (
	"math"
	"math/rand"
)

const (
	maxLevel = 32
	p        = 0.25
)

// Node is one (score, member) entry in the skip list.
type Node struct {
	Member   string
	Score    float64
	backward *Node
	level    []level
}

type level struct {
	forward *Node
	span    int
}

// SkipList is the ordered structure of spec.md §3.3: nodes ordered by
// (score ascending, member lexicographic ascending), first level
// doubly linked for reverse traversal, random level chosen with
// geometric distribution P(level >= k+1) = p^k, capped at maxLevel.
type SkipList struct {
	header *Node
	tail   *Node
	length int
	level  int
	rnd    *rand.Rand
}

// New creates an empty skip list.
func New() *SkipList {
	h := &Node{level: make([]level, maxLevel)}
	return &SkipList{header: h, level: 1, rnd: rand.New(rand.NewSource(1))}
}

// Len returns the number of nodes.
func (s *SkipList) Len() int { return s.length }

func less(score1 float64, member1 string, score2 float64, member2 string) bool {
	if score1 != score2 {
		return score1 < score2
	}
	return member1 < member2
}

func randomLevel(rnd *rand.Rand) int {
	lvl := 1
	for lvl < maxLevel && rnd.Float64() < p {
		lvl++
	}
	return lvl
}

// Insert adds (score, member); caller guarantees member is not
// already present anywhere in the list (uniqueness is enforced by the
// companion map in ZSet, per spec.md §4.4).
func (s *SkipList) Insert(score float64, member string) *Node {
	var update [maxLevel]*Node
	var rank [maxLevel]int

	x := s.header
	for i := s.level - 1; i >= 0; i-- {
		if i == s.level-1 {
			rank[i] = 0
		} else {
			rank[i] = rank[i+1]
		}
		for x.level[i].forward != nil && less(x.level[i].forward.Score, x.level[i].forward.Member, score, member) {
			rank[i] += x.level[i].span
			x = x.level[i].forward
		}
		update[i] = x
	}

	lvl := randomLevel(s.rnd)
	if lvl > s.level {
		for i := s.level; i < lvl; i++ {
			rank[i] = 0
			update[i] = s.header
			update[i].level[i].span = s.length
		}
		s.level = lvl
	}

	x = &Node{Member: member, Score: score, level: make([]level, lvl)}
	for i := 0; i < lvl; i++ {
		x.level[i].forward = update[i].level[i].forward
		update[i].level[i].forward = x
		x.level[i].span = update[i].level[i].span - (rank[0] - rank[i])
		update[i].level[i].span = rank[0] - rank[i] + 1
	}

	for i := lvl; i < s.level; i++ {
		update[i].level[i].span++
	}

	if update[0] == s.header {
		x.backward = nil
	} else {
		x.backward = update[0]
	}
	if x.level[0].forward != nil {
		x.level[0].forward.backward = x
	} else {
		s.tail = x
	}
	s.length++
	return x
}

// findUpdatePath returns, for the given (score, member), the update
// vector of predecessor nodes at each level (used by Delete and the
// range-deletion operations).
func (s *SkipList) findUpdatePath(score float64, member string) (update [maxLevel]*Node, target *Node) {
	x := s.header
	for i := s.level - 1; i >= 0; i-- {
		for x.level[i].forward != nil && less(x.level[i].forward.Score, x.level[i].forward.Member, score, member) {
			x = x.level[i].forward
		}
		update[i] = x
	}
	target = x.level[0].forward
	return update, target
}

func (s *SkipList) deleteNode(x *Node, update [maxLevel]*Node) {
	for i := 0; i < s.level; i++ {
		if update[i].level[i].forward == x {
			update[i].level[i].span += x.level[i].span - 1
			update[i].level[i].forward = x.level[i].forward
		} else {
			update[i].level[i].span--
		}
	}
	if x.level[0].forward != nil {
		x.level[0].forward.backward = x.backward
	} else {
		s.tail = x.backward
	}
	for s.level > 1 && s.header.level[s.level-1].forward == nil {
		s.level--
	}
	s.length--
}

// Delete removes (score, member); reports whether it was present.
func (s *SkipList) Delete(score float64, member string) bool {
	update, target := s.findUpdatePath(score, member)
	if target != nil && target.Score == score && target.Member == member {
		s.deleteNode(target, update)
		return true
	}
	return false
}

// Rank returns the 1-based rank of (score, member), or 0 if absent
// (spec.md §4.4).
func (s *SkipList) Rank(score float64, member string) int {
	x := s.header
	rank := 0
	for i := s.level - 1; i >= 0; i-- {
		for x.level[i].forward != nil &&
			(x.level[i].forward.Score < score ||
				(x.level[i].forward.Score == score && x.level[i].forward.Member <= member)) {
			rank += x.level[i].span
			x = x.level[i].forward
		}
		if x != s.header && x.Member == member && x.Score == score {
			return rank
		}
	}
	return 0
}

// NodeAtRank returns the node at the given 1-based rank, or nil.
func (s *SkipList) NodeAtRank(rank int) *Node {
	if rank < 1 || rank > s.length {
		return nil
	}
	x := s.header
	traversed := 0
	for i := s.level - 1; i >= 0; i-- {
		for x.level[i].forward != nil && traversed+x.level[i].span <= rank {
			traversed += x.level[i].span
			x = x.level[i].forward
		}
		if traversed == rank {
			return x
		}
	}
	return nil
}

// First returns the lowest-ordered node, or nil if empty.
func (s *SkipList) First() *Node { return s.header.level[0].forward }

// Last returns the highest-ordered node, or nil if empty.
func (s *SkipList) Last() *Node { return s.tail }

// Next returns the node immediately after n in ascending order.
func (n *Node) Next() *Node {
	if n == nil || len(n.level) == 0 {
		return nil
	}
	return n.level[0].forward
}

// Prev returns the node immediately before n in ascending order.
func (n *Node) Prev() *Node { return n.backward }

// ---- score ranges (spec.md §4.4/§6.2) ----

// ScoreRange is an inclusive-by-default score range with optional
// open bounds and +/-inf sentinels, per spec.md §6.2.
type ScoreRange struct {
	Min, Max               float64
	MinExclusive, MaxExclusive bool
}

func (r ScoreRange) isEmpty() bool {
	if r.Min > r.Max {
		return true
	}
	if r.Min == r.Max && (r.MinExclusive || r.MaxExclusive) {
		return true
	}
	return false
}

func (r ScoreRange) gteMin(score float64) bool {
	if r.MinExclusive {
		return score > r.Min
	}
	return score >= r.Min
}

func (r ScoreRange) lteMax(score float64) bool {
	if r.MaxExclusive {
		return score < r.Max
	}
	return score <= r.Max
}

// FirstInRange returns the first node whose score falls in r, or nil.
func (s *SkipList) FirstInRange(r ScoreRange) *Node {
	if r.isEmpty() {
		return nil
	}
	x := s.header
	for i := s.level - 1; i >= 0; i-- {
		for x.level[i].forward != nil && !r.gteMin(x.level[i].forward.Score) {
			x = x.level[i].forward
		}
	}
	x = x.level[0].forward
	if x == nil || !r.lteMax(x.Score) {
		return nil
	}
	return x
}

// LastInRange returns the last node whose score falls in r, or nil.
func (s *SkipList) LastInRange(r ScoreRange) *Node {
	if r.isEmpty() {
		return nil
	}
	x := s.header
	for i := s.level - 1; i >= 0; i-- {
		for x.level[i].forward != nil && r.lteMax(x.level[i].forward.Score) {
			x = x.level[i].forward
		}
	}
	if x == s.header || !r.gteMin(x.Score) {
		return nil
	}
	return x
}

// DeleteRangeByScore removes every node whose score is in r from both
// the skip list and the companion map; returns the count removed.
func (s *SkipList) DeleteRangeByScore(r ScoreRange, companion map[string]float64) int {
	var update [maxLevel]*Node
	x := s.header
	for i := s.level - 1; i >= 0; i-- {
		for x.level[i].forward != nil && !r.gteMin(x.level[i].forward.Score) {
			x = x.level[i].forward
		}
		update[i] = x
	}
	x = x.level[0].forward
	removed := 0
	for x != nil && r.lteMax(x.Score) {
		next := x.level[0].forward
		s.deleteNode(x, update)
		delete(companion, x.Member)
		removed++
		x = next
		// update vector stays valid: deleteNode only ever removes
		// nodes strictly after the predecessors recorded in update.
	}
	return removed
}

// DeleteRangeByRank removes nodes whose 1-based rank is in [start,
// end] inclusive, from both structures; returns the count removed.
func (s *SkipList) DeleteRangeByRank(start, end int, companion map[string]float64) int {
	if start < 1 {
		start = 1
	}
	if end > s.length {
		end = s.length
	}
	if start > end {
		return 0
	}
	var update [maxLevel]*Node
	x := s.header
	traversed := 0
	for i := s.level - 1; i >= 0; i-- {
		for x.level[i].forward != nil && traversed+x.level[i].span < start {
			traversed += x.level[i].span
			x = x.level[i].forward
		}
		update[i] = x
	}
	traversed++
	x = x.level[0].forward
	removed := 0
	for x != nil && traversed <= end {
		next := x.level[0].forward
		s.deleteNode(x, update)
		delete(companion, x.Member)
		removed++
		traversed++
		x = next
	}
	return removed
}

// ---- lex ranges (spec.md §4.4/§6.2) ----

// LexRange is a byte-string range with +/-inf sentinels, used only
// when all members share one score (spec.md §4.4 "lex variants").
type LexRange struct {
	Min, Max                   string
	MinNegInf, MaxPosInf       bool // '-' and '+' sentinels
	MinExclusive, MaxExclusive bool
}

func (r LexRange) gteMin(member string) bool {
	if r.MinNegInf {
		return true
	}
	if r.MinExclusive {
		return member > r.Min
	}
	return member >= r.Min
}

func (r LexRange) lteMax(member string) bool {
	if r.MaxPosInf {
		return true
	}
	if r.MaxExclusive {
		return member < r.Max
	}
	return member <= r.Max
}

// FirstInRangeLex returns the first node (in ascending order) whose
// member falls in r.
func (s *SkipList) FirstInRangeLex(r LexRange) *Node {
	x := s.header
	for i := s.level - 1; i >= 0; i-- {
		for x.level[i].forward != nil && !r.gteMin(x.level[i].forward.Member) {
			x = x.level[i].forward
		}
	}
	x = x.level[0].forward
	if x == nil || !r.lteMax(x.Member) {
		return nil
	}
	return x
}

// LastInRangeLex returns the last node whose member falls in r.
func (s *SkipList) LastInRangeLex(r LexRange) *Node {
	x := s.header
	for i := s.level - 1; i >= 0; i-- {
		for x.level[i].forward != nil && r.lteMax(x.level[i].forward.Member) {
			x = x.level[i].forward
		}
	}
	if x == s.header || !r.gteMin(x.Member) {
		return nil
	}
	return x
}

// DeleteRangeByLex removes every node whose member falls in r from
// both structures; returns the count removed.
func (s *SkipList) DeleteRangeByLex(r LexRange, companion map[string]float64) int {
	var update [maxLevel]*Node
	x := s.header
	for i := s.level - 1; i >= 0; i-- {
		for x.level[i].forward != nil && !r.gteMin(x.level[i].forward.Member) {
			x = x.level[i].forward
		}
		update[i] = x
	}
	x = x.level[0].forward
	removed := 0
	for x != nil && r.lteMax(x.Member) {
		next := x.level[0].forward
		s.deleteNode(x, update)
		delete(companion, x.Member)
		removed++
		x = next
	}
	return removed
}

// PosInf and NegInf are convenience score sentinels for ZRANGEBYSCORE
// -inf +inf (spec.md §6.2).
var (
	PosInf = math.Inf(1)
	NegInf = math.Inf(-1)
)
