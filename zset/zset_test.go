package zset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertRankOrdering(t *testing.T) {
	z := NewZSet()
	z.Add(1, "a")
	z.Add(2, "b")
	z.Add(3, "c")

	require.Equal(t, 1, z.Rank("a"))
	require.Equal(t, 2, z.Rank("b"))
	require.Equal(t, 3, z.Rank("c"))

	n := z.List.NodeAtRank(z.Rank("b"))
	require.Equal(t, "b", n.Member)
	require.Equal(t, 2.0, n.Score)
}

func TestAddExistingMemberReordersKeepsCardinality(t *testing.T) {
	z := NewZSet()
	z.Add(1, "a")
	z.Add(2, "b")
	z.Add(3, "c")

	added := z.Add(2.5, "a")
	require.False(t, added)
	require.Equal(t, 3, z.Len())

	require.Equal(t, 1, z.Rank("b"))
	require.Equal(t, 2, z.Rank("a"))
	require.Equal(t, 3, z.Rank("c"))
}

func TestCompanionMapStaysInSyncWithSkiplist(t *testing.T) {
	z := NewZSet()
	for i, m := range []string{"a", "b", "c", "d"} {
		z.Add(float64(i), m)
	}
	require.Equal(t, z.List.Len(), z.Len())

	z.Remove("b")
	require.Equal(t, z.List.Len(), z.Len())
	_, ok := z.Score("b")
	require.False(t, ok)
	require.Equal(t, 0, z.Rank("b"))
}

func TestRangeZeroToNegOneReturnsAll(t *testing.T) {
	z := NewZSet()
	for i, m := range []string{"a", "b", "c"} {
		z.Add(float64(i+1), m)
	}
	var got []string
	for n := z.List.NodeAtRank(1); n != nil; n = n.Next() {
		got = append(got, n.Member)
	}
	require.Equal(t, []string{"a", "b", "c"}, got)
}

func TestRangeByScoreInf(t *testing.T) {
	z := NewZSet()
	z.Add(1, "a")
	z.Add(2, "b")
	z.Add(3, "c")

	first := z.List.FirstInRange(ScoreRange{Min: NegInf, Max: PosInf})
	last := z.List.LastInRange(ScoreRange{Min: NegInf, Max: PosInf})
	require.Equal(t, "a", first.Member)
	require.Equal(t, "c", last.Member)
}

func TestRangeByLexAllEqualScores(t *testing.T) {
	z := NewZSet()
	z.Add(0, "a")
	z.Add(0, "b")
	z.Add(0, "c")

	var got []string
	for n := z.List.FirstInRangeLex(LexRange{MinNegInf: true, MaxPosInf: true}); n != nil; n = n.Next() {
		got = append(got, n.Member)
	}
	require.Equal(t, []string{"a", "b", "c"}, got)
}

func TestDeleteRangeByScore(t *testing.T) {
	z := NewZSet()
	for i, m := range []string{"a", "b", "c", "d", "e"} {
		z.Add(float64(i+1), m)
	}
	n := z.List.DeleteRangeByScore(ScoreRange{Min: 2, Max: 4}, z.Companion)
	require.Equal(t, 3, n)
	require.Equal(t, 2, z.Len())
	_, ok := z.Score("b")
	require.False(t, ok)
}

func TestDeleteRangeByRank(t *testing.T) {
	z := NewZSet()
	for i, m := range []string{"a", "b", "c", "d", "e"} {
		z.Add(float64(i+1), m)
	}
	n := z.List.DeleteRangeByRank(2, 3, z.Companion)
	require.Equal(t, 2, n)
	require.Equal(t, 3, z.Len())
}

func TestDeleteRangeByLex(t *testing.T) {
	z := NewZSet()
	z.Add(0, "a")
	z.Add(0, "b")
	z.Add(0, "c")
	n := z.List.DeleteRangeByLex(LexRange{Min: "a", MaxExclusive: true, Max: "c"}, z.Companion)
	require.Equal(t, 2, n)
	require.Equal(t, 1, z.Len())
}

func TestLargeSkiplistSpanRankConsistency(t *testing.T) {
	z := NewZSet()
	members := []string{}
	for i := 0; i < 500; i++ {
		m := string(rune('a')) + itoa(i)
		members = append(members, m)
		z.Add(float64(i), m)
	}
	for i, m := range members {
		require.Equal(t, i+1, z.Rank(m), "member %s", m)
		n := z.List.NodeAtRank(i + 1)
		require.Equal(t, m, n.Member)
	}
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := []byte{}
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	if neg {
		digits = append([]byte{'-'}, digits...)
	}
	return string(digits)
}
