package scan

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScanCoversEveryElement(t *testing.T) {
	items := make([]string, 0, 500)
	for i := 0; i < 500; i++ {
		items = append(items, fmt.Sprintf("key-%d", i))
	}

	seen := make(map[string]bool)
	cursor := uint64(0)
	for {
		next, batch := Scan(items, cursor, 10, "*")
		for _, k := range batch {
			seen[k] = true
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	for _, k := range items {
		require.True(t, seen[k], "key %s was never returned by a full scan", k)
	}
}

func TestScanOnEmptySetReturnsZeroImmediately(t *testing.T) {
	next, batch := Scan(nil, 0, 10, "*")
	require.Equal(t, uint64(0), next)
	require.Empty(t, batch)
}

func TestScanAppliesPatternAfterEnumeration(t *testing.T) {
	items := []string{"alpha", "beta", "gamma", "delta"}
	seen := make(map[string]bool)
	cursor := uint64(0)
	for {
		next, batch := Scan(items, cursor, 10, "a*")
		for _, k := range batch {
			seen[k] = true
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	require.True(t, seen["alpha"])
	require.False(t, seen["beta"])
	require.False(t, seen["gamma"])
	require.False(t, seen["delta"])
}

func TestReverseBinaryIncrementEventuallyReturnsToZero(t *testing.T) {
	mask := uint64(15) // table size 16
	cursor := uint64(0)
	visited := map[uint64]bool{0: true}
	for i := 0; i < 16; i++ {
		cursor = ReverseBinaryIncrement(cursor, mask)
		if cursor == 0 {
			break
		}
		require.False(t, visited[cursor], "bucket %d visited twice before wraparound", cursor)
		visited[cursor] = true
	}
	require.Equal(t, uint64(0), cursor)
	require.Len(t, visited, 16)
}

func TestScanRespectsWorkBudget(t *testing.T) {
	items := make([]string, 0, 2000)
	for i := 0; i < 2000; i++ {
		items = append(items, fmt.Sprintf("k%d", i))
	}
	_, batch := Scan(items, 0, 1, "*")
	// budget is 10 buckets out of a much larger table; a single call
	// must not walk the whole keyspace.
	require.Less(t, len(batch), len(items))
}
