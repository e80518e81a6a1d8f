package types

import (
	"sort"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coreworks/memkv/value"
)

func TestHSetAndHGet(t *testing.T) {
	o := newTestOps()
	h := o.Hash()
	created, err := h.Set("k", "f1", []byte("v1"))
	require.NoError(t, err)
	require.True(t, created)

	created, err = h.Set("k", "f1", []byte("v2"))
	require.NoError(t, err)
	require.False(t, created)

	got, ok, err := h.Get("k", "f1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v2"), got)
}

func TestHSetNXRespectsExisting(t *testing.T) {
	o := newTestOps()
	h := o.Hash()
	ok, err := h.SetNX("k", "f", []byte("first"))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = h.SetNX("k", "f", []byte("second"))
	require.NoError(t, err)
	require.False(t, ok)

	got, _, _ := h.Get("k", "f")
	require.Equal(t, []byte("first"), got)
}

func TestHashUpgradesOnEntryCount(t *testing.T) {
	o := newTestOps()
	o.Cfg.HashMaxZiplistEntries = 2
	h := o.Hash()
	h.Set("k", "f1", []byte("a"))
	h.Set("k", "f2", []byte("b"))
	h.Set("k", "f3", []byte("c"))

	v, _ := o.DB.LookupForRead("k", false)
	require.Equal(t, value.EncHashtable, v.Encoding)

	fields, _, err := h.GetAll("k")
	require.NoError(t, err)
	require.Len(t, fields, 3)
}

func TestHDelDeletesKeyWhenEmpty(t *testing.T) {
	o := newTestOps()
	h := o.Hash()
	h.Set("k", "f", []byte("v"))
	n, err := h.Del("k", "f")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.False(t, o.DB.Exists("k"))
}

func TestHGetAllCompact(t *testing.T) {
	o := newTestOps()
	h := o.Hash()
	h.Set("k", "f1", []byte("v1"))
	h.Set("k", "f2", []byte("v2"))

	fields, vals, err := h.GetAll("k")
	require.NoError(t, err)
	pairs := map[string]string{}
	for i, f := range fields {
		pairs[f] = string(vals[i])
	}
	require.Equal(t, map[string]string{"f1": "v1", "f2": "v2"}, pairs)
}

func TestHIncrBy(t *testing.T) {
	o := newTestOps()
	h := o.Hash()
	n, err := h.IncrBy("k", "counter", 3)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	n, err = h.IncrBy("k", "counter", -1)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}

func TestHIncrByFloat(t *testing.T) {
	o := newTestOps()
	h := o.Hash()
	f, err := h.IncrByFloat("k", "counter", 1.5)
	require.NoError(t, err)
	require.Equal(t, 1.5, f)
}

func TestHIncrByNonIntegerErrors(t *testing.T) {
	o := newTestOps()
	h := o.Hash()
	h.Set("k", "f", []byte("notanumber"))
	_, err := h.IncrBy("k", "f", 1)
	require.Error(t, err)
}

func TestHLenAndExists(t *testing.T) {
	o := newTestOps()
	h := o.Hash()
	for i := 0; i < 5; i++ {
		h.Set("k", "f"+strconv.Itoa(i), []byte("v"))
	}
	n, err := h.Len("k")
	require.NoError(t, err)
	require.Equal(t, 5, n)

	ok, err := h.Exists("k", "f3")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = h.Exists("k", "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHSetWrongTypeErrors(t *testing.T) {
	o := newTestOps()
	o.String().Set("k", []byte("v"))
	_, err := o.Hash().Set("k", "f", []byte("v"))
	require.Error(t, err)
}

func TestHMSetAndHMGet(t *testing.T) {
	o := newTestOps()
	h := o.Hash()
	err := h.SetMany("k", []HashPair{{Field: "f1", Value: []byte("v1")}, {Field: "f2", Value: []byte("v2")}})
	require.NoError(t, err)

	vals, found, err := h.GetMany("k", "f1", "missing", "f2")
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("v1"), nil, []byte("v2")}, vals)
	require.Equal(t, []bool{true, false, true}, found)
}

func TestHKeysAndHVals(t *testing.T) {
	o := newTestOps()
	h := o.Hash()
	h.Set("k", "f1", []byte("v1"))
	h.Set("k", "f2", []byte("v2"))

	keys, err := h.Keys("k")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"f1", "f2"}, keys)

	vals, err := h.Vals("k")
	require.NoError(t, err)
	require.ElementsMatch(t, [][]byte{[]byte("v1"), []byte("v2")}, vals)
}

func TestHScanCompactCollapsesCursor(t *testing.T) {
	o := newTestOps()
	h := o.Hash()
	h.Set("k", "f1", []byte("v1"))
	h.Set("k", "f2", []byte("v2"))

	next, fields, vals, err := h.Scan("k", 0, 10, "")
	require.NoError(t, err)
	require.Equal(t, uint64(0), next)
	require.Len(t, fields, 2)
	require.Len(t, vals, 2)
}

func TestHScanHashtableDrivesCursor(t *testing.T) {
	o := newTestOps()
	o.Cfg.HashMaxZiplistEntries = 1
	h := o.Hash()
	for i := 0; i < 50; i++ {
		h.Set("k", "f"+strconv.Itoa(i), []byte("v"+strconv.Itoa(i)))
	}

	seen := map[string]bool{}
	cursor := uint64(0)
	for {
		next, fields, vals, err := h.Scan("k", cursor, 10, "")
		require.NoError(t, err)
		for i, f := range fields {
			seen[f] = true
			require.Equal(t, []byte("v"+f[1:]), vals[i])
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	require.Len(t, seen, 50)
}

func TestHScanAppliesPattern(t *testing.T) {
	o := newTestOps()
	h := o.Hash()
	h.Set("k", "foo", []byte("1"))
	h.Set("k", "bar", []byte("2"))

	_, fields, _, err := h.Scan("k", 0, 10, "f*")
	require.NoError(t, err)
	require.Equal(t, []string{"foo"}, fields)
}

func TestHGetAllHashtableSorted(t *testing.T) {
	o := newTestOps()
	o.Cfg.HashMaxZiplistEntries = 1
	h := o.Hash()
	h.Set("k", "a", []byte("1"))
	h.Set("k", "b", []byte("2"))

	fields, _, err := h.GetAll("k")
	require.NoError(t, err)
	sort.Strings(fields)
	require.Equal(t, []string{"a", "b"}, fields)
}
