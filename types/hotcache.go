package types

import (
	"strconv"

	"github.com/VictoriaMetrics/fastcache"
)

// hotFieldCache is an opportunistic byte cache sitting in front of the
// general (hash-table) string and hash encodings, for workloads
// dominated by a handful of frequently re-read large fields (SPEC_FULL
// §4.3). Entries are tagged present/absent so a cached "field was
// deleted" fact short-circuits the canonical map lookup too; every
// mutation overwrites or re-tags the entry so it can never serve stale
// bytes after the tag changes.
var hotFieldCache = fastcache.New(32 * 1024 * 1024)

const (
	hotCacheTagAbsent  = 0
	hotCacheTagPresent = 1
)

func hotCacheKey(dbID int, key, field string) []byte {
	buf := make([]byte, 0, len(key)+len(field)+12)
	buf = strconv.AppendInt(buf, int64(dbID), 10)
	buf = append(buf, ':')
	buf = append(buf, key...)
	buf = append(buf, ':')
	buf = append(buf, field...)
	return buf
}

// hotCacheGet reports (val, present, hit): hit is false when nothing
// is cached for this field and the caller must consult the map.
func hotCacheGet(dbID int, key, field string) (val []byte, present bool, hit bool) {
	raw, ok := hotFieldCache.HasGet(nil, hotCacheKey(dbID, key, field))
	if !ok || len(raw) == 0 {
		return nil, false, false
	}
	if raw[0] == hotCacheTagAbsent {
		return nil, false, true
	}
	return raw[1:], true, true
}

func hotCachePutPresent(dbID int, key, field string, val []byte) {
	buf := make([]byte, 0, len(val)+1)
	buf = append(buf, hotCacheTagPresent)
	buf = append(buf, val...)
	hotFieldCache.Set(hotCacheKey(dbID, key, field), buf)
}

func hotCachePutAbsent(dbID int, key, field string) {
	hotFieldCache.Set(hotCacheKey(dbID, key, field), []byte{hotCacheTagAbsent})
}
