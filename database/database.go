// Package database implements the per-logical-database keyspace of
// spec.md §3.2/§4.1 (component C): the key->value dictionary, the
// key->deadline expiry map, and the watch index, plus the
// lookup/add/overwrite/set/delete/random/flush contract.
//
// Grounded on ethdb/memory_database.go's single-owner in-memory map
// idiom and core/state/db_state_writer.go's read/write/delete method
// surface.
package database

import (
	"math/rand"

	mapset "github.com/deckarep/golang-set"

	"github.com/coreworks/memkv/common"
	"github.com/coreworks/memkv/metrics"
	"github.com/coreworks/memkv/scan"
	"github.com/coreworks/memkv/value"
)

// ExpireHook is consulted by LookupForRead/LookupForWrite before
// touching a key, and reports whether the key was lazily expired
// (and therefore no longer present). It is set once by the server
// wiring layer to the expire.Engine for this DB, keeping the
// expire package a consumer of database rather than a dependency of
// it (spec.md's F component sits logically "above" C but needs C's
// lookup path to trigger lazy eviction).
type ExpireHook func(key string) (expired bool)

// DB is one of the N logical databases of spec.md §3.2.
//
// Not safe for concurrent use: per spec.md §5, a single command
// executor owns all in-memory state and commands apply sequentially.
type DB struct {
	ID int

	keyspace map[string]*value.Value
	expires  map[string]int64 // key -> absolute deadline, ms

	watchIndex map[string]mapset.Set // key -> set of Watcher
	readyKeys  mapset.Set            // keys whose list just became non-empty

	Expire ExpireHook

	// Dirty counts unreplicated mutations since the last successful
	// snapshot (spec.md glossary "Dirty counter").
	Dirty int64
}

// Watcher is touched when a watched key is mutated or the database is
// flushed (spec.md §4.10 touch_watched_key). Implemented by txn.Client.
type Watcher interface {
	MarkDirty()
}

// New creates an empty database with the given index.
func New(id int) *DB {
	return &DB{
		ID:         id,
		keyspace:   make(map[string]*value.Value),
		expires:    make(map[string]int64),
		watchIndex: make(map[string]mapset.Set),
		readyKeys:  mapset.NewSet(),
	}
}

// LookupForRead performs lazy expiration, then returns the value,
// updating hit/miss counters and the LRU stamp (spec.md §4.1).
func (db *DB) LookupForRead(key string, saveInFlight bool) (*value.Value, bool) {
	if db.Expire != nil && db.Expire(key) {
		metrics.KeyspaceMisses.Inc()
		return nil, false
	}
	v, ok := db.keyspace[key]
	if !ok {
		metrics.KeyspaceMisses.Inc()
		return nil, false
	}
	metrics.KeyspaceHits.Inc()
	v.Touch(!saveInFlight)
	return v, true
}

// LookupForWrite performs lazy expiration but does not touch hit/miss
// counters or the LRU stamp (spec.md §4.1).
func (db *DB) LookupForWrite(key string) (*value.Value, bool) {
	if db.Expire != nil && db.Expire(key) {
		return nil, false
	}
	v, ok := db.keyspace[key]
	return v, ok
}

// Add requires key to be absent; it takes ownership of v. If v is a
// list, the key is recorded in readyKeys (spec.md §4.1).
func (db *DB) Add(key string, v *value.Value) {
	if _, exists := db.keyspace[key]; exists {
		panic("database: Add called with an existing key")
	}
	db.keyspace[key] = v
	if v.Type == value.TypeList {
		db.readyKeys.Add(key)
	}
	db.Dirty++
}

// Overwrite requires key to be present; it replaces the value without
// touching the expiry (spec.md §4.1).
func (db *DB) Overwrite(key string, v *value.Value) {
	if _, exists := db.keyspace[key]; !exists {
		panic("database: Overwrite called with a missing key")
	}
	db.keyspace[key] = v
	db.Dirty++
}

// Set is add-or-overwrite; it additionally clears any expiry and
// fires watch invalidation (spec.md §4.1).
func (db *DB) Set(key string, v *value.Value) {
	db.keyspace[key] = v
	delete(db.expires, key)
	db.TouchWatchedKey(key)
	db.Dirty++
}

// Delete removes key from both expires and keyspace, in that order,
// per spec.md §4.1's ownership discipline ("remove from expires
// first, then keyspace") so the shared key string is freed exactly
// once.
func (db *DB) Delete(key string) bool {
	delete(db.expires, key)
	if _, ok := db.keyspace[key]; !ok {
		return false
	}
	delete(db.keyspace, key)
	db.readyKeys.Remove(key)
	db.Dirty++
	return true
}

// Exists reports whether key is present (no lazy expiration side
// effect; callers that need eviction semantics use LookupFor*).
func (db *DB) Exists(key string) bool {
	_, ok := db.keyspace[key]
	return ok
}

// Random returns a random non-expired key by rejection sampling over
// the keyspace (spec.md §4.1). Expired entries still physically
// present (not yet lazily evicted) are skipped and evicted as they're
// sampled.
func (db *DB) Random() (string, bool) {
	if len(db.keyspace) == 0 {
		return "", false
	}
	keys := make([]string, 0, len(db.keyspace))
	for k := range db.keyspace {
		keys = append(keys, k)
	}
	for attempts := 0; attempts < len(keys)*2+1; attempts++ {
		k := keys[rand.Intn(len(keys))]
		if db.Expire != nil && db.Expire(k) {
			continue
		}
		return k, true
	}
	return "", false
}

// Size returns the number of keys currently in the keyspace (DBSIZE).
func (db *DB) Size() int { return len(db.keyspace) }

// Flush clears keyspace and expires and fires a flush notification to
// every watcher of this database (spec.md §4.1, §4.10).
func (db *DB) Flush() {
	for key := range db.watchIndex {
		db.TouchWatchedKey(key)
	}
	db.keyspace = make(map[string]*value.Value)
	db.expires = make(map[string]int64)
	db.readyKeys = mapset.NewSet()
	db.Dirty++
}

// Keys returns every key matching pattern (KEYS command); expired
// keys are lazily evicted as encountered.
func (db *DB) Keys(pattern string) []string {
	out := make([]string, 0, len(db.keyspace))
	for k := range db.keyspace {
		if db.Expire != nil && db.Expire(k) {
			continue
		}
		if pattern == "*" || common.GlobMatch(pattern, k) {
			out = append(out, k)
		}
	}
	return out
}

// Scan implements the keyspace-agnostic SCAN cursor command (spec.md
// §6.1), built on component G's reverse-binary cursor over a stable
// snapshot of live keys taken at call time; expired keys are lazily
// evicted as encountered and never included (spec.md §4.5).
func (db *DB) Scan(cursor uint64, count int, pattern string) (next uint64, keys []string) {
	live := make([]string, 0, len(db.keyspace))
	for k := range db.keyspace {
		if db.Expire != nil && db.Expire(k) {
			continue
		}
		live = append(live, k)
	}
	return scan.Scan(live, cursor, count, pattern)
}

// ---- watch index (spec.md §3.2, §4.10) ----

// AddWatcher registers w as watching key.
func (db *DB) AddWatcher(key string, w Watcher) {
	s, ok := db.watchIndex[key]
	if !ok {
		s = mapset.NewSet()
		db.watchIndex[key] = s
	}
	s.Add(w)
}

// RemoveWatcher drops w from key's watcher set.
func (db *DB) RemoveWatcher(key string, w Watcher) {
	s, ok := db.watchIndex[key]
	if !ok {
		return
	}
	s.Remove(w)
	if s.Cardinality() == 0 {
		delete(db.watchIndex, key)
	}
}

// TouchWatchedKey marks every client watching key as dirty (spec.md
// §4.10 touch_watched_key).
func (db *DB) TouchWatchedKey(key string) {
	s, ok := db.watchIndex[key]
	if !ok {
		return
	}
	for w := range s.Iter() {
		w.(Watcher).MarkDirty()
	}
}

// ReadyKeys returns the set of keys whose list type just became
// non-empty (spec.md §3.2; blocking consumption itself is out of
// core scope per spec.md §1).
func (db *DB) ReadyKeys() mapset.Set { return db.readyKeys }

// MarkReady records that key's list became non-empty.
func (db *DB) MarkReady(key string) { db.readyKeys.Add(key) }

// ---- expiry map access (spec.md §3.2/§4.2) ----
//
// The expires map itself lives here per spec.md §3.2; the decision
// logic (when to call these, what counters/notifications to fire) is
// the expire package's job (component F) to keep the two concerns
// separated the way spec.md's component table splits them.

// SetExpireAt requires key to be present and records/replaces its
// absolute millisecond deadline.
func (db *DB) SetExpireAt(key string, deadlineMs int64) bool {
	if _, ok := db.keyspace[key]; !ok {
		return false
	}
	db.expires[key] = deadlineMs
	return true
}

// RemoveExpireAt deletes any deadline recorded for key, returning
// whether one was present.
func (db *DB) RemoveExpireAt(key string) bool {
	if _, ok := db.expires[key]; !ok {
		return false
	}
	delete(db.expires, key)
	return true
}

// GetExpireAt returns key's absolute deadline in ms, or (-1, false) if
// none is set (spec.md invariant 2: absence of an entry means "no
// expiry", never a deadline of -1).
func (db *DB) GetExpireAt(key string) (int64, bool) {
	d, ok := db.expires[key]
	return d, ok
}

// RawLookup returns the value for key without any lazy-expiry side
// effect, for use by the expire engine itself (which must not
// recurse into its own ExpireHook) and by the snapshot/rewrite
// iterators, which must see the state as-is.
func (db *DB) RawLookup(key string) (*value.Value, bool) {
	v, ok := db.keyspace[key]
	return v, ok
}

// RawDelete is Delete without readyKeys/Dirty bookkeeping assumptions
// beyond what Delete already does; kept as a named alias so callers
// reading expire.go can tell "this is the primitive removal path".
func (db *DB) RawDelete(key string) bool { return db.Delete(key) }

// Keyspace exposes the underlying map for iteration by the snapshot
// writer and cursor scan (components H and G), which must walk every
// key including ones a lazy ExpireHook would otherwise filter mid-walk.
func (db *DB) Keyspace() map[string]*value.Value { return db.keyspace }

// ExpiresMap exposes the underlying expiry map for iteration by the
// snapshot writer (component H), which must emit EXPIRETIME_MS records.
func (db *DB) ExpiresMap() map[string]int64 { return db.expires }
