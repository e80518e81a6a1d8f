package value

import (
	lru "github.com/hashicorp/golang-lru"
)

// sharedIntegers caches Value objects for small, frequently-stored
// integers so that e.g. SET k1 100 and SET k2 100 can share one
// *Value, per spec.md §9 ("reserve explicit shared handles only for
// the small set of shared objects (shared integer values 0..n, ...")
// and SPEC_FULL's assignment of hashicorp/golang-lru to this pool.
const sharedIntegerPoolSize = 10000

type sharedPool struct {
	cache *lru.Cache
}

func newSharedPool() *sharedPool {
	c, err := lru.New(sharedIntegerPoolSize)
	if err != nil {
		panic(err) // only fails for a non-positive size, which is a programmer error
	}
	return &sharedPool{cache: c}
}

var shared = newSharedPool()

// SharedInt returns a shared, retained *Value for n when n falls in
// the cached small-integer range, or a freshly allocated one
// otherwise. Callers must still Release() their handle when the key
// holding it is deleted.
func SharedInt(n int64) *Value {
	if n < 0 || n >= sharedIntegerPoolSize {
		return NewValue(TypeString, EncIntInline, n)
	}
	if v, ok := shared.cache.Get(n); ok {
		return v.(*Value).Retain()
	}
	v := NewValue(TypeString, EncIntInline, n)
	shared.cache.Add(n, v)
	return v.Retain()
}
