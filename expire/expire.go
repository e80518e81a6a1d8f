// Package expire implements the expiration engine of spec.md §4.2
// (component F): lazy and active eviction, absolute-time conversion,
// and deterministic propagation of expirations into the log/
// replication stream.
//
// Grounded on the lazy/idempotent-check idiom in
// migrations/migrations.go (the Apply loop skips already-applied
// work the same way expire_if_needed skips keys with no deadline).
package expire

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/coreworks/memkv/common"
	"github.com/coreworks/memkv/database"
	"github.com/coreworks/memkv/log"
	"github.com/coreworks/memkv/metrics"
)

// Notifier receives the side effects of an expiration: a keyspace
// notification and a synthetic DELETE written to the log/replication
// stream (spec.md §4.2, §7 "Propagation policy").
type Notifier interface {
	NotifyExpired(dbID int, key string)
	WriteSyntheticDelete(dbID int, key string)
}

// Clock abstracts "now" so script execution can pin a single
// timestamp for every expiration check within the script (spec.md
// §4.2 "Time source").
type Clock func() int64

// WallClock returns the current time in epoch milliseconds.
func WallClock() int64 { return time.Now().UnixNano() / int64(time.Millisecond) }

// Engine implements expire_if_needed and the EXPIRE-family write path
// for one server (all of its databases share one role/loading state).
type Engine struct {
	Notifier Notifier
	Clock    Clock

	// IsFollower reports whether this process is currently a replica.
	// A follower must not delete on its own initiative — spec.md §4.2:
	// "the primary is authoritative for expiration to guarantee
	// deterministic replay." Interface-only per spec.md §1's scope cut.
	IsFollower func() bool

	// Loading is true while a snapshot or log is being restored; no
	// key may expire during that window (spec.md §4.2, §4.6 loader
	// behavior).
	Loading func() bool

	limiter *rate.Limiter
}

// NewEngine builds an expiration engine. pacePerSecond bounds how many
// keys the active-expire cycle inspects per second (SPEC_FULL §4,
// golang.org/x/time/rate).
func NewEngine(n Notifier, pacePerSecond int) *Engine {
	return &Engine{
		Notifier:   n,
		Clock:      WallClock,
		IsFollower: func() bool { return false },
		Loading:    func() bool { return false },
		limiter:    rate.NewLimiter(rate.Limit(pacePerSecond), pacePerSecond),
	}
}

// SetExpire records or replaces key's deadline; key must be present.
func (e *Engine) SetExpire(db *database.DB, key string, deadlineMs int64) bool {
	return db.SetExpireAt(key, deadlineMs)
}

// RemoveExpire clears key's deadline, returning whether one existed.
func (e *Engine) RemoveExpire(db *database.DB, key string) bool {
	return db.RemoveExpireAt(key)
}

// GetExpire returns key's absolute deadline in ms, or -1 if none.
func (e *Engine) GetExpire(db *database.DB, key string) int64 {
	d, ok := db.GetExpireAt(key)
	if !ok {
		return -1
	}
	return d
}

// ExpireIfNeeded is spec.md §4.2's core decision: if key has a
// deadline that has passed, delete it (primary only), count it,
// notify, and write a synthetic DELETE; return whether it is (now, or
// already was) expired-and-gone.
//
// This is also wired as database.DB's ExpireHook, so every
// LookupForRead/LookupForWrite passes through it first.
func (e *Engine) ExpireIfNeeded(db *database.DB, key string) bool {
	if e.Loading != nil && e.Loading() {
		return false
	}
	deadline, ok := db.GetExpireAt(key)
	if !ok {
		return false
	}
	if e.Clock() < deadline {
		return false
	}
	if e.IsFollower != nil && e.IsFollower() {
		// Followers report the would-be-expired state without acting;
		// the key is still logically "gone" to the caller's intent,
		// but spec.md forbids deleting here, so we leave it present.
		return true
	}
	db.RawDelete(key)
	metrics.ExpiredKeys.Inc()
	if e.Notifier != nil {
		e.Notifier.NotifyExpired(db.ID, key)
		e.Notifier.WriteSyntheticDelete(db.ID, key)
	}
	return true
}

// Hook returns an ExpireHook bound to db for this engine, for wiring
// into database.DB.Expire.
func (e *Engine) Hook(db *database.DB) database.ExpireHook {
	return func(key string) bool { return e.ExpireIfNeeded(db, key) }
}

// RewriteExpireCommand implements spec.md §4.2's "EXPIRE-family
// commands with an already-past absolute time": on the primary, an
// EXPIRE/PEXPIRE/EXPIREAT/PEXPIREAT targeting a deadline that has
// already passed performs an immediate synchronous delete and returns
// true, signalling the caller to rewrite its own command to a literal
// DELETE before handing it to the log/replication stream.
func (e *Engine) RewriteExpireCommand(db *database.DB, key string, deadlineMs int64) (deletedNow bool) {
	if e.IsFollower != nil && e.IsFollower() {
		return false
	}
	if deadlineMs > e.Clock() {
		return false
	}
	if !db.Exists(key) {
		return false
	}
	db.RawDelete(key)
	metrics.ExpiredKeys.Inc()
	if e.Notifier != nil {
		e.Notifier.NotifyExpired(db.ID, key)
	}
	return true
}

// ActiveCycle performs one pass of active eviction over db, paced by
// the configured rate limiter, used by a periodic background task
// (outside this core's scope to schedule, per spec.md §1's dispatcher
// exclusion — Engine only implements the per-call unit of work).
func (e *Engine) ActiveCycle(db *database.DB, quit <-chan struct{}) (expired int) {
	for key := range db.ExpiresMap() {
		if err := common.Stopped(quit); err != nil {
			return expired
		}
		if e.limiter != nil {
			_ = e.limiter.Wait(context.Background())
		}
		if e.ExpireIfNeeded(db, key) {
			expired++
		}
	}
	if expired > 0 {
		log.Info("active expire cycle", "db", db.ID, "expired", expired)
	}
	return expired
}
