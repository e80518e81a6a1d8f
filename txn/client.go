// Package txn implements the optimistic-transaction primitive of
// spec.md §4.10 (component K): a per-client queue of commands plus
// key-watch invalidation across databases, independent of whatever
// command table eventually drives it.
//
// Grounded on database.go's Watcher/watch-index pair (the AddWatcher/
// RemoveWatcher/TouchWatchedKey triangle already owns the invalidation
// mechanics; this package is the client-side half of that contract)
// and on aof.Dispatcher's "define the smallest interface the consumer
// needs, let the real executor live elsewhere" shape.
package txn

import (
	"errors"
	"fmt"
	"strconv"

	mapset "github.com/deckarep/golang-set"

	"github.com/coreworks/memkv/database"
)

var (
	// ErrNestedMulti is returned by Multi when the client is already
	// inside a transaction (spec.md §4.10: "nested MULTI fails").
	ErrNestedMulti = errors.New("txn: MULTI calls can not be nested")
	// ErrExecWithoutMulti is returned by Exec outside MULTI.
	ErrExecWithoutMulti = errors.New("txn: EXEC without MULTI")
	// ErrWatchInsideMulti is returned by Watch once IN_MULTI is set.
	ErrWatchInsideMulti = errors.New("txn: WATCH inside MULTI is not allowed")
	// ErrDirtyWatch is Exec's abort error when a watched key changed
	// (spec.md §4.10: "EXEC returns a nil-array").
	ErrDirtyWatch = errors.New("txn: transaction discarded because a watched key was modified")
	// ErrExecAbort is Exec's abort error when queuing failed earlier
	// (spec.md §4.10: "EXECABORT error").
	ErrExecAbort = errors.New("txn: EXECABORT transaction discarded because of previous errors")
)

// DBResolver resolves a logical database id to its DB, so Watch can
// register against the right watch index and Unwatch can tear it down
// again without the caller threading *database.DB through every call.
type DBResolver func(id int) *database.DB

type queuedCommand struct {
	dbID int
	args [][]byte
}

type watchedKey struct {
	dbID int
	key  string
}

// Reply pairs one queued command's result with any error it produced,
// mirroring spec.md's "array of per-command replies" EXEC result.
type Reply struct {
	Value interface{}
	Err   error
}

// Executor applies one already-queued command against live state. It
// is supplied by the command dispatcher (out of this package's scope)
// so Exec can run the queue without this package knowing the command
// table. IsWrite and LogTransactionBoundary let Exec implement spec.md
// §4.10's "synthetic MULTI/EXEC framing around the first write" rule
// without itself knowing what a write command looks like.
type Executor interface {
	Execute(dbID int, args [][]byte) (reply interface{}, err error)
	IsWrite(args [][]byte) bool
	LogTransactionBoundary(begin bool)
}

// Client implements database.Watcher and tracks one client's
// transaction state: the IN_MULTI/DIRTY_WATCH/DIRTY_QUEUE flags of
// spec.md §3.2, the queued command list, and the watched-key list.
//
// Not safe for concurrent use, consistent with spec.md §5's
// single-executor discipline — MarkDirty is called synchronously from
// the same thread that runs every command, never from a background
// goroutine.
type Client struct {
	dbs DBResolver

	inMulti    bool
	dirtyWatch bool
	dirtyQueue bool

	queued  []queuedCommand
	watched []watchedKey
	seen    mapset.Set // de-dupes repeated WATCH of the same (dbID, key)
}

// NewClient returns a Client with no active transaction or watches.
func NewClient(dbs DBResolver) *Client {
	return &Client{dbs: dbs, seen: mapset.NewSet()}
}

// MarkDirty implements database.Watcher; touch_watched_key (spec.md
// §4.10) calls this on every client watching a key that was just
// mutated or whose database was flushed.
func (c *Client) MarkDirty() { c.dirtyWatch = true }

// InMulti reports whether the client is currently queuing commands.
// Also satisfies aof.Dispatcher's InMulti, for the loader's "client
// left in MULTI at EOF is fatal corruption" check (component I) when
// a Client stands in as the synthetic replay client.
func (c *Client) InMulti() bool { return c.inMulti }

// Multi sets IN_MULTI; a nested MULTI is an error and leaves the
// existing transaction untouched.
func (c *Client) Multi() error {
	if c.inMulti {
		return ErrNestedMulti
	}
	c.inMulti = true
	return nil
}

// Enqueue appends a successfully-parsed command to the queue. Callers
// queue every command while IN_MULTI except MULTI/EXEC/DISCARD/WATCH/
// UNWATCH themselves, which the dispatcher handles directly.
func (c *Client) Enqueue(dbID int, args [][]byte) {
	c.queued = append(c.queued, queuedCommand{dbID, args})
}

// MarkQueueDirty records that a command failed to queue — bad arity,
// unknown command, or a permission error (spec.md §4.10: "any parse/
// arity/permission error while queuing sets DIRTY_QUEUE").
func (c *Client) MarkQueueDirty() { c.dirtyQueue = true }

// Watch records (dbID, key) in the client's watch list and registers
// the client in that database's watch index. WATCH inside MULTI is an
// error; repeated WATCH of the same key is a no-op.
func (c *Client) Watch(dbID int, key string) error {
	if c.inMulti {
		return ErrWatchInsideMulti
	}
	token := watchToken(dbID, key)
	if c.seen.Contains(token) {
		return nil
	}
	db := c.dbs(dbID)
	if db == nil {
		return fmt.Errorf("txn: unknown database %d", dbID)
	}
	db.AddWatcher(key, c)
	c.watched = append(c.watched, watchedKey{dbID, key})
	c.seen.Add(token)
	return nil
}

// Unwatch clears the client's watch list and DIRTY_WATCH, deregistering
// from every database's watch index. Used directly for UNWATCH, and
// internally by Exec/Discard's "watches are cleared" step.
func (c *Client) Unwatch() {
	for _, w := range c.watched {
		if db := c.dbs(w.dbID); db != nil {
			db.RemoveWatcher(w.key, c)
		}
	}
	c.watched = nil
	c.seen = mapset.NewSet()
	c.dirtyWatch = false
}

// Discard clears queued commands, the watch list, and every flag
// (spec.md §4.10 DISCARD).
func (c *Client) Discard() {
	c.Unwatch()
	c.queued = nil
	c.inMulti = false
	c.dirtyQueue = false
}

// Exec requires IN_MULTI. If DIRTY_WATCH or DIRTY_QUEUE is set, the
// transaction aborts without running any queued command (respectively
// ErrDirtyWatch and ErrExecAbort); otherwise every queued command runs
// in order through exec, with a synthetic MULTI logged just before the
// first write command and a matching EXEC after the last queued
// command (spec.md §4.10 point 2). Watches,
// the queue, and every flag are cleared either way.
func (c *Client) Exec(exec Executor) ([]Reply, error) {
	if !c.inMulti {
		return nil, ErrExecWithoutMulti
	}

	queued := c.queued
	dirtyWatch, dirtyQueue := c.dirtyWatch, c.dirtyQueue
	c.Unwatch()
	c.queued = nil
	c.inMulti = false
	c.dirtyQueue = false

	if dirtyWatch {
		return nil, ErrDirtyWatch
	}
	if dirtyQueue {
		return nil, ErrExecAbort
	}

	replies := make([]Reply, 0, len(queued))
	loggedMulti := false
	for _, qc := range queued {
		if !loggedMulti && exec.IsWrite(qc.args) {
			exec.LogTransactionBoundary(true)
			loggedMulti = true
		}
		reply, err := exec.Execute(qc.dbID, qc.args)
		replies = append(replies, Reply{Value: reply, Err: err})
	}
	if loggedMulti {
		exec.LogTransactionBoundary(false)
	}
	return replies, nil
}

func watchToken(dbID int, key string) string {
	return strconv.Itoa(dbID) + "\x00" + key
}
