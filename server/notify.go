package server

import (
	"fmt"

	"github.com/coreworks/memkv/aof"
	"github.com/coreworks/memkv/expire"
	"github.com/coreworks/memkv/pubsub"
	"github.com/coreworks/memkv/types"
)

// notifyHub fans a single mutation out to both of component D's
// listed downstream consumers (spec.md's data-flow line: "emitting
// change notifications to L and I" — the pub/sub router and the
// append-only log). It implements both types.Notifier and
// expire.Notifier, since both call sites describe the same event.
//
// Channel naming follows the keyspace-notification convention spec.md
// §4.3 alludes to without fixing a wire format for: one channel per
// key ("__keyspace@<db>__:<key>", message = event name) and one per
// event ("__keyevent@<db>__:<event>", message = key), so a subscriber
// can filter by either axis via pubsub's existing pattern matching.
type notifyHub struct {
	router    *pubsub.Router
	aofWriter *aof.Writer
}

var (
	_ expire.Notifier = (*notifyHub)(nil)
	_ types.Notifier  = (*notifyHub)(nil)
)

// NotifyKeyspaceEvent implements types.Notifier.
func (h *notifyHub) NotifyKeyspaceEvent(dbID int, event, key string) {
	if h.router == nil {
		return
	}
	h.router.Publish(fmt.Sprintf("__keyspace@%d__:%s", dbID, key), event)
	h.router.Publish(fmt.Sprintf("__keyevent@%d__:%s", dbID, event), key)
}

// NotifyExpired implements expire.Notifier.
func (h *notifyHub) NotifyExpired(dbID int, key string) {
	h.NotifyKeyspaceEvent(dbID, "expired", key)
}

// WriteSyntheticDelete implements expire.Notifier: an active or lazy
// expiration appends its own DEL record to the log, independent of
// whatever command happened to trigger the lazy check (spec.md §4.2/§7
// "deterministic replay").
func (h *notifyHub) WriteSyntheticDelete(dbID int, key string) {
	if h.aofWriter == nil {
		return
	}
	h.aofWriter.Append(dbID, [][]byte{[]byte("DEL"), []byte(key)}, expire.WallClock())
}
